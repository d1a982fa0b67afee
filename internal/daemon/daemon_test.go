package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/muurk/smartrelay/internal/client"
	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/gpio"
	"github.com/muurk/smartrelay/internal/netsession"
	"github.com/muurk/smartrelay/internal/wemo"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WeMo.Enabled = false
	cfg.MDNS.Enabled = false
	cfg.API.Listen = "127.0.0.1:0"
	cfg.Loop.TickMs = 10
	cfg.Network.RetryIntervalMs = 1
	return cfg
}

func linkUp() ([]netsession.Interface, error) {
	return []netsession.Interface{{Name: "eth0", Up: true, IPv4: []net.IP{net.ParseIP("127.0.0.1").To4()}}}, nil
}

func linkDown() ([]netsession.Interface, error) {
	return []netsession.Interface{{Name: "eth0"}}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemon_EndToEnd(t *testing.T) {
	cfg := testConfig()
	sim := gpio.NewSim(gpio.High)
	station := netsession.New("", netsession.WithInterfaceSource(linkUp))

	d, err := New(cfg, WithPins(sim), WithStation(station))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !d.Online() || d.APIAddr() == "" {
		t.Fatalf("online=%v api=%q", d.Online(), d.APIAddr())
	}

	pins := d.Pins()
	relayOn := func() bool { return pins.Relay.Active(sim.Level(pins.Relay.Number)) }
	ledLit := func() bool { return pins.LED.Active(sim.Level(pins.LED.Number)) }
	if relayOn() || !ledLit() {
		t.Fatal("boot default is not power off")
	}

	served := make(chan error, 1)
	go func() { served <- d.Serve(ctx) }()

	// Remote on through the REST API.
	c := client.NewClientWithURL("http://" + d.APIAddr())
	st, err := c.SetState(ctx, true)
	if err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if !st.State.On || st.Pending {
		t.Errorf("SetState(true) = %+v", st)
	}
	if !relayOn() || ledLit() {
		t.Error("outputs do not follow remote on")
	}

	// Physical press toggles back off; the API sees it.
	sim.Set(pins.Button.Number, pins.Button.Level(true))
	waitFor(t, "button toggle", func() bool { return !relayOn() })
	sim.Set(pins.Button.Number, pins.Button.Level(false))

	waitFor(t, "API state", func() bool {
		st, err := c.GetState(ctx)
		return err == nil && !st.State.On
	})

	cancel()
	if err := <-served; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

const soapEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <s:Body>%s</s:Body>
</s:Envelope>`

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func soap(t *testing.T, base, action, body string) string {
	t.Helper()
	envelope := strings.Replace(soapEnvelope, "%s", body, 1)
	req, err := http.NewRequest(http.MethodPost, base+"/upnp/control/basicevent1", strings.NewReader(envelope))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", `"urn:Belkin:service:basicevent:1#`+action+`"`)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s: %v", action, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: HTTP %d: %s", action, resp.StatusCode, data)
	}
	return string(data)
}

func TestDaemon_WeMoEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.WeMo.Enabled = true
	cfg.API.Enabled = false
	cfg.Device.Port = freePort(t)
	sim := gpio.NewSim(gpio.High)

	d, err := New(cfg,
		WithPins(sim),
		WithStation(netsession.New("", netsession.WithInterfaceSource(linkUp))),
		WithWeMoOptions(wemo.WithoutSSDP()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = d.Shutdown(shutdownCtx)
	}()

	location := d.WeMoLocation()
	if !strings.HasPrefix(location, "http://127.0.0.1:") {
		t.Fatalf("WeMoLocation() = %q", location)
	}
	base := strings.TrimSuffix(location, "/setup.xml")

	served := make(chan error, 1)
	go func() { served <- d.Serve(ctx) }()

	if body := soap(t, base, "GetBinaryState", `<u:GetBinaryState xmlns:u="urn:Belkin:service:basicevent:1"></u:GetBinaryState>`); !strings.Contains(body, "<BinaryState>0</BinaryState>") {
		t.Errorf("boot GetBinaryState = %s", body)
	}

	soap(t, base, "SetBinaryState", `<u:SetBinaryState xmlns:u="urn:Belkin:service:basicevent:1"><BinaryState>1</BinaryState></u:SetBinaryState>`)

	pins := d.Pins()
	waitFor(t, "relay on", func() bool { return pins.Relay.Active(sim.Level(pins.Relay.Number)) })
	if pins.LED.Active(sim.Level(pins.LED.Number)) {
		t.Error("LED lit while the relay is on")
	}

	waitFor(t, "GetBinaryState 1", func() bool {
		body := soap(t, base, "GetBinaryState", `<u:GetBinaryState xmlns:u="urn:Belkin:service:basicevent:1"></u:GetBinaryState>`)
		return strings.Contains(body, "<BinaryState>1</BinaryState>")
	})

	cancel()
	if err := <-served; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
}

func TestDaemon_LocalOnlyFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Network.MaxAttempts = 3
	sim := gpio.NewSim(gpio.High)

	var reports []bool
	d, err := New(cfg,
		WithPins(sim),
		WithStation(netsession.New("", netsession.WithInterfaceSource(linkDown))),
		WithReporter(device.ReporterFunc(func(id int, on bool, level uint8) { reports = append(reports, on) })),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Shutdown(context.Background())

	if d.Online() || d.APIAddr() != "" || d.WeMoLocation() != "" {
		t.Error("network surfaces started without a network")
	}

	// The button still works, driven tick by tick.
	pins := d.Pins()
	sim.Set(pins.Button.Number, pins.Button.Level(true))
	d.Loop().Tick()
	sim.Set(pins.Button.Number, pins.Button.Level(false))
	d.Loop().Tick()

	if !d.Controller().PowerOn() {
		t.Error("button did not toggle in local-only mode")
	}
	if len(reports) != 2 || reports[0] || !reports[1] {
		t.Errorf("reports = %v, want [false true]", reports)
	}
}

func TestDaemon_UnboundedRetryHonoursContext(t *testing.T) {
	cfg := testConfig()
	d, err := New(cfg,
		WithPins(gpio.NewSim(gpio.High)),
		WithStation(netsession.New("", netsession.WithInterfaceSource(linkDown))),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = d.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() error = %v, want deadline exceeded", err)
	}
	_ = d.Shutdown(context.Background())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Device.Name = ""
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted an invalid config")
	}
}

func TestOpenPins(t *testing.T) {
	pins := device.PinsFromConfig(config.Default().Pins)

	io, err := OpenPins(config.IOConfig{Backend: "sim"}, pins)
	if err != nil {
		t.Fatal(err)
	}
	sim, ok := io.(*gpio.Sim)
	if !ok {
		t.Fatalf("sim backend is %T", io)
	}
	if pins.Button.Active(sim.Level(pins.Button.Number)) {
		t.Error("simulated button idles pressed")
	}

	if _, err := OpenPins(config.IOConfig{Backend: "sysfs", Sysfs: config.SysfsConfig{Root: t.TempDir()}}, pins); err != nil {
		t.Errorf("sysfs: %v", err)
	}
	if _, err := OpenPins(config.IOConfig{Backend: "modbus", Modbus: config.Default().IO.Modbus}, pins); err != nil {
		t.Errorf("modbus: %v", err)
	}
	if _, err := OpenPins(config.IOConfig{Backend: "bogus"}, pins); err == nil {
		t.Error("unknown backend accepted")
	}
}
