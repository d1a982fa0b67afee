// Package daemon assembles the controller, the poll loop and every network
// surface from a Config and runs them.
//
// Boot order follows the device: pins and the power-off default first, so
// the button works even if nothing else comes up; then the network session;
// then the transports that need it (WeMo, API, MQTT, mDNS). When the network
// cannot be joined under a bounded retry policy the daemon keeps running in
// local-only mode with just the button.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/discovery"
	"github.com/muurk/smartrelay/internal/gpio"
	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/loop"
	"github.com/muurk/smartrelay/internal/messaging"
	"github.com/muurk/smartrelay/internal/netsession"
	"github.com/muurk/smartrelay/internal/server"
	"github.com/muurk/smartrelay/internal/version"
	"github.com/muurk/smartrelay/internal/wemo"
)

// DeviceID is the id of the single controlled device.
const DeviceID = 0

// ShutdownTimeout bounds Run's graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Daemon is one running smartrelay instance.
type Daemon struct {
	cfg   *config.Config
	pins  device.Pins
	io    gpio.Pins
	extra []device.Reporter

	wemoOpts []wemo.Option

	station *netsession.Station
	ctrl    *device.Controller
	loop    *loop.Loop

	wemo       *wemo.Transport
	api        *server.Server
	broker     *messaging.MsgBroker
	bridge     *messaging.Bridge
	advertiser *discovery.Advertiser

	online bool
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithPins replaces the I/O backend named in the config.
func WithPins(io gpio.Pins) Option {
	return func(d *Daemon) { d.io = io }
}

// WithStation replaces the host network session.
func WithStation(s *netsession.Station) Option {
	return func(d *Daemon) { d.station = s }
}

// WithReporter registers an extra state reporter.
func WithReporter(r device.Reporter) Option {
	return func(d *Daemon) { d.extra = append(d.extra, r) }
}

// WithWeMoOptions passes extra options to the WeMo transport.
func WithWeMoOptions(opts ...wemo.Option) Option {
	return func(d *Daemon) { d.wemoOpts = append(d.wemoOpts, opts...) }
}

// New validates cfg and opens the I/O backend.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Daemon{cfg: cfg, pins: device.PinsFromConfig(cfg.Pins)}
	for _, opt := range opts {
		opt(d)
	}

	if d.io == nil {
		io, err := OpenPins(cfg.IO, d.pins)
		if err != nil {
			return nil, err
		}
		d.io = io
	}
	if d.station == nil {
		d.station = netsession.New(cfg.Network.Interface)
	}
	return d, nil
}

// OpenPins opens the configured I/O backend. The simulated backend idles
// the button at its released level.
func OpenPins(cfg config.IOConfig, pins device.Pins) (gpio.Pins, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendSim:
		return gpio.NewSim(pins.Button.Level(false)), nil
	case config.BackendSysfs:
		return gpio.NewSysfs(cfg.Sysfs.Root), nil
	case config.BackendModbus:
		return gpio.NewModbus(cfg.Modbus), nil
	default:
		return nil, fmt.Errorf("unknown io backend %q", cfg.Backend)
	}
}

// Controller returns the device controller. Only the loop goroutine may
// call it once Serve has started.
func (d *Daemon) Controller() *device.Controller { return d.ctrl }

// Loop returns the poll loop.
func (d *Daemon) Loop() *loop.Loop { return d.loop }

// Station returns the network session.
func (d *Daemon) Station() *netsession.Station { return d.station }

// Online reports whether the network surfaces were started.
func (d *Daemon) Online() bool { return d.online }

// Pins returns the wiring in use.
func (d *Daemon) Pins() device.Pins { return d.pins }

// APIAddr returns the REST API address, or "" when it is not running.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr()
}

// WeMoLocation returns the setup.xml URL, or "" when WeMo is not running.
func (d *Daemon) WeMoLocation() string {
	if d.wemo == nil {
		return ""
	}
	return d.wemo.Location(DeviceID)
}

// UDN returns the WeMo identity of the device.
func (d *Daemon) UDN() string { return wemo.UDN(d.cfg.Device.Name) }

// AddReporter registers r and sends it the current state. It must be
// called after Start and before Serve.
func (d *Daemon) AddReporter(r device.Reporter) {
	d.ctrl.AddReporter(r)
	r.ReportState(DeviceID, d.ctrl.PowerOn(), 0)
}

// Run starts the daemon, serves until ctx is cancelled and shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return d.shutdownWithTimeout()
		}
		_ = d.shutdownWithTimeout()
		return err
	}
	serveErr := d.Serve(ctx)
	shutdownErr := d.shutdownWithTimeout()
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return shutdownErr
}

func (d *Daemon) shutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return d.Shutdown(ctx)
}

// Start boots the controller and brings up the network surfaces. It blocks
// while the network session connects.
func (d *Daemon) Start(ctx context.Context) error {
	cfg := d.cfg
	d.ctrl = device.NewController(DeviceID, cfg.Device.Name, d.io, d.pins)
	for _, r := range d.extra {
		d.ctrl.AddReporter(r)
	}
	if err := d.ctrl.Boot(); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	d.loop = loop.New(d.ctrl, loop.WithPeriod(cfg.Loop.Tick()))

	d.station.Begin(cfg.Network.SSID, cfg.Network.Password)
	err := d.station.Connect(ctx, netsession.RetryPolicy{
		Interval:    cfg.Network.RetryInterval(),
		MaxAttempts: cfg.Network.MaxAttempts,
	})
	switch {
	case err == nil:
		d.online = true
	case errors.Is(err, netsession.ErrGaveUp):
		logging.Warn("Network unavailable, running in local-only mode", zap.Error(err))
	default:
		return err
	}
	d.loop.AddService(d.station)

	if d.online {
		if err := d.startNetwork(ctx); err != nil {
			return err
		}
	}

	logging.Info("smartrelay started",
		zap.String("device", cfg.Device.Name),
		zap.String("version", version.Version),
		zap.Bool("online", d.online),
		zap.String("address", d.station.LocalAddress()),
	)
	return nil
}

func (d *Daemon) startNetwork(ctx context.Context) error {
	cfg := d.cfg

	if cfg.WeMo.Enabled {
		tr := wemo.New(append([]wemo.Option{wemo.WithBasePort(cfg.WeMo.BasePort)}, d.wemoOpts...)...)
		tr.AddDeviceWithPort(cfg.Device.Name, cfg.Device.Port)
		// Handle runs on the loop goroutine, so the callback may drive the
		// controller directly.
		tr.OnSetState(func(id int, name string, on bool, level uint8) {
			d.ctrl.OnRemoteCommand(id, on, level)
		})
		if err := tr.Enable(ctx, d.station.LocalAddress()); err != nil {
			return err
		}
		d.wemo = tr
		d.AddReporter(tr)
		d.loop.AddService(tr)
	}

	if cfg.API.Enabled {
		api := server.New(server.Config{
			Listen:   cfg.API.Listen,
			DeviceID: DeviceID,
			Device:   cfg.Device.Name,
			UDN:      d.UDN(),
		}, d.loop.Submit, d.station)
		if err := api.Start(); err != nil {
			return err
		}
		d.api = api
		d.AddReporter(api)
	}

	if cfg.MQTT.Enabled {
		d.startMQTT(ctx)
	}

	if cfg.MDNS.Enabled && d.api != nil {
		d.advertiser = discovery.NewAdvertiser(cfg.MDNS.Service, d.station.Interface())
		err := d.advertiser.Advertise(discovery.Info{
			Name:    cfg.Device.Name,
			UDN:     d.UDN(),
			Version: version.Version,
			Port:    d.api.Port(),
		})
		if err != nil {
			// Discovery by address still works.
			logging.Warn("mDNS advertisement failed", zap.Error(err))
			d.advertiser = nil
		}
	}
	return nil
}

// startMQTT connects the bridge. A broker that cannot be reached is logged
// and skipped; the daemon does not depend on it.
func (d *Daemon) startMQTT(ctx context.Context) {
	cfg := d.cfg.MQTT
	topics := messaging.TopicsFor(cfg.TopicPrefix, d.cfg.Device.Name)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "smartrelay-" + messaging.Slug(d.cfg.Device.Name)
	}

	broker := messaging.NewMsgBroker(messaging.BrokerConfig{
		BrokerURL:     cfg.BrokerURL,
		ClientID:      clientID,
		Username:      cfg.Username,
		Password:      cfg.Password,
		WillTopic:     topics.Availability,
		WillPayload:   "offline",
		OnlinePayload: "online",
	})
	if err := broker.Connect(ctx); err != nil {
		logging.Warn("MQTT broker unavailable", zap.String("broker", cfg.BrokerURL), zap.Error(err))
		return
	}

	bridge := messaging.NewBridge(broker, cfg.TopicPrefix, DeviceID, d.cfg.Device.Name, d.loop.Submit)
	if err := bridge.Start(ctx); err != nil {
		logging.Warn("MQTT bridge failed to start", zap.Error(err))
		_ = broker.Close(ctx)
		return
	}
	d.broker = broker
	d.bridge = bridge
	d.AddReporter(bridge)
}

// Serve runs the poll loop until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	return d.loop.Run(ctx)
}

// Shutdown stops every surface and closes the I/O backend. Outputs are left
// as they are.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var errs []error

	if d.advertiser != nil {
		d.advertiser.Shutdown()
	}
	if d.bridge != nil {
		errs = append(errs, d.bridge.Stop(ctx))
	}
	if d.broker != nil {
		errs = append(errs, d.broker.Close(ctx))
	}
	if d.api != nil {
		errs = append(errs, d.api.Shutdown(ctx))
	}
	if d.wemo != nil {
		errs = append(errs, d.wemo.Shutdown(ctx))
	}
	if d.io != nil {
		errs = append(errs, d.io.Close())
	}

	logging.Info("smartrelay stopped")
	return errors.Join(errs...)
}
