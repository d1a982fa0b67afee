package wemo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/logging"
)

// DefaultBasePort is the HTTP port of device 0. Device n listens on
// DefaultBasePort+n unless it was added with an explicit port.
const DefaultBasePort = 49153

const queueSize = 16

// ErrQueueFull is returned when a command arrives faster than the loop
// drains them.
var ErrQueueFull = errors.New("command queue full")

// SetStateFunc receives a command for device id. level is 0-255.
type SetStateFunc func(id int, name string, on bool, level uint8)

type virtualDevice struct {
	id   int
	name string
	port int

	mu    sync.RWMutex
	on    bool
	level uint8
}

func (d *virtualDevice) snapshot() (bool, uint8) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.on, d.level
}

type setRequest struct {
	id    int
	on    bool
	level uint8
}

// Transport is the WeMo discovery and control surface.
type Transport struct {
	basePort int
	bootID   string

	mu       sync.RWMutex
	devices  []*virtualDevice
	onSet    SetStateFunc
	localIP  string
	enabled  bool
	ssdp     *responder
	servers  []*http.Server
	noSSDP   bool
	listener func(network, addr string) (net.Listener, error)

	queue chan setRequest
}

// Option configures a Transport.
type Option func(*Transport)

// WithBasePort sets the port of device 0.
func WithBasePort(port int) Option {
	return func(t *Transport) { t.basePort = port }
}

// WithoutSSDP disables the multicast responder. Devices are then only
// reachable by URL.
func WithoutSSDP() Option {
	return func(t *Transport) { t.noSSDP = true }
}

// New creates a transport with no devices.
func New(opts ...Option) *Transport {
	t := &Transport{
		basePort: DefaultBasePort,
		bootID:   uuid.New().String(),
		queue:    make(chan setRequest, queueSize),
		listener: net.Listen,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddDevice registers a virtual device and returns its id. Ids are assigned
// in order starting at 0.
func (t *Transport) AddDevice(name string) int {
	return t.AddDeviceWithPort(name, 0)
}

// AddDeviceWithPort is AddDevice with an explicit HTTP port. Port 0 means
// base port plus id.
func (t *Transport) AddDeviceWithPort(name string, port int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := len(t.devices)
	if port == 0 {
		port = t.basePort + id
	}
	t.devices = append(t.devices, &virtualDevice{id: id, name: name, port: port})
	logging.Info("WeMo device added",
		zap.Int("device_id", id),
		zap.String("device", name),
		zap.Int("port", port),
		zap.String("udn", UDN(name)),
	)
	return id
}

// OnSetState registers the callback Handle delivers commands to.
func (t *Transport) OnSetState(fn SetStateFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSet = fn
}

// ReportState records the state the device is actually in. It is what
// GetBinaryState and setup.xml return. Unknown ids are ignored.
func (t *Transport) ReportState(id int, on bool, level uint8) {
	d := t.device(id)
	if d == nil {
		return
	}
	d.mu.Lock()
	d.on, d.level = on, level
	d.mu.Unlock()
}

// Enable starts the SSDP responder and one HTTP server per device.
// localIP is the address announced in LOCATION headers.
func (t *Transport) Enable(ctx context.Context, localIP string) error {
	if localIP == "" {
		return errors.New("wemo: no local address to announce")
	}

	t.mu.Lock()
	if t.enabled {
		t.mu.Unlock()
		return nil
	}
	t.localIP = localIP
	devices := append([]*virtualDevice(nil), t.devices...)
	t.mu.Unlock()

	var servers []*http.Server
	for _, d := range devices {
		ln, err := t.listener("tcp4", fmt.Sprintf(":%d", d.port))
		if err != nil {
			_ = closeAll(ctx, nil, servers)
			return fmt.Errorf("wemo: listen for %q on port %d: %w", d.name, d.port, err)
		}
		srv := &http.Server{
			Handler:           t.handler(d),
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)
		go func(name string) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("WeMo HTTP server stopped",
					zap.String("device", name),
					zap.Error(err),
				)
			}
		}(d.name)
	}

	var r *responder
	if !t.noSSDP {
		var err error
		r, err = listenSSDP(localIP, t.answers)
		if err != nil {
			_ = closeAll(ctx, nil, servers)
			return fmt.Errorf("wemo: %w", err)
		}
	}

	t.mu.Lock()
	t.ssdp = r
	t.servers = servers
	t.enabled = true
	t.mu.Unlock()

	logging.Info("WeMo transport enabled",
		zap.String("address", localIP),
		zap.Int("devices", len(devices)),
		zap.Bool("ssdp", r != nil),
	)
	return nil
}

// Handle delivers queued commands to the OnSetState callback. It never
// blocks: only commands already queued are delivered.
func (t *Transport) Handle() {
	t.mu.RLock()
	fn := t.onSet
	t.mu.RUnlock()

	for {
		select {
		case req := <-t.queue:
			d := t.device(req.id)
			if d == nil || fn == nil {
				continue
			}
			fn(req.id, d.name, req.on, req.level)
		default:
			return
		}
	}
}

// Shutdown stops the responder and the HTTP servers.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return nil
	}
	r, servers := t.ssdp, t.servers
	t.ssdp, t.servers, t.enabled = nil, nil, false
	t.mu.Unlock()

	err := closeAll(ctx, r, servers)
	logging.Info("WeMo transport stopped")
	return err
}

// closeAll runs without t.mu held: in-flight handlers may need it.
func closeAll(ctx context.Context, r *responder, servers []*http.Server) error {
	var errs []error
	if r != nil {
		errs = append(errs, r.Close())
	}
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// enqueue hands a SOAP command to the loop.
func (t *Transport) enqueue(req setRequest) error {
	select {
	case t.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

func (t *Transport) device(id int) *virtualDevice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.devices) {
		return nil
	}
	return t.devices[id]
}

// Location returns the setup.xml URL of device id.
func (t *Transport) Location(id int) string {
	d := t.device(id)
	if d == nil {
		return ""
	}
	t.mu.RLock()
	ip := t.localIP
	t.mu.RUnlock()
	return fmt.Sprintf("http://%s:%d/setup.xml", ip, d.port)
}

// answers builds the SSDP replies for st across all devices.
func (t *Transport) answers(st string) [][]byte {
	targets := matchTargets(st)
	if len(targets) == 0 {
		return nil
	}

	t.mu.RLock()
	devices := append([]*virtualDevice(nil), t.devices...)
	ip := t.localIP
	t.mu.RUnlock()

	now := time.Now()
	var out [][]byte
	for _, d := range devices {
		location := fmt.Sprintf("http://%s:%d/setup.xml", ip, d.port)
		for _, target := range targets {
			if strings.EqualFold(target, STAll) {
				continue
			}
			out = append(out, searchResponse(location, UDN(d.name), target, t.bootID, now))
		}
	}
	return out
}
