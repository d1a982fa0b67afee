package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/logging"
)

const (
	// ServiceType is the mDNS service type smartrelay daemons advertise
	ServiceType = "_smartrelay._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// QuickScanTimeout bounds QuickScan
	QuickScanTimeout = 2 * time.Second

	// APIPath is advertised in the "path" TXT record
	APIPath = "/api/v1"
)

// Info describes what a daemon advertises.
type Info struct {
	Name    string
	UDN     string
	Version string
	Port    int
}

// TXT returns the TXT records for info.
func (i Info) TXT() []string {
	return []string{
		"name=" + i.Name,
		"udn=" + i.UDN,
		"version=" + i.Version,
		"path=" + APIPath,
	}
}

// Advertiser registers the daemon's API with mDNS.
type Advertiser struct {
	service string
	iface   string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser for service (ServiceType when empty)
// on the named interface (all interfaces when empty).
func NewAdvertiser(service, iface string) *Advertiser {
	if service == "" {
		service = ServiceType
	}
	return &Advertiser{service: service, iface: iface}
}

// Advertise starts advertising info, replacing any earlier registration.
func (a *Advertiser) Advertise(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		instanceName(info.Name),
		a.service,
		ServiceDomain,
		info.Port,
		info.TXT(),
		a.interfaces(),
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server

	logging.Info("mDNS service registered",
		zap.String("service", a.service),
		zap.String("instance", instanceName(info.Name)),
		zap.Int("port", info.Port),
	)
	return nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		logging.Info("mDNS service withdrawn", zap.String("service", a.service))
	}
}

// interfaces returns nil (all interfaces) unless one was named.
func (a *Advertiser) interfaces() []net.Interface {
	if a.iface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.iface)
	if err != nil {
		logging.Warn("mDNS interface not found, advertising on all",
			zap.String("interface", a.iface),
			zap.Error(err),
		)
		return nil
	}
	return []net.Interface{*iface}
}

// instanceName turns a device name into a DNS-SD instance label.
func instanceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "smartrelay"
	}
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Service is the service type to browse for
	Service string
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Service: ServiceType,
	}
}

// ScanForDevices browses until the timeout and returns every daemon found.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	var (
		mu      sync.Mutex
		devices []*Device
		seen    = make(map[string]bool)
	)
	err := s.browse(ctx, func(d *Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[d.Instance] {
			seen[d.Instance] = true
			devices = append(devices, d)
		}
		return false
	})
	mu.Lock()
	defer mu.Unlock()
	return devices, err
}

// WaitForDevice returns the first daemon whose device name matches name
// (case-insensitive). An empty name matches any daemon.
func (s *Scanner) WaitForDevice(ctx context.Context, name string) (*Device, error) {
	found := make(chan *Device, 1)
	err := s.browse(ctx, func(d *Device) bool {
		if name != "" && !strings.EqualFold(d.Name, name) {
			return false
		}
		select {
		case found <- d:
		default:
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	select {
	case d := <-found:
		return d, nil
	default:
	}
	if name == "" {
		return nil, fmt.Errorf("no smartrelay daemon found within %v", s.Timeout)
	}
	return nil, fmt.Errorf("device %q not found within %v", name, s.Timeout)
}

// browse feeds parsed entries to fn until fn returns true or the timeout
// expires.
func (s *Scanner) browse(ctx context.Context, fn func(*Device) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if d := parseServiceEntry(entry); d != nil && fn(d) {
					cancel()
					return
				}
			}
		}
	}()

	service := s.Service
	if service == "" {
		service = ServiceType
	}
	if err := resolver.Browse(ctx, service, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device
// Returns nil if the entry has no usable address
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	name := metadata["name"]
	if name == "" {
		name = entry.Instance
	}

	return &Device{
		Instance:     entry.Instance,
		Name:         name,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		UDN:          metadata["udn"],
		Version:      metadata["version"],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// QuickScan browses for QuickScanTimeout. It is what `discover` runs when
// no timeout is given.
func QuickScan(ctx context.Context) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = QuickScanTimeout
	return scanner.ScanForDevices(ctx)
}
