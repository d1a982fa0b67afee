// Package netsession tracks whether the host is on the network and which
// IPv4 address the transports should announce.
//
// Association with an access point belongs to the host OS. A Station only
// observes: it is connected when the configured interface (or the first
// usable one) is up and carries an IPv4 address. Connect wraps that check in
// a retry loop whose policy the caller picks.
package netsession

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/logging"
)

// Status is the link status of a Station.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ErrGaveUp is returned by Connect when a bounded policy runs out of attempts.
var ErrGaveUp = errors.New("network not available")

// RetryPolicy controls Connect. MaxAttempts of zero retries until the
// context is cancelled.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Interface is the subset of a host interface the station looks at.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	IPv4     []net.IP
}

// InterfaceSource lists the host interfaces.
type InterfaceSource func() ([]Interface, error)

// HostInterfaces reads the interfaces of this host.
func HostInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		entry := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				entry.IPv4 = append(entry.IPv4, ip4)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// Station observes one network link.
type Station struct {
	iface  string
	source InterfaceSource

	mu      sync.RWMutex
	ssid    string
	status  Status
	address string
	active  string
}

// Option configures a Station.
type Option func(*Station)

// WithInterfaceSource replaces the host interface lookup.
func WithInterfaceSource(src InterfaceSource) Option {
	return func(s *Station) { s.source = src }
}

// New creates a station bound to the named interface. An empty name picks
// the first interface that is up, is not loopback and has an IPv4 address.
func New(iface string, opts ...Option) *Station {
	s := &Station{iface: iface, source: HostInterfaces}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin records the network the host is expected to join. The credentials
// are only logged by name; joining is left to the OS.
func (s *Station) Begin(ssid, password string) {
	s.mu.Lock()
	s.ssid = ssid
	s.mu.Unlock()

	if ssid != "" {
		logging.Info("Waiting for network",
			zap.String("ssid", ssid),
			zap.Bool("password_set", password != ""),
			zap.String("interface", s.iface),
		)
	}
	s.refresh()
}

// Status returns the status seen by the last check.
func (s *Station) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LocalAddress returns the IPv4 address of the active interface, or "" when
// disconnected.
func (s *Station) LocalAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Interface returns the name of the active interface.
func (s *Station) Interface() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Connect checks the link every policy.Interval until it is connected. It
// returns ErrGaveUp once a bounded policy is exhausted and ctx.Err() when
// cancelled.
func (s *Station) Connect(ctx context.Context, policy RetryPolicy) error {
	interval := policy.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if s.refresh() == Connected {
			return nil
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrGaveUp, attempt)
		}
		if attempt%50 == 0 {
			logging.Debug("Still waiting for network", zap.Int("attempts", attempt))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handle re-checks the link. It is called once per loop tick and logs
// every transition.
func (s *Station) Handle() {
	s.refresh()
}

func (s *Station) refresh() Status {
	name, addr, err := s.lookup()

	s.mu.Lock()
	prev, prevAddr := s.status, s.address
	if err != nil || addr == "" {
		s.status, s.address, s.active = Disconnected, "", ""
	} else {
		s.status, s.address, s.active = Connected, addr, name
	}
	status, address := s.status, s.address
	s.mu.Unlock()

	switch {
	case status == Connected && (prev != Connected || prevAddr != address):
		logging.Info("Network connected",
			zap.String("interface", name),
			zap.String("address", address),
		)
	case status == Disconnected && prev == Connected:
		fields := []zap.Field{zap.String("last_address", prevAddr)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		logging.Warn("Network lost", fields...)
	}
	return status
}

func (s *Station) lookup() (string, string, error) {
	ifaces, err := s.source()
	if err != nil {
		return "", "", err
	}
	for _, iface := range ifaces {
		if s.iface != "" {
			if iface.Name != s.iface {
				continue
			}
		} else if iface.Loopback {
			continue
		}
		if !iface.Up || len(iface.IPv4) == 0 {
			if s.iface != "" {
				return iface.Name, "", nil
			}
			continue
		}
		return iface.Name, iface.IPv4[0].String(), nil
	}
	if s.iface != "" {
		return "", "", fmt.Errorf("interface %q not found", s.iface)
	}
	return "", "", nil
}
