package discovery

import (
	"fmt"
	"net"
	"time"
)

// Device represents a discovered smartrelay daemon on the network
type Device struct {
	// Instance is the mDNS instance name, normally the device name
	Instance string

	// Name is the device name from the TXT record (e.g., "office light")
	Name string

	// Hostname is the mDNS hostname (e.g., "pi.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the daemon has none
	IP string

	// Port is the REST API port
	Port int

	// UDN is the WeMo identity of the device
	UDN string

	// Version is the daemon version
	Version string

	// Metadata contains all TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%q (%s) at %s:%d", d.Name, d.Hostname, d.IP, d.Port)
}

// BaseURL returns the HTTP base URL of the daemon's API
func (d *Device) BaseURL() string {
	host := d.IP
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, d.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
