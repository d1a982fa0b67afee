package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.Text = txt
	return e
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantName string
		wantIP   string
		wantPort int
	}{
		{
			name:     "daemon with IPv4",
			entry:    entry("office light", "pi.local.", 8080, []net.IP{net.ParseIP("192.168.4.16")}, nil, "name=office light", "udn=uuid:Socket-1_0-ABC", "version=v1.0.0"),
			wantName: "office light",
			wantIP:   "192.168.4.16",
			wantPort: 8080,
		},
		{
			name:     "name falls back to instance",
			entry:    entry("garage", "pi.local.", 8080, []net.IP{net.ParseIP("10.0.0.5")}, nil),
			wantName: "garage",
			wantIP:   "10.0.0.5",
			wantPort: 8080,
		},
		{
			name:     "IPv6 only",
			entry:    entry("lamp", "pi.local.", 8080, nil, []net.IP{net.ParseIP("fe80::1")}, "name=lamp"),
			wantName: "lamp",
			wantIP:   "fe80::1",
			wantPort: 8080,
		},
		{
			name:     "prefers IPv4",
			entry:    entry("lamp", "pi.local.", 9000, []net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}),
			wantName: "lamp",
			wantIP:   "192.168.1.50",
			wantPort: 9000,
		},
		{
			name:    "no address",
			entry:   entry("lamp", "pi.local.", 8080, nil, nil),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   entry("lamp", "pi.local.", 0, []net.IP{net.ParseIP("192.168.1.50")}, nil),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}
			if device.Name != tt.wantName {
				t.Errorf("device.Name = %v, want %v", device.Name, tt.wantName)
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	device := parseServiceEntry(entry("office light", "pi.local.", 8080,
		[]net.IP{net.ParseIP("192.168.4.16")}, nil,
		"name=office light", "udn=uuid:Socket-1_0-ABC", "version=v1.2.0", "flag"))
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	if device.UDN != "uuid:Socket-1_0-ABC" || device.Version != "v1.2.0" {
		t.Errorf("udn/version = %s/%s", device.UDN, device.Version)
	}
	if v, ok := device.Metadata["flag"]; !ok || v != "" {
		t.Errorf("flag metadata = %q, %v", v, ok)
	}
}

func TestInfoTXT(t *testing.T) {
	info := Info{Name: "office light", UDN: "uuid:x", Version: "v1", Port: 8080}
	want := []string{"name=office light", "udn=uuid:x", "version=v1", "path=/api/v1"}
	got := info.TXT()
	if len(got) != len(want) {
		t.Fatalf("TXT() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TXT()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInstanceName(t *testing.T) {
	long := ""
	for i := 0; i < 70; i++ {
		long += "a"
	}
	tests := map[string]string{
		"office light": "office light",
		"  padded  ":   "padded",
		"":             "smartrelay",
		long:           long[:63],
	}
	for in, want := range tests {
		if got := instanceName(in); got != want {
			t.Errorf("instanceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
	if scanner.Service != ServiceType {
		t.Errorf("scanner.Service = %v, want %v", scanner.Service, ServiceType)
	}
}

func TestNewAdvertiser_DefaultService(t *testing.T) {
	if a := NewAdvertiser("", ""); a.service != ServiceType {
		t.Errorf("service = %q, want %q", a.service, ServiceType)
	}
	a := NewAdvertiser("_custom._tcp", "")
	a.Shutdown()
}

// Note: live mDNS round trips need multicast and are not run here.
