package discovery

import (
	"testing"
)

func TestDevice_String(t *testing.T) {
	device := &Device{
		Name:     "office light",
		Hostname: "pi.local.",
		IP:       "192.168.4.16",
		Port:     8080,
	}

	expected := `"office light" (pi.local.) at 192.168.4.16:8080`
	if device.String() != expected {
		t.Errorf("Device.String() = %v, want %v", device.String(), expected)
	}
}

func TestDevice_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		device   *Device
		expected string
	}{
		{
			name:     "IPv4",
			device:   &Device{IP: "192.168.4.16", Port: 8080},
			expected: "http://192.168.4.16:8080",
		},
		{
			name:     "IPv6",
			device:   &Device{IP: "fe80::1", Port: 8080},
			expected: "http://[fe80::1]:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.BaseURL(); got != tt.expected {
				t.Errorf("Device.BaseURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDevice_GetMetadata(t *testing.T) {
	device := &Device{Metadata: map[string]string{"path": "/api/v1"}}

	if got := device.GetMetadata("path"); got != "/api/v1" {
		t.Errorf("GetMetadata(path) = %q", got)
	}
	if got := device.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q", got)
	}
	if got := (&Device{}).GetMetadata("anything"); got != "" {
		t.Errorf("GetMetadata on nil map = %q", got)
	}
}
