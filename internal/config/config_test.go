package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "smartrelay") {
		t.Errorf("GetConfigDir() = %v, should contain 'smartrelay'", configDir)
	}

	switch runtime.GOOS {
	case "darwin", "linux":
		if os.Getenv("XDG_CONFIG_HOME") == "" && !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Device.Name != "office light" {
		t.Errorf("Device.Name = %q, want office light", cfg.Device.Name)
	}
	if cfg.Pins.Relay.Number != 5 || cfg.Pins.LED.Number != 2 || cfg.Pins.Button.Number != 16 {
		t.Errorf("Pins = %+v, want relay 5, led 2, button 16", cfg.Pins)
	}
	if !cfg.Pins.Button.ActiveLow {
		t.Error("button should default to active-low")
	}
	if cfg.Pins.Relay.ActiveLow || cfg.Pins.LED.ActiveLow {
		t.Error("relay and LED should default to active-high")
	}
	if got := cfg.Loop.Tick().Milliseconds(); got != 100 {
		t.Errorf("Loop.Tick() = %dms, want 100ms", got)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Name != Default().Device.Name {
		t.Errorf("Device.Name = %q, want default", cfg.Device.Name)
	}
}

func TestLoadFromReader(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "overrides merge over defaults",
			yaml: `
version: 1
device:
  name: kitchen lamp
pins:
  relay:
    number: 12
loop:
  tick_ms: 50
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Device.Name != "kitchen lamp" {
					t.Errorf("Device.Name = %q", cfg.Device.Name)
				}
				if cfg.Pins.Relay.Number != 12 {
					t.Errorf("Relay = %d, want 12", cfg.Pins.Relay.Number)
				}
				if cfg.Pins.LED.Number != 2 {
					t.Errorf("LED = %d, want default 2", cfg.Pins.LED.Number)
				}
				if cfg.Loop.TickMs != 50 {
					t.Errorf("TickMs = %d, want 50", cfg.Loop.TickMs)
				}
			},
		},
		{
			name: "comment-only file is defaults",
			yaml: "# nothing here\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Version != CurrentVersion {
					t.Errorf("Version = %d", cfg.Version)
				}
			},
		},
		{
			name:    "unknown key rejected",
			yaml:    "version: 1\ndevice:\n  nmae: typo\n",
			wantErr: "failed to parse",
		},
		{
			name:    "wrong version",
			yaml:    "version: 2\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "pin clash",
			yaml:    "version: 1\npins:\n  led:\n    number: 5\n",
			wantErr: "already used by pins.relay",
		},
		{
			name: "modbus button shares an address with a coil",
			yaml: `
version: 1
io:
  backend: modbus
pins:
  relay:
    number: 0
  led:
    number: 1
  button:
    number: 0
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Pins.Button.Number != 0 || cfg.Pins.Relay.Number != 0 {
					t.Errorf("pins = %+v", cfg.Pins)
				}
			},
		},
		{
			name:    "modbus coils still clash",
			yaml:    "version: 1\nio:\n  backend: modbus\npins:\n  relay:\n    number: 3\n  led:\n    number: 3\n",
			wantErr: "pins.led.number 3 already used by pins.relay",
		},
		{
			name:    "sysfs button clashes with relay",
			yaml:    "version: 1\nio:\n  backend: sysfs\npins:\n  button:\n    number: 5\n",
			wantErr: "pins.button.number 5 already used by pins.relay",
		},
		{
			name:    "bad backend",
			yaml:    "version: 1\nio:\n  backend: spi\n",
			wantErr: "io.backend must be one of",
		},
		{
			name:    "zero tick",
			yaml:    "version: 1\nloop:\n  tick_ms: 0\n",
			wantErr: "loop.tick_ms",
		},
		{
			name:    "mdns without api",
			yaml:    "version: 1\napi:\n  enabled: false\n",
			wantErr: "mdns.enabled requires api.enabled",
		},
		{
			name: "modbus rtu fills serial defaults",
			yaml: `
version: 1
io:
  backend: modbus
  modbus:
    type: rtu
    port: /dev/ttyUSB0
    baud: 9600
    slave_id: 3
`,
			check: func(t *testing.T, cfg *Config) {
				m := cfg.IO.Modbus
				if m.DataBits != 8 || m.StopBits != 1 || m.Parity != "N" {
					t.Errorf("serial defaults not applied: %+v", m)
				}
			},
		},
		{
			name:    "modbus rtu without port",
			yaml:    "version: 1\nio:\n  backend: modbus\n  modbus:\n    type: rtu\n    slave_id: 1\n",
			wantErr: "io.modbus.port is required",
		},
		{
			name:    "mqtt without broker",
			yaml:    "version: 1\nmqtt:\n  enabled: true\n  broker_url: \"\"\n",
			wantErr: "mqtt.broker_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Device.Name = " "
	cfg.Loop.TickMs = 0
	cfg.Network.RetryIntervalMs = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"device.name", "loop.tick_ms", "network.retry_interval_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Default()
	cfg.Device.Name = "garage"
	cfg.Network.SSID = "home"
	cfg.Network.Password = "secret"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Device.Name != "garage" || loaded.Network.Password != "secret" {
		t.Errorf("loaded = %+v", loaded.Device)
	}
}
