package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "smartrelay"
	configFile = "config.yaml"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/smartrelay or $HOME/.config/smartrelay
//   - macOS: $HOME/.config/smartrelay (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\smartrelay
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load reads the configuration at path. An empty path means the default
// location. A missing file yields Default(); any other problem is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadFromReader(f)
}

// LoadFromReader parses YAML from r over the defaults and validates the result.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills in derived defaults. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs multiErr

	if strings.TrimSpace(c.Device.Name) == "" {
		errs.add("device.name is required")
	}
	if c.Device.Port < 0 || c.Device.Port > 65535 {
		errs.addf("device.port %d out of range", c.Device.Port)
	}

	c.validatePins(&errs)

	switch strings.ToLower(c.IO.Backend) {
	case BackendSim:
	case BackendSysfs:
		if c.IO.Sysfs.Root == "" {
			c.IO.Sysfs.Root = "/sys/class/gpio"
		}
	case BackendModbus:
		c.validateModbus(&errs)
	default:
		errs.addf("io.backend must be one of %s, %s, %s", BackendSim, BackendSysfs, BackendModbus)
	}

	if c.Network.RetryIntervalMs <= 0 {
		errs.add("network.retry_interval_ms must be > 0 (e.g., 100)")
	}
	if c.Network.MaxAttempts < 0 {
		errs.add("network.max_attempts cannot be negative")
	}

	if c.Loop.TickMs <= 0 {
		errs.add("loop.tick_ms must be > 0 (e.g., 100)")
	}

	if c.WeMo.Enabled && (c.WeMo.BasePort <= 0 || c.WeMo.BasePort > 65535) {
		errs.addf("wemo.base_port %d out of range", c.WeMo.BasePort)
	}

	if c.MDNS.Enabled {
		if c.MDNS.Service == "" {
			c.MDNS.Service = "_smartrelay._tcp"
		}
		if !c.API.Enabled {
			errs.add("mdns.enabled requires api.enabled (the API is what gets advertised)")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" {
			errs.add("mqtt.broker_url is required when mqtt is enabled")
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = appName
		}
	}

	if c.API.Enabled && c.API.Listen == "" {
		errs.add("api.listen is required when api is enabled")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validatePins rejects negative pin numbers and pins used twice. On a
// Modbus board the outputs are coils and the button is a discrete input,
// which are separate address spaces, so only the outputs can clash there.
func (c *Config) validatePins(errs *multiErr) {
	pins := map[string]PinConfig{"relay": c.Pins.Relay, "led": c.Pins.LED, "button": c.Pins.Button}
	shared := strings.ToLower(c.IO.Backend) != BackendModbus

	seen := map[int]string{}
	for _, name := range []string{"relay", "led", "button"} {
		p := pins[name]
		if p.Number < 0 {
			errs.addf("pins.%s.number must be >= 0", name)
			continue
		}
		if name == "button" && !shared {
			continue
		}
		if other, clash := seen[p.Number]; clash {
			errs.addf("pins.%s.number %d already used by pins.%s", name, p.Number, other)
			continue
		}
		seen[p.Number] = name
	}
}

func (c *Config) validateModbus(errs *multiErr) {
	m := &c.IO.Modbus
	switch strings.ToLower(m.Type) {
	case "tcp":
		if strings.TrimSpace(m.TCPAddr) == "" {
			errs.add("io.modbus.tcp_addr is required for type=tcp")
		}
	case "rtu":
		if strings.TrimSpace(m.Port) == "" {
			errs.add("io.modbus.port is required for type=rtu")
		}
		if m.Baud <= 0 {
			errs.add("io.modbus.baud must be > 0 for type=rtu")
		}
		if m.DataBits == 0 {
			m.DataBits = 8
		}
		if m.StopBits == 0 {
			m.StopBits = 1
		}
		if m.Parity == "" {
			m.Parity = "N"
		}
		if !slices.Contains([]string{"N", "E", "O"}, strings.ToUpper(m.Parity)) {
			errs.add("io.modbus.parity must be one of N,E,O")
		}
	default:
		errs.add("io.modbus.type must be 'rtu' or 'tcp'")
	}
	if m.SlaveID == 0 || m.SlaveID > 247 {
		errs.add("io.modbus.slave_id must be 1..247")
	}
	if m.TimeoutMs <= 0 {
		m.TimeoutMs = 500
	}
}

// Save writes the configuration to path (default location when empty).
// Performs an atomic write to prevent corruption on crash.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# smartrelay configuration
#
# This file may hold WiFi and MQTT credentials and is written with mode 0600.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
