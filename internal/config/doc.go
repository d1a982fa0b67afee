// Package config loads, validates and saves the smartrelay daemon configuration.
//
// The configuration is a versioned YAML file. Every field has a default, so a
// missing file is valid and describes the reference wiring: relay on pin 5,
// status LED on pin 2, active-low push button on pin 16, a 100ms poll tick,
// the WeMo transport on port 49153 and the local API on :8080.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/smartrelay/config.yaml or $HOME/.config/smartrelay/config.yaml
//   - macOS: $HOME/.config/smartrelay/config.yaml
//   - Windows: %LOCALAPPDATA%\smartrelay\config.yaml
//
// The CLI accepts --config to point elsewhere.
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Device.Name, cfg.Loop.Tick())
//
// # Validation
//
// Load rejects unknown keys and reports every validation problem in a single
// error. Validate also fills in derived defaults (serial framing for Modbus
// RTU, the mDNS service name, the MQTT topic prefix).
//
// # Security
//
// The file may contain the WiFi password and MQTT credentials. Save writes it
// atomically with mode 0600 inside a 0700 directory.
package config
