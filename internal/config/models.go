package config

import "time"

// CurrentVersion is the only config file schema version understood.
const CurrentVersion = 1

// I/O backend identifiers.
const (
	BackendSim    = "sim"
	BackendSysfs  = "sysfs"
	BackendModbus = "modbus"
)

// Config represents the entire daemon configuration file.
type Config struct {
	Version  int           `yaml:"version"`
	LogLevel string        `yaml:"log_level,omitempty"`
	Device   DeviceConfig  `yaml:"device"`
	Pins     PinsConfig    `yaml:"pins"`
	IO       IOConfig      `yaml:"io"`
	Network  NetworkConfig `yaml:"network"`
	Loop     LoopConfig    `yaml:"loop"`
	WeMo     WeMoConfig    `yaml:"wemo"`
	MDNS     MDNSConfig    `yaml:"mdns"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	API      APIConfig     `yaml:"api"`
}

// DeviceConfig names the controlled device. Name is what the voice assistant
// hears ("office light").
type DeviceConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port,omitempty"` // WeMo HTTP port; 0 = wemo.base_port + id
}

// PinsConfig maps the three signals onto I/O pins.
type PinsConfig struct {
	Relay  PinConfig `yaml:"relay"`
	LED    PinConfig `yaml:"led"`
	Button PinConfig `yaml:"button"`
}

// PinConfig is one pin number and its polarity.
type PinConfig struct {
	Number    int  `yaml:"number"`
	ActiveLow bool `yaml:"active_low"`
}

// IOConfig selects the Digital I/O backend.
type IOConfig struct {
	Backend string       `yaml:"backend"` // "sim" | "sysfs" | "modbus"
	Sysfs   SysfsConfig  `yaml:"sysfs,omitempty"`
	Modbus  ModbusConfig `yaml:"modbus,omitempty"`
}

// SysfsConfig configures the Linux sysfs GPIO backend.
type SysfsConfig struct {
	Root string `yaml:"root,omitempty"` // default /sys/class/gpio
}

// ModbusConfig configures a Modbus relay board. Output pins are coil
// addresses, input pins are discrete input addresses.
type ModbusConfig struct {
	Type      string `yaml:"type"`               // "tcp" | "rtu"
	TCPAddr   string `yaml:"tcp_addr,omitempty"` // host:port for type=tcp
	Port      string `yaml:"port,omitempty"`     // serial device for type=rtu
	Baud      int    `yaml:"baud,omitempty"`
	DataBits  int    `yaml:"data_bits,omitempty"`
	StopBits  int    `yaml:"stop_bits,omitempty"`
	Parity    string `yaml:"parity,omitempty"`
	SlaveID   uint8  `yaml:"slave_id"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
	Debug     bool   `yaml:"debug,omitempty"`
}

// NetworkConfig holds the station credentials and the connect retry policy.
type NetworkConfig struct {
	Interface       string `yaml:"interface,omitempty"` // empty = first usable interface
	SSID            string `yaml:"ssid,omitempty"`
	Password        string `yaml:"password,omitempty"`
	RetryIntervalMs int    `yaml:"retry_interval_ms"`
	MaxAttempts     int    `yaml:"max_attempts"` // 0 = retry until connected
}

// LoopConfig configures the poll loop.
type LoopConfig struct {
	TickMs int `yaml:"tick_ms"`
}

// WeMoConfig configures the virtual WeMo transport.
type WeMoConfig struct {
	Enabled  bool `yaml:"enabled"`
	BasePort int  `yaml:"base_port"`
}

// MDNSConfig configures the mDNS advertisement of the local API.
type MDNSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service,omitempty"`
}

// MQTTConfig configures optional state reporting over MQTT.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

// APIConfig configures the local REST/WebSocket API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns a configuration matching the reference wiring: relay on
// pin 5, LED on pin 2, active-low button on pin 16, 100ms tick.
func Default() *Config {
	return &Config{
		Version:  CurrentVersion,
		LogLevel: "info",
		Device: DeviceConfig{
			Name: "office light",
		},
		Pins: PinsConfig{
			Relay:  PinConfig{Number: 5},
			LED:    PinConfig{Number: 2},
			Button: PinConfig{Number: 16, ActiveLow: true},
		},
		IO: IOConfig{
			Backend: BackendSim,
			Sysfs:   SysfsConfig{Root: "/sys/class/gpio"},
			Modbus: ModbusConfig{
				Type:      "tcp",
				TCPAddr:   "127.0.0.1:502",
				SlaveID:   1,
				TimeoutMs: 500,
			},
		},
		Network: NetworkConfig{
			RetryIntervalMs: 100,
		},
		Loop: LoopConfig{
			TickMs: 100,
		},
		WeMo: WeMoConfig{
			Enabled:  true,
			BasePort: 49153,
		},
		MDNS: MDNSConfig{
			Enabled: true,
			Service: "_smartrelay._tcp",
		},
		MQTT: MQTTConfig{
			BrokerURL:   "tcp://localhost:1883",
			TopicPrefix: "smartrelay",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  ":8080",
		},
	}
}

// Tick returns the poll loop period.
func (l LoopConfig) Tick() time.Duration {
	return time.Duration(l.TickMs) * time.Millisecond
}

// RetryInterval returns the fixed backoff between connect attempts.
func (n NetworkConfig) RetryInterval() time.Duration {
	return time.Duration(n.RetryIntervalMs) * time.Millisecond
}

// Timeout returns the Modbus request timeout.
func (m ModbusConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}
