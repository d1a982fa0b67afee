package gpio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/logging"
)

const (
	coilOn  = uint16(0xFF00)
	coilOff = uint16(0x0000)

	defaultBackoffMin = 200 * time.Millisecond
	defaultBackoffMax = 10 * time.Second
)

// Modbus maps pins onto a Modbus relay board: output pins are coil
// addresses, input pins are discrete input addresses.
//
// A lost connection is not retried inline. After a failure the backend
// refuses requests until its backoff expires, so a caller polling every tick
// never waits longer than one request timeout.
type Modbus struct {
	cfg config.ModbusConfig

	mu     sync.Mutex
	modes  map[int]Mode
	client modbus.Client
	tcp    *modbus.TCPClientHandler
	rtu    *modbus.RTUClientHandler

	connOK      bool
	backoff     time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	nextAttempt time.Time
	lastConnErr error
}

// NewModbus creates the backend. The connection is opened lazily on the
// first request.
func NewModbus(cfg config.ModbusConfig) *Modbus {
	return &Modbus{
		cfg:        cfg,
		modes:      make(map[int]Mode),
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
	}
}

func (m *Modbus) Configure(pin int, mode Mode) error {
	if pin < 0 || pin > 0xFFFF {
		return fmt.Errorf("modbus address %d out of range", pin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *Modbus) Write(pin int, level Level) error {
	value := coilOff
	if level == High {
		value = coilOn
	}
	_, err := m.do(func(c modbus.Client) ([]byte, error) {
		return c.WriteSingleCoil(uint16(pin), value)
	})
	if err != nil {
		return fmt.Errorf("write coil %d: %w", pin, err)
	}
	return nil
}

// Read returns the discrete input at pin, or the coil when pin was
// configured as an output.
func (m *Modbus) Read(pin int) (Level, error) {
	m.mu.Lock()
	mode := m.modes[pin]
	m.mu.Unlock()

	data, err := m.do(func(c modbus.Client) ([]byte, error) {
		if mode == Output {
			return c.ReadCoils(uint16(pin), 1)
		}
		return c.ReadDiscreteInputs(uint16(pin), 1)
	})
	if err != nil {
		return Low, fmt.Errorf("read %s %d: %w", mode, pin, err)
	}
	if len(data) == 0 {
		return Low, fmt.Errorf("read %s %d: empty response", mode, pin)
	}
	return LevelOf(data[0]&0x01 != 0), nil
}

func (m *Modbus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeClient()
	return nil
}

func (m *Modbus) do(fn func(modbus.Client) ([]byte, error)) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnected(); err != nil {
		return nil, err
	}
	data, err := fn(m.client)
	if err != nil && isTransient(err) {
		logging.Warn("Modbus request failed, dropping connection",
			zap.String("type", m.cfg.Type),
			zap.Error(err),
		)
		m.closeClient()
		m.bumpBackoff(err)
	}
	return data, err
}

func (m *Modbus) ensureConnected() error {
	if m.connOK {
		return nil
	}
	if wait := time.Until(m.nextAttempt); wait > 0 {
		return fmt.Errorf("modbus reconnect in %v: %w", wait.Round(time.Millisecond), m.lastConnErr)
	}

	m.closeClient()

	switch strings.ToLower(m.cfg.Type) {
	case "rtu":
		h := modbus.NewRTUClientHandler(m.cfg.Port)
		h.BaudRate = m.cfg.Baud
		h.DataBits = m.cfg.DataBits
		h.Parity = strings.ToUpper(m.cfg.Parity)
		h.StopBits = m.cfg.StopBits
		h.SlaveId = m.cfg.SlaveID
		h.Timeout = m.cfg.Timeout()
		if m.cfg.Debug {
			h.Logger = zap.NewStdLog(logging.Named("modbus"))
		}
		if err := h.Connect(); err != nil {
			m.bumpBackoff(err)
			return err
		}
		m.rtu = h
		m.client = modbus.NewClient(h)

	case "tcp":
		h := modbus.NewTCPClientHandler(m.cfg.TCPAddr)
		h.SlaveId = m.cfg.SlaveID
		h.Timeout = m.cfg.Timeout()
		if m.cfg.Debug {
			h.Logger = zap.NewStdLog(logging.Named("modbus"))
		}
		if err := h.Connect(); err != nil {
			m.bumpBackoff(err)
			return err
		}
		m.tcp = h
		m.client = modbus.NewClient(h)

	default:
		return fmt.Errorf("unsupported modbus type: %s", m.cfg.Type)
	}

	if m.lastConnErr != nil {
		logging.Info("Modbus connection restored", zap.String("type", m.cfg.Type))
	}
	m.connOK = true
	m.backoff = 0
	m.lastConnErr = nil
	return nil
}

func (m *Modbus) bumpBackoff(err error) {
	m.connOK = false
	m.lastConnErr = err
	if m.backoff == 0 {
		m.backoff = m.backoffMin
	} else {
		m.backoff *= 2
		if m.backoff > m.backoffMax {
			m.backoff = m.backoffMax
		}
	}
	m.nextAttempt = time.Now().Add(m.backoff)
}

func (m *Modbus) closeClient() {
	if m.rtu != nil {
		_ = m.rtu.Close()
		m.rtu = nil
	}
	if m.tcp != nil {
		_ = m.tcp.Close()
		m.tcp = nil
	}
	m.client = nil
	m.connOK = false
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "reset") ||
		strings.Contains(s, "closed") ||
		strings.Contains(s, "i/o") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "eof")
}
