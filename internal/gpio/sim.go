package gpio

import (
	"fmt"
	"sync"
)

// WriteObserver is notified after every output write on a Sim.
type WriteObserver func(pin int, level Level)

// Sim is an in-memory Pins implementation. Inputs are set from outside with
// Set (a test, or the console's virtual button); outputs are recorded and
// reported to observers. It is safe for concurrent use.
type Sim struct {
	mu        sync.Mutex
	modes     map[int]Mode
	levels    map[int]Level
	idle      Level
	writes    int
	observers []WriteObserver
}

// NewSim creates a simulated pin bank. Inputs that were never Set read as
// idle, which should be the released level of the button (High for the usual
// active-low wiring with a pull-up).
func NewSim(idle Level) *Sim {
	return &Sim{
		modes:  make(map[int]Mode),
		levels: make(map[int]Level),
		idle:   idle,
	}
}

// Observe registers fn to be called after each Write.
func (s *Sim) Observe(fn WriteObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Sim) Configure(pin int, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[pin] = mode
	return nil
}

func (s *Sim) Write(pin int, level Level) error {
	s.mu.Lock()
	if mode, ok := s.modes[pin]; ok && mode != Output {
		s.mu.Unlock()
		return fmt.Errorf("pin %d is configured as %s", pin, mode)
	}
	s.levels[pin] = level
	s.writes++
	observers := append([]WriteObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(pin, level)
	}
	return nil
}

func (s *Sim) Read(pin int) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level, ok := s.levels[pin]; ok {
		return level, nil
	}
	return s.idle, nil
}

// Set drives an input pin from outside.
func (s *Sim) Set(pin int, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[pin] = level
}

// Level returns the last level written to or set on pin.
func (s *Sim) Level(pin int) Level {
	level, _ := s.Read(pin)
	return level
}

// Mode returns the configured mode of pin and whether it was configured.
func (s *Sim) Mode(pin int) (Mode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[pin]
	return m, ok
}

// Writes returns how many output writes have happened.
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Sim) Close() error { return nil }
