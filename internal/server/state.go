package server

import (
	"sync"
	"time"

	"github.com/muurk/smartrelay/internal/api"
)

// stateStore holds the last reported state and wakes waiters on change.
type stateStore struct {
	mu       sync.RWMutex
	state    api.State
	reported bool
	changed  chan struct{}
}

func newStateStore(id int, name, udn string) *stateStore {
	return &stateStore{
		state:   api.State{ID: id, Device: name, UDN: udn},
		changed: make(chan struct{}),
	}
}

func (s *stateStore) set(on bool, level uint8) api.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.On = on
	s.state.Level = level
	s.state.UpdatedAt = time.Now().UTC()
	s.reported = true
	close(s.changed)
	s.changed = make(chan struct{})
	return s.state
}

// get returns the state, whether it was ever reported, and a channel that
// is closed on the next report.
func (s *stateStore) get() (api.State, bool, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.reported, s.changed
}
