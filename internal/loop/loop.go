// Package loop runs the fixed-period poll loop that owns the device
// controller.
//
// Each tick services the network collaborators first, then executes queued
// commands, then samples the button. Everything that touches the controller
// happens here, on one goroutine.
package loop

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/logging"
)

// DefaultPeriod is the tick period of the reference firmware.
const DefaultPeriod = 100 * time.Millisecond

// DefaultInboxSize bounds the number of queued commands.
const DefaultInboxSize = 32

// ErrBusy is returned by Submit when the inbox is full.
var ErrBusy = errors.New("command queue full")

// Service is polled once per tick. Handle must not block.
type Service interface {
	Handle()
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func()

func (f ServiceFunc) Handle() { f() }

// Controller is the part of device.Controller the loop drives.
type Controller interface {
	Tick()
	Execute(cmd device.Command)
}

// Loop drives one controller.
type Loop struct {
	ctrl     Controller
	period   time.Duration
	services []Service
	inbox    chan device.Command
}

// Option configures a Loop.
type Option func(*Loop)

// WithPeriod sets the tick period.
func WithPeriod(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.period = d
		}
	}
}

// WithInboxSize sets the command queue capacity.
func WithInboxSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.inbox = make(chan device.Command, n)
		}
	}
}

// New creates a loop for ctrl.
func New(ctrl Controller, opts ...Option) *Loop {
	l := &Loop{
		ctrl:   ctrl,
		period: DefaultPeriod,
		inbox:  make(chan device.Command, DefaultInboxSize),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddService registers s to be polled every tick, in registration order.
// Call it before Run.
func (l *Loop) AddService(s Service) {
	l.services = append(l.services, s)
}

// Period returns the tick period.
func (l *Loop) Period() time.Duration { return l.period }

// Submit queues cmd for the next tick. It is safe to call from any
// goroutine and never blocks.
func (l *Loop) Submit(cmd device.Command) error {
	select {
	case l.inbox <- cmd:
		return nil
	default:
		logging.Warn("Dropping command, queue full",
			zap.Int("device_id", cmd.DeviceID),
			zap.String("action", cmd.Action.String()),
			zap.String("source", cmd.Source),
		)
		return ErrBusy
	}
}

// Tick runs one iteration.
func (l *Loop) Tick() {
	for _, s := range l.services {
		s.Handle()
	}
	l.drain()
	l.ctrl.Tick()
}

func (l *Loop) drain() {
	for {
		select {
		case cmd := <-l.inbox:
			l.ctrl.Execute(cmd)
		default:
			return
		}
	}
}

// Run ticks every period until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	logging.Info("Poll loop started", zap.Duration("period", l.period))

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Poll loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}
