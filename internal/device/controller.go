package device

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/gpio"
	"github.com/muurk/smartrelay/internal/logging"
)

// Reporter receives state changes. Implementations are called on the poll
// loop goroutine and must return without blocking.
type Reporter interface {
	ReportState(id int, on bool, level uint8)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(id int, on bool, level uint8)

func (f ReporterFunc) ReportState(id int, on bool, level uint8) { f(id, on, level) }

// Controller owns the State of one device and is the only writer of its
// relay and LED outputs, whichever input asked for the change.
//
// A Controller is not safe for concurrent use. Every method is meant to be
// called from the single poll loop goroutine.
type Controller struct {
	id        int
	name      string
	io        gpio.Pins
	pins      Pins
	state     State
	reporters []Reporter
	source    string
}

// NewController creates a controller for device id. The state starts at
// its zero value: power off, button released.
func NewController(id int, name string, io gpio.Pins, pins Pins) *Controller {
	return &Controller{
		id:     id,
		name:   name,
		io:     io,
		pins:   pins,
		source: "boot",
	}
}

// ID returns the device id this controller answers to.
func (c *Controller) ID() int { return c.id }

// Name returns the device name.
func (c *Controller) Name() string { return c.name }

// AddReporter registers r for state change notifications.
func (c *Controller) AddReporter(r Reporter) {
	c.reporters = append(c.reporters, r)
}

// State returns a copy of the current state.
func (c *Controller) State() State { return c.state }

// PowerOn returns the authoritative power state.
func (c *Controller) PowerOn() bool { return c.state.PowerOn }

// Boot configures the pins and applies the power-off default. The default
// is reported even though it is not a change so that reporters start in
// sync with the hardware.
func (c *Controller) Boot() error {
	if err := c.io.Configure(c.pins.Relay.Number, gpio.Output); err != nil {
		return fmt.Errorf("configure relay pin %d: %w", c.pins.Relay.Number, err)
	}
	if err := c.io.Configure(c.pins.LED.Number, gpio.Output); err != nil {
		return fmt.Errorf("configure led pin %d: %w", c.pins.LED.Number, err)
	}
	if err := c.io.Configure(c.pins.Button.Number, gpio.Input); err != nil {
		return fmt.Errorf("configure button pin %d: %w", c.pins.Button.Number, err)
	}

	c.state = State{}
	c.source = "boot"
	c.writeOutputs(false)
	c.report()
	return nil
}

// ApplyState sets the power state and drives both outputs from it: relay
// energized iff on, LED illuminated iff off. Applying the current value
// again rewrites the same levels and is harmless.
func (c *Controller) ApplyState(on bool) {
	changed := c.state.PowerOn != on
	c.state.PowerOn = on
	c.writeOutputs(on)
	logging.LogStateChange(c.id, c.name, on, c.source)
	if changed {
		c.report()
	}
}

// Toggle inverts the power state.
func (c *Controller) Toggle() {
	c.ApplyState(!c.state.PowerOn)
}

// OnRemoteCommand applies a state requested over the network. Commands for
// another device id are ignored. level is accepted for protocol
// compatibility and has no effect: there is no dimming.
func (c *Controller) OnRemoteCommand(id int, on bool, level uint8) {
	c.remote(id, on, "remote")
}

func (c *Controller) remote(id int, on bool, source string) {
	if id != c.id {
		logging.Debug("Ignoring command for unknown device",
			zap.Int("device_id", id),
			zap.Int("own_id", c.id),
		)
		return
	}
	c.withSource(source, func() { c.ApplyState(on) })
}

// OnButtonEdge toggles on press. Release only matters to the edge detector,
// which has already recorded it.
func (c *Controller) OnButtonEdge(edge Edge) {
	if edge != EdgePress {
		return
	}
	c.withSource("button", c.Toggle)
}

// Tick samples the button once and forwards any resulting edge. A failed
// read is logged and treated as "no sample" so the detector state is kept.
func (c *Controller) Tick() {
	level, err := c.io.Read(c.pins.Button.Number)
	if err != nil {
		logging.Warn("Button read failed",
			zap.Int("pin", c.pins.Button.Number),
			zap.Error(err),
		)
		return
	}
	if edge, ok := c.state.Observe(c.pins.Button.Active(level)); ok {
		logging.Debug("Button edge", zap.String("edge", edge.String()))
		c.OnButtonEdge(edge)
	}
}

// Execute runs a queued command from one of the network surfaces.
func (c *Controller) Execute(cmd Command) {
	switch cmd.Action {
	case ActionSet:
		c.remote(cmd.DeviceID, cmd.On, cmd.sourceOr("remote"))
	case ActionToggle:
		if cmd.DeviceID != c.id {
			logging.Debug("Ignoring toggle for unknown device", zap.Int("device_id", cmd.DeviceID))
			return
		}
		c.withSource(cmd.sourceOr("remote"), c.Toggle)
	default:
		logging.Warn("Unknown command action", zap.Int("action", int(cmd.Action)))
	}
}

func (c *Controller) withSource(source string, fn func()) {
	prev := c.source
	c.source = source
	defer func() { c.source = prev }()
	fn()
}

func (c *Controller) writeOutputs(on bool) {
	c.write("relay", c.pins.Relay, on)
	c.write("led", c.pins.LED, !on)
}

// write drives one output. Failures are logged and otherwise ignored: there
// is no recovery path for a dead output.
func (c *Controller) write(role string, pin Pin, active bool) {
	if err := c.io.Write(pin.Number, pin.Level(active)); err != nil {
		logging.Warn("Output write failed",
			zap.String("output", role),
			zap.Int("pin", pin.Number),
			zap.Error(err),
		)
	}
}

func (c *Controller) report() {
	for _, r := range c.reporters {
		r.ReportState(c.id, c.state.PowerOn, 0)
	}
}
