package device

import (
	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/gpio"
)

// ButtonLevel is the last debounced button level.
type ButtonLevel int

const (
	Released ButtonLevel = iota
	Pressed
)

func (b ButtonLevel) String() string {
	if b == Pressed {
		return "PRESSED"
	}
	return "RELEASED"
}

// Edge is a transition between two consecutive button samples.
type Edge int

const (
	EdgePress Edge = iota
	EdgeRelease
)

func (e Edge) String() string {
	if e == EdgePress {
		return "PRESS"
	}
	return "RELEASE"
}

// State is the single source of truth for one controlled device. Relay and
// LED outputs are always derived from PowerOn.
type State struct {
	PowerOn    bool
	LastButton ButtonLevel
}

// Observe feeds one button sample into the edge detector. It returns the
// edge produced by the sample, if any: a press is reported on the first
// pressed sample after a release and a release on the first released sample
// after a press. Repeated samples at the same level produce nothing.
func (s *State) Observe(pressed bool) (Edge, bool) {
	switch {
	case pressed && s.LastButton == Released:
		s.LastButton = Pressed
		return EdgePress, true
	case !pressed && s.LastButton == Pressed:
		s.LastButton = Released
		return EdgeRelease, true
	default:
		return 0, false
	}
}

// Pin is an I/O pin number and its polarity. An active-low pin is "on"
// (energized, illuminated, pressed) when its physical level is LOW.
type Pin struct {
	Number    int
	ActiveLow bool
}

// Level returns the physical level that makes the pin logically active or not.
func (p Pin) Level(active bool) gpio.Level {
	return gpio.LevelOf(active != p.ActiveLow)
}

// Active reports whether a physical level means the pin is logically active.
func (p Pin) Active(level gpio.Level) bool {
	return (level == gpio.High) != p.ActiveLow
}

// Pins is the wiring of one controlled device.
type Pins struct {
	Relay  Pin
	LED    Pin
	Button Pin
}

// PinsFromConfig converts the configured wiring.
func PinsFromConfig(c config.PinsConfig) Pins {
	return Pins{
		Relay:  Pin{Number: c.Relay.Number, ActiveLow: c.Relay.ActiveLow},
		LED:    Pin{Number: c.LED.Number, ActiveLow: c.LED.ActiveLow},
		Button: Pin{Number: c.Button.Number, ActiveLow: c.Button.ActiveLow},
	}
}
