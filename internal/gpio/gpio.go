// Package gpio is the Digital I/O layer: configure a pin, write an output
// level, read an input level.
//
// Three backends implement Pins: Sim (in memory, used by tests and the
// console), Sysfs (Linux /sys/class/gpio) and Modbus (relay boards reached
// over Modbus TCP or RTU).
package gpio

import "fmt"

// Level is a physical pin level.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// LevelOf returns High for true.
func LevelOf(b bool) Level {
	if b {
		return High
	}
	return Low
}

// Mode is the direction of a pin.
type Mode uint8

const (
	Input Mode = iota
	Output
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// Pins is the Digital I/O contract the device controller drives.
type Pins interface {
	Configure(pin int, mode Mode) error
	Write(pin int, level Level) error
	Read(pin int) (Level, error)
	Close() error
}
