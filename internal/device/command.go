package device

import "fmt"

// Action is what a queued command asks the controller to do.
type Action int

const (
	ActionSet Action = iota
	ActionToggle
)

func (a Action) String() string {
	switch a {
	case ActionSet:
		return "set"
	case ActionToggle:
		return "toggle"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Command is a request from a network surface (REST, MQTT, MCP) waiting to
// be executed on the poll loop.
type Command struct {
	DeviceID int
	Action   Action
	On       bool
	Level    uint8
	Source   string
}

// Set builds a set-state command.
func Set(id int, on bool, source string) Command {
	return Command{DeviceID: id, Action: ActionSet, On: on, Source: source}
}

// Toggle builds a toggle command.
func Toggle(id int, source string) Command {
	return Command{DeviceID: id, Action: ActionToggle, Source: source}
}

func (c Command) sourceOr(def string) string {
	if c.Source == "" {
		return def
	}
	return c.Source
}
