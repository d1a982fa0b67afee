package device

import (
	"testing"

	"github.com/muurk/smartrelay/internal/config"
)

func TestObserve(t *testing.T) {
	tests := []struct {
		name     string
		samples  []bool
		want     []Edge
		wantLast ButtonLevel
	}{
		{"idle", []bool{false, false, false}, nil, Released},
		{"held", []bool{true, true, true}, []Edge{EdgePress}, Pressed},
		{"click", []bool{false, true, false}, []Edge{EdgePress, EdgeRelease}, Released},
		{"two clicks", []bool{true, false, true, false}, []Edge{EdgePress, EdgeRelease, EdgePress, EdgeRelease}, Released},
		{"sample sequence", []bool{false, false, true, true, true, false}, []Edge{EdgePress, EdgeRelease}, Released},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s State
			var got []Edge
			for _, pressed := range tt.samples {
				if edge, ok := s.Observe(pressed); ok {
					got = append(got, edge)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("edges = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("edge %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if s.LastButton != tt.wantLast {
				t.Errorf("LastButton = %v, want %v", s.LastButton, tt.wantLast)
			}
		})
	}
}

func TestObserve_LeavesPowerAlone(t *testing.T) {
	s := State{PowerOn: true}
	s.Observe(true)
	s.Observe(false)
	if !s.PowerOn {
		t.Error("Observe changed PowerOn")
	}
}

func TestPinsFromConfig(t *testing.T) {
	pins := PinsFromConfig(config.Default().Pins)
	want := Pins{
		Relay:  Pin{Number: 5},
		LED:    Pin{Number: 2},
		Button: Pin{Number: 16, ActiveLow: true},
	}
	if pins != want {
		t.Errorf("PinsFromConfig(defaults) = %+v, want %+v", pins, want)
	}
}

func TestCommandString(t *testing.T) {
	if ActionSet.String() != "set" || ActionToggle.String() != "toggle" {
		t.Errorf("Action strings = %s/%s", ActionSet, ActionToggle)
	}
	if Action(9).String() != "action(9)" {
		t.Errorf("unknown action = %s", Action(9))
	}
	cmd := Set(0, true, "")
	if cmd.sourceOr("remote") != "remote" {
		t.Errorf("empty source not defaulted")
	}
}
