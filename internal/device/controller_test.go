package device

import (
	"errors"
	"testing"

	"github.com/muurk/smartrelay/internal/gpio"
)

var testPins = Pins{
	Relay:  Pin{Number: 5},
	LED:    Pin{Number: 2},
	Button: Pin{Number: 16, ActiveLow: true},
}

type report struct {
	id    int
	on    bool
	level uint8
}

type recorder struct {
	reports []report
}

func (r *recorder) ReportState(id int, on bool, level uint8) {
	r.reports = append(r.reports, report{id, on, level})
}

func newTestController(t *testing.T) (*Controller, *gpio.Sim, *recorder) {
	t.Helper()
	sim := gpio.NewSim(gpio.High)
	ctrl := NewController(0, "office light", sim, testPins)
	rec := &recorder{}
	ctrl.AddReporter(rec)
	if err := ctrl.Boot(); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	return ctrl, sim, rec
}

// assertOutputs checks the relay and LED levels agree with PowerOn.
func assertOutputs(t *testing.T, ctrl *Controller, sim *gpio.Sim) {
	t.Helper()
	on := ctrl.PowerOn()
	if got, want := sim.Level(5), gpio.LevelOf(on); got != want {
		t.Errorf("relay = %v, want %v (power on = %v)", got, want, on)
	}
	if got, want := sim.Level(2), gpio.LevelOf(!on); got != want {
		t.Errorf("led = %v, want %v (power on = %v)", got, want, on)
	}
}

func TestBoot(t *testing.T) {
	ctrl, sim, rec := newTestController(t)

	if ctrl.PowerOn() {
		t.Error("PowerOn() = true after boot, want false")
	}
	if ctrl.State().LastButton != Released {
		t.Errorf("LastButton = %v, want RELEASED", ctrl.State().LastButton)
	}
	assertOutputs(t, ctrl, sim)

	if mode, ok := sim.Mode(16); !ok || mode != gpio.Input {
		t.Errorf("button mode = %v (configured %v), want input", mode, ok)
	}
	if len(rec.reports) != 1 || rec.reports[0] != (report{0, false, 0}) {
		t.Errorf("boot reports = %+v, want one OFF report", rec.reports)
	}
}

func TestApplyState_Idempotent(t *testing.T) {
	for _, on := range []bool{true, false} {
		ctrl, sim, rec := newTestController(t)

		ctrl.ApplyState(on)
		first := ctrl.State()
		relay, led := sim.Level(5), sim.Level(2)
		reports := len(rec.reports)

		ctrl.ApplyState(on)
		if ctrl.State() != first {
			t.Errorf("ApplyState(%v) twice changed state: %+v -> %+v", on, first, ctrl.State())
		}
		if sim.Level(5) != relay || sim.Level(2) != led {
			t.Errorf("ApplyState(%v) twice changed outputs", on)
		}
		if len(rec.reports) != reports {
			t.Errorf("ApplyState(%v) twice reported again", on)
		}
	}
}

func TestComplementarity(t *testing.T) {
	ctrl, sim, _ := newTestController(t)

	steps := []func(){
		func() { ctrl.ApplyState(true) },
		ctrl.Toggle,
		ctrl.Toggle,
		func() { ctrl.OnRemoteCommand(0, false, 255) },
		func() { ctrl.OnButtonEdge(EdgePress) },
		func() { ctrl.OnButtonEdge(EdgeRelease) },
		func() { ctrl.Execute(Toggle(0, "test")) },
		func() { ctrl.Execute(Set(0, true, "test")) },
	}
	for i, step := range steps {
		step()
		if sim.Level(5) == sim.Level(2) {
			t.Fatalf("step %d: relay and led both %v", i, sim.Level(5))
		}
		assertOutputs(t, ctrl, sim)
	}
}

func TestToggle(t *testing.T) {
	ctrl, sim, _ := newTestController(t)

	for i := 0; i < 4; i++ {
		before := ctrl.PowerOn()
		ctrl.Toggle()
		if ctrl.PowerOn() == before {
			t.Fatalf("toggle %d: PowerOn stayed %v", i, before)
		}
		assertOutputs(t, ctrl, sim)
	}
}

func TestOnButtonEdge_ReleaseIsNoop(t *testing.T) {
	ctrl, sim, rec := newTestController(t)
	ctrl.ApplyState(true)
	writes := sim.Writes()
	reports := len(rec.reports)

	ctrl.OnButtonEdge(EdgeRelease)

	if !ctrl.PowerOn() {
		t.Error("release changed PowerOn")
	}
	if sim.Writes() != writes {
		t.Errorf("release wrote outputs: %d writes, want %d", sim.Writes(), writes)
	}
	if len(rec.reports) != reports {
		t.Error("release produced a report")
	}
}

func TestOnRemoteCommand_LevelIgnored(t *testing.T) {
	for _, initial := range []bool{false, true} {
		for _, on := range []bool{false, true} {
			for level := 0; level <= 255; level++ {
				ctrl, sim, _ := newTestController(t)
				ctrl.ApplyState(initial)

				ctrl.OnRemoteCommand(0, on, uint8(level))

				if ctrl.PowerOn() != on {
					t.Fatalf("initial=%v on=%v level=%d: PowerOn = %v", initial, on, level, ctrl.PowerOn())
				}
				assertOutputs(t, ctrl, sim)
			}
		}
	}
}

func TestOnRemoteCommand_UnknownID(t *testing.T) {
	ctrl, sim, rec := newTestController(t)
	writes := sim.Writes()

	ctrl.OnRemoteCommand(7, true, 0)
	ctrl.Execute(Toggle(3, "test"))
	ctrl.Execute(Set(1, true, "test"))

	if ctrl.PowerOn() {
		t.Error("command for another id changed state")
	}
	if sim.Writes() != writes {
		t.Error("command for another id wrote outputs")
	}
	if len(rec.reports) != 1 {
		t.Errorf("reports = %d, want only the boot report", len(rec.reports))
	}
}

func TestScenario(t *testing.T) {
	ctrl, sim, rec := newTestController(t)

	steps := []struct {
		name   string
		do     func()
		wantOn bool
	}{
		{"press", func() { ctrl.OnButtonEdge(EdgePress) }, true},
		{"release", func() { ctrl.OnButtonEdge(EdgeRelease) }, true},
		{"remote off", func() { ctrl.OnRemoteCommand(0, false, 0) }, false},
		{"press", func() { ctrl.OnButtonEdge(EdgePress) }, true},
	}
	for _, step := range steps {
		step.do()
		if ctrl.PowerOn() != step.wantOn {
			t.Fatalf("after %s: PowerOn = %v, want %v", step.name, ctrl.PowerOn(), step.wantOn)
		}
		assertOutputs(t, ctrl, sim)
	}

	want := []report{{0, false, 0}, {0, true, 0}, {0, false, 0}, {0, true, 0}}
	if len(rec.reports) != len(want) {
		t.Fatalf("reports = %+v, want %+v", rec.reports, want)
	}
	for i := range want {
		if rec.reports[i] != want[i] {
			t.Errorf("report %d = %+v, want %+v", i, rec.reports[i], want[i])
		}
	}
}

func TestTick_SampleSequence(t *testing.T) {
	ctrl, sim, _ := newTestController(t)

	// Active-low button: LOW means pressed.
	samples := []gpio.Level{gpio.High, gpio.High, gpio.Low, gpio.Low, gpio.Low, gpio.High}
	toggles := 0
	for i, level := range samples {
		before := ctrl.PowerOn()
		sim.Set(16, level)
		ctrl.Tick()
		if ctrl.PowerOn() != before {
			toggles++
			if i != 2 {
				t.Errorf("toggle at sample %d, want only at sample 2", i)
			}
		}
	}
	if toggles != 1 {
		t.Errorf("toggles = %d, want 1", toggles)
	}
	if ctrl.State().LastButton != Released {
		t.Errorf("LastButton = %v, want RELEASED", ctrl.State().LastButton)
	}
}

type failingPins struct {
	*gpio.Sim
	readErr  error
	writeErr error
}

func (f *failingPins) Read(pin int) (gpio.Level, error) {
	if f.readErr != nil {
		return gpio.Low, f.readErr
	}
	return f.Sim.Read(pin)
}

func (f *failingPins) Write(pin int, level gpio.Level) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Sim.Write(pin, level)
}

func TestTick_ReadErrorProducesNoEdge(t *testing.T) {
	pins := &failingPins{Sim: gpio.NewSim(gpio.High)}
	ctrl := NewController(0, "test", pins, testPins)
	if err := ctrl.Boot(); err != nil {
		t.Fatal(err)
	}

	pins.Set(16, gpio.Low)
	pins.readErr = errors.New("bus fault")
	ctrl.Tick()
	if ctrl.PowerOn() || ctrl.State().LastButton != Released {
		t.Fatalf("failed read changed state: %+v", ctrl.State())
	}

	pins.readErr = nil
	ctrl.Tick()
	if !ctrl.PowerOn() {
		t.Error("press after recovered read did not toggle")
	}
}

func TestApplyState_WriteErrorKeepsState(t *testing.T) {
	pins := &failingPins{Sim: gpio.NewSim(gpio.High)}
	ctrl := NewController(0, "test", pins, testPins)
	if err := ctrl.Boot(); err != nil {
		t.Fatal(err)
	}

	pins.writeErr = errors.New("stuck")
	ctrl.ApplyState(true)
	if !ctrl.PowerOn() {
		t.Error("PowerOn = false after failed write, want true")
	}
}

func TestPinPolarity(t *testing.T) {
	tests := []struct {
		pin    Pin
		active bool
		want   gpio.Level
	}{
		{Pin{Number: 1}, true, gpio.High},
		{Pin{Number: 1}, false, gpio.Low},
		{Pin{Number: 1, ActiveLow: true}, true, gpio.Low},
		{Pin{Number: 1, ActiveLow: true}, false, gpio.High},
	}
	for _, tt := range tests {
		if got := tt.pin.Level(tt.active); got != tt.want {
			t.Errorf("%+v.Level(%v) = %v, want %v", tt.pin, tt.active, got, tt.want)
		}
		if got := tt.pin.Active(tt.want); got != tt.active {
			t.Errorf("%+v.Active(%v) = %v, want %v", tt.pin, tt.want, got, tt.active)
		}
	}
}

func TestActiveLowRelay(t *testing.T) {
	sim := gpio.NewSim(gpio.High)
	pins := testPins
	pins.Relay.ActiveLow = true
	ctrl := NewController(0, "test", sim, pins)
	if err := ctrl.Boot(); err != nil {
		t.Fatal(err)
	}
	if sim.Level(5) != gpio.High {
		t.Errorf("active-low relay off = %v, want HIGH", sim.Level(5))
	}
	ctrl.ApplyState(true)
	if sim.Level(5) != gpio.Low {
		t.Errorf("active-low relay on = %v, want LOW", sim.Level(5))
	}
}
