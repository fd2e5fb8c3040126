package causes

import (
	"reflect"
	"testing"

	"github.com/banshee-data/fleet.health/internal/obd"
)

func defaultEngine() *Engine {
	return NewEngine(DefaultThresholds())
}

func TestEvaluate_CleanReading(t *testing.T) {
	e := defaultEngine()

	// Stationary with the pedal released: nothing can fire.
	readings := []obd.Reading{
		{Speed: 0, AccelPedalD: 0},
		{Speed: 1, AccelPedalD: 30, CoolantTemp: 150, ManifoldPressure: 300, IntakeAirTemp: 200},
		{Speed: 0.5, AccelPedalD: 12, CoolantTemp: 101},
	}
	for i, r := range readings {
		if got := e.Evaluate(r); len(got) != 0 {
			t.Errorf("reading %d: expected no causes, got %v", i, got)
		}
	}
}

func TestEvaluate_Overheating(t *testing.T) {
	e := defaultEngine()
	got := e.Evaluate(obd.Reading{Speed: 2, CoolantTemp: 101, ThrottlePosition: 80, RPM: 3000})
	if len(got) == 0 || got[0] != Overheating {
		t.Fatalf("expected %q first, got %v", Overheating, got)
	}
}

func TestEvaluate_StallRule(t *testing.T) {
	e := defaultEngine()

	// rpm below throttle × factor with throttle under the cutoff.
	got := e.Evaluate(obd.Reading{Speed: 30, ThrottlePosition: 50, RPM: 1000})
	want := []string{LowRPMStall}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Evaluate = %v, want %v", got, want)
	}

	// rpm exactly at the boundary does not fire.
	if got := e.Evaluate(obd.Reading{Speed: 30, ThrottlePosition: 50, RPM: 3500}); len(got) != 0 {
		t.Errorf("boundary rpm fired: %v", got)
	}

	// wide-open throttle is exempt regardless of rpm.
	if got := e.Evaluate(obd.Reading{Speed: 30, ThrottlePosition: 70, RPM: 100}); len(got) != 0 {
		t.Errorf("open throttle fired: %v", got)
	}
}

func TestEvaluate_AllRulesFire(t *testing.T) {
	e := defaultEngine()
	r := obd.Reading{
		Speed:            2,
		CoolantTemp:      120,
		ThrottlePosition: 40,
		RPM:              100,
		ManifoldPressure: 250,
		IntakeAirTemp:    130,
		AccelPedalD:      50,
	}
	want := []string{Overheating, LowRPMStall, HighManifold, AbnormalIntake, PedalNoMovement}
	if got := e.Evaluate(r); !reflect.DeepEqual(got, want) {
		t.Errorf("Evaluate = %v, want %v", got, want)
	}
}

func TestEvaluate_GearIssueIndependentOfMoving(t *testing.T) {
	e := defaultEngine()

	// Fires while stationary.
	got := e.Evaluate(obd.Reading{Speed: 0, AccelPedalD: 45})
	if !reflect.DeepEqual(got, []string{PedalNoMovement}) {
		t.Errorf("stationary pedal reading = %v, want [%s]", got, PedalNoMovement)
	}

	// Also fires while creeping under the speed bound.
	got = e.Evaluate(obd.Reading{Speed: 4, AccelPedalD: 45, ThrottlePosition: 80, RPM: 6000})
	if !reflect.DeepEqual(got, []string{PedalNoMovement}) {
		t.Errorf("creeping pedal reading = %v, want [%s]", got, PedalNoMovement)
	}
}

func TestEvaluate_Scenario(t *testing.T) {
	e := defaultEngine()
	r := obd.Reading{
		Speed:            60,
		CoolantTemp:      105,
		ThrottlePosition: 50,
		RPM:              1000, // below 50 × 70 = 3500
		ManifoldPressure: 200,
		IntakeAirTemp:    30,
		AccelPedalD:      0,
	}
	want := []string{Overheating, LowRPMStall}
	got := e.Evaluate(r)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Evaluate = %v, want %v", got, want)
	}
	if p := Primary(got); p != Overheating {
		t.Errorf("Primary = %q, want %q", p, Overheating)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	e := defaultEngine()
	r := obd.Reading{Speed: 20, CoolantTemp: 110, ThrottlePosition: 30, RPM: 500}
	first := e.Evaluate(r)
	for i := 0; i < 5; i++ {
		if got := e.Evaluate(r); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d: Evaluate = %v, want %v", i, got, first)
		}
	}
}

func TestPrimary_None(t *testing.T) {
	if got := Primary(nil); got != None {
		t.Errorf("Primary(nil) = %q, want %q", got, None)
	}
}

func TestCustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.CoolantMax = 90
	e := NewEngine(th)

	got := e.Evaluate(obd.Reading{Speed: 10, CoolantTemp: 95, ThrottlePosition: 80, RPM: 3000})
	if !reflect.DeepEqual(got, []string{Overheating}) {
		t.Errorf("lowered threshold: Evaluate = %v, want [%s]", got, Overheating)
	}
}
