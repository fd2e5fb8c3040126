// Package causes maps a single OBD reading to zero or more suspected
// breakdown causes. Evaluation is pure and history-free: the same
// reading always yields the same ordered tags, and every applicable
// rule fires rather than stopping at the first match. Rule order only
// matters for primary-cause selection.
package causes

import "github.com/banshee-data/fleet.health/internal/obd"

// Cause tags. The taxonomy is fixed; persisted logs only ever contain
// these values (or the None sentinel).
const (
	Overheating     = "Overheating"
	LowRPMStall     = "RPM too low for throttle (possible stall)"
	HighManifold    = "High manifold pressure (possible blockage)"
	AbnormalIntake  = "Abnormal intake air temperature"
	PedalNoMovement = "Pedal pressed but vehicle not moving (possible gear issue)"

	// None is the primary-cause sentinel for a clean reading.
	None = "None"
)

// Thresholds holds the tunable rule constants. The stall factor and the
// pedal/speed gear-issue bounds are heuristics carried over from the
// trained model's tuning; they have no documented physical derivation
// and should be adjusted via config rather than reinterpreted.
type Thresholds struct {
	MovingSpeedMin   float64 // km/h above which the vehicle counts as moving
	CoolantMax       float64 // °C
	StallThrottleMax float64 // % throttle below which the stall rule applies
	StallRPMFactor   float64 // rpm must exceed throttle × factor
	ManifoldMax      float64 // kPa
	IntakeAirMax     float64 // °C
	IntakeAirMin     float64 // °C
	PedalPressedMin  float64 // % accelerator pedal D
	PedalSpeedMax    float64 // km/h
}

// DefaultThresholds returns the rule constants the classifier was tuned
// alongside.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MovingSpeedMin:   1,
		CoolantMax:       100,
		StallThrottleMax: 70,
		StallRPMFactor:   70,
		ManifoldMax:      220,
		IntakeAirMax:     120,
		IntakeAirMin:     -20,
		PedalPressedMin:  30,
		PedalSpeedMax:    5,
	}
}

// rule pairs a predicate with the tag it raises. Rules are independent
// of each other; the engine evaluates all of them in slice order.
type rule struct {
	tag  string
	when func(obd.Reading, Thresholds) bool
}

var rules = []rule{
	{
		tag: Overheating,
		when: func(r obd.Reading, t Thresholds) bool {
			return r.Speed > t.MovingSpeedMin && r.CoolantTemp > t.CoolantMax
		},
	},
	{
		tag: LowRPMStall,
		when: func(r obd.Reading, t Thresholds) bool {
			return r.Speed > t.MovingSpeedMin &&
				r.ThrottlePosition < t.StallThrottleMax &&
				r.RPM < r.ThrottlePosition*t.StallRPMFactor
		},
	},
	{
		tag: HighManifold,
		when: func(r obd.Reading, t Thresholds) bool {
			return r.Speed > t.MovingSpeedMin && r.ManifoldPressure > t.ManifoldMax
		},
	},
	{
		tag: AbnormalIntake,
		when: func(r obd.Reading, t Thresholds) bool {
			return r.Speed > t.MovingSpeedMin &&
				(r.IntakeAirTemp > t.IntakeAirMax || r.IntakeAirTemp < t.IntakeAirMin)
		},
	},
	{
		tag: PedalNoMovement,
		when: func(r obd.Reading, t Thresholds) bool {
			return r.AccelPedalD > t.PedalPressedMin && r.Speed < t.PedalSpeedMax
		},
	},
}

// Engine evaluates the fixed rule set against readings.
type Engine struct {
	thresholds Thresholds
}

// NewEngine returns an engine using the given thresholds.
func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// Evaluate returns the tags of every rule the reading trips, in rule
// order. A clean reading yields an empty slice.
func (e *Engine) Evaluate(r obd.Reading) []string {
	var tags []string
	for _, rl := range rules {
		if rl.when(r, e.thresholds) {
			tags = append(tags, rl.tag)
		}
	}
	return tags
}

// Primary returns the first tag in rule order, or None when no rule
// fired.
func Primary(tags []string) string {
	if len(tags) == 0 {
		return None
	}
	return tags[0]
}
