// Package obd models OBD-II sensor readings and the telemetry sources
// that replay them. A source is an ordered, finite, replayable sequence
// of readings for one vehicle; replay always restarts from the first
// reading.
package obd

import (
	"fmt"
	"strconv"
	"time"
)

// Reading is one timestamped vehicle sensor vector. Values are immutable
// once parsed from the dataset.
type Reading struct {
	Timestamp        time.Time `json:"timestamp"`
	CoolantTemp      float64   `json:"coolant_temp"`       // °C
	ManifoldPressure float64   `json:"manifold_pressure"`  // kPa
	RPM              float64   `json:"rpm"`                // rev/min
	Speed            float64   `json:"speed"`              // km/h
	IntakeAirTemp    float64   `json:"intake_air_temp"`    // °C
	AirflowRate      float64   `json:"airflow_rate"`       // g/s
	ThrottlePosition float64   `json:"throttle_position"`  // %
	AmbientAirTemp   float64   `json:"ambient_air_temp"`   // °C
	AccelPedalD      float64   `json:"accel_pedal_pos_d"`  // %
	AccelPedalE      float64   `json:"accel_pedal_pos_e"`  // %
}

// FeatureColumns is the fixed, ordered feature set the classifier was
// trained on. Column names match the historical dataset schema.
var FeatureColumns = []string{
	"Engine_Coolant_Temperature",
	"Intake_Manifold_Abs_Pressure",
	"Engine_RPM",
	"Vehicle_Speed",
	"Intake_Air_Temperature",
	"AirFlow_Rate",
	"Throttle_Position",
	"Air_Temperature",
	"Acc_Pedal_Pos_D",
	"Acc_Pedal_Pos_E",
}

// DatasetHeader is the expected CSV header of the historical OBD
// dataset: the reading timestamp followed by the feature columns.
var DatasetHeader = append([]string{"Timestamp"}, FeatureColumns...)

// FeatureVector returns the reading's sensor values in FeatureColumns
// order, ready to hand to the classifier.
func (r Reading) FeatureVector() []float64 {
	return []float64{
		r.CoolantTemp,
		r.ManifoldPressure,
		r.RPM,
		r.Speed,
		r.IntakeAirTemp,
		r.AirflowRate,
		r.ThrottlePosition,
		r.AmbientAirTemp,
		r.AccelPedalD,
		r.AccelPedalE,
	}
}

// TimestampLayout is the timestamp format used by the historical
// dataset and by persisted session logs.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseReading parses one dataset row in DatasetHeader column order.
func ParseReading(fields []string) (Reading, error) {
	if len(fields) != len(DatasetHeader) {
		return Reading{}, fmt.Errorf("expected %d columns, got %d", len(DatasetHeader), len(fields))
	}

	ts, err := time.Parse(TimestampLayout, fields[0])
	if err != nil {
		return Reading{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	vals := make([]float64, len(FeatureColumns))
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse %s: %w", FeatureColumns[i], err)
		}
		vals[i] = v
	}

	return Reading{
		Timestamp:        ts,
		CoolantTemp:      vals[0],
		ManifoldPressure: vals[1],
		RPM:              vals[2],
		Speed:            vals[3],
		IntakeAirTemp:    vals[4],
		AirflowRate:      vals[5],
		ThrottlePosition: vals[6],
		AmbientAirTemp:   vals[7],
		AccelPedalD:      vals[8],
		AccelPedalE:      vals[9],
	}, nil
}

// Record is a Reading enriched with the classifier verdict and causal
// tags for one processed simulation step. Records are created once,
// appended to the session buffer, and never mutated afterwards.
type Record struct {
	Reading

	VehicleID    string    `json:"vehicle_id"`
	Driver       string    `json:"driver"`
	LoggedAt     time.Time `json:"logged_at"`
	Prediction   int       `json:"prediction"`  // 0 normal, 1 breakdown
	Probability  float64   `json:"probability"` // P(breakdown), in [0,1]
	Causes       []string  `json:"causes"`
	PrimaryCause string    `json:"breakdown_cause"`
}
