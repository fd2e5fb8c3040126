// Package report computes read-only summaries and time series over
// persisted session logs for the dashboard surface.
package report

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fleet.health/internal/logstore"
)

// Summary aggregates one persisted session log. Means are NaN for an
// empty log; an empty log is a valid input, not an error.
type Summary struct {
	VehicleID      string  `json:"vehicle_id"`
	RecordCount    int     `json:"record_count"`
	BreakdownCount int     `json:"breakdown_count"`
	MeanSpeed      float64 `json:"mean_speed"`
	MeanRPM        float64 `json:"mean_rpm"`
}

// Point is one sample of a metric time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Metric names accepted by Series.
const (
	MetricRPM         = "rpm"
	MetricCoolantTemp = "coolant_temp"
	MetricSpeed       = "speed"
)

// Summarize computes the dashboard headline numbers for a log.
func Summarize(log *logstore.PersistedLog) Summary {
	s := Summary{VehicleID: log.VehicleID, RecordCount: len(log.Records)}

	speeds := make([]float64, 0, len(log.Records))
	rpms := make([]float64, 0, len(log.Records))
	for _, rec := range log.Records {
		if rec.Prediction == 1 {
			s.BreakdownCount++
		}
		speeds = append(speeds, rec.Speed)
		rpms = append(rpms, rec.RPM)
	}

	// stat.Mean returns NaN for an empty input, which is the documented
	// "undefined mean" for an empty log.
	s.MeanSpeed = stat.Mean(speeds, nil)
	s.MeanRPM = stat.Mean(rpms, nil)
	return s
}

// Series returns the named metric ordered by reading timestamp.
func Series(log *logstore.PersistedLog, metric string) ([]Point, error) {
	var value func(i int) float64
	switch metric {
	case MetricRPM:
		value = func(i int) float64 { return log.Records[i].RPM }
	case MetricCoolantTemp:
		value = func(i int) float64 { return log.Records[i].CoolantTemp }
	case MetricSpeed:
		value = func(i int) float64 { return log.Records[i].Speed }
	default:
		return nil, fmt.Errorf("unknown metric %q (want %s, %s, or %s)",
			metric, MetricRPM, MetricCoolantTemp, MetricSpeed)
	}

	points := make([]Point, len(log.Records))
	for i := range log.Records {
		points[i] = Point{Timestamp: log.Records[i].Timestamp, Value: value(i)}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}
