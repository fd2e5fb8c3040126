// Package units provides shared constants and validation for speed units
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from km/h to the target units.
// The OBD dataset reports vehicle speed in km/h.
func ConvertSpeed(speedKMH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKMH * 0.62137119 // km/h to mph
	case MPS:
		return speedKMH / 3.6 // km/h to m/s
	case KMPH, KPH:
		return speedKMH // no conversion needed
	default:
		return speedKMH // default to km/h if unknown unit
	}
}
