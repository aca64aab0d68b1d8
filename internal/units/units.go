// Package units converts retrieved wind speeds from m s-1 into the units
// requested for CSV export and plot labels.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit constants
const (
	MPS   = "mps"
	MPH   = "mph"
	KMPH  = "kmph"
	KPH   = "kph"
	KNOTS = "knots"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, KNOTS}

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
	return strings.Join(ValidUnits, ", ")
}

// Parse validates unit, returning MPS for the empty string.
func Parse(unit string) (string, error) {
	if unit == "" {
		return MPS, nil
	}
	if !IsValid(unit) {
		return "", fmt.Errorf("invalid units %q, want one of %s", unit, GetValidUnitsString())
	}
	return unit, nil
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Retrievals are always computed in m s-1. NaN stays NaN.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	case KNOTS:
		return speedMPS * 1.9438444924406
	default:
		return speedMPS
	}
}

// ConvertAll converts every value of xs in place.
func ConvertAll(xs []float64, targetUnits string) {
	if targetUnits == MPS {
		return
	}
	for i, x := range xs {
		if !math.IsNaN(x) {
			xs[i] = ConvertSpeed(x, targetUnits)
		}
	}
}

// Label returns the unit as written on axes and CSV headers.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km h-1"
	case KNOTS:
		return "kn"
	default:
		return "m s-1"
	}
}
