package scan

import "math"

// VerticalElevation is the elevation of the zenith beam after rounding.
const VerticalElevation = 90.0

// Round rounds v to the given number of decimals, half to even.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*p) / p
}

// NormalizeAzimuth wraps az into [0, 360) and rounds it. Rounding happens
// after wrapping, so a value that rounds up to 360 is folded back to 0.
func NormalizeAzimuth(az float64, decimals int) float64 {
	if math.IsNaN(az) {
		return az
	}
	a := math.Mod(az, 360)
	if a < 0 {
		a += 360
	}
	a = Round(a, decimals)
	if a >= 360 {
		a = 0
	}
	return a
}

// NormalizeElevation rounds el to the given number of decimals.
func NormalizeElevation(el float64, decimals int) float64 {
	return Round(el, decimals)
}

// IsVertical reports whether an already rounded elevation is the zenith beam.
func IsVertical(el float64) bool {
	return el == VerticalElevation
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(d float64) float64 { return d * math.Pi / 180 }

// Rad2Deg converts radians to degrees.
func Rad2Deg(r float64) float64 { return r * 180 / math.Pi }

// WrapDirection folds a direction in degrees into [0, 360).
func WrapDirection(d float64) float64 {
	if math.IsNaN(d) {
		return d
	}
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}
