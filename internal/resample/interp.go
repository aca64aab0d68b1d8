package resample

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"
)

// Seconds converts times to seconds relative to ref.
func Seconds(ts []time.Time, ref time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t.Sub(ref).Seconds()
	}
	return out
}

// Linear interpolates ys(xs) at every target. Targets outside [xs[0],
// xs[n-1]] are NaN, and a NaN neighbour makes the result NaN. xs must be
// strictly increasing.
func Linear(xs, ys, targets []float64) []float64 {
	out := make([]float64, len(targets))
	for i := range out {
		out[i] = math.NaN()
	}
	switch len(xs) {
	case 0:
		return out
	case 1:
		for i, x := range targets {
			if x == xs[0] {
				out[i] = ys[0]
			}
		}
		return out
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return out
	}
	lo, hi := xs[0], xs[len(xs)-1]
	for i, x := range targets {
		if math.IsNaN(x) || x < lo || x > hi {
			continue
		}
		if k := sort.SearchFloat64s(xs, x); xs[k] == x {
			out[i] = ys[k]
			continue
		}
		out[i] = pl.Predict(x)
	}
	return out
}

// LinearTime interpolates a time series onto target times.
func LinearTime(ts []time.Time, ys []float64, targets []time.Time) []float64 {
	if len(ts) == 0 {
		return Linear(nil, nil, make([]float64, len(targets)))
	}
	return Linear(Seconds(ts, ts[0]), ys, Seconds(targets, ts[0]))
}
