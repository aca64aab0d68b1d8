package filter

import (
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/resample"
)

// regrid interpolates a (time, range) field onto new times and, when
// ranges is not nil, new ranges. Interpolation is separable: along time
// first, then along range.
func regrid(times []time.Time, rng []float64, field [][]float64, targets []time.Time, ranges []float64) [][]float64 {
	nR := len(rng)
	byTime := make([][]float64, len(targets))
	for i := range byTime {
		byTime[i] = make([]float64, nR)
	}
	col := make([]float64, len(times))
	for g := 0; g < nR; g++ {
		for k := range times {
			col[k] = field[k][g]
		}
		vals := resample.LinearTime(times, col, targets)
		for i, v := range vals {
			byTime[i][g] = v
		}
	}
	if ranges == nil {
		return byTime
	}
	out := make([][]float64, len(targets))
	for i, row := range byTime {
		out[i] = resample.Linear(rng, row, ranges)
	}
	return out
}

func positive(field [][]float64) [][]float64 {
	out := make([][]float64, len(field))
	for i, row := range field {
		out[i] = make([]float64, len(row))
		for g, x := range row {
			if x > 0 {
				out[i][g] = x
			} else {
				out[i][g] = math.NaN()
			}
		}
	}
	return out
}
