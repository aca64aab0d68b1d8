// Package rolling implements centered moving-window statistics over
// NaN-padded series. A window of size n at index i spans
// [i+1+(n-1)/2-n, i+1+(n-1)/2), clipped to the series; a result is NaN
// unless at least minPeriods finite values fall inside.
package rolling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarwind/internal/dataset"
)

func bounds(i, n, window int) (int, int) {
	end := i + 1 + (window-1)/2
	start := end - window
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	return start, end
}

func clampPeriods(window, minPeriods int) int {
	if minPeriods < 1 {
		return 1
	}
	if minPeriods > window {
		return window
	}
	return minPeriods
}

// Mean returns the centered moving mean using running sums.
func Mean(x []float64, window, minPeriods int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if window < 1 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	minPeriods = clampPeriods(window, minPeriods)
	var sum float64
	count := 0
	lo, hi := 0, 0
	for i := 0; i < n; i++ {
		start, end := bounds(i, n, window)
		for ; hi < end; hi++ {
			if !math.IsNaN(x[hi]) {
				sum += x[hi]
				count++
			}
		}
		for ; lo < start; lo++ {
			if !math.IsNaN(x[lo]) {
				sum -= x[lo]
				count--
			}
		}
		if count >= minPeriods {
			out[i] = sum / float64(count)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Variance returns the centered moving sample variance (n-1 denominator).
// Windows with fewer than two finite values are NaN.
func Variance(x []float64, window, minPeriods int) []float64 {
	n := len(x)
	out := make([]float64, n)
	minPeriods = clampPeriods(window, minPeriods)
	buf := make([]float64, 0, window)
	for i := 0; i < n; i++ {
		out[i] = math.NaN()
		if window < 1 {
			continue
		}
		start, end := bounds(i, n, window)
		buf = buf[:0]
		for _, v := range x[start:end] {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) < minPeriods || len(buf) < 2 {
			continue
		}
		out[i] = stat.Variance(buf, nil)
	}
	return out
}

// Along applies fn to every 1-D lane of v along dim and returns the result
// as a new variable with the same dims. fn must return a lane of the same
// length.
func Along(v *dataset.Variable, dim string, fn func([]float64) []float64) (*dataset.Variable, error) {
	axis := v.Axis(dim)
	if axis < 0 {
		return nil, fmt.Errorf("rolling %s: no %q dimension", v.Name, dim)
	}
	out := v.Clone()
	shape := v.Shape()
	outer, inner := 1, 1
	for _, s := range shape[:axis] {
		outer *= s
	}
	for _, s := range shape[axis+1:] {
		inner *= s
	}
	n := shape[axis]
	lane := make([]float64, n)
	src, dst := v.Data.Elements, out.Data.Elements
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			for k := 0; k < n; k++ {
				lane[k] = src[base+k*inner]
			}
			res := fn(lane)
			for k := 0; k < n; k++ {
				dst[base+k*inner] = res[k]
			}
		}
	}
	return out, nil
}
