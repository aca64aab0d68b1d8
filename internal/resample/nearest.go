package resample

import (
	"sort"
	"time"
)

// Missing marks a target tick with no source sample within tolerance.
const Missing = -1

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// NearestDense returns, for every target time, the index of the source time
// with the smallest absolute offset, or Missing when that offset exceeds tol.
// Ties go to the lowest source index. It scans every source sample for every
// target, O(len(target)·len(source)), and accepts unsorted sources.
func NearestDense(target, source []time.Time, tol time.Duration) []int {
	out := make([]int, len(target))
	for i, t := range target {
		best, bestDelta := Missing, time.Duration(0)
		for j, s := range source {
			d := absDuration(s.Sub(t))
			if best == Missing || d < bestDelta {
				best, bestDelta = j, d
			}
		}
		if best == Missing || bestDelta > tol {
			out[i] = Missing
			continue
		}
		out[i] = best
	}
	return out
}

// NearestMerge is NearestDense for a source sorted ascending. It binary
// searches each target, O(len(target)·log len(source)), and breaks ties
// identically.
func NearestMerge(target, source []time.Time, tol time.Duration) []int {
	out := make([]int, len(target))
	n := len(source)
	for i, t := range target {
		if n == 0 {
			out[i] = Missing
			continue
		}
		hi := sort.Search(n, func(k int) bool { return !source[k].Before(t) })
		best := Missing
		var bestDelta time.Duration
		if hi > 0 {
			// earliest index carrying the lower neighbour's timestamp
			lt := source[hi-1]
			lo := sort.Search(n, func(k int) bool { return !source[k].Before(lt) })
			best, bestDelta = lo, absDuration(t.Sub(lt))
		}
		if hi < n {
			if d := absDuration(source[hi].Sub(t)); best == Missing || d < bestDelta {
				best, bestDelta = hi, d
			}
		}
		if bestDelta > tol {
			best = Missing
		}
		out[i] = best
	}
	return out
}

// Sorted reports whether ts is non-decreasing.
func Sorted(ts []time.Time) bool {
	for i := 1; i < len(ts); i++ {
		if ts[i].Before(ts[i-1]) {
			return false
		}
	}
	return true
}

// NearestValue is the float-axis counterpart of NearestDense, used for the
// optional range regridding. NaN source values never match.
func NearestValue(target, source []float64, tol float64) []int {
	out := make([]int, len(target))
	for i, t := range target {
		best, bestDelta := Missing, 0.0
		for j, s := range source {
			d := s - t
			if d < 0 {
				d = -d
			}
			if d != d {
				continue
			}
			if best == Missing || d < bestDelta {
				best, bestDelta = j, d
			}
		}
		if best != Missing && bestDelta > tol {
			best = Missing
		}
		out[i] = best
	}
	return out
}
