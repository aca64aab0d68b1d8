package scan

import (
	"fmt"
	"time"
)

// AssignScanMeanTime groups the rays of a DBS file into complete scan
// cycles and tags every ray with the mean time of its cycle.
//
// Azimuths are rounded to whole degrees (360 becomes 0). The first ray's
// azimuth is the reference; every slanted ray pointing at it opens a new
// cycle, which runs until the next opening ray or the end of the file. Rays
// before the first opening ray belong to no complete cycle and are dropped.
// The input scan is not modified.
func AssignScanMeanTime(s *Scan) (*Scan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	n := s.NumRays()
	azm := make([]float64, n)
	for i, a := range s.Azimuth {
		azm[i] = NormalizeAzimuth(a, 0)
	}
	ref := azm[0]

	var edges []int
	for i := 0; i < n; i++ {
		if !IsVertical(NormalizeElevation(s.Elevation[i], 1)) && azm[i] == ref {
			edges = append(edges, i)
		}
	}
	if len(edges) == 0 || edges[len(edges)-1] != n {
		edges = append(edges, n)
	}
	if len(edges) < 2 {
		return nil, fmt.Errorf("scan %q has no complete cycle: %w", s.Source, ErrInsufficientData)
	}

	keep := make([]int, 0, n)
	mean := make([]time.Time, 0, n)
	for b := 0; b+1 < len(edges); b++ {
		lo, hi := edges[b], edges[b+1]
		m := MeanTime(s.Time[lo:hi])
		for i := lo; i < hi; i++ {
			keep = append(keep, i)
			mean = append(mean, m)
		}
	}

	out := &Scan{
		Source:    s.Source,
		Time:      make([]time.Time, len(keep)),
		Azimuth:   make([]float64, len(keep)),
		Elevation: make([]float64, len(keep)),
		Range:     append([]float64(nil), s.Range...),
		MeanTime:  mean,
	}
	for j, i := range keep {
		out.Time[j] = s.Time[i]
		out.Azimuth[j] = azm[i]
		out.Elevation[j] = s.Elevation[i]
	}
	out.RadialWindSpeed = pickRows(s.RadialWindSpeed, keep)
	out.Status = pickRows(s.Status, keep)
	out.CNR = pickRows(s.CNR, keep)
	out.RelativeBeta = pickRows(s.RelativeBeta, keep)
	out.MeasurementHeight = pickRows(s.MeasurementHeight, keep)
	return out, nil
}

// MeanTime returns the arithmetic mean of ts. It averages offsets from the
// first timestamp so large epoch values do not overflow.
func MeanTime(ts []time.Time) time.Time {
	if len(ts) == 0 {
		return time.Time{}
	}
	var sum float64
	for _, t := range ts {
		sum += float64(t.Sub(ts[0]))
	}
	return ts[0].Add(time.Duration(sum / float64(len(ts))))
}
