// Package quicklook renders retrieved wind fields for a quick visual check:
// PNG time series per height, an HTML time-height chart and a CSV export.
package quicklook

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// field is a (time, range) variable with its coordinates.
type field struct {
	name   string
	times  []time.Time
	ranges []float64
	v      *dataset.Variable
	units  string
}

func fieldOf(ds *dataset.Dataset, name string) (*field, error) {
	if ds == nil {
		return nil, fmt.Errorf("quicklook: no dataset: %w", scan.ErrInvalidInput)
	}
	v, ok := ds.Var(name)
	if !ok {
		return nil, fmt.Errorf("quicklook: %s: %w", name, scan.ErrMissingVariable)
	}
	if len(v.Dims) != 2 {
		return nil, fmt.Errorf("quicklook: %s has dims %v, want (time, range): %w", name, v.Dims, scan.ErrInvalidInput)
	}
	tc, rc := ds.Coords[v.Dims[0]], ds.Coords[v.Dims[1]]
	if tc == nil || !tc.IsTime() || rc == nil || rc.IsTime() {
		return nil, fmt.Errorf("quicklook: %s dims %v are not (time, range): %w", name, v.Dims, scan.ErrInvalidInput)
	}
	if len(tc.Times) == 0 || len(rc.Values) == 0 {
		return nil, fmt.Errorf("quicklook: %s is empty: %w", name, scan.ErrInsufficientData)
	}
	return &field{name: name, times: tc.Times, ranges: rc.Values, v: v, units: v.Attrs["units"]}, nil
}

// nearestGate returns the index of the range gate closest to h.
func (f *field) nearestGate(h float64) int {
	best, bestD := 0, math.Inf(1)
	for j, r := range f.ranges {
		if d := math.Abs(r - h); d < bestD {
			best, bestD = j, d
		}
	}
	return best
}

// finiteRange returns the min and max finite value, or false when there is
// none.
func (f *field) finiteRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range f.v.Data.Elements {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo, hi = math.Min(lo, x), math.Max(hi, x)
		ok = true
	}
	return lo, hi, ok
}
