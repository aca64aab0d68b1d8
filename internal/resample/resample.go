// Package resample maps irregularly timed profiles onto a regular daily
// reference grid by nearest neighbour with a hard tolerance.
package resample

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/timeutil"
)

// TimeDim is the name of the output time axis.
const TimeDim = "time_ref"

// Method selects the nearest-index search.
type Method int

const (
	// Auto uses Merge for sorted sources and Dense otherwise.
	Auto Method = iota
	Dense
	Merge
)

// Options configure a resampling call.
type Options struct {
	// Frequency is the reference grid step. Defaults to 15s.
	Frequency time.Duration
	// Tolerance is the largest retained |offset|. Zero keeps exact hits only.
	Tolerance time.Duration
	// Grid overrides the daily reference grid.
	Grid []time.Time

	// RangeGrid, when set, also regrids the vertical axis.
	RangeGrid      []float64
	RangeTolerance float64

	Method Method
	Logf   monitoring.Logger
}

// DefaultOptions returns 15 s steps with 10 s tolerance.
func DefaultOptions() Options {
	return Options{Frequency: 15 * time.Second, Tolerance: 10 * time.Second}
}

// TimeReference returns the 00:00:00 to 23:59:59 grid of first's day.
func TimeReference(first time.Time, freq time.Duration) []time.Time {
	if freq <= 0 {
		freq = 15 * time.Second
	}
	return timeutil.DayGrid(first, freq)
}

func (o Options) indices(grid, source []time.Time) []int {
	switch o.Method {
	case Dense:
		return NearestDense(grid, source, o.Tolerance)
	case Merge:
		return NearestMerge(grid, source, o.Tolerance)
	}
	if Sorted(source) {
		return NearestMerge(grid, source, o.Tolerance)
	}
	return NearestDense(grid, source, o.Tolerance)
}

// Variable resamples one variable of ds. Its first dimension must be a time
// coordinate; an optional second dimension is the vertical axis and is kept
// (or regridded when RangeGrid is set). The returned dataset holds the
// variable under its own name with dims (time_ref[, vertical]).
func Variable(ds *dataset.Dataset, name string, opts Options) (*dataset.Dataset, error) {
	logf := monitoring.Named(opts.Logf, "resample")
	v, ok := ds.Var(name)
	if !ok {
		return nil, fmt.Errorf("resample %s: %w", name, scan.ErrMissingVariable)
	}
	if len(v.Dims) < 1 || len(v.Dims) > 2 {
		return nil, fmt.Errorf("resample %s: %d dimensions: %w", name, len(v.Dims), scan.ErrInvalidInput)
	}
	tc, ok := ds.Coords[v.Dims[0]]
	if !ok || !tc.IsTime() {
		return nil, fmt.Errorf("resample %s: first dimension %q is not a time axis: %w", name, v.Dims[0], scan.ErrInvalidInput)
	}
	if tc.Len() == 0 {
		return nil, fmt.Errorf("resample %s: %w", name, scan.ErrInsufficientData)
	}

	grid := opts.Grid
	if grid == nil {
		grid = TimeReference(tc.Times[0], opts.Frequency)
	}
	logf("time resampling of: %s (%d -> %d)", name, tc.Len(), len(grid))
	tIdx := opts.indices(grid, tc.Times)

	out := dataset.New()
	out.AddCoord(dataset.NewTimeCoord(TimeDim, grid))

	nVert := 1
	var rIdx []int
	dims := []string{TimeDim}
	shape := []int{len(grid)}
	if len(v.Dims) == 2 {
		vc, ok := ds.Coords[v.Dims[1]]
		if !ok {
			return nil, fmt.Errorf("resample %s: unknown vertical axis %q: %w", name, v.Dims[1], scan.ErrInvalidInput)
		}
		nVert = vc.Len()
		if opts.RangeGrid != nil {
			rIdx = NearestValue(opts.RangeGrid, vc.Values, opts.RangeTolerance)
			out.AddCoord(dataset.NewCoord(vc.Name, opts.RangeGrid, vc.Attrs))
		} else {
			out.AddCoord(dataset.NewCoord(vc.Name, vc.Values, vc.Attrs))
		}
		dims = append(dims, vc.Name)
		shape = append(shape, out.Coords[vc.Name].Len())
	}

	res := dataset.NewVariable(name, dims, shape...)
	res.Attrs = v.Attrs.Clone()
	width := 1
	if len(shape) == 2 {
		width = shape[1]
	}
	src := v.Data.Elements
	dst := res.Data.Elements
	hits := 0
	for i, j := range tIdx {
		if j == Missing {
			continue
		}
		hits++
		row := src[j*nVert : (j+1)*nVert]
		if rIdx == nil {
			copy(dst[i*width:(i+1)*width], row)
			continue
		}
		for k, g := range rIdx {
			if g != Missing {
				dst[i*width+k] = row[g]
			}
		}
	}
	if hits == 0 {
		return nil, fmt.Errorf("resample %s: no sample within %s of the reference grid: %w", name, opts.Tolerance, scan.ErrInsufficientData)
	}
	if err := out.AddVar(res); err != nil {
		return nil, err
	}
	return out, nil
}

// Dataset resamples every variable of ds whose first dimension is a time
// axis onto one shared grid, taken from the earliest sample unless
// opts.Grid is set. Variables on non-time axes are dropped; variables that
// fall entirely outside tolerance are logged and skipped.
func Dataset(ds *dataset.Dataset, opts Options) (*dataset.Dataset, error) {
	logf := monitoring.Named(opts.Logf, "resample")
	if opts.Grid == nil {
		first, ok := earliest(ds)
		if !ok {
			return nil, fmt.Errorf("resample: no time axis: %w", scan.ErrInsufficientData)
		}
		opts.Grid = TimeReference(first, opts.Frequency)
	}
	out := dataset.New()
	out.AddCoord(dataset.NewTimeCoord(TimeDim, opts.Grid))
	out.MergeAttrs(ds.Attrs)
	for _, name := range ds.VarNames() {
		v := ds.Vars[name]
		if len(v.Dims) == 0 {
			continue
		}
		if c, ok := ds.Coords[v.Dims[0]]; !ok || !c.IsTime() {
			continue
		}
		r, err := Variable(ds, name, opts)
		if err != nil {
			logf("skipping %s: %v", name, err)
			continue
		}
		if err := out.Merge(r); err != nil {
			return nil, err
		}
	}
	if len(out.Vars) == 0 {
		return nil, fmt.Errorf("resample: %w", scan.ErrInsufficientData)
	}
	return out, nil
}

func earliest(ds *dataset.Dataset) (time.Time, bool) {
	var first time.Time
	found := false
	for _, c := range ds.Coords {
		if !c.IsTime() {
			continue
		}
		for _, t := range c.Times {
			if !found || t.Before(first) {
				first, found = t, true
			}
		}
	}
	return first, found
}

// Count returns the number of finite values in v.
func Count(v *dataset.Variable) int {
	n := 0
	for _, e := range v.Data.Elements {
		if !math.IsNaN(e) {
			n++
		}
	}
	return n
}
