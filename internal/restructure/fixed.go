package restructure

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// Extraction methods for ExtractWind.
const (
	ExtractFull    = "full"
	ExtractCompact = "compact"
)

// HalfCycle returns half the mean spacing between successive rays that
// point at the first ray's azimuth, truncated to whole seconds before
// halving.
func HalfCycle(rays *scan.Rays) (time.Duration, error) {
	if rays.Len() == 0 {
		return 0, fmt.Errorf("half cycle: %w", scan.ErrInsufficientData)
	}
	ref := rays.Azimuth[0]
	var prev time.Time
	var sum time.Duration
	n := 0
	for i, a := range rays.Azimuth {
		if a != ref {
			continue
		}
		if n > 0 {
			sum += rays.Time[i].Sub(prev)
		}
		prev = rays.Time[i]
		n++
	}
	if n < 2 {
		return 0, fmt.Errorf("azimuth %.1f seen %d times, cannot estimate the scan cycle: %w", ref, n, scan.ErrInsufficientData)
	}
	mean := sum / time.Duration(n-1)
	whole := mean.Truncate(time.Second)
	return whole / 2, nil
}

// ByScanCycle arranges single-elevation PPI rays on an azimuth axis. Every
// slanted ray time becomes a row; each azimuth column holds the nearest
// ray of that azimuth within half a scan cycle.
func ByScanCycle(rays *scan.Rays, f scan.Filter, logf monitoring.Logger) (*Restructured, error) {
	logf = monitoring.Named(logf, "restructure")
	if rays.Len() == 0 {
		return nil, fmt.Errorf("by scan cycle: %w", scan.ErrInsufficientData)
	}
	elv := scan.UniqueSorted(rays.Elevation)
	if len(elv) > 1 {
		return nil, fmt.Errorf("by scan cycle: %d elevations in one dataset: %w", len(elv), scan.ErrInvalidInput)
	}
	if scan.IsVertical(elv[0]) {
		return nil, fmt.Errorf("by scan cycle: 90 degree elevation cannot resolve horizontal wind: %w", scan.ErrInvalidInput)
	}
	half, err := HalfCycle(rays)
	if err != nil {
		return nil, err
	}
	logf("half scan cycle %s", half)

	m := &scan.Merged{Slanted: rays}
	r := &Restructured{
		Time:      append([]time.Time(nil), rays.Time...),
		Range:     append([]float64(nil), rays.Range...),
		Azimuth:   scan.UniqueSorted(rays.Azimuth),
		Elevation: elv,
	}
	nT, nR, nA := len(r.Time), len(r.Range), len(r.Azimuth)
	v := dataset.NewVariable(scan.VarRadialWindSpeed, []string{DimTime, DimRange, DimAzimuth, DimElev}, nT, nR, nA, 1)
	v.Attrs = dataset.Attrs{"standard_name": "radial_wind_speed", "units": "m s-1"}
	for a, azm := range r.Azimuth {
		obs, err := scan.RadialObs(m, scan.VarRadialWindSpeed, elv[0], azm, f)
		if err != nil {
			return nil, fmt.Errorf("by scan cycle: azimuth %.1f: %w", azm, err)
		}
		idx := resample.NearestMerge(r.Time, obs.Time, half)
		for t, j := range idx {
			if j == resample.Missing {
				continue
			}
			for g := 0; g < nR; g++ {
				v.Data.Elements[(t*nR+g)*nA+a] = obs.Values[j][g]
			}
		}
	}
	r.Slanted = v
	return r, nil
}

var horizontalVars = []string{
	"horizontal_wind_speed",
	"horizontal_wind_direction",
	"meridional_wind",
	"zonal_wind",
}

// ExtractWind joins horizontal wind retrieved from a single-elevation PPI
// with the zenith beam. Slanted gates are converted to heights with
// sin(elevation)·range and nearest-matched onto the zenith gates; heights
// outside the slanted span are missing. ExtractFull keeps the native time
// axes (time for horizontal wind, time90 for vertical); ExtractCompact
// nearest-matches the horizontal profiles onto the zenith times.
func ExtractWind(wind *dataset.Dataset, elevation float64, vertical *scan.Rays, method string) (*dataset.Dataset, error) {
	if method != ExtractFull && method != ExtractCompact {
		return nil, fmt.Errorf("extract wind: unknown method %q: %w", method, scan.ErrInvalidInput)
	}
	if vertical.Len() == 0 {
		return nil, fmt.Errorf("extract wind: vertical_wind_speed: %w", scan.ErrMissingVariable)
	}
	tc, ok := wind.Coords[DimTime]
	rc, ok2 := wind.Coords[DimRange]
	if !ok || !ok2 {
		return nil, fmt.Errorf("extract wind: horizontal wind needs time and range axes: %w", scan.ErrInvalidInput)
	}

	heights := vertical.Range
	slantH := make([]float64, rc.Len())
	s := math.Sin(scan.Deg2Rad(elevation))
	for g, x := range rc.Values {
		slantH[g] = x * s
	}
	gIdx := nearestInside(heights, slantH)

	out := dataset.New()
	out.AddCoord(dataset.NewCoord(DimRange, heights, dataset.Attrs{"units": "m", "standard_name": "height"}))
	out.MergeAttrs(wind.Attrs)

	timeIdx := make([]int, tc.Len())
	for i := range timeIdx {
		timeIdx[i] = i
	}
	outTimes := tc.Times
	vertDim := DimTime90
	if method == ExtractCompact {
		timeIdx = nearestTimeInside(vertical.Time, tc.Times)
		outTimes = vertical.Time
		vertDim = DimTime
	} else {
		out.AddCoord(dataset.NewTimeCoord(DimTime90, vertical.Time))
	}
	out.AddCoord(dataset.NewTimeCoord(DimTime, outTimes))

	for _, name := range horizontalVars {
		src, ok := wind.Var(name)
		if !ok {
			return nil, fmt.Errorf("extract wind: %s: %w", name, scan.ErrMissingVariable)
		}
		if len(src.Dims) < 2 || src.Dims[0] != DimTime || src.Dims[1] != DimRange {
			return nil, fmt.Errorf("extract wind: %s has dims %v: %w", name, src.Dims, scan.ErrInvalidInput)
		}
		// trailing single-elevation axis, if any, is dropped
		stride := 1
		for _, n := range src.Shape()[2:] {
			stride *= n
		}
		nR := rc.Len()
		dst := dataset.NewVariable(name, []string{DimTime, DimRange}, len(outTimes), len(heights))
		dst.Attrs = src.Attrs.Clone()
		for i, j := range timeIdx {
			if j == resample.Missing {
				continue
			}
			for h, g := range gIdx {
				if g == resample.Missing {
					continue
				}
				dst.Set(src.Data.Elements[(j*nR+g)*stride], i, h)
			}
		}
		if err := out.AddVar(dst); err != nil {
			return nil, err
		}
	}

	w := dataset.FromMatrix("vertical_wind_speed", [2]string{vertDim, DimRange}, vertical.RadialWindSpeed)
	w.Attrs = dataset.Attrs{"standard_name": "upward_air_velocity", "units": "m s-1"}
	if err := out.AddVar(w); err != nil {
		return nil, err
	}
	return out, nil
}

// nearestTimeInside is the time analogue of nearestInside: targets outside
// the source span get Missing.
func nearestTimeInside(target, source []time.Time) []int {
	idx := resample.NearestDense(target, source, time.Duration(math.MaxInt64))
	if len(source) == 0 {
		return idx
	}
	lo, hi := source[0], source[0]
	for _, t := range source[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	for i, t := range target {
		if t.Before(lo) || t.After(hi) {
			idx[i] = resample.Missing
		}
	}
	return idx
}

// nearestInside maps each target onto the nearest source value, or Missing
// when the target lies outside the finite source span.
func nearestInside(target, source []float64) []int {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range source {
		if math.IsNaN(s) {
			continue
		}
		lo, hi = math.Min(lo, s), math.Max(hi, s)
	}
	idx := resample.NearestValue(target, source, math.Inf(1))
	for i, x := range target {
		if x < lo || x > hi {
			idx[i] = resample.Missing
		}
	}
	return idx
}
