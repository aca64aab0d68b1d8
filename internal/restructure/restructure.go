// Package restructure reshapes merged rays into the regular arrays the
// wind estimators consume: a slanted (time, range, azm, elv) array and a
// vertical (time90, range90) array.
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

// Dimension names of the restructured arrays.
const (
	DimTime    = "time"
	DimRange   = "range"
	DimAzimuth = "azm"
	DimElev    = "elv"
	DimTime90  = "time90"
	DimRange90 = "range90"
)

// Options configure New.
type Options struct {
	Filter scan.Filter
	// Check90 requires radial_wind_speed90 in the input.
	Check90 bool
	// Tolerance bounds the nearest-ray fill of the slanted array. Zero
	// always takes the nearest ray, however far.
	Tolerance time.Duration
	Logf      monitoring.Logger
}

// DefaultOptions filters on status and requires the vertical beam.
func DefaultOptions() Options {
	return Options{Filter: scan.Filter{Status: true}, Check90: true}
}

// Restructured holds the regular arrays built from one merged batch.
// Filters mutate the arrays in place.
type Restructured struct {
	Time      []time.Time
	Range     []float64
	Azimuth   []float64 // sorted, unique
	Elevation []float64 // sorted, unique

	// Slanted is the filtered radial wind speed over (time, range, azm, elv).
	Slanted *dataset.Variable

	Time90  []time.Time
	Range90 []float64
	// Vertical is the filtered zenith radial wind speed over (time90, range90).
	// Nil when the batch has no vertical beam.
	Vertical *dataset.Variable
	// RelativeBeta90 is nil when the files carried no relative_beta.
	RelativeBeta90 *dataset.Variable
}

// New restructures a merged batch.
func New(m *scan.Merged, opts Options) (*Restructured, error) {
	logf := monitoring.Named(opts.Logf, "restructure")
	if m == nil {
		return nil, fmt.Errorf("restructure: nil merged data: %w", scan.ErrInvalidInput)
	}
	if opts.Check90 {
		if !m.Has(scan.VarRadialWindSpeed + scan.Suffix90) {
			return nil, fmt.Errorf("restructure: %s%s: %w", scan.VarRadialWindSpeed, scan.Suffix90, scan.ErrMissingVariable)
		}
	} else {
		logf("vertical component check was ignored")
	}
	if m.Slanted.Len() == 0 {
		return nil, fmt.Errorf("restructure: no slanted rays: %w", scan.ErrInsufficientData)
	}

	r := &Restructured{
		Time:      append([]time.Time(nil), m.Slanted.Time...),
		Azimuth:   scan.UniqueSorted(m.Slanted.Azimuth),
		Elevation: scan.UniqueSorted(m.Slanted.Elevation),
	}
	nGates := m.Slanted.NumGates()
	r.Range = append([]float64(nil), m.Slanted.Range...)
	if m.Vertical.Len() > 0 {
		if m.Vertical.NumGates() < nGates {
			return nil, fmt.Errorf("restructure: %d vertical gates for %d slanted gates: %w",
				m.Vertical.NumGates(), nGates, scan.ErrInvalidInput)
		}
		// both arrays are labelled with the zenith gate axis
		r.Range = append([]float64(nil), m.Vertical.Range[:nGates]...)
	}
	logf("slanted grid: %d times, %d gates, %d azimuths, %d elevations",
		len(r.Time), nGates, len(r.Azimuth), len(r.Elevation))

	if err := r.fillSlanted(m, opts, logf); err != nil {
		return nil, err
	}
	if m.Vertical.Len() > 0 {
		if err := r.fillVertical(m, opts, logf); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Restructured) fillSlanted(m *scan.Merged, opts Options, logf monitoring.Logger) error {
	nT, nR, nA, nE := len(r.Time), len(r.Range), len(r.Azimuth), len(r.Elevation)
	v := dataset.NewVariable(scan.VarRadialWindSpeed, []string{DimTime, DimRange, DimAzimuth, DimElev}, nT, nR, nA, nE)
	v.Attrs = dataset.Attrs{
		"standard_name": "radial_wind_speed",
		"units":         "m s-1",
		"comments":      "radial wind speed vector.",
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = time.Duration(math.MaxInt64)
	}
	el := v.Data.Elements
	for e, elv := range r.Elevation {
		for a, azm := range r.Azimuth {
			obs, err := scan.RadialObs(m, scan.VarRadialWindSpeed, elv, azm, opts.Filter)
			if err != nil {
				return fmt.Errorf("restructure: elevation %.1f azimuth %.1f: %w", elv, azm, err)
			}
			if len(obs.Time) == 0 {
				continue
			}
			idx := resample.NearestMerge(r.Time, obs.Time, tol)
			for t, j := range idx {
				if j == resample.Missing {
					continue
				}
				row := obs.Values[j]
				for g := 0; g < nR; g++ {
					el[((t*nR+g)*nA+a)*nE+e] = row[g]
				}
			}
		}
	}
	if opts.Tolerance > 0 {
		logf("slanted fill bounded to %s", opts.Tolerance)
	}
	r.Slanted = v
	return nil
}

func (r *Restructured) fillVertical(m *scan.Merged, opts Options, logf monitoring.Logger) error {
	nR := len(r.Range)
	obs, err := scan.VerticalObs(m, scan.VarRadialWindSpeed, opts.Filter)
	if err != nil {
		return fmt.Errorf("restructure: %w", err)
	}
	r.Time90 = append([]time.Time(nil), obs.Time...)
	r.Range90 = append([]float64(nil), m.Vertical.Range[:nR]...)
	r.Vertical = trimmed(scan.VarRadialWindSpeed+scan.Suffix90, obs.Values, nR)
	r.Vertical.Attrs = dataset.Attrs{"standard_name": "radial_wind_speed90", "units": "m s-1"}

	beta, err := scan.VerticalObs(m, scan.VarRelativeBeta, opts.Filter)
	if err != nil {
		logf("no relative backscatter: %v", err)
		return nil
	}
	r.RelativeBeta90 = trimmed(scan.VarRelativeBeta+scan.Suffix90, beta.Values, nR)
	r.RelativeBeta90.Attrs = dataset.Attrs{"standard_name": "relative_beta", "units": "m-1 sr-1"}
	return nil
}

func trimmed(name string, rows [][]float64, nR int) *dataset.Variable {
	v := dataset.NewVariable(name, []string{DimTime90, DimRange90}, len(rows), nR)
	for i, row := range rows {
		copy(v.Data.Elements[i*nR:(i+1)*nR], row[:nR])
	}
	return v
}

// SlantedAt returns the slanted value at (t, g, a, e).
func (r *Restructured) SlantedAt(t, g, a, e int) float64 {
	nR, nA, nE := len(r.Range), len(r.Azimuth), len(r.Elevation)
	return r.Slanted.Data.Elements[((t*nR+g)*nA+a)*nE+e]
}

// Clone deep-copies r so filters can run on an independent copy.
func (r *Restructured) Clone() *Restructured {
	out := &Restructured{
		Time:      append([]time.Time(nil), r.Time...),
		Range:     append([]float64(nil), r.Range...),
		Azimuth:   append([]float64(nil), r.Azimuth...),
		Elevation: append([]float64(nil), r.Elevation...),
		Time90:    append([]time.Time(nil), r.Time90...),
		Range90:   append([]float64(nil), r.Range90...),
	}
	if r.Slanted != nil {
		out.Slanted = r.Slanted.Clone()
	}
	if r.Vertical != nil {
		out.Vertical = r.Vertical.Clone()
	}
	if r.RelativeBeta90 != nil {
		out.RelativeBeta90 = r.RelativeBeta90.Clone()
	}
	return out
}

// Dataset exposes the arrays with their coordinates.
func (r *Restructured) Dataset() (*dataset.Dataset, error) {
	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord(DimTime, r.Time))
	ds.AddCoord(dataset.NewCoord(DimRange, r.Range, dataset.Attrs{"units": "m"}))
	ds.AddCoord(dataset.NewCoord(DimAzimuth, r.Azimuth, dataset.Attrs{"units": "degree"}))
	ds.AddCoord(dataset.NewCoord(DimElev, r.Elevation, dataset.Attrs{"units": "degree"}))
	if err := ds.AddVar(r.Slanted); err != nil {
		return nil, err
	}
	if r.Vertical == nil {
		return ds, nil
	}
	ds.AddCoord(dataset.NewTimeCoord(DimTime90, r.Time90))
	ds.AddCoord(dataset.NewCoord(DimRange90, r.Range90, dataset.Attrs{"units": "m"}))
	if err := ds.AddVar(r.Vertical); err != nil {
		return nil, err
	}
	if r.RelativeBeta90 != nil {
		if err := ds.AddVar(r.RelativeBeta90); err != nil {
			return nil, err
		}
	}
	return ds, nil
}
