// Package scan holds the raw Doppler lidar observations: one Scan per file,
// and the merged vertical/slanted ray sets built from a batch of scans.
//
// Ray-by-gate variables are stored as [ray][gate] matrices. Missing values
// are NaN throughout.
package scan

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Variable names shared by readers, filters and restructuring.
const (
	VarRadialWindSpeed   = "radial_wind_speed"
	VarStatus            = "radial_wind_speed_status"
	VarCNR               = "cnr"
	VarRelativeBeta      = "relative_beta"
	VarMeasurementHeight = "measurement_height"

	// Suffix marks the zenith counterpart of a variable in a merged set,
	// e.g. radial_wind_speed90.
	Suffix90 = "90"
)

// Scan is one file's worth of rays.
type Scan struct {
	Source string

	Time      []time.Time // per ray
	Azimuth   []float64   // per ray, degrees
	Elevation []float64   // per ray, degrees
	Range     []float64   // per gate, metres along the beam

	RadialWindSpeed   [][]float64 // ray x gate, m s-1
	Status            [][]float64 // ray x gate, 1 = valid; optional
	CNR               [][]float64 // ray x gate, dB; optional
	RelativeBeta      [][]float64 // ray x gate; optional
	MeasurementHeight [][]float64 // ray x gate, metres; optional

	// MeanTime tags every ray with the mean time of its complete scan
	// cycle. It is only populated for DBS scans.
	MeanTime []time.Time
}

// NumRays returns the ray count.
func (s *Scan) NumRays() int { return len(s.Time) }

// NumGates returns the range-gate count.
func (s *Scan) NumGates() int { return len(s.Range) }

// Validate checks that every per-ray and ray-by-gate variable agrees with the
// timestamp count and gate count.
func (s *Scan) Validate() error {
	if s == nil {
		return fmt.Errorf("nil scan: %w", ErrInvalidInput)
	}
	n := len(s.Time)
	if n == 0 {
		return fmt.Errorf("scan %q has no rays: %w", s.Source, ErrInsufficientData)
	}
	if len(s.Azimuth) != n || len(s.Elevation) != n {
		return fmt.Errorf("scan %q: %d timestamps but %d azimuths and %d elevations: %w",
			s.Source, n, len(s.Azimuth), len(s.Elevation), ErrInvalidInput)
	}
	if s.RadialWindSpeed == nil {
		return fmt.Errorf("scan %q: %s: %w", s.Source, VarRadialWindSpeed, ErrMissingVariable)
	}
	if s.MeanTime != nil && len(s.MeanTime) != n {
		return fmt.Errorf("scan %q: %d mean-time tags for %d rays: %w", s.Source, len(s.MeanTime), n, ErrInvalidInput)
	}
	for name, m := range map[string][][]float64{
		VarRadialWindSpeed:   s.RadialWindSpeed,
		VarStatus:            s.Status,
		VarCNR:               s.CNR,
		VarRelativeBeta:      s.RelativeBeta,
		VarMeasurementHeight: s.MeasurementHeight,
	} {
		if m == nil {
			continue
		}
		if err := checkMatrix(m, n, len(s.Range)); err != nil {
			return fmt.Errorf("scan %q: %s: %w", s.Source, name, err)
		}
	}
	return nil
}

func checkMatrix(m [][]float64, rays, gates int) error {
	if len(m) != rays {
		return fmt.Errorf("%d rows for %d rays: %w", len(m), rays, ErrInvalidInput)
	}
	for i, row := range m {
		if len(row) != gates {
			return fmt.Errorf("ray %d has %d gates, want %d: %w", i, len(row), gates, ErrInvalidInput)
		}
	}
	return nil
}

// NormalizeAngles rounds azimuth and elevation in place and wraps azimuth
// 360 to 0. It must run before any equality comparison on angles.
func (s *Scan) NormalizeAngles(azimuthDecimals, elevationDecimals int) {
	for i := range s.Azimuth {
		s.Azimuth[i] = NormalizeAzimuth(s.Azimuth[i], azimuthDecimals)
	}
	for i := range s.Elevation {
		s.Elevation[i] = NormalizeElevation(s.Elevation[i], elevationDecimals)
	}
}

// Rays is a set of rays sharing a gate axis: either the slanted or the
// vertical part of a merged batch.
type Rays struct {
	Time      []time.Time
	Azimuth   []float64
	Elevation []float64
	Range     []float64

	RadialWindSpeed   [][]float64
	Status            [][]float64
	CNR               [][]float64
	RelativeBeta      [][]float64
	MeasurementHeight [][]float64

	MeanTime []time.Time
}

// Len returns the ray count.
func (r *Rays) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Time)
}

// NumGates returns the range-gate count.
func (r *Rays) NumGates() int {
	if r == nil {
		return 0
	}
	return len(r.Range)
}

// Variable returns the ray-by-gate matrix for a variable name.
func (r *Rays) Variable(name string) ([][]float64, error) {
	var m [][]float64
	switch name {
	case VarRadialWindSpeed:
		m = r.RadialWindSpeed
	case VarStatus:
		m = r.Status
	case VarCNR:
		m = r.CNR
	case VarRelativeBeta:
		m = r.RelativeBeta
	case VarMeasurementHeight:
		m = r.MeasurementHeight
	default:
		return nil, fmt.Errorf("unknown variable %q: %w", name, ErrMissingVariable)
	}
	if m == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingVariable)
	}
	return m, nil
}

// Heights returns the measurement height of every gate of ray i. When the
// file did not carry measurement_height it is derived from range and
// elevation.
func (r *Rays) Heights(i int) []float64 {
	if r.MeasurementHeight != nil {
		return append([]float64(nil), r.MeasurementHeight[i]...)
	}
	out := make([]float64, len(r.Range))
	s := math.Sin(Deg2Rad(r.Elevation[i]))
	for g, rg := range r.Range {
		out[g] = rg * s
	}
	return out
}

// Select returns the rays whose index satisfies keep, preserving order.
func (r *Rays) Select(keep func(i int) bool) *Rays {
	idx := make([]int, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return r.subset(idx)
}

func (r *Rays) subset(idx []int) *Rays {
	out := &Rays{
		Time:      make([]time.Time, len(idx)),
		Azimuth:   make([]float64, len(idx)),
		Elevation: make([]float64, len(idx)),
		Range:     append([]float64(nil), r.Range...),
	}
	for j, i := range idx {
		out.Time[j] = r.Time[i]
		out.Azimuth[j] = r.Azimuth[i]
		out.Elevation[j] = r.Elevation[i]
	}
	out.RadialWindSpeed = pickRows(r.RadialWindSpeed, idx)
	out.Status = pickRows(r.Status, idx)
	out.CNR = pickRows(r.CNR, idx)
	out.RelativeBeta = pickRows(r.RelativeBeta, idx)
	out.MeasurementHeight = pickRows(r.MeasurementHeight, idx)
	if r.MeanTime != nil {
		out.MeanTime = make([]time.Time, len(idx))
		for j, i := range idx {
			out.MeanTime[j] = r.MeanTime[i]
		}
	}
	return out
}

func pickRows(m [][]float64, idx []int) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(idx))
	for j, i := range idx {
		out[j] = append([]float64(nil), m[i]...)
	}
	return out
}

// UniqueSorted returns the sorted distinct finite values of xs.
func UniqueSorted(xs []float64) []float64 {
	seen := make(map[float64]struct{}, len(xs))
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	sort.Float64s(out)
	return out
}

// Merged is a batch of scans split into slanted rays and the zenith
// counterpart. Vertical variables are addressed with the "90" suffix.
type Merged struct {
	Slanted  *Rays
	Vertical *Rays
}

// Has reports whether a variable is present. Names ending in "90" refer to
// the vertical rays, e.g. Has("radial_wind_speed90").
func (m *Merged) Has(name string) bool {
	_, err := m.Variable(name)
	return err == nil
}

// Variable resolves a possibly "90"-suffixed variable name.
func (m *Merged) Variable(name string) ([][]float64, error) {
	rays, base := m.Slanted, name
	if len(name) > len(Suffix90) && name[len(name)-len(Suffix90):] == Suffix90 {
		rays, base = m.Vertical, name[:len(name)-len(Suffix90)]
	}
	if rays == nil || rays.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingVariable)
	}
	v, err := rays.Variable(base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingVariable)
	}
	return v, nil
}
