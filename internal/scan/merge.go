package scan

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/lidarwind/internal/monitoring"
)

// MergeOptions controls how scans are combined.
type MergeOptions struct {
	AzimuthDecimals   int
	ElevationDecimals int
	Logf              monitoring.Logger
}

// DefaultMergeOptions rounds both angles to 0.1 degree.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{AzimuthDecimals: 1, ElevationDecimals: 1}
}

// Merger accumulates scans into slanted and vertical ray sets.
type Merger struct {
	opts     MergeOptions
	logf     monitoring.Logger
	slanted  *Rays
	vertical *Rays
	added    int
}

// NewMerger returns an empty Merger.
func NewMerger(opts MergeOptions) *Merger {
	return &Merger{opts: opts, logf: monitoring.Named(opts.Logf, "merge")}
}

// Add normalizes the angles of a copy of s and appends its rays. The scan
// itself is not modified. A scan whose gate axis disagrees with what was
// already merged is rejected.
func (m *Merger) Add(s *Scan) error {
	if err := s.Validate(); err != nil {
		return err
	}
	azm := make([]float64, len(s.Azimuth))
	elv := make([]float64, len(s.Elevation))
	for i := range azm {
		azm[i] = NormalizeAzimuth(s.Azimuth[i], m.opts.AzimuthDecimals)
		elv[i] = NormalizeElevation(s.Elevation[i], m.opts.ElevationDecimals)
	}
	all := &Rays{
		Time:              s.Time,
		Azimuth:           azm,
		Elevation:         elv,
		Range:             s.Range,
		RadialWindSpeed:   s.RadialWindSpeed,
		Status:            s.Status,
		CNR:               s.CNR,
		RelativeBeta:      s.RelativeBeta,
		MeasurementHeight: s.MeasurementHeight,
		MeanTime:          s.MeanTime,
	}
	vert := all.Select(func(i int) bool { return IsVertical(elv[i]) })
	slant := all.Select(func(i int) bool { return !IsVertical(elv[i]) })

	if err := compatible(m.vertical, vert); err != nil {
		return fmt.Errorf("scan %q vertical rays: %w", s.Source, err)
	}
	if err := compatible(m.slanted, slant); err != nil {
		return fmt.Errorf("scan %q slanted rays: %w", s.Source, err)
	}
	if vert.Len() == 0 {
		m.logf("%s has no 90 degree rays", s.Source)
	}
	if slant.Len() == 0 {
		m.logf("%s only has 90 degree rays", s.Source)
	}
	m.vertical = concatRays(m.vertical, vert)
	m.slanted = concatRays(m.slanted, slant)
	m.added++
	return nil
}

func compatible(acc, next *Rays) error {
	if acc.Len() == 0 || next.Len() == 0 {
		return nil
	}
	if acc.NumGates() != next.NumGates() {
		return fmt.Errorf("%d gates, merged set has %d: %w", next.NumGates(), acc.NumGates(), ErrInvalidInput)
	}
	return nil
}

// Result sorts both ray sets by time and drops repeated timestamps. It
// fails when nothing usable was added.
func (m *Merger) Result() (*Merged, error) {
	if m.slanted.Len() == 0 && m.vertical.Len() == 0 {
		return nil, fmt.Errorf("no rays merged from %d scans: %w", m.added, ErrInsufficientData)
	}
	out := &Merged{Slanted: sortRays(m.slanted, m.logf), Vertical: sortRays(m.vertical, m.logf)}
	m.logf("merged %d scans: %d slanted rays, %d vertical rays", m.added, out.Slanted.Len(), out.Vertical.Len())
	return out, nil
}

// Merge combines scans in one call. Scans that fail validation or do not fit
// the merged gate axis are logged and skipped.
func Merge(scans []*Scan, opts MergeOptions) (*Merged, error) {
	if len(scans) == 0 {
		return nil, ErrNoFiles
	}
	m := NewMerger(opts)
	for _, s := range scans {
		if err := m.Add(s); err != nil {
			m.logf("skipping scan: %v", err)
		}
	}
	return m.Result()
}

func concatRays(a, b *Rays) *Rays {
	if a.Len() == 0 {
		if b.Len() == 0 {
			return a
		}
		return b.subset(seq(b.Len()))
	}
	if b.Len() == 0 {
		return a
	}
	gates := a.NumGates()
	out := &Rays{
		Time:      append(append([]time.Time(nil), a.Time...), b.Time...),
		Azimuth:   append(append([]float64(nil), a.Azimuth...), b.Azimuth...),
		Elevation: append(append([]float64(nil), a.Elevation...), b.Elevation...),
		Range:     a.Range,
	}
	out.RadialWindSpeed = concatRows(a.RadialWindSpeed, b.RadialWindSpeed, a.Len(), b.Len(), gates)
	out.Status = concatRows(a.Status, b.Status, a.Len(), b.Len(), gates)
	out.CNR = concatRows(a.CNR, b.CNR, a.Len(), b.Len(), gates)
	out.RelativeBeta = concatRows(a.RelativeBeta, b.RelativeBeta, a.Len(), b.Len(), gates)
	out.MeasurementHeight = concatRows(a.MeasurementHeight, b.MeasurementHeight, a.Len(), b.Len(), gates)
	if a.MeanTime != nil || b.MeanTime != nil {
		out.MeanTime = append(timesOrZero(a.MeanTime, a.Len()), timesOrZero(b.MeanTime, b.Len())...)
	}
	return out
}

func concatRows(a, b [][]float64, na, nb, gates int) [][]float64 {
	if a == nil && b == nil {
		return nil
	}
	out := make([][]float64, 0, na+nb)
	out = append(out, rowsOrNaN(a, na, gates)...)
	out = append(out, rowsOrNaN(b, nb, gates)...)
	return out
}

func rowsOrNaN(m [][]float64, n, gates int) [][]float64 {
	if m != nil {
		return m
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = NaNs(gates)
	}
	return out
}

func timesOrZero(ts []time.Time, n int) []time.Time {
	if ts != nil {
		return ts
	}
	return make([]time.Time, n)
}

func sortRays(r *Rays, logf monitoring.Logger) *Rays {
	if r.Len() == 0 {
		return r
	}
	idx := seq(r.Len())
	sort.SliceStable(idx, func(a, b int) bool { return r.Time[idx[a]].Before(r.Time[idx[b]]) })
	kept := idx[:0:0]
	for _, i := range idx {
		if len(kept) > 0 && r.Time[kept[len(kept)-1]].Equal(r.Time[i]) {
			continue
		}
		kept = append(kept, i)
	}
	if dropped := len(idx) - len(kept); dropped > 0 {
		logf("dropped %d rays with repeated timestamps", dropped)
	}
	return r.subset(kept)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

var nan = math.NaN()

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Concat joins merged batches in the given order. Parts must share the
// gate axis; the result is time sorted like Merger.Result.
func Concat(parts []*Merged, logf monitoring.Logger) (*Merged, error) {
	logf = monitoring.Named(logf, "merge")
	var slanted, vertical *Rays
	for i, p := range parts {
		if p == nil {
			continue
		}
		if err := compatible(slanted, p.Slanted); err != nil {
			return nil, fmt.Errorf("part %d slanted rays: %w", i, err)
		}
		if err := compatible(vertical, p.Vertical); err != nil {
			return nil, fmt.Errorf("part %d vertical rays: %w", i, err)
		}
		slanted = concatRays(slanted, p.Slanted)
		vertical = concatRays(vertical, p.Vertical)
	}
	if slanted.Len() == 0 && vertical.Len() == 0 {
		return nil, fmt.Errorf("concat %d parts: %w", len(parts), ErrInsufficientData)
	}
	return &Merged{Slanted: sortRays(slanted, logf), Vertical: sortRays(vertical, logf)}, nil
}
