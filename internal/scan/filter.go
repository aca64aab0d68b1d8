package scan

import (
	"fmt"
	"strings"
	"time"
)

// Filter is the shared quality filter: status flag and an optional
// carrier-to-noise threshold.
type Filter struct {
	// Status masks every gate whose status flag is not exactly 1.
	Status bool
	// CNR, when set, masks every gate with CNR <= *CNR (or NaN CNR).
	CNR *float64
}

// Mask returns a filtered copy of a ray-by-gate variable.
func (f Filter) Mask(r *Rays, variable string) ([][]float64, error) {
	src, err := r.Variable(variable)
	if err != nil {
		return nil, err
	}
	var status, cnr [][]float64
	if f.Status {
		if status, err = r.Variable(VarStatus); err != nil {
			return nil, fmt.Errorf("status filter: %w", err)
		}
	}
	if f.CNR != nil {
		if cnr, err = r.Variable(VarCNR); err != nil {
			return nil, fmt.Errorf("cnr filter: %w", err)
		}
	}
	out := make([][]float64, len(src))
	for i, row := range src {
		dst := append([]float64(nil), row...)
		for g := range dst {
			if status != nil && status[i][g] != 1 {
				dst[g] = nan
			}
			if cnr != nil && !(cnr[i][g] > *f.CNR) {
				dst[g] = nan
			}
		}
		out[i] = dst
	}
	return out, nil
}

// Series is a filtered variable restricted to a subset of rays.
type Series struct {
	Time   []time.Time
	Values [][]float64 // ray x gate
}

// RadialObs returns the filtered slanted observations of one
// elevation/azimuth pair.
func RadialObs(m *Merged, variable string, elevation, azimuth float64, f Filter) (*Series, error) {
	if m == nil || m.Slanted.Len() == 0 {
		return nil, fmt.Errorf("slanted %s: %w", variable, ErrMissingVariable)
	}
	sel := m.Slanted.Select(func(i int) bool {
		return m.Slanted.Elevation[i] == elevation && m.Slanted.Azimuth[i] == azimuth
	})
	vals, err := f.Mask(sel, variable)
	if err != nil {
		return nil, err
	}
	return &Series{Time: sel.Time, Values: vals}, nil
}

// VerticalObs returns the filtered zenith observations of a variable. The
// name may carry the "90" suffix.
func VerticalObs(m *Merged, variable string, f Filter) (*Series, error) {
	base := strings.TrimSuffix(variable, Suffix90)
	if m == nil || m.Vertical.Len() == 0 {
		return nil, fmt.Errorf("%s%s: %w", base, Suffix90, ErrMissingVariable)
	}
	vals, err := f.Mask(m.Vertical, base)
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", base, Suffix90, err)
	}
	return &Series{Time: m.Vertical.Time, Values: vals}, nil
}
