package retrieval

import (
	"fmt"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// RetrieveWindFFT retrieves horizontal wind from the slanted array of r and
// copies the zenith velocity and relative backscatter alongside. With one
// slanted elevation the elv axis is squeezed out.
func RetrieveWindFFT(r *restructure.Restructured, logf monitoring.Logger) (*dataset.Dataset, error) {
	logf = monitoring.Named(logf, "fft")
	if r == nil || r.Slanted == nil {
		return nil, fmt.Errorf("retrieve wind: no restructured data: %w", scan.ErrInvalidInput)
	}
	logf("retrieving horizontal wind from %d azimuths", len(r.Azimuth))
	h, err := FFTWind(r.Slanted, HarmonicOptions{
		AzimuthDim:   restructure.DimAzimuth,
		ElevationDim: restructure.DimElev,
		Elevations:   r.Elevation,
	})
	if err != nil {
		return nil, err
	}

	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord(restructure.DimTime, r.Time))
	ds.AddCoord(dataset.NewCoord(restructure.DimRange, r.Range, nil))
	squeeze := len(r.Elevation) == 1
	if !squeeze {
		ds.AddCoord(dataset.NewCoord(restructure.DimElev, r.Elevation, dataset.Attrs{"units": "degree"}))
	} else {
		ds.Attrs["elevation"] = fmt.Sprintf("%g", r.Elevation[0])
	}
	for _, v := range h.Variables() {
		if squeeze {
			v = dropTrailing(v)
		}
		if err := ds.AddVar(v); err != nil {
			return nil, err
		}
	}

	if r.Vertical != nil {
		logf("selecting the vertical wind observations")
		ds.AddCoord(dataset.NewTimeCoord(restructure.DimTime90, r.Time90))
		if err := ds.AddVar(renamed(r.Vertical, VarVertical, restructure.DimTime90, restructure.DimRange)); err != nil {
			return nil, err
		}
		if r.RelativeBeta90 != nil {
			if err := ds.AddVar(renamed(r.RelativeBeta90, VarRelativeBeta, restructure.DimTime90, restructure.DimRange)); err != nil {
				return nil, err
			}
		}
	}
	LoadAttributes(ds, "Wind properties")
	return ds, nil
}

// dropTrailing removes a trailing axis of length one.
func dropTrailing(v *dataset.Variable) *dataset.Variable {
	shape := v.Shape()
	out := dataset.NewVariable(v.Name, v.Dims[:len(v.Dims)-1], shape[:len(shape)-1]...)
	copy(out.Data.Elements, v.Data.Elements)
	out.Attrs = v.Attrs.Clone()
	return out
}

func renamed(v *dataset.Variable, name string, dims ...string) *dataset.Variable {
	out := v.Clone()
	out.Name = name
	out.Dims = append([]string(nil), dims...)
	return out
}
