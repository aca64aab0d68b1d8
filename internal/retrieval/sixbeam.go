package retrieval

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/rolling"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// SixBeam estimates the Reynolds stress tensor from five slanted beams at
// one elevation and the zenith beam. The coefficient matrix depends only on
// the geometry and is inverted once.
type SixBeam struct {
	Elevation float64
	Azimuths  []float64

	// Window and Window90 are the rolling variance windows in profiles.
	Window   int
	Window90 int

	m    *mat.Dense
	mInv *mat.Dense
	logf monitoring.Logger
}

// CoefficientRow maps the six tensor components (u, v, w, uv, uw, vw) onto
// the radial velocity variance of a beam at elevation phi and azimuth
// theta, both in degrees.
func CoefficientRow(phi, theta float64) []float64 {
	p, t := scan.Deg2Rad(phi), scan.Deg2Rad(theta)
	cp, sp := math.Cos(p), math.Sin(p)
	ct, st := math.Cos(t), math.Sin(t)
	return []float64{
		cp * cp * st * st,
		cp * cp * ct * ct,
		sp * sp,
		2 * cp * cp * ct * st,
		2 * cp * sp * st,
		2 * cp * sp * ct,
	}
}

// NewSixBeam builds and inverts the coefficient matrix.
func NewSixBeam(elevation float64, azimuths []float64, window, window90 int, logf monitoring.Logger) (*SixBeam, error) {
	logf = monitoring.Named(logf, "sixbeam")
	if len(azimuths) != 5 {
		return nil, fmt.Errorf("six beam: %d slanted azimuths, need 5: %w", len(azimuths), scan.ErrInvalidInput)
	}
	if window < 1 || window90 < 1 {
		return nil, fmt.Errorf("six beam: variance windows must be positive: %w", scan.ErrInvalidInput)
	}
	m := mat.NewDense(6, 6, nil)
	for i, az := range azimuths {
		m.SetRow(i, CoefficientRow(elevation, az))
	}
	m.SetRow(5, CoefficientRow(90, 0))

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("six beam: elevation %g azimuths %v: %v: %w", elevation, azimuths, err, scan.ErrSingularGeometry)
	}
	logf("coefficient matrix built for elevation %g and %d azimuths", elevation, len(azimuths))
	return &SixBeam{
		Elevation: elevation,
		Azimuths:  append([]float64(nil), azimuths...),
		Window:    window,
		Window90:  window90,
		m:         m,
		mInv:      &inv,
		logf:      logf,
	}, nil
}

// NewSixBeamFor builds the estimator from the geometry of r.
func NewSixBeamFor(r *restructure.Restructured, window, window90 int, logf monitoring.Logger) (*SixBeam, error) {
	if r == nil {
		return nil, fmt.Errorf("six beam: no restructured data: %w", scan.ErrInvalidInput)
	}
	if len(r.Elevation) != 1 {
		return nil, fmt.Errorf("six beam: %d slanted elevations, need 1: %w", len(r.Elevation), scan.ErrInvalidInput)
	}
	return NewSixBeam(r.Elevation[0], r.Azimuth, window, window90, logf)
}

// Matrix returns a copy of the coefficient matrix.
func (s *SixBeam) Matrix() *mat.Dense { return mat.DenseCopyOf(s.m) }

// Inverse returns a copy of the inverted coefficient matrix.
func (s *SixBeam) Inverse() *mat.Dense { return mat.DenseCopyOf(s.mInv) }

// Retrieve computes var_u, var_v, var_w, var_uv, var_uw and var_vw over
// the zenith time axis and the slanted range axis.
func (s *SixBeam) Retrieve(r *restructure.Restructured) (*dataset.Dataset, error) {
	if r == nil || r.Slanted == nil {
		return nil, fmt.Errorf("six beam: no restructured data: %w", scan.ErrInvalidInput)
	}
	if r.Vertical == nil {
		return nil, fmt.Errorf("six beam: %s%s: %w", scan.VarRadialWindSpeed, scan.Suffix90, scan.ErrMissingVariable)
	}
	if len(r.Azimuth) != len(s.Azimuths) || len(r.Elevation) != 1 {
		return nil, fmt.Errorf("six beam: data has %d azimuths and %d elevations: %w", len(r.Azimuth), len(r.Elevation), scan.ErrInvalidInput)
	}
	nT, nR, nA := len(r.Time90), len(r.Range), len(r.Azimuth)
	if nT == 0 {
		return nil, fmt.Errorf("six beam: no zenith profiles: %w", scan.ErrInsufficientData)
	}

	slantedVar := make([][][]float64, nA) // azimuth, gate, time90
	idx := onSpan(r.Time90, r.Time)
	lane := make([]float64, nT)
	for a := 0; a < nA; a++ {
		slantedVar[a] = make([][]float64, nR)
		for g := 0; g < nR; g++ {
			for k, j := range idx {
				lane[k] = math.NaN()
				if j != resample.Missing {
					lane[k] = r.SlantedAt(j, g, a, 0)
				}
			}
			slantedVar[a][g] = rolling.Variance(lane, s.Window, minPeriods(s.Window))
		}
	}
	verticalVar := make([][]float64, nR)
	for g := 0; g < nR; g++ {
		for k := 0; k < nT; k++ {
			// sign flip for the downward pointing convention of the zenith row
			lane[k] = -1 * r.Vertical.At(k, g)
		}
		verticalVar[g] = rolling.Variance(lane, s.Window90, minPeriods(s.Window90))
	}

	out := make([]*dataset.Variable, len(StressComponents))
	for c, name := range StressComponents {
		out[c] = dataset.NewVariable(name, []string{"time", "range"}, nT, nR)
		out[c].Attrs = AttrsFor(name)
	}
	obs := mat.NewVecDense(6, nil)
	var sigma mat.VecDense
	for k := 0; k < nT; k++ {
		for g := 0; g < nR; g++ {
			missing := false
			for a := 0; a < nA; a++ {
				x := slantedVar[a][g][k]
				missing = missing || math.IsNaN(x)
				obs.SetVec(a, x)
			}
			x := verticalVar[g][k]
			missing = missing || math.IsNaN(x)
			obs.SetVec(5, x)
			if missing {
				continue
			}
			sigma.MulVec(s.mInv, obs)
			for c := range out {
				out[c].Set(sigma.AtVec(c), k, g)
			}
		}
	}

	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord("time", r.Time90))
	ds.AddCoord(dataset.NewCoord("range", r.Range, nil))
	for _, v := range out {
		if err := ds.AddVar(v); err != nil {
			return nil, err
		}
	}
	LoadAttributes(ds, "Reynolds stress tensor")
	s.logf("stress tensor for %d profiles and %d gates", nT, nR)
	return ds, nil
}

func minPeriods(window int) int {
	return int(float64(window) * 0.3)
}

// onSpan nearest-matches target onto sorted source, marking targets
// outside the source span as missing.
func onSpan(target, source []time.Time) []int {
	idx := resample.NearestMerge(target, source, time.Duration(math.MaxInt64))
	if len(source) == 0 {
		return idx
	}
	first, last := source[0], source[len(source)-1]
	for i, t := range target {
		if t.Before(first) || t.After(last) {
			idx[i] = resample.Missing
		}
	}
	return idx
}
