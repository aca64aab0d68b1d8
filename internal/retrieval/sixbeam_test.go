package retrieval

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/rolling"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/testutil"
)

var sixAzimuths = []float64{0, 72, 144, 216, 288}

func TestNewSixBeam_Matrix(t *testing.T) {
	t.Parallel()
	s, err := NewSixBeam(75, sixAzimuths, 10, 10, monitoring.Nop)
	require.NoError(t, err)

	m, inv := s.Matrix(), s.Inverse()
	var prod mat.Dense
	prod.Mul(m, inv)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-9)
			assert.False(t, math.IsNaN(inv.At(i, j)) || math.IsInf(inv.At(i, j), 0))
		}
	}
	// zenith row only sees var_w
	assert.InDelta(t, 1.0, m.At(5, 2), 1e-12)
	assert.InDelta(t, 0.0, m.At(5, 0), 1e-12)
}

func TestCoefficientRow(t *testing.T) {
	t.Parallel()
	row := CoefficientRow(45, 90)
	testutil.AssertFloats(t, []float64{0.5, 0, 0.5, 0, 1, 0}, row, 1e-12)
}

func TestNewSixBeam_Errors(t *testing.T) {
	t.Parallel()
	_, err := NewSixBeam(75, []float64{0, 0, 72, 144, 216}, 10, 10, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrSingularGeometry))

	_, err = NewSixBeam(90, sixAzimuths, 10, 10, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrSingularGeometry))

	_, err = NewSixBeam(75, sixAzimuths[:4], 10, 10, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))

	_, err = NewSixBeam(75, sixAzimuths, 0, 10, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))

	_, err = NewSixBeamFor(nil, 10, 10, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))
}

func TestSixBeam_UniformWindHasNoStress(t *testing.T) {
	t.Parallel()
	w := testutil.Wind{U: 6, V: 2, W: -0.3}
	sc := testutil.BuildScan("six", start, time.Second, testutil.SixBeam(75), 8, 3, testutil.UniformWind(w))
	mopts := scan.DefaultMergeOptions()
	mopts.Logf = monitoring.Nop
	m, err := scan.Merge([]*scan.Scan{sc}, mopts)
	require.NoError(t, err)
	ropts := restructure.DefaultOptions()
	ropts.Logf = monitoring.Nop
	r, err := restructure.New(m, ropts)
	require.NoError(t, err)

	s, err := NewSixBeamFor(r, 10, 10, monitoring.Nop)
	require.NoError(t, err)
	ds, err := s.Retrieve(r)
	require.NoError(t, err)

	assert.ElementsMatch(t, StressComponents, ds.VarNames())
	assert.Equal(t, "Reynolds stress tensor", ds.Attrs["title"])
	assert.Equal(t, r.Time90, ds.Coords["time"].Times)
	for _, name := range StressComponents {
		for _, x := range ds.Vars[name].Data.Elements {
			require.False(t, math.IsNaN(x), name)
			assert.InDelta(t, 0.0, x, 1e-9, name)
		}
	}
}

// stressFixture builds restructured arrays that share one time axis, so
// every beam sees the same turbulent sample at each profile.
func stressFixture(u, v, w []float64, elevation float64) *restructure.Restructured {
	n := len(u)
	r := &restructure.Restructured{
		Time:      testutil.Times(start, 10*time.Second, n),
		Range:     []float64{100},
		Azimuth:   sixAzimuths,
		Elevation: []float64{elevation},
		Range90:   []float64{100},
	}
	r.Time90 = r.Time
	r.Slanted = dataset.NewVariable(scan.VarRadialWindSpeed,
		[]string{restructure.DimTime, restructure.DimRange, restructure.DimAzimuth, restructure.DimElev}, n, 1, 5, 1)
	r.Vertical = dataset.NewVariable(scan.VarRadialWindSpeed+scan.Suffix90,
		[]string{restructure.DimTime90, restructure.DimRange90}, n, 1)
	for k := 0; k < n; k++ {
		wind := testutil.Wind{U: u[k], V: v[k], W: w[k]}
		for a, az := range sixAzimuths {
			r.Slanted.Set(wind.Radial(az, elevation), k, 0, a, 0)
		}
		r.Vertical.Set(w[k], k, 0)
	}
	return r
}

func TestSixBeam_RecoversCovariance(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	const n = 40
	u, v, w := make([]float64, n), make([]float64, n), make([]float64, n)
	for k := range u {
		u[k] = 5 + rng.NormFloat64()
		v[k] = -2 + 0.5*rng.NormFloat64() + 0.3*u[k]
		w[k] = 0.2*rng.NormFloat64() - 0.1*v[k]
	}
	r := stressFixture(u, v, w, 60)
	s, err := NewSixBeamFor(r, 10, 10, monitoring.Nop)
	require.NoError(t, err)
	ds, err := s.Retrieve(r)
	require.NoError(t, err)

	sum := func(a, b []float64) []float64 {
		out := make([]float64, len(a))
		for i := range a {
			out[i] = a[i] + b[i]
		}
		return out
	}
	variance := func(x []float64) []float64 { return rolling.Variance(x, 10, 3) }
	cov := func(a, b []float64) []float64 {
		ab, va, vb := variance(sum(a, b)), variance(a), variance(b)
		out := make([]float64, len(a))
		for i := range out {
			out[i] = (ab[i] - va[i] - vb[i]) / 2
		}
		return out
	}
	want := map[string][]float64{
		"var_u":  variance(u),
		"var_v":  variance(v),
		"var_w":  variance(w),
		"var_uv": cov(u, v),
		"var_uw": cov(u, w),
		"var_vw": cov(v, w),
	}
	for name, exp := range want {
		got := ds.Vars[name]
		for k := 0; k < n; k++ {
			assert.InDelta(t, exp[k], got.At(k, 0), 1e-8, "%s at %d", name, k)
		}
	}
}

func TestSixBeam_MissingSlantedGivesMissingStress(t *testing.T) {
	t.Parallel()
	const n = 6
	u, v, w := make([]float64, n), make([]float64, n), make([]float64, n)
	for k := range u {
		u[k], v[k], w[k] = float64(k), 1, 0
	}
	r := stressFixture(u, v, w, 75)
	// one azimuth has no data at all
	for k := 0; k < n; k++ {
		r.Slanted.Set(math.NaN(), k, 0, 2, 0)
	}
	s, err := NewSixBeamFor(r, 10, 10, monitoring.Nop)
	require.NoError(t, err)
	ds, err := s.Retrieve(r)
	require.NoError(t, err)
	for _, name := range StressComponents {
		for _, x := range ds.Vars[name].Data.Elements {
			assert.True(t, math.IsNaN(x), name)
		}
	}

	r.Vertical = nil
	_, err = s.Retrieve(r)
	assert.True(t, errors.Is(err, scan.ErrMissingVariable))
}

func TestOnSpan(t *testing.T) {
	t.Parallel()
	source := testutil.Times(start, 2*time.Second, 3)
	target := []time.Time{start.Add(-time.Second), start.Add(time.Second), start.Add(4 * time.Second), start.Add(5 * time.Second)}
	assert.Equal(t, []int{resample.Missing, 0, 2, resample.Missing}, onSpan(target, source))
}
