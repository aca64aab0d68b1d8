package radar

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/retrieval"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/testutil"
)

var t0 = time.Date(2021, 6, 1, 14, 0, 0, 0, time.UTC)

// sweep returns a full counter-clockwise PPI at one degree steps, 359 down
// to 0, of the given wind at 30 degrees elevation.
func sweep(w testutil.Wind) *PPI {
	p := &PPI{Range: []float64{100, 200}, Chirps: []Chirp{{100, 150}, {150, 200}}}
	for i := 0; i < 360; i++ {
		az := float64(359 - i)
		p.Time = append(p.Time, t0.Add(time.Duration(i)*100*time.Millisecond))
		p.Azimuth = append(p.Azimuth, az)
		p.Elevation = append(p.Elevation, 30)
		r := w.Radial(az, 30)
		p.MeanVel = append(p.MeanVel, []float64{r, r})
		p.ZDR = append(p.ZDR, []float64{float64(i) / 1000, 1 + float64(i)/1000})
	}
	return p
}

func TestDecodeTime(t *testing.T) {
	t.Parallel()
	ts, err := DecodeTime([]float64{0, 86400}, []float64{500, 0})
	require.NoError(t, err)
	assert.Equal(t, Epoch.Add(500*time.Millisecond), ts[0])
	assert.Equal(t, time.Date(2001, 1, 2, 0, 0, 0, 0, time.UTC), ts[1])

	_, err = DecodeTime([]float64{0}, nil)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))
}

func TestPreprocess(t *testing.T) {
	t.Parallel()
	w := testutil.Wind{U: 3, V: 4}
	p := sweep(w)
	p.Time[5] = p.Time[4]
	p.MeanVel[10][0] = FillValue

	out, err := Preprocess(p, monitoring.Nop)
	require.NoError(t, err)

	assert.Equal(t, -1, out.AzimuthSeq)
	assert.Equal(t, 30.0, out.Elevation)
	testutil.AssertFloats(t, []float64{50, 100}, out.Height, 1e-9)
	testutil.AssertFloats(t, []float64{100.0 / 360, 0}, out.NaNPercent, 1e-9)
	testutil.AssertFloats(t, []float64{0.359, 1.359}, out.ZDRMax, 1e-12)
	assert.Equal(t, t0, out.StartScan)
	assert.Equal(t, t0.Add(35900*time.Millisecond), out.EndScan)

	require.Len(t, out.Azimuth, 72)
	assert.Equal(t, 0.0, out.Azimuth[0])
	assert.Equal(t, 355.0, out.Azimuth[71])
	for a, az := range out.Azimuth {
		for g := 0; g < 2; g++ {
			assert.InDelta(t, w.Radial(az, 30), out.MeanVel[a][g], 1e-9, "azimuth %g gate %d", az, g)
		}
	}
}

func TestPreprocess_LeftoverGapsUseMean(t *testing.T) {
	t.Parallel()
	p := &PPI{Range: []float64{100}}
	for i := 0; i < 35; i++ {
		p.Time = append(p.Time, t0.Add(time.Duration(i)*time.Second))
		p.Azimuth = append(p.Azimuth, float64(10+10*i))
		p.Elevation = append(p.Elevation, 45)
		p.MeanVel = append(p.MeanVel, []float64{2})
	}
	out, err := Preprocess(p, monitoring.Nop)
	require.NoError(t, err)
	assert.Equal(t, 1, out.AzimuthSeq)
	for a := range out.Azimuth {
		assert.Equal(t, 2.0, out.MeanVel[a][0])
	}
	assert.True(t, math.IsNaN(out.ZDRMax[0]))
}

func TestPreprocess_Errors(t *testing.T) {
	t.Parallel()
	_, err := Preprocess(&PPI{}, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInsufficientData))

	p := sweep(testutil.Wind{U: 1})
	p.Azimuth = p.Azimuth[:10]
	_, err = Preprocess(p, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))

	p = sweep(testutil.Wind{U: 1})
	for i := range p.Azimuth {
		p.Azimuth[i] = 90
	}
	_, err = Preprocess(p, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInsufficientData))
}

func TestHorizontalWind(t *testing.T) {
	t.Parallel()
	out, err := Preprocess(sweep(testutil.Wind{U: 3, V: 4}), monitoring.Nop)
	require.NoError(t, err)
	ds, err := HorizontalWind(out)
	require.NoError(t, err)

	speed := ds.Vars[retrieval.VarWindSpeed]
	assert.Equal(t, []string{DimMeanTime, DimRange}, speed.Dims)
	for g := 0; g < 2; g++ {
		assert.InDelta(t, 5.0, speed.At(0, g), 1e-9)
		assert.InDelta(t, 3.0, ds.Vars[retrieval.VarZonal].At(0, g), 1e-9)
		assert.InDelta(t, 4.0, ds.Vars[retrieval.VarMeridional].At(0, g), 1e-9)
		assert.InDelta(t, 216.8699, ds.Vars[retrieval.VarWindDirection].At(0, g), 1e-3)
	}
	assert.Equal(t, []time.Time{out.MeanTime}, ds.Coords[DimMeanTime].Times)
	assert.Equal(t, -1.0, ds.Vars["azm_seq"].At(0))
	assert.Equal(t, []float64{1, 2}, ds.Coords[DimChirp].Values)
	assert.Equal(t, 150.0, ds.Vars["chirp_end"].At(0))

	_, err = HorizontalWind(nil)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))
}
