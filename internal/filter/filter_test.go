package filter

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/testutil"
)

var day = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

// fixture returns restructured arrays filled with 5 +/- 1 alternating in
// time on two azimuths and two gates.
func fixture(start time.Time, n int) *restructure.Restructured {
	r := &restructure.Restructured{
		Time:      testutil.Times(start, 10*time.Second, n),
		Range:     []float64{500, 1000},
		Azimuth:   []float64{0, 180},
		Elevation: []float64{75},
		Range90:   []float64{500, 1000},
	}
	r.Time90 = testutil.Times(start.Add(5*time.Second), 10*time.Second, n)
	r.Slanted = dataset.NewVariable(scan.VarRadialWindSpeed,
		[]string{restructure.DimTime, restructure.DimRange, restructure.DimAzimuth, restructure.DimElev}, n, 2, 2, 1)
	r.Vertical = dataset.NewVariable(scan.VarRadialWindSpeed+scan.Suffix90,
		[]string{restructure.DimTime90, restructure.DimRange90}, n, 2)
	r.RelativeBeta90 = dataset.NewVariable("relative_beta90",
		[]string{restructure.DimTime90, restructure.DimRange90}, n, 2)
	for t := 0; t < n; t++ {
		x := 5.0 + float64(1-2*(t%2))
		for g := 0; g < 2; g++ {
			for a := 0; a < 2; a++ {
				r.Slanted.Set(x, t, g, a, 0)
			}
			r.Vertical.Set(x-5, t, g)
			r.RelativeBeta90.Set(1e-6, t, g)
		}
	}
	return r
}

func TestSecondTripEcho_RemovesSpikes(t *testing.T) {
	t.Parallel()
	r := fixture(day.Add(10*time.Hour), 200)
	r.Slanted.Set(50, 100, 1, 0, 0)
	r.Vertical.Set(40, 60, 0)
	before := r.Clone()

	opts := DefaultSTEOptions()
	opts.Logf = monitoring.Nop
	rep, err := SecondTripEcho(r, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Removed)
	assert.Equal(t, 1, rep.Removed90)
	assert.Greater(t, rep.Std[0], rep.Std[1])
	assert.InDelta(t, 1.0, rep.Std[1], 1e-9)
	assert.True(t, math.IsNaN(r.Slanted.At(100, 1, 0, 0)))
	assert.True(t, math.IsNaN(r.Vertical.At(60, 0)))

	// retained samples are untouched
	for i, x := range r.Slanted.Data.Elements {
		if !math.IsNaN(x) {
			assert.Equal(t, before.Slanted.Data.Elements[i], x)
		}
	}
	for i, x := range r.Vertical.Data.Elements {
		if !math.IsNaN(x) {
			assert.Equal(t, before.Vertical.Data.Elements[i], x)
		}
	}
}

func TestSecondTripEcho_NoDaytimeData(t *testing.T) {
	t.Parallel()
	r := fixture(day.Add(2*time.Hour), 50)
	opts := DefaultSTEOptions()
	opts.Logf = monitoring.Nop
	_, err := SecondTripEcho(r, opts)
	assert.True(t, errors.Is(err, scan.ErrInsufficientData))

	_, err = SecondTripEcho(nil, opts)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))

	opts.NStd = 0
	_, err = SecondTripEcho(fixture(day.Add(10*time.Hour), 10), opts)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))
}

func TestSecondTripEcho_WithoutVertical(t *testing.T) {
	t.Parallel()
	r := fixture(day.Add(12*time.Hour), 100)
	r.Vertical = nil
	opts := DefaultSTEOptions()
	opts.Logf = monitoring.Nop
	rep, err := SecondTripEcho(r, opts)
	require.NoError(t, err)
	assert.Zero(t, rep.Removed)
	assert.Zero(t, rep.Removed90)
}

// ceilometer returns 30 profiles, 30 s apart, gates every 100 m up to
// 6000 m, with positive backscatter up to 1500 m.
func ceilometer(start time.Time) *Ceilometer {
	c := &Ceilometer{Time: testutil.Times(start, 30*time.Second, 30)}
	for r := 100.0; r <= 6000; r += 100 {
		c.Range = append(c.Range, r)
	}
	for range c.Time {
		row := make([]float64, len(c.Range))
		for g, r := range c.Range {
			row[g] = -1e-7
			if r <= 1500 {
				row[g] = 1e-6
			}
		}
		c.Values = append(c.Values, row)
	}
	return c
}

func TestInterfaceHeight(t *testing.T) {
	t.Parallel()
	h, err := InterfaceHeight(ceilometer(day))
	require.NoError(t, err)
	require.Len(t, h, 30)
	for i := 8; i <= 21; i++ {
		assert.Equal(t, 1100.0, h[i], "profile %d", i)
	}
	assert.True(t, math.IsNaN(h[0]))
	assert.True(t, math.IsNaN(h[7]))
	assert.True(t, math.IsNaN(h[29]))

	_, err = InterfaceHeight(&Ceilometer{})
	assert.True(t, errors.Is(err, scan.ErrInsufficientData))
	_, err = InterfaceHeight(&Ceilometer{Time: []time.Time{day}, Range: []float64{1}, Values: [][]float64{{1, 2}}})
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))
}

func TestRemoveClouds(t *testing.T) {
	t.Parallel()
	r := fixture(day, 3)
	r.Time = []time.Time{day.Add(300 * time.Second), day.Add(400 * time.Second), day.Add(10 * time.Second)}
	r.Time90 = r.Time
	r.Range = []float64{500, 1500}
	r.Range90 = []float64{500, 1500}

	rep, err := RemoveClouds(r, ceilometer(day), monitoring.Nop)
	require.NoError(t, err)

	for _, a := range []int{0, 1} {
		assert.False(t, math.IsNaN(r.Slanted.At(0, 0, a, 0)))
		assert.True(t, math.IsNaN(r.Slanted.At(0, 1, a, 0)))
		assert.False(t, math.IsNaN(r.Slanted.At(1, 0, a, 0)))
		// unknown interface: whole profile goes
		assert.True(t, math.IsNaN(r.Slanted.At(2, 0, a, 0)))
	}
	assert.False(t, math.IsNaN(r.Vertical.At(0, 0)))
	assert.True(t, math.IsNaN(r.Vertical.At(0, 1)))
	assert.True(t, math.IsNaN(r.RelativeBeta90.At(0, 1)))
	assert.Equal(t, 8, rep.Removed)
	assert.Equal(t, 4, rep.Removed90)

	_, err = RemoveClouds(nil, ceilometer(day), monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInvalidInput))
}

func TestNewCloudMask_Auxiliary(t *testing.T) {
	t.Parallel()
	times := testutil.Times(day, time.Minute, 4)
	m, err := NewCloudMask(times, nil, nil, monitoring.Nop)
	require.NoError(t, err)
	assert.Nil(t, m.Mask)
	assert.Equal(t, []float64{1, 1, 1, 1}, m.TimeMask)
}

func TestNewCloudMask(t *testing.T) {
	t.Parallel()
	ceiloTimes := testutil.Times(day, 30*time.Second, 40)
	var rng []float64
	for r := 100.0; r <= 8000; r += 100 {
		rng = append(rng, r)
	}
	ceilo := &Ceilometer{Time: ceiloTimes, Range: rng}
	radar := &Radar{Time: ceiloTimes, Range: rng}
	for i := range ceiloTimes {
		brow := make([]float64, len(rng))
		zrow := make([]float64, len(rng))
		for g, r := range rng {
			brow[g], zrow[g] = -1, -1
			if r <= 2000 {
				brow[g] = 1e-6
			}
			if r > 7000 && i >= 20 {
				zrow[g] = 10
			}
		}
		ceilo.Values = append(ceilo.Values, brow)
		radar.Values = append(radar.Values, zrow)
	}

	lidar := []time.Time{ceiloTimes[10], ceiloTimes[25]}
	m, err := NewCloudMask(lidar, ceilo, radar, monitoring.Nop)
	require.NoError(t, err)

	g1000, g7500, g5000 := 9, 74, 49
	assert.Equal(t, float64(MaskCeilometer), m.Mask[0][g1000])
	assert.Equal(t, float64(MaskClear), m.Mask[0][g7500])
	assert.Equal(t, float64(MaskRadar), m.Mask[1][g7500])
	assert.Equal(t, float64(MaskClear), m.Mask[1][g5000])
	assert.Equal(t, []float64{0, 1}, m.TimeMask)

	_, err = NewCloudMask(lidar, ceilo, &Radar{}, monitoring.Nop)
	assert.True(t, errors.Is(err, scan.ErrInsufficientData))
}
