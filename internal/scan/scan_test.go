package scan

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

// makeScan builds a scan with one ray per (azimuth, elevation) pair, one
// second apart, gates at 100 m spacing. Every gate of ray i holds value i.
func makeScan(source string, start time.Time, azm, elv []float64, gates int) *Scan {
	s := &Scan{Source: source, Range: make([]float64, gates)}
	for g := range s.Range {
		s.Range[g] = float64(g+1) * 100
	}
	for i := range azm {
		s.Time = append(s.Time, start.Add(time.Duration(i)*time.Second))
		s.Azimuth = append(s.Azimuth, azm[i])
		s.Elevation = append(s.Elevation, elv[i])
		rws, st, cnr := make([]float64, gates), make([]float64, gates), make([]float64, gates)
		for g := range rws {
			rws[g] = float64(i)
			st[g] = 1
			cnr[g] = -10
		}
		s.RadialWindSpeed = append(s.RadialWindSpeed, rws)
		s.Status = append(s.Status, st)
		s.CNR = append(s.CNR, cnr)
	}
	return s
}

func TestScanValidate(t *testing.T) {
	t.Parallel()

	s := makeScan("a", t0, []float64{0, 90}, []float64{75, 75}, 3)
	require.NoError(t, s.Validate())

	s.Azimuth = s.Azimuth[:1]
	assert.ErrorIs(t, s.Validate(), ErrInvalidInput)

	s = makeScan("b", t0, []float64{0, 90}, []float64{75, 75}, 3)
	s.CNR[1] = s.CNR[1][:2]
	assert.ErrorIs(t, s.Validate(), ErrInvalidInput)

	s = makeScan("c", t0, []float64{0}, []float64{75}, 3)
	s.RadialWindSpeed = nil
	assert.ErrorIs(t, s.Validate(), ErrMissingVariable)

	var nilScan *Scan
	assert.ErrorIs(t, nilScan.Validate(), ErrInvalidInput)
}

func TestMerge_SplitsVerticalAndWrapsAzimuth(t *testing.T) {
	t.Parallel()

	a := makeScan("a", t0, []float64{359.98, 72.04, 0}, []float64{75.02, 75, 89.99}, 4)
	b := makeScan("b", t0.Add(time.Minute), []float64{144, 0}, []float64{75, 90}, 4)

	m, err := Merge([]*Scan{b, a}, DefaultMergeOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, m.Slanted.Len())
	assert.Equal(t, 2, m.Vertical.Len())
	assert.Equal(t, []float64{0, 72, 144}, m.Slanted.Azimuth)
	assert.Equal(t, []float64{75, 75, 75}, m.Slanted.Elevation)
	for i := 1; i < m.Slanted.Len(); i++ {
		assert.True(t, m.Slanted.Time[i].After(m.Slanted.Time[i-1]))
	}
	// input left untouched
	assert.Equal(t, 359.98, a.Azimuth[0])

	assert.True(t, m.Has("radial_wind_speed90"))
	assert.True(t, m.Has("cnr"))
	assert.False(t, m.Has("relative_beta90"))
}

func TestMerge_SkipsIncompatibleScan(t *testing.T) {
	t.Parallel()

	var logged []string
	opts := DefaultMergeOptions()
	opts.Logf = func(format string, v ...interface{}) { logged = append(logged, format) }

	a := makeScan("a", t0, []float64{0, 90}, []float64{75, 75}, 4)
	b := makeScan("b", t0.Add(time.Minute), []float64{0, 90}, []float64{75, 75}, 5)

	m, err := Merge([]*Scan{a, b}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Slanted.Len())
	assert.NotEmpty(t, logged)
}

func TestMerge_Errors(t *testing.T) {
	t.Parallel()

	_, err := Merge(nil, DefaultMergeOptions())
	assert.ErrorIs(t, err, ErrNoFiles)

	bad := makeScan("bad", t0, []float64{0}, []float64{75}, 2)
	bad.Elevation = nil
	_, err = Merge([]*Scan{bad}, MergeOptions{Logf: func(string, ...interface{}) {}})
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestMerge_DropsRepeatedTimestamps(t *testing.T) {
	t.Parallel()

	a := makeScan("a", t0, []float64{0, 90}, []float64{75, 75}, 2)
	m, err := Merge([]*Scan{a, a}, MergeOptions{Logf: func(string, ...interface{}) {}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Slanted.Len())
}

func TestFilterMask(t *testing.T) {
	t.Parallel()

	r := &Rays{
		Time:            []time.Time{t0, t0.Add(time.Second)},
		Azimuth:         []float64{0, 0},
		Elevation:       []float64{75, 75},
		Range:           []float64{100, 200, 300},
		RadialWindSpeed: [][]float64{{1, 2, 3}, {4, 5, 6}},
		Status:          [][]float64{{1, 0, 1}, {math.NaN(), 1, 1}},
		CNR:             [][]float64{{-20, -20, -30}, {-20, -20, -20}},
	}

	got, err := Filter{Status: true}.Mask(r, VarRadialWindSpeed)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[0][0])
	assert.True(t, math.IsNaN(got[0][1]))
	assert.True(t, math.IsNaN(got[1][0]))

	thr := -25.0
	got, err = Filter{CNR: &thr}.Mask(r, VarRadialWindSpeed)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got[0][1])
	assert.True(t, math.IsNaN(got[0][2]))

	thr = -20
	got, err = Filter{CNR: &thr}.Mask(r, VarRadialWindSpeed)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0][0]), "CNR equal to the threshold is masked")

	// source untouched
	assert.Equal(t, 2.0, r.RadialWindSpeed[0][1])

	r.Status = nil
	_, err = Filter{Status: true}.Mask(r, VarRadialWindSpeed)
	assert.ErrorIs(t, err, ErrMissingVariable)
}

func TestRadialAndVerticalObs(t *testing.T) {
	t.Parallel()

	s := makeScan("a", t0, []float64{0, 90, 0, 0}, []float64{75, 75, 75, 90}, 2)
	m, err := Merge([]*Scan{s}, MergeOptions{AzimuthDecimals: 1, ElevationDecimals: 1, Logf: func(string, ...interface{}) {}})
	require.NoError(t, err)

	obs, err := RadialObs(m, VarRadialWindSpeed, 75, 0, Filter{Status: true})
	require.NoError(t, err)
	assert.Len(t, obs.Time, 2)
	assert.Equal(t, []float64{0, 0}, obs.Values[0])
	assert.Equal(t, []float64{2, 2}, obs.Values[1])

	vert, err := VerticalObs(m, "radial_wind_speed90", Filter{})
	require.NoError(t, err)
	assert.Len(t, vert.Time, 1)
	assert.Equal(t, []float64{3, 3}, vert.Values[0])

	_, err = VerticalObs(m, "relative_beta90", Filter{})
	assert.ErrorIs(t, err, ErrMissingVariable)
}

func TestAssignScanMeanTime(t *testing.T) {
	t.Parallel()

	azm := []float64{0, 180, 0, 90, 180, 270, 0, 0, 90, 180, 270, 0}
	elv := []float64{75, 75, 75, 75, 75, 75, 90, 75, 75, 75, 75, 90}
	s := makeScan("dbs", t0, azm, elv, 2)
	s.Azimuth[0] = 0.4
	s.Azimuth[2] = 359.6

	out, err := AssignScanMeanTime(s)
	require.NoError(t, err)

	require.Equal(t, s.NumRays(), out.NumRays())
	assert.Equal(t, 0.0, out.Azimuth[0])
	assert.Equal(t, 0.0, out.Azimuth[2])

	// cycles: [0,2) [2,7) [7,12)
	assert.Equal(t, t0.Add(500*time.Millisecond), out.MeanTime[0])
	assert.Equal(t, t0.Add(4*time.Second), out.MeanTime[2])
	assert.Equal(t, t0.Add(4*time.Second), out.MeanTime[6])
	assert.Equal(t, t0.Add(9*time.Second), out.MeanTime[7])
	assert.Equal(t, t0.Add(9*time.Second), out.MeanTime[11])
}

func TestAssignScanMeanTime_DropsLeadingPartialCycle(t *testing.T) {
	t.Parallel()

	// first ray is vertical with azimuth 0; slanted north rays open cycles
	azm := []float64{0, 90, 0, 90, 180, 270}
	elv := []float64{90, 75, 75, 75, 75, 75}
	s := makeScan("dbs", t0, azm, elv, 1)

	out, err := AssignScanMeanTime(s)
	require.NoError(t, err)
	assert.Equal(t, 4, out.NumRays())
	assert.Equal(t, t0.Add(3500*time.Millisecond), out.MeanTime[0])
}

func TestMeanTime(t *testing.T) {
	t.Parallel()
	assert.True(t, MeanTime(nil).IsZero())
	ts := []time.Time{t0, t0.Add(2 * time.Second), t0.Add(4 * time.Second)}
	assert.Equal(t, t0.Add(2*time.Second), MeanTime(ts))
}

func TestConcat(t *testing.T) {
	t.Parallel()

	nop := func(string, ...interface{}) {}
	late, err := Merge([]*Scan{makeScan("late", t0.Add(time.Hour), []float64{0, 0}, []float64{75, 90}, 3)}, MergeOptions{Logf: nop})
	require.NoError(t, err)
	early, err := Merge([]*Scan{makeScan("early", t0, []float64{90, 0}, []float64{75, 90}, 3)}, MergeOptions{Logf: nop})
	require.NoError(t, err)

	m, err := Concat([]*Merged{late, nil, early}, nop)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Slanted.Len())
	assert.Equal(t, 2, m.Vertical.Len())
	assert.True(t, m.Slanted.Time[0].Equal(t0))
	assert.Equal(t, []float64{90, 0}, m.Slanted.Azimuth)

	_, err = Concat(nil, nop)
	assert.ErrorIs(t, err, ErrInsufficientData)

	wide, err := Merge([]*Scan{makeScan("wide", t0, []float64{0}, []float64{75}, 5)}, MergeOptions{Logf: nop})
	require.NoError(t, err)
	_, err = Concat([]*Merged{early, wide}, nop)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
