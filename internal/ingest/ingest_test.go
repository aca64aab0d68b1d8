package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/testutil"
)

var t0 = time.Date(2021, 12, 14, 10, 0, 0, 0, time.UTC)

type fakeReader map[string]*scan.Scan

func (f fakeReader) ReadScan(path string) (*scan.Scan, error) {
	s, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, scan.ErrMissingSweep)
	}
	return s, nil
}

func quiet() scan.MergeOptions {
	opts := scan.DefaultMergeOptions()
	opts.Logf = monitoring.Nop
	return opts
}

func dbsFile(name string, start time.Time) *scan.Scan {
	return testutil.BuildScan(name, start, time.Second, testutil.DBS(75), 3, 4,
		testutil.UniformWind(testutil.Wind{U: 2}))
}

func TestMergeScans_SkipsBadFiles(t *testing.T) {
	r := fakeReader{
		"b.nc": dbsFile("b.nc", t0.Add(time.Minute)),
		"a.nc": dbsFile("a.nc", t0),
	}
	m, err := MergeScans(r, []string{"b.nc", "missing.nc", "a.nc"}, quiet())
	require.NoError(t, err)
	assert.Equal(t, 24, m.Slanted.Len())
	assert.Equal(t, 6, m.Vertical.Len())
	assert.True(t, m.Slanted.Time[0].Equal(t0))
}

func TestMergeScans_Errors(t *testing.T) {
	_, err := MergeScans(fakeReader{}, nil, quiet())
	assert.ErrorIs(t, err, scan.ErrNoFiles)

	_, err = MergeScans(fakeReader{}, []string{"missing.nc"}, quiet())
	assert.ErrorIs(t, err, scan.ErrInsufficientData)
}

func TestMergeDBS(t *testing.T) {
	r := fakeReader{"a.nc": dbsFile("a.nc", t0)}
	m, err := MergeDBS(r, []string{"a.nc"}, []string{scan.VarRadialWindSpeed, scan.VarStatus}, quiet())
	require.NoError(t, err)
	require.NotNil(t, m.Slanted.MeanTime)
	assert.Nil(t, m.Slanted.CNR)
	assert.NotNil(t, m.Slanted.Status)
	// first cycle: rays 0..4 at t0..t0+4s
	assert.True(t, m.Slanted.MeanTime[0].Equal(t0.Add(2*time.Second)))

	_, err = MergeDBS(r, []string{"a.nc"}, nil, quiet())
	assert.ErrorIs(t, err, scan.ErrNoVariables)

	_, err = MergeDBS(r, nil, []string{scan.VarStatus}, quiet())
	assert.ErrorIs(t, err, scan.ErrNoFiles)

	// a file without the requested variable is skipped
	noCNR := dbsFile("b.nc", t0)
	noCNR.CNR = nil
	_, err = MergeDBS(fakeReader{"b.nc": noCNR}, []string{"b.nc"}, []string{scan.VarCNR}, quiet())
	assert.ErrorIs(t, err, scan.ErrInsufficientData)
}

func TestFileTime(t *testing.T) {
	got, err := FileTime("/data/WCS000243_2021-12-14_10-35-06_dbs_303_50m.nc")
	require.NoError(t, err)
	assert.True(t, got.Equal(t0.Add(35*time.Minute+6*time.Second)))

	_, err = FileTime("notes.txt")
	assert.Error(t, err)
}

func TestGroupByHour(t *testing.T) {
	groups := GroupByHour([]string{
		"x_2021-12-14_11-10-00_dbs.nc",
		"x_2021-12-14_10-50-00_dbs.nc",
		"x_2021-12-14_10-00-00_dbs.nc",
		"readme.md",
	}, monitoring.Nop)
	require.Len(t, groups, 2)
	assert.True(t, groups[0].Hour.Equal(t0))
	assert.Equal(t, []string{"x_2021-12-14_10-00-00_dbs.nc", "x_2021-12-14_10-50-00_dbs.nc"}, groups[0].Files)
	assert.Equal(t, []string{"x_2021-12-14_11-10-00_dbs.nc"}, groups[1].Files)
}

func TestMergeHourly_DeterministicOrder(t *testing.T) {
	var groups []Group
	r := fakeReader{}
	for h := 0; h < 6; h++ {
		name := fmt.Sprintf("h%d.nc", h)
		r[name] = dbsFile(name, t0.Add(time.Duration(h)*time.Hour))
		groups = append(groups, Group{Hour: t0.Add(time.Duration(h) * time.Hour), Files: []string{name}})
	}
	// an empty hour is skipped
	groups = append(groups, Group{Hour: t0.Add(7 * time.Hour), Files: []string{"gone.nc"}})

	var calls int32
	merge := func(files []string) (*scan.Merged, error) {
		atomic.AddInt32(&calls, 1)
		return MergeScans(r, files, quiet())
	}
	m, err := MergeHourly(context.Background(), groups, 3, merge, monitoring.Nop)
	require.NoError(t, err)
	assert.EqualValues(t, 7, calls)
	assert.Equal(t, 6*12, m.Slanted.Len()) // 3 cycles of 4 slanted beams per file
	for i := 1; i < m.Slanted.Len(); i++ {
		assert.True(t, m.Slanted.Time[i].After(m.Slanted.Time[i-1]))
	}
}

func TestMergeHourly_PropagatesConfigurationErrors(t *testing.T) {
	boom := errors.New("boom")
	merge := func([]string) (*scan.Merged, error) { return nil, boom }
	_, err := MergeHourly(context.Background(), []Group{{Hour: t0, Files: []string{"a"}}}, 2, merge, monitoring.Nop)
	assert.ErrorIs(t, err, boom)

	_, err = MergeHourly(context.Background(), nil, 2, merge, monitoring.Nop)
	assert.ErrorIs(t, err, scan.ErrNoFiles)
}

func TestMergeHourly_AllEmpty(t *testing.T) {
	merge := func([]string) (*scan.Merged, error) { return nil, scan.ErrInsufficientData }
	_, err := MergeHourly(context.Background(), []Group{{Hour: t0}}, 1, merge, monitoring.Nop)
	assert.ErrorIs(t, err, scan.ErrInsufficientData)
}

func TestReadProcessed(t *testing.T) {
	read := func(path string) (*dataset.Dataset, error) {
		if path == "bad.nc" {
			return nil, errors.New("corrupt")
		}
		d := dataset.New()
		start := t0
		if path == "b.nc" {
			start = t0.Add(time.Hour)
		}
		d.AddCoord(dataset.NewTimeCoord("time", []time.Time{start}))
		d.AddCoord(dataset.NewCoord("range", []float64{100}, nil))
		if err := d.AddVar(dataset.FromMatrix("w", [2]string{"time", "range"}, [][]float64{{float64(start.Hour())}})); err != nil {
			return nil, err
		}
		return d, nil
	}
	ds, err := ReadProcessed([]string{"b.nc", "bad.nc", "a.nc"}, read, monitoring.Nop)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11}, ds.Vars["w"].Data.Elements)

	_, err = ReadProcessed([]string{"bad.nc"}, read, monitoring.Nop)
	assert.ErrorIs(t, err, scan.ErrInsufficientData)
	_, err = ReadProcessed(nil, read, monitoring.Nop)
	assert.ErrorIs(t, err, scan.ErrNoFiles)
}
