package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarwind/internal/monitoring"
)

func newSweepFS() *MemoryFileSystem {
	m := NewMemoryFileSystem()
	m.AddFile("data/2021-06-01/WCS_12-00_6beam.nc", []byte("a"))
	m.AddFile("data/2021-06-01/WCS_12-10_6beam.nc", []byte("b"))
	m.AddFile("data/2021-06-01/README.txt", []byte("c"))
	m.AddFile("data/2021-06-02/WCS_00-00_dbs.nc", []byte("d"))
	return m
}

func TestExpandInputs(t *testing.T) {
	m := newSweepFS()
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "directory uses nc files",
			args: []string{"data/2021-06-01"},
			want: []string{"data/2021-06-01/WCS_12-00_6beam.nc", "data/2021-06-01/WCS_12-10_6beam.nc"},
		},
		{
			name: "glob across days",
			args: []string{"data/*/WCS_*.nc"},
			want: []string{"data/2021-06-01/WCS_12-00_6beam.nc", "data/2021-06-01/WCS_12-10_6beam.nc", "data/2021-06-02/WCS_00-00_dbs.nc"},
		},
		{
			name: "explicit file and overlapping glob",
			args: []string{"data/2021-06-01/README.txt", "./data/2021-06-01/*.txt", "data/2021-06-02/WCS_00-00_dbs.nc"},
			want: []string{"data/2021-06-01/README.txt", "data/2021-06-02/WCS_00-00_dbs.nc"},
		},
		{
			name: "missing arguments skipped",
			args: []string{"nope.nc", "data/2021-06-03/*.nc", "data/2021-06-02"},
			want: []string{"data/2021-06-02/WCS_00-00_dbs.nc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandInputs(m, tt.args, monitoring.Nop)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandInputs_Errors(t *testing.T) {
	m := newSweepFS()
	_, err := ExpandInputs(m, []string{"nothing/*.nc"}, monitoring.Nop)
	assert.ErrorIs(t, err, ErrNoInputs)

	_, err = ExpandInputs(m, nil, monitoring.Nop)
	assert.ErrorIs(t, err, ErrNoInputs)

	_, err = ExpandInputs(m, []string{"data/[.nc"}, monitoring.Nop)
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}

func TestExpandInputs_OS(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.nc", "a.nc", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	got, err := ExpandInputs(OSFileSystem{}, []string{dir}, monitoring.Nop)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.nc"), filepath.Join(dir, "b.nc")}, got)
}

func TestOutputPath(t *testing.T) {
	start := time.Date(2021, 6, 1, 14, 0, 5, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, filepath.Join("out", "wind_sixbeam_20210601_120005.nc"), OutputPath("out", "wind_sixbeam", start, "nc"))
}

func TestMemoryFileSystem_Create(t *testing.T) {
	m := NewMemoryFileSystem()
	_, err := m.Create("out/wind.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, m.MkdirAll("out/plots", 0755))
	info, err := m.Stat("out")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	w, err := m.Create("out/wind.csv")
	require.NoError(t, err)
	_, err = io.WriteString(w, "time,range_m\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := m.ReadFile("out/wind.csv")
	require.NoError(t, err)
	assert.Equal(t, "time,range_m\n", string(data))
	info, err = m.Stat("out/wind.csv")
	require.NoError(t, err)
	assert.EqualValues(t, 13, info.Size())

	_, err = m.ReadFile("out/other.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
