package quicklook

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/retrieval"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/testutil"
	"github.com/banshee-data/lidarwind/internal/units"
)

var t0 = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

func windDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord("time", testutil.Times(t0, time.Minute, 3)))
	ds.AddCoord(dataset.NewCoord("range", []float64{100, 200}, nil))
	speed := dataset.FromMatrix(retrieval.VarWindSpeed, [2]string{"time", "range"},
		[][]float64{{1, 2}, {math.NaN(), math.NaN()}, {3, math.NaN()}})
	speed.Attrs = retrieval.AttrsFor(retrieval.VarWindSpeed)
	dir := dataset.FromMatrix(retrieval.VarWindDirection, [2]string{"time", "range"},
		[][]float64{{90, 180}, {math.NaN(), math.NaN()}, {270, 0}})
	dir.Attrs = retrieval.AttrsFor(retrieval.VarWindDirection)
	require.NoError(t, ds.AddVar(speed))
	require.NoError(t, ds.AddVar(dir))
	return ds
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speed.png")
	err := SavePNG(windDataset(t), retrieval.VarWindSpeed, []float64{90, 210}, path, Options{Units: units.KNOTS, Logf: monitoring.Nop})
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSavePNG_Errors(t *testing.T) {
	dir := t.TempDir()
	ds := windDataset(t)
	quiet := Options{Logf: monitoring.Nop}

	err := SavePNG(ds, "nope", []float64{100}, filepath.Join(dir, "a.png"), quiet)
	assert.ErrorIs(t, err, scan.ErrMissingVariable)

	err = SavePNG(ds, retrieval.VarWindSpeed, nil, filepath.Join(dir, "b.png"), quiet)
	assert.ErrorIs(t, err, scan.ErrInvalidInput)

	empty := dataset.New()
	empty.AddCoord(dataset.NewTimeCoord("time", testutil.Times(t0, time.Minute, 2)))
	empty.AddCoord(dataset.NewCoord("range", []float64{100}, nil))
	require.NoError(t, empty.AddVar(dataset.NewVariable("w", []string{"time", "range"}, 2, 1)))
	err = SavePNG(empty, "w", []float64{100}, filepath.Join(dir, "c.png"), quiet)
	assert.ErrorIs(t, err, scan.ErrInsufficientData)
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	err := WritePNG(&buf, windDataset(t), retrieval.VarWindSpeed, []float64{90, 210}, Options{Logf: monitoring.Nop})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")))

	err = WritePNG(&bytes.Buffer{}, windDataset(t), retrieval.VarWindSpeed, nil, Options{Logf: monitoring.Nop})
	assert.ErrorIs(t, err, scan.ErrInvalidInput)
}

func TestRenderHeatmap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHeatmap(&buf, windDataset(t), retrieval.VarWindSpeed, Options{Units: units.KMPH, Logf: monitoring.Nop}))
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, retrieval.VarWindSpeed)
	assert.Contains(t, html, "km h-1")
}

func TestRenderHeatmap_NoFiniteValues(t *testing.T) {
	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord("time", testutil.Times(t0, time.Minute, 1)))
	ds.AddCoord(dataset.NewCoord("range", []float64{100}, nil))
	require.NoError(t, ds.AddVar(dataset.NewVariable("w", []string{"time", "range"}, 1, 1)))
	err := RenderHeatmap(&bytes.Buffer{}, ds, "w", Options{Logf: monitoring.Nop})
	assert.ErrorIs(t, err, scan.ErrInsufficientData)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, windDataset(t), []string{retrieval.VarWindSpeed, retrieval.VarWindDirection},
		CSVOptions{Units: units.KMPH, Timezone: "Europe/Berlin"})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "time,range_m,horizontal_wind_speed (km h-1),horizontal_wind_direction (degree)", lines[0])
	assert.Equal(t, "2021-06-01T14:00:00+02:00,100,3.6000,90.0000", lines[1])
	assert.Equal(t, "2021-06-01T14:02:00+02:00,200,,0.0000", lines[4])
}

func TestWriteCSV_Errors(t *testing.T) {
	ds := windDataset(t)
	assert.Error(t, WriteCSV(&bytes.Buffer{}, ds, nil, CSVOptions{}))
	assert.ErrorIs(t, WriteCSV(&bytes.Buffer{}, ds, []string{"nope"}, CSVOptions{}), scan.ErrMissingVariable)
	assert.Error(t, WriteCSV(&bytes.Buffer{}, ds, []string{retrieval.VarWindSpeed}, CSVOptions{Timezone: "Mars/Olympus"}))
}
