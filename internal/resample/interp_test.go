package resample

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/lidarwind/internal/testutil"
)

func TestLinear(t *testing.T) {
	t.Parallel()
	xs := []float64{0, 10, 20}
	ys := []float64{0, 1, math.NaN()}
	got := Linear(xs, ys, []float64{-1, 0, 5, 10, 15, 21})
	testutil.AssertFloats(t, []float64{math.NaN(), 0, 0.5, 1, math.NaN(), math.NaN()}, got, 1e-12)

	testutil.AssertFloats(t, []float64{3, math.NaN()}, Linear([]float64{1}, []float64{3}, []float64{1, 2}), 0)
	testutil.AssertFloats(t, []float64{math.NaN()}, Linear(nil, nil, []float64{1}), 0)
}

func TestLinearTime(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{t0, t0.Add(10 * time.Second)}
	got := LinearTime(ts, []float64{0, 10}, []time.Time{t0.Add(-time.Second), t0.Add(4 * time.Second)})
	testutil.AssertFloats(t, []float64{math.NaN(), 4}, got, 1e-12)
	assert.Len(t, LinearTime(nil, nil, ts), 2)
}
