package rolling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/testutil"
)

var nan = math.NaN()

func TestBounds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		i, n, window int
		start, end   int
	}{
		{0, 20, 10, 0, 5},
		{5, 20, 10, 0, 10},
		{10, 20, 10, 5, 15},
		{19, 20, 10, 14, 20},
		{3, 20, 3, 2, 5},
		{0, 1, 1, 0, 1},
	}
	for _, tt := range tests {
		s, e := bounds(tt.i, tt.n, tt.window)
		assert.Equal(t, tt.start, s, "start i=%d window=%d", tt.i, tt.window)
		assert.Equal(t, tt.end, e, "end i=%d window=%d", tt.i, tt.window)
	}
}

func TestMean(t *testing.T) {
	t.Parallel()
	x := []float64{1, 2, 3, 4, 5}
	// window 3 centered, min 1
	testutil.AssertFloats(t, []float64{1.5, 2, 3, 4, 4.5}, Mean(x, 3, 1), 1e-12)
	// min 3 drops both edges
	testutil.AssertFloats(t, []float64{nan, 2, 3, 4, nan}, Mean(x, 3, 3), 1e-12)
	// even window looks one further back
	testutil.AssertFloats(t, []float64{1, 1.5, 2.5, 3.5, 4.5}, Mean(x, 2, 1), 1e-12)

	withNaN := []float64{1, nan, 3, nan, 5}
	testutil.AssertFloats(t, []float64{1, 2, 3, 4, 5}, Mean(withNaN, 3, 1), 1e-12)
	testutil.AssertFloats(t, []float64{nan, 2, nan, 4, nan}, Mean(withNaN, 3, 2), 1e-12)
}

func TestVariance(t *testing.T) {
	t.Parallel()
	x := []float64{1, 2, 3, 4, 5}
	testutil.AssertFloats(t, []float64{0.5, 1, 1, 1, 0.5}, Variance(x, 3, 1), 1e-12)
	testutil.AssertFloats(t, []float64{nan, 2, nan, 2, nan}, Variance([]float64{1, nan, 3, nan, 5}, 3, 1), 1e-12)

	constant := []float64{2, 2, 2, 2}
	testutil.AssertFloats(t, []float64{0, 0, 0, 0}, Variance(constant, 4, 1), 0)
}

func TestAlong(t *testing.T) {
	t.Parallel()
	v := dataset.NewVariable("x", []string{"time", "range"}, 3, 2)
	for i := 0; i < 3; i++ {
		v.Set(float64(i), i, 0)
		v.Set(float64(10*i), i, 1)
	}
	out, err := Along(v, "time", func(lane []float64) []float64 { return Mean(lane, 3, 1) })
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.At(0, 0))
	assert.Equal(t, 10.0, out.At(1, 1))
	assert.Equal(t, 15.0, out.At(2, 1))
	// the source is untouched
	assert.Equal(t, 0.0, v.At(0, 0))

	_, err = Along(v, "azm", func(lane []float64) []float64 { return lane })
	assert.Error(t, err)
}
