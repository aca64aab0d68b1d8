package retrieval

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// HarmonicOptions describe where the azimuth and elevation live in the
// input array.
type HarmonicOptions struct {
	// AzimuthDim is the dimension transformed. Defaults to "azm".
	AzimuthDim string
	// ElevationDim, when set, names a dimension indexing Elevations.
	// Otherwise Elevation applies to every element.
	ElevationDim string
	Elevations   []float64
	Elevation    float64
}

// Harmonic is the first-harmonic wind over the input dims minus azimuth.
type Harmonic struct {
	Phase       *dataset.Variable
	Direction   *dataset.Variable
	RadialSpeed *dataset.Variable
	Speed       *dataset.Variable
	Zonal       *dataset.Variable
	Meridional  *dataset.Variable
}

// Variables returns the wind variables written to output.
func (h *Harmonic) Variables() []*dataset.Variable {
	return []*dataset.Variable{h.Direction, h.Speed, h.Zonal, h.Meridional}
}

// FirstHarmonic returns the complex amplitude of the one-cycle-per-turn
// component of seq, with the e^{-i} sign convention.
func FirstHarmonic(fft *fourier.FFT, seq []float64, dst []complex128) complex128 {
	return fft.Coefficients(dst, seq)[1]
}

// WindFromAmplitude derives wind from a first-harmonic amplitude over n
// azimuths at the given elevation: phase = -atan2(im, re), direction =
// phase + 180 wrapped to [0, 360), radial speed = 2|A|/n. u and v are the
// negated projections onto azimuths 0 and 90.
func WindFromAmplitude(amp complex128, n int, elevation float64) (phase, dir, radial, speed, u, v float64) {
	phase = -scan.Rad2Deg(math.Atan2(imag(amp), real(amp)))
	dir = scan.WrapDirection(phase + 180)
	radial = 2 * cmplx.Abs(amp) / float64(n)
	cosEl := math.Cos(scan.Deg2Rad(elevation))
	speed = radial / cosEl
	u = -radial * math.Sin(scan.Deg2Rad(0+phase+180)) / cosEl
	v = -radial * math.Sin(scan.Deg2Rad(90+phase+180)) / cosEl
	return
}

// FFTWind applies the harmonic estimator along the azimuth axis of v.
// Any missing value in a lane makes that output element missing.
func FFTWind(v *dataset.Variable, opts HarmonicOptions) (*Harmonic, error) {
	if v == nil {
		return nil, fmt.Errorf("fft wind: nil input: %w", scan.ErrInvalidInput)
	}
	azDim := opts.AzimuthDim
	if azDim == "" {
		azDim = "azm"
	}
	axis := v.Axis(azDim)
	if axis < 0 {
		return nil, fmt.Errorf("fft wind: %s has no %q axis: %w", v.Name, azDim, scan.ErrInvalidInput)
	}
	shape := v.Shape()
	n := shape[axis]
	if n < 3 {
		return nil, fmt.Errorf("fft wind: %d azimuths, need at least 3: %w", n, scan.ErrInsufficientData)
	}

	outDims := make([]string, 0, len(shape)-1)
	outShape := make([]int, 0, len(shape)-1)
	for i, d := range v.Dims {
		if i != axis {
			outDims = append(outDims, d)
			outShape = append(outShape, shape[i])
		}
	}
	elevationAt, err := elevationLookup(outDims, outShape, opts)
	if err != nil {
		return nil, err
	}

	mk := func(name string) *dataset.Variable {
		out := dataset.NewVariable(name, outDims, outShape...)
		out.Attrs = AttrsFor(name)
		return out
	}
	h := &Harmonic{
		Phase:       mk(VarPhase),
		Direction:   mk(VarWindDirection),
		RadialSpeed: mk(VarRadialSpeed),
		Speed:       mk(VarWindSpeed),
		Zonal:       mk(VarZonal),
		Meridional:  mk(VarMeridional),
	}

	outer, inner := 1, 1
	for _, s := range shape[:axis] {
		outer *= s
	}
	for _, s := range shape[axis+1:] {
		inner *= s
	}
	fft := fourier.NewFFT(n)
	seq := make([]float64, n)
	coeff := make([]complex128, n/2+1)
	src := v.Data.Elements
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			for k := 0; k < n; k++ {
				seq[k] = src[base+k*inner]
			}
			flat := o*inner + in
			amp := FirstHarmonic(fft, seq, coeff)
			phase, dir, radial, speed, u, vv := WindFromAmplitude(amp, n, elevationAt(flat))
			h.Phase.Data.Elements[flat] = phase
			h.Direction.Data.Elements[flat] = dir
			h.RadialSpeed.Data.Elements[flat] = radial
			h.Speed.Data.Elements[flat] = speed
			h.Zonal.Data.Elements[flat] = u
			h.Meridional.Data.Elements[flat] = vv
		}
	}
	return h, nil
}

func elevationLookup(outDims []string, outShape []int, opts HarmonicOptions) (func(int) float64, error) {
	if opts.ElevationDim == "" {
		e := opts.Elevation
		return func(int) float64 { return e }, nil
	}
	ax := -1
	for i, d := range outDims {
		if d == opts.ElevationDim {
			ax = i
		}
	}
	if ax < 0 {
		return nil, fmt.Errorf("fft wind: no %q axis: %w", opts.ElevationDim, scan.ErrInvalidInput)
	}
	if len(opts.Elevations) != outShape[ax] {
		return nil, fmt.Errorf("fft wind: %d elevations for axis of %d: %w", len(opts.Elevations), outShape[ax], scan.ErrInvalidInput)
	}
	stride := 1
	for _, s := range outShape[ax+1:] {
		stride *= s
	}
	elv, size := opts.Elevations, outShape[ax]
	return func(flat int) float64 { return elv[(flat/stride)%size] }, nil
}
