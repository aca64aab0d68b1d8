// Package testutil provides shared test utilities and fixtures.
//
// The scan builders produce synthetic WindCube-like files for a known wind
// so estimator tests can check recovered values against the truth.
package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/lidarwind/internal/scan"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertFloats compares element-wise within tol; NaN only equals NaN.
func AssertFloats(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		wn, gn := math.IsNaN(want[i]), math.IsNaN(got[i])
		if wn || gn {
			if wn != gn {
				t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
			}
			continue
		}
		if math.Abs(want[i]-got[i]) > tol {
			t.Errorf("[%d] = %v, want %v (tol %g)", i, got[i], want[i], tol)
		}
	}
}

// Wind is a uniform wind vector in m s-1, u east and v north.
type Wind struct {
	U, V, W float64
}

// Radial projects w onto a beam pointing at azimuth/elevation (degrees).
func (w Wind) Radial(azimuth, elevation float64) float64 {
	az, el := azimuth*math.Pi/180, elevation*math.Pi/180
	return w.U*math.Cos(el)*math.Sin(az) + w.V*math.Cos(el)*math.Cos(az) + w.W*math.Sin(el)
}

// Beam is one pointing direction of a scan pattern.
type Beam struct {
	Azimuth, Elevation float64
}

// SixBeam returns five slanted beams 72 degrees apart plus zenith.
func SixBeam(elevation float64) []Beam {
	out := make([]Beam, 0, 6)
	for _, az := range []float64{0, 72, 144, 216, 288} {
		out = append(out, Beam{az, elevation})
	}
	return append(out, Beam{0, 90})
}

// DBS returns the N, E, S, W beams plus zenith.
func DBS(elevation float64) []Beam {
	return []Beam{{0, elevation}, {90, elevation}, {180, elevation}, {270, elevation}, {0, 90}}
}

// PPI returns n evenly spaced beams at a single elevation.
func PPI(elevation float64, n int) []Beam {
	out := make([]Beam, n)
	for i := range out {
		out[i] = Beam{float64(i) * 360 / float64(n), elevation}
	}
	return out
}

// Value fills gate g of the ray at cycle c pointing along b.
type Value func(c int, b Beam, g int) float64

// UniformWind returns a Value for a height-independent wind.
func UniformWind(w Wind) Value {
	return func(_ int, b Beam, _ int) float64 { return w.Radial(b.Azimuth, b.Elevation) }
}

// BuildScan repeats the beam pattern for the given number of cycles, one
// ray every step, with gates every 100 m from 100 m. Status is 1, CNR is
// -10 dB and relative beta is 1e-6 everywhere.
func BuildScan(source string, start time.Time, step time.Duration, beams []Beam, cycles, gates int, value Value) *scan.Scan {
	s := &scan.Scan{Source: source, Range: make([]float64, gates)}
	for g := range s.Range {
		s.Range[g] = float64(g+1) * 100
	}
	i := 0
	for c := 0; c < cycles; c++ {
		for _, b := range beams {
			s.Time = append(s.Time, start.Add(time.Duration(i)*step))
			s.Azimuth = append(s.Azimuth, b.Azimuth)
			s.Elevation = append(s.Elevation, b.Elevation)
			rws := make([]float64, gates)
			st := make([]float64, gates)
			cnr := make([]float64, gates)
			beta := make([]float64, gates)
			h := make([]float64, gates)
			sin := math.Sin(b.Elevation * math.Pi / 180)
			for g := range rws {
				rws[g] = value(c, b, g)
				st[g] = 1
				cnr[g] = -10
				beta[g] = 1e-6
				h[g] = s.Range[g] * sin
			}
			s.RadialWindSpeed = append(s.RadialWindSpeed, rws)
			s.Status = append(s.Status, st)
			s.CNR = append(s.CNR, cnr)
			s.RelativeBeta = append(s.RelativeBeta, beta)
			s.MeasurementHeight = append(s.MeasurementHeight, h)
			i++
		}
	}
	return s
}

// Times returns n timestamps step apart.
func Times(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}
