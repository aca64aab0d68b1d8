// Package radar prepares RPG cloud radar PPI scans for the harmonic wind
// estimator: it regrids the mean Doppler velocity from (time, range) onto
// a regular azimuth grid.
package radar

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// FillValue marks missing samples in RPG files.
const FillValue = -999.0

// AzimuthStep is the resolution of the regular azimuth grid in degrees.
const AzimuthStep = 5.0

// Epoch is the reference of the RPG time counters.
var Epoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Chirp is the range extent of one chirp sequence.
type Chirp struct {
	Start, End float64
}

// PPI is one RPG radar PPI sweep with the chirp ranges concatenated.
type PPI struct {
	Time      []time.Time
	Azimuth   []float64
	Elevation []float64
	// Range is the distance from the antenna to the centre of each gate.
	Range   []float64
	MeanVel [][]float64 // time x range
	ZDR     [][]float64 // time x range
	Chirps  []Chirp
}

// DecodeTime combines the whole-second and millisecond counters.
func DecodeTime(sec, ms []float64) ([]time.Time, error) {
	if len(sec) != len(ms) {
		return nil, fmt.Errorf("decode time: %d seconds and %d milliseconds: %w", len(sec), len(ms), scan.ErrInvalidInput)
	}
	out := make([]time.Time, len(sec))
	for i := range sec {
		d := time.Duration(sec[i]*float64(time.Second)) + time.Duration(ms[i]*float64(time.Millisecond))
		out[i] = Epoch.Add(d)
	}
	return out, nil
}

// Validate checks array shapes.
func (p *PPI) Validate() error {
	if p == nil || len(p.Time) == 0 {
		return fmt.Errorf("empty ppi: %w", scan.ErrInsufficientData)
	}
	n := len(p.Time)
	if len(p.Azimuth) != n || len(p.Elevation) != n {
		return fmt.Errorf("ppi has %d times, %d azimuths, %d elevations: %w", n, len(p.Azimuth), len(p.Elevation), scan.ErrInvalidInput)
	}
	for name, m := range map[string][][]float64{"MeanVel": p.MeanVel, "ZDR": p.ZDR} {
		if m == nil && name == "ZDR" {
			continue
		}
		if len(m) != n {
			return fmt.Errorf("ppi %s has %d rows for %d times: %w", name, len(m), n, scan.ErrInvalidInput)
		}
		for _, row := range m {
			if len(row) != len(p.Range) {
				return fmt.Errorf("ppi %s row has %d gates, want %d: %w", name, len(row), len(p.Range), scan.ErrInvalidInput)
			}
		}
	}
	return nil
}

// Processed is a PPI on the regular azimuth grid.
type Processed struct {
	// AzimuthSeq is 1 for increasing azimuths, -1 for decreasing.
	AzimuthSeq int
	Elevation  float64
	// Height is range times the sine of the elevation.
	Height  []float64
	Azimuth []float64
	MeanVel [][]float64 // azimuth x height

	MeanTime  time.Time
	StartScan time.Time
	EndScan   time.Time
	// NaNPercent is the share of missing MeanVel samples per gate in the
	// raw sweep.
	NaNPercent []float64
	ZDRMax     []float64
	Chirps     []Chirp
}

// Preprocess regrids p onto the AzimuthStep grid. Remaining gaps are filled
// with the per-gate azimuth mean so the Fourier transform sees complete
// lanes.
func Preprocess(p *PPI, logf monitoring.Logger) (*Processed, error) {
	logf = monitoring.Named(logf, "rpg")
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("rpg preprocess: %w", err)
	}
	nR := len(p.Range)
	out := &Processed{Elevation: p.Elevation[0], Chirps: append([]Chirp(nil), p.Chirps...)}

	switch d := p.Azimuth[len(p.Azimuth)-1] - p.Azimuth[0]; {
	case d > 0:
		out.AzimuthSeq = 1
	case d < 0:
		out.AzimuthSeq = -1
	}

	sinEl := math.Sin(scan.Deg2Rad(out.Elevation))
	out.Height = make([]float64, nR)
	for g, r := range p.Range {
		out.Height[g] = r * sinEl
	}

	vel := fill(p.MeanVel)
	out.NaNPercent = make([]float64, nR)
	for g := 0; g < nR; g++ {
		missing := 0
		for _, row := range vel {
			if math.IsNaN(row[g]) {
				missing++
			}
		}
		out.NaNPercent[g] = 100 * float64(missing) / float64(len(vel))
	}

	// drop repeated times, keep the first
	keep := make([]int, 0, len(p.Time))
	seen := make(map[int64]bool, len(p.Time))
	for i, t := range p.Time {
		if seen[t.UnixNano()] {
			continue
		}
		seen[t.UnixNano()] = true
		keep = append(keep, i)
	}
	if dropped := len(p.Time) - len(keep); dropped > 0 {
		logf("dropped %d repeated times", dropped)
	}
	times := make([]time.Time, len(keep))
	azm := make([]float64, len(keep))
	rows := make([][]float64, len(keep))
	for j, i := range keep {
		times[j], azm[j], rows[j] = p.Time[i], p.Azimuth[i], vel[i]
	}
	azm = gapFill(times, azm)
	rows = gapFillRows(times, rows, nR)

	out.MeanTime = scan.MeanTime(times)
	out.StartScan, out.EndScan = times[0], times[len(times)-1]
	out.ZDRMax = scan.NaNs(nR)
	if p.ZDR != nil {
		zdr := fill(p.ZDR)
		for g := 0; g < nR; g++ {
			for _, j := range keep {
				if x := zdr[j][g]; !math.IsNaN(x) && (math.IsNaN(out.ZDRMax[g]) || x > out.ZDRMax[g]) {
					out.ZDRMax[g] = x
				}
			}
		}
	}

	// swap time for azimuth, first of each repeated azimuth wins
	first := make(map[float64]bool, len(azm))
	var idx []int
	for j, a := range azm {
		if math.IsNaN(a) || first[a] {
			continue
		}
		first[a] = true
		idx = append(idx, j)
	}
	sort.SliceStable(idx, func(a, b int) bool { return azm[idx[a]] < azm[idx[b]] })
	if len(idx) < 2 {
		return nil, fmt.Errorf("rpg preprocess: %d distinct azimuths: %w", len(idx), scan.ErrInsufficientData)
	}
	xs := make([]float64, len(idx))
	for k, j := range idx {
		xs[k] = azm[j]
	}

	out.Azimuth = floats.Span(make([]float64, int(360/AzimuthStep)), 0, 360-AzimuthStep)
	out.MeanVel = make([][]float64, len(out.Azimuth))
	for a := range out.MeanVel {
		out.MeanVel[a] = make([]float64, nR)
	}
	lane := make([]float64, len(idx))
	for g := 0; g < nR; g++ {
		for k, j := range idx {
			lane[k] = rows[j][g]
		}
		regular := resample.Linear(xs, lane, out.Azimuth)
		var sum float64
		n := 0
		for _, x := range regular {
			if !math.IsNaN(x) {
				sum += x
				n++
			}
		}
		mean := math.NaN()
		if n > 0 {
			mean = sum / float64(n)
		}
		for a, x := range regular {
			if math.IsNaN(x) {
				x = mean
			}
			out.MeanVel[a][g] = x
		}
	}
	logf("regridded %d rays onto %d azimuths, %d gates", len(times), len(out.Azimuth), nR)
	return out, nil
}

func fill(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for g, x := range row {
			if x == FillValue {
				x = math.NaN()
			}
			out[i][g] = x
		}
	}
	return out
}

// gapFill linearly interpolates interior NaNs over time. Leading and
// trailing gaps stay missing.
func gapFill(times []time.Time, ys []float64) []float64 {
	var xs, vs []float64
	secs := resample.Seconds(times, times[0])
	for i, y := range ys {
		if !math.IsNaN(y) {
			xs = append(xs, secs[i])
			vs = append(vs, y)
		}
	}
	if len(xs) == len(ys) {
		return ys
	}
	filled := resample.Linear(xs, vs, secs)
	out := append([]float64(nil), ys...)
	for i, y := range out {
		if math.IsNaN(y) {
			out[i] = filled[i]
		}
	}
	return out
}

func gapFillRows(times []time.Time, rows [][]float64, nR int) [][]float64 {
	out := make([][]float64, len(rows))
	for i := range out {
		out[i] = append([]float64(nil), rows[i]...)
	}
	col := make([]float64, len(rows))
	for g := 0; g < nR; g++ {
		for i := range rows {
			col[i] = rows[i][g]
		}
		filled := gapFill(times, col)
		for i := range rows {
			out[i][g] = filled[i]
		}
	}
	return out
}
