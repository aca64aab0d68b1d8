package filter

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/rolling"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// Profiles is a (time, range) field from an auxiliary instrument.
type Profiles struct {
	Time   []time.Time
	Range  []float64
	Values [][]float64 // time x range
}

// Validate checks the field against its axes.
func (p *Profiles) Validate() error {
	if p == nil || len(p.Time) == 0 || len(p.Range) == 0 {
		return fmt.Errorf("empty profiles: %w", scan.ErrInsufficientData)
	}
	if len(p.Values) != len(p.Time) {
		return fmt.Errorf("%d profiles for %d times: %w", len(p.Values), len(p.Time), scan.ErrInvalidInput)
	}
	for i, row := range p.Values {
		if len(row) != len(p.Range) {
			return fmt.Errorf("profile %d has %d gates, want %d: %w", i, len(row), len(p.Range), scan.ErrInvalidInput)
		}
	}
	return nil
}

// Ceilometer backscatter (beta_raw) profiles.
type Ceilometer = Profiles

// Cloud removal constants.
const (
	noiseRangeWindow   = 10
	noiseTimeWindow    = 15
	interfaceMaxHeight = 4000.0
	interfaceWindow    = 7
	interfaceMin       = 5
)

// smooth applies centered rolling means along range then along time.
func smooth(field [][]float64, rangeWindow, rangeMin, timeWindow, timeMin int) [][]float64 {
	out := make([][]float64, len(field))
	for i, row := range field {
		out[i] = rolling.Mean(row, rangeWindow, rangeMin)
	}
	if len(out) == 0 {
		return out
	}
	col := make([]float64, len(out))
	for g := range out[0] {
		for i := range out {
			col[i] = out[i][g]
		}
		m := rolling.Mean(col, timeWindow, timeMin)
		for i := range out {
			out[i][g] = m[i]
		}
	}
	return out
}

// InterfaceHeight returns, per ceilometer profile, the highest range below
// 4 km where the smoothed positive backscatter is finite: the height that
// separates signal from noise. The series is itself smoothed over time.
func InterfaceHeight(c *Ceilometer) ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("interface height: %w", err)
	}
	pos := positive(c.Values)
	noiseFree := smooth(pos, noiseRangeWindow, noiseRangeWindow, noiseTimeWindow, noiseTimeWindow)
	h := make([]float64, len(c.Time))
	for i := range h {
		h[i] = math.NaN()
		for g, r := range c.Range {
			if math.IsNaN(pos[i][g]) || !(r < interfaceMaxHeight) || math.IsNaN(noiseFree[i][g]) {
				continue
			}
			if math.IsNaN(h[i]) || r > h[i] {
				h[i] = r
			}
		}
	}
	return rolling.Mean(h, interfaceWindow, interfaceMin), nil
}

// CloudReport summarizes one cloud removal.
type CloudReport struct {
	// Interface is the noise interface height on the ceilometer times.
	Interface []float64
	Removed   int
	Removed90 int
}

// RemoveClouds masks, in place, every lidar sample at or above the
// ceilometer noise interface interpolated to the lidar time. Where the
// interface is unknown the whole profile is masked.
func RemoveClouds(r *restructure.Restructured, c *Ceilometer, logf monitoring.Logger) (*CloudReport, error) {
	logf = monitoring.Named(logf, "clouds")
	if r == nil || r.Slanted == nil {
		return nil, fmt.Errorf("cloud removal: no restructured data: %w", scan.ErrInvalidInput)
	}
	h, err := InterfaceHeight(c)
	if err != nil {
		return nil, fmt.Errorf("cloud removal: %w", err)
	}
	report := &CloudReport{Interface: h}

	ht := resample.LinearTime(c.Time, h, r.Time)
	nR := len(r.Range)
	inner := len(r.Azimuth) * len(r.Elevation)
	for t := range r.Time {
		for g, rg := range r.Range {
			if rg < ht[t] {
				continue
			}
			base := (t*nR + g) * inner
			for k := base; k < base+inner; k++ {
				report.Removed += mask(r.Slanted.Data.Elements, k)
			}
		}
	}
	if r.Vertical != nil {
		ht90 := resample.LinearTime(c.Time, h, r.Time90)
		for t := range r.Time90 {
			for g, rg := range r.Range90 {
				if rg < ht90[t] {
					continue
				}
				report.Removed90 += mask(r.Vertical.Data.Elements, t*len(r.Range90)+g)
				if r.RelativeBeta90 != nil {
					r.RelativeBeta90.Set(math.NaN(), t, g)
				}
			}
		}
	}
	logf("removed %d slanted and %d vertical samples above the noise interface", report.Removed, report.Removed90)
	return report, nil
}

func mask(data []float64, i int) int {
	if math.IsNaN(data[i]) {
		return 0
	}
	data[i] = math.NaN()
	return 1
}
