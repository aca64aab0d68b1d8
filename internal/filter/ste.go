// Package filter removes second trip echoes and cloud contamination from
// restructured lidar arrays, and builds the ceilometer/radar cloud mask.
package filter

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/rolling"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/timeutil"
)

// STEOptions configure the second-trip-echo filter.
type STEOptions struct {
	// Profiles is the centered rolling mean window, MinPeriods its
	// minimum number of finite samples.
	Profiles   int
	MinPeriods int
	// NStd is the anomaly threshold in standard deviations.
	NStd float64
	// StartHour and EndHour bound the daytime window, exclusive at both
	// ends, over which the anomaly standard deviation is taken.
	StartHour int
	EndHour   int
	Logf      monitoring.Logger
}

// DefaultSTEOptions returns 500 profiles, 30 minimum, 2 sigma, 09-16 h.
func DefaultSTEOptions() STEOptions {
	return STEOptions{Profiles: 500, MinPeriods: 30, NStd: 2, StartHour: 9, EndHour: 16}
}

// STEReport summarizes one filter run.
type STEReport struct {
	// Std is the anomaly standard deviation per slanted azimuth.
	Std   []float64
	Std90 float64
	// Removed counts finite samples set to missing.
	Removed   int
	Removed90 int
}

// SecondTripEcho masks, in place, every slanted and vertical sample whose
// anomaly from the rolling mean is not smaller than NStd standard
// deviations. Retained samples are never modified.
func SecondTripEcho(r *restructure.Restructured, opts STEOptions) (*STEReport, error) {
	logf := monitoring.Named(opts.Logf, "ste")
	if r == nil || r.Slanted == nil || len(r.Time) == 0 {
		return nil, fmt.Errorf("ste filter: no restructured data: %w", scan.ErrInvalidInput)
	}
	if opts.Profiles < 1 || opts.NStd <= 0 {
		return nil, fmt.Errorf("ste filter: profiles %d, n_std %g: %w", opts.Profiles, opts.NStd, scan.ErrInvalidInput)
	}
	from, to := timeutil.DayWindow(r.Time[0], opts.StartHour, opts.EndHour)
	daytime := func(t time.Time) bool { return t.After(from) && t.Before(to) }

	anom, err := anomaly(r.Slanted, restructure.DimTime, opts)
	if err != nil {
		return nil, err
	}
	report := &STEReport{Std: make([]float64, len(r.Azimuth))}
	nR, nA, nE := len(r.Range), len(r.Azimuth), len(r.Elevation)
	idx := func(t, g, a, e int) int { return ((t*nR+g)*nA+a)*nE + e }
	for a := 0; a < nA; a++ {
		var sample []float64
		for t, ts := range r.Time {
			if !daytime(ts) {
				continue
			}
			for g := 0; g < nR; g++ {
				for e := 0; e < nE; e++ {
					if x := anom.Data.Elements[idx(t, g, a, e)]; !math.IsNaN(x) {
						sample = append(sample, x)
					}
				}
			}
		}
		if len(sample) == 0 {
			return nil, fmt.Errorf("ste filter: azimuth %g has no daytime anomaly between %s and %s: %w",
				r.Azimuth[a], from.Format(time.TimeOnly), to.Format(time.TimeOnly), scan.ErrInsufficientData)
		}
		std := stat.PopStdDev(sample, nil)
		report.Std[a] = std
		for t := range r.Time {
			for g := 0; g < nR; g++ {
				for e := 0; e < nE; e++ {
					i := idx(t, g, a, e)
					report.Removed += keepBelow(r.Slanted.Data.Elements, anom.Data.Elements, i, opts.NStd*std)
				}
			}
		}
	}
	logf("slanted: removed %d samples, anomaly std %v", report.Removed, report.Std)

	if r.Vertical == nil {
		return report, nil
	}
	anom90, err := anomaly(r.Vertical, restructure.DimTime90, opts)
	if err != nil {
		return nil, err
	}
	nR90 := len(r.Range90)
	var sample []float64
	for t, ts := range r.Time90 {
		if !daytime(ts) {
			continue
		}
		for g := 0; g < nR90; g++ {
			if x := anom90.At(t, g); !math.IsNaN(x) {
				sample = append(sample, x)
			}
		}
	}
	if len(sample) == 0 {
		return nil, fmt.Errorf("ste filter: vertical beam has no daytime anomaly: %w", scan.ErrInsufficientData)
	}
	report.Std90 = stat.PopStdDev(sample, nil)
	for i := range r.Vertical.Data.Elements {
		report.Removed90 += keepBelow(r.Vertical.Data.Elements, anom90.Data.Elements, i, opts.NStd*report.Std90)
	}
	logf("vertical: removed %d samples, anomaly std %g", report.Removed90, report.Std90)
	return report, nil
}

func anomaly(v *dataset.Variable, dim string, opts STEOptions) (*dataset.Variable, error) {
	mean, err := rolling.Along(v, dim, func(lane []float64) []float64 {
		return rolling.Mean(lane, opts.Profiles, opts.MinPeriods)
	})
	if err != nil {
		return nil, fmt.Errorf("ste filter: %v: %w", err, scan.ErrInvalidInput)
	}
	for i, x := range v.Data.Elements {
		mean.Data.Elements[i] = x - mean.Data.Elements[i]
	}
	return mean, nil
}

// keepBelow sets data[i] to NaN unless |anom[i]| < limit, and reports
// whether a finite value was removed.
func keepBelow(data, anom []float64, i int, limit float64) int {
	if math.Abs(anom[i]) < limit {
		return 0
	}
	removed := 0
	if !math.IsNaN(data[i]) {
		removed = 1
	}
	data[i] = math.NaN()
	return removed
}
