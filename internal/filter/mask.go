package filter

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/rolling"
)

// Radar equivalent reflectivity profiles.
type Radar = Profiles

// Cloud mask constants.
const (
	maskTimeWindow  = 20
	maskTimeMin     = 13
	maskRangeWindow = 10
	maskRangeMin    = 8
	// HighCloudRange is the range above which a detection flags the
	// profile as having a cloud above the lidar's reach.
	HighCloudRange = 6500.0
)

// Mask flags on the 2-D cloud mask.
const (
	MaskClear      = 0
	MaskRadar      = 1
	MaskCeilometer = 2
	MaskBoth       = 3
)

// CloudMask is a time-height cloud mask on the lidar time axis and the
// ceilometer range axis, plus a per-profile high cloud flag.
type CloudMask struct {
	Time  []time.Time
	Range []float64
	// Mask holds MaskClear..MaskBoth. Nil when no auxiliary data was given.
	Mask [][]float64
	// TimeMask is 1 where a cloud was seen above HighCloudRange. Without
	// auxiliary data it is 1 everywhere.
	TimeMask []float64
}

// NewCloudMask builds the mask for lidarTimes from ceilometer backscatter
// and radar reflectivity. When either is nil only the all-ones time mask
// is produced.
func NewCloudMask(lidarTimes []time.Time, ceilo *Ceilometer, radar *Radar, logf monitoring.Logger) (*CloudMask, error) {
	logf = monitoring.Named(logf, "cloudmask")
	out := &CloudMask{Time: lidarTimes, TimeMask: make([]float64, len(lidarTimes))}
	if ceilo == nil || radar == nil {
		logf("auxiliary mask: ceilometer or radar data missing")
		for i := range out.TimeMask {
			out.TimeMask[i] = 1
		}
		return out, nil
	}
	if err := ceilo.Validate(); err != nil {
		return nil, fmt.Errorf("cloud mask: ceilometer: %w", err)
	}
	if err := radar.Validate(); err != nil {
		return nil, fmt.Errorf("cloud mask: radar: %w", err)
	}

	// time first, then range
	beta := positive(ceilo.Values)
	for g := range ceilo.Range {
		col := make([]float64, len(beta))
		for i := range beta {
			col[i] = beta[i][g]
		}
		m := rolling.Mean(col, maskTimeWindow, maskTimeMin)
		for i := range beta {
			beta[i][g] = m[i]
		}
	}
	for i := range beta {
		beta[i] = rolling.Mean(beta[i], maskRangeWindow, maskRangeMin)
	}
	ceiloOnLidar := regrid(ceilo.Time, ceilo.Range, beta, lidarTimes, nil)
	radarOnLidar := regrid(radar.Time, radar.Range, positive(radar.Values), lidarTimes, ceilo.Range)

	out.Range = ceilo.Range
	out.Mask = make([][]float64, len(lidarTimes))
	for i := range lidarTimes {
		out.Mask[i] = make([]float64, len(ceilo.Range))
		for g, rg := range ceilo.Range {
			var m float64
			if !math.IsNaN(ceiloOnLidar[i][g]) {
				m += MaskCeilometer
			}
			if !math.IsNaN(radarOnLidar[i][g]) {
				m += MaskRadar
			}
			out.Mask[i][g] = m
			if rg > HighCloudRange && m > 0 {
				out.TimeMask[i] = 1
			}
		}
	}
	logf("cloud mask for %d profiles and %d gates", len(lidarTimes), len(ceilo.Range))
	return out, nil
}
