package radar

import (
	"fmt"
	"time"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/retrieval"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// Dimension names of the radar wind dataset.
const (
	DimMeanTime = "mean_time"
	DimRange    = "range"
	DimAzimuth  = "azimuth"
	DimChirp    = "chirp"
)

// HorizontalWind retrieves one wind profile from a preprocessed PPI. The
// result is indexed by the scan mean time so consecutive scans concatenate.
func HorizontalWind(p *Processed) (*dataset.Dataset, error) {
	if p == nil {
		return nil, fmt.Errorf("rpg wind: nil scan: %w", scan.ErrInvalidInput)
	}
	vel := dataset.FromMatrix("mean_doppler_velocity", [2]string{DimAzimuth, DimRange}, p.MeanVel)
	h, err := retrieval.FFTWind(vel, retrieval.HarmonicOptions{AzimuthDim: DimAzimuth, Elevation: p.Elevation})
	if err != nil {
		return nil, fmt.Errorf("rpg wind: %w", err)
	}

	nR := len(p.Height)
	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord(DimMeanTime, []time.Time{p.MeanTime}))
	ds.AddCoord(dataset.NewCoord(DimRange, p.Height, dataset.Attrs{"units": "m", "comments": "height above the antenna"}))
	chirps := make([]float64, len(p.Chirps))
	for i := range chirps {
		chirps[i] = float64(i + 1)
	}
	ds.AddCoord(dataset.NewCoord(DimChirp, chirps, nil))

	profile := func(name string, src []float64, attrs dataset.Attrs) *dataset.Variable {
		v := dataset.NewVariable(name, []string{DimMeanTime, DimRange}, 1, nR)
		copy(v.Data.Elements, src)
		v.Attrs = attrs
		return v
	}
	vars := make([]*dataset.Variable, 0, 10)
	for _, w := range h.Variables() {
		vars = append(vars, profile(w.Name, w.Data.Elements, w.Attrs))
	}
	vars = append(vars,
		profile("zdr_max", p.ZDRMax, dataset.Attrs{"units": "dB", "long_name": "maximum differential reflectivity of the scan"}),
		profile("nan_percentual", p.NaNPercent, dataset.Attrs{"units": "%", "long_name": "missing mean Doppler velocity"}),
		scalar("start_scan", float64(p.StartScan.UnixNano())/1e9, dataset.Attrs{"units": "seconds since 1970-01-01 00:00:00"}),
		scalar("end_scan", float64(p.EndScan.UnixNano())/1e9, dataset.Attrs{"units": "seconds since 1970-01-01 00:00:00"}),
		scalar("azm_seq", float64(p.AzimuthSeq), dataset.Attrs{"comment": "1: azimuth increasing; -1: azimuth decreasing"}),
	)
	if len(p.Chirps) > 0 {
		start := dataset.NewVariable("chirp_start", []string{DimChirp}, len(p.Chirps))
		end := dataset.NewVariable("chirp_end", []string{DimChirp}, len(p.Chirps))
		bias := dataset.NewVariable("chirp_azimuth_bias", []string{DimChirp}, len(p.Chirps))
		for i, c := range p.Chirps {
			start.Set(c.Start, i)
			end.Set(c.End, i)
			bias.Set(0, i)
		}
		vars = append(vars, start, end, bias)
	}
	for _, v := range vars {
		if err := ds.AddVar(v); err != nil {
			return nil, err
		}
	}
	ds.Attrs["elevation"] = fmt.Sprintf("%g", p.Elevation)
	return ds, nil
}

func scalar(name string, x float64, attrs dataset.Attrs) *dataset.Variable {
	v := dataset.NewVariable(name, []string{DimMeanTime}, 1)
	v.Set(x, 0)
	v.Attrs = attrs
	return v
}
