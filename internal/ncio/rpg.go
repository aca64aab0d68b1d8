package ncio

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"

	"github.com/banshee-data/lidarwind/internal/radar"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// ReadPPI opens an RPG radar PPI file.
func (r Reader) ReadPPI(path string) (*radar.PPI, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, scan.ErrMissingSweep)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", path, err, scan.ErrMissingSweep)
	}
	return DecodePPI(nc, path)
}

// DecodePPI reads Time/Timems, Azm, Elv and the per-chirp C<n>Range,
// C<n>MeanVel and C<n>ZDR variables, concatenating the chirps along range.
func DecodePPI(nc *cdf.File, source string) (*radar.PPI, error) {
	h := nc.Header
	for _, name := range []string{"Time", "Timems", "Azm", "Elv", "C1Range", "C1MeanVel"} {
		if !hasVar(h, name) {
			return nil, fmt.Errorf("%s: no %s variable: %w", source, name, scan.ErrMissingVariable)
		}
	}
	sec, err := readFloats(nc, "Time")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	ms, err := readFloats(nc, "Timems")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	p := &radar.PPI{}
	if p.Time, err = radar.DecodeTime(sec, ms); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if p.Azimuth, err = readFloats(nc, "Azm"); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if p.Elevation, err = readFloats(nc, "Elv"); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	p.MeanVel = make([][]float64, len(p.Time))
	withZDR := true
	for c := 1; hasVar(h, fmt.Sprintf("C%dRange", c)); c++ {
		rng, err := readFloats(nc, fmt.Sprintf("C%dRange", c))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		vel, err := readMatrix(nc, fmt.Sprintf("C%dMeanVel", c))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if len(vel) != len(p.Time) {
			return nil, fmt.Errorf("%s: chirp %d has %d profiles for %d times: %w", source, c, len(vel), len(p.Time), scan.ErrInvalidInput)
		}
		p.Chirps = append(p.Chirps, radar.Chirp{Start: rng[0], End: rng[len(rng)-1]})
		p.Range = append(p.Range, rng...)
		for i := range vel {
			p.MeanVel[i] = append(p.MeanVel[i], vel[i]...)
		}

		zname := fmt.Sprintf("C%dZDR", c)
		if !withZDR || !hasVar(h, zname) {
			withZDR = false
			continue
		}
		zdr, err := readMatrix(nc, zname)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if p.ZDR == nil {
			p.ZDR = make([][]float64, len(p.Time))
		}
		for i := range zdr {
			p.ZDR[i] = append(p.ZDR[i], zdr[i]...)
		}
	}
	if !withZDR {
		p.ZDR = nil
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return p, nil
}
