// Package pipeline chains the retrieval steps for each scan strategy:
// six-beam, DBS, fixed PPI and RPG radar PPI.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/lidarwind/internal/config"
	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/filter"
	"github.com/banshee-data/lidarwind/internal/ingest"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/radar"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/restructure"
	"github.com/banshee-data/lidarwind/internal/retrieval"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/timeutil"
	"github.com/banshee-data/lidarwind/internal/version"
)

// Modes
const (
	ModeSixBeam = "sixbeam"
	ModeDBS     = "dbs"
	ModeFixed   = "fixed"
	ModeRadar   = "radar"
)

// PPIReader decodes one RPG radar PPI file.
type PPIReader interface {
	ReadPPI(path string) (*radar.PPI, error)
}

// Options wire a Runner to its collaborators.
type Options struct {
	Config *config.ProcessingConfig
	Scans  ingest.ScanReader
	PPIs   PPIReader

	// Ceilometer enables cloud removal in the six-beam chain and, with
	// CloudRadar, the auxiliary cloud mask.
	Ceilometer *filter.Ceilometer
	CloudRadar *filter.Radar

	// ExtractMethod is restructure.ExtractFull or ExtractCompact for the
	// fixed PPI chain. Empty means full.
	ExtractMethod string

	Clock timeutil.Clock
	Logf  monitoring.Logger
}

// Result is the output of one chain. Wind and Stress are on the resampled
// reference grid; WindNative keeps the retrieval's own time axes.
type Result struct {
	Mode       string
	Files      int
	WindNative *dataset.Dataset
	Wind       *dataset.Dataset
	Stress     *dataset.Dataset // six-beam only
	STE        *filter.STEReport
	Clouds     *filter.CloudReport
	CloudMask  *filter.CloudMask
}

// Runner runs retrieval chains with one configuration.
type Runner struct {
	cfg   *config.ProcessingConfig
	opts  Options
	clock timeutil.Clock
	logf  monitoring.Logger
}

// New validates the configuration and returns a Runner. A nil Config uses
// the built-in defaults.
func New(opts Options) (*Runner, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyProcessingConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{cfg: cfg, opts: opts, clock: clock, logf: monitoring.Named(opts.Logf, "pipeline")}, nil
}

func (p *Runner) mergeOptions() scan.MergeOptions {
	return scan.MergeOptions{
		AzimuthDecimals:   p.cfg.GetAzimuthDecimals(),
		ElevationDecimals: p.cfg.GetElevationDecimals(),
		Logf:              p.opts.Logf,
	}
}

func (p *Runner) filter() scan.Filter {
	return scan.Filter{Status: p.cfg.GetStatusFilter(), CNR: p.cfg.GetCNRThreshold()}
}

func (p *Runner) steOptions() filter.STEOptions {
	return filter.STEOptions{
		Profiles:   p.cfg.GetSTEProfiles(),
		MinPeriods: p.cfg.GetSTEMinPeriods(),
		NStd:       p.cfg.GetSTENStd(),
		StartHour:  p.cfg.GetSTEStartHour(),
		EndHour:    p.cfg.GetSTEEndHour(),
		Logf:       p.opts.Logf,
	}
}

func (p *Runner) resampleOptions(first time.Time) resample.Options {
	freq := p.cfg.GetResampleFrequency()
	return resample.Options{
		Frequency: freq,
		Tolerance: p.cfg.GetResampleTolerance(),
		Grid:      resample.TimeReference(first, freq),
		Logf:      p.opts.Logf,
	}
}

func (p *Runner) needScans() error {
	if p.opts.Scans == nil {
		return fmt.Errorf("pipeline: no scan reader: %w", scan.ErrInvalidInput)
	}
	return nil
}

// SixBeam runs merge, restructure, second-trip-echo filter, optional cloud
// removal, FFT wind and the six-beam stress tensor, then resamples both
// onto the reference grid.
func (p *Runner) SixBeam(ctx context.Context, files []string) (*Result, error) {
	if err := p.needScans(); err != nil {
		return nil, err
	}
	p.logf("six beam: %d files", len(files))
	m, err := ingest.MergeScans(p.opts.Scans, files, p.mergeOptions())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := restructure.New(m, restructure.Options{
		Filter:    p.filter(),
		Check90:   true,
		Tolerance: p.cfg.GetRestructureTolerance(),
		Logf:      p.opts.Logf,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Mode: ModeSixBeam, Files: len(files)}
	if res.STE, err = filter.SecondTripEcho(r, p.steOptions()); err != nil {
		return nil, err
	}
	if p.opts.Ceilometer != nil {
		if res.Clouds, err = filter.RemoveClouds(r, p.opts.Ceilometer, p.opts.Logf); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wind, err := retrieval.RetrieveWindFFT(r, p.opts.Logf)
	if err != nil {
		return nil, err
	}
	sb, err := retrieval.NewSixBeamFor(r, p.cfg.GetVarianceWindow(), p.cfg.GetVarianceWindow90(), p.opts.Logf)
	if err != nil {
		return nil, err
	}
	stress, err := sb.Retrieve(r)
	if err != nil {
		return nil, err
	}
	if err := p.cloudMask(res, wind, r.Time); err != nil {
		return nil, err
	}

	ro := p.resampleOptions(r.Time[0])
	res.WindNative = wind
	if res.Wind, err = resample.Dataset(wind, ro); err != nil {
		return nil, fmt.Errorf("resample wind: %w", err)
	}
	if res.Stress, err = resample.Dataset(stress, ro); err != nil {
		return nil, fmt.Errorf("resample stress: %w", err)
	}
	p.finish(res.Wind, ModeSixBeam, "Wind properties")
	p.finish(res.Stress, ModeSixBeam, "Reynolds stress tensor")
	return res, nil
}

// DBS merges the hourly groups concurrently, tags every ray with its scan
// mean time and runs the five-beam estimator.
func (p *Runner) DBS(ctx context.Context, groups []ingest.Group) (*Result, error) {
	if err := p.needScans(); err != nil {
		return nil, err
	}
	vars := []string{scan.VarRadialWindSpeed, scan.VarMeasurementHeight}
	if p.cfg.GetStatusFilter() {
		vars = append(vars, scan.VarStatus)
	}
	if p.cfg.GetCNRThreshold() != nil {
		vars = append(vars, scan.VarCNR)
	}
	files := 0
	for _, g := range groups {
		files += len(g.Files)
	}
	p.logf("dbs: %d files in %d hourly groups", files, len(groups))
	merge := func(fs []string) (*scan.Merged, error) {
		return ingest.MergeDBS(p.opts.Scans, fs, vars, p.mergeOptions())
	}
	m, err := ingest.MergeHourly(ctx, groups, p.cfg.GetWorkers(), merge, p.opts.Logf)
	if err != nil {
		return nil, err
	}
	wind, err := retrieval.RetrieveDBS(m, retrieval.DBSOptions{
		Filter:    p.filter(),
		Method:    p.cfg.GetDBSMethod(),
		Tolerance: p.cfg.GetDBSTolerance(),
		Logf:      p.opts.Logf,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Mode: ModeDBS, Files: files, WindNative: wind}
	first := wind.Coords["time"].Times
	if len(first) == 0 {
		return nil, fmt.Errorf("dbs: no paired scans: %w", scan.ErrInsufficientData)
	}
	if err := p.cloudMask(res, wind, first); err != nil {
		return nil, err
	}
	if res.Wind, err = resample.Dataset(wind, p.resampleOptions(first[0])); err != nil {
		return nil, fmt.Errorf("resample wind: %w", err)
	}
	p.finish(res.Wind, ModeDBS, "Wind properties")
	return res, nil
}

// Fixed retrieves wind from single-elevation PPI scans: each azimuth is
// aligned by scan cycle, the harmonic estimator runs on every cycle and the
// result is joined with the zenith beam when the batch has one.
func (p *Runner) Fixed(ctx context.Context, files []string) (*Result, error) {
	if err := p.needScans(); err != nil {
		return nil, err
	}
	p.logf("fixed ppi: %d files", len(files))
	m, err := ingest.MergeScans(p.opts.Scans, files, p.mergeOptions())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := restructure.ByScanCycle(m.Slanted, p.filter(), p.opts.Logf)
	if err != nil {
		return nil, err
	}
	wind, err := retrieval.RetrieveWindFFT(r, p.opts.Logf)
	if err != nil {
		return nil, err
	}
	if m.Vertical.Len() > 0 {
		method := p.opts.ExtractMethod
		if method == "" {
			method = restructure.ExtractFull
		}
		if wind, err = restructure.ExtractWind(wind, r.Elevation[0], m.Vertical, method); err != nil {
			return nil, err
		}
		retrieval.LoadAttributes(wind, "Wind properties")
	} else {
		p.logf("no zenith beam, horizontal wind only")
	}
	res := &Result{Mode: ModeFixed, Files: len(files), WindNative: wind}
	if err := p.cloudMask(res, wind, r.Time); err != nil {
		return nil, err
	}
	if res.Wind, err = resample.Dataset(wind, p.resampleOptions(r.Time[0])); err != nil {
		return nil, fmt.Errorf("resample wind: %w", err)
	}
	p.finish(res.Wind, ModeFixed, "Wind properties")
	return res, nil
}

// Radar retrieves one wind profile per RPG PPI file and stacks them along
// the scan mean time. Unreadable or degenerate scans are logged and
// skipped.
func (p *Runner) Radar(ctx context.Context, files []string) (*Result, error) {
	if p.opts.PPIs == nil {
		return nil, fmt.Errorf("pipeline: no PPI reader: %w", scan.ErrInvalidInput)
	}
	read := func(path string) (*dataset.Dataset, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ppi, err := p.opts.PPIs.ReadPPI(path)
		if err != nil {
			return nil, err
		}
		pp, err := radar.Preprocess(ppi, p.opts.Logf)
		if err != nil {
			return nil, err
		}
		return radar.HorizontalWind(pp)
	}
	wind, err := ingest.ReadProcessed(files, read, p.opts.Logf)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{Mode: ModeRadar, Files: len(files), WindNative: wind, Wind: wind}
	p.finish(res.Wind, ModeRadar, "Cloud radar wind properties")
	return res, nil
}

// Run dispatches on mode. DBS files are grouped by the hour in their name.
func (p *Runner) Run(ctx context.Context, mode string, files []string) (*Result, error) {
	switch mode {
	case ModeSixBeam:
		return p.SixBeam(ctx, files)
	case ModeDBS:
		if len(files) == 0 {
			return nil, scan.ErrNoFiles
		}
		return p.DBS(ctx, ingest.GroupByHour(files, p.opts.Logf))
	case ModeFixed:
		return p.Fixed(ctx, files)
	case ModeRadar:
		return p.Radar(ctx, files)
	default:
		return nil, fmt.Errorf("unknown mode %q: %w", mode, scan.ErrInvalidInput)
	}
}

// cloudMask attaches the auxiliary cloud mask on the lidar times when a
// ceilometer is configured.
func (p *Runner) cloudMask(res *Result, wind *dataset.Dataset, times []time.Time) error {
	if p.opts.Ceilometer == nil {
		return nil
	}
	cm, err := filter.NewCloudMask(times, p.opts.Ceilometer, p.opts.CloudRadar, p.opts.Logf)
	if err != nil {
		return err
	}
	res.CloudMask = cm
	tdim := "time"
	if wind.Coords[tdim] == nil || len(wind.Coords[tdim].Times) != len(times) {
		return nil
	}
	tm := dataset.NewVariable("cloud_time_mask", []string{tdim}, len(times))
	copy(tm.Data.Elements, cm.TimeMask)
	tm.Attrs = dataset.Attrs{"long_name": "cloud above 6500 m", "comments": "1 when the ceilometer or radar saw a cloud above the lidar range"}
	return wind.AddVar(tm)
}

// finish stamps site metadata and the processing history on ds.
func (p *Runner) finish(ds *dataset.Dataset, mode, title string) {
	if ds == nil {
		return
	}
	ds.MergeAttrs(p.cfg.GetSite().Attributes())
	ds.Attrs["title"] = title
	ds.Attrs["scan_strategy"] = mode
	ds.Attrs["history"] = fmt.Sprintf("%s: processed by lidarwind %s",
		p.clock.Now().UTC().Format(time.RFC3339), version.String())
}
