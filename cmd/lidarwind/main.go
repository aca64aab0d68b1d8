// Command lidarwind retrieves wind profiles and Reynolds stress from
// WindCube sweep files (six-beam, DBS or fixed PPI) and RPG cloud radar
// PPIs, writing NetCDF output plus optional CSV, quicklooks and a sqlite
// run log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/lidarwind/internal/config"
	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/filter"
	"github.com/banshee-data/lidarwind/internal/fsutil"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/ncio"
	"github.com/banshee-data/lidarwind/internal/pipeline"
	"github.com/banshee-data/lidarwind/internal/quicklook"
	"github.com/banshee-data/lidarwind/internal/retrieval"
	"github.com/banshee-data/lidarwind/internal/timeutil"
	"github.com/banshee-data/lidarwind/internal/units"
	"github.com/banshee-data/lidarwind/internal/version"
	"github.com/banshee-data/lidarwind/internal/windstore"
)

// cli holds the parsed command line.
type cli struct {
	mode        string
	configPath  string
	dbPath      string
	outDir      string
	csv         bool
	plots       bool
	heights     []float64
	workers     int
	units       string
	timezone    string
	ceilometer  string
	ceiloVar    string
	cloudRadar  string
	radarVar    string
	extract     string
	quiet       bool
	showVersion bool
	inputs      []string
}

func parseFlags(args []string, stderr io.Writer) (*cli, error) {
	fs := flag.NewFlagSet("lidarwind", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := &cli{}
	fs.StringVar(&c.mode, "mode", pipeline.ModeSixBeam, "Scan strategy: sixbeam, dbs, fixed or radar")
	fs.StringVar(&c.configPath, "config", "", "Processing config JSON (defaults apply when empty)")
	fs.StringVar(&c.dbPath, "db", "", "sqlite database recording runs and profiles (disabled when empty)")
	fs.StringVar(&c.outDir, "out", ".", "Output directory")
	fs.BoolVar(&c.csv, "csv", false, "Also write the resampled wind as CSV")
	fs.BoolVar(&c.plots, "plots", false, "Write PNG and HTML quicklooks of the wind speed")
	heights := fs.String("heights", "200,500,1000", "Comma-separated heights (m) for the PNG quicklook")
	fs.IntVar(&c.workers, "workers", 0, "Concurrent hourly DBS merges (0 keeps the config value)")
	fs.StringVar(&c.units, "units", units.MPS, "Speed units for CSV and plots: "+units.GetValidUnitsString())
	fs.StringVar(&c.timezone, "tz", "UTC", "Timezone for CSV timestamps")
	fs.StringVar(&c.ceilometer, "ceilometer", "", "Ceilometer NetCDF file enabling cloud removal")
	fs.StringVar(&c.ceiloVar, "ceilometer-var", "beta_raw", "Backscatter variable in the ceilometer file")
	fs.StringVar(&c.cloudRadar, "cloud-radar", "", "Cloud radar NetCDF file for the cloud mask")
	fs.StringVar(&c.radarVar, "cloud-radar-var", "Ze", "Reflectivity variable in the cloud radar file")
	fs.StringVar(&c.extract, "extract", "", "Zenith join for fixed PPI scans: full or compact")
	fs.BoolVar(&c.quiet, "quiet", false, "Suppress diagnostic logging")
	fs.BoolVar(&c.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	c.inputs = fs.Args()
	if c.showVersion {
		return c, nil
	}

	var err error
	if c.heights, err = parseCSVFloatSlice(*heights); err != nil {
		return nil, fmt.Errorf("-heights: %w", err)
	}
	if c.units, err = units.Parse(c.units); err != nil {
		return nil, err
	}
	if !units.IsTimezoneValid(c.timezone) {
		return nil, fmt.Errorf("invalid timezone %q", c.timezone)
	}
	switch c.mode {
	case pipeline.ModeSixBeam, pipeline.ModeDBS, pipeline.ModeFixed, pipeline.ModeRadar:
	default:
		return nil, fmt.Errorf("unknown mode %q", c.mode)
	}
	if len(c.inputs) == 0 {
		return nil, errors.New("no input files given")
	}
	return c, nil
}

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func versionString() string {
	return "lidarwind " + version.String()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{}, timeutil.RealClock{}); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("lidarwind: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem, clock timeutil.Clock) error {
	c, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if c.showVersion {
		fmt.Fprintln(stdout, versionString())
		return nil
	}
	if c.quiet {
		monitoring.SetLogger(nil)
	}
	logf := monitoring.Logf

	cfg := config.EmptyProcessingConfig()
	if c.configPath != "" {
		if cfg, err = config.LoadProcessingConfig(c.configPath); err != nil {
			return err
		}
	}
	if c.workers > 0 {
		cfg.Workers = &c.workers
	}

	files, err := fsutil.ExpandInputs(fsys, c.inputs, logf)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Config:        cfg,
		Scans:         ncio.Reader{Logf: logf},
		PPIs:          ncio.Reader{Logf: logf},
		ExtractMethod: c.extract,
		Clock:         clock,
		Logf:          logf,
	}
	if c.ceilometer != "" {
		if opts.Ceilometer, err = ncio.ReadProfiles(c.ceilometer, c.ceiloVar); err != nil {
			return fmt.Errorf("ceilometer: %w", err)
		}
	}
	if c.cloudRadar != "" {
		var p *filter.Profiles
		if p, err = ncio.ReadProfiles(c.cloudRadar, c.radarVar); err != nil {
			return fmt.Errorf("cloud radar: %w", err)
		}
		opts.CloudRadar = p
	}
	runner, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	var store *windstore.Store
	var runID string
	if c.dbPath != "" {
		if store, err = windstore.Open(c.dbPath, logf); err != nil {
			return err
		}
		defer store.Close()
		runID, err = store.InsertRun(windstore.Run{
			Mode:      c.mode,
			Site:      cfg.GetSite().Site,
			Version:   version.Version,
			Files:     len(files),
			StartedAt: clock.Now(),
		})
		if err != nil {
			return err
		}
	}

	res, err := runner.Run(ctx, c.mode, files)
	if err == nil {
		err = writeProducts(c, fsys, res, logf)
	}
	if err == nil && store != nil {
		err = storeProfiles(store, runID, res, logf)
	}
	if store != nil {
		status := windstore.StatusComplete
		if err != nil {
			status = windstore.StatusFailed
		}
		if ferr := store.FinishRun(runID, status, clock.Now()); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d files processed\n", c.mode, res.Files)
	return nil
}

// firstTime returns the first timestamp of the first non-empty time
// coordinate of ds.
func firstTime(ds *dataset.Dataset) (time.Time, bool) {
	for _, name := range ds.CoordNames() {
		if co := ds.Coords[name]; co.IsTime() && len(co.Times) > 0 {
			return co.Times[0], true
		}
	}
	return time.Time{}, false
}

func writeProducts(c *cli, fsys fsutil.FileSystem, res *pipeline.Result, logf monitoring.Logger) error {
	start, ok := firstTime(res.Wind)
	if !ok {
		return errors.New("wind dataset has no time axis")
	}
	if err := fsys.MkdirAll(c.outDir, 0755); err != nil {
		return err
	}
	prefix := "wind_" + c.mode
	path := fsutil.OutputPath(c.outDir, prefix, start, "nc")
	if err := create(fsys, path, func(w io.Writer) error { return ncio.Encode(w, res.Wind) }); err != nil {
		return err
	}
	logf("wrote %s", path)
	if res.Stress != nil {
		path = fsutil.OutputPath(c.outDir, "stress_"+c.mode, start, "nc")
		if err := create(fsys, path, func(w io.Writer) error { return ncio.Encode(w, res.Stress) }); err != nil {
			return err
		}
		logf("wrote %s", path)
	}

	if c.csv {
		var names []string
		for _, name := range []string{retrieval.VarWindSpeed, retrieval.VarWindDirection, retrieval.VarVertical} {
			if _, ok := res.Wind.Var(name); ok {
				names = append(names, name)
			}
		}
		err := create(fsys, fsutil.OutputPath(c.outDir, prefix, start, "csv"), func(w io.Writer) error {
			return quicklook.WriteCSV(w, res.Wind, names, quicklook.CSVOptions{Units: c.units, Timezone: c.timezone})
		})
		if err != nil {
			return err
		}
	}

	if c.plots {
		qo := quicklook.Options{Units: c.units, Logf: logf}
		png := fsutil.OutputPath(c.outDir, "speed_"+c.mode, start, "png")
		err := create(fsys, png, func(w io.Writer) error {
			return quicklook.WritePNG(w, res.Wind, retrieval.VarWindSpeed, c.heights, qo)
		})
		if err != nil {
			return err
		}
		logf("wrote %s", png)
		err = create(fsys, fsutil.OutputPath(c.outDir, "speed_"+c.mode, start, "html"), func(w io.Writer) error {
			return quicklook.RenderHeatmap(w, res.Wind, retrieval.VarWindSpeed, qo)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func create(fsys fsutil.FileSystem, path string, write func(io.Writer) error) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func storeProfiles(store *windstore.Store, runID string, res *pipeline.Result, logf monitoring.Logger) error {
	n, err := store.InsertWindProfiles(runID, res.Wind)
	if err != nil {
		return err
	}
	logf("stored %d wind profiles for run %s", n, runID)
	if res.Stress != nil {
		if n, err = store.InsertStressProfiles(runID, res.Stress); err != nil {
			return err
		}
		logf("stored %d stress profiles for run %s", n, runID)
	}
	return nil
}
