package quicklook

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/scan"
	"github.com/banshee-data/lidarwind/internal/units"
)

// Options controls unit conversion and logging of the renderers.
type Options struct {
	// Units converts speed variables (units attribute "m s-1") for display.
	// Empty means m s-1.
	Units string
	Logf  monitoring.Logger
}

func (o Options) convert(f *field, x float64) float64 {
	if f.units == "m s-1" {
		return units.ConvertSpeed(x, o.Units)
	}
	return x
}

func (o Options) label(f *field) string {
	if f.units == "m s-1" {
		return units.Label(o.Units)
	}
	return f.units
}

const (
	figureWidth  = 14 * vg.Inch
	figureHeight = 6 * vg.Inch
)

// SavePNG plots name against time, one line per requested height (the
// nearest gate is used), and saves the figure to path. The image format
// follows the file extension.
func SavePNG(ds *dataset.Dataset, name string, heights []float64, path string, opts Options) error {
	p, lines, err := timeSeries(ds, name, heights, opts)
	if err != nil {
		return err
	}
	if err := p.Save(figureWidth, figureHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	monitoring.Named(opts.Logf, "quicklook")("saved %s (%d heights)", path, lines)
	return nil
}

// WritePNG renders the same figure as SavePNG as a PNG image to w.
func WritePNG(w io.Writer, ds *dataset.Dataset, name string, heights []float64, opts Options) error {
	p, _, err := timeSeries(ds, name, heights, opts)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(figureWidth, figureHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// timeSeries builds the figure and returns it with the number of heights
// that had data.
func timeSeries(ds *dataset.Dataset, name string, heights []float64, opts Options) (*plot.Plot, int, error) {
	logf := monitoring.Named(opts.Logf, "quicklook")
	f, err := fieldOf(ds, name)
	if err != nil {
		return nil, 0, err
	}
	if len(heights) == 0 {
		return nil, 0, fmt.Errorf("quicklook: no heights for %s: %w", name, scan.ErrInvalidInput)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s from %s", name, f.times[0].Format("2006-01-02 15:04"))
	p.X.Label.Text = "Time (UTC)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}
	p.Y.Label.Text = fmt.Sprintf("%s (%s)", name, opts.label(f))

	lines := 0
	for i, h := range heights {
		g := f.nearestGate(h)
		pts := make(plotter.XYs, 0, len(f.times))
		for k, t := range f.times {
			x := f.v.At(k, g)
			if math.IsNaN(x) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(t.Unix()), Y: opts.convert(f, x)})
		}
		if len(pts) == 0 {
			logf("%s has no data at %g m", name, f.ranges[g])
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, 0, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%.0f m", f.ranges[g]), line)
		lines++
	}
	if lines == 0 {
		return nil, 0, fmt.Errorf("quicklook: %s has no data at the requested heights: %w", name, scan.ErrInsufficientData)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, lines, nil
}
