package quicklook

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/scan"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderHeatmap writes a self-contained HTML time-height chart of name to
// w. Each finite cell becomes one point (hours since the first profile,
// range, value) coloured by value.
func RenderHeatmap(w io.Writer, ds *dataset.Dataset, name string, o Options) error {
	logf := monitoring.Named(o.Logf, "quicklook")
	f, err := fieldOf(ds, name)
	if err != nil {
		return err
	}
	lo, hi, ok := f.finiteRange()
	if !ok {
		return fmt.Errorf("quicklook: %s has no finite values: %w", name, scan.ErrInsufficientData)
	}
	lo, hi = o.convert(f, lo), o.convert(f, hi)

	start := f.times[0]
	data := make([]opts.ScatterData, 0, len(f.v.Data.Elements))
	for k, t := range f.times {
		hours := t.Sub(start).Hours()
		for g, r := range f.ranges {
			x := f.v.At(k, g)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{hours, r, o.convert(f, x)}})
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: name, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: name, Subtitle: fmt.Sprintf("from %s UTC, %d cells, %s", start.Format("2006-01-02 15:04"), len(data), o.label(f))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "hours", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Name: "range (m)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("quicklook: render %s: %w", name, err)
	}
	logf("rendered %s with %d cells", name, len(data))
	return nil
}
