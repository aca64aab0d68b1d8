package quicklook

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/units"
)

// CSVOptions controls WriteCSV.
type CSVOptions struct {
	Units    string
	Timezone string // tz database name; empty means UTC
}

// WriteCSV writes the listed (time, range) variables as long-format rows
// "time,range,<names...>". All variables must share the first one's
// coordinates. Cells where every value is missing are left out; single
// missing values are written as empty fields.
func WriteCSV(w io.Writer, ds *dataset.Dataset, names []string, o CSVOptions) error {
	if len(names) == 0 {
		return fmt.Errorf("quicklook: no variables to export")
	}
	fields := make([]*field, len(names))
	for i, name := range names {
		f, err := fieldOf(ds, name)
		if err != nil {
			return err
		}
		if i > 0 && (f.v.Dims[0] != fields[0].v.Dims[0] || f.v.Dims[1] != fields[0].v.Dims[1]) {
			return fmt.Errorf("quicklook: %s has dims %v, %s has %v", name, f.v.Dims, names[0], fields[0].v.Dims)
		}
		fields[i] = f
	}
	conv := Options{Units: o.Units}
	loc, err := units.Location(o.Timezone)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"time", "range_m"}
	for _, f := range fields {
		col := f.name
		if u := conv.label(f); u != "" {
			col += " (" + u + ")"
		}
		header = append(header, col)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	ref := fields[0]
	row := make([]string, len(header))
	for k, t := range ref.times {
		row[0] = t.In(loc).Format(time.RFC3339)
		for g, r := range ref.ranges {
			row[1] = strconv.FormatFloat(r, 'f', -1, 64)
			empty := true
			for i, f := range fields {
				x := f.v.At(k, g)
				if math.IsNaN(x) {
					row[2+i] = ""
					continue
				}
				empty = false
				row[2+i] = strconv.FormatFloat(conv.convert(f, x), 'f', 4, 64)
			}
			if empty {
				continue
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
