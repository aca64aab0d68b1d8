package ncio

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// TimeUnits is the units attribute of every time coordinate written.
const TimeUnits = "seconds since 1970-01-01 00:00:00"

var epoch = time.Unix(0, 0).UTC()

// WriteFile writes ds to a new NetCDF classic file at path.
func WriteFile(path string, ds *dataset.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, ds); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes ds as a NetCDF classic file to w. The file is built in
// memory first because the format needs random access while writing.
func Encode(w io.Writer, ds *dataset.Dataset) error {
	var buf buffer
	if err := Write(&buf, ds); err != nil {
		return err
	}
	_, err := w.Write(buf.b)
	return err
}

// buffer is an in-memory io.ReaderAt and io.WriterAt.
type buffer struct {
	b []byte
}

func (b *buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if end := int(off) + len(p); end > len(b.b) {
		grown := make([]byte, end, 2*end)
		copy(grown, b.b)
		b.b = grown
	}
	return copy(b.b[off:], p), nil
}

func (b *buffer) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.b)) {
		return 0, io.EOF
	}
	n := copy(p, b.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write encodes ds. Every coordinate becomes a dimension and a variable of
// the same name; time coordinates are stored as TimeUnits.
func Write(rw cdf.ReaderWriterAt, ds *dataset.Dataset) error {
	if ds == nil || len(ds.Vars) == 0 {
		return fmt.Errorf("nothing to write: %w", scan.ErrInsufficientData)
	}
	names := ds.CoordNames()
	lengths := make([]int, len(names))
	for i, name := range names {
		lengths[i] = ds.Coords[name].Len()
		if lengths[i] == 0 {
			return fmt.Errorf("coordinate %s is empty: %w", name, scan.ErrInsufficientData)
		}
	}
	h := cdf.NewHeader(names, lengths)
	for _, k := range sortedKeys(ds.Attrs) {
		h.AddAttribute("", k, ds.Attrs[k])
	}
	for _, name := range names {
		c := ds.Coords[name]
		h.AddVariable(name, []string{name}, []float64{0})
		for _, k := range sortedKeys(c.Attrs) {
			h.AddAttribute(name, k, c.Attrs[k])
		}
		if c.IsTime() {
			h.AddAttribute(name, "units", TimeUnits)
		}
	}
	for _, name := range ds.VarNames() {
		v := ds.Vars[name]
		h.AddVariable(name, v.Dims, []float64{0})
		for _, k := range sortedKeys(v.Attrs) {
			h.AddAttribute(name, k, v.Attrs[k])
		}
	}
	h.Define()

	f, err := cdf.Create(rw, h)
	if err != nil {
		return err
	}
	for _, name := range names {
		c := ds.Coords[name]
		vals := c.Values
		if c.IsTime() {
			vals = make([]float64, len(c.Times))
			for i, t := range c.Times {
				vals[i] = t.Sub(epoch).Seconds()
			}
		}
		if err := writeVar(f, name, vals); err != nil {
			return err
		}
	}
	for _, name := range ds.VarNames() {
		if err := writeVar(f, name, ds.Vars[name].Data.Elements); err != nil {
			return err
		}
	}
	return nil
}

func writeVar(f *cdf.File, name string, data []float64) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadDataset reads a file produced by Write.
func ReadDataset(path string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return DecodeDataset(nc)
}

// DecodeDataset converts an opened file into a Dataset. One-dimensional
// variables named after their dimension are coordinates.
func DecodeDataset(nc *cdf.File) (*dataset.Dataset, error) {
	h := nc.Header
	ds := dataset.New()
	ds.MergeAttrs(stringAttrs(h, ""))
	var data []string
	for _, name := range h.Variables() {
		dims := h.Dimensions(name)
		if len(dims) != 1 || dims[0] != name {
			data = append(data, name)
			continue
		}
		vals, err := readFloats(nc, name)
		if err != nil {
			return nil, err
		}
		attrs := stringAttrs(h, name)
		units := attrs["units"]
		if sinceRE.MatchString(units) {
			ref, err := ParseReference(units)
			if err != nil {
				return nil, fmt.Errorf("coordinate %s: %w", name, err)
			}
			times := make([]time.Time, len(vals))
			for i, x := range vals {
				times[i] = ref.Add(time.Duration(math.Round(x*1e6)) * time.Microsecond)
			}
			c := dataset.NewTimeCoord(name, times)
			delete(attrs, "units")
			for k, v := range attrs {
				c.Attrs[k] = v
			}
			ds.AddCoord(c)
			continue
		}
		ds.AddCoord(dataset.NewCoord(name, vals, attrs))
	}
	for _, name := range data {
		vals, err := readFloats(nc, name)
		if err != nil {
			return nil, err
		}
		arr := sparse.ZerosDense(h.Lengths(name)...)
		if len(arr.Elements) != len(vals) {
			return nil, fmt.Errorf("variable %s: %d values for shape %v: %w", name, len(vals), arr.Shape, scan.ErrInvalidInput)
		}
		copy(arr.Elements, vals)
		v := &dataset.Variable{Name: name, Dims: h.Dimensions(name), Data: arr, Attrs: stringAttrs(h, name)}
		if err := ds.AddVar(v); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func stringAttrs(h *cdf.Header, v string) dataset.Attrs {
	out := dataset.Attrs{}
	for _, a := range h.Attributes(v) {
		if s, ok := h.GetAttribute(v, a).(string); ok {
			out[a] = s
		}
	}
	return out
}

// WriteScan writes s in the WindCube sweep layout read by DecodeScan, with
// times relative to ref.
func WriteScan(path string, s *scan.Scan, ref time.Time) error {
	if err := s.Validate(); err != nil {
		return err
	}
	nRays, nGates := s.NumRays(), s.NumGates()
	h := cdf.NewHeader([]string{"time", "range"}, []int{nRays, nGates})
	h.AddAttribute("", "time_reference", ref.UTC().Format(time.RFC3339Nano))
	ray := map[string][]float64{
		"time":      make([]float64, nRays),
		"azimuth":   s.Azimuth,
		"elevation": s.Elevation,
	}
	for i, t := range s.Time {
		ray["time"][i] = t.Sub(ref).Seconds()
	}
	gates := map[string][][]float64{
		scan.VarRadialWindSpeed:   s.RadialWindSpeed,
		scan.VarStatus:            s.Status,
		scan.VarCNR:               s.CNR,
		scan.VarRelativeBeta:      s.RelativeBeta,
		scan.VarMeasurementHeight: s.MeasurementHeight,
	}
	for _, name := range []string{"time", "azimuth", "elevation"} {
		h.AddVariable(name, []string{"time"}, []float64{0})
	}
	h.AddVariable("range", []string{"range"}, []float64{0})
	h.AddAttribute("range", "units", "m")
	for _, name := range sortedMatrixKeys(gates) {
		h.AddVariable(name, []string{"time", "range"}, []float32{0})
	}
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeScan(f, h, ray, s.Range, gates, nRays, nGates); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeScan(f *os.File, h *cdf.Header, ray map[string][]float64, rng []float64, gates map[string][][]float64, nRays, nGates int) error {
	nc, err := cdf.Create(f, h)
	if err != nil {
		return err
	}
	for name, vals := range ray {
		if err := writeVar(nc, name, vals); err != nil {
			return err
		}
	}
	if err := writeVar(nc, "range", rng); err != nil {
		return err
	}
	for _, name := range sortedMatrixKeys(gates) {
		flat := make([]float32, 0, nRays*nGates)
		for _, row := range gates[name] {
			for _, x := range row {
				flat = append(flat, float32(x))
			}
		}
		w := nc.Writer(name, []int{0, 0}, []int{nRays, nGates})
		if _, err := w.Write(flat); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func sortedMatrixKeys(m map[string][][]float64) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(a dataset.Attrs) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
