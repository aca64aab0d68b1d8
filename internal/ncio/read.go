// Package ncio reads WindCube sweeps and RPG radar PPIs from NetCDF classic
// files and writes retrieval datasets back out.
package ncio

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ctessum/cdf"

	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// Reader decodes WindCube sweep files.
type Reader struct {
	Logf monitoring.Logger
}

// ReadScan opens path and decodes one sweep.
func (r Reader) ReadScan(path string) (*scan.Scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, scan.ErrMissingSweep)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", path, err, scan.ErrMissingSweep)
	}
	s, err := DecodeScan(nc, path)
	if err != nil {
		return nil, err
	}
	monitoring.Named(r.Logf, "ncio")("read %s: %d rays, %d gates", path, s.NumRays(), s.NumGates())
	return s, nil
}

// DecodeScan converts an opened NetCDF file into a Scan. Times are
// "seconds since" the time_reference global attribute, falling back to
// the units of the time variable.
func DecodeScan(nc *cdf.File, source string) (*scan.Scan, error) {
	h := nc.Header
	for _, name := range []string{"time", "azimuth", "elevation", "range", scan.VarRadialWindSpeed} {
		if !hasVar(h, name) {
			return nil, fmt.Errorf("%s: no %s variable: %w", source, name, scan.ErrMissingSweep)
		}
	}
	ref, err := timeReference(h)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", source, err, scan.ErrMissingSweep)
	}

	secs, err := readFloats(nc, "time")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	s := &scan.Scan{Source: source, Time: make([]time.Time, len(secs))}
	for i, x := range secs {
		s.Time[i] = ref.Add(time.Duration(x * float64(time.Second)))
	}
	if s.Azimuth, err = readFloats(nc, "azimuth"); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if s.Elevation, err = readFloats(nc, "elevation"); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if s.Range, err = readFloats(nc, "range"); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if s.RadialWindSpeed, err = readMatrix(nc, scan.VarRadialWindSpeed); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	optional := map[string]*[][]float64{
		scan.VarStatus:            &s.Status,
		scan.VarCNR:               &s.CNR,
		scan.VarRelativeBeta:      &s.RelativeBeta,
		scan.VarMeasurementHeight: &s.MeasurementHeight,
	}
	for name, dst := range optional {
		if !hasVar(h, name) {
			continue
		}
		if *dst, err = readMatrix(nc, name); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var sinceRE = regexp.MustCompile(`^\s*seconds\s+since\s+(.+?)\s*$`)

// referenceLayouts are the timestamp forms seen in WindCube headers and CF
// units strings.
var referenceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"20060102 15:04:05",
	"2006-01-02",
}

// ParseReference parses a time reference or a "seconds since" units
// string. References without a zone are UTC.
func ParseReference(s string) (time.Time, error) {
	if m := sinceRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time reference %q", s)
}

func timeReference(h *cdf.Header) (time.Time, error) {
	if ref, ok := h.GetAttribute("", "time_reference").(string); ok && ref != "" {
		return ParseReference(ref)
	}
	if units, ok := h.GetAttribute("time", "units").(string); ok && sinceRE.MatchString(units) {
		return ParseReference(units)
	}
	return time.Time{}, fmt.Errorf("no time_reference")
}

func hasVar(h *cdf.Header, name string) bool {
	for _, v := range h.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// readFloats reads a whole variable as float64, mapping _FillValue to NaN.
func readFloats(nc *cdf.File, name string) ([]float64, error) {
	r := nc.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read %s: %v", name, err)
	}
	var out []float64
	switch b := buf.(type) {
	case []float64:
		out = b
	case []float32:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	case []int32:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	case []int16:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	case []int8:
		out = make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
	default:
		return nil, fmt.Errorf("read %s: unsupported type %T: %w", name, buf, scan.ErrInvalidInput)
	}
	if fill, ok := fillValue(nc.Header, name); ok {
		for i, x := range out {
			if x == fill {
				out[i] = math.NaN()
			}
		}
	}
	return out, nil
}

func fillValue(h *cdf.Header, name string) (float64, bool) {
	switch v := h.GetAttribute(name, "_FillValue").(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

// readMatrix reads a 2-D variable as rows of its first dimension.
func readMatrix(nc *cdf.File, name string) ([][]float64, error) {
	dims := nc.Header.Lengths(name)
	if len(dims) != 2 {
		return nil, fmt.Errorf("%s has %d dimensions, want 2: %w", name, len(dims), scan.ErrInvalidInput)
	}
	flat, err := readFloats(nc, name)
	if err != nil {
		return nil, err
	}
	rows, cols := dims[0], dims[1]
	if rows == 0 {
		// record dimension
		if cols == 0 {
			return nil, nil
		}
		rows = len(flat) / cols
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols]
	}
	return out, nil
}
