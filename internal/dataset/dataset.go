// Package dataset provides the labeled output container shared by the
// estimators, the NetCDF writer and the profile store: named coordinates,
// named N-d variables backed by sparse.DenseArray, and string attributes.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Attrs are CF-style string attributes.
type Attrs map[string]string

// Clone returns a copy of a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Coord is a one-dimensional coordinate. Time coordinates set Times and
// leave Values nil.
type Coord struct {
	Name   string
	Values []float64
	Times  []time.Time
	Attrs  Attrs
}

// NewCoord returns a numeric coordinate.
func NewCoord(name string, values []float64, attrs Attrs) *Coord {
	return &Coord{Name: name, Values: append([]float64(nil), values...), Attrs: attrs.Clone()}
}

// NewTimeCoord returns a time coordinate.
func NewTimeCoord(name string, times []time.Time) *Coord {
	return &Coord{Name: name, Times: append(make([]time.Time, 0, len(times)), times...), Attrs: Attrs{"standard_name": "time"}}
}

// IsTime reports whether c is a time coordinate.
func (c *Coord) IsTime() bool { return c.Times != nil }

// Len returns the coordinate length.
func (c *Coord) Len() int {
	if c.IsTime() {
		return len(c.Times)
	}
	return len(c.Values)
}

// Variable is a named N-d array laid out along Dims.
type Variable struct {
	Name  string
	Dims  []string
	Data  *sparse.DenseArray
	Attrs Attrs
}

// NewVariable returns a NaN-filled variable of the given shape.
func NewVariable(name string, dims []string, shape ...int) *Variable {
	if len(dims) != len(shape) {
		panic(fmt.Sprintf("dataset: variable %s has %d dims but %d lengths", name, len(dims), len(shape)))
	}
	data := sparse.ZerosDense(shape...)
	for i := range data.Elements {
		data.Elements[i] = math.NaN()
	}
	return &Variable{Name: name, Dims: append([]string(nil), dims...), Data: data, Attrs: Attrs{}}
}

// FromMatrix wraps a rows x cols matrix as a 2-D variable.
func FromMatrix(name string, dims [2]string, m [][]float64) *Variable {
	cols := 0
	if len(m) > 0 {
		cols = len(m[0])
	}
	v := NewVariable(name, dims[:], len(m), cols)
	for i, row := range m {
		copy(v.Data.Elements[i*cols:(i+1)*cols], row)
	}
	return v
}

// Shape returns the variable shape.
func (v *Variable) Shape() []int { return v.Data.Shape }

// At returns the element at index.
func (v *Variable) At(index ...int) float64 { return v.Data.Get(index...) }

// Set stores val at index.
func (v *Variable) Set(val float64, index ...int) { v.Data.Set(val, index...) }

// Axis returns the position of dim, or -1.
func (v *Variable) Axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Clone deep-copies v.
func (v *Variable) Clone() *Variable {
	return &Variable{
		Name:  v.Name,
		Dims:  append([]string(nil), v.Dims...),
		Data:  v.Data.Copy(),
		Attrs: v.Attrs.Clone(),
	}
}

// Dataset is a named collection of variables sharing coordinates.
type Dataset struct {
	Coords map[string]*Coord
	Vars   map[string]*Variable
	Attrs  Attrs
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{Coords: map[string]*Coord{}, Vars: map[string]*Variable{}, Attrs: Attrs{}}
}

// AddCoord adds or replaces a coordinate.
func (d *Dataset) AddCoord(c *Coord) { d.Coords[c.Name] = c }

// AddVar adds v after checking that each of its dims is a coordinate of
// matching length.
func (d *Dataset) AddVar(v *Variable) error {
	shape := v.Shape()
	for i, dim := range v.Dims {
		c, ok := d.Coords[dim]
		if !ok {
			return fmt.Errorf("variable %s: unknown dimension %q", v.Name, dim)
		}
		if c.Len() != shape[i] {
			return fmt.Errorf("variable %s: dimension %q has length %d, coordinate has %d", v.Name, dim, shape[i], c.Len())
		}
	}
	d.Vars[v.Name] = v
	return nil
}

// Var returns a variable by name.
func (d *Dataset) Var(name string) (*Variable, bool) {
	v, ok := d.Vars[name]
	return v, ok
}

// VarNames returns the variable names in sorted order.
func (d *Dataset) VarNames() []string {
	out := make([]string, 0, len(d.Vars))
	for k := range d.Vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CoordNames returns the coordinate names in sorted order.
func (d *Dataset) CoordNames() []string {
	out := make([]string, 0, len(d.Coords))
	for k := range d.Coords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MergeAttrs copies a into the global attributes, overwriting existing keys.
func (d *Dataset) MergeAttrs(a Attrs) {
	for k, v := range a {
		d.Attrs[k] = v
	}
}

// Merge adds every coordinate and variable of o to d. Coordinates already
// present must have the same length.
func (d *Dataset) Merge(o *Dataset) error {
	for name, c := range o.Coords {
		if mine, ok := d.Coords[name]; ok && mine.Len() != c.Len() {
			return fmt.Errorf("merge: coordinate %q has length %d and %d", name, mine.Len(), c.Len())
		}
		if _, ok := d.Coords[name]; !ok {
			d.Coords[name] = c
		}
	}
	for _, name := range o.VarNames() {
		if err := d.AddVar(o.Vars[name]); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
	}
	d.MergeAttrs(o.Attrs)
	return nil
}

// Concat joins datasets along their time coordinates, in order. Variables
// whose first dimension is a time coordinate are stacked; every other
// coordinate and variable is taken from the first part and must have the
// same length in all parts.
func Concat(parts []*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat: no datasets")
	}
	first := parts[0]
	out := New()
	out.MergeAttrs(first.Attrs)
	for _, name := range first.CoordNames() {
		c := first.Coords[name]
		if !c.IsTime() {
			for i, p := range parts[1:] {
				pc, ok := p.Coords[name]
				if !ok || pc.Len() != c.Len() {
					return nil, fmt.Errorf("concat: part %d: coordinate %q differs", i+1, name)
				}
			}
			out.AddCoord(NewCoord(name, c.Values, c.Attrs))
			continue
		}
		var times []time.Time
		for i, p := range parts {
			pc, ok := p.Coords[name]
			if !ok || !pc.IsTime() {
				return nil, fmt.Errorf("concat: part %d has no time coordinate %q", i, name)
			}
			times = append(times, pc.Times...)
		}
		tc := NewTimeCoord(name, times)
		tc.Attrs = c.Attrs.Clone()
		out.AddCoord(tc)
	}

	for _, name := range first.VarNames() {
		v := first.Vars[name]
		stack := len(v.Dims) > 0 && first.Coords[v.Dims[0]] != nil && first.Coords[v.Dims[0]].IsTime()
		if !stack {
			if err := out.AddVar(v.Clone()); err != nil {
				return nil, fmt.Errorf("concat: %w", err)
			}
			continue
		}
		shape := append([]int(nil), v.Shape()...)
		shape[0] = out.Coords[v.Dims[0]].Len()
		res := NewVariable(name, v.Dims, shape...)
		res.Attrs = v.Attrs.Clone()
		offset := 0
		for i, p := range parts {
			pv, ok := p.Vars[name]
			if !ok {
				return nil, fmt.Errorf("concat: part %d has no variable %q", i, name)
			}
			if !sameTail(pv.Shape(), v.Shape()) {
				return nil, fmt.Errorf("concat: part %d: variable %q has shape %v, want %v", i, name, pv.Shape(), v.Shape())
			}
			offset += copy(res.Data.Elements[offset:], pv.Data.Elements)
		}
		if err := out.AddVar(res); err != nil {
			return nil, fmt.Errorf("concat: %w", err)
		}
	}
	return out, nil
}

func sameTail(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 1; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
