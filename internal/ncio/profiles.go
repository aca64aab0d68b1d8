package ncio

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"

	"github.com/banshee-data/lidarwind/internal/filter"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// ReadProfiles reads the (time, range) variable name of an auxiliary
// instrument file, such as ceilometer beta_raw or radar Ze, into a
// filter.Profiles.
func ReadProfiles(path, name string) (*filter.Profiles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, scan.ErrMissingSweep)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", path, err, scan.ErrMissingSweep)
	}
	ds, err := DecodeDataset(nc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	v, ok := ds.Var(name)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", path, name, scan.ErrMissingVariable)
	}
	if len(v.Dims) != 2 {
		return nil, fmt.Errorf("%s: %s has dims %v, want (time, range): %w", path, name, v.Dims, scan.ErrInvalidInput)
	}
	tc, rc := ds.Coords[v.Dims[0]], ds.Coords[v.Dims[1]]
	if tc == nil || !tc.IsTime() || rc == nil {
		return nil, fmt.Errorf("%s: %s dims %v are not (time, range): %w", path, name, v.Dims, scan.ErrInvalidInput)
	}
	p := &filter.Profiles{Time: tc.Times, Range: rc.Values, Values: make([][]float64, len(tc.Times))}
	nR := len(rc.Values)
	for i := range p.Values {
		p.Values[i] = append([]float64(nil), v.Data.Elements[i*nR:(i+1)*nR]...)
	}
	return p, p.Validate()
}
