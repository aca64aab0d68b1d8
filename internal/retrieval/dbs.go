package retrieval

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/resample"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// DBS timing strategies.
const (
	SingleDBS  = "single_dbs"
	Continuous = "continuous"
)

// DBSOptions configure the five-beam estimator.
type DBSOptions struct {
	Filter scan.Filter
	// Method is SingleDBS (pair beams on their scan mean time) or
	// Continuous (pair beams by nearest time within Tolerance).
	Method    string
	Tolerance time.Duration
	Logf      monitoring.Logger
}

// DefaultDBSOptions filters on status and pairs beams per scan.
func DefaultDBSOptions() DBSOptions {
	return DBSOptions{Filter: scan.Filter{Status: true}, Method: SingleDBS, Tolerance: 8 * time.Second}
}

// beam is one cardinal beam's horizontal component series.
type beam struct {
	name  string
	times []time.Time
	rows  [][]float64
}

// RetrieveDBS derives u, v, speed and direction from the four cardinal
// slanted beams of Doppler-beam-swinging scans, and copies w from the
// zenith beam. The range axis is the measurement height of the first
// zenith ray.
func RetrieveDBS(m *scan.Merged, opts DBSOptions) (*dataset.Dataset, error) {
	logf := monitoring.Named(opts.Logf, "dbs")
	if m == nil {
		return nil, fmt.Errorf("dbs: nil merged data: %w", scan.ErrInvalidInput)
	}
	if opts.Method == "" {
		opts.Method = SingleDBS
	}
	if opts.Method != SingleDBS && opts.Method != Continuous {
		return nil, fmt.Errorf("dbs: unknown method %q: %w", opts.Method, scan.ErrInvalidInput)
	}
	if m.Vertical.Len() == 0 {
		return nil, fmt.Errorf("dbs: zenith beam is empty: %w", scan.ErrInsufficientData)
	}
	if m.Slanted.Len() == 0 {
		return nil, fmt.Errorf("dbs: slanted beams are empty: %w", scan.ErrInsufficientData)
	}
	if m.Slanted.NumGates() != m.Vertical.NumGates() {
		return nil, fmt.Errorf("dbs: %d slanted gates, %d zenith gates: %w",
			m.Slanted.NumGates(), m.Vertical.NumGates(), scan.ErrInvalidInput)
	}
	if opts.Method == SingleDBS && m.Slanted.MeanTime == nil {
		return nil, fmt.Errorf("dbs: scan_mean_time: %w", scan.ErrMissingVariable)
	}

	rws, err := opts.Filter.Mask(m.Slanted, scan.VarRadialWindSpeed)
	if err != nil {
		return nil, fmt.Errorf("dbs: %w", err)
	}
	heights := m.Vertical.Heights(0)

	beams := map[float64]*beam{0: {name: "north"}, 90: {name: "east"}, 180: {name: "south"}, 270: {name: "west"}}
	for i := 0; i < m.Slanted.Len(); i++ {
		b, ok := beams[m.Slanted.Azimuth[i]]
		if !ok {
			continue
		}
		div := 2 * math.Cos(scan.Deg2Rad(m.Slanted.Elevation[i]))
		row := make([]float64, len(rws[i]))
		for g, x := range rws[i] {
			row[g] = x / div
		}
		t := m.Slanted.Time[i]
		if opts.Method == SingleDBS {
			t = m.Slanted.MeanTime[i]
		}
		b.times = append(b.times, t)
		b.rows = append(b.rows, row)
	}
	for _, az := range []float64{0, 90, 180, 270} {
		if len(beams[az].times) == 0 {
			return nil, fmt.Errorf("dbs: %s beam (azimuth %g) is empty: %w", beams[az].name, az, scan.ErrInsufficientData)
		}
	}

	var times []time.Time
	var u, v [][]float64
	if opts.Method == SingleDBS {
		logf("calculating the horizontal wind using the single DBS method")
		vt, vv := difference(beams[0], beams[180], joinExact(beams[0].times, beams[180].times))
		ut, uu := difference(beams[90], beams[270], joinExact(beams[90].times, beams[270].times))
		pair := joinExact(vt, ut)
		for _, p := range pair {
			times = append(times, vt[p[0]])
			v = append(v, vv[p[0]])
			u = append(u, uu[p[1]])
		}
	} else {
		logf("calculating the horizontal wind using the continuous DBS method")
		vt, vv := difference(beams[0], beams[180], joinNearest(beams[0].times, beams[180].times, opts.Tolerance))
		ut, uu := difference(beams[90], beams[270], joinNearest(beams[90].times, beams[270].times, opts.Tolerance))
		idx := resample.NearestDense(vt, ut, opts.Tolerance)
		times, v = vt, vv
		u = make([][]float64, len(vt))
		for i, j := range idx {
			if j == resample.Missing {
				u[i] = scan.NaNs(len(heights))
				continue
			}
			u[i] = uu[j]
		}
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("dbs: no complete beam set: %w", scan.ErrInsufficientData)
	}

	speed := make([][]float64, len(times))
	dir := make([][]float64, len(times))
	for i := range times {
		speed[i] = make([]float64, len(heights))
		dir[i] = make([]float64, len(heights))
		for g := range heights {
			speed[i][g] = math.Sqrt(u[i][g]*u[i][g] + v[i][g]*v[i][g])
			dir[i][g] = scan.WrapDirection(180 + scan.Rad2Deg(math.Atan2(-u[i][g], -v[i][g])))
		}
	}

	w, err := opts.Filter.Mask(m.Vertical, scan.VarRadialWindSpeed)
	if err != nil {
		return nil, fmt.Errorf("dbs: zenith: %w", err)
	}

	ds := dataset.New()
	ds.AddCoord(dataset.NewTimeCoord("time", times))
	ds.AddCoord(dataset.NewTimeCoord("time90", m.Vertical.Time))
	ds.AddCoord(dataset.NewCoord("range", heights, nil))
	dims := [2]string{"time", "range"}
	for _, x := range []*dataset.Variable{
		dataset.FromMatrix(VarZonal, dims, u),
		dataset.FromMatrix(VarMeridional, dims, v),
		dataset.FromMatrix(VarWindSpeed, dims, speed),
		dataset.FromMatrix(VarWindDirection, dims, dir),
		dataset.FromMatrix(VarVertical, [2]string{"time90", "range"}, w),
	} {
		if err := ds.AddVar(x); err != nil {
			return nil, err
		}
	}
	LoadAttributes(ds, "DBS wind properties")
	for _, name := range []string{VarZonal, VarMeridional, VarWindSpeed, VarWindDirection} {
		ds.Vars[name].Attrs["comments"] = "retrieved using the DBS method"
	}
	logf("retrieved %d profiles", len(times))
	return ds, nil
}

// difference returns -(a - b) for the given index pairs, on a's times.
func difference(a, b *beam, pairs [][2]int) ([]time.Time, [][]float64) {
	times := make([]time.Time, len(pairs))
	rows := make([][]float64, len(pairs))
	for k, p := range pairs {
		times[k] = a.times[p[0]]
		if p[1] < 0 {
			rows[k] = scan.NaNs(len(a.rows[p[0]]))
			continue
		}
		ra, rb := a.rows[p[0]], b.rows[p[1]]
		row := make([]float64, len(ra))
		for g := range ra {
			row[g] = -(ra[g] - rb[g])
		}
		rows[k] = row
	}
	return times, rows
}

// joinExact pairs equal timestamps, in a's order. A repeated timestamp
// pairs with its first occurrence in b; repeats in a are dropped.
func joinExact(a, b []time.Time) [][2]int {
	first := make(map[int64]int, len(b))
	for j := len(b) - 1; j >= 0; j-- {
		first[b[j].UnixNano()] = j
	}
	seen := make(map[int64]bool, len(a))
	var out [][2]int
	for i, t := range a {
		k := t.UnixNano()
		if seen[k] {
			continue
		}
		seen[k] = true
		if j, ok := first[k]; ok {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

// joinNearest pairs every a with its nearest b within tol, or -1.
func joinNearest(a, b []time.Time, tol time.Duration) [][2]int {
	idx := resample.NearestDense(a, b, tol)
	out := make([][2]int, len(a))
	for i, j := range idx {
		out[i] = [2]int{i, j}
	}
	return out
}
