package windstore

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/retrieval"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Run describes one invocation of the pipeline.
type Run struct {
	ID         string
	Mode       string
	Site       string
	Version    string
	Files      int
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// WindProfile is one (time, range) cell of a horizontal wind retrieval.
// Missing values are NaN.
type WindProfile struct {
	Time       time.Time
	Range      float64
	Speed      float64
	Direction  float64
	Zonal      float64
	Meridional float64
}

// StressProfile is one (time, range) cell of a Reynolds stress tensor.
type StressProfile struct {
	Time  time.Time
	Range float64
	// VarU, VarV, VarW, VarUV, VarUW, VarVW in the order of
	// retrieval.StressComponents.
	Components [6]float64
}

// InsertRun records r and returns its id. An empty ID gets a new UUID and
// an empty Status becomes StatusRunning.
func (s *Store) InsertRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	if r.StartedAt.IsZero() {
		return "", fmt.Errorf("run %s has no start time: %w", r.ID, scan.ErrInvalidInput)
	}
	_, err := s.Exec(`
		INSERT INTO processing_runs (run_id, mode, site, version, files, status, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.Site, r.Version, r.Files, r.Status, unixSeconds(r.StartedAt), nullTime(r.FinishedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	s.logf("run %s started (%s, %d files)", r.ID, r.Mode, r.Files)
	return r.ID, nil
}

// FinishRun sets the final status and finish time of a run.
func (s *Store) FinishRun(id, status string, at time.Time) error {
	res, err := s.Exec(`UPDATE processing_runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, unixSeconds(at), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Runs lists every run, most recent first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.Query(`
		SELECT run_id, mode, site, version, files, status, started_at, finished_at
		FROM processing_runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started float64
		var finished sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Site, &r.Version, &r.Files, &r.Status, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = fromUnix(started)
		if finished.Valid {
			r.FinishedAt = fromUnix(finished.Float64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertWindProfiles stores the horizontal wind variables of ds. The
// variables must share a (time, range) layout; profiles where every value
// is missing are skipped. It returns the number of rows written.
func (s *Store) InsertWindProfiles(runID string, ds *dataset.Dataset) (int, error) {
	names := []string{retrieval.VarWindSpeed, retrieval.VarWindDirection, retrieval.VarZonal, retrieval.VarMeridional}
	return s.insertGrid(runID, ds, names, `
		INSERT OR REPLACE INTO wind_profiles (run_id, time, range_m, speed, direction, zonal, meridional)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
}

// InsertStressProfiles stores the six stress tensor components of ds.
func (s *Store) InsertStressProfiles(runID string, ds *dataset.Dataset) (int, error) {
	return s.insertGrid(runID, ds, retrieval.StressComponents, `
		INSERT OR REPLACE INTO stress_profiles (run_id, time, range_m, var_u, var_v, var_w, var_uv, var_uw, var_vw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
}

func (s *Store) insertGrid(runID string, ds *dataset.Dataset, names []string, query string) (int, error) {
	g, err := gridOf(ds, names)
	if err != nil {
		return 0, err
	}
	tx, err := s.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	args := make([]interface{}, 3+len(names))
	for i, t := range g.times {
		for j, r := range g.ranges {
			args[0], args[1], args[2] = runID, unixSeconds(t), r
			empty := true
			for k, v := range g.vars {
				x := v.At(i, j)
				empty = empty && math.IsNaN(x)
				args[3+k] = nullFloat(x)
			}
			if empty {
				continue
			}
			if _, err := stmt.Exec(args...); err != nil {
				return 0, fmt.Errorf("failed to insert profile at %s, %g m: %w", t.Format(time.RFC3339), r, err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.logf("run %s: stored %d rows of %v", runID, n, names)
	return n, nil
}

type grid struct {
	times  []time.Time
	ranges []float64
	vars   []*dataset.Variable
}

// gridOf looks up names in ds and checks they share one (time, range)
// layout.
func gridOf(ds *dataset.Dataset, names []string) (*grid, error) {
	if ds == nil {
		return nil, fmt.Errorf("no dataset: %w", scan.ErrInvalidInput)
	}
	g := &grid{}
	for _, name := range names {
		v, ok := ds.Var(name)
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, scan.ErrMissingVariable)
		}
		if len(v.Dims) != 2 {
			return nil, fmt.Errorf("%s has dims %v, want (time, range): %w", name, v.Dims, scan.ErrInvalidInput)
		}
		if len(g.vars) > 0 && (v.Dims[0] != g.vars[0].Dims[0] || v.Dims[1] != g.vars[0].Dims[1]) {
			return nil, fmt.Errorf("%s has dims %v, %s has %v: %w", name, v.Dims, g.vars[0].Name, g.vars[0].Dims, scan.ErrInvalidInput)
		}
		g.vars = append(g.vars, v)
	}
	tc, rc := ds.Coords[g.vars[0].Dims[0]], ds.Coords[g.vars[0].Dims[1]]
	if tc == nil || !tc.IsTime() || rc == nil {
		return nil, fmt.Errorf("dims %v are not (time, range) coordinates: %w", g.vars[0].Dims, scan.ErrInvalidInput)
	}
	g.times, g.ranges = tc.Times, rc.Values
	return g, nil
}

// WindProfiles returns the wind rows of a run ordered by time then range.
func (s *Store) WindProfiles(runID string) ([]WindProfile, error) {
	rows, err := s.Query(`
		SELECT time, range_m, speed, direction, zonal, meridional
		FROM wind_profiles WHERE run_id = ? ORDER BY time, range_m`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WindProfile
	for rows.Next() {
		var t float64
		var p WindProfile
		var vals [4]sql.NullFloat64
		if err := rows.Scan(&t, &p.Range, &vals[0], &vals[1], &vals[2], &vals[3]); err != nil {
			return nil, err
		}
		p.Time = fromUnix(t)
		p.Speed, p.Direction = orNaN(vals[0]), orNaN(vals[1])
		p.Zonal, p.Meridional = orNaN(vals[2]), orNaN(vals[3])
		out = append(out, p)
	}
	return out, rows.Err()
}

// StressProfiles returns the stress rows of a run ordered by time then
// range.
func (s *Store) StressProfiles(runID string) ([]StressProfile, error) {
	rows, err := s.Query(`
		SELECT time, range_m, var_u, var_v, var_w, var_uv, var_uw, var_vw
		FROM stress_profiles WHERE run_id = ? ORDER BY time, range_m`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StressProfile
	for rows.Next() {
		var t float64
		var p StressProfile
		var vals [6]sql.NullFloat64
		if err := rows.Scan(&t, &p.Range, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5]); err != nil {
			return nil, err
		}
		p.Time = fromUnix(t)
		for i, v := range vals {
			p.Components[i] = orNaN(v)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(sec float64) time.Time {
	return time.Unix(0, int64(math.Round(sec*1e6))*1e3).UTC()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return unixSeconds(t)
}

func nullFloat(x float64) interface{} {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return x
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
