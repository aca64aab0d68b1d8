// Package ingest turns lists of sweep files into merged ray sets. Single
// bad files are logged and skipped; only a batch with no usable data fails.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lidarwind/internal/dataset"
	"github.com/banshee-data/lidarwind/internal/monitoring"
	"github.com/banshee-data/lidarwind/internal/scan"
)

// ScanReader decodes one sweep file.
type ScanReader interface {
	ReadScan(path string) (*scan.Scan, error)
}

// MergeScans reads files in name order and merges them into slanted and
// vertical rays.
func MergeScans(r ScanReader, files []string, opts scan.MergeOptions) (*scan.Merged, error) {
	if len(files) == 0 {
		return nil, scan.ErrNoFiles
	}
	logf := monitoring.Named(opts.Logf, "ingest")
	m := scan.NewMerger(opts)
	for _, path := range sortedCopy(files) {
		s, err := r.ReadScan(path)
		if err != nil {
			logf("this file has a problem: %s: %v", path, err)
			continue
		}
		if err := m.Add(s); err != nil {
			logf("this file has a problem: %s: %v", path, err)
		}
	}
	return m.Result()
}

// MergeDBS reads DBS files, tags every ray with its scan cycle mean time
// and keeps only the listed variables. radial_wind_speed is always kept.
func MergeDBS(r ScanReader, files, vars []string, opts scan.MergeOptions) (*scan.Merged, error) {
	if len(files) == 0 {
		return nil, scan.ErrNoFiles
	}
	if len(vars) == 0 {
		return nil, scan.ErrNoVariables
	}
	logf := monitoring.Named(opts.Logf, "ingest")
	m := scan.NewMerger(opts)
	for _, path := range sortedCopy(files) {
		s, err := r.ReadScan(path)
		if err == nil {
			s, err = keepVariables(s, vars)
		}
		if err == nil {
			s, err = scan.AssignScanMeanTime(s)
		}
		if err == nil {
			err = m.Add(s)
		}
		if err != nil {
			logf("this file has a problem: %s: %v", path, err)
		}
	}
	return m.Result()
}

func keepVariables(s *scan.Scan, vars []string) (*scan.Scan, error) {
	out := *s
	out.Status, out.CNR, out.RelativeBeta, out.MeasurementHeight = nil, nil, nil, nil
	for _, name := range vars {
		var src [][]float64
		var dst *[][]float64
		switch name {
		case scan.VarRadialWindSpeed:
			continue
		case scan.VarStatus:
			src, dst = s.Status, &out.Status
		case scan.VarCNR:
			src, dst = s.CNR, &out.CNR
		case scan.VarRelativeBeta:
			src, dst = s.RelativeBeta, &out.RelativeBeta
		case scan.VarMeasurementHeight:
			src, dst = s.MeasurementHeight, &out.MeasurementHeight
		default:
			return nil, fmt.Errorf("unknown variable %q: %w", name, scan.ErrMissingVariable)
		}
		if src == nil {
			return nil, fmt.Errorf("%s: %w", name, scan.ErrMissingVariable)
		}
		*dst = src
	}
	return &out, nil
}

func sortedCopy(files []string) []string {
	out := append([]string(nil), files...)
	sort.Strings(out)
	return out
}

// Group is the files of one hour.
type Group struct {
	Hour  time.Time
	Files []string
}

var fileTimeRE = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})_(\d{2})-(\d{2})-(\d{2})`)

// FileTime parses the start time from a WindCube file name such as
// WCS000243_2021-12-14_10-00-06_dbs_303_50m.nc.
func FileTime(path string) (time.Time, error) {
	m := fileTimeRE.FindString(filepath.Base(path))
	if m == "" {
		return time.Time{}, fmt.Errorf("no timestamp in file name %q", filepath.Base(path))
	}
	return time.ParseInLocation("2006-01-02_15-04-05", m, time.UTC)
}

// GroupByHour buckets files by the hour in their name, in time order.
// Files without a timestamp are logged and left out.
func GroupByHour(files []string, logf monitoring.Logger) []Group {
	logf = monitoring.Named(logf, "ingest")
	byHour := map[time.Time][]string{}
	for _, f := range files {
		t, err := FileTime(f)
		if err != nil {
			logf("skipping %s: %v", f, err)
			continue
		}
		h := t.Truncate(time.Hour)
		byHour[h] = append(byHour[h], f)
	}
	out := make([]Group, 0, len(byHour))
	for h, fs := range byHour {
		out = append(out, Group{Hour: h, Files: sortedCopy(fs)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

// MergeFunc merges the files of one group.
type MergeFunc func(files []string) (*scan.Merged, error)

// MergeHourly runs merge over the groups with at most workers in flight
// and concatenates the results in hour order, whatever order the workers
// finish in. A group without usable data is logged and skipped; any other
// error cancels the remaining groups and is returned.
func MergeHourly(ctx context.Context, groups []Group, workers int, merge MergeFunc, logf monitoring.Logger) (*scan.Merged, error) {
	logf = monitoring.Named(logf, "ingest")
	if len(groups) == 0 {
		return nil, scan.ErrNoFiles
	}
	if workers < 1 {
		workers = 1
	}
	results := make([]*scan.Merged, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, grp := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := merge(grp.Files)
			switch {
			case err == nil:
				results[i] = m
			case errors.Is(err, scan.ErrInsufficientData), errors.Is(err, scan.ErrNoFiles):
				logf("no data for %s: %v", grp.Hour.Format("2006-01-02 15h"), err)
			default:
				return fmt.Errorf("hour %s: %w", grp.Hour.Format("2006-01-02 15h"), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logf("merged %d hourly groups", len(groups))
	return scan.Concat(results, logf)
}

// ReadProcessed reads already processed files in name order and joins them
// along time. Unreadable files are logged and skipped.
func ReadProcessed(files []string, read func(path string) (*dataset.Dataset, error), logf monitoring.Logger) (*dataset.Dataset, error) {
	if len(files) == 0 {
		return nil, scan.ErrNoFiles
	}
	logf = monitoring.Named(logf, "ingest")
	var parts []*dataset.Dataset
	for _, path := range sortedCopy(files) {
		ds, err := read(path)
		if err != nil {
			logf("this file has a problem: %s: %v", path, err)
			continue
		}
		parts = append(parts, ds)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("read processed: %w", scan.ErrInsufficientData)
	}
	return dataset.Concat(parts)
}
