package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical processing defaults file.
const DefaultConfigPath = "config/processing.defaults.json"

// DBS timing strategies.
const (
	DBSSingle     = "single_dbs"
	DBSContinuous = "continuous"
)

// ProcessingConfig is the root configuration for a retrieval run.
// Fields omitted from the JSON fall back to the Get* defaults.
type ProcessingConfig struct {
	// Quality filtering
	StatusFilter *bool    `json:"status_filter,omitempty"`
	CNRThreshold *float64 `json:"cnr_threshold,omitempty"`

	// Restructure nearest-match tolerance; empty keeps the unbounded match.
	RestructureTolerance *string `json:"restructure_tolerance,omitempty"`

	// Output grid
	ResampleFrequency *string `json:"resample_frequency,omitempty"` // duration string like "15s"
	ResampleTolerance *string `json:"resample_tolerance,omitempty"`

	// Second-trip echo filter
	STEProfiles   *int     `json:"ste_profiles,omitempty"`
	STEMinPeriods *int     `json:"ste_min_periods,omitempty"`
	STENStd       *float64 `json:"ste_n_std,omitempty"`
	STEStartHour  *int     `json:"ste_start_hour,omitempty"`
	STEEndHour    *int     `json:"ste_end_hour,omitempty"`

	// Six-beam rolling variance windows, in profiles
	VarianceWindow   *int `json:"variance_window,omitempty"`
	VarianceWindow90 *int `json:"variance_window90,omitempty"`

	DBSMethod    *string `json:"dbs_method,omitempty"`
	DBSTolerance *string `json:"dbs_tolerance,omitempty"`

	AzimuthDecimals   *int `json:"azimuth_decimals,omitempty"`
	ElevationDecimals *int `json:"elevation_decimals,omitempty"`

	Workers *int `json:"workers,omitempty"`

	Site *SiteMetadata `json:"site,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyProcessingConfig returns a ProcessingConfig with all fields set to nil.
func EmptyProcessingConfig() *ProcessingConfig {
	return &ProcessingConfig{}
}

// LoadProcessingConfig loads a ProcessingConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadProcessingConfig(path string) (*ProcessingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyProcessingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *ProcessingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadProcessingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ProcessingConfig) Validate() error {
	durations := map[string]*string{
		"restructure_tolerance": c.RestructureTolerance,
		"resample_frequency":    c.ResampleFrequency,
		"resample_tolerance":    c.ResampleTolerance,
		"dbs_tolerance":         c.DBSTolerance,
	}
	for key, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", key, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", key, *v)
		}
	}
	if c.ResampleFrequency != nil && *c.ResampleFrequency != "" {
		if d, _ := time.ParseDuration(*c.ResampleFrequency); d == 0 {
			return fmt.Errorf("resample_frequency must be positive")
		}
	}

	positive := map[string]*int{
		"ste_profiles":      c.STEProfiles,
		"variance_window":   c.VarianceWindow,
		"variance_window90": c.VarianceWindow90,
		"workers":           c.Workers,
	}
	for key, v := range positive {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be positive, got %d", key, *v)
		}
	}

	if c.STEMinPeriods != nil && *c.STEMinPeriods < 0 {
		return fmt.Errorf("ste_min_periods must be non-negative, got %d", *c.STEMinPeriods)
	}
	if c.STENStd != nil && *c.STENStd <= 0 {
		return fmt.Errorf("ste_n_std must be positive, got %f", *c.STENStd)
	}
	start, end := c.GetSTEStartHour(), c.GetSTEEndHour()
	if start < 0 || end > 24 || start >= end {
		return fmt.Errorf("ste hours must satisfy 0 <= start < end <= 24, got %d..%d", start, end)
	}

	if c.DBSMethod != nil {
		switch *c.DBSMethod {
		case DBSSingle, DBSContinuous:
		default:
			return fmt.Errorf("dbs_method must be %q or %q, got %q", DBSSingle, DBSContinuous, *c.DBSMethod)
		}
	}

	for key, v := range map[string]*int{"azimuth_decimals": c.AzimuthDecimals, "elevation_decimals": c.ElevationDecimals} {
		if v != nil && (*v < 0 || *v > 6) {
			return fmt.Errorf("%s must be between 0 and 6, got %d", key, *v)
		}
	}

	return nil
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetStatusFilter returns the status_filter value or the default.
func (c *ProcessingConfig) GetStatusFilter() bool {
	if c.StatusFilter == nil {
		return true
	}
	return *c.StatusFilter
}

// GetCNRThreshold returns the CNR threshold in dB, or nil when CNR
// filtering is disabled.
func (c *ProcessingConfig) GetCNRThreshold() *float64 {
	if c.CNRThreshold == nil {
		return nil
	}
	v := *c.CNRThreshold
	return &v
}

// GetRestructureTolerance returns the restructure tolerance. Zero means
// the nearest ray is always used.
func (c *ProcessingConfig) GetRestructureTolerance() time.Duration {
	return parseDurationOr(c.RestructureTolerance, 0)
}

// GetResampleFrequency returns the reference grid step.
func (c *ProcessingConfig) GetResampleFrequency() time.Duration {
	return parseDurationOr(c.ResampleFrequency, 15*time.Second)
}

// GetResampleTolerance returns the resample tolerance.
func (c *ProcessingConfig) GetResampleTolerance() time.Duration {
	return parseDurationOr(c.ResampleTolerance, 10*time.Second)
}

// GetSTEProfiles returns the STE rolling window in profiles.
func (c *ProcessingConfig) GetSTEProfiles() int {
	if c.STEProfiles == nil {
		return 500
	}
	return *c.STEProfiles
}

// GetSTEMinPeriods returns the STE rolling minimum periods.
func (c *ProcessingConfig) GetSTEMinPeriods() int {
	if c.STEMinPeriods == nil {
		return 30
	}
	return *c.STEMinPeriods
}

// GetSTENStd returns the anomaly threshold in standard deviations.
func (c *ProcessingConfig) GetSTENStd() float64 {
	if c.STENStd == nil {
		return 2
	}
	return *c.STENStd
}

// GetSTEStartHour returns the first hour of the daytime std window.
func (c *ProcessingConfig) GetSTEStartHour() int {
	if c.STEStartHour == nil {
		return 9
	}
	return *c.STEStartHour
}

// GetSTEEndHour returns the last hour of the daytime std window.
func (c *ProcessingConfig) GetSTEEndHour() int {
	if c.STEEndHour == nil {
		return 16
	}
	return *c.STEEndHour
}

// GetVarianceWindow returns the slanted rolling variance window.
func (c *ProcessingConfig) GetVarianceWindow() int {
	if c.VarianceWindow == nil {
		return 10
	}
	return *c.VarianceWindow
}

// GetVarianceWindow90 returns the vertical rolling variance window.
func (c *ProcessingConfig) GetVarianceWindow90() int {
	if c.VarianceWindow90 == nil {
		return 10
	}
	return *c.VarianceWindow90
}

// GetDBSMethod returns the DBS timing strategy.
func (c *ProcessingConfig) GetDBSMethod() string {
	if c.DBSMethod == nil {
		return DBSSingle
	}
	return *c.DBSMethod
}

// GetDBSTolerance returns the continuous DBS pairing tolerance.
func (c *ProcessingConfig) GetDBSTolerance() time.Duration {
	return parseDurationOr(c.DBSTolerance, 8*time.Second)
}

// GetAzimuthDecimals returns the azimuth rounding precision.
func (c *ProcessingConfig) GetAzimuthDecimals() int {
	if c.AzimuthDecimals == nil {
		return 1
	}
	return *c.AzimuthDecimals
}

// GetElevationDecimals returns the elevation rounding precision.
func (c *ProcessingConfig) GetElevationDecimals() int {
	if c.ElevationDecimals == nil {
		return 1
	}
	return *c.ElevationDecimals
}

// GetWorkers returns the hourly merge worker count.
func (c *ProcessingConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetSite returns the site metadata, never nil.
func (c *ProcessingConfig) GetSite() SiteMetadata {
	if c.Site == nil {
		return SiteMetadata{}
	}
	return *c.Site
}
