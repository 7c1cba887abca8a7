// Package config loads the controller configuration from YAML with
// environment overrides, and converts it into the per-package tuning
// structs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/content-autopilot/internal/bandit"
	"github.com/danielpatrickdp/content-autopilot/internal/calibration"
	"github.com/danielpatrickdp/content-autopilot/internal/guard"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// #region config-struct

// Config is the full controller configuration.
type Config struct {
	DBPath   string `yaml:"db_path"`
	Schedule string `yaml:"schedule"` // cron expression for the daily cycle

	Cycle       CycleConfig                `yaml:"cycle"`
	Bandit      BanditConfig               `yaml:"bandit"`
	Guard       GuardConfig                `yaml:"guard"`
	Recovery    RecoveryConfig             `yaml:"recovery"`
	Calibration CalibrationConfig          `yaml:"calibration"`
	Dimensions  map[string]DimensionConfig `yaml:"dimensions"`
}

// CycleConfig tunes the update-cycle gating.
type CycleConfig struct {
	WindowDays       int `yaml:"window_days"`        // rolling record window
	MinRecent        int `yaml:"min_recent"`         // minimum records in the recent window to update
	RecentHours      int `yaml:"recent_hours"`       // "recent" window for the minimum-data gate
	SlidingWindow    int `yaml:"sliding_window"`     // fallback: last N complete records
	ShadowMinTotal   int `yaml:"shadow_min_total"`   // below this total, learn but do not write weights
	MaxCommitRetries int `yaml:"max_commit_retries"` // stale-write retries per dimension
	HistoryKeep      int `yaml:"history_keep"`       // update-history entries kept per dimension
}

// BanditConfig tunes the weight updater.
type BanditConfig struct {
	Temperature float64 `yaml:"temperature"`
	ExploreRate float64 `yaml:"explore_rate"`
	PriorAlpha  float64 `yaml:"prior_alpha"`
	PriorBeta   float64 `yaml:"prior_beta"`
}

// GuardConfig tunes the guardrail layer.
type GuardConfig struct {
	MaxDailyChange float64 `yaml:"max_daily_change"`
	BoostThreshold float64 `yaml:"boost_threshold"`
	NerfThreshold  float64 `yaml:"nerf_threshold"`
	FeedbackStep   float64 `yaml:"feedback_step"`
}

// RecoveryConfig tunes the hard fallback.
type RecoveryConfig struct {
	FloorRetention float64            `yaml:"floor_retention"`
	EnterAfter     int                `yaml:"enter_after"`
	ClearAfter     int                `yaml:"clear_after"`
	ModePreset     map[string]float64 `yaml:"mode_preset"`
}

// CalibrationConfig tunes the diagnostics.
type CalibrationConfig struct {
	MinRecords       int     `yaml:"min_records"`
	MinPerBucket     int     `yaml:"min_per_bucket"`
	QualityThreshold float64 `yaml:"quality_threshold"`
	OutlierErrorPP   float64 `yaml:"outlier_error_pp"`
	GoodhartMinN     int     `yaml:"goodhart_min_n"`
	GoodhartGenuineR float64 `yaml:"goodhart_genuine_r"`
	GoodhartFlagR    float64 `yaml:"goodhart_flag_r"`
	GoodhartMinDelta float64 `yaml:"goodhart_min_delta"`
	ExploreRatioMin  float64 `yaml:"explore_ratio_min"`
	ExploreRatioMax  float64 `yaml:"explore_ratio_max"`
}

// DimensionConfig declares a dimension's arms with their starting weights
// and safety bounds.
type DimensionConfig struct {
	Arms map[string]ArmConfig `yaml:"arms"`
}

// ArmConfig is one arm's starting weight and bound pair.
type ArmConfig struct {
	Weight float64 `yaml:"weight"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// #endregion

// #region defaults

// Default returns the production configuration.
func Default() Config {
	return Config{
		DBPath:   "autopilot.db",
		Schedule: "30 23 * * *", // daily, after analytics ingestion
		Cycle: CycleConfig{
			WindowDays:       42,
			MinRecent:        3,
			RecentHours:      24,
			SlidingWindow:    20,
			ShadowMinTotal:   50,
			MaxCommitRetries: 3,
			HistoryKeep:      30,
		},
		Bandit: BanditConfig{
			Temperature: 0.25,
			ExploreRate: 0.2,
			PriorAlpha:  1.0,
			PriorBeta:   1.0,
		},
		Guard: GuardConfig{
			MaxDailyChange: 0.15,
			BoostThreshold: 500,
			NerfThreshold:  250,
			FeedbackStep:   0.05,
		},
		Recovery: RecoveryConfig{
			FloorRetention: 15.0,
			EnterAfter:     5,
			ClearAfter:     3,
			ModePreset:     map[string]float64{"quality": 1.0, "fast": 0.0},
		},
		Calibration: CalibrationConfig{
			MinRecords:       10,
			MinPerBucket:     3,
			QualityThreshold: 9.0,
			OutlierErrorPP:   20,
			GoodhartMinN:     5,
			GoodhartGenuineR: 0.3,
			GoodhartFlagR:    0.1,
			GoodhartMinDelta: 0.5,
			ExploreRatioMin:  0.1,
			ExploreRatioMax:  0.3,
		},
		Dimensions: map[string]DimensionConfig{
			string(record.DimensionMode): {Arms: map[string]ArmConfig{
				"quality": {Weight: 0.7, Min: 0.3, Max: 0.9},
				"fast":    {Weight: 0.3, Min: 0.1, Max: 0.5},
			}},
			string(record.DimensionTitle): {Arms: map[string]ArmConfig{
				"bold":         {Weight: 0.5, Min: 0.2, Max: 0.8},
				"safe":         {Weight: 0.3, Min: 0.1, Max: 0.6},
				"experimental": {Weight: 0.2, Min: 0.05, Max: 0.4},
			}},
			string(record.DimensionHook): {Arms: map[string]ArmConfig{
				"contradiction": {Weight: 0.3, Min: 0.1, Max: 0.5},
				"revelation":    {Weight: 0.25, Min: 0.1, Max: 0.5},
				"challenge":     {Weight: 0.25, Min: 0.1, Max: 0.5},
				"contrast":      {Weight: 0.2, Min: 0.1, Max: 0.5},
			}},
			string(record.DimensionCategory): {Arms: map[string]ArmConfig{
				"modern_war":  {Weight: 0.30, Min: 0.05, Max: 0.6},
				"ancient":     {Weight: 0.25, Min: 0.05, Max: 0.6},
				"medieval":    {Weight: 0.20, Min: 0.05, Max: 0.6},
				"mystery":     {Weight: 0.15, Min: 0.05, Max: 0.6},
				"leaders":     {Weight: 0.05, Min: 0.05, Max: 0.6},
				"culture":     {Weight: 0.05, Min: 0.05, Max: 0.6},
			}},
		},
	}
}

// #endregion

// #region load

// Load reads the YAML config file over the defaults. A .env file is loaded
// first so environment overrides (AUTOPILOT_CONFIG, AUTOPILOT_DB) work in
// development without exporting anything.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := os.Getenv("AUTOPILOT_CONFIG")
	if path == "" {
		path = "autopilot.yaml"
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if db := os.Getenv("AUTOPILOT_DB"); db != "" {
		cfg.DBPath = db
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants a bad config file could break.
func (c Config) Validate() error {
	if c.Guard.MaxDailyChange <= 0 || c.Guard.MaxDailyChange > 1 {
		return fmt.Errorf("max_daily_change must be in (0,1], got %v", c.Guard.MaxDailyChange)
	}
	if c.Recovery.EnterAfter <= 0 || c.Recovery.ClearAfter <= 0 {
		return fmt.Errorf("recovery enter_after and clear_after must be positive")
	}
	for _, d := range record.Dimensions() {
		dim, ok := c.Dimensions[string(d)]
		if !ok || len(dim.Arms) == 0 {
			return fmt.Errorf("dimension %s has no arms configured", d)
		}
		var weightSum, minSum, maxSum float64
		for arm, a := range dim.Arms {
			if a.Min < 0 || a.Max > 1 || a.Min > a.Max {
				return fmt.Errorf("dimension %s arm %s has invalid bounds [%v,%v]", d, arm, a.Min, a.Max)
			}
			weightSum += a.Weight
			minSum += a.Min
			maxSum += a.Max
		}
		if weightSum <= 0 {
			return fmt.Errorf("dimension %s default weights sum to zero", d)
		}
		if minSum > 1 || maxSum < 1 {
			return fmt.Errorf("dimension %s bounds are infeasible (min sum %v, max sum %v)", d, minSum, maxSum)
		}
	}
	var presetSum float64
	for arm, w := range c.Recovery.ModePreset {
		if _, ok := c.Dimensions[string(record.DimensionMode)].Arms[arm]; !ok {
			return fmt.Errorf("recovery mode_preset names unknown arm %q", arm)
		}
		presetSum += w
	}
	if presetSum <= 0 {
		return fmt.Errorf("recovery mode_preset weights sum to zero")
	}
	return nil
}

// #endregion

// #region conversions

// DefaultWeights returns a dimension's starting distribution, normalized.
func (c Config) DefaultWeights(d record.Dimension) map[string]float64 {
	dim := c.Dimensions[string(d)]
	out := make(map[string]float64, len(dim.Arms))
	var sum float64
	for arm, a := range dim.Arms {
		out[arm] = a.Weight
		sum += a.Weight
	}
	if sum > 0 {
		for arm := range out {
			out[arm] /= sum
		}
	}
	return out
}

// Bounds returns a dimension's per-arm bound pairs.
func (c Config) Bounds(d record.Dimension) map[string]weights.Bound {
	dim := c.Dimensions[string(d)]
	out := make(map[string]weights.Bound, len(dim.Arms))
	for arm, a := range dim.Arms {
		out[arm] = weights.Bound{Min: a.Min, Max: a.Max}
	}
	return out
}

// BanditConfig converts to the updater's tuning struct.
func (c Config) BanditConfig() bandit.Config {
	return bandit.Config{
		Temperature: c.Bandit.Temperature,
		ExploreRate: c.Bandit.ExploreRate,
		PriorAlpha:  c.Bandit.PriorAlpha,
		PriorBeta:   c.Bandit.PriorBeta,
	}
}

// GuardConfig converts to the guardrail tuning struct.
func (c Config) GuardConfig() guard.Config {
	return guard.Config{
		MaxDailyChange: c.Guard.MaxDailyChange,
		BoostThreshold: c.Guard.BoostThreshold,
		NerfThreshold:  c.Guard.NerfThreshold,
		FeedbackStep:   c.Guard.FeedbackStep,
	}
}

// RecoveryConfig converts to the recovery tuning struct.
func (c Config) RecoveryConfig() guard.RecoveryConfig {
	return guard.RecoveryConfig{
		FloorRetention: c.Recovery.FloorRetention,
		EnterAfter:     c.Recovery.EnterAfter,
		ClearAfter:     c.Recovery.ClearAfter,
		ModePreset:     c.Recovery.ModePreset,
	}
}

// CalibrationConfig converts to the diagnostics tuning struct.
func (c Config) CalibrationConfig() calibration.Config {
	return calibration.Config{
		MinRecords:              c.Calibration.MinRecords,
		MinPerBucket:            c.Calibration.MinPerBucket,
		QualityThreshold:        c.Calibration.QualityThreshold,
		OutlierErrorPP:          c.Calibration.OutlierErrorPP,
		GoodhartMinInstrumented: c.Calibration.GoodhartMinN,
		GoodhartGenuineR:        c.Calibration.GoodhartGenuineR,
		GoodhartFlagR:           c.Calibration.GoodhartFlagR,
		GoodhartMinDelta:        c.Calibration.GoodhartMinDelta,
		ExploreRatioMin:         c.Calibration.ExploreRatioMin,
		ExploreRatioMax:         c.Calibration.ExploreRatioMax,
	}
}

// Window returns the rolling record window as a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.Cycle.WindowDays) * 24 * time.Hour
}

// #endregion
