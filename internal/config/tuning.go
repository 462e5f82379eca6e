package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* accessors supply the defaults.
type TuningConfig struct {
	// Ingestion params
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxSkew       *string  `json:"max_skew,omitempty"`       // duration string like "5m"
	ReorderWindow *string  `json:"reorder_window,omitempty"` // duration string like "2s"
	DedupCapacity *int     `json:"dedup_capacity,omitempty"`
	DedupTTL      *string  `json:"dedup_ttl,omitempty"` // duration string like "10m"

	// Aggregation params
	SnapshotCadence *string  `json:"snapshot_cadence,omitempty"` // duration string like "5m"
	RetentionDays   *int     `json:"retention_days,omitempty"`
	SMAWindow       *int     `json:"sma_window,omitempty"`
	EMAAlpha        *float64 `json:"ema_alpha,omitempty"`
	HWAlpha         *float64 `json:"hw_alpha,omitempty"`
	HWBeta          *float64 `json:"hw_beta,omitempty"`
	HWGamma         *float64 `json:"hw_gamma,omitempty"`

	// Forecast params
	ForecastMaxHorizonHours *int     `json:"forecast_max_horizon_hours,omitempty"`
	ForecastZ               *float64 `json:"forecast_z,omitempty"`

	// Anomaly params
	AnomalyThreshold    *float64 `json:"anomaly_threshold,omitempty"`
	AnomalyLookbackDays *int     `json:"anomaly_lookback_days,omitempty"`
	AnomalyMinPoints    *int     `json:"anomaly_min_points,omitempty"`

	// Hub params
	HubBufferDepth *int `json:"hub_buffer_depth,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/parking/...
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}

	for name, v := range map[string]*string{
		"max_skew":         c.MaxSkew,
		"reorder_window":   c.ReorderWindow,
		"dedup_ttl":        c.DedupTTL,
		"snapshot_cadence": c.SnapshotCadence,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.RetentionDays != nil && *c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be positive, got %d", *c.RetentionDays)
	}
	if c.AnomalyThreshold != nil && *c.AnomalyThreshold <= 0 {
		return fmt.Errorf("anomaly_threshold must be positive, got %f", *c.AnomalyThreshold)
	}
	if c.HubBufferDepth != nil && *c.HubBufferDepth < 1 {
		return fmt.Errorf("hub_buffer_depth must be positive, got %d", *c.HubBufferDepth)
	}
	if c.ForecastMaxHorizonHours != nil && *c.ForecastMaxHorizonHours < 1 {
		return fmt.Errorf("forecast_max_horizon_hours must be positive, got %d", *c.ForecastMaxHorizonHours)
	}

	return nil
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetMaxSkew parses and returns the max_skew as a time.Duration.
func (c *TuningConfig) GetMaxSkew() time.Duration {
	return c.duration(c.MaxSkew, 5*time.Minute)
}

// GetReorderWindow parses and returns the reorder_window as a time.Duration.
func (c *TuningConfig) GetReorderWindow() time.Duration {
	return c.duration(c.ReorderWindow, 2*time.Second)
}

// GetDedupCapacity returns the dedup_capacity value or the default.
func (c *TuningConfig) GetDedupCapacity() int {
	if c.DedupCapacity == nil {
		return 10000
	}
	return *c.DedupCapacity
}

// GetDedupTTL parses and returns the dedup_ttl as a time.Duration.
func (c *TuningConfig) GetDedupTTL() time.Duration {
	return c.duration(c.DedupTTL, 10*time.Minute)
}

// GetSnapshotCadence parses and returns the snapshot_cadence as a time.Duration.
func (c *TuningConfig) GetSnapshotCadence() time.Duration {
	return c.duration(c.SnapshotCadence, 5*time.Minute)
}

// GetRetentionDays returns the retention_days value or the default.
func (c *TuningConfig) GetRetentionDays() int {
	if c.RetentionDays == nil {
		return 30
	}
	return *c.RetentionDays
}

// GetSMAWindow returns the sma_window value or the default.
func (c *TuningConfig) GetSMAWindow() int {
	if c.SMAWindow == nil {
		return 12
	}
	return *c.SMAWindow
}

// GetEMAAlpha returns the ema_alpha value or the default.
func (c *TuningConfig) GetEMAAlpha() float64 {
	if c.EMAAlpha == nil {
		return 0.3
	}
	return *c.EMAAlpha
}

// GetHWAlpha returns the hw_alpha value or the default.
func (c *TuningConfig) GetHWAlpha() float64 {
	if c.HWAlpha == nil {
		return 0.3
	}
	return *c.HWAlpha
}

// GetHWBeta returns the hw_beta value or the default.
func (c *TuningConfig) GetHWBeta() float64 {
	if c.HWBeta == nil {
		return 0.1
	}
	return *c.HWBeta
}

// GetHWGamma returns the hw_gamma value or the default.
func (c *TuningConfig) GetHWGamma() float64 {
	if c.HWGamma == nil {
		return 0.2
	}
	return *c.HWGamma
}

// GetForecastMaxHorizon returns the forecast horizon cap as a duration.
func (c *TuningConfig) GetForecastMaxHorizon() time.Duration {
	if c.ForecastMaxHorizonHours == nil {
		return 48 * time.Hour
	}
	return time.Duration(*c.ForecastMaxHorizonHours) * time.Hour
}

// GetForecastZ returns the forecast_z value or the default (95% confidence).
func (c *TuningConfig) GetForecastZ() float64 {
	if c.ForecastZ == nil {
		return 1.959964
	}
	return *c.ForecastZ
}

// GetAnomalyThreshold returns the anomaly_threshold value or the default.
func (c *TuningConfig) GetAnomalyThreshold() float64 {
	if c.AnomalyThreshold == nil {
		return 3.0
	}
	return *c.AnomalyThreshold
}

// GetAnomalyLookbackDays returns the anomaly_lookback_days value or the default.
func (c *TuningConfig) GetAnomalyLookbackDays() int {
	if c.AnomalyLookbackDays == nil {
		return 7
	}
	return *c.AnomalyLookbackDays
}

// GetAnomalyMinPoints returns the anomaly_min_points value or the default.
func (c *TuningConfig) GetAnomalyMinPoints() int {
	if c.AnomalyMinPoints == nil {
		return 20
	}
	return *c.AnomalyMinPoints
}

// GetHubBufferDepth returns the hub_buffer_depth value or the default.
func (c *TuningConfig) GetHubBufferDepth() int {
	if c.HubBufferDepth == nil {
		return 64
	}
	return *c.HubBufferDepth
}
