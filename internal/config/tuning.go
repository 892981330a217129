package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning configuration. Every field is optional;
// the Get* accessors fall back to built-in defaults for omitted values so
// partial files are safe.
type TuningConfig struct {
	// Gesture thresholds
	LShapeAngleDeg *float64 `json:"l_shape_angle_deg,omitempty"`
	TapDistanceM   *float64 `json:"tap_distance_m,omitempty"`

	// Frame loop
	FrameRateHz *float64 `json:"frame_rate_hz,omitempty"`

	// Placement offsets
	ShotForwardOffsetM *float64 `json:"shot_forward_offset_m,omitempty"`
	BlockerForwardM    *float64 `json:"blocker_forward_m,omitempty"`
	BlockerDownM       *float64 `json:"blocker_down_m,omitempty"`

	// Delivery and diagnostics
	EventBuffer      *int    `json:"event_buffer,omitempty"`
	MaxStreamClients *int    `json:"max_stream_clients,omitempty"`
	HistoryLength    *int    `json:"history_length,omitempty"`
	StatsLogInterval *string `json:"stats_log_interval,omitempty"` // duration string like "60s"
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
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

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set values are in range.
func (c *TuningConfig) Validate() error {
	if c.LShapeAngleDeg != nil {
		if v := *c.LShapeAngleDeg; !finite(v) || v <= 0 || v >= 180 {
			return fmt.Errorf("l_shape_angle_deg must be in (0, 180), got %f", v)
		}
	}
	if c.TapDistanceM != nil {
		if v := *c.TapDistanceM; !finite(v) || v <= 0 {
			return fmt.Errorf("tap_distance_m must be positive, got %f", v)
		}
	}
	if c.FrameRateHz != nil {
		if v := *c.FrameRateHz; !finite(v) || v <= 0 || v > 1000 {
			return fmt.Errorf("frame_rate_hz must be in (0, 1000], got %f", v)
		}
	}
	for name, p := range map[string]*float64{
		"shot_forward_offset_m": c.ShotForwardOffsetM,
		"blocker_forward_m":     c.BlockerForwardM,
		"blocker_down_m":        c.BlockerDownM,
	} {
		if p != nil && !finite(*p) {
			return fmt.Errorf("%s must be finite, got %f", name, *p)
		}
	}
	for name, p := range map[string]*int{
		"event_buffer":       c.EventBuffer,
		"max_stream_clients": c.MaxStreamClients,
		"history_length":     c.HistoryLength,
	} {
		if p != nil && *p <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *p)
		}
	}
	if c.StatsLogInterval != nil && *c.StatsLogInterval != "" {
		if _, err := time.ParseDuration(*c.StatsLogInterval); err != nil {
			return fmt.Errorf("invalid stats_log_interval '%s': %w", *c.StatsLogInterval, err)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GetLShapeAngleDeg returns the l_shape_angle_deg value or the default.
// The default of 55° means "far from parallel", not a true right angle.
func (c *TuningConfig) GetLShapeAngleDeg() float64 {
	if c.LShapeAngleDeg == nil {
		return 55.0
	}
	return *c.LShapeAngleDeg
}

// GetTapDistanceM returns the tap_distance_m value or the default (1 cm).
func (c *TuningConfig) GetTapDistanceM() float64 {
	if c.TapDistanceM == nil {
		return 0.01
	}
	return *c.TapDistanceM
}

// GetFrameRateHz returns the frame_rate_hz value or the default.
func (c *TuningConfig) GetFrameRateHz() float64 {
	if c.FrameRateHz == nil {
		return 90
	}
	return *c.FrameRateHz
}

// GetFrameInterval returns the per-frame evaluation period.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetFrameRateHz())
}

// GetShotForwardOffsetM returns the shot_forward_offset_m value or the default.
func (c *TuningConfig) GetShotForwardOffsetM() float64 {
	if c.ShotForwardOffsetM == nil {
		return 0
	}
	return *c.ShotForwardOffsetM
}

// GetBlockerForwardM returns the blocker_forward_m value or the default.
func (c *TuningConfig) GetBlockerForwardM() float64 {
	if c.BlockerForwardM == nil {
		return 0.6
	}
	return *c.BlockerForwardM
}

// GetBlockerDownM returns the blocker_down_m value or the default.
func (c *TuningConfig) GetBlockerDownM() float64 {
	if c.BlockerDownM == nil {
		return 0.2
	}
	return *c.BlockerDownM
}

// GetEventBuffer returns the event_buffer value or the default.
func (c *TuningConfig) GetEventBuffer() int {
	if c.EventBuffer == nil {
		return 64
	}
	return *c.EventBuffer
}

// GetMaxStreamClients returns the max_stream_clients value or the default.
func (c *TuningConfig) GetMaxStreamClients() int {
	if c.MaxStreamClients == nil {
		return 5
	}
	return *c.MaxStreamClients
}

// GetHistoryLength returns the history_length value or the default.
func (c *TuningConfig) GetHistoryLength() int {
	if c.HistoryLength == nil {
		return 900
	}
	return *c.HistoryLength
}

// GetStatsLogInterval parses and returns the StatsLogInterval.
func (c *TuningConfig) GetStatsLogInterval() time.Duration {
	if c.StatsLogInterval == nil || *c.StatsLogInterval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(*c.StatsLogInterval)
	if err != nil {
		return time.Minute
	}
	return d
}
