package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
)

// DefaultConfigPath is the path to the canonical experiment defaults file.
const DefaultConfigPath = "config/experiment.defaults.json"

// ExperimentConfig is the root configuration document for a session. Every
// field is optional; the Get* accessors fall back to the built-in defaults so
// partial files are safe.
type ExperimentConfig struct {
	// Presentation surface and monitor geometry
	DisplayWidthPx    *int     `json:"display_width_px,omitempty"`
	DisplayHeightPx   *int     `json:"display_height_px,omitempty"`
	WindowUnits       *string  `json:"window_units,omitempty"`
	MonitorWidthCm    *float64 `json:"monitor_width_cm,omitempty"`
	ViewingDistanceCm *float64 `json:"viewing_distance_cm,omitempty"`
	FrameInterval     *string  `json:"frame_interval,omitempty"` // duration string like "16ms"

	// Calibration target animation
	ShrinkSpeed       *float64 `json:"shrink_speed,omitempty"`
	TargetMinFraction *float64 `json:"target_min_fraction,omitempty"`
	DotSizePx         *float64 `json:"dot_size_px,omitempty"`
	DiscSizePx        *float64 `json:"disc_size_px,omitempty"`
	SettleDelay       *string  `json:"settle_delay,omitempty"`

	// Calibration review
	AccuracyThreshold *float64 `json:"accuracy_threshold,omitempty"`
	ToleranceRingPx   *float64 `json:"tolerance_ring_px,omitempty"`
	MarkerRadiusPx    *float64 `json:"marker_radius_px,omitempty"`
	DecisionKey       *string  `json:"decision_key,omitempty"`
	AbortKey          *string  `json:"abort_key,omitempty"`
	CollectKey        *string  `json:"collect_key,omitempty"`
	ExitKey           *string  `json:"exit_key,omitempty"`
	ContinueKey       *string  `json:"continue_key,omitempty"`

	// Recording
	DataFile          *string  `json:"data_file,omitempty"`
	StreamSettleDelay *string  `json:"stream_settle_delay,omitempty"`
	DeviceClockRate   *float64 `json:"device_clock_rate,omitempty"` // device ticks per second
	TimeDecimals      *int     `json:"time_decimals,omitempty"`
	ValueDecimals     *int     `json:"value_decimals,omitempty"`
	NaNToken          *string  `json:"nan_token,omitempty"`

	// Looking time
	MaxLookingTime *string `json:"max_looking_time,omitempty"`
	MinAway        *string `json:"min_away,omitempty"`
	BlinkTolerance *string `json:"blink_tolerance,omitempty"`

	// Device link and catalog
	SerialPort   *string `json:"serial_port,omitempty"`
	BaudRate     *int    `json:"baud_rate,omitempty"`
	DeviceIndex  *int    `json:"device_index,omitempty"`
	DatabasePath *string `json:"database_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExperimentConfig returns a config with every field unset.
func EmptyExperimentConfig() *ExperimentConfig {
	return &ExperimentConfig{}
}

// DefaultExperimentConfig returns a config with every field populated from
// the built-in defaults. It is what gets written to DefaultConfigPath.
func DefaultExperimentConfig() *ExperimentConfig {
	e := EmptyExperimentConfig()
	return &ExperimentConfig{
		DisplayWidthPx:    ptrInt(e.GetDisplayWidthPx()),
		DisplayHeightPx:   ptrInt(e.GetDisplayHeightPx()),
		WindowUnits:       ptrString(string(e.GetWindowUnits())),
		MonitorWidthCm:    ptrFloat64(e.GetMonitorWidthCm()),
		ViewingDistanceCm: ptrFloat64(e.GetViewingDistanceCm()),
		FrameInterval:     ptrString(e.GetFrameInterval().String()),
		ShrinkSpeed:       ptrFloat64(e.GetShrinkSpeed()),
		TargetMinFraction: ptrFloat64(e.GetTargetMinFraction()),
		DotSizePx:         ptrFloat64(e.GetDotSizePx()),
		DiscSizePx:        ptrFloat64(e.GetDiscSizePx()),
		SettleDelay:       ptrString(e.GetSettleDelay().String()),
		AccuracyThreshold: ptrFloat64(e.GetAccuracyThreshold()),
		ToleranceRingPx:   ptrFloat64(e.GetToleranceRingPx()),
		MarkerRadiusPx:    ptrFloat64(e.GetMarkerRadiusPx()),
		DecisionKey:       ptrString(e.GetDecisionKey()),
		AbortKey:          ptrString(e.GetAbortKey()),
		CollectKey:        ptrString(e.GetCollectKey()),
		ExitKey:           ptrString(e.GetExitKey()),
		ContinueKey:       ptrString(e.GetContinueKey()),
		DataFile:          ptrString(e.GetDataFile()),
		StreamSettleDelay: ptrString(e.GetStreamSettleDelay().String()),
		DeviceClockRate:   ptrFloat64(e.GetDeviceClockRate()),
		TimeDecimals:      ptrInt(e.GetTimeDecimals()),
		ValueDecimals:     ptrInt(e.GetValueDecimals()),
		NaNToken:          ptrString(e.GetNaNToken()),
		MaxLookingTime:    ptrString(e.GetMaxLookingTime().String()),
		MinAway:           ptrString(e.GetMinAway().String()),
		BlinkTolerance:    ptrString(e.GetBlinkTolerance().String()),
		SerialPort:        ptrString(e.GetSerialPort()),
		BaudRate:          ptrInt(e.GetBaudRate()),
		DeviceIndex:       ptrInt(e.GetDeviceIndex()),
		DatabasePath:      ptrString(e.GetDatabasePath()),
	}
}

// LoadExperimentConfig loads an ExperimentConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
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

	cfg := EmptyExperimentConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upwards from the current directory. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *ExperimentConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadExperimentConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ExperimentConfig) Validate() error {
	if c.DisplayWidthPx != nil && *c.DisplayWidthPx <= 0 {
		return fmt.Errorf("display_width_px must be positive, got %d", *c.DisplayWidthPx)
	}
	if c.DisplayHeightPx != nil && *c.DisplayHeightPx <= 0 {
		return fmt.Errorf("display_height_px must be positive, got %d", *c.DisplayHeightPx)
	}
	if c.WindowUnits != nil {
		if _, err := coords.ParseSystem(*c.WindowUnits); err != nil {
			return fmt.Errorf("window_units: %w", err)
		}
	}
	if c.MonitorWidthCm != nil && *c.MonitorWidthCm <= 0 {
		return fmt.Errorf("monitor_width_cm must be positive, got %f", *c.MonitorWidthCm)
	}
	if c.ViewingDistanceCm != nil && *c.ViewingDistanceCm <= 0 {
		return fmt.Errorf("viewing_distance_cm must be positive, got %f", *c.ViewingDistanceCm)
	}
	if c.ShrinkSpeed != nil && *c.ShrinkSpeed <= 0 {
		return fmt.Errorf("shrink_speed must be positive, got %f", *c.ShrinkSpeed)
	}
	if c.TargetMinFraction != nil && *c.TargetMinFraction < 0 {
		return fmt.Errorf("target_min_fraction must be non-negative, got %f", *c.TargetMinFraction)
	}
	if c.AccuracyThreshold != nil && *c.AccuracyThreshold <= 0 {
		return fmt.Errorf("accuracy_threshold must be positive, got %f", *c.AccuracyThreshold)
	}
	if c.DeviceClockRate != nil && *c.DeviceClockRate <= 0 {
		return fmt.Errorf("device_clock_rate must be positive, got %f", *c.DeviceClockRate)
	}
	if c.TimeDecimals != nil && (*c.TimeDecimals < 0 || *c.TimeDecimals > 9) {
		return fmt.Errorf("time_decimals must be between 0 and 9, got %d", *c.TimeDecimals)
	}
	if c.ValueDecimals != nil && (*c.ValueDecimals < 0 || *c.ValueDecimals > 9) {
		return fmt.Errorf("value_decimals must be between 0 and 9, got %d", *c.ValueDecimals)
	}
	if c.DeviceIndex != nil && *c.DeviceIndex < 0 {
		return fmt.Errorf("device_index must be non-negative, got %d", *c.DeviceIndex)
	}
	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}

	durations := map[string]*string{
		"frame_interval":      c.FrameInterval,
		"settle_delay":        c.SettleDelay,
		"stream_settle_delay": c.StreamSettleDelay,
		"max_looking_time":    c.MaxLookingTime,
		"min_away":            c.MinAway,
		"blink_tolerance":     c.BlinkTolerance,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if c.GetFrameInterval() <= 0 {
		return fmt.Errorf("frame_interval must be positive")
	}
	return nil
}
