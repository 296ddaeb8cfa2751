package config

import (
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
)

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func (c *ExperimentConfig) GetDisplayWidthPx() int {
	if c.DisplayWidthPx == nil {
		return 1920
	}
	return *c.DisplayWidthPx
}

func (c *ExperimentConfig) GetDisplayHeightPx() int {
	if c.DisplayHeightPx == nil {
		return 1080
	}
	return *c.DisplayHeightPx
}

// GetWindowUnits returns the presentation system used for calibration
// points and recorded positions.
func (c *ExperimentConfig) GetWindowUnits() coords.System {
	if c.WindowUnits == nil {
		return coords.Norm
	}
	return coords.System(*c.WindowUnits)
}

func (c *ExperimentConfig) GetMonitorWidthCm() float64 {
	if c.MonitorWidthCm == nil {
		return 53.0
	}
	return *c.MonitorWidthCm
}

func (c *ExperimentConfig) GetViewingDistanceCm() float64 {
	if c.ViewingDistanceCm == nil {
		return 65.0
	}
	return *c.ViewingDistanceCm
}

// GetFrameInterval returns the display refresh period (60 Hz by default).
func (c *ExperimentConfig) GetFrameInterval() time.Duration {
	return durationOr(c.FrameInterval, time.Second/60)
}

// GetShrinkSpeed returns the calibration target animation speed. The dwell
// per point is 3/speed seconds.
func (c *ExperimentConfig) GetShrinkSpeed() float64 {
	if c.ShrinkSpeed == nil {
		return 1.5
	}
	return *c.ShrinkSpeed
}

func (c *ExperimentConfig) GetTargetMinFraction() float64 {
	if c.TargetMinFraction == nil {
		return 0.2
	}
	return *c.TargetMinFraction
}

func (c *ExperimentConfig) GetDotSizePx() float64 {
	if c.DotSizePx == nil {
		return 10.0
	}
	return *c.DotSizePx
}

func (c *ExperimentConfig) GetDiscSizePx() float64 {
	if c.DiscSizePx == nil {
		return 40.0
	}
	return *c.DiscSizePx
}

// GetSettleDelay returns the pause between the end of a target's dwell and
// sample collection.
func (c *ExperimentConfig) GetSettleDelay() time.Duration {
	return durationOr(c.SettleDelay, 500*time.Millisecond)
}

// GetAccuracyThreshold returns the per-eye distance, in display-area units,
// a point must stay within to pass the automatic accuracy check.
func (c *ExperimentConfig) GetAccuracyThreshold() float64 {
	if c.AccuracyThreshold == nil {
		return 0.04
	}
	return *c.AccuracyThreshold
}

func (c *ExperimentConfig) GetToleranceRingPx() float64 {
	if c.ToleranceRingPx == nil {
		return 76.8
	}
	return *c.ToleranceRingPx
}

func (c *ExperimentConfig) GetMarkerRadiusPx() float64 {
	if c.MarkerRadiusPx == nil {
		return 3.0
	}
	return *c.MarkerRadiusPx
}

func (c *ExperimentConfig) GetDecisionKey() string {
	if c.DecisionKey == nil {
		return "space"
	}
	return *c.DecisionKey
}

func (c *ExperimentConfig) GetAbortKey() string {
	if c.AbortKey == nil {
		return "escape"
	}
	return *c.AbortKey
}

func (c *ExperimentConfig) GetCollectKey() string {
	if c.CollectKey == nil {
		return "space"
	}
	return *c.CollectKey
}

func (c *ExperimentConfig) GetExitKey() string {
	if c.ExitKey == nil {
		return "return"
	}
	return *c.ExitKey
}

func (c *ExperimentConfig) GetContinueKey() string {
	if c.ContinueKey == nil {
		return "space"
	}
	return *c.ContinueKey
}

func (c *ExperimentConfig) GetDataFile() string {
	if c.DataFile == nil {
		return "gaze_output.tsv"
	}
	return *c.DataFile
}

// GetStreamSettleDelay returns the wait between subscribing to the gaze
// stream and fixing the session start time.
func (c *ExperimentConfig) GetStreamSettleDelay() time.Duration {
	return durationOr(c.StreamSettleDelay, 500*time.Millisecond)
}

// GetDeviceClockRate returns device clock ticks per second. The default
// matches a microsecond system timestamp.
func (c *ExperimentConfig) GetDeviceClockRate() float64 {
	if c.DeviceClockRate == nil {
		return 1e6
	}
	return *c.DeviceClockRate
}

func (c *ExperimentConfig) GetTimeDecimals() int {
	if c.TimeDecimals == nil {
		return 1
	}
	return *c.TimeDecimals
}

func (c *ExperimentConfig) GetValueDecimals() int {
	if c.ValueDecimals == nil {
		return 4
	}
	return *c.ValueDecimals
}

func (c *ExperimentConfig) GetNaNToken() string {
	if c.NaNToken == nil {
		return "nan"
	}
	return *c.NaNToken
}

func (c *ExperimentConfig) GetMaxLookingTime() time.Duration {
	return durationOr(c.MaxLookingTime, 10*time.Second)
}

func (c *ExperimentConfig) GetMinAway() time.Duration {
	return durationOr(c.MinAway, time.Second)
}

func (c *ExperimentConfig) GetBlinkTolerance() time.Duration {
	return durationOr(c.BlinkTolerance, 200*time.Millisecond)
}

func (c *ExperimentConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

func (c *ExperimentConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

func (c *ExperimentConfig) GetDeviceIndex() int {
	if c.DeviceIndex == nil {
		return 0
	}
	return *c.DeviceIndex
}

func (c *ExperimentConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "gazerec.db"
	}
	return *c.DatabasePath
}
