// Package tracker defines the eye-tracker device the experiment controller
// drives, plus two implementations: a JSON-lines client for trackers
// attached over a serial link and an in-process simulated device.
package tracker

import (
	"context"
	"fmt"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

var (
	// ErrNoDevices is returned when enumeration finds no tracker at all.
	ErrNoDevices = fmt.Errorf("%w: no eye trackers found", gaze.ErrResourceAbsent)
	// ErrInvalidIndex is returned when the requested tracker index is out of range.
	ErrInvalidIndex = fmt.Errorf("%w: invalid eye tracker index", gaze.ErrResourceAbsent)
)

// Info identifies a tracker.
type Info struct {
	Address      string  `json:"address"`
	Model        string  `json:"model"`
	Name         string  `json:"name"`
	SerialNumber string  `json:"serial_number"`
	FrequencyHz  float64 `json:"frequency_hz"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s) at %s", i.Model, i.Name, i.SerialNumber, i.Address)
}

// Subscription is returned by the stream subscribe calls. Unsubscribe is
// safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// GazeSource delivers gaze samples by push and exposes the device clock.
type GazeSource interface {
	// Now returns the current device clock in device ticks.
	Now() int64
	// SubscribeGaze registers fn for every new gaze sample. fn runs on the
	// device's delivery goroutine and must not block.
	SubscribeGaze(fn func(gaze.Sample)) (Subscription, error)
}

// PositionSource delivers eye positions inside the tracking volume.
type PositionSource interface {
	SubscribeUserPosition(fn func(gaze.UserPosition)) (Subscription, error)
}

// Calibrator is the device's screen-based calibration accumulator. Points
// are in display-area space.
type Calibrator interface {
	EnterCalibrationMode(ctx context.Context) error
	LeaveCalibrationMode(ctx context.Context) error
	CollectData(ctx context.Context, p gaze.Point) error
	DiscardData(ctx context.Context, p gaze.Point) error
	ComputeAndApply(ctx context.Context) (*CalibrationResult, error)
}

// Tracker is a connected eye tracker.
type Tracker interface {
	GazeSource
	PositionSource
	Calibrator
	Info() Info
	Close() error
}

// Enumerator discovers trackers and connects to one of them.
type Enumerator interface {
	FindAll(ctx context.Context) ([]Info, error)
	Connect(ctx context.Context, info Info) (Tracker, error)
}

// Select picks the tracker at index from a discovery result.
func Select(found []Info, index int) (Info, error) {
	if len(found) == 0 {
		return Info{}, ErrNoDevices
	}
	if index < 0 || index >= len(found) {
		return Info{}, fmt.Errorf("%w %d (%d eye trackers found)", ErrInvalidIndex, index, len(found))
	}
	return found[index], nil
}

// Open discovers trackers with e and connects to the one at index.
func Open(ctx context.Context, e Enumerator, index int) (Tracker, error) {
	found, err := e.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	info, err := Select(found, index)
	if err != nil {
		return nil, err
	}
	return e.Connect(ctx, info)
}
