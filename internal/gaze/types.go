// Package gaze holds the data model shared by the tracker, recorder,
// calibration and looking-time packages.
package gaze

import (
	"errors"
	"math"
	"strconv"
)

// Error kinds. Call sites wrap these with fmt.Errorf("%w: ...") so callers
// can classify failures with errors.Is.
var (
	// ErrConfiguration marks a programming-time contract violation such as an
	// unsupported coordinate system or an invalid calibration point count.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceAbsent marks a missing device, an invalid device index or a
	// stimulus asset that failed to load.
	ErrResourceAbsent = errors.New("resource absent")
)

// Point is a 2-D position. Its coordinate system is implied by context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NaNPoint is returned when no valid position exists.
var NaNPoint = Point{X: math.NaN(), Y: math.NaN()}

// IsNaN reports whether either component is NaN.
func (p Point) IsNaN() bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y)
}

// Sample is one gaze sample delivered by the tracker. Gaze points are in
// device display-area space. Samples are never mutated after being appended
// to a buffer.
type Sample struct {
	DeviceTimestamp int64 `json:"ts"`

	LeftGaze       Point `json:"left_gaze"`
	LeftGazeValid  bool  `json:"left_gaze_valid"`
	RightGaze      Point `json:"right_gaze"`
	RightGazeValid bool  `json:"right_gaze_valid"`

	LeftPupil       float64 `json:"left_pupil"`
	LeftPupilValid  bool    `json:"left_pupil_valid"`
	RightPupil      float64 `json:"right_pupil"`
	RightPupilValid bool    `json:"right_pupil_valid"`
}

// AnyGazeValid reports whether at least one eye produced a valid gaze point.
func (s Sample) AnyGazeValid() bool {
	return s.LeftGazeValid || s.RightGazeValid
}

// UserPosition reports where the eyes are inside the tracking volume, in
// track-box space (x, y, z each normalized to [0,1]).
type UserPosition struct {
	DeviceTimestamp int64 `json:"ts"`

	Left       [3]float64 `json:"left"`
	LeftValid  bool       `json:"left_valid"`
	Right      [3]float64 `json:"right"`
	RightValid bool       `json:"right_valid"`
}

// Event is a labelled marker captured during a recording.
type Event struct {
	DeviceTimestamp int64
	Label           string
}

// AveragePoint combines two per-eye points using only the valid eyes.
// Both invalid yields NaNPoint.
func AveragePoint(left Point, leftValid bool, right Point, rightValid bool) Point {
	switch {
	case !leftValid && !rightValid:
		return NaNPoint
	case !leftValid:
		return right
	case !rightValid:
		return left
	default:
		return Point{X: (left.X + right.X) / 2.0, Y: (left.Y + right.Y) / 2.0}
	}
}

// AverageValue is AveragePoint for scalars such as pupil diameter.
func AverageValue(left float64, leftValid bool, right float64, rightValid bool) float64 {
	switch {
	case !leftValid && !rightValid:
		return math.NaN()
	case !leftValid:
		return right
	case !rightValid:
		return left
	default:
		return (left + right) / 2.0
	}
}

// Round rounds v to the given number of decimal places. The stored binary
// value decides the result and exact halves go to even, so 0.15 (just under
// 0.15) rounds to 0.1 and 0.25 rounds to 0.2. NaN passes through.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', max(decimals, 0), 64), 64)
	if err != nil {
		return v
	}
	return r
}
