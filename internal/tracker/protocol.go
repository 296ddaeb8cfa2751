package tracker

import (
	"encoding/json"
	"math"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
)

// Wire protocol: one JSON object per line in each direction. The host sends
// commands carrying a correlation id; the device answers each with a
// "reply" line echoing the id and pushes "gaze" and "user_position" lines
// for subscribed streams.

const (
	cmdInfo        = "info"
	cmdClock       = "clock"
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdEnter       = "enter_calibration"
	cmdLeave       = "leave_calibration"
	cmdCollect     = "collect"
	cmdDiscard     = "discard"
	cmdCompute     = "compute"

	streamGaze         = "gaze"
	streamUserPosition = "user_position"

	msgReply = "reply"
)

type command struct {
	ID     string      `json:"id"`
	Cmd    string      `json:"cmd"`
	Stream string      `json:"stream,omitempty"`
	Point  *gaze.Point `json:"point,omitempty"`
}

type envelope struct {
	Type   string             `json:"type"`
	ID     string             `json:"id,omitempty"`
	OK     bool               `json:"ok,omitempty"`
	Error  string             `json:"error,omitempty"`
	TS     int64              `json:"ts,omitempty"`
	Info   *Info              `json:"info,omitempty"`
	Result *CalibrationResult `json:"result,omitempty"`
}

type gazeLine struct {
	Type string `json:"type"`
	gaze.Sample
}

type positionLine struct {
	Type string `json:"type"`
	gaze.UserPosition
}

func encodeLine(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JSON has no NaN, so invalid eye fields travel as zero and are restored to
// NaN on the host.

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func toWire(s gaze.Sample) gaze.Sample {
	s.LeftGaze = gaze.Point{X: finiteOrZero(s.LeftGaze.X), Y: finiteOrZero(s.LeftGaze.Y)}
	s.RightGaze = gaze.Point{X: finiteOrZero(s.RightGaze.X), Y: finiteOrZero(s.RightGaze.Y)}
	s.LeftPupil = finiteOrZero(s.LeftPupil)
	s.RightPupil = finiteOrZero(s.RightPupil)
	return s
}

func fromWire(s gaze.Sample) gaze.Sample {
	if !s.LeftGazeValid {
		s.LeftGaze = gaze.NaNPoint
	}
	if !s.RightGazeValid {
		s.RightGaze = gaze.NaNPoint
	}
	if !s.LeftPupilValid {
		s.LeftPupil = math.NaN()
	}
	if !s.RightPupilValid {
		s.RightPupil = math.NaN()
	}
	return s
}

func positionToWire(p gaze.UserPosition) gaze.UserPosition {
	for i := range 3 {
		p.Left[i] = finiteOrZero(p.Left[i])
		p.Right[i] = finiteOrZero(p.Right[i])
	}
	return p
}

func positionFromWire(p gaze.UserPosition) gaze.UserPosition {
	nan := math.NaN()
	if !p.LeftValid {
		p.Left = [3]float64{nan, nan, nan}
	}
	if !p.RightValid {
		p.Right = [3]float64{nan, nan, nan}
	}
	return p
}
