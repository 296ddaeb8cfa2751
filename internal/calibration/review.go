package calibration

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

// toggleAll is the keymap value that selects or clears every point.
const toggleAll = -1

// Keymap returns the operator keys for n points: "1".."9" and the keypad
// "num_1".."num_9" address points 0..8, "0" and "num_0" toggle all. Keys
// for indices >= n are left out.
func Keymap(n int) map[string]int {
	m := map[string]int{"0": toggleAll, "num_0": toggleAll}
	for i := 0; i < 9 && i < n; i++ {
		k := strconv.Itoa(i + 1)
		m[k] = i
		m["num_"+k] = i
	}
	return m
}

// retrySet is the ordered set of point indices flagged for recalibration.
type retrySet []int

func (r retrySet) contains(i int) bool {
	for _, v := range r {
		if v == i {
			return true
		}
	}
	return false
}

// toggle applies one keymap value to the set.
func (r retrySet) toggle(v, n int) retrySet {
	if v == toggleAll {
		if len(r) == n {
			return nil
		}
		all := make(retrySet, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	if v < 0 || v >= n {
		return r
	}
	for i, x := range r {
		if x == v {
			return append(r[:i:i], r[i+1:]...)
		}
	}
	return append(r, v)
}

// PointAccuracy is the auto-accuracy verdict for one calibration point.
// Errors are mean Euclidean distances in display-area units over the
// valid-and-used samples of each eye; NaN when an eye has none.
type PointAccuracy struct {
	Index      int        `json:"index"`
	Target     gaze.Point `json:"target"`
	LeftError  float64    `json:"left_error"`
	RightError float64    `json:"right_error"`
	Samples    int        `json:"samples"`
	Pass       bool       `json:"pass"`
}

// assessAccuracy scores every point of res against threshold. Points are
// matched back to the session's targets by display-area position.
func assessAccuracy(res *tracker.CalibrationResult, targets []gaze.Point, threshold float64) []PointAccuracy {
	if res == nil || res.Status != tracker.StatusSuccess {
		return nil
	}
	out := make([]PointAccuracy, 0, len(res.Points))
	for _, cp := range res.Points {
		target := []float64{cp.Position.X, cp.Position.Y}
		var left, right []float64
		for _, s := range cp.Samples {
			if s.Left.Validity == tracker.ValidAndUsed {
				left = append(left, floats.Distance(target, []float64{s.Left.Position.X, s.Left.Position.Y}, 2))
			}
			if s.Right.Validity == tracker.ValidAndUsed {
				right = append(right, floats.Distance(target, []float64{s.Right.Position.X, s.Right.Position.Y}, 2))
			}
		}
		pa := PointAccuracy{
			Index:      indexOf(targets, cp.Position),
			Target:     cp.Position,
			LeftError:  meanOrNaN(left),
			RightError: meanOrNaN(right),
			Samples:    len(cp.Samples),
		}
		pa.Pass = len(left) > 0 && len(right) > 0 && pa.LeftError <= threshold && pa.RightError <= threshold
		out = append(out, pa)
	}
	return out
}

func meanOrNaN(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

func indexOf(targets []gaze.Point, p gaze.Point) int {
	const eps = 1e-9
	for i, t := range targets {
		if scalar.EqualWithinAbs(t.X, p.X, eps) && scalar.EqualWithinAbs(t.Y, p.Y, eps) {
			return i
		}
	}
	return -1
}

// overlay draws the computed calibration: a marker on each target, a line
// per valid-and-used eye sample (green left, red right) and the tolerance
// ring.
func (s *Session) overlay(res *tracker.CalibrationResult) {
	if res == nil || res.Status != tracker.StatusSuccess {
		return
	}
	for _, cp := range res.Points {
		p := s.deviceToPix(cp.Position)
		for _, smp := range cp.Samples {
			if smp.Left.Validity == tracker.ValidAndUsed {
				s.win.DrawLine(p, s.deviceToPix(smp.Left.Position), display.Green)
			}
			if smp.Right.Validity == tracker.ValidAndUsed {
				s.win.DrawLine(p, s.deviceToPix(smp.Right.Position), display.Red)
			}
		}
		s.win.DrawCircle(p, s.cfg.MarkerRadiusPx, display.None, display.Black)
		s.win.DrawCircle(p, s.cfg.ToleranceRingPx, display.None, display.White)
	}
}

func (s *Session) drawRetryMarkers(points []gaze.Point, retry retrySet) {
	for _, i := range retry {
		s.win.DrawCircle(s.presentationToPix(points[i]), s.cfg.DotSizePx, display.Grey, display.DeepBlue)
	}
}

func (s *Session) reviewMessage(decisionKey string) string {
	return fmt.Sprintf("If the lines are not inside the circles, recalibration is needed\nContinue: %s", decisionKey)
}

func (s *Session) deviceToPix(p gaze.Point) gaze.Point {
	q, err := s.cfg.Transform.ToPresentation(p, coords.Pix)
	if err != nil {
		return p
	}
	return q
}

// presentationToPix maps a point in the session's units to window pixels.
func (s *Session) presentationToPix(p gaze.Point) gaze.Point {
	dev, err := s.cfg.Transform.ToDevice(p, s.cfg.Units)
	if err != nil {
		return p
	}
	return s.deviceToPix(dev)
}
