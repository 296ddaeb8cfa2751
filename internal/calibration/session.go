// Package calibration runs the operator-in-the-loop calibration of a gaze
// tracker: targets are presented and sampled, the device computes a
// calibration, and the operator reviews the result and either accepts it,
// flags points for another pass, or aborts.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitoring"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

const (
	MinPoints = 2
	MaxPoints = 9
)

// State is a step of the calibration state machine.
type State string

const (
	Idle            State = "idle"
	Entering        State = "entering"
	PresentingPoint State = "presenting_point"
	Collecting      State = "collecting"
	Computing       State = "computing"
	Reviewing       State = "reviewing"
	Retrying        State = "retrying"
	Accepted        State = "accepted"
	Aborted         State = "aborted"
)

// Config holds the presentation and review settings of a session.
type Config struct {
	Transform *coords.Transform
	// Units is the system calibration points are given in.
	Units coords.System
	Clock timeutil.Clock

	// AccuracyThreshold is the largest mean per-eye error, in display-area
	// units, for a point to pass the automatic check.
	AccuracyThreshold float64
	ToleranceRingPx   float64
	MarkerRadiusPx    float64
	DotSizePx         float64
	AbortKey          string
}

// ConfigFrom reads session settings from the experiment configuration.
func ConfigFrom(cfg *config.ExperimentConfig, tr *coords.Transform, clock timeutil.Clock) Config {
	return Config{
		Transform:         tr,
		Units:             cfg.GetWindowUnits(),
		Clock:             clock,
		AccuracyThreshold: cfg.GetAccuracyThreshold(),
		ToleranceRingPx:   cfg.GetToleranceRingPx(),
		MarkerRadiusPx:    cfg.GetMarkerRadiusPx(),
		DotSizePx:         cfg.GetDotSizePx(),
		AbortKey:          cfg.GetAbortKey(),
	}
}

// Iteration summarises one present/compute/review pass.
type Iteration struct {
	Active   []int                      `json:"active"`
	Result   *tracker.CalibrationResult `json:"result"`
	Accuracy []PointAccuracy            `json:"accuracy"`
	Retry    []int                      `json:"retry"`
}

// Outcome is what Run hands back. It replaces any process-wide record of
// the last calibration.
type Outcome struct {
	Accepted   bool
	Iterations []Iteration
	StartedAt  time.Time
	FinishedAt time.Time
}

// Last returns the final iteration.
func (o Outcome) Last() Iteration {
	if len(o.Iterations) == 0 {
		return Iteration{}
	}
	return o.Iterations[len(o.Iterations)-1]
}

// Session drives one calibration on a device and a window.
type Session struct {
	dev       tracker.Calibrator
	win       display.Window
	presenter Presenter
	cfg       Config

	mu          sync.Mutex
	state       State
	transitions []State
	presented   []int
}

// NewSession checks cfg and returns an idle session. The presenter decides
// how targets are shown while points are collected.
func NewSession(dev tracker.Calibrator, win display.Window, presenter Presenter, cfg Config) (*Session, error) {
	if cfg.Transform == nil {
		return nil, fmt.Errorf("%w: calibration needs a coordinate transform", gaze.ErrConfiguration)
	}
	if !cfg.Units.IsValid() {
		return nil, fmt.Errorf("%w: invalid calibration units %q", gaze.ErrConfiguration, cfg.Units)
	}
	if presenter == nil {
		return nil, fmt.Errorf("%w: calibration needs a target presenter", gaze.ErrConfiguration)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.AbortKey == "" {
		cfg.AbortKey = "escape"
	}
	s := &Session{dev: dev, win: win, presenter: presenter, cfg: cfg, state: Idle}
	s.transitions = []State{Idle}
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns every state entered so far, in order.
func (s *Session) Transitions() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.transitions...)
}

// Presented returns the index of every point shown so far, in order.
func (s *Session) Presented() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.presented...)
}

func (s *Session) present(i int) {
	s.mu.Lock()
	s.presented = append(s.presented, i)
	s.mu.Unlock()
	s.transition(PresentingPoint)
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == to {
		return
	}
	s.state = to
	s.transitions = append(s.transitions, to)
}

// Run calibrates at points, given in the session's units. decisionKey
// confirms the operator's retry selection during review; the abort key
// cancels. The device leaves calibration mode on every return path once
// it has entered it.
func (s *Session) Run(ctx context.Context, points []gaze.Point, decisionKey string) (out Outcome, err error) {
	n := len(points)
	if n < MinPoints || n > MaxPoints {
		return Outcome{}, fmt.Errorf("%w: calibration points must be %d~%d, got %d", gaze.ErrConfiguration, MinPoints, MaxPoints, n)
	}
	if decisionKey == "" || decisionKey == s.cfg.AbortKey {
		return Outcome{}, fmt.Errorf("%w: decision key %q must be set and differ from the abort key", gaze.ErrConfiguration, decisionKey)
	}
	keymap := Keymap(n)

	targets := make([]gaze.Point, n)
	for i, p := range points {
		d, err := s.cfg.Transform.ToDevice(p, s.cfg.Units)
		if err != nil {
			return Outcome{}, err
		}
		targets[i] = d
	}
	if pp, ok := s.presenter.(Preparer); ok {
		if err := pp.Prepare(n); err != nil {
			return Outcome{}, err
		}
	}

	out.StartedAt = s.cfg.Clock.Now()
	s.transition(Entering)
	if err := s.dev.EnterCalibrationMode(ctx); err != nil {
		s.transition(Aborted)
		return out, fmt.Errorf("failed to enter calibration mode: %w", err)
	}
	defer func() {
		if lerr := s.dev.LeaveCalibrationMode(context.WithoutCancel(ctx)); lerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to leave calibration mode: %w", lerr))
		}
		if !out.Accepted {
			s.transition(Aborted)
		}
		out.FinishedAt = s.cfg.Clock.Now()
	}()

	active := make(retrySet, n)
	for i := range active {
		active[i] = i
	}
	s.win.ClearKeys()

	for {
		it := Iteration{Active: slices.Clone(active)}

		s.win.Flip()
		stage := &Stage{
			Window:  s.win,
			Clock:   s.cfg.Clock,
			Points:  points,
			Active:  slices.Clone(active),
			Keymap:  keymap,
			session: s,
			targets: targets,
		}
		if err := s.presenter.Present(ctx, stage); err != nil {
			return out, err
		}

		s.transition(Computing)
		res, err := s.dev.ComputeAndApply(ctx)
		if err != nil {
			return out, fmt.Errorf("failed to compute calibration: %w", err)
		}
		s.win.Flip()
		it.Result = res
		it.Accuracy = assessAccuracy(res, targets, s.cfg.AccuracyThreshold)
		for _, pa := range it.Accuracy {
			monitoring.Logf("calibration point %d: left %.4f right %.4f pass=%t", pa.Index, pa.LeftError, pa.RightError, pa.Pass)
		}

		s.transition(Reviewing)
		retry, decided, err := s.review(ctx, res, points, keymap, decisionKey)
		it.Retry = retry
		out.Iterations = append(out.Iterations, it)
		if err != nil {
			return out, err
		}
		if !decided {
			monitoring.Logf("calibration aborted by operator")
			return out, nil
		}
		if len(retry) == 0 {
			out.Accepted = true
			s.transition(Accepted)
			return out, nil
		}

		s.transition(Retrying)
		for _, i := range retry {
			if err := s.dev.DiscardData(ctx, targets[i]); err != nil {
				return out, fmt.Errorf("failed to discard point %d: %w", i, err)
			}
		}
		active = retry
	}
}

// review shows the overlay until the operator confirms or aborts. decided
// is false when the abort key was pressed.
func (s *Session) review(ctx context.Context, res *tracker.CalibrationResult, points []gaze.Point, keymap map[string]int, decisionKey string) (retrySet, bool, error) {
	var retry retrySet
	msg := s.reviewMessage(decisionKey)
	_, height := s.win.Size()

	for {
		if err := ctx.Err(); err != nil {
			return retry, false, err
		}
		done, decided := false, false
		for _, key := range s.win.Keys() {
			if key == decisionKey {
				done, decided = true, true
				break
			}
			if key == s.cfg.AbortKey {
				done = true
				break
			}
			if v, ok := keymap[key]; ok {
				retry = retry.toggle(v, len(points))
			}
		}

		s.overlay(res)
		s.drawRetryMarkers(points, retry)
		s.win.DrawText(gaze.Point{X: 0, Y: -float64(height) / 4}, msg, display.White)
		s.win.Flip()

		if done {
			return retry, decided, nil
		}
	}
}
