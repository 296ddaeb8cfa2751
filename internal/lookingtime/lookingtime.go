// Package lookingtime measures how long a participant keeps looking at the
// screen during a trial, ending the trial early once they look away for
// long enough.
package lookingtime

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

// SampleSource exposes the newest buffered gaze sample.
type SampleSource interface {
	Latest() (gaze.Sample, bool)
}

// Params bound a trial. Away gaps shorter than BlinkTolerance are ignored,
// gaps of at least MinAway end the trial, anything in between is counted
// as away time.
type Params struct {
	MaxTime        time.Duration
	MinAway        time.Duration
	BlinkTolerance time.Duration
	// AbortKey, when pressed, ends the trial at the current time.
	AbortKey string
}

// ParamsFrom reads trial parameters from the experiment settings.
func ParamsFrom(cfg *config.ExperimentConfig) Params {
	return Params{
		MaxTime:        cfg.GetMaxLookingTime(),
		MinAway:        cfg.GetMinAway(),
		BlinkTolerance: cfg.GetBlinkTolerance(),
		AbortKey:       cfg.GetAbortKey(),
	}
}

func (p Params) validate() error {
	if p.MaxTime <= 0 || p.MinAway <= 0 || p.BlinkTolerance < 0 {
		return fmt.Errorf("%w: looking time needs positive max time and min away, got %v/%v/%v",
			gaze.ErrConfiguration, p.MaxTime, p.MinAway, p.BlinkTolerance)
	}
	if p.BlinkTolerance > p.MinAway {
		return fmt.Errorf("%w: blink tolerance %v exceeds min away %v", gaze.ErrConfiguration, p.BlinkTolerance, p.MinAway)
	}
	return nil
}

// Outcome says how a trial ended.
type Outcome string

const (
	Completed  Outcome = "completed"   // MaxTime elapsed
	LookedAway Outcome = "looked_away" // an away gap reached MinAway
	Aborted    Outcome = "aborted"
)

// Result of one trial. Times are in seconds.
type Result struct {
	LookingTime float64
	Elapsed     float64
	AwayGaps    []float64
	Outcome     Outcome
}

// Monitor runs trials against the live sample buffer, one check per frame.
type Monitor struct {
	src   SampleSource
	win   display.Window
	clock timeutil.Clock
}

func NewMonitor(src SampleSource, win display.Window, clock timeutil.Clock) *Monitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{src: src, win: win, clock: clock}
}

// Collect runs one trial and returns the looking time rounded to three
// decimals. A missing sample counts as looking away.
func (m *Monitor) Collect(ctx context.Context, p Params) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	m.win.ClearKeys()

	start := m.clock.Now()
	looking := true
	var awayStart time.Time
	var gaps []float64

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		now := m.clock.Now()
		elapsed := now.Sub(start)
		if elapsed > p.MaxTime {
			break
		}
		if p.AbortKey != "" && slices.Contains(m.win.Keys(), p.AbortKey) {
			return result(elapsed.Seconds(), elapsed, gaps, Aborted), nil
		}

		s, ok := m.src.Latest()
		if ok && s.AnyGazeValid() {
			if !looking {
				gap := now.Sub(awayStart)
				switch {
				case gap >= p.MinAway:
					gaps = append(gaps, gap.Seconds())
					return result(elapsed.Seconds(), elapsed, gaps, LookedAway), nil
				case gap >= p.BlinkTolerance:
					gaps = append(gaps, gap.Seconds())
				}
				looking = true
			}
		} else {
			if looking {
				looking = false
				awayStart = now
			} else if gap := now.Sub(awayStart); gap >= p.MinAway {
				gaps = append(gaps, gap.Seconds())
				return result(elapsed.Seconds(), elapsed, gaps, LookedAway), nil
			}
		}
		m.win.Flip()
	}

	return result(p.MaxTime.Seconds(), p.MaxTime, gaps, Completed), nil
}

func result(total float64, elapsed time.Duration, gaps []float64, outcome Outcome) Result {
	return Result{
		LookingTime: gaze.Round(total-floats.Sum(gaps), 3),
		Elapsed:     gaze.Round(elapsed.Seconds(), 3),
		AwayGaps:    gaps,
		Outcome:     outcome,
	}
}
