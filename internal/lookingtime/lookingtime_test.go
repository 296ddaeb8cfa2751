package lookingtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

// scriptedSource reports a sample whose validity depends on the time since
// the trial started.
type scriptedSource struct {
	clock *timeutil.MockClock
	start time.Time
	away  func(t time.Duration) bool
}

func (s *scriptedSource) Latest() (gaze.Sample, bool) {
	t := s.clock.Since(s.start)
	return tracker.Sample(t.Microseconds(), gaze.Point{X: 0.5, Y: 0.5}, !s.away(t)), true
}

func awayBetween(from, to time.Duration) func(time.Duration) bool {
	return func(t time.Duration) bool { return t >= from && t < to }
}

func runTrial(t *testing.T, away func(time.Duration) bool, p Params) (Result, *display.HeadlessWindow) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	win := display.NewHeadlessWindow(display.HeadlessConfig{Clock: clock, FrameInterval: 10 * time.Millisecond})
	src := &scriptedSource{clock: clock, start: clock.Now(), away: away}

	res, err := NewMonitor(src, win, clock).Collect(context.Background(), p)
	require.NoError(t, err)
	return res, win
}

var defaultParams = Params{MaxTime: 10 * time.Second, MinAway: time.Second, BlinkTolerance: 200 * time.Millisecond}

func TestNoGapRunsFullTrial(t *testing.T) {
	res, win := runTrial(t, func(time.Duration) bool { return false }, defaultParams)
	assert.Equal(t, 10.0, res.LookingTime)
	assert.Equal(t, Completed, res.Outcome)
	assert.Empty(t, res.AwayGaps)
	assert.Equal(t, 1001, win.Frames())
}

func TestBlinkIgnored(t *testing.T) {
	res, _ := runTrial(t, awayBetween(2*time.Second, 2150*time.Millisecond), defaultParams)
	assert.Equal(t, 10.0, res.LookingTime)
	assert.Equal(t, Completed, res.Outcome)
	assert.Empty(t, res.AwayGaps)
}

func TestShortGapCounted(t *testing.T) {
	res, _ := runTrial(t, awayBetween(2*time.Second, 2500*time.Millisecond), defaultParams)
	assert.Equal(t, 9.5, res.LookingTime)
	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, []float64{0.5}, res.AwayGaps)
}

func TestGapAtBlinkToleranceCounted(t *testing.T) {
	res, _ := runTrial(t, awayBetween(time.Second, 1200*time.Millisecond), defaultParams)
	assert.Equal(t, 9.8, res.LookingTime)
}

func TestLongGapTerminates(t *testing.T) {
	res, _ := runTrial(t, awayBetween(3*time.Second, 4500*time.Millisecond), defaultParams)
	assert.Equal(t, 3.0, res.LookingTime)
	assert.Equal(t, LookedAway, res.Outcome)
	assert.Equal(t, 4.0, res.Elapsed)
	assert.Equal(t, []float64{1.0}, res.AwayGaps)
}

func TestGapsAccumulateBeforeTermination(t *testing.T) {
	away := func(t time.Duration) bool {
		return awayBetween(time.Second, 1300*time.Millisecond)(t) ||
			awayBetween(5*time.Second, 7*time.Second)(t)
	}
	res, _ := runTrial(t, away, defaultParams)
	assert.Equal(t, LookedAway, res.Outcome)
	assert.Equal(t, 6.0, res.Elapsed)
	assert.InDelta(t, 6.0-0.3-1.0, res.LookingTime, 1e-9)
}

func TestAbortKey(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	win := display.NewHeadlessWindow(display.HeadlessConfig{Clock: clock, FrameInterval: 10 * time.Millisecond})
	win.PressAt(2*time.Second, "escape")
	src := &scriptedSource{clock: clock, start: clock.Now(), away: func(time.Duration) bool { return false }}

	p := defaultParams
	p.AbortKey = "escape"
	res, err := NewMonitor(src, win, clock).Collect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, 2.0, res.LookingTime)
}

func TestMissingSampleCountsAsAway(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	win := display.NewHeadlessWindow(display.HeadlessConfig{Clock: clock, FrameInterval: 10 * time.Millisecond})
	rec := emptySource{}

	res, err := NewMonitor(rec, win, clock).Collect(context.Background(), defaultParams)
	require.NoError(t, err)
	assert.Equal(t, LookedAway, res.Outcome)
	assert.Equal(t, 0.0, res.LookingTime)
}

type emptySource struct{}

func (emptySource) Latest() (gaze.Sample, bool) { return gaze.Sample{}, false }

func TestCancelledContext(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	win := display.NewHeadlessWindow(display.HeadlessConfig{Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMonitor(emptySource{}, win, clock).Collect(ctx, defaultParams)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamsValidation(t *testing.T) {
	m := NewMonitor(emptySource{}, display.NewHeadlessWindow(display.HeadlessConfig{}), nil)
	for _, p := range []Params{
		{MaxTime: 0, MinAway: time.Second},
		{MaxTime: time.Second, MinAway: 0},
		{MaxTime: time.Second, MinAway: time.Second, BlinkTolerance: -1},
		{MaxTime: time.Second, MinAway: time.Second, BlinkTolerance: 2 * time.Second},
	} {
		_, err := m.Collect(context.Background(), p)
		assert.ErrorIs(t, err, gaze.ErrConfiguration, "%+v", p)
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFrom(config.DefaultExperimentConfig())
	assert.Equal(t, Params{
		MaxTime:        10 * time.Second,
		MinAway:        time.Second,
		BlinkTolerance: 200 * time.Millisecond,
		AbortKey:       "escape",
	}, p)
}
