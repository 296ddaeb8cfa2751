package trackbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

type fixture struct {
	clock *timeutil.MockClock
	win   *display.HeadlessWindow
	sim   *tracker.SimTracker
	guide *Guide
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	win := display.NewHeadlessWindow(display.HeadlessConfig{Clock: clock, FrameInterval: 10 * time.Millisecond})
	sim := tracker.NewSimTracker(tracker.SimConfig{Clock: clock})
	tr, err := coords.NewTransform(1920, 1080, nil)
	require.NoError(t, err)
	g, err := NewGuide(sim, win, ConfigFrom(config.DefaultExperimentConfig(), tr, clock))
	require.NoError(t, err)
	return &fixture{clock: clock, win: win, sim: sim, guide: g}
}

func TestGuideDrawsEyesAndDepth(t *testing.T) {
	f := newFixture(t)
	f.win.OnFlip(func(frame int, _ []display.DrawOp) {
		if frame == 0 {
			f.sim.EmitPosition(gaze.UserPosition{
				Left: [3]float64{0.5, 0.5, 0.5}, LeftValid: true,
				Right: [3]float64{0.25, 0.75, 0.7}, RightValid: true,
			})
		}
	})
	f.win.PressAt(100*time.Millisecond, "space")

	frames, err := f.guide.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.win.Frames(), frames)
	assert.Equal(t, 0, f.sim.PositionSubscribers())
	assert.Contains(t, f.clock.Sleeps(), 500*time.Millisecond)

	ops := f.win.LastFrame()
	circles := display.Filter(ops, display.OpCircle)
	require.Len(t, circles, 2)

	left, right := circles[0], circles[1]
	assert.Equal(t, display.Green, left.Fill)
	assert.InDelta(t, 0, left.Center.X, 1e-9)
	assert.InDelta(t, 0.4*1080, left.Center.Y, 1e-9)
	assert.InDelta(t, 0.01*1080, left.Radius, 1e-9)

	assert.Equal(t, display.Red, right.Fill)
	assert.InDelta(t, 0.1111*1080, right.Center.X, 1e-6)
	assert.InDelta(t, 0.35*1080, right.Center.Y, 1e-6)

	rects := display.Filter(ops, display.OpRect)
	require.Len(t, rects, 4)
	cursor := rects[3]
	assert.Equal(t, display.Black, cursor.Fill)
	assert.InDelta(t, 0.0125*1080, cursor.Center.X, 1e-6)
	assert.InDelta(t, 0.28*1080, cursor.Center.Y, 1e-6)
}

func TestGuideWithoutData(t *testing.T) {
	f := newFixture(t)
	f.win.PressAt(50*time.Millisecond, "space")

	_, err := f.guide.Run(context.Background())
	require.NoError(t, err)

	ops := f.win.LastFrame()
	assert.Empty(t, display.Filter(ops, display.OpCircle))
	assert.Len(t, display.Filter(ops, display.OpRect), 3)
	assert.Len(t, display.Filter(ops, display.OpText), 1)
}

func TestGuideOneValidEye(t *testing.T) {
	f := newFixture(t)
	f.win.OnFlip(func(frame int, _ []display.DrawOp) {
		if frame == 0 {
			f.sim.EmitPosition(gaze.UserPosition{
				Left:  [3]float64{0.5, 0.5, 0.9},
				Right: [3]float64{0.5, 0.5, 0.3}, RightValid: true,
			})
		}
	})
	f.win.PressAt(50*time.Millisecond, "space")

	_, err := f.guide.Run(context.Background())
	require.NoError(t, err)

	ops := f.win.LastFrame()
	circles := display.Filter(ops, display.OpCircle)
	require.Len(t, circles, 1)
	assert.Equal(t, display.Red, circles[0].Fill)

	// only the right eye's z counts: (0.3-0.5)*0.125
	rects := display.Filter(ops, display.OpRect)
	require.Len(t, rects, 4)
	assert.InDelta(t, -0.025*1080, rects[3].Center.X, 1e-6)
}

func TestGuideCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.win.OnFlip(func(frame int, _ []display.DrawOp) {
		if frame == 3 {
			cancel()
		}
	})

	frames, err := f.guide.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, frames)
	assert.Equal(t, 0, f.sim.PositionSubscribers())
}

func TestNewGuideNeedsTransform(t *testing.T) {
	_, err := NewGuide(tracker.NewSimTracker(tracker.SimConfig{}), display.NewHeadlessWindow(display.HeadlessConfig{}), Config{})
	assert.ErrorIs(t, err, gaze.ErrConfiguration)
}
