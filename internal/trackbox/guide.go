// Package trackbox draws the head-position guide shown before calibration:
// where each eye sits inside the tracker's volume and how far the head is
// from the ideal viewing distance.
package trackbox

import (
	"context"
	"fmt"
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

// Layout of the guide in height units (fractions of the window height).
const (
	boxY      = 0.4
	boxWidth  = 0.25
	boxHeight = 0.2
	eyeSize   = 0.02
	barY      = 0.28
	barHeight = 0.03
	centreW   = 0.01
	cursorW   = 0.005
	// depthGain maps track-box z around its centre onto the depth bar.
	depthGain = 0.125
)

// DefaultInstruction is shown above the guide.
const DefaultInstruction = "Adjust your position until both eyes are inside the box\nand the black mark is centred on the bar"

// Config configures a Guide.
type Config struct {
	Transform   *coords.Transform
	Clock       timeutil.Clock
	SettleDelay time.Duration
	ContinueKey string
	Instruction string
}

// ConfigFrom reads guide settings from the experiment configuration.
func ConfigFrom(cfg *config.ExperimentConfig, tr *coords.Transform, clock timeutil.Clock) Config {
	return Config{
		Transform:   tr,
		Clock:       clock,
		SettleDelay: cfg.GetStreamSettleDelay(),
		ContinueKey: cfg.GetContinueKey(),
		Instruction: DefaultInstruction,
	}
}

// Guide shows the user-position stream until the operator continues.
type Guide struct {
	src tracker.PositionSource
	win display.Window
	cfg Config

	mu     sync.Mutex
	latest gaze.UserPosition
	have   bool
}

// NewGuide returns a guide drawing on win.
func NewGuide(src tracker.PositionSource, win display.Window, cfg Config) (*Guide, error) {
	if cfg.Transform == nil {
		return nil, fmt.Errorf("%w: position guide needs a coordinate transform", gaze.ErrConfiguration)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.ContinueKey == "" {
		cfg.ContinueKey = "space"
	}
	return &Guide{src: src, win: win, cfg: cfg}, nil
}

func (g *Guide) onPosition(p gaze.UserPosition) {
	g.mu.Lock()
	g.latest, g.have = p, true
	g.mu.Unlock()
}

// Latest returns the most recent user position, if any arrived.
func (g *Guide) Latest() (gaze.UserPosition, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest, g.have
}

// Run subscribes to the position stream and draws the guide every frame
// until the continue key is pressed. It returns the number of frames shown.
func (g *Guide) Run(ctx context.Context) (int, error) {
	sub, err := g.src.SubscribeUserPosition(g.onPosition)
	if err != nil {
		return 0, fmt.Errorf("failed to subscribe to user position: %w", err)
	}
	defer sub.Unsubscribe()
	g.cfg.Clock.Sleep(g.cfg.SettleDelay)

	monitoring.Logf("position guide: press %q to continue", g.cfg.ContinueKey)
	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		g.draw()

		done := false
		for _, key := range g.win.Keys() {
			if key == g.cfg.ContinueKey {
				done = true
				break
			}
		}
		g.win.Flip()
		frames++
		if done {
			return frames, nil
		}
	}
}

func (g *Guide) draw() {
	_, height := g.win.Size()
	h := float64(height)
	at := func(x, y float64) gaze.Point { return gaze.Point{X: x * h, Y: y * h} }

	if g.cfg.Instruction != "" {
		g.win.DrawText(gaze.Point{}, g.cfg.Instruction, display.White)
	}
	g.win.DrawRect(at(0, boxY), boxWidth*h, boxHeight*h, display.Black, display.White)
	g.win.DrawRect(at(0, barY), boxWidth*h, barHeight*h, display.Green, display.Green)
	g.win.DrawRect(at(0, barY), centreW*h, barHeight*h, display.White, display.White)

	pos, ok := g.Latest()
	if !ok {
		return
	}
	if pos.LeftValid {
		if p, err := g.eye(pos.Left); err == nil {
			g.win.DrawCircle(at(p.X, p.Y), eyeSize/2*h, display.Green, display.None)
		}
	}
	if pos.RightValid {
		if p, err := g.eye(pos.Right); err == nil {
			g.win.DrawCircle(at(p.X, p.Y), eyeSize/2*h, display.Red, display.None)
		}
	}
	if z, ok := depth(pos); ok {
		g.win.DrawRect(at(z, barY), cursorW*h, barHeight*h, display.Black, display.Black)
	}
}

// eye places a track-box position inside the guide box, in height units.
func (g *Guide) eye(v [3]float64) (gaze.Point, error) {
	p, err := g.cfg.Transform.TrackBoxToPresentation(gaze.Point{X: v[0], Y: v[1]}, coords.Height)
	if err != nil {
		return gaze.Point{}, err
	}
	return gaze.Point{
		X: gaze.Round(p.X*boxWidth, 4),
		Y: gaze.Round(p.Y*boxHeight+boxY, 4),
	}, nil
}

// depth returns the depth-bar cursor offset from the mean z of the valid
// eyes, in height units.
func depth(pos gaze.UserPosition) (float64, bool) {
	var sum float64
	n := 0
	if pos.LeftValid {
		sum += pos.Left[2]
		n++
	}
	if pos.RightValid {
		sum += pos.Right[2]
		n++
	}
	if n == 0 {
		return 0, false
	}
	return gaze.Round((sum/float64(n)-0.5)*depthGain, 4), true
}
