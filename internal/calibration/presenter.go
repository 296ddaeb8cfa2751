package calibration

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

// Presenter shows calibration targets and triggers sample collection for
// the active points of one pass.
type Presenter interface {
	Present(ctx context.Context, st *Stage) error
}

// Preparer is implemented by presenters that must check their resources
// against the point count before the device enters calibration mode.
type Preparer interface {
	Prepare(points int) error
}

// AudioCue is an optional attention sound.
type AudioCue interface {
	Play()
	Stop()
}

// Stage is what a presenter sees of the running session during one pass.
type Stage struct {
	Window display.Window
	Clock  timeutil.Clock
	// Points are all calibration points in the session's units.
	Points []gaze.Point
	// Active lists the indices to collect in this pass.
	Active []int
	// Keymap maps operator keys to point indices (-1 toggles all).
	Keymap map[string]int

	session *Session
	targets []gaze.Point
}

// IsActive reports whether point i is collected in this pass.
func (st *Stage) IsActive(i int) bool {
	return retrySet(st.Active).contains(i)
}

// Pix returns point i in window pixels.
func (st *Stage) Pix(i int) gaze.Point {
	return st.session.presentationToPix(st.Points[i])
}

// Show marks point i as being presented.
func (st *Stage) Show(i int) {
	st.session.present(i)
}

// Collect asks the device for samples at point i.
func (st *Stage) Collect(ctx context.Context, i int) error {
	st.session.transition(Collecting)
	if err := st.session.dev.CollectData(ctx, st.targets[i]); err != nil {
		return fmt.Errorf("failed to collect point %d: %w", i, err)
	}
	return nil
}

// pulse is the size factor of an animated target t seconds after it
// appeared.
func pulse(t, speed, minFraction float64) float64 {
	s := math.Sin(t * speed)
	return s*s + minFraction
}

// GeometricTarget shows a pulsing disc with a centre dot at each active
// point in turn and collects automatically after a fixed dwell.
type GeometricTarget struct {
	Speed       float64
	MinFraction float64
	DotSizePx   float64
	DiscSizePx  float64
	SettleDelay time.Duration
}

// NewGeometricTarget reads the animation settings from cfg.
func NewGeometricTarget(cfg *config.ExperimentConfig) *GeometricTarget {
	return &GeometricTarget{
		Speed:       cfg.GetShrinkSpeed(),
		MinFraction: cfg.GetTargetMinFraction(),
		DotSizePx:   cfg.GetDotSizePx(),
		DiscSizePx:  cfg.GetDiscSizePx(),
		SettleDelay: cfg.GetSettleDelay(),
	}
}

// Dwell is how long each target is shown before the settle pause.
func (g *GeometricTarget) Dwell() time.Duration {
	return time.Duration(3 / g.Speed * float64(time.Second))
}

func (g *GeometricTarget) Present(ctx context.Context, st *Stage) error {
	if g.Speed <= 0 {
		return fmt.Errorf("%w: shrink speed must be positive", gaze.ErrConfiguration)
	}
	dwell := g.Dwell()
	for _, i := range st.Active {
		st.Show(i)
		center := st.Pix(i)
		start := st.Clock.Now()
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			elapsed := st.Clock.Since(start)
			f := pulse(elapsed.Seconds(), g.Speed, g.MinFraction)
			st.Window.DrawCircle(center, f*g.DiscSizePx, display.DeepBlue, display.DeepBlue)
			st.Window.DrawCircle(center, f*g.DotSizePx, display.Grey, display.Grey)
			if elapsed >= dwell {
				st.Clock.Sleep(g.SettleDelay)
				if err := st.Collect(ctx, i); err != nil {
					return err
				}
				break
			}
			st.Window.Flip()
		}
	}
	return nil
}

// ImageStimulusTarget lets the operator present a picture at a point with
// the number keys and trigger collection by hand once the participant is
// attending. It suits participants who do not follow instructions.
type ImageStimulusTarget struct {
	Images      []*display.Image
	Audio       AudioCue
	Speed       float64
	MinFraction float64
	SettleDelay time.Duration
	CollectKey  string
	ExitKey     string
	// Rand shuffles the images every pass. Defaults to a random source.
	Rand *rand.Rand
}

// NewImageStimulusTarget returns an image presenter configured from cfg.
// audio may be nil.
func NewImageStimulusTarget(cfg *config.ExperimentConfig, images []*display.Image, audio AudioCue) *ImageStimulusTarget {
	return &ImageStimulusTarget{
		Images:      images,
		Audio:       audio,
		Speed:       cfg.GetShrinkSpeed(),
		MinFraction: cfg.GetTargetMinFraction(),
		SettleDelay: cfg.GetSettleDelay(),
		CollectKey:  cfg.GetCollectKey(),
		ExitKey:     cfg.GetExitKey(),
	}
}

// Prepare fails when there are fewer images than points.
func (p *ImageStimulusTarget) Prepare(points int) error {
	if len(p.Images) < points {
		return fmt.Errorf("%w: unable to load the calibration images: %d images for %d points",
			gaze.ErrResourceAbsent, len(p.Images), points)
	}
	for i, img := range p.Images[:points] {
		if img == nil {
			return fmt.Errorf("%w: calibration image %d is missing", gaze.ErrResourceAbsent, i)
		}
	}
	return nil
}

func (p *ImageStimulusTarget) Present(ctx context.Context, st *Stage) error {
	if err := p.Prepare(len(st.Points)); err != nil {
		return err
	}
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	images := append([]*display.Image(nil), p.Images...)
	p.Rand.Shuffle(len(images), func(i, j int) { images[i], images[j] = images[j], images[i] })

	current := -1
	start := st.Clock.Now()
	st.Window.ClearKeys()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, key := range st.Window.Keys() {
			if idx, ok := st.Keymap[key]; ok {
				current = idx
				if st.IsActive(current) {
					st.Show(current)
					if p.Audio != nil {
						p.Audio.Play()
					}
				}
				continue
			}
			switch key {
			case p.CollectKey:
				st.Clock.Sleep(p.SettleDelay)
				if st.IsActive(current) {
					if err := st.Collect(ctx, current); err != nil {
						return err
					}
					current = -1
					if p.Audio != nil {
						p.Audio.Stop()
					}
				}
			case p.ExitKey:
				return nil
			}
		}

		if st.IsActive(current) {
			f := pulse(st.Clock.Since(start).Seconds(), p.Speed, p.MinFraction)
			st.Window.DrawImage(images[current], st.Pix(current), f)
		}
		st.Window.Flip()
	}
}
