package display

import (
	"image/color"
	"sort"
	"sync"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

// HeadlessConfig configures a HeadlessWindow.
type HeadlessConfig struct {
	Width         int
	Height        int
	Units         coords.System
	Clock         timeutil.Clock
	FrameInterval time.Duration
}

// FlipHook runs after every flip with the frame index and the ops that
// were presented.
type FlipHook func(frame int, ops []DrawOp)

type scheduledKey struct {
	due time.Time
	key string
}

// HeadlessWindow is a Window that renders nothing. It records draw calls,
// paces frames by sleeping on its clock, and delivers key presses that were
// scheduled ahead of time. With a timeutil.MockClock every loop built on it
// becomes deterministic.
type HeadlessWindow struct {
	mu      sync.Mutex
	cfg     HeadlessConfig
	start   time.Time
	pending []DrawOp
	frames  [][]DrawOp
	keys    []scheduledKey
	hooks   []FlipHook
}

// NewHeadlessWindow returns a window using cfg. Zero fields are defaulted:
// 1920x1080, norm units, the real clock and 60 Hz.
func NewHeadlessWindow(cfg HeadlessConfig) *HeadlessWindow {
	if cfg.Width <= 0 {
		cfg.Width = 1920
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}
	if cfg.Units == "" {
		cfg.Units = coords.Norm
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / 60
	}
	return &HeadlessWindow{cfg: cfg, start: cfg.Clock.Now()}
}

func (w *HeadlessWindow) Size() (int, int)     { return w.cfg.Width, w.cfg.Height }
func (w *HeadlessWindow) Units() coords.System { return w.cfg.Units }

// Flip moves pending draw calls into the frame history, waits one frame
// interval and runs the flip hooks.
func (w *HeadlessWindow) Flip() time.Time {
	w.mu.Lock()
	ops := w.pending
	w.pending = nil
	w.frames = append(w.frames, ops)
	frame := len(w.frames) - 1
	hooks := append([]FlipHook(nil), w.hooks...)
	w.mu.Unlock()

	w.cfg.Clock.Sleep(w.cfg.FrameInterval)
	for _, h := range hooks {
		h(frame, ops)
	}
	return w.cfg.Clock.Now()
}

// OnFlip registers a hook that runs after every flip.
func (w *HeadlessWindow) OnFlip(h FlipHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, h)
}

// PressAt schedules keys to become available at the given offset from the
// window's creation time.
func (w *HeadlessWindow) PressAt(offset time.Duration, keys ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range keys {
		w.keys = append(w.keys, scheduledKey{due: w.start.Add(offset), key: k})
	}
	sort.SliceStable(w.keys, func(i, j int) bool { return w.keys[i].due.Before(w.keys[j].due) })
}

// Press makes keys available immediately.
func (w *HeadlessWindow) Press(keys ...string) {
	w.PressAt(w.cfg.Clock.Since(w.start), keys...)
}

// Keys returns every scheduled key whose time has come.
func (w *HeadlessWindow) Keys() []string {
	now := w.cfg.Clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	i := 0
	for ; i < len(w.keys) && !w.keys[i].due.After(now); i++ {
		out = append(out, w.keys[i].key)
	}
	w.keys = w.keys[i:]
	return out
}

// ClearKeys discards keys that are already due. Keys scheduled for the
// future are kept.
func (w *HeadlessWindow) ClearKeys() {
	_ = w.Keys()
}

func (w *HeadlessWindow) record(op DrawOp) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, op)
}

func (w *HeadlessWindow) DrawCircle(center gaze.Point, radius float64, fill, line color.Color) {
	w.record(DrawOp{Kind: OpCircle, Center: center, Radius: radius, Fill: rgba(fill), Line: rgba(line)})
}

func (w *HeadlessWindow) DrawRect(center gaze.Point, width, height float64, fill, line color.Color) {
	w.record(DrawOp{Kind: OpRect, Center: center, Width: width, Height: height, Fill: rgba(fill), Line: rgba(line)})
}

func (w *HeadlessWindow) DrawLine(from, to gaze.Point, c color.Color) {
	w.record(DrawOp{Kind: OpLine, Center: from, To: to, Line: rgba(c)})
}

func (w *HeadlessWindow) DrawText(pos gaze.Point, text string, c color.Color) {
	w.record(DrawOp{Kind: OpText, Center: pos, Text: text, Fill: rgba(c)})
}

func (w *HeadlessWindow) DrawImage(img *Image, center gaze.Point, scale float64) {
	w.record(DrawOp{
		Kind:   OpImage,
		Center: center,
		Width:  img.Width * scale,
		Height: img.Height * scale,
		Image:  img.Name,
	})
}

// Frames returns the number of frames flipped so far.
func (w *HeadlessWindow) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

// Frame returns the ops presented by frame i.
func (w *HeadlessWindow) Frame(i int) []DrawOp {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.frames) {
		return nil
	}
	return append([]DrawOp(nil), w.frames[i]...)
}

// LastFrame returns the ops presented by the most recent flip.
func (w *HeadlessWindow) LastFrame() []DrawOp {
	return w.Frame(w.Frames() - 1)
}

// Elapsed returns the clock time since the window was created.
func (w *HeadlessWindow) Elapsed() time.Duration {
	return w.cfg.Clock.Since(w.start)
}

// Filter returns the ops of the given kind.
func Filter(ops []DrawOp, kind OpKind) []DrawOp {
	var out []DrawOp
	for _, op := range ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}
