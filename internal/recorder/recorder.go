// Package recorder buffers push-delivered gaze samples and events for one
// recording session and writes them as a tab-separated sample file when the
// session stops.
package recorder

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/fsutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitoring"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

// Guard diagnostics. These conditions are never returned as errors.
const (
	msgNoData       = "No data were collected. Do nothing now..."
	msgStillRunning = "Still recording. Do nothing now..."
	msgNotStarted   = "A recording has not been started. Do nothing now..."
)

// ErrNoSink is returned by Start when no sink was given and none is open.
var ErrNoSink = errors.New("no sink open for recording")

// Config controls how samples are converted and written.
type Config struct {
	Transform *coords.Transform
	Units     coords.System
	Clock     timeutil.Clock

	// SettleDelay is waited after subscribing and before t0 is fixed.
	SettleDelay time.Duration
	// ClockRate is device ticks per second.
	ClockRate     float64
	TimeDecimals  int
	ValueDecimals int
	NaNToken      string
}

// ConfigFrom builds a recorder Config from the experiment settings.
func ConfigFrom(cfg *config.ExperimentConfig, tr *coords.Transform, clock timeutil.Clock) Config {
	return Config{
		Transform:     tr,
		Units:         cfg.GetWindowUnits(),
		Clock:         clock,
		SettleDelay:   cfg.GetStreamSettleDelay(),
		ClockRate:     cfg.GetDeviceClockRate(),
		TimeDecimals:  cfg.GetTimeDecimals(),
		ValueDecimals: cfg.GetValueDecimals(),
		NaNToken:      cfg.GetNaNToken(),
	}
}

// Recorder owns at most one recording session at a time. The tracker
// callback is the only writer of the sample buffer; readers take snapshots.
type Recorder struct {
	src tracker.GazeSource
	cfg Config

	mu         sync.Mutex
	samples    []gaze.Sample
	events     []gaze.Event
	outOfOrder int
	recording  bool
	t0         int64
	sink       fsutil.SyncWriteCloser
	sub        tracker.Subscription
}

// New returns a recorder reading from src.
func New(src tracker.GazeSource, cfg Config) (*Recorder, error) {
	if cfg.Transform == nil {
		return nil, fmt.Errorf("%w: recorder needs a coordinate transform", gaze.ErrConfiguration)
	}
	if !cfg.Units.IsValid() {
		return nil, fmt.Errorf("%w: invalid recorder units %q", gaze.ErrConfiguration, cfg.Units)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.ClockRate <= 0 {
		cfg.ClockRate = 1e6
	}
	if cfg.NaNToken == "" {
		cfg.NaNToken = "nan"
	}
	return &Recorder{src: src, cfg: cfg}, nil
}

// Start opens a session on sink. A nil sink keeps the currently open one.
// resetBuffers clears samples and events left from a previous session.
func (r *Recorder) Start(sink fsutil.SyncWriteCloser, resetBuffers bool) error {
	r.mu.Lock()
	if r.recording || r.sub != nil {
		r.mu.Unlock()
		monitoring.Logf(msgStillRunning)
		return nil
	}
	if sink != nil {
		if r.sink != nil && r.sink != sink {
			if err := r.sink.Close(); err != nil {
				monitoring.Logf("recorder: closing previous sink: %v", err)
			}
		}
		r.sink = sink
	}
	if r.sink == nil {
		r.mu.Unlock()
		return ErrNoSink
	}
	if resetBuffers {
		r.samples = nil
		r.events = nil
		r.outOfOrder = 0
	}
	r.mu.Unlock()

	sub, err := r.src.SubscribeGaze(r.onSample)
	if err != nil {
		return fmt.Errorf("failed to subscribe to gaze stream: %w", err)
	}
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()

	r.cfg.Clock.Sleep(r.cfg.SettleDelay)

	t0 := r.src.Now()
	r.mu.Lock()
	r.t0 = t0
	r.recording = true
	r.mu.Unlock()
	return nil
}

// Open creates the named file on fsys and starts recording into it.
func (r *Recorder) Open(fsys fsutil.FileSystem, path string, resetBuffers bool) error {
	if r.busy() {
		monitoring.Logf(msgStillRunning)
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	sink, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return r.Start(sink, resetBuffers)
}

func (r *Recorder) onSample(s gaze.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.samples); n > 0 && s.DeviceTimestamp < r.samples[n-1].DeviceTimestamp {
		r.outOfOrder++
		return
	}
	r.samples = append(r.samples, s)
}

// Stop ends the session and writes the sample file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		monitoring.Logf(msgNotStarted)
		return nil
	}
	sub := r.sub
	r.sub = nil
	r.recording = false
	r.mu.Unlock()

	sub.Unsubscribe()
	return r.Flush()
}

// Flush writes the header, one record per sample and one row per event, and
// syncs the sink after the header and at the end. It does nothing while
// recording or when no samples were collected.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	if len(r.samples) == 0 {
		r.mu.Unlock()
		monitoring.Logf(msgNoData)
		return nil
	}
	if r.recording {
		r.mu.Unlock()
		monitoring.Logf(msgStillRunning)
		return nil
	}
	samples := append([]gaze.Sample(nil), r.samples...)
	t0 := r.t0
	events := r.timedEvents(t0)
	sink := r.sink
	r.mu.Unlock()

	if sink == nil {
		return ErrNoSink
	}

	w := newTSVWriter(sink, r.cfg.NaNToken)
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := sink.Sync(); err != nil {
		return fmt.Errorf("failed to sync header: %w", err)
	}

	for _, s := range samples {
		rec, err := r.deriveRecord(s, t0)
		if err != nil {
			return err
		}
		if err := w.writeRecord(rec); err != nil {
			return err
		}
	}
	for _, ev := range events {
		if err := w.writeEvent(ev); err != nil {
			return err
		}
	}
	if err := w.flush(); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := sink.Sync(); err != nil {
		return fmt.Errorf("failed to sync samples: %w", err)
	}
	return nil
}

// RecordEvent stores label with the current device timestamp.
func (r *Recorder) RecordEvent(label string) {
	ts := r.src.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		monitoring.Logf("Not recording. Event %q ignored.", label)
		return
	}
	r.events = append(r.events, gaze.Event{DeviceTimestamp: ts, Label: label})
}

// Close stops an active session and closes the sink.
func (r *Recorder) Close() error {
	var stopErr error
	if r.Recording() {
		stopErr = r.Stop()
	}

	r.mu.Lock()
	sink := r.sink
	r.sink = nil
	r.mu.Unlock()
	if sink == nil {
		return stopErr
	}
	return errors.Join(stopErr, sink.Close())
}

// busy reports whether a session is active or starting.
func (r *Recorder) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording || r.sub != nil
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// T0 is the device timestamp at which the current or last session started.
func (r *Recorder) T0() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t0
}

// Latest returns the newest buffered sample.
func (r *Recorder) Latest() (gaze.Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return gaze.Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Samples returns a copy of the buffered samples.
func (r *Recorder) Samples() []gaze.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gaze.Sample(nil), r.samples...)
}

// Events returns the buffered events in seconds since the current t0.
func (r *Recorder) Events() []TimedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timedEvents(r.t0)
}

// timedEvents converts the event buffer against t0. Callers hold mu.
func (r *Recorder) timedEvents(t0 int64) []TimedEvent {
	if len(r.events) == 0 {
		return nil
	}
	out := make([]TimedEvent, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, TimedEvent{
			Elapsed: gaze.Round(float64(ev.DeviceTimestamp-t0)/r.cfg.ClockRate, r.cfg.TimeDecimals),
			Label:   ev.Label,
		})
	}
	return out
}

// Stats summarises the buffers.
type Stats struct {
	Samples    int
	Events     int
	OutOfOrder int
	T0         int64
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Samples:    len(r.samples),
		Events:     len(r.events),
		OutOfOrder: r.outOfOrder,
		T0:         r.t0,
	}
}

// CurrentGazePosition returns the newest averaged gaze position in
// presentation units, or NaN when there is none.
func (r *Recorder) CurrentGazePosition() gaze.Point {
	s, ok := r.Latest()
	if !ok || !s.AnyGazeValid() {
		return gaze.NaNPoint
	}
	var left, right gaze.Point
	var err error
	if s.LeftGazeValid {
		if left, err = r.cfg.Transform.ToPresentation(s.LeftGaze, r.cfg.Units); err != nil {
			return gaze.NaNPoint
		}
	}
	if s.RightGazeValid {
		if right, err = r.cfg.Transform.ToPresentation(s.RightGaze, r.cfg.Units); err != nil {
			return gaze.NaNPoint
		}
	}
	avg := gaze.AveragePoint(left, s.LeftGazeValid, right, s.RightGazeValid)
	return gaze.Point{X: gaze.Round(avg.X, r.cfg.ValueDecimals), Y: gaze.Round(avg.Y, r.cfg.ValueDecimals)}
}

// CurrentPupilSize returns the newest averaged pupil diameter, or NaN.
func (r *Recorder) CurrentPupilSize() float64 {
	s, ok := r.Latest()
	if !ok {
		return math.NaN()
	}
	return gaze.Round(gaze.AverageValue(s.LeftPupil, s.LeftPupilValid, s.RightPupil, s.RightPupilValid), r.cfg.ValueDecimals)
}
