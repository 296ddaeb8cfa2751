package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

// ErrNotInCalibration is returned by calibration calls made outside
// calibration mode.
var ErrNotInCalibration = errors.New("tracker is not in calibration mode")

// SimConfig configures a SimTracker.
type SimConfig struct {
	Info  Info
	Clock timeutil.Clock
	// ClockRate is device ticks per second. Defaults to 1e6.
	ClockRate float64
	// SamplesPerPoint is how many calibration samples CollectData produces.
	SamplesPerPoint int
	// LeftOffset and RightOffset are added to the target to form each eye's
	// mapped position in computed calibration results.
	LeftOffset  gaze.Point
	RightOffset gaze.Point
}

// SimTracker is a deterministic in-process tracker. Samples are pushed with
// Emit or generated by Stream; calibration calls are recorded so tests can
// inspect the sequence.
type SimTracker struct {
	mu        sync.Mutex
	cfg       SimConfig
	start     time.Time
	nextSub   int
	gazeSubs  map[int]func(gaze.Sample)
	posSubs   map[int]func(gaze.UserPosition)
	inCalib   bool
	collected map[gaze.Point]int
	order     []gaze.Point
	pointErr  map[gaze.Point][2]gaze.Point
	calls     []string
	closed    bool

	// FailCompute, when set, is returned by ComputeAndApply.
	FailCompute error
}

// NewSimTracker returns a simulated tracker.
func NewSimTracker(cfg SimConfig) *SimTracker {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.ClockRate <= 0 {
		cfg.ClockRate = 1e6
	}
	if cfg.SamplesPerPoint <= 0 {
		cfg.SamplesPerPoint = 4
	}
	if cfg.Info.Model == "" {
		cfg.Info = Info{Address: "sim://0", Model: "SimTracker", Name: "sim", SerialNumber: "SIM-0001", FrequencyHz: 60}
	}
	return &SimTracker{
		cfg:       cfg,
		start:     cfg.Clock.Now(),
		gazeSubs:  make(map[int]func(gaze.Sample)),
		posSubs:   make(map[int]func(gaze.UserPosition)),
		collected: make(map[gaze.Point]int),
		pointErr:  make(map[gaze.Point][2]gaze.Point),
	}
}

func (s *SimTracker) Info() Info { return s.cfg.Info }

// Now returns the device clock derived from the configured host clock.
func (s *SimTracker) Now() int64 {
	return s.ticksAt(s.cfg.Clock.Since(s.start))
}

func (s *SimTracker) ticksAt(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * s.cfg.ClockRate))
}

type simSub struct {
	once sync.Once
	fn   func()
}

func (u *simSub) Unsubscribe() { u.once.Do(u.fn) }

func (s *SimTracker) SubscribeGaze(fn func(gaze.Sample)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: tracker closed", gaze.ErrResourceAbsent)
	}
	id := s.nextSub
	s.nextSub++
	s.gazeSubs[id] = fn
	return &simSub{fn: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.gazeSubs, id)
	}}, nil
}

func (s *SimTracker) SubscribeUserPosition(fn func(gaze.UserPosition)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: tracker closed", gaze.ErrResourceAbsent)
	}
	id := s.nextSub
	s.nextSub++
	s.posSubs[id] = fn
	return &simSub{fn: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.posSubs, id)
	}}, nil
}

// GazeSubscribers returns the number of active gaze subscriptions.
func (s *SimTracker) GazeSubscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gazeSubs)
}

// PositionSubscribers returns the number of active user-position subscriptions.
func (s *SimTracker) PositionSubscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posSubs)
}

// Emit delivers sample to every gaze subscriber on the calling goroutine.
func (s *SimTracker) Emit(sample gaze.Sample) {
	s.mu.Lock()
	subs := make([]func(gaze.Sample), 0, len(s.gazeSubs))
	for _, id := range sortedKeys(s.gazeSubs) {
		subs = append(subs, s.gazeSubs[id])
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(sample)
	}
}

// EmitPosition delivers p to every user-position subscriber.
func (s *SimTracker) EmitPosition(p gaze.UserPosition) {
	s.mu.Lock()
	subs := make([]func(gaze.UserPosition), 0, len(s.posSubs))
	for _, id := range sortedKeys(s.posSubs) {
		subs = append(subs, s.posSubs[id])
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

// Stream emits gen(now) every interval of the tracker's clock until ctx is
// cancelled.
func (s *SimTracker) Stream(ctx context.Context, interval time.Duration, gen func(ts int64) gaze.Sample) {
	ticker := s.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Emit(gen(s.Now()))
		}
	}
}

// SetPointError overrides the eye offsets for one target.
func (s *SimTracker) SetPointError(target gaze.Point, left, right gaze.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointErr[target] = [2]gaze.Point{left, right}
}

// Calls returns the calibration calls made so far, in order.
func (s *SimTracker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// InCalibration reports whether calibration mode is active.
func (s *SimTracker) InCalibration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inCalib
}

// Collected returns the number of samples held for target.
func (s *SimTracker) Collected(target gaze.Point) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collected[target]
}

func (s *SimTracker) EnterCalibrationMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "enter")
	s.inCalib = true
	s.collected = make(map[gaze.Point]int)
	s.order = nil
	return nil
}

func (s *SimTracker) LeaveCalibrationMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "leave")
	s.inCalib = false
	return nil
}

func (s *SimTracker) CollectData(ctx context.Context, p gaze.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("collect(%.4f,%.4f)", p.X, p.Y))
	if !s.inCalib {
		return ErrNotInCalibration
	}
	if _, ok := s.collected[p]; !ok {
		s.order = append(s.order, p)
	}
	s.collected[p] += s.cfg.SamplesPerPoint
	return nil
}

func (s *SimTracker) DiscardData(ctx context.Context, p gaze.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("discard(%.4f,%.4f)", p.X, p.Y))
	if !s.inCalib {
		return ErrNotInCalibration
	}
	delete(s.collected, p)
	for i, q := range s.order {
		if q == p {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *SimTracker) ComputeAndApply(ctx context.Context) (*CalibrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "compute")
	if !s.inCalib {
		return nil, ErrNotInCalibration
	}
	if s.FailCompute != nil {
		return nil, s.FailCompute
	}
	if len(s.order) == 0 {
		return &CalibrationResult{Status: StatusFailure}, nil
	}

	result := &CalibrationResult{Status: StatusSuccess}
	for _, target := range s.order {
		left, right := s.cfg.LeftOffset, s.cfg.RightOffset
		if e, ok := s.pointErr[target]; ok {
			left, right = e[0], e[1]
		}
		cp := CalibrationPoint{Position: target}
		for i := 0; i < s.collected[target]; i++ {
			cp.Samples = append(cp.Samples, CalibrationSample{
				Left:  EyeSample{Position: gaze.Point{X: target.X + left.X, Y: target.Y + left.Y}, Validity: ValidAndUsed},
				Right: EyeSample{Position: gaze.Point{X: target.X + right.X, Y: target.Y + right.Y}, Validity: ValidAndUsed},
			})
		}
		result.Points = append(result.Points, cp)
	}
	return result, nil
}

// Close drops every subscription.
func (s *SimTracker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gazeSubs = make(map[int]func(gaze.Sample))
	s.posSubs = make(map[int]func(gaze.UserPosition))
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// SimEnumerator discovers a fixed set of simulated trackers.
type SimEnumerator struct {
	Trackers []*SimTracker
}

func (e SimEnumerator) FindAll(ctx context.Context) ([]Info, error) {
	out := make([]Info, len(e.Trackers))
	for i, t := range e.Trackers {
		out[i] = t.Info()
	}
	return out, nil
}

func (e SimEnumerator) Connect(ctx context.Context, info Info) (Tracker, error) {
	for _, t := range e.Trackers {
		if t.Info() == info {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDevices, info.Address)
}

// Sample builds a gaze sample with both eyes at the same display-area
// position. Pupils are 3mm and valid when the gaze is.
func Sample(ts int64, p gaze.Point, valid bool) gaze.Sample {
	return gaze.Sample{
		DeviceTimestamp: ts,
		LeftGaze:        p,
		LeftGazeValid:   valid,
		RightGaze:       p,
		RightGazeValid:  valid,
		LeftPupil:       3,
		LeftPupilValid:  valid,
		RightPupil:      3,
		RightPupilValid: valid,
	}
}

var _ Tracker = (*SimTracker)(nil)
