package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitoring"
	"github.com/yeganesereshgi/Demo-Experiment/internal/serialmux"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

// ErrClosed is returned by requests made after the tracker was closed.
var ErrClosed = errors.New("tracker connection closed")

// SerialOptions tunes a SerialTracker.
type SerialOptions struct {
	Clock timeutil.Clock
	// ClockRate is device ticks per second, used to extrapolate Now
	// between device messages. Defaults to 1e6.
	ClockRate float64
	// Timeout bounds each command round trip. Defaults to 2s.
	Timeout time.Duration
}

func (o SerialOptions) withDefaults() SerialOptions {
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.ClockRate <= 0 {
		o.ClockRate = 1e6
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	return o
}

// SerialTracker talks to a tracker over a line-oriented serial link.
// Stream callbacks run on a single dispatch goroutine in arrival order.
type SerialTracker struct {
	mux   serialmux.SerialMuxInterface
	opts  SerialOptions
	subID string
	lines chan string
	done  chan struct{}

	nextID atomic.Uint64

	mu       sync.Mutex
	info     Info
	pending  map[string]chan envelope
	nextSub  int
	gazeSubs map[int]func(gaze.Sample)
	posSubs  map[int]func(gaze.UserPosition)

	haveClock bool
	lastTS    int64
	lastHost  time.Time

	closeOnce sync.Once
	closeErr  error
	onClose   func() error
}

// NewSerialTracker attaches to mux and starts dispatching its lines. The
// caller runs mux.Monitor. Call Handshake before use.
func NewSerialTracker(mux serialmux.SerialMuxInterface, opts SerialOptions) *SerialTracker {
	id, lines := mux.Subscribe()
	t := &SerialTracker{
		mux:      mux,
		opts:     opts.withDefaults(),
		subID:    id,
		lines:    lines,
		done:     make(chan struct{}),
		pending:  make(map[string]chan envelope),
		gazeSubs: make(map[int]func(gaze.Sample)),
		posSubs:  make(map[int]func(gaze.UserPosition)),
	}
	go t.dispatch()
	return t
}

// Dial runs mux.Monitor in the background, attaches a SerialTracker and
// performs the handshake. Closing the tracker stops the monitor and closes
// the mux.
func Dial(ctx context.Context, mux serialmux.SerialMuxInterface, opts SerialOptions) (*SerialTracker, error) {
	monCtx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := mux.Monitor(monCtx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("tracker link monitor stopped: %v", err)
		}
	}()

	t := NewSerialTracker(mux, opts)
	t.onClose = func() error {
		cancel()
		return mux.Close()
	}
	if err := t.Handshake(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Handshake fetches the device identity and synchronises the clock estimate.
func (t *SerialTracker) Handshake(ctx context.Context) error {
	env, err := t.request(ctx, command{Cmd: cmdInfo})
	if err != nil {
		return fmt.Errorf("tracker handshake failed: %w", err)
	}
	if env.Info != nil {
		t.mu.Lock()
		t.info = *env.Info
		t.mu.Unlock()
	}
	return t.SyncClock(ctx)
}

// SyncClock asks the device for its current clock.
func (t *SerialTracker) SyncClock(ctx context.Context) error {
	env, err := t.request(ctx, command{Cmd: cmdClock})
	if err != nil {
		return fmt.Errorf("failed to read device clock: %w", err)
	}
	t.observeClock(env.TS)
	return nil
}

func (t *SerialTracker) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Now estimates the device clock from the newest device timestamp plus the
// host time elapsed since it arrived.
func (t *SerialTracker) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveClock {
		return 0
	}
	elapsed := t.opts.Clock.Since(t.lastHost).Seconds()
	return t.lastTS + int64(math.Round(elapsed*t.opts.ClockRate))
}

func (t *SerialTracker) observeClock(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haveClock = true
	t.lastTS = ts
	t.lastHost = t.opts.Clock.Now()
}

type serialSub struct {
	once sync.Once
	fn   func()
}

func (s *serialSub) Unsubscribe() { s.once.Do(s.fn) }

func (t *SerialTracker) SubscribeGaze(fn func(gaze.Sample)) (Subscription, error) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	first := len(t.gazeSubs) == 0
	t.gazeSubs[id] = fn
	t.mu.Unlock()

	remove := func() int {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.gazeSubs, id)
		return len(t.gazeSubs)
	}
	if first {
		if err := t.streamCommand(cmdSubscribe, streamGaze); err != nil {
			remove()
			return nil, err
		}
	}
	return &serialSub{fn: func() {
		if remove() == 0 {
			t.unsubscribeStream(streamGaze)
		}
	}}, nil
}

func (t *SerialTracker) SubscribeUserPosition(fn func(gaze.UserPosition)) (Subscription, error) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	first := len(t.posSubs) == 0
	t.posSubs[id] = fn
	t.mu.Unlock()

	remove := func() int {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.posSubs, id)
		return len(t.posSubs)
	}
	if first {
		if err := t.streamCommand(cmdSubscribe, streamUserPosition); err != nil {
			remove()
			return nil, err
		}
	}
	return &serialSub{fn: func() {
		if remove() == 0 {
			t.unsubscribeStream(streamUserPosition)
		}
	}}, nil
}

func (t *SerialTracker) streamCommand(cmd, stream string) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.Timeout)
	defer cancel()
	if _, err := t.request(ctx, command{Cmd: cmd, Stream: stream}); err != nil {
		return fmt.Errorf("failed to %s %s stream: %w", cmd, stream, err)
	}
	return nil
}

// unsubscribeStream does not wait for the reply: it may run on the dispatch
// goroutine from inside a stream callback.
func (t *SerialTracker) unsubscribeStream(stream string) {
	select {
	case <-t.done:
		return
	default:
	}
	line, err := encodeLine(command{Cmd: cmdUnsubscribe, Stream: stream})
	if err != nil {
		return
	}
	if err := t.mux.SendCommand(line); err != nil {
		monitoring.Logf("tracker: failed to unsubscribe %s stream: %v", stream, err)
	}
}

func (t *SerialTracker) EnterCalibrationMode(ctx context.Context) error {
	_, err := t.request(ctx, command{Cmd: cmdEnter})
	return err
}

func (t *SerialTracker) LeaveCalibrationMode(ctx context.Context) error {
	_, err := t.request(ctx, command{Cmd: cmdLeave})
	return err
}

func (t *SerialTracker) CollectData(ctx context.Context, p gaze.Point) error {
	_, err := t.request(ctx, command{Cmd: cmdCollect, Point: &p})
	return err
}

func (t *SerialTracker) DiscardData(ctx context.Context, p gaze.Point) error {
	_, err := t.request(ctx, command{Cmd: cmdDiscard, Point: &p})
	return err
}

func (t *SerialTracker) ComputeAndApply(ctx context.Context) (*CalibrationResult, error) {
	env, err := t.request(ctx, command{Cmd: cmdCompute})
	if err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, fmt.Errorf("tracker sent no calibration result")
	}
	return env.Result, nil
}

func (t *SerialTracker) request(ctx context.Context, cmd command) (envelope, error) {
	select {
	case <-t.done:
		return envelope{}, ErrClosed
	default:
	}

	cmd.ID = strconv.FormatUint(t.nextID.Add(1), 10)
	reply := make(chan envelope, 1)
	t.mu.Lock()
	t.pending[cmd.ID] = reply
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, cmd.ID)
		t.mu.Unlock()
	}()

	line, err := encodeLine(cmd)
	if err != nil {
		return envelope{}, err
	}
	if err := t.mux.SendCommand(line); err != nil {
		return envelope{}, fmt.Errorf("failed to send %s command: %w", cmd.Cmd, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()
	select {
	case env := <-reply:
		if !env.OK {
			return env, fmt.Errorf("tracker rejected %s: %s", cmd.Cmd, env.Error)
		}
		return env, nil
	case <-ctx.Done():
		return envelope{}, fmt.Errorf("%s: %w", cmd.Cmd, ctx.Err())
	case <-t.done:
		return envelope{}, ErrClosed
	}
}

func (t *SerialTracker) dispatch() {
	defer close(t.done)
	for line := range t.lines {
		t.handleLine(line)
	}
}

func (t *SerialTracker) handleLine(line string) {
	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		monitoring.Logf("tracker: ignoring malformed line %q: %v", line, err)
		return
	}

	switch env.Type {
	case streamGaze:
		var s gaze.Sample
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			monitoring.Logf("tracker: bad gaze line: %v", err)
			return
		}
		s = fromWire(s)
		t.observeClock(s.DeviceTimestamp)
		t.mu.Lock()
		subs := make([]func(gaze.Sample), 0, len(t.gazeSubs))
		for _, id := range sortedKeys(t.gazeSubs) {
			subs = append(subs, t.gazeSubs[id])
		}
		t.mu.Unlock()
		for _, fn := range subs {
			fn(s)
		}

	case streamUserPosition:
		var p gaze.UserPosition
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			monitoring.Logf("tracker: bad user position line: %v", err)
			return
		}
		p = positionFromWire(p)
		t.mu.Lock()
		subs := make([]func(gaze.UserPosition), 0, len(t.posSubs))
		for _, id := range sortedKeys(t.posSubs) {
			subs = append(subs, t.posSubs[id])
		}
		t.mu.Unlock()
		for _, fn := range subs {
			fn(p)
		}

	case msgReply:
		if env.ID == "" {
			if !env.OK {
				monitoring.Logf("tracker: %s", env.Error)
			}
			return
		}
		t.mu.Lock()
		ch, ok := t.pending[env.ID]
		t.mu.Unlock()
		if !ok {
			monitoring.Logf("tracker: reply for unknown request %q", env.ID)
			return
		}
		select {
		case ch <- env:
		default:
			monitoring.Logf("tracker: dropping duplicate reply for request %q", env.ID)
		}

	default:
		monitoring.Logf("tracker: unknown message type %q", env.Type)
	}
}

// AttachAdminRoutes mounts the serial link's debug pages (command console
// and line tail) on mux.
func (t *SerialTracker) AttachAdminRoutes(mux *http.ServeMux) {
	t.mux.AttachAdminRoutes(mux)
}

// Close detaches from the link and, when the tracker was created by Dial,
// stops the monitor and closes the port.
func (t *SerialTracker) Close() error {
	t.closeOnce.Do(func() {
		t.mux.Unsubscribe(t.subID)
		<-t.done
		if t.onClose != nil {
			t.closeErr = t.onClose()
		}
	})
	return t.closeErr
}

// SerialEnumerator discovers trackers attached to the host's serial ports.
type SerialEnumerator struct {
	Port   serialmux.PortOptions
	Serial SerialOptions
	// USBOnly skips ports that are not USB adapters.
	USBOnly bool
}

func (e SerialEnumerator) FindAll(ctx context.Context) ([]Info, error) {
	ports, err := serialmux.ListPorts()
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, p := range ports {
		if e.USBOnly && !p.IsUSB {
			continue
		}
		name := p.Name
		if p.IsUSB {
			name = p.VID + ":" + p.PID
		}
		out = append(out, Info{Address: p.Name, Model: p.Product, Name: name, SerialNumber: p.SerialNumber})
	}
	return out, nil
}

func (e SerialEnumerator) Connect(ctx context.Context, info Info) (Tracker, error) {
	mux, err := serialmux.NewRealSerialMux(info.Address, e.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", gaze.ErrResourceAbsent, info.Address, err)
	}
	t, err := Dial(ctx, mux, e.Serial)
	if err != nil {
		return nil, err
	}
	return t, nil
}

var _ Tracker = (*SerialTracker)(nil)
