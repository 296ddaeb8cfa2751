package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitoring"
)

// DeviceServer answers the serial line protocol on behalf of a Tracker. It
// is the device end of a loopback link: the demo command and the tests put
// a SimTracker behind it and talk to it with a SerialTracker.
type DeviceServer struct {
	dev  Tracker
	conn io.ReadWriter

	wmu sync.Mutex

	mu   sync.Mutex
	subs map[string]Subscription
}

// NewDeviceServer serves dev on conn.
func NewDeviceServer(dev Tracker, conn io.ReadWriter) *DeviceServer {
	return &DeviceServer{dev: dev, conn: conn, subs: make(map[string]Subscription)}
}

// Serve handles commands until conn is exhausted or fails. Stream
// subscriptions made on behalf of the host are dropped on return.
func (d *DeviceServer) Serve(ctx context.Context) error {
	defer d.dropSubscriptions()

	scan := bufio.NewScanner(d.conn)
	scan.Buffer(make([]byte, 0, 4096), 64*1024)
	for scan.Scan() {
		var cmd command
		if err := json.Unmarshal(scan.Bytes(), &cmd); err != nil {
			d.reply(envelope{Error: fmt.Sprintf("malformed command: %v", err)})
			continue
		}
		d.reply(d.handle(ctx, cmd))
	}
	if err := scan.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

func (d *DeviceServer) handle(ctx context.Context, cmd command) envelope {
	env := envelope{ID: cmd.ID, OK: true}
	fail := func(err error) envelope {
		return envelope{ID: cmd.ID, Error: err.Error()}
	}

	switch cmd.Cmd {
	case cmdInfo:
		info := d.dev.Info()
		env.Info = &info
	case cmdClock:
		env.TS = d.dev.Now()
	case cmdSubscribe:
		if err := d.subscribe(cmd.Stream); err != nil {
			return fail(err)
		}
	case cmdUnsubscribe:
		d.mu.Lock()
		sub, ok := d.subs[cmd.Stream]
		delete(d.subs, cmd.Stream)
		d.mu.Unlock()
		if ok {
			sub.Unsubscribe()
		}
	case cmdEnter:
		if err := d.dev.EnterCalibrationMode(ctx); err != nil {
			return fail(err)
		}
	case cmdLeave:
		if err := d.dev.LeaveCalibrationMode(ctx); err != nil {
			return fail(err)
		}
	case cmdCollect, cmdDiscard:
		if cmd.Point == nil {
			return fail(fmt.Errorf("%s needs a point", cmd.Cmd))
		}
		call := d.dev.CollectData
		if cmd.Cmd == cmdDiscard {
			call = d.dev.DiscardData
		}
		if err := call(ctx, *cmd.Point); err != nil {
			return fail(err)
		}
	case cmdCompute:
		result, err := d.dev.ComputeAndApply(ctx)
		if err != nil {
			return fail(err)
		}
		env.Result = result
	default:
		return fail(fmt.Errorf("unknown command %q", cmd.Cmd))
	}
	return env
}

func (d *DeviceServer) subscribe(stream string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[stream]; ok {
		return nil
	}

	var (
		sub Subscription
		err error
	)
	switch stream {
	case streamGaze:
		sub, err = d.dev.SubscribeGaze(func(s gaze.Sample) {
			d.push(gazeLine{Type: streamGaze, Sample: toWire(s)})
		})
	case streamUserPosition:
		sub, err = d.dev.SubscribeUserPosition(func(p gaze.UserPosition) {
			d.push(positionLine{Type: streamUserPosition, UserPosition: positionToWire(p)})
		})
	default:
		return fmt.Errorf("unknown stream %q", stream)
	}
	if err != nil {
		return err
	}
	d.subs[stream] = sub
	return nil
}

func (d *DeviceServer) dropSubscriptions() {
	d.mu.Lock()
	subs := d.subs
	d.subs = make(map[string]Subscription)
	d.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (d *DeviceServer) reply(env envelope) {
	env.Type = msgReply
	d.push(env)
}

func (d *DeviceServer) push(v any) {
	line, err := encodeLine(v)
	if err != nil {
		monitoring.Logf("device: failed to encode message: %v", err)
		return
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if _, err := io.WriteString(d.conn, line+"\n"); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		monitoring.Logf("device: write failed: %v", err)
	}
}
