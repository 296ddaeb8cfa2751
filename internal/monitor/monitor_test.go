package monitor

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/testutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

type fakeSource struct {
	mu        sync.Mutex
	recording bool
	samples   []gaze.Sample
	pos       gaze.Point
	pupil     float64
}

func (f *fakeSource) setRecording(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = v
}

func (f *fakeSource) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeSource) Latest() (gaze.Sample, bool) {
	if len(f.samples) == 0 {
		return gaze.Sample{}, false
	}
	return f.samples[len(f.samples)-1], true
}

func (f *fakeSource) Samples() []gaze.Sample          { return f.samples }
func (f *fakeSource) CurrentGazePosition() gaze.Point { return f.pos }
func (f *fakeSource) CurrentPupilSize() float64       { return f.pupil }

func newMonitor(t *testing.T, src Source, clock timeutil.Clock) *Monitor {
	t.Helper()
	tr, err := coords.NewTransform(1920, 1080, nil)
	require.NoError(t, err)
	m, err := New(src, Config{Transform: tr, Units: coords.Norm, Clock: clock})
	require.NoError(t, err)
	return m
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestLatestEndpoint(t *testing.T) {
	src := &fakeSource{
		recording: true,
		samples:   []gaze.Sample{{DeviceTimestamp: 42}},
		pos:       gaze.Point{X: 0.25, Y: -0.5},
		pupil:     3.5,
	}
	m := newMonitor(t, src, nil)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	w := get(t, mux, "/debug/gaze/latest")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"recording":true,"ts":42,"x":0.25,"y":-0.5,"pupil":3.5,"units":"norm"}`, w.Body.String())

	src.samples = nil
	src.pos = gaze.NaNPoint
	src.pupil = math.NaN()
	w = get(t, mux, "/debug/gaze/latest")
	assert.JSONEq(t, `{"recording":true,"ts":null,"x":null,"y":null,"pupil":null,"units":"norm"}`, w.Body.String())
}

func TestChartEndpoint(t *testing.T) {
	src := &fakeSource{}
	m := newMonitor(t, src, nil)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	w := get(t, mux, "/debug/gaze/chart")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no gaze samples buffered", body["error"])

	src.samples = []gaze.Sample{
		{LeftGaze: gaze.Point{X: 0.5, Y: 0.5}, LeftGazeValid: true, RightGaze: gaze.Point{X: 0.75, Y: 0.25}, RightGazeValid: true},
		{LeftGaze: gaze.Point{X: 0.25, Y: 0.75}, LeftGazeValid: true},
	}
	w = get(t, mux, "/debug/gaze/chart")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Gaze samples")

	assert.Len(t, m.eyeSeries(src.samples, true), 2)
	right := m.eyeSeries(src.samples, false)
	require.Len(t, right, 1)
	assert.Equal(t, []interface{}{0.5, 0.5}, right[0].Value)
}

func TestUpdateHealth(t *testing.T) {
	src := &fakeSource{}
	m := newMonitor(t, src, nil)
	ctx := context.Background()
	req := &healthpb.HealthCheckRequest{Service: ServiceName}

	resp, err := m.Health().Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	src.setRecording(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, m.UpdateHealth())
	resp, err = m.Health().Check(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestHealthEndpoint(t *testing.T) {
	src := &fakeSource{}
	m := newMonitor(t, src, nil)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	w := get(t, mux, "/debug/gaze/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"NOT_SERVING"}`, w.Body.String())

	src.setRecording(true)
	m.UpdateHealth()
	w = get(t, mux, "/debug/gaze/health")
	assert.JSONEq(t, `{"status":"SERVING"}`, w.Body.String())
}

func TestRunFollowsRecordingState(t *testing.T) {
	testutil.CaptureLogs(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{}
	m := newMonitor(t, src, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := m.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	src.setRecording(true)
	require.Eventually(t, func() bool {
		clock.Advance(250 * time.Millisecond)
		return status() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	src.setRecording(false)
	require.Eventually(t, func() bool {
		clock.Advance(250 * time.Millisecond)
		return status() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestServeGRPCHealth(t *testing.T) {
	testutil.CaptureLogs(t)
	src := &fakeSource{recording: true}
	m := newMonitor(t, src, nil)
	m.UpdateHealth()

	require.NoError(t, m.ServeGRPC("127.0.0.1:0"))
	defer m.Stop()
	assert.Error(t, m.ServeGRPC("127.0.0.1:0"))

	conn, err := grpc.NewClient(m.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestNewValidation(t *testing.T) {
	_, err := New(&fakeSource{}, Config{Units: coords.Norm})
	assert.ErrorIs(t, err, gaze.ErrConfiguration)

	tr, err := coords.NewTransform(1920, 1080, nil)
	require.NoError(t, err)
	_, err = New(&fakeSource{}, Config{Transform: tr, Units: "furlongs"})
	assert.ErrorIs(t, err, gaze.ErrConfiguration)
}
