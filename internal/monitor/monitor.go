// Package monitor exposes a running recorder for debugging: the newest
// gaze reading as JSON, a scatter chart of the buffered samples, and a gRPC
// health service that reports SERVING while a session is being recorded.
package monitor

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"tailscale.com/tsweb"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/httputil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitoring"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

// ServiceName is the health service that follows the recording state.
const ServiceName = "gazerec.Recorder"

// Source is the recorder surface the monitor reads.
type Source interface {
	Recording() bool
	Latest() (gaze.Sample, bool)
	Samples() []gaze.Sample
	CurrentGazePosition() gaze.Point
	CurrentPupilSize() float64
}

// Config configures a Monitor.
type Config struct {
	Transform *coords.Transform
	Units     coords.System
	Clock     timeutil.Clock
	// MaxPoints caps the samples plotted by the chart. Defaults to 2000.
	MaxPoints int
	// PollInterval is how often Run refreshes the health status.
	// Defaults to 250ms.
	PollInterval time.Duration
}

// Monitor serves debug views of a recorder.
type Monitor struct {
	src    Source
	cfg    Config
	health *health.Server

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New returns a monitor over src. Health starts as NOT_SERVING.
func New(src Source, cfg Config) (*Monitor, error) {
	if cfg.Transform == nil {
		return nil, fmt.Errorf("%w: monitor needs a coordinate transform", gaze.ErrConfiguration)
	}
	if !cfg.Units.IsValid() {
		return nil, fmt.Errorf("%w: invalid monitor units %q", gaze.ErrConfiguration, cfg.Units)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	m := &Monitor{src: src, cfg: cfg, health: health.NewServer()}
	m.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return m, nil
}

// Health returns the health service.
func (m *Monitor) Health() *health.Server { return m.health }

// UpdateHealth sets the recorder's health from its recording state.
func (m *Monitor) UpdateHealth() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if m.src.Recording() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus(ServiceName, status)
	return status
}

// Run refreshes the health status every poll interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.cfg.Clock.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	last := m.UpdateHealth()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if s := m.UpdateHealth(); s != last {
				monitoring.Logf("monitor: recorder health %s -> %s", last, s)
				last = s
			}
		}
	}
}

// ServeGRPC starts a gRPC server with the health service on addr.
func (m *Monitor) ServeGRPC(addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Load() {
		return fmt.Errorf("grpc server already running")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	m.listener = lis
	m.server = grpc.NewServer()
	healthpb.RegisterHealthServer(m.server, m.health)
	m.running.Store(true)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		monitoring.Logf("monitor: gRPC health listening on %s", lis.Addr())
		if err := m.server.Serve(lis); err != nil && m.running.Load() {
			monitoring.Logf("monitor: gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the gRPC listen address, or "" when not serving.
func (m *Monitor) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop shuts the gRPC server down.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		return
	}
	m.running.Store(false)
	m.health.Shutdown()
	srv := m.server
	m.mu.Unlock()

	srv.GracefulStop()
	m.wg.Wait()
}

// Latest is the JSON body of /debug/gaze/latest. NaN values are null.
type Latest struct {
	Recording bool     `json:"recording"`
	Timestamp *int64   `json:"ts"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Pupil     *float64 `json:"pupil"`
	Units     string   `json:"units"`
}

func (m *Monitor) latest() Latest {
	out := Latest{Recording: m.src.Recording(), Units: string(m.cfg.Units)}
	if s, ok := m.src.Latest(); ok {
		ts := s.DeviceTimestamp
		out.Timestamp = &ts
	}
	p := m.src.CurrentGazePosition()
	out.X, out.Y = finite(p.X), finite(p.Y)
	out.Pupil = finite(m.src.CurrentPupilSize())
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// AttachAdminRoutes mounts gaze/latest and gaze/chart on the debug mux.
func (m *Monitor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("gaze/latest", "Newest gaze reading (JSON)", http.HandlerFunc(m.handleLatest))
	debug.Handle("gaze/chart", "Buffered gaze samples (scatter)", http.HandlerFunc(m.handleChart))
	debug.Handle("gaze/health", "Recorder health (protojson)", http.HandlerFunc(m.handleHealth))
}

func (m *Monitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := m.health.Check(r.Context(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	b, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(resp)
	if err != nil {
		httputil.InternalServerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (m *Monitor) handleLatest(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, m.latest())
}
