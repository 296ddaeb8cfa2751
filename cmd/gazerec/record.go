package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/fsutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/monitor"
	"github.com/yeganesereshgi/Demo-Experiment/internal/recorder"
	"github.com/yeganesereshgi/Demo-Experiment/internal/store"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
)

type recordOptions struct {
	Config  *config.ExperimentConfig
	Out     string
	DBPath  string
	Listen  string
	GRPC    string
	Dev     bool
	USBOnly bool
}

func handleRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", "", "Experiment configuration (JSON)")
	out := fs.String("out", "", "TSV output file (default: data_file from config)")
	dbPath := fs.String("db", "", "Session catalog database (default: database_path from config)")
	noDB := fs.Bool("no-db", false, "Do not catalog the session")
	listen := fs.String("listen", "", "Debug HTTP listen address, e.g. localhost:8080")
	grpcAddr := fs.String("grpc", "", "gRPC health listen address")
	dev := fs.Bool("dev", false, "Use a simulated tracker")
	port := fs.String("port", "", "Serial port of the tracker (overrides config)")
	usbOnly := fs.Bool("usb", false, "Pick the tracker by device_index among USB adapters")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.SerialPort = port
	}
	opts := recordOptions{
		Config:  cfg,
		Out:     *out,
		DBPath:  *dbPath,
		Listen:  *listen,
		GRPC:    *grpcAddr,
		Dev:     *dev,
		USBOnly: *usbOnly,
	}
	if opts.Out == "" {
		opts.Out = cfg.GetDataFile()
	}
	if opts.DBPath == "" && !*noDB {
		opts.DBPath = cfg.GetDatabasePath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("🚀 Recording to %s; type an event label and press enter, Ctrl-D to stop", opts.Out)
	session, err := runRecord(ctx, opts, os.Stdin)
	if err != nil {
		log.Fatalf("Recording failed: %v", err)
	}
	log.Printf("✓ Recorded %d samples and %d events (session %s)", session.Samples, session.Events, session.ID)
}

// runRecord records until events is exhausted or ctx is done. Each
// non-empty line of events is recorded as an event label.
func runRecord(ctx context.Context, opts recordOptions, events io.Reader) (store.RecordingSession, error) {
	cfg := opts.Config
	tr, err := newTransform(cfg)
	if err != nil {
		return store.RecordingSession{}, err
	}

	dev, stopStream, err := openTracker(ctx, cfg, opts.Dev, opts.USBOnly)
	if err != nil {
		return store.RecordingSession{}, err
	}
	defer dev.Close()
	defer stopStream()
	info := dev.Info()
	log.Printf("Connected to %s", info)

	clock := timeutil.RealClock{}
	rec, err := recorder.New(dev, recorder.ConfigFrom(cfg, tr, clock))
	if err != nil {
		return store.RecordingSession{}, err
	}

	var db *store.DB
	if opts.DBPath != "" {
		if db, err = store.Open(opts.DBPath); err != nil {
			return store.RecordingSession{}, fmt.Errorf("failed to open catalog: %w", err)
		}
		defer db.Close()
	}

	mon, err := monitor.New(rec, monitor.Config{Transform: tr, Units: cfg.GetWindowUnits(), Clock: clock})
	if err != nil {
		return store.RecordingSession{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(runCtx)
	}()
	defer wg.Wait()
	defer cancel()

	if opts.GRPC != "" {
		if err := mon.ServeGRPC(opts.GRPC); err != nil {
			return store.RecordingSession{}, err
		}
		defer mon.Stop()
	}
	if opts.Listen != "" {
		srv, err := startDebugServer(opts.Listen, mon, db, dev)
		if err != nil {
			return store.RecordingSession{}, err
		}
		defer shutdown(srv)
	}

	started := time.Now()
	if err := rec.Open(fsutil.OSFileSystem{}, opts.Out, true); err != nil {
		return store.RecordingSession{}, err
	}

	readEvents(runCtx, events, rec.RecordEvent)

	if err := rec.Stop(); err != nil {
		rec.Close()
		return store.RecordingSession{}, err
	}
	if err := rec.Close(); err != nil {
		return store.RecordingSession{}, err
	}

	stats := rec.Stats()
	session := store.RecordingSession{
		DataFile:   opts.Out,
		Tracker:    info.SerialNumber,
		T0:         stats.T0,
		StartedAt:  started,
		StoppedAt:  time.Now(),
		Samples:    stats.Samples,
		Events:     stats.Events,
		OutOfOrder: stats.OutOfOrder,
	}
	if db != nil {
		if session.ID, err = db.RecordSession(ctx, session); err != nil {
			return session, err
		}
	}
	return session, nil
}

// readEvents passes each non-empty line to record until r is exhausted or
// ctx is done.
func readEvents(ctx context.Context, r io.Reader, record func(string)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if label := strings.TrimSpace(line); label != "" {
				record(label)
			}
		}
	}
}

type adminRouter interface {
	AttachAdminRoutes(mux *http.ServeMux)
}

func startDebugServer(addr string, mon *monitor.Monitor, db *store.DB, dev any) (*http.Server, error) {
	mux := http.NewServeMux()
	mon.AttachAdminRoutes(mux)
	if link, ok := dev.(adminRouter); ok {
		link.AttachAdminRoutes(mux)
	}
	if db != nil {
		if err := db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to start server: %v", err)
		}
	}()
	log.Printf("Debug pages on http://%s/debug/", addr)
	return server, nil
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("failed to shut down HTTP server: %v", err)
	}
}
