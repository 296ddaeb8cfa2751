package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/calibration"
	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/fsutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/lookingtime"
	"github.com/yeganesereshgi/Demo-Experiment/internal/recorder"
	"github.com/yeganesereshgi/Demo-Experiment/internal/store"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/trackbox"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

// demoPoints is the five-point calibration layout in norm units.
var demoPoints = []gaze.Point{
	{X: 0, Y: 0},
	{X: -0.6, Y: 0.6},
	{X: 0.6, Y: 0.6},
	{X: -0.6, Y: -0.6},
	{X: 0.6, Y: -0.6},
}

type demoOptions struct {
	Config   *config.ExperimentConfig
	Out      string
	DBPath   string
	PlotPath string
	// Images, when set, switches calibration to the image-stimulus
	// presenter with one picture per point.
	Images []string
	// AwayAt and AwayFor script one look-away during the looking-time
	// phase, measured from its start.
	AwayAt  time.Duration
	AwayFor time.Duration
}

type demoSummary struct {
	GuideFrames int
	Calibration calibration.Outcome
	Looking     lookingtime.Result
	Session     store.RecordingSession
}

func handleDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "Experiment configuration (JSON)")
	out := fs.String("out", "demo_gaze.tsv", "TSV output file")
	dbPath := fs.String("db", "", "Session catalog database (optional)")
	plotPath := fs.String("plot", "", "Save the calibration review screen as PNG")
	images := fs.String("images", "", "Comma-separated stimulus images for image calibration")
	awayAt := fs.Duration("away-at", 3*time.Second, "When the simulated participant looks away")
	awayFor := fs.Duration("away-for", 300*time.Millisecond, "How long the simulated participant looks away")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	sum, err := runDemo(context.Background(), demoOptions{
		Config:   cfg,
		Out:      *out,
		DBPath:   *dbPath,
		PlotPath: *plotPath,
		Images:   splitList(*images),
		AwayAt:   *awayAt,
		AwayFor:  *awayFor,
	})
	if err != nil {
		log.Fatalf("Demo failed: %v", err)
	}
	log.Printf("✓ Position guide shown for %d frames", sum.GuideFrames)
	log.Printf("✓ Calibration accepted=%t after %d iteration(s)", sum.Calibration.Accepted, len(sum.Calibration.Iterations))
	log.Printf("✓ Looking time %.3fs (%s)", sum.Looking.LookingTime, sum.Looking.Outcome)
	log.Printf("✓ Recorded %d samples to %s", sum.Session.Samples, sum.Session.DataFile)
}

// demoPhase names the step the scripted participant and operator act in.
type demoPhase int

const (
	phaseGuide demoPhase = iota
	phaseCalibration
	phaseLooking
)

// runDemo drives every screen against a simulated tracker on a headless
// window. Time is virtual, so the run finishes immediately.
func runDemo(ctx context.Context, opts demoOptions) (demoSummary, error) {
	var sum demoSummary
	cfg := opts.Config
	tr, err := newTransform(cfg)
	if err != nil {
		return sum, err
	}

	clock := timeutil.NewMockClock(time.Now())
	win := display.NewHeadlessWindow(display.HeadlessConfig{
		Width:         cfg.GetDisplayWidthPx(),
		Height:        cfg.GetDisplayHeightPx(),
		Units:         cfg.GetWindowUnits(),
		Clock:         clock,
		FrameInterval: cfg.GetFrameInterval(),
	})
	sim := tracker.NewSimTracker(tracker.SimConfig{
		Clock:       clock,
		ClockRate:   cfg.GetDeviceClockRate(),
		LeftOffset:  gaze.Point{X: 0.005},
		RightOffset: gaze.Point{Y: -0.005},
	})
	defer sim.Close()

	var presenter calibration.Presenter = calibration.NewGeometricTarget(cfg)
	if len(opts.Images) > 0 {
		images, err := display.LoadImages(fsutil.OSFileSystem{}, opts.Images)
		if err != nil {
			return sum, err
		}
		presenter = calibration.NewImageStimulusTarget(cfg, images, nil)
	}
	sessCfg := calibration.ConfigFrom(cfg, tr, clock)
	sessCfg.Units = coords.Norm
	sess, err := calibration.NewSession(sim, win, presenter, sessCfg)
	if err != nil {
		return sum, err
	}
	operate := imageOperator(cfg, len(demoPoints))

	// The scripted participant looks at the centre every frame, except
	// for the look-away window; the operator answers each screen.
	phase := phaseGuide
	var phaseStart time.Time
	guideFrames, calFrames := 0, 0
	reviewed := false
	var reviewOps []display.DrawOp
	win.OnFlip(func(frame int, ops []display.DrawOp) {
		now := clock.Now()
		ts := sim.Now()
		away := phase == phaseLooking &&
			now.Sub(phaseStart) >= opts.AwayAt && now.Sub(phaseStart) < opts.AwayAt+opts.AwayFor
		sim.Emit(tracker.Sample(ts, gaze.Point{X: 0.5, Y: 0.5}, !away))
		sim.EmitPosition(gaze.UserPosition{
			DeviceTimestamp: ts,
			Left:            [3]float64{0.55, 0.5, 0.5},
			LeftValid:       true,
			Right:           [3]float64{0.45, 0.5, 0.5},
			RightValid:      true,
		})

		switch phase {
		case phaseGuide:
			guideFrames++
			if guideFrames == 30 {
				win.Press(cfg.GetContinueKey())
			}
		case phaseCalibration:
			if len(opts.Images) > 0 && !reviewed {
				calFrames++
				if keys := operate(calFrames); len(keys) > 0 {
					win.Press(keys...)
				}
			}
			if sess.State() == calibration.Reviewing {
				reviewOps = ops
				if !reviewed {
					reviewed = true
					win.Press(cfg.GetDecisionKey())
				}
			}
		}
	})

	guide, err := trackbox.NewGuide(sim, win, trackbox.ConfigFrom(cfg, tr, clock))
	if err != nil {
		return sum, err
	}
	if sum.GuideFrames, err = guide.Run(ctx); err != nil {
		return sum, err
	}

	phase = phaseCalibration
	if sum.Calibration, err = sess.Run(ctx, demoPoints, cfg.GetDecisionKey()); err != nil {
		return sum, err
	}
	if opts.PlotPath != "" && len(reviewOps) > 0 {
		w, h := win.Size()
		if err := display.SaveFrame(reviewOps, w, h, "Calibration review", opts.PlotPath); err != nil {
			return sum, err
		}
	}

	rec, err := recorder.New(sim, recorder.ConfigFrom(cfg, tr, clock))
	if err != nil {
		return sum, err
	}
	started := clock.Now()
	if err := rec.Open(fsutil.OSFileSystem{}, opts.Out, true); err != nil {
		return sum, err
	}

	phase = phaseLooking
	phaseStart = clock.Now()
	rec.RecordEvent("stim_on")
	sum.Looking, err = lookingtime.NewMonitor(rec, win, clock).Collect(ctx, lookingtime.ParamsFrom(cfg))
	if err != nil {
		rec.Close()
		return sum, err
	}
	rec.RecordEvent("stim_off")
	if err := rec.Stop(); err != nil {
		rec.Close()
		return sum, err
	}
	if err := rec.Close(); err != nil {
		return sum, err
	}

	stats := rec.Stats()
	info := sim.Info()
	sum.Session = store.RecordingSession{
		DataFile:   opts.Out,
		Tracker:    info.SerialNumber,
		T0:         stats.T0,
		StartedAt:  started,
		StoppedAt:  clock.Now(),
		Samples:    stats.Samples,
		Events:     stats.Events,
		OutOfOrder: stats.OutOfOrder,
	}

	if opts.DBPath != "" {
		db, err := store.Open(opts.DBPath)
		if err != nil {
			return sum, fmt.Errorf("failed to open catalog: %w", err)
		}
		defer db.Close()
		if _, err := db.RecordCalibration(ctx, info.SerialNumber, sum.Calibration); err != nil {
			return sum, err
		}
		if sum.Session.ID, err = db.RecordSession(ctx, sum.Session); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// imageOperator scripts the image presenter: select each point, collect
// it, then finish. It returns the keys to press after the given
// calibration frame. The first frame is skipped since the presenter
// clears pending keys when it starts.
func imageOperator(cfg *config.ExperimentConfig, points int) func(frame int) []string {
	return func(frame int) []string {
		step := frame - 2
		if step < 0 || step%2 != 0 {
			return nil
		}
		i := step / 4
		switch {
		case i >= points:
			if step == 4*points {
				return []string{cfg.GetExitKey()}
			}
			return nil
		case step%4 == 0:
			return []string{strconv.Itoa(i + 1)}
		default:
			return []string{cfg.GetCollectKey()}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
