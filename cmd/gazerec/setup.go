package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"github.com/yeganesereshgi/Demo-Experiment/internal/config"
	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
	"github.com/yeganesereshgi/Demo-Experiment/internal/display"
	"github.com/yeganesereshgi/Demo-Experiment/internal/gaze"
	"github.com/yeganesereshgi/Demo-Experiment/internal/serialmux"
	"github.com/yeganesereshgi/Demo-Experiment/internal/timeutil"
	"github.com/yeganesereshgi/Demo-Experiment/internal/tracker"
)

func loadConfig(path string) (*config.ExperimentConfig, error) {
	if path == "" {
		return config.DefaultExperimentConfig(), nil
	}
	return config.LoadExperimentConfig(path)
}

// newTransform builds the coordinate transform for the configured display.
func newTransform(cfg *config.ExperimentConfig) (*coords.Transform, error) {
	w, h := cfg.GetDisplayWidthPx(), cfg.GetDisplayHeightPx()
	mon, err := display.NewMonitor("default", cfg.GetMonitorWidthCm(), cfg.GetViewingDistanceCm(), w, h)
	if err != nil {
		return nil, err
	}
	return coords.NewTransform(w, h, mon)
}

func serialEnumerator(cfg *config.ExperimentConfig, usbOnly bool) tracker.SerialEnumerator {
	return tracker.SerialEnumerator{
		Port:    serialmux.PortOptions{BaudRate: cfg.GetBaudRate()},
		Serial:  tracker.SerialOptions{ClockRate: cfg.GetDeviceClockRate()},
		USBOnly: usbOnly,
	}
}

// simGaze is the generator used by the -dev tracker: a slow drift around
// the screen centre with a short blink every few seconds.
func simGaze(rate float64) func(ts int64) gaze.Sample {
	return func(ts int64) gaze.Sample {
		t := float64(ts) / rate
		p := gaze.Point{
			X: 0.5 + 0.1*math.Sin(t/2) + rand.NormFloat64()*0.005,
			Y: 0.5 + 0.1*math.Cos(t/3) + rand.NormFloat64()*0.005,
		}
		blink := math.Mod(t, 4) < 0.15
		return tracker.Sample(ts, p, !blink)
	}
}

// openTracker connects the configured serial tracker. With dev set it
// serves a simulated tracker streaming at 60 Hz over an in-memory serial
// link instead, so the host side runs the same protocol code. The returned
// stop function tears the link down.
func openTracker(ctx context.Context, cfg *config.ExperimentConfig, dev bool, usbOnly bool) (tracker.Tracker, func(), error) {
	if dev {
		return openDevTracker(ctx, cfg)
	}

	enum := serialEnumerator(cfg, usbOnly)
	if port := cfg.GetSerialPort(); port != "" && !usbOnly {
		info := tracker.Info{Address: port, Name: port}
		t, err := enum.Connect(ctx, info)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	}
	t, err := tracker.Open(ctx, enum, cfg.GetDeviceIndex())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tracker: %w", err)
	}
	return t, func() {}, nil
}

func openDevTracker(ctx context.Context, cfg *config.ExperimentConfig) (tracker.Tracker, func(), error) {
	rate := cfg.GetDeviceClockRate()
	sim := tracker.NewSimTracker(tracker.SimConfig{
		Info:      tracker.Info{Address: "pipe", Model: "SimTracker", Name: "dev", SerialNumber: "SIM-0001", FrequencyHz: 60},
		Clock:     timeutil.RealClock{},
		ClockRate: rate,
	})
	streamCtx, cancel := context.WithCancel(ctx)
	go sim.Stream(streamCtx, time.Second/60, simGaze(rate))

	host, device := serialmux.NewPipePort()
	served := make(chan error, 1)
	go func() { served <- tracker.NewDeviceServer(sim, device).Serve(streamCtx) }()
	teardown := func() {
		cancel()
		_ = device.Close()
		<-served
		_ = sim.Close()
	}

	link, err := tracker.Dial(ctx, serialmux.NewSerialMux[net.Conn](host), tracker.SerialOptions{
		Clock:     timeutil.RealClock{},
		ClockRate: rate,
	})
	if err != nil {
		teardown()
		return nil, nil, fmt.Errorf("failed to dial simulated tracker: %w", err)
	}
	return link, func() {
		_ = link.Close()
		teardown()
	}, nil
}
