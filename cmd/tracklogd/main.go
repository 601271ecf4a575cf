package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracklog/internal/command"
	"tracklog/internal/config"
	"tracklog/internal/device"
	"tracklog/internal/gpssim"
	"tracklog/internal/logstore"
	"tracklog/internal/port"
	"tracklog/internal/retrieval"
	"tracklog/internal/rtc"
	"tracklog/internal/scheduler"
	"tracklog/internal/statusled"
)

// nullSource stands in for a GPS receiver that failed to open. It yields
// nothing but keeps the loop cadence by sleeping a read-timeout's worth.
type nullSource struct{}

func (nullSource) Read(p []byte) (int, error) {
	time.Sleep(1 * time.Second)
	return 0, nil
}

func (nullSource) Close() error { return nil }

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./tracklog.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Clock: battery-backed RTC when configured, system clock otherwise.
	// A missing chip is not fatal; timestamps just start from system time.
	var clock rtc.Clock
	clockSource := cfg.Device.RTC.Source
	if cfg.Device.RTC.Source == "ds3231" {
		hw, err := rtc.OpenHardwareClock(cfg.Device.RTC.Bus, uint16(cfg.Device.RTC.Addr))
		if err != nil {
			log.Printf("rtc open failed, using system clock: %v", err)
			clock = rtc.NewSystemClock()
			clockSource = "system"
		} else {
			defer hw.Close()
			clock = hw
		}
	} else {
		clock = rtc.NewSystemClock()
	}

	store := logstore.New(logstore.Config{Path: cfg.Device.Log.Path, Mirror: cfg.Device.Log.Mirror})
	state := scheduler.NewState(cfg.Device.Limits.SpeedKmh, cfg.Device.Limits.LimpKmh)
	sched := scheduler.New(clock, store, state)
	streamer := retrieval.New(store, clock, retrieval.Config{})
	disp := command.New(state, clock, streamer)

	// The control channel is the reason this process exists; no fallback.
	control, err := port.Open(port.Config{Device: cfg.Device.Control.Device, Baud: cfg.Device.Control.Baud})
	if err != nil {
		log.Fatalf("control port open failed: %v", err)
	}
	defer control.Close()

	var gps device.ByteSource
	switch cfg.Device.GPS.Source {
	case "sim":
		gps = gpssim.New(gpssim.Config{
			CenterLatDeg: cfg.Device.Sim.CenterLatDeg,
			CenterLonDeg: cfg.Device.Sim.CenterLonDeg,
			SpeedKmh:     cfg.Device.Sim.SpeedKmh,
			Period:       cfg.Device.Sim.Period,
		})
	default:
		p, err := port.Open(port.Config{Device: cfg.Device.GPS.Device, Baud: cfg.Device.GPS.Baud})
		if err != nil {
			// Keep running: signal-lost records still get logged on cadence
			// once time is set, and the receiver may appear after a replug.
			log.Printf("gps port open failed, no fix source: %v", err)
			gps = nullSource{}
		} else {
			gps = p
		}
	}
	defer gps.Close()

	led := statusled.New(statusled.Config{Enable: cfg.Device.LED.Enable, Pin: cfg.Device.LED.Pin})
	if err := led.Start(); err != nil {
		log.Printf("status led unavailable: %v", err)
	}
	defer led.Close()

	log.Printf("tracklogd starting")
	log.Printf("control dev=%s baud=%d", cfg.Device.Control.Device, cfg.Device.Control.Baud)
	log.Printf("gps source=%s log path=%s clock=%s", cfg.Device.GPS.Source, cfg.Device.Log.Path, clockSource)

	runtime := device.New(control, gps, clock, clockSource, sched, disp, state, led)
	if err := runtime.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("device loop failed: %v", err)
	}
	log.Printf("tracklogd stopping")
}
