// Package device runs the on-device cooperative loop. One iteration
// services the control channel, then the GPS channel, then a 1-second
// housekeeping tick — in that order, none blocking beyond a bounded
// device read. A single goroutine performs all protocol logic, so the
// shared state needs no locks.
package device

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"tracklog/internal/command"
	"tracklog/internal/nmea"
	"tracklog/internal/port"
	"tracklog/internal/rtc"
	"tracklog/internal/scheduler"
)

// LineChannel is the control channel: bounded line reads, line writes.
type LineChannel interface {
	ReadLine() (string, error)
	WriteLine(line string) error
}

// ByteSource is the GPS channel: raw bounded reads. A timed-out read
// returns (0, nil).
type ByteSource interface {
	io.Reader
	Close() error
}

// FixIndicator receives the latest fix state once per tick.
type FixIndicator interface {
	Set(active bool)
}

type Snapshot struct {
	TimeUTC     string `json:"time_utc"`
	ClockSource string `json:"clock_source"`

	FixActive bool `json:"fix_active"`
	FixSeen   bool `json:"fix_seen"`

	RecordsLogged      int    `json:"records_logged"`
	SpeedLimitKmh      int    `json:"speed_limit_kmh"`
	LimpSpeedKmh       int    `json:"limp_speed_kmh"`
	SpeedLimitExceeded bool   `json:"speed_limit_exceeded"`
	AppendFailures     int    `json:"append_failures"`
	FramerOverflows    int    `json:"framer_overflows"`
	LastError          string `json:"last_error,omitempty"`
}

type Runtime struct {
	control     LineChannel
	gps         ByteSource
	clock       rtc.Clock
	clockSource string

	framer *nmea.Framer
	sched  *scheduler.Scheduler
	disp   *command.Dispatcher
	state  *scheduler.State
	led    FixIndicator

	last atomic.Value // Snapshot

	gpsBuf    []byte
	fixActive bool
	fixSeen   bool
	overflows int
	lastErr   string
	lastTick  time.Time
	ticks     int
}

func New(control LineChannel, gps ByteSource, clock rtc.Clock, clockSource string,
	sched *scheduler.Scheduler, disp *command.Dispatcher, state *scheduler.State, led FixIndicator) *Runtime {
	r := &Runtime{
		control:     control,
		gps:         gps,
		clock:       clock,
		clockSource: clockSource,
		framer:      nmea.NewFramer(0),
		sched:       sched,
		disp:        disp,
		state:       state,
		led:         led,
		gpsBuf:      make([]byte, 512),
	}
	r.last.Store(Snapshot{ClockSource: clockSource})
	return r
}

// Run loops until the context is canceled. Each source read is bounded by
// its channel timeout, so cancellation is observed promptly.
func (r *Runtime) Run(ctx context.Context) error {
	log.Printf("device loop starting clock=%s", r.clockSource)
	for {
		if err := ctx.Err(); err != nil {
			log.Printf("device loop stopping")
			return err
		}
		r.serviceControl()
		r.serviceGPS()
		r.tick()
	}
}

func (r *Runtime) serviceControl() {
	line, err := r.control.ReadLine()
	if err != nil {
		if !errors.Is(err, port.ErrTimeout) {
			r.lastErr = "control read: " + err.Error()
		}
		return
	}
	if err := r.disp.Dispatch(line, r.control); err != nil {
		r.lastErr = "control write: " + err.Error()
		log.Printf("control response failed: %v", err)
	}
}

func (r *Runtime) serviceGPS() {
	n, err := r.gps.Read(r.gpsBuf)
	if err != nil && !errors.Is(err, port.ErrTimeout) {
		r.lastErr = "gps read: " + err.Error()
		return
	}
	if n == 0 {
		return
	}
	sentences, ferr := r.framer.Feed(r.gpsBuf[:n])
	if ferr != nil {
		r.overflows++
	}
	for _, s := range sentences {
		if !nmea.IsRMC(s) {
			continue
		}
		fix := nmea.ParseRMC(s)
		if !fix.DataReady {
			continue
		}
		r.fixActive = fix.Active
		r.fixSeen = true
		r.sched.Offer(fix)
	}
}

func (r *Runtime) tick() {
	now := r.clock.Now()
	if !r.lastTick.IsZero() && now.Sub(r.lastTick) < time.Second {
		return
	}
	r.lastTick = now
	r.ticks++

	if r.led != nil {
		r.led.Set(r.fixActive)
	}

	snap := Snapshot{
		TimeUTC:            now.UTC().Format(time.RFC3339),
		ClockSource:        r.clockSource,
		FixActive:          r.fixActive,
		FixSeen:            r.fixSeen,
		RecordsLogged:      r.state.RecordsLogged,
		SpeedLimitKmh:      r.state.SpeedLimitKmh,
		LimpSpeedKmh:       r.state.LimpSpeedKmh,
		SpeedLimitExceeded: r.state.SpeedLimitExceeded,
		AppendFailures:     r.state.AppendFailures,
		FramerOverflows:    r.overflows,
		LastError:          r.lastErr,
	}
	if snap.LastError == "" {
		snap.LastError = r.state.LastAppendError
	}
	r.last.Store(snap)

	// Low duty-cycle status line for the journal.
	if r.ticks%30 == 1 {
		log.Printf("device status fix=%v records=%d failures=%d", r.fixActive, r.state.RecordsLogged, r.state.AppendFailures)
	}
}

func (r *Runtime) Snapshot() Snapshot {
	v := r.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}
