// Package retrieval streams the bounded historical window of the log store
// back over the control channel.
package retrieval

import (
	"fmt"
	"time"

	"tracklog/internal/rtc"
	"tracklog/internal/wire"
)

// Sleeper abstracts the pacing delay so tests can run instantly.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Scanner is the read side of the log store.
type Scanner interface {
	Scan(fn func(wire.Record) error) error
}

type Config struct {
	// Window bounds how far back records are served. Default 72h.
	Window time.Duration
	// PaceEvery and PaceDelay throttle output: after every PaceEvery data
	// lines the stream pauses for PaceDelay. A static approximation of flow
	// control, sized for the host receive buffer at the configured baud.
	PaceEvery int
	PaceDelay time.Duration

	Sleeper Sleeper
}

type Streamer struct {
	cfg   Config
	store Scanner
	clock rtc.Clock
}

func New(store Scanner, clock rtc.Clock, cfg Config) *Streamer {
	if cfg.Window <= 0 {
		cfg.Window = 72 * time.Hour
	}
	if cfg.PaceEvery <= 0 {
		cfg.PaceEvery = 10
	}
	if cfg.PaceDelay <= 0 {
		cfg.PaceDelay = 100 * time.Millisecond
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = realSleeper{}
	}
	return &Streamer{cfg: cfg, store: store, clock: clock}
}

// Stream emits the retrieval window: two info lines, every record within
// the window in persisted order, then a terminal count summary. A store
// failure mid-stream is reported as an explicit error line so the host
// never has to guess.
func (s *Streamer) Stream(out wire.LineWriter) error {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.cfg.Window)

	if err := out.WriteLine(wire.PrefixCurrentTime + " " + wire.Stamp(now)); err != nil {
		return err
	}
	if err := out.WriteLine(wire.PrefixCutoffTime + " " + wire.Stamp(cutoff)); err != nil {
		return err
	}

	cutoffEpoch := cutoff.Unix()
	sent := 0
	err := s.store.Scan(func(rec wire.Record) error {
		epoch, err := rec.EpochUTC()
		if err != nil {
			// Undatable records cannot be windowed; skip them.
			return nil
		}
		if epoch < cutoffEpoch {
			return nil
		}
		if err := out.WriteLine(rec.Line()); err != nil {
			return err
		}
		sent++
		if sent%s.cfg.PaceEvery == 0 {
			s.cfg.Sleeper.Sleep(s.cfg.PaceDelay)
		}
		return nil
	})
	if err != nil {
		_ = out.WriteLine(fmt.Sprintf("%s %v", wire.PrefixError, err))
		return err
	}

	return out.WriteLine(fmt.Sprintf("%s. %d records sent.", wire.PrefixComplete, sent))
}
