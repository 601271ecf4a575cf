// Package host drives bulk retrieval from the far end of the serial link:
// it sends the trigger, classifies the incoming stream, detects completion
// heuristically when the device never says so, and assembles the final
// record table for export collaborators.
package host

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tracklog/internal/wire"
)

type State int

const (
	Idle State = iota
	Downloading
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrBusy reports that a download is already in progress.
var ErrBusy = errors.New("host: download already in progress")

// Conn is the line channel to the device. ReadLine returns an empty string
// with a nil error when no line arrived within the per-read timeout; any
// non-nil error is a transport failure.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
}

type Config struct {
	// IdleLimit is how many consecutive empty reads (after at least one
	// data line) declare the transfer complete. Default 15.
	IdleLimit int
	// Ceiling is the watchdog on the whole transfer. Default 120s.
	Ceiling time.Duration
}

// Result is one finished (or failed) download session.
type Result struct {
	SessionID string
	State     State

	Records []wire.Record
	Info    []string

	// Explicit is true when completion came from a device status line
	// rather than a heuristic. Only then is the record set guaranteed
	// complete; otherwise it is best effort.
	Explicit   bool
	StatusLine string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Progress is the snapshot published to observers during a download.
// Fraction is an elapsed-time proxy, not a true completion fraction.
type Progress struct {
	SessionID  string  `json:"session_id,omitempty"`
	State      string  `json:"state"`
	Fraction   float64 `json:"fraction"`
	Records    int     `json:"records"`
	ElapsedSec float64 `json:"elapsed_sec"`
}

type Downloader struct {
	cfg Config

	busy atomic.Bool
	last atomic.Value // Progress
	bc   *ProgressBroadcaster

	nowFn func() time.Time
}

func New(cfg Config) *Downloader {
	if cfg.IdleLimit <= 0 {
		cfg.IdleLimit = 15
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 120 * time.Second
	}
	d := &Downloader{cfg: cfg, nowFn: time.Now}
	d.last.Store(Progress{State: Idle.String()})
	return d
}

// SetBroadcaster attaches an optional observer fanout. Must be called
// before Download.
func (d *Downloader) SetBroadcaster(bc *ProgressBroadcaster) { d.bc = bc }

// Progress returns the most recent progress snapshot.
func (d *Downloader) Progress() Progress {
	return d.last.Load().(Progress)
}

// Download runs one retrieval session over conn. Only one session may be
// active at a time; concurrent calls fail with ErrBusy. Cancellation is
// honored before the trigger and between reads, rolling back to Idle.
//
// A transport failure fails the session; a stalled stream does not — the
// idle and watchdog heuristics complete it with whatever arrived.
func (d *Downloader) Download(ctx context.Context, conn Conn) (*Result, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer d.busy.Store(false)

	if err := ctx.Err(); err != nil {
		d.publish(Progress{State: Idle.String()})
		return nil, err
	}

	res := &Result{
		SessionID: uuid.NewString(),
		State:     Downloading,
		StartedAt: d.nowFn(),
	}
	d.publish(d.progressFor(res, 0))

	if err := conn.WriteLine("log"); err != nil {
		res.State = Failed
		res.FinishedAt = d.nowFn()
		d.publish(d.progressFor(res, res.FinishedAt.Sub(res.StartedAt)))
		return res, err
	}

	noData := 0
	for {
		select {
		case <-ctx.Done():
			d.publish(Progress{State: Idle.String()})
			return nil, ctx.Err()
		default:
		}

		elapsed := d.nowFn().Sub(res.StartedAt)
		if elapsed > d.cfg.Ceiling {
			// Watchdog: treat as completion, not error.
			res.State = Completed
			break
		}

		line, err := conn.ReadLine()
		if err != nil {
			res.State = Failed
			res.StatusLine = err.Error()
			res.FinishedAt = d.nowFn()
			d.publish(d.progressFor(res, elapsed))
			return res, err
		}
		if line == "" {
			noData++
			if noData > d.cfg.IdleLimit && len(res.Records) > 0 {
				res.State = Completed
				break
			}
			d.publish(d.progressFor(res, elapsed))
			continue
		}

		switch wire.Classify(line) {
		case wire.ClassStatus:
			res.StatusLine = line
			res.Explicit = true
			if strings.HasPrefix(line, wire.PrefixError) {
				res.State = Failed
			} else {
				res.State = Completed
			}
		case wire.ClassData:
			rec, perr := wire.ParseRecord(line)
			if perr != nil {
				// Looked like data but does not parse; keep it visible.
				res.Info = append(res.Info, line)
				break
			}
			res.Records = append(res.Records, rec)
			noData = 0
		default:
			res.Info = append(res.Info, line)
		}
		if res.State != Downloading {
			break
		}
		d.publish(d.progressFor(res, elapsed))
	}

	res.FinishedAt = d.nowFn()
	d.publish(d.progressFor(res, res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

func (d *Downloader) progressFor(res *Result, elapsed time.Duration) Progress {
	fraction := elapsed.Seconds() / d.cfg.Ceiling.Seconds()
	if fraction > 1 {
		fraction = 1
	}
	if res.State != Downloading {
		fraction = 1
	}
	return Progress{
		SessionID:  res.SessionID,
		State:      res.State.String(),
		Fraction:   fraction,
		Records:    len(res.Records),
		ElapsedSec: elapsed.Seconds(),
	}
}

func (d *Downloader) publish(p Progress) {
	d.last.Store(p)
	if d.bc != nil {
		d.bc.Publish(p)
	}
}

// Collaborator consumes a finished download (archive, publish, export).
type Collaborator interface {
	Deliver(ctx context.Context, res *Result) error
}

// Deliver hands the result to each collaborator. Per the consumer
// contract, only completed sessions with data are delivered; anything else
// is a silent no-op.
func Deliver(ctx context.Context, res *Result, collabs ...Collaborator) error {
	if res == nil || res.State != Completed || len(res.Records) == 0 {
		return nil
	}
	for _, c := range collabs {
		if c == nil {
			continue
		}
		if err := c.Deliver(ctx, res); err != nil {
			return err
		}
	}
	return nil
}
