package retrieval

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tracklog/internal/wire"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time            { return c.now }
func (c *fakeClock) SetTime(t time.Time) error { c.now = t; return nil }

type sliceStore struct {
	recs    []wire.Record
	failAt  int
	failErr error
}

func (s *sliceStore) Scan(fn func(wire.Record) error) error {
	for i, rec := range s.recs {
		if s.failErr != nil && i == s.failAt {
			return s.failErr
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

type lineSink struct {
	lines []string
	errAt int
}

func (s *lineSink) WriteLine(line string) error {
	if s.errAt > 0 && len(s.lines)+1 >= s.errAt {
		return errors.New("write failed")
	}
	s.lines = append(s.lines, line)
	return nil
}

type countingSleeper struct{ calls int }

func (s *countingSleeper) Sleep(time.Duration) { s.calls++ }

func recordAt(t time.Time, speed float64) wire.Record {
	return wire.Record{
		Date: t.UTC().Format("020106"), Time: t.UTC().Format("150405"),
		Lon: "01131.0004E", Lat: "4807.0380N", SpeedKmh: speed,
	}
}

func TestStream_WindowFilter(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store := &sliceStore{recs: []wire.Record{
		recordAt(now.Add(-100*time.Hour), 10), // outside
		recordAt(now.Add(-72*time.Hour), 20),  // exactly on the cutoff: included
		recordAt(now.Add(-time.Hour), 30),
		recordAt(now, 40),
	}}
	out := &lineSink{}
	s := New(store, &fakeClock{now: now}, Config{Sleeper: &countingSleeper{}})

	if err := s.Stream(out); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(out.lines) != 5 {
		t.Fatalf("got %d lines want 5: %v", len(out.lines), out.lines)
	}
	if out.lines[0] != "Current time: 2024-03-15 12:00:00" {
		t.Fatalf("line 0 = %q", out.lines[0])
	}
	if out.lines[1] != "Cutoff time: 2024-03-12 12:00:00" {
		t.Fatalf("line 1 = %q", out.lines[1])
	}
	for _, line := range out.lines[2:4] {
		if wire.Classify(line) != wire.ClassData {
			t.Fatalf("expected data line, got %q", line)
		}
	}
	if out.lines[4] != "Transfer complete. 3 records sent." {
		t.Fatalf("summary = %q", out.lines[4])
	}
}

func TestStream_EmptyWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store := &sliceStore{recs: []wire.Record{recordAt(now.Add(-200*time.Hour), 10)}}
	out := &lineSink{}
	s := New(store, &fakeClock{now: now}, Config{Sleeper: &countingSleeper{}})

	if err := s.Stream(out); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := out.lines[len(out.lines)-1]; got != "Transfer complete. 0 records sent." {
		t.Fatalf("summary = %q", got)
	}
}

func TestStream_PersistedOrderPreserved(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	var recs []wire.Record
	for i := 0; i < 7; i++ {
		recs = append(recs, recordAt(now.Add(time.Duration(i-7)*time.Minute), float64(i)))
	}
	store := &sliceStore{recs: recs}
	out := &lineSink{}
	s := New(store, &fakeClock{now: now}, Config{Sleeper: &countingSleeper{}})

	if err := s.Stream(out); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	data := out.lines[2 : len(out.lines)-1]
	for i, line := range data {
		if !strings.HasSuffix(line, fmt.Sprintf(",%d.0", i)) {
			t.Fatalf("data[%d]=%q out of persisted order", i, line)
		}
	}
}

func TestStream_PacingEveryTen(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	var recs []wire.Record
	for i := 0; i < 25; i++ {
		recs = append(recs, recordAt(now.Add(-time.Duration(25-i)*time.Second), 30))
	}
	sleeper := &countingSleeper{}
	out := &lineSink{}
	s := New(&sliceStore{recs: recs}, &fakeClock{now: now}, Config{Sleeper: sleeper})

	if err := s.Stream(out); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	// 25 data lines: pauses after lines 10 and 20.
	if sleeper.calls != 2 {
		t.Fatalf("sleeper called %d times, want 2", sleeper.calls)
	}
}

func TestStream_StoreFailureEmitsErrorLine(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store := &sliceStore{
		recs:    []wire.Record{recordAt(now.Add(-time.Minute), 10), recordAt(now, 20)},
		failAt:  1,
		failErr: errors.New("log open failed"),
	}
	out := &lineSink{}
	s := New(store, &fakeClock{now: now}, Config{Sleeper: &countingSleeper{}})

	if err := s.Stream(out); err == nil {
		t.Fatalf("expected error")
	}
	last := out.lines[len(out.lines)-1]
	if !strings.HasPrefix(last, "Error:") {
		t.Fatalf("last line %q want Error: prefix", last)
	}
	if wire.Classify(last) != wire.ClassStatus {
		t.Fatalf("error line not classified as status")
	}
}

func TestStream_WriteFailureStops(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	out := &lineSink{errAt: 1}
	s := New(&sliceStore{}, &fakeClock{now: now}, Config{Sleeper: &countingSleeper{}})
	if err := s.Stream(out); err == nil {
		t.Fatalf("expected write error")
	}
}
