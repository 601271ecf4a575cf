package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tracklog/internal/wire"
)

func testRecord(i int) wire.Record {
	return wire.Record{
		Date:     "150324",
		Time:     fmt.Sprintf("10%02d%02d", i/60, i%60),
		Lon:      "01131.0004E",
		Lat:      "4807.0380N",
		SpeedKmh: float64(i),
	}
}

func TestAppendThenScan_PreservesOrder(t *testing.T) {
	s := New(Config{Path: filepath.Join(t.TempDir(), "track.log")})
	want := []wire.Record{testRecord(1), testRecord(2), {Date: "150324", Time: "100500", SignalLost: true}, testRecord(4)}
	for _, rec := range want {
		if err := s.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var got []wire.Record
	if err := s.Scan(func(rec wire.Record) error {
		got = append(got, rec)
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("scanned %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestAppend_OpenFailureReported(t *testing.T) {
	s := New(Config{Path: filepath.Join(t.TempDir(), "missing", "track.log")})
	if err := s.Append(testRecord(1)); err == nil {
		t.Fatalf("expected error for unwritable path")
	}
	// The store stays usable for later appends.
	if got := s.Mirror(); len(got) != 0 {
		t.Fatalf("mirror has %d records after failed append", len(got))
	}
}

func TestScan_MissingFileIsEmpty(t *testing.T) {
	s := New(Config{Path: filepath.Join(t.TempDir(), "never-written.log")})
	calls := 0
	if err := s.Scan(func(wire.Record) error { calls++; return nil }); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if calls != 0 {
		t.Fatalf("callback called %d times for empty store", calls)
	}
}

func TestScan_SkipsUnparsableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.log")
	content := testRecord(1).Line() + "\n" + "corrupted line\n" + "\n" + testRecord(2).Line() + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New(Config{Path: path})
	var got []wire.Record
	if err := s.Scan(func(rec wire.Record) error {
		got = append(got, rec)
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("scanned %d records, want 2", len(got))
	}
}

func TestScan_CallbackErrorStops(t *testing.T) {
	s := New(Config{Path: filepath.Join(t.TempDir(), "track.log")})
	for i := 0; i < 5; i++ {
		if err := s.Append(testRecord(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	calls := 0
	err := s.Scan(func(wire.Record) error {
		calls++
		if calls == 2 {
			return fmt.Errorf("stop here")
		}
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "stop here") {
		t.Fatalf("err=%v want callback error", err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d want 2", calls)
	}
}

func TestMirror_BoundedDropOldest(t *testing.T) {
	s := New(Config{Path: filepath.Join(t.TempDir(), "track.log"), Mirror: 3})
	for i := 0; i < 5; i++ {
		if err := s.Append(testRecord(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got := s.Mirror()
	if len(got) != 3 {
		t.Fatalf("mirror len=%d want 3", len(got))
	}
	// Most recent three survive, oldest evicted.
	for i, want := range []wire.Record{testRecord(2), testRecord(3), testRecord(4)} {
		if got[i] != want {
			t.Fatalf("mirror[%d]=%+v want %+v", i, got[i], want)
		}
	}

	// Eviction does not touch the persisted log.
	count := 0
	if err := s.Scan(func(wire.Record) error { count++; return nil }); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if count != 5 {
		t.Fatalf("persisted %d records, want 5", count)
	}
}
