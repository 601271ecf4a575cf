// Package logstore persists log records as an append-only line file.
//
// Each append is open/write/sync/close so a yanked storage medium can lose
// at most the record being written, never corrupt earlier ones. A bounded
// in-memory mirror keeps the most recent records for fast access; the file
// stays the source of truth.
package logstore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"tracklog/internal/wire"
)

type Config struct {
	Path string
	// Mirror is the in-memory mirror capacity. Oldest entries are evicted
	// once full. Zero means the default of 50.
	Mirror int
}

type Store struct {
	path      string
	mirrorCap int

	mu     sync.Mutex
	mirror []wire.Record
}

func New(cfg Config) *Store {
	if cfg.Mirror <= 0 {
		cfg.Mirror = 50
	}
	return &Store{path: cfg.Path, mirrorCap: cfg.Mirror}
}

// Append durably persists one record before returning. Open failure is the
// caller's signal that the record was lost; nothing is retried here.
func (s *Store) Append(rec wire.Record) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logstore: open %s: %w", s.path, err)
	}
	if _, err := f.WriteString(rec.Line() + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("logstore: write %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("logstore: sync %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("logstore: close %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.mirror = append(s.mirror, rec)
	if len(s.mirror) > s.mirrorCap {
		s.mirror = s.mirror[len(s.mirror)-s.mirrorCap:]
	}
	s.mu.Unlock()
	return nil
}

// Scan streams every persisted record in append order. A store that was
// never written scans as empty. Unparsable lines are skipped so one bad
// line cannot block retrieval of the rest.
func (s *Store) Scan(fn func(wire.Record) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("logstore: open %s: %w", s.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, err := wire.ParseRecord(line)
		if err != nil {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("logstore: read %s: %w", s.path, err)
	}
	return nil
}

// Mirror returns a copy of the in-memory mirror, most recent last.
func (s *Store) Mirror() []wire.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Record, len(s.mirror))
	copy(out, s.mirror)
	return out
}
