// Package archive persists completed downloads to SQLite so past record
// sets survive host restarts and stay queryable for export tooling.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tracklog/internal/host"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	explicit_end INTEGER NOT NULL,
	record_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq INTEGER NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	lon TEXT NOT NULL,
	lat TEXT NOT NULL,
	speed_kmh REAL,
	signal_lost INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id);
`

type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive database. Use ":memory:" in tests.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: init schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Deliver stores one completed download session transactionally.
func (a *Archive) Deliver(ctx context.Context, res *host.Result) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback()

	explicitEnd := 0
	if res.Explicit {
		explicitEnd = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, finished_at, explicit_end, record_count) VALUES (?, ?, ?, ?, ?)`,
		res.SessionID, res.StartedAt.Unix(), res.FinishedAt.Unix(), explicitEnd, len(res.Records)); err != nil {
		return fmt.Errorf("archive: insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (session_id, seq, date, time, lon, lat, speed_kmh, signal_lost) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive: prepare: %w", err)
	}
	defer stmt.Close()

	for i, rec := range res.Records {
		var speed any
		lost := 0
		if rec.SignalLost {
			lost = 1
		} else {
			speed = rec.SpeedKmh
		}
		if _, err := stmt.ExecContext(ctx, res.SessionID, i, rec.Date, rec.Time, rec.Lon, rec.Lat, speed, lost); err != nil {
			return fmt.Errorf("archive: insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

type SessionInfo struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	ExplicitEnd bool
	RecordCount int
}

// Sessions lists stored sessions, most recent first.
func (a *Archive) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, explicit_end, record_count FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var s SessionInfo
		var started, finished int64
		var explicitEnd int
		if err := rows.Scan(&s.ID, &started, &finished, &explicitEnd, &s.RecordCount); err != nil {
			return nil, fmt.Errorf("archive: scan session: %w", err)
		}
		s.StartedAt = time.Unix(started, 0).UTC()
		s.FinishedAt = time.Unix(finished, 0).UTC()
		s.ExplicitEnd = explicitEnd != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordLines returns the stored record lines of one session in their
// original order, re-rendered in the wire format.
func (a *Archive) RecordLines(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT date, time, lon, lat, speed_kmh, signal_lost FROM records WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: query records: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var date, tm string
		var lon, lat string
		var speed sql.NullFloat64
		var lost int
		if err := rows.Scan(&date, &tm, &lon, &lat, &speed, &lost); err != nil {
			return nil, fmt.Errorf("archive: scan record: %w", err)
		}
		if lost != 0 {
			out = append(out, fmt.Sprintf("%s,%s,SL,SL,SL", date, tm))
			continue
		}
		out = append(out, fmt.Sprintf("%s,%s,%s,%s,%.1f", date, tm, lon, lat, speed.Float64))
	}
	return out, rows.Err()
}
