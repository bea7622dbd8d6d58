// Package sqlite provides the SQLite-backed funnel event journal.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/avalia-ganha/avalia/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.Journal.
type DB struct {
	db *sql.DB
}

var _ domain.Journal = (*DB)(nil)

// Open creates or opens the SQLite database at dir/journal.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "journal.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			tasks      INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER,
			finished   BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,

		// Amounts are decimal strings so nothing is lost to float rounding.
		`CREATE TABLE IF NOT EXISTS funnel_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			task_id    INTEGER NOT NULL DEFAULT 0,
			amount     TEXT NOT NULL DEFAULT '0',
			balance    TEXT NOT NULL DEFAULT '0',
			idx        INTEGER NOT NULL DEFAULT 0,
			cue        TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON funnel_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON funnel_events(type)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Journal ────────────────────────────────────────────────────────────────

// OpenSession registers a new session. Reopening an id restarts its row.
func (d *DB) OpenSession(ctx context.Context, sessionID string, tasks int) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO sessions (id, tasks, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			tasks=excluded.tasks,
			started_at=excluded.started_at,
			ended_at=NULL,
			finished=0`,
		sessionID, tasks, time.Now().UnixMilli(),
	)
	return err
}

// Record appends one funnel event.
func (d *DB) Record(ctx context.Context, e domain.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO funnel_events (session_id, type, task_id, amount, balance, idx, cue, detail, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Type), e.TaskID, e.Amount.String(), e.Balance.String(),
		e.Index, string(e.Cue), e.Detail, at.UnixMilli(),
	)
	return err
}

// CloseSession stamps the end of a session.
func (d *DB) CloseSession(ctx context.Context, sessionID string, finished bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, finished = ? WHERE id = ?`,
		time.Now().UnixMilli(), finished, sessionID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return nil
}

// ─── Reporting ──────────────────────────────────────────────────────────────

// Summary returns aggregate journal counts.
func (d *DB) Summary(ctx context.Context) (domain.JournalSummary, error) {
	var s domain.JournalSummary
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN finished THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN ended_at IS NULL THEN 1 ELSE 0 END), 0)
		 FROM sessions`,
	).Scan(&s.Sessions, &s.Finished, &s.Open)
	if err != nil {
		return s, err
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM funnel_events GROUP BY type`,
	)
	if err != nil {
		return s, err
	}
	defer rows.Close()

	s.Events = make(map[domain.EventType]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return s, err
		}
		s.Events[domain.EventType(typ)] = n
	}
	return s, rows.Err()
}

// Events returns a session's events in the order they were recorded.
func (d *DB) Events(ctx context.Context, sessionID string) ([]domain.Event, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, type, task_id, amount, balance, idx, cue, detail, at
		 FROM funnel_events WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (domain.Event, error) {
	var (
		e               domain.Event
		typ, cue        string
		amount, balance string
		at              int64
	)
	if err := s.Scan(&e.SessionID, &typ, &e.TaskID, &amount, &balance,
		&e.Index, &cue, &e.Detail, &at); err != nil {
		return e, err
	}
	e.Type = domain.EventType(typ)
	e.Cue = domain.Cue(cue)
	e.At = time.UnixMilli(at)

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("event amount: %w", err)
	}
	if e.Balance, err = decimal.NewFromString(balance); err != nil {
		return e, fmt.Errorf("event balance: %w", err)
	}
	return e, nil
}
