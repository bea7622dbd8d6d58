// Package postgres provides a PostgreSQL-backed funnel event journal for
// deployments that run several nodes against one analytics database.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avalia-ganha/avalia/internal/domain"
)

// Journal writes funnel events through a pgx connection pool.
type Journal struct {
	pool *pgxpool.Pool
}

var _ domain.Journal = (*Journal)(nil)

// Open connects to dsn and ensures the journal tables exist.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	j := NewJournal(pool)
	if err := j.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := j.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure tables: %w", err)
	}
	return j, nil
}

// NewJournal wraps an existing pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// EnsureTable creates the sessions and funnel_events tables if they don't exist.
func (j *Journal) EnsureTable(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			tasks      INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at   TIMESTAMPTZ,
			finished   BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return err
	}
	_, err = j.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS funnel_events (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			task_id    INTEGER NOT NULL DEFAULT 0,
			amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
			balance    NUMERIC(12,2) NOT NULL DEFAULT 0,
			idx        INTEGER NOT NULL DEFAULT 0,
			cue        TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = j.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_funnel_events_session ON funnel_events(session_id)`)
	return err
}

// Ping checks database connectivity.
func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// Close releases the pool.
func (j *Journal) Close() error {
	j.pool.Close()
	return nil
}

// OpenSession registers a new session.
func (j *Journal) OpenSession(ctx context.Context, sessionID string, tasks int) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO sessions (id, tasks, started_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET tasks = EXCLUDED.tasks, started_at = EXCLUDED.started_at,
			ended_at = NULL, finished = FALSE`,
		sessionID, tasks, time.Now().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("open session %s: %w", sessionID, err)
	}
	return nil
}

// Record appends one funnel event. Amounts travel as decimal strings and are
// cast server-side.
func (j *Journal) Record(ctx context.Context, e domain.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.pool.Exec(ctx, `
		INSERT INTO funnel_events (session_id, type, task_id, amount, balance, idx, cue, detail, at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)`,
		e.SessionID, string(e.Type), e.TaskID, e.Amount.String(), e.Balance.String(),
		e.Index, string(e.Cue), e.Detail, at.Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Type, err)
	}
	return nil
}

// CloseSession stamps the end of a session.
func (j *Journal) CloseSession(ctx context.Context, sessionID string, finished bool) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $1, finished = $2 WHERE id = $3`,
		time.Now().Truncate(time.Microsecond), finished, sessionID)
	if err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return nil
}

// Summary returns aggregate journal counts.
func (j *Journal) Summary(ctx context.Context) (domain.JournalSummary, error) {
	var s domain.JournalSummary
	err := j.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE finished),
		       COUNT(*) FILTER (WHERE ended_at IS NULL)
		FROM sessions`).Scan(&s.Sessions, &s.Finished, &s.Open)
	if err != nil {
		return s, fmt.Errorf("summary: %w", err)
	}

	rows, err := j.pool.Query(ctx, `SELECT type, COUNT(*) FROM funnel_events GROUP BY type`)
	if err != nil {
		return s, fmt.Errorf("summary events: %w", err)
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
