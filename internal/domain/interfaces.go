package domain

import "context"

// ─── Ports ──────────────────────────────────────────────────────────────────
// Implemented by infra adapters; consumed by app services.

// Journal records funnel events for analytics. It is append-only and is never
// read back to restore a session.
type Journal interface {
	OpenSession(ctx context.Context, sessionID string, tasks int) error
	Record(ctx context.Context, e Event) error
	CloseSession(ctx context.Context, sessionID string, finished bool) error
	Ping(ctx context.Context) error
	Close() error
}

// NopJournal discards everything. Used when storage.driver = "none".
type NopJournal struct{}

func (NopJournal) OpenSession(context.Context, string, int) error   { return nil }
func (NopJournal) Record(context.Context, Event) error              { return nil }
func (NopJournal) CloseSession(context.Context, string, bool) error { return nil }
func (NopJournal) Ping(context.Context) error                       { return nil }
func (NopJournal) Close() error                                     { return nil }

// JournalSummary aggregates what a journal has recorded.
type JournalSummary struct {
	Sessions int64               `json:"sessions"`
	Finished int64               `json:"finished"`
	Open     int64               `json:"open"`
	Events   map[EventType]int64 `json:"events"`
}

// Reporter is implemented by journals that can read their own totals back.
type Reporter interface {
	Summary(ctx context.Context) (JournalSummary, error)
}
