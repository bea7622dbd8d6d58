package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "journal.db")); os.IsNotExist(err) {
		t.Error("journal.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.OpenSession(ctx, "s1", 5); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	sum, err := db.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sessions != 1 {
		t.Errorf("sessions after reopen = %d, want 1", sum.Sessions)
	}
}

// ─── Journal ────────────────────────────────────────────────────────────────

func TestJournal_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	if err := db.OpenSession(ctx, "s1", 5); err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}
	events := []domain.Event{
		{SessionID: "s1", Type: domain.EventTaskCompleted, TaskID: 1,
			Amount: decimal.NewFromInt(28), Balance: decimal.NewFromInt(28), Cue: domain.CueAchievement, At: at},
		{SessionID: "s1", Type: domain.EventBonusApplied, TaskID: 2,
			Amount: decimal.RequireFromString("15.50"), Balance: decimal.RequireFromString("78.50"), Index: 2, At: at},
		{SessionID: "s2", Type: domain.EventTaskCompleted, TaskID: 1, At: at},
	}
	for _, e := range events {
		if err := db.Record(ctx, e); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	got, err := db.Events(ctx, "s1")
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != domain.EventTaskCompleted || got[0].Cue != domain.CueAchievement {
		t.Errorf("first event = %+v", got[0])
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("15.5")) || got[1].Index != 2 {
		t.Errorf("second event = %+v", got[1])
	}
	if !got[1].At.Equal(at) {
		t.Errorf("at = %v, want %v", got[1].At, at)
	}
}

func TestJournal_CloseSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	db.OpenSession(ctx, "done", 5)
	db.OpenSession(ctx, "quit", 5)
	db.OpenSession(ctx, "live", 5)

	if err := db.CloseSession(ctx, "done", true); err != nil {
		t.Fatal(err)
	}
	if err := db.CloseSession(ctx, "quit", false); err != nil {
		t.Fatal(err)
	}
	if err := db.CloseSession(ctx, "ghost", false); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("CloseSession(ghost) err = %v, want ErrSessionNotFound", err)
	}

	sum, err := db.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sessions != 3 || sum.Finished != 1 || sum.Open != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestJournal_SummaryCountsEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		db.Record(ctx, domain.Event{SessionID: "s", Type: domain.EventTaskCompleted, TaskID: i})
	}
	db.Record(ctx, domain.Event{SessionID: "s", Type: domain.EventOfferChosen, Detail: "vip"})

	sum, err := db.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Events[domain.EventTaskCompleted] != 3 || sum.Events[domain.EventOfferChosen] != 1 {
		t.Errorf("events = %v", sum.Events)
	}
}

func TestJournal_CancelledContext(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := db.Record(ctx, domain.Event{SessionID: "s", Type: domain.EventTaskCompleted}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
