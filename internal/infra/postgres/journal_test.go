package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/domain"
)

// newTestJournal connects to AVALIA_TEST_POSTGRES or skips.
func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := os.Getenv("AVALIA_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("AVALIA_TEST_POSTGRES not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	j, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_SessionLifecycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7()).String()

	before, err := j.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := j.OpenSession(ctx, id, 5); err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}
	err = j.Record(ctx, domain.Event{
		SessionID: id,
		Type:      domain.EventTaskCompleted,
		TaskID:    1,
		Amount:    decimal.NewFromInt(28),
		Balance:   decimal.NewFromInt(28),
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.CloseSession(ctx, id, true); err != nil {
		t.Fatalf("CloseSession() error: %v", err)
	}

	after, err := j.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Sessions != before.Sessions+1 || after.Finished != before.Finished+1 {
		t.Errorf("summary before %+v after %+v", before, after)
	}
	if after.Events[domain.EventTaskCompleted] != before.Events[domain.EventTaskCompleted]+1 {
		t.Errorf("task_completed count did not grow")
	}
}

func TestJournal_CloseUnknownSession(t *testing.T) {
	j := newTestJournal(t)
	err := j.CloseSession(context.Background(), "no-such-session", false)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}
