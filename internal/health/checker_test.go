package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeSessions struct {
	active, capacity int
	reaped           int
	reapTo           int // active count after a reap; 0 frees nothing
}

func (f *fakeSessions) Len() int      { return f.active }
func (f *fakeSessions) Capacity() int { return f.capacity }
func (f *fakeSessions) ReapIdle(context.Context) int {
	f.reaped++
	if f.reapTo == 0 || f.reapTo >= f.active {
		return 0
	}
	n := f.active - f.reapTo
	f.active = f.reapTo
	return n
}

type brokenJournal struct{ domain.NopJournal }

func (brokenJournal) Ping(context.Context) error { return errors.New("connection refused") }

func statusOf(t *testing.T, c *Checker, name string) Status {
	t.Helper()
	for _, s := range c.Statuses() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("check %q not found in statuses", name)
	return Status{}
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	c := NewChecker(newTestDB(t), &fakeSessions{capacity: 10}, t.TempDir())
	if c == nil {
		t.Fatal("NewChecker() returned nil")
	}
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v", c.interval)
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	c := NewChecker(newTestDB(t), &fakeSessions{active: 1, capacity: 10}, t.TempDir())
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(domain.NopJournal{}, &fakeSessions{}, "")
	// no statuses yet: vacuously healthy
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run")
	}
}

func TestChecker_JournalDown(t *testing.T) {
	c := NewChecker(brokenJournal{}, &fakeSessions{capacity: 10}, "")
	c.runAll(context.Background())

	s := statusOf(t, c, "journal")
	if s.Healthy || s.Error == "" {
		t.Errorf("journal status = %+v, want unhealthy with error", s)
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestChecker_CapacityRecovers(t *testing.T) {
	sessions := &fakeSessions{active: 95, capacity: 100}
	c := NewChecker(domain.NopJournal{}, sessions, "")
	c.runAll(context.Background())

	if statusOf(t, c, "session_capacity").Healthy {
		t.Error("capacity check should fail at 95%")
	}
	if sessions.reaped != 1 {
		t.Errorf("recovery ran %d times, want 1", sessions.reaped)
	}

	sessions.active = 10
	c.runAll(context.Background())
	if !statusOf(t, c, "session_capacity").Healthy {
		t.Error("capacity check should pass at 10%")
	}
}

func TestChecker_RecoveryClearsFailure(t *testing.T) {
	sessions := &fakeSessions{active: 100, capacity: 100, reapTo: 40}
	c := NewChecker(domain.NopJournal{}, sessions, "")
	c.runAll(context.Background())

	st := statusOf(t, c, "session_capacity")
	if !st.Healthy || !st.Recovered {
		t.Errorf("status = %+v, want healthy after recovery", st)
	}
	if sessions.active != 40 {
		t.Errorf("active = %d, want 40", sessions.active)
	}
	if f := c.Failing(); len(f) != 0 {
		t.Errorf("Failing() = %v", f)
	}
}

func TestChecker_DataDir(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		healthy bool
	}{
		{"exists", func(t *testing.T) string { return t.TempDir() }, true},
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }, true},
		{"file", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "data")
			os.WriteFile(p, []byte("not a dir"), 0644)
			return p
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(domain.NopJournal{}, &fakeSessions{}, tt.setup(t))
			c.runAll(context.Background())
			if got := statusOf(t, c, "data_dir").Healthy; got != tt.healthy {
				t.Errorf("healthy = %v, want %v", got, tt.healthy)
			}
		})
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name:    "always_fail",
				CheckFn: func(ctx context.Context) error { return os.ErrPermission },
			},
		},
	}
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 || statuses[0].Healthy || statuses[0].Error == "" {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestChecker_SetInterval(t *testing.T) {
	c := NewChecker(domain.NopJournal{}, &fakeSessions{}, "")
	c.SetInterval(0)
	if c.interval != DefaultInterval {
		t.Error("zero interval should be ignored")
	}
	c.SetInterval(5e9)
	if c.interval.Seconds() != 5 {
		t.Errorf("interval = %v", c.interval)
	}
}
