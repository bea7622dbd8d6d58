package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/app/funnel"
	"github.com/avalia-ganha/avalia/internal/app/games"
	"github.com/avalia-ganha/avalia/internal/app/offer"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// memJournal records journal calls.
type memJournal struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]bool
	events []domain.Event
}

func newMemJournal() *memJournal {
	return &memJournal{opened: map[string]int{}, closed: map[string]bool{}}
}

func (j *memJournal) OpenSession(_ context.Context, id string, tasks int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.opened[id] = tasks
	return nil
}

func (j *memJournal) Record(_ context.Context, e domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *memJournal) CloseSession(_ context.Context, id string, finished bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed[id] = finished
	return nil
}

func (j *memJournal) Ping(context.Context) error { return nil }
func (j *memJournal) Close() error               { return nil }

func (j *memJournal) count(t domain.EventType) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, e := range j.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *clock.Fake, *memJournal) {
	t.Helper()
	fc := clock.NewFake(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	j := newMemJournal()
	m, err := NewManager(cfg, funnel.DefaultCatalog(), funnel.DefaultSettings(), Deps{
		Scheduler: fc,
		Journal:   j,
		Seed:      func() int64 { return 42 },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, fc, j
}

func mustBalance(t *testing.T, s *Session, want int64) {
	t.Helper()
	if got := s.Engine.Balance(); !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("balance = %s, want %d", got, want)
	}
}

// ─── Full Funnel ────────────────────────────────────────────────────────────

func TestSession_FullFunnel(t *testing.T) {
	m, fc, j := newTestManager(t, DefaultConfig())
	ctx := context.Background()

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if j.opened[s.ID] != 5 {
		t.Errorf("journal opened with %d tasks, want 5", j.opened[s.ID])
	}

	// Task 1: video
	if _, err := s.Evaluate(1, true); !errors.Is(err, domain.ErrVideoNotWatched) {
		t.Fatalf("evaluate unwatched err = %v", err)
	}
	if err := s.Watch(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Evaluate(1, true); err != nil {
		t.Fatal(err)
	}
	mustBalance(t, s, 28)
	fc.Advance(2 * time.Second)

	// Task 2: delivery app
	app, err := s.App(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppAction(2, "select", "Subway"); err != nil {
		t.Fatal(err)
	}
	fc.Advance(500 * time.Millisecond)
	if app.State().Progress != 10 {
		t.Errorf("app progress = %d, want 10", app.State().Progress)
	}
	if _, err := s.Evaluate(2, true); err != nil {
		t.Fatal(err)
	}
	mustBalance(t, s, 63)
	fc.Advance(3 * time.Second)
	mustBalance(t, s, 78)

	// Task 3: video
	if err := s.Watch(3); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Evaluate(3, true); err != nil {
		t.Fatal(err)
	}
	fc.Advance(2 * time.Second)
	mustBalance(t, s, 110)

	// Task 4: fitness app
	if _, err := s.Evaluate(4, true); err != nil {
		t.Fatal(err)
	}
	fc.Advance(3 * time.Second)
	mustBalance(t, s, 177)

	// Task 5: tiger game
	if _, err := s.Offer(offer.PlanVIP); !errors.Is(err, domain.ErrFunnelNotFinished) {
		t.Fatalf("offer before finish err = %v", err)
	}
	if err := s.GameAction(5, "start", games.Args{}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := s.GameAction(5, "spin", games.Args{}); err != nil {
			t.Fatalf("spin %d: %v", i+1, err)
		}
		fc.Advance(2600 * time.Millisecond)
	}
	if _, err := s.ClaimGame(5); !errors.Is(err, domain.ErrGameNotOver) {
		t.Fatalf("claim during end delay err = %v", err)
	}
	fc.Advance(2 * time.Second)

	award, err := s.ClaimGame(5)
	if err != nil {
		t.Fatal(err)
	}
	if award.Nominal.LessThan(decimal.NewFromInt(50)) {
		t.Errorf("tiger reward %s below floor", award.Nominal)
	}
	mustBalance(t, s, 200)
	fc.Advance(2 * time.Second)
	if !s.Engine.Finished() {
		t.Fatal("funnel should be finished")
	}

	res, err := s.Offer(offer.PlanVIP)
	if err != nil {
		t.Fatal(err)
	}
	if res.URL != "https://go.tribopay.com.br/ypblr" || !res.Balance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("offer = %+v", res)
	}
	if j.count(domain.EventOfferChosen) != 1 || j.count(domain.EventFunnelFinished) != 1 {
		t.Error("journal missing offer or finish events")
	}

	if _, err := s.ClaimGame(5); !errors.Is(err, domain.ErrFunnelFinished) {
		t.Errorf("claim after finish err = %v", err)
	}

	if err := m.Close(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if finished, ok := j.closed[s.ID]; !ok || !finished {
		t.Errorf("journal close = %v, %v; want finished", finished, ok)
	}
}

func TestSession_KindAndOrderChecks(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())
	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Watch(2); !errors.Is(err, domain.ErrWrongTaskKind) {
		t.Errorf("Watch(app task) err = %v", err)
	}
	if _, err := s.Game(1); !errors.Is(err, domain.ErrWrongTaskKind) {
		t.Errorf("Game(video task) err = %v", err)
	}
	if _, err := s.Game(9); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("Game(9) err = %v", err)
	}
	if err := s.GameAction(5, "start", games.Args{}); !errors.Is(err, domain.ErrTaskOutOfOrder) {
		t.Errorf("start inactive game err = %v", err)
	}
	if err := s.AppAction(2, "next", ""); !errors.Is(err, domain.ErrTaskOutOfOrder) {
		t.Errorf("act on inactive app err = %v", err)
	}
}

func TestSession_AppMeterStartsOnAction(t *testing.T) {
	m, fc, _ := newTestManager(t, DefaultConfig())
	s, _ := m.Create(context.Background())
	if err := s.Watch(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Evaluate(1, true); err != nil {
		t.Fatal(err)
	}
	fc.Advance(2 * time.Second)

	app, err := s.App(2)
	if err != nil {
		t.Fatal(err)
	}
	fc.Advance(time.Second)
	if p := app.State().Progress; p != 0 {
		t.Fatalf("progress after read = %d, want 0", p)
	}

	if err := s.AppAction(2, "open", ""); err != nil {
		t.Fatal(err)
	}
	fc.Advance(500 * time.Millisecond)
	if err := s.AppAction(2, "open", ""); err != nil {
		t.Fatal(err)
	}
	fc.Advance(500 * time.Millisecond)
	if p := app.State().Progress; p != 20 {
		t.Errorf("progress = %d, want 20", p)
	}
}

func TestSession_RejectedVideoResets(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())
	s, _ := m.Create(context.Background())

	if err := s.Watch(1); err != nil {
		t.Fatal(err)
	}
	award, err := s.Evaluate(1, false)
	if err != nil || !award.Rejected {
		t.Fatalf("reject = %+v, %v", award, err)
	}
	v, _ := s.Video(1)
	if v.State().Playing {
		t.Error("video should return to its thumbnail after a reject")
	}
	mustBalance(t, s, 0)
}

func TestSession_FailedClaimKeepsScore(t *testing.T) {
	m, fc, _ := newTestManager(t, DefaultConfig())
	s, _ := m.Create(context.Background())
	for id := 1; id <= 4; id++ {
		if _, err := s.Engine.CompleteTask(id); err != nil {
			t.Fatal(err)
		}
		fc.Advance(3 * time.Second)
	}

	if err := s.GameAction(5, "start", games.Args{}); err != nil {
		t.Fatal(err)
	}
	g, _ := s.Game(5)
	if err := games.Autoplay(g, fc.Advance, 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	// The engine goes away between the game ending and the claim.
	s.Engine.Close()
	if _, err := s.ClaimGame(5); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("claim on closed engine err = %v", err)
	}
	if g.State().Claimed {
		t.Error("a failed claim should leave the score claimable")
	}
}

// ─── Manager ────────────────────────────────────────────────────────────────

func TestManager_Capacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 2
	m, _, _ := newTestManager(t, cfg)
	ctx := context.Background()

	a, err := m.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx); !errors.Is(err, domain.ErrTooManySessions) {
		t.Fatalf("third Create err = %v", err)
	}

	if err := m.Close(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx, a.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("double Close err = %v", err)
	}
	if _, err := m.Create(ctx); err != nil {
		t.Errorf("Create after Close: %v", err)
	}
	if len(m.IDs()) != 2 {
		t.Errorf("IDs = %v", m.IDs())
	}
}

func TestManager_GetUnknown(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())
	if _, err := m.Get("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_ReapIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 30 * time.Minute
	m, fc, j := newTestManager(t, cfg)
	ctx := context.Background()

	idle, _ := m.Create(ctx)
	busy, _ := m.Create(ctx)

	fc.Advance(20 * time.Minute)
	if _, err := m.Get(busy.ID); err != nil {
		t.Fatal(err)
	}
	fc.Advance(15 * time.Minute)

	if n := m.ReapIdle(ctx); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("idle session still present: %v", err)
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Errorf("busy session reaped: %v", err)
	}
	if finished, ok := j.closed[idle.ID]; !ok || finished {
		t.Errorf("journal close for reaped session = %v, %v", finished, ok)
	}
}

func TestManager_CloseCancelsTimers(t *testing.T) {
	m, fc, _ := newTestManager(t, DefaultConfig())
	ctx := context.Background()
	s, _ := m.Create(ctx)

	if err := s.Watch(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Evaluate(1, true); err != nil {
		t.Fatal(err)
	}
	if fc.Pending() == 0 {
		t.Fatal("expected a pending reward display timer")
	}
	if err := m.Close(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if fc.Pending() != 0 {
		t.Errorf("pending = %d after Close, want 0", fc.Pending())
	}
}

func TestNewManager_RejectsBadCatalog(t *testing.T) {
	if _, err := NewManager(DefaultConfig(), nil, funnel.DefaultSettings(), Deps{}); !errors.Is(err, domain.ErrEmptyCatalog) {
		t.Errorf("err = %v, want ErrEmptyCatalog", err)
	}
}
