package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/avalia-ganha/avalia/internal/app/funnel"
	"github.com/avalia-ganha/avalia/internal/app/games"
	"github.com/avalia-ganha/avalia/internal/app/offer"
	"github.com/avalia-ganha/avalia/internal/app/walkthrough"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
	"github.com/avalia-ganha/avalia/internal/infra/metrics"
)

// Config bounds the session table.
type Config struct {
	MaxSessions  int
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// DefaultConfig returns sensible limits for a single node.
func DefaultConfig() Config {
	return Config{
		MaxSessions:  1000,
		IdleTimeout:  30 * time.Minute,
		ReapInterval: time.Minute,
	}
}

// Deps are the manager's collaborators. Zero values fall back to real time,
// a discarding journal and the production offer URLs.
type Deps struct {
	Scheduler  clock.Scheduler
	Journal    domain.Journal
	Handoff    *offer.Handoff
	Thumbnails *walkthrough.Thumbnails // nil keeps the default thumbnail URLs
	Seed       func() int64            // per-game rng seeds
}

// Manager creates, finds and reaps sessions.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	catalog  []domain.Task
	settings funnel.Settings
	deps     Deps
	sessions map[string]*Session
}

// NewManager validates the catalog and returns an empty session table.
func NewManager(cfg Config, catalog []domain.Task, settings funnel.Settings, deps Deps) (*Manager, error) {
	if err := funnel.ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultConfig().ReapInterval
	}
	if deps.Scheduler == nil {
		deps.Scheduler = clock.Real{}
	}
	if deps.Journal == nil {
		deps.Journal = domain.NopJournal{}
	}
	if deps.Handoff == nil {
		h, err := offer.New(offer.EnvProduction, offer.DefaultURLs(), offer.DefaultRedirectDelay)
		if err != nil {
			return nil, err
		}
		deps.Handoff = h
	}
	if deps.Seed == nil {
		var n int64
		deps.Seed = func() int64 { return time.Now().UnixNano() + atomic.AddInt64(&n, 1) }
	}

	return &Manager{
		cfg:      cfg,
		catalog:  catalog,
		settings: settings,
		deps:     deps,
		sessions: make(map[string]*Session),
	}, nil
}

// Catalog returns a copy of the task catalog every session starts from.
func (m *Manager) Catalog() []domain.Task {
	out := make([]domain.Task, len(m.catalog))
	copy(out, m.catalog)
	return out
}

// Handoff returns the offer configuration shared by all sessions.
func (m *Manager) Handoff() *offer.Handoff { return m.deps.Handoff }

// Create starts a new session at task 1 with a zero balance.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, domain.ErrTooManySessions
	}
	m.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	sid := id.String()

	eng, err := funnel.New(sid, m.catalog, m.settings, m.deps.Scheduler, m.deps.Journal)
	if err != nil {
		return nil, err
	}
	now := m.deps.Scheduler.Now()
	s := &Session{
		ID:       sid,
		Engine:   eng,
		Created:  now,
		handoff:  m.deps.Handoff,
		games:    make(map[int]games.Game),
		videos:   make(map[int]*walkthrough.Video),
		apps:     make(map[int]*walkthrough.App),
		opened:   make(map[int]bool),
		lastUsed: now,
	}
	if err := bind(s, m.catalog, m.deps.Scheduler, m.deps.Seed); err != nil {
		eng.Close()
		return nil, err
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		s.Close()
		return nil, domain.ErrTooManySessions
	}
	m.sessions[sid] = s
	active := len(m.sessions)
	m.mu.Unlock()

	if err := m.deps.Journal.OpenSession(ctx, sid, len(m.catalog)); err != nil {
		metrics.JournalErrors.Inc()
		log.Printf("[session] journal open failed (ignored): %v", err)
	}
	if m.deps.Thumbnails != nil {
		resolveThumbnails(s, m.deps.Thumbnails)
	}

	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Set(float64(active))
	return s, nil
}

// Get returns a live session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	s.touch(m.deps.Scheduler.Now())
	return s, nil
}

// Close ends a session and cancels its timers.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	m.end(ctx, s)
	metrics.SessionsActive.Set(float64(active))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Capacity returns the session cap.
func (m *Manager) Capacity() int { return m.cfg.MaxSessions }

// IDs lists live session ids in creation order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

// ReapIdle closes sessions unused for longer than the idle timeout.
func (m *Manager) ReapIdle(ctx context.Context) int {
	now := m.deps.Scheduler.Now()

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.cfg.IdleTimeout {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		m.end(ctx, s)
	}
	if len(stale) > 0 {
		metrics.SessionsReaped.Add(float64(len(stale)))
		metrics.SessionsActive.Set(float64(active))
		log.Printf("[session] reaped %d idle sessions", len(stale))
	}
	return len(stale)
}

// Reaper runs in background, closing idle sessions until ctx ends.
func (m *Manager) Reaper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapIdle(ctx)
		}
	}
}

// Shutdown closes every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.end(ctx, s)
	}
	metrics.SessionsActive.Set(0)
}

func (m *Manager) end(ctx context.Context, s *Session) {
	finished := s.Engine.Finished()
	s.Close()
	if err := m.deps.Journal.CloseSession(ctx, s.ID, finished); err != nil {
		metrics.JournalErrors.Inc()
		log.Printf("[session] journal close failed (ignored): %v", err)
	}
}
