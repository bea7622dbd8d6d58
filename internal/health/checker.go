// Package health runs periodic checks against the journal, the session table
// and the data directory, with an optional recovery step per check.
package health

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/metrics"
)

// DefaultInterval is how often Run repeats the checks.
const DefaultInterval = 60 * time.Second

// capacityHeadroom is the share of the session cap that may be in use
// before the capacity check fails.
const capacityHeadroom = 0.9

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Recovered bool      `json:"recovered,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Sessions is the part of the session manager the checker watches.
type Sessions interface {
	Len() int
	Capacity() int
	ReapIdle(ctx context.Context) int
}

// Checker keeps the latest result of each check.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker for the journal, session capacity and data dir.
func NewChecker(journal domain.Journal, sessions Sessions, dataDir string) *Checker {
	return &Checker{
		interval: DefaultInterval,
		checks: []Check{
			{
				Name: "journal",
				CheckFn: func(ctx context.Context) error {
					ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
					defer cancel()
					return journal.Ping(ctx)
				},
			},
			{
				Name: "session_capacity",
				CheckFn: func(ctx context.Context) error {
					return checkCapacity(sessions.Len(), sessions.Capacity())
				},
				RecoverFn: func(ctx context.Context) error {
					if n := sessions.ReapIdle(ctx); n > 0 {
						log.Printf("[health] reaped %d idle sessions to free capacity", n)
					}
					return nil
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
			},
		},
	}
}

// SetInterval changes the period between runs. Non-positive values are ignored.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run checks once, then every interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		statuses[i] = runCheck(ctx, check)
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge(statuses[i].Healthy))
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// runCheck runs one check. A failing check with a recovery step is checked
// again once recovery succeeds.
func runCheck(ctx context.Context, check Check) Status {
	s := Status{Name: check.Name, CheckedAt: time.Now(), Healthy: true}

	err := check.CheckFn(ctx)
	if err == nil {
		return s
	}
	log.Printf("[health] %s: %v", check.Name, err)

	if check.RecoverFn != nil {
		if rerr := check.RecoverFn(ctx); rerr != nil {
			log.Printf("[health] %s: recovery failed: %v", check.Name, rerr)
		} else if err = check.CheckFn(ctx); err == nil {
			s.Recovered = true
			return s
		}
	}

	s.Healthy = false
	s.Error = err.Error()
	return s
}

func gauge(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// Statuses returns a copy of the last run's results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Status(nil), c.statuses...)
}

// IsHealthy reports whether the last run passed. True before the first run.
func (c *Checker) IsHealthy() bool {
	return len(c.Failing()) == 0
}

// Failing names the checks that failed on the last run.
func (c *Checker) Failing() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for _, s := range c.statuses {
		if !s.Healthy {
			names = append(names, s.Name)
		}
	}
	return names
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkCapacity(active, capacity int) error {
	if capacity <= 0 {
		return nil
	}
	if float64(active) >= float64(capacity)*capacityHeadroom {
		return fmt.Errorf("%d of %d sessions in use", active, capacity)
	}
	return nil
}

func checkDataDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // created on first write
		}
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}
