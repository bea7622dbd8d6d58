package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avalia-ganha/avalia/internal/api"
	"github.com/avalia-ganha/avalia/internal/app/session"
	"github.com/avalia-ganha/avalia/internal/app/walkthrough"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/health"
	asyncjournal "github.com/avalia-ganha/avalia/internal/infra/journal"
	_ "github.com/avalia-ganha/avalia/internal/infra/metrics" // Register Prometheus metrics
	"github.com/avalia-ganha/avalia/internal/infra/postgres"
	"github.com/avalia-ganha/avalia/internal/infra/ratelimit"
	"github.com/avalia-ganha/avalia/internal/infra/sqlite"
)

// limiterIdle is how long a client's rate bucket survives without requests.
const limiterIdle = 10 * time.Minute

// Daemon is the funnel runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Version  string
	Journal  domain.Journal
	Sessions *session.Manager
	Health   *health.Checker
	Limiter  *ratelimit.Limiter
	Server   *api.Server

	logCloser io.Closer
	cancel    context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New(version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg, version)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, version string) (*Daemon, error) {
	d := &Daemon{Config: cfg, Version: version}

	closer, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	d.logCloser = closer

	catalog, err := cfg.Catalog()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	settings, err := cfg.FunnelSettings()
	if err != nil {
		d.Close()
		return nil, err
	}
	handoff, err := cfg.Handoff()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("offer: %w", err)
	}

	store, err := OpenJournal(cfg.Storage)
	if err != nil {
		d.Close()
		return nil, err
	}
	// Engines write events under their session lock; the queue keeps a slow
	// database off that path.
	journal := asyncjournal.NewAsync(store, asyncjournal.DefaultQueueSize, asyncjournal.DefaultWriteTimeout)
	d.Journal = journal

	deps := session.Deps{
		Journal: journal,
		Handoff: handoff,
	}
	if cfg.Funnel.ResolveThumbnails {
		deps.Thumbnails = walkthrough.NewThumbnails(cfg.Funnel.ThumbnailHost)
	}
	mgr, err := session.NewManager(cfg.SessionLimits(), catalog, settings, deps)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("session manager: %w", err)
	}
	d.Sessions = mgr

	d.Health = health.NewChecker(journal, mgr, cfg.Storage.Dir)
	d.Health.SetInterval(parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval))

	srv := api.NewServer(mgr, version)
	srv.SetHealth(d.Health)
	if cfg.Server.WebDir != "" {
		srv.SetWebDir(cfg.Server.WebDir)
	}
	if cfg.Server.RateLimitRPS > 0 {
		d.Limiter = ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		srv.SetLimiter(d.Limiter)
	}
	if r, ok := store.(domain.Reporter); ok {
		srv.SetReporter(r)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// OpenJournal opens the event journal selected by storage.driver.
func OpenJournal(cfg StorageConfig) (domain.Journal, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(avaliaHome(), "data")
		}
		db, err := sqlite.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for driver %q", cfg.Driver)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		j, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return j, nil
	case DriverNone:
		return domain.NopJournal{}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Sessions.Reaper(ctx)
	go d.Health.Run(ctx)
	if d.Limiter != nil {
		go d.pruneLimiter(ctx)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     d.Server.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
		// No WriteTimeout: event streams stay open for the whole session.
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Printf("[daemon] shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Ending sessions first closes their event streams.
		d.Sessions.Shutdown(shutdownCtx)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("Avalia serving on http://%s\n", addr)
	fmt.Printf("  Storage: %s\n", d.Config.Storage.Driver)
	fmt.Printf("  Offer:   %s\n", d.Sessions.Handoff().Environment())
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		cancel()
		return err
	}
	<-done
	return nil
}

func (d *Daemon) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Limiter.Prune(limiterIdle)
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Sessions != nil {
		d.Sessions.Shutdown(context.Background())
	}
	if d.Journal != nil {
		// Draining the queue also closes the store.
		if err := d.Journal.Close(); err != nil {
			log.Printf("[daemon] journal close: %v", err)
		}
	}
	if d.logCloser != nil {
		log.SetOutput(os.Stderr)
		_ = d.logCloser.Close()
	}
}
