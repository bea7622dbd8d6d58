// Package daemon manages the funnel service lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/app/funnel"
	"github.com/avalia-ganha/avalia/internal/app/offer"
	"github.com/avalia-ganha/avalia/internal/app/session"
	"github.com/avalia-ganha/avalia/internal/app/walkthrough"
	"github.com/avalia-ganha/avalia/internal/domain"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Funnel    FunnelConfig    `toml:"funnel"`
	Session   SessionConfig   `toml:"session"`
	Offer     OfferConfig     `toml:"offer"`
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host           string  `toml:"host"`
	Port           int     `toml:"port"`
	WebDir         string  `toml:"web_dir"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"` // 0 disables
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// FunnelConfig controls rewards, timings and the task catalog.
type FunnelConfig struct {
	CatalogFile       string             `toml:"catalog_file"` // YAML; empty uses the built-in catalog
	Ceiling           string             `toml:"ceiling"`
	RewardDisplay     string             `toml:"reward_display"`
	BonusDelay        string             `toml:"bonus_delay"`
	Bonuses           map[string]float64 `toml:"bonuses"` // trigger task id -> amount
	RejectPolicy      string             `toml:"reject_policy"`
	ThumbnailHost     string             `toml:"thumbnail_host"`
	ResolveThumbnails bool               `toml:"resolve_thumbnails"`
}

// SessionConfig bounds the live session table.
type SessionConfig struct {
	MaxSessions  int    `toml:"max_sessions"`
	IdleTimeout  string `toml:"idle_timeout"`
	ReapInterval string `toml:"reap_interval"`
}

// OfferConfig selects the checkout links handed to a finished funnel.
type OfferConfig struct {
	Environment   string     `toml:"environment"`
	RedirectDelay string     `toml:"redirect_delay"`
	Development   offer.URLs `toml:"development"`
	Production    offer.URLs `toml:"production"`
}

// StorageConfig selects the event journal backend.
type StorageConfig struct {
	Driver      string `toml:"driver"`
	Dir         string `toml:"dir"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"` // "debug" logs every funnel event
	File  string `toml:"file"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	homeDir := avaliaHome()
	urls := offer.DefaultURLs()
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Funnel: FunnelConfig{
			Ceiling:       "200.00",
			RewardDisplay: "2s",
			BonusDelay:    "1s",
			Bonuses: map[string]float64{
				"2": 15,
				"4": 25,
			},
			RejectPolicy:  string(funnel.RejectRetry),
			ThumbnailHost: walkthrough.DefaultThumbnailHost,
		},
		Session: SessionConfig{
			MaxSessions:  1000,
			IdleTimeout:  "30m",
			ReapInterval: "1m",
		},
		Offer: OfferConfig{
			Environment:   offer.EnvProduction,
			RedirectDelay: "500ms",
			Development:   urls[offer.EnvDevelopment],
			Production:    urls[offer.EnvProduction],
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Dir:    filepath.Join(homeDir, "data"),
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "avalia.log"),
		},
	}
}

// LoadConfig reads config from ~/.avalia/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path, falling back to defaults when the
// file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.avalia/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath is where LoadConfig and SaveConfig look.
func ConfigPath() string {
	return filepath.Join(avaliaHome(), "config.toml")
}

// ─── Derived Settings ───────────────────────────────────────────────────────

// FunnelSettings converts the [funnel] section into engine settings.
func (c Config) FunnelSettings() (funnel.Settings, error) {
	s := funnel.DefaultSettings()

	if c.Funnel.Ceiling != "" {
		ceiling, err := decimal.NewFromString(c.Funnel.Ceiling)
		if err != nil {
			return s, fmt.Errorf("funnel.ceiling: %w", err)
		}
		s.Ceiling = ceiling
	}
	s.RewardDisplay = parseDuration(c.Funnel.RewardDisplay, s.RewardDisplay)
	s.BonusDelay = parseDuration(c.Funnel.BonusDelay, s.BonusDelay)

	if c.Funnel.Bonuses != nil {
		s.Bonuses = make(map[int]decimal.Decimal, len(c.Funnel.Bonuses))
		for k, v := range c.Funnel.Bonuses {
			id, err := strconv.Atoi(k)
			if err != nil {
				return s, fmt.Errorf("funnel.bonuses: task id %q: %w", k, err)
			}
			s.Bonuses[id] = decimal.NewFromFloat(v)
		}
	}

	switch funnel.RejectPolicy(c.Funnel.RejectPolicy) {
	case "":
	case funnel.RejectRetry, funnel.RejectComplete:
		s.RejectPolicy = funnel.RejectPolicy(c.Funnel.RejectPolicy)
	default:
		return s, fmt.Errorf("funnel.reject_policy: unknown policy %q", c.Funnel.RejectPolicy)
	}

	s.Debug = c.Logging.Level == "debug"
	return s, nil
}

// Catalog loads the task catalog named by funnel.catalog_file.
func (c Config) Catalog() ([]domain.Task, error) {
	return funnel.LoadCatalog(c.Funnel.CatalogFile)
}

// SessionLimits converts the [session] section.
func (c Config) SessionLimits() session.Config {
	def := session.DefaultConfig()
	cfg := session.Config{
		MaxSessions:  c.Session.MaxSessions,
		IdleTimeout:  parseDuration(c.Session.IdleTimeout, def.IdleTimeout),
		ReapInterval: parseDuration(c.Session.ReapInterval, def.ReapInterval),
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	return cfg
}

// Handoff builds the offer hand-off for the configured environment.
func (c Config) Handoff() (*offer.Handoff, error) {
	sets := map[string]offer.URLs{
		offer.EnvDevelopment: c.Offer.Development,
		offer.EnvProduction:  c.Offer.Production,
	}
	return offer.New(c.Offer.Environment, sets,
		parseDuration(c.Offer.RedirectDelay, offer.DefaultRedirectDelay))
}

// avaliaHome returns the data directory.
func avaliaHome() string {
	if env := os.Getenv("AVALIA_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".avalia")
}

// AvaliaHome is exported for use by other packages.
func AvaliaHome() string {
	return avaliaHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
