// Package api provides the HTTP server for the funnel.
// It exposes sessions, tasks, mini-experiences, the offer hand-off and a
// Server-Sent Events feed per session.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avalia-ganha/avalia/internal/app/session"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/health"
	"github.com/avalia-ganha/avalia/internal/infra/ratelimit"
)

// requestTimeout bounds every route except the event stream.
const requestTimeout = 30 * time.Second

// Server is the funnel HTTP API server.
type Server struct {
	sessions       *session.Manager
	version        string
	metricsEnabled bool
	health         *health.Checker   // nil: /health always reports ok
	limiter        *ratelimit.Limiter // nil: no rate limiting
	reporter       domain.Reporter    // nil: /api/stats is not mounted
	webDir         string
}

// NewServer creates a new API server.
func NewServer(sessions *session.Manager, version string) *Server {
	return &Server{sessions: sessions, version: version}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported by /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetLimiter rate-limits mutating API calls.
func (s *Server) SetLimiter(l *ratelimit.Limiter) { s.limiter = l }

// SetReporter exposes journal totals on /api/stats.
func (s *Server) SetReporter(r domain.Reporter) { s.reporter = r }

// SetWebDir serves a presentation build from dir for all unmatched routes.
func (s *Server) SetWebDir(dir string) { s.webDir = dir }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		// Long-lived; kept out of the timeout group.
		r.Get("/sessions/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
			})
			r.Get("/catalog", s.handleCatalog)
			r.Get("/offer", s.handleOfferConfig)
			if s.reporter != nil {
				r.Get("/stats", s.handleStats)
			}

			r.Post("/sessions", s.handleCreateSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/offer", s.handleOffer)

				r.Route("/tasks/{taskID}", func(r chi.Router) {
					r.Post("/watch", s.handleWatch)
					r.Post("/evaluate", s.handleEvaluate)
					r.Post("/complete", s.handleComplete)
					r.Post("/score", s.handleScore)

					r.Get("/video", s.handleVideo)

					r.Get("/game", s.handleGame)
					r.Post("/game/claim", s.handleClaimGame)
					r.Post("/game/{action}", s.handleGameAction)

					r.Get("/app", s.handleApp)
					r.Post("/app/{action}", s.handleAppAction)
				})
			})
		})
	})

	webDir := s.webDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(webDir)))
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "avalia is running",
			})
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	failing := s.health.Failing()
	if len(failing) > 0 {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"failing": failing,
		"checks":  s.health.Statuses(),
	})
}

// findWebDir locates a presentation build in the usual places.
func findWebDir() string {
	candidates := []string{
		"web",
		"../web",
		"/app/web",
	}
	if home := os.Getenv("AVALIA_HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, "web"))
	}

	for _, dir := range candidates {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			if _, err := os.Stat(filepath.Join(dir, "index.html")); err == nil {
				return dir
			}
		}
	}
	return ""
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeErr maps a domain error to its status code.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrInvalidReward):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTaskOutOfOrder),
		errors.Is(err, domain.ErrTaskCompleted),
		errors.Is(err, domain.ErrFunnelFinished),
		errors.Is(err, domain.ErrFunnelNotFinished),
		errors.Is(err, domain.ErrVideoNotWatched),
		errors.Is(err, domain.ErrNotAGameTask),
		errors.Is(err, domain.ErrWrongTaskKind),
		errors.Is(err, domain.ErrGameNotRunning),
		errors.Is(err, domain.ErrGameRunning),
		errors.Is(err, domain.ErrGameNotOver),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrInsufficientCoins),
		errors.Is(err, domain.ErrSpotOccupied),
		errors.Is(err, domain.ErrActionUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

// corsMiddleware adds CORS headers so a separately hosted UI can call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
