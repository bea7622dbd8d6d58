package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Funnel contract violations
	ErrTaskNotFound      = errors.New("task not found in catalog")
	ErrTaskOutOfOrder    = errors.New("task is not the active task")
	ErrTaskCompleted     = errors.New("task already completed")
	ErrFunnelFinished    = errors.New("funnel already finished")
	ErrInvalidReward     = errors.New("reward must not be negative")
	ErrVideoNotWatched   = errors.New("video must be played before evaluation")
	ErrNotAGameTask      = errors.New("task does not report a score")
	ErrWrongTaskKind     = errors.New("operation does not apply to this task kind")
	ErrFunnelNotFinished = errors.New("offer is only available after the last task")

	// Catalog errors
	ErrEmptyCatalog       = errors.New("catalog has no tasks")
	ErrCatalogOrder       = errors.New("catalog ids must be contiguous starting at 1")
	ErrInvalidTaskKind    = errors.New("invalid task kind")
	ErrNegativeBaseReward = errors.New("base reward must not be negative")

	// Mini-experience errors
	ErrUnknownGame       = errors.New("unknown game")
	ErrUnknownApp        = errors.New("unknown walkthrough app")
	ErrUnknownAction     = errors.New("unknown action")
	ErrGameNotRunning    = errors.New("game is not running")
	ErrGameRunning       = errors.New("game is already running")
	ErrGameNotOver       = errors.New("game has not ended yet")
	ErrAlreadyClaimed    = errors.New("result already claimed")
	ErrInsufficientCoins = errors.New("not enough coins")
	ErrSpotOccupied      = errors.New("spot already occupied")
	ErrActionUnavailable = errors.New("action not available right now")

	// Offer errors
	ErrUnknownPlan = errors.New("unknown subscription plan")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("maximum concurrent sessions reached")
)
