// Package games simulates the funnel's mini-games.
//
// Each game is a small state machine driven by exactly one clock.Loop, so
// starting a new animation always cancels the previous one. Randomness comes
// from an injected *rand.Rand and time from an injected clock.Scheduler, which
// makes every game deterministic under test.
package games

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// Phase is a game's lifecycle stage.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseOver    Phase = "over"
)

// State is the JSON view of a game. Detail is game specific.
type State struct {
	Game    string  `json:"game"`
	Phase   Phase   `json:"phase"`
	Score   float64 `json:"score"`
	Claimed bool    `json:"claimed"`
	Detail  any     `json:"detail,omitempty"`
}

// Args carries the optional parameters of an action.
type Args struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Item string  `json:"item,omitempty"`
}

// Game is one mini-game instance bound to a game task.
type Game interface {
	Name() string
	// Start begins a round. Fails with domain.ErrGameRunning while a round is live.
	Start() error
	// Reset cancels the loop and returns to idle. A claimed game stays claimed.
	Reset()
	// Act applies a player action such as "spin", "jump" or "cashout".
	Act(action string, args Args) error
	State() State
	// Claim returns the final score exactly once, after the round is over.
	Claim() (float64, error)
	// Release undoes a Claim whose score could not be redeemed.
	Release()
	// Stop cancels the loop without changing the phase.
	Stop()
}

// New creates the named game. A nil rng is seeded from the clock.
func New(name string, sched clock.Scheduler, rng *rand.Rand) (Game, error) {
	if sched == nil {
		sched = clock.Real{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(sched.Now().UnixNano()))
	}
	loop := clock.NewLoop(sched)

	switch name {
	case reward.GameTiger:
		return newTiger(loop, rng), nil
	case reward.GameCrash:
		return newCrash(loop, rng), nil
	case reward.GameFlappy:
		return newFlappy(loop, rng), nil
	case reward.GameBuilder:
		return newBuilder(loop, rng), nil
	case reward.GameSlot:
		return newSlot(loop, rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGame, name)
	}
}

// ─── Shared State ───────────────────────────────────────────────────────────

// base holds what every game has in common. Game methods hold mu for the
// whole call; loop callbacks take it themselves.
type base struct {
	mu      sync.Mutex
	name    string
	loop    *clock.Loop
	rng     *rand.Rand
	phase   Phase
	claimed bool
	epoch   uint64
}

func newBase(name string, loop *clock.Loop, rng *rand.Rand) base {
	return base{name: name, loop: loop, rng: rng, phase: PhaseIdle}
}

func (b *base) Name() string { return b.name }

// startLocked moves idle or finished games into a new round.
func (b *base) startLocked() error {
	if b.claimed {
		return domain.ErrAlreadyClaimed
	}
	if b.phase == PhaseRunning {
		return domain.ErrGameRunning
	}
	b.halt()
	b.phase = PhaseRunning
	return nil
}

// halt cancels the loop and invalidates ticks already in flight.
func (b *base) halt() {
	b.epoch++
	b.loop.Stop()
}

// every runs fn on the game's loop while the round that scheduled it is
// still current. fn runs under mu.
func (b *base) every(interval time.Duration, fn func() bool) {
	epoch := b.epoch
	b.loop.Start(interval, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		if epoch != b.epoch {
			return false
		}
		return fn()
	})
}

// once runs fn a single time after d, replacing any running loop.
func (b *base) once(d time.Duration, fn func()) {
	b.every(d, func() bool {
		fn()
		return false
	})
}

func (b *base) finish() {
	b.phase = PhaseOver
}

func (b *base) requireRunning() error {
	if b.phase != PhaseRunning {
		return domain.ErrGameNotRunning
	}
	return nil
}

func (b *base) claimLocked(score float64) (float64, error) {
	if b.claimed {
		return 0, domain.ErrAlreadyClaimed
	}
	if b.phase != PhaseOver {
		return 0, domain.ErrGameNotOver
	}
	b.claimed = true
	return score, nil
}

func (b *base) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claimed = false
}

func (b *base) stateLocked(score float64, detail any) State {
	return State{
		Game:    b.name,
		Phase:   b.phase,
		Score:   score,
		Claimed: b.claimed,
		Detail:  detail,
	}
}

func (b *base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halt()
}

func unknownAction(game, action string) error {
	return fmt.Errorf("%w: %s has no action %q", domain.ErrUnknownAction, game, action)
}
