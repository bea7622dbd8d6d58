package games

import (
	"math"
	"math/rand"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// Tiger slot tuning.
const (
	tigerCredits       = 100
	tigerBet           = 10
	tigerMaxSpins      = 5
	tigerMultStep      = 0.5
	tigerMultCap       = 5.0
	tigerSpinTick      = 80 * time.Millisecond
	tigerSpinDuration  = 2500 * time.Millisecond
	tigerEndDelay      = 2000 * time.Millisecond
	tigerJackpotChance = 0.1
	tigerSymbol        = "🐅"
)

var tigerSymbols = []string{"🐅", "🦁", "🐆", "🐯", "💎", "👑", "🔥", "⚡"}

// Line payouts for three of a kind and for two adjacent matches.
var (
	tigerTriple = map[string]float64{
		"🐅": 1000, "🦁": 500, "🐆": 300, "🐯": 200,
		"💎": 400, "👑": 600, "🔥": 350, "⚡": 250,
	}
	tigerPair = map[string]float64{
		"🐅": 50, "🦁": 30, "🐆": 25, "🐯": 20,
		"💎": 40, "👑": 60, "🔥": 35, "⚡": 25,
	}
)

// TigerView is the tiger slot's game-specific state.
type TigerView struct {
	Reels      [3][3]string `json:"reels"` // [column][row]
	Credits    float64      `json:"credits"`
	Bet        float64      `json:"bet"`
	Winnings   float64      `json:"winnings"`
	LastWin    float64      `json:"last_win"`
	SpinsLeft  int          `json:"spins_left"`
	Multiplier float64      `json:"multiplier"`
	Spinning   bool         `json:"spinning"`
}

// Tiger is a 3x3 slot with a growing multiplier. Score is total winnings.
type Tiger struct {
	base
	reels      [3][3]string
	credits    float64
	winnings   float64
	lastWin    float64
	spins      int
	multiplier float64
	spinning   bool
	elapsed    time.Duration
}

func newTiger(loop *clock.Loop, rng *rand.Rand) *Tiger {
	t := &Tiger{base: newBase(reward.GameTiger, loop, rng)}
	t.clear()
	return t
}

func (t *Tiger) clear() {
	for c := range t.reels {
		for r := range t.reels[c] {
			t.reels[c][r] = tigerSymbol
		}
	}
	t.credits = tigerCredits
	t.winnings = 0
	t.lastWin = 0
	t.spins = 0
	t.multiplier = 1
	t.spinning = false
	t.elapsed = 0
}

func (t *Tiger) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.startLocked(); err != nil {
		return err
	}
	t.clear()
	return nil
}

func (t *Tiger) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halt()
	t.phase = PhaseIdle
	t.clear()
}

func (t *Tiger) Act(action string, _ Args) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if action != "spin" {
		return unknownAction(t.name, action)
	}
	if err := t.requireRunning(); err != nil {
		return err
	}
	if t.spinning || t.spins >= tigerMaxSpins || t.credits < tigerBet {
		return domain.ErrActionUnavailable
	}

	t.credits -= tigerBet
	t.spins++
	t.lastWin = 0
	t.spinning = true
	t.elapsed = 0

	// The spin pays with the multiplier in effect when it started.
	paying := t.multiplier
	t.multiplier = math.Min(t.multiplier+tigerMultStep, tigerMultCap)

	t.every(tigerSpinTick, func() bool {
		t.randomize()
		t.elapsed += tigerSpinTick
		if t.elapsed < tigerSpinDuration {
			return true
		}
		t.settle(paying)
		return false
	})
	return nil
}

func (t *Tiger) randomize() {
	for c := range t.reels {
		for r := range t.reels[c] {
			t.reels[c][r] = tigerSymbols[t.rng.Intn(len(tigerSymbols))]
		}
	}
}

// settle draws the final reels, pays the lines and schedules the end of the
// round when no spins remain.
func (t *Tiger) settle(multiplier float64) {
	t.randomize()
	if t.rng.Float64() < tigerJackpotChance {
		for c := range t.reels {
			t.reels[c][1] = tigerSymbol
		}
	}

	win := tigerLinesWin(t.reels) * multiplier
	t.credits += win
	t.winnings += win
	t.lastWin = win
	t.spinning = false

	if t.spins >= tigerMaxSpins || t.credits < tigerBet {
		t.once(tigerEndDelay, t.finish)
	}
}

// tigerLinesWin pays every row and pays a middle-row triple a second time.
func tigerLinesWin(reels [3][3]string) float64 {
	var win float64
	for row := 0; row < 3; row++ {
		a, b, c := reels[0][row], reels[1][row], reels[2][row]
		switch {
		case a == b && b == c:
			win += tigerTriple[a]
		case a == b:
			win += tigerPair[a]
		case b == c:
			win += tigerPair[b]
		}
	}
	if a, b, c := reels[0][1], reels[1][1], reels[2][1]; a == b && b == c {
		win += tigerTriple[a]
	}
	return win
}

func (t *Tiger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(t.winnings, TigerView{
		Reels:      t.reels,
		Credits:    t.credits,
		Bet:        tigerBet,
		Winnings:   t.winnings,
		LastWin:    t.lastWin,
		SpinsLeft:  tigerMaxSpins - t.spins,
		Multiplier: t.multiplier,
		Spinning:   t.spinning,
	})
}

func (t *Tiger) Claim() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claimLocked(t.winnings)
}

var _ Game = (*Tiger)(nil)
