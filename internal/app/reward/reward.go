// Package reward converts mini-game scores into currency rewards.
// Every formula has the shape reward = max(floor, floor(scale * score)).
package reward

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/domain"
)

// Formula is a pure score -> currency function.
type Formula struct {
	Floor decimal.Decimal
	Scale decimal.Decimal
}

// Reward computes the reward for a score. Negative and non-finite scores
// count as zero.
func (f Formula) Reward(score float64) decimal.Decimal {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return f.Floor
	}
	s := decimal.NewFromFloat(score)
	if s.IsNegative() {
		s = decimal.Zero
	}
	scaled := s.Mul(f.Scale).Floor()
	return decimal.Max(f.Floor, scaled)
}

// Game names. These match the catalog's `game` field.
const (
	GameFlappy  = "flappy"
	GameBuilder = "builder"
	GameCrash   = "crash"
	GameTiger   = "tiger"
	GameSlot    = "slot"
)

var (
	// Flappy: +5 per pipe passed, minimum 30.
	Flappy = Formula{Floor: decimal.NewFromInt(30), Scale: decimal.NewFromInt(5)}
	// Builder: +2 per building point, minimum 30.
	Builder = Formula{Floor: decimal.NewFromInt(30), Scale: decimal.NewFromInt(2)}
	// Crash: +10 per multiplier point at cash-out, minimum 30.
	Crash = Formula{Floor: decimal.NewFromInt(30), Scale: decimal.NewFromInt(10)}
	// Tiger: one eighth of total winnings, minimum 50.
	Tiger = Formula{Floor: decimal.NewFromInt(50), Scale: decimal.NewFromFloat(0.125)}
	// Slot: the payout symbol's value is the reward.
	Slot = Formula{Floor: decimal.Zero, Scale: decimal.NewFromInt(1)}
)

var formulas = map[string]Formula{
	GameFlappy:  Flappy,
	GameBuilder: Builder,
	GameCrash:   Crash,
	GameTiger:   Tiger,
	GameSlot:    Slot,
}

// ByName returns the formula for a game.
func ByName(game string) (Formula, error) {
	f, ok := formulas[game]
	if !ok {
		return Formula{}, fmt.Errorf("%w: %q", domain.ErrUnknownGame, game)
	}
	return f, nil
}

// Names lists the games that have a formula.
func Names() []string {
	return []string{GameTiger, GameCrash, GameFlappy, GameBuilder, GameSlot}
}
