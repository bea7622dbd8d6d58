package games

import (
	"math"
	"math/rand"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

const (
	crashTick   = 100 * time.Millisecond
	crashStep   = 0.01
	crashBase   = 0.02 // crash chance per tick at 1.00x
	crashSlope  = 0.01 // extra chance per multiplier point above 1
	crashStake  = 10.0
	planeStartX = 10.0
	planeStartY = 80.0
	planeMaxX   = 85.0
	planeMinY   = 20.0
)

// CrashView is the crash game's game-specific state.
type CrashView struct {
	Multiplier      float64 `json:"multiplier"`
	FinalMultiplier float64 `json:"final_multiplier"`
	Crashed         bool    `json:"crashed"`
	CashedOut       bool    `json:"cashed_out"`
	Winnings        float64 `json:"winnings"`
	PlaneX          float64 `json:"plane_x"`
	PlaneY          float64 `json:"plane_y"`
}

// Crash climbs a multiplier until the player cashes out or the plane crashes.
// Score is the multiplier at cash-out, or zero after a crash.
type Crash struct {
	base
	multiplier float64
	final      float64
	crashed    bool
	cashedOut  bool
	x, y       float64
}

func newCrash(loop *clock.Loop, rng *rand.Rand) *Crash {
	c := &Crash{base: newBase(reward.GameCrash, loop, rng)}
	c.clear()
	return c
}

func (c *Crash) clear() {
	c.multiplier = 1
	c.final = 0
	c.crashed = false
	c.cashedOut = false
	c.x, c.y = planeStartX, planeStartY
}

func (c *Crash) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.startLocked(); err != nil {
		return err
	}
	c.clear()
	c.every(crashTick, c.climb)
	return nil
}

// climb runs once per tick: raise the multiplier, move the plane, maybe crash.
func (c *Crash) climb() bool {
	c.multiplier = math.Round((c.multiplier+crashStep)*100) / 100
	c.x = math.Min(c.x+2, planeMaxX)
	c.y = math.Max(c.y-1, planeMinY)

	threshold := crashBase + (c.multiplier-1)*crashSlope
	if c.rng.Float64() < threshold {
		c.crashed = true
		c.final = 0
		c.finish()
		return false
	}
	return true
}

func (c *Crash) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halt()
	c.phase = PhaseIdle
	c.clear()
}

func (c *Crash) Act(action string, _ Args) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if action != "cashout" {
		return unknownAction(c.name, action)
	}
	if err := c.requireRunning(); err != nil {
		return err
	}
	c.halt()
	c.cashedOut = true
	c.final = c.multiplier
	c.finish()
	return nil
}

func (c *Crash) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	var winnings float64
	if c.cashedOut {
		winnings = crashStake * c.final
	}
	return c.stateLocked(c.final, CrashView{
		Multiplier:      c.multiplier,
		FinalMultiplier: c.final,
		Crashed:         c.crashed,
		CashedOut:       c.cashedOut,
		Winnings:        winnings,
		PlaneX:          c.x,
		PlaneY:          c.y,
	})
}

func (c *Crash) Claim() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimLocked(c.final)
}

var _ Game = (*Crash)(nil)
