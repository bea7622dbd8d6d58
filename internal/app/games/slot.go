package games

import (
	"math/rand"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

const (
	slotTick  = 100 * time.Millisecond
	slotSpins = 20
)

var (
	slotSymbols = []string{"💰", "💎", "⭐", "🎯", "🔥", "💸"}
	slotPayouts = []float64{70, 50, 40, 60, 45, 55}
)

// SlotView is the classic slot's game-specific state.
type SlotView struct {
	Reels    [3]string `json:"reels"`
	Spinning bool      `json:"spinning"`
	Result   float64   `json:"result"`
}

// Slot is a single-spin three-reel machine. The final symbol's payout is the
// score.
type Slot struct {
	base
	reels    [3]string
	spinning bool
	ticks    int
	result   float64
}

func newSlot(loop *clock.Loop, rng *rand.Rand) *Slot {
	s := &Slot{base: newBase(reward.GameSlot, loop, rng)}
	s.clear()
	return s
}

func (s *Slot) clear() {
	s.reels = [3]string{slotSymbols[0], slotSymbols[1], slotSymbols[2]}
	s.spinning = false
	s.ticks = 0
	s.result = 0
}

func (s *Slot) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return err
	}
	s.clear()
	return nil
}

func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halt()
	s.phase = PhaseIdle
	s.clear()
}

func (s *Slot) Act(action string, _ Args) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if action != "spin" {
		return unknownAction(s.name, action)
	}
	if err := s.requireRunning(); err != nil {
		return err
	}
	if s.spinning {
		return domain.ErrActionUnavailable
	}
	s.spinning = true
	s.ticks = 0
	s.every(slotTick, s.roll)
	return nil
}

func (s *Slot) roll() bool {
	for i := range s.reels {
		s.reels[i] = slotSymbols[s.rng.Intn(len(slotSymbols))]
	}
	s.ticks++
	if s.ticks < slotSpins {
		return true
	}

	idx := s.rng.Intn(len(slotSymbols))
	s.reels = [3]string{slotSymbols[idx], slotSymbols[idx], slotSymbols[idx]}
	s.result = slotPayouts[idx]
	s.spinning = false
	s.finish()
	return false
}

func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(s.result, SlotView{
		Reels:    s.reels,
		Spinning: s.spinning,
		Result:   s.result,
	})
}

func (s *Slot) Claim() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimLocked(s.result)
}

var _ Game = (*Slot)(nil)
