package games

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

const (
	builderTick      = time.Second
	builderDuration  = 60 // seconds
	builderCoins     = 100
	builderClearance = 30.0 // minimum distance on each axis between buildings
)

// BuildingType is an entry in the construction menu.
type BuildingType struct {
	Kind   string `json:"kind"`
	Emoji  string `json:"emoji"`
	Cost   int    `json:"cost"`
	Points int    `json:"points"`
}

// BuildingTypes is the island's construction menu.
var BuildingTypes = []BuildingType{
	{Kind: "house", Emoji: "🏠", Cost: 20, Points: 10},
	{Kind: "house", Emoji: "🏡", Cost: 30, Points: 15},
	{Kind: "tree", Emoji: "🌳", Cost: 15, Points: 8},
	{Kind: "tree", Emoji: "🌲", Cost: 18, Points: 10},
	{Kind: "decoration", Emoji: "⛲", Cost: 25, Points: 12},
	{Kind: "decoration", Emoji: "🗿", Cost: 35, Points: 18},
}

// Building is a placed structure.
type Building struct {
	ID    int     `json:"id"`
	Kind  string  `json:"kind"`
	Emoji string  `json:"emoji"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// BuilderView is the island builder's game-specific state.
type BuilderView struct {
	Coins     int            `json:"coins"`
	TimeLeft  int            `json:"time_left"`
	Selected  string         `json:"selected,omitempty"`
	Buildings []Building     `json:"buildings"`
	Menu      []BuildingType `json:"menu"`
}

// Builder places buildings on an island against a 60 second clock.
// Score is the sum of building points.
type Builder struct {
	base
	coins     int
	timeLeft  int
	selected  string
	buildings []Building
	points    int
}

func newBuilder(loop *clock.Loop, rng *rand.Rand) *Builder {
	b := &Builder{base: newBase(reward.GameBuilder, loop, rng)}
	b.clear()
	return b
}

func (b *Builder) clear() {
	b.coins = builderCoins
	b.timeLeft = builderDuration
	b.selected = ""
	b.buildings = nil
	b.points = 0
}

func (b *Builder) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.startLocked(); err != nil {
		return err
	}
	b.clear()
	b.every(builderTick, b.tick)
	return nil
}

// tick pays income and counts the clock down.
func (b *Builder) tick() bool {
	b.coins += len(b.buildings)/2 + 1
	b.timeLeft--
	if b.timeLeft <= 0 {
		b.timeLeft = 0
		b.finish()
		return false
	}
	return true
}

func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halt()
	b.phase = PhaseIdle
	b.clear()
}

// Act supports "select" (args.Item is an emoji from the menu) and "place"
// (at args.X, args.Y, using args.Item or the current selection).
func (b *Builder) Act(action string, args Args) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch action {
	case "select", "place":
	default:
		return unknownAction(b.name, action)
	}
	if err := b.requireRunning(); err != nil {
		return err
	}

	if action == "select" {
		if _, ok := buildingType(args.Item); !ok {
			return fmt.Errorf("%w: unknown building %q", domain.ErrActionUnavailable, args.Item)
		}
		b.selected = args.Item
		return nil
	}

	item := args.Item
	if item == "" {
		item = b.selected
	}
	bt, ok := buildingType(item)
	if !ok {
		return fmt.Errorf("%w: no building selected", domain.ErrActionUnavailable)
	}
	if b.coins < bt.Cost {
		return domain.ErrInsufficientCoins
	}
	if b.occupied(args.X, args.Y) {
		return domain.ErrSpotOccupied
	}

	b.buildings = append(b.buildings, Building{
		ID:    len(b.buildings) + 1,
		Kind:  bt.Kind,
		Emoji: bt.Emoji,
		X:     args.X,
		Y:     args.Y,
	})
	b.coins -= bt.Cost
	b.points += bt.Points
	b.selected = ""
	return nil
}

func (b *Builder) occupied(x, y float64) bool {
	for _, bl := range b.buildings {
		if math.Abs(bl.X-x) < builderClearance && math.Abs(bl.Y-y) < builderClearance {
			return true
		}
	}
	return false
}

func buildingType(emoji string) (BuildingType, bool) {
	for _, bt := range BuildingTypes {
		if bt.Emoji == emoji {
			return bt, true
		}
	}
	return BuildingType{}, false
}

func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	buildings := make([]Building, len(b.buildings))
	copy(buildings, b.buildings)
	return b.stateLocked(float64(b.points), BuilderView{
		Coins:     b.coins,
		TimeLeft:  b.timeLeft,
		Selected:  b.selected,
		Buildings: buildings,
		Menu:      BuildingTypes,
	})
}

func (b *Builder) Claim() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.claimLocked(float64(b.points))
}

var _ Game = (*Builder)(nil)
