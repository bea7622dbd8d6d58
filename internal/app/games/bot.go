package games

import (
	"errors"
	"fmt"
	"time"

	"github.com/avalia-ganha/avalia/internal/domain"
)

// Bot tuning.
const (
	botCrashTarget  = 1.5              // cash out at this multiplier
	botFlappyGiveUp = 20 * time.Second // stop flapping after this long
	botGrid         = 40.0             // builder placement spacing
	botGridCols     = 7
)

// Autoplay drives a running game to its end with a simple per-game strategy.
// advance moves simulated time forward; Autoplay never holds a game lock
// while calling it. It fails if the game is still running after limit.
func Autoplay(g Game, advance func(time.Duration), limit time.Duration) error {
	var (
		elapsed time.Duration
		placed  int
	)
	for {
		st := g.State()
		if st.Phase != PhaseRunning {
			return nil
		}
		if elapsed > limit {
			return fmt.Errorf("%s still running after %v", g.Name(), limit)
		}

		var step time.Duration
		var err error
		switch v := st.Detail.(type) {
		case TigerView:
			step = 100 * time.Millisecond
			if !v.Spinning && v.SpinsLeft > 0 && v.Credits >= v.Bet {
				err = g.Act("spin", Args{})
			}
		case CrashView:
			step = crashTick
			if !v.Crashed && !v.CashedOut && v.Multiplier >= botCrashTarget {
				err = g.Act("cashout", Args{})
			}
		case FlappyView:
			step = flappyTick
			if elapsed < botFlappyGiveUp && shouldFlap(v) {
				err = g.Act("jump", Args{})
			}
		case BuilderView:
			step = builderTick
			placed, err = build(g, v, placed)
		case SlotView:
			step = slotTick
			if !v.Spinning {
				err = g.Act("spin", Args{})
			}
		default:
			return fmt.Errorf("%w: no strategy for %s", domain.ErrUnknownGame, g.Name())
		}
		// the round may end between State and Act
		if err != nil && !errors.Is(err, domain.ErrActionUnavailable) &&
			!errors.Is(err, domain.ErrGameNotRunning) {
			return err
		}

		advance(step)
		elapsed += step
	}
}

// shouldFlap jumps when the bird is falling below the middle of the next gap.
func shouldFlap(v FlappyView) bool {
	target := flappyStartY
	for _, p := range v.Pipes {
		if p.X+flappyPipeW >= flappyBirdX {
			target = p.Gap + flappyPipeGap/2
			break
		}
	}
	return v.Velocity >= 0 && v.BirdY+flappyBirdSize/2 > target+flappyPipeGap/4
}

// build places the best affordable building on the next free grid spot.
func build(g Game, v BuilderView, placed int) (int, error) {
	best := -1
	for i, bt := range BuildingTypes {
		if bt.Cost > v.Coins {
			continue
		}
		if best < 0 || bt.Points*BuildingTypes[best].Cost > BuildingTypes[best].Points*bt.Cost {
			best = i
		}
	}
	if best < 0 {
		return placed, nil
	}
	for tries := 0; tries < 64; tries++ {
		x := botGrid/2 + botGrid*float64(placed%botGridCols)
		y := botGrid/2 + botGrid*float64(placed/botGridCols)
		placed++
		err := g.Act("place", Args{X: x, Y: y, Item: BuildingTypes[best].Emoji})
		if errors.Is(err, domain.ErrSpotOccupied) {
			continue
		}
		return placed, err
	}
	return placed, nil
}
