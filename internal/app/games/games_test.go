package games

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// fixedSource makes every draw return the same value.
// Int63 = 1<<62 gives Float64() == 0.5; Int63 = 0 gives Float64() == 0.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (fixedSource) Seed(int64) {}

// spinTime covers a whole tiger spin: the reels settle on the first tick at
// or past the spin duration.
const spinTime = tigerSpinDuration + tigerSpinTick

func newGame(t *testing.T, name string, rng *rand.Rand) (Game, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	if rng == nil {
		rng = rand.New(rand.NewSource(7))
	}
	g, err := New(name, fc, rng)
	if err != nil {
		t.Fatalf("New(%q): %v", name, err)
	}
	return g, fc
}

func TestNew_UnknownGame(t *testing.T) {
	if _, err := New("roulette", clock.NewFake(time.Now()), nil); !errors.Is(err, domain.ErrUnknownGame) {
		t.Errorf("err = %v, want ErrUnknownGame", err)
	}
}

func TestNew_EveryFormulaHasAGame(t *testing.T) {
	for _, name := range reward.Names() {
		g, _ := newGame(t, name, nil)
		if g.Name() != name {
			t.Errorf("Name() = %q, want %q", g.Name(), name)
		}
		if st := g.State(); st.Phase != PhaseIdle {
			t.Errorf("%s starts in phase %s", name, st.Phase)
		}
	}
}

func TestGame_CommonContract(t *testing.T) {
	for _, name := range reward.Names() {
		t.Run(name, func(t *testing.T) {
			g, _ := newGame(t, name, nil)
			if err := g.Act("dance", Args{}); !errors.Is(err, domain.ErrUnknownAction) {
				t.Errorf("unknown action err = %v", err)
			}
			if _, err := g.Claim(); !errors.Is(err, domain.ErrGameNotOver) {
				t.Errorf("early Claim err = %v, want ErrGameNotOver", err)
			}
			if err := g.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if err := g.Start(); !errors.Is(err, domain.ErrGameRunning) {
				t.Errorf("second Start err = %v, want ErrGameRunning", err)
			}
			g.Stop()
		})
	}
}

// ─── Tiger ──────────────────────────────────────────────────────────────────

func TestTigerLinesWin(t *testing.T) {
	all := func(s string) [3][3]string {
		return [3][3]string{{s, s, s}, {s, s, s}, {s, s, s}}
	}
	tests := []struct {
		name  string
		reels [3][3]string
		want  float64
	}{
		{"all tigers pays middle twice", all("🐅"), 4000},
		{"all crowns", all("👑"), 2400},
		{"nothing", [3][3]string{{"🐅", "💎", "🔥"}, {"🦁", "⚡", "🐯"}, {"🐆", "👑", "💎"}}, 0},
		{"left pair on top row", [3][3]string{{"💎", "🐅", "🔥"}, {"💎", "⚡", "🐯"}, {"🐆", "👑", "🐅"}}, 40},
		{"right pair on bottom row", [3][3]string{{"🐅", "🦁", "🔥"}, {"🦁", "⚡", "👑"}, {"🐆", "🐯", "👑"}}, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tigerLinesWin(tt.reels); got != tt.want {
				t.Errorf("tigerLinesWin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTiger_FullRound(t *testing.T) {
	g, fc := newGame(t, reward.GameTiger, nil)
	tiger := g.(*Tiger)
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}

	paying := 1.0
	for spin := 1; spin <= tigerMaxSpins; spin++ {
		before := g.State().Detail.(TigerView)
		if err := g.Act("spin", Args{}); err != nil {
			t.Fatalf("spin %d: %v", spin, err)
		}
		if err := g.Act("spin", Args{}); !errors.Is(err, domain.ErrActionUnavailable) {
			t.Fatalf("spin while spinning err = %v", err)
		}
		fc.Advance(spinTime)

		view := g.State().Detail.(TigerView)
		if view.Spinning {
			t.Fatalf("spin %d still spinning after %v", spin, spinTime)
		}
		if want := tigerLinesWin(view.Reels) * paying; view.LastWin != want {
			t.Errorf("spin %d: last win %v, want %v", spin, view.LastWin, want)
		}
		if want := before.Credits - tigerBet + view.LastWin; view.Credits != want {
			t.Errorf("spin %d: credits %v, want %v", spin, view.Credits, want)
		}
		paying = min(paying+tigerMultStep, tigerMultCap)
	}

	if err := g.Act("spin", Args{}); !errors.Is(err, domain.ErrActionUnavailable) {
		t.Errorf("sixth spin err = %v", err)
	}
	if g.State().Phase != PhaseRunning {
		t.Fatal("round should end only after the end delay")
	}
	fc.Advance(tigerEndDelay)
	if g.State().Phase != PhaseOver {
		t.Fatal("round should be over")
	}

	score, err := g.Claim()
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if score != tiger.winnings {
		t.Errorf("score = %v, want winnings %v", score, tiger.winnings)
	}
	if _, err := g.Claim(); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second Claim err = %v", err)
	}
	if err := g.Start(); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("Start after claim err = %v", err)
	}

	g.Release()
	if again, err := g.Claim(); err != nil || again != score {
		t.Errorf("Claim after Release = %v, %v; want %v", again, err, score)
	}
}

func TestTiger_AllTigersJackpot(t *testing.T) {
	// A fixed source draws symbol 0 on every reel.
	g, fc := newGame(t, reward.GameTiger, rand.New(fixedSource{v: 1 << 62}))
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < tigerMaxSpins; i++ {
		if err := g.Act("spin", Args{}); err != nil {
			t.Fatal(err)
		}
		fc.Advance(spinTime)
	}
	fc.Advance(tigerEndDelay)

	score, err := g.Claim()
	if err != nil {
		t.Fatal(err)
	}
	// 4000 per spin at multipliers 1, 1.5, 2, 2.5, 3.
	if score != 40000 {
		t.Errorf("score = %v, want 40000", score)
	}
	if got := reward.Tiger.Reward(score).IntPart(); got != 5000 {
		t.Errorf("reward = %d, want 5000", got)
	}
}

func TestTiger_ResetCancelsSpin(t *testing.T) {
	g, fc := newGame(t, reward.GameTiger, nil)
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	if err := g.Act("spin", Args{}); err != nil {
		t.Fatal(err)
	}
	fc.Advance(500 * time.Millisecond)
	g.Reset()
	fc.Advance(5 * time.Second)

	st := g.State()
	view := st.Detail.(TigerView)
	if st.Phase != PhaseIdle || view.Spinning || view.Credits != tigerCredits {
		t.Errorf("after reset: phase %s spinning %v credits %v", st.Phase, view.Spinning, view.Credits)
	}
	for _, col := range view.Reels {
		for _, s := range col {
			if s != tigerSymbol {
				t.Fatalf("reels changed after reset: %v", view.Reels)
			}
		}
	}
	if fc.Pending() != 0 {
		t.Errorf("pending = %d, want 0", fc.Pending())
	}
}

// ─── Crash ──────────────────────────────────────────────────────────────────

func TestCrash_CashOut(t *testing.T) {
	g, fc := newGame(t, reward.GameCrash, rand.New(fixedSource{v: 1 << 62}))
	if err := g.Act("cashout", Args{}); !errors.Is(err, domain.ErrGameNotRunning) {
		t.Errorf("cashout before start err = %v", err)
	}
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Advance(5 * crashTick)
	if err := g.Act("cashout", Args{}); err != nil {
		t.Fatalf("cashout: %v", err)
	}
	fc.Advance(time.Second)

	view := g.State().Detail.(CrashView)
	if view.FinalMultiplier != 1.05 || !view.CashedOut {
		t.Errorf("view = %+v, want cashed out at 1.05", view)
	}
	score, err := g.Claim()
	if err != nil || score != 1.05 {
		t.Fatalf("Claim = %v, %v", score, err)
	}
	if fc.Pending() != 0 {
		t.Errorf("loop still scheduled after cash-out")
	}
}

func TestCrash_Crashes(t *testing.T) {
	g, fc := newGame(t, reward.GameCrash, rand.New(fixedSource{v: 0}))
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Advance(crashTick)

	st := g.State()
	if st.Phase != PhaseOver || !st.Detail.(CrashView).Crashed {
		t.Fatalf("state = %+v, want crashed", st)
	}
	if err := g.Act("cashout", Args{}); !errors.Is(err, domain.ErrGameNotRunning) {
		t.Errorf("cashout after crash err = %v", err)
	}
	score, _ := g.Claim()
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
	if got := reward.Crash.Reward(score).IntPart(); got != 30 {
		t.Errorf("reward = %d, want floor 30", got)
	}
}

// ─── Flappy ─────────────────────────────────────────────────────────────────

func TestFlappy_JumpAndFall(t *testing.T) {
	g, fc := newGame(t, reward.GameFlappy, nil)
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	if err := g.Act("jump", Args{}); err != nil {
		t.Fatal(err)
	}
	fc.Advance(flappyTick)
	view := g.State().Detail.(FlappyView)
	if view.BirdY != flappyStartY+flappyJump {
		t.Errorf("bird y = %v, want %v", view.BirdY, flappyStartY+flappyJump)
	}

	// Without further jumps gravity drops the bird out of the world.
	fc.Advance(2 * time.Second)
	st := g.State()
	if st.Phase != PhaseOver {
		t.Fatalf("phase = %s, want over", st.Phase)
	}
	if err := g.Act("jump", Args{}); !errors.Is(err, domain.ErrGameNotRunning) {
		t.Errorf("jump after game over err = %v", err)
	}
	if fc.Pending() != 0 {
		t.Errorf("pending = %d, want 0", fc.Pending())
	}
}

func TestFlappy_PassingScores(t *testing.T) {
	f := newFlappy(clock.NewLoop(clock.NewFake(time.Now())), rand.New(rand.NewSource(1)))
	f.phase = PhaseRunning
	f.birdY = 150
	f.pipes = []Pipe{{X: -15, Gap: 100}}

	if !f.step() {
		t.Fatal("bird inside the gap should survive")
	}
	if f.score != 1 || !f.pipes[0].Passed {
		t.Errorf("score = %d, want 1", f.score)
	}
}

func TestCollides(t *testing.T) {
	p := Pipe{X: 40, Gap: 100}
	if collides(150, p) {
		t.Error("bird inside the gap collided")
	}
	if !collides(90, p) {
		t.Error("bird above the gap did not collide")
	}
	if !collides(210, p) {
		t.Error("bird below the gap did not collide")
	}
	if collides(0, Pipe{X: 200, Gap: 100}) {
		t.Error("distant pipe collided")
	}
}

// ─── Builder ────────────────────────────────────────────────────────────────

func TestBuilder_Placement(t *testing.T) {
	g, fc := newGame(t, reward.GameBuilder, nil)
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}

	if err := g.Act("place", Args{X: 100, Y: 100}); !errors.Is(err, domain.ErrActionUnavailable) {
		t.Errorf("place without selection err = %v", err)
	}
	if err := g.Act("select", Args{Item: "🏠"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Act("place", Args{X: 100, Y: 100}); err != nil {
		t.Fatalf("place house: %v", err)
	}
	if err := g.Act("place", Args{X: 120, Y: 110, Item: "🌳"}); !errors.Is(err, domain.ErrSpotOccupied) {
		t.Errorf("crowded spot err = %v", err)
	}
	if err := g.Act("place", Args{X: 200, Y: 100, Item: "🗿"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Act("place", Args{X: 300, Y: 100, Item: "🗿"}); err != nil {
		t.Fatal(err)
	}
	// 100 - 20 - 35 - 35 = 10 coins left.
	if err := g.Act("place", Args{X: 400, Y: 100, Item: "🏡"}); !errors.Is(err, domain.ErrInsufficientCoins) {
		t.Errorf("expensive building err = %v", err)
	}

	view := g.State().Detail.(BuilderView)
	if view.Coins != 10 || len(view.Buildings) != 3 {
		t.Errorf("coins %d buildings %d, want 10 and 3", view.Coins, len(view.Buildings))
	}

	fc.Advance(builderTick)
	if got := g.State().Detail.(BuilderView).Coins; got != 12 {
		t.Errorf("coins after one tick = %d, want 12", got)
	}

	fc.Advance(time.Duration(builderDuration) * builderTick)
	st := g.State()
	if st.Phase != PhaseOver || st.Detail.(BuilderView).TimeLeft != 0 {
		t.Fatalf("phase %s, want over", st.Phase)
	}
	score, err := g.Claim()
	if err != nil || score != 46 {
		t.Errorf("Claim = %v, %v; want 46", score, err)
	}
	if got := reward.Builder.Reward(score).IntPart(); got != 92 {
		t.Errorf("reward = %d, want 92", got)
	}
}

// ─── Slot ───────────────────────────────────────────────────────────────────

func TestSlot_Spin(t *testing.T) {
	g, fc := newGame(t, reward.GameSlot, nil)
	if err := g.Act("spin", Args{}); !errors.Is(err, domain.ErrGameNotRunning) {
		t.Errorf("spin before start err = %v", err)
	}
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	if err := g.Act("spin", Args{}); err != nil {
		t.Fatal(err)
	}
	fc.Advance((slotSpins - 1) * slotTick)
	if g.State().Phase != PhaseRunning {
		t.Fatal("slot finished early")
	}
	fc.Advance(slotTick)

	st := g.State()
	view := st.Detail.(SlotView)
	if st.Phase != PhaseOver || view.Spinning {
		t.Fatalf("state = %+v", st)
	}
	if view.Reels[0] != view.Reels[1] || view.Reels[1] != view.Reels[2] {
		t.Errorf("final reels differ: %v", view.Reels)
	}
	found := false
	for i, s := range slotSymbols {
		if s == view.Reels[0] && slotPayouts[i] == view.Result {
			found = true
		}
	}
	if !found {
		t.Errorf("result %v does not match symbol %s", view.Result, view.Reels[0])
	}
}

// ─── Autoplay ───────────────────────────────────────────────────────────────

func TestAutoplay_FinishesEveryGame(t *testing.T) {
	for _, name := range reward.Names() {
		t.Run(name, func(t *testing.T) {
			g, fc := newGame(t, name, nil)
			if err := g.Start(); err != nil {
				t.Fatal(err)
			}
			if err := Autoplay(g, fc.Advance, 5*time.Minute); err != nil {
				t.Fatalf("Autoplay: %v", err)
			}
			if g.State().Phase != PhaseOver {
				t.Fatalf("phase = %s, want over", g.State().Phase)
			}
			if _, err := g.Claim(); err != nil {
				t.Errorf("Claim: %v", err)
			}
		})
	}
}

func TestAutoplay_BuilderSpendsCoins(t *testing.T) {
	g, fc := newGame(t, reward.GameBuilder, nil)
	g.Start()
	if err := Autoplay(g, fc.Advance, 2*time.Minute); err != nil {
		t.Fatal(err)
	}
	v := g.State().Detail.(BuilderView)
	if len(v.Buildings) < 5 || g.State().Score <= 0 {
		t.Errorf("bot built %d buildings for %v points", len(v.Buildings), g.State().Score)
	}
}

func TestAutoplay_IdleGameReturnsAtOnce(t *testing.T) {
	g, fc := newGame(t, reward.GameSlot, nil)
	calls := 0
	err := Autoplay(g, func(d time.Duration) { calls++; fc.Advance(d) }, time.Minute)
	if err != nil || calls != 0 {
		t.Errorf("Autoplay on idle game = %v after %d steps", err, calls)
	}
}
