package games

import (
	"math/rand"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// Flappy world, in pixels per tick.
const (
	flappyTick     = 20 * time.Millisecond
	flappyGravity  = 0.6
	flappyJump     = -12.0
	flappyPipeW    = 60.0
	flappyPipeGap  = 120.0
	flappyBirdSize = 20.0
	flappyBirdX    = 50.0
	flappyHeight   = 300.0
	flappyWidth    = 320.0
	flappySpeed    = 3.0
	flappySpacing  = 200.0 // next pipe spawns once the last one is this far in
	flappyStartY   = 150.0
	flappyFirstGap = 100.0
)

// Pipe is one obstacle pair. Gap is the y of the opening's top edge.
type Pipe struct {
	X      float64 `json:"x"`
	Gap    float64 `json:"gap"`
	Passed bool    `json:"passed"`
}

// FlappyView is the flappy game's game-specific state.
type FlappyView struct {
	BirdY    float64 `json:"bird_y"`
	Velocity float64 `json:"velocity"`
	Pipes    []Pipe  `json:"pipes"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Flappy steers a bird through pipes. Score is pipes passed.
type Flappy struct {
	base
	birdY    float64
	velocity float64
	pipes    []Pipe
	score    int
}

func newFlappy(loop *clock.Loop, rng *rand.Rand) *Flappy {
	f := &Flappy{base: newBase(reward.GameFlappy, loop, rng)}
	f.birdY = flappyStartY
	return f
}

func (f *Flappy) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startLocked(); err != nil {
		return err
	}
	f.birdY = flappyStartY
	f.velocity = 0
	f.score = 0
	f.pipes = []Pipe{{X: flappyWidth, Gap: flappyFirstGap}}
	f.every(flappyTick, f.step)
	return nil
}

// step advances physics by one tick. Returns false once the bird hits
// something.
func (f *Flappy) step() bool {
	y := f.birdY + f.velocity
	if y <= 0 || y >= flappyHeight-flappyBirdSize {
		f.finish()
		return false
	}
	f.birdY = y
	f.velocity += flappyGravity

	for i := range f.pipes {
		f.pipes[i].X -= flappySpeed
	}
	if len(f.pipes) == 0 || f.pipes[len(f.pipes)-1].X < flappyWidth-flappySpacing {
		f.pipes = append(f.pipes, Pipe{X: flappyWidth, Gap: 80 + f.rng.Float64()*100})
	}

	kept := f.pipes[:0]
	hit := false
	for _, p := range f.pipes {
		if p.X+flappyPipeW < 0 {
			continue
		}
		if !p.Passed && p.X+flappyPipeW < flappyBirdX {
			p.Passed = true
			f.score++
		}
		if collides(f.birdY, p) {
			hit = true
		}
		kept = append(kept, p)
	}
	f.pipes = kept

	if hit {
		f.finish()
		return false
	}
	return true
}

// collides reports whether the bird overlaps a pipe outside its opening.
func collides(birdY float64, p Pipe) bool {
	if flappyBirdX+flappyBirdSize <= p.X || flappyBirdX >= p.X+flappyPipeW {
		return false
	}
	return birdY < p.Gap || birdY+flappyBirdSize > p.Gap+flappyPipeGap
}

func (f *Flappy) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halt()
	f.phase = PhaseIdle
	f.birdY = flappyStartY
	f.velocity = 0
	f.score = 0
	f.pipes = nil
}

func (f *Flappy) Act(action string, _ Args) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if action != "jump" {
		return unknownAction(f.name, action)
	}
	if err := f.requireRunning(); err != nil {
		return err
	}
	f.velocity = flappyJump
	return nil
}

func (f *Flappy) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	pipes := make([]Pipe, len(f.pipes))
	copy(pipes, f.pipes)
	return f.stateLocked(float64(f.score), FlappyView{
		BirdY:    f.birdY,
		Velocity: f.velocity,
		Pipes:    pipes,
		Width:    flappyWidth,
		Height:   flappyHeight,
	})
}

func (f *Flappy) Claim() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimLocked(float64(f.score))
}

var _ Game = (*Flappy)(nil)
