// Package session owns the live funnel sessions. Each session is one engine
// plus the mini-experiences bound to its tasks: a game per game task, a video
// per video task and an app walkthrough per app task.
package session

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/avalia-ganha/avalia/internal/app/funnel"
	"github.com/avalia-ganha/avalia/internal/app/games"
	"github.com/avalia-ganha/avalia/internal/app/offer"
	"github.com/avalia-ganha/avalia/internal/app/walkthrough"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// Session is one visitor's funnel.
type Session struct {
	ID      string
	Engine  *funnel.Engine
	Created time.Time

	handoff *offer.Handoff
	games   map[int]games.Game
	videos  map[int]*walkthrough.Video
	apps    map[int]*walkthrough.App

	mu       sync.Mutex
	opened   map[int]bool
	lastUsed time.Time
	closed   bool
}

// ─── Mini-experience Access ─────────────────────────────────────────────────

// Game returns the game bound to a game task.
func (s *Session) Game(taskID int) (games.Game, error) {
	g, ok := s.games[taskID]
	if !ok {
		return nil, s.kindError(taskID)
	}
	return g, nil
}

// Video returns the video bound to a video task.
func (s *Session) Video(taskID int) (*walkthrough.Video, error) {
	v, ok := s.videos[taskID]
	if !ok {
		return nil, s.kindError(taskID)
	}
	return v, nil
}

// App returns the walkthrough bound to an app task.
func (s *Session) App(taskID int) (*walkthrough.App, error) {
	a, ok := s.apps[taskID]
	if !ok {
		return nil, s.kindError(taskID)
	}
	return a, nil
}

// openApp starts the progress meter of an app task once.
func (s *Session) openApp(taskID int, a *walkthrough.App) {
	s.mu.Lock()
	first := !s.opened[taskID]
	s.opened[taskID] = true
	s.mu.Unlock()
	if first {
		a.Open()
	}
}

func (s *Session) kindError(taskID int) error {
	if _, err := s.Engine.Task(taskID); err != nil {
		return err
	}
	return domain.ErrWrongTaskKind
}

func (s *Session) requireActive(taskID int) error {
	if _, err := s.Engine.Task(taskID); err != nil {
		return err
	}
	snap := s.Engine.Snapshot()
	if snap.Finished {
		return domain.ErrFunnelFinished
	}
	if snap.Tasks[taskID-1].Completed {
		return domain.ErrTaskCompleted
	}
	if cur := snap.Current(); cur == nil || cur.ID != taskID {
		return fmt.Errorf("%w: task %d", domain.ErrTaskOutOfOrder, taskID)
	}
	return nil
}

// ─── Funnel Operations ──────────────────────────────────────────────────────

// Watch starts the video of the active video task and unlocks evaluation.
func (s *Session) Watch(taskID int) error {
	v, err := s.Video(taskID)
	if err != nil {
		return err
	}
	if err := s.Engine.MarkVideoWatched(taskID); err != nil {
		return err
	}
	v.Play()
	return nil
}

// Evaluate answers a video or app task. A rejected video goes back to its
// thumbnail.
func (s *Session) Evaluate(taskID int, approved bool) (domain.Award, error) {
	award, err := s.Engine.Evaluate(taskID, approved)
	if err != nil {
		return award, err
	}
	if award.Rejected {
		if v, ok := s.videos[taskID]; ok {
			v.Reset()
		}
		return award, nil
	}
	if a, ok := s.apps[taskID]; ok {
		a.Stop()
	}
	return award, nil
}

// GameAction drives the active task's game. "start" and "reset" map to the
// game lifecycle; anything else is a game action.
func (s *Session) GameAction(taskID int, action string, args games.Args) error {
	g, err := s.Game(taskID)
	if err != nil {
		return err
	}
	if err := s.requireActive(taskID); err != nil {
		return err
	}
	switch action {
	case "start":
		return g.Start()
	case "reset":
		g.Reset()
		return nil
	default:
		return g.Act(action, args)
	}
}

// ClaimGame turns the finished game's score into the task reward.
func (s *Session) ClaimGame(taskID int) (domain.Award, error) {
	g, err := s.Game(taskID)
	if err != nil {
		return domain.Award{}, err
	}
	if err := s.requireActive(taskID); err != nil {
		return domain.Award{}, err
	}
	score, err := g.Claim()
	if err != nil {
		return domain.Award{}, err
	}
	award, err := s.Engine.ReportScore(taskID, score)
	if err != nil {
		g.Release()
		return domain.Award{}, err
	}
	return award, nil
}

// AppAction drives the active task's app walkthrough. The first action starts
// the progress meter; "open" does only that.
func (s *Session) AppAction(taskID int, action, item string) error {
	a, err := s.App(taskID)
	if err != nil {
		return err
	}
	if err := s.requireActive(taskID); err != nil {
		return err
	}
	s.openApp(taskID, a)
	if action == "open" {
		return nil
	}
	return a.Act(action, item)
}

// Offer resolves the chosen plan once the funnel is finished.
func (s *Session) Offer(plan string) (offer.Result, error) {
	res, err := s.handoff.Choose(s.Engine.Snapshot(), plan)
	if err != nil {
		return res, err
	}
	s.Engine.Record(domain.Event{
		Type:   domain.EventOfferChosen,
		Amount: res.Balance,
		Detail: res.Plan,
	})
	return res, nil
}

// Close cancels every timer the session owns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Engine.Close()
	for _, g := range s.games {
		g.Stop()
	}
	for _, a := range s.apps {
		a.Stop()
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// bind creates the mini-experiences for every task in the catalog.
func bind(s *Session, tasks []domain.Task, sched clock.Scheduler, seed func() int64) error {
	for _, t := range tasks {
		switch t.Kind {
		case domain.KindGame:
			g, err := games.New(t.Game, sched, rand.New(rand.NewSource(seed())))
			if err != nil {
				return fmt.Errorf("task %d: %w", t.ID, err)
			}
			s.games[t.ID] = g
		case domain.KindVideo:
			s.videos[t.ID] = walkthrough.NewVideo(t.VideoID, t.VideoTitle)
		case domain.KindApp:
			a, err := walkthrough.NewApp(t.App, sched)
			if err != nil {
				return fmt.Errorf("task %d: %w", t.ID, err)
			}
			s.apps[t.ID] = a
		}
	}
	return nil
}

// resolveThumbnails upgrades video thumbnails in the background.
func resolveThumbnails(s *Session, th *walkthrough.Thumbnails) {
	for _, v := range s.videos {
		v := v
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			v.SetThumbnail(th.Resolve(ctx, v.State().VideoID))
		}()
	}
	if len(s.videos) > 0 {
		log.Printf("[session] %s: resolving %d thumbnails", s.ID, len(s.videos))
	}
}
