// Package funnel implements the task-progression and reward-accrual engine.
//
// An Engine owns one session's ordered tasks, current position and balance.
// Tasks complete strictly in id order; each accepted completion adds a clamped
// reward, shows it for a fixed duration, optionally raises a bonus, and then
// advances to the next task or finishes the funnel. Every state change is
// published as a domain.Event to subscribers and to the journal.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
	"github.com/avalia-ganha/avalia/internal/infra/metrics"
)

// RejectPolicy decides what a "reject" evaluation does.
type RejectPolicy string

const (
	// RejectRetry keeps the task active and resets its transient state.
	RejectRetry RejectPolicy = "retry"
	// RejectComplete treats reject exactly like approve.
	RejectComplete RejectPolicy = "complete"
)

// Settings are the engine's tunables.
type Settings struct {
	Ceiling       decimal.Decimal
	RewardDisplay time.Duration
	BonusDelay    time.Duration
	Bonuses       map[int]decimal.Decimal // trigger task id -> bonus amount
	RejectPolicy  RejectPolicy
	Debug         bool
}

// DefaultSettings returns the reference funnel behaviour.
func DefaultSettings() Settings {
	return Settings{
		Ceiling:       decimal.NewFromInt(200),
		RewardDisplay: 2000 * time.Millisecond,
		BonusDelay:    1000 * time.Millisecond,
		Bonuses: map[int]decimal.Decimal{
			2: decimal.NewFromInt(15),
			4: decimal.NewFromInt(25),
		},
		RejectPolicy: RejectRetry,
	}
}

const journalTimeout = 2 * time.Second

// Engine is one session's funnel state machine. Safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	id       string
	settings Settings
	sched    clock.Scheduler
	journal  domain.Journal

	tasks         []domain.Task
	current       int
	balance       decimal.Decimal
	rewardDisplay *decimal.Decimal
	bonus         *domain.PendingBonus
	bonusFired    map[int]bool
	videoWatched  bool

	timers  map[int]clock.Timer
	timerID int
	closed  bool
	subs    map[chan domain.Event]struct{}
}

// New creates an engine over a validated copy of tasks.
// A nil journal discards events.
func New(sessionID string, tasks []domain.Task, s Settings, sched clock.Scheduler, j domain.Journal) (*Engine, error) {
	if err := ValidateCatalog(tasks); err != nil {
		return nil, err
	}
	if s.Ceiling.IsNegative() {
		return nil, fmt.Errorf("balance ceiling must not be negative, got %s", s.Ceiling)
	}
	for id, amount := range s.Bonuses {
		if id < 1 || id > len(tasks) {
			return nil, fmt.Errorf("%w: bonus trigger %d", domain.ErrTaskNotFound, id)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("%w: bonus for task %d", domain.ErrInvalidReward, id)
		}
	}
	if s.RejectPolicy == "" {
		s.RejectPolicy = RejectRetry
	}
	if sched == nil {
		sched = clock.Real{}
	}
	if j == nil {
		j = domain.NopJournal{}
	}

	own := make([]domain.Task, len(tasks))
	copy(own, tasks)
	for i := range own {
		own[i].Completed = false
	}

	return &Engine{
		id:         sessionID,
		settings:   s,
		sched:      sched,
		journal:    j,
		tasks:      own,
		bonusFired: make(map[int]bool),
		timers:     make(map[int]clock.Timer),
		subs:       make(map[chan domain.Event]struct{}),
	}, nil
}

// ID returns the session id this engine belongs to.
func (e *Engine) ID() string { return e.id }

// Len returns the number of tasks.
func (e *Engine) Len() int { return len(e.tasks) }

// ─── Operations ─────────────────────────────────────────────────────────────

// CompleteTask completes the active task with its base reward.
func (e *Engine) CompleteTask(taskID int) (domain.Award, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.activeLocked(taskID)
	if err != nil {
		return domain.Award{}, err
	}
	return e.completeLocked(task, nil)
}

// CompleteTaskWithReward completes the active task with an explicit reward,
// as reported by a mini-experience that computes its own score.
func (e *Engine) CompleteTaskWithReward(taskID int, earned decimal.Decimal) (domain.Award, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.activeLocked(taskID)
	if err != nil {
		return domain.Award{}, err
	}
	return e.completeLocked(task, &earned)
}

// MarkVideoWatched unlocks evaluation of the active video task.
func (e *Engine) MarkVideoWatched(taskID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.activeLocked(taskID)
	if err != nil {
		return err
	}
	if task.Kind != domain.KindVideo {
		return e.violation(domain.ErrWrongTaskKind)
	}
	if e.videoWatched {
		return nil
	}
	e.videoWatched = true
	e.emit(domain.Event{Type: domain.EventVideoWatched, TaskID: taskID})
	return nil
}

// Evaluate answers a video or app walkthrough with approve or reject.
func (e *Engine) Evaluate(taskID int, approved bool) (domain.Award, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.activeLocked(taskID)
	if err != nil {
		return domain.Award{}, err
	}
	switch task.Kind {
	case domain.KindGame:
		return domain.Award{}, e.violation(domain.ErrWrongTaskKind)
	case domain.KindVideo:
		if !e.videoWatched {
			return domain.Award{}, e.violation(domain.ErrVideoNotWatched)
		}
	}

	if !approved && e.settings.RejectPolicy == RejectRetry {
		e.videoWatched = false
		metrics.TasksRejected.WithLabelValues(string(task.Kind)).Inc()
		e.emit(domain.Event{Type: domain.EventTaskRejected, TaskID: taskID})
		return domain.Award{TaskID: taskID, Balance: e.balance, Rejected: true}, nil
	}
	return e.completeLocked(task, nil)
}

// ReportScore completes the active game task, deriving the reward from the
// score with the task's game formula.
func (e *Engine) ReportScore(taskID int, score float64) (domain.Award, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.activeLocked(taskID)
	if err != nil {
		return domain.Award{}, err
	}
	if task.Kind != domain.KindGame {
		return domain.Award{}, e.violation(domain.ErrNotAGameTask)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return domain.Award{}, e.violation(domain.ErrInvalidReward)
	}
	f, err := reward.ByName(task.Game)
	if err != nil {
		return domain.Award{}, err
	}
	earned := f.Reward(score)
	return e.completeLocked(task, &earned)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Task returns a copy of a catalog entry.
func (e *Engine) Task(taskID int) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if taskID < 1 || taskID > len(e.tasks) {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return e.tasks[taskID-1], nil
}

// Finished reports whether every task has been completed and advanced past.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishedLocked()
}

// Balance returns the current balance.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// Record publishes an event that originates outside the engine (offer choice).
func (e *Engine) Record(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.emit(ev)
}

// Subscribe returns a buffered channel that receives every event.
func (e *Engine) Subscribe() chan domain.Event {
	ch := make(chan domain.Event, 64)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (e *Engine) Unsubscribe(ch chan domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[ch]; !ok {
		return
	}
	delete(e.subs, ch)
	close(ch)
}

// Close cancels every pending continuation and closes subscriber channels.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	for ch := range e.subs {
		delete(e.subs, ch)
		close(ch)
	}
}

// ─── Internals (caller holds e.mu) ──────────────────────────────────────────

func (e *Engine) activeLocked(taskID int) (*domain.Task, error) {
	if e.closed {
		return nil, domain.ErrSessionNotFound
	}
	if taskID < 1 || taskID > len(e.tasks) {
		return nil, e.violation(domain.ErrTaskNotFound)
	}
	if e.finishedLocked() {
		return nil, e.violation(domain.ErrFunnelFinished)
	}
	task := &e.tasks[taskID-1]
	if task.Completed {
		return nil, e.violation(domain.ErrTaskCompleted)
	}
	if taskID != e.current+1 {
		return nil, e.violation(fmt.Errorf("%w: got %d, active is %d", domain.ErrTaskOutOfOrder, taskID, e.current+1))
	}
	return task, nil
}

func (e *Engine) completeLocked(task *domain.Task, earned *decimal.Decimal) (domain.Award, error) {
	nominal := task.BaseReward
	if earned != nil {
		if earned.IsNegative() {
			return domain.Award{}, e.violation(domain.ErrInvalidReward)
		}
		nominal = *earned
	}

	var applied decimal.Decimal
	e.balance, applied = domain.ClampAdd(e.balance, nominal, e.settings.Ceiling)

	shown := nominal
	e.rewardDisplay = &shown
	task.Completed = true

	metrics.TasksCompleted.WithLabelValues(string(task.Kind)).Inc()
	metrics.RewardsNominal.Add(nominal.InexactFloat64())
	metrics.RewardsApplied.Add(applied.InexactFloat64())

	e.emit(domain.Event{Type: domain.EventTaskCompleted, TaskID: task.ID, Amount: applied, Cue: domain.CueAchievement})
	e.emit(domain.Event{Type: domain.EventRewardShown, TaskID: task.ID, Amount: nominal, Cue: domain.CueNotification})

	id := task.ID
	e.after(e.settings.RewardDisplay, func() { e.displayElapsed(id) })

	return domain.Award{
		TaskID:  id,
		Nominal: nominal,
		Applied: applied,
		Balance: e.balance,
	}, nil
}

// displayElapsed clears the reward popup, raises a bonus for trigger tasks
// and advances the funnel.
func (e *Engine) displayElapsed(taskID int) {
	e.rewardDisplay = nil
	e.emit(domain.Event{Type: domain.EventRewardCleared, TaskID: taskID})

	if amount, ok := e.settings.Bonuses[taskID]; ok && !e.bonusFired[taskID] {
		e.bonusFired[taskID] = true
		e.bonus = &domain.PendingBonus{TaskID: taskID, Amount: amount}
		e.emit(domain.Event{Type: domain.EventBonusShown, TaskID: taskID, Amount: amount, Cue: domain.CueBonus})
		e.after(e.settings.BonusDelay, func() { e.applyBonus(taskID, amount) })
	}

	e.current = taskID
	e.videoWatched = false
	if e.finishedLocked() {
		metrics.FunnelsFinished.Inc()
		metrics.FinalBalance.Observe(e.balance.InexactFloat64())
		e.emit(domain.Event{Type: domain.EventFunnelFinished, TaskID: taskID})
		return
	}
	e.emit(domain.Event{Type: domain.EventTaskAdvanced, TaskID: taskID + 1})
}

func (e *Engine) applyBonus(taskID int, amount decimal.Decimal) {
	var applied decimal.Decimal
	e.balance, applied = domain.ClampAdd(e.balance, amount, e.settings.Ceiling)
	if e.bonus != nil && e.bonus.TaskID == taskID {
		e.bonus = nil
	}
	metrics.BonusesApplied.WithLabelValues(strconv.Itoa(taskID)).Inc()
	metrics.RewardsApplied.Add(applied.InexactFloat64())
	e.emit(domain.Event{Type: domain.EventBonusApplied, TaskID: taskID, Amount: applied, Cue: domain.CueNotification})
}

// after schedules fn under the engine lock. Closed engines drop it.
func (e *Engine) after(d time.Duration, fn func()) {
	e.timerID++
	id := e.timerID
	e.timers[id] = e.sched.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.timers, id)
		if e.closed {
			return
		}
		fn()
	})
}

func (e *Engine) finishedLocked() bool {
	return e.current >= len(e.tasks)
}

func (e *Engine) snapshotLocked() domain.Snapshot {
	tasks := make([]domain.Task, len(e.tasks))
	copy(tasks, e.tasks)
	s := domain.Snapshot{
		Tasks:        tasks,
		CurrentIndex: e.current,
		Balance:      e.balance,
		VideoWatched: e.videoWatched,
		Finished:     e.finishedLocked(),
	}
	if e.rewardDisplay != nil {
		d := *e.rewardDisplay
		s.RewardDisplay = &d
	}
	if e.bonus != nil {
		b := *e.bonus
		s.Bonus = &b
	}
	return s
}

func (e *Engine) violation(err error) error {
	metrics.ContractViolations.WithLabelValues(violationReason(err)).Inc()
	return err
}

func (e *Engine) emit(ev domain.Event) {
	ev.SessionID = e.id
	ev.Balance = e.balance
	ev.Index = e.current
	ev.At = e.sched.Now()

	if e.settings.Debug {
		log.Printf("[funnel] session=%s event=%s task=%d amount=%s balance=%s",
			e.id, ev.Type, ev.TaskID, ev.Amount.StringFixed(2), ev.Balance.StringFixed(2))
	}

	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop rather than block the engine
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := e.journal.Record(ctx, ev); err != nil {
		metrics.JournalErrors.Inc()
		log.Printf("[funnel] journal write failed (ignored): %v", err)
	}
}

func violationReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrFunnelFinished):
		return "finished"
	case errors.Is(err, domain.ErrTaskCompleted):
		return "already_completed"
	case errors.Is(err, domain.ErrTaskOutOfOrder):
		return "out_of_order"
	case errors.Is(err, domain.ErrInvalidReward):
		return "invalid_reward"
	case errors.Is(err, domain.ErrVideoNotWatched):
		return "video_not_watched"
	default:
		return "wrong_kind"
	}
}
