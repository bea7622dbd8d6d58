// Package domain holds the funnel's pure types: tasks, snapshots, awards and events.
// Nothing in here touches infrastructure.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Task Types ─────────────────────────────────────────────────────────────

// TaskKind categorizes the mini-experience bound to a task.
type TaskKind string

const (
	KindVideo TaskKind = "video"
	KindApp   TaskKind = "app"
	KindGame  TaskKind = "game"
)

// Valid reports whether k is a known kind.
func (k TaskKind) Valid() bool {
	switch k {
	case KindVideo, KindApp, KindGame:
		return true
	}
	return false
}

// Task is one funnel step. Everything except Completed is catalog data.
type Task struct {
	ID          int             `json:"id"`
	Kind        TaskKind        `json:"kind"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Platform    string          `json:"platform"`
	BaseReward  decimal.Decimal `json:"base_reward"`
	VideoID     string          `json:"video_id,omitempty"`
	VideoTitle  string          `json:"video_title,omitempty"`
	App         string          `json:"app,omitempty"`  // walkthrough name for app tasks
	Game        string          `json:"game,omitempty"` // game name for game tasks
	Completed   bool            `json:"completed"`
}

// ─── Funnel State ───────────────────────────────────────────────────────────

// PendingBonus is a bonus that has been shown but not yet applied.
type PendingBonus struct {
	TaskID int             `json:"task_id"`
	Amount decimal.Decimal `json:"amount"`
}

// Snapshot is a read-only copy of a funnel's state, handed to the presentation layer.
type Snapshot struct {
	Tasks         []Task           `json:"tasks"`
	CurrentIndex  int              `json:"current_index"`
	Balance       decimal.Decimal  `json:"balance"`
	RewardDisplay *decimal.Decimal `json:"reward_display,omitempty"`
	Bonus         *PendingBonus    `json:"bonus,omitempty"`
	VideoWatched  bool             `json:"video_watched"`
	Finished      bool             `json:"finished"`
}

// Current returns the active task, or nil once the funnel is finished.
func (s Snapshot) Current() *Task {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Tasks) {
		return nil
	}
	t := s.Tasks[s.CurrentIndex]
	return &t
}

// ProgressPct returns completion percentage (0-100).
func (s Snapshot) ProgressPct() float64 {
	if len(s.Tasks) == 0 {
		return 100.0
	}
	return float64(s.CurrentIndex) / float64(len(s.Tasks)) * 100.0
}

// Award describes what an accepted completion did to the balance.
// Nominal is the reward shown to the user; Applied is the real delta after clamping.
// Rejected is set when an evaluation was refused and the task stays active.
type Award struct {
	TaskID   int             `json:"task_id"`
	Nominal  decimal.Decimal `json:"nominal"`
	Applied  decimal.Decimal `json:"applied"`
	Balance  decimal.Decimal `json:"balance"`
	Rejected bool            `json:"rejected,omitempty"`
}

// ─── Events ─────────────────────────────────────────────────────────────────

// EventType names a funnel state change.
type EventType string

const (
	EventTaskCompleted  EventType = "task_completed"
	EventRewardShown    EventType = "reward_shown"
	EventRewardCleared  EventType = "reward_cleared"
	EventBonusShown     EventType = "bonus_shown"
	EventBonusApplied   EventType = "bonus_applied"
	EventTaskAdvanced   EventType = "task_advanced"
	EventFunnelFinished EventType = "funnel_finished"
	EventVideoWatched   EventType = "video_watched"
	EventTaskRejected   EventType = "task_rejected"
	EventOfferChosen    EventType = "offer_chosen"
)

// Cue is a sound the presentation layer may play. Playback failures are ignored.
type Cue string

const (
	CueNone         Cue = ""
	CueAchievement  Cue = "achievement"
	CueNotification Cue = "notification"
	CueBonus        Cue = "bonus"
)

// Event is emitted by the engine after every state change.
type Event struct {
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	TaskID    int             `json:"task_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	Index     int             `json:"index"`
	Cue       Cue             `json:"cue,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	At        time.Time       `json:"at"`
}

// ─── Money ──────────────────────────────────────────────────────────────────

// FormatBRL renders an amount as "R$ 12.34".
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

// ClampAdd returns min(balance+amount, ceiling) and the delta actually applied.
func ClampAdd(balance, amount, ceiling decimal.Decimal) (next, applied decimal.Decimal) {
	next = decimal.Min(balance.Add(amount), ceiling)
	if next.LessThan(balance) {
		// balance already above ceiling (ceiling lowered by config); never decrease
		return balance, decimal.Zero
	}
	return next, next.Sub(balance)
}
