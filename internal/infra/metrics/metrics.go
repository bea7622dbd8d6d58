// Package metrics provides Prometheus metrics for the funnel service.
// Counters, gauges and histograms for sessions, tasks, rewards, offers and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionsActive tracks live funnel sessions.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "avalia",
	Name:      "sessions_active",
	Help:      "Number of live funnel sessions.",
})

// SessionsStarted tracks sessions created.
var SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "sessions_started_total",
	Help:      "Total funnel sessions started.",
})

// SessionsReaped tracks sessions closed for inactivity.
var SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "sessions_reaped_total",
	Help:      "Total sessions closed by the idle reaper.",
})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCompleted tracks accepted task completions by kind.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "tasks_completed_total",
	Help:      "Total accepted task completions.",
}, []string{"kind"})

// TasksRejected tracks evaluations answered with reject under the retry policy.
var TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "tasks_rejected_total",
	Help:      "Total rejected evaluations that kept the task active.",
}, []string{"kind"})

// ContractViolations tracks refused engine calls by reason.
var ContractViolations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "contract_violations_total",
	Help:      "Total engine calls refused by a precondition.",
}, []string{"reason"})

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardsNominal tracks rewards as displayed to users.
var RewardsNominal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "rewards_nominal_total",
	Help:      "Sum of nominal rewards shown.",
})

// RewardsApplied tracks rewards actually added to balances after clamping.
var RewardsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "rewards_applied_total",
	Help:      "Sum of reward deltas applied to balances.",
})

// BonusesApplied tracks bonus applications by trigger task.
var BonusesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "bonuses_applied_total",
	Help:      "Total bonuses applied.",
}, []string{"task"})

// ─── Funnel ─────────────────────────────────────────────────────────────────

// FunnelsFinished tracks sessions reaching the offer screen.
var FunnelsFinished = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "funnels_finished_total",
	Help:      "Total sessions that completed every task.",
})

// FinalBalance tracks the balance at the moment a funnel finishes.
var FinalBalance = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "avalia",
	Name:      "final_balance",
	Help:      "Balance when the last task completes.",
	Buckets:   []float64{25, 50, 100, 150, 175, 199, 200},
})

// OffersChosen tracks plan selections on the offer page.
var OffersChosen = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "offers_chosen_total",
	Help:      "Total plan selections on the offer page.",
}, []string{"plan"})

// ─── API ────────────────────────────────────────────────────────────────────

// RateLimited tracks requests refused by the rate limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "rate_limited_total",
	Help:      "Total requests refused with 429.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "avalia",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// JournalErrors tracks swallowed journal write failures.
var JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "journal_errors_total",
	Help:      "Total journal writes that failed and were ignored.",
})

// JournalDropped tracks journal writes discarded because the write queue was full.
var JournalDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "avalia",
	Name:      "journal_dropped_total",
	Help:      "Total journal writes dropped on a full write queue.",
})
