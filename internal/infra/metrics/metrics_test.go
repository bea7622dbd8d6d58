package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestSessionMetrics(t *testing.T) {
	SessionsStarted.Inc()
	SessionsActive.Set(3)
	SessionsReaped.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"avalia_sessions_started_total",
		"avalia_sessions_active",
		"avalia_sessions_reaped_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestTaskAndRewardMetrics(t *testing.T) {
	// Vec metrics only appear once a label set has been observed.
	TasksCompleted.WithLabelValues("video").Inc()
	TasksRejected.WithLabelValues("app").Inc()
	ContractViolations.WithLabelValues("out_of_order").Inc()
	BonusesApplied.WithLabelValues("2").Inc()
	RewardsNominal.Add(28)
	RewardsApplied.Add(28)

	names := gatheredNames(t)
	for _, name := range []string{
		"avalia_tasks_completed_total",
		"avalia_tasks_rejected_total",
		"avalia_contract_violations_total",
		"avalia_bonuses_applied_total",
		"avalia_rewards_nominal_total",
		"avalia_rewards_applied_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestFunnelMetrics(t *testing.T) {
	FunnelsFinished.Inc()
	FinalBalance.Observe(200)
	OffersChosen.WithLabelValues("vip").Inc()
	HealthCheckStatus.WithLabelValues("journal").Set(1)

	names := gatheredNames(t)
	for _, name := range []string{
		"avalia_funnels_finished_total",
		"avalia_final_balance",
		"avalia_offers_chosen_total",
		"avalia_health_check_status",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
