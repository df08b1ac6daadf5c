package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// Trigger run outcomes recorded by RecordTriggerRun.
const (
	OutcomeOK      = "ok"
	OutcomeRefused = "refused"
	OutcomeError   = "error"
)

var (
	hubSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_signals_total",
			Help: "Inbound messages scored, by bucket.",
		},
		[]string{"bucket"},
	)

	hubTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_status_transitions_total",
			Help: "Thread status changes, by previous and new status.",
		},
		[]string{"from", "to"},
	)

	hubTriggerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_trigger_runs_total",
			Help: "Trigger workflow runs, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	hubDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_duplicate_deliveries_total",
			Help: "Inbound deliveries answered from the dedup store.",
		},
	)
)

func init() {
	prometheus.MustRegister(hubSignals, hubTransitions, hubTriggerRuns, hubDuplicates)
}

// RecordSignal counts one scored message.
func RecordSignal(b domain.Bucket) {
	hubSignals.WithLabelValues(string(b)).Inc()
}

// RecordTransition counts a status change. Equal statuses are ignored.
func RecordTransition(from, to domain.ThreadStatus) {
	if from == to {
		return
	}
	hubTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordTriggerRun counts one workflow run.
func RecordTriggerRun(t domain.TriggerType, outcome string) {
	hubTriggerRuns.WithLabelValues(string(t), outcome).Inc()
}

// RecordDuplicate counts one replayed delivery.
func RecordDuplicate() {
	hubDuplicates.Inc()
}
