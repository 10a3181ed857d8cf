package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

var (
	alertsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_alerts_received_total",
		Help: "Alerts received by outcome",
	}, []string{"result"})

	deadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_dead_letters_total",
		Help: "Inputs rejected into the dead-letter log by reason",
	}, []string{"reason"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_incident_transitions_total",
		Help: "Committed incident state transitions",
	}, []string{"from", "to"})

	casConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_incident_cas_conflicts_total",
		Help: "Transitions lost to a concurrent writer",
	}, []string{"expected", "next"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medic_probe_duration_seconds",
		Help:    "Diagnostic probe duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"probe", "result"})

	actionExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_action_executions_total",
		Help: "Remediation actions executed by result",
	}, []string{"action", "result"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medic_action_duration_seconds",
		Help:    "Remediation action duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"action"})

	approvalCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_approval_callbacks_total",
		Help: "Approval callbacks by outcome",
	}, []string{"result"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medic_notifications_total",
		Help: "Approval request notifications by outcome",
	}, []string{"result"})
)

func AlertReceived(result string) {
	alertsReceived.WithLabelValues(result).Inc()
}

func DeadLetter(reason types.DeadLetterReason) {
	deadLetters.WithLabelValues(reason.String()).Inc()
}

func Transition(from, to types.IncidentState) {
	transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func CASConflict(expected, next types.IncidentState) {
	casConflicts.WithLabelValues(expected.String(), next.String()).Inc()
}

func ProbeObserved(probe types.ProbeName, result string, d time.Duration) {
	probeDuration.WithLabelValues(probe.String(), result).Observe(d.Seconds())
}

func ActionExecuted(action types.ActionName, success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	actionExecutions.WithLabelValues(action.String(), result).Inc()
	actionDuration.WithLabelValues(action.String()).Observe(d.Seconds())
}

func ApprovalCallback(result string) {
	approvalCallbacks.WithLabelValues(result).Inc()
}

func Notification(result string) {
	notifications.WithLabelValues(result).Inc()
}
