// Package metrics holds the Prometheus collectors for the lifecycle core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts transitions and refused attempts.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	GuardFailures *prometheus.CounterVec
}

// New creates and registers all lifecycle metrics.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "habita_application_transitions_total",
			Help: "Successful application status transitions by trigger and resulting status",
		}, []string{"trigger", "to"}),
		GuardFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "habita_application_guard_failures_total",
			Help: "Refused transition attempts by trigger and error code",
		}, []string{"trigger", "code"}),
	}
}

// IncTransition records one successful transition.
func (m *Metrics) IncTransition(trigger, to string) {
	m.Transitions.WithLabelValues(trigger, to).Inc()
}

// IncGuardFailure records one refused attempt.
func (m *Metrics) IncGuardFailure(trigger, code string) {
	m.GuardFailures.WithLabelValues(trigger, code).Inc()
}
