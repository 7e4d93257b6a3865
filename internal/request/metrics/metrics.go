package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the approval workflow.
type Metrics struct {
	RequestsCreated   prometheus.Counter
	TransitionsTotal  *prometheus.CounterVec
	TransitionsDenied *prometheus.CounterVec
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "expenseflow_requests_created_total",
			Help: "Total number of expense requests created",
		}),
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "expenseflow_transitions_total",
			Help: "Accepted workflow transitions by action type",
		}, []string{"action"}),
		TransitionsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "expenseflow_transitions_denied_total",
			Help: "Rejected workflow transitions by error code",
		}, []string{"code"}),
	}
}

// IncrementTransition records one accepted transition.
func (m *Metrics) IncrementTransition(action string) {
	m.TransitionsTotal.WithLabelValues(action).Inc()
}

// IncrementDenied records one rejected transition.
func (m *Metrics) IncrementDenied(code string) {
	m.TransitionsDenied.WithLabelValues(code).Inc()
}
