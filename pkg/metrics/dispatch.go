package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics counts run materialization, request binding and run
// lifecycle transitions.
type DispatchMetrics struct {
	runsCreated     prometheus.Counter
	requestOutcomes *prometheus.CounterVec
	runTransitions  *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	m := &DispatchMetrics{
		runsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_created_total",
			Help:      "Run instances materialized from schedules or created on demand.",
		}),
		requestOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_binding_outcomes_total",
			Help:      "Outcomes of scheduled request processing (bound, split, unbound, skipped).",
		}, []string{"outcome"}),
		runTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_transitions_total",
			Help:      "Run lifecycle actions by action and result.",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(m.runsCreated, m.requestOutcomes, m.runTransitions)
	return m
}

func (m *DispatchMetrics) AddRunsCreated(n int) {
	if m == nil || m.runsCreated == nil || n <= 0 {
		return
	}
	m.runsCreated.Add(float64(n))
}

func (m *DispatchMetrics) IncRequestOutcome(outcome string) {
	if m == nil || m.requestOutcomes == nil {
		return
	}
	m.requestOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRunTransition records the result of a lifecycle action; result is "ok"
// or the rejection reason.
func (m *DispatchMetrics) IncRunTransition(action, result string) {
	if m == nil || m.runTransitions == nil {
		return
	}
	m.runTransitions.WithLabelValues(normalizeLabel(action), normalizeLabel(result)).Inc()
}
