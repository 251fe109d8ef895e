package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GraphMetrics tracks route graph rebuilds and path lookups.
type GraphMetrics struct {
	rebuildDuration prometheus.Histogram
	rebuilds        *prometheus.CounterVec
	cacheEntries    prometheus.Gauge
	lookups         *prometheus.CounterVec
}

func NewGraphMetrics(reg prometheus.Registerer) *GraphMetrics {
	if reg == nil {
		return &GraphMetrics{}
	}
	m := &GraphMetrics{
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_rebuild_duration_seconds",
			Help:      "Duration of route graph cache rebuilds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_rebuilds_total",
			Help:      "Route graph cache rebuild attempts by result.",
		}, []string{"result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_cache_entries",
			Help:      "Number of entries in the route graph cache after the last rebuild.",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_path_lookups_total",
			Help:      "Path lookups by result (hit, miss, trivial).",
		}, []string{"result"}),
	}
	reg.MustRegister(m.rebuildDuration, m.rebuilds, m.cacheEntries, m.lookups)
	return m
}

// ObserveRebuild records a finished rebuild. entries is ignored on failure.
func (m *GraphMetrics) ObserveRebuild(duration time.Duration, entries int, err error) {
	if m == nil || m.rebuilds == nil {
		return
	}
	if err != nil {
		m.rebuilds.WithLabelValues("failure").Inc()
		return
	}
	m.rebuildDuration.Observe(duration.Seconds())
	m.rebuilds.WithLabelValues("success").Inc()
	m.cacheEntries.Set(float64(entries))
}

// IncRebuildSkipped counts a rebuild rejected because another was running.
func (m *GraphMetrics) IncRebuildSkipped() {
	if m == nil || m.rebuilds == nil {
		return
	}
	m.rebuilds.WithLabelValues("skipped").Inc()
}

func (m *GraphMetrics) IncLookup(result string) {
	if m == nil || m.lookups == nil {
		return
	}
	m.lookups.WithLabelValues(normalizeLabel(result)).Inc()
}
