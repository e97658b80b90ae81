package schedule

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the planner.
type Metrics struct {
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	unassigned prometheus.Gauge
	cache      *prometheus.CounterVec
	trips      *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the planner metrics. A nil registerer uses the default
// Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_optimizer_runs_total",
			Help: "Optimizer runs by outcome (optimal or budget).",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_optimizer_duration_seconds",
			Help:    "Wall-clock time spent in the optimizer.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		unassigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_optimizer_unassigned_orders",
			Help: "Orders left unassigned by the latest proposal.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_schedule_cache_requests_total",
			Help: "Proposal cache lookups by result.",
		}, []string{"result"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_schedule_applied_trips_total",
			Help: "Proposed trips applied as deliveries, by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.unassigned, m.cache, m.trips)
	return m
}

func (m *Metrics) observeRun(optimal bool, unassigned int, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "optimal"
	if !optimal {
		outcome = "budget"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.unassigned.Set(float64(unassigned))
}

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) trip(failed bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if failed {
		outcome = "failed"
	}
	m.trips.WithLabelValues(outcome).Inc()
}
