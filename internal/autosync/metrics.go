package autosync

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for auto-sync.
type Metrics struct {
	CyclesTotal          *prometheus.CounterVec
	CyclesCoalescedTotal prometheus.Counter
	CyclesDiscardedTotal prometheus.Counter
	CycleDuration        prometheus.Histogram
	PendingProjects      prometheus.Gauge
	GitOperationsTotal   *prometheus.CounterVec
	PullsTotal           *prometheus.CounterVec
}

// NewMetrics returns the process-wide metrics registered with the default
// registry. Registration happens once.
//
// Metrics:
//   - contextsync_cycles_total{trigger} - Cycles started
//   - contextsync_cycles_coalesced_total - Triggers dropped because a cycle was running
//   - contextsync_cycles_discarded_total - Cycles whose results were dropped after Stop
//   - contextsync_cycle_duration_seconds - Cycle wall time
//   - contextsync_pending_projects - Size of the pending-updates set
//   - contextsync_git_operations_total{op,result} - Fetch and rev-list calls
//   - contextsync_pulls_total{result} - Pulls by outcome
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextsync_cycles_total",
				Help: "Total number of update-check cycles started",
			},
			[]string{"trigger"},
		),
		CyclesCoalescedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "contextsync_cycles_coalesced_total",
			Help: "Total number of triggers coalesced into an in-flight cycle",
		}),
		CyclesDiscardedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "contextsync_cycles_discarded_total",
			Help: "Total number of cycles whose results were discarded after stop",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contextsync_cycle_duration_seconds",
			Help:    "Duration of update-check cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PendingProjects: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contextsync_pending_projects",
			Help: "Number of projects with unmerged upstream commits",
		}),
		GitOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextsync_git_operations_total",
				Help: "Total number of git operations by type and result",
			},
			[]string{"op", "result"},
		),
		PullsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextsync_pulls_total",
				Help: "Total number of pulls by result",
			},
			[]string{"result"}, // "success", "conflict", "error"
		),
	}
}

func (m *Metrics) gitOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.GitOperationsTotal.WithLabelValues(op, result).Inc()
}
