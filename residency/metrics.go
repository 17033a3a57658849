package residency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	childRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svo_residency_child_requests_total",
		Help: "Child requests handled by the grafter by outcome",
	}, []string{"outcome"})

	prunedGroupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svo_residency_pruned_groups_total",
		Help: "Total number of block groups evicted from the tree",
	})

	graftRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "svo_residency_graft_run_duration_seconds",
		Help:    "Duration of between-frame graft runs",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})
)

func observeGraftRun(stats GraftStats) {
	childRequestsTotal.WithLabelValues("grafted").Add(float64(stats.Grafted))
	childRequestsTotal.WithLabelValues("stale").Add(float64(stats.Stale))
	childRequestsTotal.WithLabelValues("discarded").Add(float64(stats.Discarded))
	prunedGroupsTotal.Add(float64(stats.Pruned))
	graftRunDuration.Observe(stats.Elapsed.Seconds())
}
