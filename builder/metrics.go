package builder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svo_builder_builds_total",
		Help: "Total number of completed tree builds",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svo_builder_blocks_total",
		Help: "Total number of blocks written by tree builds",
	})

	truncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svo_builder_truncated_branches_total",
		Help: "Total number of branches left without children because free addresses ran out",
	})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "svo_builder_build_duration_seconds",
		Help:    "Duration of tree builds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
	})
)

func observeBuild(stats Stats) {
	buildsTotal.Inc()
	blocksTotal.Add(float64(stats.Blocks))
	truncatedTotal.Add(float64(stats.Truncated))
	buildDuration.Observe(stats.BuildTime.Seconds())
}
