package tracer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	raysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svo_tracer_rays_total",
		Help: "Total number of traced rays by outcome",
	}, []string{"outcome"})

	childRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svo_tracer_child_requests_total",
		Help: "Total number of child requests emitted by rays",
	})

	blockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "svo_tracer_block_duration_seconds",
		Help:    "Time spent tracing a block of rows",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"tracer"})
)

func observeBlock(id string, stats *Stats) {
	raysTotal.WithLabelValues("hit").Add(float64(stats.Rays - stats.Misses))
	raysTotal.WithLabelValues("miss").Add(float64(stats.Misses))
	childRequestsTotal.Add(float64(stats.Requests))
	blockDuration.WithLabelValues(id).Observe(stats.RenderTime.Seconds())
}
