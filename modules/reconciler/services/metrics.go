package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsTotal         *prometheus.CounterVec
	entitiesTotal     *prometheus.CounterVec
	constraintRetries *prometheus.CounterVec
	violationsTotal   *prometheus.CounterVec
	mergeFailures     *prometheus.CounterVec

	processLatency *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		jobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconciler",
			Name:      "jobs_total",
			Help:      "Total number of processed reconciliation jobs.",
		}, []string{"status"}),
		entitiesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconciler",
			Name:      "entities_total",
			Help:      "Canonical entities touched, by type and outcome (created/matched).",
		}, []string{"type", "outcome"}),
		constraintRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconciler",
			Name:      "constraint_retries_total",
			Help:      "Transient constraint violations that triggered a retry.",
		}, []string{"table"}),
		violationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconciler",
			Name:      "violations_total",
			Help:      "Constraint violations persisted after retry exhaustion.",
		}, []string{"table"}),
		mergeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconciler",
			Name:      "merge_failures_total",
			Help:      "Best-effort merge recomputations that failed and were skipped.",
		}, []string{"type"}),
		processLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reconciler",
			Name:      "process_latency_seconds",
			Help:      "Latency distribution for whole-job processing.",
			Buckets: []float64{
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"status"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
