package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	claims     *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		claims: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconciler",
			Subsystem: "worker",
			Name:      "claims_total",
			Help:      "Job claims by result (claimed/empty/error).",
		}, []string{"result"}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "reconciler",
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Jobs currently pending in reconciler_jobs.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
