package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ExportLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradeveil",
			Subsystem: "export",
			Name:      "latency_seconds",
			Help:      "Latency of export endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ExportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeveil",
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Errors by export endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ExportLatency, ExportErrors)
	})
}
