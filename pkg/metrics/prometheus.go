package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal    *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	directivesTotal *prometheus.CounterVec
	activeSlots     *prometheus.GaugeVec
	totalSlots      prometheus.Gauge
	confidence      *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeveil_signals_total",
				Help: "Accepted signals by instrument and strategy",
			},
			[]string{"instrument", "strategy"},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeveil_rejections_total",
				Help: "Rejected candidates by reason",
			},
			[]string{"reason"},
		),
		directivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeveil_directives_total",
				Help: "Scheduled execution directives by instrument and skip flag",
			},
			[]string{"instrument", "skipped"},
		),
		activeSlots: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeveil_active_slots",
				Help: "Concurrency slots in use per instrument",
			},
			[]string{"instrument"},
		),
		totalSlots: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeveil_total_active_slots",
				Help: "Concurrency slots in use across all instruments",
			},
		),
		confidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeveil_signal_confidence",
				Help:    "Confidence of accepted signals",
				Buckets: prometheus.LinearBuckets(50, 5, 11),
			},
			[]string{"instrument"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeveil_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeveil_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignal records an accepted signal.
func (r *Recorder) RecordSignal(instrument, strategy string) {
	r.signalsTotal.WithLabelValues(instrument, strategy).Inc()
}

// RecordRejection records a rejected candidate.
func (r *Recorder) RecordRejection(reason string) {
	r.rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDirective records a scheduled directive.
func (r *Recorder) RecordDirective(instrument string, skipped bool) {
	r.directivesTotal.WithLabelValues(instrument, strconv.FormatBool(skipped)).Inc()
}

// RecordActiveSlots records the per-instrument slot gauge.
func (r *Recorder) RecordActiveSlots(instrument string, n int) {
	r.activeSlots.WithLabelValues(instrument).Set(float64(n))
}

// RecordTotalSlots records the global slot gauge.
func (r *Recorder) RecordTotalSlots(n int) {
	r.totalSlots.Set(float64(n))
}

// RecordConfidence records the confidence of an accepted signal.
func (r *Recorder) RecordConfidence(instrument string, confidence float64) {
	r.confidence.WithLabelValues(instrument).Observe(confidence)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
