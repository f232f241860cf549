package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"StockWatchdog/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	normalized  *prometheus.CounterVec
	warnings    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	admissions  *prometheus.CounterVec
	backoff     *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		normalized: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatchdog_records_normalized_total",
				Help: "Records successfully normalized",
			},
			[]string{"source"},
		),
		warnings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatchdog_warnings_total",
				Help: "Anomaly warnings attached to records",
			},
			[]string{"field", "severity"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatchdog_records_dropped_total",
				Help: "Records dropped on structural errors",
			},
			[]string{"reason"},
		),
		admissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatchdog_gate_admissions_total",
				Help: "Rate gate decisions",
			},
			[]string{"api", "result"},
		),
		backoff: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockwatchdog_gate_backoff_seconds",
				Help: "Last backoff applied per API",
			},
			[]string{"api"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockwatchdog_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockwatchdog_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordNormalized(source string) {
	r.normalized.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordWarning(field string, severity models.Severity) {
	r.warnings.WithLabelValues(field, string(severity)).Inc()
}

func (r *Recorder) RecordDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

// RecordAdmission counts a decision; denials are labelled by reason.
func (r *Recorder) RecordAdmission(api string, d models.Decision) {
	result := "allowed"
	if !d.Allowed {
		result = string(d.Reason)
	}
	r.admissions.WithLabelValues(api, result).Inc()
}

func (r *Recorder) RecordBackoff(api string, d time.Duration) {
	r.backoff.WithLabelValues(api).Set(d.Seconds())
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
