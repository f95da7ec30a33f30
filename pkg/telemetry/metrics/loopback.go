package metrics

import (
	"time"

	"mercator-hq/mediator/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// LoopbackMetrics tracks correction loops.
//
// Metrics:
//   - mediator_loopback_loops_total: Completed loops by outcome
//   - mediator_loopback_iterations: Retry iterations used per loop
//   - mediator_loopback_duration_seconds: Loop duration including retry callbacks
//   - mediator_loopback_retry_errors_total: Retry-callback failures
type LoopbackMetrics struct {
	loopsTotal       *prometheus.CounterVec
	iterations       prometheus.Histogram
	duration         prometheus.Histogram
	retryErrorsTotal prometheus.Counter
}

func newLoopbackMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *LoopbackMetrics {
	m := &LoopbackMetrics{
		loopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "loopback",
			Name:      "loops_total",
			Help:      "Total number of correction loops by outcome",
		}, []string{"outcome"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "loopback",
			Name:      "iterations",
			Help:      "Retry iterations used per correction loop",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "loopback",
			Name:      "duration_seconds",
			Help:      "Duration of correction loops in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		retryErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "loopback",
			Name:      "retry_errors_total",
			Help:      "Total number of failed retry-callback invocations",
		}),
	}

	registry.MustRegister(m.loopsTotal, m.iterations, m.duration, m.retryErrorsTotal)
	return m
}

// RecordLoop records a finished loop.
func (m *LoopbackMetrics) RecordLoop(outcome string, iterations int, duration time.Duration) {
	m.loopsTotal.WithLabelValues(outcome).Inc()
	m.iterations.Observe(float64(iterations))
	m.duration.Observe(duration.Seconds())
}

// RecordRetryError records a failed retry callback.
func (m *LoopbackMetrics) RecordRetryError() {
	m.retryErrorsTotal.Inc()
}
