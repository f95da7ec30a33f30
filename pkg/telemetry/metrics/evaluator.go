package metrics

import (
	"time"

	"mercator-hq/mediator/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluatorMetrics tracks message evaluations.
//
// Metrics:
//   - mediator_evaluator_decisions_total: Final decisions by action
//   - mediator_evaluator_duration_seconds: End-to-end evaluation duration
//   - mediator_evaluator_confidence: Distribution of computed confidence
//   - mediator_evaluator_hallucination_risk: Distribution of hallucination risk
//   - mediator_evaluator_degraded_total: Contributors that failed and were skipped
type EvaluatorMetrics struct {
	decisionsTotal    *prometheus.CounterVec
	duration          prometheus.Histogram
	confidence        prometheus.Histogram
	hallucinationRisk prometheus.Histogram
	degradedTotal     *prometheus.CounterVec
}

func newEvaluatorMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *EvaluatorMetrics {
	scoreBuckets := prometheus.LinearBuckets(0.1, 0.1, 10)

	m := &EvaluatorMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "evaluator",
			Name:      "decisions_total",
			Help:      "Total number of evaluation decisions by action",
		}, []string{"action"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "evaluator",
			Name:      "duration_seconds",
			Help:      "Duration of message evaluations in seconds",
			Buckets:   cfg.DurationBuckets,
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "evaluator",
			Name:      "confidence",
			Help:      "Computed message confidence",
			Buckets:   scoreBuckets,
		}),
		hallucinationRisk: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "evaluator",
			Name:      "hallucination_risk",
			Help:      "Computed message hallucination risk",
			Buckets:   scoreBuckets,
		}),
		degradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "evaluator",
			Name:      "degraded_total",
			Help:      "Number of evaluations that fell back after a contributor failed",
		}, []string{"contributor"}),
	}

	registry.MustRegister(m.decisionsTotal, m.duration, m.confidence, m.hallucinationRisk, m.degradedTotal)
	return m
}

// RecordDecision records the outcome of one evaluation.
func (m *EvaluatorMetrics) RecordDecision(action string, duration time.Duration, confidence, hallucinationRisk float64) {
	m.decisionsTotal.WithLabelValues(action).Inc()
	m.duration.Observe(duration.Seconds())
	m.confidence.Observe(confidence)
	m.hallucinationRisk.Observe(hallucinationRisk)
}

// RecordDegraded records a contributor failure.
func (m *EvaluatorMetrics) RecordDegraded(contributor string) {
	m.degradedTotal.WithLabelValues(contributor).Inc()
}
