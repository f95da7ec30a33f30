package metrics

import (
	"time"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/rules"

	"github.com/prometheus/client_golang/prometheus"
)

// RuleMetrics implements rules.Metrics.
//
// Metrics:
//   - mediator_rules_evaluations_total: Engine evaluations
//   - mediator_rules_evaluation_duration_seconds: Engine evaluation duration
//   - mediator_rules_triggered_total: Rules that matched, by rule and action
//   - mediator_rules_handler_errors_total: Custom handler failures by rule
//   - mediator_rules_reloads_total: Rule-set reloads by status
//   - mediator_rules_loaded: Rules in the active set
type RuleMetrics struct {
	evaluationsTotal   prometheus.Counter
	evaluationDuration prometheus.Histogram
	triggeredTotal     *prometheus.CounterVec
	handlerErrorsTotal *prometheus.CounterVec
	reloadsTotal       *prometheus.CounterVec
	loaded             prometheus.Gauge

	names *CardinalityLimiter
}

var _ rules.Metrics = (*RuleMetrics)(nil)

func newRuleMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *RuleMetrics {
	m := &RuleMetrics{
		evaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Total number of rule engine evaluations",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rules",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of rule engine evaluations in seconds",
			Buckets:   cfg.DurationBuckets,
		}),
		triggeredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rules",
			Name:      "triggered_total",
			Help:      "Number of times a rule matched and executed",
		}, []string{"rule", "action"}),
		handlerErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rules",
			Name:      "handler_errors_total",
			Help:      "Number of failed custom handler invocations",
		}, []string{"rule"}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rules",
			Name:      "reloads_total",
			Help:      "Number of rule-set reloads by status",
		}, []string{"status"}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Number of rules in the active rule set",
		}),
		names: NewCardinalityLimiter(maxLabelValues),
	}

	registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.triggeredTotal,
		m.handlerErrorsTotal,
		m.reloadsTotal,
		m.loaded,
	)
	return m
}

// RecordEvaluation records one engine evaluation.
func (m *RuleMetrics) RecordEvaluation(duration time.Duration, triggered int) {
	m.evaluationsTotal.Inc()
	m.evaluationDuration.Observe(duration.Seconds())
}

// RecordRuleTriggered records a matched rule.
func (m *RuleMetrics) RecordRuleTriggered(rule string, action rules.Action) {
	m.triggeredTotal.WithLabelValues(m.names.Label(rule), string(action)).Inc()
}

// RecordHandlerError records a failed custom handler.
func (m *RuleMetrics) RecordHandlerError(rule string) {
	m.handlerErrorsTotal.WithLabelValues(m.names.Label(rule)).Inc()
}

// RecordReload records a reload attempt and the resulting rule count.
func (m *RuleMetrics) RecordReload(success bool, ruleCount int) {
	m.reloadsTotal.WithLabelValues(status(success)).Inc()
	m.loaded.Set(float64(ruleCount))
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
