package metrics

import (
	"mercator-hq/mediator/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// MediatorMetrics tracks colleague coordination.
//
// Metrics:
//   - mediator_mediator_requests_total: Routed requests by kind, colleague and status
//   - mediator_mediator_triggers_total: Trigger evaluations by trigger, action type and result
//   - mediator_mediator_policy_violations_total: Policy violations by policy and enforcement level
type MediatorMetrics struct {
	requestsTotal   *prometheus.CounterVec
	triggersTotal   *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec

	names *CardinalityLimiter
}

func newMediatorMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *MediatorMetrics {
	m := &MediatorMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mediator",
			Name:      "requests_total",
			Help:      "Total number of colleague requests",
		}, []string{"kind", "colleague", "status"}),
		triggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mediator",
			Name:      "triggers_total",
			Help:      "Total number of trigger evaluations by result",
		}, []string{"trigger", "action_type", "result"}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mediator",
			Name:      "policy_violations_total",
			Help:      "Total number of policy violations",
		}, []string{"policy", "enforcement_level"}),
		names: NewCardinalityLimiter(maxLabelValues),
	}

	registry.MustRegister(m.requestsTotal, m.triggersTotal, m.violationsTotal)
	return m
}

// RecordRequest records a routed colleague request. colleague is empty when
// no colleague could handle the request.
func (m *MediatorMetrics) RecordRequest(kind, colleague string, ok bool) {
	if colleague == "" {
		colleague = "none"
	}
	m.requestsTotal.WithLabelValues(kind, m.names.Label(colleague), status(ok)).Inc()
}

// RecordTrigger records a fired or skipped trigger.
func (m *MediatorMetrics) RecordTrigger(trigger, actionType string, fired bool) {
	result := "skipped"
	if fired {
		result = "fired"
	}
	m.triggersTotal.WithLabelValues(m.names.Label(trigger), actionType, result).Inc()
}

// RecordPolicyViolation records a violation or warning.
func (m *MediatorMetrics) RecordPolicyViolation(policy, level string) {
	m.violationsTotal.WithLabelValues(m.names.Label(policy), level).Inc()
}
