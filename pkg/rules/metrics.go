package rules

import "time"

// Metrics receives engine instrumentation. Implemented by telemetry/metrics.
type Metrics interface {
	RecordEvaluation(duration time.Duration, triggered int)
	RecordRuleTriggered(rule string, action Action)
	RecordHandlerError(rule string)
	RecordReload(success bool, ruleCount int)
}

type nopMetrics struct{}

func (nopMetrics) RecordEvaluation(time.Duration, int) {}
func (nopMetrics) RecordRuleTriggered(string, Action)  {}
func (nopMetrics) RecordHandlerError(string)           {}
func (nopMetrics) RecordReload(bool, int)              {}
