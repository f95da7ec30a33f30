package evaluator

import "time"

// Metrics receives evaluator instrumentation. Implemented by telemetry/metrics.
type Metrics interface {
	RecordDecision(action string, duration time.Duration, confidence, hallucinationRisk float64)
	RecordDegraded(contributor string)
}

type nopMetrics struct{}

func (nopMetrics) RecordDecision(string, time.Duration, float64, float64) {}
func (nopMetrics) RecordDegraded(string)                                  {}
