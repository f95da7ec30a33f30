package loopback

import "time"

// Metrics receives loop instrumentation. Implemented by telemetry/metrics.
type Metrics interface {
	RecordLoop(outcome string, iterations int, duration time.Duration)
	RecordRetryError()
}

type nopMetrics struct{}

func (nopMetrics) RecordLoop(string, int, time.Duration) {}
func (nopMetrics) RecordRetryError()                     {}
