package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampling strategies determine which traces are recorded and exported.
const (
	// SamplerAlways samples all traces
	SamplerAlways = "always"

	// SamplerNever samples no traces
	SamplerNever = "never"

	// SamplerRatio samples a percentage of root traces by trace ID
	SamplerRatio = "ratio"

	// SamplerParentBasedRatio follows the parent decision and samples roots by ratio
	SamplerParentBasedRatio = "parent_based_ratio"
)

// createSampler creates a sampler based on the strategy and ratio.
//
// Every strategy is wrapped in ParentBased, so a sampled parent always yields
// sampled children. "ratio" and "parent_based_ratio" differ only in how a
// remote unsampled parent is treated: "ratio" re-samples by trace ID.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0.0 || ratio > 1.0 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	switch strategy {
	case SamplerAlways:
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case SamplerNever:
		return sdktrace.ParentBased(sdktrace.NeverSample()), nil
	case SamplerRatio:
		base := sdktrace.TraceIDRatioBased(ratio)
		return sdktrace.ParentBased(base, sdktrace.WithRemoteParentNotSampled(base)), nil
	case SamplerParentBasedRatio, "":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)), nil
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio, parent_based_ratio)", strategy)
	}
}
