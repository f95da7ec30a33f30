// Package metrics provides Prometheus metrics collection for the mediator.
//
// # Overview
//
// A Collector owns a prometheus.Registry and one metric group per component.
// Each group implements the small Metrics interface its component declares,
// so components stay free of Prometheus types:
//
//   - Rules(): rules.Metrics (evaluations, triggered rules, handler errors, reloads)
//   - Evaluator(): evaluator decisions, signal distributions, degraded contributors
//   - Mediator(): colleague requests, trigger firings and skips, policy violations
//   - Loopback(): loop outcomes, iterations, retry-callback failures
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	engine := rules.NewEngine(rules.DefaultEngineConfig(),
//		rules.WithMetrics(collector.Rules()))
//
//	http.Handle("/metrics", collector.Handler())
//
// Rule and trigger names come from configuration, so label values are bounded
// by a CardinalityLimiter; names beyond the limit are folded into "other".
package metrics
