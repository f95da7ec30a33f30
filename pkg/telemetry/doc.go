// Package telemetry groups the mediator's observability packages.
//
// # Components
//
//   - logging: slog setup with PII redaction and trace/session context fields
//   - metrics: Prometheus collectors for rules, evaluator, mediator and loopback
//   - tracing: OpenTelemetry spans around evaluation and correction loops
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, _ := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	tracer, _ := tracing.New(cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(ctx)
//
//	eval := evaluator.New(cfg.Evaluator,
//		evaluator.WithRuleEngine(engine),
//		evaluator.WithLogger(logger),
//		evaluator.WithMetrics(collector.Evaluator()),
//		evaluator.WithTracer(tracer.Tracer()),
//	)
//
// Message content and explanations pass through the redacting handler, so
// API keys, bearer tokens, emails, SSNs and phone numbers never reach the
// log sink.
package telemetry
