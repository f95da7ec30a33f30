// Package tracing configures OpenTelemetry tracing for the mediator.
//
// New builds a TracerProvider that exports spans over OTLP gRPC, sampled
// according to the configured strategy. When tracing is disabled a noop
// tracer is returned, so components can always start spans.
//
// Components accept a trace.Tracer; pass Tracer.Tracer() from here:
//
//	t, err := tracing.New(cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer t.Shutdown(context.Background())
//
//	eval := evaluator.New(cfg, evaluator.WithTracer(t.Tracer()))
//
// Span names follow "<component>.<operation>", for example
// "evaluator.evaluate", "mediator.coordinate" and "loopback.iteration".
package tracing
