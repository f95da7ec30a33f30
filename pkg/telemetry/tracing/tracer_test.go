package tracing

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/mediator/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tr, err := New(config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("tracer should be disabled")
	}

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("noop span should not carry a trace ID")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_InvalidSampler(t *testing.T) {
	_, err := New(config.TracingConfig{Enabled: true, Sampler: "sometimes"}, WithoutGlobal())
	if err == nil {
		t.Fatal("expected sampler error")
	}
}

func TestNew_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr, err := New(config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		SampleRatio: 1,
		ServiceName: "mediator-test",
	}, WithExporter(exp), WithoutGlobal())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.Start(context.Background(), "evaluator.evaluate")
	if TraceID(ctx) == "" {
		t.Error("expected trace ID on recording span")
	}
	span.SetAttributes(MessageAttributes("t-1", "s-1", "agent-a", "agent-b", "agent")...)
	SetSignalAttributes(span, 0.57, 0.25, false)
	SetDecisionAttributes(span, "modify", []string{"low-confidence"}, true)
	SetStatus(span, errors.New("boom"))
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "evaluator.evaluate" {
		t.Errorf("span name = %q", got.Name)
	}
	if got.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status.Code)
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range got.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrAction].AsString() != "modify" {
		t.Errorf("action attribute = %v", attrs[AttrAction])
	}
	if attrs[AttrConfidence].AsFloat64() != 0.57 {
		t.Errorf("confidence attribute = %v", attrs[AttrConfidence])
	}
	if !attrs[AttrHealed].AsBool() {
		t.Error("healed attribute should be true")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 1, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.1, false},
		{SamplerParentBasedRatio, 0.5, false},
		{"", 1, false},
		{SamplerRatio, 1.5, true},
		{"random", 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			_, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
			}
		})
	}
}
