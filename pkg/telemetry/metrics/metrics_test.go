package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/rules"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Enabled:         true,
		Namespace:       "test",
		DurationBuckets: []float64{0.001, 0.01, 0.1, 1},
	}
}

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector(config.MetricsConfig{}, nil)
	if c.Registry() == nil {
		t.Fatal("expected registry")
	}
	if c.config.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("namespace = %q", c.config.Namespace)
	}
	if c.Enabled() {
		t.Error("zero config should report disabled")
	}
}

func TestRuleMetrics(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	m := c.Rules()

	m.RecordEvaluation(2*time.Millisecond, 2)
	m.RecordEvaluation(time.Millisecond, 0)
	m.RecordRuleTriggered("critical_hallucination", rules.ActionEscalate)
	m.RecordRuleTriggered("critical_hallucination", rules.ActionEscalate)
	m.RecordHandlerError("custom_rule")
	m.RecordReload(true, 5)
	m.RecordReload(false, 5)

	if got := testutil.ToFloat64(m.evaluationsTotal); got != 2 {
		t.Errorf("evaluations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.triggeredTotal.WithLabelValues("critical_hallucination", "escalate")); got != 2 {
		t.Errorf("triggered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.handlerErrorsTotal.WithLabelValues("custom_rule")); got != 1 {
		t.Errorf("handler errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.loaded); got != 5 {
		t.Errorf("loaded = %v, want 5", got)
	}
}

func TestRuleMetrics_WiredIntoEngine(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	engine, err := rules.NewEngine(rules.DefaultEngineConfig(), rules.WithMetrics(c.Rules()))
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.AddRule(rules.NewRule("always", rules.ActionApprove, 1)); err != nil {
		t.Fatal(err)
	}

	engine.Evaluate(t.Context(), rules.Context{})

	if got := testutil.ToFloat64(c.Rules().triggeredTotal.WithLabelValues("always", "approve")); got != 1 {
		t.Errorf("triggered = %v, want 1", got)
	}
}

func TestEvaluatorMetrics(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	m := c.Evaluator()

	m.RecordDecision("modify", time.Millisecond, 0.57, 0.25)
	m.RecordDecision("pass", time.Millisecond, 0.95, 0)
	m.RecordDegraded("mediator")

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("modify")); got != 1 {
		t.Errorf("modify decisions = %v", got)
	}
	if got := testutil.ToFloat64(m.degradedTotal.WithLabelValues("mediator")); got != 1 {
		t.Errorf("degraded = %v", got)
	}
	if got := testutil.CollectAndCount(m.confidence); got != 1 {
		t.Errorf("confidence series = %d", got)
	}
}

func TestMediatorMetrics(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	m := c.Mediator()

	m.RecordRequest("data_quality", "data_source", true)
	m.RecordRequest("unknown", "", false)
	m.RecordTrigger("escalation_high_priority", "escalation", true)
	m.RecordTrigger("escalation_high_priority", "escalation", false)
	m.RecordPolicyViolation("pii", "block")

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("unknown", "none", "error")); got != 1 {
		t.Errorf("unrouted requests = %v", got)
	}
	if got := testutil.ToFloat64(m.triggersTotal.WithLabelValues("escalation_high_priority", "escalation", "skipped")); got != 1 {
		t.Errorf("skipped triggers = %v", got)
	}
	if got := testutil.ToFloat64(m.violationsTotal.WithLabelValues("pii", "block")); got != 1 {
		t.Errorf("violations = %v", got)
	}
}

func TestLoopbackMetrics(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	m := c.Loopback()

	m.RecordLoop("passed", 1, 10*time.Millisecond)
	m.RecordRetryError()

	if got := testutil.ToFloat64(m.loopsTotal.WithLabelValues("passed")); got != 1 {
		t.Errorf("loops = %v", got)
	}
	if got := testutil.ToFloat64(m.retryErrorsTotal); got != 1 {
		t.Errorf("retry errors = %v", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if cl.Label("a") != "a" || cl.Label("b") != "b" {
		t.Fatal("values under the limit should pass through")
	}
	if cl.Label("c") != otherLabel {
		t.Error("value past the limit should fold into other")
	}
	if cl.Label("a") != "a" {
		t.Error("known value should still be allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("count = %d, want 2", cl.Count())
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.Loopback().RecordRetryError()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_loopback_retry_errors_total 1") {
		t.Errorf("metrics output missing retry counter:\n%s", rec.Body.String())
	}
}
