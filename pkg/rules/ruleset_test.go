package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleRuleSet = `
version: "1.2.0"
rules:
  - name: low_confidence
    description: reject weak answers
    action: reject
    priority: 5
    conditions:
      - field: confidence
        operator: "<"
        value: 0.3
  - name: borderline
    action: retry
    priority: 10
    conditions:
      - field: confidence
        operator: between
        value: [0.3, 0.5]
  - name: missing_action
    priority: 1
  - name: bad_operator
    action: reject
    conditions:
      - field: confidence
        operator: approximately
        value: 1
  - name: bad_between
    action: retry
    conditions:
      - field: confidence
        operator: between
        value: [0.3]
  - name: scorer
    action: custom
    custom_handler: score
    priority: 15
  - name: unknown_handler
    action: custom
    custom_handler: nope
  - name: low_confidence
    action: approve
  - name: disabled_rule
    action: log_warning
    enabled: false
    priority: 3
`

func TestParseRuleSet_SkipsMalformed(t *testing.T) {
	rs, err := ParseRuleSet([]byte(sampleRuleSet))
	if err != nil {
		t.Fatalf("ParseRuleSet() error: %v", err)
	}

	eng := newTestEngine(t)
	eng.RegisterHandler("score", func(ctx context.Context, c Context, r *Rule) (any, error) { return 1, nil })

	n, err := eng.LoadRuleSet(rs)
	if err != nil {
		t.Fatalf("LoadRuleSet() error: %v", err)
	}
	if n != 4 {
		t.Fatalf("loaded %d rules, want 4", n)
	}

	for _, name := range []string{"low_confidence", "borderline", "scorer", "disabled_rule"} {
		if _, ok := eng.Rule(name); !ok {
			t.Errorf("rule %q not loaded", name)
		}
	}
	if r, _ := eng.Rule("low_confidence"); r.Action != ActionReject {
		t.Errorf("duplicate entry replaced first definition: %q", r.Action)
	}
	if r, _ := eng.Rule("disabled_rule"); r.Enabled() {
		t.Error("disabled_rule should be disabled")
	}
}

func TestParseRuleSet_Version(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"no version", "rules: []", false},
		{"v1", `version: "1.0.0"`, false},
		{"v1 minor", `version: "1.9"`, false},
		{"v2", `version: "2.0.0"`, true},
		{"garbage", `version: "latest"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleSet([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRuleSet() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnsupportedVersion) {
				t.Errorf("error should wrap ErrUnsupportedVersion: %v", err)
			}
		})
	}
}

func TestRuleSet_ExportRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.LoadRuleSet(DefaultRuleSet()); err != nil {
		t.Fatal(err)
	}

	data, err := eng.Export().Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadRuleSetFile(path)
	if err != nil {
		t.Fatalf("LoadRuleSetFile() error: %v", err)
	}

	reloaded := newTestEngine(t)
	if _, err := reloaded.LoadRuleSet(rs); err != nil {
		t.Fatal(err)
	}

	orig, got := eng.Rules(), reloaded.Rules()
	if len(orig) != len(got) {
		t.Fatalf("rule count %d, want %d", len(got), len(orig))
	}
	for i := range orig {
		if orig[i].Name != got[i].Name || orig[i].Priority != got[i].Priority || orig[i].Action != got[i].Action {
			t.Errorf("rule %d: got %s/%d/%s, want %s/%d/%s", i,
				got[i].Name, got[i].Priority, got[i].Action,
				orig[i].Name, orig[i].Priority, orig[i].Action)
		}
	}

	// The reloaded between bound must still be usable
	if d := reloaded.Decision(context.Background(), Context{"confidence": 0.5, "hallucination_risk": 0.0}); d != ActionRetry {
		t.Errorf("Decision() after round trip = %q, want retry", d)
	}
}

func TestDefaultRuleSet(t *testing.T) {
	eng := newTestEngine(t)
	if n, err := eng.LoadRuleSet(DefaultRuleSet()); err != nil || n != 5 {
		t.Fatalf("LoadRuleSet(default) = %d, %v", n, err)
	}

	tests := []struct {
		name string
		ctx  Context
		want Action
	}{
		{"critical hallucination", Context{"hallucination_risk": 0.9, "confidence": 0.95}, ActionEscalate},
		{"very low confidence", Context{"hallucination_risk": 0.2, "confidence": 0.1}, ActionReject},
		{"borderline", Context{"hallucination_risk": 0.2, "confidence": 0.4}, ActionRetry},
		{"high quality", Context{"hallucination_risk": 0.05, "confidence": 0.95}, ActionApprove},
		{"nothing", Context{"hallucination_risk": 0.2, "confidence": 0.7}, ActionContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eng.Decision(context.Background(), tt.ctx); got != tt.want {
				t.Errorf("Decision() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadRuleSetFile_Example(t *testing.T) {
	rs, err := LoadRuleSetFile(filepath.Join("..", "..", "configs", "rules.yaml"))
	if err != nil {
		t.Fatalf("LoadRuleSetFile() error = %v", err)
	}
	built, skipped := rs.Build(nil)
	if len(skipped) != 0 {
		t.Fatalf("skipped = %v", skipped)
	}
	if len(built) != 5 {
		t.Fatalf("built %d rules, want 5", len(built))
	}
	if built[2].Action != ActionConsult || built[2].Metadata["consult"] != "data_quality" {
		t.Errorf("consult rule = %+v", built[2])
	}
}

func TestLoadRuleSet_SkipsRuleOverConditionLimit(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxConditionsPerRule = 2
	eng, err := NewEngine(cfg, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	cond := ConditionSpec{Field: "confidence", Operator: ">", Value: 0.5}
	rs := &RuleSet{Version: "1.0.0", Rules: []RuleSpec{
		{Name: "within_limit", Action: "approve", Conditions: []ConditionSpec{cond, cond}},
		{Name: "over_limit", Action: "reject", Conditions: []ConditionSpec{cond, cond, cond}},
		{Name: "no_conditions", Action: "log_warning"},
	}}

	n, err := eng.LoadRuleSet(rs)
	if err != nil {
		t.Fatalf("LoadRuleSet() error: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d rules, want 2", n)
	}
	if _, ok := eng.Rule("over_limit"); ok {
		t.Error("rule over the condition limit was loaded")
	}
	for _, name := range []string{"within_limit", "no_conditions"} {
		if _, ok := eng.Rule(name); !ok {
			t.Errorf("rule %q not loaded", name)
		}
	}
}
