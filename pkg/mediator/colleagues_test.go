package mediator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"mercator-hq/mediator/pkg/rules"
)

func TestDataSourceColleague_Validate(t *testing.T) {
	c := NewDataSourceColleague("dq", nil, 0)

	tests := []struct {
		name      string
		content   string
		source    string
		wantScore float64
		wantMeets bool
	}{
		{"long content from supported source", "a sufficiently long message", "database", HighQualityScore, true},
		{"source match is case-insensitive", "a sufficiently long message", "API", HighQualityScore, true},
		{"exactly ten runes is too short", "0123456789", "database", LowQualityScore, false},
		{"unsupported source", "a sufficiently long message", "rumor", LowQualityScore, false},
		{"empty", "", "", LowQualityScore, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Validate(DataQualityRequest{Content: tt.content, DataSource: tt.source})
			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.MeetsThreshold != tt.wantMeets {
				t.Errorf("MeetsThreshold = %v, want %v", got.MeetsThreshold, tt.wantMeets)
			}
			if !tt.wantMeets && len(got.Issues) == 0 {
				t.Error("failed validation should list issues")
			}
		})
	}
}

func TestRuleEvaluator_Weighted(t *testing.T) {
	c := NewRuleEvaluatorColleague("re")

	tests := []struct {
		name      string
		outcomes  []RuleOutcome
		wantScore float64
		wantRec   rules.Action
	}{
		{
			name: "approve high and reject low",
			outcomes: []RuleOutcome{
				{Action: rules.ActionApprove, Confidence: ConfidenceHigh},
				{Action: rules.ActionReject, Confidence: ConfidenceLow},
			},
			wantScore: 1.0 / 1.3,
			wantRec:   rules.ActionContinue,
		},
		{
			name:      "single approve",
			outcomes:  []RuleOutcome{{Action: rules.ActionApprove, Confidence: ConfidenceMedium}},
			wantScore: 1.0,
			wantRec:   rules.ActionApprove,
		},
		{
			name: "retry and escalate",
			outcomes: []RuleOutcome{
				{Action: rules.ActionRetry, Confidence: ConfidenceHigh},
				{Action: rules.ActionEscalate, Confidence: ConfidenceHigh},
			},
			wantScore: 0.25,
			wantRec:   rules.ActionReject,
		},
		{
			name:      "unknown level counts as medium",
			outcomes:  []RuleOutcome{{Action: rules.ActionContinue, Confidence: "unsure"}},
			wantScore: 0.5,
			wantRec:   rules.ActionRetry,
		},
		{
			name:      "no outcomes",
			wantScore: 0.5,
			wantRec:   rules.ActionContinue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Evaluate(StrategyWeighted, tt.outcomes)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if math.Abs(got.Score-tt.wantScore) > 1e-9 {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Recommendation != tt.wantRec {
				t.Errorf("Recommendation = %s, want %s", got.Recommendation, tt.wantRec)
			}
		})
	}
}

func TestRuleEvaluator_Consensus(t *testing.T) {
	c := NewRuleEvaluatorColleague("re")

	tests := []struct {
		name       string
		actions    []rules.Action
		wantRec    rules.Action
		wantReview bool
	}{
		{"unanimous", []rules.Action{rules.ActionApprove, rules.ActionApprove}, rules.ActionApprove, false},
		{"two of three", []rules.Action{rules.ActionRetry, rules.ActionApprove, rules.ActionRetry}, rules.ActionRetry, false},
		{"split tie goes to first", []rules.Action{rules.ActionReject, rules.ActionApprove}, rules.ActionReject, true},
		{"empty", nil, rules.ActionContinue, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := make([]RuleOutcome, len(tt.actions))
			for i, a := range tt.actions {
				outcomes[i] = RuleOutcome{Action: a, Confidence: ConfidenceHigh}
			}
			got, err := c.Evaluate(StrategyConsensus, outcomes)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got.Recommendation != tt.wantRec {
				t.Errorf("Recommendation = %s, want %s", got.Recommendation, tt.wantRec)
			}
			if got.RequiresReview != tt.wantReview {
				t.Errorf("RequiresReview = %v, want %v (agreement %v)", got.RequiresReview, tt.wantReview, got.Agreement)
			}
		})
	}
}

func TestRuleEvaluator_UnknownStrategy(t *testing.T) {
	_, err := NewRuleEvaluatorColleague("re").Evaluate("majority", nil)
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("error = %v, want ErrUnknownStrategy", err)
	}
}

func TestOutcomesFrom(t *testing.T) {
	results := []*rules.ExecutionResult{
		{RuleName: "a", Action: rules.ActionRetry, Priority: 1},
		{RuleName: "b", Action: rules.ActionRetry, Priority: 20},
		{RuleName: "c", Action: rules.ActionApprove, Priority: 90},
		{RuleName: "d", Action: rules.ActionApprove, Priority: 1, Metadata: map[string]any{"confidence": "low"}},
	}
	want := []ConfidenceLevel{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceLow}

	got := OutcomesFrom(results)
	for i, o := range got {
		if o.Confidence != want[i] {
			t.Errorf("outcome %s confidence = %s, want %s", o.Rule, o.Confidence, want[i])
		}
	}
}

func TestPolicyColleague_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		ctx        rules.Context
		wantRec    PolicyRecommendation
		wantBlock  []string
		wantWarn   []string
		wantAudits int
	}{
		{
			name:    "clean content",
			ctx:     rules.Context{"content": "The capital of France is Paris.", "confidence": 0.9},
			wantRec: RecommendAllow,
		},
		{
			name:      "email is blocked",
			ctx:       rules.Context{"content": "Reach the owner at jane.doe@example.org for details", "confidence": 0.9},
			wantRec:   RecommendBlock,
			wantBlock: []string{CheckNoEmail},
		},
		{
			name:      "phone is blocked",
			ctx:       rules.Context{"raw_output": "Call the office on 555-123-4567 tomorrow", "confidence": 0.9},
			wantRec:   RecommendBlock,
			wantBlock: []string{CheckNoPhone},
		},
		{
			name:     "short content and low confidence warn",
			ctx:      rules.Context{"content": "ok", "confidence": 0.3},
			wantRec:  RecommendWarn,
			wantWarn: []string{CheckMinLength, CheckMinConfidence},
		},
		{
			name:       "banned keyword is audited only",
			ctx:        rules.Context{"content": "The admin password rotates weekly.", "confidence": 0.9},
			wantRec:    RecommendAllow,
			wantAudits: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicyColleague("policy", DefaultPolicies(), 0, testLogger())
			if err != nil {
				t.Fatalf("NewPolicyColleague() error: %v", err)
			}
			got := p.Evaluate(t.Context(), tt.ctx)

			if got.Recommendation != tt.wantRec {
				t.Errorf("Recommendation = %s, want %s", got.Recommendation, tt.wantRec)
			}
			if got.PoliciesChecked != len(DefaultPolicies()) {
				t.Errorf("PoliciesChecked = %d", got.PoliciesChecked)
			}
			if r := checkNames(got.Violations); strings.Join(r, ",") != strings.Join(tt.wantBlock, ",") {
				t.Errorf("violations = %v, want %v", r, tt.wantBlock)
			}
			if r := checkNames(got.Warnings); strings.Join(r, ",") != strings.Join(tt.wantWarn, ",") {
				t.Errorf("warnings = %v, want %v", r, tt.wantWarn)
			}
			if len(got.Audits) != tt.wantAudits {
				t.Errorf("audits = %d, want %d", len(got.Audits), tt.wantAudits)
			}
		})
	}
}

func checkNames(vs []Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Rule)
	}
	return out
}

func TestPolicyColleague_Management(t *testing.T) {
	p, err := NewPolicyColleague("policy", nil, 2, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := p.AddPolicy(Policy{ID: "x", Rules: []string{"no_ssn"}, EnforcementLevel: EnforcementBlock}); !errors.Is(err, ErrUnknownPolicyRule) {
		t.Errorf("AddPolicy(unknown rule) error = %v, want ErrUnknownPolicyRule", err)
	}
	if err := p.AddPolicy(Policy{ID: "x", Rules: []string{CheckNoEmail}, EnforcementLevel: "deny"}); err == nil {
		t.Error("AddPolicy(invalid level) should fail")
	}

	email := Policy{ID: "pii", Rules: []string{CheckNoEmail}, EnforcementLevel: EnforcementBlock, Active: true}
	if err := p.AddPolicy(email); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}
	if err := p.AddPolicy(email); err == nil {
		t.Error("AddPolicy(duplicate) should fail")
	}

	ctx := rules.Context{"content": "write to a@example.com"}
	for range 3 {
		p.Evaluate(t.Context(), ctx)
	}
	if got := p.Violations(0); len(got) != 2 {
		t.Errorf("Violations(0) = %d, want window of 2", len(got))
	}
	if got := p.ViolationSummary()["pii"]; got != 2 {
		t.Errorf("ViolationSummary()[pii] = %d, want 2", got)
	}

	if err := p.SetPolicyActive("pii", false); err != nil {
		t.Fatal(err)
	}
	if res := p.Evaluate(t.Context(), ctx); res.Recommendation != RecommendAllow || res.PoliciesChecked != 0 {
		t.Errorf("inactive policy evaluated: %+v", res)
	}
	if err := p.SetPolicyActive("missing", true); err == nil {
		t.Error("SetPolicyActive(missing) should fail")
	}
}
