package rules

// DefaultRuleSet returns the built-in rules used when no rule file is
// configured. Field names match the context assembled by the evaluator.
func DefaultRuleSet() *RuleSet {
	enabled := true
	return &RuleSet{
		Version: CurrentVersion,
		Rules: []RuleSpec{
			{
				Name:        "critical_hallucination",
				Description: "Escalate messages with very high hallucination risk",
				Action:      string(ActionEscalate),
				Priority:    1,
				Enabled:     &enabled,
				Conditions: []ConditionSpec{
					{Field: "hallucination_risk", Operator: ">", Value: 0.8},
				},
				Metadata: map[string]any{"priority": "high"},
			},
			{
				Name:        "very_low_confidence",
				Description: "Reject messages the evaluator has little confidence in",
				Action:      string(ActionReject),
				Priority:    2,
				Enabled:     &enabled,
				Conditions: []ConditionSpec{
					{Field: "confidence", Operator: "<", Value: 0.3},
				},
			},
			{
				Name:        "semantic_drift_warning",
				Description: "Warn when the message drifts from the conversation",
				Action:      string(ActionLogWarning),
				Priority:    10,
				Enabled:     &enabled,
				Conditions: []ConditionSpec{
					{Field: "semantic_drift_score", Operator: ">", Value: 0.5},
				},
			},
			{
				Name:        "moderate_confidence_retry",
				Description: "Ask for a retry when confidence is borderline",
				Action:      string(ActionRetry),
				Priority:    20,
				Enabled:     &enabled,
				Conditions: []ConditionSpec{
					{Field: "confidence", Operator: "between", Value: []any{0.3, 0.5}},
				},
			},
			{
				Name:        "high_quality_approve",
				Description: "Approve confident messages with low hallucination risk",
				Action:      string(ActionApprove),
				Priority:    50,
				Enabled:     &enabled,
				Conditions: []ConditionSpec{
					{Field: "confidence", Operator: ">=", Value: 0.9},
					{Field: "hallucination_risk", Operator: "<", Value: 0.1},
				},
			},
		},
	}
}
