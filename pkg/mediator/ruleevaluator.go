package mediator

import (
	"context"
	"fmt"

	"mercator-hq/mediator/pkg/rules"
)

// Strategy selects how rule outcomes are aggregated.
type Strategy string

const (
	StrategyWeighted  Strategy = "weighted"
	StrategyConsensus Strategy = "consensus"
)

// ConfidenceLevel qualifies a rule outcome.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// actionScores maps actions to their weighted-strategy score.
var actionScores = map[rules.Action]float64{
	rules.ActionApprove:  1.0,
	rules.ActionContinue: 0.5,
	rules.ActionRetry:    0.3,
	rules.ActionReject:   0.0,
	rules.ActionEscalate: 0.2,
}

// neutralScore applies to actions without an entry in actionScores.
const neutralScore = 0.5

var confidenceWeights = map[ConfidenceLevel]float64{
	ConfidenceHigh:   1.0,
	ConfidenceMedium: 0.7,
	ConfidenceLow:    0.3,
}

// Recommendation thresholds for the weighted strategy.
const (
	approveThreshold  = 0.8
	continueThreshold = 0.6
	retryThreshold    = 0.3

	// reviewAgreement is the consensus agreement below which review is required.
	reviewAgreement = 0.6
)

// RuleOutcome is one prior rule result fed into a strategy.
type RuleOutcome struct {
	Rule       string          `json:"rule,omitempty"`
	Action     rules.Action    `json:"action"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// OutcomesFrom converts engine results. The confidence level comes from the
// rule metadata key "confidence" and otherwise from its priority band.
func OutcomesFrom(results []*rules.ExecutionResult) []RuleOutcome {
	out := make([]RuleOutcome, 0, len(results))
	for _, r := range results {
		level := ConfidenceLevel("")
		if v, ok := r.Metadata["confidence"].(string); ok {
			level = ConfidenceLevel(v)
		}
		if _, known := confidenceWeights[level]; !known {
			switch {
			case r.Priority < 10:
				level = ConfidenceHigh
			case r.Priority < 50:
				level = ConfidenceMedium
			default:
				level = ConfidenceLow
			}
		}
		out = append(out, RuleOutcome{Rule: r.RuleName, Action: r.Action, Confidence: level})
	}
	return out
}

// StrategyResult is the response to a RuleStrategyRequest.
type StrategyResult struct {
	Strategy       Strategy             `json:"strategy"`
	Score          float64              `json:"score"`
	Recommendation rules.Action         `json:"recommendation"`
	Agreement      float64              `json:"agreement,omitempty"`
	RequiresReview bool                 `json:"requires_review"`
	Counts         map[rules.Action]int `json:"counts,omitempty"`
}

// Kind implements Response.
func (*StrategyResult) Kind() RequestKind { return KindRuleStrategy }

// RuleEvaluatorColleague aggregates rule outcomes.
type RuleEvaluatorColleague struct {
	base
}

// NewRuleEvaluatorColleague creates a rule-strategy colleague.
func NewRuleEvaluatorColleague(id string) *RuleEvaluatorColleague {
	return &RuleEvaluatorColleague{base: base{id: id}}
}

// Capabilities implements Colleague.
func (c *RuleEvaluatorColleague) Capabilities() []RequestKind {
	return []RequestKind{KindRuleStrategy}
}

// Handle implements Colleague.
func (c *RuleEvaluatorColleague) Handle(ctx context.Context, req Request) (Response, error) {
	r, ok := req.(RuleStrategyRequest)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, req)
	}
	return c.Evaluate(r.Strategy, r.Outcomes)
}

// Evaluate applies strategy to outcomes.
func (c *RuleEvaluatorColleague) Evaluate(strategy Strategy, outcomes []RuleOutcome) (*StrategyResult, error) {
	switch strategy {
	case StrategyWeighted, "":
		return weighted(outcomes), nil
	case StrategyConsensus:
		return consensus(outcomes), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// weighted averages action scores weighted by confidence level.
func weighted(outcomes []RuleOutcome) *StrategyResult {
	res := &StrategyResult{Strategy: StrategyWeighted, Counts: countActions(outcomes)}

	var sum, weights float64
	for _, o := range outcomes {
		score, ok := actionScores[o.Action]
		if !ok {
			score = neutralScore
		}
		w, ok := confidenceWeights[o.Confidence]
		if !ok {
			w = confidenceWeights[ConfidenceMedium]
		}
		sum += score * w
		weights += w
	}

	if weights == 0 {
		res.Score = neutralScore
		res.Recommendation = rules.ActionContinue
		res.RequiresReview = true
		return res
	}

	res.Score = sum / weights
	switch {
	case res.Score >= approveThreshold:
		res.Recommendation = rules.ActionApprove
	case res.Score >= continueThreshold:
		res.Recommendation = rules.ActionContinue
	case res.Score >= retryThreshold:
		res.Recommendation = rules.ActionRetry
	default:
		res.Recommendation = rules.ActionReject
	}
	return res
}

// consensus takes the majority action; ties go to the action seen first.
func consensus(outcomes []RuleOutcome) *StrategyResult {
	res := &StrategyResult{Strategy: StrategyConsensus, Counts: countActions(outcomes)}
	if len(outcomes) == 0 {
		res.Recommendation = rules.ActionContinue
		res.RequiresReview = true
		return res
	}

	best, bestCount := outcomes[0].Action, 0
	for _, o := range outcomes {
		if n := res.Counts[o.Action]; n > bestCount {
			best, bestCount = o.Action, n
		}
	}

	res.Recommendation = best
	res.Agreement = float64(bestCount) / float64(len(outcomes))
	res.Score = res.Agreement
	res.RequiresReview = res.Agreement < reviewAgreement
	return res
}

func countActions(outcomes []RuleOutcome) map[rules.Action]int {
	counts := make(map[rules.Action]int, len(outcomes))
	for _, o := range outcomes {
		counts[o.Action]++
	}
	return counts
}
