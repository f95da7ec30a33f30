package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/mediator/pkg/rules"
)

// ConsultConfidenceThreshold is the confidence below which an enhanced
// evaluation always consults colleagues.
const ConsultConfidenceThreshold = 0.6

// ShouldConsult reports whether an outcome warrants colleague consultation:
// low confidence, an escalate or reject action, or pending corrections.
func ShouldConsult(confidence float64, action rules.Action, hasCorrections bool) bool {
	return confidence < ConsultConfidenceThreshold ||
		action == rules.ActionEscalate ||
		action == rules.ActionReject ||
		hasCorrections
}

// Consultation collects colleague answers for one evaluation and the action
// they lead to. A nil field means that colleague was not consulted or failed;
// failures are listed in Errors.
type Consultation struct {
	InitialAction rules.Action       `json:"initial_action"`
	FinalAction   rules.Action       `json:"final_action"`
	Requested     []RequestKind      `json:"requested"`
	DataQuality   *DataQualityResult `json:"data_quality,omitempty"`
	Policy        *PolicyResult      `json:"policy,omitempty"`
	Strategy      *StrategyResult    `json:"strategy,omitempty"`
	Triggers      *TriggerResult     `json:"triggers,omitempty"`
	Reasons       []string           `json:"reasons,omitempty"`
	Errors        []error            `json:"-"`
}

// Changed reports whether the consultation altered the action.
func (c *Consultation) Changed() bool {
	return c.InitialAction != c.FinalAction
}

// EnhancedResult is the outcome of an enhanced evaluation.
type EnhancedResult struct {
	Results      []*rules.ExecutionResult `json:"results"`
	Action       rules.Action             `json:"action"`
	Consultation *Consultation            `json:"consultation,omitempty"`
}

// EnhancedOption configures an EnhancedEngine.
type EnhancedOption func(*EnhancedEngine)

// WithEnhancedLogger sets the logger.
func WithEnhancedLogger(l *slog.Logger) EnhancedOption {
	return func(e *EnhancedEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEnhancedTracer sets the tracer.
func WithEnhancedTracer(t trace.Tracer) EnhancedOption {
	return func(e *EnhancedEngine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// EnhancedEngine composes a rule engine with a mediator. Rules with the
// consult action, and outcomes that ShouldConsult flags, route sub-checks to
// the mediator's colleagues and may change the action.
type EnhancedEngine struct {
	engine   *rules.Engine
	mediator *Mediator
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewEnhancedEngine creates an enhanced engine.
func NewEnhancedEngine(engine *rules.Engine, m *Mediator, opts ...EnhancedOption) (*EnhancedEngine, error) {
	if engine == nil {
		return nil, fmt.Errorf("rule engine is required")
	}
	if m == nil {
		return nil, fmt.Errorf("mediator is required")
	}
	e := &EnhancedEngine{
		engine:   engine,
		mediator: m,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "mediator.enhanced")
	return e, nil
}

// Engine returns the underlying rule engine.
func (e *EnhancedEngine) Engine() *rules.Engine { return e.engine }

// Mediator returns the underlying mediator.
func (e *EnhancedEngine) Mediator() *Mediator { return e.mediator }

// EvaluateRules runs the rule engine only.
func (e *EnhancedEngine) EvaluateRules(ctx context.Context, c rules.Context) []*rules.ExecutionResult {
	return e.engine.Evaluate(ctx, c)
}

// Evaluate runs the rules and reviews the resulting action.
func (e *EnhancedEngine) Evaluate(ctx context.Context, c rules.Context) *EnhancedResult {
	results := e.engine.Evaluate(ctx, c)
	res := &EnhancedResult{Results: results, Action: ActionOf(results)}
	if cons := e.Review(ctx, c, res.Action, results); cons != nil {
		res.Consultation = cons
		res.Action = cons.FinalAction
	}
	return res
}

// Review consults colleagues about action when a matched consult rule asks
// for it or ShouldConsult flags the outcome. Confidence and pending
// corrections are read from c. It returns nil when no consultation is needed.
func (e *EnhancedEngine) Review(ctx context.Context, c rules.Context, action rules.Action, results []*rules.ExecutionResult) *Consultation {
	requested := consultKinds(results)
	confidence := 1.0
	if v, ok := c.Lookup("confidence"); ok {
		if f, ok := toFloat(v); ok {
			confidence = f
		}
	}
	if ShouldConsult(confidence, action, hasCorrections(c)) {
		requested = AllKinds()
	}
	if len(requested) == 0 {
		return nil
	}
	return e.consult(ctx, c, action, results, requested)
}

// Consult asks every colleague kind about an outcome reached elsewhere.
func (e *EnhancedEngine) Consult(ctx context.Context, c rules.Context, action rules.Action, results []*rules.ExecutionResult) *Consultation {
	return e.consult(ctx, c, action, results, AllKinds())
}

// AllKinds returns every request kind in consultation order.
func AllKinds() []RequestKind {
	return []RequestKind{KindDataQuality, KindPolicyCheck, KindRuleStrategy, KindTriggers}
}

func (e *EnhancedEngine) consult(ctx context.Context, c rules.Context, action rules.Action, results []*rules.ExecutionResult, kinds []RequestKind) *Consultation {
	ctx, span := e.tracer.Start(ctx, "mediator.consult",
		trace.WithAttributes(attribute.String("mediator.action.initial", string(action))))
	defer span.End()

	cons := &Consultation{
		InitialAction: action,
		FinalAction:   action,
		Requested:     kinds,
	}
	want := func(k RequestKind) bool { return slices.Contains(kinds, k) }
	fail := func(k RequestKind, err error) {
		cons.Errors = append(cons.Errors, &ContributorError{Kind: k, Err: err})
		span.RecordError(err)
		e.logger.WarnContext(ctx, "colleague consultation failed", "kind", k, "error", err)
	}

	if want(KindDataQuality) {
		if src, ok := c.Lookup("data_source"); ok {
			dq, err := e.mediator.CheckDataQuality(ctx, DataQualityRequest{
				Content:    contentOf(c),
				DataSource: fmt.Sprint(src),
			}, "")
			if err != nil {
				fail(KindDataQuality, err)
			} else {
				cons.DataQuality = dq
			}
		}
	}

	if want(KindPolicyCheck) {
		pr, err := e.mediator.CheckPolicies(ctx, PolicyCheckRequest{Context: c}, "")
		if err != nil {
			fail(KindPolicyCheck, err)
		} else {
			cons.Policy = pr
		}
	}

	if want(KindRuleStrategy) && len(results) > 0 {
		sr, err := e.mediator.EvaluateStrategy(ctx, RuleStrategyRequest{
			Strategy: StrategyWeighted,
			Outcomes: OutcomesFrom(results),
		}, "")
		if err != nil {
			fail(KindRuleStrategy, err)
		} else {
			cons.Strategy = sr
		}
	}

	switch {
	case cons.Policy != nil && cons.Policy.Blocked():
		cons.FinalAction = rules.ActionReject
		cons.Reasons = append(cons.Reasons, "policy violation: "+strings.Join(blockedPolicies(cons.Policy), ", "))
	case cons.DataQuality != nil && !cons.DataQuality.MeetsThreshold && cons.FinalAction == rules.ActionApprove:
		cons.FinalAction = rules.ActionRetry
		cons.Reasons = append(cons.Reasons, fmt.Sprintf("data quality %.2f below threshold %.2f",
			cons.DataQuality.Score, cons.DataQuality.Threshold))
	}

	if want(KindTriggers) {
		tc := c.With("action", string(cons.FinalAction))
		if _, ok := tc.Lookup("priority"); !ok {
			if p := priorityOf(results); p != "" {
				tc = tc.With("priority", p)
			}
		}
		tr, err := e.mediator.EvaluateTriggers(ctx, TriggerRequest{Context: tc}, "")
		if err != nil {
			fail(KindTriggers, err)
		} else {
			cons.Triggers = tr
		}
	}

	span.SetAttributes(
		attribute.String("mediator.action.final", string(cons.FinalAction)),
		attribute.Int("mediator.consult.errors", len(cons.Errors)),
	)
	if cons.Changed() {
		e.logger.InfoContext(ctx, "consultation changed action",
			"from", cons.InitialAction,
			"to", cons.FinalAction,
			"reasons", cons.Reasons,
		)
	}
	return cons
}

// ActionOf picks the action an engine result list stands for: the decisive
// result when present, otherwise the first result that is not a consult
// request, otherwise continue.
func ActionOf(results []*rules.ExecutionResult) rules.Action {
	if d, ok := rules.DecisiveOf(results); ok {
		return d.Action
	}
	for _, r := range results {
		if r.Action != rules.ActionConsult {
			return r.Action
		}
	}
	return rules.ActionContinue
}

// consultKinds returns the kinds requested by matched consult rules through
// their "consult" metadata. A consult rule without one requests all kinds.
func consultKinds(results []*rules.ExecutionResult) []RequestKind {
	var kinds []RequestKind
	for _, r := range results {
		if r.Action != rules.ActionConsult {
			continue
		}
		k, _ := r.Metadata["consult"].(string)
		if k == "" {
			return AllKinds()
		}
		if kind := RequestKind(k); !slices.Contains(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func hasCorrections(c rules.Context) bool {
	for _, key := range []string{"correction_tags", "clarity_issues"} {
		v, ok := c.Lookup(key)
		if !ok {
			continue
		}
		switch tags := v.(type) {
		case []string:
			if len(tags) > 0 {
				return true
			}
		case []any:
			if len(tags) > 0 {
				return true
			}
		}
	}
	return false
}

func priorityOf(results []*rules.ExecutionResult) string {
	for i := len(results) - 1; i >= 0; i-- {
		if p, ok := results[i].Metadata["priority"].(string); ok && p != "" {
			return p
		}
	}
	return ""
}

func blockedPolicies(r *PolicyResult) []string {
	var ids []string
	for _, v := range r.Violations {
		if !slices.Contains(ids, v.PolicyID) {
			ids = append(ids, v.PolicyID)
		}
	}
	return ids
}
