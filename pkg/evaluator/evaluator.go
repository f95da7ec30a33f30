package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/mediator"
	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/rules"
	"mercator-hq/mediator/pkg/telemetry/logging"
	"mercator-hq/mediator/pkg/telemetry/tracing"
)

// Correction tags added when colleagues change the decision.
const (
	TagPolicyViolation = "policy-violation"
	TagDataQuality     = "data-quality"
)

// Degraded contributor labels.
const (
	ContributorRules    = "rules"
	ContributorRule     = "rule"
	ContributorMediator = "mediator"
)

// Evaluator scores agent messages and produces one Reflection per call.
// It is safe for concurrent use.
type Evaluator struct {
	id       string
	cfg      config.EvaluatorConfig
	analyzer *Analyzer

	engine   *rules.Engine
	enhanced *mediator.EnhancedEngine

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics Metrics
	now     func() time.Time

	sem chan struct{}
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRuleEngine attaches a rule engine whose decisive results override the
// heuristic decision.
func WithRuleEngine(engine *rules.Engine) Option {
	return func(e *Evaluator) {
		if engine != nil {
			e.engine = engine
		}
	}
}

// WithEnhancedEngine attaches a mediator-aware engine. Its rule engine
// replaces any set by WithRuleEngine.
func WithEnhancedEngine(enhanced *mediator.EnhancedEngine) Option {
	return func(e *Evaluator) {
		if enhanced != nil {
			e.enhanced = enhanced
			e.engine = enhanced.Engine()
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Evaluator) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Evaluator) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an evaluator from cfg, normally config.DefaultEvaluatorConfig
// with overrides. An empty MediatorID becomes a random UUID.
func New(cfg config.EvaluatorConfig, opts ...Option) *Evaluator {
	cfg = withDefaults(cfg)
	e := &Evaluator{
		id:       cfg.MediatorID,
		cfg:      cfg,
		analyzer: NewAnalyzer(cfg),
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		metrics:  nopMetrics{},
		now:      time.Now,
		sem:      make(chan struct{}, cfg.Workers),
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "evaluator", "mediator_id", e.id)
	return e
}

// ID returns the mediator ID written into reflections.
func (e *Evaluator) ID() string { return e.id }

// Analyzer returns the signal analyzer.
func (e *Evaluator) Analyzer() *Analyzer { return e.analyzer }

// Evaluate scores msg as a first attempt (iteration 0).
func (e *Evaluator) Evaluate(ctx context.Context, msg *message.AgentMessage) (*reflection.Reflection, error) {
	return e.EvaluateIteration(ctx, msg, 0)
}

// EvaluateIteration scores msg and records iteration in the reflection.
// A structurally invalid message fails with a *message.ValidationError before
// any scoring runs. Rule and colleague failures never fail the call; the
// failing contributor is listed in Reflection.Degraded and excluded.
func (e *Evaluator) EvaluateIteration(ctx context.Context, msg *message.AgentMessage, iteration int) (*reflection.Reflection, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	start := e.now()
	ctx, span := e.tracer.Start(ctx, "evaluator.evaluate",
		trace.WithAttributes(tracing.MessageAttributes(
			msg.TraceID, msg.SessionID, msg.SenderID, msg.ReceiverID, string(msg.Role))...))
	defer span.End()
	ctx = logging.WithSessionID(logging.WithTraceID(ctx, msg.TraceID), msg.SessionID)

	s := e.analyzer.Analyze(msg)
	tracing.SetSignalAttributes(span, s.Confidence, s.HallucinationRisk, s.SemanticDrift)

	h := e.analyzer.Decide(s)
	r := &reflection.Reflection{
		ID:                 uuid.NewString(),
		MediatorID:         e.id,
		TraceID:            msg.TraceID,
		SessionID:          msg.SessionID,
		SenderID:           msg.SenderID,
		ReceiverID:         msg.ReceiverID,
		ActionTaken:        h.Action,
		ConfidenceScore:    s.Confidence,
		Explanation:        h.Explanation,
		CorrectionTags:     slices.Clone(h.Tags),
		IterationCount:     iteration,
		HallucinationRisk:  s.HallucinationRisk,
		SemanticDriftScore: s.SemanticDriftScore,
		SemanticDrift:      s.SemanticDrift,
		ClarityIssues:      slices.Clone(s.ClarityIssues),
		HeuristicAction:    h.Action,
		CreatedAt:          start,
	}

	if e.engine != nil {
		c := e.analyzer.BuildContext(msg, s, h, iteration)
		if results, ok := e.applyRules(ctx, r, c); ok && e.enhanced != nil {
			e.applyConsultation(ctx, r, c, results)
		}
	}

	if r.ActionTaken == reflection.ActionModify {
		if healed := e.analyzer.Heal(msg, s, r.CorrectionTags, iteration); healed != nil {
			r.HasHealed = true
			r.Healed = healed
		}
	}

	r.Duration = e.now().Sub(start)
	tracing.SetDecisionAttributes(span, string(r.ActionTaken), r.CorrectionTags, r.HasHealed)
	e.metrics.RecordDecision(string(r.ActionTaken), r.Duration, r.ConfidenceScore, r.HallucinationRisk)

	e.logger.DebugContext(ctx, "message evaluated",
		"action", r.ActionTaken,
		"heuristic_action", r.HeuristicAction,
		"confidence", r.ConfidenceScore,
		"hallucination_risk", r.HallucinationRisk,
		"correction_tags", r.CorrectionTags,
		"healed", r.HasHealed,
		"iteration", iteration,
	)
	return r, nil
}

// applyRules runs the rule engine and merges its results into r. A decisive
// result overrides the heuristic action, and a passing override clears the
// heuristic correction tags; other results are noted in the explanation. Failed results are dropped. It returns the usable results and
// whether the engine ran at all.
func (e *Evaluator) applyRules(ctx context.Context, r *reflection.Reflection, c rules.Context) ([]*rules.ExecutionResult, bool) {
	results, err := guard(func() []*rules.ExecutionResult {
		return e.engine.Evaluate(ctx, c)
	})
	if err != nil {
		e.degrade(ctx, r, ContributorRules, ContributorRules, err)
		return nil, false
	}

	usable := make([]*rules.ExecutionResult, 0, len(results))
	var notes []string
	for _, res := range results {
		if res.Failed() {
			e.degrade(ctx, r, ContributorRule, "rule:"+res.RuleName, fmt.Errorf("%s", res.Error))
			continue
		}
		usable = append(usable, res)
		r.RulesTriggered = append(r.RulesTriggered, res.RuleName)
		if !res.Action.IsDecisive() {
			notes = append(notes, fmt.Sprintf("%s (%s)", res.Action, res.RuleName))
		}
	}

	if len(notes) > 0 {
		r.Explanation += "; rules noted: " + strings.Join(notes, ", ")
	}
	if d, ok := rules.DecisiveOf(usable); ok {
		r.ActionTaken = reflection.Action(d.Action)
		r.Explanation += fmt.Sprintf("; rule %s decided %s", d.RuleName, d.Action)
		if r.ActionTaken.Passed() {
			r.CorrectionTags = nil
		}
	}
	return usable, true
}

// applyConsultation asks the mediator to review the current action and adopts
// the reviewed action when it changed.
func (e *Evaluator) applyConsultation(ctx context.Context, r *reflection.Reflection, c rules.Context, results []*rules.ExecutionResult) {
	initial := ruleAction(r.ActionTaken)
	cons, err := guard(func() *mediator.Consultation {
		return e.enhanced.Review(ctx, c, initial, results)
	})
	if err != nil {
		e.degrade(ctx, r, ContributorMediator, ContributorMediator, err)
		return
	}
	if cons == nil {
		return
	}

	r.Consulted = true
	for _, cerr := range cons.Errors {
		label := ContributorMediator
		var ce *mediator.ContributorError
		if errors.As(cerr, &ce) {
			label += ":" + string(ce.Kind)
		}
		e.degrade(ctx, r, ContributorMediator, label, cerr)
	}

	if !cons.Changed() {
		return
	}
	switch cons.FinalAction {
	case rules.ActionReject:
		r.ActionTaken = reflection.ActionReject
		r.CorrectionTags = appendTag(r.CorrectionTags, TagPolicyViolation)
	case rules.ActionRetry:
		r.ActionTaken = reflection.ActionRetry
		r.CorrectionTags = appendTag(r.CorrectionTags, TagDataQuality)
	default:
		if a := reflection.Action(cons.FinalAction); a.IsValid() {
			r.ActionTaken = a
			if a.Passed() {
				r.CorrectionTags = nil
			}
		}
	}
	if len(cons.Reasons) > 0 {
		r.Explanation += "; mediator: " + strings.Join(cons.Reasons, "; ")
	}
}

func (e *Evaluator) degrade(ctx context.Context, r *reflection.Reflection, metric, label string, err error) {
	r.Degraded = append(r.Degraded, label)
	e.metrics.RecordDegraded(metric)
	trace.SpanFromContext(ctx).RecordError(err)
	e.logger.WarnContext(ctx, "contributor failed, continuing without it",
		"contributor", label,
		"trace_id", r.TraceID,
		"error", err,
	)
}

// ruleAction maps a reflection action onto the rule vocabulary used by the
// mediator: pass reads as approve and modify as retry.
func ruleAction(a reflection.Action) rules.Action {
	switch a {
	case reflection.ActionPass:
		return rules.ActionApprove
	case reflection.ActionModify:
		return rules.ActionRetry
	default:
		return rules.Action(a)
	}
}

func appendTag(tags []string, tag string) []string {
	if slices.Contains(tags, tag) {
		return tags
	}
	return append(tags, tag)
}

// guard runs fn, converting a panic into an error.
func guard[T any](fn func() T) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(), nil
}
