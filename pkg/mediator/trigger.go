package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"mercator-hq/mediator/pkg/cooldown"
	"mercator-hq/mediator/pkg/rules"
)

// SkipReason explains why a trigger did not fire.
type SkipReason string

const (
	SkipInactive       SkipReason = "inactive"
	SkipCooldown       SkipReason = "cooldown"
	SkipConditions     SkipReason = "conditions_not_met"
	SkipConditionError SkipReason = "condition_error"
	SkipCooldownError  SkipReason = "cooldown_error"
)

// Trigger is an action fired when all of its conditions hold, at most once
// per cooldown window.
type Trigger struct {
	ID         string        `json:"id" yaml:"id"`
	ActionType ActionType    `json:"action_type" yaml:"action_type"`
	Conditions []string      `json:"conditions" yaml:"conditions"`
	Cooldown   time.Duration `json:"cooldown" yaml:"cooldown"`
	Active     bool          `json:"active" yaml:"active"`
}

// Firing records one executed trigger.
type Firing struct {
	ID         string         `json:"id"`
	TriggerID  string         `json:"trigger_id"`
	ActionType ActionType     `json:"action_type"`
	FiredAt    time.Time      `json:"fired_at"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Skip records a trigger that did not fire.
type Skip struct {
	TriggerID string        `json:"trigger_id"`
	Reason    SkipReason    `json:"reason"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// TriggerResult is the response to a TriggerRequest.
type TriggerResult struct {
	Fired   []Firing `json:"fired,omitempty"`
	Skipped []Skip   `json:"skipped,omitempty"`
}

// Kind implements Response.
func (*TriggerResult) Kind() RequestKind { return KindTriggers }

// FiredIDs returns the IDs of the triggers that fired.
func (r *TriggerResult) FiredIDs() []string {
	ids := make([]string, len(r.Fired))
	for i, f := range r.Fired {
		ids[i] = f.TriggerID
	}
	return ids
}

// SkipFor returns the skip entry for id, if any.
func (r *TriggerResult) SkipFor(id string) (Skip, bool) {
	for _, s := range r.Skipped {
		if s.TriggerID == id {
			return s, true
		}
	}
	return Skip{}, false
}

// TriggerOption configures an ActionTriggerColleague.
type TriggerOption func(*ActionTriggerColleague)

// WithCooldownStore sets where last firing times are kept.
func WithCooldownStore(s cooldown.Store) TriggerOption {
	return func(c *ActionTriggerColleague) {
		if s != nil {
			c.store = s
		}
	}
}

// WithDispatcher sets the side effect run for each firing.
func WithDispatcher(d Dispatcher) TriggerOption {
	return func(c *ActionTriggerColleague) {
		if d != nil {
			c.dispatcher = d
		}
	}
}

// WithTriggerLogger sets the logger.
func WithTriggerLogger(l *slog.Logger) TriggerOption {
	return func(c *ActionTriggerColleague) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TriggerOption {
	return func(c *ActionTriggerColleague) {
		if now != nil {
			c.now = now
		}
	}
}

// ActionTriggerColleague fires notifications, escalations and similar actions
// from CEL conditions over the evaluation context.
//
// Conditions see these variables: action, priority, role, sender_id and
// receiver_id as strings; confidence, hallucination_risk and
// semantic_drift_score as doubles; and ctx, the whole context as a map.
// Cooldowns are claimed through the cooldown store, so two overlapping
// evaluations cannot both fire the same trigger inside one window.
type ActionTriggerColleague struct {
	base

	env *cel.Env

	prgMu    sync.RWMutex
	prgCache map[string]cel.Program

	mu       sync.RWMutex
	triggers []*Trigger

	store      cooldown.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

var (
	celStringVars = []string{"action", "priority", "role", "sender_id", "receiver_id"}
	celDoubleVars = []string{"confidence", "hallucination_risk", "semantic_drift_score"}
)

// NewActionTriggerColleague creates a trigger colleague. Every trigger's
// conditions are compiled up front; the first invalid one is returned as a
// TriggerError.
func NewActionTriggerColleague(id string, triggers []Trigger, opts ...TriggerOption) (*ActionTriggerColleague, error) {
	decls := []cel.EnvOption{
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	}
	for _, name := range celStringVars {
		decls = append(decls, cel.Variable(name, cel.StringType))
	}
	for _, name := range celDoubleVars {
		decls = append(decls, cel.Variable(name, cel.DoubleType))
	}
	env, err := cel.NewEnv(decls...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &ActionTriggerColleague{
		base:     base{id: id},
		env:      env,
		prgCache: make(map[string]cel.Program),
		store:    cooldown.NewMemoryStore(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "mediator.trigger", "colleague", id)
	if c.dispatcher == nil {
		c.dispatcher = NewLogDispatcher(c.logger)
	}

	for _, t := range triggers {
		if err := c.AddTrigger(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Capabilities implements Colleague.
func (c *ActionTriggerColleague) Capabilities() []RequestKind {
	return []RequestKind{KindTriggers}
}

// Handle implements Colleague.
func (c *ActionTriggerColleague) Handle(ctx context.Context, req Request) (Response, error) {
	r, ok := req.(TriggerRequest)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, req)
	}
	return c.Evaluate(ctx, r.Context), nil
}

// AddTrigger compiles and adds t. IDs must be unique.
func (c *ActionTriggerColleague) AddTrigger(t Trigger) error {
	if t.ID == "" {
		return fmt.Errorf("trigger id is required")
	}
	if !t.ActionType.IsValid() {
		return fmt.Errorf("trigger %s: invalid action type %q", t.ID, t.ActionType)
	}
	if t.Cooldown < 0 {
		return fmt.Errorf("trigger %s: cooldown must be non-negative", t.ID)
	}
	for _, expr := range t.Conditions {
		if _, err := c.program(expr); err != nil {
			return &TriggerError{Trigger: t.ID, Condition: expr, Cause: err}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.triggers {
		if existing.ID == t.ID {
			return fmt.Errorf("trigger %s already exists", t.ID)
		}
	}
	t.Conditions = slices.Clone(t.Conditions)
	c.triggers = append(c.triggers, &t)
	return nil
}

// SetTriggerActive toggles a trigger.
func (c *ActionTriggerColleague) SetTriggerActive(id string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.triggers {
		if t.ID == id {
			t.Active = active
			return nil
		}
	}
	return fmt.Errorf("trigger %s not found", id)
}

// Triggers returns copies of the configured triggers.
func (c *ActionTriggerColleague) Triggers() []Trigger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Trigger, len(c.triggers))
	for i, t := range c.triggers {
		out[i] = *t
	}
	return out
}

// ResetCooldown clears the recorded firing for a trigger.
func (c *ActionTriggerColleague) ResetCooldown(ctx context.Context, id string) error {
	return c.store.Reset(ctx, id)
}

// Evaluate checks every trigger against rc in registration order.
func (c *ActionTriggerColleague) Evaluate(ctx context.Context, rc rules.Context) *TriggerResult {
	res := &TriggerResult{}
	vars := activation(rc)

	for _, t := range c.Triggers() {
		if !t.Active {
			c.skip(ctx, res, t, Skip{TriggerID: t.ID, Reason: SkipInactive})
			continue
		}

		ok, err := c.conditionsHold(ctx, t, vars)
		if err != nil {
			c.logger.WarnContext(ctx, "trigger condition failed", "trigger", t.ID, "error", err)
			c.skip(ctx, res, t, Skip{TriggerID: t.ID, Reason: SkipConditionError, Error: err.Error()})
			continue
		}
		if !ok {
			c.skip(ctx, res, t, Skip{TriggerID: t.ID, Reason: SkipConditions})
			continue
		}

		now := c.now()
		acquired, remaining, err := c.store.TryAcquire(ctx, t.ID, now, t.Cooldown)
		if err != nil {
			c.logger.ErrorContext(ctx, "cooldown check failed", "trigger", t.ID, "error", err)
			c.skip(ctx, res, t, Skip{TriggerID: t.ID, Reason: SkipCooldownError, Error: err.Error()})
			continue
		}
		if !acquired {
			c.skip(ctx, res, t, Skip{TriggerID: t.ID, Reason: SkipCooldown, Remaining: remaining})
			continue
		}

		f := c.fire(ctx, t, rc, now)
		res.Fired = append(res.Fired, f)
		c.notify(ctx, EventTriggerFired, map[string]any{
			"trigger_id":  t.ID,
			"action_type": string(t.ActionType),
			"firing_id":   f.ID,
		})
	}
	return res
}

func (c *ActionTriggerColleague) skip(ctx context.Context, res *TriggerResult, t Trigger, s Skip) {
	res.Skipped = append(res.Skipped, s)
	c.notify(ctx, EventTriggerSkipped, map[string]any{
		"trigger_id":  t.ID,
		"action_type": string(t.ActionType),
		"reason":      string(s.Reason),
	})
}

func (c *ActionTriggerColleague) fire(ctx context.Context, t Trigger, rc rules.Context, now time.Time) (f Firing) {
	f = Firing{
		ID:         uuid.NewString(),
		TriggerID:  t.ID,
		ActionType: t.ActionType,
		FiredAt:    now,
	}
	defer func() {
		if r := recover(); r != nil {
			f.Error = fmt.Sprintf("dispatcher panic: %v", r)
			c.logger.ErrorContext(ctx, "trigger dispatcher panicked", "trigger", t.ID, "panic", r)
		}
	}()

	result, err := c.dispatcher.Dispatch(ctx, t, rc)
	f.Result = result
	if err != nil {
		f.Error = err.Error()
		c.logger.WarnContext(ctx, "trigger dispatch failed", "trigger", t.ID, "error", err)
		return f
	}
	c.logger.InfoContext(ctx, "trigger fired", "trigger", t.ID, "action_type", t.ActionType)
	return f
}

func (c *ActionTriggerColleague) conditionsHold(ctx context.Context, t Trigger, vars map[string]any) (bool, error) {
	for _, expr := range t.Conditions {
		prg, err := c.program(expr)
		if err != nil {
			return false, err
		}
		out, _, err := prg.ContextEval(ctx, vars)
		if err != nil {
			return false, fmt.Errorf("eval %q: %w", expr, err)
		}
		val, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("condition %q did not produce a bool", expr)
		}
		if !val {
			return false, nil
		}
	}
	return true, nil
}

// program returns the compiled program for expr, compiling it on first use.
func (c *ActionTriggerColleague) program(expr string) (cel.Program, error) {
	c.prgMu.RLock()
	prg, hit := c.prgCache[expr]
	c.prgMu.RUnlock()
	if hit {
		return prg, nil
	}

	c.prgMu.Lock()
	defer c.prgMu.Unlock()
	if prg, hit = c.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must be a bool expression, got %s", out)
	}
	prg, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	c.prgCache[expr] = prg
	return prg, nil
}

// activation maps a rules context onto the declared CEL variables. Missing
// values become zero values so conditions never fail on absent keys.
func activation(rc rules.Context) map[string]any {
	vars := make(map[string]any, len(celStringVars)+len(celDoubleVars)+1)
	for _, name := range celStringVars {
		s := ""
		if v, ok := rc.Lookup(name); ok && v != nil {
			s = fmt.Sprint(v)
		}
		vars[name] = s
	}
	for _, name := range celDoubleVars {
		f := 0.0
		if v, ok := rc.Lookup(name); ok {
			if n, ok := toFloat(v); ok {
				f = n
			}
		}
		vars[name] = f
	}
	ctxMap := make(map[string]any, len(rc))
	for k, v := range rc {
		ctxMap[k] = v
	}
	vars["ctx"] = ctxMap
	return vars
}
