package rules

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"
)

// Action is the outcome a rule requests when it matches.
type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionEscalate   Action = "escalate"
	ActionRetry      Action = "retry"
	ActionContinue   Action = "continue"
	ActionLogWarning Action = "log_warning"
	ActionCustom     Action = "custom"

	// ActionConsult asks a mediator-aware engine to consult colleagues.
	// The request kind is read from the rule's "consult" metadata key.
	ActionConsult Action = "consult"
)

// Actions returns every known action.
func Actions() []Action {
	return []Action{
		ActionApprove, ActionReject, ActionEscalate,
		ActionRetry, ActionContinue, ActionLogWarning, ActionCustom, ActionConsult,
	}
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionEscalate,
		ActionRetry, ActionContinue, ActionLogWarning, ActionCustom, ActionConsult:
		return true
	}
	return false
}

// IsDecisive reports whether a stops further rule processing.
func (a Action) IsDecisive() bool {
	return a == ActionApprove || a == ActionReject || a == ActionEscalate
}

// ParseAction parses a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("unknown action: %q", s)
	}
	return a, nil
}

// Condition is a single predicate over a context field.
type Condition struct {
	Field       string
	Operator    Operator
	Value       any
	Description string
}

// Evaluate reports whether the condition holds for c.
// Unresolvable fields and incomparable operands yield false.
func (cond Condition) Evaluate(c Context) bool {
	actual, ok := c.Lookup(cond.Field)
	if !ok {
		return false
	}

	matched, err := evaluateOperator(cond.Operator, actual, cond.Value)
	if err != nil {
		return false
	}
	return matched
}

// String renders the condition for logs.
func (cond Condition) String() string {
	return fmt.Sprintf("%s %s %v", cond.Field, cond.Operator, cond.Value)
}

// Rule is a named, prioritized set of conditions with one action.
// Rules are shared between engine snapshots; only the enabled flag may change
// after registration.
type Rule struct {
	Name        string
	Description string
	Conditions  []Condition
	Action      Action

	// Priority orders evaluation; lower values run first.
	Priority int

	// Handler runs when Action is ActionCustom. When nil the engine looks up
	// HandlerName in its handler registry.
	Handler     HandlerFunc
	HandlerName string

	Metadata map[string]any

	disabled atomic.Bool
}

// NewRule creates an enabled rule.
func NewRule(name string, action Action, priority int, conditions ...Condition) *Rule {
	return &Rule{
		Name:       name,
		Action:     action,
		Priority:   priority,
		Conditions: conditions,
	}
}

// Enabled reports whether the rule participates in evaluation.
func (r *Rule) Enabled() bool {
	return !r.disabled.Load()
}

// SetEnabled toggles the rule.
func (r *Rule) SetEnabled(enabled bool) {
	r.disabled.Store(!enabled)
}

// Evaluate returns the AND of all conditions, stopping at the first false.
func (r *Rule) Evaluate(c Context) bool {
	for _, cond := range r.Conditions {
		if !cond.Evaluate(c) {
			return false
		}
	}
	return true
}

// Execute produces the rule's result for c using r.Handler for custom rules.
func (r *Rule) Execute(ctx context.Context, c Context) *ExecutionResult {
	return r.execute(ctx, c, r.Handler, DefaultSnapshotFields)
}

func (r *Rule) execute(ctx context.Context, c Context, handler HandlerFunc, fields []string) *ExecutionResult {
	result := &ExecutionResult{
		RuleName:        r.Name,
		Action:          r.Action,
		Priority:        r.Priority,
		ExecutedAt:      time.Now(),
		ContextSnapshot: Snapshot(c, fields),
		Metadata:        maps.Clone(r.Metadata),
	}

	if r.Action != ActionCustom {
		return result
	}

	if handler == nil {
		result.Error = (&HandlerError{Rule: r.Name, Handler: r.HandlerName, Cause: ErrHandlerNotFound}).Error()
		return result
	}

	out, err := invokeHandler(ctx, handler, c, r)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.CustomResult = out
	return result
}

// ExecutionResult records one matched rule.
type ExecutionResult struct {
	RuleName        string         `json:"rule_name"`
	Action          Action         `json:"action"`
	Priority        int            `json:"priority"`
	ExecutedAt      time.Time      `json:"executed_at"`
	ContextSnapshot map[string]any `json:"context_snapshot,omitempty"`
	CustomResult    any            `json:"custom_result,omitempty"`
	Error           string         `json:"error,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Failed reports whether the rule's handler failed.
func (r *ExecutionResult) Failed() bool {
	return r.Error != ""
}

// DecisionOf returns the action of the first result, or ActionContinue when
// no rule matched.
func DecisionOf(results []*ExecutionResult) Action {
	if len(results) == 0 {
		return ActionContinue
	}
	return results[0].Action
}

// DecisiveOf returns the decisive result, which is always last when present.
func DecisiveOf(results []*ExecutionResult) (*ExecutionResult, bool) {
	if len(results) == 0 {
		return nil, false
	}
	last := results[len(results)-1]
	if !last.Action.IsDecisive() {
		return nil, false
	}
	return last, true
}
