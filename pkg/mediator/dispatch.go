package mediator

import (
	"context"
	"log/slog"

	"mercator-hq/mediator/pkg/rules"
)

// ActionType is the side effect a trigger performs when it fires.
type ActionType string

const (
	ActionNotification ActionType = "notification"
	ActionEscalation   ActionType = "escalation"
	ActionAlert        ActionType = "alert"
	ActionAuditLog     ActionType = "audit_log"
	ActionWorkflow     ActionType = "workflow"
	ActionAutomation   ActionType = "automation"
)

// IsValid reports whether a is a known action type.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionNotification, ActionEscalation, ActionAlert,
		ActionAuditLog, ActionWorkflow, ActionAutomation:
		return true
	}
	return false
}

// Dispatcher performs the side effect of a fired trigger and returns a
// structured description of what it did.
type Dispatcher interface {
	Dispatch(ctx context.Context, t Trigger, c rules.Context) (map[string]any, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, t Trigger, c rules.Context) (map[string]any, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, t Trigger, c rules.Context) (map[string]any, error) {
	return f(ctx, t, c)
}

// LogDispatcher records firings in the log only.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher. A nil logger uses slog.Default().
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger.With("component", "mediator.dispatch")}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, t Trigger, c rules.Context) (map[string]any, error) {
	action, _ := c.Lookup("action")
	result := map[string]any{
		"action_type": string(t.ActionType),
		"trigger_id":  t.ID,
	}

	switch t.ActionType {
	case ActionNotification:
		result["channel"] = "log"
		result["delivered"] = true
	case ActionEscalation:
		result["escalated_to"] = "human_review"
		result["action"] = action
	case ActionAlert:
		result["severity"] = "warning"
	case ActionAuditLog:
		result["recorded"] = true
	case ActionWorkflow:
		result["workflow_started"] = true
	case ActionAutomation:
		result["automation_executed"] = true
	}

	d.logger.InfoContext(ctx, "trigger dispatched",
		"trigger", t.ID,
		"action_type", t.ActionType,
		"action", action,
	)
	return result, nil
}
