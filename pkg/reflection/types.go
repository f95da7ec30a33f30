package reflection

import (
	"context"
	"io"
	"slices"
	"time"

	"mercator-hq/mediator/pkg/message"
)

// Action is the decision recorded for an evaluated message.
type Action string

const (
	ActionPass     Action = "pass"
	ActionApprove  Action = "approve"
	ActionModify   Action = "modify"
	ActionRetry    Action = "retry"
	ActionReject   Action = "reject"
	ActionEscalate Action = "escalate"
	ActionContinue Action = "continue"
)

// Actions returns every action in declaration order.
func Actions() []Action {
	return []Action{ActionPass, ActionApprove, ActionModify, ActionRetry, ActionReject, ActionEscalate, ActionContinue}
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	return slices.Contains(Actions(), a)
}

// Passed reports whether a lets the message through unchanged.
func (a Action) Passed() bool {
	return a == ActionPass || a == ActionApprove || a == ActionContinue
}

// Reflection is the decision record produced by one evaluation.
type Reflection struct {
	// Identity
	ID         string `json:"id"`          // UUID v4
	MediatorID string `json:"mediator_id"` // Evaluator that produced it

	// Message identity
	TraceID    string `json:"trace_id"`
	SessionID  string `json:"session_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`

	// Decision
	ActionTaken     Action   `json:"action_taken"`
	ConfidenceScore float64  `json:"confidence_score"`
	Explanation     string   `json:"explanation"`
	CorrectionTags  []string `json:"correction_tags"`
	IterationCount  int      `json:"iteration_count"`

	// Signals
	HallucinationRisk  float64  `json:"hallucination_risk"`
	SemanticDriftScore float64  `json:"semantic_drift_score"`
	SemanticDrift      bool     `json:"semantic_drift"`
	ClarityIssues      []string `json:"clarity_issues,omitempty"`

	// Contributors
	HeuristicAction Action   `json:"heuristic_action"`
	RulesTriggered  []string `json:"rules_triggered,omitempty"`
	Consulted       bool     `json:"consulted"`
	Degraded        []string `json:"degraded,omitempty"` // Contributors excluded after failing

	// Healed variant, set only for modify decisions that produced one
	HasHealed bool                  `json:"has_healed"`
	Healed    *message.AgentMessage `json:"healed,omitempty"`

	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// Query defines filter parameters for reflection lookups.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive

	// Filters
	TraceID    string `json:"trace_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	MediatorID string `json:"mediator_id,omitempty"`
	Action     Action `json:"action,omitempty"`

	// Thresholds
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxConfidence *float64 `json:"max_confidence,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "created_at", "confidence", "iteration"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage persists reflections. Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a reflection.
	Store(ctx context.Context, r *Reflection) error

	// Query returns the reflections matching q. No match yields an empty slice.
	Query(ctx context.Context, q *Query) ([]*Reflection, error)

	// Count returns the number of reflections matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes the reflections matching q and returns how many were removed.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes reflections in some format.
type Exporter interface {
	Export(ctx context.Context, records []*Reflection, w io.Writer) error
}

// Sink receives reflections as they are produced.
type Sink interface {
	Record(ctx context.Context, r *Reflection) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *Reflection) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, r *Reflection) error {
	return f(ctx, r)
}
