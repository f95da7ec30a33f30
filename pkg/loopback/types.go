package loopback

import (
	"context"

	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

// State is a loop state.
type State string

const (
	StateEvaluating State = "evaluating"
	StateCorrecting State = "correcting"
	StatePassed     State = "passed"
	StateRejected   State = "rejected_terminal"
)

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateRejected
}

// Reason says why a loop stopped.
type Reason string

const (
	ReasonPassed      Reason = "passed"
	ReasonEscalated   Reason = "escalated"
	ReasonExhausted   Reason = "exhausted"
	ReasonRetryFailed Reason = "retry_failed"
	ReasonCancelled   Reason = "cancelled"
)

// Evaluator scores one attempt of a message. *evaluator.Evaluator satisfies it.
type Evaluator interface {
	EvaluateIteration(ctx context.Context, msg *message.AgentMessage, iteration int) (*reflection.Reflection, error)
}

// RetryFunc produces a revised message from a correction prompt and the
// message that was rejected. It must not mutate current.
type RetryFunc func(ctx context.Context, prompt string, current *message.AgentMessage) (*message.AgentMessage, error)

// Result is the outcome of one loop.
type Result struct {
	State  State  `json:"state"`
	Reason Reason `json:"reason"`

	// Final is the last message evaluated.
	Final *message.AgentMessage `json:"final"`

	// Iterations counts retry-callback invocations.
	Iterations int `json:"iterations"`

	// HealPasses counts adopted heals across all iterations.
	HealPasses int `json:"heal_passes"`

	// Prompts holds the correction prompts sent, one per iteration.
	Prompts []string `json:"prompts,omitempty"`

	History []*reflection.Reflection `json:"history"`
}

// Passed reports whether the loop ended in StatePassed.
func (r *Result) Passed() bool {
	return r != nil && r.State == StatePassed
}

// Last returns the final reflection, or nil for an empty history.
func (r *Result) Last() *reflection.Reflection {
	if r == nil || len(r.History) == 0 {
		return nil
	}
	return r.History[len(r.History)-1]
}

func (r *Result) stop(state State, reason Reason) {
	r.State = state
	r.Reason = reason
}

// Outcome is the result of an asynchronous loop.
type Outcome struct {
	Result *Result
	Err    error
}
