package mediator

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNoColleague indicates no registered colleague can handle a request.
	ErrNoColleague = errors.New("no colleague capable of handling request")

	// ErrDuplicateColleague indicates a colleague ID is already registered.
	ErrDuplicateColleague = errors.New("colleague already registered")

	// ErrUnknownStrategy indicates an unsupported aggregation strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrUnknownPolicyRule indicates a policy references an unknown check.
	ErrUnknownPolicyRule = errors.New("unknown policy rule")

	// ErrUnexpectedResponse indicates a colleague returned the wrong response type.
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

// RoutingError is returned when a request cannot be routed. Target is set
// when the caller named a colleague.
type RoutingError struct {
	Kind   RequestKind
	Target string
	Reason string
}

// Error returns the error message.
func (e *RoutingError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s request to %q: %s", ErrNoColleague, e.Kind, e.Target, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrNoColleague, e.Kind)
}

// Unwrap returns ErrNoColleague.
func (e *RoutingError) Unwrap() error {
	return ErrNoColleague
}

// ColleagueError wraps a failure inside a colleague.
type ColleagueError struct {
	Colleague string
	Kind      RequestKind
	Cause     error
}

// Error returns the error message.
func (e *ColleagueError) Error() string {
	return fmt.Sprintf("colleague %s failed handling %s: %v", e.Colleague, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ColleagueError) Unwrap() error {
	return e.Cause
}

// TriggerError indicates an invalid trigger definition.
type TriggerError struct {
	Trigger   string
	Condition string
	Cause     error
}

// Error returns the error message.
func (e *TriggerError) Error() string {
	if e.Condition != "" {
		return fmt.Sprintf("trigger %s: condition %q: %v", e.Trigger, e.Condition, e.Cause)
	}
	return fmt.Sprintf("trigger %s: %v", e.Trigger, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TriggerError) Unwrap() error {
	return e.Cause
}

// ContributorError records a colleague consultation that failed during an
// enhanced evaluation. The evaluation continues without that contributor.
type ContributorError struct {
	Kind RequestKind
	Err  error
}

// Error returns the error message.
func (e *ContributorError) Error() string {
	return fmt.Sprintf("%s contributor failed: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ContributorError) Unwrap() error {
	return e.Err
}
