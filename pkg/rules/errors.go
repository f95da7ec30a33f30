package rules

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrHandlerNotFound indicates a custom rule has no registered handler.
	ErrHandlerNotFound = errors.New("custom handler not registered")

	// ErrRuleNotFound indicates a named rule is not loaded.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrUnsupportedVersion indicates a rule set version outside the supported range.
	ErrUnsupportedVersion = errors.New("unsupported rule set version")
)

// HandlerError indicates a custom handler failed or panicked.
type HandlerError struct {
	Rule    string
	Handler string
	Cause   error
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Handler != "" {
		return fmt.Sprintf("rule %s: handler %s failed: %v", e.Rule, e.Handler, e.Cause)
	}
	return fmt.Sprintf("rule %s: handler failed: %v", e.Rule, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// ValidationError indicates a rule definition is malformed.
type ValidationError struct {
	Rule   string
	Errors []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("rule %s: validation error: %s", e.Rule, e.Errors[0])
	}
	return fmt.Sprintf("rule %s: %d validation errors: %v", e.Rule, len(e.Errors), e.Errors)
}

// DuplicateRuleError indicates two rules share a name.
type DuplicateRuleError struct {
	Name string
}

// Error returns the error message.
func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("duplicate rule name: %q", e.Name)
}

// ReloadError indicates a rule set reload failure. The previous rules stay active.
type ReloadError struct {
	Source string
	Cause  error
}

// Error returns the error message.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("rule reload failed for %q: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}
