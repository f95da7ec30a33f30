package loopback

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIterations indicates a negative iteration or heal-pass cap.
	ErrInvalidIterations = errors.New("max iterations must not be negative")

	// ErrNilEvaluator indicates a handler was built without an evaluator.
	ErrNilEvaluator = errors.New("evaluator is required")

	// ErrNilRetry indicates a handler was built without a retry callback.
	ErrNilRetry = errors.New("retry callback is required")

	// ErrNoRevision indicates the retry callback returned no message.
	ErrNoRevision = errors.New("retry callback returned no message")
)

// RetryCallbackError ends a loop whose retry callback failed or produced an
// unusable message. Result holds the history gathered before the failure.
type RetryCallbackError struct {
	Iteration int
	Err       error
	Result    *Result
}

// Error returns the error message.
func (e *RetryCallbackError) Error() string {
	return fmt.Sprintf("retry callback failed at iteration %d: %v", e.Iteration, e.Err)
}

// Unwrap returns the callback error.
func (e *RetryCallbackError) Unwrap() error {
	return e.Err
}
