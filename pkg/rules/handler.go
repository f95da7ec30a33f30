package rules

import (
	"context"
	"fmt"
)

// HandlerFunc implements a custom rule action.
// Its return value is stored as ExecutionResult.CustomResult.
type HandlerFunc func(ctx context.Context, c Context, rule *Rule) (any, error)

// invokeHandler calls h and converts errors and panics into *HandlerError.
func invokeHandler(ctx context.Context, h HandlerFunc, c Context, r *Rule) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &HandlerError{Rule: r.Name, Handler: r.HandlerName, Cause: fmt.Errorf("panic: %v", p)}
		}
	}()

	out, err = h(ctx, c, r)
	if err != nil {
		return nil, &HandlerError{Rule: r.Name, Handler: r.HandlerName, Cause: err}
	}
	return out, nil
}
