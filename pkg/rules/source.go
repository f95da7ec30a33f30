package rules

import (
	"context"
	"fmt"
)

// Source provides rule sets to the engine.
type Source interface {
	// Load returns the current rule set.
	Load(ctx context.Context) (*RuleSet, error)

	// Watch sends an event whenever the rule set may have changed.
	// The channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan SourceEvent, error)

	fmt.Stringer
}

// SourceEventType represents the type of rule source change.
type SourceEventType string

const (
	SourceEventCreated  SourceEventType = "created"
	SourceEventModified SourceEventType = "modified"
	SourceEventDeleted  SourceEventType = "deleted"
	SourceEventUpdated  SourceEventType = "updated"
)

// SourceEvent reports a rule source change.
type SourceEvent struct {
	Type     SourceEventType
	Path     string
	Revision string
	Error    error
}
