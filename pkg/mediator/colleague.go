package mediator

import (
	"context"
	"sync"

	"mercator-hq/mediator/pkg/rules"
)

// RequestKind identifies a request type a colleague can handle.
type RequestKind string

const (
	KindDataQuality  RequestKind = "data_quality"
	KindRuleStrategy RequestKind = "rule_strategy"
	KindPolicyCheck  RequestKind = "policy_check"
	KindTriggers     RequestKind = "trigger_evaluation"
)

// Request is a typed colleague request.
type Request interface {
	Kind() RequestKind
}

// Response is a typed colleague response.
type Response interface {
	Kind() RequestKind
}

// DataQualityRequest asks for a data-quality score.
type DataQualityRequest struct {
	Content    string
	DataSource string
}

// Kind implements Request.
func (DataQualityRequest) Kind() RequestKind { return KindDataQuality }

// RuleStrategyRequest asks for an aggregate recommendation over rule outcomes.
type RuleStrategyRequest struct {
	Strategy Strategy
	Outcomes []RuleOutcome
}

// Kind implements Request.
func (RuleStrategyRequest) Kind() RequestKind { return KindRuleStrategy }

// PolicyCheckRequest asks for every active policy to be evaluated.
type PolicyCheckRequest struct {
	Context rules.Context
}

// Kind implements Request.
func (PolicyCheckRequest) Kind() RequestKind { return KindPolicyCheck }

// TriggerRequest asks for action triggers to be evaluated.
type TriggerRequest struct {
	Context rules.Context
}

// Kind implements Request.
func (TriggerRequest) Kind() RequestKind { return KindTriggers }

// Colleague is a pluggable collaborator registered with a Mediator.
type Colleague interface {
	// ID uniquely identifies the colleague within a mediator.
	ID() string

	// Capabilities lists the request kinds the colleague handles.
	Capabilities() []RequestKind

	// Handle serves a request whose kind is in Capabilities.
	Handle(ctx context.Context, req Request) (Response, error)

	// Attach gives the colleague a back-reference for event notification.
	Attach(n Notifier)
}

// Notifier receives events from colleagues.
type Notifier interface {
	Notify(ctx context.Context, source string, eventType EventType, payload map[string]any)
}

// base carries the ID and notifier every colleague needs.
type base struct {
	id string

	mu       sync.RWMutex
	notifier Notifier
}

func (b *base) ID() string { return b.id }

func (b *base) Attach(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifier = n
}

func (b *base) notify(ctx context.Context, eventType EventType, payload map[string]any) {
	b.mu.RLock()
	n := b.notifier
	b.mu.RUnlock()
	if n != nil {
		n.Notify(ctx, b.id, eventType, payload)
	}
}

func supports(c Colleague, kind RequestKind) bool {
	for _, k := range c.Capabilities() {
		if k == kind {
			return true
		}
	}
	return false
}
