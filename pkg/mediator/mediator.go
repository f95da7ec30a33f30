package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultEventLogSize bounds the event log when no size is configured.
const DefaultEventLogSize = 1000

// EventType classifies mediator events.
type EventType string

const (
	EventColleagueRegistered EventType = "colleague_registered"
	EventRequestRouted       EventType = "request_routed"
	EventRequestFailed       EventType = "request_failed"
	EventRoutingFailed       EventType = "routing_failed"
	EventTriggerFired        EventType = "trigger_fired"
	EventTriggerSkipped      EventType = "trigger_skipped"
	EventPolicyViolation     EventType = "policy_violation"
)

// Event is an entry in the mediator event log.
type Event struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Metrics receives mediator instrumentation. Implemented by telemetry/metrics.
type Metrics interface {
	RecordRequest(kind, colleague string, ok bool)
	RecordTrigger(trigger, actionType string, fired bool)
	RecordPolicyViolation(policy, level string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, bool)   {}
func (nopMetrics) RecordTrigger(string, string, bool)   {}
func (nopMetrics) RecordPolicyViolation(string, string) {}

// Mediator routes requests to registered colleagues.
type Mediator struct {
	id string

	mu         sync.RWMutex
	colleagues []Colleague

	eventsMu  sync.Mutex
	events    []Event
	maxEvents int

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics Metrics
	now     func() time.Time
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithID sets the mediator ID. Defaults to a random UUID.
func WithID(id string) Option {
	return func(m *Mediator) {
		if id != "" {
			m.id = id
		}
	}
}

// WithLogger sets the mediator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mediator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Mediator) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Mediator) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithEventLogSize bounds the event log.
func WithEventLogSize(n int) Option {
	return func(m *Mediator) {
		if n > 0 {
			m.maxEvents = n
		}
	}
}

// New creates a mediator with no colleagues.
func New(opts ...Option) *Mediator {
	m := &Mediator{
		id:        uuid.NewString(),
		maxEvents: DefaultEventLogSize,
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer(""),
		metrics:   nopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "mediator", "mediator_id", m.id)
	return m
}

// ID returns the mediator ID.
func (m *Mediator) ID() string {
	return m.id
}

// Register attaches a colleague. Registration order decides routing.
func (m *Mediator) Register(c Colleague) error {
	m.mu.Lock()
	for _, existing := range m.colleagues {
		if existing.ID() == c.ID() {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateColleague, c.ID())
		}
	}
	m.colleagues = append(m.colleagues, c)
	m.mu.Unlock()

	c.Attach(m)

	caps := make([]string, len(c.Capabilities()))
	for i, k := range c.Capabilities() {
		caps[i] = string(k)
	}
	m.record(m.id, EventColleagueRegistered, map[string]any{
		"colleague":    c.ID(),
		"capabilities": caps,
	})
	m.logger.Debug("colleague registered", "colleague", c.ID(), "capabilities", caps)
	return nil
}

// Colleagues returns the registered colleagues in registration order.
func (m *Mediator) Colleagues() []Colleague {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Colleague, len(m.colleagues))
	copy(out, m.colleagues)
	return out
}

// CanHandle reports whether any colleague handles kind.
func (m *Mediator) CanHandle(kind RequestKind) bool {
	_, err := m.resolve(kind, "")
	return err == nil
}

// resolve picks the colleague for a request: the named target if it is
// capable, otherwise the first capable colleague in registration order.
func (m *Mediator) resolve(kind RequestKind, target string) (Colleague, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if target != "" {
		for _, c := range m.colleagues {
			if c.ID() != target {
				continue
			}
			if !supports(c, kind) {
				return nil, &RoutingError{Kind: kind, Target: target, Reason: "colleague does not advertise capability"}
			}
			return c, nil
		}
		return nil, &RoutingError{Kind: kind, Target: target, Reason: "colleague not registered"}
	}

	for _, c := range m.colleagues {
		if supports(c, kind) {
			return c, nil
		}
	}
	return nil, &RoutingError{Kind: kind}
}

// Coordinate routes req to target, or to the first capable colleague when
// target is empty. Routing failures return a *RoutingError; failures inside
// the colleague, including panics, return a *ColleagueError.
func (m *Mediator) Coordinate(ctx context.Context, req Request, target string) (Response, error) {
	kind := req.Kind()
	ctx, span := m.tracer.Start(ctx, "mediator.coordinate",
		trace.WithAttributes(attribute.String("mediator.request.kind", string(kind))))
	defer span.End()

	c, err := m.resolve(kind, target)
	if err != nil {
		m.metrics.RecordRequest(string(kind), "", false)
		m.record(m.id, EventRoutingFailed, map[string]any{"kind": string(kind), "target": target})
		m.logger.Warn("no colleague for request", "kind", kind, "target", target)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("mediator.request.colleague", c.ID()))

	resp, err := m.invoke(ctx, c, req)
	if err != nil {
		m.metrics.RecordRequest(string(kind), c.ID(), false)
		m.record(m.id, EventRequestFailed, map[string]any{"kind": string(kind), "colleague": c.ID(), "error": err.Error()})
		m.logger.Error("colleague request failed", "kind", kind, "colleague", c.ID(), "error", err)
		span.RecordError(err)
		return nil, err
	}

	m.metrics.RecordRequest(string(kind), c.ID(), true)
	m.record(m.id, EventRequestRouted, map[string]any{"kind": string(kind), "colleague": c.ID()})
	return resp, nil
}

func (m *Mediator) invoke(ctx context.Context, c Colleague, req Request) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &ColleagueError{Colleague: c.ID(), Kind: req.Kind(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	resp, err = c.Handle(ctx, req)
	if err != nil {
		return nil, &ColleagueError{Colleague: c.ID(), Kind: req.Kind(), Cause: err}
	}
	if resp == nil || resp.Kind() != req.Kind() {
		return nil, &ColleagueError{Colleague: c.ID(), Kind: req.Kind(), Cause: ErrUnexpectedResponse}
	}
	return resp, nil
}

// coordinate is the typed form of Coordinate.
func coordinate[T Response](ctx context.Context, m *Mediator, req Request, target string) (T, error) {
	var zero T
	resp, err := m.Coordinate(ctx, req, target)
	if err != nil {
		return zero, err
	}
	out, ok := resp.(T)
	if !ok {
		return zero, &ColleagueError{Kind: req.Kind(), Cause: fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)}
	}
	return out, nil
}

// CheckDataQuality routes a data-quality request.
func (m *Mediator) CheckDataQuality(ctx context.Context, req DataQualityRequest, target string) (*DataQualityResult, error) {
	return coordinate[*DataQualityResult](ctx, m, req, target)
}

// EvaluateStrategy routes a rule-strategy request.
func (m *Mediator) EvaluateStrategy(ctx context.Context, req RuleStrategyRequest, target string) (*StrategyResult, error) {
	return coordinate[*StrategyResult](ctx, m, req, target)
}

// CheckPolicies routes a policy-check request.
func (m *Mediator) CheckPolicies(ctx context.Context, req PolicyCheckRequest, target string) (*PolicyResult, error) {
	return coordinate[*PolicyResult](ctx, m, req, target)
}

// EvaluateTriggers routes a trigger-evaluation request.
func (m *Mediator) EvaluateTriggers(ctx context.Context, req TriggerRequest, target string) (*TriggerResult, error) {
	return coordinate[*TriggerResult](ctx, m, req, target)
}

// Notify implements Notifier. Colleagues report trigger firings and policy
// violations here; they are logged, counted and appended to the event log.
func (m *Mediator) Notify(ctx context.Context, source string, eventType EventType, payload map[string]any) {
	switch eventType {
	case EventTriggerFired, EventTriggerSkipped:
		trigger, _ := payload["trigger_id"].(string)
		actionType, _ := payload["action_type"].(string)
		m.metrics.RecordTrigger(trigger, actionType, eventType == EventTriggerFired)
	case EventPolicyViolation:
		policy, _ := payload["policy_id"].(string)
		level, _ := payload["enforcement_level"].(string)
		m.metrics.RecordPolicyViolation(policy, level)
	}
	m.logger.DebugContext(ctx, "colleague event", "source", source, "type", eventType)
	m.record(source, eventType, payload)
}

func (m *Mediator) record(source string, eventType EventType, payload map[string]any) {
	ev := Event{
		ID:        uuid.NewString(),
		Source:    source,
		Type:      eventType,
		Payload:   payload,
		Timestamp: m.now(),
	}

	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	m.events = append(m.events, ev)
	if over := len(m.events) - m.maxEvents; over > 0 {
		// Copy so the trimmed prefix can be collected.
		m.events = append([]Event(nil), m.events[over:]...)
	}
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns every retained event.
func (m *Mediator) Events(limit int) []Event {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	start := 0
	if limit > 0 && limit < len(m.events) {
		start = len(m.events) - limit
	}
	out := make([]Event, len(m.events)-start)
	copy(out, m.events[start:])
	return out
}
