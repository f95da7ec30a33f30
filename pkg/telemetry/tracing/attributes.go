package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys use the "mediator.*" namespace.
const (
	// Message attributes
	AttrTraceID    = "mediator.message.trace_id"
	AttrSessionID  = "mediator.message.session_id"
	AttrSenderID   = "mediator.message.sender_id"
	AttrReceiverID = "mediator.message.receiver_id"
	AttrRole       = "mediator.message.role"

	// Signal attributes
	AttrConfidence        = "mediator.signal.confidence"
	AttrHallucinationRisk = "mediator.signal.hallucination_risk"
	AttrSemanticDrift     = "mediator.signal.semantic_drift"

	// Decision attributes
	AttrAction         = "mediator.decision.action"
	AttrCorrectionTags = "mediator.decision.correction_tags"
	AttrHealed         = "mediator.decision.healed"

	// Rule engine attributes
	AttrRulesTriggered = "mediator.rules.triggered"
	AttrRuleDecision   = "mediator.rules.decision"

	// Mediator attributes
	AttrRequestKind = "mediator.request.kind"
	AttrColleague   = "mediator.request.colleague"

	// Loopback attributes
	AttrIteration = "mediator.loopback.iteration"
	AttrPassed    = "mediator.loopback.passed"
)

// MessageAttributes returns the identifying attributes of a message.
func MessageAttributes(traceID, sessionID, senderID, receiverID, role string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTraceID, traceID),
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrSenderID, senderID),
		attribute.String(AttrReceiverID, receiverID),
		attribute.String(AttrRole, role),
	}
}

// SetSignalAttributes sets computed signal attributes on a span.
func SetSignalAttributes(span trace.Span, confidence, hallucinationRisk float64, drift bool) {
	span.SetAttributes(
		attribute.Float64(AttrConfidence, confidence),
		attribute.Float64(AttrHallucinationRisk, hallucinationRisk),
		attribute.Bool(AttrSemanticDrift, drift),
	)
}

// SetDecisionAttributes sets the final decision on a span.
func SetDecisionAttributes(span trace.Span, action string, tags []string, healed bool) {
	span.SetAttributes(
		attribute.String(AttrAction, action),
		attribute.StringSlice(AttrCorrectionTags, tags),
		attribute.Bool(AttrHealed, healed),
	)
}
