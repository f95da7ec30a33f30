package evaluator

import (
	"maps"

	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/rules"
)

// BuildContext assembles the rule context for one evaluation. Keys:
//
//	trace_id, session_id, sender_id, receiver_id, role
//	content, raw_output, content_length, word_count, sentence_count
//	confidence, hallucination_risk, semantic_drift_score, semantic_drift
//	clarity_issues, clarity_issue_count, correction_tags, heuristic_action
//	iteration, thresholds, context, metadata
//	data_source (when the message context or metadata names one)
//
// The message's own context and metadata maps are copied.
func (a *Analyzer) BuildContext(msg *message.AgentMessage, s *Signals, h Heuristic, iteration int) rules.Context {
	c := rules.Context{
		"trace_id":    msg.TraceID,
		"session_id":  msg.SessionID,
		"sender_id":   msg.SenderID,
		"receiver_id": msg.ReceiverID,
		"role":        string(msg.Role),

		"content":        msg.RawOutput,
		"raw_output":     msg.RawOutput,
		"content_length": s.ContentLength,
		"word_count":     s.WordCount,
		"sentence_count": s.SentenceCount,

		"confidence":           s.Confidence,
		"hallucination_risk":   s.HallucinationRisk,
		"semantic_drift_score": s.SemanticDriftScore,
		"semantic_drift":       s.SemanticDrift,
		"clarity_issues":       append([]string{}, s.ClarityIssues...),
		"clarity_issue_count":  len(s.ClarityIssues),
		"correction_tags":      append([]string{}, h.Tags...),
		"heuristic_action":     string(h.Action),
		"iteration":            iteration,

		"thresholds": map[string]any{
			"confidence":           a.cfg.ConfidenceThreshold,
			"reject_confidence":    a.cfg.RejectConfidence,
			"reject_hallucination": a.cfg.RejectHallucination,
			"modify_hallucination": a.cfg.ModifyHallucination,
			"drift":                a.cfg.DriftThreshold,
		},
		"context":  maps.Clone(msg.Context),
		"metadata": maps.Clone(msg.Metadata),
	}

	for _, m := range []map[string]any{msg.Context, msg.Metadata} {
		if v, ok := m["data_source"]; ok {
			c["data_source"] = v
			break
		}
	}
	return c
}
