package message

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"os"
	"strings"
)

// MaxRawOutputBytes is the largest raw_output accepted by Validate (1 MiB).
const MaxRawOutputBytes = 1 << 20

// Role identifies the speaker of an agent message.
type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleSystem       Role = "system"
	RoleAgent        Role = "agent"
	RoleTool         Role = "tool"
	RoleOrchestrator Role = "orchestrator"
)

// Roles returns every valid role in declaration order.
func Roles() []Role {
	return []Role{RoleUser, RoleAssistant, RoleSystem, RoleAgent, RoleTool, RoleOrchestrator}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleAgent, RoleTool, RoleOrchestrator:
		return true
	}
	return false
}

// Metrics carries optional scores attached by the producing agent.
type Metrics struct {
	// Confidence is the producer's self-reported confidence in [0, 1].
	// When set it replaces the evaluator's base confidence.
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// LatencyMS is the time the producer spent generating the output.
	LatencyMS int64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`

	// TokenCount is the producer's token count for the output.
	TokenCount int `json:"token_count,omitempty" yaml:"token_count,omitempty"`
}

// HealingMetadata records how a healed message was derived.
type HealingMetadata struct {
	HealedFrom     string   `json:"healed_from,omitempty" yaml:"healed_from,omitempty"`
	CorrectionTags []string `json:"correction_tags,omitempty" yaml:"correction_tags,omitempty"`
	Iteration      int      `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Prompt         string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// AgentMessage is a message passed between two agents.
type AgentMessage struct {
	TraceID            string           `json:"trace_id" yaml:"trace_id"`
	SessionID          string           `json:"session_id" yaml:"session_id"`
	SenderID           string           `json:"sender_id" yaml:"sender_id"`
	ReceiverID         string           `json:"receiver_id" yaml:"receiver_id"`
	Role               Role             `json:"role" yaml:"role"`
	RawOutput          string           `json:"raw_output" yaml:"raw_output"`
	SemanticDriftScore float64          `json:"semantic_drift_score" yaml:"semantic_drift_score"`
	HealingMetadata    *HealingMetadata `json:"healing_metadata,omitempty" yaml:"healing_metadata,omitempty"`
	Context            map[string]any   `json:"context,omitempty" yaml:"context,omitempty"`
	Metrics            *Metrics         `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the structural contract of the message.
// It returns a *ValidationError describing the first violation found.
func (m *AgentMessage) Validate() error {
	if m == nil {
		return &ValidationError{Field: "message", Message: "message is required"}
	}

	required := []struct {
		field string
		value string
	}{
		{"trace_id", m.TraceID},
		{"session_id", m.SessionID},
		{"sender_id", m.SenderID},
		{"receiver_id", m.ReceiverID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{
				Field:   r.field,
				Message: r.field + " is required",
			}
		}
	}

	if !m.Role.IsValid() {
		return &ValidationError{
			Field:   "role",
			Message: fmt.Sprintf("unknown role %q", m.Role),
		}
	}

	if len(m.RawOutput) > MaxRawOutputBytes {
		return &ValidationError{
			Field:   "raw_output",
			Message: fmt.Sprintf("raw_output exceeds %d bytes", MaxRawOutputBytes),
		}
	}

	if !unitInterval(m.SemanticDriftScore) {
		return &ValidationError{
			Field:   "semantic_drift_score",
			Message: "semantic_drift_score must be between 0.0 and 1.0",
		}
	}

	if m.Metrics != nil && m.Metrics.Confidence != nil {
		if !unitInterval(*m.Metrics.Confidence) {
			return &ValidationError{
				Field:   "metrics.confidence",
				Message: "metrics.confidence must be between 0.0 and 1.0",
			}
		}
	}

	return nil
}

// unitInterval reports whether x is a finite value in [0, 1]. NaN fails
// every comparison, so it is checked explicitly.
func unitInterval(x float64) bool {
	return !math.IsNaN(x) && x >= 0.0 && x <= 1.0
}

// Confidence returns the producer-supplied confidence, if any.
func (m *AgentMessage) Confidence() (float64, bool) {
	if m.Metrics == nil || m.Metrics.Confidence == nil {
		return 0, false
	}
	return *m.Metrics.Confidence, true
}

// Clone returns a deep copy of the message.
// Nested maps are copied one level deep; values inside them are shared.
func (m *AgentMessage) Clone() *AgentMessage {
	if m == nil {
		return nil
	}

	c := *m
	c.Context = maps.Clone(m.Context)
	c.Metadata = maps.Clone(m.Metadata)

	if m.Metrics != nil {
		metrics := *m.Metrics
		if m.Metrics.Confidence != nil {
			v := *m.Metrics.Confidence
			metrics.Confidence = &v
		}
		c.Metrics = &metrics
	}

	if m.HealingMetadata != nil {
		hm := *m.HealingMetadata
		hm.CorrectionTags = append([]string(nil), m.HealingMetadata.CorrectionTags...)
		c.HealingMetadata = &hm
	}

	return &c
}

// Decode parses a JSON-encoded message. It does not validate.
func Decode(data []byte) (*AgentMessage, error) {
	var m AgentMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &m, nil
}

// LoadFile reads and decodes a JSON message file.
func LoadFile(path string) (*AgentMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file %q: %w", path, err)
	}
	return Decode(data)
}

// LoadFiles reads a JSON file holding an array of messages.
func LoadFiles(path string) ([]*AgentMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file %q: %w", path, err)
	}

	var msgs []*AgentMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages from %q: %w", path, err)
	}
	return msgs, nil
}
