// Package message defines the inbound agent message contract consumed by the
// evaluator and the loopback handler.
//
// An AgentMessage is produced by one agent for another and carries the raw
// model output plus a small amount of routing and scoring metadata. The
// evaluator reads messages but never mutates them; corrected ("healed")
// variants are always built from a Clone.
//
// # Validation
//
// Validate checks the structural contract before any scoring runs:
//
//   - trace_id, session_id, sender_id and receiver_id are required
//   - role must be one of the Role constants
//   - raw_output must not exceed MaxRawOutputBytes
//   - semantic_drift_score and metrics.confidence must lie in [0, 1]
//
// Failures are reported as *ValidationError, which wraps ErrInvalidMessage:
//
//	if err := msg.Validate(); err != nil {
//	    var verr *message.ValidationError
//	    if errors.As(err, &verr) {
//	        log.Printf("bad field %s", verr.Field)
//	    }
//	}
package message
