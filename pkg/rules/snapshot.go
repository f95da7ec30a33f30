package rules

// DefaultSnapshotFields is the allow-list of context keys copied into
// ExecutionResult.ContextSnapshot.
var DefaultSnapshotFields = []string{
	"trace_id",
	"session_id",
	"sender_id",
	"receiver_id",
	"role",
	"confidence",
	"hallucination_risk",
	"semantic_drift_score",
	"semantic_drift",
	"content_length",
	"clarity_issue_count",
	"heuristic_action",
	"iteration",
}

// Snapshot copies the allow-listed top-level keys of c.
// Payload fields such as raw_output are never included unless listed.
func Snapshot(c Context, fields []string) map[string]any {
	if len(c) == 0 || len(fields) == 0 {
		return nil
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := c[f]; ok {
			out[f] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
