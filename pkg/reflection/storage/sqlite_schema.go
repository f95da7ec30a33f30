package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the reflection tables. Timestamps are stored as Unix
// nanoseconds so range filters and ordering compare integers.
const Schema = `
CREATE TABLE IF NOT EXISTS reflections (
    id TEXT PRIMARY KEY,
    mediator_id TEXT NOT NULL,

    -- Message identity
    trace_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    sender_id TEXT,
    receiver_id TEXT,

    -- Decision
    action_taken TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    explanation TEXT,
    correction_tags TEXT,
    iteration_count INTEGER NOT NULL DEFAULT 0,

    -- Signals
    hallucination_risk REAL,
    semantic_drift_score REAL,
    semantic_drift BOOLEAN,
    clarity_issues TEXT,

    -- Contributors
    heuristic_action TEXT,
    rules_triggered TEXT,
    consulted BOOLEAN,
    degraded TEXT,

    -- Healed variant
    has_healed BOOLEAN NOT NULL DEFAULT 0,
    healed TEXT,

    created_at INTEGER NOT NULL,
    duration_ns INTEGER
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reflections_created_at ON reflections(created_at);
CREATE INDEX IF NOT EXISTS idx_reflections_trace_id ON reflections(trace_id);
CREATE INDEX IF NOT EXISTS idx_reflections_session_id ON reflections(session_id);
CREATE INDEX IF NOT EXISTS idx_reflections_action_taken ON reflections(action_taken);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion reads the newest schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectColumns = `id, mediator_id, trace_id, session_id, sender_id, receiver_id,
	action_taken, confidence_score, explanation, correction_tags, iteration_count,
	hallucination_risk, semantic_drift_score, semantic_drift, clarity_issues,
	heuristic_action, rules_triggered, consulted, degraded,
	has_healed, healed, created_at, duration_ns`

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"confidence": "confidence_score",
	"iteration":  "iteration_count",
}
