package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/reflection/query"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Logger receives storage logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         config.DefaultSQLitePath,
		MaxOpenConns: config.DefaultSQLiteMaxOpenConns,
		MaxIdleConns: config.DefaultSQLiteMaxIdleConns,
		WALMode:      config.DefaultSQLiteWALMode,
		BusyTimeout:  config.DefaultSQLiteBusyTimeout,
	}
}

// SQLiteStorage stores reflections in a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger

	insertStmt *sql.Stmt
	closeOnce  sync.Once
}

// NewSQLiteStorage opens (and if needed creates) a reflection database.
func NewSQLiteStorage(cfg *SQLiteConfig) (*SQLiteStorage, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}
	if cfg.Path == "" {
		return nil, reflection.NewStorageError("sqlite", "open", errors.New("path cannot be empty"))
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = config.DefaultSQLiteMaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = config.DefaultSQLiteMaxIdleConns
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = config.DefaultSQLiteBusyTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reflection.storage.sqlite")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, reflection.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStorage{db: db, config: cfg, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return reflection.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return reflection.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return reflection.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return reflection.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return reflection.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return reflection.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.insertStmt, err = s.db.Prepare(`
		INSERT OR REPLACE INTO reflections (
			id, mediator_id, trace_id, session_id, sender_id, receiver_id,
			action_taken, confidence_score, explanation, correction_tags, iteration_count,
			hallucination_risk, semantic_drift_score, semantic_drift, clarity_issues,
			heuristic_action, rules_triggered, consulted, degraded,
			has_healed, healed, created_at, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return reflection.NewStorageError("sqlite", "prepare", err)
	}
	return nil
}

// Store persists r.
func (s *SQLiteStorage) Store(ctx context.Context, r *reflection.Reflection) error {
	if r == nil {
		return reflection.NewStorageError("sqlite", "store", reflection.ErrNilReflection)
	}

	var healed any
	if r.Healed != nil {
		data, err := json.Marshal(r.Healed)
		if err != nil {
			return reflection.NewStorageError("sqlite", "store", fmt.Errorf("marshal healed message: %w", err))
		}
		healed = string(data)
	}

	_, err := s.insertStmt.ExecContext(ctx,
		r.ID, r.MediatorID, r.TraceID, r.SessionID, r.SenderID, r.ReceiverID,
		string(r.ActionTaken), r.ConfidenceScore, r.Explanation, jsonList(r.CorrectionTags), r.IterationCount,
		r.HallucinationRisk, r.SemanticDriftScore, r.SemanticDrift, jsonList(r.ClarityIssues),
		string(r.HeuristicAction), jsonList(r.RulesTriggered), r.Consulted, jsonList(r.Degraded),
		r.HasHealed, healed, r.CreatedAt.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return reflection.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns the matching reflections.
func (s *SQLiteStorage) Query(ctx context.Context, q *reflection.Query) ([]*reflection.Reflection, error) {
	q = normalize(q)
	if err := query.Validate(q); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(q)
	sqlQuery := "SELECT " + selectColumns + " FROM reflections"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[q.SortBy], strings.ToUpper(q.SortOrder), strings.ToUpper(q.SortOrder))
	sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, reflection.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*reflection.Reflection{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, reflection.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, reflection.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of matching reflections.
func (s *SQLiteStorage) Count(ctx context.Context, q *reflection.Query) (int64, error) {
	if q == nil {
		q = &reflection.Query{}
	}
	if err := query.Validate(q); err != nil {
		return 0, err
	}

	where, args := buildWhereClause(q)
	sqlQuery := "SELECT COUNT(*) FROM reflections"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, reflection.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes the matching reflections.
func (s *SQLiteStorage) Delete(ctx context.Context, q *reflection.Query) (int64, error) {
	if q == nil {
		q = &reflection.Query{}
	}
	if err := query.Validate(q); err != nil {
		return 0, err
	}

	where, args := buildWhereClause(q)
	sqlQuery := "DELETE FROM reflections"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, reflection.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, reflection.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases the database.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.insertStmt != nil {
			s.insertStmt.Close()
		}
		if cerr := s.db.Close(); cerr != nil {
			err = reflection.NewStorageError("sqlite", "close", cerr)
			return
		}
		s.logger.Info("SQLite storage closed")
	})
	return err
}

// buildWhereClause returns the WHERE clause (without the keyword) and its
// arguments.
func buildWhereClause(q *reflection.Query) (string, []any) {
	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, q.EndTime.UnixNano())
	}

	for _, f := range []struct {
		column string
		value  string
	}{
		{"trace_id", q.TraceID},
		{"session_id", q.SessionID},
		{"sender_id", q.SenderID},
		{"mediator_id", q.MediatorID},
		{"action_taken", string(q.Action)},
	} {
		if f.value != "" {
			conditions = append(conditions, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	if q.MinConfidence != nil {
		conditions = append(conditions, "confidence_score >= ?")
		args = append(args, *q.MinConfidence)
	}
	if q.MaxConfidence != nil {
		conditions = append(conditions, "confidence_score <= ?")
		args = append(args, *q.MaxConfidence)
	}

	return strings.Join(conditions, " AND "), args
}

func scanRow(rows *sql.Rows) (*reflection.Reflection, error) {
	var (
		r                                  reflection.Reflection
		action, heuristic                  string
		senderID, receiverID, explanation  sql.NullString
		tags, clarity, triggered, degraded sql.NullString
		healed                             sql.NullString
		hallucination, driftScore          sql.NullFloat64
		drift, consulted                   sql.NullBool
		createdAt                          int64
		duration                           sql.NullInt64
	)

	err := rows.Scan(
		&r.ID, &r.MediatorID, &r.TraceID, &r.SessionID, &senderID, &receiverID,
		&action, &r.ConfidenceScore, &explanation, &tags, &r.IterationCount,
		&hallucination, &driftScore, &drift, &clarity,
		&heuristic, &triggered, &consulted, &degraded,
		&r.HasHealed, &healed, &createdAt, &duration,
	)
	if err != nil {
		return nil, err
	}

	r.SenderID = senderID.String
	r.ReceiverID = receiverID.String
	r.ActionTaken = reflection.Action(action)
	r.Explanation = explanation.String
	r.HallucinationRisk = hallucination.Float64
	r.SemanticDriftScore = driftScore.Float64
	r.SemanticDrift = drift.Bool
	r.HeuristicAction = reflection.Action(heuristic)
	r.Consulted = consulted.Bool
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.Duration = time.Duration(duration.Int64)

	r.CorrectionTags = parseList(tags)
	r.ClarityIssues = parseList(clarity)
	r.RulesTriggered = parseList(triggered)
	r.Degraded = parseList(degraded)

	if healed.Valid && healed.String != "" {
		var m message.AgentMessage
		if err := json.Unmarshal([]byte(healed.String), &m); err != nil {
			return nil, fmt.Errorf("unmarshal healed message: %w", err)
		}
		r.Healed = &m
	}
	return &r, nil
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func parseList(s sql.NullString) []string {
	out := []string{}
	if s.Valid && s.String != "" {
		_ = json.Unmarshal([]byte(s.String), &out)
	}
	return out
}
