package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type backend struct {
	name string
	open func(t *testing.T) reflection.Storage
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) reflection.Storage {
			return NewMemoryStorage()
		}},
		{"sqlite", func(t *testing.T) reflection.Storage {
			t.Helper()
			s, err := NewSQLiteStorage(&SQLiteConfig{
				Path:         filepath.Join(t.TempDir(), "reflections.db"),
				MaxOpenConns: 4,
				MaxIdleConns: 2,
				WALMode:      true,
				BusyTimeout:  time.Second,
			})
			if err != nil {
				t.Fatalf("NewSQLiteStorage() error = %v", err)
			}
			return s
		}},
	}
}

func record(id, trace string, action reflection.Action, conf float64, offset time.Duration) *reflection.Reflection {
	return &reflection.Reflection{
		ID:              id,
		MediatorID:      "mediator-1",
		TraceID:         trace,
		SessionID:       "session-1",
		SenderID:        "agent-a",
		ReceiverID:      "agent-b",
		ActionTaken:     action,
		ConfidenceScore: conf,
		Explanation:     "test",
		CorrectionTags:  []string{},
		IterationCount:  1,
		HeuristicAction: action,
		CreatedAt:       base.Add(offset),
		Duration:        3 * time.Millisecond,
	}
}

func seed(t *testing.T, s reflection.Storage) {
	t.Helper()
	records := []*reflection.Reflection{
		record("r1", "trace-1", reflection.ActionPass, 0.9, 0),
		record("r2", "trace-1", reflection.ActionModify, 0.6, time.Minute),
		record("r3", "trace-2", reflection.ActionReject, 0.2, 2*time.Minute),
		record("r4", "trace-3", reflection.ActionPass, 0.8, 3*time.Minute),
	}
	for _, r := range records {
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store(%s) error = %v", r.ID, err)
		}
	}
}

func ids(rs []*reflection.Reflection) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStorage_Query(t *testing.T) {
	minConf := 0.5
	start := base.Add(time.Minute)

	tests := []struct {
		name  string
		query *reflection.Query
		want  []string
	}{
		{"nil query newest first", nil, []string{"r4", "r3", "r2", "r1"}},
		{"by trace", &reflection.Query{TraceID: "trace-1"}, []string{"r2", "r1"}},
		{"by action", &reflection.Query{Action: reflection.ActionPass}, []string{"r4", "r1"}},
		{"min confidence ascending", &reflection.Query{MinConfidence: &minConf, SortBy: "confidence", SortOrder: "asc"}, []string{"r2", "r4", "r1"}},
		{"start time", &reflection.Query{StartTime: &start, SortOrder: "asc"}, []string{"r2", "r3", "r4"}},
		{"limit and offset", &reflection.Query{Limit: 2, Offset: 1}, []string{"r3", "r2"}},
		{"offset past end", &reflection.Query{Offset: 10}, []string{}},
		{"no match", &reflection.Query{TraceID: "missing"}, []string{}},
	}

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { s.Close() })
			seed(t, s)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := s.Query(context.Background(), tt.query)
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					if got == nil {
						t.Fatal("Query() returned nil slice")
					}
					if !equalIDs(ids(got), tt.want) {
						t.Errorf("Query() = %v, want %v", ids(got), tt.want)
					}
				})
			}
		})
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { s.Close() })

			r := record("r1", "trace-1", reflection.ActionModify, 0.65, 0)
			r.CorrectionTags = []string{"low-confidence-language", "semantic-drift"}
			r.ClarityIssues = []string{"unclear-pronouns"}
			r.RulesTriggered = []string{"low_confidence"}
			r.Degraded = []string{"mediator"}
			r.SemanticDrift = true
			r.SemanticDriftScore = 0.4
			r.HallucinationRisk = 0.15
			r.Consulted = true
			r.HasHealed = true
			r.Healed = &message.AgentMessage{
				TraceID:    "trace-1",
				SessionID:  "session-1",
				SenderID:   "agent-a",
				ReceiverID: "agent-b",
				Role:       message.RoleAssistant,
				RawOutput:  "The answer is 42.",
				HealingMetadata: &message.HealingMetadata{
					HealedFrom:     "I think the answer is 42.",
					CorrectionTags: []string{"low-confidence-language"},
					Iteration:      1,
				},
			}

			if err := s.Store(context.Background(), r); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			// Mutating the caller's copy must not leak into storage.
			r.CorrectionTags[0] = "mutated"

			got, err := s.Query(context.Background(), &reflection.Query{TraceID: "trace-1"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("Query() returned %d records, want 1", len(got))
			}
			g := got[0]

			if g.CorrectionTags[0] != "low-confidence-language" || len(g.CorrectionTags) != 2 {
				t.Errorf("CorrectionTags = %v", g.CorrectionTags)
			}
			if len(g.ClarityIssues) != 1 || len(g.RulesTriggered) != 1 || len(g.Degraded) != 1 {
				t.Errorf("lists = %v %v %v", g.ClarityIssues, g.RulesTriggered, g.Degraded)
			}
			if !g.SemanticDrift || !g.Consulted || !g.HasHealed {
				t.Errorf("flags = drift %v consulted %v healed %v", g.SemanticDrift, g.Consulted, g.HasHealed)
			}
			if g.Healed == nil || g.Healed.RawOutput != "The answer is 42." {
				t.Fatalf("Healed = %+v", g.Healed)
			}
			if g.Healed.HealingMetadata == nil || g.Healed.HealingMetadata.HealedFrom != "I think the answer is 42." {
				t.Errorf("HealingMetadata = %+v", g.Healed.HealingMetadata)
			}
			if !g.CreatedAt.Equal(r.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", g.CreatedAt, r.CreatedAt)
			}
			if g.Duration != r.Duration {
				t.Errorf("Duration = %v, want %v", g.Duration, r.Duration)
			}
		})
	}
}

func TestStorage_CountAndDelete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { s.Close() })
			seed(t, s)
			ctx := context.Background()

			n, err := s.Count(ctx, &reflection.Query{TraceID: "trace-1", Limit: 1})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 2 {
				t.Errorf("Count() = %d, want 2 (limit ignored)", n)
			}

			cutoff := base.Add(90 * time.Second)
			deleted, err := s.Delete(ctx, &reflection.Query{EndTime: &cutoff})
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if deleted != 2 {
				t.Errorf("Delete() = %d, want 2", deleted)
			}

			total, err := s.Count(ctx, nil)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if total != 2 {
				t.Errorf("Count() after delete = %d, want 2", total)
			}
		})
	}
}

func TestStorage_Errors(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { s.Close() })
			ctx := context.Background()

			err := s.Store(ctx, nil)
			if !errors.Is(err, reflection.ErrNilReflection) {
				t.Errorf("Store(nil) error = %v, want ErrNilReflection", err)
			}

			var qe *reflection.QueryError
			_, err = s.Query(ctx, &reflection.Query{SortBy: "bogus"})
			if !errors.As(err, &qe) {
				t.Errorf("Query(bad sort) error = %v, want *QueryError", err)
			}
			_, err = s.Delete(ctx, &reflection.Query{Offset: -1})
			if !errors.As(err, &qe) {
				t.Errorf("Delete(bad offset) error = %v, want *QueryError", err)
			}
		})
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflections.db")
	cfg := &SQLiteConfig{Path: path, WALMode: true}

	s, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	seed(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Second close is a no-op.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	s, err = NewSQLiteStorage(&SQLiteConfig{Path: path, WALMode: true})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	n, err := s.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() after reopen = %d, want 4", n)
	}
}

func TestSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage(&SQLiteConfig{})
	var se *reflection.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{"default", config.StorageConfig{}, false},
		{"memory", config.StorageConfig{Backend: "memory"}, false},
		{"none", config.StorageConfig{Backend: "none"}, false},
		{"sqlite", config.StorageConfig{Backend: "sqlite", SQLite: config.SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "open.db"),
		}}, false},
		{"unknown", config.StorageConfig{Backend: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	var s Discard
	ctx := context.Background()
	if err := s.Store(ctx, record("r1", "t", reflection.ActionPass, 1, 0)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	got, _ := s.Query(ctx, nil)
	if len(got) != 0 {
		t.Errorf("Query() = %d records, want 0", len(got))
	}
}
