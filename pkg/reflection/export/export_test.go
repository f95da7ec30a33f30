package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

func sample() []*reflection.Reflection {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*reflection.Reflection{
		{
			ID:              "r1",
			MediatorID:      "mediator-1",
			TraceID:         "trace-1",
			SessionID:       "session-1",
			ActionTaken:     reflection.ActionPass,
			ConfidenceScore: 0.8,
			Explanation:     "passed, all checks clear",
			CreatedAt:       created,
			Duration:        2 * time.Millisecond,
		},
		{
			ID:              "r2",
			MediatorID:      "mediator-1",
			TraceID:         "trace-1",
			SessionID:       "session-1",
			ActionTaken:     reflection.ActionModify,
			ConfidenceScore: 0.6,
			CorrectionTags:  []string{"low-confidence-language", "semantic-drift"},
			HasHealed:       true,
			Healed:          &message.AgentMessage{RawOutput: "The answer is 42."},
			CreatedAt:       created.Add(time.Second),
		},
	}
}

func TestJSONExporter_Export(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		var buf bytes.Buffer
		if err := NewJSONExporter(pretty).Export(context.Background(), sample(), &buf); err != nil {
			t.Fatalf("Export(pretty=%v) error = %v", pretty, err)
		}

		var got []*reflection.Reflection
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not a JSON array (pretty=%v): %v\n%s", pretty, err, buf.String())
		}
		if len(got) != 2 || got[1].Healed == nil || got[1].Healed.RawOutput != "The answer is 42." {
			t.Errorf("decoded = %+v", got)
		}
	}
}

func TestJSONExporter_Empty(t *testing.T) {
	tests := []struct {
		name string
		exp  *JSONExporter
		want string
	}{
		{"array", NewJSONExporter(false), "[]"},
		{"pretty array", NewJSONExporter(true), "[]"},
		{"lines", NewJSONLinesExporter(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.exp.Export(context.Background(), nil, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Export() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestJSONLinesExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONLinesExporter().Export(context.Background(), sample(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var r reflection.Reflection
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
	}
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sample(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, r := range rows[1:] {
		if len(r) != len(header) {
			t.Fatalf("row has %d columns, header has %d", len(r), len(header))
		}
	}

	second := rows[2]
	checks := map[string]string{
		"action_taken":     "modify",
		"confidence_score": "0.6000",
		"correction_tags":  "low-confidence-language;semantic-drift",
		"has_healed":       "true",
		"healed_output":    "The answer is 42.",
		"created_at":       "2026-03-01T12:00:01Z",
	}
	for name, want := range checks {
		if got := second[col[name]]; got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if got := rows[1][col["explanation"]]; got != "passed, all checks clear" {
		t.Errorf("explanation = %q", got)
	}
	if got := rows[1][col["duration_ms"]]; got != "2" {
		t.Errorf("duration_ms = %q, want 2", got)
	}
}

func TestCSVExporter_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(context.Background(), sample()[:1], &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.HasPrefix(buf.String(), "id,") {
		t.Error("header written with IncludeHeader=false")
	}
}

func TestExportStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan *reflection.Reflection)
	for _, exp := range []StreamExporter{NewJSONExporter(false), NewCSVExporter(true)} {
		err := exp.ExportStream(ctx, ch, &bytes.Buffer{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%T.ExportStream() error = %v, want context.Canceled", exp, err)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestExport_WriteError(t *testing.T) {
	var ee *reflection.ExportError
	err := NewJSONExporter(false).Export(context.Background(), sample(), failingWriter{})
	if !errors.As(err, &ee) || ee.Format != "json" {
		t.Errorf("json error = %v, want *ExportError", err)
	}
	err = NewCSVExporter(true).Export(context.Background(), sample(), failingWriter{})
	if !errors.As(err, &ee) || ee.Format != "csv" {
		t.Errorf("csv error = %v, want *ExportError", err)
	}
}

func TestNew(t *testing.T) {
	for _, f := range Formats {
		if _, err := New(f); err != nil {
			t.Errorf("New(%q) error = %v", f, err)
		}
	}
	if _, err := New("xml"); err == nil {
		t.Error("New(xml) should fail")
	}
}
