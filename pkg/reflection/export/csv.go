package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/mediator/pkg/reflection"
)

// CSVExporter writes reflections as CSV. List columns are joined with ";".
// The healed message is reduced to its raw output.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header returns the column names in row order.
func Header() []string {
	return []string{
		"id", "mediator_id",
		"trace_id", "session_id", "sender_id", "receiver_id",
		"action_taken", "confidence_score", "explanation", "correction_tags", "iteration_count",
		"hallucination_risk", "semantic_drift_score", "semantic_drift", "clarity_issues",
		"heuristic_action", "rules_triggered", "consulted", "degraded",
		"has_healed", "healed_output",
		"created_at", "duration_ms",
	}
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*reflection.Reflection, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header()); err != nil {
			return reflection.NewExportError("csv", len(records), err)
		}
	}
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(row(r)); err != nil {
			return reflection.NewExportError("csv", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return reflection.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes records from recordsCh until it is closed, flushing
// every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *reflection.Reflection, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Header()); err != nil {
			return reflection.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return reflection.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(row(r)); err != nil {
				return reflection.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return reflection.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func row(r *reflection.Reflection) []string {
	healed := ""
	if r.Healed != nil {
		healed = r.Healed.RawOutput
	}
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	return []string{
		r.ID,
		r.MediatorID,
		r.TraceID,
		r.SessionID,
		r.SenderID,
		r.ReceiverID,
		string(r.ActionTaken),
		formatFloat(r.ConfidenceScore),
		r.Explanation,
		strings.Join(r.CorrectionTags, ";"),
		strconv.Itoa(r.IterationCount),
		formatFloat(r.HallucinationRisk),
		formatFloat(r.SemanticDriftScore),
		strconv.FormatBool(r.SemanticDrift),
		strings.Join(r.ClarityIssues, ";"),
		string(r.HeuristicAction),
		strings.Join(r.RulesTriggered, ";"),
		strconv.FormatBool(r.Consulted),
		strings.Join(r.Degraded, ";"),
		strconv.FormatBool(r.HasHealed),
		healed,
		created,
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
