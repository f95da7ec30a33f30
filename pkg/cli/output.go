package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/reflection/export"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is an aligned table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is an indented JSON document.
	FormatJSON OutputFormat = "json"
	// FormatJSONLines is one JSON object per line.
	FormatJSONLines OutputFormat = "jsonl"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

// Formats lists every accepted format.
func Formats() []OutputFormat {
	return []OutputFormat{FormatText, FormatJSON, FormatJSONLines, FormatCSV}
}

// ParseFormat validates s. An empty s is FormatText.
func ParseFormat(s string) (OutputFormat, error) {
	if s == "" {
		return FormatText, nil
	}
	for _, f := range Formats() {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format %q (want one of %v)", s, Formats())
}

// WriteReflections writes records to w in format.
func WriteReflections(ctx context.Context, w io.Writer, format OutputFormat, records []*reflection.Reflection) error {
	if format == FormatText || format == "" {
		return writeReflectionTable(w, records)
	}
	exp, err := export.New(string(format))
	if err != nil {
		return err
	}
	return exp.Export(ctx, records, w)
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReflectionTable(w io.Writer, records []*reflection.Reflection) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No reflections.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tTRACE\tITER\tACTION\tCONFIDENCE\tRISK\tTAGS\tHEALED")
	for _, r := range records {
		tags := strings.Join(r.CorrectionTags, ",")
		if tags == "" {
			tags = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.2f\t%.2f\t%s\t%t\n",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.TraceID,
			r.IterationCount,
			r.ActionTaken,
			r.ConfidenceScore,
			r.HallucinationRisk,
			tags,
			r.HasHealed,
		)
	}
	return tw.Flush()
}

// WriteReflection renders one reflection in detail for text output.
func WriteReflection(w io.Writer, r *reflection.Reflection) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Trace:\t%s\n", r.TraceID)
	fmt.Fprintf(tw, "Iteration:\t%d\n", r.IterationCount)
	fmt.Fprintf(tw, "Action:\t%s (heuristic %s)\n", r.ActionTaken, r.HeuristicAction)
	fmt.Fprintf(tw, "Confidence:\t%.2f\n", r.ConfidenceScore)
	fmt.Fprintf(tw, "Hallucination risk:\t%.2f\n", r.HallucinationRisk)
	fmt.Fprintf(tw, "Semantic drift:\t%.2f (flagged %t)\n", r.SemanticDriftScore, r.SemanticDrift)
	if len(r.CorrectionTags) > 0 {
		fmt.Fprintf(tw, "Correction tags:\t%s\n", strings.Join(r.CorrectionTags, ", "))
	}
	if len(r.RulesTriggered) > 0 {
		fmt.Fprintf(tw, "Rules:\t%s\n", strings.Join(r.RulesTriggered, ", "))
	}
	if r.Consulted {
		fmt.Fprintln(tw, "Consulted:\tyes")
	}
	if len(r.Degraded) > 0 {
		fmt.Fprintf(tw, "Degraded:\t%s\n", strings.Join(r.Degraded, ", "))
	}
	fmt.Fprintf(tw, "Explanation:\t%s\n", r.Explanation)
	if r.HasHealed && r.Healed != nil {
		fmt.Fprintf(tw, "Healed output:\t%s\n", r.Healed.RawOutput)
	}
	return tw.Flush()
}
