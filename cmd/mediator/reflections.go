package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/reflection/export"
	"mercator-hq/mediator/pkg/reflection/query"
	"mercator-hq/mediator/pkg/reflection/retention"
)

var reflectionsCmd = &cobra.Command{
	Use:   "reflections",
	Short: "Query, export and prune stored reflections",
	Long: `Work with reflections persisted by evaluate --store and loop --store.

Examples:
  # Last 20 rejected reflections
  mediator reflections query --action reject --limit 20

  # Reflections of one trace in a time range
  mediator reflections query --trace abc123 --time-range 2026-01-01T00:00:00Z/2026-02-01T00:00:00Z

  # Export everything as CSV
  mediator reflections export --format csv -o reflections.csv

  # Prune once, or on the configured schedule
  mediator reflections prune
  mediator reflections prune --schedule`,
}

// queryFlags are shared by query and export.
var queryFlags struct {
	backend       string
	traceID       string
	sessionID     string
	senderID      string
	mediatorID    string
	action        string
	timeRange     string
	minConfidence float64
	maxConfidence float64
	limit         int
	offset        int
	sortBy        string
	sortOrder     string
	format        string
	exportFormat  string
	output        string
}

var reflectionsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List stored reflections",
	Args:  cobra.NoArgs,
	RunE:  queryReflections,
}

var reflectionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored reflections",
	Args:  cobra.NoArgs,
	RunE:  exportReflections,
}

var pruneFlags struct {
	backend  string
	archive  string
	schedule bool
}

var reflectionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy",
	Args:  cobra.NoArgs,
	RunE:  pruneReflections,
}

func init() {
	rootCmd.AddCommand(reflectionsCmd)
	reflectionsCmd.AddCommand(reflectionsQueryCmd, reflectionsExportCmd, reflectionsPruneCmd)

	for _, c := range []*cobra.Command{reflectionsQueryCmd, reflectionsExportCmd} {
		f := c.Flags()
		f.StringVar(&queryFlags.backend, "backend", "", "storage backend override: memory, sqlite")
		f.StringVar(&queryFlags.traceID, "trace", "", "filter by trace ID")
		f.StringVar(&queryFlags.sessionID, "session", "", "filter by session ID")
		f.StringVar(&queryFlags.senderID, "sender", "", "filter by sender ID")
		f.StringVar(&queryFlags.mediatorID, "mediator", "", "filter by mediator ID")
		f.StringVar(&queryFlags.action, "action", "", "filter by action taken")
		f.StringVar(&queryFlags.timeRange, "time-range", "", "RFC3339 START/END, either side may be empty")
		f.Float64Var(&queryFlags.minConfidence, "min-confidence", -1, "minimum confidence")
		f.Float64Var(&queryFlags.maxConfidence, "max-confidence", -1, "maximum confidence")
		f.IntVar(&queryFlags.limit, "limit", 0, "maximum number of results")
		f.IntVar(&queryFlags.offset, "offset", 0, "results to skip")
		f.StringVar(&queryFlags.sortBy, "sort", "", "sort field: created_at, confidence, iteration")
		f.StringVar(&queryFlags.sortOrder, "order", "", "sort order: asc, desc")
		f.StringVarP(&queryFlags.output, "output", "o", "", "output file (default: stdout)")
	}
	reflectionsQueryCmd.Flags().StringVar(&queryFlags.format, "format", "text", "output format: text, json, jsonl, csv")
	reflectionsExportCmd.Flags().StringVar(&queryFlags.exportFormat, "format", "json", "export format: json, jsonl, csv")

	reflectionsPruneCmd.Flags().StringVar(&pruneFlags.backend, "backend", "", "storage backend override: memory, sqlite")
	reflectionsPruneCmd.Flags().StringVar(&pruneFlags.archive, "archive", "", "directory receiving a JSON copy of pruned reflections")
	reflectionsPruneCmd.Flags().BoolVar(&pruneFlags.schedule, "schedule", false, "keep running and prune on storage.retention.prune_schedule")
}

// buildQuery converts queryFlags into a validated query.
func buildQuery() (*reflection.Query, error) {
	q := &reflection.Query{
		TraceID:    queryFlags.traceID,
		SessionID:  queryFlags.sessionID,
		SenderID:   queryFlags.senderID,
		MediatorID: queryFlags.mediatorID,
		Action:     reflection.Action(queryFlags.action),
		Limit:      queryFlags.limit,
		Offset:     queryFlags.offset,
		SortBy:     queryFlags.sortBy,
		SortOrder:  strings.ToLower(queryFlags.sortOrder),
	}
	if queryFlags.minConfidence >= 0 {
		v := queryFlags.minConfidence
		q.MinConfidence = &v
	}
	if queryFlags.maxConfidence >= 0 {
		v := queryFlags.maxConfidence
		q.MaxConfidence = &v
	}

	start, end, err := parseTimeRange(queryFlags.timeRange)
	if err != nil {
		return nil, err
	}
	q.StartTime, q.EndTime = start, end

	if err := query.Validate(q); err != nil {
		return nil, err
	}
	query.ApplyDefaults(q)
	return q, nil
}

// parseTimeRange parses "START/END" where each side is RFC3339 or empty.
func parseTimeRange(s string) (start, end *time.Time, err error) {
	if s == "" {
		return nil, nil, nil
	}
	from, to, ok := strings.Cut(s, "/")
	if !ok {
		return nil, nil, fmt.Errorf("invalid time range %q: want START/END", s)
	}
	parse := func(v string) (*time.Time, error) {
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", v, err)
		}
		return &t, nil
	}
	if start, err = parse(from); err != nil {
		return nil, nil, err
	}
	if end, err = parse(to); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func queryReflections(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(queryFlags.format)
	if err != nil {
		return err
	}
	return runQuery(cmd, "reflections query", func(ctx context.Context, records []*reflection.Reflection) error {
		w, closeOut, err := openOutput(cmd, queryFlags.output)
		if err != nil {
			return err
		}
		defer closeOut()
		return cli.WriteReflections(ctx, w, format, records)
	})
}

func exportReflections(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(queryFlags.exportFormat)
	if err != nil {
		return cli.NewCommandError("reflections export", err)
	}
	return runQuery(cmd, "reflections export", func(ctx context.Context, records []*reflection.Reflection) error {
		w, closeOut, err := openOutput(cmd, queryFlags.output)
		if err != nil {
			return err
		}
		defer closeOut()
		if err := exporter.Export(ctx, records, w); err != nil {
			return err
		}
		if queryFlags.output != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d reflection(s) to %s\n", len(records), queryFlags.output)
		}
		return nil
	})
}

// runQuery opens storage, runs the flag query and hands the records to fn.
func runQuery(cmd *cobra.Command, name string, fn func(ctx context.Context, records []*reflection.Reflection) error) error {
	q, err := buildQuery()
	if err != nil {
		return cli.NewCommandError(name, err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.openStorage(queryFlags.backend); err != nil {
		return err
	}

	ctx := context.Background()
	records, err := a.store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError(name, err)
	}
	if err := fn(ctx, records); err != nil {
		return cli.NewCommandError(name, err)
	}
	return nil
}

func pruneReflections(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.openStorage(pruneFlags.backend); err != nil {
		return err
	}

	cfg := retention.FromConfig(a.cfg.Storage.Retention)
	cfg.ArchivePath = pruneFlags.archive
	pruner := retention.NewPruner(a.store, cfg, a.logger)

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if !pruneFlags.schedule {
		n, err := pruner.Prune(ctx)
		if err != nil {
			return cli.NewCommandError("reflections prune", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d reflection(s)\n", n)
		return nil
	}

	if cfg.PruneSchedule == "" {
		return cli.NewConfigError("storage.retention.prune_schedule", "required with --schedule")
	}
	if err := pruner.Start(ctx); err != nil {
		return cli.NewCommandError("reflections prune", err)
	}
	if next := pruner.NextPruning(); next != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Next prune at %s\n", next.Format(time.RFC3339))
	}
	<-ctx.Done()
	pruner.Stop()
	return nil
}
