package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/evaluator"
	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

var evaluateFlags struct {
	batch        bool
	format       string
	output       string
	store        bool
	backend      string
	progress     bool
	failOnReject bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate FILE...",
	Short: "Evaluate agent messages",
	Long: `Evaluate one or more agent messages and print their reflections.

Each FILE holds one JSON message, or with --batch a JSON array of messages.
Messages are evaluated concurrently, bounded by evaluator.workers, and the
reflections are printed in input order.

Examples:
  # Evaluate a single message
  mediator evaluate message.json

  # Evaluate a batch and persist the reflections
  mediator evaluate --batch messages.json --store --format csv -o out.csv

  # Exit with status 3 when any message does not pass
  mediator evaluate message.json --fail-on-reject`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evaluateFlags.batch, "batch", false, "each file holds a JSON array of messages")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json, jsonl, csv")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.output, "output", "o", "", "output file (default: stdout)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.store, "store", false, "persist reflections to the configured storage")
	evaluateCmd.Flags().StringVar(&evaluateFlags.backend, "backend", "", "storage backend override: memory, sqlite")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.progress, "progress", false, "report progress on stderr")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.failOnReject, "fail-on-reject", false, "exit with status 3 when a message does not pass")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evaluateFlags.format)
	if err != nil {
		return err
	}
	msgs, err := loadMessages(args, evaluateFlags.batch)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if err := a.buildEvaluator(ctx); err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	if evaluateFlags.store {
		if err := a.openStorage(evaluateFlags.backend); err != nil {
			return err
		}
	}

	var outcomes []evaluator.Outcome
	if evaluateFlags.progress {
		outcomes = evaluateWithProgress(ctx, a.evaluator, msgs, cli.NewProgressReporter(cmd.ErrOrStderr()))
	} else if outcomes, err = a.evaluator.EvaluateAll(ctx, msgs); err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	records := make([]*reflection.Reflection, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "message %d: %v\n", o.Index, o.Err)
			continue
		}
		records = append(records, o.Reflection)
		if a.store != nil {
			if err := a.store.Store(ctx, o.Reflection); err != nil {
				return cli.NewCommandError("evaluate", fmt.Errorf("failed to store reflection: %w", err))
			}
		}
	}

	w, closeOut, err := openOutput(cmd, evaluateFlags.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if format == cli.FormatText && len(records) == 1 {
		err = cli.WriteReflection(w, records[0])
	} else {
		err = cli.WriteReflections(ctx, w, format, records)
	}
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	if failed > 0 {
		return cli.NewCommandError("evaluate", fmt.Errorf("%d of %d messages failed", failed, len(msgs)))
	}
	if evaluateFlags.failOnReject {
		for _, r := range records {
			if !r.ActionTaken.Passed() {
				return &cli.RejectedError{TraceID: r.TraceID, Action: string(r.ActionTaken)}
			}
		}
	}
	return nil
}

// evaluateWithProgress runs every message through Evaluator.Go and records
// each decision as it arrives.
func evaluateWithProgress(ctx context.Context, e *evaluator.Evaluator, msgs []*message.AgentMessage, progress cli.ProgressReporter) []evaluator.Outcome {
	progress.Start(int64(len(msgs)))
	chans := make([]<-chan evaluator.Outcome, len(msgs))
	for i, msg := range msgs {
		chans[i] = e.Go(ctx, msg)
	}

	out := make([]evaluator.Outcome, len(msgs))
	for i, ch := range chans {
		out[i] = <-ch
		out[i].Index = i
		var label string
		if out[i].Err == nil {
			label = string(out[i].Reflection.ActionTaken)
		}
		progress.Record(label)
	}
	progress.Finish()
	return out
}

// loadMessages reads every file as one message, or as an array with batch.
func loadMessages(paths []string, batch bool) ([]*message.AgentMessage, error) {
	var msgs []*message.AgentMessage
	for _, p := range paths {
		if batch {
			loaded, err := message.LoadFiles(p)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, loaded...)
			continue
		}
		m, err := message.LoadFile(p)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages in %v", paths)
	}
	return msgs, nil
}

// openOutput returns the command's stdout, or the named file.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
