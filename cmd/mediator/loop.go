package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/loopback"
	"mercator-hq/mediator/pkg/message"
)

var loopFlags struct {
	revisions     string
	maxIterations int
	format        string
	store         bool
	backend       string
}

var loopCmd = &cobra.Command{
	Use:   "loop MESSAGE",
	Short: "Run a message through the correction loop",
	Long: `Run a message through the bounded correction loop.

Revisions are read from --revisions, a JSON array of messages handed out in
order each time the loop asks for a retry. Empty identity fields in a
revision are copied from the message it replaces. The loop fails with a
retry error when the revisions run out.

Examples:
  # Heal or reject a message without revisions
  mediator loop message.json

  # Replay scripted revisions
  mediator loop message.json --revisions revisions.json --max-iterations 2`,
	Args: cobra.ExactArgs(1),
	RunE: runLoop,
}

func init() {
	rootCmd.AddCommand(loopCmd)

	loopCmd.Flags().StringVar(&loopFlags.revisions, "revisions", "", "JSON array of revised messages")
	loopCmd.Flags().IntVar(&loopFlags.maxIterations, "max-iterations", 0, "override loopback.max_iterations")
	loopCmd.Flags().StringVar(&loopFlags.format, "format", "text", "output format: text, json")
	loopCmd.Flags().BoolVar(&loopFlags.store, "store", false, "persist every reflection to the configured storage")
	loopCmd.Flags().StringVar(&loopFlags.backend, "backend", "", "storage backend override: memory, sqlite")
}

func runLoop(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(loopFlags.format)
	if err != nil {
		return err
	}
	if format != cli.FormatText && format != cli.FormatJSON {
		return cli.NewCommandError("loop", fmt.Errorf("unsupported format %q", format))
	}

	msg, err := message.LoadFile(args[0])
	if err != nil {
		return cli.NewCommandError("loop", err)
	}
	var revisions []*message.AgentMessage
	if loopFlags.revisions != "" {
		if revisions, err = message.LoadFiles(loopFlags.revisions); err != nil {
			return cli.NewCommandError("loop", err)
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if err := a.buildEvaluator(ctx); err != nil {
		return cli.NewCommandError("loop", err)
	}
	if loopFlags.store {
		if err := a.openStorage(loopFlags.backend); err != nil {
			return err
		}
	}

	cfg := a.cfg.Loopback
	if loopFlags.maxIterations > 0 {
		cfg.MaxIterations = loopFlags.maxIterations
	}
	opts := []loopback.Option{
		loopback.WithLogger(a.logger),
		loopback.WithTracer(a.tracer.Tracer()),
	}
	if sink := a.sink(); sink != nil {
		opts = append(opts, loopback.WithSink(sink))
	}
	if a.metrics.Enabled() {
		opts = append(opts, loopback.WithMetrics(a.metrics.Loopback()))
	}
	h, err := loopback.New(a.evaluator, scriptedRetry(revisions), cfg, opts...)
	if err != nil {
		return cli.NewCommandError("loop", err)
	}

	res, runErr := h.Run(ctx, msg)
	var retryErr *loopback.RetryCallbackError
	if errors.As(runErr, &retryErr) {
		res = retryErr.Result
	}
	if res != nil {
		if err := writeLoopResult(cmd.OutOrStdout(), format, res); err != nil {
			return cli.NewCommandError("loop", err)
		}
	}
	if runErr != nil {
		return cli.NewCommandError("loop", runErr)
	}
	if !res.Passed() {
		return &cli.RejectedError{TraceID: res.Final.TraceID, Action: string(res.Reason)}
	}
	return nil
}

// errNoMoreRevisions is returned by scriptedRetry once every revision was
// handed out.
var errNoMoreRevisions = errors.New("no more revisions")

// scriptedRetry hands out revisions in order.
func scriptedRetry(revisions []*message.AgentMessage) loopback.RetryFunc {
	next := 0
	return func(ctx context.Context, prompt string, current *message.AgentMessage) (*message.AgentMessage, error) {
		if next >= len(revisions) {
			return nil, errNoMoreRevisions
		}
		rev := revisions[next].Clone()
		next++
		fillIdentity(rev, current)
		return rev, nil
	}
}

// fillIdentity copies empty identity fields of rev from current.
func fillIdentity(rev, current *message.AgentMessage) {
	if rev.TraceID == "" {
		rev.TraceID = current.TraceID
	}
	if rev.SessionID == "" {
		rev.SessionID = current.SessionID
	}
	if rev.SenderID == "" {
		rev.SenderID = current.SenderID
	}
	if rev.ReceiverID == "" {
		rev.ReceiverID = current.ReceiverID
	}
	if rev.Role == "" {
		rev.Role = current.Role
	}
}

func writeLoopResult(w io.Writer, format cli.OutputFormat, res *loopback.Result) error {
	if format == cli.FormatJSON {
		return cli.WriteJSON(w, res)
	}

	fmt.Fprintf(w, "State:       %s\n", res.State)
	fmt.Fprintf(w, "Reason:      %s\n", res.Reason)
	fmt.Fprintf(w, "Iterations:  %d\n", res.Iterations)
	fmt.Fprintf(w, "Heal passes: %d\n", res.HealPasses)
	fmt.Fprintln(w)

	if err := cli.WriteReflections(context.Background(), w, cli.FormatText, res.History); err != nil {
		return err
	}
	for i, p := range res.Prompts {
		fmt.Fprintf(w, "\nPrompt %d:\n%s\n", i+1, p)
	}
	if res.Final != nil {
		fmt.Fprintf(w, "\nFinal output:\n%s\n", res.Final.RawOutput)
	}
	return nil
}
