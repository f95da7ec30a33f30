/*
Package cli provides command-line helpers for the mediator command.

Output Formatting:

Reflections and other results are written in one of several formats. Text
renders an aligned table; json, jsonl and csv reuse the reflection exporters:

	format, err := cli.ParseFormat("csv")
	if err != nil {
		return err
	}
	if err := cli.WriteReflections(ctx, os.Stdout, format, records); err != nil {
		return err
	}

Progress Reporting:

Batch evaluations draw a bar on stderr and tally decisions; an empty
label counts as a failed message:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(msgs)))
	for _, o := range outcomes {
		progress.Record(string(o.Reflection.ActionTaken))
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
