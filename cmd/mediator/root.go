package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/mediator/pkg/cli"
)

var (
	// Global flags
	cfgFile  string
	verbose  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mediator",
	Short: "Mediator - rule-driven evaluation and self-correction for agent messages",
	Long: `Mediator evaluates messages passed between autonomous agents, decides
whether each one is trustworthy enough to forward and, when it is not,
requests a revision and re-evaluates until the message passes or the retry
budget is spent.

Each evaluation produces a reflection: the action taken, the signals behind
it, the correction tags and, when possible, a healed copy of the message.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
