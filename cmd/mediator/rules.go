package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rule sets",
	Long: `Validate, export and watch declarative rule sets.

Examples:
  # Validate rule files
  mediator rules lint rules.yaml

  # Export the rules the engine would load
  mediator rules export -o rules.yaml

  # Hot-reload the configured source and serve metrics and probes
  mediator rules watch --http-addr :9090`,
}

var lintFlags struct {
	strict bool
	format string
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint FILE...",
	Short: "Validate rule set files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  lintRules,
}

var exportRulesFlags struct {
	output string
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the loaded rules as YAML",
	Args:  cobra.NoArgs,
	RunE:  exportRules,
}

var watchFlags struct {
	httpAddr string
}

var rulesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload rules whenever the configured source changes",
	Args:  cobra.NoArgs,
	RunE:  watchRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd, rulesExportCmd, rulesWatchCmd)

	rulesLintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	rulesLintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")

	rulesExportCmd.Flags().StringVarP(&exportRulesFlags.output, "output", "o", "", "output file (default: stdout)")

	rulesWatchCmd.Flags().StringVar(&watchFlags.httpAddr, "http-addr", "", "serve /metrics, /health, /ready and /version on this address")
}

// LintResult is the lint outcome for one rule set file.
type LintResult struct {
	File      string   `json:"file"`
	Valid     bool     `json:"valid"`
	RuleCount int      `json:"rule_count"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

func lintRules(cmd *cobra.Command, args []string) error {
	results := make([]LintResult, 0, len(args))
	for _, path := range args {
		results = append(results, lintFile(path))
	}

	out := cmd.OutOrStdout()
	if lintFlags.format == "json" {
		if err := cli.WriteJSON(out, results); err != nil {
			return err
		}
	} else {
		writeLintText(out, results)
	}

	errs, warns := 0, 0
	for _, r := range results {
		errs += len(r.Errors)
		warns += len(r.Warnings)
	}
	if errs > 0 || (lintFlags.strict && warns > 0) {
		return cli.NewCommandError("rules lint", errors.New("validation failed"))
	}
	return nil
}

func lintFile(path string) LintResult {
	result := LintResult{File: path, Valid: true}

	rs, err := rules.LoadRuleSetFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	built, skipped := rs.Build(nil)
	for _, err := range skipped {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Valid = len(skipped) == 0
	result.RuleCount = len(built)

	for _, r := range built {
		if len(r.Conditions) == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("rule %q has no conditions and always matches", r.Name))
		}
		if r.HandlerName != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("rule %q needs handler %q registered at runtime", r.Name, r.HandlerName))
		}
	}
	return result
}

func writeLintText(w io.Writer, results []LintResult) {
	errs, warns := 0, 0
	for _, r := range results {
		fmt.Fprintf(w, "Validating %s...\n", r.File)
		if len(r.Errors) == 0 {
			fmt.Fprintf(w, "✓ %d rule(s) valid\n", r.RuleCount)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "✗ Error: %s\n", e)
			errs++
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "⚠  Warning: %s\n", warn)
			warns++
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d error(s), %d warning(s)\n", errs, warns)
}

func exportRules(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.buildEngine(context.Background()); err != nil {
		return cli.NewCommandError("rules export", err)
	}
	data, err := a.engine.Export().Marshal()
	if err != nil {
		return cli.NewCommandError("rules export", err)
	}

	if exportRulesFlags.output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportRulesFlags.output, data, 0o644); err != nil {
		return cli.NewCommandError("rules export", fmt.Errorf("failed to write %s: %w", exportRulesFlags.output, err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rule(s) to %s\n", len(a.engine.Rules()), exportRulesFlags.output)
	return nil
}

func watchRules(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if err := a.buildEngine(ctx); err != nil {
		return cli.NewCommandError("rules watch", err)
	}

	if watchFlags.httpAddr != "" {
		srv := a.probeServer(watchFlags.httpAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server failed", "addr", watchFlags.httpAddr, "error", err)
			}
		}()
		defer srv.Close()
		a.logger.Info("serving metrics and probes", "addr", watchFlags.httpAddr)
	}

	a.logger.Info("watching rules", "source", a.source.String())
	if err := a.engine.Watch(ctx, a.source); err != nil {
		return cli.NewCommandError("rules watch", err)
	}
	a.logger.Info("rule watch stopped")
	return nil
}
