package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// writeFile writes content to name inside dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// useConfig points the global --config flag at a config with the mediator
// disabled and quiet logging, restoring the previous value on cleanup.
func useConfig(t *testing.T) {
	t.Helper()
	path := writeFile(t, t.TempDir(), "config.yaml", `
mediator:
  enabled: false
telemetry:
  logging:
    level: error
  metrics:
    enabled: false
`)
	prev, prevLevel, prevVerbose := cfgFile, logLevel, verbose
	cfgFile, logLevel, verbose = path, "", false
	t.Cleanup(func() { cfgFile, logLevel, verbose = prev, prevLevel, prevVerbose })
}

// testCommand returns a command whose output is captured in the buffers.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

const (
	confidentMessage = `{
  "trace_id": "trace-ok",
  "session_id": "session-1",
  "sender_id": "agent-a",
  "receiver_id": "agent-b",
  "role": "assistant",
  "raw_output": "The capital of France is Paris.",
  "metrics": {"confidence": 0.95}
}`

	weakMessage = `{
  "trace_id": "trace-weak",
  "session_id": "session-1",
  "sender_id": "agent-a",
  "receiver_id": "agent-b",
  "role": "assistant",
  "raw_output": "The answer is 42.",
  "metrics": {"confidence": 0.2}
}`
)
