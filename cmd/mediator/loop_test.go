package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/message"
)

func setLoopFlags(format, revisions string) {
	loopFlags.format = format
	loopFlags.revisions = revisions
	loopFlags.maxIterations = 0
	loopFlags.store = false
	loopFlags.backend = ""
}

func TestRunLoop(t *testing.T) {
	useConfig(t)
	dir := t.TempDir()
	weak := writeFile(t, dir, "weak.json", weakMessage)
	revisions := writeFile(t, dir, "revisions.json", `[
  {"raw_output": "The capital of France is Paris.", "metrics": {"confidence": 0.95}}
]`)

	t.Run("revision passes", func(t *testing.T) {
		setLoopFlags("json", revisions)
		loopFlags.store = true
		cmd, out, _ := testCommand()

		if err := runLoop(cmd, []string{weak}); err != nil {
			t.Fatalf("runLoop() error = %v", err)
		}
		var res struct {
			State      string `json:"state"`
			Iterations int    `json:"iterations"`
			Final      struct {
				TraceID   string `json:"trace_id"`
				RawOutput string `json:"raw_output"`
			} `json:"final"`
			History []json.RawMessage `json:"history"`
		}
		if err := json.Unmarshal(out.Bytes(), &res); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out.String())
		}
		if res.State != "passed" || res.Iterations != 1 || len(res.History) != 2 {
			t.Errorf("state = %s, iterations = %d, history = %d", res.State, res.Iterations, len(res.History))
		}
		if res.Final.TraceID != "trace-weak" || res.Final.RawOutput != "The capital of France is Paris." {
			t.Errorf("final = %+v", res.Final)
		}
	})

	t.Run("revisions run out", func(t *testing.T) {
		setLoopFlags("text", "")
		cmd, out, _ := testCommand()

		err := runLoop(cmd, []string{weak})
		if !errors.Is(err, errNoMoreRevisions) {
			t.Fatalf("runLoop() error = %v, want errNoMoreRevisions", err)
		}
		if cli.ExitCode(err) != cli.ExitFailure {
			t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitFailure)
		}
		for _, want := range []string{"State:       rejected_terminal", "Reason:      retry_failed", "trace-weak"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("output missing %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		setLoopFlags("csv", "")
		cmd, _, _ := testCommand()
		if err := runLoop(cmd, []string{weak}); err == nil {
			t.Fatal("runLoop() should reject csv output")
		}
	})
}

func TestScriptedRetry(t *testing.T) {
	current := &message.AgentMessage{
		TraceID: "trace-1", SessionID: "session-1", SenderID: "agent-a", ReceiverID: "agent-b",
		Role: message.RoleAssistant, RawOutput: "old",
	}
	revisions := []*message.AgentMessage{
		{RawOutput: "first"},
		{TraceID: "trace-2", Role: message.RoleAgent, RawOutput: "second"},
	}
	retry := scriptedRetry(revisions)
	ctx := context.Background()

	first, err := retry(ctx, "prompt", current)
	if err != nil {
		t.Fatalf("first retry error = %v", err)
	}
	if first.TraceID != "trace-1" || first.ReceiverID != "agent-b" || first.Role != message.RoleAssistant || first.RawOutput != "first" {
		t.Errorf("first = %+v", first)
	}
	if revisions[0].TraceID != "" {
		t.Error("scripted revision was mutated")
	}

	second, err := retry(ctx, "prompt", first)
	if err != nil {
		t.Fatalf("second retry error = %v", err)
	}
	if second.TraceID != "trace-2" || second.Role != message.RoleAgent || second.SessionID != "session-1" {
		t.Errorf("second = %+v", second)
	}

	if _, err := retry(ctx, "prompt", second); !errors.Is(err, errNoMoreRevisions) {
		t.Errorf("third retry error = %v, want errNoMoreRevisions", err)
	}
}
