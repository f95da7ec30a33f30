package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/goleak"

	"mercator-hq/mediator/pkg/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const rulesA = `
version: "1.0.0"
rules:
  - name: reject_low
    action: reject
    priority: 1
    conditions:
      - field: confidence
        operator: "<"
        value: 0.3
`

const rulesB = `{"version": "1.0.0", "rules": [{"name": "approve_high", "action": "approve", "priority": 2}]}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestFileSource_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, rulesA)

	rs, err := NewFileSource(path, 0, testLogger()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].Name != "reject_low" {
		t.Errorf("rules = %+v", rs.Rules)
	}
	if rs.Revision == "" {
		t.Error("Revision should be set from mtime")
	}
}

func TestFileSource_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), rulesA)
	writeFile(t, filepath.Join(dir, "b.json"), rulesB)
	writeFile(t, filepath.Join(dir, "broken.yml"), "rules: [::")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	if err := os.Mkdir(filepath.Join(dir, ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, ".hidden", "c.yaml"), rulesA)

	rs, err := NewFileSource(dir, 0, testLogger()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rs.Rules) != 2 {
		t.Fatalf("got %d rules, want 2: %+v", len(rs.Rules), rs.Rules)
	}
	if rs.Rules[0].Name != "reject_low" || rs.Rules[1].Name != "approve_high" {
		t.Errorf("unexpected order: %s, %s", rs.Rules[0].Name, rs.Rules[1].Name)
	}
}

func TestFileSource_LoadMissing(t *testing.T) {
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "nope"), 0, testLogger()).Load(context.Background()); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestFileSource_WatchReloadsEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeFile(t, path, rulesA)

	eng, err := rules.NewEngine(nil, rules.WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	src := NewFileSource(path, 20*time.Millisecond, testLogger())
	go func() { done <- eng.Watch(ctx, src) }()

	waitFor(t, func() bool { _, ok := eng.Rule("reject_low"); return ok })

	writeFile(t, path, rulesB)
	waitFor(t, func() bool { _, ok := eng.Rule("approve_high"); return ok })

	if _, ok := eng.Rule("reject_low"); ok {
		t.Error("reload should replace the rule set wholesale")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestFileSource_WatchChannelClosesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, rulesA)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewFileSource(path, 0, testLogger()).Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	for range ch {
	}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(nil)
	rs, err := src.Load(context.Background())
	if err != nil || len(rs.Rules) != 0 {
		t.Fatalf("Load() = %+v, %v", rs, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	src.Set(rules.DefaultRuleSet())
	select {
	case ev := <-ch:
		if ev.Type != rules.SourceEventUpdated {
			t.Errorf("event type = %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after Set")
	}

	rs, _ = src.Load(context.Background())
	if len(rs.Rules) != len(rules.DefaultRuleSet().Rules) {
		t.Errorf("Load() after Set returned %d rules", len(rs.Rules))
	}

	cancel()
	for range ch {
	}
}

func createRuleRepo(t *testing.T, dir string) (*gogit.Repository, *gogit.Worktree) {
	t.Helper()

	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "rules"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "rules", "base.yaml"), rulesA)
	commitAll(t, worktree, "initial rules")
	return repo, worktree
}

func commitAll(t *testing.T, worktree *gogit.Worktree, msg string) {
	t.Helper()
	if err := worktree.AddGlob("."); err != nil {
		t.Fatalf("failed to add files: %v", err)
	}
	_, err := worktree.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func TestGitSource_LoadAndPoll(t *testing.T) {
	remote := t.TempDir()
	repo, worktree := createRuleRepo(t, remote)

	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}

	src, err := NewGitSource(GitOptions{
		Repository:   remote,
		Branch:       head.Name().Short(),
		Path:         "rules",
		LocalPath:    filepath.Join(t.TempDir(), "clone"),
		PollInterval: time.Hour,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewGitSource() error: %v", err)
	}

	rs, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rs.Rules) != 1 || rs.Revision != head.Hash().String() {
		t.Fatalf("Load() = %d rules at %s", len(rs.Rules), rs.Revision)
	}

	if _, changed := src.poll(context.Background()); changed {
		t.Error("poll without new commits reported a change")
	}

	writeFile(t, filepath.Join(remote, "rules", "extra.json"), rulesB)
	commitAll(t, worktree, "add approve rule")

	ev, changed := src.poll(context.Background())
	if !changed || ev.Error != nil {
		t.Fatalf("poll() = %+v, %v", ev, changed)
	}
	if ev.Revision == head.Hash().String() {
		t.Error("revision did not advance")
	}

	rs, err = src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rules) != 2 {
		t.Errorf("after pull got %d rules, want 2", len(rs.Rules))
	}
}

func TestNewGitSource_RequiresRepository(t *testing.T) {
	if _, err := NewGitSource(GitOptions{}, nil); err == nil {
		t.Error("expected error for empty repository")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
