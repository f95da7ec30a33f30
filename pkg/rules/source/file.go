package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/mediator/pkg/rules"
)

// DefaultDebounce is the quiet period before a burst of file events triggers
// a reload.
const DefaultDebounce = 100 * time.Millisecond

var ruleExtensions = []string{".yaml", ".yml", ".json"}

// FileSource loads rule sets from files on disk.
// The path can be either a single file or a directory. Rules from every file
// in a directory are merged in lexical file order.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewFileSource creates a new file-based rule source.
func NewFileSource(path string, debounce time.Duration, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileSource{
		path:     path,
		debounce: debounce,
		logger:   logger.With("component", "rules.source.file"),
	}
}

// Load reads the rule set from the configured path.
func (s *FileSource) Load(ctx context.Context) (*rules.RuleSet, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	if !info.IsDir() {
		rs, err := rules.LoadRuleSetFile(s.path)
		if err != nil {
			return nil, err
		}
		rs.Revision = info.ModTime().UTC().Format(time.RFC3339Nano)
		return rs, nil
	}

	return s.loadDirectory(ctx)
}

// loadDirectory merges every rule file below the directory.
// Unparseable files are skipped with a warning.
func (s *FileSource) loadDirectory(ctx context.Context) (*rules.RuleSet, error) {
	files, err := listRuleFiles(s.path)
	if err != nil {
		return nil, err
	}

	merged := &rules.RuleSet{Version: rules.CurrentVersion}
	var latest time.Time
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rs, err := rules.LoadRuleSetFile(path)
		if err != nil {
			s.logger.Warn("failed to load rule file, skipping",
				"path", path,
				"error", err,
			)
			continue
		}
		merged.Rules = append(merged.Rules, rs.Rules...)

		if info, err := os.Stat(path); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}

	merged.Revision = latest.UTC().Format(time.RFC3339Nano)
	s.logger.Debug("loaded rule directory",
		"path", s.path,
		"file_count", len(files),
		"rule_count", len(merged.Rules),
	)
	return merged, nil
}

// Watch watches the path with fsnotify and emits one event per debounced
// burst of changes. The channel is closed when ctx is cancelled.
func (s *FileSource) Watch(ctx context.Context) (<-chan rules.SourceEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := s.addPath(watcher); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch path: %w", err)
	}

	out := make(chan rules.SourceEvent, 1)
	fire := make(chan rules.SourceEvent, 1)
	done := make(chan struct{})
	debouncer := newDebouncer(s.debounce)

	go func() {
		defer close(out)
		defer watcher.Close()
		defer debouncer.stop()
		defer close(done)

		for {
			select {
			case <-ctx.Done():
				return

			case ev := <-fire:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !shouldProcess(event) {
					continue
				}
				s.logger.Debug("rule file event", "path", event.Name, "op", event.Op.String())

				ev := rules.SourceEvent{Type: eventType(event.Op), Path: event.Name}
				debouncer.trigger(func() {
					select {
					case fire <- ev:
					case <-done:
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case out <- rules.SourceEvent{Error: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.logger.Info("rule file watcher started",
		"path", s.path,
		"debounce_ms", s.debounce.Milliseconds(),
	)
	return out, nil
}

// String identifies the source in logs.
func (s *FileSource) String() string {
	return "file:" + s.path
}

// addPath watches the file's directory, or the directory tree.
// Watching the parent directory survives editors that replace files on save.
func (s *FileSource) addPath(w *fsnotify.Watcher) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(filepath.Dir(s.path))
	}

	return filepath.WalkDir(s.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func listRuleFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isRuleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %q: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func isRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range ruleExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

func shouldProcess(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return isRuleFile(event.Name)
}

func eventType(op fsnotify.Op) rules.SourceEventType {
	switch {
	case op.Has(fsnotify.Create):
		return rules.SourceEventCreated
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return rules.SourceEventDeleted
	default:
		return rules.SourceEventModified
	}
}

// debouncer collects rapid events and runs the latest callback only after a
// quiet period.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, callback)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
