package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/mediator/pkg/rules"
)

// GitOptions configures a GitSource.
type GitOptions struct {
	// Repository is the clone URL.
	Repository string

	// Branch to track. Default: "main".
	Branch string

	// Path is the rule file or directory inside the repository. Default: ".".
	Path string

	// LocalPath is the clone directory. Default: a directory under os.TempDir.
	LocalPath string

	// Depth limits the clone history; 0 clones everything.
	Depth int

	// PollInterval between pulls. Default: 30s.
	PollInterval time.Duration

	// Timeout for a single clone or pull. Default: 30s.
	Timeout time.Duration

	// Token enables HTTPS token authentication.
	Token string

	// SSHKeyPath enables SSH key authentication.
	SSHKeyPath    string
	SSHPassphrase string
}

func (o *GitOptions) applyDefaults() {
	if o.Branch == "" {
		o.Branch = "main"
	}
	if o.Path == "" {
		o.Path = "."
	}
	if o.LocalPath == "" {
		o.LocalPath = filepath.Join(os.TempDir(), "mediator-rules")
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

// GitSource serves rule sets from a Git repository.
// The working tree is read through a FileSource; the HEAD commit SHA becomes
// the rule set revision.
type GitSource struct {
	opts   GitOptions
	logger *slog.Logger

	mu   sync.Mutex
	repo *gogit.Repository
	head string
}

// NewGitSource validates opts and creates a Git rule source. The repository
// is cloned lazily on the first Load.
func NewGitSource(opts GitOptions, logger *slog.Logger) (*GitSource, error) {
	if opts.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &GitSource{
		opts:   opts,
		logger: logger.With("component", "rules.source.git"),
	}, nil
}

// Load clones the repository if needed and reads the rule set at HEAD.
func (s *GitSource) Load(ctx context.Context) (*rules.RuleSet, error) {
	s.mu.Lock()
	if s.repo == nil {
		if err := s.clone(ctx); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	head := s.head
	s.mu.Unlock()

	rs, err := s.files().Load(ctx)
	if err != nil {
		return nil, err
	}
	rs.Revision = head
	return rs, nil
}

// Watch polls the remote and emits an event whenever HEAD moves.
func (s *GitSource) Watch(ctx context.Context) (<-chan rules.SourceEvent, error) {
	out := make(chan rules.SourceEvent, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ev, changed := s.poll(ctx)
				if !changed {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.logger.Info("git rule watcher started",
		"repository", s.opts.Repository,
		"branch", s.opts.Branch,
		"interval", s.opts.PollInterval,
	)
	return out, nil
}

// Head returns the last observed commit SHA.
func (s *GitSource) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// String identifies the source in logs.
func (s *GitSource) String() string {
	return "git:" + s.opts.Repository + "@" + s.opts.Branch
}

func (s *GitSource) files() *FileSource {
	return NewFileSource(filepath.Join(s.opts.LocalPath, s.opts.Path), 0, s.logger)
}

// poll pulls and reports an event when HEAD changed or the pull failed.
func (s *GitSource) poll(ctx context.Context) (rules.SourceEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		if err := s.clone(ctx); err != nil {
			return rules.SourceEvent{Error: err}, true
		}
		return rules.SourceEvent{Type: rules.SourceEventUpdated, Revision: s.head}, true
	}

	from := s.head
	to, err := s.pull(ctx)
	if err != nil {
		return rules.SourceEvent{Error: err}, true
	}
	if to == from {
		return rules.SourceEvent{}, false
	}

	s.logger.Info("detected rule changes", "from_sha", short(from), "to_sha", short(to))
	return rules.SourceEvent{Type: rules.SourceEventUpdated, Revision: to}, true
}

// clone opens an existing checkout or clones the repository. Caller holds mu.
func (s *GitSource) clone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.opts.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.opts.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		s.repo = repo
		return s.readHead()
	}

	if err := os.MkdirAll(s.opts.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := s.auth()
	if err != nil {
		return err
	}

	cloneCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.opts.LocalPath, false, &gogit.CloneOptions{
		URL:           s.opts.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.opts.Branch),
		SingleBranch:  s.opts.Depth > 0,
		Depth:         s.opts.Depth,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	return s.readHead()
}

// pull fetches the tracked branch and returns the new HEAD. Caller holds mu.
func (s *GitSource) pull(ctx context.Context) (string, error) {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := s.auth()
	if err != nil {
		return "", err
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.opts.Branch),
		Auth:          auth,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("failed to pull: %w", err)
	}

	if err := s.readHead(); err != nil {
		return "", err
	}
	return s.head, nil
}

func (s *GitSource) readHead() error {
	ref, err := s.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}
	s.head = ref.Hash().String()
	return nil
}

// auth picks token, SSH key or anonymous access.
func (s *GitSource) auth() (transport.AuthMethod, error) {
	switch {
	case s.opts.Token != "":
		return &http.BasicAuth{Username: "git", Password: s.opts.Token}, nil

	case s.opts.SSHKeyPath != "":
		info, err := os.Stat(s.opts.SSHKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to access SSH key file: %w", err)
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", mode)
		}
		auth, err := ssh.NewPublicKeysFromFile("git", s.opts.SSHKeyPath, s.opts.SSHPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key: %w", err)
		}
		return auth, nil
	}
	return nil, nil
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
