package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEnvPrefix prefixes secret environment variables.
const DefaultEnvPrefix = "MEDIATOR_SECRET_"

// ErrNotFound is returned when no provider holds a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// Get returns the secret value, or an error wrapping ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Name identifies the backend in logs.
	Name() string
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates a provider reading prefix + NAME, where NAME is the
// secret name upper-cased with hyphens and dots replaced by underscores.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// Get implements Provider.
func (p *EnvProvider) Get(ctx context.Context, name string) (string, error) {
	key := p.EnvVar(name)
	if v, ok := p.lookup(key); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s (env %s)", ErrNotFound, name, key)
}

// EnvVar returns the variable consulted for name.
func (p *EnvProvider) EnvVar(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }

// FileProvider reads one secret per file from a directory.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider for dir, which must exist.
func NewFileProvider(dir string) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", dir)
	}
	return &FileProvider{dir: dir}, nil
}

// Get implements Provider. Files must be regular, inside the directory and
// readable by the owner only.
func (p *FileProvider) Get(ctx context.Context, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.dir, name)

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s (file)", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm != 0o600 && perm != 0o400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "file" }
