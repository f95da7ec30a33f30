package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// cacheSize bounds the number of cached secrets.
const cacheSize = 128

// Resolver looks secrets up across providers and caches the values.
type Resolver struct {
	providers []Provider
	cache     *expirable.LRU[string, string]
	logger    *slog.Logger
}

// NewResolver creates a resolver consulting providers in order. A ttl of
// zero or less disables expiry.
func NewResolver(ttl time.Duration, logger *slog.Logger, providers ...Provider) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Resolver{
		providers: providers,
		cache:     expirable.NewLRU[string, string](cacheSize, nil, ttl),
		logger:    logger.With("component", "secrets"),
	}
}

// Get returns the named secret from the first provider that has it.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if v, ok := r.cache.Get(name); ok {
		return v, nil
	}

	var errs []error
	for _, p := range r.providers {
		v, err := p.Get(ctx, name)
		if err == nil {
			r.cache.Add(name, v)
			r.logger.Debug("secret resolved", "name", redact(name), "provider", p.Name())
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve secret %q: %w", name, errors.Join(errs...))
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve replaces every ${secret:name} in s. Unresolvable references are
// left in place and reported together.
func (r *Resolver) Resolve(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := r.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// Purge drops every cached value.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// redact keeps the first and last two characters of name.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
