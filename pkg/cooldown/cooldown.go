package cooldown

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmptyKey is returned when a key is empty.
var ErrEmptyKey = errors.New("cooldown key cannot be empty")

// Store records the last firing time per key.
type Store interface {
	// TryAcquire records a firing at now unless key fired within window.
	// It returns whether the firing was recorded and, if not, how much of
	// the window remains.
	TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error)

	// LastFired returns the last recorded firing for key.
	LastFired(ctx context.Context, key string) (time.Time, bool, error)

	// Reset forgets key.
	Reset(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// remaining is the unexpired part of window since last.
func remaining(last, now time.Time, window time.Duration) time.Duration {
	left := window - now.Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]time.Time)}
}

// TryAcquire implements Store.
func (s *MemoryStore) TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error) {
	if key == "" {
		return false, 0, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.last[key]; ok && now.Sub(last) < window {
		return false, remaining(last, now, window), nil
	}
	s.last[key] = now
	return true, 0, nil
}

// LastFired implements Store.
func (s *MemoryStore) LastFired(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[key]
	return t, ok, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
