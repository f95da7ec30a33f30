package source

import (
	"context"
	"sync"

	"mercator-hq/mediator/pkg/rules"
)

// MemorySource is an in-memory rule source.
type MemorySource struct {
	mu   sync.RWMutex
	set  *rules.RuleSet
	subs []chan rules.SourceEvent
}

// NewMemorySource creates a new in-memory rule source.
func NewMemorySource(set *rules.RuleSet) *MemorySource {
	return &MemorySource{set: set}
}

// Load returns the stored rule set.
func (s *MemorySource) Load(ctx context.Context) (*rules.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.set == nil {
		return &rules.RuleSet{Version: rules.CurrentVersion}, nil
	}
	return s.set, nil
}

// Watch returns a channel that receives an event on every Set call.
func (s *MemorySource) Watch(ctx context.Context) (<-chan rules.SourceEvent, error) {
	ch := make(chan rules.SourceEvent, 1)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Set replaces the stored rule set and notifies watchers.
func (s *MemorySource) Set(set *rules.RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
	for _, sub := range s.subs {
		select {
		case sub <- rules.SourceEvent{Type: rules.SourceEventUpdated}:
		default:
			// a reload is already pending
		}
	}
}

// String identifies the source in logs.
func (s *MemorySource) String() string {
	return "memory"
}
