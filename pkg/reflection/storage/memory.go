package storage

import (
	"context"
	"slices"
	"sync"

	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/reflection/query"
)

// MemoryStorage keeps reflections in process memory. Records are lost on
// restart.
type MemoryStorage struct {
	records map[string]*reflection.Reflection
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*reflection.Reflection),
	}
}

// Store persists a copy of r.
func (s *MemoryStorage) Store(ctx context.Context, r *reflection.Reflection) error {
	if r == nil {
		return reflection.NewStorageError("memory", "store", reflection.ErrNilReflection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := clone(r)
	s.records[r.ID] = c
	return nil
}

// Query returns copies of the matching reflections, sorted and paginated.
func (s *MemoryStorage) Query(ctx context.Context, q *reflection.Query) ([]*reflection.Reflection, error) {
	q = normalize(q)
	if err := query.Validate(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]*reflection.Reflection, 0)
	for _, r := range s.records {
		if Matches(r, q) {
			results = append(results, clone(r))
		}
	}
	s.mu.RUnlock()

	sortReflections(results, q.SortBy, q.SortOrder)

	if q.Offset >= len(results) {
		return []*reflection.Reflection{}, nil
	}
	results = results[q.Offset:]
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results, nil
}

// Count returns the number of matching reflections. Pagination is ignored.
func (s *MemoryStorage) Count(ctx context.Context, q *reflection.Query) (int64, error) {
	if q == nil {
		q = &reflection.Query{}
	}
	if err := query.Validate(q); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, r := range s.records {
		if Matches(r, q) {
			count++
		}
	}
	return count, nil
}

// Delete removes the matching reflections. Pagination is ignored.
func (s *MemoryStorage) Delete(ctx context.Context, q *reflection.Query) (int64, error) {
	if q == nil {
		q = &reflection.Query{}
	}
	if err := query.Validate(q); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, r := range s.records {
		if Matches(r, q) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close drops every record.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*reflection.Reflection)
	return nil
}

// Size returns the number of stored reflections.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Matches reports whether r satisfies the filters of q.
func Matches(r *reflection.Reflection, q *reflection.Query) bool {
	if q.StartTime != nil && r.CreatedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.CreatedAt.After(*q.EndTime) {
		return false
	}

	if q.TraceID != "" && r.TraceID != q.TraceID {
		return false
	}
	if q.SessionID != "" && r.SessionID != q.SessionID {
		return false
	}
	if q.SenderID != "" && r.SenderID != q.SenderID {
		return false
	}
	if q.MediatorID != "" && r.MediatorID != q.MediatorID {
		return false
	}
	if q.Action != "" && r.ActionTaken != q.Action {
		return false
	}

	if q.MinConfidence != nil && r.ConfidenceScore < *q.MinConfidence {
		return false
	}
	if q.MaxConfidence != nil && r.ConfidenceScore > *q.MaxConfidence {
		return false
	}
	return true
}

func normalize(q *reflection.Query) *reflection.Query {
	c := reflection.Query{}
	if q != nil {
		c = *q
	}
	query.ApplyDefaults(&c)
	return &c
}

func sortReflections(rs []*reflection.Reflection, by, order string) {
	cmp := func(a, b *reflection.Reflection) int {
		switch by {
		case query.SortConfidence:
			return compare(a.ConfidenceScore, b.ConfidenceScore)
		case query.SortIteration:
			return compare(a.IterationCount, b.IterationCount)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	slices.SortStableFunc(rs, func(a, b *reflection.Reflection) int {
		if order == "asc" {
			return cmp(a, b)
		}
		return cmp(b, a)
	})
}

func compare[T int | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// clone copies r deeply enough that callers cannot mutate stored state.
func clone(r *reflection.Reflection) *reflection.Reflection {
	c := *r
	c.CorrectionTags = slices.Clone(r.CorrectionTags)
	c.ClarityIssues = slices.Clone(r.ClarityIssues)
	c.RulesTriggered = slices.Clone(r.RulesTriggered)
	c.Degraded = slices.Clone(r.Degraded)
	if r.Healed != nil {
		c.Healed = r.Healed.Clone()
	}
	return &c
}
