package query

import (
	"fmt"

	"mercator-hq/mediator/pkg/reflection"
)

const (
	// DefaultLimit is the number of records returned when no limit is given.
	DefaultLimit = 100

	// MaxLimit is the largest limit a single query may request.
	MaxLimit = 10000
)

// Sort fields.
const (
	SortCreatedAt  = "created_at"
	SortConfidence = "confidence"
	SortIteration  = "iteration"
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	SortCreatedAt:  true,
	SortConfidence: true,
	SortIteration:  true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate returns a *reflection.QueryError if any parameter is invalid.
func Validate(q *reflection.Query) error {
	if q.Limit < 0 {
		return reflection.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return reflection.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return reflection.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return reflection.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return reflection.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return reflection.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	if q.MinConfidence != nil && q.MaxConfidence != nil && *q.MinConfidence > *q.MaxConfidence {
		return reflection.NewQueryError(q, fmt.Errorf("min_confidence must be <= max_confidence"))
	}

	if q.Action != "" && !q.Action.IsValid() {
		return reflection.NewQueryError(q, fmt.Errorf("invalid action: %s", q.Action))
	}
	return nil
}

// ApplyDefaults fills the limit and sort order of q.
func ApplyDefaults(q *reflection.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = SortCreatedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
