package rules

import "sync/atomic"

// Stats is a snapshot of engine execution counters. Counters are best effort
// under concurrent evaluation and must not drive decisions.
type Stats struct {
	TotalEvaluations uint64            `json:"total_evaluations"`
	RulesTriggered   uint64            `json:"rules_triggered"`
	HandlerErrors    uint64            `json:"handler_errors"`
	ActionCounts     map[Action]uint64 `json:"action_counts"`
	RuleCount        int               `json:"rule_count"`
}

type stats struct {
	evaluations   atomic.Uint64
	triggered     atomic.Uint64
	handlerErrors atomic.Uint64

	// actions is populated once and never resized
	actions map[Action]*atomic.Uint64
}

func newStats() *stats {
	s := &stats{actions: make(map[Action]*atomic.Uint64)}
	for _, a := range Actions() {
		s.actions[a] = new(atomic.Uint64)
	}
	return s
}

func (s *stats) record(r *ExecutionResult) {
	s.triggered.Add(1)
	if c, ok := s.actions[r.Action]; ok {
		c.Add(1)
	}
	if r.Failed() {
		s.handlerErrors.Add(1)
	}
}

func (s *stats) snapshot(ruleCount int) Stats {
	out := Stats{
		TotalEvaluations: s.evaluations.Load(),
		RulesTriggered:   s.triggered.Load(),
		HandlerErrors:    s.handlerErrors.Load(),
		ActionCounts:     make(map[Action]uint64, len(s.actions)),
		RuleCount:        ruleCount,
	}
	for a, c := range s.actions {
		out.ActionCounts[a] = c.Load()
	}
	return out
}

func (s *stats) reset() {
	s.evaluations.Store(0)
	s.triggered.Store(0)
	s.handlerErrors.Store(0)
	for _, c := range s.actions {
		c.Store(0)
	}
}
