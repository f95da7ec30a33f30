package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Engine evaluates a priority-ordered rule list against a Context.
//
// Reads are lock-free: the rule list is an immutable slice published through
// an atomic pointer. Structural changes (Add, Remove, Replace, reloads) are
// serialized by an internal mutex and publish a freshly sorted slice.
type Engine struct {
	// rules is the current sorted rule list; never mutated after publish
	rules atomic.Pointer[[]*Rule]

	// writeMu serializes structural changes
	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	stats   *stats
	config  *EngineConfig
	logger  *slog.Logger
	metrics Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the engine metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine creates a rule engine holding the given rules.
func NewEngine(config *EngineConfig, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		handlers: make(map[string]HandlerFunc),
		stats:    newStats(),
		config:   config,
		logger:   slog.Default().With("component", "rules.engine"),
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}

	empty := []*Rule{}
	e.rules.Store(&empty)
	return e, nil
}

// RegisterHandler registers a named custom handler.
// Rules with Action custom and a matching HandlerName resolve to it at execution time.
func (e *Engine) RegisterHandler(name string, h HandlerFunc) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[name] = h
}

// HasHandler reports whether a handler is registered under name.
func (e *Engine) HasHandler(name string) bool {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	_, ok := e.handlers[name]
	return ok
}

func (e *Engine) handlerFor(r *Rule) HandlerFunc {
	if r.Handler != nil {
		return r.Handler
	}
	if r.HandlerName == "" {
		return nil
	}
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	return e.handlers[r.HandlerName]
}

// AddRule registers a rule and re-sorts the rule list.
func (e *Engine) AddRule(r *Rule) error {
	if err := e.validateRule(r); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current := e.snapshot()
	if len(current)+1 > e.config.MaxRules {
		return fmt.Errorf("%w: rule limit %d reached", ErrInvalidConfig, e.config.MaxRules)
	}
	for _, existing := range current {
		if existing.Name == r.Name {
			return &DuplicateRuleError{Name: r.Name}
		}
	}

	next := make([]*Rule, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, r)
	sortRules(next)
	e.rules.Store(&next)

	e.logger.Debug("rule added", "rule", r.Name, "priority", r.Priority, "action", r.Action)
	return nil
}

// RemoveRule removes the named rule. It reports whether a rule was removed.
func (e *Engine) RemoveRule(name string) bool {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current := e.snapshot()
	next := make([]*Rule, 0, len(current))
	for _, r := range current {
		if r.Name != name {
			next = append(next, r)
		}
	}
	if len(next) == len(current) {
		return false
	}
	e.rules.Store(&next)
	return true
}

// Replace swaps the whole rule list. The new list is validated and sorted
// before it is published; on error the current rules stay active.
func (e *Engine) Replace(rules []*Rule) error {
	if len(rules) > e.config.MaxRules {
		return fmt.Errorf("%w: %d rules exceeds limit %d", ErrInvalidConfig, len(rules), e.config.MaxRules)
	}

	next := make([]*Rule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := e.validateRule(r); err != nil {
			return err
		}
		if _, dup := seen[r.Name]; dup {
			return &DuplicateRuleError{Name: r.Name}
		}
		seen[r.Name] = struct{}{}
		next = append(next, r)
	}
	sortRules(next)

	e.writeMu.Lock()
	e.rules.Store(&next)
	e.writeMu.Unlock()

	e.logger.Info("rules replaced", "rule_count", len(next))
	return nil
}

// Rules returns the current rules in evaluation order.
func (e *Engine) Rules() []*Rule {
	current := e.snapshot()
	out := make([]*Rule, len(current))
	copy(out, current)
	return out
}

// Rule returns the named rule.
func (e *Engine) Rule(name string) (*Rule, bool) {
	for _, r := range e.snapshot() {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// SetEnabled enables or disables the named rule.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	r, ok := e.Rule(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrRuleNotFound, name)
	}
	r.SetEnabled(enabled)
	e.logger.Info("rule toggled", "rule", name, "enabled", enabled)
	return nil
}

// Evaluate runs every enabled matching rule in priority order and stops after
// the first decisive action. The decisive result, if any, is last.
func (e *Engine) Evaluate(ctx context.Context, c Context) []*ExecutionResult {
	start := time.Now()
	rules := e.snapshot()
	e.stats.evaluations.Add(1)

	var results []*ExecutionResult
	for _, r := range rules {
		if ctx.Err() != nil {
			e.logger.Debug("evaluation cancelled", "evaluated_results", len(results))
			break
		}
		if !r.Enabled() || !r.Evaluate(c) {
			continue
		}

		result := r.execute(ctx, c, e.handlerFor(r), e.config.SnapshotFields)
		results = append(results, result)
		e.stats.record(result)
		e.metrics.RecordRuleTriggered(r.Name, r.Action)

		if result.Failed() {
			e.metrics.RecordHandlerError(r.Name)
			e.logger.Warn("custom handler failed",
				"rule", r.Name,
				"error", result.Error,
			)
		}

		if r.Action == ActionLogWarning {
			e.logger.Warn("rule warning",
				"rule", r.Name,
				"description", r.Description,
			)
		}

		if r.Action.IsDecisive() {
			break
		}
	}

	e.metrics.RecordEvaluation(time.Since(start), len(results))
	return results
}

// Decision returns the action of the first matching rule, or continue.
func (e *Engine) Decision(ctx context.Context, c Context) Action {
	return DecisionOf(e.Evaluate(ctx, c))
}

// Stats returns a snapshot of the execution counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot(len(e.snapshot()))
}

// ResetStats zeroes the execution counters.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

// Export renders the current rules as a declarative rule set.
func (e *Engine) Export() *RuleSet {
	return ExportRuleSet(e.snapshot())
}

// LoadRuleSet builds rules from rs, skipping malformed entries and entries
// over the engine limits with a logged warning, and replaces the rule list
// wholesale. It returns the number of rules loaded.
func (e *Engine) LoadRuleSet(rs *RuleSet) (int, error) {
	built, skipped := rs.Build(e.HasHandler)
	rules := built[:0]
	for _, r := range built {
		if err := e.validateRule(r); err != nil {
			skipped = append(skipped, err)
			continue
		}
		rules = append(rules, r)
	}
	for _, err := range skipped {
		e.logger.Warn("skipping malformed rule", "error", err)
	}
	if err := e.Replace(rules); err != nil {
		e.metrics.RecordReload(false, len(e.snapshot()))
		return 0, err
	}
	e.metrics.RecordReload(true, len(rules))
	return len(rules), nil
}

// Reload loads src and replaces the rule list. On failure the previous rules
// stay active.
func (e *Engine) Reload(ctx context.Context, src Source) error {
	rs, err := src.Load(ctx)
	if err != nil {
		e.metrics.RecordReload(false, len(e.snapshot()))
		return &ReloadError{Source: src.String(), Cause: err}
	}
	n, err := e.LoadRuleSet(rs)
	if err != nil {
		return &ReloadError{Source: src.String(), Cause: err}
	}
	e.logger.Info("rules reloaded", "source", src.String(), "rule_count", n, "revision", rs.Revision)
	return nil
}

// Watch loads src and then reloads on every change event until ctx is done.
// Reload failures are logged and the previous rules remain active.
func (e *Engine) Watch(ctx context.Context, src Source) error {
	if err := e.Reload(ctx, src); err != nil {
		return err
	}

	events, err := src.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch rule source: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Error != nil {
				e.logger.Error("rule source error", "source", src.String(), "error", ev.Error)
				continue
			}
			if err := e.Reload(ctx, src); err != nil {
				e.logger.Error("rule reload failed, keeping previous rules",
					"source", src.String(),
					"event", ev.Type,
					"error", err,
				)
			}
		}
	}
}

func (e *Engine) snapshot() []*Rule {
	return *e.rules.Load()
}

// validateRule checks the structural rule invariants.
func (e *Engine) validateRule(r *Rule) error {
	if r == nil {
		return &ValidationError{Rule: "<nil>", Errors: []string{"rule is nil"}}
	}

	var errs []string
	if r.Name == "" {
		errs = append(errs, "name is required")
	}
	if !r.Action.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown action %q", r.Action))
	}
	if len(r.Conditions) > e.config.MaxConditionsPerRule {
		errs = append(errs, fmt.Sprintf("%d conditions exceeds limit %d", len(r.Conditions), e.config.MaxConditionsPerRule))
	}
	for i, cond := range r.Conditions {
		if cond.Field == "" {
			errs = append(errs, fmt.Sprintf("condition %d: field is required", i))
		}
		if !cond.Operator.IsValid() {
			errs = append(errs, fmt.Sprintf("condition %d: unknown operator %q", i, cond.Operator))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Rule: r.Name, Errors: errs}
	}
	return nil
}

// sortRules orders rules by ascending priority, then by name.
func sortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Name < rules[j].Name
	})
}
