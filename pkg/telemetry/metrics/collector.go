package metrics

import (
	"sync"

	"mercator-hq/mediator/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultDurationBuckets suit in-process evaluation latencies (50µs to 2.5s).
var DefaultDurationBuckets = []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5}

// maxLabelValues bounds the distinct rule and trigger names per metric.
const maxLabelValues = 1000

// otherLabel replaces label values past the cardinality limit.
const otherLabel = "other"

// Collector is the entry point for all Prometheus metrics. Its groups are
// always usable; Enabled only decides whether the registry is exposed.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	rules     *RuleMetrics
	evaluator *EvaluatorMetrics
	mediator  *MediatorMetrics
	loopback  *LoopbackMetrics
}

// NewCollector creates a collector and registers every metric group. If
// registry is nil a fresh registry is created.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultDurationBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.rules = newRuleMetrics(cfg, registry)
	c.evaluator = newEvaluatorMetrics(cfg, registry)
	c.mediator = newMediatorMetrics(cfg, registry)
	c.loopback = newLoopbackMetrics(cfg, registry)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether metrics were enabled in configuration.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Rules returns the rule engine metric group.
func (c *Collector) Rules() *RuleMetrics { return c.rules }

// Evaluator returns the evaluator metric group.
func (c *Collector) Evaluator() *EvaluatorMetrics { return c.evaluator }

// Mediator returns the mediator metric group.
func (c *Collector) Mediator() *MediatorMetrics { return c.mediator }

// Loopback returns the loopback metric group.
func (c *Collector) Loopback() *LoopbackMetrics { return c.loopback }

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Label returns value when allowed, otherwise "other".
func (cl *CardinalityLimiter) Label(value string) string {
	if cl.Allow(value) {
		return value
	}
	return otherLabel
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
