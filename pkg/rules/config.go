package rules

import "fmt"

// EngineConfig contains configuration for the rule engine.
type EngineConfig struct {
	// MaxRules is the maximum number of rules an engine accepts.
	// Default: 1000.
	MaxRules int

	// MaxConditionsPerRule bounds the conditions of a single rule.
	// Default: 50.
	MaxConditionsPerRule int

	// SnapshotFields is the allow-list copied into execution snapshots.
	// Default: DefaultSnapshotFields.
	SnapshotFields []string
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxRules:             1000,
		MaxConditionsPerRule: 50,
		SnapshotFields:       append([]string(nil), DefaultSnapshotFields...),
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.MaxRules <= 0 {
		return fmt.Errorf("%w: max rules must be positive", ErrInvalidConfig)
	}
	if c.MaxConditionsPerRule <= 0 {
		return fmt.Errorf("%w: max conditions per rule must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithMaxRules sets the maximum number of rules.
func (c *EngineConfig) WithMaxRules(max int) *EngineConfig {
	c.MaxRules = max
	return c
}

// WithMaxConditionsPerRule sets the maximum number of conditions per rule.
func (c *EngineConfig) WithMaxConditionsPerRule(max int) *EngineConfig {
	c.MaxConditionsPerRule = max
	return c
}

// WithSnapshotFields replaces the snapshot allow-list.
func (c *EngineConfig) WithSnapshotFields(fields ...string) *EngineConfig {
	c.SnapshotFields = fields
	return c
}
