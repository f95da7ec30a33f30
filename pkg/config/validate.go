package config

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "loopback.max_iterations").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateEvaluator(&cfg.Evaluator)...)
	errs = append(errs, validateLoopback(&cfg.Loopback)...)
	errs = append(errs, validateMediator(&cfg.Mediator)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Secrets.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_ttl", Message: "cache_ttl must be >= 0"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	switch cfg.Source {
	case "default":
	case "file":
		if cfg.RulesPath == "" {
			errs = append(errs, FieldError{
				Field:   "engine.rules_path",
				Message: "rules path is required when source is 'file'",
			})
		}
	case "git":
		if cfg.Git.Repository == "" {
			errs = append(errs, FieldError{
				Field:   "engine.git.repository",
				Message: "repository is required when source is 'git'",
			})
		}
		if cfg.Git.PollInterval < time.Second {
			errs = append(errs, FieldError{
				Field:   "engine.git.poll_interval",
				Message: "poll interval must be at least 1s",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "engine.source",
			Message: fmt.Sprintf("invalid source %q: must be 'default', 'file', or 'git'", cfg.Source),
		})
	}

	if cfg.MaxRules < 0 {
		errs = append(errs, FieldError{Field: "engine.max_rules", Message: "must be non-negative"})
	}
	if cfg.MaxConditionsPerRule < 0 {
		errs = append(errs, FieldError{Field: "engine.max_conditions_per_rule", Message: "must be non-negative"})
	}

	return errs
}

func validateEvaluator(cfg *EvaluatorConfig) []FieldError {
	var errs []FieldError

	unit := []struct {
		field string
		value float64
	}{
		{"evaluator.base_confidence", cfg.BaseConfidence},
		{"evaluator.hedge_penalty", cfg.HedgePenalty},
		{"evaluator.drift_penalty", cfg.DriftPenalty},
		{"evaluator.confidence_threshold", cfg.ConfidenceThreshold},
		{"evaluator.reject_confidence", cfg.RejectConfidence},
		{"evaluator.reject_hallucination", cfg.RejectHallucination},
		{"evaluator.modify_hallucination", cfg.ModifyHallucination},
		{"evaluator.drift_threshold", cfg.DriftThreshold},
	}
	for _, u := range unit {
		if math.IsNaN(u.value) || u.value < 0 || u.value > 1 {
			errs = append(errs, FieldError{Field: u.field, Message: "must be between 0.0 and 1.0"})
		}
	}

	if cfg.RejectConfidence > cfg.ConfidenceThreshold {
		errs = append(errs, FieldError{
			Field:   "evaluator.reject_confidence",
			Message: "must not exceed confidence_threshold",
		})
	}
	if cfg.ModifyHallucination > cfg.RejectHallucination {
		errs = append(errs, FieldError{
			Field:   "evaluator.modify_hallucination",
			Message: "must not exceed reject_hallucination",
		})
	}
	if cfg.LongSentenceWords < 1 {
		errs = append(errs, FieldError{Field: "evaluator.long_sentence_words", Message: "must be positive"})
	}
	if cfg.ComplexWordLength < 1 {
		errs = append(errs, FieldError{Field: "evaluator.complex_word_length", Message: "must be positive"})
	}
	if cfg.ComplexWordLimit < 0 {
		errs = append(errs, FieldError{Field: "evaluator.complex_word_limit", Message: "must be non-negative"})
	}
	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "evaluator.workers", Message: "must be at least 1"})
	}

	return errs
}

func validateLoopback(cfg *LoopbackConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxIterations < 1 {
		errs = append(errs, FieldError{Field: "loopback.max_iterations", Message: "must be at least 1"})
	}
	if cfg.MaxHealPasses < 1 {
		errs = append(errs, FieldError{Field: "loopback.max_heal_passes", Message: "must be at least 1"})
	}
	if cfg.RetryRate < 0 {
		errs = append(errs, FieldError{Field: "loopback.retry_rate", Message: "must be non-negative"})
	}
	if cfg.RetryBurst < 1 {
		errs = append(errs, FieldError{Field: "loopback.retry_burst", Message: "must be at least 1"})
	}

	return errs
}

var validEnforcementLevels = map[string]bool{"warn": true, "block": true, "audit": true}

func validateMediator(cfg *MediatorConfig) []FieldError {
	var errs []FieldError

	if cfg.EventLogSize < 1 {
		errs = append(errs, FieldError{Field: "mediator.event_log_size", Message: "must be at least 1"})
	}
	if cfg.ViolationLogSize < 1 {
		errs = append(errs, FieldError{Field: "mediator.violation_log_size", Message: "must be at least 1"})
	}
	if q := cfg.DataSource.QualityThreshold; q < 0 || q > 1 {
		errs = append(errs, FieldError{
			Field:   "mediator.data_source.quality_threshold",
			Message: "must be between 0.0 and 1.0",
		})
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Policies {
		prefix := fmt.Sprintf("mediator.policies[%d]", i)
		if p.ID == "" {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: "policy id is required"})
		} else if seen[p.ID] {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: fmt.Sprintf("duplicate policy id %q", p.ID)})
		}
		seen[p.ID] = true
		if !validEnforcementLevels[p.EnforcementLevel] {
			errs = append(errs, FieldError{
				Field:   prefix + ".enforcement_level",
				Message: fmt.Sprintf("invalid enforcement level %q: must be 'warn', 'block', or 'audit'", p.EnforcementLevel),
			})
		}
		if len(p.Rules) == 0 {
			errs = append(errs, FieldError{Field: prefix + ".rules", Message: "at least one rule is required"})
		}
	}

	seen = make(map[string]bool)
	for i, t := range cfg.Triggers {
		prefix := fmt.Sprintf("mediator.triggers[%d]", i)
		if t.ID == "" {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: "trigger id is required"})
		} else if seen[t.ID] {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: fmt.Sprintf("duplicate trigger id %q", t.ID)})
		}
		seen[t.ID] = true
		if t.ActionType == "" {
			errs = append(errs, FieldError{Field: prefix + ".action_type", Message: "action type is required"})
		}
		if t.Cooldown < 0 {
			errs = append(errs, FieldError{Field: prefix + ".cooldown", Message: "must be non-negative"})
		}
	}

	switch cfg.Cooldown.Backend {
	case "memory":
	case "sqlite":
		if cfg.Cooldown.Path == "" {
			errs = append(errs, FieldError{Field: "mediator.cooldown.path", Message: "path is required for the sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "mediator.cooldown.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Cooldown.Backend),
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "none":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_idle_conns", Message: "must not exceed max_open_conns"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'none'", cfg.Backend),
		})
	}

	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "storage.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "storage.retention.max_records", Message: "must be non-negative"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true, "parent_based_ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
