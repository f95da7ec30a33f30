package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDIATOR_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path returns the validated defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention MEDIATOR_SECTION_FIELD and always take precedence over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies environment variable overrides to the configuration.
// Unparseable values are ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	str := func(name string, dst *string) {
		if val, ok := lookup(EnvPrefix + name); ok && val != "" {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := lookup(EnvPrefix + name); ok {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := lookup(EnvPrefix + name); ok {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
			}
		}
	}
	float := func(name string, dst *float64) {
		if val, ok := lookup(EnvPrefix + name); ok {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				*dst = f
			}
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := lookup(EnvPrefix + name); ok {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
			}
		}
	}

	// Engine overrides
	str("ENGINE_SOURCE", &cfg.Engine.Source)
	str("ENGINE_RULES_PATH", &cfg.Engine.RulesPath)
	boolean("ENGINE_WATCH", &cfg.Engine.Watch)
	duration("ENGINE_DEBOUNCE", &cfg.Engine.Debounce)
	str("ENGINE_GIT_REPOSITORY", &cfg.Engine.Git.Repository)
	str("ENGINE_GIT_BRANCH", &cfg.Engine.Git.Branch)
	str("ENGINE_GIT_PATH", &cfg.Engine.Git.Path)
	str("ENGINE_GIT_TOKEN", &cfg.Engine.Git.Token)
	str("ENGINE_GIT_SSH_KEY_PATH", &cfg.Engine.Git.SSHKeyPath)
	str("SECRETS_DIR", &cfg.Secrets.Dir)
	duration("ENGINE_GIT_POLL_INTERVAL", &cfg.Engine.Git.PollInterval)

	// Evaluator overrides
	str("EVALUATOR_MEDIATOR_ID", &cfg.Evaluator.MediatorID)
	float("EVALUATOR_BASE_CONFIDENCE", &cfg.Evaluator.BaseConfidence)
	float("EVALUATOR_CONFIDENCE_THRESHOLD", &cfg.Evaluator.ConfidenceThreshold)
	float("EVALUATOR_DRIFT_THRESHOLD", &cfg.Evaluator.DriftThreshold)
	integer("EVALUATOR_WORKERS", &cfg.Evaluator.Workers)

	// Loopback overrides
	integer("LOOPBACK_MAX_ITERATIONS", &cfg.Loopback.MaxIterations)
	integer("LOOPBACK_MAX_HEAL_PASSES", &cfg.Loopback.MaxHealPasses)
	float("LOOPBACK_RETRY_RATE", &cfg.Loopback.RetryRate)

	// Mediator overrides
	boolean("MEDIATOR_ENABLED", &cfg.Mediator.Enabled)
	str("MEDIATOR_COOLDOWN_BACKEND", &cfg.Mediator.Cooldown.Backend)
	str("MEDIATOR_COOLDOWN_PATH", &cfg.Mediator.Cooldown.Path)
	if val, ok := lookup(EnvPrefix + "MEDIATOR_DATA_SOURCE_SUPPORTED_SOURCES"); ok && val != "" {
		var sources []string
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		cfg.Mediator.DataSource.SupportedSources = sources
	}

	// Storage overrides
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	integer("STORAGE_RETENTION_DAYS", &cfg.Storage.Retention.Days)
	str("STORAGE_RETENTION_PRUNE_SCHEDULE", &cfg.Storage.Retention.PruneSchedule)

	// Telemetry overrides
	str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	boolean("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}
