package config

import "time"

// Config is the root configuration structure for the mediator.
type Config struct {
	// Engine configures the rule engine and where its rule set comes from.
	Engine EngineConfig `yaml:"engine"`

	// Evaluator contains the scoring weights and decision thresholds.
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Loopback configures the bounded correction loop.
	Loopback LoopbackConfig `yaml:"loopback"`

	// Mediator configures colleague coordination, policies and triggers.
	Mediator MediatorConfig `yaml:"mediator"`

	// Storage configures reflection persistence and retention.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry contains configuration for logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures how ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// EngineConfig contains configuration for the rule engine.
type EngineConfig struct {
	// Source selects where rules are loaded from.
	// Options: "default", "file", "git"
	// Default: "default" (built-in rule set)
	Source string `yaml:"source"`

	// RulesPath is the rule-set file or directory for the "file" source.
	RulesPath string `yaml:"rules_path"`

	// Watch reloads the rule set when the source changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce delays reloads after file changes.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// MaxRules caps the number of rules loaded.
	// Default: 1000
	MaxRules int `yaml:"max_rules"`

	// MaxConditionsPerRule caps the conditions of a single rule.
	// Default: 50
	MaxConditionsPerRule int `yaml:"max_conditions_per_rule"`

	// Git configures the "git" source.
	Git GitConfig `yaml:"git"`
}

// GitConfig contains configuration for Git-hosted rule sets.
type GitConfig struct {
	// Repository is the Git repository URL (HTTPS or SSH).
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the rule file or directory inside the repository.
	// Default: "."
	Path string `yaml:"path"`

	// LocalPath is where the repository is cloned.
	LocalPath string `yaml:"local_path"`

	// PollInterval is how often the remote is checked for new commits.
	// Default: 30s
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds clone and pull operations.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Token is a personal access token for HTTPS authentication.
	Token string `yaml:"token"`

	// SSHKeyPath is the private key for SSH authentication.
	SSHKeyPath string `yaml:"ssh_key_path"`
}

// EvaluatorConfig contains the signal weights and decision thresholds.
type EvaluatorConfig struct {
	// MediatorID identifies this evaluator in reflection records.
	// Default: generated UUID
	MediatorID string `yaml:"mediator_id"`

	// BaseConfidence is the starting confidence when a message carries none.
	// Default: 0.8
	BaseConfidence float64 `yaml:"base_confidence"`

	// HedgePenalty is subtracted from confidence per hedging phrase.
	// Default: 0.1
	HedgePenalty float64 `yaml:"hedge_penalty"`

	// DriftPenalty scales the drift score subtracted from confidence.
	// Default: 0.3
	DriftPenalty float64 `yaml:"drift_penalty"`

	// ConfidenceThreshold marks confidence below it as needing correction.
	// Default: 0.7
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// RejectConfidence rejects messages with confidence below it.
	// Default: 0.4
	RejectConfidence float64 `yaml:"reject_confidence"`

	// RejectHallucination rejects messages with hallucination risk above it.
	// Default: 0.6
	RejectHallucination float64 `yaml:"reject_hallucination"`

	// ModifyHallucination marks hallucination risk above it as needing correction.
	// Default: 0.3
	ModifyHallucination float64 `yaml:"modify_hallucination"`

	// DriftThreshold flags semantic drift above it.
	// Default: 0.3
	DriftThreshold float64 `yaml:"drift_threshold"`

	// LongSentenceWords is the word count above which a sentence is too long.
	// Default: 30
	LongSentenceWords int `yaml:"long_sentence_words"`

	// ComplexWordLength is the length at which a word counts as complex.
	// Default: 13
	ComplexWordLength int `yaml:"complex_word_length"`

	// ComplexWordLimit is the number of complex words tolerated.
	// Default: 3
	ComplexWordLimit int `yaml:"complex_word_limit"`

	// Workers bounds concurrent evaluations in batch mode.
	// Default: 4
	Workers int `yaml:"workers"`
}

// LoopbackConfig contains configuration for the correction loop.
type LoopbackConfig struct {
	// MaxIterations caps retry-callback invocations per message.
	// Default: 3
	MaxIterations int `yaml:"max_iterations"`

	// MaxHealPasses caps consecutive heals adopted within one iteration.
	// Default: 3
	MaxHealPasses int `yaml:"max_heal_passes"`

	// RetryRate limits retry-callback invocations per second (0 = unlimited).
	RetryRate float64 `yaml:"retry_rate"`

	// RetryBurst is the burst size for RetryRate.
	// Default: 1
	RetryBurst int `yaml:"retry_burst"`
}

// MediatorConfig contains configuration for colleague coordination.
type MediatorConfig struct {
	// Enabled attaches the mediator to the evaluator.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// EventLogSize bounds the in-memory mediator event log.
	// Default: 1000
	EventLogSize int `yaml:"event_log_size"`

	// DataSource configures the data-quality colleague.
	DataSource DataSourceConfig `yaml:"data_source"`

	// ViolationLogSize bounds the policy violation window.
	// Default: 100
	ViolationLogSize int `yaml:"violation_log_size"`

	// Policies replaces the built-in policies when non-empty.
	Policies []PolicyConfig `yaml:"policies"`

	// Triggers replaces the built-in action triggers when non-empty.
	Triggers []TriggerConfig `yaml:"triggers"`

	// Cooldown configures where trigger cooldowns are tracked.
	Cooldown CooldownConfig `yaml:"cooldown"`
}

// DataSourceConfig configures the data-quality colleague.
type DataSourceConfig struct {
	// SupportedSources lists the data sources considered trustworthy.
	// Default: ["database", "api", "file", "agent"]
	SupportedSources []string `yaml:"supported_sources"`

	// QualityThreshold is the minimum quality score.
	// Default: 0.8
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// PolicyConfig declares a compliance policy.
type PolicyConfig struct {
	ID               string   `yaml:"id"`
	Type             string   `yaml:"type"`
	Rules            []string `yaml:"rules"`
	EnforcementLevel string   `yaml:"enforcement_level"`
	Active           *bool    `yaml:"active"`
	MinContentLength int      `yaml:"min_content_length"`
	MinConfidence    float64  `yaml:"min_confidence"`
	BannedKeywords   []string `yaml:"banned_keywords"`
}

// TriggerConfig declares an action trigger.
type TriggerConfig struct {
	ID         string        `yaml:"id"`
	ActionType string        `yaml:"action_type"`
	Conditions []string      `yaml:"conditions"`
	Cooldown   time.Duration `yaml:"cooldown"`
	Active     *bool         `yaml:"active"`
}

// CooldownConfig configures the trigger cooldown store.
type CooldownConfig struct {
	// Backend selects the store.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the SQLite database path.
	// Default: "data/cooldowns.db"
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// StorageConfig contains configuration for reflection persistence.
type StorageConfig struct {
	// Backend selects the reflection store.
	// Options: "memory", "sqlite", "none"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Retention configures pruning of old reflections.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/reflections.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the busy timeout for locked databases.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig configures reflection retention.
type RetentionConfig struct {
	// Days is how long reflections are kept (negative keeps them forever).
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for the pruning job.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords caps stored reflections (0 = unlimited).
	MaxRecords int64 `yaml:"max_records"`
}

// SecretsConfig configures secret resolution. Secrets are looked up in the
// environment (EnvPrefix + "SECRET_" + NAME) and then in Dir.
type SecretsConfig struct {
	// Dir holds one file per secret, readable by the owner only.
	Dir string `yaml:"dir"`

	// CacheTTL is how long resolved secrets are cached.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic PII redaction in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom PII redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "mediator"
	Namespace string `yaml:"namespace"`

	// DurationBuckets defines histogram buckets for evaluation duration (seconds).
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio", "parent_based_ratio"
	// Default: "parent_based_ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "mediator"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
