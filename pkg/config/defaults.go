package config

import "time"

// Default values for configuration fields.
const (
	// Engine defaults
	DefaultEngineSource         = "default"
	DefaultEngineDebounce       = 100 * time.Millisecond
	DefaultMaxRules             = 1000
	DefaultMaxConditionsPerRule = 50
	DefaultGitBranch            = "main"
	DefaultGitPath              = "."
	DefaultGitPollInterval      = 30 * time.Second
	DefaultGitTimeout           = 30 * time.Second

	// Evaluator defaults
	DefaultBaseConfidence      = 0.8
	DefaultHedgePenalty        = 0.1
	DefaultDriftPenalty        = 0.3
	DefaultConfidenceThreshold = 0.7
	DefaultRejectConfidence    = 0.4
	DefaultRejectHallucination = 0.6
	DefaultModifyHallucination = 0.3
	DefaultDriftThreshold      = 0.3
	DefaultLongSentenceWords   = 30
	DefaultComplexWordLength   = 13
	DefaultComplexWordLimit    = 3
	DefaultEvaluatorWorkers    = 4

	// Loopback defaults
	DefaultMaxIterations = 3
	DefaultMaxHealPasses = 3
	DefaultRetryBurst    = 1

	// Mediator defaults
	DefaultMediatorEnabled     = true
	DefaultEventLogSize        = 1000
	DefaultViolationLogSize    = 100
	DefaultQualityThreshold    = 0.8
	DefaultCooldownBackend     = "memory"
	DefaultCooldownPath        = "data/cooldowns.db"
	DefaultCooldownBusyTimeout = 5 * time.Second

	// Storage defaults
	DefaultStorageBackend         = "memory"
	DefaultSQLitePath             = "data/reflections.db"
	DefaultSQLiteMaxOpenConns     = 10
	DefaultSQLiteMaxIdleConns     = 5
	DefaultSQLiteWALMode          = true
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRetentionDays          = 30
	DefaultRetentionPruneSchedule = "0 3 * * *"

	// Secrets defaults
	DefaultSecretsCacheTTL = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLoggingRedactPII   = true
	DefaultMetricsEnabled     = true
	DefaultMetricsNamespace   = "mediator"
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "parent_based_ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "mediator"
	DefaultTracingInsecure    = true
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultSupportedSources are the data sources the data-quality colleague trusts.
var DefaultSupportedSources = []string{"database", "api", "file", "agent"}

// Defaults returns a configuration with every default applied, including
// boolean fields whose default is true. LoadConfig decodes YAML on top of it.
func Defaults() *Config {
	cfg := &Config{Evaluator: DefaultEvaluatorConfig()}
	cfg.Mediator.Enabled = DefaultMediatorEnabled
	cfg.Storage.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Logging.RedactPII = DefaultLoggingRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Enabled = DefaultTracingEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	ApplyDefaults(cfg)
	return cfg
}

// DefaultEvaluatorConfig returns the evaluator section with every default
// set. Library callers start from it and override individual fields.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		BaseConfidence:      DefaultBaseConfidence,
		HedgePenalty:        DefaultHedgePenalty,
		DriftPenalty:        DefaultDriftPenalty,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RejectConfidence:    DefaultRejectConfidence,
		RejectHallucination: DefaultRejectHallucination,
		ModifyHallucination: DefaultModifyHallucination,
		DriftThreshold:      DefaultDriftThreshold,
		LongSentenceWords:   DefaultLongSentenceWords,
		ComplexWordLength:   DefaultComplexWordLength,
		ComplexWordLimit:    DefaultComplexWordLimit,
		Workers:             DefaultEvaluatorWorkers,
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.Source == "" {
		if cfg.Engine.RulesPath != "" {
			cfg.Engine.Source = "file"
		} else {
			cfg.Engine.Source = DefaultEngineSource
		}
	}
	if cfg.Engine.Debounce == 0 {
		cfg.Engine.Debounce = DefaultEngineDebounce
	}
	if cfg.Engine.MaxRules == 0 {
		cfg.Engine.MaxRules = DefaultMaxRules
	}
	if cfg.Engine.MaxConditionsPerRule == 0 {
		cfg.Engine.MaxConditionsPerRule = DefaultMaxConditionsPerRule
	}
	if cfg.Engine.Git.Branch == "" {
		cfg.Engine.Git.Branch = DefaultGitBranch
	}
	if cfg.Engine.Git.Path == "" {
		cfg.Engine.Git.Path = DefaultGitPath
	}
	if cfg.Engine.Git.PollInterval == 0 {
		cfg.Engine.Git.PollInterval = DefaultGitPollInterval
	}
	if cfg.Engine.Git.Timeout == 0 {
		cfg.Engine.Git.Timeout = DefaultGitTimeout
	}

	// Evaluator defaults. Scoring weights and thresholds are prefilled by
	// DefaultEvaluatorConfig since zero is a valid setting for them.
	ev := &cfg.Evaluator
	if ev.LongSentenceWords == 0 {
		ev.LongSentenceWords = DefaultLongSentenceWords
	}
	if ev.ComplexWordLength == 0 {
		ev.ComplexWordLength = DefaultComplexWordLength
	}
	if ev.Workers == 0 {
		ev.Workers = DefaultEvaluatorWorkers
	}

	// Loopback defaults
	if cfg.Loopback.MaxIterations == 0 {
		cfg.Loopback.MaxIterations = DefaultMaxIterations
	}
	if cfg.Loopback.MaxHealPasses == 0 {
		cfg.Loopback.MaxHealPasses = DefaultMaxHealPasses
	}
	if cfg.Loopback.RetryBurst == 0 {
		cfg.Loopback.RetryBurst = DefaultRetryBurst
	}

	// Mediator defaults
	if cfg.Mediator.EventLogSize == 0 {
		cfg.Mediator.EventLogSize = DefaultEventLogSize
	}
	if cfg.Mediator.ViolationLogSize == 0 {
		cfg.Mediator.ViolationLogSize = DefaultViolationLogSize
	}
	if len(cfg.Mediator.DataSource.SupportedSources) == 0 {
		cfg.Mediator.DataSource.SupportedSources = append([]string(nil), DefaultSupportedSources...)
	}
	if cfg.Mediator.DataSource.QualityThreshold == 0 {
		cfg.Mediator.DataSource.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.Mediator.Cooldown.Backend == "" {
		cfg.Mediator.Cooldown.Backend = DefaultCooldownBackend
	}
	if cfg.Mediator.Cooldown.Path == "" {
		cfg.Mediator.Cooldown.Path = DefaultCooldownPath
	}
	if cfg.Mediator.Cooldown.BusyTimeout == 0 {
		cfg.Mediator.Cooldown.BusyTimeout = DefaultCooldownBusyTimeout
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.Retention.Days == 0 {
		cfg.Storage.Retention.Days = DefaultRetentionDays
	}
	if cfg.Storage.Retention.PruneSchedule == "" {
		cfg.Storage.Retention.PruneSchedule = DefaultRetentionPruneSchedule
	}

	// Secrets defaults
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}
