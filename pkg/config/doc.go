// Package config provides configuration management for the mediator.
//
// This package handles loading, validating, and defaulting configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// An empty path yields the defaults, so the CLI runs without a config file.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention MEDIATOR_SECTION_FIELD.
// For example:
//
//   - MEDIATOR_ENGINE_RULES_PATH overrides engine.rules_path
//   - MEDIATOR_LOOPBACK_MAX_ITERATIONS overrides loopback.max_iterations
//   - MEDIATOR_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// There is no process-wide configuration instance; callers load a *Config and
// pass it to the components they construct.
package config
