package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"mercator-hq/mediator/pkg/cli"
	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/cooldown"
	"mercator-hq/mediator/pkg/evaluator"
	"mercator-hq/mediator/pkg/mediator"
	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/reflection/storage"
	"mercator-hq/mediator/pkg/rules"
	"mercator-hq/mediator/pkg/rules/source"
	"mercator-hq/mediator/pkg/secrets"
	"mercator-hq/mediator/pkg/telemetry/health"
	"mercator-hq/mediator/pkg/telemetry/logging"
	"mercator-hq/mediator/pkg/telemetry/metrics"
	"mercator-hq/mediator/pkg/telemetry/tracing"
)

// app holds the components shared by commands. Components are built on
// demand; Close releases whatever was built.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	source    rules.Source
	engine    *rules.Engine
	mediator  *mediator.Mediator
	cooldowns cooldown.Store
	evaluator *evaluator.Evaluator

	store reflection.Storage
}

// loadConfig reads the config file and applies environment and flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// newApp loads configuration and sets up logging, metrics and tracing.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	lc := logging.FromConfig(cfg.Telemetry.Logging)
	lc.Writer = os.Stderr
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	tracer, err := tracing.New(cfg.Telemetry.Tracing)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(cfg.Telemetry.Metrics, nil),
		tracer:  tracer,
	}, nil
}

// ruleSource builds the rule source named in cfg. Secret references in the
// git settings are resolved through sc.
func ruleSource(ctx context.Context, cfg config.EngineConfig, sc config.SecretsConfig, logger *slog.Logger) (rules.Source, error) {
	switch cfg.Source {
	case "", "default":
		return source.NewMemorySource(rules.DefaultRuleSet()), nil
	case "file":
		if cfg.RulesPath == "" {
			return nil, cli.NewConfigError("engine.rules_path", "required for the file source")
		}
		return source.NewFileSource(cfg.RulesPath, cfg.Debounce, logger), nil
	case "git":
		resolver, err := secretResolver(sc, logger)
		if err != nil {
			return nil, err
		}
		repo, err := resolver.Resolve(ctx, cfg.Git.Repository)
		if err != nil {
			return nil, cli.NewConfigError("engine.git.repository", err.Error())
		}
		token, err := resolver.Resolve(ctx, cfg.Git.Token)
		if err != nil {
			return nil, cli.NewConfigError("engine.git.token", err.Error())
		}
		src, err := source.NewGitSource(source.GitOptions{
			Repository:   repo,
			Branch:       cfg.Git.Branch,
			Path:         cfg.Git.Path,
			LocalPath:    cfg.Git.LocalPath,
			PollInterval: cfg.Git.PollInterval,
			Timeout:      cfg.Git.Timeout,
			Token:        token,
			SSHKeyPath:   cfg.Git.SSHKeyPath,
		}, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, cli.NewConfigError("engine.source", fmt.Sprintf("unknown source %q", cfg.Source))
	}
}

// secretResolver consults the environment, then the secrets directory when
// one is configured.
func secretResolver(cfg config.SecretsConfig, logger *slog.Logger) (*secrets.Resolver, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider(secrets.DefaultEnvPrefix)}
	if cfg.Dir != "" {
		fp, err := secrets.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, cli.NewConfigError("secrets.dir", err.Error())
		}
		providers = append(providers, fp)
	}
	return secrets.NewResolver(cfg.CacheTTL, logger, providers...), nil
}

// buildEngine creates the rule engine and loads the configured rule set.
func (a *app) buildEngine(ctx context.Context) error {
	src, err := ruleSource(ctx, a.cfg.Engine, a.cfg.Secrets, a.logger)
	if err != nil {
		return err
	}

	opts := []rules.Option{rules.WithLogger(a.logger)}
	if a.metrics.Enabled() {
		opts = append(opts, rules.WithMetrics(a.metrics.Rules()))
	}
	engine, err := rules.NewEngine(&rules.EngineConfig{
		MaxRules:             a.cfg.Engine.MaxRules,
		MaxConditionsPerRule: a.cfg.Engine.MaxConditionsPerRule,
		SnapshotFields:       rules.DefaultSnapshotFields,
	}, opts...)
	if err != nil {
		return err
	}
	if err := engine.Reload(ctx, src); err != nil {
		return err
	}

	a.source = src
	a.engine = engine
	return nil
}

// buildEvaluator creates the rule engine, the mediator when enabled, and the
// evaluator on top of them.
func (a *app) buildEvaluator(ctx context.Context) error {
	if err := a.buildEngine(ctx); err != nil {
		return err
	}

	opts := []evaluator.Option{
		evaluator.WithLogger(a.logger),
		evaluator.WithTracer(a.tracer.Tracer()),
	}
	if a.metrics.Enabled() {
		opts = append(opts, evaluator.WithMetrics(a.metrics.Evaluator()))
	}

	if a.cfg.Mediator.Enabled {
		deps := mediator.Deps{Logger: a.logger, Tracer: a.tracer.Tracer()}
		if a.metrics.Enabled() {
			deps.Metrics = a.metrics.Mediator()
		}
		m, store, err := mediator.NewFromConfig(a.cfg.Mediator, deps)
		a.cooldowns = store
		if err != nil {
			return err
		}
		enhanced, err := mediator.NewEnhancedEngine(a.engine, m,
			mediator.WithEnhancedLogger(a.logger),
			mediator.WithEnhancedTracer(a.tracer.Tracer()),
		)
		if err != nil {
			return err
		}
		a.mediator = m
		opts = append(opts, evaluator.WithEnhancedEngine(enhanced))
	} else {
		opts = append(opts, evaluator.WithRuleEngine(a.engine))
	}

	a.evaluator = evaluator.New(a.cfg.Evaluator, opts...)
	return nil
}

// openStorage opens the configured reflection store. backend, when set,
// overrides the configured backend.
func (a *app) openStorage(backend string) error {
	cfg := a.cfg.Storage
	if backend != "" {
		cfg.Backend = backend
	}
	store, err := storage.Open(cfg, a.logger)
	if err != nil {
		return cli.NewCommandError("storage", err)
	}
	a.store = store
	return nil
}

// sink returns a reflection sink writing to the store, or nil without one.
func (a *app) sink() reflection.Sink {
	if a.store == nil {
		return nil
	}
	return reflection.SinkFunc(a.store.Store)
}

// Close releases every component that was built.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cooldowns != nil {
		errs = append(errs, a.cooldowns.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// probeServer serves metrics and health probes for the built components.
func (a *app) probeServer(addr string) *http.Server {
	checker := health.New(5 * time.Second)
	if a.engine != nil {
		checker.RegisterCheck("rules", health.RulesLoaded(a.engine))
	}
	if a.store != nil {
		checker.RegisterCheck("storage", health.StorageReachable(a.store))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	checker.Mount(mux, health.VersionInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
