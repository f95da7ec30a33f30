package mediator

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/cooldown"
)

// Colleague IDs used by the standard mediator.
const (
	DataSourceID    = "data_source"
	RuleEvaluatorID = "rule_evaluator"
	PolicyID        = "policy"
	ActionTriggerID = "action_trigger"
)

// DefaultPolicies returns the built-in compliance policies.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			ID:               "pii_protection",
			Type:             PolicyPrivacy,
			Rules:            []string{CheckNoEmail, CheckNoPhone},
			EnforcementLevel: EnforcementBlock,
			Active:           true,
		},
		{
			ID:               "content_quality",
			Type:             PolicyContent,
			Rules:            []string{CheckMinLength},
			EnforcementLevel: EnforcementWarn,
			Active:           true,
			MinContentLength: 10,
		},
		{
			ID:               "confidence_floor",
			Type:             PolicyQuality,
			Rules:            []string{CheckMinConfidence},
			EnforcementLevel: EnforcementWarn,
			Active:           true,
			MinConfidence:    0.5,
		},
		{
			ID:               "credential_audit",
			Type:             PolicyCompliance,
			Rules:            []string{CheckBannedKeywords},
			EnforcementLevel: EnforcementAudit,
			Active:           true,
			BannedKeywords:   []string{"password", "api_key", "secret"},
		},
	}
}

// DefaultTriggers returns the built-in action triggers.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			ID:         "escalation_high_priority",
			ActionType: ActionEscalation,
			Conditions: []string{"action == 'escalate' && priority == 'high'"},
			Cooldown:   15 * time.Minute,
			Active:     true,
		},
		{
			ID:         "reject_alert",
			ActionType: ActionAlert,
			Conditions: []string{"action == 'reject'"},
			Cooldown:   5 * time.Minute,
			Active:     true,
		},
		{
			ID:         "audit_low_confidence",
			ActionType: ActionAuditLog,
			Conditions: []string{"confidence < 0.4"},
			Active:     true,
		},
	}
}

// PoliciesFromConfig converts configured policies, falling back to the
// built-in set when none are configured.
func PoliciesFromConfig(cfgs []config.PolicyConfig) []Policy {
	if len(cfgs) == 0 {
		return DefaultPolicies()
	}
	out := make([]Policy, len(cfgs))
	for i, pc := range cfgs {
		out[i] = Policy{
			ID:               pc.ID,
			Type:             PolicyType(pc.Type),
			Rules:            pc.Rules,
			EnforcementLevel: EnforcementLevel(pc.EnforcementLevel),
			Active:           pc.Active == nil || *pc.Active,
			MinContentLength: pc.MinContentLength,
			MinConfidence:    pc.MinConfidence,
			BannedKeywords:   pc.BannedKeywords,
		}
	}
	return out
}

// TriggersFromConfig converts configured triggers, falling back to the
// built-in set when none are configured.
func TriggersFromConfig(cfgs []config.TriggerConfig) []Trigger {
	if len(cfgs) == 0 {
		return DefaultTriggers()
	}
	out := make([]Trigger, len(cfgs))
	for i, tc := range cfgs {
		out[i] = Trigger{
			ID:         tc.ID,
			ActionType: ActionType(tc.ActionType),
			Conditions: tc.Conditions,
			Cooldown:   tc.Cooldown,
			Active:     tc.Active == nil || *tc.Active,
		}
	}
	return out
}

// NewCooldownStore opens the configured cooldown store.
func NewCooldownStore(cfg config.CooldownConfig) (cooldown.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return cooldown.NewMemoryStore(), nil
	case "sqlite":
		return cooldown.NewSQLiteStore(cooldown.SQLiteConfig{
			DBPath:      cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown cooldown backend: %s", cfg.Backend)
	}
}

// Deps carries the shared infrastructure for NewFromConfig.
type Deps struct {
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Metrics    Metrics
	Cooldowns  cooldown.Store
	Dispatcher Dispatcher
}

// NewFromConfig builds a mediator with the four standard colleagues
// registered in routing order: data source, rule evaluator, policy, action
// trigger. A nil Deps.Cooldowns opens the store named in cfg; the caller
// owns closing whichever store is used.
func NewFromConfig(cfg config.MediatorConfig, deps Deps) (*Mediator, cooldown.Store, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := deps.Cooldowns
	if store == nil {
		var err error
		if store, err = NewCooldownStore(cfg.Cooldown); err != nil {
			return nil, nil, err
		}
	}

	m := New(
		WithLogger(logger),
		WithTracer(deps.Tracer),
		WithMetrics(deps.Metrics),
		WithEventLogSize(cfg.EventLogSize),
	)

	policy, err := NewPolicyColleague(PolicyID, PoliciesFromConfig(cfg.Policies), cfg.ViolationLogSize, logger)
	if err != nil {
		return nil, store, fmt.Errorf("failed to create policy colleague: %w", err)
	}
	triggers, err := NewActionTriggerColleague(ActionTriggerID, TriggersFromConfig(cfg.Triggers),
		WithCooldownStore(store),
		WithDispatcher(deps.Dispatcher),
		WithTriggerLogger(logger),
	)
	if err != nil {
		return nil, store, fmt.Errorf("failed to create action trigger colleague: %w", err)
	}

	for _, c := range []Colleague{
		NewDataSourceColleague(DataSourceID, cfg.DataSource.SupportedSources, cfg.DataSource.QualityThreshold),
		NewRuleEvaluatorColleague(RuleEvaluatorID),
		policy,
		triggers,
	} {
		if err := m.Register(c); err != nil {
			return nil, store, err
		}
	}
	return m, store, nil
}
