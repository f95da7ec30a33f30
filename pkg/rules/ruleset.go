package rules

import (
	"fmt"
	"maps"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the rule set document version written by Export.
const CurrentVersion = "1.0.0"

// supportedVersions is the accepted rule set version range.
var supportedVersions = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("rules: bad version constraint %q: %v", s, err))
	}
	return c
}

// RuleSet is the declarative form of an engine's rules. JSON documents are
// accepted as well since they are valid YAML.
type RuleSet struct {
	Version string     `yaml:"version" json:"version"`
	Rules   []RuleSpec `yaml:"rules" json:"rules"`

	// Revision identifies where the set came from (file mtime, commit SHA).
	Revision string `yaml:"-" json:"-"`
}

// RuleSpec is one declarative rule.
type RuleSpec struct {
	Name          string          `yaml:"name" json:"name"`
	Description   string          `yaml:"description,omitempty" json:"description,omitempty"`
	Action        string          `yaml:"action" json:"action"`
	Priority      int             `yaml:"priority" json:"priority"`
	Enabled       *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	CustomHandler string          `yaml:"custom_handler,omitempty" json:"custom_handler,omitempty"`
	Conditions    []ConditionSpec `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Metadata      map[string]any  `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ConditionSpec is one declarative condition.
type ConditionSpec struct {
	Field       string `yaml:"field" json:"field"`
	Operator    string `yaml:"operator" json:"operator"`
	Value       any    `yaml:"value" json:"value"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ParseRuleSet decodes and version-checks a rule set document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if err := rs.CheckVersion(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRuleSetFile reads and parses a rule set file.
func LoadRuleSetFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set %q: %w", path, err)
	}
	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// CheckVersion verifies the document version is supported. An empty version
// is treated as CurrentVersion.
func (rs *RuleSet) CheckVersion() error {
	if rs.Version == "" {
		return nil
	}
	v, err := semver.NewVersion(rs.Version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, rs.Version, err)
	}
	if !supportedVersions.Check(v) {
		return fmt.Errorf("%w: %s (supported %s)", ErrUnsupportedVersion, v, supportedVersions)
	}
	return nil
}

// Build converts the specs into rules. Malformed entries are skipped and
// returned as errors; hasHandler, when non-nil, is used to reject custom
// rules whose handler is not registered.
func (rs *RuleSet) Build(hasHandler func(string) bool) ([]*Rule, []error) {
	var (
		rules   []*Rule
		skipped []error
	)
	seen := make(map[string]struct{}, len(rs.Rules))

	for i, spec := range rs.Rules {
		r, err := spec.Build(hasHandler)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		if _, dup := seen[r.Name]; dup {
			skipped = append(skipped, fmt.Errorf("rule %d: %w", i, &DuplicateRuleError{Name: r.Name}))
			continue
		}
		seen[r.Name] = struct{}{}
		rules = append(rules, r)
	}

	return rules, skipped
}

// Build converts a single spec into a rule.
func (s RuleSpec) Build(hasHandler func(string) bool) (*Rule, error) {
	var errs []string

	if s.Name == "" {
		errs = append(errs, "name is required")
	}

	action, err := ParseAction(s.Action)
	if err != nil {
		errs = append(errs, err.Error())
	}
	if action == ActionCustom {
		switch {
		case s.CustomHandler == "":
			errs = append(errs, "custom action requires custom_handler")
		case hasHandler != nil && !hasHandler(s.CustomHandler):
			errs = append(errs, fmt.Sprintf("custom handler %q not registered", s.CustomHandler))
		}
	}

	conditions := make([]Condition, 0, len(s.Conditions))
	for i, cs := range s.Conditions {
		cond, err := cs.Build()
		if err != nil {
			errs = append(errs, fmt.Sprintf("condition %d: %v", i, err))
			continue
		}
		conditions = append(conditions, cond)
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Rule: s.Name, Errors: errs}
	}

	r := &Rule{
		Name:        s.Name,
		Description: s.Description,
		Conditions:  conditions,
		Action:      action,
		Priority:    s.Priority,
		HandlerName: s.CustomHandler,
		Metadata:    maps.Clone(s.Metadata),
	}
	if s.Enabled != nil {
		r.SetEnabled(*s.Enabled)
	}
	return r, nil
}

// Build converts a condition spec into a condition.
func (s ConditionSpec) Build() (Condition, error) {
	if s.Field == "" {
		return Condition{}, fmt.Errorf("field is required")
	}
	op, err := ParseOperator(s.Operator)
	if err != nil {
		return Condition{}, err
	}

	switch op {
	case OpBetween:
		if _, _, err := bounds(s.Value); err != nil {
			return Condition{}, err
		}
	case OpRegex:
		pattern, ok := s.Value.(string)
		if !ok {
			return Condition{}, fmt.Errorf("regex operator requires a string pattern")
		}
		if _, err := compileRegex(pattern); err != nil {
			return Condition{}, err
		}
	case OpIn, OpNotIn:
		if s.Value == nil {
			return Condition{}, fmt.Errorf("%s operator requires a list value", op)
		}
	}

	return Condition{
		Field:       s.Field,
		Operator:    op,
		Value:       s.Value,
		Description: s.Description,
	}, nil
}

// ExportRuleSet renders rules in declarative form.
func ExportRuleSet(rules []*Rule) *RuleSet {
	rs := &RuleSet{
		Version: CurrentVersion,
		Rules:   make([]RuleSpec, 0, len(rules)),
	}
	for _, r := range rules {
		enabled := r.Enabled()
		spec := RuleSpec{
			Name:          r.Name,
			Description:   r.Description,
			Action:        string(r.Action),
			Priority:      r.Priority,
			Enabled:       &enabled,
			CustomHandler: r.HandlerName,
			Metadata:      maps.Clone(r.Metadata),
		}
		for _, c := range r.Conditions {
			spec.Conditions = append(spec.Conditions, ConditionSpec{
				Field:       c.Field,
				Operator:    string(c.Operator),
				Value:       c.Value,
				Description: c.Description,
			})
		}
		rs.Rules = append(rs.Rules, spec)
	}
	return rs
}

// Marshal encodes the rule set as YAML.
func (rs *RuleSet) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule set: %w", err)
	}
	return data, nil
}
