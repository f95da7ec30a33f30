package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"mercator-hq/mediator/pkg/rules"
)

// DefaultViolationLogSize bounds the violation log when no size is configured.
const DefaultViolationLogSize = 100

// EnforcementLevel decides how a policy violation is reported.
type EnforcementLevel string

const (
	// EnforcementWarn reports violations as warnings.
	EnforcementWarn EnforcementLevel = "warn"
	// EnforcementBlock reports violations that force a rejection.
	EnforcementBlock EnforcementLevel = "block"
	// EnforcementAudit records violations without affecting the outcome.
	EnforcementAudit EnforcementLevel = "audit"
)

// IsValid reports whether l is a known enforcement level.
func (l EnforcementLevel) IsValid() bool {
	switch l {
	case EnforcementWarn, EnforcementBlock, EnforcementAudit:
		return true
	}
	return false
}

// PolicyType groups policies for reporting.
type PolicyType string

const (
	PolicyPrivacy    PolicyType = "privacy"
	PolicyContent    PolicyType = "content"
	PolicyQuality    PolicyType = "quality"
	PolicyCompliance PolicyType = "compliance"
)

// Policy check names usable in Policy.Rules.
const (
	CheckNoEmail        = "no_email"
	CheckNoPhone        = "no_phone"
	CheckMinLength      = "min_length"
	CheckBannedKeywords = "banned_keywords"
	CheckMinConfidence  = "min_confidence"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b(\+?1?[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// Policy is a named set of checks with an enforcement level.
type Policy struct {
	ID               string           `json:"id" yaml:"id"`
	Type             PolicyType       `json:"type" yaml:"type"`
	Rules            []string         `json:"rules" yaml:"rules"`
	EnforcementLevel EnforcementLevel `json:"enforcement_level" yaml:"enforcement_level"`
	Active           bool             `json:"active" yaml:"active"`

	// Parameters for the checks that need them.
	MinContentLength int      `json:"min_content_length,omitempty" yaml:"min_content_length,omitempty"`
	MinConfidence    float64  `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty"`
	BannedKeywords   []string `json:"banned_keywords,omitempty" yaml:"banned_keywords,omitempty"`
}

func (p *Policy) validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	if !p.EnforcementLevel.IsValid() {
		return fmt.Errorf("policy %s: invalid enforcement level %q", p.ID, p.EnforcementLevel)
	}
	for _, r := range p.Rules {
		if _, ok := policyChecks[r]; !ok {
			return fmt.Errorf("policy %s: %w: %q", p.ID, ErrUnknownPolicyRule, r)
		}
	}
	return nil
}

// Violation is one failed policy check.
type Violation struct {
	PolicyID         string           `json:"policy_id"`
	PolicyType       PolicyType       `json:"policy_type"`
	Rule             string           `json:"rule"`
	EnforcementLevel EnforcementLevel `json:"enforcement_level"`
	Message          string           `json:"message"`
	Timestamp        time.Time        `json:"timestamp"`
}

// PolicyRecommendation is the overall policy outcome.
type PolicyRecommendation string

const (
	RecommendAllow PolicyRecommendation = "allow"
	RecommendWarn  PolicyRecommendation = "warn"
	RecommendBlock PolicyRecommendation = "block"
)

// PolicyResult is the response to a PolicyCheckRequest.
type PolicyResult struct {
	Violations      []Violation          `json:"violations,omitempty"`
	Warnings        []Violation          `json:"warnings,omitempty"`
	Audits          []Violation          `json:"audits,omitempty"`
	Recommendation  PolicyRecommendation `json:"recommendation"`
	PoliciesChecked int                  `json:"policies_checked"`
}

// Kind implements Response.
func (*PolicyResult) Kind() RequestKind { return KindPolicyCheck }

// Blocked reports whether any block-level policy was violated.
func (r *PolicyResult) Blocked() bool {
	return len(r.Violations) > 0
}

// policyCheck returns a violation message, or "" when the check passes.
type policyCheck func(p *Policy, content string, c rules.Context) string

var policyChecks = map[string]policyCheck{
	CheckNoEmail: func(_ *Policy, content string, _ rules.Context) string {
		if emailPattern.MatchString(content) {
			return "content contains an email address"
		}
		return ""
	},
	CheckNoPhone: func(_ *Policy, content string, _ rules.Context) string {
		if phonePattern.MatchString(content) {
			return "content contains a phone number"
		}
		return ""
	},
	CheckMinLength: func(p *Policy, content string, _ rules.Context) string {
		if n := utf8.RuneCountInString(strings.TrimSpace(content)); n < p.MinContentLength {
			return fmt.Sprintf("content length %d below minimum %d", n, p.MinContentLength)
		}
		return ""
	},
	CheckBannedKeywords: func(p *Policy, content string, _ rules.Context) string {
		lower := strings.ToLower(content)
		for _, kw := range p.BannedKeywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return fmt.Sprintf("content contains banned keyword %q", kw)
			}
		}
		return ""
	},
	CheckMinConfidence: func(p *Policy, _ string, c rules.Context) string {
		v, ok := c.Lookup("confidence")
		if !ok {
			return ""
		}
		conf, ok := toFloat(v)
		if ok && conf < p.MinConfidence {
			return fmt.Sprintf("confidence %.2f below minimum %.2f", conf, p.MinConfidence)
		}
		return ""
	},
}

// PolicyColleague evaluates compliance policies.
type PolicyColleague struct {
	base

	mu       sync.RWMutex
	policies []*Policy

	logMu         sync.Mutex
	violations    []Violation
	maxViolations int

	logger *slog.Logger
	now    func() time.Time
}

// NewPolicyColleague creates a policy colleague. It fails if any policy is
// invalid or two policies share an ID.
func NewPolicyColleague(id string, policies []Policy, maxViolations int, logger *slog.Logger) (*PolicyColleague, error) {
	if maxViolations <= 0 {
		maxViolations = DefaultViolationLogSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &PolicyColleague{
		base:          base{id: id},
		maxViolations: maxViolations,
		logger:        logger.With("component", "mediator.policy", "colleague", id),
		now:           time.Now,
	}
	for _, p := range policies {
		if err := c.AddPolicy(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Capabilities implements Colleague.
func (c *PolicyColleague) Capabilities() []RequestKind {
	return []RequestKind{KindPolicyCheck}
}

// Handle implements Colleague.
func (c *PolicyColleague) Handle(ctx context.Context, req Request) (Response, error) {
	r, ok := req.(PolicyCheckRequest)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, req)
	}
	return c.Evaluate(ctx, r.Context), nil
}

// AddPolicy adds p. IDs must be unique.
func (c *PolicyColleague) AddPolicy(p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.policies {
		if existing.ID == p.ID {
			return fmt.Errorf("policy %s already exists", p.ID)
		}
	}
	p.Rules = slices.Clone(p.Rules)
	p.BannedKeywords = slices.Clone(p.BannedKeywords)
	c.policies = append(c.policies, &p)
	return nil
}

// SetPolicyActive toggles a policy.
func (c *PolicyColleague) SetPolicyActive(id string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.policies {
		if p.ID == id {
			p.Active = active
			return nil
		}
	}
	return fmt.Errorf("policy %s not found", id)
}

// Policies returns copies of the configured policies.
func (c *PolicyColleague) Policies() []Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Policy, len(c.policies))
	for i, p := range c.policies {
		out[i] = *p
	}
	return out
}

// Evaluate runs every active policy against the content in c and partitions
// the violations by enforcement level.
func (c *PolicyColleague) Evaluate(ctx context.Context, rc rules.Context) *PolicyResult {
	content := contentOf(rc)
	now := c.now()
	res := &PolicyResult{Recommendation: RecommendAllow}

	c.mu.RLock()
	active := make([]Policy, 0, len(c.policies))
	for _, p := range c.policies {
		if p.Active {
			active = append(active, *p)
		}
	}
	c.mu.RUnlock()

	var found []Violation
	for i := range active {
		p := &active[i]
		res.PoliciesChecked++
		for _, name := range p.Rules {
			msg := policyChecks[name](p, content, rc)
			if msg == "" {
				continue
			}
			v := Violation{
				PolicyID:         p.ID,
				PolicyType:       p.Type,
				Rule:             name,
				EnforcementLevel: p.EnforcementLevel,
				Message:          msg,
				Timestamp:        now,
			}
			found = append(found, v)
			switch p.EnforcementLevel {
			case EnforcementBlock:
				res.Violations = append(res.Violations, v)
			case EnforcementWarn:
				res.Warnings = append(res.Warnings, v)
			default:
				res.Audits = append(res.Audits, v)
			}
		}
	}

	switch {
	case len(res.Violations) > 0:
		res.Recommendation = RecommendBlock
	case len(res.Warnings) > 0:
		res.Recommendation = RecommendWarn
	}

	c.appendViolations(found)
	for _, v := range found {
		c.logger.InfoContext(ctx, "policy violation",
			"policy", v.PolicyID,
			"rule", v.Rule,
			"enforcement_level", v.EnforcementLevel,
		)
		c.notify(ctx, EventPolicyViolation, map[string]any{
			"policy_id":         v.PolicyID,
			"rule":              v.Rule,
			"enforcement_level": string(v.EnforcementLevel),
			"message":           v.Message,
		})
	}
	return res
}

func (c *PolicyColleague) appendViolations(vs []Violation) {
	if len(vs) == 0 {
		return
	}
	c.logMu.Lock()
	defer c.logMu.Unlock()
	c.violations = append(c.violations, vs...)
	if over := len(c.violations) - c.maxViolations; over > 0 {
		c.violations = append([]Violation(nil), c.violations[over:]...)
	}
}

// Violations returns up to limit of the most recent violations, oldest first.
// A non-positive limit returns the whole retained window.
func (c *PolicyColleague) Violations(limit int) []Violation {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	start := 0
	if limit > 0 && limit < len(c.violations) {
		start = len(c.violations) - limit
	}
	return slices.Clone(c.violations[start:])
}

// ViolationSummary counts retained violations per policy.
func (c *PolicyColleague) ViolationSummary() map[string]int {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	out := make(map[string]int)
	for _, v := range c.violations {
		out[v.PolicyID]++
	}
	return out
}

// contentOf returns the message text from a context.
func contentOf(c rules.Context) string {
	for _, key := range []string{"content", "raw_output"} {
		if v, ok := c.Lookup(key); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
