package loopback

import (
	"maps"
	"strings"

	"mercator-hq/mediator/pkg/reflection"
)

// DefaultTemplates map correction tags to revision instructions.
var DefaultTemplates = map[string]string{
	"low-confidence-language": "Remove hedging language and state the answer directly.",
	"hallucination-risk":      "Support every claim with verifiable evidence and drop unsupported appeals to authority.",
	"semantic-drift":          "Return to the topic of the original request.",
	"critical-quality-issues": "Rewrite the response with accurate, confident content.",
	"overly-long-sentences":   "Split long sentences into shorter ones.",
	"unclear-pronouns":        "Replace ambiguous pronouns with the nouns they refer to.",
	"complex-terminology":     "Use plain wording in place of specialized terminology.",
	"policy-violation":        "Remove content that violates policy, such as personal data or credentials.",
	"data-quality":            "Base the response on data from a trusted source.",
}

// PromptBuilder renders correction prompts from a reflection.
type PromptBuilder struct {
	templates map[string]string
}

// NewPromptBuilder creates a builder from DefaultTemplates overlaid with
// extra. An empty template in extra suppresses that tag.
func NewPromptBuilder(extra map[string]string) *PromptBuilder {
	t := maps.Clone(DefaultTemplates)
	maps.Copy(t, extra)
	return &PromptBuilder{templates: t}
}

// Build returns the correction prompt for r: one instruction per distinct
// correction tag, in tag order, followed by the evaluator's explanation.
// Tags without a template are listed by name.
func (b *PromptBuilder) Build(r *reflection.Reflection) string {
	var sb strings.Builder
	sb.WriteString("Your previous response was rejected. Revise it as follows:\n")

	seen := make(map[string]bool, len(r.CorrectionTags))
	n := 0
	for _, tag := range r.CorrectionTags {
		if seen[tag] {
			continue
		}
		seen[tag] = true

		line, ok := b.templates[tag]
		if !ok {
			line = "Address the issue: " + tag + "."
		}
		if line == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteByte('\n')
		n++
	}
	if n == 0 {
		sb.WriteString("- Improve the accuracy and clarity of the response.\n")
	}

	if r.Explanation != "" {
		sb.WriteString("Evaluator feedback: ")
		sb.WriteString(r.Explanation)
	}
	return strings.TrimRight(sb.String(), "\n")
}
