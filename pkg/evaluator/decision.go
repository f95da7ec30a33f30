package evaluator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"mercator-hq/mediator/pkg/message"
	"mercator-hq/mediator/pkg/reflection"
)

// EvidencePrefix is prepended to healed text when hallucination risk
// contributed to the correction.
const EvidencePrefix = "Based on available evidence, "

// Heuristic is the decision reached from signals alone.
type Heuristic struct {
	Action      reflection.Action
	Tags        []string
	Explanation string
}

// Decide applies the heuristic decision policy to s.
func (a *Analyzer) Decide(s *Signals) Heuristic {
	if s.Confidence < a.cfg.RejectConfidence || s.HallucinationRisk > a.cfg.RejectHallucination {
		return Heuristic{
			Action: reflection.ActionReject,
			Tags:   []string{TagCriticalQuality},
			Explanation: fmt.Sprintf("critical quality issues: confidence %.2f, hallucination risk %.2f",
				s.Confidence, s.HallucinationRisk),
		}
	}

	tags := []string{}
	if s.Confidence < a.cfg.ConfidenceThreshold {
		tags = append(tags, TagLowConfidence)
	}
	if s.HallucinationRisk > a.cfg.ModifyHallucination {
		tags = append(tags, TagHallucinationRisk)
	}
	if s.SemanticDrift {
		tags = append(tags, TagSemanticDrift)
	}
	tags = append(tags, s.ClarityIssues...)

	if len(tags) > 0 {
		return Heuristic{
			Action:      reflection.ActionModify,
			Tags:        tags,
			Explanation: "corrections needed: " + strings.Join(tags, ", "),
		}
	}
	return Heuristic{
		Action: reflection.ActionPass,
		Tags:   []string{},
		Explanation: fmt.Sprintf("passed: confidence %.2f, hallucination risk %.2f",
			s.Confidence, s.HallucinationRisk),
	}
}

var (
	spaces       = regexp.MustCompile(`\s+`)
	spacedPunct  = regexp.MustCompile(`\s+([,.;:!?])`)
	repeatCommas = regexp.MustCompile(`,(?:\s*,)+`)
)

// HealText strips hedging phrases and speculative framing from text,
// collapses whitespace and, when qualify is set, prefixes EvidencePrefix
// unless the text already carries it. Otherwise the first letter is
// capitalized. Healing healed text returns it unchanged.
func (a *Analyzer) HealText(text string, qualify bool) string {
	out := text
	qualified := hasEvidencePrefix(out)
	if qualified {
		out = out[len(EvidencePrefix):]
	}
	for _, re := range a.hedges {
		out = re.ReplaceAllString(out, "")
	}
	for _, re := range a.framing {
		out = re.ReplaceAllString(out, "")
	}
	out = spaces.ReplaceAllString(out, " ")
	out = spacedPunct.ReplaceAllString(out, "$1")
	out = repeatCommas.ReplaceAllString(out, ",")
	out = strings.TrimLeft(strings.TrimSpace(out), ",;: ")

	if out == "" {
		return ""
	}
	if qualify || qualified {
		return EvidencePrefix + lowerFirst(out)
	}
	return upperFirst(out)
}

func hasEvidencePrefix(text string) bool {
	return len(text) >= len(EvidencePrefix) && strings.EqualFold(text[:len(EvidencePrefix)], EvidencePrefix)
}

// Heal returns a corrected copy of msg, or nil when healing changes nothing
// or resolves none of the heuristic's correction tags. msg is never modified.
func (a *Analyzer) Heal(msg *message.AgentMessage, s *Signals, tags []string, iteration int) *message.AgentMessage {
	qualify := s.HallucinationRisk > a.cfg.ModifyHallucination
	text := a.HealText(msg.RawOutput, qualify)
	if text == "" || text == msg.RawOutput {
		return nil
	}
	if before := a.Decide(s).Tags; len(before) > 0 {
		candidate := msg.Clone()
		candidate.RawOutput = text
		after := a.Decide(a.Analyze(candidate)).Tags
		if !slices.ContainsFunc(before, func(t string) bool { return !slices.Contains(after, t) }) {
			return nil
		}
	}

	healed := msg.Clone()
	healed.RawOutput = text
	healed.HealingMetadata = &message.HealingMetadata{
		HealedFrom:     msg.RawOutput,
		CorrectionTags: append([]string(nil), tags...),
		Iteration:      iteration,
	}
	return healed
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// lowerFirst lowercases the first letter unless the first word looks like an
// acronym or the pronoun "I".
func lowerFirst(s string) string {
	first, _, _ := strings.Cut(s, " ")
	if first == "I" || strings.HasPrefix(first, "I'") || (len(first) > 1 && strings.ToUpper(first) == first) {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}
