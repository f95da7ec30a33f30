package evaluator

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/message"
)

// Clarity issues. Each doubles as a correction tag.
const (
	IssueLongSentences      = "overly-long-sentences"
	IssueUnclearPronouns    = "unclear-pronouns"
	IssueComplexTerminology = "complex-terminology"
)

// Correction tags produced by the heuristic decision.
const (
	TagLowConfidence     = "low-confidence-language"
	TagHallucinationRisk = "hallucination-risk"
	TagSemanticDrift     = "semantic-drift"
	TagCriticalQuality   = "critical-quality-issues"
)

// Fixed scoring weights.
const (
	hedgeRiskWeight      = 0.15
	contradictionPenalty = 0.3
)

// hedgePatterns match uncertainty language. Each match lowers confidence and
// raises hallucination risk.
var hedgePatterns = []string{
	`\bi (?:think|believe|guess|suppose|feel like)\b`,
	`\b(?:maybe|perhaps|possibly|probably|presumably)\b`,
	`\b(?:might|could be|may be)\b`,
	`\b(?:it seems|it appears|seemingly|apparently)\b`,
	`\b(?:not sure|unsure|not certain)\b`,
	`\b(?:sort of|kind of)\b`,
}

// speculativePatterns match unsupported appeals to authority or consensus.
// Strippable phrases are framing that healing removes; the rest carry
// content and stay.
var speculativePatterns = []struct {
	pattern    string
	weight     float64
	strippable bool
}{
	{`\b(?:studies|research) (?:show|shows|suggest|suggests|indicate|indicates)\b`, 0.2, true},
	{`\bit is (?:well )?known that\b`, 0.15, true},
	{`\beveryone knows\b`, 0.2, true},
	{`\bexperts (?:say|agree|believe)\b`, 0.2, true},
	{`\baccording to (?:some|many|several) sources\b`, 0.2, true},
	{`\bit has been (?:proven|shown)\b`, 0.15, true},
	{`\b\d{1,3}(?:\.\d+)?% of (?:people|experts|users|scientists)\b`, 0.1, false},
}

// contradictionPairs are opposing polarity words. Both words appearing in one
// message counts as a contradiction.
var contradictionPairs = [][2]string{
	{"always", "never"},
	{"true", "false"},
	{"increase", "decrease"},
	{"possible", "impossible"},
	{"correct", "incorrect"},
}

var ambiguousPronouns = []string{"it", "this", "they", "them", "these", "those"}

var sentenceEnd = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// Signals are the heuristic measurements of one message.
type Signals struct {
	Confidence         float64  `json:"confidence"`
	HallucinationRisk  float64  `json:"hallucination_risk"`
	SemanticDriftScore float64  `json:"semantic_drift_score"`
	SemanticDrift      bool     `json:"semantic_drift"`
	ClarityIssues      []string `json:"clarity_issues"`

	HedgeCount       int  `json:"hedge_count"`
	SpeculativeCount int  `json:"speculative_count"`
	Contradiction    bool `json:"contradiction"`
	ContentLength    int  `json:"content_length"`
	WordCount        int  `json:"word_count"`
	SentenceCount    int  `json:"sentence_count"`
}

// Analyzer computes Signals. It is safe for concurrent use.
type Analyzer struct {
	cfg config.EvaluatorConfig

	hedges        []*regexp.Regexp
	speculative   []*regexp.Regexp
	framing       []*regexp.Regexp
	specWeights   []float64
	contradiction [][2]*regexp.Regexp
}

// NewAnalyzer compiles the phrase patterns. Callers usually start from
// config.DefaultEvaluatorConfig; zero weights and thresholds are honored.
func NewAnalyzer(cfg config.EvaluatorConfig) *Analyzer {
	a := &Analyzer{cfg: withDefaults(cfg)}

	for _, p := range hedgePatterns {
		a.hedges = append(a.hedges, regexp.MustCompile(`(?i)`+p))
	}
	for _, s := range speculativePatterns {
		a.speculative = append(a.speculative, regexp.MustCompile(`(?i)`+s.pattern))
		a.specWeights = append(a.specWeights, s.weight)
		if s.strippable {
			a.framing = append(a.framing, regexp.MustCompile(`(?i)`+s.pattern+`(?:\s+that\b)?`))
		}
	}
	for _, pair := range contradictionPairs {
		a.contradiction = append(a.contradiction, [2]*regexp.Regexp{
			regexp.MustCompile(`(?i)\b` + pair[0] + `\b`),
			regexp.MustCompile(`(?i)\b` + pair[1] + `\b`),
		})
	}
	return a
}

// Analyze measures msg. It does not validate msg.
func (a *Analyzer) Analyze(msg *message.AgentMessage) *Signals {
	text := msg.RawOutput
	s := &Signals{
		SemanticDriftScore: msg.SemanticDriftScore,
		SemanticDrift:      msg.SemanticDriftScore > a.cfg.DriftThreshold,
		ClarityIssues:      []string{},
		ContentLength:      utf8.RuneCountInString(text),
		WordCount:          len(strings.Fields(text)),
	}

	for _, re := range a.hedges {
		s.HedgeCount += len(re.FindAllStringIndex(text, -1))
	}

	risk := float64(s.HedgeCount) * hedgeRiskWeight
	for i, re := range a.speculative {
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			s.SpeculativeCount += n
			risk += float64(n) * a.specWeights[i]
		}
	}
	for _, pair := range a.contradiction {
		if pair[0].MatchString(text) && pair[1].MatchString(text) {
			s.Contradiction = true
			risk += contradictionPenalty
			break
		}
	}
	s.HallucinationRisk = clamp(risk)

	base := a.cfg.BaseConfidence
	if c, ok := msg.Confidence(); ok {
		base = c
	}
	s.Confidence = clamp(base -
		float64(s.HedgeCount)*a.cfg.HedgePenalty -
		msg.SemanticDriftScore*a.cfg.DriftPenalty)

	sentences := splitSentences(text)
	s.SentenceCount = len(sentences)
	s.ClarityIssues = a.clarity(sentences, text)
	return s
}

// clarity runs the independent clarity checks in a fixed order.
func (a *Analyzer) clarity(sentences []string, text string) []string {
	issues := []string{}

	if slices.ContainsFunc(sentences, func(s string) bool {
		return len(strings.Fields(s)) > a.cfg.LongSentenceWords
	}) {
		issues = append(issues, IssueLongSentences)
	}

	if slices.ContainsFunc(sentences, repeatsPronoun) {
		issues = append(issues, IssueUnclearPronouns)
	}

	long := 0
	for _, w := range words(text) {
		if utf8.RuneCountInString(w) >= a.cfg.ComplexWordLength {
			long++
		}
	}
	if long > a.cfg.ComplexWordLimit {
		issues = append(issues, IssueComplexTerminology)
	}
	return issues
}

// repeatsPronoun reports whether an ambiguous pronoun occurs twice in sentence.
func repeatsPronoun(sentence string) bool {
	seen := make(map[string]int)
	for _, w := range words(sentence) {
		w = strings.ToLower(w)
		if slices.Contains(ambiguousPronouns, w) {
			seen[w]++
			if seen[w] >= 2 {
				return true
			}
		}
	}
	return false
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceEnd.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// words splits text into words with surrounding punctuation removed.
func words(text string) []string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}

// withDefaults fills the fields that must be positive. Scoring weights and
// thresholds are used as given.
func withDefaults(cfg config.EvaluatorConfig) config.EvaluatorConfig {
	if cfg.LongSentenceWords <= 0 {
		cfg.LongSentenceWords = config.DefaultLongSentenceWords
	}
	if cfg.ComplexWordLength <= 0 {
		cfg.ComplexWordLength = config.DefaultComplexWordLength
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultEvaluatorWorkers
	}
	return cfg
}
