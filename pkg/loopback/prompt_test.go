package loopback

import (
	"strings"
	"testing"

	"mercator-hq/mediator/pkg/reflection"
)

func TestPromptBuilder_Build(t *testing.T) {
	tests := []struct {
		name    string
		extra   map[string]string
		r       *reflection.Reflection
		want    []string
		wantNot []string
	}{
		{
			name: "templates in tag order",
			r: &reflection.Reflection{
				CorrectionTags: []string{"low-confidence-language", "unclear-pronouns"},
				Explanation:    "corrections needed",
			},
			want: []string{
				"- " + DefaultTemplates["low-confidence-language"] + "\n- " + DefaultTemplates["unclear-pronouns"],
				"Evaluator feedback: corrections needed",
			},
		},
		{
			name: "duplicate tags collapse",
			r:    &reflection.Reflection{CorrectionTags: []string{"semantic-drift", "semantic-drift"}},
			want: []string{DefaultTemplates["semantic-drift"]},
		},
		{
			name: "unknown tag is named",
			r:    &reflection.Reflection{CorrectionTags: []string{"tone"}},
			want: []string{"- Address the issue: tone."},
		},
		{
			name:  "override and suppress",
			extra: map[string]string{"semantic-drift": "Answer the question asked.", "unclear-pronouns": ""},
			r:     &reflection.Reflection{CorrectionTags: []string{"semantic-drift", "unclear-pronouns"}},
			want:  []string{"- Answer the question asked."},
			wantNot: []string{
				DefaultTemplates["semantic-drift"],
				DefaultTemplates["unclear-pronouns"],
			},
		},
		{
			name:    "no tags",
			r:       &reflection.Reflection{},
			want:    []string{"- Improve the accuracy and clarity of the response."},
			wantNot: []string{"Evaluator feedback"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPromptBuilder(tt.extra).Build(tt.r)
			if strings.Count(got, DefaultTemplates["semantic-drift"]) > 1 {
				t.Errorf("template repeated: %q", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Build() = %q, missing %q", got, w)
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(got, w) {
					t.Errorf("Build() = %q, unexpectedly contains %q", got, w)
				}
			}
			if strings.HasSuffix(got, "\n") {
				t.Error("prompt ends with a newline")
			}
		})
	}
}

func TestNewPromptBuilder_DoesNotMutateDefaults(t *testing.T) {
	before := DefaultTemplates["semantic-drift"]
	NewPromptBuilder(map[string]string{"semantic-drift": "changed"})
	if DefaultTemplates["semantic-drift"] != before {
		t.Error("DefaultTemplates modified")
	}
}
