package impact

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/impactgate/internal/model"
	"github.com/sprite-ai/impactgate/internal/risk"
)

// MinDescriptionLength is the description length above which a change is
// considered substantial enough to analyze.
const MinDescriptionLength = 80

// TriggerInput describes work that is about to start.
type TriggerInput struct {
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
	Modules     []string `json:"modules,omitempty"`
	SpecID      string   `json:"spec_id,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
}

// TriggerDecision reports whether an analysis should run and why.
type TriggerDecision struct {
	Analyze   bool              `json:"analyze"`
	Reasons   []string          `json:"reasons"`
	Suggested model.ChangeInput `json:"suggested"`
}

// Trigger decides when a lifecycle event warrants an impact analysis.
type Trigger struct {
	keywords  []string
	files     []string
	modules   []string
	minLength int
}

// NewTrigger builds a Trigger from the risk vocabulary. Security, schema and
// breaking-change terms count as sensitive keywords.
func NewTrigger(vocab risk.Vocabulary) *Trigger {
	vocab = vocab.WithDefaults()
	var keywords []string
	keywords = append(keywords, vocab.SecurityTerms...)
	keywords = append(keywords, vocab.SchemaTerms...)
	keywords = append(keywords, vocab.BreakingTerms...)

	var files []string
	files = append(files, vocab.SchemaFiles...)
	files = append(files, vocab.SensitiveModules...)

	return &Trigger{
		keywords:  keywords,
		files:     files,
		modules:   vocab.SensitiveModules,
		minLength: MinDescriptionLength,
	}
}

// ShouldAnalyze applies the default trigger.
func ShouldAnalyze(in TriggerInput) TriggerDecision {
	return NewTrigger(risk.DefaultVocabulary()).ShouldAnalyze(in)
}

// ShouldAnalyze reports whether in should be analyzed. The suggested input
// is filled either way.
func (t *Trigger) ShouldAnalyze(in TriggerInput) TriggerDecision {
	d := TriggerDecision{
		Reasons: []string{},
		Suggested: model.ChangeInput{
			Description:   in.Description,
			TargetFiles:   in.Files,
			TargetModules: in.Modules,
			SpecID:        in.SpecID,
			TaskID:        in.TaskID,
		},
	}

	desc := strings.ToLower(in.Description)
	for _, k := range t.keywords {
		if strings.Contains(desc, strings.ToLower(k)) {
			d.Reasons = append(d.Reasons, "sensitive keyword: "+k)
			break
		}
	}
	for _, f := range in.Files {
		if matchesAny(f, t.files) {
			d.Reasons = append(d.Reasons, "sensitive file: "+f)
			break
		}
	}
	for _, m := range in.Modules {
		if matchesAny(m, t.modules) {
			d.Reasons = append(d.Reasons, "sensitive module: "+m)
			break
		}
	}
	if len(in.Modules) >= 2 {
		d.Reasons = append(d.Reasons, fmt.Sprintf("spans %d modules", len(in.Modules)))
	}
	if n := len(strings.TrimSpace(in.Description)); n >= t.minLength {
		d.Reasons = append(d.Reasons, fmt.Sprintf("substantial description (%d chars)", n))
	}

	d.Analyze = len(d.Reasons) > 0
	return d
}

func matchesAny(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
