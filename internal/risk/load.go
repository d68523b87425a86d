package risk

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/impactgate/internal/model"
)

// ruleFile is the on-disk shape of custom rules:
//
//	rules:
//	  - id: billing-currency
//	    name: Currency handling change
//	    category: data-corruption
//	    severity: high
//	    blocking: true
//	    when:
//	      keywords_any: [currency, rounding]
//	      modules_any: [billing]
type ruleFile struct {
	Rules []ruleSpec `yaml:"rules" validate:"dive"`
}

type ruleSpec struct {
	ID          string             `yaml:"id" validate:"required"`
	Name        string             `yaml:"name" validate:"required"`
	Category    model.RiskCategory `yaml:"category" validate:"required"`
	Severity    model.Severity     `yaml:"severity" validate:"required"`
	Blocking    bool               `yaml:"blocking"`
	Mitigation  string             `yaml:"mitigation"`
	Description string             `yaml:"description"`
	When        when               `yaml:"when"`
}

// when clauses are ANDed; an absent clause always holds.
type when struct {
	KeywordsAny      []string              `yaml:"keywords_any"`
	FilesAny         []string              `yaml:"files_any"`
	ModulesAny       []string              `yaml:"modules_any"`
	EntitiesAny      []string              `yaml:"entities_any"`
	OperationsAny    []model.OperationType `yaml:"operations_any"`
	ChangeTypes      []model.ChangeType    `yaml:"change_types"`
	MinDependents    int                   `yaml:"min_dependents" validate:"gte=0"`
	MinCriticalFlows int                   `yaml:"min_critical_flows" validate:"gte=0"`
}

func (w when) empty() bool {
	return len(w.KeywordsAny) == 0 && len(w.FilesAny) == 0 && len(w.ModulesAny) == 0 &&
		len(w.EntitiesAny) == 0 && len(w.OperationsAny) == 0 && len(w.ChangeTypes) == 0 &&
		w.MinDependents == 0 && w.MinCriticalFlows == 0
}

func (w when) condition() func(*Context) bool {
	return func(c *Context) bool {
		if len(w.KeywordsAny) > 0 && !c.KeywordMatches(w.KeywordsAny) {
			return false
		}
		if len(w.FilesAny) > 0 && !c.FileMatches(w.FilesAny) {
			return false
		}
		if len(w.ModulesAny) > 0 && !c.ModuleMatches(w.ModulesAny) {
			return false
		}
		if len(w.EntitiesAny) > 0 && !c.EntityMatches(w.EntitiesAny) {
			return false
		}
		if len(w.OperationsAny) > 0 && !c.HasOperation(w.OperationsAny...) {
			return false
		}
		if len(w.ChangeTypes) > 0 {
			found := false
			for _, t := range w.ChangeTypes {
				if c.ChangeType() == t {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if c.dependents() < w.MinDependents {
			return false
		}
		return c.CriticalFlows() >= w.MinCriticalFlows
	}
}

// LoadRules reads custom rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("risk: read rules: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return rules, nil
}

// ParseRules decodes custom rules from YAML.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("risk: parse rules: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	seen := make(map[string]bool, len(f.Rules))
	rules := make([]Rule, 0, len(f.Rules))
	for _, s := range f.Rules {
		switch {
		case seen[s.ID]:
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, s.ID)
		case !s.Category.Valid():
			return nil, fmt.Errorf("%w: rule %s: unknown category %q", ErrInvalidRule, s.ID, s.Category)
		case !s.Severity.Valid():
			return nil, fmt.Errorf("%w: rule %s: unknown severity %q", ErrInvalidRule, s.ID, s.Severity)
		case s.When.empty():
			return nil, fmt.Errorf("%w: rule %s: when has no clauses", ErrInvalidRule, s.ID)
		}
		seen[s.ID] = true
		rules = append(rules, Rule{
			ID:                  s.ID,
			Name:                s.Name,
			Category:            s.Category,
			Severity:            s.Severity,
			Condition:           s.When.condition(),
			Mitigation:          s.Mitigation,
			IsBlocking:          s.Blocking,
			DescriptionTemplate: s.Description,
		})
	}
	return rules, nil
}
