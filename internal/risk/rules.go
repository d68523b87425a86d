package risk

import (
	"regexp"
	"strings"

	"github.com/sprite-ai/impactgate/internal/model"
)

// Context is the shared, read-only input every rule predicate sees.
type Context struct {
	Input  model.ChangeInput
	Parsed model.ParsedChange
	Scope  *model.ChangeScope
	Flows  []model.ImpactDataFlow
}

// Rule is a named predicate over a Context. DescriptionTemplate may use
// {{changeType}}, {{moduleCount}}, {{fileCount}} and {{entityCount}}.
type Rule struct {
	ID                  string
	Name                string
	Category            model.RiskCategory
	Severity            model.Severity
	Condition           func(*Context) bool
	Mitigation          string
	IsBlocking          bool
	DescriptionTemplate string
}

// KeywordMatches reports whether any keyword contains any of terms.
func (c *Context) KeywordMatches(terms []string) bool {
	return anyContains(c.Parsed.Keywords, terms)
}

// FileMatches reports whether any primary or affected file contains any of
// terms.
func (c *Context) FileMatches(terms []string) bool {
	return anyContains(c.files(), terms)
}

// KeywordWordMatches reports whether any keyword is one of terms as a whole
// word. A term also matches its -s, -es, -ing and -ed forms.
func (c *Context) KeywordWordMatches(terms []string) bool {
	return anyWord(c.Parsed.Keywords, terms)
}

// FileWordMatches is KeywordWordMatches over the words of file paths, split
// on separators and camel case.
func (c *Context) FileWordMatches(terms []string) bool {
	return anyWord(c.files(), terms)
}

// ModuleMatches reports whether any primary or dependent module id contains
// any of terms.
func (c *Context) ModuleMatches(terms []string) bool {
	return anyContains(c.modules(), terms)
}

// EntityMatches reports whether any parsed or affected entity contains any of
// terms.
func (c *Context) EntityMatches(terms []string) bool {
	if anyContains(c.Parsed.Entities, terms) {
		return true
	}
	return c.Scope != nil && anyContains(c.Scope.AffectedEntities, terms)
}

// HasOperation reports whether the change performs any of ops.
func (c *Context) HasOperation(ops ...model.OperationType) bool {
	for _, op := range ops {
		if c.Parsed.HasOperation(op) {
			return true
		}
	}
	return false
}

// ChangeType returns the explicit change type, or the inferred one.
func (c *Context) ChangeType() model.ChangeType {
	if c.Input.ChangeType != "" {
		return c.Input.ChangeType
	}
	return c.Parsed.ChangeType
}

// CriticalFlows counts critical flows at direct or indirect impact.
func (c *Context) CriticalFlows() int {
	n := 0
	for _, f := range c.Flows {
		if f.Strength == model.StrengthCritical &&
			(f.ImpactLevel == model.ImpactDirect || f.ImpactLevel == model.ImpactIndirect) {
			n++
		}
	}
	return n
}

func (c *Context) modules() []string {
	if c.Scope == nil {
		return nil
	}
	return append(append([]string{}, c.Scope.PrimaryModules...), c.Scope.DependentIDs()...)
}

func (c *Context) files() []string {
	if c.Scope == nil {
		return c.Input.TargetFiles
	}
	return c.Scope.AllFiles()
}

func (c *Context) dependents() int {
	if c.Scope == nil {
		return 0
	}
	return len(c.Scope.DependentModules)
}

func anyContains(values, terms []string) bool {
	for _, v := range values {
		lv := strings.ToLower(v)
		for _, t := range terms {
			if t != "" && strings.Contains(lv, strings.ToLower(t)) {
				return true
			}
		}
	}
	return false
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	wordSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

func anyWord(values, terms []string) bool {
	for _, v := range values {
		lv := strings.ToLower(camelBoundary.ReplaceAllString(v, "$1 $2"))
		for _, w := range wordSeparator.Split(lv, -1) {
			for _, t := range terms {
				if isWordForm(w, strings.ToLower(t)) {
					return true
				}
			}
		}
	}
	return false
}

func isWordForm(word, term string) bool {
	if term == "" {
		return false
	}
	rest, ok := strings.CutPrefix(word, term)
	if !ok {
		return false
	}
	switch rest {
	case "", "s", "es", "ing", "ed":
		return true
	}
	return false
}

// BaselineRules returns the eight built-in rules bound to vocab.
func BaselineRules(vocab Vocabulary) []Rule {
	v := vocab.WithDefaults()
	return []Rule{
		{
			ID:       "schema-migration",
			Name:     "Schema or migration change",
			Category: model.RiskDataCorruption,
			Severity: model.SeverityHigh,
			Condition: func(c *Context) bool {
				return c.KeywordMatches(v.SchemaTerms) ||
					c.HasOperation(model.OpMigrate) ||
					c.ChangeType() == model.ChangeMigration ||
					c.FileMatches(v.SchemaFiles)
			},
			Mitigation:          "Write a reversible migration, back up affected tables and rehearse the rollback.",
			IsBlocking:          true,
			DescriptionTemplate: "This {{changeType}} touches persisted data structures across {{fileCount}} file(s); existing records may not survive the change unmodified.",
		},
		{
			ID:       "breaking-api",
			Name:     "Breaking API change",
			Category: model.RiskBreakingChange,
			Severity: model.SeverityHigh,
			Condition: func(c *Context) bool {
				api := c.KeywordMatches(v.APITerms) || c.FileMatches(v.APIPaths)
				breaking := c.HasOperation(model.OpDelete, model.OpModify) || c.KeywordMatches(v.BreakingTerms)
				return api && breaking
			},
			Mitigation: "Version the endpoint or keep the old contract alongside the new one until clients migrate.",
			IsBlocking: true,
		},
		{
			ID:       "security-sensitive",
			Name:     "Security-sensitive change",
			Category: model.RiskSecurity,
			Severity: model.SeverityCritical,
			Condition: func(c *Context) bool {
				return c.KeywordMatches(v.SecurityTerms) ||
					c.ModuleMatches(v.SensitiveModules) ||
					c.FileMatches(v.SensitiveModules) ||
					c.EntityMatches(v.SensitiveModules)
			},
			Mitigation: "Request a security review and add tests for authorization and input handling.",
			IsBlocking: true,
		},
		{
			ID:       "cross-module-impact",
			Name:     "Cross-module impact",
			Category: model.RiskCompatibility,
			Severity: model.SeverityMedium,
			Condition: func(c *Context) bool {
				if c.dependents() >= v.CrossModuleThreshold {
					return true
				}
				return c.Scope != nil && len(c.Scope.PrimaryModules) > 1
			},
			Mitigation:          "Run the integration suites of every dependent module and coordinate the rollout.",
			DescriptionTemplate: "The change reaches {{moduleCount}} modules; interfaces between them may drift.",
		},
		{
			ID:       "critical-dataflow-disruption",
			Name:     "Critical data flow disruption",
			Category: model.RiskDataCorruption,
			Severity: model.SeverityHigh,
			Condition: func(c *Context) bool {
				return c.CriticalFlows() > 0
			},
			Mitigation: "Add end-to-end tests for each critical flow and verify data consistency after deploy.",
			IsBlocking: true,
		},
		{
			ID:       "performance-impact",
			Name:     "Performance impact",
			Category: model.RiskPerformance,
			Severity: model.SeverityMedium,
			Condition: func(c *Context) bool {
				return c.KeywordMatches(v.PerformanceTerms) || c.ChangeType() == model.ChangePerformance
			},
			Mitigation: "Benchmark the affected paths before and after the change.",
		},
		{
			ID:       "test-coverage-gap",
			Name:     "Test coverage gap",
			Category: model.RiskTesting,
			Severity: model.SeverityLow,
			Condition: func(c *Context) bool {
				if c.KeywordWordMatches(v.TestMarkers) || c.FileWordMatches(v.TestMarkers) {
					return false
				}
				if !c.HasOperation(model.OpAdd, model.OpModify) {
					return false
				}
				return c.Scope != nil && (len(c.Scope.PrimaryModules) > 0 || len(c.Scope.PrimaryFiles) > 0)
			},
			Mitigation: "Plan tests for the new or changed behavior as part of the change.",
		},
		{
			ID:       "deletion-with-dependents",
			Name:     "Deletion with dependents",
			Category: model.RiskBreakingChange,
			Severity: model.SeverityHigh,
			Condition: func(c *Context) bool {
				if !c.HasOperation(model.OpDelete) || c.Scope == nil {
					return false
				}
				return len(c.Scope.DependentModules) > 0 || len(c.Scope.AffectedFiles) > 0
			},
			Mitigation: "Migrate or remove every dependent usage before deleting.",
			IsBlocking: true,
		},
	}
}
