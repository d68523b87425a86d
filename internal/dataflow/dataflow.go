// Package dataflow classifies how a change disrupts the data flows between
// modules and proposes tests for each one.
package dataflow

import (
	"regexp"
	"strings"

	"github.com/sprite-ai/impactgate/internal/model"
)

type testTemplate struct {
	pattern  *regexp.Regexp
	template string
}

var testTemplates = []testTemplate{
	{regexp.MustCompile(`(?i)creat|generat`), "Verify {{source}} creation correctly produces {{target}}"},
	{regexp.MustCompile(`(?i)own|contain`), "Verify {{source}} ownership of {{target}} is preserved"},
	{regexp.MustCompile(`(?i)updat|modif`), "Verify updates to {{source}} propagate to {{target}}"},
	{regexp.MustCompile(`(?i)delet|remov`), "Verify deleting {{source}} handles dependent {{target}} records"},
	{regexp.MustCompile(`(?i)read|quer|fetch`), "Verify {{target}} reads of {{source}} return consistent data"},
	{regexp.MustCompile(`(?i)validat|check`), "Verify {{source}} validation rules still apply to {{target}}"},
}

const (
	bidirectionalTest = "Verify {{source}} and {{target}} stay consistent when both sides write"
	criticalTest      = "Verify end-to-end integrity of {{source}} -> {{target}} under failure and rollback"
)

type operationPattern struct {
	pattern *regexp.Regexp
	ops     []string
}

var operationPatterns = []operationPattern{
	{regexp.MustCompile(`(?i)creat|insert|generat|add`), []string{"INSERT"}},
	{regexp.MustCompile(`(?i)read|quer|fetch|get|list`), []string{"SELECT"}},
	{regexp.MustCompile(`(?i)updat|modif|chang|edit`), []string{"UPDATE"}},
	{regexp.MustCompile(`(?i)delet|remov|purg`), []string{"DELETE"}},
	{regexp.MustCompile(`(?i)own|contain|belong|ref|join|link`), []string{"JOIN"}},
}

var flowTypeOperations = map[model.FlowType][]string{
	model.FlowRead:          {"SELECT"},
	model.FlowWrite:         {"INSERT", "UPDATE"},
	model.FlowBidirectional: {"SELECT", "INSERT", "UPDATE"},
}

// canonicalOrder fixes the output order of affected operations.
var canonicalOrder = []string{"INSERT", "SELECT", "UPDATE", "DELETE", "JOIN"}

// Analyzer annotates raw flows with their impact on a change. It is
// stateless and safe for concurrent use.
type Analyzer struct{}

// New creates an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// AnalyzeForImpact returns one ImpactDataFlow per input flow, in input order.
func (a *Analyzer) AnalyzeForImpact(flows []model.DataFlow, scope *model.ChangeScope, parsed model.ParsedChange) []model.ImpactDataFlow {
	if scope == nil {
		scope = &model.ChangeScope{}
	}
	dependents := make(map[string]bool, len(scope.DependentModules))
	for _, d := range scope.DependentModules {
		dependents[d.ID] = true
	}
	entities := make(map[string]bool, len(scope.AffectedEntities)+len(parsed.Entities))
	for _, e := range scope.AffectedEntities {
		entities[strings.ToLower(e)] = true
	}
	if len(scope.AffectedEntities) == 0 {
		for _, e := range parsed.Entities {
			entities[strings.ToLower(e)] = true
		}
	}

	out := make([]model.ImpactDataFlow, 0, len(flows))
	for _, f := range flows {
		level := classify(f, scope, dependents, entities)
		out = append(out, model.ImpactDataFlow{
			DataFlow:           f,
			ImpactLevel:        level,
			AffectedOperations: affectedOperations(f),
			ValidationRequired: validationRequired(level, f.Strength),
			SuggestedTests:     suggestedTests(f),
		})
	}
	return out
}

// classify is a three-way partition; the stricter level wins.
func classify(f model.DataFlow, scope *model.ChangeScope, dependents, entities map[string]bool) model.ImpactLevel {
	touchesPrimary := scope.IsPrimaryModule(f.From) || scope.IsPrimaryModule(f.To)
	touchesDependent := dependents[f.From] || dependents[f.To]
	sharesEntity := false
	for _, e := range f.Entities {
		if entities[strings.ToLower(e)] {
			sharesEntity = true
			break
		}
	}

	switch {
	case touchesPrimary && sharesEntity:
		return model.ImpactDirect
	case touchesDependent || sharesEntity:
		return model.ImpactIndirect
	default:
		return model.ImpactCascade
	}
}

func validationRequired(level model.ImpactLevel, strength model.FlowStrength) bool {
	return strength == model.StrengthCritical ||
		level == model.ImpactDirect ||
		(level == model.ImpactIndirect && strength == model.StrengthImportant)
}

func suggestedTests(f model.DataFlow) []string {
	source, target := f.From, f.To
	if len(f.Entities) > 0 {
		source = f.Entities[0]
	}
	if len(f.Entities) > 1 {
		target = f.Entities[1]
	}
	r := strings.NewReplacer("{{source}}", source, "{{target}}", target)

	var tests []string
	seen := make(map[string]bool)
	add := func(tmpl string) {
		t := r.Replace(tmpl)
		if !seen[t] {
			seen[t] = true
			tests = append(tests, t)
		}
	}

	for _, rel := range f.Relationships {
		for _, tt := range testTemplates {
			if tt.pattern.MatchString(rel) {
				add(tt.template)
			}
		}
	}
	if f.FlowType == model.FlowBidirectional {
		add(bidirectionalTest)
	}
	if f.Strength == model.StrengthCritical {
		add(criticalTest)
	}
	return tests
}

func affectedOperations(f model.DataFlow) []string {
	set := make(map[string]bool)
	for _, op := range flowTypeOperations[f.FlowType] {
		set[op] = true
	}
	for _, rel := range f.Relationships {
		for _, p := range operationPatterns {
			if p.pattern.MatchString(rel) {
				for _, op := range p.ops {
					set[op] = true
				}
			}
		}
	}

	ops := make([]string, 0, len(set))
	for _, op := range canonicalOrder {
		if set[op] {
			ops = append(ops, op)
		}
	}
	return ops
}
