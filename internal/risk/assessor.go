// Package risk is a small rule engine that turns an analyzed change into
// severity-ranked risks.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sprite-ai/impactgate/internal/model"
)

var (
	ErrDuplicateRule = errors.New("risk: duplicate rule id")
	ErrInvalidRule   = errors.New("risk: invalid rule")
)

var ruleMatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "impactgate_risk_rule_matches_total",
	Help: "Number of times each risk rule matched a change",
}, []string{"rule", "severity"})

var ruleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "impactgate_risk_rule_failures_total",
	Help: "Number of rule predicates that panicked",
}, []string{"rule"})

// maxAreasInDescription bounds the generated description.
const maxAreasInDescription = 3

var advisories = map[model.Severity]string{
	model.SeverityCritical: "Resolve or explicitly approve this before implementation starts.",
	model.SeverityHigh:     "Review carefully before implementation.",
	model.SeverityMedium:   "Consider addressing this during implementation.",
	model.SeverityLow:      "Address when convenient.",
}

// Stats summarizes rule evaluation since the assessor was created.
type Stats struct {
	Rules       int            `json:"rules"`
	Assessments int            `json:"assessments"`
	Matches     map[string]int `json:"matches"`
	Failures    map[string]int `json:"failures"`
}

// Assessor evaluates an ordered rule list. It is safe for concurrent use.
type Assessor struct {
	mu     sync.RWMutex
	rules  []Rule
	logger *slog.Logger

	statsMu     sync.Mutex
	assessments int
	matches     map[string]int
	failures    map[string]int
}

// New creates an Assessor over rules, evaluated in order.
func New(rules []Rule, logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{
		rules:    append([]Rule(nil), rules...),
		logger:   logger,
		matches:  make(map[string]int),
		failures: make(map[string]int),
	}
}

// NewDefault creates an Assessor over the baseline rules.
func NewDefault(vocab Vocabulary, logger *slog.Logger) *Assessor {
	return New(BaselineRules(vocab), logger)
}

// AddRule appends r. Rule ids are unique.
func (a *Assessor) AddRule(r Rule) error {
	if r.ID == "" || r.Condition == nil {
		return fmt.Errorf("%w: id and condition are required", ErrInvalidRule)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
		}
	}
	a.rules = append(a.rules, r)
	return nil
}

// RemoveRule removes the rule with id and reports whether it existed.
func (a *Assessor) RemoveRule(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.rules {
		if r.ID == id {
			a.rules = append(a.rules[:i:i], a.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Rules returns a copy of the current rule list.
func (a *Assessor) Rules() []Rule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Rule(nil), a.rules...)
}

// Statistics returns a snapshot of evaluation counters.
func (a *Assessor) Statistics() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	s := Stats{
		Rules:       len(a.Rules()),
		Assessments: a.assessments,
		Matches:     make(map[string]int, len(a.matches)),
		Failures:    make(map[string]int, len(a.failures)),
	}
	for k, v := range a.matches {
		s.Matches[k] = v
	}
	for k, v := range a.failures {
		s.Failures[k] = v
	}
	return s
}

// Assess runs every rule against one shared context and returns the matching
// risks sorted by severity. Rules of equal severity keep evaluation order.
func (a *Assessor) Assess(input model.ChangeInput, parsed model.ParsedChange, scope *model.ChangeScope, flows []model.ImpactDataFlow) []model.IdentifiedRisk {
	ctx := &Context{Input: input, Parsed: parsed, Scope: scope, Flows: flows}
	rules := a.Rules()
	areas := affectedAreas(ctx)

	risks := []model.IdentifiedRisk{}
	var matched, failed []string
	for _, r := range rules {
		ok, err := a.evaluate(r, ctx)
		if err != nil {
			failed = append(failed, r.ID)
			ruleFailures.WithLabelValues(r.ID).Inc()
			a.logger.Error("risk rule failed", slog.String("rule", r.ID), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		matched = append(matched, r.ID)
		ruleMatches.WithLabelValues(r.ID, string(r.Severity)).Inc()
		risks = append(risks, model.IdentifiedRisk{
			ID:            model.RiskID(r.ID),
			RuleID:        r.ID,
			Name:          r.Name,
			Category:      r.Category,
			Severity:      r.Severity,
			Description:   describe(r, ctx, areas),
			AffectedAreas: append([]string{}, areas...),
			Mitigation:    r.Mitigation,
			IsBlocking:    r.IsBlocking,
		})
	}

	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].Severity.Rank() < risks[j].Severity.Rank()
	})

	a.statsMu.Lock()
	a.assessments++
	for _, id := range matched {
		a.matches[id]++
	}
	for _, id := range failed {
		a.failures[id]++
	}
	a.statsMu.Unlock()

	a.logger.Debug("risks assessed", slog.Int("rules", len(rules)), slog.Int("risks", len(risks)))
	return risks
}

// evaluate isolates a single predicate so a panicking rule cannot abort the
// rest of the assessment.
func (a *Assessor) evaluate(r Rule, ctx *Context) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("rule %s panicked: %v", r.ID, p)
		}
	}()
	if r.Condition == nil {
		return false, nil
	}
	return r.Condition(ctx), nil
}

func affectedAreas(ctx *Context) []string {
	var areas []string
	seen := make(map[string]bool)
	add := func(prefix, v string) {
		a := prefix + ":" + v
		if v != "" && !seen[a] {
			seen[a] = true
			areas = append(areas, a)
		}
	}
	for _, m := range ctx.modules() {
		add("module", m)
	}
	for _, f := range ctx.files() {
		add("file", f)
	}
	for _, e := range ctx.Parsed.Entities {
		add("entity", e)
	}
	if ctx.Scope != nil {
		for _, e := range ctx.Scope.AffectedEntities {
			add("entity", e)
		}
	}
	return areas
}

func describe(r Rule, ctx *Context, areas []string) string {
	if r.DescriptionTemplate != "" {
		moduleCount, fileCount, entityCount := 0, len(ctx.Input.TargetFiles), len(ctx.Parsed.Entities)
		if ctx.Scope != nil {
			moduleCount = len(ctx.Scope.PrimaryModules) + len(ctx.Scope.DependentModules)
			fileCount = len(ctx.Scope.PrimaryFiles) + len(ctx.Scope.AffectedFiles)
			entityCount = max(entityCount, len(ctx.Scope.AffectedEntities))
		}
		return strings.NewReplacer(
			"{{changeType}}", string(ctx.ChangeType()),
			"{{moduleCount}}", strconv.Itoa(moduleCount),
			"{{fileCount}}", strconv.Itoa(fileCount),
			"{{entityCount}}", strconv.Itoa(entityCount),
		).Replace(r.DescriptionTemplate)
	}

	advisory := advisories[r.Severity]
	if len(areas) == 0 {
		return strings.TrimSpace(r.Name + " detected. " + advisory)
	}
	shown := areas[:min(len(areas), maxAreasInDescription)]
	return strings.TrimSpace("Affects " + strings.Join(shown, ", ") + ". " + advisory)
}
