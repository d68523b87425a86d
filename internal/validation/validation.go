// Package validation synthesizes the checklist a change must pass before the
// gate clears.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sprite-ai/impactgate/internal/model"
)

// Config selects which item groups are generated.
type Config struct {
	IncludeModuleTests         bool   `yaml:"include_module_tests"`
	IncludeDataFlowValidations bool   `yaml:"include_data_flow_validations"`
	IncludeAPIValidations      bool   `yaml:"include_api_validations"`
	TestCommandPrefix          string `yaml:"test_command_prefix" validate:"required"`
	ModulePathPrefix           string `yaml:"module_path_prefix"`
}

// DefaultConfig returns the default generator settings.
func DefaultConfig() Config {
	return Config{
		IncludeModuleTests:         true,
		IncludeDataFlowValidations: true,
		IncludeAPIValidations:      true,
		TestCommandPrefix:          "go test",
		ModulePathPrefix:           "./internal/",
	}
}

var apiPathPatterns = []string{"/api/", "/routes/", "/endpoints/", ".controller.", ".route."}

// Generator builds validation checklists. It is stateless.
type Generator struct {
	cfg Config
}

// New creates a Generator.
func New(cfg Config) *Generator {
	if cfg.TestCommandPrefix == "" {
		cfg.TestCommandPrefix = DefaultConfig().TestCommandPrefix
	}
	return &Generator{cfg: cfg}
}

// Generate returns the deduplicated checklist for a change, every item
// pending.
func (g *Generator) Generate(scope *model.ChangeScope, flows []model.ImpactDataFlow, risks []model.IdentifiedRisk) []model.ValidationItem {
	if scope == nil {
		scope = &model.ChangeScope{}
	}
	var items []model.ValidationItem
	for _, r := range risks {
		items = append(items, g.forRisk(r)...)
	}
	if g.cfg.IncludeModuleTests {
		items = append(items, g.moduleTests(scope)...)
	}
	if g.cfg.IncludeDataFlowValidations {
		items = append(items, g.flowChecks(flows)...)
	}
	if g.cfg.IncludeAPIValidations && touchesAPI(scope.AllFiles()) {
		items = append(items, g.apiChecks()...)
	}
	return dedupe(items)
}

func (g *Generator) forRisk(r model.IdentifiedRisk) []model.ValidationItem {
	source := r.ID
	it := model.ValidationItem{IsBlocking: r.IsBlocking, Source: source}

	switch r.Category {
	case model.RiskDataCorruption:
		it.Title = "Verify data integrity: " + r.Name
		it.Description = "Manually confirm existing data stays consistent. " + r.Mitigation
		it.Category = model.ValidationDataIntegrity
	case model.RiskBreakingChange:
		it.Title = "Backward compatibility: " + r.Name
		it.Description = "Confirm existing callers keep working. " + r.Mitigation
		it.Category = model.ValidationIntegrationTest
		it.AutoVerifiable = true
		it.VerifyCommand = g.cfg.TestCommandPrefix + " ./..."
	case model.RiskSecurity:
		it.Title = "Security review: " + r.Name
		it.Description = "A reviewer must sign off on the security impact. " + r.Mitigation
		it.Category = model.ValidationSecurityReview
		it.IsBlocking = true
	case model.RiskPerformance:
		it.Title = "Performance check: " + r.Name
		it.Description = "Compare benchmarks before and after the change. " + r.Mitigation
		it.Category = model.ValidationPerformance
		it.IsBlocking = false
	case model.RiskTesting:
		it.Title = "Add test coverage"
		it.Description = "New or modified behavior needs tests. " + r.Mitigation
		it.Category = model.ValidationUnitTest
	case model.RiskCompatibility:
		it.Title = "Integration tests across affected modules"
		it.Description = "Run the integration suite for every affected module. " + r.Mitigation
		it.Category = model.ValidationIntegrationTest
		it.AutoVerifiable = true
		it.VerifyCommand = g.cfg.TestCommandPrefix + " ./..."
	default:
		it.Title = "Review: " + r.Name
		it.Description = r.Description
		it.Category = model.ValidationManualReview
	}
	it.Description = strings.TrimSpace(it.Description)

	items := []model.ValidationItem{it}
	if r.RuleID == "schema-migration" {
		items = append(items, model.ValidationItem{
			Title:          "Run database migrations",
			Description:    "Apply the migrations against a copy of production data and verify rollback.",
			Category:       model.ValidationMigration,
			IsBlocking:     true,
			AutoVerifiable: true,
			VerifyCommand:  g.cfg.TestCommandPrefix + " -run Migration ./...",
			Source:         source,
		})
	}
	return items
}

func (g *Generator) moduleTests(scope *model.ChangeScope) []model.ValidationItem {
	var items []model.ValidationItem
	for _, m := range scope.PrimaryModules {
		items = append(items, model.ValidationItem{
			Title:          "Unit tests: " + m,
			Description:    fmt.Sprintf("Run the tests of changed module %s.", m),
			Category:       model.ValidationUnitTest,
			IsBlocking:     true,
			AutoVerifiable: true,
			VerifyCommand:  g.moduleCommand(m),
			Source:         "module:" + m,
		})
	}
	for _, d := range scope.DependentModules {
		if d.ImpactLevel != model.ImpactDirect || scope.IsPrimaryModule(d.ID) {
			continue
		}
		items = append(items, model.ValidationItem{
			Title:          "Unit tests: " + d.ID,
			Description:    fmt.Sprintf("Run the tests of dependent module %s (%s).", d.ID, d.Reason),
			Category:       model.ValidationUnitTest,
			AutoVerifiable: true,
			VerifyCommand:  g.moduleCommand(d.ID),
			Source:         "module:" + d.ID,
		})
	}
	return items
}

func (g *Generator) moduleCommand(module string) string {
	return fmt.Sprintf("%s %s%s/...", g.cfg.TestCommandPrefix, g.cfg.ModulePathPrefix, module)
}

func (g *Generator) flowChecks(flows []model.ImpactDataFlow) []model.ValidationItem {
	var items []model.ValidationItem
	for _, f := range flows {
		if !f.ValidationRequired {
			continue
		}
		if f.Strength != model.StrengthCritical && f.Strength != model.StrengthImportant {
			continue
		}
		if f.ImpactLevel != model.ImpactDirect && f.ImpactLevel != model.ImpactIndirect {
			continue
		}
		desc := fmt.Sprintf("Verify %s data flow from %s to %s", f.Strength, f.From, f.To)
		if len(f.Entities) > 0 {
			desc += " (" + strings.Join(f.Entities, ", ") + ")"
		}
		desc += "."
		if len(f.SuggestedTests) > 0 {
			desc += " Suggested: " + strings.Join(f.SuggestedTests, "; ") + "."
		}
		// flows between the same modules stay separate items
		title := fmt.Sprintf("Data flow %s -> %s", f.From, f.To)
		switch {
		case len(f.Entities) > 0:
			title += ": " + strings.Join(f.Entities, ", ")
		case f.ID != "":
			title += " (" + f.ID + ")"
		}
		items = append(items, model.ValidationItem{
			Title:       title,
			Description: desc,
			Category:    model.ValidationDataIntegrity,
			IsBlocking:  f.Strength == model.StrengthCritical,
			Source:      "flow:" + f.ID,
		})
	}
	return items
}

func touchesAPI(files []string) bool {
	for _, f := range files {
		lf := strings.ToLower(f)
		for _, p := range apiPathPatterns {
			if strings.Contains(lf, p) {
				return true
			}
		}
	}
	return false
}

func (g *Generator) apiChecks() []model.ValidationItem {
	return []model.ValidationItem{
		{
			Title:       "Check API endpoints",
			Description: "Exercise changed endpoints manually and compare responses with the documented contract.",
			Category:    model.ValidationAPIContract,
			Source:      "api",
		},
		{
			Title:          "API integration tests",
			Description:    "Run the API integration suite.",
			Category:       model.ValidationIntegrationTest,
			AutoVerifiable: true,
			VerifyCommand:  g.cfg.TestCommandPrefix + " -run API ./...",
			Source:         "api",
		},
	}
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func normalize(title string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(title), " "), " ")
}

func slug(s string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ItemID returns the stable id of an item titled title. Generate qualifies
// it with the category when two categories share a title.
func ItemID(title string) string {
	return "validation:" + slug(title)
}

// dedupe merges items with the same category and normalized title. The first
// position is kept, the longer description wins and blocking is sticky.
func dedupe(items []model.ValidationItem) []model.ValidationItem {
	out := make([]model.ValidationItem, 0, len(items))
	index := make(map[string]int, len(items))
	used := make(map[string]bool, len(items))
	for _, it := range items {
		key := string(it.Category) + "|" + normalize(it.Title)
		i, ok := index[key]
		if !ok {
			it.ID = ItemID(it.Title)
			if used[it.ID] {
				it.ID = ItemID(string(it.Category) + " " + it.Title)
			}
			used[it.ID] = true
			it.Status = model.StatusPending
			index[key] = len(out)
			out = append(out, it)
			continue
		}
		existing := &out[i]
		blocking := existing.IsBlocking || it.IsBlocking
		if len(it.Description) > len(existing.Description) {
			id := existing.ID
			*existing = it
			existing.ID = id
			existing.Status = model.StatusPending
		}
		existing.IsBlocking = blocking
	}
	return out
}
