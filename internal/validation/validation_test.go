package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/impactgate/internal/model"
)

func find(items []model.ValidationItem, title string) (model.ValidationItem, bool) {
	for _, it := range items {
		if it.Title == title {
			return it, true
		}
	}
	return model.ValidationItem{}, false
}

func TestRiskMapping(t *testing.T) {
	tests := []struct {
		name         string
		risk         model.IdentifiedRisk
		wantCategory model.ValidationCategory
		wantBlocking bool
		wantAuto     bool
	}{
		{"data corruption", model.IdentifiedRisk{Category: model.RiskDataCorruption, IsBlocking: true}, model.ValidationDataIntegrity, true, false},
		{"breaking", model.IdentifiedRisk{Category: model.RiskBreakingChange, IsBlocking: true}, model.ValidationIntegrationTest, true, true},
		{"security forced blocking", model.IdentifiedRisk{Category: model.RiskSecurity, IsBlocking: false}, model.ValidationSecurityReview, true, false},
		{"performance never blocking", model.IdentifiedRisk{Category: model.RiskPerformance, IsBlocking: true}, model.ValidationPerformance, false, false},
		{"testing", model.IdentifiedRisk{Category: model.RiskTesting}, model.ValidationUnitTest, false, false},
		{"compatibility", model.IdentifiedRisk{Category: model.RiskCompatibility}, model.ValidationIntegrationTest, false, true},
		{"other", model.IdentifiedRisk{Category: model.RiskOther, IsBlocking: true}, model.ValidationManualReview, true, false},
	}

	g := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.risk.ID, tt.risk.RuleID, tt.risk.Name = "risk:r", "r", "Rule"
			items := g.Generate(nil, nil, []model.IdentifiedRisk{tt.risk})
			require.Len(t, items, 1)
			it := items[0]
			assert.Equal(t, tt.wantCategory, it.Category)
			assert.Equal(t, tt.wantBlocking, it.IsBlocking)
			assert.Equal(t, tt.wantAuto, it.AutoVerifiable)
			assert.Equal(t, model.StatusPending, it.Status)
			assert.Equal(t, "risk:r", it.Source)
		})
	}
}

func TestSchemaMigrationAddsMigrationRun(t *testing.T) {
	items := New(DefaultConfig()).Generate(nil, nil, []model.IdentifiedRisk{{
		ID: "risk:schema-migration", RuleID: "schema-migration", Name: "Schema change",
		Category: model.RiskDataCorruption, IsBlocking: true,
	}})
	require.Len(t, items, 2)
	run, ok := find(items, "Run database migrations")
	require.True(t, ok)
	assert.True(t, run.IsBlocking)
	assert.True(t, run.AutoVerifiable)
	assert.Equal(t, model.ValidationMigration, run.Category)
}

func TestModuleTests(t *testing.T) {
	scope := &model.ChangeScope{
		PrimaryModules: []string{"orders"},
		DependentModules: []model.AffectedItem{
			{ID: "billing", ImpactLevel: model.ImpactDirect},
			{ID: "ledger", ImpactLevel: model.ImpactIndirect},
		},
	}
	items := New(DefaultConfig()).Generate(scope, nil, nil)
	require.Len(t, items, 2)

	assert.Equal(t, "Unit tests: orders", items[0].Title)
	assert.True(t, items[0].IsBlocking)
	assert.Equal(t, "go test ./internal/orders/...", items[0].VerifyCommand)
	assert.Equal(t, "validation:unit-tests-orders", items[0].ID)

	assert.Equal(t, "Unit tests: billing", items[1].Title)
	assert.False(t, items[1].IsBlocking)
	assert.True(t, items[1].AutoVerifiable)

	cfg := DefaultConfig()
	cfg.IncludeModuleTests = false
	assert.Empty(t, New(cfg).Generate(scope, nil, nil))
}

func TestFlowChecks(t *testing.T) {
	flow := func(id string, s model.FlowStrength, l model.ImpactLevel, required bool) model.ImpactDataFlow {
		return model.ImpactDataFlow{
			DataFlow:           model.DataFlow{ID: id, From: id + "-from", To: id + "-to", Strength: s},
			ImpactLevel:        l,
			ValidationRequired: required,
		}
	}
	items := New(DefaultConfig()).Generate(nil, []model.ImpactDataFlow{
		flow("crit", model.StrengthCritical, model.ImpactIndirect, true),
		flow("imp", model.StrengthImportant, model.ImpactDirect, true),
		flow("opt", model.StrengthOptional, model.ImpactDirect, true),
		flow("cascade", model.StrengthCritical, model.ImpactCascade, true),
		flow("unrequired", model.StrengthImportant, model.ImpactIndirect, false),
	}, nil)

	require.Len(t, items, 2)
	assert.True(t, items[0].IsBlocking)
	assert.Equal(t, "flow:crit", items[0].Source)
	assert.Equal(t, "Data flow crit-from -> crit-to (crit)", items[0].Title)
	assert.False(t, items[1].IsBlocking)
	assert.Equal(t, model.ValidationDataIntegrity, items[1].Category)
}

func TestFlowChecksBetweenSameModules(t *testing.T) {
	flow := func(id string, entities ...string) model.ImpactDataFlow {
		return model.ImpactDataFlow{
			DataFlow:           model.DataFlow{ID: id, From: "orders", To: "billing", Entities: entities, Strength: model.StrengthCritical},
			ImpactLevel:        model.ImpactDirect,
			ValidationRequired: true,
		}
	}
	items := New(DefaultConfig()).Generate(nil, []model.ImpactDataFlow{
		flow("f1", "Invoice"),
		flow("f2", "Refund", "Payment"),
		flow("f3"),
	}, nil)

	require.Len(t, items, 3)
	assert.Equal(t, "Data flow orders -> billing: Invoice", items[0].Title)
	assert.Equal(t, "Data flow orders -> billing: Refund, Payment", items[1].Title)
	assert.Equal(t, "flow:f2", items[1].Source)
	assert.Equal(t, "Data flow orders -> billing (f3)", items[2].Title)
	assert.Equal(t, "validation:data-flow-orders-billing-invoice", items[0].ID)
}

func TestAPIChecks(t *testing.T) {
	g := New(DefaultConfig())
	for _, file := range []string{
		"internal/api/users.go", "web/routes/index.ts", "svc/endpoints/a.py",
		"src/user.controller.ts", "src/app.route.js",
	} {
		items := g.Generate(&model.ChangeScope{PrimaryFiles: []string{file}}, nil, nil)
		require.Len(t, items, 2, file)
		assert.Equal(t, model.ValidationAPIContract, items[0].Category)
		assert.Equal(t, "go test -run API ./...", items[1].VerifyCommand)
	}

	items := g.Generate(&model.ChangeScope{AffectedFiles: []model.AffectedItem{{ID: "internal/store/db.go"}}}, nil, nil)
	assert.Empty(t, items)
}

func TestDedupe(t *testing.T) {
	items := dedupe([]model.ValidationItem{
		{Title: "Check  API endpoints", Description: "short", Category: model.ValidationAPIContract},
		{Title: "Other", Category: model.ValidationManualReview},
		{Title: "check api endpoints!", Description: "a much longer description", Category: model.ValidationAPIContract, IsBlocking: true},
		{Title: "Check API endpoints", Description: "x", Category: model.ValidationAPIContract},
		{Title: "Check API endpoints", Category: model.ValidationManualReview},
	})

	require.Len(t, items, 3)
	first := items[0]
	assert.Equal(t, "a much longer description", first.Description)
	assert.True(t, first.IsBlocking, "a shorter later duplicate never un-blocks")
	assert.Equal(t, "validation:check-api-endpoints", first.ID)
	assert.Equal(t, "Other", items[1].Title)
	assert.Equal(t, model.ValidationManualReview, items[2].Category)
	assert.Equal(t, "validation:manual-review-check-api-endpoints", items[2].ID)
}

func TestGenerateDedupesAcrossGroups(t *testing.T) {
	scope := &model.ChangeScope{PrimaryFiles: []string{"internal/api/a.go"}}
	items := New(DefaultConfig()).Generate(scope, nil, []model.IdentifiedRisk{
		{ID: "risk:x", RuleID: "x", Name: "X", Category: model.RiskCompatibility},
		{ID: "risk:y", RuleID: "y", Name: "Y", Category: model.RiskCompatibility, IsBlocking: true},
	})

	var integration []model.ValidationItem
	for _, it := range items {
		if it.Title == "Integration tests across affected modules" {
			integration = append(integration, it)
		}
	}
	require.Len(t, integration, 1)
	assert.True(t, integration[0].IsBlocking)
}
