package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/impactgate/internal/model"
)

func testScope() *model.ChangeScope {
	return &model.ChangeScope{
		PrimaryModules: []string{"orders"},
		DependentModules: []model.AffectedItem{
			{ID: "billing", ImpactLevel: model.ImpactDirect, Depth: 1},
		},
		AffectedEntities: []string{"Order"},
	}
}

func TestClassifyImpactLevels(t *testing.T) {
	tests := []struct {
		name string
		flow model.DataFlow
		want model.ImpactLevel
	}{
		{
			name: "primary module and shared entity",
			flow: model.DataFlow{From: "orders", To: "shipping", Entities: []string{"order"}},
			want: model.ImpactDirect,
		},
		{
			name: "dependent module only",
			flow: model.DataFlow{From: "billing", To: "ledger", Entities: []string{"Invoice"}},
			want: model.ImpactIndirect,
		},
		{
			name: "shared entity only",
			flow: model.DataFlow{From: "search", To: "ledger", Entities: []string{"Order"}},
			want: model.ImpactIndirect,
		},
		{
			name: "primary module without shared entity",
			flow: model.DataFlow{From: "orders", To: "ledger", Entities: []string{"Invoice"}},
			want: model.ImpactCascade,
		},
		{
			name: "unrelated",
			flow: model.DataFlow{From: "search", To: "ledger"},
			want: model.ImpactCascade,
		},
	}

	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.AnalyzeForImpact([]model.DataFlow{tt.flow}, testScope(), model.ParsedChange{})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].ImpactLevel)
		})
	}
}

func TestValidationRequired(t *testing.T) {
	tests := []struct {
		level    model.ImpactLevel
		strength model.FlowStrength
		want     bool
	}{
		{model.ImpactCascade, model.StrengthCritical, true},
		{model.ImpactDirect, model.StrengthOptional, true},
		{model.ImpactIndirect, model.StrengthImportant, true},
		{model.ImpactIndirect, model.StrengthOptional, false},
		{model.ImpactCascade, model.StrengthImportant, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validationRequired(tt.level, tt.strength), "%s/%s", tt.level, tt.strength)
	}
}

func TestSuggestedTests(t *testing.T) {
	f := model.DataFlow{
		From:          "orders",
		To:            "billing",
		Entities:      []string{"Order", "Invoice"},
		FlowType:      model.FlowBidirectional,
		Strength:      model.StrengthCritical,
		Relationships: []string{"creates", "generates", "updates"},
	}

	got := suggestedTests(f)
	assert.Equal(t, []string{
		"Verify Order creation correctly produces Invoice",
		"Verify updates to Order propagate to Invoice",
		"Verify Order and Invoice stay consistent when both sides write",
		"Verify end-to-end integrity of Order -> Invoice under failure and rollback",
	}, got)
}

func TestSuggestedTestsFallBackToModules(t *testing.T) {
	got := suggestedTests(model.DataFlow{From: "orders", To: "billing", Relationships: []string{"deletes"}})
	assert.Equal(t, []string{"Verify deleting orders handles dependent billing records"}, got)

	assert.Empty(t, suggestedTests(model.DataFlow{From: "a", To: "b", FlowType: model.FlowRead}))
}

func TestAffectedOperations(t *testing.T) {
	tests := []struct {
		name string
		flow model.DataFlow
		want []string
	}{
		{"read default", model.DataFlow{FlowType: model.FlowRead}, []string{"SELECT"}},
		{"write default", model.DataFlow{FlowType: model.FlowWrite}, []string{"INSERT", "UPDATE"}},
		{
			"relationships add to defaults",
			model.DataFlow{FlowType: model.FlowRead, Relationships: []string{"removes", "contains"}},
			[]string{"SELECT", "DELETE", "JOIN"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, affectedOperations(tt.flow))
		})
	}
}

func TestAnalyzeForImpactKeepsOrder(t *testing.T) {
	flows := []model.DataFlow{
		{ID: "f1", From: "orders", To: "billing", Entities: []string{"Order"}, Strength: model.StrengthOptional},
		{ID: "f2", From: "x", To: "y", Strength: model.StrengthOptional},
	}
	got := New().AnalyzeForImpact(flows, testScope(), model.ParsedChange{})
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].ID)
	assert.True(t, got[0].ValidationRequired)
	assert.Equal(t, "f2", got[1].ID)
	assert.False(t, got[1].ValidationRequired)

	assert.Empty(t, New().AnalyzeForImpact(nil, nil, model.ParsedChange{}))
}
