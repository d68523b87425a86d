package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/impactgate/internal/graph"
	"github.com/sprite-ai/impactgate/internal/model"
)

const chainGraph = `
modules:
  - id: a
    path: internal/a
  - id: b
  - id: c
  - id: d
  - id: e
links:
  - {from: b, to: a, type: uses}
  - {from: c, to: b, type: uses}
  - {from: d, to: c, type: uses}
  - {from: e, to: d, type: uses}
`

func loadGraph(t *testing.T, doc string) *graph.Graph {
	t.Helper()
	g, err := graph.Parse([]byte(doc))
	require.NoError(t, err)
	return g
}

func byID(items []model.AffectedItem) map[string]model.AffectedItem {
	out := make(map[string]model.AffectedItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

func TestDetectChainImpactLevels(t *testing.T) {
	g := loadGraph(t, chainGraph)
	d := New(DefaultConfig(), g.Providers(), nil)

	s := d.Detect(context.Background(), model.ChangeInput{TargetModules: []string{"a"}}, model.ParsedChange{})

	assert.Equal(t, []string{"a"}, s.PrimaryModules)
	deps := byID(s.DependentModules)
	require.Len(t, deps, 3)
	assert.Equal(t, model.ImpactDirect, deps["b"].ImpactLevel)
	assert.Equal(t, model.ImpactIndirect, deps["c"].ImpactLevel)
	assert.Equal(t, model.ImpactCascade, deps["d"].ImpactLevel)
	assert.NotContains(t, deps, "e", "depth 4 is beyond MaxDepth")
	assert.Equal(t, []string{"a", "b", "c", "d"}, deps["d"].Path)
	assert.Equal(t, "d uses c", deps["d"].Reason)
	assert.Equal(t, 3, s.Depth)
}

func TestDetectWithoutIndirect(t *testing.T) {
	g := loadGraph(t, chainGraph)
	cfg := DefaultConfig()
	cfg.IncludeIndirect = false
	d := New(cfg, g.Providers(), nil)

	s := d.Detect(context.Background(), model.ChangeInput{TargetModules: []string{"a"}}, model.ParsedChange{})
	require.Len(t, s.DependentModules, 1)
	assert.Equal(t, "b", s.DependentModules[0].ID)
	assert.Equal(t, 1, s.Depth)
}

func TestDetectFollowsOutgoingDependsOnOnly(t *testing.T) {
	g := loadGraph(t, `
modules: [{id: api}, {id: store}, {id: docs}]
links:
  - {from: api, to: store, type: depends_on}
  - {from: api, to: docs, type: related}
`)
	d := New(DefaultConfig(), g.Providers(), nil)
	s := d.Detect(context.Background(), model.ChangeInput{TargetModules: []string{"api"}}, model.ParsedChange{})

	deps := byID(s.DependentModules)
	assert.Contains(t, deps, "store")
	assert.NotContains(t, deps, "docs")
	assert.Equal(t, "api depends on store", deps["store"].Reason)
}

func TestDetectCyclesVisitedOnce(t *testing.T) {
	g := loadGraph(t, `
modules: [{id: x}, {id: y}]
links:
  - {from: x, to: y, type: depends_on}
  - {from: y, to: x, type: depends_on}
`)
	d := New(DefaultConfig(), g.Providers(), nil)
	s := d.Detect(context.Background(), model.ChangeInput{TargetModules: []string{"x"}}, model.ParsedChange{})
	require.Len(t, s.DependentModules, 1)
	assert.Equal(t, "y", s.DependentModules[0].ID)
}

func TestDetectPrimarySources(t *testing.T) {
	g := loadGraph(t, `
modules:
  - {id: payments, name: Payments, path: internal/payments}
  - {id: billing, path: internal/billing}
  - {id: ledger}
specs:
  - {id: SPEC-1, module_id: billing, depends_on: [SPEC-2]}
  - {id: SPEC-2, module_id: ledger}
`)
	d := New(DefaultConfig(), g.Providers(), nil)
	s := d.Detect(context.Background(), model.ChangeInput{
		TargetModules: []string{"payments", "unknown-module"},
		TargetFiles:   []string{"internal/billing/invoice.go", "./internal/billing/invoice.go"},
		SpecID:        "SPEC-1",
	}, model.ParsedChange{})

	assert.Equal(t, []string{"payments", "unknown-module", "billing"}, s.PrimaryModules)
	assert.Equal(t, []string{"internal/billing/invoice.go"}, s.PrimaryFiles)

	deps := byID(s.DependentModules)
	require.Contains(t, deps, "ledger")
	assert.Equal(t, 1, deps["ledger"].Depth)
	assert.Equal(t, "spec SPEC-1 depends on spec SPEC-2", deps["ledger"].Reason)
}

func TestDetectInfersModulesFromNames(t *testing.T) {
	g := loadGraph(t, `
modules: [{id: m1, name: order-item}, {id: m2, name: user-auth}, {id: m3, name: api}]
`)
	d := New(DefaultConfig(), g.Providers(), nil)

	s := d.Detect(context.Background(), model.ChangeInput{}, model.ParsedChange{
		Entities: []string{"OrderItem"},
		Keywords: []string{"api"},
	})
	assert.Equal(t, []string{"m1"}, s.PrimaryModules, "keywords of length <= 3 never match")

	s = d.Detect(context.Background(), model.ChangeInput{}, model.ParsedChange{Keywords: []string{"user"}})
	assert.Equal(t, []string{"m2"}, s.PrimaryModules)
}

func TestDetectFilesAndEntities(t *testing.T) {
	g := loadGraph(t, `
modules: [{id: a}, {id: b}]
imports:
  internal/b/use.go: [internal/a/core.go]
  cmd/main.go: [internal/b/use.go]
flows:
  - {from: a, to: b, entities: [Order, Invoice]}
  - {from: b, to: a, entities: [Invoice, Receipt]}
`)
	d := New(DefaultConfig(), g.Providers(), nil)
	s := d.Detect(context.Background(), model.ChangeInput{TargetFiles: []string{"internal/a/core.go"}},
		model.ParsedChange{Entities: []string{"Order"}})

	files := byID(s.AffectedFiles)
	require.Len(t, files, 2)
	assert.Equal(t, model.ImpactDirect, files["internal/b/use.go"].ImpactLevel)
	assert.Equal(t, 2, files["cmd/main.go"].Depth)
	assert.Equal(t, "use.go", files["internal/b/use.go"].Name)

	// One hop: Receipt is two flows away from Order.
	assert.Equal(t, []string{"Invoice", "Order"}, s.AffectedEntities)
}

type failingModules struct{ graph.ModuleProvider }

func (failingModules) Links(context.Context, string, graph.Direction) ([]graph.ModuleLink, error) {
	return nil, errors.New("graph store unavailable")
}

func TestDetectDegradesGracefully(t *testing.T) {
	s := New(DefaultConfig(), graph.Providers{}, nil).Detect(context.Background(),
		model.ChangeInput{TargetModules: []string{"a"}, TargetFiles: []string{"x.go"}},
		model.ParsedChange{Entities: []string{"Order"}})
	assert.Equal(t, []string{"a"}, s.PrimaryModules)
	assert.Empty(t, s.DependentModules)
	assert.Empty(t, s.AffectedFiles)
	assert.Equal(t, []string{"Order"}, s.AffectedEntities)

	g := loadGraph(t, chainGraph)
	d := New(DefaultConfig(), graph.Providers{Modules: failingModules{g}}, nil)
	s = d.Detect(context.Background(), model.ChangeInput{TargetModules: []string{"a"}}, model.ParsedChange{})
	assert.Empty(t, s.DependentModules)
	assert.Zero(t, s.Depth)
}

func TestKebab(t *testing.T) {
	tests := map[string]string{
		"OrderItem":   "order-item",
		"User":        "user",
		"OAuthToken":  "oauth-token",
		"Payment2Fee": "payment2-fee",
	}
	for in, want := range tests {
		assert.Equal(t, want, kebab(in), in)
	}
}
