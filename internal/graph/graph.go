// Package graph defines the read-only knowledge-graph providers the scope
// detector walks, plus concrete implementations: a YAML-backed in-memory
// graph, an LRU caching decorator and a tree-sitter import scanner.
package graph

import (
	"context"

	"github.com/sprite-ai/impactgate/internal/model"
)

// LinkType labels a module-to-module edge.
type LinkType string

const (
	LinkDependsOn  LinkType = "depends_on"
	LinkUses       LinkType = "uses"
	LinkImplements LinkType = "implements"
	LinkExtends    LinkType = "extends"
	LinkRelated    LinkType = "related"
)

// Direction selects which side of a module's links to return.
type Direction int

const (
	// Incoming links point at the module: the modules that depend on it.
	Incoming Direction = iota
	// Outgoing links start at the module.
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Module is a node of the module graph.
type Module struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path,omitempty" yaml:"path"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// ModuleLink is a directed edge: From relates to To with Type.
type ModuleLink struct {
	From string   `json:"from" yaml:"from"`
	To   string   `json:"to" yaml:"to"`
	Type LinkType `json:"type" yaml:"type"`
}

// Spec is a specification document attached to a module.
type Spec struct {
	ID        string   `json:"id" yaml:"id"`
	Title     string   `json:"title" yaml:"title"`
	ModuleID  string   `json:"module_id" yaml:"module_id"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on"`
}

// ModuleProvider looks up modules and their links. Lookups that find nothing
// return a nil module and a nil error.
type ModuleProvider interface {
	Module(ctx context.Context, id string) (*Module, error)
	ModuleByName(ctx context.Context, name string) (*Module, error)
	ModuleForFile(ctx context.Context, path string) (*Module, error)
	Modules(ctx context.Context) ([]Module, error)
	Links(ctx context.Context, moduleID string, dir Direction) ([]ModuleLink, error)
}

// SpecProvider looks up specs.
type SpecProvider interface {
	Spec(ctx context.Context, id string) (*Spec, error)
}

// ImportProvider answers file-level import questions.
type ImportProvider interface {
	// Importers returns the files that import file.
	Importers(ctx context.Context, file string) ([]string, error)
	// Imports returns the files that file imports.
	Imports(ctx context.Context, file string) ([]string, error)
}

// DataFlowProvider returns raw data-flow edges.
type DataFlowProvider interface {
	FlowsForEntity(ctx context.Context, entity string) ([]model.DataFlow, error)
	FlowsForModule(ctx context.Context, moduleID string) ([]model.DataFlow, error)
}

// Providers bundles the optional providers. Any field may be nil.
type Providers struct {
	Modules   ModuleProvider
	Specs     SpecProvider
	Imports   ImportProvider
	DataFlows DataFlowProvider
}
