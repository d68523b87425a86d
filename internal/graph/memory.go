package graph

import (
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/impactgate/internal/model"
)

// Document is the on-disk layout of a knowledge graph file.
type Document struct {
	Modules []Module            `yaml:"modules"`
	Links   []ModuleLink        `yaml:"links"`
	Specs   []Spec              `yaml:"specs"`
	Imports map[string][]string `yaml:"imports"` // file -> files it imports
	Flows   []model.DataFlow    `yaml:"flows"`
}

// Graph is an in-memory knowledge graph. It implements every provider
// interface and is safe for concurrent reads.
type Graph struct {
	modules   map[string]Module
	order     []string
	byName    map[string]string
	incoming  map[string][]ModuleLink
	outgoing  map[string][]ModuleLink
	specs     map[string]Spec
	imports   map[string][]string
	importers map[string][]string
	flows     []model.DataFlow
}

var (
	_ ModuleProvider   = (*Graph)(nil)
	_ SpecProvider     = (*Graph)(nil)
	_ ImportProvider   = (*Graph)(nil)
	_ DataFlowProvider = (*Graph)(nil)
)

// LoadFile reads and validates a YAML graph file.
func LoadFile(file string) (*Graph, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("graph: read %s: %w", file, err)
	}
	return Parse(data)
}

// Parse decodes a YAML graph document.
func Parse(data []byte) (*Graph, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: decode: %w", err)
	}
	return New(doc)
}

// New builds a Graph from doc, rejecting dangling references.
func New(doc Document) (*Graph, error) {
	g := &Graph{
		modules:   make(map[string]Module, len(doc.Modules)),
		byName:    make(map[string]string, len(doc.Modules)),
		incoming:  make(map[string][]ModuleLink),
		outgoing:  make(map[string][]ModuleLink),
		specs:     make(map[string]Spec, len(doc.Specs)),
		imports:   make(map[string][]string),
		importers: make(map[string][]string),
	}

	for _, m := range doc.Modules {
		if m.ID == "" {
			return nil, fmt.Errorf("graph: module with empty id")
		}
		if _, dup := g.modules[m.ID]; dup {
			return nil, fmt.Errorf("graph: duplicate module %q", m.ID)
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		if m.Path != "" {
			m.Path = strings.TrimSuffix(path.Clean(m.Path), "/")
		}
		g.modules[m.ID] = m
		g.order = append(g.order, m.ID)
		g.byName[strings.ToLower(m.Name)] = m.ID
	}

	for _, l := range doc.Links {
		if l.Type == "" {
			l.Type = LinkDependsOn
		}
		switch l.Type {
		case LinkDependsOn, LinkUses, LinkImplements, LinkExtends, LinkRelated:
		default:
			return nil, fmt.Errorf("graph: link %s -> %s: unknown type %q", l.From, l.To, l.Type)
		}
		if err := g.checkModule(l.From); err != nil {
			return nil, err
		}
		if err := g.checkModule(l.To); err != nil {
			return nil, err
		}
		g.outgoing[l.From] = append(g.outgoing[l.From], l)
		g.incoming[l.To] = append(g.incoming[l.To], l)
	}

	for _, s := range doc.Specs {
		if s.ID == "" {
			return nil, fmt.Errorf("graph: spec with empty id")
		}
		if s.ModuleID != "" {
			if err := g.checkModule(s.ModuleID); err != nil {
				return nil, err
			}
		}
		g.specs[s.ID] = s
	}

	for file, deps := range doc.Imports {
		for _, dep := range deps {
			g.addImport(file, dep)
		}
	}
	g.sortImports()

	for i, f := range doc.Flows {
		if err := g.checkModule(f.From); err != nil {
			return nil, err
		}
		if err := g.checkModule(f.To); err != nil {
			return nil, err
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("%s->%s#%d", f.From, f.To, i)
		}
		if f.FlowType == "" {
			f.FlowType = model.FlowRead
		}
		if f.Strength == "" {
			f.Strength = model.StrengthOptional
		}
		g.flows = append(g.flows, f)
	}

	return g, nil
}

func (g *Graph) checkModule(id string) error {
	if _, ok := g.modules[id]; !ok {
		return fmt.Errorf("graph: unknown module %q", id)
	}
	return nil
}

func (g *Graph) addImport(file, dep string) {
	file, dep = path.Clean(file), path.Clean(dep)
	g.imports[file] = append(g.imports[file], dep)
	g.importers[dep] = append(g.importers[dep], file)
}

func (g *Graph) sortImports() {
	for k := range g.imports {
		g.imports[k] = dedupeSorted(g.imports[k])
	}
	for k := range g.importers {
		g.importers[k] = dedupeSorted(g.importers[k])
	}
}

// Module implements ModuleProvider.
func (g *Graph) Module(_ context.Context, id string) (*Module, error) {
	m, ok := g.modules[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// ModuleByName implements ModuleProvider. Names match case-insensitively.
func (g *Graph) ModuleByName(_ context.Context, name string) (*Module, error) {
	id, ok := g.byName[strings.ToLower(name)]
	if !ok {
		return nil, nil
	}
	m := g.modules[id]
	return &m, nil
}

// ModuleForFile implements ModuleProvider using the longest matching path.
func (g *Graph) ModuleForFile(_ context.Context, file string) (*Module, error) {
	file = path.Clean(file)
	var best *Module
	for _, id := range g.order {
		m := g.modules[id]
		if m.Path == "" || m.Path == "." {
			continue
		}
		if file != m.Path && !strings.HasPrefix(file, m.Path+"/") {
			continue
		}
		if best == nil || len(m.Path) > len(best.Path) {
			mm := m
			best = &mm
		}
	}
	return best, nil
}

// Modules implements ModuleProvider in declaration order.
func (g *Graph) Modules(_ context.Context) ([]Module, error) {
	out := make([]Module, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.modules[id])
	}
	return out, nil
}

// Links implements ModuleProvider.
func (g *Graph) Links(_ context.Context, moduleID string, dir Direction) ([]ModuleLink, error) {
	if dir == Outgoing {
		return g.outgoing[moduleID], nil
	}
	return g.incoming[moduleID], nil
}

// Spec implements SpecProvider.
func (g *Graph) Spec(_ context.Context, id string) (*Spec, error) {
	s, ok := g.specs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Importers implements ImportProvider.
func (g *Graph) Importers(_ context.Context, file string) ([]string, error) {
	return g.importers[path.Clean(file)], nil
}

// Imports implements ImportProvider.
func (g *Graph) Imports(_ context.Context, file string) ([]string, error) {
	return g.imports[path.Clean(file)], nil
}

// FlowsForEntity implements DataFlowProvider.
func (g *Graph) FlowsForEntity(_ context.Context, entity string) ([]model.DataFlow, error) {
	var out []model.DataFlow
	for _, f := range g.flows {
		for _, e := range f.Entities {
			if strings.EqualFold(e, entity) {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

// FlowsForModule implements DataFlowProvider.
func (g *Graph) FlowsForModule(_ context.Context, moduleID string) ([]model.DataFlow, error) {
	var out []model.DataFlow
	for _, f := range g.flows {
		if f.From == moduleID || f.To == moduleID {
			out = append(out, f)
		}
	}
	return out, nil
}

// Providers returns a bundle with g serving every provider.
func (g *Graph) Providers() Providers {
	return Providers{Modules: g, Specs: g, Imports: g, DataFlows: g}
}

func dedupeSorted(in []string) []string {
	slices.Sort(in)
	return slices.Compact(in)
}
