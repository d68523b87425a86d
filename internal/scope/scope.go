// Package scope computes the blast radius of a change: the primary modules
// and files it touches and everything reachable from them within a bounded
// number of hops through the knowledge graph.
package scope

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/sprite-ai/impactgate/internal/graph"
	"github.com/sprite-ai/impactgate/internal/model"
)

// Config bounds the traversal.
type Config struct {
	MaxDepth        int  `yaml:"max_depth" validate:"gte=1,lte=10"`
	IncludeIndirect bool `yaml:"include_indirect"`
	ExpandImports   bool `yaml:"expand_imports"`
	ExpandDataFlows bool `yaml:"expand_data_flows"`
}

// DefaultConfig returns the default traversal bounds.
func DefaultConfig() Config {
	return Config{
		MaxDepth:        3,
		IncludeIndirect: true,
		ExpandImports:   true,
		ExpandDataFlows: true,
	}
}

// Detector computes ChangeScopes. Every provider is optional; a missing or
// failing provider turns its step into a no-op.
type Detector struct {
	cfg       Config
	providers graph.Providers
	logger    *slog.Logger
}

// New creates a Detector.
func New(cfg Config, providers graph.Providers, logger *slog.Logger) *Detector {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, providers: providers, logger: logger}
}

// queueItem is one pending node of a breadth-first walk.
type queueItem struct {
	id     string
	depth  int
	path   []string
	reason string
}

// Detect computes the scope of a parsed change.
func (d *Detector) Detect(ctx context.Context, input model.ChangeInput, parsed model.ParsedChange) *model.ChangeScope {
	s := &model.ChangeScope{
		PrimaryFiles:     cleanFiles(input.TargetFiles),
		DependentModules: []model.AffectedItem{},
		AffectedFiles:    []model.AffectedItem{},
	}

	spec := d.linkedSpec(ctx, input.SpecID)
	s.PrimaryModules = d.primaryModules(ctx, input, parsed, spec)

	deepest := 0
	if d.providers.Modules != nil {
		var depth int
		s.DependentModules, depth = d.walkModules(ctx, s.PrimaryModules, d.specSeeds(ctx, spec))
		deepest = max(deepest, depth)
	}

	if d.cfg.ExpandImports && d.providers.Imports != nil {
		var depth int
		s.AffectedFiles, depth = d.walkFiles(ctx, s.PrimaryFiles)
		deepest = max(deepest, depth)
	}

	s.AffectedEntities = d.affectedEntities(ctx, parsed.Entities)
	s.Depth = deepest

	d.logger.Debug("scope detected",
		slog.Int("primary_modules", len(s.PrimaryModules)),
		slog.Int("dependent_modules", len(s.DependentModules)),
		slog.Int("affected_files", len(s.AffectedFiles)),
		slog.Int("depth", s.Depth),
	)
	return s
}

func (d *Detector) warn(msg string, err error, attrs ...any) {
	d.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
}

func (d *Detector) linkedSpec(ctx context.Context, id string) *graph.Spec {
	if id == "" || d.providers.Specs == nil {
		return nil
	}
	spec, err := d.providers.Specs.Spec(ctx, id)
	if err != nil {
		d.warn("spec lookup failed", err, slog.String("spec", id))
		return nil
	}
	return spec
}

func (d *Detector) primaryModules(ctx context.Context, input model.ChangeInput, parsed model.ParsedChange, spec *graph.Spec) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, m := range input.TargetModules {
		add(d.resolveModule(ctx, m))
	}

	if mp := d.providers.Modules; mp != nil {
		for _, f := range input.TargetFiles {
			m, err := mp.ModuleForFile(ctx, f)
			if err != nil {
				d.warn("module lookup for file failed", err, slog.String("file", f))
				continue
			}
			if m != nil {
				add(m.ID)
			}
		}
	}

	if spec != nil {
		add(spec.ModuleID)
	}

	if len(ids) == 0 {
		for _, id := range d.matchModules(ctx, parsed) {
			add(id)
		}
	}

	return ids
}

// resolveModule maps a module hint to a known id, by id then by name. Unknown
// hints are kept verbatim.
func (d *Detector) resolveModule(ctx context.Context, hint string) string {
	mp := d.providers.Modules
	if mp == nil {
		return hint
	}
	if m, err := mp.Module(ctx, hint); err == nil && m != nil {
		return m.ID
	}
	m, err := mp.ModuleByName(ctx, hint)
	if err != nil {
		d.warn("module lookup failed", err, slog.String("module", hint))
		return hint
	}
	if m != nil {
		return m.ID
	}
	return hint
}

// matchModules infers primary modules from entity and keyword names.
func (d *Detector) matchModules(ctx context.Context, parsed model.ParsedChange) []string {
	mp := d.providers.Modules
	if mp == nil || (len(parsed.Entities) == 0 && len(parsed.Keywords) == 0) {
		return nil
	}
	modules, err := mp.Modules(ctx)
	if err != nil {
		d.warn("module listing failed", err)
		return nil
	}

	kebabs := make([]string, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		kebabs = append(kebabs, kebab(e))
	}

	var ids []string
	for _, m := range modules {
		name := strings.ToLower(m.Name)
		if matchesName(name, kebabs, parsed.Keywords) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func matchesName(name string, kebabs, keywords []string) bool {
	for _, k := range kebabs {
		if k != "" && (name == k || strings.Contains(name, k)) {
			return true
		}
	}
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '/' || r == '.'
	})
	for _, kw := range keywords {
		if len(kw) <= 3 {
			continue
		}
		for _, seg := range segments {
			if seg == kw {
				return true
			}
		}
	}
	return false
}

// kebab converts PascalCase to kebab-case: OrderItem -> order-item.
func kebab(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// specSeeds returns the modules of the specs the linked spec depends on.
func (d *Detector) specSeeds(ctx context.Context, spec *graph.Spec) []queueItem {
	if spec == nil || d.providers.Specs == nil {
		return nil
	}
	var seeds []queueItem
	for _, depID := range spec.DependsOn {
		dep, err := d.providers.Specs.Spec(ctx, depID)
		if err != nil {
			d.warn("spec dependency lookup failed", err, slog.String("spec", depID))
			continue
		}
		if dep == nil || dep.ModuleID == "" {
			continue
		}
		seeds = append(seeds, queueItem{
			id:     dep.ModuleID,
			depth:  1,
			path:   []string{spec.ModuleID, dep.ModuleID},
			reason: fmt.Sprintf("spec %s depends on spec %s", spec.ID, dep.ID),
		})
	}
	return seeds
}

// walkModules runs the bounded BFS over module links. Primaries sit at depth
// 0 and are never reported as dependents.
func (d *Detector) walkModules(ctx context.Context, primaries []string, seeds []queueItem) ([]model.AffectedItem, int) {
	mp := d.providers.Modules
	visited := make(map[string]bool, len(primaries))
	queue := make([]queueItem, 0, len(primaries)+len(seeds))
	for _, id := range primaries {
		visited[id] = true
		queue = append(queue, queueItem{id: id, path: []string{id}})
	}

	dependents := []model.AffectedItem{}
	deepest := 0
	record := func(item queueItem) {
		visited[item.id] = true
		queue = append(queue, item)
		dependents = append(dependents, model.AffectedItem{
			ID:          item.id,
			Name:        d.moduleName(ctx, item.id),
			ImpactLevel: model.ImpactForDepth(item.depth),
			Depth:       item.depth,
			Path:        item.path,
			Reason:      item.reason,
		})
		deepest = max(deepest, item.depth)
	}

	for _, seed := range seeds {
		if !visited[seed.id] {
			record(seed)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= d.cfg.MaxDepth || (!d.cfg.IncludeIndirect && cur.depth >= 1) {
			continue
		}

		incoming, err := mp.Links(ctx, cur.id, graph.Incoming)
		if err != nil {
			d.warn("incoming link lookup failed", err, slog.String("module", cur.id))
		}
		for _, l := range incoming {
			if visited[l.From] {
				continue
			}
			record(queueItem{
				id:     l.From,
				depth:  cur.depth + 1,
				path:   appendPath(cur.path, l.From),
				reason: fmt.Sprintf("%s %s %s", l.From, linkVerb(l.Type), cur.id),
			})
		}

		outgoing, err := mp.Links(ctx, cur.id, graph.Outgoing)
		if err != nil {
			d.warn("outgoing link lookup failed", err, slog.String("module", cur.id))
		}
		for _, l := range outgoing {
			if l.Type != graph.LinkDependsOn || visited[l.To] {
				continue
			}
			record(queueItem{
				id:     l.To,
				depth:  cur.depth + 1,
				path:   appendPath(cur.path, l.To),
				reason: fmt.Sprintf("%s depends on %s", cur.id, l.To),
			})
		}
	}

	return dependents, deepest
}

func linkVerb(t graph.LinkType) string {
	switch t {
	case graph.LinkDependsOn:
		return "depends on"
	case graph.LinkUses:
		return "uses"
	case graph.LinkImplements:
		return "implements"
	case graph.LinkExtends:
		return "extends"
	default:
		return "is related to"
	}
}

func (d *Detector) moduleName(ctx context.Context, id string) string {
	m, err := d.providers.Modules.Module(ctx, id)
	if err != nil || m == nil {
		return id
	}
	return m.Name
}

// walkFiles mirrors walkModules over importers only.
func (d *Detector) walkFiles(ctx context.Context, primaries []string) ([]model.AffectedItem, int) {
	ip := d.providers.Imports
	visited := make(map[string]bool, len(primaries))
	queue := make([]queueItem, 0, len(primaries))
	for _, f := range primaries {
		visited[f] = true
		queue = append(queue, queueItem{id: f, path: []string{f}})
	}

	affected := []model.AffectedItem{}
	deepest := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= d.cfg.MaxDepth || (!d.cfg.IncludeIndirect && cur.depth >= 1) {
			continue
		}

		importers, err := ip.Importers(ctx, cur.id)
		if err != nil {
			d.warn("importer lookup failed", err, slog.String("file", cur.id))
			continue
		}
		for _, f := range importers {
			if visited[f] {
				continue
			}
			visited[f] = true
			item := queueItem{id: f, depth: cur.depth + 1, path: appendPath(cur.path, f)}
			queue = append(queue, item)
			affected = append(affected, model.AffectedItem{
				ID:          f,
				Name:        path.Base(f),
				ImpactLevel: model.ImpactForDepth(item.depth),
				Depth:       item.depth,
				Path:        item.path,
				Reason:      "imports " + cur.id,
			})
			deepest = max(deepest, item.depth)
		}
	}
	return affected, deepest
}

// affectedEntities expands the primary entities by one hop through data flows.
func (d *Detector) affectedEntities(ctx context.Context, primary []string) []string {
	set := make(map[string]struct{}, len(primary))
	for _, e := range primary {
		set[e] = struct{}{}
	}

	if d.cfg.ExpandDataFlows && d.providers.DataFlows != nil {
		for _, e := range primary {
			flows, err := d.providers.DataFlows.FlowsForEntity(ctx, e)
			if err != nil {
				d.warn("flow lookup failed", err, slog.String("entity", e))
				continue
			}
			for _, f := range flows {
				for _, fe := range f.Entities {
					set[fe] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func appendPath(p []string, id string) []string {
	out := make([]string, len(p), len(p)+1)
	copy(out, p)
	return append(out, id)
}

func cleanFiles(files []string) []string {
	out := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f == "" {
			continue
		}
		f = path.Clean(f)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
