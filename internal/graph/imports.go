package graph

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
	"golang.org/x/mod/modfile"
)

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"vendor":        {},
	"venv":          {},
	"build":         {},
	"dist":          {},
	"testdata":      {},
	".mypy_cache":   {},
	".pytest_cache": {},
}

// ImportGraph is a file-level import graph scanned from a repository. Paths
// are slash-separated and relative to the repository root.
type ImportGraph struct {
	modulePath string
	files      map[string]struct{}
	imports    map[string][]string
	importers  map[string][]string
}

var _ ImportProvider = (*ImportGraph)(nil)

// ScanImports walks root, parses Go and Python sources with tree-sitter and
// resolves their imports to files inside the repository. Imports that leave
// the repository are dropped.
func ScanImports(ctx context.Context, root string) (*ImportGraph, error) {
	g := &ImportGraph{
		modulePath: goModulePath(root),
		files:      make(map[string]struct{}),
		imports:    make(map[string][]string),
		importers:  make(map[string][]string),
	}

	files, err := discover(root)
	if err != nil {
		return nil, fmt.Errorf("graph: scan %s: %w", root, err)
	}
	for _, f := range files {
		g.files[f] = struct{}{}
	}

	goParser := sitter.NewParser()
	goParser.SetLanguage(golang.GetLanguage())
	pyParser := sitter.NewParser()
	pyParser.SetLanguage(python.GetLanguage())

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f)))
		if err != nil {
			continue
		}

		var deps []string
		switch path.Ext(f) {
		case ".go":
			deps = g.resolveGo(parseImports(ctx, goParser, src, goImportNodes))
		case ".py":
			deps = g.resolvePython(f, parseImports(ctx, pyParser, src, pythonImportNodes))
		}
		for _, dep := range deps {
			if dep != f {
				g.imports[f] = append(g.imports[f], dep)
				g.importers[dep] = append(g.importers[dep], f)
			}
		}
	}

	for k := range g.imports {
		g.imports[k] = dedupeSorted(g.imports[k])
	}
	for k := range g.importers {
		g.importers[k] = dedupeSorted(g.importers[k])
	}

	return g, nil
}

// Importers implements ImportProvider.
func (g *ImportGraph) Importers(_ context.Context, file string) ([]string, error) {
	return g.importers[path.Clean(filepath.ToSlash(file))], nil
}

// Imports implements ImportProvider.
func (g *ImportGraph) Imports(_ context.Context, file string) ([]string, error) {
	return g.imports[path.Clean(filepath.ToSlash(file))], nil
}

// Len returns the number of scanned source files.
func (g *ImportGraph) Len() int {
	return len(g.files)
}

func goModulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

func discover(root string) ([]string, error) {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		gi = nil
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if rel, err := filepath.Rel(root, p); err == nil && gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(name)
		if ext != ".go" && ext != ".py" {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

// importCollector appends the raw import strings found at node.
type importCollector func(node *sitter.Node, src []byte, out *[]string)

func parseImports(ctx context.Context, p *sitter.Parser, src []byte, collect importCollector) []string {
	if len(src) == 0 {
		return nil
	}
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil
	}
	defer tree.Close()

	var out []string
	walk(tree.RootNode(), func(n *sitter.Node) {
		collect(n, src, &out)
	})
	return out
}

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

func goImportNodes(n *sitter.Node, src []byte, out *[]string) {
	if n.Type() != "import_spec" {
		return
	}
	p := n.ChildByFieldName("path")
	if p == nil {
		return
	}
	*out = append(*out, strings.Trim(p.Content(src), "\"`"))
}

func pythonImportNodes(n *sitter.Node, src []byte, out *[]string) {
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "aliased_import" {
				c = c.ChildByFieldName("name")
			}
			if c != nil && c.Type() == "dotted_name" {
				*out = append(*out, c.Content(src))
			}
		}
	case "import_from_statement":
		if m := n.ChildByFieldName("module_name"); m != nil {
			*out = append(*out, m.Content(src))
		}
	}
}

// resolveGo maps in-module import paths to the non-test files of the
// imported package.
func (g *ImportGraph) resolveGo(imports []string) []string {
	if g.modulePath == "" {
		return nil
	}
	var out []string
	for _, imp := range imports {
		if imp != g.modulePath && !strings.HasPrefix(imp, g.modulePath+"/") {
			continue
		}
		dir := strings.TrimPrefix(strings.TrimPrefix(imp, g.modulePath), "/")
		if dir == "" {
			dir = "."
		}
		for f := range g.files {
			if path.Dir(f) == dir && strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go") {
				out = append(out, f)
			}
		}
	}
	return out
}

// resolvePython maps dotted and relative module names to files.
func (g *ImportGraph) resolvePython(from string, imports []string) []string {
	var out []string
	for _, imp := range imports {
		base := ""
		if strings.HasPrefix(imp, ".") {
			dots := len(imp) - len(strings.TrimLeft(imp, "."))
			base = path.Dir(from)
			for i := 1; i < dots; i++ {
				base = path.Dir(base)
			}
			imp = imp[dots:]
		}
		rel := strings.ReplaceAll(imp, ".", "/")
		candidates := []string{
			path.Join(base, rel+".py"),
			path.Join(base, rel, "__init__.py"),
		}
		for _, c := range candidates {
			if _, ok := g.files[c]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
