package graph

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of entries each cache keeps.
const DefaultCacheSize = 1024

// CachedModules wraps a ModuleProvider and memoizes link and file lookups,
// the two calls the scope walk repeats most. Errors are never cached.
type CachedModules struct {
	ModuleProvider
	links *lru.Cache[string, []ModuleLink]
	files *lru.Cache[string, *Module]
}

// NewCachedModules returns a caching decorator over p. A size of zero or
// less uses DefaultCacheSize.
func NewCachedModules(p ModuleProvider, size int) (*CachedModules, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	links, err := lru.New[string, []ModuleLink](size)
	if err != nil {
		return nil, fmt.Errorf("graph: link cache: %w", err)
	}
	files, err := lru.New[string, *Module](size)
	if err != nil {
		return nil, fmt.Errorf("graph: file cache: %w", err)
	}
	return &CachedModules{ModuleProvider: p, links: links, files: files}, nil
}

// Links implements ModuleProvider.
func (c *CachedModules) Links(ctx context.Context, moduleID string, dir Direction) ([]ModuleLink, error) {
	key := dir.String() + "|" + moduleID
	if v, ok := c.links.Get(key); ok {
		return v, nil
	}
	v, err := c.ModuleProvider.Links(ctx, moduleID, dir)
	if err != nil {
		return nil, err
	}
	c.links.Add(key, v)
	return v, nil
}

// ModuleForFile implements ModuleProvider.
func (c *CachedModules) ModuleForFile(ctx context.Context, file string) (*Module, error) {
	if v, ok := c.files.Get(file); ok {
		return v, nil
	}
	v, err := c.ModuleProvider.ModuleForFile(ctx, file)
	if err != nil {
		return nil, err
	}
	c.files.Add(file, v)
	return v, nil
}
