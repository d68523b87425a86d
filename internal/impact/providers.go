package impact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sprite-ai/impactgate/internal/config"
	"github.com/sprite-ai/impactgate/internal/graph"
)

// LoadProviders builds the knowledge-graph providers named by cfg. With
// neither a graph file nor a repository the result is empty and scope
// detection falls back to explicit targets.
func LoadProviders(ctx context.Context, cfg config.GraphConfig, logger *slog.Logger) (graph.Providers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var p graph.Providers

	if cfg.File != "" {
		g, err := graph.LoadFile(cfg.File)
		if err != nil {
			return p, err
		}
		p = g.Providers()
		if cfg.CacheSize > 0 {
			cached, err := graph.NewCachedModules(g, cfg.CacheSize)
			if err != nil {
				return p, fmt.Errorf("impact: module cache: %w", err)
			}
			p.Modules = cached
		}
		logger.Debug("knowledge graph loaded", slog.String("file", cfg.File))
	}

	if cfg.Repo != "" {
		ig, err := graph.ScanImports(ctx, cfg.Repo)
		if err != nil {
			return p, err
		}
		p.Imports = ig
		logger.Debug("imports scanned", slog.String("repo", cfg.Repo), slog.Int("files", ig.Len()))
	}
	return p, nil
}
