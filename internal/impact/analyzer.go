// Package impact runs the full analysis pipeline and manages the lifecycle
// of the resulting analyses.
package impact

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/impactgate/internal/config"
	"github.com/sprite-ai/impactgate/internal/dataflow"
	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/graph"
	"github.com/sprite-ai/impactgate/internal/model"
	"github.com/sprite-ai/impactgate/internal/parser"
	"github.com/sprite-ai/impactgate/internal/risk"
	"github.com/sprite-ai/impactgate/internal/scope"
	"github.com/sprite-ai/impactgate/internal/validation"
)

// Analyzer wires the pipeline stages together:
//
//	ChangeInput -> parse -> scope -> data flows -> risks -> validations -> gate
type Analyzer struct {
	parser    *parser.Parser
	detector  *scope.Detector
	flows     *dataflow.Analyzer
	assessor  *risk.Assessor
	generator *validation.Generator
	gate      *gate.Controller
	providers graph.Providers
	vocab     risk.Vocabulary
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyzer builds an Analyzer from cfg. Custom rules named by
// cfg.Risk.RulesFile are appended to the baseline rules.
func NewAnalyzer(cfg config.Config, providers graph.Providers, logger *slog.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	assessor := risk.NewDefault(cfg.Risk.Vocabulary, logger)
	for _, id := range cfg.Risk.DisabledRules {
		if !assessor.RemoveRule(id) {
			logger.Warn("disabled rule does not exist", slog.String("rule", id))
		}
	}
	if cfg.Risk.RulesFile != "" {
		rules, err := risk.LoadRules(cfg.Risk.RulesFile)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			if err := assessor.AddRule(r); err != nil {
				return nil, fmt.Errorf("impact: custom rule: %w", err)
			}
		}
	}

	return &Analyzer{
		parser:    parser.New(logger, parser.WithStopWords(cfg.Parser.StopWords...), parser.WithEntityExclusions(cfg.Parser.EntityExclusions...)),
		detector:  scope.New(cfg.Scope, providers, logger),
		flows:     dataflow.New(),
		assessor:  assessor,
		generator: validation.New(cfg.Validation),
		gate:      gate.New(cfg.Gate, gate.WithLogger(logger)),
		providers: providers,
		vocab:     cfg.Risk.Vocabulary.WithDefaults(),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Gate returns the controller shared by every analysis.
func (a *Analyzer) Gate() *gate.Controller {
	return a.gate
}

// Assessor returns the risk engine, for adding rules at runtime.
func (a *Analyzer) Assessor() *risk.Assessor {
	return a.assessor
}

// Vocabulary returns the term lists the risk rules were built from.
func (a *Analyzer) Vocabulary() risk.Vocabulary {
	return a.vocab
}

// Parser returns the change parser.
func (a *Analyzer) Parser() *parser.Parser {
	return a.parser
}

// Analyze runs the pipeline once. It fails only when ctx is done.
func (a *Analyzer) Analyze(ctx context.Context, input model.ChangeInput) (*model.ImpactAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := a.now()

	parsed := a.parser.Parse(input)
	sc := a.detector.Detect(ctx, input, parsed)
	raw := a.collectFlows(ctx, sc)
	flows := a.flows.AnalyzeForImpact(raw, sc, parsed)
	risks := a.assessor.Assess(input, parsed, sc, flows)
	validations := a.generator.Generate(sc, flows, risks)
	g := a.gate.Evaluate(risks, validations, nil)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	an := &model.ImpactAnalysis{
		ID:          uuid.NewString(),
		CreatedAt:   start,
		Input:       input,
		Parsed:      parsed,
		Scope:       *sc,
		DataFlows:   flows,
		Risks:       risks,
		Validations: validations,
		Gate:        g,
	}
	a.logger.Info("change analyzed",
		slog.String("id", an.ID),
		slog.String("change_type", string(parsed.ChangeType)),
		slog.Int("modules", len(sc.PrimaryModules)+len(sc.DependentModules)),
		slog.Int("risks", len(risks)),
		slog.Int("validations", len(validations)),
		slog.String("gate", string(g.Status)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return an, nil
}

// collectFlows gathers raw flows for every affected entity and module,
// deduplicated by id.
func (a *Analyzer) collectFlows(ctx context.Context, sc *model.ChangeScope) []model.DataFlow {
	dp := a.providers.DataFlows
	if dp == nil {
		return nil
	}

	var out []model.DataFlow
	seen := make(map[string]bool)
	add := func(flows []model.DataFlow) {
		for _, f := range flows {
			key := f.ID
			if key == "" {
				key = f.From + "->" + f.To + ":" + strings.Join(f.Entities, ",")
			}
			if !seen[key] {
				seen[key] = true
				out = append(out, f)
			}
		}
	}

	for _, e := range sc.AffectedEntities {
		flows, err := dp.FlowsForEntity(ctx, e)
		if err != nil {
			a.logger.Warn("flow lookup failed", slog.String("entity", e), slog.Any("error", err))
			continue
		}
		add(flows)
	}
	modules := slices.Concat(sc.PrimaryModules, sc.DependentIDs())
	for _, m := range modules {
		flows, err := dp.FlowsForModule(ctx, m)
		if err != nil {
			a.logger.Warn("flow lookup failed", slog.String("module", m), slog.Any("error", err))
			continue
		}
		add(flows)
	}
	return out
}
