package impact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/model"
)

// AuditRecorder persists gate audit records.
type AuditRecorder interface {
	Record(ctx context.Context, log model.GateAuditLog) error
}

// Service is the shared entry point of the CLI, HTTP and MCP surfaces.
type Service struct {
	analyzer *Analyzer
	registry *Registry
	audit    AuditRecorder
	trigger  *Trigger
	logger   *slog.Logger
}

// NewService creates a Service. audit may be nil, in which case audit
// records are only logged.
func NewService(analyzer *Analyzer, registry *Registry, audit AuditRecorder, logger *slog.Logger) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		analyzer: analyzer,
		registry: registry,
		audit:    audit,
		trigger:  NewTrigger(analyzer.Vocabulary()),
		logger:   logger,
	}
}

// Gate returns the gate controller, for callers that drive transitions
// themselves and persist the resulting audit records.
func (s *Service) Gate() *gate.Controller {
	return s.analyzer.Gate()
}

// OnStatusChange registers a gate status hook.
func (s *Service) OnStatusChange(h gate.Hook) {
	s.analyzer.Gate().OnStatusChange(h)
}

// ShouldAnalyze applies the lifecycle trigger heuristics.
func (s *Service) ShouldAnalyze(in TriggerInput) TriggerDecision {
	return s.trigger.ShouldAnalyze(in)
}

// Analyze runs the pipeline and stores the result.
func (s *Service) Analyze(ctx context.Context, input model.ChangeInput) (*model.ImpactAnalysis, error) {
	a, err := s.analyzer.Analyze(ctx, input)
	if err != nil {
		return nil, err
	}
	s.registry.Put(a)
	return a, nil
}

// Get returns a stored analysis.
func (s *Service) Get(id string) (*model.ImpactAnalysis, error) {
	return s.registry.Get(id)
}

// List returns every stored analysis, newest first.
func (s *Service) List() []model.ImpactAnalysis {
	return s.registry.List()
}

// Approve approves specific blockers of an analysis.
func (s *Service) Approve(ctx context.Context, id string, req gate.ApprovalRequest) (*model.ImpactAnalysis, error) {
	var prev model.GateStatus
	a, err := s.registry.Update(id, func(a *model.ImpactAnalysis) error {
		prev = a.Gate.Status
		g, err := s.analyzer.Gate().Approve(req, a.Gate)
		if err != nil {
			return err
		}
		log := s.analyzer.Gate().AuditLog(id, model.AuditApprove, req.Approver, req.Reason, req.BlockerIDs, prev, g.Status)
		if err := s.record(ctx, log); err != nil {
			return err
		}
		a.Gate = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, prev)
	return a, nil
}

// Override force-clears every blocker of an analysis.
func (s *Service) Override(ctx context.Context, id string, req gate.OverrideRequest) (*model.ImpactAnalysis, model.GateAuditLog, error) {
	var prev model.GateStatus
	var log model.GateAuditLog
	req.AnalysisID = id
	a, err := s.registry.Update(id, func(a *model.ImpactAnalysis) error {
		prev = a.Gate.Status
		g, l, err := s.analyzer.Gate().ForceOverride(req, a.Gate)
		if err != nil {
			return err
		}
		if err := s.record(ctx, l); err != nil {
			return err
		}
		a.Gate, log = g, l
		return nil
	})
	if err != nil {
		return nil, model.GateAuditLog{}, err
	}
	s.notify(ctx, a, prev)
	return a, log, nil
}

// Revoke drops the approval of an analysis and re-derives its gate.
func (s *Service) Revoke(ctx context.Context, id, approver, reason string) (*model.ImpactAnalysis, error) {
	var prev model.GateStatus
	a, err := s.registry.Update(id, func(a *model.ImpactAnalysis) error {
		prev = a.Gate.Status
		var revoked []string
		if a.Gate.Approval != nil {
			revoked = a.Gate.Approval.ApprovedBlockers
		}
		g := s.analyzer.Gate().RevokeApproval(a.Risks, a.Validations, a.Gate)
		log := s.analyzer.Gate().AuditLog(id, model.AuditRevokeApproval, approver, reason, revoked, prev, g.Status)
		if err := s.record(ctx, log); err != nil {
			return err
		}
		a.Gate = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, prev)
	return a, nil
}

// UpdateValidation records the outcome of one validation item.
func (s *Service) UpdateValidation(ctx context.Context, id, validationID string, status model.ValidationStatus, result string) (*model.ImpactAnalysis, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown validation status %q", gate.ErrInvalidRequest, status)
	}
	var prev model.GateStatus
	a, err := s.registry.Update(id, func(a *model.ImpactAnalysis) error {
		prev = a.Gate.Status
		updated := model.ValidationItem{ID: validationID}
		for _, v := range a.Validations {
			if v.ID == validationID {
				updated = v
				break
			}
		}
		updated.Status = status
		updated.Result = result

		g, vals, err := s.analyzer.Gate().ReEvaluateAfterValidation(updated, a.Risks, a.Validations, a.Gate)
		if err != nil {
			return err
		}
		a.Gate, a.Validations = g, vals
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, prev)
	return a, nil
}

// MitigateRisk marks one risk mitigated.
func (s *Service) MitigateRisk(ctx context.Context, id, riskID string) (*model.ImpactAnalysis, error) {
	var prev model.GateStatus
	a, err := s.registry.Update(id, func(a *model.ImpactAnalysis) error {
		prev = a.Gate.Status
		g, risks, err := s.analyzer.Gate().ReEvaluateAfterRiskMitigation(riskID, a.Risks, a.Validations, a.Gate)
		if err != nil {
			return err
		}
		a.Gate, a.Risks = g, risks
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, prev)
	return a, nil
}

func (s *Service) record(ctx context.Context, log model.GateAuditLog) error {
	s.logger.Info("gate audit",
		slog.String("id", log.ID),
		slog.String("analysis_id", log.AnalysisID),
		slog.String("action", log.Action),
		slog.String("approver", log.Approver),
		slog.Int("blockers", len(log.BlockersBypassed)),
	)
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, log); err != nil {
		return fmt.Errorf("impact: persist audit: %w", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, a *model.ImpactAnalysis, prev model.GateStatus) {
	s.analyzer.Gate().NotifyStatusChange(ctx, gate.StatusChange{
		AnalysisID: a.ID,
		Previous:   prev,
		Current:    a.Gate.Status,
		Gate:       a.Gate,
	})
}
