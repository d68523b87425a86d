// Package gate folds risks and validations into the implementation gate and
// runs the approval and override workflow around it.
package gate

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sprite-ai/impactgate/internal/model"
)

// MinValidationsBlockerID is the item id of the synthetic blocker raised
// when too few validations have passed.
const MinValidationsBlockerID = "min-validations"

// BypassedPrefix marks warnings produced by a force override.
const BypassedPrefix = "BYPASSED: "

// Criteria configures which items block the gate.
type Criteria struct {
	BlockingSeverities        []model.Severity `yaml:"blocking_severities" validate:"dive,oneof=critical high medium low"`
	BlockOnFailedValidations  bool             `yaml:"block_on_failed_validations"`
	BlockOnPendingValidations bool             `yaml:"block_on_pending_validations"`
	MinPassedValidations      int              `yaml:"min_passed_validations" validate:"gte=0"`
}

// DefaultCriteria returns the default blocking criteria.
func DefaultCriteria() Criteria {
	return Criteria{
		BlockingSeverities:        []model.Severity{model.SeverityCritical, model.SeverityHigh},
		BlockOnFailedValidations:  true,
		BlockOnPendingValidations: true,
	}
}

func (c Criteria) blocks(s model.Severity) bool {
	for _, b := range c.BlockingSeverities {
		if b == s {
			return true
		}
	}
	return false
}

// ApprovalRequest approves specific blockers.
type ApprovalRequest struct {
	Approver   string   `json:"approver" validate:"required"`
	Reason     string   `json:"reason" validate:"required"`
	BlockerIDs []string `json:"blocker_ids" validate:"required,min=1,dive,required"`
}

// OverrideRequest bypasses every blocker at once.
type OverrideRequest struct {
	AnalysisID string `json:"analysis_id,omitempty"`
	Approver   string `json:"approver" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller evaluates gates. Evaluation holds no per-analysis state, so a
// single Controller serves every analysis.
type Controller struct {
	criteria Criteria
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate

	mu    sync.RWMutex
	hooks []Hook
}

// New creates a Controller.
func New(criteria Criteria, opts ...Option) *Controller {
	c := &Controller{
		criteria: criteria,
		logger:   slog.Default(),
		now:      time.Now,
		validate: validator.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Criteria returns the controller's criteria.
func (c *Controller) Criteria() Criteria {
	return c.criteria
}

// Evaluate recomputes the gate from scratch. Mitigated risks are ignored and
// blockers covered by approval are dropped before the status is folded.
// Blockers dropped because a force override bypassed them stay visible as
// BYPASSED warnings.
func (c *Controller) Evaluate(risks []model.IdentifiedRisk, validations []model.ValidationItem, approval *model.GateApproval) model.ImplementationGate {
	var blockers []model.Blocker
	warnings := []model.Warning{}

	for _, r := range risks {
		if r.MitigationApplied {
			continue
		}
		if r.IsBlocking && c.criteria.blocks(r.Severity) {
			blockers = append(blockers, model.Blocker{
				ItemID:   r.ID,
				Type:     model.BlockerRisk,
				Title:    r.Name,
				Reason:   r.Description,
				Severity: r.Severity,
			})
			continue
		}
		warnings = append(warnings, model.Warning{
			ItemID:  r.ID,
			Type:    model.BlockerRisk,
			Message: fmt.Sprintf("[%s] %s", r.Severity, r.Name),
		})
	}

	passed := 0
	for _, v := range validations {
		var block bool
		switch v.Status {
		case model.StatusPassed:
			passed++
			continue
		case model.StatusFailed:
			block = v.IsBlocking && c.criteria.BlockOnFailedValidations
		case model.StatusPending, model.StatusRunning:
			block = v.IsBlocking && c.criteria.BlockOnPendingValidations
		}
		if block {
			blockers = append(blockers, model.Blocker{
				ItemID: v.ID,
				Type:   model.BlockerValidation,
				Title:  v.Title,
				Reason: "validation " + string(v.Status),
			})
			continue
		}
		warnings = append(warnings, model.Warning{
			ItemID:  v.ID,
			Type:    model.BlockerValidation,
			Message: fmt.Sprintf("%s (%s)", v.Title, v.Status),
		})
	}

	if n := c.criteria.MinPassedValidations; n > 0 && passed < n {
		blockers = append(blockers, model.Blocker{
			ItemID: MinValidationsBlockerID,
			Type:   model.BlockerCriteria,
			Title:  "Minimum passed validations",
			Reason: fmt.Sprintf("%d of %d required validations passed", passed, n),
		})
	}

	kept, bypassed := withoutApproved(blockers, approval)
	g := model.ImplementationGate{
		Blockers:    kept,
		Warnings:    append(warnings, bypassed...),
		Approval:    cloneApproval(approval),
		EvaluatedAt: c.now(),
	}
	g.Status = fold(g.Blockers, g.Warnings)
	evaluationsTotal.WithLabelValues(string(g.Status)).Inc()
	return g
}

// Approve removes the named blockers from current and records the approval,
// merged with any earlier one. Unapproved blockers stay in place.
func (c *Controller) Approve(req ApprovalRequest, current model.ImplementationGate) (model.ImplementationGate, error) {
	if err := c.validate.Struct(req); err != nil {
		return current, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	present := make(map[string]bool, len(current.Blockers))
	for _, b := range current.Blockers {
		present[b.ItemID] = true
	}
	var unknown []string
	for _, id := range req.BlockerIDs {
		if !present[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return current, &InvalidBlockerError{IDs: unknown}
	}

	approval := c.mergeApproval(current.Approval, req.Approver, req.Reason, req.BlockerIDs, nil)
	remaining, _ := withoutApproved(current.Blockers, approval)
	g := model.ImplementationGate{
		Blockers:    remaining,
		Warnings:    append([]model.Warning{}, current.Warnings...),
		Approval:    approval,
		EvaluatedAt: c.now(),
	}
	g.Status = fold(g.Blockers, g.Warnings)

	approvalsTotal.Inc()
	c.logger.Info("gate blockers approved",
		slog.String("approver", req.Approver),
		slog.Int("approved", len(req.BlockerIDs)),
		slog.Int("remaining", len(g.Blockers)),
		slog.String("status", string(g.Status)),
	)
	return g, nil
}

// ForceOverride approves every blocker of current and forces the gate clear.
// Bypassed blockers remain visible as BYPASSED warnings. The returned audit
// log must be persisted by the caller.
func (c *Controller) ForceOverride(req OverrideRequest, current model.ImplementationGate) (model.ImplementationGate, model.GateAuditLog, error) {
	if err := c.validate.Struct(req); err != nil {
		return current, model.GateAuditLog{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ids := make([]string, 0, len(current.Blockers))
	warnings := append([]model.Warning{}, current.Warnings...)
	for _, b := range current.Blockers {
		ids = append(ids, b.ItemID)
		warnings = append(warnings, bypassedWarning(b))
	}

	g := model.ImplementationGate{
		Status:      model.GateClear,
		Blockers:    []model.Blocker{},
		Warnings:    warnings,
		Approval:    c.mergeApproval(current.Approval, req.Approver, req.Reason, ids, ids),
		EvaluatedAt: c.now(),
	}
	log := c.AuditLog(req.AnalysisID, model.AuditForceOverride, req.Approver, req.Reason, ids, current.Status, g.Status)

	overridesTotal.Inc()
	c.logger.Warn("gate force override",
		slog.String("approver", req.Approver),
		slog.String("reason", req.Reason),
		slog.Int("bypassed", len(ids)),
		slog.String("previous_status", string(current.Status)),
	)
	return g, log, nil
}

// RevokeApproval re-derives the gate without any approval.
func (c *Controller) RevokeApproval(risks []model.IdentifiedRisk, validations []model.ValidationItem, current model.ImplementationGate) model.ImplementationGate {
	g := c.Evaluate(risks, validations, nil)
	c.logger.Info("gate approval revoked",
		slog.String("previous_status", string(current.Status)),
		slog.String("status", string(g.Status)),
	)
	return g
}

// ReEvaluateAfterValidation replaces the validation with updated's id and
// re-evaluates, carrying the current approval forward.
func (c *Controller) ReEvaluateAfterValidation(updated model.ValidationItem, risks []model.IdentifiedRisk, validations []model.ValidationItem, current model.ImplementationGate) (model.ImplementationGate, []model.ValidationItem, error) {
	out := append([]model.ValidationItem(nil), validations...)
	for i := range out {
		if out[i].ID == updated.ID {
			out[i] = updated
			return c.Evaluate(risks, out, current.Approval), out, nil
		}
	}
	return current, validations, fmt.Errorf("%w: validation %s", ErrItemNotFound, updated.ID)
}

// ReEvaluateAfterRiskMitigation marks one risk mitigated and re-evaluates,
// carrying the current approval forward.
func (c *Controller) ReEvaluateAfterRiskMitigation(riskID string, risks []model.IdentifiedRisk, validations []model.ValidationItem, current model.ImplementationGate) (model.ImplementationGate, []model.IdentifiedRisk, error) {
	out := append([]model.IdentifiedRisk(nil), risks...)
	for i := range out {
		if out[i].ID == riskID {
			out[i].MitigationApplied = true
			return c.Evaluate(out, validations, current.Approval), out, nil
		}
	}
	return current, risks, fmt.Errorf("%w: risk %s", ErrItemNotFound, riskID)
}

// AuditLog builds an audit record stamped with the controller's clock.
func (c *Controller) AuditLog(analysisID, action, approver, reason string, blockers []string, prev, next model.GateStatus) model.GateAuditLog {
	if blockers == nil {
		blockers = []string{}
	}
	return model.GateAuditLog{
		ID:               uuid.NewString(),
		AnalysisID:       analysisID,
		Action:           action,
		Approver:         approver,
		Reason:           reason,
		BlockersBypassed: blockers,
		PreviousStatus:   prev,
		NewStatus:        next,
		Timestamp:        c.now(),
	}
}

func (c *Controller) mergeApproval(prev *model.GateApproval, approver, reason string, ids, bypassed []string) *model.GateApproval {
	a := &model.GateApproval{
		Approver:   approver,
		ApprovedAt: c.now(),
		Reason:     reason,
	}
	if prev != nil {
		a.ApprovedBlockers = appendNew(a.ApprovedBlockers, prev.ApprovedBlockers...)
		a.Bypassed = appendNew(a.Bypassed, prev.Bypassed...)
	}
	a.ApprovedBlockers = appendNew(a.ApprovedBlockers, ids...)
	a.Bypassed = appendNew(a.Bypassed, bypassed...)
	return a
}

// appendNew appends the ids not already in list.
func appendNew(list []string, ids ...string) []string {
	for _, id := range ids {
		if !slices.Contains(list, id) {
			list = append(list, id)
		}
	}
	return list
}

// withoutApproved drops the blockers covered by approval and returns a
// BYPASSED warning for each dropped blocker a force override cleared.
func withoutApproved(blockers []model.Blocker, approval *model.GateApproval) ([]model.Blocker, []model.Warning) {
	out := make([]model.Blocker, 0, len(blockers))
	var bypassed []model.Warning
	for _, b := range blockers {
		switch {
		case !approval.Approves(b.ItemID):
			out = append(out, b)
		case approval.Bypasses(b.ItemID):
			bypassed = append(bypassed, bypassedWarning(b))
		}
	}
	return out, bypassed
}

func bypassedWarning(b model.Blocker) model.Warning {
	return model.Warning{
		ItemID:  b.ItemID,
		Type:    b.Type,
		Message: BypassedPrefix + b.Title,
	}
}

func cloneApproval(a *model.GateApproval) *model.GateApproval {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ApprovedBlockers = append([]string(nil), a.ApprovedBlockers...)
	cp.Bypassed = slices.Clone(a.Bypassed)
	return &cp
}

// fold derives the status from what remains.
func fold(blockers []model.Blocker, warnings []model.Warning) model.GateStatus {
	switch {
	case len(blockers) > 0:
		return model.GateBlocked
	case len(warnings) > 0:
		return model.GateWarning
	default:
		return model.GateClear
	}
}
