package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/impactgate/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newController(c Criteria) *Controller {
	return New(c, WithClock(func() time.Time { return fixedNow }))
}

func risk(id string, sev model.Severity, blocking bool) model.IdentifiedRisk {
	return model.IdentifiedRisk{ID: id, RuleID: id, Name: "Risk " + id, Severity: sev, IsBlocking: blocking}
}

func item(id string, status model.ValidationStatus, blocking bool) model.ValidationItem {
	return model.ValidationItem{ID: id, Title: "Check " + id, Status: status, IsBlocking: blocking}
}

func blockerIDs(g model.ImplementationGate) []string {
	ids := []string{}
	for _, b := range g.Blockers {
		ids = append(ids, b.ItemID)
	}
	return ids
}

// assertInvariant checks that the status is a pure fold of what remains.
func assertInvariant(t *testing.T, g model.ImplementationGate) {
	t.Helper()
	switch {
	case len(g.Blockers) > 0:
		assert.Equal(t, model.GateBlocked, g.Status)
	case len(g.Warnings) > 0:
		assert.Equal(t, model.GateWarning, g.Status)
	default:
		assert.Equal(t, model.GateClear, g.Status)
	}
}

func TestEvaluateCriticalRiskBlocks(t *testing.T) {
	g := newController(DefaultCriteria()).Evaluate([]model.IdentifiedRisk{risk("r1", model.SeverityCritical, true)}, nil, nil)

	assert.Equal(t, model.GateBlocked, g.Status)
	require.Len(t, g.Blockers, 1)
	assert.Equal(t, model.BlockerRisk, g.Blockers[0].Type)
	assert.Equal(t, fixedNow, g.EvaluatedAt)
}

func TestEvaluateMediumRiskWarns(t *testing.T) {
	g := newController(DefaultCriteria()).Evaluate([]model.IdentifiedRisk{risk("r1", model.SeverityMedium, false)}, nil, nil)

	assert.Equal(t, model.GateWarning, g.Status)
	assert.Empty(t, g.Blockers)
	require.Len(t, g.Warnings, 1)
}

func TestEvaluateRiskNeedsSeverityAndFlag(t *testing.T) {
	c := newController(DefaultCriteria())

	g := c.Evaluate([]model.IdentifiedRisk{risk("r1", model.SeverityHigh, false)}, nil, nil)
	assert.Equal(t, model.GateWarning, g.Status, "non-blocking high risk")

	g = c.Evaluate([]model.IdentifiedRisk{risk("r1", model.SeverityMedium, true)}, nil, nil)
	assert.Equal(t, model.GateWarning, g.Status, "blocking medium risk below the severity set")
}

func TestEvaluateValidations(t *testing.T) {
	tests := []struct {
		name     string
		criteria func(*Criteria)
		item     model.ValidationItem
		want     model.GateStatus
	}{
		{"failed blocking", nil, item("v", model.StatusFailed, true), model.GateBlocked},
		{"pending blocking", nil, item("v", model.StatusPending, true), model.GateBlocked},
		{"running blocking", nil, item("v", model.StatusRunning, true), model.GateBlocked},
		{"skipped blocking only warns", nil, item("v", model.StatusSkipped, true), model.GateWarning},
		{"failed non-blocking", nil, item("v", model.StatusFailed, false), model.GateWarning},
		{"passed", nil, item("v", model.StatusPassed, true), model.GateClear},
		{"pending with pending blocking off", func(c *Criteria) { c.BlockOnPendingValidations = false }, item("v", model.StatusPending, true), model.GateWarning},
		{"failed with failed blocking off", func(c *Criteria) { c.BlockOnFailedValidations = false }, item("v", model.StatusFailed, true), model.GateWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := DefaultCriteria()
			if tt.criteria != nil {
				tt.criteria(&cr)
			}
			g := newController(cr).Evaluate(nil, []model.ValidationItem{tt.item}, nil)
			assert.Equal(t, tt.want, g.Status)
			assertInvariant(t, g)
		})
	}
}

func TestEvaluateMinPassedValidations(t *testing.T) {
	cr := DefaultCriteria()
	cr.MinPassedValidations = 2
	c := newController(cr)

	g := c.Evaluate(nil, []model.ValidationItem{item("a", model.StatusPassed, false)}, nil)
	require.Equal(t, []string{MinValidationsBlockerID}, blockerIDs(g))
	assert.Equal(t, model.BlockerCriteria, g.Blockers[0].Type)

	g = c.Evaluate(nil, []model.ValidationItem{item("a", model.StatusPassed, false), item("b", model.StatusPassed, false)}, nil)
	assert.Equal(t, model.GateClear, g.Status)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	c := New(DefaultCriteria())
	risks := []model.IdentifiedRisk{risk("a", model.SeverityHigh, true), risk("b", model.SeverityLow, false)}
	vals := []model.ValidationItem{item("v1", model.StatusPending, true), item("v2", model.StatusSkipped, false)}
	approval := &model.GateApproval{Approver: "kim", ApprovedBlockers: []string{"a"}}

	g1 := c.Evaluate(risks, vals, approval)
	g2 := c.Evaluate(risks, vals, approval)
	assert.Equal(t, g1.Status, g2.Status)
	assert.Equal(t, g1.Blockers, g2.Blockers)
	assert.Equal(t, g1.Warnings, g2.Warnings)
}

func TestMitigatedRisksDisappear(t *testing.T) {
	c := newController(DefaultCriteria())
	blocking := risk("a", model.SeverityCritical, true)
	blocking.MitigationApplied = true
	warning := risk("b", model.SeverityLow, false)
	warning.MitigationApplied = true

	g := c.Evaluate([]model.IdentifiedRisk{blocking, warning}, nil, nil)
	assert.Equal(t, model.GateClear, g.Status)
	assert.Empty(t, g.Blockers)
	assert.Empty(t, g.Warnings)
}

func TestInvariantAcrossCombinations(t *testing.T) {
	c := newController(DefaultCriteria())
	severities := []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow}
	statuses := []model.ValidationStatus{model.StatusPending, model.StatusRunning, model.StatusPassed, model.StatusFailed, model.StatusSkipped}

	for _, sev := range severities {
		for _, st := range statuses {
			for _, blocking := range []bool{true, false} {
				for _, mitigated := range []bool{true, false} {
					r := risk("r", sev, blocking)
					r.MitigationApplied = mitigated
					g := c.Evaluate([]model.IdentifiedRisk{r}, []model.ValidationItem{item("v", st, blocking)}, nil)
					assertInvariant(t, g)
				}
			}
		}
	}
}

func TestApprovePartial(t *testing.T) {
	c := newController(DefaultCriteria())
	risks := []model.IdentifiedRisk{risk("a", model.SeverityCritical, true), risk("b", model.SeverityHigh, true)}
	current := c.Evaluate(risks, nil, nil)
	before := testutil.ToFloat64(approvalsTotal)

	g, err := c.Approve(ApprovalRequest{Approver: "kim", Reason: "reviewed", BlockerIDs: []string{"a"}}, current)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, blockerIDs(g))
	assert.Equal(t, model.GateBlocked, g.Status)
	require.NotNil(t, g.Approval)
	assert.Equal(t, []string{"a"}, g.Approval.ApprovedBlockers)
	assert.Equal(t, before+1, testutil.ToFloat64(approvalsTotal))

	g, err = c.Approve(ApprovalRequest{Approver: "lee", Reason: "accepted", BlockerIDs: []string{"b"}}, g)
	require.NoError(t, err)
	assert.Equal(t, model.GateClear, g.Status)
	assert.Equal(t, []string{"a", "b"}, g.Approval.ApprovedBlockers)
	assert.Equal(t, "lee", g.Approval.Approver)
}

func TestApprovalMonotonicity(t *testing.T) {
	c := newController(DefaultCriteria())
	risks := []model.IdentifiedRisk{
		risk("a", model.SeverityCritical, true),
		risk("b", model.SeverityHigh, true),
		risk("c", model.SeverityHigh, true),
	}
	g := c.Evaluate(risks, nil, nil)

	g, err := c.Approve(ApprovalRequest{Approver: "kim", Reason: "r", BlockerIDs: []string{"a"}}, g)
	require.NoError(t, err)
	g, err = c.Approve(ApprovalRequest{Approver: "kim", Reason: "r", BlockerIDs: []string{"b"}}, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, blockerIDs(g))

	// A full re-evaluation with the carried approval keeps both approvals.
	again := c.Evaluate(risks, nil, g.Approval)
	assert.Equal(t, []string{"c"}, blockerIDs(again))
}

func TestApproveRejectsUnknownBlockers(t *testing.T) {
	c := newController(DefaultCriteria())
	current := c.Evaluate([]model.IdentifiedRisk{risk("a", model.SeverityCritical, true)}, nil, nil)

	_, err := c.Approve(ApprovalRequest{Approver: "kim", Reason: "r", BlockerIDs: []string{"a", "ghost", "phantom"}}, current)
	var ibe *InvalidBlockerError
	require.True(t, errors.As(err, &ibe))
	assert.Equal(t, []string{"ghost", "phantom"}, ibe.IDs)
	assert.Contains(t, err.Error(), "ghost, phantom")
}

func TestApproveValidatesRequest(t *testing.T) {
	c := newController(DefaultCriteria())
	current := c.Evaluate([]model.IdentifiedRisk{risk("a", model.SeverityCritical, true)}, nil, nil)

	for name, req := range map[string]ApprovalRequest{
		"no approver": {Reason: "r", BlockerIDs: []string{"a"}},
		"no reason":   {Approver: "kim", BlockerIDs: []string{"a"}},
		"no blockers": {Approver: "kim", Reason: "r"},
		"blank id":    {Approver: "kim", Reason: "r", BlockerIDs: []string{""}},
	} {
		_, err := c.Approve(req, current)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}
}

func TestForceOverride(t *testing.T) {
	c := newController(DefaultCriteria())
	current := c.Evaluate(
		[]model.IdentifiedRisk{risk("a", model.SeverityCritical, true), risk("m", model.SeverityMedium, false)},
		[]model.ValidationItem{item("v", model.StatusPending, true)},
		nil,
	)
	require.Len(t, current.Blockers, 2)

	g, log, err := c.ForceOverride(OverrideRequest{AnalysisID: "an-1", Approver: "kim", Reason: "hotfix"}, current)
	require.NoError(t, err)

	assert.Equal(t, model.GateClear, g.Status)
	assert.Empty(t, g.Blockers)
	bypassed := 0
	for _, w := range g.Warnings {
		if strings.HasPrefix(w.Message, "BYPASSED:") {
			bypassed++
		}
	}
	assert.GreaterOrEqual(t, bypassed, 2)
	assert.Len(t, g.Warnings, 3)

	assert.Equal(t, model.AuditForceOverride, log.Action)
	assert.Len(t, log.BlockersBypassed, 2)
	assert.Equal(t, model.GateBlocked, log.PreviousStatus)
	assert.Equal(t, model.GateClear, log.NewStatus)
	assert.Equal(t, "an-1", log.AnalysisID)
	assert.NotEmpty(t, log.ID)
	assert.Equal(t, fixedNow, log.Timestamp)
	assert.ElementsMatch(t, []string{"a", "v"}, g.Approval.ApprovedBlockers)

	_, _, err = c.ForceOverride(OverrideRequest{Approver: "kim"}, current)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func bypassedIDs(g model.ImplementationGate) []string {
	ids := []string{}
	for _, w := range g.Warnings {
		if strings.HasPrefix(w.Message, BypassedPrefix) {
			ids = append(ids, w.ItemID)
		}
	}
	return ids
}

func TestOverrideSurvivesReEvaluation(t *testing.T) {
	c := newController(DefaultCriteria())
	risks := []model.IdentifiedRisk{risk("a", model.SeverityCritical, true), risk("b", model.SeverityHigh, true)}
	validations := []model.ValidationItem{item("v1", model.StatusPending, false)}

	current := c.Evaluate(risks, validations, nil)
	g, _, err := c.ForceOverride(OverrideRequest{Approver: "kim", Reason: "hotfix"}, current)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, g.Approval.Bypassed)

	passed := item("v1", model.StatusPassed, false)
	g, _, err = c.ReEvaluateAfterValidation(passed, risks, validations, g)
	require.NoError(t, err)
	assert.Empty(t, g.Blockers)
	assert.ElementsMatch(t, []string{"a", "b"}, bypassedIDs(g))
	assert.Equal(t, model.GateWarning, g.Status)

	// a mitigated risk is no longer a blocker, so nothing is bypassed for it
	g, _, err = c.ReEvaluateAfterRiskMitigation("a", risks, []model.ValidationItem{passed}, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, bypassedIDs(g))

	// later approvals keep the record of the override
	g2, err := c.Approve(ApprovalRequest{Approver: "lee", Reason: "ok", BlockerIDs: []string{"min-validations"}},
		model.ImplementationGate{Blockers: []model.Blocker{{ItemID: "min-validations"}}, Approval: g.Approval})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, g2.Approval.Bypassed)

	revoked := c.RevokeApproval(risks, validations, g)
	assert.Empty(t, bypassedIDs(revoked))
	assert.Equal(t, model.GateBlocked, revoked.Status)
}

func TestRevokeApproval(t *testing.T) {
	c := newController(DefaultCriteria())
	risks := []model.IdentifiedRisk{risk("a", model.SeverityCritical, true)}
	g, err := c.Approve(ApprovalRequest{Approver: "kim", Reason: "r", BlockerIDs: []string{"a"}}, c.Evaluate(risks, nil, nil))
	require.NoError(t, err)
	require.Equal(t, model.GateClear, g.Status)

	g = c.RevokeApproval(risks, nil, g)
	assert.Equal(t, model.GateBlocked, g.Status)
	assert.Nil(t, g.Approval)
}

func TestReEvaluateAfterValidation(t *testing.T) {
	c := newController(DefaultCriteria())
	risks := []model.IdentifiedRisk{risk("a", model.SeverityCritical, true)}
	vals := []model.ValidationItem{item("v1", model.StatusPending, true), item("v2", model.StatusPending, true)}
	g := c.Evaluate(risks, vals, nil)
	g, err := c.Approve(ApprovalRequest{Approver: "kim", Reason: "r", BlockerIDs: []string{"a"}}, g)
	require.NoError(t, err)

	g, vals, err = c.ReEvaluateAfterValidation(item("v1", model.StatusPassed, true), risks, vals, g)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, vals[0].Status)
	assert.Equal(t, []string{"v2"}, blockerIDs(g), "approval carried forward")

	g, vals, err = c.ReEvaluateAfterValidation(item("v2", model.StatusPassed, true), risks, vals, g)
	require.NoError(t, err)
	assert.Equal(t, model.GateClear, g.Status)

	_, _, err = c.ReEvaluateAfterValidation(item("nope", model.StatusPassed, true), risks, vals, g)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestReEvaluateAfterRiskMitigation(t *testing.T) {
	c := newController(DefaultCriteria())
	risks := []model.IdentifiedRisk{risk("a", model.SeverityCritical, true), risk("b", model.SeverityLow, false)}
	g := c.Evaluate(risks, nil, nil)

	g, updated, err := c.ReEvaluateAfterRiskMitigation("a", risks, nil, g)
	require.NoError(t, err)
	assert.True(t, updated[0].MitigationApplied)
	assert.False(t, risks[0].MitigationApplied)
	assert.Equal(t, model.GateWarning, g.Status)

	_, _, err = c.ReEvaluateAfterRiskMitigation("zzz", risks, nil, g)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestHooks(t *testing.T) {
	c := newController(DefaultCriteria())
	var calls []string
	before := testutil.ToFloat64(hookFailuresTotal)

	c.OnStatusChange(func(_ context.Context, ch StatusChange) error {
		calls = append(calls, "first:"+string(ch.Current))
		return errors.New("webhook down")
	})
	c.OnStatusChange(func(context.Context, StatusChange) error {
		panic("bad hook")
	})
	c.OnStatusChange(func(_ context.Context, ch StatusChange) error {
		calls = append(calls, "third:"+string(ch.Previous))
		return nil
	})

	c.NotifyStatusChange(context.Background(), StatusChange{Previous: model.GateBlocked, Current: model.GateClear})
	assert.Equal(t, []string{"first:clear", "third:blocked"}, calls)
	assert.Equal(t, before+2, testutil.ToFloat64(hookFailuresTotal))

	c.NotifyStatusChange(context.Background(), StatusChange{Previous: model.GateClear, Current: model.GateClear})
	assert.Len(t, calls, 2, "unchanged status does not notify")
}
