package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/model"
)

func testAnalysis(ctrl *gate.Controller) model.ImpactAnalysis {
	risks := []model.IdentifiedRisk{
		{ID: "risk:security-sensitive", Name: "Security-sensitive change", Severity: model.SeverityCritical, IsBlocking: true},
		{ID: "risk:breaking-api", Name: "Breaking API change", Severity: model.SeverityHigh, IsBlocking: true},
		{ID: "risk:performance-impact", Name: "Performance impact", Severity: model.SeverityMedium},
	}
	return model.ImpactAnalysis{
		ID:    "an-1",
		Input: model.ChangeInput{Description: "Rework session tokens"},
		Risks: risks,
		Gate:  ctrl.Evaluate(risks, nil, nil),
	}
}

type memRecorder struct {
	logs []model.GateAuditLog
	err  error
}

func (r *memRecorder) Record(_ context.Context, log model.GateAuditLog) error {
	if r.err != nil {
		return r.err
	}
	r.logs = append(r.logs, log)
	return nil
}

func setupModel(t *testing.T) Model {
	t.Helper()
	return setupRecordedModel(t, nil)
}

func setupRecordedModel(t *testing.T, rec Recorder) Model {
	t.Helper()
	ctrl := gate.New(gate.DefaultCriteria())
	m := New(t.Context(), testAnalysis(ctrl), ctrl, rec, "dana", "")
	newM, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return newM.(Model)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		newM, _ := m.Update(msg)
		m = newM.(Model)
	}
	return m
}

func TestModelInit(t *testing.T) {
	m := setupModel(t)

	if m.cursor != 0 {
		t.Errorf("expected cursor 0, got %d", m.cursor)
	}
	if m.analysis.Gate.Status != model.GateBlocked {
		t.Errorf("expected blocked gate, got %s", m.analysis.Gate.Status)
	}
	if len(m.analysis.Gate.Blockers) != 2 {
		t.Errorf("expected 2 blockers, got %d", len(m.analysis.Gate.Blockers))
	}
	if m.reason != DefaultReason {
		t.Errorf("expected default reason, got %q", m.reason)
	}
}

func TestNavigation(t *testing.T) {
	m := setupModel(t)

	m = press(m, "j")
	if m.cursor != 1 {
		t.Errorf("expected cursor 1, got %d", m.cursor)
	}
	m = press(m, "j")
	if m.cursor != 1 {
		t.Errorf("expected cursor to stay at 1, got %d", m.cursor)
	}
	m = press(m, "k", "k")
	if m.cursor != 0 {
		t.Errorf("expected cursor 0, got %d", m.cursor)
	}
}

func TestSelectToggles(t *testing.T) {
	m := setupModel(t)

	m = press(m, " ")
	if !m.selected["risk:security-sensitive"] {
		t.Error("expected first blocker selected")
	}
	m = press(m, " ")
	if len(m.selection()) != 0 {
		t.Errorf("expected empty selection, got %v", m.selection())
	}
}

func TestApproveSelected(t *testing.T) {
	m := setupModel(t)

	m = press(m, "a")
	if len(m.audit) != 0 || !strings.Contains(m.notice, "Select") {
		t.Errorf("approve with no selection should only set a notice, got %q", m.notice)
	}

	m = press(m, " ", "a")
	res := m.Result()
	if len(res.Gate.Blockers) != 1 || res.Gate.Blockers[0].ItemID != "risk:breaking-api" {
		t.Errorf("unexpected blockers %+v", res.Gate.Blockers)
	}
	if res.Gate.Status != model.GateBlocked {
		t.Errorf("expected still blocked, got %s", res.Gate.Status)
	}
	if len(res.Audit) != 1 || res.Audit[0].Action != model.AuditApprove {
		t.Fatalf("expected one approve audit record, got %+v", res.Audit)
	}
	if res.Audit[0].Approver != "dana" || res.Audit[0].AnalysisID != "an-1" {
		t.Errorf("unexpected audit record %+v", res.Audit[0])
	}

	m = press(m, " ", "a")
	res = m.Result()
	if len(res.Gate.Blockers) != 0 || res.Gate.Status != model.GateWarning {
		t.Errorf("expected warning gate with no blockers, got %s %+v", res.Gate.Status, res.Gate.Blockers)
	}
	if res.Gate.Approval == nil || len(res.Gate.Approval.ApprovedBlockers) != 2 {
		t.Errorf("expected both blockers approved, got %+v", res.Gate.Approval)
	}
	if m.cursor != 0 {
		t.Errorf("expected cursor clamped to 0, got %d", m.cursor)
	}
}

func TestOverrideRequiresConfirmation(t *testing.T) {
	m := setupModel(t)

	m = press(m, "o")
	if !m.confirming {
		t.Fatal("expected confirmation prompt")
	}
	if !strings.Contains(m.View(), "Force override 2 blocker(s)") {
		t.Error("expected confirmation prompt in view")
	}

	m = press(m, "esc")
	if m.confirming || m.analysis.Gate.Status != model.GateBlocked {
		t.Error("expected override cancelled")
	}

	m = press(m, "o", "y")
	res := m.Result()
	if res.Gate.Status != model.GateClear || len(res.Gate.Blockers) != 0 {
		t.Errorf("expected clear gate, got %s", res.Gate.Status)
	}
	if len(res.Audit) != 1 || res.Audit[0].Action != model.AuditForceOverride {
		t.Fatalf("expected override audit record, got %+v", res.Audit)
	}
	if len(res.Audit[0].BlockersBypassed) != 2 {
		t.Errorf("expected 2 bypassed blockers, got %v", res.Audit[0].BlockersBypassed)
	}

	m = press(m, "o")
	if m.confirming {
		t.Error("override with no blockers should not prompt")
	}
}

func TestAuditRecordedWhileOpen(t *testing.T) {
	rec := &memRecorder{}
	m := setupRecordedModel(t, rec)

	m = press(m, " ", "a")
	if len(rec.logs) != 1 || rec.logs[0].Action != model.AuditApprove {
		t.Fatalf("expected approve record written on approval, got %+v", rec.logs)
	}

	m = press(m, "o")
	if len(rec.logs) != 1 {
		t.Errorf("nothing should be written before confirmation, got %d records", len(rec.logs))
	}
	m = press(m, "y")
	if len(rec.logs) != 2 || rec.logs[1].Action != model.AuditForceOverride {
		t.Fatalf("expected override record written on confirmation, got %+v", rec.logs)
	}
	if got := m.Result().Audit; len(got) != 2 || got[1].ID != rec.logs[1].ID {
		t.Errorf("result audit %+v does not match written records", got)
	}
}

func TestAuditFailureKeepsGate(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	m := setupRecordedModel(t, rec)

	m = press(m, " ", "a")
	if m.analysis.Gate.Status != model.GateBlocked || len(m.analysis.Gate.Blockers) != 2 {
		t.Errorf("expected gate unchanged, got %s with %d blockers", m.analysis.Gate.Status, len(m.analysis.Gate.Blockers))
	}
	if !strings.Contains(m.notice, "disk full") {
		t.Errorf("expected notice to carry the write error, got %q", m.notice)
	}

	m = press(m, "o", "y")
	if m.analysis.Gate.Status != model.GateBlocked || m.analysis.Gate.Approval != nil {
		t.Errorf("expected override discarded, got %s", m.analysis.Gate.Status)
	}
	if len(m.Result().Audit) != 0 {
		t.Errorf("expected no audit records, got %+v", m.Result().Audit)
	}
}

func TestQuit(t *testing.T) {
	m := setupModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestView(t *testing.T) {
	m := setupModel(t)
	m = press(m, " ")
	view := m.View()

	for _, want := range []string{"Rework session tokens", "BLOCKED", "Blockers (2)", "[x]", "Security-sensitive change", "Warnings (1)", "[medium] Performance impact"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m = press(m, "?")
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("expected help view")
	}
}

func TestViewBeforeResize(t *testing.T) {
	ctrl := gate.New(gate.DefaultCriteria())
	m := New(t.Context(), testAnalysis(ctrl), ctrl, nil, "dana", "")
	if m.View() != "Loading..." {
		t.Errorf("expected loading view, got %q", m.View())
	}
}

func TestSummary(t *testing.T) {
	ctrl := gate.New(gate.DefaultCriteria())
	out := Summary(testAnalysis(ctrl))
	if !strings.Contains(out, "Blockers (2)") || !strings.Contains(out, "Breaking API change") {
		t.Errorf("unexpected summary %q", out)
	}
}
