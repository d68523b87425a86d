// Package tui implements the Bubble Tea gate review interface.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/model"
)

// DefaultReason is recorded when the reviewer gives none.
const DefaultReason = "approved in terminal review"

// Recorder persists audit records as the review produces them.
type Recorder interface {
	Record(ctx context.Context, log model.GateAuditLog) error
}

// Result is the outcome of a review session.
type Result struct {
	Gate  model.ImplementationGate
	Audit []model.GateAuditLog
}

// Model is the top-level Bubble Tea model for gate review.
type Model struct {
	ctx      context.Context
	analysis model.ImpactAnalysis
	ctrl     *gate.Controller
	recorder Recorder
	approver string
	reason   string

	width  int
	height int

	cursor     int
	selected   map[string]bool
	confirming bool
	showHelp   bool
	notice     string

	audit []model.GateAuditLog
}

// New creates a review model for a. Gate transitions go through ctrl, and
// each audit record is handed to rec before the transition is shown. A
// transition whose record fails to persist is discarded. rec may be nil.
func New(ctx context.Context, a model.ImpactAnalysis, ctrl *gate.Controller, rec Recorder, approver, reason string) Model {
	if reason == "" {
		reason = DefaultReason
	}
	return Model{
		ctx:      ctx,
		analysis: a,
		ctrl:     ctrl,
		recorder: rec,
		approver: approver,
		reason:   reason,
		selected: make(map[string]bool),
	}
}

// Result returns the gate as it stands and the audit records produced.
func (m Model) Result() Result {
	return Result{Gate: m.analysis.Gate, Audit: m.audit}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.confirming {
			return m.updateConfirm(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.analysis.Gate.Blockers)-1 {
				m.cursor++
			}

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, keys.Select):
			if b, ok := m.current(); ok {
				if m.selected[b.ItemID] {
					delete(m.selected, b.ItemID)
				} else {
					m.selected[b.ItemID] = true
				}
			}

		case key.Matches(msg, keys.Approve):
			m.approve()

		case key.Matches(msg, keys.Override):
			if len(m.analysis.Gate.Blockers) == 0 {
				m.notice = "Nothing to override."
			} else {
				m.confirming = true
			}

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Confirm):
		m.confirming = false
		m.override()
	case key.Matches(msg, keys.Cancel), key.Matches(msg, keys.Quit):
		m.confirming = false
		m.notice = "Override cancelled."
	}
	return m, nil
}

func (m Model) current() (model.Blocker, bool) {
	bs := m.analysis.Gate.Blockers
	if m.cursor < 0 || m.cursor >= len(bs) {
		return model.Blocker{}, false
	}
	return bs[m.cursor], true
}

// selection returns the selected blocker ids in gate order.
func (m Model) selection() []string {
	var ids []string
	for _, b := range m.analysis.Gate.Blockers {
		if m.selected[b.ItemID] {
			ids = append(ids, b.ItemID)
		}
	}
	return ids
}

func (m *Model) approve() {
	ids := m.selection()
	if len(ids) == 0 {
		m.notice = "Select blockers with space first."
		return
	}

	prev := m.analysis.Gate.Status
	g, err := m.ctrl.Approve(gate.ApprovalRequest{
		Approver:   m.approver,
		Reason:     m.reason,
		BlockerIDs: ids,
	}, m.analysis.Gate)
	if err != nil {
		m.notice = err.Error()
		return
	}
	if err := m.record(m.ctrl.AuditLog(m.analysis.ID, model.AuditApprove, m.approver, m.reason, ids, prev, g.Status)); err != nil {
		m.notice = err.Error()
		return
	}
	m.analysis.Gate = g
	m.selected = make(map[string]bool)
	m.clampCursor()
	m.notice = fmt.Sprintf("Approved %d blocker(s).", len(ids))
}

func (m *Model) override() {
	g, log, err := m.ctrl.ForceOverride(gate.OverrideRequest{
		AnalysisID: m.analysis.ID,
		Approver:   m.approver,
		Reason:     m.reason,
	}, m.analysis.Gate)
	if err != nil {
		m.notice = err.Error()
		return
	}
	if err := m.record(log); err != nil {
		m.notice = err.Error()
		return
	}
	m.analysis.Gate = g
	m.selected = make(map[string]bool)
	m.clampCursor()
	m.notice = fmt.Sprintf("Overrode %d blocker(s).", len(log.BlockersBypassed))
}

func (m *Model) record(log model.GateAuditLog) error {
	if m.recorder != nil {
		if err := m.recorder.Record(m.ctx, log); err != nil {
			return fmt.Errorf("audit not written, gate unchanged: %w", err)
		}
	}
	m.audit = append(m.audit, log)
	return nil
}

func (m *Model) clampCursor() {
	if n := len(m.analysis.Gate.Blockers); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// Run starts the review interface and returns the final gate. Audit records
// reach rec while the interface is still open.
func Run(ctx context.Context, a model.ImpactAnalysis, ctrl *gate.Controller, rec Recorder, approver, reason string) (Result, error) {
	p := tea.NewProgram(New(ctx, a, ctrl, rec, approver, reason), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return Result{}, err
	}
	return final.(Model).Result(), nil
}
