package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/model"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	width := m.width - 2
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderBlockers())
	b.WriteByte('\n')
	b.WriteString(m.renderWarnings())

	body := panelStyle.Width(width).Height(m.height - 4).Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderFooter(), m.renderStatusBar())
}

func (m Model) renderHeader() string {
	desc := m.analysis.Input.Description
	if desc == "" {
		desc = "(no description)"
	}
	status := m.analysis.Gate.Status
	return headerStyle.Render(desc) + "\n" +
		"Gate: " + statusStyle(status).Render(strings.ToUpper(string(status))) + "\n\n"
}

func (m Model) renderBlockers() string {
	var b strings.Builder
	blockers := m.analysis.Gate.Blockers
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Blockers (%d)", len(blockers))))
	b.WriteByte('\n')
	if len(blockers) == 0 {
		b.WriteString(reasonStyle.Render("  none"))
		b.WriteByte('\n')
		return b.String()
	}

	for i, bl := range blockers {
		check := "[ ]"
		if m.selected[bl.ItemID] {
			check = "[x]"
		}
		sev := ""
		if bl.Severity != "" {
			sev = severityStyle(bl.Severity).Render(string(bl.Severity)) + " "
		}
		line := fmt.Sprintf("%s %s%s", check, sev, bl.Title)

		style := itemStyle
		if i == m.cursor {
			style = itemSelectedStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString(reasonStyle.Render("  " + bl.Reason))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderWarnings() string {
	var b strings.Builder
	warnings := m.analysis.Gate.Warnings
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Warnings (%d)", len(warnings))))
	b.WriteByte('\n')
	for _, w := range warnings {
		style := warningStyle
		if strings.HasPrefix(w.Message, gate.BypassedPrefix) {
			style = bypassedStyle
		}
		b.WriteString(style.Render("  " + w.Message))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderFooter() string {
	switch {
	case m.confirming:
		return confirmStyle.Render(fmt.Sprintf("Force override %d blocker(s)? This is audited. [y/n]", len(m.analysis.Gate.Blockers)))
	case m.notice != "":
		return noticeStyle.Render(m.notice)
	}
	return ""
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf(" %d selected", len(m.selection()))
	if m.analysis.Gate.Approval != nil {
		left += fmt.Sprintf("  %d approved", len(m.analysis.Gate.Approval.ApprovedBlockers))
	}
	right := "space select  a approve  o override  ? help "

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("impactgate review - Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, k := range []struct{ key, desc string }{
		{keys.Up.Help().Key, "Previous blocker"},
		{keys.Down.Help().Key, "Next blocker"},
		{keys.Select.Help().Key, "Select or deselect blocker"},
		{keys.Approve.Help().Key, "Approve selected blockers"},
		{keys.Override.Help().Key, "Force override every blocker"},
		{keys.Help.Help().Key, "Toggle this help"},
		{keys.Quit.Help().Key, "Quit"},
	} {
		b.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Width(12).Render(k.key), k.desc))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}

// Summary renders a one-shot, non-interactive view of a gate.
func Summary(a model.ImpactAnalysis) string {
	m := New(context.Background(), a, nil, nil, "", "")
	return m.renderHeader() + m.renderBlockers() + "\n" + m.renderWarnings()
}

