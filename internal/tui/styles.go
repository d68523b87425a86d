package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/impactgate/internal/model"
)

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	sectionStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	itemStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	itemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	reasonStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	bypassedStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	confirmStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	// Help bar
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

func statusStyle(s model.GateStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case model.GateBlocked:
		return base.Foreground(colorRed)
	case model.GateWarning:
		return base.Foreground(colorYellow)
	default:
		return base.Foreground(colorGreen)
	}
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical:
		return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	case model.SeverityHigh:
		return lipgloss.NewStyle().Foreground(colorOrange)
	case model.SeverityMedium:
		return lipgloss.NewStyle().Foreground(colorYellow)
	default:
		return lipgloss.NewStyle().Foreground(colorDim)
	}
}
