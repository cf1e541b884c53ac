package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary   = lipgloss.Color("#FF6B35")
	Secondary = lipgloss.Color("#1E88E5")
	Success   = lipgloss.Color("#4CAF50")
	Warning   = lipgloss.Color("#FFB74D")
	Error     = lipgloss.Color("#F44336")

	Text       = lipgloss.Color("#E0E0E0")
	TextBright = lipgloss.Color("#FFFFFF")
	Muted      = lipgloss.Color("#90A4AE")
	LiveGreen  = lipgloss.Color("#66BB6A")
	Offline    = lipgloss.Color("#424242")

	HeaderBg   = lipgloss.Color("#1C2128")
	BorderDark = lipgloss.Color("#30363D")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(TextBright).
			Background(HeaderBg).
			Padding(0, 2).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDark).
			Foreground(Text).
			Padding(0, 1)

	PanelTitleStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextBright).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

// StateBadge renders the pipeline state.
func StateBadge(state string) string {
	switch state {
	case "running":
		return lipgloss.NewStyle().Foreground(LiveGreen).Bold(true).Render("● RUNNING")
	case "stopping", "stopped":
		return WarningStyle.Render("■ " + strings.ToUpper(state))
	case "failed":
		return ErrorStyle.Render("✖ FAILED")
	default:
		return lipgloss.NewStyle().Foreground(Offline).Bold(true).Render("○ " + strings.ToUpper(state))
	}
}
