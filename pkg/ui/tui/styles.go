package tui

import "github.com/charmbracelet/lipgloss"

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	alertRed    = lipgloss.Color("#FF3030")
	darkBg      = lipgloss.Color("#0A0E27")
	dimWhite    = lipgloss.Color("#B0B0B0")

	headerStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingLeft(1)
)

// stateStyle colours an account row by its state
func stateStyle(s AccountState) lipgloss.Style {
	switch s {
	case StateFetching, StateDownloading:
		return lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	case StateDone:
		return lipgloss.NewStyle().Foreground(dimWhite)
	case StateFailed, StateSkipped:
		return lipgloss.NewStyle().Foreground(alertRed)
	default:
		return lipgloss.NewStyle().Foreground(dimWhite).Faint(true)
	}
}

func levelColor(level string) lipgloss.Color {
	switch level {
	case "ERROR":
		return alertRed
	case "WARN":
		return neonOrange
	case "SUCCESS":
		return neonGreen
	default:
		return neonCyan
	}
}
