package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// View renders the dashboard
func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	sections := []string{
		m.renderHeader(),
		m.renderAccounts(width - 2),
		m.renderLogs(width - 2),
		helpStyle.Render("q: stop after the current request • ctrl+l: clear activity"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	status := m.spinner.View() + " running"
	switch {
	case m.interrupted:
		status = lipgloss.NewStyle().Foreground(neonOrange).Render("interrupted")
	case m.runErr != nil:
		status = lipgloss.NewStyle().Foreground(alertRed).Render("failed")
	case m.finished:
		status = lipgloss.NewStyle().Foreground(neonGreen).Render("finished")
	}

	m.bar.Width = 30
	elapsed := m.now().Sub(m.started).Truncate(time.Second)

	stats := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Accounts:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.finishedAccounts(), len(m.rows)))),
		fmt.Sprintf("%s %s", labelStyle.Render("Stories:"), valueStyle.Render(fmt.Sprintf("%d", m.stories))),
		fmt.Sprintf("%s %s", labelStyle.Render("Downloaded:"), valueStyle.Render(humanize.Bytes(uint64(m.bytes)))),
		fmt.Sprintf("%s %s", labelStyle.Render("Elapsed:"), valueStyle.Render(elapsed.String())),
	}

	top := headerStyle.Render("citystories") + " " + status + "  " + m.bar.ViewAs(m.percent())
	return lipgloss.JoinVertical(lipgloss.Left, top, " "+strings.Join(stats, "  "))
}

func (m *Model) renderAccounts(width int) string {
	lines := []string{titleStyle.Render(" ACCOUNTS ")}
	for _, r := range m.rows {
		state := stateStyle(r.State).Render(fmt.Sprintf("%-11s", r.State))
		detail := ""
		switch r.State {
		case StateDownloading, StateDone:
			detail = fmt.Sprintf("%d/%d stored", r.Stored, r.Posts)
			if r.Failed > 0 {
				detail += fmt.Sprintf(", %d failed", r.Failed)
			}
			if r.Bytes > 0 {
				detail += ", " + humanize.Bytes(uint64(r.Bytes))
			}
		case StateFailed, StateSkipped:
			detail = truncate(r.Err, 60)
		}
		lines = append(lines, fmt.Sprintf("%-12s @%-20s %s %s",
			r.Account.Key, r.Account.Handle, state, dimStyle.Render(detail)))
	}
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderLogs(width int) string {
	lines := []string{titleStyle.Render(" ACTIVITY ")}
	if len(m.logMessages) == 0 {
		lines = append(lines, dimStyle.Render("nothing yet"))
	}
	for _, msg := range m.logMessages {
		lines = append(lines, fmt.Sprintf("%s %s",
			logTimestampStyle.Render(msg.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(msg.Color).Render(msg.Message)))
	}
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
