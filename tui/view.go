package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the dashboard
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	done, failed := 0, 0
	for _, row := range m.rows {
		switch row.Outcome {
		case domain.OutcomeSuccess, domain.OutcomeAlreadyDone:
			done++
		case domain.OutcomeFailed:
			failed++
		}
	}
	header := fmt.Sprintf(" discuzbot │ Accounts: %d │ Done today: %d │ Failed: %d ",
		len(m.rows), done, failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderAccounts()))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderLogs()))
	b.WriteString("\n")

	bar := fmt.Sprintf(" %s │ j/k select · r run · a run all · q quit ", m.status)
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) renderAccounts() string {
	if len(m.rows) == 0 {
		return dimmedStyle.Render("No accounts. Add one with: discuzbot accounts add")
	}

	var b strings.Builder
	for i, row := range m.rows {
		cursor := "  "
		if i == m.selected {
			cursor = "> "
		}

		line := fmt.Sprintf("%s%-16s %s", cursor, truncate(row.Label, 16), m.renderOutcome(row))
		if !row.Enabled {
			line += dimmedStyle.Render(" (disabled)")
		}
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		if i < len(m.rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderOutcome(row AccountRow) string {
	switch row.Outcome {
	case domain.OutcomeSuccess:
		return successStyle.Render("✓ "+row.Detail) + dimmedStyle.Render("  "+humanize.Time(row.When))
	case domain.OutcomeAlreadyDone:
		return successStyle.Render("✓ "+row.Detail) + dimmedStyle.Render("  "+humanize.Time(row.When))
	case domain.OutcomeUnavailable:
		return warningStyle.Render("– " + row.Detail)
	case domain.OutcomeFailed:
		return failedStyle.Render("✗ " + truncate(row.Detail, 48))
	default:
		return dimmedStyle.Render("· not run today")
	}
}

func (m Model) renderLogs() string {
	if len(m.logs) == 0 {
		return dimmedStyle.Render("No log lines for the selected account")
	}

	var b strings.Builder
	for i, entry := range m.logs {
		b.WriteString(dimmedStyle.Render(humanize.Time(entry.Timestamp)))
		b.WriteString(" ")
		b.WriteString(truncate(entry.Line, m.width-24))
		if i < len(m.logs)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if n <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
