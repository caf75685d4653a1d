package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/discuzbot/discuzbot/internal/domain"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.selected < len(m.rows)-1 {
				m.selected++
				return m, m.refreshCmd()
			}
		case "k", "up":
			if m.selected > 0 {
				m.selected--
				return m, m.refreshCmd()
			}
		case "r":
			if !m.running && m.selected < len(m.rows) {
				m.running = true
				row := m.rows[m.selected]
				m.status = fmt.Sprintf("running %s...", row.Label)
				return m, m.runAccountCmd(row.ID)
			}
		case "a":
			if !m.running {
				m.running = true
				m.status = "running all accounts..."
				return m, m.runAllCmd()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case refreshMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.rows = msg.rows
		m.logs = msg.logs
		m.lastRefresh = time.Now()
		if m.selected >= len(m.rows) && len(m.rows) > 0 {
			m.selected = len(m.rows) - 1
		}

	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.status = "run failed: " + msg.err.Error()
		} else if msg.result != nil {
			m.status = fmt.Sprintf("%s: %s", msg.result.Label, msg.result.Outcome)
		} else {
			m.status = "run finished"
		}
		return m, m.refreshCmd()

	case runAllDoneMsg:
		m.running = false
		if msg.err != nil {
			m.status = "run failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("%d accounts: %d success, %d already done, %d unavailable, %d failed",
				msg.summary.Total, msg.summary.Success, msg.summary.AlreadyDone,
				msg.summary.Unavailable, msg.summary.Failed)
		}
		return m, m.refreshCmd()
	}

	return m, nil
}

// refreshCmd loads the accounts table and the selected account's logs
func (m Model) refreshCmd() tea.Cmd {
	orch := m.orch
	selected := m.selected
	return func() tea.Msg {
		accounts, err := orch.Store().ListAccounts(true)
		if err != nil {
			return refreshMsg{err: err}
		}

		today := domain.Day(time.Now())
		rows := make([]AccountRow, 0, len(accounts))
		for _, acc := range accounts {
			row := AccountRow{ID: acc.ID, Label: acc.Label, Enabled: acc.Enabled}
			rec, err := orch.Store().CheckinFor(acc.ID, today)
			if err != nil {
				return refreshMsg{err: err}
			}
			if rec != nil {
				row.Outcome = rec.Outcome
				row.Detail = rec.Detail
				row.When = rec.CreatedAt
			}
			rows = append(rows, row)
		}

		var logs []*domain.LogEntry
		if selected < len(rows) {
			logs, err = orch.Store().Logs(rows[selected].ID, 12)
			if err != nil {
				return refreshMsg{err: err}
			}
		}
		return refreshMsg{rows: rows, logs: logs}
	}
}

func (m Model) runAccountCmd(id int64) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		res, err := orch.RunAccount(context.Background(), id)
		return runDoneMsg{result: res, err: err}
	}
}

func (m Model) runAllCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		_, summary, err := orch.RunAll(context.Background())
		return runAllDoneMsg{summary: summary, err: err}
	}
}
