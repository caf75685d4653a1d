// Package tui renders a terminal dashboard over the account store: today's
// outcomes per account, recent log lines, and manual run triggers.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/discuzbot/discuzbot/internal/orchestrator"
)

// AccountRow is one line of the accounts table
type AccountRow struct {
	ID      int64
	Label   string
	Enabled bool
	Outcome domain.CheckinOutcome
	Detail  string
	When    time.Time
}

// Model is the TUI application model
type Model struct {
	orch *orchestrator.Orchestrator

	rows []AccountRow
	logs []*domain.LogEntry

	width    int
	height   int
	selected int
	running  bool
	status   string

	lastRefresh time.Time
}

// NewModel creates the TUI model around a live orchestrator
func NewModel(orch *orchestrator.Orchestrator) Model {
	return Model{orch: orch, status: "ready"}
}

// Init starts the refresh loop
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

// TickMsg triggers a periodic refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refreshMsg carries freshly loaded table data
type refreshMsg struct {
	rows []AccountRow
	logs []*domain.LogEntry
	err  error
}

// runDoneMsg reports a finished manual run
type runDoneMsg struct {
	result *orchestrator.RunResult
	err    error
}

// runAllDoneMsg reports a finished full run
type runAllDoneMsg struct {
	summary *orchestrator.Summary
	err     error
}
