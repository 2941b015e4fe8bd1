// Package tui renders a live dashboard over the run state file.
// It is a read-only consumer: the scheduler owns the file, the dashboard
// just polls it once a second.
package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/state"
)

// pollInterval is how often the dashboard re-reads the state file.
const pollInterval = time.Second

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	headerStyle    = lipgloss.NewStyle().Faint(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	pendingStyle   = lipgloss.NewStyle().Faint(true)
	summaryStyle   = lipgloss.NewStyle().MarginTop(1)
)

// tickMsg triggers a state file reload.
type tickMsg time.Time

// model is the bubbletea model for the dashboard.
type model struct {
	doc     *state.Document
	loadErr error
	workDir string
	spin    spinner.Model
}

func newModel(workDir string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{workDir: workDir, spin: s}
}

// Run starts the dashboard and blocks until the user quits.
func Run(workDir string) error {
	p := tea.NewProgram(newModel(workDir))
	_, err := p.Run()
	return err
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.reload, tick())
}

// reload reads the state file.
func (m model) reload() tea.Msg {
	doc, err := state.Load(m.workDir)
	if err != nil {
		return err
	}
	return doc
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.reload, tick())
	case *state.Document:
		m.doc = msg
		m.loadErr = nil
	case error:
		m.loadErr = msg
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("herd agents"))
	b.WriteString(" " + m.spin.View() + "\n\n")

	if m.loadErr != nil || m.doc == nil {
		b.WriteString(pendingStyle.Render("waiting for a run to start...") + "\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-7s %-10s %-22s %s", "AGENT", "STATUS", "STEP", "TASK")) + "\n")

	for _, id := range sortedAgentIDs(m.doc) {
		rec := m.doc.Agents[id]
		line := fmt.Sprintf("%-7s %-10s %-22s %s", id, rec.Status, rec.Step, rec.Task)
		b.WriteString(styleFor(rec.Status).Render(line) + "\n")
	}

	s := m.doc.Summary
	b.WriteString(summaryStyle.Render(fmt.Sprintf(
		"%d total · %s completed · %s failed · %d in progress",
		s.Total,
		completedStyle.Render(strconv.Itoa(s.Completed)),
		failedStyle.Render(strconv.Itoa(s.Failed)),
		s.InProgress,
	)) + "\n")
	b.WriteString(headerStyle.Render("last update "+m.doc.LastUpdate+"  ·  q to quit") + "\n")

	return b.String()
}

func styleFor(status domain.AgentStatus) lipgloss.Style {
	switch status {
	case domain.StatusCompleted:
		return completedStyle
	case domain.StatusFailed:
		return failedStyle
	case domain.StatusRunning:
		return runningStyle
	default:
		return pendingStyle
	}
}

func sortedAgentIDs(doc *state.Document) []string {
	ids := make([]string, 0, len(doc.Agents))
	for id := range doc.Agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}
