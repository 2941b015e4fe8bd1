package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/state"
)

func sampleDoc() *state.Document {
	return &state.Document{
		Agents: map[string]*domain.AgentRecord{
			"10": {Task: "Task ten", Status: domain.StatusRunning, Step: domain.StepTesting},
			"2":  {Task: "Task two", Status: domain.StatusCompleted, Step: domain.StepFinished},
			"1":  {Task: "Task one", Status: domain.StatusFailed, Step: domain.StepFailed},
		},
		Summary:    domain.Summary{Total: 3, Completed: 1, Failed: 1, InProgress: 1},
		LastUpdate: "2025-06-01T12:00:00Z",
	}
}

func TestSortedAgentIDs_NumericOrder(t *testing.T) {
	ids := sortedAgentIDs(sampleDoc())
	assert.Equal(t, []string{"1", "2", "10"}, ids)
}

func TestView_RendersAgentsAndSummary(t *testing.T) {
	m := newModel(t.TempDir())
	m.doc = sampleDoc()

	view := m.View()
	assert.Contains(t, view, "Task ten")
	assert.Contains(t, view, "Task two")
	assert.Contains(t, view, "3 total")
	assert.Contains(t, view, "2025-06-01T12:00:00Z")
}

func TestView_WaitingWithoutState(t *testing.T) {
	m := newModel(t.TempDir())
	m.loadErr = assert.AnError

	assert.Contains(t, m.View(), "waiting for a run to start")
}
