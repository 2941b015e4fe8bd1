// Package state persists run state to a JSON file for external observers
// (dashboards, the status TUI). The file is rewritten in full, atomically,
// on every change. Write failures are swallowed: the state file is
// observability, not truth.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/herdctl/herd/internal/domain"
)

// Document is the full state file contents.
type Document struct {
	Agents     map[string]*domain.AgentRecord `json:"agents"`
	Summary    domain.Summary                 `json:"summary"`
	LastUpdate string                         `json:"lastUpdate"`
}

// SessionKiller terminates a tmux session by name, best-effort.
type SessionKiller func(sessionName string)

// Registry is the process-wide agent and summary state.
// All mutations funnel through the update methods under one mutex, which
// serializes both the in-memory document and the file rewrite.
type Registry struct {
	doc   Document
	path  string
	clock domain.Clock
	kill  SessionKiller
	mu    sync.Mutex
}

// New creates a registry persisting to the state file of workDir.
// kill is invoked by CleanupSessions for each live agent session.
func New(workDir string, clock domain.Clock, kill SessionKiller) *Registry {
	return &Registry{
		doc: Document{
			Agents: make(map[string]*domain.AgentRecord),
		},
		path:  domain.StatePath(workDir),
		clock: clock,
		kill:  kill,
	}
}

// Ensure Registry implements the StateRegistry interface.
var _ domain.StateRegistry = (*Registry)(nil)

// UpdateAgent applies a patch to an agent record, creating it with defaults
// (pending, "Initializing") when missing, then rewrites the state file.
func (r *Registry) UpdateAgent(id string, patch domain.AgentPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.doc.Agents[id]
	if !ok {
		rec = &domain.AgentRecord{
			Status: domain.StatusPending,
			Step:   domain.StepInitializing,
		}
		r.doc.Agents[id] = rec
	}

	if patch.Task != nil {
		rec.Task = *patch.Task
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Step != nil {
		rec.Step = *patch.Step
	}
	if patch.TmuxSession != nil {
		rec.TmuxSession = *patch.TmuxSession
	}
	if patch.Worktree != nil {
		rec.Worktree = *patch.Worktree
	}
	if patch.Error != nil {
		rec.Error = *patch.Error
	}

	rec.LastUpdate = r.stamp()
	r.write()
}

// UpdateSummary applies a patch to the run summary and rewrites the file.
func (r *Registry) UpdateSummary(patch domain.SummaryPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patch.Total != nil {
		r.doc.Summary.Total = *patch.Total
	}
	if patch.Completed != nil {
		r.doc.Summary.Completed = *patch.Completed
	}
	if patch.Failed != nil {
		r.doc.Summary.Failed = *patch.Failed
	}
	if patch.InProgress != nil {
		r.doc.Summary.InProgress = *patch.InProgress
	}

	r.write()
}

// RemoveAgent deletes an agent record and rewrites the file.
func (r *Registry) RemoveAgent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.doc.Agents, id)
	r.write()
}

// CleanupSessions best-effort kills the tmux session of every agent that is
// still pending or running. Safe to call more than once; killing an already
// dead session is a no-op.
func (r *Registry) CleanupSessions() {
	r.mu.Lock()
	var sessions []string
	for _, rec := range r.doc.Agents {
		if rec.TmuxSession == "" {
			continue
		}
		if rec.Status == domain.StatusPending || rec.Status == domain.StatusRunning {
			sessions = append(sessions, rec.TmuxSession)
		}
	}
	r.mu.Unlock()

	if r.kill == nil {
		return
	}
	for _, name := range sessions {
		r.kill(name)
	}
}

// Snapshot returns a deep copy of the current document.
func (r *Registry) Snapshot() Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := Document{
		Agents:     make(map[string]*domain.AgentRecord, len(r.doc.Agents)),
		Summary:    r.doc.Summary,
		LastUpdate: r.doc.LastUpdate,
	}
	for id, rec := range r.doc.Agents {
		clone := *rec
		cp.Agents[id] = &clone
	}
	return cp
}

// stamp returns the current time in ISO-8601 and records it on the document.
func (r *Registry) stamp() string {
	now := r.clock.Now().UTC().Format(time.RFC3339)
	r.doc.LastUpdate = now
	return now
}

// write rewrites the state file atomically. Errors are swallowed.
func (r *Registry) write() {
	if r.doc.LastUpdate == "" {
		r.doc.LastUpdate = r.clock.Now().UTC().Format(time.RFC3339)
	}

	content, err := json.MarshalIndent(&r.doc, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
	}
}

// Load reads the state file of workDir. Consumers must not assume the file
// is append-only; it is rewritten in full on every update.
func Load(workDir string) (*Document, error) {
	content, err := os.ReadFile(domain.StatePath(workDir)) //nolint:gosec // well-known workspace path
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string]*domain.AgentRecord)
	}
	return &doc, nil
}
