// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/herdctl/herd/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// MockTaskSource is a test double for domain.TaskSource without parallel
// grouping. Fields are ordered to minimize memory padding.
type MockTaskSource struct {
	Tasks     []domain.Task
	Completed map[string]bool
	MarkErr   error
	mu        sync.Mutex
}

// NewMockTaskSource creates a source over the given tasks.
func NewMockTaskSource(tasks ...domain.Task) *MockTaskSource {
	return &MockTaskSource{
		Tasks:     tasks,
		Completed: make(map[string]bool),
	}
}

var _ domain.TaskSource = (*MockTaskSource)(nil)

// NextTask returns the first remaining task.
func (m *MockTaskSource) NextTask() (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Tasks {
		if !m.Completed[t.ID] {
			task := t
			return &task, nil
		}
	}
	return nil, nil
}

// AllTasks returns all remaining tasks.
func (m *MockTaskSource) AllTasks() ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []domain.Task
	for _, t := range m.Tasks {
		if !m.Completed[t.ID] {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// MarkComplete records a completion.
func (m *MockTaskSource) MarkComplete(id string) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed[id] = true
	return nil
}

// CountRemaining returns the number of remaining tasks.
func (m *MockTaskSource) CountRemaining() (int, error) {
	tasks, _ := m.AllTasks()
	return len(tasks), nil
}

// MockGroupedSource is a MockTaskSource that also advertises parallel
// grouping, like the YAML source.
type MockGroupedSource struct {
	MockTaskSource
	Groups map[string]int // Title -> group (0 = ungrouped)
}

// NewMockGroupedSource creates a grouped source over the given tasks.
func NewMockGroupedSource(groups map[string]int, tasks ...domain.Task) *MockGroupedSource {
	return &MockGroupedSource{
		MockTaskSource: *NewMockTaskSource(tasks...),
		Groups:         groups,
	}
}

var (
	_ domain.TaskSource      = (*MockGroupedSource)(nil)
	_ domain.ParallelGrouper = (*MockGroupedSource)(nil)
)

// ParallelGroup returns the group of a task title.
func (m *MockGroupedSource) ParallelGroup(title string) (int, error) {
	return m.Groups[title], nil
}

// TasksInGroup returns the remaining tasks of a group.
func (m *MockGroupedSource) TasksInGroup(group int) ([]domain.Task, error) {
	all, err := m.AllTasks()
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	for _, t := range all {
		if m.Groups[t.Title] == group {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// WorkspaceCall records one Create invocation.
type WorkspaceCall struct {
	TaskTitle  string
	BaseBranch string
	AgentNum   int
}

// CleanupCall records one Cleanup invocation.
type CleanupCall struct {
	WorkspaceDir string
	Branch       string
}

// MockWorkspaceProvider is a test double for domain.WorkspaceProvider.
// Fields are ordered to minimize memory padding.
type MockWorkspaceProvider struct {
	CreateErr    error
	Creates      []WorkspaceCall
	Cleanups     []CleanupCall
	BasePath     string
	LeftInPlace  bool
	CleanupErr   error
	mu           sync.Mutex
}

var _ domain.WorkspaceProvider = (*MockWorkspaceProvider)(nil)

// Base returns the configured base path.
func (m *MockWorkspaceProvider) Base(workDir string) string {
	if m.BasePath != "" {
		return m.BasePath
	}
	return workDir + "/worktrees"
}

// Create records the call and fabricates a workspace.
func (m *MockWorkspaceProvider) Create(taskTitle string, agentNum int, baseBranch, base, workDir string) (*domain.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.Creates = append(m.Creates, WorkspaceCall{TaskTitle: taskTitle, AgentNum: agentNum, BaseBranch: baseBranch})
	return &domain.Workspace{
		Dir:    base + "/" + domain.Slug(taskTitle),
		Branch: domain.BranchName(agentNum, taskTitle),
	}, nil
}

// Cleanup records the call.
func (m *MockWorkspaceProvider) Cleanup(workspaceDir, branch, workDir string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CleanupErr != nil {
		return false, m.CleanupErr
	}
	m.Cleanups = append(m.Cleanups, CleanupCall{WorkspaceDir: workspaceDir, Branch: branch})
	return m.LeftInPlace, nil
}

// MockGit is a test double for domain.Git.
// Fields are ordered to minimize memory padding.
type MockGit struct {
	CurrentBranchName string
	CheckedOut        []string
	MergedBranches    []string
	DeletedBranches   []string
	MergeResults      map[string]*domain.MergeResult
	CurrentBranchErr  error
	AbortedCount      int
	CommitMergeCount  int
	UnmergedAfterFix  bool
}

var _ domain.Git = (*MockGit)(nil)

// CurrentBranch returns the configured branch name.
func (m *MockGit) CurrentBranch(workDir string) (string, error) {
	if m.CurrentBranchErr != nil {
		return "", m.CurrentBranchErr
	}
	return m.CurrentBranchName, nil
}

// CheckoutBranch records the checkout and updates the current branch.
func (m *MockGit) CheckoutBranch(branch, workDir string) error {
	m.CheckedOut = append(m.CheckedOut, branch)
	m.CurrentBranchName = branch
	return nil
}

// MergeBranch returns the scripted result for the branch (default success)
// and moves the current branch to the merge target.
func (m *MockGit) MergeBranch(branch, target, workDir string) (*domain.MergeResult, error) {
	m.CurrentBranchName = target
	m.MergedBranches = append(m.MergedBranches, branch)
	if res, ok := m.MergeResults[branch]; ok {
		return res, nil
	}
	return &domain.MergeResult{Success: true}, nil
}

// AbortMerge counts aborts.
func (m *MockGit) AbortMerge(workDir string) error {
	m.AbortedCount++
	return nil
}

// DeleteLocalBranch records the deletion.
func (m *MockGit) DeleteLocalBranch(branch, workDir string, force bool) error {
	m.DeletedBranches = append(m.DeletedBranches, branch)
	return nil
}

// HasUnmergedPaths returns the configured post-resolution state.
func (m *MockGit) HasUnmergedPaths(workDir string) (bool, error) {
	return m.UnmergedAfterFix, nil
}

// CommitMerge counts merge commits.
func (m *MockGit) CommitMerge(workDir, message string) error {
	m.CommitMergeCount++
	return nil
}

// EngineCall records one Execute invocation.
type EngineCall struct {
	Prompt  string
	WorkDir string
	Opts    domain.ExecuteOptions
}

// MockEngine is a test double for domain.Engine. Results are consumed from
// the script in order; when the script runs out the last entry repeats.
// Fields are ordered to minimize memory padding.
type MockEngine struct {
	Script       []*domain.EngineResult
	Calls        []EngineCall
	StreamLines  []string // Lines fed to onProgress before returning
	EngineName   string
	ExecuteErr   error
	Available    bool
	callCount    int
	mu           sync.Mutex
}

// NewMockEngine creates an available engine returning the scripted results.
func NewMockEngine(script ...*domain.EngineResult) *MockEngine {
	return &MockEngine{
		Script:     script,
		EngineName: "mock",
		Available:  true,
	}
}

var _ domain.StreamingEngine = (*MockEngine)(nil)

// Name returns the configured name.
func (m *MockEngine) Name() string { return m.EngineName }

// Command returns the configured name.
func (m *MockEngine) Command() string { return m.EngineName }

// IsAvailable returns the configured availability.
func (m *MockEngine) IsAvailable() bool { return m.Available }

// Execute consumes the next scripted result.
func (m *MockEngine) Execute(ctx context.Context, prompt, workDir string, opts domain.ExecuteOptions) (*domain.EngineResult, error) {
	return m.ExecuteStreaming(ctx, prompt, workDir, opts.OnProgress, opts)
}

// ExecuteStreaming feeds the configured lines to onProgress, then consumes
// the next scripted result.
func (m *MockEngine) ExecuteStreaming(ctx context.Context, prompt, workDir string, onProgress func(string), opts domain.ExecuteOptions) (*domain.EngineResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, EngineCall{Prompt: prompt, WorkDir: workDir, Opts: opts})
	idx := m.callCount
	m.callCount++
	m.mu.Unlock()

	if m.ExecuteErr != nil {
		return nil, m.ExecuteErr
	}
	if onProgress != nil {
		for _, line := range m.StreamLines {
			onProgress(line)
		}
	}

	if len(m.Script) == 0 {
		return &domain.EngineResult{Success: true, Response: domain.DefaultResponse}, nil
	}
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	return m.Script[idx], nil
}

// MockNotifier collects notifications.
type MockNotifier struct {
	Successes []string
	Failures  []string
	Infos     []string
	Warnings  []string
	mu        sync.Mutex
}

var _ domain.Notifier = (*MockNotifier)(nil)

// Success records a success message.
func (m *MockNotifier) Success(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Successes = append(m.Successes, msg)
}

// Failure records a failure message.
func (m *MockNotifier) Failure(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, msg)
}

// Info records an info message.
func (m *MockNotifier) Info(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Infos = append(m.Infos, msg)
}

// Warn records a warning message.
func (m *MockNotifier) Warn(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Warnings = append(m.Warnings, msg)
}

// AgentUpdate records one UpdateAgent invocation.
type AgentUpdate struct {
	ID    string
	Patch domain.AgentPatch
}

// MockRegistry is a test double for domain.StateRegistry that keeps the
// document in memory and records every update.
type MockRegistry struct {
	Agents         map[string]*domain.AgentRecord
	Summary        domain.Summary
	Updates        []AgentUpdate
	CleanupCalls   int
	mu             sync.Mutex
}

// NewMockRegistry creates an empty registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{Agents: make(map[string]*domain.AgentRecord)}
}

var _ domain.StateRegistry = (*MockRegistry)(nil)

// UpdateAgent applies the patch in memory and records it.
func (m *MockRegistry) UpdateAgent(id string, patch domain.AgentPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.Agents[id]
	if !ok {
		rec = &domain.AgentRecord{Status: domain.StatusPending, Step: domain.StepInitializing}
		m.Agents[id] = rec
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
	m.Updates = append(m.Updates, AgentUpdate{ID: id, Patch: patch})
}

// UpdateSummary applies the patch in memory.
func (m *MockRegistry) UpdateSummary(patch domain.SummaryPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.Total != nil {
		m.Summary.Total = *patch.Total
	}
	if patch.Completed != nil {
		m.Summary.Completed = *patch.Completed
	}
	if patch.Failed != nil {
		m.Summary.Failed = *patch.Failed
	}
	if patch.InProgress != nil {
		m.Summary.InProgress = *patch.InProgress
	}
}

// RemoveAgent deletes the record.
func (m *MockRegistry) RemoveAgent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Agents, id)
}

// CleanupSessions counts invocations.
func (m *MockRegistry) CleanupSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CleanupCalls++
}

// NopLogger is a domain.Logger that discards everything.
type NopLogger struct{}

var _ domain.Logger = (*NopLogger)(nil)

// Debug discards the message.
func (NopLogger) Debug(agentNum int, category, msg string) {}

// Info discards the message.
func (NopLogger) Info(agentNum int, category, msg string) {}

// Warn discards the message.
func (NopLogger) Warn(agentNum int, category, msg string) {}

// Error discards the message.
func (NopLogger) Error(agentNum int, category, msg string) {}
