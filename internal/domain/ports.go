package domain

import (
	"context"
	"time"
)

// TaskSource supplies the backlog of tasks to orchestrate.
// Implementations must return only remaining (not yet completed) tasks.
type TaskSource interface {
	// NextTask returns the next remaining task, or nil when the source is drained.
	NextTask() (*Task, error)

	// AllTasks returns all remaining tasks.
	AllTasks() ([]Task, error)

	// MarkComplete records a task as done in the backing store.
	MarkComplete(id string) error

	// CountRemaining returns the number of remaining tasks.
	CountRemaining() (int, error)
}

// ParallelGrouper is an optional TaskSource capability: sources that group
// tasks for concurrent execution. A group of 0 means the task is ungrouped.
type ParallelGrouper interface {
	// ParallelGroup returns the group number for a task title (0 = no group).
	ParallelGroup(title string) (int, error)

	// TasksInGroup returns the remaining tasks belonging to a group.
	TasksInGroup(group int) ([]Task, error)
}

// Workspace is an isolated checkout produced for one agent.
type Workspace struct {
	Dir    string // Worktree directory
	Branch string // Branch the worktree is on
}

// WorkspaceProvider creates and destroys isolated per-agent workspaces.
type WorkspaceProvider interface {
	// Base returns the directory under which workspaces are created.
	Base(workDir string) string

	// Create makes a worktree on the agent's branch, forking the branch from
	// baseBranch when it does not exist yet.
	Create(taskTitle string, agentNum int, baseBranch, base, workDir string) (*Workspace, error)

	// Cleanup removes the workspace; the branch is not deleted. Returns
	// leftInPlace=true when uncommitted changes prevented removal.
	Cleanup(workspaceDir, branch, workDir string) (leftInPlace bool, err error)
}

// MergeResult describes the outcome of merging an agent branch.
// Fields are ordered to minimize memory padding.
type MergeResult struct {
	ConflictedFiles []string // Set when HasConflicts
	Error           string   // Set on non-conflict failure
	Success         bool
	HasConflicts    bool
}

// Git provides the repository operations the scheduler and merge pipeline need.
type Git interface {
	// CurrentBranch returns the checked-out branch in workDir.
	CurrentBranch(workDir string) (string, error)

	// CheckoutBranch switches workDir back to the given branch.
	CheckoutBranch(branch, workDir string) error

	// MergeBranch merges branch into target inside workDir.
	MergeBranch(branch, target, workDir string) (*MergeResult, error)

	// AbortMerge returns the working tree to its pre-merge state.
	AbortMerge(workDir string) error

	// DeleteLocalBranch deletes a local branch, forcing if requested.
	DeleteLocalBranch(branch, workDir string, force bool) error

	// HasUnmergedPaths reports whether conflict markers remain unresolved.
	HasUnmergedPaths(workDir string) (bool, error)

	// CommitMerge concludes an in-progress merge with the given message.
	CommitMerge(workDir, message string) error
}

// ExecuteOptions configures one engine invocation.
// Fields are ordered to minimize memory padding.
type ExecuteOptions struct {
	OnProgress func(line string) // Receives streamed output lines
	Model      string            // Model override (empty = engine default)
	AgentID    string            // Global agent number as decimal string
	TaskSlug   string            // Slug of the task title
	Tmux       bool              // Run under a terminal-multiplexer session
}

// EngineResult is the outcome of one engine invocation.
// Fields are ordered to minimize memory padding.
type EngineResult struct {
	Response     string  // Final result text
	Error        string  // Engine-reported error (set when !Success)
	CostUSD      float64 // Reported cost, if any
	InputTokens  int
	OutputTokens int
	Success      bool
}

// Engine is an AI command-line assistant the orchestrator can drive.
type Engine interface {
	// Name returns the display name.
	Name() string

	// Command returns the executable name looked up on PATH.
	Command() string

	// IsAvailable reports whether the engine command is installed.
	IsAvailable() bool

	// Execute runs the engine with a prompt in workDir and blocks until done.
	Execute(ctx context.Context, prompt, workDir string, opts ExecuteOptions) (*EngineResult, error)
}

// StreamingEngine is an Engine that can stream output line by line.
type StreamingEngine interface {
	Engine

	// ExecuteStreaming runs the engine, delivering each output line to
	// onProgress in stream order before returning the final result.
	ExecuteStreaming(ctx context.Context, prompt, workDir string, onProgress func(string), opts ExecuteOptions) (*EngineResult, error)
}

// StateRegistry records agent and summary state for external observers.
// All methods are safe for concurrent use; write failures are swallowed
// because the state file is observability, not truth.
type StateRegistry interface {
	// UpdateAgent applies a patch to an agent record, creating it with
	// defaults if missing.
	UpdateAgent(id string, patch AgentPatch)

	// UpdateSummary applies a patch to the run summary.
	UpdateSummary(patch SummaryPatch)

	// RemoveAgent deletes an agent record.
	RemoveAgent(id string)

	// CleanupSessions best-effort kills the tmux session of every agent
	// still pending or running. Idempotent.
	CleanupSessions()
}

// Notifier surfaces run progress to the operator.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
	Info(msg string)
	Warn(msg string)
}

// Logger writes diagnostic output to the run log files.
// agentNum 0 targets the global log only.
type Logger interface {
	Debug(agentNum int, category, msg string)
	Info(agentNum int, category, msg string)
	Warn(agentNum int, category, msg string)
	Error(agentNum int, category, msg string)
}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
