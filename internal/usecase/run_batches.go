package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/herdctl/herd/internal/domain"
)

// RunOptions configures one orchestration run.
// Fields are ordered to minimize memory padding.
type RunOptions struct {
	WorkDir       string
	BaseBranch    string // Merge target (empty = starting branch)
	Model         string // Engine model override
	Requirements  RequirementSource
	RetryDelay    time.Duration
	MaxIterations int // Batch loop bound (0 = unlimited)
	MaxParallel   int // Agents per batch
	MaxRetries    int // Additional engine attempts on transient errors
	SkipTests     bool
	SkipLint      bool
	Browser       bool
	DryRun        bool
	SkipMerge     bool
	Tmux          bool
}

// Orchestrator is the parallel scheduler: it batches tasks from the source,
// fans out agent runtimes, collects results, drives the merge pipeline, and
// restores the starting branch.
type Orchestrator struct {
	engine     domain.Engine
	source     domain.TaskSource
	workspaces domain.WorkspaceProvider
	git        domain.Git
	state      domain.StateRegistry
	notifier   domain.Notifier
	logger     domain.Logger
	clock      domain.Clock
}

// NewOrchestrator creates a scheduler over the given collaborators.
func NewOrchestrator(
	engine domain.Engine,
	source domain.TaskSource,
	workspaces domain.WorkspaceProvider,
	git domain.Git,
	state domain.StateRegistry,
	notifier domain.Notifier,
	logger domain.Logger,
	clock domain.Clock,
) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		source:     source,
		workspaces: workspaces,
		git:        git,
		state:      state,
		notifier:   notifier,
		logger:     logger,
		clock:      clock,
	}
}

// Run executes the batch loop until the source drains, every remaining task
// has failed, or the iteration bound is reached, then merges the completed
// branches and restores the starting branch.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) error {
	workspaceBase := o.workspaces.Base(opts.WorkDir)

	startingBranch, err := o.git.CurrentBranch(opts.WorkDir)
	if err != nil {
		return fmt.Errorf("get current branch: %w", err)
	}
	baseBranch := opts.BaseBranch
	if baseBranch == "" {
		baseBranch = startingBranch
	}

	runner := NewAgentRunner(o.engine, o.workspaces, o.state, o.notifier, o.logger)
	retry := RetryPolicy{MaxRetries: opts.MaxRetries, Delay: opts.RetryDelay}

	var completedBranches []string
	failedTaskIDs := make(map[string]bool)
	globalAgentNum := 0
	iteration := 0
	totalPublished := false
	completedCount := 0
	failedCount := 0

	for {
		if opts.MaxIterations > 0 && iteration >= opts.MaxIterations {
			o.notifier.Info(fmt.Sprintf("reached iteration limit (%d); stopping", opts.MaxIterations))
			break
		}

		batch, filtered, err := o.nextBatch(failedTaskIDs)
		if err != nil {
			return fmt.Errorf("select batch: %w", err)
		}
		if len(batch) == 0 {
			if filtered {
				o.notifier.Warn("some tasks are still pending but previously failed; stopping")
			} else {
				o.notifier.Success("all tasks complete")
			}
			break
		}

		if !totalPublished {
			if total, countErr := o.source.CountRemaining(); countErr == nil {
				o.state.UpdateSummary(domain.SummaryPatch{Total: domain.IntPtr(total)})
			}
			totalPublished = true
		}

		if len(batch) > opts.MaxParallel {
			batch = batch[:opts.MaxParallel]
		}
		iteration++
		o.state.UpdateSummary(domain.SummaryPatch{InProgress: domain.IntPtr(len(batch))})

		if opts.DryRun {
			for _, task := range batch {
				o.notifier.Info(fmt.Sprintf("dry run: would start agent for %q", task.Title))
			}
			continue
		}

		o.notifier.Info(fmt.Sprintf("iteration %d: launching %d agent(s)", iteration, len(batch)))

		// Fan out one runtime per task; the barrier below waits for the
		// whole batch before any result is processed.
		outcomes := make([]*AgentOutcome, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, task := range batch {
			globalAgentNum++
			params := AgentParams{
				Task:          task,
				AgentNum:      globalAgentNum,
				BaseBranch:    baseBranch,
				WorkspaceBase: workspaceBase,
				WorkDir:       opts.WorkDir,
				Requirements:  opts.Requirements,
				Model:         opts.Model,
				Flags: PromptFlags{
					SkipTests:      opts.SkipTests,
					SkipLint:       opts.SkipLint,
					BrowserEnabled: opts.Browser,
				},
				Retry: retry,
				Tmux:  opts.Tmux,
			}
			g.Go(func() error {
				outcomes[i] = runner.Run(gctx, params)
				return nil
			})
		}
		_ = g.Wait()

		// Process results in the order tasks were launched so that
		// completedBranches is deterministic for a fixed batch order.
		for i, out := range outcomes {
			task := batch[i]
			succeeded := out.Err == nil && out.Result != nil && out.Result.Success

			if succeeded {
				if markErr := o.source.MarkComplete(task.ID); markErr != nil {
					o.logger.Warn(out.AgentNum, "scheduler", fmt.Sprintf("mark complete %s: %v", task.ID, markErr))
				}
				o.recordProgress(opts.WorkDir, task, true, "")
				completedCount++
				o.state.UpdateSummary(domain.SummaryPatch{Completed: domain.IntPtr(completedCount)})
				o.notifier.Success(fmt.Sprintf("agent %d completed %q", out.AgentNum, task.Title))
				if out.BranchName != "" {
					completedBranches = append(completedBranches, out.BranchName)
				}
			} else {
				errMsg := outcomeError(out)
				o.logger.Error(out.AgentNum, "scheduler", fmt.Sprintf("task %q failed: %s", task.Title, errMsg))
				o.recordProgress(opts.WorkDir, task, false, errMsg)
				failedCount++
				o.state.UpdateSummary(domain.SummaryPatch{Failed: domain.IntPtr(failedCount)})
				failedTaskIDs[task.ID] = true
				o.notifier.Failure(fmt.Sprintf("agent %d failed %q: %s", out.AgentNum, task.Title, errMsg))
			}

			o.cleanupWorkspace(opts, out, succeeded)
		}
	}

	if !opts.SkipMerge && !opts.DryRun && len(completedBranches) > 0 {
		merger := NewMergePipeline(o.git, o.engine, o.notifier, o.logger)
		merger.Merge(ctx, completedBranches, baseBranch, opts.WorkDir)

		current, curErr := o.git.CurrentBranch(opts.WorkDir)
		if curErr == nil && current != startingBranch {
			if err := o.git.CheckoutBranch(startingBranch, opts.WorkDir); err != nil {
				o.notifier.Warn(fmt.Sprintf("could not return to branch %s: %v", startingBranch, err))
			}
		}
	}

	return nil
}

// nextBatch selects the next set of tasks. Sources with parallel grouping
// contribute the full group of the next task (or a singleton); other sources
// contribute all remaining tasks. Previously failed tasks are filtered out;
// filtered reports whether the filter removed anything.
func (o *Orchestrator) nextBatch(failed map[string]bool) (batch []domain.Task, filtered bool, err error) {
	var candidates []domain.Task

	if grouper, ok := o.source.(domain.ParallelGrouper); ok {
		next, err := o.source.NextTask()
		if err != nil {
			return nil, false, err
		}
		if next == nil {
			return nil, false, nil
		}
		group, err := grouper.ParallelGroup(next.Title)
		if err != nil {
			return nil, false, err
		}
		if group > 0 {
			candidates, err = grouper.TasksInGroup(group)
			if err != nil {
				return nil, false, err
			}
		} else {
			candidates = []domain.Task{*next}
		}
	} else {
		var err error
		candidates, err = o.source.AllTasks()
		if err != nil {
			return nil, false, err
		}
	}

	for _, task := range candidates {
		if failed[task.ID] {
			filtered = true
			continue
		}
		batch = append(batch, task)
	}
	return batch, filtered, nil
}

// cleanupWorkspace applies the post-batch cleanup policy: failed tmux agents
// keep their workspace for debugging, everything else is removed via the
// workspace provider.
func (o *Orchestrator) cleanupWorkspace(opts RunOptions, out *AgentOutcome, succeeded bool) {
	if out.WorkspaceDir == "" {
		return
	}

	if opts.Tmux && !succeeded {
		o.notifier.Warn(fmt.Sprintf("workspace preserved for debugging: %s", out.WorkspaceDir))
		return
	}

	leftInPlace, err := o.workspaces.Cleanup(out.WorkspaceDir, out.BranchName, opts.WorkDir)
	if err != nil {
		o.logger.Warn(out.AgentNum, "scheduler", fmt.Sprintf("cleanup workspace: %v", err))
		return
	}
	if leftInPlace {
		o.notifier.Warn(fmt.Sprintf("workspace left in place (uncommitted changes): %s", out.WorkspaceDir))
	}
}

// outcomeError extracts the failure message from an outcome.
func outcomeError(out *AgentOutcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if out.Result != nil && out.Result.Error != "" {
		return out.Result.Error
	}
	return "unknown failure"
}

// recordProgress appends one outcome line to the per-workspace progress file.
// Failures to record are ignored; the progress file is advisory.
func (o *Orchestrator) recordProgress(workDir string, task domain.Task, succeeded bool, errMsg string) {
	path := domain.ProgressLogPath(workDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return
	}

	status := "done"
	if !succeeded {
		status = "failed"
	}
	line := fmt.Sprintf("[%s] %s %s (%s)", o.clock.Now().Format(time.RFC3339), status, task.Title, task.ID)
	if errMsg != "" {
		line += ": " + errMsg
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // advisory progress log
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = fmt.Fprintln(f, line)
}
