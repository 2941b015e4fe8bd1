package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/herdctl/herd/internal/domain"
)

// RequirementSource describes the requirement documents copied into each
// workspace before the engine starts.
type RequirementSource struct {
	Path     string // Path relative to the orchestrator working directory
	IsFolder bool   // Recursive copy instead of a single file
}

// AgentParams configures one agent run.
type AgentParams struct {
	Task          domain.Task
	Requirements  RequirementSource
	BaseBranch    string // Branch the workspace forks from
	WorkspaceBase string // Directory workspaces are created under
	WorkDir       string // Orchestrator working directory
	Model         string // Engine model override
	Flags         PromptFlags
	Retry         RetryPolicy
	AgentNum      int  // Global agent number, unique across the run
	Tmux          bool // Run the engine under a tmux session
}

// AgentOutcome is what the runtime hands back to the scheduler. Exactly one
// of Result and Err is meaningful; Err covers workspace preparation and
// driver failures, while engine-reported failures arrive as a Result with
// Success=false. Workspace cleanup is the scheduler's job, never the
// runtime's.
type AgentOutcome struct {
	Result       *domain.EngineResult
	Err          error
	Task         domain.Task
	WorkspaceDir string
	BranchName   string
	AgentNum     int
}

// AgentRunner executes exactly one task in an isolated workspace.
type AgentRunner struct {
	engine     domain.Engine
	workspaces domain.WorkspaceProvider
	state      domain.StateRegistry
	notifier   domain.Notifier
	logger     domain.Logger
}

// NewAgentRunner creates an agent runtime.
func NewAgentRunner(
	engine domain.Engine,
	workspaces domain.WorkspaceProvider,
	state domain.StateRegistry,
	notifier domain.Notifier,
	logger domain.Logger,
) *AgentRunner {
	return &AgentRunner{
		engine:     engine,
		workspaces: workspaces,
		state:      state,
		notifier:   notifier,
		logger:     logger,
	}
}

// Run drives one task through workspace creation, engine execution, and
// outcome recording. It never returns a nil outcome.
func (r *AgentRunner) Run(ctx context.Context, p AgentParams) *AgentOutcome {
	id := strconv.Itoa(p.AgentNum)
	outcome := &AgentOutcome{Task: p.Task, AgentNum: p.AgentNum}

	r.state.UpdateAgent(id, domain.AgentPatch{
		Task:   domain.StringPtr(p.Task.Title),
		Status: domain.StatusPtr(domain.StatusPending),
		Step:   domain.StringPtr(domain.StepCreatingWorktree),
	})

	ws, err := r.workspaces.Create(p.Task.Title, p.AgentNum, p.BaseBranch, p.WorkspaceBase, p.WorkDir)
	if err != nil {
		return r.fail(id, outcome, fmt.Errorf("create workspace: %w", err))
	}
	outcome.WorkspaceDir = ws.Dir
	outcome.BranchName = ws.Branch

	r.state.UpdateAgent(id, domain.AgentPatch{
		Step:     domain.StringPtr(domain.StepPreparingWorktree),
		Worktree: domain.StringPtr(ws.Dir),
	})

	if err := r.copyRequirements(p, ws.Dir); err != nil {
		return r.fail(id, outcome, fmt.Errorf("copy requirements: %w", err))
	}

	if err := os.MkdirAll(filepath.Join(ws.Dir, domain.MetadataDir), 0o750); err != nil {
		return r.fail(id, outcome, fmt.Errorf("create metadata directory: %w", err))
	}

	prompt := BuildTaskPrompt(p.Task.Title, p.Flags)
	slug := domain.Slug(p.Task.Title)

	opts := domain.ExecuteOptions{
		Model:    p.Model,
		Tmux:     p.Tmux,
		AgentID:  id,
		TaskSlug: slug,
		OnProgress: func(line string) {
			if step := domain.DetectStep(line); step != "" {
				r.state.UpdateAgent(id, domain.AgentPatch{Step: domain.StringPtr(step)})
			}
		},
	}

	if p.Tmux {
		session := domain.SessionName(p.AgentNum, p.Task.Title)
		r.state.UpdateAgent(id, domain.AgentPatch{
			Status:      domain.StatusPtr(domain.StatusRunning),
			Step:        domain.StringPtr(domain.StepExecutingTmux),
			TmuxSession: domain.StringPtr(session),
		})
		r.notifier.Info(fmt.Sprintf("agent %d running in tmux; attach with: tmux attach -t %s", p.AgentNum, session))
	} else {
		r.state.UpdateAgent(id, domain.AgentPatch{
			Status: domain.StatusPtr(domain.StatusRunning),
			Step:   domain.StringPtr(domain.StepExecuting),
		})
	}

	r.logger.Info(p.AgentNum, "agent", fmt.Sprintf("executing %s on task %q", r.engine.Name(), p.Task.Title))

	res, err := ExecuteWithRetry(ctx, p.Retry, func() (*domain.EngineResult, error) {
		if streaming, ok := r.engine.(domain.StreamingEngine); ok {
			return streaming.ExecuteStreaming(ctx, prompt, ws.Dir, opts.OnProgress, opts)
		}
		return r.engine.Execute(ctx, prompt, ws.Dir, opts)
	})
	if err != nil {
		return r.fail(id, outcome, fmt.Errorf("execute engine: %w", err))
	}

	outcome.Result = res
	if res.Success {
		r.state.UpdateAgent(id, domain.AgentPatch{
			Status: domain.StatusPtr(domain.StatusCompleted),
			Step:   domain.StringPtr(domain.StepFinished),
		})
		r.logger.Info(p.AgentNum, "agent", fmt.Sprintf("completed (in=%d out=%d tokens)", res.InputTokens, res.OutputTokens))
	} else {
		r.state.UpdateAgent(id, domain.AgentPatch{
			Status: domain.StatusPtr(domain.StatusFailed),
			Step:   domain.StringPtr(domain.StepFailed),
			Error:  domain.StringPtr(res.Error),
		})
		r.logger.Error(p.AgentNum, "agent", "engine failed: "+res.Error)
	}
	return outcome
}

// fail records a runtime-level failure on the agent and the outcome.
func (r *AgentRunner) fail(id string, outcome *AgentOutcome, err error) *AgentOutcome {
	r.state.UpdateAgent(id, domain.AgentPatch{
		Status: domain.StatusPtr(domain.StatusFailed),
		Step:   domain.StringPtr(domain.StepFailed),
		Error:  domain.StringPtr(err.Error()),
	})
	r.logger.Error(outcome.AgentNum, "agent", err.Error())
	outcome.Err = err
	return outcome
}

// copyRequirements copies the requirement source from the orchestrator
// working directory into <workspace>/.herd/requirements. A missing source is
// silently skipped.
func (r *AgentRunner) copyRequirements(p AgentParams, workspaceDir string) error {
	if p.Requirements.Path == "" {
		return nil
	}

	src := p.Requirements.Path
	if !filepath.IsAbs(src) {
		src = filepath.Join(p.WorkDir, src)
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	dst := filepath.Join(workspaceDir, domain.MetadataDir, "requirements")
	if p.Requirements.IsFolder {
		return copyDir(src, dst)
	}
	return copyFile(src, filepath.Join(dst, filepath.Base(src)))
}

// copyFile copies one file, creating intermediate directories.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	in, err := os.Open(src) //nolint:gosec // operator-supplied requirements path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // destination inside the workspace
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}

// copyDir recursively copies a directory tree.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyFile(path, target)
	})
}
