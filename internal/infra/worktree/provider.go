// Package worktree implements the workspace provider on git worktrees.
// Each agent gets its own worktree on its own branch forked from the base
// branch, so agents never contend for the orchestrator's working tree.
package worktree

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/herdctl/herd/internal/domain"
)

// Provider implements domain.WorkspaceProvider.
type Provider struct{}

// NewProvider creates a new worktree provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Ensure Provider implements domain.WorkspaceProvider.
var _ domain.WorkspaceProvider = (*Provider)(nil)

// Base returns the directory under which worktrees are created:
// <gitdir>/herd/worktrees, mirroring where git keeps its own metadata so
// the workspaces never show up as untracked files.
func (p *Provider) Base(workDir string) string {
	cmd := exec.Command("git", "rev-parse", "--git-common-dir")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return filepath.Join(workDir, domain.MetadataDir, "worktrees")
	}

	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(workDir, gitDir)
	}
	return filepath.Join(filepath.Clean(gitDir), "herd", "worktrees")
}

// Create makes a worktree for agentNum on a fresh branch forked from
// baseBranch. The directory is named by agent number under base. A branch
// left over from an earlier run (failed agents keep theirs) is reused
// instead of forked again.
func (p *Provider) Create(taskTitle string, agentNum int, baseBranch, base, workDir string) (*domain.Workspace, error) {
	branch := domain.BranchName(agentNum, taskTitle)
	path := filepath.Join(base, strconv.Itoa(agentNum))

	exists, err := p.branchExists(branch, workDir)
	if err != nil {
		return nil, err
	}
	var args []string
	if exists {
		args = []string{"worktree", "add", path, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, path, baseBranch}
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, cmdErr := cmd.CombinedOutput()
	if cmdErr != nil {
		// A stale registration from an earlier interrupted run blocks the
		// add; prune and retry once.
		if strings.Contains(string(out), "already registered") {
			if pruneErr := p.prune(workDir); pruneErr != nil {
				return nil, fmt.Errorf("prune stale worktrees: %w", pruneErr)
			}
			cmd = exec.Command("git", args...)
			cmd.Dir = workDir
			out, err = cmd.CombinedOutput()
			if err != nil {
				return nil, fmt.Errorf("create worktree after prune: %w: %s", err, string(out))
			}
		} else {
			return nil, fmt.Errorf("create worktree: %w: %s", cmdErr, string(out))
		}
	}

	return &domain.Workspace{Dir: path, Branch: branch}, nil
}

// Cleanup removes the worktree. The branch is left alone: completed branches
// are deleted by the merge pipeline after merging, and failed branches are
// kept for manual review. Returns leftInPlace=true when uncommitted changes
// prevented removal.
func (p *Provider) Cleanup(workspaceDir, branch, workDir string) (bool, error) {
	cmd := exec.Command("git", "worktree", "remove", workspaceDir)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(out)
		if strings.Contains(outStr, "contains modified or untracked files") ||
			strings.Contains(outStr, "is dirty") {
			return true, nil
		}
		return false, fmt.Errorf("remove worktree: %w: %s", err, outStr)
	}

	_ = p.prune(workDir)
	return false, nil
}

// branchExists checks if a local branch exists.
func (p *Provider) branchExists(branch, workDir string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch) //nolint:gosec // branch follows herd naming
	cmd.Dir = workDir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("check branch exists: %w", err)
}

// prune removes stale worktree registrations.
func (p *Provider) prune(workDir string) error {
	cmd := exec.Command("git", "worktree", "prune")
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("prune worktrees: %w: %s", err, string(out))
	}
	return nil
}
