// Package git provides the repository operations used by the scheduler and
// the merge pipeline. The current-branch query goes through go-git; mutating
// commands (merge, checkout, branch deletion) and the conflict and
// merge-in-progress checks shell out to the git binary so behavior matches
// what a developer would get on the command line.
package git

import (
	"fmt"
	"os/exec"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"github.com/herdctl/herd/internal/domain"
)

// Client implements domain.Git.
type Client struct{}

// NewClient creates a new git client.
func NewClient() *Client {
	return &Client{}
}

// Ensure Client implements domain.Git.
var _ domain.Git = (*Client)(nil)

// open opens the repository containing dir, detecting .git upward.
func open(dir string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == gogit.ErrRepositoryNotExists {
			return nil, domain.ErrNotGitRepository
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

// CurrentBranch returns the checked-out branch in workDir.
func (c *Client) CurrentBranch(workDir string) (string, error) {
	repo, err := open(workDir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash().String()[:8])
	}
	return head.Name().Short(), nil
}

// CheckoutBranch switches workDir back to the given branch.
func (c *Client) CheckoutBranch(branch, workDir string) error {
	cmd := exec.Command("git", "checkout", branch)
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("checkout %s: %w: %s", branch, err, string(out))
	}
	return nil
}

// MergeBranch merges branch into target inside workDir, checking out target
// first when it is not the current branch. A conflicted merge is left in
// progress so the conflict-resolution workflow can operate on the working tree.
func (c *Client) MergeBranch(branch, target, workDir string) (*domain.MergeResult, error) {
	current, err := c.CurrentBranch(workDir)
	if err != nil {
		return nil, err
	}
	if current != target {
		if err := c.CheckoutBranch(target, workDir); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command("git", "merge", "--no-ff", branch,
		"-m", fmt.Sprintf("Merge branch '%s'", branch))
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return &domain.MergeResult{Success: true}, nil
	}

	conflicted, listErr := c.conflictedFiles(workDir)
	if listErr == nil && len(conflicted) > 0 {
		return &domain.MergeResult{
			HasConflicts:    true,
			ConflictedFiles: conflicted,
		}, nil
	}

	return &domain.MergeResult{
		Error: strings.TrimSpace(string(out)),
	}, nil
}

// AbortMerge returns the working tree to its pre-merge state.
func (c *Client) AbortMerge(workDir string) error {
	cmd := exec.Command("git", "merge", "--abort")
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("abort merge: %w: %s", err, string(out))
	}
	return nil
}

// DeleteLocalBranch deletes a local branch, forcing with -D if requested.
func (c *Client) DeleteLocalBranch(branch, workDir string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	cmd := exec.Command("git", "branch", flag, branch)
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("delete branch %s: %w: %s", branch, err, string(out))
	}
	return nil
}

// HasUnmergedPaths reports whether conflicted files remain in workDir.
func (c *Client) HasUnmergedPaths(workDir string) (bool, error) {
	files, err := c.conflictedFiles(workDir)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// CommitMerge concludes an in-progress merge with the given message.
// A no-op when no merge is in progress.
func (c *Client) CommitMerge(workDir, message string) error {
	if !c.mergeInProgress(workDir) {
		return nil
	}

	add := exec.Command("git", "add", "-A")
	add.Dir = workDir
	if out, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("stage resolved files: %w: %s", err, string(out))
	}

	commit := exec.Command("git", "commit", "--no-verify", "-m", message)
	commit.Dir = workDir
	if out, err := commit.CombinedOutput(); err != nil {
		return fmt.Errorf("commit merge: %w: %s", err, string(out))
	}
	return nil
}

// conflictedFiles lists paths with unresolved conflicts.
func (c *Client) conflictedFiles(workDir string) ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list conflicted files: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// mergeInProgress checks for MERGE_HEAD.
func (c *Client) mergeInProgress(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "-q", "--verify", "MERGE_HEAD")
	cmd.Dir = workDir
	return cmd.Run() == nil
}
