package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/herdctl/herd/internal/domain"
)

// MergeSummary reports the outcome of the merge pipeline.
type MergeSummary struct {
	Merged []string // Branches merged (and then force-deleted)
	Failed []string // Branches kept for manual review
}

// MergePipeline merges completed agent branches into the base branch,
// strictly sequentially, resolving conflicts with the engine when needed.
type MergePipeline struct {
	git      domain.Git
	engine   domain.Engine
	notifier domain.Notifier
	logger   domain.Logger
}

// NewMergePipeline creates a merge pipeline.
func NewMergePipeline(git domain.Git, engine domain.Engine, notifier domain.Notifier, logger domain.Logger) *MergePipeline {
	return &MergePipeline{
		git:      git,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
	}
}

// Merge merges each branch into target in the order produced by the
// scheduler. Merged branches are force-deleted afterward; failed branches
// are preserved.
func (m *MergePipeline) Merge(ctx context.Context, branches []string, target, workDir string) *MergeSummary {
	summary := &MergeSummary{}

	for _, branch := range branches {
		res, err := m.git.MergeBranch(branch, target, workDir)
		switch {
		case err != nil:
			m.logger.Error(0, "merge", fmt.Sprintf("merge %s: %v", branch, err))
			summary.Failed = append(summary.Failed, branch)
		case res.Success:
			summary.Merged = append(summary.Merged, branch)
		case res.HasConflicts:
			m.notifier.Info(fmt.Sprintf("branch %s conflicts in %d file(s); resolving with %s",
				branch, len(res.ConflictedFiles), m.engine.Name()))
			if m.resolveConflicts(ctx, branch, res.ConflictedFiles, workDir) {
				summary.Merged = append(summary.Merged, branch)
			} else {
				if abortErr := m.git.AbortMerge(workDir); abortErr != nil {
					m.logger.Error(0, "merge", fmt.Sprintf("abort merge of %s: %v", branch, abortErr))
				}
				summary.Failed = append(summary.Failed, branch)
			}
		default:
			m.logger.Error(0, "merge", fmt.Sprintf("merge %s: %s", branch, res.Error))
			summary.Failed = append(summary.Failed, branch)
		}
	}

	for _, branch := range summary.Merged {
		if err := m.git.DeleteLocalBranch(branch, workDir, true); err != nil {
			m.logger.Warn(0, "merge", fmt.Sprintf("delete branch %s: %v", branch, err))
		}
	}

	m.notifier.Success(fmt.Sprintf("merged %d branch(es), %d failed", len(summary.Merged), len(summary.Failed)))
	if len(summary.Failed) > 0 {
		m.notifier.Warn("kept for manual review: " + strings.Join(summary.Failed, ", "))
	}
	return summary
}

// resolveConflicts asks the engine to resolve the in-progress merge, then
// verifies no unmerged paths remain and concludes the merge commit.
func (m *MergePipeline) resolveConflicts(ctx context.Context, branch string, files []string, workDir string) bool {
	prompt := BuildConflictPrompt(branch, files)

	res, err := m.engine.Execute(ctx, prompt, workDir, domain.ExecuteOptions{})
	if err != nil {
		m.logger.Error(0, "merge", fmt.Sprintf("conflict resolution for %s: %v", branch, err))
		return false
	}
	if !res.Success {
		m.logger.Error(0, "merge", fmt.Sprintf("conflict resolution for %s: %s", branch, res.Error))
		return false
	}

	unmerged, err := m.git.HasUnmergedPaths(workDir)
	if err != nil || unmerged {
		return false
	}

	if err := m.git.CommitMerge(workDir, fmt.Sprintf("Merge branch '%s' (conflicts resolved)", branch)); err != nil {
		m.logger.Error(0, "merge", fmt.Sprintf("commit merge of %s: %v", branch, err))
		return false
	}
	return true
}
