package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/testutil"
)

type fixture struct {
	engine   *testutil.MockEngine
	source   domain.TaskSource
	ws       *testutil.MockWorkspaceProvider
	git      *testutil.MockGit
	reg      *testutil.MockRegistry
	notifier *testutil.MockNotifier
	clock    *testutil.MockClock
}

func newFixture(source domain.TaskSource, engine *testutil.MockEngine) *fixture {
	return &fixture{
		engine:   engine,
		source:   source,
		ws:       &testutil.MockWorkspaceProvider{},
		git:      &testutil.MockGit{CurrentBranchName: "main"},
		reg:      testutil.NewMockRegistry(),
		notifier: &testutil.MockNotifier{},
		clock:    &testutil.MockClock{NowTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(f.engine, f.source, f.ws, f.git, f.reg, f.notifier, testutil.NopLogger{}, f.clock)
}

func defaultOpts(t *testing.T) RunOptions {
	t.Helper()
	return RunOptions{
		WorkDir:     t.TempDir(),
		MaxParallel: 4,
		MaxRetries:  0,
		RetryDelay:  time.Millisecond,
	}
}

func task(n int) domain.Task {
	return domain.Task{ID: fmt.Sprintf("t%d", n), Title: fmt.Sprintf("Task %d", n)}
}

func TestOrchestrator_AllTasksSucceedAndMerge(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1), task(2)), testutil.NewMockEngine())

	err := f.orchestrator().Run(context.Background(), defaultOpts(t))
	require.NoError(t, err)

	// Both tasks completed, branches merged in launch order, then deleted.
	assert.Equal(t, []string{"herd-1-task-1", "herd-2-task-2"}, f.git.MergedBranches)
	assert.Equal(t, []string{"herd-1-task-1", "herd-2-task-2"}, f.git.DeletedBranches)
	assert.Equal(t, 2, f.reg.Summary.Completed)
	assert.Equal(t, 0, f.reg.Summary.Failed)
	assert.Equal(t, 2, f.reg.Summary.Total)
	assert.Len(t, f.ws.Cleanups, 2)
	assert.Contains(t, f.notifier.Successes[len(f.notifier.Successes)-2], "all tasks complete")
}

func TestOrchestrator_AgentNumbersUniqueAndIncreasing(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1), task(2), task(3)), testutil.NewMockEngine())

	opts := defaultOpts(t)
	opts.MaxParallel = 1 // Forces one batch per task across iterations.
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	require.Len(t, f.ws.Creates, 3)
	for i, call := range f.ws.Creates {
		assert.Equal(t, i+1, call.AgentNum)
	}
}

func TestOrchestrator_MaxParallelOneIsSequential(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1), task(2), task(3)), testutil.NewMockEngine())

	opts := defaultOpts(t)
	opts.MaxParallel = 1
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	// completedBranches order equals source iteration order.
	assert.Equal(t, []string{"herd-1-task-1", "herd-2-task-2", "herd-3-task-3"}, f.git.MergedBranches)
}

func TestOrchestrator_FailureMemoization(t *testing.T) {
	f := newFixture(
		testutil.NewMockTaskSource(task(1)),
		testutil.NewMockEngine(&domain.EngineResult{Error: "invalid API key"}),
	)

	require.NoError(t, f.orchestrator().Run(context.Background(), defaultOpts(t)))

	// The engine ran once; the second iteration filtered the failed task and
	// stopped with the warning instead of retrying it.
	assert.Len(t, f.engine.Calls, 1)
	assert.Equal(t, 1, f.reg.Summary.Failed)
	assert.True(t, hasWarning(f.notifier, "previously failed"),
		"expected a 'previously failed' warning, got %v", f.notifier.Warnings)
}

func hasWarning(n *testutil.MockNotifier, substr string) bool {
	for _, w := range n.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestOrchestrator_MixedBatchContinues(t *testing.T) {
	// Task 1 fails permanently, task 2 succeeds; the run continues and the
	// successful branch still merges.
	f := newFixture(
		testutil.NewMockTaskSource(task(1), task(2)),
		testutil.NewMockEngine(),
	)
	f.engine.Script = []*domain.EngineResult{
		{Error: "invalid API key"},
		{Success: true},
	}

	opts := defaultOpts(t)
	opts.MaxParallel = 1
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	assert.Equal(t, 1, f.reg.Summary.Completed)
	assert.Equal(t, 1, f.reg.Summary.Failed)
	assert.Equal(t, []string{"herd-2-task-2"}, f.git.MergedBranches)
}

func TestOrchestrator_MaxIterationsBound(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1), task(2), task(3)), testutil.NewMockEngine())

	opts := defaultOpts(t)
	opts.MaxParallel = 1
	opts.MaxIterations = 2
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	// Only two agents ran; the third task stayed in the source.
	assert.Len(t, f.ws.Creates, 2)
	remaining, _ := f.source.AllTasks()
	require.Len(t, remaining, 1)
	assert.Equal(t, "t3", remaining[0].ID)
}

func TestOrchestrator_DryRunLaunchesNothing(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1)), testutil.NewMockEngine())

	opts := defaultOpts(t)
	opts.DryRun = true
	opts.MaxIterations = 1
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	assert.Empty(t, f.engine.Calls)
	assert.Empty(t, f.ws.Creates)
	assert.Empty(t, f.git.MergedBranches)
}

func TestOrchestrator_GroupedSourceBatchesWholeGroup(t *testing.T) {
	groups := map[string]int{"Task 1": 7, "Task 2": 7, "Task 3": 0}
	f := newFixture(
		testutil.NewMockGroupedSource(groups, task(1), task(2), task(3)),
		testutil.NewMockEngine(),
	)

	require.NoError(t, f.orchestrator().Run(context.Background(), defaultOpts(t)))

	// First batch was the whole group (agents 1 and 2, launched together so
	// creation order within the batch is unspecified), second the singleton.
	require.Len(t, f.ws.Creates, 3)
	firstBatch := []string{f.ws.Creates[0].TaskTitle, f.ws.Creates[1].TaskTitle}
	assert.ElementsMatch(t, []string{"Task 1", "Task 2"}, firstBatch)
	assert.Equal(t, "Task 3", f.ws.Creates[2].TaskTitle)
}

func TestOrchestrator_TmuxPreservesFailedWorkspace(t *testing.T) {
	f := newFixture(
		testutil.NewMockTaskSource(task(1)),
		testutil.NewMockEngine(&domain.EngineResult{Error: "assertion failed"}),
	)

	opts := defaultOpts(t)
	opts.Tmux = true
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	// No cleanup for the failed tmux agent; the path is surfaced instead.
	assert.Empty(t, f.ws.Cleanups)
	assert.True(t, hasWarning(f.notifier, "preserved for debugging"))
}

func TestOrchestrator_LeftInPlaceNotice(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1)), testutil.NewMockEngine())
	f.ws.LeftInPlace = true

	require.NoError(t, f.orchestrator().Run(context.Background(), defaultOpts(t)))

	assert.True(t, hasWarning(f.notifier, "left in place"))
}

func TestOrchestrator_SkipMergeLeavesBranches(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1)), testutil.NewMockEngine())

	opts := defaultOpts(t)
	opts.SkipMerge = true
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	assert.Empty(t, f.git.MergedBranches)
	assert.Empty(t, f.git.DeletedBranches)
}

func TestOrchestrator_StartingBranchRestored(t *testing.T) {
	// Start on feat/x with no explicit base branch: merges land on feat/x
	// and the run ends back on feat/x.
	f := newFixture(testutil.NewMockTaskSource(task(1), task(2)), testutil.NewMockEngine())
	f.git.CurrentBranchName = "feat/x"

	require.NoError(t, f.orchestrator().Run(context.Background(), defaultOpts(t)))

	assert.Equal(t, "feat/x", f.git.CurrentBranchName)
	assert.Len(t, f.git.MergedBranches, 2)
}

func TestOrchestrator_ExplicitBaseBranchRestoresStartingBranch(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1)), testutil.NewMockEngine())
	f.git.CurrentBranchName = "feat/x"

	opts := defaultOpts(t)
	opts.BaseBranch = "main"
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	// The merge moved HEAD to main; afterwards the scheduler checked the
	// starting branch back out.
	assert.Contains(t, f.git.CheckedOut, "feat/x")
	assert.Equal(t, "feat/x", f.git.CurrentBranchName)
}

func TestOrchestrator_NoMergeWhenNothingCompleted(t *testing.T) {
	f := newFixture(
		testutil.NewMockTaskSource(task(1)),
		testutil.NewMockEngine(&domain.EngineResult{Error: "broken"}),
	)

	require.NoError(t, f.orchestrator().Run(context.Background(), defaultOpts(t)))

	assert.Empty(t, f.git.MergedBranches)
	assert.Empty(t, f.git.CheckedOut)
}

func TestOrchestrator_TotalPublishedOnce(t *testing.T) {
	f := newFixture(testutil.NewMockTaskSource(task(1), task(2), task(3)), testutil.NewMockEngine())

	opts := defaultOpts(t)
	opts.MaxParallel = 1
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	// Total reflects the count at run start, not the shrinking remainder.
	assert.Equal(t, 3, f.reg.Summary.Total)
	assert.Equal(t, 3, f.reg.Summary.Completed)
}

func TestOrchestrator_SummaryInvariant(t *testing.T) {
	f := newFixture(
		testutil.NewMockTaskSource(task(1), task(2)),
		testutil.NewMockEngine(),
	)
	f.engine.Script = []*domain.EngineResult{
		{Success: true},
		{Error: "broken"},
	}

	opts := defaultOpts(t)
	opts.MaxParallel = 1
	require.NoError(t, f.orchestrator().Run(context.Background(), opts))

	s := f.reg.Summary
	assert.LessOrEqual(t, s.Completed+s.Failed, s.Total)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
}
