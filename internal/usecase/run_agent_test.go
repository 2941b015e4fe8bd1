package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/testutil"
)

func agentParams(t *testing.T, task domain.Task, num int) AgentParams {
	t.Helper()
	return AgentParams{
		Task:          task,
		AgentNum:      num,
		BaseBranch:    "main",
		WorkspaceBase: t.TempDir(),
		WorkDir:       t.TempDir(),
		Retry:         RetryPolicy{MaxRetries: 1, Delay: time.Millisecond},
	}
}

func TestAgentRunner_Success(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Success: true, Response: "ok"})
	ws := &testutil.MockWorkspaceProvider{}
	reg := testutil.NewMockRegistry()
	notifier := &testutil.MockNotifier{}
	runner := NewAgentRunner(eng, ws, reg, notifier, testutil.NopLogger{})

	out := runner.Run(context.Background(), agentParams(t, domain.Task{ID: "t1", Title: "Fix login"}, 1))

	require.NoError(t, out.Err)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Success)
	assert.Equal(t, "herd-1-fix-login", out.BranchName)
	assert.NotEmpty(t, out.WorkspaceDir)

	rec := reg.Agents["1"]
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, domain.StepFinished, rec.Step)
	assert.Equal(t, "Fix login", rec.Task)

	// Prompt carries the task title.
	require.Len(t, eng.Calls, 1)
	assert.Contains(t, eng.Calls[0].Prompt, "Fix login")
}

func TestAgentRunner_StepUpdatesFromStream(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Success: true})
	eng.StreamLines = []string{
		`{"tool":"Read","file_path":"auth.go"}`,
		`{"tool":"Edit","file_path":"auth.go"}`,
	}
	ws := &testutil.MockWorkspaceProvider{}
	reg := testutil.NewMockRegistry()
	runner := NewAgentRunner(eng, ws, reg, &testutil.MockNotifier{}, testutil.NopLogger{})

	runner.Run(context.Background(), agentParams(t, domain.Task{ID: "t1", Title: "x"}, 1))

	var steps []string
	for _, u := range reg.Updates {
		if u.Patch.Step != nil {
			steps = append(steps, *u.Patch.Step)
		}
	}
	assert.Contains(t, steps, domain.StepReadingCode)
	assert.Contains(t, steps, domain.StepImplementing)
}

func TestAgentRunner_EngineFailure(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Error: "prompt too long"})
	reg := testutil.NewMockRegistry()
	runner := NewAgentRunner(eng, &testutil.MockWorkspaceProvider{}, reg, &testutil.MockNotifier{}, testutil.NopLogger{})

	out := runner.Run(context.Background(), agentParams(t, domain.Task{ID: "t1", Title: "x"}, 2))

	require.NoError(t, out.Err)
	require.NotNil(t, out.Result)
	assert.False(t, out.Result.Success)

	rec := reg.Agents["2"]
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, domain.StepFailed, rec.Step)
	assert.Equal(t, "prompt too long", rec.Error)
}

func TestAgentRunner_RetriesTransientError(t *testing.T) {
	eng := testutil.NewMockEngine(
		&domain.EngineResult{Error: "ECONNRESET"},
		&domain.EngineResult{Success: true},
	)
	reg := testutil.NewMockRegistry()
	runner := NewAgentRunner(eng, &testutil.MockWorkspaceProvider{}, reg, &testutil.MockNotifier{}, testutil.NopLogger{})

	out := runner.Run(context.Background(), agentParams(t, domain.Task{ID: "t1", Title: "x"}, 1))

	require.NoError(t, out.Err)
	assert.True(t, out.Result.Success)
	assert.Len(t, eng.Calls, 2)
	assert.Equal(t, domain.StatusCompleted, reg.Agents["1"].Status)
}

func TestAgentRunner_WorkspaceCreateError(t *testing.T) {
	ws := &testutil.MockWorkspaceProvider{CreateErr: assert.AnError}
	reg := testutil.NewMockRegistry()
	runner := NewAgentRunner(testutil.NewMockEngine(), ws, reg, &testutil.MockNotifier{}, testutil.NopLogger{})

	out := runner.Run(context.Background(), agentParams(t, domain.Task{ID: "t1", Title: "x"}, 1))

	require.Error(t, out.Err)
	assert.Nil(t, out.Result)
	assert.Empty(t, out.WorkspaceDir)
	assert.Equal(t, domain.StatusFailed, reg.Agents["1"].Status)
}

func TestAgentRunner_TmuxSessionRecordedBeforeRun(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Success: true})
	reg := testutil.NewMockRegistry()
	notifier := &testutil.MockNotifier{}
	runner := NewAgentRunner(eng, &testutil.MockWorkspaceProvider{}, reg, notifier, testutil.NopLogger{})

	p := agentParams(t, domain.Task{ID: "t1", Title: "Fix Login"}, 5)
	p.Tmux = true
	runner.Run(context.Background(), p)

	rec := reg.Agents["5"]
	assert.Equal(t, "herd-5-fix-login", rec.TmuxSession)

	// The attach hint is surfaced to the operator.
	require.NotEmpty(t, notifier.Infos)
	assert.Contains(t, notifier.Infos[0], "tmux attach -t herd-5-fix-login")

	// The executing step reflects the tmux mode and the option reaches the engine.
	var sawTmuxStep bool
	for _, u := range reg.Updates {
		if u.Patch.Step != nil && *u.Patch.Step == domain.StepExecutingTmux {
			sawTmuxStep = true
		}
	}
	assert.True(t, sawTmuxStep)
	require.Len(t, eng.Calls, 1)
	assert.True(t, eng.Calls[0].Opts.Tmux)
	assert.Equal(t, "5", eng.Calls[0].Opts.AgentID)
	assert.Equal(t, "fix-login", eng.Calls[0].Opts.TaskSlug)
}

func TestAgentRunner_CopiesRequirementFile(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Success: true})
	runner := NewAgentRunner(eng, &testutil.MockWorkspaceProvider{}, testutil.NewMockRegistry(), &testutil.MockNotifier{}, testutil.NopLogger{})

	p := agentParams(t, domain.Task{ID: "t1", Title: "x"}, 1)
	require.NoError(t, os.WriteFile(filepath.Join(p.WorkDir, "REQ.md"), []byte("spec"), 0o600))
	p.Requirements = RequirementSource{Path: "REQ.md"}

	out := runner.Run(context.Background(), p)
	require.NoError(t, out.Err)

	copied, err := os.ReadFile(filepath.Join(out.WorkspaceDir, domain.MetadataDir, "requirements", "REQ.md"))
	require.NoError(t, err)
	assert.Equal(t, "spec", string(copied))
}

func TestAgentRunner_MissingRequirementsSilentlySkipped(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Success: true})
	runner := NewAgentRunner(eng, &testutil.MockWorkspaceProvider{}, testutil.NewMockRegistry(), &testutil.MockNotifier{}, testutil.NopLogger{})

	p := agentParams(t, domain.Task{ID: "t1", Title: "x"}, 1)
	p.Requirements = RequirementSource{Path: "does-not-exist.md"}

	out := runner.Run(context.Background(), p)
	require.NoError(t, out.Err)
	assert.True(t, out.Result.Success)
}

func TestAgentRunner_CopiesRequirementFolder(t *testing.T) {
	eng := testutil.NewMockEngine(&domain.EngineResult{Success: true})
	runner := NewAgentRunner(eng, &testutil.MockWorkspaceProvider{}, testutil.NewMockRegistry(), &testutil.MockNotifier{}, testutil.NopLogger{})

	p := agentParams(t, domain.Task{ID: "t1", Title: "x"}, 1)
	reqDir := filepath.Join(p.WorkDir, "specs")
	require.NoError(t, os.MkdirAll(filepath.Join(reqDir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(reqDir, "a.md"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(reqDir, "sub", "b.md"), []byte("b"), 0o600))
	p.Requirements = RequirementSource{Path: "specs", IsFolder: true}

	out := runner.Run(context.Background(), p)
	require.NoError(t, out.Err)

	base := filepath.Join(out.WorkspaceDir, domain.MetadataDir, "requirements")
	for _, rel := range []string{"a.md", filepath.Join("sub", "b.md")} {
		_, err := os.Stat(filepath.Join(base, rel))
		assert.NoError(t, err, rel)
	}
}
