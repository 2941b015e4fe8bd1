package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/proc"
)

// fakeRunner is a scripted proc.Runner.
// Fields are ordered to minimize memory padding.
type fakeRunner struct {
	specs       []proc.Spec
	lines       []string
	stdout      string
	killed      []string
	exitCode    int
	tmuxUsed    bool
	unavailable bool
}

var _ proc.Runner = (*fakeRunner)(nil)

func (f *fakeRunner) Exists(command string) bool { return !f.unavailable }

func (f *fakeRunner) Execute(ctx context.Context, spec proc.Spec) (*proc.Result, error) {
	f.specs = append(f.specs, spec)
	return &proc.Result{Stdout: f.stdout, ExitCode: f.exitCode}, nil
}

func (f *fakeRunner) ExecuteStreaming(ctx context.Context, spec proc.Spec, onLine func(string)) (int, error) {
	f.specs = append(f.specs, spec)
	for _, line := range f.lines {
		onLine(line)
	}
	return f.exitCode, nil
}

func (f *fakeRunner) ExecuteTmux(ctx context.Context, spec proc.Spec, opts proc.TmuxOptions, onLine func(string)) (*proc.Result, error) {
	f.specs = append(f.specs, spec)
	f.tmuxUsed = true
	for _, line := range f.lines {
		onLine(line)
	}
	return &proc.Result{Stdout: strings.Join(f.lines, "\n"), ExitCode: f.exitCode}, nil
}

func (f *fakeRunner) KillSession(session string) { f.killed = append(f.killed, session) }

func TestClaude_ExecuteSuccess(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{
			`{"type":"assistant","message":"thinking"}`,
			`{"type":"result","result":"done the thing","usage":{"input_tokens":100,"output_tokens":50}}`,
		},
	}
	eng := NewClaude(runner)

	res, err := eng.Execute(context.Background(), "do it", "/ws", domain.ExecuteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "done the thing", res.Response)
	assert.Equal(t, 100, res.InputTokens)
	assert.Equal(t, 50, res.OutputTokens)

	require.Len(t, runner.specs, 1)
	spec := runner.specs[0]
	assert.Equal(t, "claude", spec.Command)
	assert.Equal(t, "/ws", spec.Dir)
	assert.Contains(t, spec.Args, "stream-json")
	assert.Contains(t, spec.Args, "do it")
}

func TestClaude_ModelOverride(t *testing.T) {
	runner := &fakeRunner{}
	eng := NewClaude(runner)

	_, err := eng.Execute(context.Background(), "p", "/ws", domain.ExecuteOptions{Model: "opus"})
	require.NoError(t, err)

	args := strings.Join(runner.specs[0].Args, " ")
	assert.Contains(t, args, "--model opus")
}

func TestClaude_ErrorRecordWins(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{`{"type":"error","error":{"message":"rate limit exceeded"}}`},
	}
	eng := NewClaude(runner)

	res, err := eng.Execute(context.Background(), "p", "/ws", domain.ExecuteOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "rate limit exceeded", res.Error)
}

func TestClaude_NonZeroExitWithoutErrorRecord(t *testing.T) {
	runner := &fakeRunner{exitCode: 1}
	eng := NewClaude(runner)

	res, err := eng.Execute(context.Background(), "p", "/ws", domain.ExecuteOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "status 1")
}

func TestClaude_StreamsProgress(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{
			`{"tool":"Read","file_path":"a.go"}`,
			`{"type":"result","result":"ok"}`,
		},
	}
	eng := NewClaude(runner)

	var seen []string
	res, err := eng.ExecuteStreaming(context.Background(), "p", "/ws", func(line string) {
		seen = append(seen, line)
	}, domain.ExecuteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, seen, 2)
}

func TestClaude_TmuxVariant(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{`{"type":"result","result":"ok"}`},
	}
	eng := NewClaude(runner)

	res, err := eng.Execute(context.Background(), "p", "/ws", domain.ExecuteOptions{
		Tmux:     true,
		AgentID:  "4",
		TaskSlug: "fix-bug",
	})
	require.NoError(t, err)
	assert.True(t, runner.tmuxUsed)
	assert.True(t, res.Success)
}

func TestCodex_Execute(t *testing.T) {
	runner := &fakeRunner{stdout: "working...\nall done\n"}
	eng := NewCodex(runner)

	res, err := eng.Execute(context.Background(), "p", "/ws", domain.ExecuteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "all done", res.Response)
}

func TestCodex_NonZeroExit(t *testing.T) {
	runner := &fakeRunner{exitCode: 2}
	eng := NewCodex(runner)

	res, err := eng.Execute(context.Background(), "p", "/ws", domain.ExecuteOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "status 2")
}

func TestRegistry_GetAndNames(t *testing.T) {
	r := NewRegistry(&fakeRunner{})

	eng, err := r.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "Claude Code", eng.Name())

	_, err = r.Get("gpt-nope")
	assert.ErrorIs(t, err, domain.ErrEngineNotFound)

	assert.Equal(t, []string{"claude", "codex"}, r.Names())
}

func TestClaude_IsAvailable(t *testing.T) {
	assert.True(t, NewClaude(&fakeRunner{}).IsAvailable())
	assert.False(t, NewClaude(&fakeRunner{unavailable: true}).IsAvailable())
}
