// Package engine provides AI engine adapters backed by the process driver.
package engine

import (
	"context"
	"fmt"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/proc"
)

// Claude drives the Claude CLI in non-interactive streaming mode.
type Claude struct {
	runner proc.Runner
}

// NewClaude creates a Claude engine adapter.
func NewClaude(runner proc.Runner) *Claude {
	return &Claude{runner: runner}
}

// Ensure Claude implements the streaming engine interface.
var _ domain.StreamingEngine = (*Claude)(nil)

// Name returns the display name.
func (c *Claude) Name() string { return "Claude Code" }

// Command returns the executable name.
func (c *Claude) Command() string { return "claude" }

// IsAvailable reports whether the claude command is installed.
func (c *Claude) IsAvailable() bool {
	return c.runner.Exists(c.Command())
}

// Execute runs the engine and blocks until completion.
func (c *Claude) Execute(ctx context.Context, prompt, workDir string, opts domain.ExecuteOptions) (*domain.EngineResult, error) {
	return c.run(ctx, prompt, workDir, opts.OnProgress, opts)
}

// ExecuteStreaming runs the engine, delivering each output line to onProgress.
func (c *Claude) ExecuteStreaming(ctx context.Context, prompt, workDir string, onProgress func(string), opts domain.ExecuteOptions) (*domain.EngineResult, error) {
	return c.run(ctx, prompt, workDir, onProgress, opts)
}

func (c *Claude) run(ctx context.Context, prompt, workDir string, onProgress func(string), opts domain.ExecuteOptions) (*domain.EngineResult, error) {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	spec := proc.Spec{
		Command: c.Command(),
		Args:    args,
		Dir:     workDir,
	}

	var acc domain.StreamAccumulator
	onLine := func(line string) {
		acc.Consume(line)
		if onProgress != nil {
			onProgress(line)
		}
	}

	var exitCode int
	if opts.Tmux {
		res, err := c.runner.ExecuteTmux(ctx, spec, proc.TmuxOptions{
			AgentID:      opts.AgentID,
			TaskSlug:     opts.TaskSlug,
			WorkspaceDir: workDir,
		}, onLine)
		if err != nil {
			return nil, fmt.Errorf("execute claude under tmux: %w", err)
		}
		exitCode = res.ExitCode
	} else {
		code, err := c.runner.ExecuteStreaming(ctx, spec, onLine)
		if err != nil {
			return nil, fmt.Errorf("execute claude: %w", err)
		}
		exitCode = code
	}

	return resultFromStream(&acc, exitCode), nil
}

// resultFromStream converts accumulated stream records and an exit code into
// an engine result.
func resultFromStream(acc *domain.StreamAccumulator, exitCode int) *domain.EngineResult {
	res := &domain.EngineResult{
		Response:     acc.Response,
		InputTokens:  acc.InputTokens,
		OutputTokens: acc.OutputTokens,
		CostUSD:      acc.CostUSD,
	}
	if res.Response == "" {
		res.Response = domain.DefaultResponse
	}

	switch {
	case acc.ErrorMessage != "":
		res.Error = acc.ErrorMessage
	case exitCode != 0:
		res.Error = fmt.Sprintf("engine exited with status %d", exitCode)
	default:
		res.Success = true
	}
	return res
}
