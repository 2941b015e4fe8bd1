package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/proc"
)

// Codex drives the Codex CLI. It has no streaming mode; output is plain text
// so step detection and token accounting are unavailable.
type Codex struct {
	runner proc.Runner
}

// NewCodex creates a Codex engine adapter.
func NewCodex(runner proc.Runner) *Codex {
	return &Codex{runner: runner}
}

var _ domain.Engine = (*Codex)(nil)

// Name returns the display name.
func (c *Codex) Name() string { return "Codex" }

// Command returns the executable name.
func (c *Codex) Command() string { return "codex" }

// IsAvailable reports whether the codex command is installed.
func (c *Codex) IsAvailable() bool {
	return c.runner.Exists(c.Command())
}

// Execute runs the engine and blocks until completion.
func (c *Codex) Execute(ctx context.Context, prompt, workDir string, opts domain.ExecuteOptions) (*domain.EngineResult, error) {
	args := []string{"exec", "--full-auto"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, prompt)

	spec := proc.Spec{
		Command: c.Command(),
		Args:    args,
		Dir:     workDir,
	}

	var stdout string
	var exitCode int
	if opts.Tmux {
		res, err := c.runner.ExecuteTmux(ctx, spec, proc.TmuxOptions{
			AgentID:      opts.AgentID,
			TaskSlug:     opts.TaskSlug,
			WorkspaceDir: workDir,
		}, func(line string) {
			if opts.OnProgress != nil {
				opts.OnProgress(line)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("execute codex under tmux: %w", err)
		}
		stdout, exitCode = res.Stdout, res.ExitCode
	} else {
		res, err := c.runner.Execute(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("execute codex: %w", err)
		}
		stdout, exitCode = res.Stdout, res.ExitCode
	}

	result := &domain.EngineResult{
		Response: lastNonEmptyLine(stdout),
	}
	if result.Response == "" {
		result.Response = domain.DefaultResponse
	}
	if exitCode != 0 {
		result.Error = fmt.Sprintf("engine exited with status %d", exitCode)
	} else {
		result.Success = true
	}
	return result, nil
}

// lastNonEmptyLine returns the last non-empty line of s, used as the response
// text for engines without structured output.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
