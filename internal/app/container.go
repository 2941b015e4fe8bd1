// Package app provides the dependency injection container for the application.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/config"
	"github.com/herdctl/herd/internal/infra/engine"
	"github.com/herdctl/herd/internal/infra/git"
	"github.com/herdctl/herd/internal/infra/logging"
	"github.com/herdctl/herd/internal/infra/notify"
	"github.com/herdctl/herd/internal/infra/proc"
	"github.com/herdctl/herd/internal/infra/state"
	"github.com/herdctl/herd/internal/infra/tasksource"
	"github.com/herdctl/herd/internal/infra/worktree"
	"github.com/herdctl/herd/internal/usecase"
)

// Container holds all port implementations and provides factory methods for
// the use cases.
type Container struct {
	Driver     *proc.Driver
	Engines    *engine.Registry
	Git        domain.Git
	Workspaces domain.WorkspaceProvider
	State      *state.Registry
	Notifier   domain.Notifier
	Logger     *logging.Logger
	Clock      domain.Clock
	Config     *domain.Config
	WorkDir    string
	HerdDir    string
}

// New creates a container rooted at the given working directory.
func New(workDir string) (*Container, error) {
	loader := config.NewLoader(workDir)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	driver := proc.NewDriver()
	herdDir := resolveHerdDir(workDir)

	logger := logging.New(herdDir, logging.ParseLevel(cfg.Log.Level))

	return &Container{
		Driver:     driver,
		Engines:    engine.NewRegistry(driver),
		Git:        git.NewClient(),
		Workspaces: worktree.NewProvider(),
		State:      state.New(workDir, domain.RealClock{}, driver.KillSession),
		Notifier:   notify.NewConsole(os.Stderr),
		Logger:     logger,
		Clock:      domain.RealClock{},
		Config:     cfg,
		WorkDir:    workDir,
		HerdDir:    herdDir,
	}, nil
}

// resolveHerdDir locates the orchestrator-global metadata directory,
// <gitdir>/herd, falling back to <workDir>/.herd outside a repository.
func resolveHerdDir(workDir string) string {
	out, err := gitCommonDir(workDir)
	if err != nil {
		return filepath.Join(workDir, domain.MetadataDir)
	}
	return filepath.Join(out, "herd")
}

func gitCommonDir(workDir string) (string, error) {
	driver := proc.NewDriver()
	res, err := driver.Execute(context.Background(), proc.Spec{
		Command: "git",
		Args:    []string{"rev-parse", "--git-common-dir"},
		Dir:     workDir,
	})
	if err != nil || res.ExitCode != 0 {
		return "", domain.ErrNotGitRepository
	}
	dir := strings.TrimSpace(res.Stdout)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workDir, dir)
	}
	return filepath.Clean(dir), nil
}

// Engine resolves the engine selected by name, or the configured default.
func (c *Container) Engine(name string) (domain.Engine, error) {
	if name == "" {
		name = c.Config.Engine.Default
	}
	eng, err := c.Engines.Get(name)
	if err != nil {
		return nil, err
	}
	if !eng.IsAvailable() {
		return nil, fmt.Errorf("%s (%s): %w", eng.Name(), eng.Command(), domain.ErrEngineUnavailable)
	}
	return eng, nil
}

// TaskSource creates a task source for a file path. YAML files get the
// grouping-aware source; everything else is treated as a Markdown checklist.
func (c *Container) TaskSource(path string) domain.TaskSource {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return tasksource.NewYAMLSource(path)
	default:
		return tasksource.NewMarkdownSource(path)
	}
}

// OrchestratorUseCase returns a scheduler wired to the given engine and source.
func (c *Container) OrchestratorUseCase(eng domain.Engine, source domain.TaskSource) *usecase.Orchestrator {
	return usecase.NewOrchestrator(eng, source, c.Workspaces, c.Git, c.State, c.Notifier, c.Logger, c.Clock)
}
