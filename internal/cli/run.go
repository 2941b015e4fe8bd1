package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/herdctl/herd/internal/app"
	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/usecase"
)

// runFlags mirrors the scheduler's RunOptions on the command line.
type runFlags struct {
	tasksFile      string
	engineName     string
	model          string
	baseBranch     string
	requirements   string
	maxParallel    int
	maxIterations  int
	maxRetries     int
	retryDelaySec  int
	reqFolder      bool
	skipTests      bool
	skipLint       bool
	browser        bool
	dryRun         bool
	skipMerge      bool
	tmux           bool
}

func newRunCommand(container *app.Container) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the task backlog with parallel agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(container, flags)
		},
	}

	// Flag defaults come from the merged config; fall back to the built-in
	// defaults when the command tree is built without a container (help,
	// completion, tests).
	cfg := domain.DefaultConfig()
	if container != nil {
		cfg = container.Config
	}
	cmd.Flags().StringVarP(&flags.tasksFile, "tasks", "t", "tasks.yaml", "tasks file (.yaml with groups, or a Markdown checklist)")
	cmd.Flags().StringVarP(&flags.engineName, "engine", "e", "", "engine to use (default from config)")
	cmd.Flags().StringVarP(&flags.model, "model", "m", cfg.Engine.Model, "model override passed to the engine")
	cmd.Flags().StringVarP(&flags.baseBranch, "base-branch", "b", cfg.Run.BaseBranch, "branch to fork from and merge into (default: current branch)")
	cmd.Flags().StringVar(&flags.requirements, "requirements", "", "requirement file or folder copied into each workspace")
	cmd.Flags().BoolVar(&flags.reqFolder, "requirements-folder", false, "treat --requirements as a folder")
	cmd.Flags().IntVarP(&flags.maxParallel, "parallel", "p", cfg.Run.MaxParallel, "maximum concurrent agents per batch")
	cmd.Flags().IntVarP(&flags.maxIterations, "iterations", "i", cfg.Run.MaxIterations, "maximum batch iterations (0 = unlimited)")
	cmd.Flags().IntVar(&flags.maxRetries, "retries", cfg.Run.MaxRetries, "retries for transient engine errors")
	cmd.Flags().IntVar(&flags.retryDelaySec, "retry-delay", cfg.Run.RetryDelaySec, "seconds between retries")
	cmd.Flags().BoolVar(&flags.skipTests, "skip-tests", false, "omit the testing instruction from prompts")
	cmd.Flags().BoolVar(&flags.skipLint, "skip-lint", false, "omit the linting instruction from prompts")
	cmd.Flags().BoolVar(&flags.browser, "browser", false, "tell agents a browser is available")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false, "show what would run without starting agents")
	cmd.Flags().BoolVar(&flags.skipMerge, "skip-merge", cfg.Run.SkipMerge, "leave completed branches unmerged")
	cmd.Flags().BoolVar(&flags.tmux, "tmux", cfg.Run.Tmux, "run each agent inside an attachable tmux session")

	return cmd
}

func runRun(container *app.Container, flags runFlags) error {
	eng, err := container.Engine(flags.engineName)
	if err != nil {
		return err
	}
	source := container.TaskSource(flags.tasksFile)

	// Interrupt and terminate both tear down agent tmux sessions, then
	// exit cleanly. CleanupSessions is idempotent, so a second signal
	// during shutdown is harmless.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		container.Notifier.Warn("interrupted; cleaning up tmux sessions")
		container.State.CleanupSessions()
		os.Exit(0)
	}()
	defer signal.Stop(sigCh)

	orchestrator := container.OrchestratorUseCase(eng, source)
	return orchestrator.Run(context.Background(), usecase.RunOptions{
		WorkDir:    container.WorkDir,
		BaseBranch: flags.baseBranch,
		Model:      flags.model,
		Requirements: usecase.RequirementSource{
			Path:     flags.requirements,
			IsFolder: flags.reqFolder,
		},
		RetryDelay:    time.Duration(flags.retryDelaySec) * time.Second,
		MaxIterations: flags.maxIterations,
		MaxParallel:   flags.maxParallel,
		MaxRetries:    flags.maxRetries,
		SkipTests:     flags.skipTests,
		SkipLint:      flags.skipLint,
		Browser:       flags.browser,
		DryRun:        flags.dryRun,
		SkipMerge:     flags.skipMerge,
		Tmux:          flags.tmux,
	})
}
