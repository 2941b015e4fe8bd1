// Package cli wires the cobra command tree. Commands are thin dispatchers
// into the use cases; all orchestration logic lives in internal/usecase.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/herdctl/herd/internal/app"
)

// NewRootCommand creates the herd root command.
func NewRootCommand(container *app.Container, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "herd",
		Short:   "Run many AI coding agents in parallel and merge their work",
		Long:    "herd drives a backlog of development tasks to completion with parallel AI agents,\neach in an isolated git worktree on its own branch, then merges the successful\nbranches back into the base branch.",
		Version: version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCommand(container),
		newStatusCommand(container),
		newCleanupCommand(container),
	)

	return rootCmd
}
