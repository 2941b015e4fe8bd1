package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/herdctl/herd/internal/app"
	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/proc"
)

func newCleanupCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Kill orphaned herd tmux sessions and prune stale worktrees",
		RunE: func(cmd *cobra.Command, args []string) error {
			killed := killOrphanSessions(container)
			container.Notifier.Info(fmt.Sprintf("killed %d session(s)", killed))

			res, err := container.Driver.Execute(context.Background(), proc.Spec{
				Command: "git",
				Args:    []string{"worktree", "prune"},
				Dir:     container.WorkDir,
			})
			if err != nil || res.ExitCode != 0 {
				container.Notifier.Warn("could not prune worktrees")
				return nil
			}
			container.Notifier.Info("pruned stale worktrees")
			return nil
		},
	}
}

// killOrphanSessions terminates every tmux session following the herd
// naming convention.
func killOrphanSessions(container *app.Container) int {
	res, err := container.Driver.Execute(context.Background(), proc.Spec{
		Command: "tmux",
		Args:    []string{"list-sessions", "-F", "#{session_name}"},
	})
	if err != nil || res.ExitCode != 0 {
		return 0
	}

	killed := 0
	for _, name := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if domain.IsSessionName(name) {
			container.Driver.KillSession(name)
			killed++
		}
	}
	return killed
}
