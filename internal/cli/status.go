package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/herdctl/herd/internal/app"
	"github.com/herdctl/herd/internal/infra/state"
	"github.com/herdctl/herd/internal/tui"
)

func newStatusCommand(container *app.Container) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return tui.Run(container.WorkDir)
			}
			return printStatus(cmd, container.WorkDir)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "live dashboard that follows the state file")
	return cmd
}

// printStatus renders the state file once, in agent-number order.
func printStatus(cmd *cobra.Command, workDir string) error {
	doc, err := state.Load(workDir)
	if err != nil {
		return fmt.Errorf("no run state found: %w", err)
	}

	ids := make([]string, 0, len(doc.Agents))
	for id := range doc.Agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})

	out := cmd.OutOrStdout()
	for _, id := range ids {
		rec := doc.Agents[id]
		fmt.Fprintf(out, "agent %s  %-9s  %-20s  %s\n", id, rec.Status, rec.Step, rec.Task)
	}
	fmt.Fprintf(out, "\n%d total, %d completed, %d failed, %d in progress (as of %s)\n",
		doc.Summary.Total, doc.Summary.Completed, doc.Summary.Failed, doc.Summary.InProgress, doc.LastUpdate)
	return nil
}
