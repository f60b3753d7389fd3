package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := cli.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			kind := statusError
			state := "stopped"
			if status.Running {
				kind = statusOK
				state = "running"
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", kind, fmt.Sprintf("%s (pid %d)", state, status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			fmt.Fprintln(out, renderStatusLine("Stored jobs", statusInfo, fmt.Sprintf("%d", status.JobCount), colorize))

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Queue:")
			printCounts(cmd, status.QueueStats)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Runs:")
			printCounts(cmd, status.RunStats)
			return nil
		},
	}
}

func printCounts(cmd *cobra.Command, counts map[string]int) {
	out := cmd.OutOrStdout()
	if len(counts) == 0 {
		fmt.Fprintln(out, "  (empty)")
		return
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %-12s %d\n", statusTitle.String(key)+":", counts[key])
	}
}
