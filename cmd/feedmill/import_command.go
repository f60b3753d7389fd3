package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <feed-url>",
		Short: "Start an import run for a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feedURL := strings.TrimSpace(args[0])
			if feedURL == "" {
				return fmt.Errorf("feed url is required")
			}

			cli, err := ctx.newClient()
			if err != nil {
				return err
			}
			receipt, err := cli.StartImport(cmd.Context(), feedURL)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Run %s started: %d records fetched, %d batches created\n",
				receipt.RunID, receipt.TotalFetched, receipt.BatchesCreated)
			return nil
		},
	}
}
