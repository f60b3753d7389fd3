package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"feedmill/internal/api"
)

var statusTitle = cases.Title(language.English)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var page int
	var limit int
	var feedFilter string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List import runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.newClient()
			if err != nil {
				return err
			}
			resp, err := cli.ListRuns(cmd.Context(), page, limit, feedFilter)
			if err != nil {
				return err
			}
			if len(resp.Runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}

			rows := make([][]string, 0, len(resp.Runs))
			for _, run := range resp.Runs {
				rows = append(rows, []string{
					run.ID,
					run.FeedURL,
					statusTitle.String(run.Status),
					strconv.Itoa(run.TotalFetched),
					strconv.Itoa(run.TotalMerged),
					strconv.Itoa(run.NewJobs),
					strconv.Itoa(run.UpdatedJobs),
					run.StartedAt.Local().Format(time.DateTime),
				})
			}
			out := renderTable(
				[]string{"Run", "Feed", "Status", "Fetched", "Merged", "New", "Updated", "Started"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d runs\n", resp.Page, resp.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	cmd.Flags().IntVar(&limit, "limit", 20, "Results per page")
	cmd.Flags().StringVar(&feedFilter, "feed", "", "Filter by feed URL substring")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var showFailures bool

	cmd := &cobra.Command{
		Use:   "run <run-id>",
		Short: "Show one import run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.newClient()
			if err != nil {
				return err
			}
			detail, err := cli.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printRunDetail(cmd, detail, showFailures)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFailures, "failures", false, "Include the full failure list")
	return cmd
}

func printRunDetail(cmd *cobra.Command, detail *api.RunDetail, showFailures bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", detail.ID)
	fmt.Fprintf(out, "Feed:     %s\n", detail.FeedURL)
	fmt.Fprintf(out, "Status:   %s\n", statusTitle.String(detail.Status))
	fmt.Fprintf(out, "Fetched:  %d\n", detail.TotalFetched)
	fmt.Fprintf(out, "Merged:   %d (%d new, %d updated)\n", detail.TotalMerged, detail.NewJobs, detail.UpdatedJobs)
	fmt.Fprintf(out, "Failures: %d\n", len(detail.Failures))
	fmt.Fprintf(out, "Started:  %s\n", detail.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Updated:  %s\n", detail.UpdatedAt.Local().Format(time.DateTime))

	if showFailures && len(detail.Failures) > 0 {
		rows := make([][]string, 0, len(detail.Failures))
		for _, failure := range detail.Failures {
			rows = append(rows, []string{failure.ID, failure.Reason})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Record", "Reason"},
			rows,
			[]columnAlignment{alignLeft, alignLeft},
		))
	}
}
