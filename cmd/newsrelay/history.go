package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"newsrelay/internal/ledger"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Long:  `History lists the most recent pipeline runs recorded in the ledger, newest first.`,
		Args:  cobra.NoArgs,
		RunE: withLedger(func(cmd *cobra.Command, l ledger.Ledger, _ []string) error {
			n, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			runs, err := l.RecentRuns(cmd.Context(), n)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tTOOK\tCOLLECTED\tUNIQUE\tDELIVERED\tSKIPPED\tFAILED\tSOURCE ERRORS\tDRY RUN")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%t\n",
					r.StartedAt.Local().Format(time.DateTime),
					r.Took.Round(time.Second),
					r.Collected, r.Unique, r.Delivered, r.Skipped, r.Failed, r.SourceErrors, r.DryRun,
				)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntP("limit", "n", 10, "Number of runs to show")
	return cmd
}
