package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsrelay/internal/app"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect and deliver new items once",
		Long: `Run performs one full pass: load the ledger, fetch every source, merge
the results, post each new item and record it.

With --dry-run nothing is posted and the ledger is left untouched; the posts
that would have been sent are logged instead.`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}
	cmd.Flags().Bool("dry-run", false, "Log posts instead of sending them and do not record anything")
	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	m, err := configManager(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := app.New(ctx, m, app.Options{DryRun: dryRun, LogLevel: logLevel(cmd)})
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.RunOnce(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), st.String())
	return err
}
