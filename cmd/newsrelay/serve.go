package main

import (
	"github.com/spf13/cobra"

	"newsrelay/internal/app"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run on a schedule until stopped",
		Long: `Serve triggers a run on schedule.spec (cron such as "0 */2 * * *" or an
interval such as "30m"). Runs never overlap. The config file is watched and
source, dispatch, schedule and logging changes apply from the next run on.

Under systemd (Type=notify) readiness and shutdown are reported.`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
	cmd.Flags().Bool("dry-run", false, "Log posts instead of sending them and do not record anything")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
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

	return a.Serve(ctx)
}
