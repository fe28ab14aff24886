package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"newsrelay/internal/config"
)

const defaultConfigPath = "newsrelay.yaml"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsrelay",
		Short: "Relay new articles from feeds to a Telegram channel",
		Long: `newsrelay aggregates RSS/Atom feeds, GitHub trending repositories and
Hacker News top stories, and posts every item it has not posted before to a
Telegram channel. Delivered links are kept in a ledger so nothing is sent twice.

Credentials can come from the config file or from TELEGRAM_BOT_TOKEN and
TELEGRAM_CHANNEL_ID. Without a config file the built-in source list is used.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to the JSON or YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Override logging.level (trace, debug, info, warn, error)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewLedgerCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configManager builds a manager for --config. The default path may be
// missing, in which case defaults and environment variables are used.
func configManager(cmd *cobra.Command) (*config.Manager, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.NewManager(path, !cmd.Flags().Changed("config")), nil
}

func logLevel(cmd *cobra.Command) string {
	lvl, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return ""
	}
	return lvl
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
