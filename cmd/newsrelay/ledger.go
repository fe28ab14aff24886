package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"newsrelay/internal/app"
	"newsrelay/internal/config"
	"newsrelay/internal/ledger"
	logx "newsrelay/pkg/logx"
)

// NewLedgerCmd creates the ledger command group.
func NewLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or seed the delivered-links ledger",
		Long: `Ledger gives direct access to the set of links that were already posted.

Examples:
  # How many links were delivered so far
  newsrelay ledger count

  # Was this article posted?
  newsrelay ledger has https://example.com/post

  # Mark links as delivered without posting them
  newsrelay ledger add https://example.com/a https://example.com/b`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of delivered links",
			Args:  cobra.NoArgs,
			RunE: withLedger(func(cmd *cobra.Command, l ledger.Ledger, _ []string) error {
				n, err := l.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "has <link>",
			Short: "Report whether a link was delivered",
			Args:  cobra.ExactArgs(1),
			RunE: withLedger(func(cmd *cobra.Command, l ledger.Ledger, args []string) error {
				ok, err := l.Contains(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintln(cmd.OutOrStdout(), "delivered")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "not delivered")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add <link>...",
			Short: "Mark links as delivered",
			Args:  cobra.MinimumNArgs(1),
			RunE: withLedger(func(cmd *cobra.Command, l ledger.Ledger, args []string) error {
				for _, link := range args {
					inserted, err := l.TryCommit(cmd.Context(), link)
					if err != nil {
						return fmt.Errorf("add %s: %w", link, err)
					}
					state := "added"
					if !inserted {
						state = "already present"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", state, strings.TrimSpace(link))
				}
				return nil
			}),
		},
	)
	return cmd
}

// withLedger opens and initializes the configured ledger around fn.
// Telegram credentials are not required.
func withLedger(fn func(cmd *cobra.Command, l ledger.Ledger, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := configManager(cmd)
		if err != nil {
			return err
		}
		cfg, err := m.Load()
		if err != nil {
			return fmt.Errorf("load config %s: %w", m.Path(), err)
		}
		if err := config.Validate(cfg, false); err != nil {
			return err
		}

		log := logx.Nop()
		if lvl := logLevel(cmd); lvl != "" {
			log = logx.NewConsole(lvl)
		}
		l, err := app.OpenLedger(cfg, log)
		if err != nil {
			return err
		}
		defer l.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
			cmd.SetContext(ctx)
		}
		if err := l.Initialize(ctx); err != nil {
			return err
		}
		return fn(cmd, l, args)
	}
}
