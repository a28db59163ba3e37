package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/SupplyChainLedger/internal/app"
	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
)

// errChainBroken makes verify exit non-zero without a usage dump.
var errChainBroken = errors.New("ledger failed verification")

// ── init ─────────────────────────────────────────────────────────────────────

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the ledger and the demo credential file if missing",
	Long: `init opens the configured ledger, writing the genesis record when nothing
has been persisted yet, and writes the demo users to auth.users_file when that
file does not exist. Running it twice is harmless.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverURL != "" {
			return errors.New("init operates on the local ledger; drop --server")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := cliLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		a, err := app.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		report := a.Store.InitReport()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ledger %s: %d records, head %s (%s)\n",
			report.Outcome, a.Store.Len(), shortLink(a.Store.Head()), cfg.Storage.Driver)
		if report.QuarantinedTo != "" {
			fmt.Fprintf(out, "malformed ledger moved to %s\n", report.QuarantinedTo)
		}

		created, err := identity.EnsureFile(cfg.Auth.UsersFile)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "wrote demo users to %s\n", cfg.Auth.UsersFile)
		}
		return nil
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the whole chain and report the first violation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l ledgerAPI) error {
			report, err := l.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(cmd, report); err != nil {
					return err
				}
			} else {
				tw := newTable(cmd)
				tw.AppendRow(table.Row{"Valid", report.Valid})
				tw.AppendRow(table.Row{"Checked", report.Checked})
				if report.Valid {
					tw.AppendRow(table.Row{"Head", report.Head})
				} else if v := report.Violation; v != nil {
					tw.AppendRow(table.Row{"Violation", v.Kind})
					tw.AppendRow(table.Row{"Position", v.Position})
					tw.AppendRow(table.Row{"Detail", v.Detail})
				}
				tw.Render()
			}
			if !report.Valid {
				return errChainBroken
			}
			return nil
		})
	},
}

// ── export ───────────────────────────────────────────────────────────────────

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the persisted ledger document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l ledgerAPI) error {
			var w io.Writer = cmd.OutOrStdout()
			if exportOut != "" && exportOut != "-" {
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return l.Export(cmd.Context(), w)
		})
	},
}

// ── reset ────────────────────────────────────────────────────────────────────

var (
	resetConfirm     bool
	resetAdminSecret string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard every record after genesis",
	Long: `reset truncates the chain to its genesis record. Locally it needs --yes;
against a server it also needs the admin secret.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirm {
			return errors.New("refusing to reset without --yes")
		}
		secret := resetAdminSecret
		if secret == "" {
			secret = os.Getenv("LEDGER_AUTH_ADMIN_SECRET")
		}
		return withLedger(cmd, func(l ledgerAPI) error {
			res, err := l.Reset(cmd.Context(), secret)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d records; %d left, head %s\n",
				res.Dropped, res.Entries, shortLink(res.Head))
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "-", "destination file, - for stdout")
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm the reset")
	resetCmd.Flags().StringVar(&resetAdminSecret, "admin-secret", "", "admin secret for --server (default $LEDGER_AUTH_ADMIN_SECRET)")
}
