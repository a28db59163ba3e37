package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile    string
	serverURL  string
	jsonOutput bool
	insecure   bool
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Supply chain ledger CLI",
	Long: `ledgerctl records and inspects product journeys on the supply chain ledger.

Without --server it opens the ledger configured in ledger.yaml (or LEDGER_*
environment variables) directly. With --server it talks to a running ledgerd:

  ledgerctl --server http://localhost:8080 journey PRD-7F3A21`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/ledger.yaml or ./ledger.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgerd base URL; operate on the local ledger when empty")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (development only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warn")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd, transferCmd, deliverCmd)
	rootCmd.AddCommand(journeyCmd, summaryCmd, productsCmd)
	rootCmd.AddCommand(verifyCmd, exportCmd, resetCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ledgerctl %s\n", version)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
