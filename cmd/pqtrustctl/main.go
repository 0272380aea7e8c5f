// Command pqtrustctl is the wallet/shard management CLI of spec.md §6.
//
// Grounded on luxfi-consensus/cmd/consensus/main.go: a cobra root command
// with a short package doc, subcommands registered via
// rootCmd.AddCommand, each subcommand a function returning *cobra.Command
// with its own flags and RunE.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "pqtrustctl",
	Short: "Manage post-quantum wallet keyfiles and Shamir seed shards",
	Long: `pqtrustctl creates and unlocks PQ wallet keyfiles, exports public or
private material, re-wraps a keyfile under a new password, and splits or
recovers a wallet's master seed as M-of-N Shamir shards.`,
}

// logger records structured audit events (wallet created/rekeyed, shards
// split/recovered) separately from the plain-text status lines printed to
// stdout for the operator.
var logger *zap.Logger

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rootCmd.AddCommand(
		walletInitCmd(),
		walletAddrCmd(),
		walletExportCmd(),
		walletRekeyCmd(),
		shardsCreateCmd(),
		shardsRecoverCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
