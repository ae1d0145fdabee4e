package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicesync/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicesync",
	Short: "Synchronize shop orders and products with INFast",
	Long: `invoicesync pushes completed shop orders to the INFast invoicing API.

For every order it resolves the INFast customer, creates a validated invoice
with refunds netted into reversal lines, records the payment and optionally
emails the invoice. Each step is recorded in a local store so that a failed
run resumes where it stopped and no order is ever invoiced twice.

It also mirrors the product catalog as INFast items and can listen for
INFast webhooks.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
