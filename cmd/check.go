package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"invoicesync/internal/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the INFast credentials",
	Long: `Exchange the configured credentials for a token and fetch the
authenticated account.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Bool("portal", false, "Also print the account portal information as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("check")
	showPortal, _ := cmd.Flags().GetBool("portal")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	api, err := createAPI(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContext(30*time.Second, log)
	defer cancel()

	account, err := api.Customers.Me(ctx)
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}
	fmt.Printf("connected as %s\n", account.Name)

	if showPortal {
		portal, err := api.Portal(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch portal: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(portal)
	}
	return nil
}
