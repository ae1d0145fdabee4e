package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"invoicesync/internal/logger"
	"invoicesync/internal/ordersync"
	"invoicesync/internal/sheets"
	"invoicesync/pkg/models"
)

var syncCmd = &cobra.Command{
	Use:   "sync [orders.json]",
	Short: "Push orders to INFast as invoices",
	Long: `Synchronize the orders of a JSON export with INFast.

The file holds one order object or an array of orders. Orders that are not
in a trigger status, have no positive total, were placed by an administrator
or paid with a test gateway are skipped. Every other order gets its customer,
invoice, payment and email in that order; steps already recorded in the
store are not repeated.

Required environment variables:
  INFAST_CLIENT_ID     - OAuth2 client id
  INFAST_CLIENT_SECRET - OAuth2 client secret

Optional environment variables:
  STORE_PATH       - SQLite reference store (default: invoicesync.db)
  SYNC_WORKERS     - Number of parallel workers (default: 4)
  GOOGLE_SHEET_URL - Sheet receiving the run report when --sheet is set`,
	Example: `  # Synchronize every qualifying order of an export
  invoicesync sync orders.json

  # Only two orders, with eight workers
  invoicesync sync orders.json --order 1001 --order 1002 --workers 8

  # Show what would be sent, without contacting INFast or touching the store
  invoicesync sync orders.json --dry-run

  # Append the run report to Google Sheets
  invoicesync sync orders.json --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Int("workers", 0, "Number of parallel workers (default: SYNC_WORKERS)")
	syncCmd.Flags().Int64Slice("order", nil, "Only synchronize these order ids")
	syncCmd.Flags().Bool("dry-run", false, "Run the workflow offline, recording the INFast calls instead of sending them")
	syncCmd.Flags().Bool("sheet", false, "Append the run report to GOOGLE_SHEET_URL")
	syncCmd.Flags().Int("timeout", 1800, "Run timeout in seconds")
}

func runSync(cmd *cobra.Command, args []string) error {
	runID := uuid.NewString()
	log := logger.WithRequestID(runID).With().Str("component", "sync").Logger()

	workers, _ := cmd.Flags().GetInt("workers")
	only, _ := cmd.Flags().GetInt64Slice("order")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	writeSheet, _ := cmd.Flags().GetBool("sheet")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.SyncWorkers
	}
	if writeSheet && cfg.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required with --sheet")
	}

	orders, err := readJSONFile[*models.Order](args[0])
	if err != nil {
		return err
	}
	if len(only) > 0 {
		orders = slices.DeleteFunc(orders, func(o *models.Order) bool {
			return !slices.Contains(only, o.ID)
		})
	}
	if len(orders) == 0 {
		fmt.Println("No orders to synchronize.")
		return nil
	}

	synchronizer, st, recorder, err := newSynchronizer(cfg, dryRun, log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	log.Info().
		Str("file", args[0]).
		Int("orders", len(orders)).
		Int("workers", workers).
		Bool("dry_run", dryRun).
		Msg("Starting order synchronization")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         INFAST ORDER SYNCHRONIZATION")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run: %s\n", runID)
	if dryRun {
		fmt.Println("Mode: dry run (INFast is not contacted)")
	}
	fmt.Printf("Synchronizing %d orders with %d workers...\n\n", len(orders), workers)

	summary := synchronizer.SyncAll(ctx, orders, workers, func(done, total int, o ordersync.Outcome) {
		fmt.Printf("[%d/%d] order #%d - %s", done, total, o.OrderID, statusSymbol(o.Status()))
		switch {
		case o.Err != nil:
			fmt.Printf(" (%s)", o.Err)
		case o.Skipped:
			fmt.Printf(" (%s)", o.SkipReason)
		case o.DocumentRef != "":
			fmt.Printf(" (invoice %s)", o.DocumentRef)
		}
		fmt.Println()
	})

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Synchronized: %d\n", summary.Synced)
	fmt.Printf("Skipped: %d\n", summary.Skipped)
	if summary.Failed > 0 {
		fmt.Printf("Failed: %d\n", summary.Failed)
		for _, e := range summary.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
	if recorder != nil {
		counts := recorder.Counts()
		fmt.Printf("Would create: %d customers, %d invoices, %d payments, %d emails\n",
			counts.Customers, counts.Documents, counts.Payments, counts.Emails)
	}
	fmt.Println()

	if writeSheet {
		sheetsService, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		rows := sheets.NewReportRows(orders, summary.Outcomes, time.Now())
		if err := sheetsService.WriteSyncReport(ctx, rows, cfg.GoogleSheetWorksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
		fmt.Printf("Sheet: %s (%d rows)\n", cfg.GoogleSheetWorksheet, len(rows))
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d orders failed to synchronize", summary.Failed, len(orders))
	}
	return nil
}
