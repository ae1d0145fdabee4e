package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoicesync/internal/catalog"
	"invoicesync/internal/logger"
	"invoicesync/pkg/models"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Mirror the product catalog as INFast items",
}

var itemsSyncCmd = &cobra.Command{
	Use:   "sync [products.json]",
	Short: "Create, update or delete the INFast item of every product",
	Long: `Synchronize the products of a JSON export with INFast catalog items.

Published products are created or updated; products in any other status have
their linked item deleted. Products are matched by the item reference stored
locally, then by SKU.`,
	Example: `  invoicesync items sync products.json`,
	Args:    cobra.ExactArgs(1),
	RunE:    runItemsSync,
}

var itemsUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Delete every linked INFast item and forget the links",
	Args:  cobra.NoArgs,
	RunE:  runItemsUnlink,
}

func init() {
	rootCmd.AddCommand(itemsCmd)
	itemsCmd.AddCommand(itemsSyncCmd, itemsUnlinkCmd)

	itemsCmd.PersistentFlags().Int("timeout", 600, "Run timeout in seconds")
}

func newCatalogSyncer() (*catalog.Syncer, func(), error) {
	log := logger.WithComponent("items")

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	api, err := createAPI(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	syncer := catalog.NewSyncer(api.Items, st, catalog.Options{
		SkipDescriptions: cfg.SkipDescriptions,
		Workers:          cfg.SyncWorkers,
	})
	return syncer, func() { closeStore(st, log) }, nil
}

func runItemsSync(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("items")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	products, err := readJSONFile[models.Product](args[0])
	if err != nil {
		return err
	}

	syncer, done, err := newCatalogSyncer()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	summary := syncer.SyncAll(ctx, products)
	fmt.Printf("Catalog synchronization finished. %d items updated, %d items deleted.\n", summary.Synced, summary.Deleted)
	return reportFailures(summary)
}

func runItemsUnlink(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("items")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	syncer, done, err := newCatalogSyncer()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	summary, err := syncer.UnlinkAll(ctx)
	if err != nil {
		return err
	}
	if summary.Deleted == 0 && summary.Failed == 0 {
		fmt.Println("No product is currently linked to INFast.")
		return nil
	}
	fmt.Printf("%d products unlinked, %d items deleted on INFast.\n", summary.Deleted+summary.Failed, summary.Deleted)
	return reportFailures(summary)
}

func reportFailures(summary catalog.Summary) error {
	if summary.Failed == 0 {
		return nil
	}
	for _, e := range summary.Errors {
		fmt.Printf("  %s\n", e)
	}
	return fmt.Errorf("%d products could not be synchronized", summary.Failed)
}
