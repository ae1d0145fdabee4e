package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"invoicesync/internal/logger"
	"invoicesync/internal/ordersync"
)

var releaseCmd = &cobra.Command{
	Use:   "release [order-id...]",
	Short: "Clear the in-progress marker of interrupted syncs",
	Long: `A sync that was killed mid-run leaves its orders marked as in progress,
and later runs skip them with "sync already in progress". Release clears the
marker so the next sync resumes from the last recorded step.

Only release orders no other process is synchronizing.`,
	Example: `  invoicesync release 1001 1002`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRelease,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("release")

	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid order id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	ctx, cancel := createContext(0, log)
	defer cancel()

	released, err := releaseOrders(ctx, st, ids, os.Stdout)
	if err != nil {
		return err
	}
	log.Info().Int("released", released).Int("requested", len(ids)).Msg("Sync markers released")
	return nil
}

// releaseOrders clears the marker of every listed order that carries one
// and returns how many were cleared.
func releaseOrders(ctx context.Context, st ordersync.Store, ids []int64, out io.Writer) (int, error) {
	released := 0
	for _, id := range ids {
		refs, err := st.OrderRefs(ctx, id)
		if err != nil {
			return released, err
		}
		if !refs.SyncInProgress {
			fmt.Fprintf(out, "order #%d - not in progress\n", id)
			continue
		}
		if err := st.ReleaseSync(ctx, id); err != nil {
			return released, err
		}
		released++
		fmt.Fprintf(out, "order #%d - released\n", id)
	}
	return released, nil
}
