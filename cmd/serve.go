package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"invoicesync/internal/logger"
	"invoicesync/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for INFast webhooks",
	Long: `Start the webhook listener.

POST /webhooks/customer-deleted forgets every cached link to a customer
deleted on INFast. When INFAST_WEBHOOK_TOKEN is set, deliveries must carry
"Authorization: Bearer <token>". GET /healthz reports liveness.`,
	Example: `  invoicesync serve --addr :9090`,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: WEBHOOK_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.WebhookAddr
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	if cfg.WebhookToken == "" {
		log.Warn().Msg("INFAST_WEBHOOK_TOKEN is not set, webhook deliveries are not authenticated")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           webhook.NewHandler(st, cfg.WebhookToken).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := createContext(0, log)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Webhook listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook listener failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down webhook listener")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook listener shutdown: %w", err)
	}
	return nil
}
