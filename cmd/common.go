package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"invoicesync/internal/catalog"
	"invoicesync/internal/config"
	"invoicesync/internal/infast"
	"invoicesync/internal/ordersync"
	"invoicesync/internal/store"
	"invoicesync/internal/webhook"
)

// backend is what every command needs from the reference store.
type backend interface {
	ordersync.Store
	catalog.Store
	webhook.CustomerStore
	Close() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// createContext is cancelled on SIGINT/SIGTERM and, when timeout is
// positive, after timeout.
func createContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	go func() {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Dur("timeout", timeout).Msg("Command timed out")
		}
	}()
	return ctx, func() {
		cancel()
		stop()
	}
}

func createAPI(cfg *config.Config, log zerolog.Logger) (*infast.API, error) {
	if !cfg.HasCredentials() {
		log.Error().Msg("INFast credentials not configured")
		return nil, fmt.Errorf("%w. Please set:\n\n"+
			"  export INFAST_CLIENT_ID=\"your-client-id\"\n"+
			"  export INFAST_CLIENT_SECRET=\"your-client-secret\"", infast.ErrMissingCredentials)
	}

	return infast.New(
		infast.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
		infast.WithBaseURL(cfg.BaseURL),
		infast.WithRateLimit(cfg.RateLimit, cfg.SyncWorkers),
	), nil
}

// openStore opens the SQLite store at STORE_PATH.
func openStore(cfg *config.Config, log zerolog.Logger) (backend, error) {
	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	log.Debug().Str("path", cfg.StorePath).Msg("Store opened")
	return st, nil
}

// newSynchronizer wires the order workflow. A dry run records the INFast
// calls in memory instead of sending them, needs no credentials and keeps
// no references; rec is nil otherwise.
func newSynchronizer(cfg *config.Config, dryRun bool, log zerolog.Logger) (synchronizer *ordersync.Synchronizer, st backend, rec *ordersync.Recorder, err error) {
	if dryRun {
		log.Info().Msg("Dry run, INFast is not contacted and nothing is persisted")
		rec = ordersync.NewRecorder()
		st = store.NewMemory()
		return ordersync.NewDryRun(rec, st, syncSettings(cfg)), st, rec, nil
	}

	api, err := createAPI(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err = openStore(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return ordersync.NewFromAPI(api, st, syncSettings(cfg)), st, nil, nil
}

func closeStore(st backend, log zerolog.Logger) {
	if err := st.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

func syncSettings(cfg *config.Config) ordersync.Settings {
	return ordersync.Settings{
		AutoEmail:          cfg.AutoEmail,
		EmailCC:            cfg.EmailCC,
		SkipDescriptions:   cfg.SkipDescriptions,
		TriggerStatuses:    cfg.TriggerStatuses,
		LegalNoticeEnabled: cfg.LegalNoticeEnabled,
		LegalNotice:        cfg.LegalNotice,
		TestPaymentMethods: cfg.TestPaymentMethods,
	}
}

// readJSONFile decodes a JSON document that is either a single object or
// an array of objects.
func readJSONFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}

	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return []T{one}, nil
}

func statusSymbol(status string) string {
	switch status {
	case "synced":
		return "✅"
	case "warning":
		return "⚠️"
	case "skipped":
		return "⏭️"
	case "error":
		return "❌"
	default:
		return "❓"
	}
}
