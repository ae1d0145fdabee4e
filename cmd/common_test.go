package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicesync/internal/config"
	"invoicesync/internal/infast"
	"invoicesync/internal/ordersync"
	"invoicesync/internal/store"
	"invoicesync/pkg/models"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadJSONFile(t *testing.T) {
	orders, err := readJSONFile[*models.Order](writeFile(t, `[{"id":1,"status":"completed"},{"id":2}]`))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Equal(t, "completed", orders[0].Status)

	products, err := readJSONFile[models.Product](writeFile(t, `{"id":7,"name":"Mug","status":"publish"}`))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products[0].IsPublished())

	_, err = readJSONFile[models.Product](writeFile(t, `not json`))
	assert.Error(t, err)

	_, err = readJSONFile[models.Product](filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSyncSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		AutoEmail:          true,
		EmailCC:            "copy@example.com",
		TriggerStatuses:    []string{"wc-completed", "wc-processing"},
		LegalNoticeEnabled: true,
		LegalNotice:        "notice",
		TestPaymentMethods: []string{"test"},
	}
	s := syncSettings(cfg)
	assert.True(t, s.AutoEmail)
	assert.Equal(t, "copy@example.com", s.EmailCC)
	assert.Equal(t, cfg.TriggerStatuses, s.TriggerStatuses)
	assert.True(t, s.LegalNoticeEnabled)
	assert.Equal(t, []string{"test"}, s.TestPaymentMethods)
}

func TestCreateAPIRequiresCredentials(t *testing.T) {
	_, err := createAPI(&config.Config{BaseURL: "https://api.example.com"}, zerolog.Nop())
	assert.ErrorIs(t, err, infast.ErrMissingCredentials)
	assert.ErrorContains(t, err, "INFAST_CLIENT_ID")
}

func TestNewSynchronizerDryRunStaysOffline(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.Config{
		ClientID:           "client",
		ClientSecret:       "secret",
		BaseURL:            srv.URL,
		AutoEmail:          true,
		TriggerStatuses:    []string{"wc-completed"},
		TestPaymentMethods: []string{"test"},
		StorePath:          filepath.Join(t.TempDir(), "never.db"),
	}
	synchronizer, st, rec, err := newSynchronizer(cfg, true, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, rec)
	defer closeStore(st, zerolog.Nop())

	order := &models.Order{
		ID:            1001,
		Status:        "completed",
		Total:         120,
		TotalTax:      20,
		PaymentMethod: "bacs",
		Billing:       models.Billing{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		Items: []models.LineItem{{
			ID: 1, Name: "Mug", SKU: "MUG", Quantity: 1,
			Subtotal: 100, SubtotalTax: 20, Total: 100, TotalTax: 20,
		}},
	}
	res, err := synchronizer.Sync(context.Background(), order)
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.DocumentRef)
	assert.True(t, res.EmailSent)
	assert.Equal(t, ordersync.RecorderCounts{Customers: 1, Documents: 1, Payments: 1, Emails: 1}, rec.Counts())
	require.Len(t, rec.Documents(), 1)
	assert.EqualValues(t, 0, calls.Load(), "dry run must not reach INFast")
	assert.NoFileExists(t, cfg.StorePath)
}

func TestNewSynchronizerDryRunNeedsNoCredentials(t *testing.T) {
	_, _, rec, err := newSynchronizer(&config.Config{}, true, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, rec)

	_, _, _, err = newSynchronizer(&config.Config{}, false, zerolog.Nop())
	assert.ErrorIs(t, err, infast.ErrMissingCredentials)
}

func TestReleaseOrders(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	acquired, err := st.AcquireSync(ctx, 1001)
	require.NoError(t, err)
	require.True(t, acquired)

	var out bytes.Buffer
	released, err := releaseOrders(ctx, st, []int64{1001, 1002}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, released)
	assert.Equal(t, "order #1001 - released\norder #1002 - not in progress\n", out.String())

	refs, err := st.OrderRefs(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, refs.SyncInProgress)

	acquired, err = st.AcquireSync(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, acquired, "a released order can be synchronized again")
}
