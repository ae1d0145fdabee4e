package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicesync/internal/infast"
	"invoicesync/pkg/models"
)

func TestItemPayload(t *testing.T) {
	p := models.Product{
		ID:            12,
		Name:          "Cup",
		SKU:           "CUP 12/blue",
		Status:        "publish",
		Price:         15,
		PriceExclTax:  12.5,
		PriceInclTax:  15,
		Description:   "<p>Hand made <strong>cup</strong> &amp; saucer</p><script>alert(1)</script>",
		PurchasePrice: 4.256,
		Unit:          " piece ",
	}

	got := ItemPayload(p, false)
	require.NotNil(t, got.BuyingPrice)
	assert.Equal(t, 4.26, *got.BuyingPrice)
	got.BuyingPrice = nil
	assert.Equal(t, infast.ItemPayload{
		Name:        "Cup",
		Price:       12.5,
		VAT:         20,
		Reference:   "CUP12blue",
		Type:        "PRODUCT",
		Metadata:    "INTERNAL_DB_ID=12",
		Description: "Hand made cup & saucer",
		Unit:        "piece",
	}, got)

	skipped := ItemPayload(p, true)
	assert.Empty(t, skipped.Description)
}

func TestItemPayloadFallbacks(t *testing.T) {
	p := models.Product{
		ID:               7,
		Name:             "Consulting",
		Price:            80,
		Virtual:          true,
		ShortDescription: "One hour",
	}

	got := ItemPayload(p, false)
	assert.Equal(t, 80.0, got.Price)
	assert.Zero(t, got.VAT)
	assert.Equal(t, "7", got.Reference)
	assert.Equal(t, "SERVICE", got.Type)
	assert.Equal(t, "One hour", got.Description)
	assert.Nil(t, got.BuyingPrice)
}

func TestReference(t *testing.T) {
	tests := []struct {
		sku  string
		want string
	}{
		{"ABC-123_x", "ABC-123_x"},
		{"é ü/ß", ""},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZ", "ABCDEFGHIJKLMNOPQRSTUVWX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reference(models.Product{ID: 1, SKU: tt.sku}), tt.sku)
	}
}

func TestVATRateNeverNegative(t *testing.T) {
	assert.Zero(t, vatRate(models.Product{PriceExclTax: 10, PriceInclTax: 9}))
	assert.Equal(t, 5.5, vatRate(models.Product{PriceExclTax: 100, PriceInclTax: 105.5}))
}

func TestPlainTextTruncates(t *testing.T) {
	long := strings.Repeat("é", maxDescriptionLength)
	got := plainText(long, maxDescriptionLength)
	assert.LessOrEqual(t, len(got), maxDescriptionLength)
	assert.True(t, strings.HasPrefix(long, got))
	assert.Equal(t, maxDescriptionLength/2, len([]rune(got)))
}
