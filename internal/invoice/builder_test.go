package invoice

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicesync/pkg/models"
)

func TestBuildRefundNetting(t *testing.T) {
	order := &models.Order{
		ID: 100,
		Items: []models.LineItem{{
			ID: 1, Name: "Mug", SKU: "MUG-1", Quantity: 2,
			Subtotal: 200, SubtotalTax: 40, Total: 200, TotalTax: 40,
		}},
		Refunds: []models.Refund{{
			ID:    900,
			Lines: []models.RefundLine{{ItemID: 1, Quantity: -1, Total: -100, TotalTax: -20}},
		}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)

	assert.Equal(t, []Line{
		{Name: "Mug", Reference: "MUG-1", UnitPrice: 100, Quantity: 1, VATRate: 20, Kind: KindProduct},
		{Name: "Refund - Mug", Reference: "MUG-1-REFUND", UnitPrice: -100, Quantity: 1, VATRate: 20, Kind: KindProduct, IsReversal: true},
	}, result.Lines)
	assert.Zero(t, result.RemainingDiscount)
}

func TestBuildAggregatesRefundsAcrossRecords(t *testing.T) {
	order := &models.Order{
		Items: []models.LineItem{{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 5, Subtotal: 50, Total: 50}},
		Refunds: []models.Refund{
			{Lines: []models.RefundLine{{ItemID: 1, Quantity: 1, Total: 10}}},
			{Lines: []models.RefundLine{{ItemID: 1, Quantity: -2, Total: -20}}},
		},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)

	assert.Equal(t, 2.0, result.Lines[0].Quantity)
	assert.Equal(t, -30.0, result.Lines[1].UnitPrice)
	assert.True(t, result.Lines[1].IsReversal)
}

func TestBuildFullyRefundedLineKeepsOnlyReversal(t *testing.T) {
	order := &models.Order{
		Items:   []models.LineItem{{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 1, Subtotal: 50, Total: 50}},
		Refunds: []models.Refund{{Lines: []models.RefundLine{{ItemID: 1, Quantity: 1, Total: 50}}}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.True(t, result.Lines[0].IsReversal)
	assert.Equal(t, -50.0, result.Lines[0].UnitPrice)
}

func TestBuildQuantityOnlyRefundUsesDiscountedUnitTotal(t *testing.T) {
	order := &models.Order{
		Items:   []models.LineItem{{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 4, Subtotal: 100, Total: 80}},
		Refunds: []models.Refund{{Lines: []models.RefundLine{{ItemID: 1, Quantity: 1}}}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)

	assert.Equal(t, 25.0, result.Lines[0].UnitPrice)
	assert.Equal(t, 3.0, result.Lines[0].Quantity)
	assert.Equal(t, 20.0, result.Lines[0].DiscountPercent)
	assert.Equal(t, -20.0, result.Lines[1].UnitPrice)
}

func TestBuildDiscounts(t *testing.T) {
	order := &models.Order{
		DiscountTotal: 30,
		Items: []models.LineItem{
			{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 2, Subtotal: 100, SubtotalTax: 20, Total: 80, TotalTax: 16},
			{ID: 2, Name: "Tea", SKU: "TEA", Quantity: 1, Subtotal: 10, SubtotalTax: 2, Total: 10, TotalTax: 2},
		},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)

	assert.Equal(t, 50.0, result.Lines[0].UnitPrice, "priced before discount")
	assert.Equal(t, 20.0, result.Lines[0].DiscountPercent)
	assert.Equal(t, 20.0, result.Lines[0].VATRate)
	assert.Zero(t, result.Lines[1].DiscountPercent)
	assert.InDelta(t, 10.0, result.RemainingDiscount, Epsilon, "line discounts are not counted twice")
}

func TestBuildRefundedDiscountedLineAddsNoCashDiscount(t *testing.T) {
	tests := []struct {
		name      string
		refund    models.RefundLine
		wantLines []Line
	}{
		{
			name:   "partial refund",
			refund: models.RefundLine{ItemID: 1, Quantity: -1, Total: -20},
			wantLines: []Line{
				{Name: "Mug", Reference: "MUG", UnitPrice: 25, Quantity: 3, Kind: KindProduct, DiscountPercent: 20},
				{Name: "Refund - Mug", Reference: "MUG-REFUND", UnitPrice: -20, Quantity: 1, Kind: KindProduct, IsReversal: true},
			},
		},
		{
			name:   "quantity only refund",
			refund: models.RefundLine{ItemID: 1, Quantity: 1},
			wantLines: []Line{
				{Name: "Mug", Reference: "MUG", UnitPrice: 25, Quantity: 3, Kind: KindProduct, DiscountPercent: 20},
				{Name: "Refund - Mug", Reference: "MUG-REFUND", UnitPrice: -20, Quantity: 1, Kind: KindProduct, IsReversal: true},
			},
		},
		{
			name:   "full refund",
			refund: models.RefundLine{ItemID: 1, Quantity: -4, Total: -80},
			wantLines: []Line{
				{Name: "Refund - Mug", Reference: "MUG-REFUND", UnitPrice: -80, Quantity: 1, Kind: KindProduct, IsReversal: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &models.Order{
				DiscountTotal: 20,
				Items:         []models.LineItem{{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 4, Subtotal: 100, Total: 80}},
				Refunds:       []models.Refund{{Lines: []models.RefundLine{tt.refund}}},
			}

			result, err := Build(order, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLines, result.Lines)
			assert.Zero(t, result.RemainingDiscount)
		})
	}
}

func TestBuildRefundKeepsOrderLevelDiscount(t *testing.T) {
	order := &models.Order{
		DiscountTotal: 25,
		Items: []models.LineItem{
			{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 4, Subtotal: 100, Total: 80},
			{ID: 2, Name: "Tea", SKU: "TEA", Quantity: 1, Subtotal: 10, Total: 10},
		},
		Refunds: []models.Refund{{Lines: []models.RefundLine{{ItemID: 1, Quantity: -2, Total: -40}}}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, result.RemainingDiscount, Epsilon)
}

func TestBuildNoRemainingDiscountWhenFullyExpressed(t *testing.T) {
	order := &models.Order{
		DiscountTotal: 20,
		Items:         []models.LineItem{{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 2, Subtotal: 100, Total: 80}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	assert.Zero(t, result.RemainingDiscount)
}

func TestBuildCategoryOrder(t *testing.T) {
	order := &models.Order{
		Items: []models.LineItem{
			{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 1, Subtotal: 10, Total: 10},
			{ID: 2, Name: "Ebook", SKU: "EBOOK", Quantity: 1, Subtotal: 5, Total: 5, Virtual: true},
		},
		ShippingLines: []models.ShippingLine{{ID: 10, MethodTitle: "Colissimo", Total: 10, TotalTax: 2}},
		Fees: []models.FeeLine{
			{ID: 11, Name: "Gift wrap", Total: 5},
			{ID: 12, Name: "Nothing"},
		},
		Refunds: []models.Refund{{Lines: []models.RefundLine{
			{ItemID: 1, Quantity: 1, Total: 10},
			{ItemID: 10, Total: 10, TotalTax: 2},
		}}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)

	var refs []string
	for _, l := range result.Lines {
		refs = append(refs, l.Reference)
	}
	assert.Equal(t, []string{
		"EBOOK", "MUG-REFUND",
		"SHIPPING-10", "SHIPPING-10-REFUND",
		"FEE-11",
	}, refs)

	assert.Equal(t, KindService, result.Lines[0].Kind)
	assert.Equal(t, KindProduct, result.Lines[1].Kind)
	assert.Equal(t, KindService, result.Lines[2].Kind)
	assert.Equal(t, 20.0, result.Lines[2].VATRate)
	assert.Equal(t, 20.0, result.Lines[3].VATRate)
	assert.Equal(t, -10.0, result.Lines[3].UnitPrice)
	assert.Zero(t, result.Lines[4].VATRate)
}

func TestBuildEmptyOrderFails(t *testing.T) {
	_, err := Build(&models.Order{ID: 7}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoInvoiceLines)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, int64(7), buildErr.OrderID)

	_, err = Build(nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestBuildRounding(t *testing.T) {
	order := &models.Order{
		Items: []models.LineItem{
			{ID: 1, Name: "Third", SKU: "A", Quantity: 3, Subtotal: 10, Total: 10},
			{ID: 2, Name: "Half", SKU: "B", Quantity: 1, Subtotal: 2.675, Total: 2.675},
			{ID: 3, Name: "Bulk", SKU: "C", Quantity: 1.23456, Subtotal: 1.23456, Total: 1.23456},
		},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3.33, result.Lines[0].UnitPrice)
	assert.Equal(t, 2.68, result.Lines[1].UnitPrice, "half rounds up")
	assert.Equal(t, 1.2346, result.Lines[2].Quantity)

	noDecimals := 0
	order.PriceDecimals = &noDecimals
	result, err = Build(order, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.Lines[0].UnitPrice)
	assert.Equal(t, 3.0, result.Lines[1].UnitPrice)
}

func TestBuildZeroDecimalsFromJSON(t *testing.T) {
	var order models.Order
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 7,
		"currency": "JPY",
		"price_decimals": 0,
		"line_items": [{"id": 1, "name": "Tea", "sku": "TEA", "quantity": 3, "subtotal": 1000, "total": 1000}]
	}`), &order))
	require.NotNil(t, order.PriceDecimals)
	assert.Equal(t, 0, order.Decimals())

	result, err := Build(&order, Options{})
	require.NoError(t, err)
	assert.Equal(t, 333.0, result.Lines[0].UnitPrice)

	var unset models.Order
	require.NoError(t, json.Unmarshal([]byte(`{"id": 8}`), &unset))
	assert.Equal(t, models.DefaultPriceDecimals, unset.Decimals())
}

func TestBuildVATFallsBackToTotals(t *testing.T) {
	order := &models.Order{
		Items: []models.LineItem{{ID: 1, Name: "Mug", SKU: "MUG", Quantity: 1, Total: 50, TotalTax: 10}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Lines[0].UnitPrice)
	assert.Equal(t, 20.0, result.Lines[0].VATRate)
}

func TestBuildReferencesAndDescriptions(t *testing.T) {
	order := &models.Order{
		Items: []models.LineItem{
			{ID: 1, ProductID: 7, Name: "No SKU", Quantity: 1, Total: 1, Description: " A mug "},
			{ID: 3, Name: "Orphan", Quantity: 1, Total: 1},
		},
		ShippingLines: []models.ShippingLine{{Total: 4}},
	}

	result, err := Build(order, Options{})
	require.NoError(t, err)
	assert.Equal(t, "7", result.Lines[0].Reference)
	assert.Equal(t, "A mug", result.Lines[0].Description)
	assert.Equal(t, "ITEM-3", result.Lines[1].Reference)
	assert.Equal(t, "SHIPPING", result.Lines[2].Reference)
	assert.Equal(t, "Shipping", result.Lines[2].Name)

	result, err = Build(order, Options{SkipDescriptions: true})
	require.NoError(t, err)
	assert.Empty(t, result.Lines[0].Description)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 1.01, RoundHalfUp(1.005, 2))
	assert.Equal(t, -1.01, RoundHalfUp(-1.005, 2))
	assert.Equal(t, 3.0, RoundHalfUp(2.5, 0))
}
