// Package invoice turns an order snapshot into invoice lines: forward lines
// at the net ordered quantity, reversal lines for refunds, VAT rates inferred
// from tax amounts, and the order discount left to apply as cash.
package invoice

import (
	"fmt"
	"math"
	"strings"

	"invoicesync/pkg/models"
)

// Line kinds.
const (
	KindProduct = "PRODUCT"
	KindService = "SERVICE"
)

// Line is one invoice line, prices excluding tax.
type Line struct {
	Name            string  `json:"name"`
	Reference       string  `json:"reference"`
	UnitPrice       float64 `json:"unit_price"`
	Quantity        float64 `json:"quantity"`
	VATRate         float64 `json:"vat_rate"`
	Kind            string  `json:"kind"`
	Description     string  `json:"description,omitempty"`
	DiscountPercent float64 `json:"discount_percent,omitempty"` // 0 when the line carries no discount
	IsReversal      bool    `json:"is_reversal,omitempty"`
}

// Amount is the line's net value after its percentage discount.
func (l Line) Amount() float64 {
	return l.UnitPrice * l.Quantity * (1 - l.DiscountPercent/100)
}

// Options tunes line building.
type Options struct {
	SkipDescriptions bool
}

// BuildResult is the ordered line list and the order discount not already
// expressed on lines.
type BuildResult struct {
	Lines             []Line
	RemainingDiscount float64
}

// refundTotals are magnitudes summed over every refund touching one line.
type refundTotals struct {
	Quantity float64
	Amount   float64
	Tax      float64
}

// Build converts order into invoice lines. Products come first, then
// shipping, then fees; each category's reversal lines follow its forward
// lines.
func Build(order *models.Order, opts Options) (*BuildResult, error) {
	if order == nil {
		return nil, fmt.Errorf("invoice: %w", ErrInvalidOrder)
	}

	b := &builder{
		opts:     opts,
		decimals: order.Decimals(),
		refunds:  aggregateRefunds(order.Refunds),
	}

	b.products(order.Items)
	b.shipping(order.ShippingLines)
	b.fees(order.Fees)

	if len(b.lines) == 0 {
		return nil, newBuildError(order.ID, ErrNoInvoiceLines, "")
	}

	result := &BuildResult{Lines: b.lines}
	if remaining := order.DiscountTotal - b.lineDiscounts; remaining > Epsilon {
		result.RemainingDiscount = b.money(remaining)
	}
	return result, nil
}

// aggregateRefunds sums refunded quantity, amount and tax per original line.
func aggregateRefunds(refunds []models.Refund) map[int64]refundTotals {
	totals := make(map[int64]refundTotals)
	for _, refund := range refunds {
		for _, line := range refund.Lines {
			t := totals[line.ItemID]
			t.Quantity += math.Abs(line.Quantity)
			t.Amount += math.Abs(line.Total)
			t.Tax += math.Abs(line.TotalTax)
			totals[line.ItemID] = t
		}
	}
	return totals
}

type builder struct {
	opts          Options
	decimals      int
	refunds       map[int64]refundTotals
	lines         []Line
	lineDiscounts float64
}

func (b *builder) money(x float64) float64 {
	return RoundHalfUp(x, b.decimals)
}

func (b *builder) products(items []models.LineItem) {
	var reversals []Line

	for _, item := range items {
		ordered := item.Quantity
		if ordered <= 0 {
			continue
		}
		refunded := b.refunds[item.ID]
		netQty := math.Max(0, ordered-refunded.Quantity)

		unitPrice := item.Total / ordered
		if item.Subtotal != 0 {
			unitPrice = item.Subtotal / ordered
		}

		vat := vatRate(item.Subtotal, item.SubtotalTax)
		if vat == 0 {
			vat = vatRate(item.Total, item.TotalTax)
		}

		var discount float64
		if item.Subtotal > item.Total+Epsilon && item.Subtotal > 0 {
			discount = RoundHalfUp(clamp(100*(1-item.Total/item.Subtotal), 0, 100), rateDecimals)
		}

		kind := KindProduct
		if item.Virtual {
			kind = KindService
		}
		reference := productReference(item)

		if netQty > Epsilon {
			line := Line{
				Name:            item.Name,
				Reference:       reference,
				UnitPrice:       b.money(unitPrice),
				Quantity:        roundQuantity(netQty),
				VATRate:         vat,
				Kind:            kind,
				DiscountPercent: discount,
			}
			if !b.opts.SkipDescriptions {
				line.Description = strings.TrimSpace(item.Description)
			}
			b.lines = append(b.lines, line)
		}

		// The refunded share of the discount is already inside the reversal amount.
		if discount > 0 {
			b.lineDiscounts += item.Subtotal - item.Total
		}

		amount := refunded.Amount
		if amount <= Epsilon && refunded.Quantity > 0 {
			amount = refunded.Quantity * (item.Total / ordered)
		}
		if amount > Epsilon {
			reversals = append(reversals, reversal(item.Name, reference, b.money(amount), vat, kind))
		}
	}

	b.lines = append(b.lines, reversals...)
}

func (b *builder) shipping(lines []models.ShippingLine) {
	var reversals []Line

	for _, s := range lines {
		refunded := b.refunds[s.ID]
		name := s.MethodTitle
		if name == "" {
			name = "Shipping"
		}
		reference := "SHIPPING"
		if s.ID != 0 {
			reference = fmt.Sprintf("SHIPPING-%d", s.ID)
		}
		vat := vatRate(s.Total, s.TotalTax)

		b.flatCharge(name, reference, s.Total, s.TotalTax, vat, refunded, &reversals)
	}

	b.lines = append(b.lines, reversals...)
}

func (b *builder) fees(fees []models.FeeLine) {
	var reversals []Line

	for _, f := range fees {
		refunded := b.refunds[f.ID]
		name := f.Name
		if name == "" {
			name = "Fee"
		}
		reference := fmt.Sprintf("FEE-%d", f.ID)
		vat := vatRate(f.Total, f.TotalTax)

		b.flatCharge(name, reference, f.Total, f.TotalTax, vat, refunded, &reversals)
	}

	b.lines = append(b.lines, reversals...)
}

// flatCharge emits a quantity-one service line and collects its reversal.
// Charges with neither amount nor tax are dropped.
func (b *builder) flatCharge(name, reference string, total, tax, vat float64, refunded refundTotals, reversals *[]Line) {
	if math.Abs(total) <= Epsilon && math.Abs(tax) <= Epsilon {
		return
	}

	if netQty := math.Max(0, 1-refunded.Quantity); netQty > Epsilon {
		b.lines = append(b.lines, Line{
			Name:      name,
			Reference: reference,
			UnitPrice: b.money(total),
			Quantity:  roundQuantity(netQty),
			VATRate:   vat,
			Kind:      KindService,
		})
	}

	amount := refunded.Amount
	if amount <= Epsilon && refunded.Quantity > 0 {
		amount = refunded.Quantity * total
	}
	if amount > Epsilon {
		*reversals = append(*reversals, reversal(name, reference, b.money(amount), vat, KindService))
	}
}

func reversal(name, reference string, amount, vat float64, kind string) Line {
	return Line{
		Name:       "Refund - " + name,
		Reference:  reference + "-REFUND",
		UnitPrice:  -amount,
		Quantity:   1,
		VATRate:    vat,
		Kind:       kind,
		IsReversal: true,
	}
}

// productReference prefers the SKU, then the product id, then the line id.
func productReference(item models.LineItem) string {
	if sku := strings.TrimSpace(item.SKU); sku != "" {
		return sku
	}
	if item.ProductID != 0 {
		return fmt.Sprintf("%d", item.ProductID)
	}
	return fmt.Sprintf("ITEM-%d", item.ID)
}
