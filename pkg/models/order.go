package models

import "time"

// DefaultPriceDecimals is the rounding precision of orders that carry none.
const DefaultPriceDecimals = 2

// Order is a snapshot of a commerce order as exported by the shop.
// Amounts are in major currency units; tax amounts are kept apart from the
// tax-exclusive totals the way the shop reports them.
type Order struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Status string `json:"status"`

	Currency      string  `json:"currency"`
	PriceDecimals *int    `json:"price_decimals,omitempty"` // Rounding precision, 2 when absent
	Total         float64 `json:"total"`                    // Grand total including tax
	TotalTax      float64 `json:"total_tax"`
	DiscountTotal float64 `json:"discount_total"` // Order-level discount excluding tax

	PaymentMethod      string `json:"payment_method"`
	PaymentMethodTitle string `json:"payment_method_title"`
	CreatedVia         string `json:"created_via"`

	CustomerID      int64 `json:"customer_id"` // 0 for guest checkouts
	CustomerIsAdmin bool  `json:"customer_is_admin"`

	DateCreated time.Time  `json:"date_created"`
	DatePaid    *time.Time `json:"date_paid,omitempty"`

	Billing Billing `json:"billing"`

	Items         []LineItem     `json:"line_items"`
	ShippingLines []ShippingLine `json:"shipping_lines"`
	Fees          []FeeLine      `json:"fee_lines"`
	Refunds       []Refund       `json:"refunds"`
}

// Decimals returns the configured rounding precision. Zero is a valid
// precision; only an absent value falls back to DefaultPriceDecimals.
func (o *Order) Decimals() int {
	if o.PriceDecimals == nil || *o.PriceDecimals < 0 {
		return DefaultPriceDecimals
	}
	return *o.PriceDecimals
}

// Billing holds the billing contact of an order.
type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	Postcode  string `json:"postcode"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

// LineItem is a purchased product. Subtotal is before line discounts,
// Total after; both exclude tax.
type LineItem struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Quantity    float64 `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
	SubtotalTax float64 `json:"subtotal_tax"`
	Total       float64 `json:"total"`
	TotalTax    float64 `json:"total_tax"`
	Virtual     bool    `json:"virtual"`
	Description string  `json:"description,omitempty"`
}

// ShippingLine is a shipping charge excluding tax.
type ShippingLine struct {
	ID          int64   `json:"id"`
	MethodTitle string  `json:"method_title"`
	Total       float64 `json:"total"`
	TotalTax    float64 `json:"total_tax"`
}

// FeeLine is an extra fee excluding tax.
type FeeLine struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Total    float64 `json:"total"`
	TotalTax float64 `json:"total_tax"`
}

// Refund groups the refunded quantities and amounts of one refund operation.
type Refund struct {
	ID     int64        `json:"id"`
	Amount float64      `json:"amount"`
	Reason string       `json:"reason,omitempty"`
	Lines  []RefundLine `json:"line_items"`
}

// RefundLine points back to an original item, shipping or fee line.
// Shops report refunded values either negative or positive; consumers use
// magnitudes.
type RefundLine struct {
	ItemID   int64   `json:"refunded_item_id"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`     // Refunded amount excluding tax
	TotalTax float64 `json:"total_tax"` // Refunded tax
}

// OrderRefs are the remote identifiers persisted against an order.
type OrderRefs struct {
	CustomerRef    string
	DocumentRef    string
	PaymentRef     string
	EmailSent      bool
	SyncInProgress bool
}

// OrderNote is a human-readable entry in an order's history.
type OrderNote struct {
	OrderID   int64
	Message   string
	CreatedAt time.Time
}
