package models

// Product is a catalog entry mirrored as a remote item.
type Product struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	SKU              string  `json:"sku"`
	Status           string  `json:"status"` // "publish" for live products
	Price            float64 `json:"price"`
	PriceExclTax     float64 `json:"price_excl_tax"`
	PriceInclTax     float64 `json:"price_incl_tax"`
	Virtual          bool    `json:"virtual"`
	Description      string  `json:"description,omitempty"`
	ShortDescription string  `json:"short_description,omitempty"`
	PurchasePrice    float64 `json:"purchase_price,omitempty"`
	Unit             string  `json:"unit,omitempty"`
}

// IsPublished reports whether the product is live in the shop.
func (p Product) IsPublished() bool {
	return p.Status == "publish"
}
