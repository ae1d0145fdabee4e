package invoice

import (
	"github.com/shopspring/decimal"

	"invoicesync/pkg/models"
)

const (
	// Epsilon absorbs floating point noise in refund and discount netting.
	Epsilon = 0.0001

	// DefaultPriceDecimals applies when the order carries no precision.
	DefaultPriceDecimals = models.DefaultPriceDecimals

	quantityDecimals = 4
	rateDecimals     = 2
)

// RoundHalfUp rounds x to places decimals, halves away from zero.
func RoundHalfUp(x float64, places int) float64 {
	f, _ := decimal.NewFromFloat(x).Round(int32(places)).Float64()
	return f
}

func roundQuantity(q float64) float64 {
	return RoundHalfUp(q, quantityDecimals)
}

// vatRate derives a percentage from an amount and its tax; non-positive
// inputs give 0.
func vatRate(amount, tax float64) float64 {
	if amount <= 0 || tax <= 0 {
		return 0
	}
	return RoundHalfUp(tax/amount*100, rateDecimals)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
