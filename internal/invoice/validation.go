package invoice

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"invoicesync/internal/logger"
	"invoicesync/pkg/models"
)

// AmountValidation cross-checks built lines against the order totals. It
// never rejects a build; discrepancies surface as warnings.
type AmountValidation struct {
	log zerolog.Logger
}

// NewAmountValidation creates a new amount validation service
func NewAmountValidation() *AmountValidation {
	return &AmountValidation{
		log: logger.WithComponent("amount-validation"),
	}
}

// AmountValidationResult holds the compared totals, all excluding tax.
type AmountValidationResult struct {
	ForwardNet     float64  `json:"forward_net"`  // Forward lines after line and cash discounts
	ExpectedNet    float64  `json:"expected_net"` // Order total net of tax and refunded amounts
	ReversalNet    float64  `json:"reversal_net"` // Magnitude of all reversal lines
	RefundedNet    float64  `json:"refunded_net"` // Refunded amounts recorded on refund lines
	Warnings       []string `json:"warnings"`
	HasDiscrepancy bool     `json:"has_discrepancy"`
}

// Validate compares result with order.
func (av *AmountValidation) Validate(order *models.Order, result *BuildResult) *AmountValidationResult {
	decimals := order.Decimals()
	tolerance := math.Pow10(-decimals) * float64(max(1, len(result.Lines)))

	v := &AmountValidationResult{Warnings: []string{}}
	for _, line := range result.Lines {
		if line.IsReversal {
			v.ReversalNet += -line.Amount()
			continue
		}
		v.ForwardNet += line.Amount()
	}
	v.ForwardNet -= result.RemainingDiscount

	for _, refund := range order.Refunds {
		for _, line := range refund.Lines {
			v.RefundedNet += math.Abs(line.Total)
		}
	}
	v.ExpectedNet = order.Total - order.TotalTax - v.RefundedNet

	v.ForwardNet = RoundHalfUp(v.ForwardNet, decimals)
	v.ExpectedNet = RoundHalfUp(v.ExpectedNet, decimals)
	v.ReversalNet = RoundHalfUp(v.ReversalNet, decimals)
	v.RefundedNet = RoundHalfUp(v.RefundedNet, decimals)

	if diff := math.Abs(v.ForwardNet - v.ExpectedNet); diff > tolerance {
		v.HasDiscrepancy = true
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"invoice lines total %.2f but order amounts to %.2f net of tax and refunds (difference: %.2f)",
			v.ForwardNet, v.ExpectedNet, diff))
	}

	// Quantity-only refunds carry estimated reversal amounts
	if v.RefundedNet > Epsilon {
		if diff := math.Abs(v.ReversalNet - v.RefundedNet); diff > tolerance {
			v.HasDiscrepancy = true
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"reversal lines total %.2f but refunds amount to %.2f (difference: %.2f)",
				v.ReversalNet, v.RefundedNet, diff))
		}
	}

	event := av.log.Debug()
	if v.HasDiscrepancy {
		event = av.log.Warn()
	}
	event.
		Int64("order_id", order.ID).
		Float64("forward_net", v.ForwardNet).
		Float64("expected_net", v.ExpectedNet).
		Float64("reversal_net", v.ReversalNet).
		Float64("refunded_net", v.RefundedNet).
		Strs("warnings", v.Warnings).
		Msg("Amount validation completed")

	return v
}
