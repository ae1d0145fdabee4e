package ordersync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"invoicesync/internal/infast"
	"invoicesync/internal/invoice"
	"invoicesync/pkg/models"
)

// customerPayload builds the remote customer from the billing contact. The
// name falls back from company to full name to email to a generated label.
func customerPayload(order *models.Order) infast.CustomerPayload {
	b := order.Billing

	name := strings.TrimSpace(b.Company)
	if name == "" {
		name = strings.TrimSpace(b.FirstName + " " + b.LastName)
	}
	if name == "" {
		name = strings.TrimSpace(b.Email)
	}
	if name == "" {
		name = fmt.Sprintf("Customer #%d", order.ID)
	}

	payload := infast.CustomerPayload{
		Name:   name,
		Email:  strings.TrimSpace(b.Email),
		Mobile: strings.TrimSpace(b.Phone),
	}

	var street []string
	for _, part := range []string{b.Address1, b.Address2} {
		if part = strings.TrimSpace(part); part != "" {
			street = append(street, part)
		}
	}
	address := infast.Address{
		Street:     strings.Join(street, "\n"),
		PostalCode: strings.TrimSpace(b.Postcode),
		City:       strings.TrimSpace(b.City),
		Country:    strings.ToUpper(strings.TrimSpace(b.Country)),
	}
	if !address.IsZero() {
		payload.Address = &address
	}
	return payload
}

// documentLines converts built lines to their wire form.
func documentLines(lines []invoice.Line) []infast.DocumentLine {
	out := make([]infast.DocumentLine, 0, len(lines))
	for _, l := range lines {
		dl := infast.DocumentLine{
			LineType:    infast.LineTypeItem,
			Name:        l.Name,
			Reference:   l.Reference,
			Price:       l.UnitPrice,
			Quantity:    l.Quantity,
			VAT:         l.VATRate,
			Type:        l.Kind,
			Description: l.Description,
		}
		if l.DiscountPercent > 0 {
			dl.Discount = &infast.Discount{Type: infast.DiscountPercent, Amount: l.DiscountPercent}
		}
		out = append(out, dl)
	}
	return out
}

func (s *Synchronizer) documentPayload(order *models.Order, customerRef string, built *invoice.BuildResult) infast.DocumentPayload {
	emitted := s.now()
	if order.DatePaid != nil && !order.DatePaid.IsZero() {
		emitted = *order.DatePaid
	}
	date := emitted.UTC().Format(time.RFC3339)

	payload := infast.DocumentPayload{
		Type:              infast.DocumentTypeInvoice,
		Status:            infast.DocumentStatusValidated,
		CustomerID:        customerRef,
		Lines:             documentLines(built.Lines),
		ReferenceInternal: order.Number,
		EmitDate:          date,
		DueDate:           date,
		Metadata:          "INTERNAL_DB_ID=" + strconv.FormatInt(order.ID, 10),
		PaymentMethod:     DocumentPaymentMethod(order.PaymentMethod),
	}
	if payload.ReferenceInternal == "" {
		payload.ReferenceInternal = strconv.FormatInt(order.ID, 10)
	}

	if built.RemainingDiscount > 0 {
		payload.Discount = &infast.Discount{Type: infast.DiscountCash, Amount: built.RemainingDiscount}
	}
	if payload.PaymentMethod == infast.PaymentOther {
		payload.PaymentMethodInfo = order.PaymentMethodTitle
	}
	if s.settings.LegalNoticeEnabled {
		if notice := strings.TrimSpace(s.settings.LegalNotice); notice != "" {
			payload.AmountNotice = notice
		}
	}
	return payload
}

func paymentPayload(order *models.Order) infast.PaymentPayload {
	decimals := order.Decimals()

	number := order.Number
	if number == "" {
		number = strconv.FormatInt(order.ID, 10)
	}
	info := "Order #" + number
	if title := strings.TrimSpace(order.PaymentMethodTitle); title != "" {
		info += " - " + title
	}

	return infast.PaymentPayload{
		Method: TransactionMethod(order.PaymentMethod),
		Amount: invoice.RoundHalfUp(order.Total, decimals),
		Info:   info,
	}
}
