package ordersync

import "invoicesync/internal/infast"

var documentPaymentMethods = map[string]string{
	"cheque":       infast.PaymentCheck,
	"bacs":         infast.PaymentTransfer,
	"cod":          infast.PaymentCash,
	"stripe":       infast.PaymentCreditCard,
	"stripe_cc":    infast.PaymentCreditCard,
	"stripe_ideal": infast.PaymentTransfer,
	"paypal":       infast.PaymentOther,
	"ppcp-gateway": infast.PaymentOther,
	"other":        infast.PaymentOther,
}

// transactionMethods is the same table without the "other" alias.
var transactionMethods = map[string]string{
	"cheque":       infast.PaymentCheck,
	"bacs":         infast.PaymentTransfer,
	"cod":          infast.PaymentCash,
	"stripe":       infast.PaymentCreditCard,
	"stripe_cc":    infast.PaymentCreditCard,
	"stripe_ideal": infast.PaymentTransfer,
	"paypal":       infast.PaymentOther,
	"ppcp-gateway": infast.PaymentOther,
}

// DocumentPaymentMethod maps a shop payment gateway to the method shown on
// the document. Unknown gateways map to OTHER.
func DocumentPaymentMethod(gateway string) string {
	if m, ok := documentPaymentMethods[gateway]; ok {
		return m
	}
	return infast.PaymentOther
}

// TransactionMethod maps a shop payment gateway to the method of the
// recorded payment. Unknown gateways map to OTHER.
func TransactionMethod(gateway string) string {
	if m, ok := transactionMethods[gateway]; ok {
		return m
	}
	return infast.PaymentOther
}
