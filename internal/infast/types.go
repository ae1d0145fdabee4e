package infast

import (
	"bytes"
	"encoding/json"
)

// ID is a remote identifier. The API returns strings but numeric ids are
// accepted too.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Document and line enumerations.
const (
	DocumentTypeInvoice     = "INVOICE"
	DocumentStatusValidated = "VALIDATED"

	LineTypeItem = "ITEM"

	KindProduct = "PRODUCT"
	KindService = "SERVICE"

	DiscountCash    = "CASH"
	DiscountPercent = "PERCENT"
)

// Payment methods understood by the API.
const (
	PaymentCheck      = "CHECK"
	PaymentTransfer   = "TRANSFER"
	PaymentCash       = "CASH"
	PaymentCreditCard = "CREDITCARD"
	PaymentOther      = "OTHER"
)

// Account is the authenticated company returned by /me.
type Account struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Address is a postal address; empty fields are omitted.
type Address struct {
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// CustomerPayload creates a customer.
type CustomerPayload struct {
	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Mobile  string   `json:"mobile,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Customer is a remote customer record.
type Customer struct {
	ID    ID     `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Discount is either a CASH amount or a PERCENT rate.
type Discount struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

// DocumentLine is one invoice line on the wire.
type DocumentLine struct {
	LineType    string    `json:"lineType"`
	Name        string    `json:"name"`
	Reference   string    `json:"reference,omitempty"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	VAT         float64   `json:"vat"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Discount    *Discount `json:"discount,omitempty"`
}

// DocumentPayload creates a document.
type DocumentPayload struct {
	Type              string         `json:"type"`
	Status            string         `json:"status"`
	CustomerID        string         `json:"customerId"`
	Lines             []DocumentLine `json:"lines"`
	ReferenceInternal string         `json:"referenceInternal,omitempty"`
	EmitDate          string         `json:"emitDate"`
	DueDate           string         `json:"dueDate"`
	Metadata          string         `json:"metadata,omitempty"`
	Discount          *Discount      `json:"discount,omitempty"`
	PaymentMethod     string         `json:"paymentMethod,omitempty"`
	PaymentMethodInfo string         `json:"paymentMethodInfo,omitempty"`
	AmountNotice      string         `json:"amountNotice,omitempty"`
}

// PaymentPayload records a payment on a document.
type PaymentPayload struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
	Info   string  `json:"info,omitempty"`
}

// EmailPayload tunes the document email. The zero value is sent as {}.
type EmailPayload struct {
	CC string `json:"cc,omitempty"`
}

// ItemPayload creates or updates a catalog item.
type ItemPayload struct {
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	VAT         float64  `json:"vat"`
	Reference   string   `json:"reference,omitempty"`
	Type        string   `json:"type"`
	Metadata    string   `json:"metadata,omitempty"`
	Description string   `json:"description,omitempty"`
	BuyingPrice *float64 `json:"buyingPrice,omitempty"`
	Unit        string   `json:"unit,omitempty"`
}

// Item is a remote catalog item.
type Item struct {
	ID        ID     `json:"id"`
	Name      string `json:"name,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type created struct {
	ID ID `json:"id"`
}
