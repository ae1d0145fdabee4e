package catalog

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"invoicesync/internal/infast"
	"invoicesync/internal/invoice"
	"invoicesync/pkg/models"
)

const (
	maxReferenceLength   = 24
	maxDescriptionLength = 8196
)

var referenceChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ItemPayload builds the remote item for product.
func ItemPayload(p models.Product, skipDescriptions bool) infast.ItemPayload {
	payload := infast.ItemPayload{
		Name:      p.Name,
		Price:     priceExclTax(p),
		VAT:       vatRate(p),
		Reference: Reference(p),
		Type:      infast.KindProduct,
		Metadata:  "INTERNAL_DB_ID=" + strconv.FormatInt(p.ID, 10),
		Unit:      strings.TrimSpace(p.Unit),
	}
	if p.Virtual {
		payload.Type = infast.KindService
	}

	if !skipDescriptions {
		description := p.Description
		if strings.TrimSpace(description) == "" {
			description = p.ShortDescription
		}
		payload.Description = plainText(description, maxDescriptionLength)
	}

	if p.PurchasePrice > 0 {
		buying := invoice.RoundHalfUp(p.PurchasePrice, invoice.DefaultPriceDecimals)
		payload.BuyingPrice = &buying
	}
	return payload
}

// Reference is the product SKU, or its id, reduced to [A-Za-z0-9_-] and
// truncated to 24 characters.
func Reference(p models.Product) string {
	raw := p.SKU
	if raw == "" {
		raw = strconv.FormatInt(p.ID, 10)
	}
	ref := referenceChars.ReplaceAllString(raw, "")
	if len(ref) > maxReferenceLength {
		ref = ref[:maxReferenceLength]
	}
	return ref
}

func priceExclTax(p models.Product) float64 {
	price := p.PriceExclTax
	if price <= 0 {
		price = p.Price
	}
	if price <= 0 {
		return 0
	}
	return invoice.RoundHalfUp(price, invoice.DefaultPriceDecimals)
}

// vatRate derives the rate from the tax-inclusive and tax-exclusive prices.
func vatRate(p models.Product) float64 {
	if p.PriceExclTax <= 0 || p.PriceInclTax <= 0 {
		return 0
	}
	rate := (p.PriceInclTax - p.PriceExclTax) / p.PriceExclTax * 100
	return max(0, invoice.RoundHalfUp(rate, 2))
}

// plainText drops markup from s and truncates the text to limit bytes.
func plainText(s string, limit int) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return strings.TrimSpace(s)
			}
			break
		}
		switch tt {
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}

	text := b.String()
	if len(text) > limit {
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		text = text[:limit]
	}
	return strings.TrimSpace(text)
}
