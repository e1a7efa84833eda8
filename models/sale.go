package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PaymentMethod is the payment method chosen for a sale
type PaymentMethod string

const (
	MethodUnset  PaymentMethod = ""
	MethodDebit  PaymentMethod = "Débito"
	MethodCredit PaymentMethod = "Crédito"
	MethodPix    PaymentMethod = "Pix"
	MethodCash   PaymentMethod = "Dinheiro"
)

// PaymentMethods lists the selectable methods in display order
var PaymentMethods = []PaymentMethod{MethodUnset, MethodDebit, MethodPix, MethodCash, MethodCredit}

var methodAliases = map[string]PaymentMethod{
	"":         MethodUnset,
	"débito":   MethodDebit,
	"debito":   MethodDebit,
	"debit":    MethodDebit,
	"crédito":  MethodCredit,
	"credito":  MethodCredit,
	"credit":   MethodCredit,
	"pix":      MethodPix,
	"dinheiro": MethodCash,
	"cash":     MethodCash,
}

// ParsePaymentMethod accepts the display names and a few unaccented aliases
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	key := cases.Lower(language.BrazilianPortuguese).String(strings.TrimSpace(s))
	if m, ok := methodAliases[key]; ok {
		return m, nil
	}
	return MethodUnset, &ValidationError{Field: "paymentMethod", Reason: "unknown payment method " + s}
}

// CardKind selects debit or credit on the card terminal
type CardKind string

const (
	CardUnspecified CardKind = ""
	CardDebit       CardKind = "debit_card"
	CardCredit      CardKind = "credit_card"
)

// CardKind maps a method to the card kind sent to the terminal
func (m PaymentMethod) CardKind() CardKind {
	switch m {
	case MethodDebit:
		return CardDebit
	case MethodCredit:
		return CardCredit
	default:
		return CardUnspecified
	}
}

// SaleSummary is what a tab button shows
type SaleSummary struct {
	ID       string `json:"id"`
	Total    int64  `json:"total"`
	Items    int    `json:"items"`
	Active   bool   `json:"active"`
	Settling bool   `json:"settling"`
}

// PricedLine is a line with its promotion decision applied
type PricedLine struct {
	LineItem
	Promoted       bool  `json:"promoted"`
	EffectivePrice int64 `json:"effectivePrice"`
	Subtotal       int64 `json:"subtotal"`
}

// SaleView is the snapshot of one sale handed to the presentation layer
// Example response:
// {
//   "id": "3f1c...",
//   "shop": "Centro",
//   "paymentMethod": "Pix",
//   "lines": [{"key": "row:12", "category": "Picolé", "flavor": "Morango", "quantity": 2, "promoted": true, ...}],
//   "total": 1000,
//   "totalQuantity": 2
// }
type SaleView struct {
	ID            string        `json:"id"`
	Shop          string        `json:"shop"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Lines         []PricedLine  `json:"lines"`
	Total         int64         `json:"total"`
	TotalQuantity int           `json:"totalQuantity"`
	Settling      bool          `json:"settling"`
}
