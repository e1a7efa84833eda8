package utils

import (
	"strings"

	"github.com/shopspring/decimal"

	"pdv-sorveteria/models"
)

// MaxAmount is the largest amount accepted from input, R$ 1.000.000,00
const MaxAmount int64 = 100_000_000

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.New(MaxAmount, -2)
)

// FormatBRL formats an amount in centavos as a string like "R$ 1.234,56".
// Uses dot as thousands separator and comma for decimals.
func FormatBRL(centavos int64) string {
	neg := centavos < 0
	if neg {
		centavos = -centavos
	}

	fixed := decimal.New(centavos, -2).StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.Grow(len(intPart) + len(intPart)/3 + 7)
	if neg {
		b.WriteString("-R$ ")
	} else {
		b.WriteString("R$ ")
	}

	// Insert separators from the left.
	rem := len(intPart) % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(intPart[:rem])
	for i := rem; i < len(intPart); i += 3 {
		b.WriteByte('.')
		b.WriteString(intPart[i : i+3])
	}
	b.WriteByte(',')
	b.WriteString(frac)

	return b.String()
}

// FormatDecimal formats centavos as a plain "12.50", the form used in
// spreadsheets and gateway payloads
func FormatDecimal(centavos int64) string {
	return decimal.New(centavos, -2).StringFixed(2)
}

// ParseAmount parses an operator-typed or spreadsheet amount into centavos.
// Accepts "12,50", "12.50", "1.234,56", "R$ 7" and plain integers.
// More than two decimal places, exponents, negative values and anything
// above MaxAmount are rejected.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, &models.ValidationError{Field: "amount", Reason: "empty amount"}
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	}

	if strings.IndexFunc(s, func(r rune) bool { return r != '.' && r != '-' && (r < '0' || r > '9') }) >= 0 {
		return 0, &models.ValidationError{Field: "amount", Reason: "not a number: " + raw}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &models.ValidationError{Field: "amount", Reason: "not a number: " + raw}
	}
	if d.IsNegative() {
		return 0, &models.ValidationError{Field: "amount", Reason: "amount cannot be negative"}
	}
	if d.GreaterThan(maxAmount) {
		return 0, &models.ValidationError{Field: "amount", Reason: "amount above " + FormatBRL(MaxAmount) + ": " + raw}
	}
	cents := d.Mul(hundred)
	if !cents.IsInteger() {
		return 0, &models.ValidationError{Field: "amount", Reason: "more than two decimal places: " + raw}
	}
	return cents.IntPart(), nil
}

// ParseOptionalAmount returns nil for an empty input
func ParseOptionalAmount(raw string) (*int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
