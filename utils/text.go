package utils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pdv-sorveteria/models"
)

// StripAccents removes diacritics: "Limão" -> "Limao"
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeSearch folds case and accents so "limao" matches "Limão"
func NormalizeSearch(s string) string {
	return strings.ToLower(StripAccents(strings.TrimSpace(s)))
}

// IsBarcode reports whether the input is only digits
func IsBarcode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LooksLikeAmount reports whether typed input is a manual price: it has a
// decimal separator and otherwise only digits
func LooksLikeAmount(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, ",.") {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != ',' && r != '.' {
			return false
		}
	}
	return true
}

// ParseOptionalInt returns nil for an empty input
func ParseOptionalInt(field, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &models.ValidationError{Field: field, Reason: "not a whole number: " + raw}
	}
	if v < 0 {
		return nil, &models.ValidationError{Field: field, Reason: "cannot be negative"}
	}
	return &v, nil
}
