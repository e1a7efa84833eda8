package models

import (
	"fmt"
	"strconv"
	"strings"
)

// LineKind tells catalog lines apart from manual (typed amount) lines
type LineKind int

const (
	CatalogLine LineKind = iota
	ManualLine
)

// LineKey identifies a line inside a sale.
// Catalog lines are keyed by the catalog row, manual lines by a per-sale sequence.
type LineKey struct {
	Kind LineKind
	ID   int64
}

// CatalogKey builds the key of a catalog row
func CatalogKey(rowKey int64) LineKey {
	return LineKey{Kind: CatalogLine, ID: rowKey}
}

// ManualKey builds the key of the n-th manual entry
func ManualKey(seq int64) LineKey {
	return LineKey{Kind: ManualLine, ID: seq}
}

// IsManual reports whether the key belongs to a typed-amount entry
func (k LineKey) IsManual() bool {
	return k.Kind == ManualLine
}

// String returns "row:<n>" or "manual:<n>"
func (k LineKey) String() string {
	if k.Kind == ManualLine {
		return "manual:" + strconv.FormatInt(k.ID, 10)
	}
	return "row:" + strconv.FormatInt(k.ID, 10)
}

// MarshalText lets LineKey be used as a JSON object key
func (k LineKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the String form
func (k *LineKey) UnmarshalText(b []byte) error {
	parsed, err := ParseLineKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseLineKey parses "row:<n>" or "manual:<n>". A bare number is read as a catalog row.
func ParseLineKey(s string) (LineKey, error) {
	s = strings.TrimSpace(s)
	kind := CatalogLine
	raw := s
	switch {
	case strings.HasPrefix(s, "manual:"):
		kind = ManualLine
		raw = strings.TrimPrefix(s, "manual:")
	case strings.HasPrefix(s, "row:"):
		raw = strings.TrimPrefix(s, "row:")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return LineKey{}, &ValidationError{Field: "key", Reason: fmt.Sprintf("invalid line key %q", s)}
	}
	return LineKey{Kind: kind, ID: id}, nil
}

// ManualCategory is the category given to typed amounts that are not in the catalog
const ManualCategory = "Não cadastrado"

// LineItem is one product line (or manual amount) inside a sale.
// Prices are in centavos.
type LineItem struct {
	Key            LineKey `json:"key"`
	Barcode        string  `json:"barcode,omitempty"`
	Category       string  `json:"category"`
	Flavor         string  `json:"flavor"`
	UnitPrice      int64   `json:"unitPrice"`
	PromoPrice     int64   `json:"promoPrice"`
	PromoThreshold *int    `json:"promoThreshold,omitempty"` // nil: promotion never applies
	Quantity       int     `json:"quantity"`
}

// NewLineItem builds a quantity-1 line from a catalog entry.
// A missing promo price falls back to the regular price.
func NewLineItem(key LineKey, entry CatalogEntry) LineItem {
	promoPrice := entry.Price
	if entry.PromoPrice != nil {
		promoPrice = *entry.PromoPrice
	}

	var threshold *int
	if entry.PromoThreshold != nil {
		t := *entry.PromoThreshold
		threshold = &t
	}

	return LineItem{
		Key:            key,
		Barcode:        entry.Barcode,
		Category:       entry.Category,
		Flavor:         entry.Flavor,
		UnitPrice:      entry.Price,
		PromoPrice:     promoPrice,
		PromoThreshold: threshold,
		Quantity:       1,
	}
}

// Clone returns a deep copy (the threshold pointer is not shared)
func (l LineItem) Clone() LineItem {
	if l.PromoThreshold != nil {
		t := *l.PromoThreshold
		l.PromoThreshold = &t
	}
	return l
}

// Label is the human-facing description, e.g. "Picolé (Morango)"
func (l LineItem) Label() string {
	if l.Flavor == "" {
		return l.Category
	}
	return fmt.Sprintf("%s (%s)", l.Category, l.Flavor)
}
