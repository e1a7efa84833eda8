package pricing

import (
	"sort"

	"pdv-sorveteria/models"
)

// DefaultPromoMethods are the cash-equivalent methods that unlock category promotions
var DefaultPromoMethods = []models.PaymentMethod{models.MethodPix, models.MethodCash}

// Engine evaluates category promotions over the lines of a sale.
// It holds no per-sale state; Evaluate is a pure function of its inputs.
type Engine struct {
	promoMethods map[models.PaymentMethod]bool
}

// NewEngine creates an engine where the given methods are promotion-eligible.
// With no methods the default set (Pix, Dinheiro) is used.
func NewEngine(methods ...models.PaymentMethod) *Engine {
	if len(methods) == 0 {
		methods = DefaultPromoMethods
	}
	eligible := make(map[models.PaymentMethod]bool, len(methods))
	for _, m := range methods {
		eligible[m] = true
	}
	return &Engine{promoMethods: eligible}
}

var defaultEngine = NewEngine()

// Default returns the engine with the default promotion methods
func Default() *Engine {
	return defaultEngine
}

// Result is the outcome of a promotion evaluation
type Result struct {
	CategoryQuantities map[string]int
	Lines              []models.PricedLine
	Total              int64
}

// PromotionEligible reports whether a payment method can unlock promotions
func (e *Engine) PromotionEligible(method models.PaymentMethod) bool {
	return e.promoMethods[method]
}

// Evaluate computes the effective price of every line and the sale total.
// Lines come back sorted by key so repeated calls give identical output.
func (e *Engine) Evaluate(lines []models.LineItem, method models.PaymentMethod) Result {
	categoryQty := CategoryQuantities(lines)
	eligible := e.PromotionEligible(method)

	sorted := make([]models.LineItem, len(lines))
	copy(sorted, lines)
	SortLines(sorted)

	result := Result{
		CategoryQuantities: categoryQty,
		Lines:              make([]models.PricedLine, 0, len(sorted)),
	}

	for _, line := range sorted {
		promoted := eligible &&
			line.PromoThreshold != nil &&
			categoryQty[line.Category] >= *line.PromoThreshold

		price := line.UnitPrice
		if promoted {
			price = line.PromoPrice
		}
		subtotal := price * int64(line.Quantity)

		result.Lines = append(result.Lines, models.PricedLine{
			LineItem:       line.Clone(),
			Promoted:       promoted,
			EffectivePrice: price,
			Subtotal:       subtotal,
		})
		result.Total += subtotal
	}

	return result
}

// CategoryQuantities sums line quantities per category
func CategoryQuantities(lines []models.LineItem) map[string]int {
	qty := make(map[string]int)
	for _, line := range lines {
		qty[line.Category] += line.Quantity
	}
	return qty
}

// SortLines orders lines catalog rows first, then manual entries, each by id
func SortLines(lines []models.LineItem) {
	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i].Key, lines[j].Key
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
}
