package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdv-sorveteria/models"
	"pdv-sorveteria/pricing"
)

// Sale is one open tab. It is not safe for concurrent use: only the owner
// goroutine mutates it.
type Sale struct {
	id        string
	shop      string
	method    models.PaymentMethod
	createdAt time.Time
	lines     map[models.LineKey]*models.LineItem
	manualSeq int64
	settling  bool

	engine     *pricing.Engine
	finalTotal int64
}

// NewSale creates an empty sale for a shop
func NewSale(shop string, engine *pricing.Engine) *Sale {
	if engine == nil {
		engine = pricing.Default()
	}
	return &Sale{
		id:        uuid.NewString(),
		shop:      shop,
		createdAt: time.Now(),
		lines:     make(map[models.LineKey]*models.LineItem),
		engine:    engine,
	}
}

func (s *Sale) ID() string                          { return s.id }
func (s *Sale) Shop() string                        { return s.shop }
func (s *Sale) PaymentMethod() models.PaymentMethod { return s.method }
func (s *Sale) CreatedAt() time.Time                { return s.createdAt }
func (s *Sale) Settling() bool                      { return s.settling }
func (s *Sale) IsEmpty() bool                       { return len(s.lines) == 0 }

// Total is the promotion-adjusted total. It is kept current by every mutation.
func (s *Sale) Total() int64 {
	return s.finalTotal
}

// Lines returns a copy of the lines ordered by key
func (s *Sale) Lines() []models.LineItem {
	lines := make([]models.LineItem, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, l.Clone())
	}
	pricing.SortLines(lines)
	return lines
}

// Line returns one line by key
func (s *Sale) Line(key models.LineKey) (models.LineItem, bool) {
	l, ok := s.lines[key]
	if !ok {
		return models.LineItem{}, false
	}
	return l.Clone(), true
}

// TotalQuantity sums the quantity of every line
func (s *Sale) TotalQuantity() int {
	total := 0
	for _, l := range s.lines {
		total += l.Quantity
	}
	return total
}

// Evaluate runs the promotion engine over the current lines
func (s *Sale) Evaluate() pricing.Result {
	return s.engine.Evaluate(s.Lines(), s.method)
}

// View is the presentation snapshot of the sale
func (s *Sale) View() models.SaleView {
	res := s.Evaluate()
	return models.SaleView{
		ID:            s.id,
		Shop:          s.shop,
		PaymentMethod: s.method,
		Lines:         res.Lines,
		Total:         res.Total,
		TotalQuantity: s.TotalQuantity(),
		Settling:      s.settling,
	}
}

func (s *Sale) recompute() {
	s.finalTotal = s.Evaluate().Total
}

func (s *Sale) checkMutable() error {
	if s.settling {
		return &models.ValidationError{Field: "sale", Reason: "sale is being settled"}
	}
	return nil
}

// AddItem adds one unit of a catalog entry. An existing catalog line is
// incremented; manual entries always become a new line.
func (s *Sale) AddItem(entry models.CatalogEntry, manual bool) (models.LineKey, error) {
	if err := s.checkMutable(); err != nil {
		return models.LineKey{}, err
	}
	if entry.Price < 0 {
		return models.LineKey{}, &models.ValidationError{Field: "price", Reason: "price cannot be negative"}
	}
	if entry.PromoPrice != nil && *entry.PromoPrice < 0 {
		return models.LineKey{}, &models.ValidationError{Field: "promoPrice", Reason: "promo price cannot be negative"}
	}

	if manual {
		s.manualSeq++
		key := models.ManualKey(s.manualSeq)
		line := models.NewLineItem(key, entry)
		s.lines[key] = &line
		s.recompute()
		return key, nil
	}

	key := models.CatalogKey(entry.RowKey)
	if existing, ok := s.lines[key]; ok {
		existing.Quantity++
	} else {
		line := models.NewLineItem(key, entry)
		s.lines[key] = &line
	}
	s.recompute()
	return key, nil
}

// AddManual adds a typed amount as its own line
func (s *Sale) AddManual(amount int64) (models.LineKey, error) {
	if amount <= 0 {
		return models.LineKey{}, &models.ValidationError{Field: "amount", Reason: "amount must be greater than 0"}
	}
	return s.AddItem(models.CatalogEntry{
		Category: models.ManualCategory,
		Shop:     s.shop,
		Price:    amount,
	}, true)
}

// UpdateQuantity sets the quantity of a line. Negative values clamp to 0 and
// 0 removes the line.
func (s *Sale) UpdateQuantity(key models.LineKey, qty int) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	line, ok := s.lines[key]
	if !ok {
		return &models.NotFoundError{Kind: "line", ID: key.String()}
	}

	if qty <= 0 {
		delete(s.lines, key)
	} else {
		line.Quantity = qty
	}
	s.recompute()
	return nil
}

// UpdateQuantityInput parses operator input before updating the quantity.
// Non-numeric input is rejected and nothing changes.
func (s *Sale) UpdateQuantityInput(key models.LineKey, raw string) error {
	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return &models.ValidationError{Field: "quantity", Reason: "not a whole number: " + raw}
	}
	return s.UpdateQuantity(key, qty)
}

// RemoveItem deletes a line. Removing an absent key does nothing.
func (s *Sale) RemoveItem(key models.LineKey) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if _, ok := s.lines[key]; !ok {
		return nil
	}
	delete(s.lines, key)
	s.recompute()
	return nil
}

// SetPaymentMethod stores the method; promotion eligibility depends on it
func (s *Sale) SetPaymentMethod(method models.PaymentMethod) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	s.method = method
	s.recompute()
	return nil
}

// BeginSettlement freezes the sale while its history record is written
func (s *Sale) BeginSettlement() error {
	if s.settling {
		return &models.ValidationError{Field: "sale", Reason: "sale is already being settled"}
	}
	if s.IsEmpty() {
		return &models.ValidationError{Field: "sale", Reason: "sale has no items"}
	}
	s.settling = true
	return nil
}

// AbortSettlement unfreezes the sale after a failed history write
func (s *Sale) AbortSettlement() {
	s.settling = false
}
