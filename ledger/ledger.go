package ledger

import (
	"pdv-sorveteria/models"
	"pdv-sorveteria/pricing"
)

// Ledger is the registry of open sales. Whenever it holds a sale, exactly one
// of them is active. Like Sale it belongs to the owner goroutine.
type Ledger struct {
	shop   string
	engine *pricing.Engine
	sales  []*Sale
	active *Sale
}

// New creates a ledger for a shop with one empty active sale
func New(shop string, engine *pricing.Engine) *Ledger {
	if engine == nil {
		engine = pricing.Default()
	}
	l := &Ledger{shop: shop, engine: engine}
	l.CreateSale("")
	return l
}

// Shop is the default shop of new sales
func (l *Ledger) Shop() string {
	return l.shop
}

// SetShop changes the shop used by sales created from now on
func (l *Ledger) SetShop(shop string) {
	l.shop = shop
}

// CreateSale opens a new empty sale and makes it active.
// An empty shop means the ledger's shop.
func (l *Ledger) CreateSale(shop string) *Sale {
	if shop == "" {
		shop = l.shop
	}
	sale := NewSale(shop, l.engine)
	l.sales = append(l.sales, sale)
	l.active = sale
	return sale
}

// Active returns the active sale
func (l *Ledger) Active() *Sale {
	return l.active
}

// Len is the number of open sales
func (l *Ledger) Len() int {
	return len(l.sales)
}

// Get finds an open sale by id
func (l *Ledger) Get(id string) (*Sale, error) {
	for _, s := range l.sales {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, &models.NotFoundError{Kind: "sale", ID: id}
}

// Contains reports whether a sale is still open
func (l *Ledger) Contains(id string) bool {
	_, err := l.Get(id)
	return err == nil
}

// SelectActive switches the active sale
func (l *Ledger) SelectActive(id string) error {
	sale, err := l.Get(id)
	if err != nil {
		return err
	}
	l.active = sale
	return nil
}

// CloseSale removes a sale. If it was active, the first remaining sale with a
// positive total becomes active; failing that a fresh empty sale is created.
func (l *Ledger) CloseSale(id string) error {
	idx := -1
	for i, s := range l.sales {
		if s.ID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &models.NotFoundError{Kind: "sale", ID: id}
	}

	closed := l.sales[idx]
	l.sales = append(l.sales[:idx], l.sales[idx+1:]...)

	if l.active != closed {
		return nil
	}

	l.active = nil
	for _, s := range l.sales {
		if s.Total() > 0 {
			l.active = s
			return nil
		}
	}
	l.CreateSale(closed.Shop())
	return nil
}

// ListOpen returns the tab summaries in ledger order
func (l *Ledger) ListOpen() []models.SaleSummary {
	summaries := make([]models.SaleSummary, 0, len(l.sales))
	for _, s := range l.sales {
		summaries = append(summaries, models.SaleSummary{
			ID:       s.ID(),
			Total:    s.Evaluate().Total,
			Items:    s.TotalQuantity(),
			Active:   s == l.active,
			Settling: s.Settling(),
		})
	}
	return summaries
}
