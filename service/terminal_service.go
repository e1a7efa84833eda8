package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/ledger"
	"pdv-sorveteria/models"
	"pdv-sorveteria/repository"
	"pdv-sorveteria/utils"
)

// TerminalSnapshot is everything the presentation layer renders
type TerminalSnapshot struct {
	Active   models.SaleView          `json:"active"`
	Sales    []models.SaleSummary     `json:"sales"`
	Payments map[string]PaymentStatus `json:"payments"`
}

// ScanResult reports what a scan did. Either a line was added or the
// operator has to pick one of the candidates.
type ScanResult struct {
	Added      *models.LineKey       `json:"added,omitempty"`
	Candidates []models.CatalogEntry `json:"candidates,omitempty"`
	Sale       models.SaleView       `json:"sale"`
}

// ChangeResult is the change due for a cash payment. A negative Change is
// the amount still missing.
type ChangeResult struct {
	Total  int64  `json:"total"`
	Paid   int64  `json:"paid"`
	Change int64  `json:"change"`
	Label  string `json:"label"`
}

// AddItemRequest represents the request body for adding an item to a sale
// Example: {"barcode": "7891234", "rowKey": 12} or {"amount": "7,50"}
type AddItemRequest struct {
	Barcode string `json:"barcode,omitempty"`
	RowKey  int64  `json:"rowKey,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// TerminalService is the operator-facing API. Ledger work is handed to the
// owner loop; catalog I/O runs on the caller's goroutine.
type TerminalService struct {
	loop        *OwnerLoop
	coordinator *SettlementCoordinator
	catalog     repository.CatalogRepositoryInterface
	board       *StatusBoard
}

// NewTerminalService creates a new TerminalService
func NewTerminalService(
	loop *OwnerLoop,
	coordinator *SettlementCoordinator,
	catalog repository.CatalogRepositoryInterface,
	board *StatusBoard,
) *TerminalService {
	return &TerminalService{
		loop:        loop,
		coordinator: coordinator,
		catalog:     catalog,
		board:       board,
	}
}

func (s *TerminalService) ledger() *ledger.Ledger {
	return s.coordinator.Ledger()
}

// withSale runs fn on the owner goroutine against one sale
func (s *TerminalService) withSale(ctx context.Context, saleID string, fn func(sale *ledger.Sale) error) (models.SaleView, error) {
	var view models.SaleView
	err := s.loop.Call(ctx, func() error {
		sale, err := s.ledger().Get(saleID)
		if err != nil {
			return err
		}
		if err := fn(sale); err != nil {
			return err
		}
		view = sale.View()
		return nil
	})
	return view, err
}

// editSale runs fn on the owner goroutine against a sale with no charge in flight
func (s *TerminalService) editSale(ctx context.Context, saleID string, fn func(sale *ledger.Sale) error) (models.SaleView, error) {
	var view models.SaleView
	err := s.loop.Call(ctx, func() error {
		sale, err := s.coordinator.Edit(saleID, fn)
		if err != nil {
			return err
		}
		view = sale.View()
		return nil
	})
	return view, err
}

// Snapshot returns the active sale, the open tabs and the payment statuses
func (s *TerminalService) Snapshot(ctx context.Context) (TerminalSnapshot, error) {
	var snap TerminalSnapshot
	err := s.loop.Call(ctx, func() error {
		snap.Active = s.ledger().Active().View()
		snap.Sales = s.ledger().ListOpen()
		return nil
	})
	if err != nil {
		return TerminalSnapshot{}, err
	}
	snap.Payments = s.board.All()
	return snap, nil
}

// View returns one sale
func (s *TerminalService) View(ctx context.Context, saleID string) (models.SaleView, error) {
	return s.withSale(ctx, saleID, func(*ledger.Sale) error { return nil })
}

// CreateSale opens a new tab
func (s *TerminalService) CreateSale(ctx context.Context, shop string) (models.SaleView, error) {
	var view models.SaleView
	err := s.loop.Call(ctx, func() error {
		view = s.coordinator.CreateSale(shop).View()
		return nil
	})
	return view, err
}

// SelectActive switches the active tab
func (s *TerminalService) SelectActive(ctx context.Context, saleID string) (models.SaleView, error) {
	var view models.SaleView
	err := s.loop.Call(ctx, func() error {
		if err := s.coordinator.SelectActive(saleID); err != nil {
			return err
		}
		view = s.ledger().Active().View()
		return nil
	})
	return view, err
}

// CloseSale discards a tab and returns the new active sale
func (s *TerminalService) CloseSale(ctx context.Context, saleID string) (models.SaleView, error) {
	var view models.SaleView
	err := s.loop.Call(ctx, func() error {
		if err := s.coordinator.CloseSale(saleID); err != nil {
			return err
		}
		view = s.ledger().Active().View()
		return nil
	})
	return view, err
}

// activeSale returns the id and shop of the active sale
func (s *TerminalService) activeSale(ctx context.Context) (string, string, error) {
	var id, shop string
	err := s.loop.Call(ctx, func() error {
		active := s.ledger().Active()
		id, shop = active.ID(), active.Shop()
		return nil
	})
	return id, shop, err
}

func (s *TerminalService) saleShop(ctx context.Context, saleID string) (string, error) {
	var shop string
	err := s.loop.Call(ctx, func() error {
		sale, err := s.ledger().Get(saleID)
		if err != nil {
			return err
		}
		shop = sale.Shop()
		return nil
	})
	return shop, err
}

// Scan handles what the operator typed or scanned into the active sale.
// A value with a decimal separator is a manual amount; digits are a barcode;
// anything else searches the catalog.
func (s *TerminalService) Scan(ctx context.Context, input string) (ScanResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ScanResult{}, &models.ValidationError{Field: "input", Reason: "nothing typed"}
	}

	saleID, shop, err := s.activeSale(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	switch {
	case utils.LooksLikeAmount(input):
		return s.addManual(ctx, saleID, input)
	case utils.IsBarcode(input):
		return s.scanBarcode(ctx, saleID, shop, input)
	default:
		entries, err := s.catalog.Search(ctx, input, shop)
		if err != nil {
			return ScanResult{}, errors.Wrap(err, "catalog search")
		}
		if len(entries) == 0 {
			return ScanResult{}, &models.NotFoundError{Kind: "product", ID: input}
		}
		view, err := s.View(ctx, saleID)
		return ScanResult{Candidates: entries, Sale: view}, err
	}
}

func (s *TerminalService) addManual(ctx context.Context, saleID, raw string) (ScanResult, error) {
	amount, err := utils.ParseAmount(raw)
	if err != nil {
		return ScanResult{}, err
	}
	var key models.LineKey
	view, err := s.editSale(ctx, saleID, func(sale *ledger.Sale) error {
		var err error
		key, err = sale.AddManual(amount)
		return err
	})
	if err != nil {
		return ScanResult{}, err
	}
	log.WithFields(log.Fields{"saleId": saleID, "amount": amount}).Info("✍️  Manual amount added")
	return ScanResult{Added: &key, Sale: view}, nil
}

func (s *TerminalService) scanBarcode(ctx context.Context, saleID, shop, code string) (ScanResult, error) {
	entries, err := s.catalog.LookupByCode(ctx, code, shop)
	if err != nil {
		return ScanResult{}, errors.Wrapf(err, "lookup barcode %s", code)
	}

	switch len(entries) {
	case 0:
		return ScanResult{}, s.notFoundWithSuggestion(ctx, code, shop)
	case 1:
		return s.addEntry(ctx, saleID, entries[0])
	default:
		view, err := s.View(ctx, saleID)
		return ScanResult{Candidates: entries, Sale: view}, err
	}
}

// notFoundWithSuggestion looks for the code in other shops so the product can
// be registered here with the same description
func (s *TerminalService) notFoundWithSuggestion(ctx context.Context, code, shop string) error {
	nf := &models.NotFoundError{Kind: "product", ID: code}
	others, err := s.catalog.LookupAnyShop(ctx, code)
	if err != nil {
		log.WithError(err).WithField("barcode", code).Warn("⚠️  Lookup in other shops failed")
		return nf
	}
	if len(others) > 0 {
		suggestion := others[0]
		suggestion.RowKey = 0
		suggestion.Shop = shop
		nf.Suggestion = &suggestion
		return nf
	}
	// unknown everywhere
	nf.ConfirmRead = true
	return nf
}

// ConfirmScan settles a possible misread. The same code scanned twice is
// confirmed unknown and goes to registration; a different code is scanned
// as new input.
func (s *TerminalService) ConfirmScan(ctx context.Context, original, rescanned string) (ScanResult, error) {
	original = strings.TrimSpace(original)
	rescanned = strings.TrimSpace(rescanned)
	if rescanned == "" {
		return ScanResult{}, &models.ValidationError{Field: "rescanned", Reason: "nothing scanned"}
	}
	if rescanned != original {
		log.WithFields(log.Fields{"original": original, "rescanned": rescanned}).Info("🔁 Misread barcode, scanning again")
		return s.Scan(ctx, rescanned)
	}
	log.WithField("barcode", original).Info("🆕 Unknown barcode confirmed")
	return ScanResult{}, &models.NotFoundError{Kind: "product", ID: original}
}

func (s *TerminalService) addEntry(ctx context.Context, saleID string, entry models.CatalogEntry) (ScanResult, error) {
	var key models.LineKey
	view, err := s.editSale(ctx, saleID, func(sale *ledger.Sale) error {
		var err error
		key, err = sale.AddItem(entry, false)
		return err
	})
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Added: &key, Sale: view}, nil
}

// AddItem adds a chosen catalog entry or a manual amount to a sale
func (s *TerminalService) AddItem(ctx context.Context, saleID string, req AddItemRequest) (ScanResult, error) {
	if req.Amount != "" {
		return s.addManual(ctx, saleID, req.Amount)
	}
	if req.Barcode == "" {
		return ScanResult{}, &models.ValidationError{Field: "barcode", Reason: "barcode or amount is required"}
	}

	shop, err := s.saleShop(ctx, saleID)
	if err != nil {
		return ScanResult{}, err
	}
	entries, err := s.catalog.LookupByCode(ctx, req.Barcode, shop)
	if err != nil {
		return ScanResult{}, errors.Wrapf(err, "lookup barcode %s", req.Barcode)
	}
	for _, e := range entries {
		if (req.RowKey == 0 && len(entries) == 1) || e.RowKey == req.RowKey {
			return s.addEntry(ctx, saleID, e)
		}
	}
	if len(entries) > 1 && req.RowKey == 0 {
		view, err := s.View(ctx, saleID)
		return ScanResult{Candidates: entries, Sale: view}, err
	}
	return ScanResult{}, s.notFoundWithSuggestion(ctx, req.Barcode, shop)
}

// UpdateQuantity sets a line quantity from operator input
func (s *TerminalService) UpdateQuantity(ctx context.Context, saleID, rawKey, rawQty string) (models.SaleView, error) {
	key, err := models.ParseLineKey(rawKey)
	if err != nil {
		return models.SaleView{}, err
	}
	return s.editSale(ctx, saleID, func(sale *ledger.Sale) error {
		return sale.UpdateQuantityInput(key, rawQty)
	})
}

// RemoveItem deletes a line
func (s *TerminalService) RemoveItem(ctx context.Context, saleID, rawKey string) (models.SaleView, error) {
	key, err := models.ParseLineKey(rawKey)
	if err != nil {
		return models.SaleView{}, err
	}
	return s.editSale(ctx, saleID, func(sale *ledger.Sale) error {
		return sale.RemoveItem(key)
	})
}

// SetPaymentMethod changes the method and reprices the sale. It is refused
// while a charge is running.
func (s *TerminalService) SetPaymentMethod(ctx context.Context, saleID, raw string) (models.SaleView, error) {
	method, err := models.ParsePaymentMethod(raw)
	if err != nil {
		return models.SaleView{}, err
	}
	var view models.SaleView
	err = s.loop.Call(ctx, func() error {
		sale, err := s.coordinator.SetMethod(saleID, method)
		if err != nil {
			return err
		}
		view = sale.View()
		return nil
	})
	return view, err
}

// Charge sends the sale total to the card terminal or creates a Pix order
func (s *TerminalService) Charge(ctx context.Context, saleID string) (PaymentStatus, error) {
	err := s.loop.Call(ctx, func() error {
		_, err := s.coordinator.Charge(saleID)
		return err
	})
	if err != nil {
		return PaymentStatus{}, err
	}
	status, _ := s.board.Get(saleID)
	return status, nil
}

// CancelCharge stops a running charge
func (s *TerminalService) CancelCharge(ctx context.Context, saleID string) (bool, error) {
	var canceled bool
	err := s.loop.Call(ctx, func() error {
		var err error
		canceled, err = s.coordinator.CancelPayment(saleID)
		return err
	})
	return canceled, err
}

// Finalize marks a sale paid without the gateway
func (s *TerminalService) Finalize(ctx context.Context, saleID string) error {
	return s.loop.Call(ctx, func() error {
		return s.coordinator.Finalize(saleID, "")
	})
}

// Change computes the change for a cash payment on the active sale
func (s *TerminalService) Change(ctx context.Context, rawPaid string) (ChangeResult, error) {
	paid, err := utils.ParseAmount(rawPaid)
	if err != nil {
		return ChangeResult{}, err
	}
	var total int64
	err = s.loop.Call(ctx, func() error {
		total = s.ledger().Active().Total()
		return nil
	})
	if err != nil {
		return ChangeResult{}, err
	}
	change := paid - total
	return ChangeResult{Total: total, Paid: paid, Change: change, Label: utils.FormatBRL(change)}, nil
}

// RegisterProduct saves a new or edited product and optionally adds it to
// the active sale
func (s *TerminalService) RegisterProduct(ctx context.Context, req models.UpsertProductRequest) (models.CatalogEntry, *ScanResult, error) {
	saleID, activeShop, err := s.activeSale(ctx)
	if err != nil {
		return models.CatalogEntry{}, nil, err
	}

	entry, err := EntryFromRequest(req)
	if err != nil {
		return models.CatalogEntry{}, nil, err
	}
	shop := entry.Shop
	if shop == "" {
		shop = activeShop
		entry.Shop = shop
	}

	saved, err := s.catalog.Upsert(ctx, entry, shop)
	if err != nil {
		return models.CatalogEntry{}, nil, errors.Wrap(err, "save product")
	}
	log.WithFields(log.Fields{"barcode": saved.Barcode, "rowKey": saved.RowKey, "shop": shop}).Info("📦 Product saved")

	if !req.AddToSale {
		return saved, nil, nil
	}
	res, err := s.addEntry(ctx, saleID, saved)
	if err != nil {
		return saved, nil, err
	}
	return saved, &res, nil
}

// EntryFromRequest validates operator input for a product
func EntryFromRequest(req models.UpsertProductRequest) (models.CatalogEntry, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return models.CatalogEntry{}, &models.ValidationError{Field: "category", Reason: "category is required"}
	}
	barcode := strings.TrimSpace(req.Barcode)
	if barcode != "" && !utils.IsBarcode(barcode) {
		return models.CatalogEntry{}, &models.ValidationError{Field: "barcode", Reason: "barcode must be digits only"}
	}
	price, err := utils.ParseAmount(req.Price)
	if err != nil {
		return models.CatalogEntry{}, &models.ValidationError{Field: "price", Reason: err.Error()}
	}
	promoPrice, err := utils.ParseOptionalAmount(req.PromoPrice)
	if err != nil {
		return models.CatalogEntry{}, &models.ValidationError{Field: "promoPrice", Reason: err.Error()}
	}
	threshold, err := utils.ParseOptionalInt("promoThreshold", req.PromoThreshold)
	if err != nil {
		return models.CatalogEntry{}, err
	}
	return models.CatalogEntry{
		RowKey:         req.RowKey,
		Barcode:        barcode,
		Category:       category,
		Flavor:         strings.TrimSpace(req.Flavor),
		Shop:           strings.TrimSpace(req.Shop),
		Price:          price,
		PromoPrice:     promoPrice,
		PromoThreshold: threshold,
	}, nil
}

// SearchCatalog searches the catalog of a shop, the active sale's by default
func (s *TerminalService) SearchCatalog(ctx context.Context, term, shop string) ([]models.CatalogEntry, error) {
	if shop == "" {
		var err error
		if _, shop, err = s.activeSale(ctx); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(term) == "" {
		return nil, &models.ValidationError{Field: "q", Reason: "search term is required"}
	}
	return s.catalog.Search(ctx, term, shop)
}

// PaymentStatus returns the latest payment status of a sale
func (s *TerminalService) PaymentStatus(saleID string) (PaymentStatus, bool) {
	return s.board.Get(saleID)
}
