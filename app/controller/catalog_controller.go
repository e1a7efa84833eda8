package controller

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/service"
)

// CatalogController handles HTTP requests for the product catalog
type CatalogController struct {
	terminal    *service.TerminalService
	syncService *service.SyncService
}

// NewCatalogController creates a new CatalogController. syncService may be
// nil when there is no catalog spreadsheet to import from.
func NewCatalogController(terminal *service.TerminalService, syncService *service.SyncService) *CatalogController {
	return &CatalogController{
		terminal:    terminal,
		syncService: syncService,
	}
}

// RegisterProductResponse represents the response for POST /catalog/products
type RegisterProductResponse struct {
	Product models.CatalogEntry `json:"product"`
	Scan    *service.ScanResult `json:"scan,omitempty"`
}

// Search handles GET /catalog/search?q=morango&shop=Centro
// The shop defaults to the active sale's.
// Example response:
// [{"rowKey": 12, "barcode": "7891234", "category": "Pote 1L", "flavor": "Morango", "shop": "Centro", "price": 1250}]
func (c *CatalogController) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries, err := c.terminal.SearchCatalog(r.Context(), query.Get("q"), query.Get("shop"))
	if err != nil {
		writeError(w, "Search", err)
		return
	}
	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RegisterProduct handles POST /catalog/products
// Example request:
// {"barcode": "7891234", "category": "Picolé", "flavor": "Morango", "price": "6,50", "promoPrice": "5,00", "promoThreshold": "3", "addToSale": true}
func (c *CatalogController) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req models.UpsertProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "RegisterProduct", err)
		return
	}

	entry, scan, err := c.terminal.RegisterProduct(r.Context(), req)
	if err != nil {
		writeError(w, "RegisterProduct", err)
		return
	}

	status := http.StatusOK
	if req.RowKey == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, RegisterProductResponse{Product: entry, Scan: scan})
}

// Sync handles POST /catalog/sync
// Imports the catalog spreadsheet into the database.
// Example response: {"total": 120, "saved": 119, "failed": 1}
func (c *CatalogController) Sync(w http.ResponseWriter, r *http.Request) {
	if c.syncService == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "catalog sync is not configured"})
		return
	}

	log.Info("📥 Sync: Catalog import requested")
	stats, err := c.syncService.SyncCatalog(r.Context())
	if err != nil {
		writeError(w, "Sync", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
