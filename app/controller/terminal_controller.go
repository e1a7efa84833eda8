package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/service"
)

// TerminalController handles HTTP requests for the sales terminal
type TerminalController struct {
	terminal *service.TerminalService
}

// NewTerminalController creates a new TerminalController
func NewTerminalController(terminal *service.TerminalService) *TerminalController {
	return &TerminalController{
		terminal: terminal,
	}
}

// ScanRequest represents the request body for POST /terminal/scan
// Example: {"input": "7891234"} or {"input": "7,50"} or {"input": "morango"}
type ScanRequest struct {
	Input string `json:"input"`
}

// ConfirmScanRequest represents the request body for POST /terminal/scan/confirm
// Example: {"original": "7891234", "rescanned": "7891234"}
type ConfirmScanRequest struct {
	Original  string `json:"original"`
	Rescanned string `json:"rescanned"`
}

// QuantityRequest represents the request body for PUT /terminal/sales/{id}/items/{key}
// Example: {"quantity": "3"}
type QuantityRequest struct {
	Quantity string `json:"quantity"`
}

// PaymentMethodRequest represents the request body for PUT /terminal/sales/{id}/payment-method
// Example: {"paymentMethod": "Pix"}
type PaymentMethodRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

// ChangeRequest represents the request body for POST /terminal/change
// Example: {"paid": "50,00"}
type ChangeRequest struct {
	Paid string `json:"paid"`
}

// CreateSaleRequest represents the optional request body for POST /terminal/sales
// Example: {"shop": "Centro"}
type CreateSaleRequest struct {
	Shop string `json:"shop,omitempty"`
}

// Snapshot handles GET /terminal
// Example response:
// {
//   "active": {"id": "3f1c...", "shop": "Centro", "total": 3750, ...},
//   "sales": [{"id": "3f1c...", "total": 3750, "active": true}],
//   "payments": {}
// }
func (c *TerminalController) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := c.terminal.Snapshot(r.Context())
	if err != nil {
		writeError(w, "Snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CreateSale handles POST /terminal/sales
func (c *TerminalController) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, "CreateSale", err)
			return
		}
	}

	view, err := c.terminal.CreateSale(r.Context(), req.Shop)
	if err != nil {
		writeError(w, "CreateSale", err)
		return
	}
	log.WithField("saleId", view.ID).Info("🆕 CreateSale: New sale opened")
	writeJSON(w, http.StatusCreated, view)
}

// SelectActive handles PUT /terminal/sales/{id}/active
func (c *TerminalController) SelectActive(w http.ResponseWriter, r *http.Request) {
	view, err := c.terminal.SelectActive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "SelectActive", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CloseSale handles DELETE /terminal/sales/{id}
// The response is the sale that became active.
func (c *TerminalController) CloseSale(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["id"]
	view, err := c.terminal.CloseSale(r.Context(), saleID)
	if err != nil {
		writeError(w, "CloseSale", err)
		return
	}
	log.WithField("saleId", saleID).Info("🗑️ CloseSale: Sale discarded")
	writeJSON(w, http.StatusOK, view)
}

// Scan handles POST /terminal/scan
// Example request: {"input": "7891234"}
// Example response:
// {"added": "row:12", "sale": {...}}
// or, when several products share the barcode:
// {"candidates": [{"rowKey": 12, ...}, {"rowKey": 13, ...}], "sale": {...}}
func (c *TerminalController) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "Scan", err)
		return
	}

	res, err := c.terminal.Scan(r.Context(), req.Input)
	if err != nil {
		writeError(w, "Scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ConfirmScan handles POST /terminal/scan/confirm, the second scan after a
// 404 with "confirmRead": true. A repeated code answers 404 without
// confirmRead, meaning the product should be registered.
func (c *TerminalController) ConfirmScan(w http.ResponseWriter, r *http.Request) {
	var req ConfirmScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "ConfirmScan", err)
		return
	}

	res, err := c.terminal.ConfirmScan(r.Context(), req.Original, req.Rescanned)
	if err != nil {
		writeError(w, "ConfirmScan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AddItem handles POST /terminal/sales/{id}/items
// Example request: {"barcode": "7891234", "rowKey": 12} or {"amount": "7,50"}
func (c *TerminalController) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "AddItem", err)
		return
	}

	res, err := c.terminal.AddItem(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, "AddItem", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateQuantity handles PUT /terminal/sales/{id}/items/{key}
// Example request: {"quantity": "3"}
func (c *TerminalController) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "UpdateQuantity", err)
		return
	}

	vars := mux.Vars(r)
	view, err := c.terminal.UpdateQuantity(r.Context(), vars["id"], vars["key"], req.Quantity)
	if err != nil {
		writeError(w, "UpdateQuantity", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /terminal/sales/{id}/items/{key}
func (c *TerminalController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := c.terminal.RemoveItem(r.Context(), vars["id"], vars["key"])
	if err != nil {
		writeError(w, "RemoveItem", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SetPaymentMethod handles PUT /terminal/sales/{id}/payment-method
// Example request: {"paymentMethod": "Pix"}
func (c *TerminalController) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req PaymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "SetPaymentMethod", err)
		return
	}

	view, err := c.terminal.SetPaymentMethod(r.Context(), mux.Vars(r)["id"], req.PaymentMethod)
	if err != nil {
		writeError(w, "SetPaymentMethod", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Charge handles POST /terminal/sales/{id}/charge
// Example response:
// {"saleId": "3f1c...", "sessionId": "9a0b...", "method": "Pix", "state": "requesting", "label": "Enviando cobrança"}
func (c *TerminalController) Charge(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["id"]
	status, err := c.terminal.Charge(r.Context(), saleID)
	if err != nil {
		writeError(w, "Charge", err)
		return
	}
	log.WithFields(log.Fields{"saleId": saleID, "sessionId": status.SessionID}).Info("💳 Charge: Payment requested")
	writeJSON(w, http.StatusAccepted, status)
}

// PaymentStatus handles GET /terminal/sales/{id}/charge
func (c *TerminalController) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["id"]
	status, ok := c.terminal.PaymentStatus(saleID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no payment for sale " + saleID})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// CancelCharge handles DELETE /terminal/sales/{id}/charge
// Example response: {"canceled": true}
func (c *TerminalController) CancelCharge(w http.ResponseWriter, r *http.Request) {
	canceled, err := c.terminal.CancelCharge(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "CancelCharge", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

// Finalize handles POST /terminal/sales/{id}/finalize
// The history write runs in the background; the sale closes once it succeeds.
func (c *TerminalController) Finalize(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["id"]
	if err := c.terminal.Finalize(r.Context(), saleID); err != nil {
		writeError(w, "Finalize", err)
		return
	}
	log.WithField("saleId", saleID).Info("🧾 Finalize: Settlement started")
	writeJSON(w, http.StatusAccepted, map[string]string{"saleId": saleID, "status": "settling"})
}

// Change handles POST /terminal/change
// Example request: {"paid": "50,00"}
// Example response: {"total": 3750, "paid": 5000, "change": 1250, "label": "R$ 12,50"}
func (c *TerminalController) Change(w http.ResponseWriter, r *http.Request) {
	var req ChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "Change", err)
		return
	}

	res, err := c.terminal.Change(r.Context(), req.Paid)
	if err != nil {
		writeError(w, "Change", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PixQR handles GET /terminal/sales/{id}/pix-qr.png?size=320
func (c *TerminalController) PixQR(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["id"]
	status, ok := c.terminal.PaymentStatus(saleID)
	if !ok || status.QRPayload == "" {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no Pix QR code for sale " + saleID})
		return
	}

	size := service.DefaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid size parameter", Field: "size"})
			return
		}
		size = parsed
	}

	png, err := service.RenderPixQR(status.QRPayload, size)
	if err != nil {
		writeError(w, "PixQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.WithError(err).Error("❌ PixQR: Error writing image")
	}
}
