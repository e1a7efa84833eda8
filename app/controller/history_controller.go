package controller

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/service"
)

// HistoryController handles HTTP requests for the sales history
type HistoryController struct {
	history  *service.HistoryService
	receipts service.ReceiptServiceInterface
}

// NewHistoryController creates a new HistoryController
func NewHistoryController(history *service.HistoryService, receipts service.ReceiptServiceInterface) *HistoryController {
	return &HistoryController{
		history:  history,
		receipts: receipts,
	}
}

// List handles GET /history?limit=50
// Example response:
// {"records": [{"saleId": "3f1c...", "date": "2026-10-15", "time": "14:03:11", "finalTotal": 3750, ...}]}
func (c *HistoryController) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, "List", &models.ValidationError{Field: "limit", Reason: "limit must be a non-negative number"})
			return
		}
		limit = parsed
	}

	records, err := c.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, "List", err)
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, models.HistoryListResponse{Records: records})
}

// Report handles GET /history/report?category=pote&from=2026-10-01&to=2026-10-31
// Example response:
// [{"category": "Pote 1L", "quantity": 42}, {"category": "Picolé", "quantity": 17}]
func (c *HistoryController) Report(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := service.ReportFilter{
		Category: query.Get("category"),
		From:     query.Get("from"),
		To:       query.Get("to"),
	}

	report, err := c.history.CategoryReport(r.Context(), filter)
	if err != nil {
		writeError(w, "Report", err)
		return
	}
	if report == nil {
		report = []models.CategoryQuantity{}
	}
	writeJSON(w, http.StatusOK, report)
}

// ReceiptPDF handles GET /history/{saleId}/receipt.pdf
func (c *HistoryController) ReceiptPDF(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleId"]
	record, err := c.history.Find(r.Context(), saleID)
	if err != nil {
		writeError(w, "ReceiptPDF", err)
		return
	}

	pdf, err := c.receipts.GeneratePDF(r.Context(), record)
	if err != nil {
		writeError(w, "ReceiptPDF", err)
		return
	}

	log.WithFields(log.Fields{"saleId": saleID, "bytes": len(pdf)}).Info("🧾 ReceiptPDF: Receipt sent")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, service.ReceiptFileName(record)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		log.WithError(err).Error("❌ ReceiptPDF: Error writing response")
	}
}

// ReceiptHTML handles GET /history/{saleId}/receipt
func (c *HistoryController) ReceiptHTML(w http.ResponseWriter, r *http.Request) {
	saleID := mux.Vars(r)["saleId"]
	record, err := c.history.Find(r.Context(), saleID)
	if err != nil {
		writeError(w, "ReceiptHTML", err)
		return
	}

	html, err := c.receipts.RenderHTML(record)
	if err != nil {
		writeError(w, "ReceiptHTML", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(html)); err != nil {
		log.WithError(err).Error("❌ ReceiptHTML: Error writing response")
	}
}
