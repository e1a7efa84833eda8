package router

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/app/controller"
)

type Controllers struct {
	Terminal *controller.TerminalController
	Catalog  *controller.CatalogController
	History  *controller.HistoryController
}

// pingHandler handles GET /ping
func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Router builds the HTTP handler. gatherer backs GET /metrics.
func Router(controllers *Controllers, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	// Ping endpoint
	r.HandleFunc("/ping", pingHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Terminal routes
	t := r.PathPrefix("/terminal").Subrouter()
	t.HandleFunc("", controllers.Terminal.Snapshot).Methods(http.MethodGet)
	t.HandleFunc("/scan", controllers.Terminal.Scan).Methods(http.MethodPost)
	t.HandleFunc("/scan/confirm", controllers.Terminal.ConfirmScan).Methods(http.MethodPost)
	t.HandleFunc("/change", controllers.Terminal.Change).Methods(http.MethodPost)
	t.HandleFunc("/sales", controllers.Terminal.CreateSale).Methods(http.MethodPost)
	t.HandleFunc("/sales/{id}", controllers.Terminal.CloseSale).Methods(http.MethodDelete)
	t.HandleFunc("/sales/{id}/active", controllers.Terminal.SelectActive).Methods(http.MethodPut)
	t.HandleFunc("/sales/{id}/items", controllers.Terminal.AddItem).Methods(http.MethodPost)
	t.HandleFunc("/sales/{id}/items/{key}", controllers.Terminal.UpdateQuantity).Methods(http.MethodPut)
	t.HandleFunc("/sales/{id}/items/{key}", controllers.Terminal.RemoveItem).Methods(http.MethodDelete)
	t.HandleFunc("/sales/{id}/payment-method", controllers.Terminal.SetPaymentMethod).Methods(http.MethodPut)
	t.HandleFunc("/sales/{id}/charge", controllers.Terminal.Charge).Methods(http.MethodPost)
	t.HandleFunc("/sales/{id}/charge", controllers.Terminal.PaymentStatus).Methods(http.MethodGet)
	t.HandleFunc("/sales/{id}/charge", controllers.Terminal.CancelCharge).Methods(http.MethodDelete)
	t.HandleFunc("/sales/{id}/finalize", controllers.Terminal.Finalize).Methods(http.MethodPost)
	t.HandleFunc("/sales/{id}/pix-qr.png", controllers.Terminal.PixQR).Methods(http.MethodGet)

	// Catalog routes
	r.HandleFunc("/catalog/search", controllers.Catalog.Search).Methods(http.MethodGet)
	r.HandleFunc("/catalog/products", controllers.Catalog.RegisterProduct).Methods(http.MethodPost)
	r.HandleFunc("/catalog/sync", controllers.Catalog.Sync).Methods(http.MethodPost)

	// History routes
	r.HandleFunc("/history", controllers.History.List).Methods(http.MethodGet)
	r.HandleFunc("/history/report", controllers.History.Report).Methods(http.MethodGet)
	r.HandleFunc("/history/{saleId}/receipt", controllers.History.ReceiptHTML).Methods(http.MethodGet)
	r.HandleFunc("/history/{saleId}/receipt.pdf", controllers.History.ReceiptPDF).Methods(http.MethodGet)

	return logMiddleware(r)
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL.Path,
			"remoteAddr": r.RemoteAddr,
			"duration":   time.Since(start).String(),
		}).Debug("📥 Request served")
	})
}
