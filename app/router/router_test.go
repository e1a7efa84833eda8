package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/app/controller"
	"pdv-sorveteria/app/router"
	"pdv-sorveteria/gateway"
	"pdv-sorveteria/ledger"
	"pdv-sorveteria/models"
	"pdv-sorveteria/pricing"
	"pdv-sorveteria/service"
)

type memCatalog struct {
	mu      sync.Mutex
	entries []models.CatalogEntry
}

func (c *memCatalog) find(match func(models.CatalogEntry) bool) []models.CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CatalogEntry
	for _, e := range c.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (c *memCatalog) LookupByCode(_ context.Context, code, shop string) ([]models.CatalogEntry, error) {
	return c.find(func(e models.CatalogEntry) bool { return e.Barcode == code && e.Shop == shop }), nil
}

func (c *memCatalog) LookupAnyShop(_ context.Context, code string) ([]models.CatalogEntry, error) {
	return c.find(func(e models.CatalogEntry) bool { return e.Barcode == code }), nil
}

func (c *memCatalog) Search(_ context.Context, term, shop string) ([]models.CatalogEntry, error) {
	term = strings.ToLower(term)
	return c.find(func(e models.CatalogEntry) bool {
		return e.Shop == shop && strings.Contains(strings.ToLower(e.Category+" "+e.Flavor), term)
	}), nil
}

func (c *memCatalog) Upsert(_ context.Context, entry models.CatalogEntry, shop string) (models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.Shop = shop
	if entry.RowKey == 0 {
		entry.RowKey = int64(100 + len(c.entries))
	}
	c.entries = append(c.entries, entry)
	return entry, nil
}

func (c *memCatalog) ListAll(context.Context) ([]models.CatalogEntry, error) {
	return c.find(func(models.CatalogEntry) bool { return true }), nil
}

type memHistory struct {
	mu      sync.Mutex
	records []models.HistoryRecord
}

func (h *memHistory) Append(_ context.Context, record models.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append([]models.HistoryRecord{record}, h.records...)
	return nil
}

func (h *memHistory) ListAll(context.Context) ([]models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistoryRecord(nil), h.records...), nil
}

type stubReceipts struct{}

func (stubReceipts) RenderHTML(r models.HistoryRecord) (string, error) {
	return "<h1>" + r.SaleID + "</h1>", nil
}

func (stubReceipts) GeneratePDF(context.Context, models.HistoryRecord) ([]byte, error) {
	return nil, errors.New("no browser")
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	history *memHistory
}

func newTestServer(t *testing.T, withSync bool) *testServer {
	t.Helper()

	catalog := &memCatalog{entries: []models.CatalogEntry{
		{RowKey: 3, Barcode: "789", Category: "Picolé", Flavor: "Limão", Shop: "Centro", Price: 650},
		{RowKey: 4, Barcode: "555", Category: "Pote 1L", Flavor: "Chocolate", Shop: "Centro", Price: 2800},
		{RowKey: 5, Barcode: "555", Category: "Pote 1L", Flavor: "Flocos", Shop: "Centro", Price: 2800},
	}}
	history := &memHistory{}

	loop := service.NewOwnerLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	board := service.NewStatusBoard()
	coord := service.NewSettlementCoordinator(
		ledger.New("Centro", pricing.NewEngine()),
		gateway.NewSimulator(gateway.SimulatorConfig{PollsToFinish: 1}),
		history,
		loop,
		service.MultiDispatcher{board, metrics},
		service.SettlementConfig{PollInterval: 5 * time.Millisecond, Location: time.UTC},
	)
	t.Cleanup(func() {
		wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer wcancel()
		_ = loop.Call(wctx, func() error { coord.CancelAll(); return nil })
		_ = coord.WaitPending(wctx)
		cancel()
		<-loop.Done()
	})

	terminal := service.NewTerminalService(loop, coord, catalog, board)
	var syncService *service.SyncService
	if withSync {
		syncService = service.NewSyncService(catalog, &memCatalog{})
	}

	handler := router.Router(&router.Controllers{
		Terminal: controller.NewTerminalController(terminal),
		Catalog:  controller.NewCatalogController(terminal, syncService),
		History:  controller.NewHistoryController(service.NewHistoryService(history), stubReceipts{}),
	}, reg)
	return &testServer{t: t, handler: handler, history: history}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPingAndMetrics(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScanAndEditSale(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/terminal/scan", map[string]string{"input": "789"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan := decode[service.ScanResult](t, rec)
	require.NotNil(t, scan.Added)
	assert.Equal(t, int64(650), scan.Sale.Total)
	saleID := scan.Sale.ID

	rec = s.do(http.MethodPut, "/terminal/sales/"+saleID+"/items/row:3", map[string]string{"quantity": "3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1950), decode[models.SaleView](t, rec).Total)

	rec = s.do(http.MethodPut, "/terminal/sales/"+saleID+"/items/row:3", map[string]string{"quantity": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "quantity", decode[controller.ErrorResponse](t, rec).Field)

	rec = s.do(http.MethodPost, "/terminal/scan", map[string]string{"input": "555"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[service.ScanResult](t, rec).Candidates, 2)

	rec = s.do(http.MethodPost, "/terminal/sales/"+saleID+"/items", service.AddItemRequest{Barcode: "555", RowKey: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(4750), decode[service.ScanResult](t, rec).Sale.Total)

	rec = s.do(http.MethodDelete, "/terminal/sales/"+saleID+"/items/row:4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1950), decode[models.SaleView](t, rec).Total)

	rec = s.do(http.MethodPost, "/terminal/change", map[string]string{"paid": "20,00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(50), decode[service.ChangeResult](t, rec).Change)
}

func TestScanUnknownBarcode(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/terminal/scan", map[string]string{"input": "000"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, decode[controller.ErrorResponse](t, rec).ConfirmRead)

	// same code again: confirmed unknown
	rec = s.do(http.MethodPost, "/terminal/scan/confirm", controller.ConfirmScanRequest{Original: "000", Rescanned: "000"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decode[controller.ErrorResponse](t, rec).ConfirmRead)

	// it was a misread
	rec = s.do(http.MethodPost, "/terminal/scan/confirm", controller.ConfirmScanRequest{Original: "000", Rescanned: "789"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(650), decode[service.ScanResult](t, rec).Sale.Total)

	rec = s.do(http.MethodPost, "/terminal/scan", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTabs(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/terminal/sales", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[models.SaleView](t, rec)

	rec = s.do(http.MethodGet, "/terminal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[service.TerminalSnapshot](t, rec)
	assert.Len(t, snap.Sales, 2)
	assert.Equal(t, second.ID, snap.Active.ID)

	rec = s.do(http.MethodPut, "/terminal/sales/"+snap.Sales[0].ID+"/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/terminal/sales/"+second.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snap.Sales[0].ID, decode[models.SaleView](t, rec).ID)

	rec = s.do(http.MethodDelete, "/terminal/sales/"+second.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCardChargeSettlesSale(t *testing.T) {
	s := newTestServer(t, false)

	scan := decode[service.ScanResult](t, s.do(http.MethodPost, "/terminal/scan", map[string]string{"input": "789"}))
	saleID := scan.Sale.ID

	rec := s.do(http.MethodPut, "/terminal/sales/"+saleID+"/payment-method", map[string]string{"paymentMethod": "debito"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.MethodDebit, decode[models.SaleView](t, rec).PaymentMethod)

	rec = s.do(http.MethodPost, "/terminal/sales/"+saleID+"/charge", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return len(decode[models.HistoryListResponse](t, s.do(http.MethodGet, "/history", nil)).Records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records := decode[models.HistoryListResponse](t, s.do(http.MethodGet, "/history?limit=10", nil)).Records
	assert.Equal(t, saleID, records[0].SaleID)
	assert.NotEmpty(t, records[0].PaymentID)

	rec = s.do(http.MethodGet, "/history/"+saleID+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), saleID)

	rec = s.do(http.MethodGet, "/history/"+saleID+"/receipt.pdf", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = s.do(http.MethodGet, "/history/report?category=picole", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.CategoryQuantity{{Category: "Picolé", Quantity: 1}}, decode[[]models.CategoryQuantity](t, rec))

	rec = s.do(http.MethodGet, "/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinalizeCashSale(t *testing.T) {
	s := newTestServer(t, false)

	scan := decode[service.ScanResult](t, s.do(http.MethodPost, "/terminal/scan", map[string]string{"input": "789"}))
	saleID := scan.Sale.ID
	s.do(http.MethodPut, "/terminal/sales/"+saleID+"/payment-method", map[string]string{"paymentMethod": "Dinheiro"})

	rec := s.do(http.MethodPost, "/terminal/sales/"+saleID+"/charge", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/terminal/sales/"+saleID+"/finalize", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return s.do(http.MethodDelete, "/terminal/sales/"+saleID, nil).Code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)
	records, _ := s.history.ListAll(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, models.MethodCash, records[0].PaymentMethod)
}

func TestPaymentStatusAndQR(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(http.MethodGet, "/terminal/sales/unknown/charge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/terminal/sales/unknown/pix-qr.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/terminal/sales/unknown/charge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(http.MethodGet, "/catalog/search?q=pote", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.CatalogEntry](t, rec), 2)

	rec = s.do(http.MethodGet, "/catalog/search?q=pistache", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(http.MethodPost, "/catalog/products", models.UpsertProductRequest{
		Barcode: "321", Category: "Açaí", Price: "18,00", AddToSale: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[controller.RegisterProductResponse](t, rec)
	assert.Equal(t, "Centro", resp.Product.Shop)
	require.NotNil(t, resp.Scan)
	assert.Equal(t, int64(1800), resp.Scan.Sale.Total)

	rec = s.do(http.MethodPost, "/catalog/products", models.UpsertProductRequest{Price: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/catalog/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.SyncStats{Total: 4, Saved: 4}, decode[service.SyncStats](t, rec))
}

func TestCatalogSyncNotConfigured(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(http.MethodPost, "/catalog/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
