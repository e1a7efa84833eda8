package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

const (
	testPoll    = 5 * time.Millisecond
	waitFor     = 2 * time.Second
	checkEvery  = 5 * time.Millisecond
	callTimeout = time.Second
)

// startLoop runs an owner loop for the duration of the test
func startLoop(t *testing.T) *OwnerLoop {
	t.Helper()
	loop := NewOwnerLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return loop
}

func onOwner(t *testing.T, loop *OwnerLoop, fn func() error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return loop.Call(ctx, fn)
}

// fakeGateway is a scriptable PaymentGatewayInterface
type fakeGateway struct {
	mu sync.Mutex

	createErr   error
	intents     []models.IntentStatus
	pollErrs    int
	payPixAfter int

	pix        *models.PixOrderStatus
	pixSeq     int
	pixPolls   int
	lastAmount int64
	calls      map[string]int
}

var _ PaymentGatewayInterface = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (g *fakeGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) setIntents(states ...models.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = states
}

// setPix replaces the outstanding order, like another client would
func (g *fakeGateway) setPix(status *models.PixOrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pix = status
}

func (g *fakeGateway) currentPix() *models.PixOrderStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pix == nil {
		return nil
	}
	cp := *g.pix
	return &cp
}

func (g *fakeGateway) LastAmount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAmount
}

func (g *fakeGateway) CreateCardIntent(ctx context.Context, amount int64, correlationID string, kind models.CardKind) (models.IntentHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["CreateCardIntent"]++
	g.lastAmount = amount
	if g.createErr != nil {
		return models.IntentHandle{}, g.createErr
	}
	return models.IntentHandle{ID: "intent-" + correlationID, CorrelationID: correlationID}, nil
}

func (g *fakeGateway) PollIntent(ctx context.Context, handle models.IntentHandle) (models.IntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["PollIntent"]++
	if g.pollErrs > 0 {
		g.pollErrs--
		return models.IntentStatus{}, errors.New("terminal timeout")
	}
	if len(g.intents) == 0 {
		return models.IntentStatus{State: models.IntentOnTerminal}, nil
	}
	status := g.intents[0]
	if len(g.intents) > 1 {
		g.intents = g.intents[1:]
	}
	return status, nil
}

func (g *fakeGateway) CreatePixOrder(ctx context.Context, amount int64, correlationID string) (models.PixOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["CreatePixOrder"]++
	g.lastAmount = amount
	if g.createErr != nil {
		return models.PixOrder{}, g.createErr
	}
	g.pixSeq++
	g.pixPolls = 0
	id := fmt.Sprintf("order-%d", g.pixSeq)
	g.pix = &models.PixOrderStatus{OrderID: id, CorrelationID: correlationID, Status: models.PixOpen}
	return models.PixOrder{Handle: id, CorrelationID: correlationID, QRPayload: "qr-" + correlationID}, nil
}

func (g *fakeGateway) PollPixOrder(ctx context.Context) (models.PixOrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["PollPixOrder"]++
	if g.pix == nil {
		return models.PixOrderStatus{}, nil
	}
	g.pixPolls++
	if g.payPixAfter > 0 && g.pixPolls >= g.payPixAfter && g.pix.Status == models.PixOpen {
		g.pix.Status = models.PixPaid
		g.pix.PaymentID = "pix-" + g.pix.OrderID
	}
	return *g.pix, nil
}

func (g *fakeGateway) CancelPixOrder(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["CancelPixOrder"]++
	g.pix = nil
	return nil
}

// fakeHistory is an in-memory HistoryRepositoryInterface. When block is set,
// Append waits for it to be closed.
type fakeHistory struct {
	mu      sync.Mutex
	records []models.HistoryRecord
	err     error
	block   chan struct{}
}

func (h *fakeHistory) Append(ctx context.Context, record models.HistoryRecord) error {
	h.mu.Lock()
	block := h.block
	h.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, record)
	return nil
}

func (h *fakeHistory) ListAll(ctx context.Context) ([]models.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	out := make([]models.HistoryRecord, len(h.records))
	for i := range h.records {
		out[len(h.records)-1-i] = h.records[i]
	}
	return out, nil
}

func (h *fakeHistory) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *fakeHistory) Records() []models.HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistoryRecord(nil), h.records...)
}

// fakeCatalog is an in-memory CatalogRepositoryInterface
type fakeCatalog struct {
	mu      sync.Mutex
	entries []models.CatalogEntry
	nextRow int64
}

func (c *fakeCatalog) LookupByCode(ctx context.Context, code string, shop string) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CatalogEntry
	for _, e := range c.entries {
		if e.Barcode == code && e.Shop == shop {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *fakeCatalog) LookupAnyShop(ctx context.Context, code string) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CatalogEntry
	for _, e := range c.entries {
		if e.Barcode == code {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Search(ctx context.Context, term string, shop string) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CatalogEntry
	for _, e := range c.entries {
		if e.Shop == shop && strings.Contains(strings.ToLower(e.Category+" "+e.Flavor), strings.ToLower(term)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Upsert(ctx context.Context, entry models.CatalogEntry, shop string) (models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.Shop = shop
	if entry.RowKey == 0 {
		c.nextRow++
		entry.RowKey = 1000 + c.nextRow
	}
	for i, e := range c.entries {
		if e.RowKey == entry.RowKey && e.Shop == shop {
			c.entries[i] = entry
			return entry, nil
		}
	}
	c.entries = append(c.entries, entry)
	return entry, nil
}

// recordingDispatcher keeps every dispatched event
type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingDispatcher) Dispatch(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingDispatcher) Count(eventType string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type() == eventType {
			n++
		}
	}
	return n
}

func requireValidation(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, models.IsValidation(err), "expected validation error, got %v", err)
}
