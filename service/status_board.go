package service

import (
	"sync"

	"pdv-sorveteria/models"
)

// PaymentStatus is what the presentation layer shows for a sale's payment
type PaymentStatus struct {
	SaleID    string               `json:"saleId"`
	SessionID string               `json:"sessionId,omitempty"`
	Method    models.PaymentMethod `json:"method,omitempty"`
	State     models.SessionState  `json:"state"`
	Label     string               `json:"label"`
	QRPayload string               `json:"qrPayload,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// StatusBoard keeps the latest payment status per sale. It is written from
// the owner goroutine and read by HTTP handlers.
type StatusBoard struct {
	mu       sync.RWMutex
	statuses map[string]PaymentStatus
}

var _ EventDispatcher = (*StatusBoard)(nil)

// NewStatusBoard creates an empty board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{statuses: make(map[string]PaymentStatus)}
}

// Dispatch records payment events and forgets closed sales
func (b *StatusBoard) Dispatch(event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch e := event.(type) {
	case models.PaymentStatusChanged:
		prev := b.statuses[e.SaleID]
		status := PaymentStatus{
			SaleID:    e.SaleID,
			SessionID: e.SessionID,
			Method:    e.Method,
			State:     e.State,
			Label:     e.Label,
			QRPayload: e.QRPayload,
			Error:     e.Err,
		}
		// polling updates do not repeat the QR payload
		if status.QRPayload == "" && prev.SessionID == e.SessionID && !e.State.Terminal() {
			status.QRPayload = prev.QRPayload
		}
		if status.Label == "" && prev.SessionID == e.SessionID {
			status.Label = prev.Label
		}
		b.statuses[e.SaleID] = status
	case models.SettlementFailed:
		status := b.statuses[e.SaleID]
		status.SaleID = e.SaleID
		status.Error = e.Reason
		b.statuses[e.SaleID] = status
	case models.SaleClosed:
		delete(b.statuses, e.SaleID)
	case models.SaleSettled:
		delete(b.statuses, e.Record.SaleID)
	}
	return nil
}

// Get returns the status of one sale
func (b *StatusBoard) Get(saleID string) (PaymentStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.statuses[saleID]
	return s, ok
}

// All returns a copy of every known status
func (b *StatusBoard) All() map[string]PaymentStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]PaymentStatus, len(b.statuses))
	for k, v := range b.statuses {
		out[k] = v
	}
	return out
}
