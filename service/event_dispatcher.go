package service

import (
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
)

type Event interface{ Type() string }

// EventDispatcher receives ledger and payment events. Dispatch runs on the
// owner goroutine and must not block.
type EventDispatcher interface{ Dispatch(event Event) error }

var (
	_ Event = models.PaymentStatusChanged{}
	_ Event = models.SaleSettled{}
	_ Event = models.SettlementFailed{}
	_ Event = models.SaleClosed{}
)

// MultiDispatcher fans an event out to several dispatchers
type MultiDispatcher []EventDispatcher

func (m MultiDispatcher) Dispatch(event Event) error {
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(event); err != nil {
			log.WithError(err).WithField("event", event.Type()).Warn("⚠️  Event dispatcher failed")
		}
	}
	return nil
}

// LogDispatcher writes every event to the log
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(event Event) error {
	entry := log.WithField("event", event.Type())
	switch e := event.(type) {
	case models.PaymentStatusChanged:
		entry = entry.WithFields(log.Fields{"saleId": e.SaleID, "sessionId": e.SessionID, "state": e.State, "label": e.Label})
		if e.Err != "" {
			entry = entry.WithField("error", e.Err)
		}
	case models.SaleSettled:
		entry = entry.WithFields(log.Fields{"saleId": e.Record.SaleID, "total": e.Record.FinalTotal, "method": e.Record.PaymentMethod})
	case models.SettlementFailed:
		entry = entry.WithFields(log.Fields{"saleId": e.SaleID, "reason": e.Reason})
	case models.SaleClosed:
		entry = entry.WithField("saleId", e.SaleID)
	}
	entry.Debug("📣 Event")
	return nil
}
