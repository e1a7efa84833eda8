package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/ledger"
	"pdv-sorveteria/models"
	"pdv-sorveteria/repository"
	"pdv-sorveteria/utils"
)

const (
	// DefaultMinimumChargeable is one real; smaller totals are not sent to the terminal
	DefaultMinimumChargeable = 100
	DefaultAppendTimeout     = 30 * time.Second
)

// SettlementConfig tunes the coordinator
type SettlementConfig struct {
	MinimumChargeable int64
	PollInterval      time.Duration
	// CancelOnSwitch cancels the running charge of a sale when another sale becomes active
	CancelOnSwitch bool
	AppendTimeout  time.Duration
	Location       *time.Location
}

// SettlementCoordinator ties payment sessions to the ledger and commits
// finished sales to history. Every method except WaitPending must run on the
// owner goroutine.
type SettlementCoordinator struct {
	ledger     *ledger.Ledger
	gateway    PaymentGatewayInterface
	history    repository.HistoryRepositoryInterface
	dispatcher Dispatcher
	events     EventDispatcher
	cfg        SettlementConfig

	sessions map[string]*PaymentSession
	pixMu    sync.Mutex
	pending  sync.WaitGroup
	now      func() time.Time
}

// NewSettlementCoordinator creates a coordinator over an existing ledger
func NewSettlementCoordinator(
	l *ledger.Ledger,
	gateway PaymentGatewayInterface,
	history repository.HistoryRepositoryInterface,
	dispatcher Dispatcher,
	events EventDispatcher,
	cfg SettlementConfig,
) *SettlementCoordinator {
	if cfg.MinimumChargeable <= 0 {
		cfg.MinimumChargeable = DefaultMinimumChargeable
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = DefaultAppendTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if events == nil {
		events = LogDispatcher{}
	}
	return &SettlementCoordinator{
		ledger:     l,
		gateway:    gateway,
		history:    history,
		dispatcher: dispatcher,
		events:     events,
		cfg:        cfg,
		sessions:   make(map[string]*PaymentSession),
		now:        time.Now,
	}
}

// Ledger exposes the ledger for reads on the owner goroutine
func (c *SettlementCoordinator) Ledger() *ledger.Ledger {
	return c.ledger
}

// Session returns the current payment session of a sale, if any
func (c *SettlementCoordinator) Session(saleID string) *PaymentSession {
	return c.sessions[saleID]
}

// Charge starts a new payment session for the sale's method and total.
// A running session of the same sale is canceled first.
func (c *SettlementCoordinator) Charge(saleID string) (*PaymentSession, error) {
	sale, err := c.ledger.Get(saleID)
	if err != nil {
		return nil, err
	}
	if sale.Settling() {
		return nil, &models.ValidationError{Field: "sale", Reason: "sale is being settled"}
	}
	if sale.PaymentMethod() == models.MethodCash {
		return nil, &models.ValidationError{Field: "paymentMethod", Reason: "cash sales are finalized, not charged"}
	}
	total := sale.Total()
	if total < c.cfg.MinimumChargeable {
		return nil, &models.ValidationError{
			Field:  "total",
			Reason: fmt.Sprintf("%s is below the minimum charge of %s", utils.FormatBRL(total), utils.FormatBRL(c.cfg.MinimumChargeable)),
		}
	}

	c.cancelSession(saleID)

	sess := NewPaymentSession(saleID, sale.PaymentMethod(), total, SessionConfig{
		Gateway:      c.gateway,
		Dispatcher:   c.dispatcher,
		PixMu:        &c.pixMu,
		PollInterval: c.cfg.PollInterval,
		Observer:     c.onSessionUpdate,
	})
	c.sessions[saleID] = sess
	sess.Start()
	c.emitStatus(sess, nil, "")
	return sess, nil
}

// CancelPayment stops the running charge of a sale. It reports whether a
// session was running.
func (c *SettlementCoordinator) CancelPayment(saleID string) (bool, error) {
	if _, err := c.ledger.Get(saleID); err != nil {
		return false, err
	}
	return c.cancelSession(saleID), nil
}

func (c *SettlementCoordinator) cancelSession(saleID string) bool {
	sess, ok := c.sessions[saleID]
	if !ok {
		return false
	}
	delete(c.sessions, saleID)
	if !sess.Cancel() {
		return false
	}
	c.emitStatus(sess, nil, "")
	return true
}

// CancelAll stops every running session and returns them so callers can
// wait for their cleanup
func (c *SettlementCoordinator) CancelAll() []*PaymentSession {
	sessions := make([]*PaymentSession, 0, len(c.sessions))
	for saleID, sess := range c.sessions {
		sessions = append(sessions, sess)
		c.cancelSession(saleID)
	}
	return sessions
}

// WaitSessions blocks until the given sessions have returned. Safe to call
// from any goroutine.
func WaitSessions(ctx context.Context, sessions []*PaymentSession) error {
	for _, sess := range sessions {
		if err := sess.Wait(ctx); err != nil {
			return errors.Wrapf(err, "waiting for payment session %s", sess.ID())
		}
	}
	return nil
}

// Edit applies fn to a sale that has no charge in flight. Lines and method
// stay as charged until the charge is canceled.
func (c *SettlementCoordinator) Edit(saleID string, fn func(sale *ledger.Sale) error) (*ledger.Sale, error) {
	sale, err := c.ledger.Get(saleID)
	if err != nil {
		return nil, err
	}
	if sess, ok := c.sessions[saleID]; ok && !sess.State().Terminal() {
		return nil, &models.ValidationError{Field: "sale", Reason: "a charge is running for this sale, cancel it first"}
	}
	if err := fn(sale); err != nil {
		return nil, err
	}
	return sale, nil
}

// SetMethod changes the payment method of a sale with no charge in flight
func (c *SettlementCoordinator) SetMethod(saleID string, method models.PaymentMethod) (*ledger.Sale, error) {
	return c.Edit(saleID, func(sale *ledger.Sale) error {
		return sale.SetPaymentMethod(method)
	})
}

// CreateSale opens a new tab and makes it active
func (c *SettlementCoordinator) CreateSale(shop string) *ledger.Sale {
	prev := c.ledger.Active()
	sale := c.ledger.CreateSale(shop)
	if c.cfg.CancelOnSwitch && prev != nil {
		c.cancelSession(prev.ID())
	}
	return sale
}

// SelectActive switches tabs
func (c *SettlementCoordinator) SelectActive(saleID string) error {
	prev := c.ledger.Active()
	if err := c.ledger.SelectActive(saleID); err != nil {
		return err
	}
	if c.cfg.CancelOnSwitch && prev != nil && prev.ID() != saleID {
		c.cancelSession(prev.ID())
	}
	return nil
}

// CloseSale discards a sale without recording it
func (c *SettlementCoordinator) CloseSale(saleID string) error {
	sale, err := c.ledger.Get(saleID)
	if err != nil {
		return err
	}
	if sale.Settling() {
		return &models.ValidationError{Field: "sale", Reason: "sale is being settled"}
	}
	c.cancelSession(saleID)
	if err := c.ledger.CloseSale(saleID); err != nil {
		return err
	}
	log.WithField("saleId", saleID).Info("🗑️  Sale discarded")
	c.dispatch(models.SaleClosed{SaleID: saleID})
	return nil
}

// Finalize records the sale in history and removes it from the ledger once
// the write succeeds. The write runs off the owner goroutine; the sale is
// frozen meanwhile and reopened if the write fails.
func (c *SettlementCoordinator) Finalize(saleID string, paymentID string) error {
	sale, err := c.ledger.Get(saleID)
	if err != nil {
		return err
	}
	return c.settle(sale, c.snapshot(sale, paymentID))
}

// finalizeCharged settles a sale the gateway reported paid. The record
// carries what the session charged.
func (c *SettlementCoordinator) finalizeCharged(sess *PaymentSession, paymentID string) error {
	sale, err := c.ledger.Get(sess.SaleID())
	if err != nil {
		return err
	}
	record := c.snapshot(sale, paymentID)
	record.FinalTotal = sess.Amount()
	if sess.Method() != models.MethodUnset {
		record.PaymentMethod = sess.Method()
	}
	if record.FinalTotal != sale.Total() {
		log.WithFields(log.Fields{"saleId": sale.ID(), "charged": record.FinalTotal, "total": sale.Total()}).
			Warn("⚠️  Charged amount differs from sale total, recording the charged amount")
	}
	return c.settle(sale, record)
}

func (c *SettlementCoordinator) settle(sale *ledger.Sale, record models.HistoryRecord) error {
	saleID := sale.ID()
	if err := sale.BeginSettlement(); err != nil {
		return err
	}
	c.cancelSession(saleID)

	log.WithFields(log.Fields{"saleId": saleID, "total": record.FinalTotal, "method": record.PaymentMethod}).
		Info("🧾 Finalizing sale")

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AppendTimeout)
		defer cancel()

		appendErr := c.history.Append(ctx, record)
		if !c.dispatcher.Post(func() { c.completeSettlement(record, appendErr) }) {
			if appendErr != nil {
				log.WithError(appendErr).WithField("saleId", record.SaleID).Error("❌ History append failed during shutdown")
			} else {
				log.WithField("saleId", record.SaleID).Info("✓ History appended during shutdown")
			}
		}
	}()
	return nil
}

func (c *SettlementCoordinator) snapshot(sale *ledger.Sale, paymentID string) models.HistoryRecord {
	now := c.now().In(c.cfg.Location)
	return models.HistoryRecord{
		SaleID:        sale.ID(),
		Shop:          sale.Shop(),
		Date:          now.Format(models.HistoryDateLayout),
		Time:          now.Format(models.HistoryTimeLayout),
		FinalTotal:    sale.Total(),
		PaymentMethod: sale.PaymentMethod(),
		PaymentID:     paymentID,
		Lines:         sale.Lines(),
		TotalQuantity: sale.TotalQuantity(),
		CreatedAt:     now,
	}
}

func (c *SettlementCoordinator) completeSettlement(record models.HistoryRecord, appendErr error) {
	sale, err := c.ledger.Get(record.SaleID)
	if err != nil {
		log.WithField("saleId", record.SaleID).Warn("⚠️  Settled sale no longer in ledger")
		return
	}

	if appendErr != nil {
		sale.AbortSettlement()
		perr := &models.PersistenceError{Op: "append history", Err: errors.Wrapf(appendErr, "sale %s", record.SaleID)}
		log.WithError(perr).Error("❌ Failed to record sale, keeping it open")
		c.dispatch(models.SettlementFailed{SaleID: record.SaleID, Reason: perr.Error()})
		return
	}

	if err := c.ledger.CloseSale(record.SaleID); err != nil {
		log.WithError(err).WithField("saleId", record.SaleID).Error("❌ Failed to remove settled sale")
		return
	}
	log.WithFields(log.Fields{"saleId": record.SaleID, "total": record.FinalTotal}).Info("✅ Sale settled")
	c.dispatch(models.SaleSettled{Record: record})
}

// onSessionUpdate runs on the owner goroutine for every applied transition
func (c *SettlementCoordinator) onSessionUpdate(sess *PaymentSession, u SessionUpdate) {
	saleID := sess.SaleID()
	if c.sessions[saleID] != sess || !c.ledger.Contains(saleID) {
		log.WithFields(log.Fields{"saleId": saleID, "sessionId": sess.ID(), "state": u.State}).
			Debug("Discarding update from stale session")
		return
	}

	c.emitStatus(sess, u.Err, u.QRPayload)

	if !u.State.Terminal() {
		return
	}
	delete(c.sessions, saleID)

	if u.State == models.SessionFinished {
		if err := c.finalizeCharged(sess, u.PaymentID); err != nil {
			log.WithError(err).WithField("saleId", saleID).Error("❌ Could not finalize paid sale")
			c.dispatch(models.SettlementFailed{SaleID: saleID, Reason: err.Error()})
		}
	}
}

func (c *SettlementCoordinator) emitStatus(sess *PaymentSession, sessErr error, qrPayload string) {
	event := models.PaymentStatusChanged{
		SaleID:    sess.SaleID(),
		SessionID: sess.ID(),
		Method:    sess.Method(),
		State:     sess.State(),
		Label:     sess.Label(),
		PaymentID: sess.PaymentID(),
		QRPayload: qrPayload,
	}
	if sessErr != nil {
		event.Err = sessErr.Error()
	}
	c.dispatch(event)
}

func (c *SettlementCoordinator) dispatch(event Event) {
	if err := c.events.Dispatch(event); err != nil {
		log.WithError(err).WithField("event", event.Type()).Warn("⚠️  Failed to dispatch event")
	}
}

// WaitPending blocks until every in-flight history write has returned. Safe
// to call from any goroutine.
func (c *SettlementCoordinator) WaitPending(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for history writes")
	}
}
