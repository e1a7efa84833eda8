package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
)

const (
	// DefaultPollInterval matches the terminal's observed status refresh rate
	DefaultPollInterval = time.Second
	pixCleanupTimeout   = 5 * time.Second
	supersededLabel     = "Substituída por outra cobrança"
)

// SessionUpdate is one transition reported by a payment session
type SessionUpdate struct {
	State     models.SessionState
	Label     string
	PaymentID string
	QRPayload string
	Err       error
}

// SessionObserver receives applied transitions on the owner goroutine
type SessionObserver func(s *PaymentSession, u SessionUpdate)

// SessionConfig carries what a payment session needs besides the sale
type SessionConfig struct {
	Gateway      PaymentGatewayInterface
	Dispatcher   Dispatcher
	PixMu        *sync.Mutex
	PollInterval time.Duration
	Observer     SessionObserver
}

// PaymentSession drives one charge attempt against the gateway. Network I/O
// happens on its own goroutine; state fields are only touched on the owner
// goroutine, through Post.
type PaymentSession struct {
	id     string
	saleID string
	method models.PaymentMethod
	amount int64
	cfg    SessionConfig

	state     models.SessionState
	label     string
	paymentID string
	qrPayload string
	lastErr   error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPaymentSession builds an idle session for a sale total
func NewPaymentSession(saleID string, method models.PaymentMethod, amount int64, cfg SessionConfig) *PaymentSession {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PixMu == nil {
		cfg.PixMu = &sync.Mutex{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentSession{
		id:     uuid.NewString(),
		saleID: saleID,
		method: method,
		amount: amount,
		cfg:    cfg,
		state:  models.SessionIdle,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *PaymentSession) ID() string                   { return s.id }
func (s *PaymentSession) SaleID() string               { return s.saleID }
func (s *PaymentSession) Method() models.PaymentMethod { return s.method }
func (s *PaymentSession) Amount() int64                { return s.amount }
func (s *PaymentSession) State() models.SessionState   { return s.state }
func (s *PaymentSession) Label() string                { return s.label }
func (s *PaymentSession) PaymentID() string            { return s.paymentID }
func (s *PaymentSession) QRPayload() string            { return s.qrPayload }
func (s *PaymentSession) Err() error                   { return s.lastErr }

// Done is closed when the background task has returned
func (s *PaymentSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the background task has returned or ctx ends
func (s *PaymentSession) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start moves the session to Requesting and launches the gateway task.
// Must be called on the owner goroutine, once.
func (s *PaymentSession) Start() {
	if s.state != models.SessionIdle {
		return
	}
	s.state = models.SessionRequesting
	s.label = SessionLabel(models.SessionRequesting)
	log.WithFields(log.Fields{"saleId": s.saleID, "sessionId": s.id, "method": s.method, "amount": s.amount}).
		Info("💳 Payment session started")
	go s.run()
}

// Cancel stops polling. It reports false when the session had already ended.
// Must be called on the owner goroutine.
func (s *PaymentSession) Cancel() bool {
	if s.state.Terminal() {
		return false
	}
	started := s.state != models.SessionIdle
	s.state = models.SessionCanceled
	s.label = SessionLabel(models.SessionCanceled)
	s.cancel()
	if !started {
		close(s.done)
	}
	log.WithFields(log.Fields{"saleId": s.saleID, "sessionId": s.id}).Info("🛑 Payment session canceled")
	return true
}

// apply records a transition posted by the background task. Updates that
// arrive after a terminal state are dropped.
func (s *PaymentSession) apply(u SessionUpdate) bool {
	if s.state.Terminal() {
		return false
	}
	s.state = u.State
	if u.Label != "" {
		s.label = u.Label
	} else if u.Err == nil {
		s.label = SessionLabel(u.State)
	}
	if u.PaymentID != "" {
		s.paymentID = u.PaymentID
	}
	if u.QRPayload != "" {
		s.qrPayload = u.QRPayload
	}
	s.lastErr = u.Err
	return true
}

func (s *PaymentSession) post(u SessionUpdate) {
	posted := s.cfg.Dispatcher.Post(func() {
		if !s.apply(u) {
			return
		}
		if s.cfg.Observer != nil {
			s.cfg.Observer(s, u)
		}
	})
	if !posted {
		log.WithField("sessionId", s.id).Warn("⚠️  Owner loop gone, dropping session update")
	}
}

func (s *PaymentSession) logger() *log.Entry {
	return log.WithFields(log.Fields{"saleId": s.saleID, "sessionId": s.id, "method": s.method})
}

func (s *PaymentSession) run() {
	defer close(s.done)
	if s.method == models.MethodPix {
		s.runPix()
		return
	}
	s.runCard()
}

// wait sleeps one poll interval. It reports false once the session is canceled.
func (s *PaymentSession) wait(ticker *time.Ticker) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-ticker.C:
	}
	return s.ctx.Err() == nil
}

func (s *PaymentSession) runCard() {
	handle, err := s.cfg.Gateway.CreateCardIntent(s.ctx, s.amount, s.saleID, s.method.CardKind())
	if s.ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger().WithError(err).Error("❌ Failed to create payment intent")
		s.post(SessionUpdate{State: models.SessionFailed, Err: &models.GatewayFatalError{Err: err}})
		return
	}
	s.logger().WithField("intentId", handle.ID).Info("📟 Payment intent sent to terminal")
	s.post(SessionUpdate{State: models.SessionPolling, Label: IntentLabel(string(models.IntentOpen))})

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for s.wait(ticker) {
		status, err := s.cfg.Gateway.PollIntent(s.ctx, handle)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger().WithError(err).Warn("⚠️  Payment intent poll failed, retrying")
			s.post(SessionUpdate{State: models.SessionPolling, Err: &models.GatewayTransientError{Err: err}})
			continue
		}

		label := IntentLabel(string(status.State))
		switch status.State {
		case models.IntentFinished:
			s.logger().WithField("paymentId", status.PaymentID).Info("✅ Card payment finished")
			s.post(SessionUpdate{State: models.SessionFinished, Label: label, PaymentID: status.PaymentID})
			return
		case models.IntentCanceled:
			s.post(SessionUpdate{State: models.SessionCanceled, Label: label})
			return
		case models.IntentAbandoned:
			s.post(SessionUpdate{State: models.SessionAbandoned, Label: label})
			return
		default:
			s.post(SessionUpdate{State: models.SessionPolling, Label: label})
		}
	}
}

// requestPix replaces whatever Pix order the terminal holds with a new one.
// The terminal keeps a single outstanding order, so both steps run under pixMu.
func (s *PaymentSession) requestPix() (models.PixOrder, error) {
	s.cfg.PixMu.Lock()
	defer s.cfg.PixMu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return models.PixOrder{}, err
	}
	if err := s.cfg.Gateway.CancelPixOrder(s.ctx); err != nil {
		s.logger().WithError(err).Warn("⚠️  Could not cancel previous Pix order")
	}
	return s.cfg.Gateway.CreatePixOrder(s.ctx, s.amount, s.saleID)
}

func (s *PaymentSession) runPix() {
	order, err := s.requestPix()
	if s.ctx.Err() != nil {
		s.cancelOutstandingPix(order)
		return
	}
	if err != nil {
		s.logger().WithError(err).Error("❌ Failed to create Pix order")
		s.post(SessionUpdate{State: models.SessionFailed, Err: &models.GatewayFatalError{Err: err}})
		return
	}
	s.logger().WithField("orderId", order.Handle).Info("📱 Pix order created")
	s.post(SessionUpdate{
		State:     models.SessionPolling,
		Label:     IntentLabel(models.PixOpen),
		QRPayload: order.QRPayload,
	})

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if !s.wait(ticker) {
			s.cancelOutstandingPix(order)
			return
		}
		status, err := s.cfg.Gateway.PollPixOrder(s.ctx)
		if s.ctx.Err() != nil {
			s.cancelOutstandingPix(order)
			return
		}
		if err != nil {
			s.logger().WithError(err).Warn("⚠️  Pix order poll failed, retrying")
			s.post(SessionUpdate{State: models.SessionPolling, Err: &models.GatewayTransientError{Err: err}})
			continue
		}

		if !s.ownsPixOrder(order, status) {
			s.logger().WithField("currentCorrelationId", status.CorrelationID).Info("🔀 Pix order superseded")
			s.post(SessionUpdate{State: models.SessionCanceled, Label: supersededLabel})
			return
		}
		switch {
		case status.Paid():
			s.logger().WithField("paymentId", status.PaymentID).Info("✅ Pix payment received")
			s.post(SessionUpdate{State: models.SessionFinished, Label: IntentLabel(models.PixPaid), PaymentID: status.PaymentID})
			return
		case status.Status == models.PixCanceled:
			s.post(SessionUpdate{State: models.SessionCanceled, Label: IntentLabel(models.PixCanceled)})
			return
		default:
			s.post(SessionUpdate{State: models.SessionPolling, Label: IntentLabel(status.Status)})
		}
	}
}

// ownsPixOrder reports whether the terminal's current order is the one this
// session created. Order ids are compared when both sides know them.
func (s *PaymentSession) ownsPixOrder(order models.PixOrder, status models.PixOrderStatus) bool {
	if status.CorrelationID != s.saleID {
		return false
	}
	if order.Handle != "" && status.OrderID != "" && order.Handle != status.OrderID {
		return false
	}
	return true
}

// cancelOutstandingPix is the best-effort cleanup after the coordinator
// cancels the session. Another sale's order is left alone.
func (s *PaymentSession) cancelOutstandingPix(order models.PixOrder) {
	s.cfg.PixMu.Lock()
	defer s.cfg.PixMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pixCleanupTimeout)
	defer cancel()

	status, err := s.cfg.Gateway.PollPixOrder(ctx)
	if err != nil {
		s.logger().WithError(err).Warn("⚠️  Could not check Pix order before cancel")
		return
	}
	if !s.ownsPixOrder(order, status) {
		return
	}
	if err := s.cfg.Gateway.CancelPixOrder(ctx); err != nil {
		s.logger().WithError(err).Warn("⚠️  Best-effort Pix cancel failed")
		return
	}
	s.logger().Info("🧹 Outstanding Pix order canceled")
}
