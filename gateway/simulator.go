package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/service"
)

// SimulatorConfig controls how fast simulated payments complete
type SimulatorConfig struct {
	// PollsToFinish is how many polls a payment stays pending before it is paid
	PollsToFinish int
	// MaxLatency adds a random delay to every call, like a slow terminal
	MaxLatency time.Duration
	// DeclineAmount makes card intents of exactly this amount get canceled
	DeclineAmount int64
}

type simIntent struct {
	handle models.IntentHandle
	amount int64
	polls  int
	state  models.IntentState
}

type simPixOrder struct {
	id            string
	correlationID string
	status        string
	paymentID     string
	polls         int
}

// Simulator is an in-memory card terminal and Pix point of sale for running
// the terminal without the real device
type Simulator struct {
	cfg SimulatorConfig

	mu      sync.Mutex
	intents map[string]*simIntent
	pix     *simPixOrder
	calls   map[string]int
}

var _ service.PaymentGatewayInterface = (*Simulator)(nil)

// NewSimulator creates a new Simulator
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.PollsToFinish <= 0 {
		cfg.PollsToFinish = 3
	}
	return &Simulator{
		cfg:     cfg,
		intents: make(map[string]*simIntent),
		calls:   make(map[string]int),
	}
}

// latency simulates processing time, returning early when ctx ends
func (s *Simulator) latency(ctx context.Context) error {
	if s.cfg.MaxLatency <= 0 {
		return ctx.Err()
	}
	d := time.Duration(rand.Int63n(int64(s.cfg.MaxLatency)))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) count(op string) {
	s.calls[op]++
}

// Calls reports how many times an operation was invoked
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Simulator) CreateCardIntent(ctx context.Context, amount int64, correlationID string, kind models.CardKind) (models.IntentHandle, error) {
	if err := s.latency(ctx); err != nil {
		return models.IntentHandle{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("CreateCardIntent")

	if amount <= 0 {
		return models.IntentHandle{}, &models.GatewayError{Op: "create payment intent", StatusCode: 400, Body: "invalid amount"}
	}
	handle := models.IntentHandle{ID: uuid.NewString(), CorrelationID: correlationID}
	s.intents[handle.ID] = &simIntent{handle: handle, amount: amount, state: models.IntentOpen}
	log.WithFields(log.Fields{"intentId": handle.ID, "kind": kind, "amount": amount}).Info("🧪 Simulated payment intent created")
	return handle, nil
}

func (s *Simulator) PollIntent(ctx context.Context, handle models.IntentHandle) (models.IntentStatus, error) {
	if err := s.latency(ctx); err != nil {
		return models.IntentStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("PollIntent")

	intent, ok := s.intents[handle.ID]
	if !ok {
		return models.IntentStatus{}, &models.GatewayError{Op: "poll payment intent", StatusCode: 404, Body: "intent not found"}
	}
	intent.polls++

	switch intent.state {
	case models.IntentFinished, models.IntentCanceled, models.IntentAbandoned:
	default:
		switch {
		case s.cfg.DeclineAmount > 0 && intent.amount == s.cfg.DeclineAmount && intent.polls >= s.cfg.PollsToFinish:
			intent.state = models.IntentCanceled
		case intent.polls >= s.cfg.PollsToFinish:
			intent.state = models.IntentFinished
		case intent.polls == s.cfg.PollsToFinish-1:
			intent.state = models.IntentProcessing
		default:
			intent.state = models.IntentOnTerminal
		}
	}

	status := models.IntentStatus{State: intent.state}
	if intent.state == models.IntentFinished {
		status.PaymentID = "sim-" + intent.handle.ID[:8]
	}
	return status, nil
}

func (s *Simulator) CreatePixOrder(ctx context.Context, amount int64, correlationID string) (models.PixOrder, error) {
	if err := s.latency(ctx); err != nil {
		return models.PixOrder{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("CreatePixOrder")

	if amount <= 0 {
		return models.PixOrder{}, &models.GatewayError{Op: "create pix order", StatusCode: 400, Body: "invalid amount"}
	}
	order := &simPixOrder{
		id:            uuid.NewString(),
		correlationID: correlationID,
		status:        models.PixOpen,
	}
	s.pix = order
	payload := fmt.Sprintf("00020101021226SIMULADO%s5204000053039865406%d5802BR6009SAO PAULO62070503***", correlationID, amount)
	return models.PixOrder{Handle: order.id, CorrelationID: correlationID, QRPayload: payload}, nil
}

func (s *Simulator) PollPixOrder(ctx context.Context) (models.PixOrderStatus, error) {
	if err := s.latency(ctx); err != nil {
		return models.PixOrderStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("PollPixOrder")

	if s.pix == nil {
		return models.PixOrderStatus{}, nil
	}
	s.pix.polls++
	if s.pix.status == models.PixOpen && s.pix.polls >= s.cfg.PollsToFinish {
		s.pix.status = models.PixPaid
		s.pix.paymentID = "sim-pix-" + s.pix.id[:8]
	}
	return models.PixOrderStatus{
		OrderID:       s.pix.id,
		CorrelationID: s.pix.correlationID,
		Status:        s.pix.status,
		PaymentID:     s.pix.paymentID,
	}, nil
}

func (s *Simulator) CancelPixOrder(ctx context.Context) error {
	if err := s.latency(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("CancelPixOrder")

	if s.pix != nil && s.pix.status == models.PixOpen {
		log.WithField("orderId", s.pix.id).Info("🧪 Simulated Pix order canceled")
	}
	s.pix = nil
	return nil
}

// CurrentPixOrder returns the correlation id of the outstanding Pix order
func (s *Simulator) CurrentPixOrder() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pix == nil {
		return "", false
	}
	return s.pix.correlationID, true
}
