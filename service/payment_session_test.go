package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

type sessionRecorder struct {
	mu      sync.Mutex
	updates []SessionUpdate
}

func (r *sessionRecorder) observe(_ *PaymentSession, u SessionUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *sessionRecorder) Updates() []SessionUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionUpdate(nil), r.updates...)
}

func (r *sessionRecorder) has(pred func(SessionUpdate) bool) bool {
	for _, u := range r.Updates() {
		if pred(u) {
			return true
		}
	}
	return false
}

func (r *sessionRecorder) reached(state models.SessionState) func() bool {
	return func() bool {
		return r.has(func(u SessionUpdate) bool { return u.State == state })
	}
}

func newTestSession(t *testing.T, loop *OwnerLoop, gw PaymentGatewayInterface, saleID string, method models.PaymentMethod, rec *sessionRecorder, pixMu *sync.Mutex) *PaymentSession {
	t.Helper()
	return NewPaymentSession(saleID, method, 2500, SessionConfig{
		Gateway:      gw,
		Dispatcher:   loop,
		PixMu:        pixMu,
		PollInterval: testPoll,
		Observer:     rec.observe,
	})
}

func startSession(t *testing.T, loop *OwnerLoop, sess *PaymentSession) {
	t.Helper()
	require.NoError(t, onOwner(t, loop, func() error {
		sess.Start()
		return nil
	}))
}

func waitSession(t *testing.T, sess *PaymentSession) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))
}

func sessionState(t *testing.T, loop *OwnerLoop, sess *PaymentSession) (state models.SessionState, label, paymentID string) {
	t.Helper()
	require.NoError(t, onOwner(t, loop, func() error {
		state, label, paymentID = sess.State(), sess.Label(), sess.PaymentID()
		return nil
	}))
	return
}

func TestPaymentSession_CardFinished(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	gw.setIntents(
		models.IntentStatus{State: models.IntentOnTerminal},
		models.IntentStatus{State: models.IntentProcessing},
		models.IntentStatus{State: models.IntentFinished, PaymentID: "pay-1"},
	)
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodDebit, rec, nil)
	startSession(t, loop, sess)
	waitSession(t, sess)
	assert.Eventually(t, rec.reached(models.SessionFinished), waitFor, checkEvery)

	state, label, paymentID := sessionState(t, loop, sess)
	assert.Equal(t, models.SessionFinished, state)
	assert.Equal(t, "Finalizado", label)
	assert.Equal(t, "pay-1", paymentID)
	assert.True(t, rec.has(func(u SessionUpdate) bool { return u.Label == "Processando" }))
	assert.Equal(t, int64(2500), gw.LastAmount())
}

func TestPaymentSession_CardTerminalOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		state models.IntentState
		want  models.SessionState
	}{
		{"canceled on terminal", models.IntentCanceled, models.SessionCanceled},
		{"abandoned", models.IntentAbandoned, models.SessionAbandoned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := startLoop(t)
			gw := newFakeGateway()
			gw.setIntents(models.IntentStatus{State: tt.state})
			rec := &sessionRecorder{}

			sess := newTestSession(t, loop, gw, "sale-1", models.MethodCredit, rec, nil)
			startSession(t, loop, sess)
			waitSession(t, sess)
			assert.Eventually(t, rec.reached(tt.want), waitFor, checkEvery)
		})
	}
}

func TestPaymentSession_CreateFailureIsFatal(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	gw.createErr = &models.GatewayError{Op: "create payment intent", StatusCode: 401, Body: "unauthorized"}
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodDebit, rec, nil)
	startSession(t, loop, sess)
	waitSession(t, sess)
	require.Eventually(t, rec.reached(models.SessionFailed), waitFor, checkEvery)

	var fatal *models.GatewayFatalError
	updates := rec.Updates()
	require.True(t, errors.As(updates[len(updates)-1].Err, &fatal))
	assert.Equal(t, 0, gw.Calls("PollIntent"))
}

func TestPaymentSession_PollErrorsAreTransient(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	gw.pollErrs = 2
	gw.setIntents(models.IntentStatus{State: models.IntentFinished, PaymentID: "pay-2"})
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodDebit, rec, nil)
	startSession(t, loop, sess)
	waitSession(t, sess)
	require.Eventually(t, rec.reached(models.SessionFinished), waitFor, checkEvery)

	assert.True(t, rec.has(func(u SessionUpdate) bool {
		var transient *models.GatewayTransientError
		return u.State == models.SessionPolling && errors.As(u.Err, &transient)
	}))
}

func TestPaymentSession_CancelBeforeStart(t *testing.T) {
	sess := NewPaymentSession("sale-1", models.MethodDebit, 2500, SessionConfig{Gateway: newFakeGateway()})

	assert.True(t, sess.Cancel())
	assert.Equal(t, models.SessionCanceled, sess.State())
	select {
	case <-sess.Done():
	default:
		t.Fatal("done should be closed for a session that never started")
	}
	assert.False(t, sess.Cancel())
}

func TestPaymentSession_UpdatesAfterCancelAreDropped(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodDebit, rec, nil)
	startSession(t, loop, sess)
	require.Eventually(t, rec.reached(models.SessionPolling), waitFor, checkEvery)

	require.NoError(t, onOwner(t, loop, func() error {
		assert.True(t, sess.Cancel())
		assert.False(t, sess.apply(SessionUpdate{State: models.SessionFinished, PaymentID: "late"}))
		return nil
	}))
	waitSession(t, sess)

	state, _, paymentID := sessionState(t, loop, sess)
	assert.Equal(t, models.SessionCanceled, state)
	assert.Empty(t, paymentID)
}

func TestPaymentSession_PixPaid(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	gw.payPixAfter = 2
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodPix, rec, &sync.Mutex{})
	startSession(t, loop, sess)
	waitSession(t, sess)
	require.Eventually(t, rec.reached(models.SessionFinished), waitFor, checkEvery)

	assert.True(t, rec.has(func(u SessionUpdate) bool { return u.QRPayload == "qr-sale-1" }))
	_, _, paymentID := sessionState(t, loop, sess)
	assert.Equal(t, "pix-order-1", paymentID)
	// the create step clears whatever order the terminal held
	assert.Equal(t, 1, gw.Calls("CancelPixOrder"))
}

func TestPaymentSession_PixSuperseded(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodPix, rec, &sync.Mutex{})
	startSession(t, loop, sess)
	require.Eventually(t, rec.reached(models.SessionPolling), waitFor, checkEvery)

	gw.setPix(&models.PixOrderStatus{OrderID: "order-x", CorrelationID: "sale-2", Status: models.PixOpen})
	waitSession(t, sess)
	require.Eventually(t, rec.reached(models.SessionCanceled), waitFor, checkEvery)

	_, label, _ := sessionState(t, loop, sess)
	assert.Equal(t, supersededLabel, label)
	// the newer order belongs to another sale and must survive
	current := gw.currentPix()
	require.NotNil(t, current)
	assert.Equal(t, "sale-2", current.CorrelationID)
	assert.Equal(t, 1, gw.Calls("CancelPixOrder"))
}

func TestPaymentSession_PixCanceledByOwnerCleansUp(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodPix, rec, &sync.Mutex{})
	startSession(t, loop, sess)
	require.Eventually(t, rec.reached(models.SessionPolling), waitFor, checkEvery)

	require.NoError(t, onOwner(t, loop, func() error {
		sess.Cancel()
		return nil
	}))
	waitSession(t, sess)

	assert.Nil(t, gw.currentPix())
	assert.Equal(t, 2, gw.Calls("CancelPixOrder"))
}

func TestPaymentSession_PixCleanupLeavesOtherSaleOrder(t *testing.T) {
	loop := startLoop(t)
	gw := newFakeGateway()
	rec := &sessionRecorder{}

	sess := newTestSession(t, loop, gw, "sale-1", models.MethodPix, rec, &sync.Mutex{})
	startSession(t, loop, sess)
	require.Eventually(t, rec.reached(models.SessionPolling), waitFor, checkEvery)

	gw.setPix(&models.PixOrderStatus{OrderID: "order-x", CorrelationID: "sale-2", Status: models.PixOpen})
	require.NoError(t, onOwner(t, loop, func() error {
		sess.Cancel()
		return nil
	}))
	waitSession(t, sess)

	current := gw.currentPix()
	require.NotNil(t, current)
	assert.Equal(t, "sale-2", current.CorrelationID)
	assert.Equal(t, 1, gw.Calls("CancelPixOrder"))
}
