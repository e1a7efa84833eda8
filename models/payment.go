package models

// IntentState is the gateway-side status of a card payment intent
type IntentState string

const (
	IntentOpen       IntentState = "OPEN"
	IntentOnTerminal IntentState = "ON_TERMINAL"
	IntentProcessing IntentState = "PROCESSING"
	IntentFinished   IntentState = "FINISHED"
	IntentCanceled   IntentState = "CANCELED"
	IntentAbandoned  IntentState = "ABANDONED"
)

// IntentHandle identifies a card payment intent at the gateway
type IntentHandle struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlationId"`
}

// IntentStatus is one poll result for a card intent
type IntentStatus struct {
	State     IntentState `json:"state"`
	PaymentID string      `json:"paymentId,omitempty"`
}

// PixOrder is a created Pix QR order
type PixOrder struct {
	Handle        string `json:"handle"`
	CorrelationID string `json:"correlationId"`
	QRPayload     string `json:"qrPayload"`
}

// Pix order statuses, normalised by the adapters to the card intent vocabulary
const (
	PixOpen     = string(IntentOpen)
	PixPaid     = string(IntentFinished)
	PixCanceled = string(IntentCanceled)
)

// PixOrderStatus describes the order currently outstanding at the terminal.
// An empty CorrelationID means there is no outstanding order.
type PixOrderStatus struct {
	OrderID       string `json:"orderId,omitempty"`
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	PaymentID     string `json:"paymentId,omitempty"`
}

// Paid reports whether the order was paid
func (s PixOrderStatus) Paid() bool {
	return s.Status == PixPaid
}
