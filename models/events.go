package models

import "fmt"

// SessionState is the state of a payment session
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionRequesting
	SessionPolling
	SessionFinished
	SessionCanceled
	SessionAbandoned
	SessionFailed
)

var sessionStateNames = map[SessionState]string{
	SessionIdle:       "idle",
	SessionRequesting: "requesting",
	SessionPolling:    "polling",
	SessionFinished:   "finished",
	SessionCanceled:   "canceled",
	SessionAbandoned:  "abandoned",
	SessionFailed:     "failed",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *SessionState) UnmarshalText(b []byte) error {
	for state, name := range sessionStateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Terminal reports whether no further transition can happen
func (s SessionState) Terminal() bool {
	return s >= SessionFinished
}

type PaymentStatusChanged struct {
	SaleID    string
	SessionID string
	Method    PaymentMethod
	State     SessionState
	Label     string
	PaymentID string
	QRPayload string
	Err       string
}

func (e PaymentStatusChanged) Type() string { return "PaymentStatusChanged" }

type SaleSettled struct {
	Record HistoryRecord
}

func (e SaleSettled) Type() string { return "SaleSettled" }

type SettlementFailed struct {
	SaleID string
	Reason string
}

func (e SettlementFailed) Type() string { return "SettlementFailed" }

type SaleClosed struct {
	SaleID string
}

func (e SaleClosed) Type() string { return "SaleClosed" }
