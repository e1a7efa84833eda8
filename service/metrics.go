package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"pdv-sorveteria/models"
)

// Metrics counts payment and settlement outcomes from the event stream
type Metrics struct {
	sessions          *prometheus.CounterVec
	settlements       *prometheus.CounterVec
	settledAmount     *prometheus.CounterVec
	settlementFailure prometheus.Counter
	gatewayErrors     *prometheus.CounterVec
	closedSales       prometheus.Counter
}

var _ EventDispatcher = (*Metrics)(nil)

// NewMetrics registers the terminal counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "payment_sessions_total",
			Help:      "Payment sessions by method and final state.",
		}, []string{"method", "state"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "settlements_total",
			Help:      "Sales written to history by payment method.",
		}, []string{"method"}),
		settledAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "settled_amount_centavos_total",
			Help:      "Sum of settled sale totals in centavos.",
		}, []string{"method"}),
		settlementFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "settlement_failures_total",
			Help:      "History appends that failed.",
		}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "gateway_errors_total",
			Help:      "Gateway errors seen by payment sessions.",
		}, []string{"method", "state"}),
		closedSales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdv",
			Name:      "sales_discarded_total",
			Help:      "Open sales closed without settlement.",
		}),
	}
	reg.MustRegister(m.sessions, m.settlements, m.settledAmount, m.settlementFailure, m.gatewayErrors, m.closedSales)
	return m
}

func methodLabel(m models.PaymentMethod) string {
	if m == models.MethodUnset {
		return "unset"
	}
	return string(m)
}

func (m *Metrics) Dispatch(event Event) error {
	switch e := event.(type) {
	case models.PaymentStatusChanged:
		if e.Err != "" {
			m.gatewayErrors.WithLabelValues(methodLabel(e.Method), e.State.String()).Inc()
		}
		if e.State.Terminal() {
			m.sessions.WithLabelValues(methodLabel(e.Method), e.State.String()).Inc()
		}
	case models.SaleSettled:
		method := methodLabel(e.Record.PaymentMethod)
		m.settlements.WithLabelValues(method).Inc()
		m.settledAmount.WithLabelValues(method).Add(float64(e.Record.FinalTotal))
	case models.SettlementFailed:
		m.settlementFailure.Inc()
	case models.SaleClosed:
		m.closedSales.Inc()
	}
	return nil
}
