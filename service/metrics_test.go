package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

func TestMetrics_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	events := []Event{
		models.PaymentStatusChanged{SaleID: "s1", Method: models.MethodDebit, State: models.SessionPolling},
		models.PaymentStatusChanged{SaleID: "s1", Method: models.MethodDebit, State: models.SessionPolling, Err: "timeout"},
		models.PaymentStatusChanged{SaleID: "s1", Method: models.MethodDebit, State: models.SessionFinished},
		models.SaleSettled{Record: models.HistoryRecord{SaleID: "s1", PaymentMethod: models.MethodDebit, FinalTotal: 2500}},
		models.SaleSettled{Record: models.HistoryRecord{SaleID: "s2", FinalTotal: 700}},
		models.SettlementFailed{SaleID: "s3"},
		models.SaleClosed{SaleID: "s4"},
	}
	for _, e := range events {
		require.NoError(t, m.Dispatch(e))
	}

	debit := string(models.MethodDebit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues(debit, "finished")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayErrors.WithLabelValues(debit, "polling")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues(debit)))
	assert.Equal(t, 2500.0, testutil.ToFloat64(m.settledAmount.WithLabelValues(debit)))
	assert.Equal(t, 700.0, testutil.ToFloat64(m.settledAmount.WithLabelValues("unset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlementFailure))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closedSales))
}
