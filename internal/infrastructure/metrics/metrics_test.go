package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSettlement(ResultSettled, 0.01)
	m.ObserveSettlement(ResultSettled, 0.02)
	m.ObserveSettlement(ResultPartial, 0.03)
	m.AddCommission(6000)
	m.AddCommission(-5)
	m.AddVendorNet(14000)
	m.IncWithdrawal("pending")
	m.IncClick()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SettlementsTotal.WithLabelValues(ResultSettled)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SettlementsTotal.WithLabelValues(ResultPartial)))
	assert.Equal(t, float64(6000), testutil.ToFloat64(m.CommissionAmountTotal))
	assert.Equal(t, float64(14000), testutil.ToFloat64(m.VendorNetAmountTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WithdrawalsTotal.WithLabelValues("pending")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AffiliateClicksTotal))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSettlement(ResultFailed, 1)
		m.AddCommission(1)
		m.AddVendorNet(1)
		m.IncWithdrawal("approved")
		m.IncClick()
	})
}
