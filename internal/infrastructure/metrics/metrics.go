package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结算结果标签
const (
	ResultSettled   = "settled"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
	ResultDuplicate = "duplicate"
)

// Metrics 结算与提现相关的业务指标
// 所有方法对 nil 接收者安全，测试里可以直接传 nil
type Metrics struct {
	SettlementsTotal      *prometheus.CounterVec
	SettlementDuration    prometheus.Histogram
	CommissionAmountTotal prometheus.Counter
	VendorNetAmountTotal  prometheus.Counter
	WithdrawalsTotal      *prometheus.CounterVec
	AffiliateClicksTotal  prometheus.Counter
}

// New 在 reg 上注册指标；reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SettlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_settlements_total",
				Help: "订单结算次数，按结果区分",
			},
			[]string{"result"},
		),
		SettlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketplace_settlement_duration_seconds",
				Help:    "单个订单结算耗时",
				Buckets: prometheus.DefBuckets,
			},
		),
		CommissionAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "marketplace_commission_amount_total",
				Help: "已入账的推广佣金总额（最小货币单位）",
			},
		),
		VendorNetAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "marketplace_vendor_net_amount_total",
				Help: "已入账的商家销售收入总额（最小货币单位）",
			},
		),
		WithdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_withdrawals_total",
				Help: "提现申请数量，按状态区分",
			},
			[]string{"status"},
		),
		AffiliateClicksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "marketplace_affiliate_clicks_total",
				Help: "推广链接点击次数",
			},
		),
	}
}

func (m *Metrics) ObserveSettlement(result string, seconds float64) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(result).Inc()
	m.SettlementDuration.Observe(seconds)
}

func (m *Metrics) AddCommission(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.CommissionAmountTotal.Add(float64(amount))
}

func (m *Metrics) AddVendorNet(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.VendorNetAmountTotal.Add(float64(amount))
}

func (m *Metrics) IncWithdrawal(status string) {
	if m == nil {
		return
	}
	m.WithdrawalsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncClick() {
	if m == nil {
		return
	}
	m.AffiliateClicksTotal.Inc()
}
