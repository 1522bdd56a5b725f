package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics",
	fx.Provide(
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		New,
	),
)

// Metrics holds the business counters of the lifecycle engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	StatusTransitions  *prometheus.CounterVec
	Applications       *prometheus.CounterVec
	Payments           *prometheus.CounterVec
	PayoutNetAmount    prometheus.Counter
	SettlementDuration *prometheus.HistogramVec
	SweepItems         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StatusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influencehub_status_transitions_total",
				Help: "Committed status transitions by entity",
			},
			[]string{"entity", "from", "to"},
		),
		Applications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influencehub_applications_total",
				Help: "Applications by outcome",
			},
			[]string{"outcome"},
		),
		Payments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influencehub_payments_total",
				Help: "Payments reaching a status",
			},
			[]string{"status"},
		),
		PayoutNetAmount: f.NewCounter(
			prometheus.CounterOpts{
				Name: "influencehub_payout_net_amount_total",
				Help: "Net amount credited to influencer earnings",
			},
		),
		SettlementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "influencehub_settlement_duration_seconds",
				Help:    "Settlement call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		SweepItems: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "influencehub_sweep_items_total",
				Help: "Items handled by background sweeps",
			},
			[]string{"job", "result"},
		),
	}
}

func (m *Metrics) RecordTransition(entity, from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(entity, from, to).Inc()
}

func (m *Metrics) RecordApplication(outcome string) {
	if m == nil {
		return
	}
	m.Applications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPayment(status string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordPayout(net float64) {
	if m == nil {
		return
	}
	m.PayoutNetAmount.Add(net)
}

func (m *Metrics) ObserveSettlement(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SettlementDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) RecordSweep(job, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepItems.WithLabelValues(job, result).Add(float64(n))
}
