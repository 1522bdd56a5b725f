package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTransition("campaign", "DRAFT", "ACTIVE")
	m.RecordTransition("campaign", "DRAFT", "ACTIVE")
	m.RecordPayment("COMPLETED")
	m.RecordPayout(190)
	m.RecordSweep("campaign_expiry", "completed", 3)
	m.RecordSweep("campaign_expiry", "failed", 0)
	m.ObserveSettlement("ok", 20*time.Millisecond)

	require.Equal(t, float64(2), testutil.ToFloat64(m.StatusTransitions.WithLabelValues("campaign", "DRAFT", "ACTIVE")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Payments.WithLabelValues("COMPLETED")))
	require.Equal(t, float64(190), testutil.ToFloat64(m.PayoutNetAmount))
	require.Equal(t, float64(3), testutil.ToFloat64(m.SweepItems.WithLabelValues("campaign_expiry", "completed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordTransition("campaign", "A", "B")
		m.RecordApplication("pending")
		m.RecordPayment("FAILED")
		m.RecordPayout(1)
		m.ObserveSettlement("error", time.Second)
		m.RecordSweep("x", "y", 1)
	})
}
