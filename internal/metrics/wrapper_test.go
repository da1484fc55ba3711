package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWrapper(t *testing.T) (*Metrics, *MetricsWrapper, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	return m, NewWrapper(m), registry
}

func TestNewWrapper(t *testing.T) {
	m, w, _ := newTestWrapper(t)
	require.NotNil(t, w)
	assert.Same(t, m, w.m)
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	m, w, _ := newTestWrapper(t)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.OrdersTotal))
	w.OrdersTotal().Inc()
	w.OrdersTotal().Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersTotal))

	w.ErrorsTotal().Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	m, w, _ := newTestWrapper(t)

	w.PnLTotal().Set(123.45)
	assert.Equal(t, 123.45, testutil.ToFloat64(m.PnLTotal))
	w.PnLTotal().Add(-23.45)
	assert.InDelta(t, 100.0, testutil.ToFloat64(m.PnLTotal), 1e-9)

	w.ActivePositions().Set(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActivePositions))
}

func TestMetricsWrapper_Outcome(t *testing.T) {
	m, w, _ := newTestWrapper(t)

	w.Outcome("open", "none")
	w.Outcome("open", "drawdown_halt")
	w.Outcome("open", "none")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("open", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("open", "drawdown_halt")))
}

func TestMetricsWrapper_Drawdown(t *testing.T) {
	m, w, _ := newTestWrapper(t)

	w.Drawdown(1000, 5, false)
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.PeakEquity))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.DrawdownPercent))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DrawdownHalts))

	w.Drawdown(1000, 12, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DrawdownHalts))
}

func TestMetricsWrapper_Klines(t *testing.T) {
	m, w, _ := newTestWrapper(t)

	w.KlineReceived(false)
	w.KlineReceived(true)
	w.WSReconnect()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.KlinesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KlinesStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSReconnects))
}

func TestNilWrapperIsNoop(t *testing.T) {
	var w *MetricsWrapper
	assert.NotPanics(t, func() {
		w.OrdersTotal().Inc()
		w.PnLTotal().Add(1)
		w.ActivePositions().Set(1)
		w.ErrorsTotal().Inc()
		w.ExecutionDuration().Observe(0.1)
		w.Outcome("close", "none")
		w.Drawdown(1, 1, true)
		w.KlineReceived(true)
		w.WSReconnect()
	})
}

func TestGetErrorRate(t *testing.T) {
	m, w, registry := newTestWrapper(t)

	assert.Equal(t, 0.0, m.GetErrorRate(registry))

	for i := 0; i < 4; i++ {
		w.OrdersTotal().Inc()
	}
	w.ErrorsTotal().Inc()
	assert.Equal(t, 0.25, m.GetErrorRate(registry))
}
