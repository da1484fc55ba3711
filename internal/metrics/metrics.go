// Package metrics provides Prometheus metrics for the execution engine.
// Metrics are exposed on the /metrics endpoint by the bytrader serve command.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the engine updates.
type Metrics struct {
	// Trading metrics
	OrdersTotal            prometheus.Counter     // market orders accepted by the exchange
	OutcomesTotal          *prometheus.CounterVec // open/close outcomes by action and kind
	PnLTotal               prometheus.Gauge       // realized PnL of closed positions
	ActivePositions        prometheus.Gauge       // 1 while the engine holds a position
	OrderExecutionDuration prometheus.Histogram   // wall time of a full open or close flow

	// Risk metrics
	PeakEquity      prometheus.Gauge
	DrawdownPercent prometheus.Gauge
	DrawdownHalts   prometheus.Counter

	// Market data metrics
	WSReconnects   prometheus.Counter
	KlinesReceived prometheus.Counter
	KlinesStored   prometheus.Counter

	ErrorsTotal prometheus.Counter
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with registerer (tests use a fresh
// registry each).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of orders accepted by the exchange",
		}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_outcomes_total",
			Help: "Open and close outcomes by action and kind",
		}, []string{"action", "kind"}),
		PnLTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pnl_total",
			Help: "Cumulative realized PnL of closed positions in USDT, net of exit fees",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of active positions",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration of open and close flows in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		PeakEquity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "peak_equity",
			Help: "Highest equity seen by the drawdown gate",
		}),
		DrawdownPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drawdown_percent",
			Help: "Last computed drawdown from peak equity",
		}),
		DrawdownHalts: factory.NewCounter(prometheus.CounterOpts{
			Name: "drawdown_halts_total",
			Help: "Total number of opens vetoed by the drawdown gate",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of WebSocket reconnections",
		}),
		KlinesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "klines_received_total",
			Help: "Total number of kline updates received",
		}),
		KlinesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "klines_stored_total",
			Help: "Total number of candles written to the OHLCV store",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// GetErrorRate returns errors per accepted order, 0 before the first order.
func (m *Metrics) GetErrorRate(g prometheus.Gatherer) float64 {
	var totalOps, totalErrors float64

	metricFamilies, err := g.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "orders_total":
			for _, m := range mf.Metric {
				totalOps = m.GetCounter().GetValue()
			}
		case "errors_total":
			for _, m := range mf.Metric {
				totalErrors = m.GetCounter().GetValue()
			}
		}
	}

	if totalOps == 0 {
		return 0
	}
	return totalErrors / totalOps
}
