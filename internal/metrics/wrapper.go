package metrics

import "github.com/prometheus/client_golang/prometheus"

type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper is the narrow view handed to the controller and the risk
// gate. A nil *MetricsWrapper is valid and records nothing.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) OrdersTotal() MetricsCounter {
	if w == nil {
		return noop{}
	}
	return &CounterWrapper{w.m.OrdersTotal}
}

func (w *MetricsWrapper) PnLTotal() MetricsGauge {
	if w == nil {
		return noop{}
	}
	return &GaugeWrapper{w.m.PnLTotal}
}

func (w *MetricsWrapper) ActivePositions() MetricsGauge {
	if w == nil {
		return noop{}
	}
	return &GaugeWrapper{w.m.ActivePositions}
}

func (w *MetricsWrapper) ErrorsTotal() MetricsCounter {
	if w == nil {
		return noop{}
	}
	return &CounterWrapper{w.m.ErrorsTotal}
}

func (w *MetricsWrapper) ExecutionDuration() MetricsHistogram {
	if w == nil {
		return noop{}
	}
	return &HistogramWrapper{w.m.OrderExecutionDuration}
}

// Outcome counts one finished open or close.
func (w *MetricsWrapper) Outcome(action, kind string) {
	if w == nil {
		return
	}
	w.m.OutcomesTotal.WithLabelValues(action, kind).Inc()
}

// Drawdown records the gate's latest view of equity.
func (w *MetricsWrapper) Drawdown(peak, drawdownPct float64, halted bool) {
	if w == nil {
		return
	}
	w.m.PeakEquity.Set(peak)
	w.m.DrawdownPercent.Set(drawdownPct)
	if halted {
		w.m.DrawdownHalts.Inc()
	}
}

func (w *MetricsWrapper) KlineReceived(stored bool) {
	if w == nil {
		return
	}
	w.m.KlinesReceived.Inc()
	if stored {
		w.m.KlinesStored.Inc()
	}
}

func (w *MetricsWrapper) WSReconnect() {
	if w == nil {
		return
	}
	w.m.WSReconnects.Inc()
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}

type noop struct{}

func (noop) Inc()            {}
func (noop) Set(float64)     {}
func (noop) Add(float64)     {}
func (noop) Observe(float64) {}
