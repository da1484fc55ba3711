// Package risk implements the peak-equity drawdown gate that can veto new
// positions.
package risk

import (
	"fmt"

	"bybit-trader/internal/metrics"
	"bybit-trader/internal/state"

	"github.com/rs/zerolog/log"
)

type Gate struct {
	store          *state.Store[state.RiskState]
	maxDrawdownPct float64
	metrics        *metrics.MetricsWrapper
}

func NewGate(store *state.Store[state.RiskState], maxDrawdownPct float64, m *metrics.MetricsWrapper) *Gate {
	return &Gate{store: store, maxDrawdownPct: maxDrawdownPct, metrics: m}
}

func (g *Gate) MaxDrawdownPercent() float64 { return g.maxDrawdownPct }

// CheckDrawdown compares equity against the stored peak. A new high is
// persisted and always allowed with a nil drawdown. Otherwise the drawdown
// percentage is returned and opening is allowed only while it stays strictly
// below the configured maximum. A persist failure is returned with
// allowed=true since the new high itself is not a reason to halt.
func (g *Gate) CheckDrawdown(equity float64) (bool, *float64, error) {
	st, err := g.store.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", g.store.Path()).Msg("Risk state unreadable, starting from zero peak")
		st = state.DefaultRiskState()
	}

	if equity > st.PeakEquity {
		st.PeakEquity = equity
		g.metrics.Drawdown(equity, 0, false)
		if err := g.store.Save(st); err != nil {
			return true, nil, fmt.Errorf("persist peak equity: %w", err)
		}
		log.Debug().Float64("peak_equity", equity).Msg("New equity peak")
		return true, nil, nil
	}

	dd := Drawdown(equity, st.PeakEquity)
	allowed := dd < g.maxDrawdownPct
	g.metrics.Drawdown(st.PeakEquity, dd, !allowed)

	ev := log.Debug()
	if !allowed {
		ev = log.Warn()
	}
	ev.Float64("equity", equity).
		Float64("peak_equity", st.PeakEquity).
		Float64("drawdown_pct", dd).
		Float64("max_drawdown_pct", g.maxDrawdownPct).
		Bool("allowed", allowed).
		Msg("Drawdown check")

	return allowed, &dd, nil
}

// Drawdown is 100*(1-equity/peak), never negative, and 0 for a zero peak.
func Drawdown(equity, peak float64) float64 {
	if peak <= 0 {
		return 0
	}
	dd := 100 * (1 - equity/peak)
	if dd < 0 {
		return 0
	}
	return dd
}
