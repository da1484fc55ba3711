// Package sim replays stored candles through a trading policy. It writes the
// per-step simulation log read by the status report and drives the
// paper-trading account.
package sim

import (
	"math"

	"bybit-trader/internal/features"
)

// Action is a discrete trading decision.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}

// Observation is what a Decider sees at each step.
type Observation struct {
	Open, High, Low, Close, Volume float64
	Balance                        float64
}

// Decider is the trading policy. An external model can be plugged in by
// implementing it.
type Decider interface {
	Decide(obs Observation) Action
}

// DeciderFunc adapts a plain function to Decider.
type DeciderFunc func(Observation) Action

func (f DeciderFunc) Decide(obs Observation) Action { return f(obs) }

// MomentumDecider scores tick imbalance against the distance from a rolling
// VWAP and buys on strong positive scores, sells on strong negative ones.
type MomentumDecider struct {
	vwap      *features.VWAP
	ticks     *features.TickImb
	threshold float64
	warmup    int
	last      float64
}

func NewMomentumDecider(window int, threshold float64) *MomentumDecider {
	return &MomentumDecider{
		vwap:      features.NewVWAP(window),
		ticks:     features.NewTickImb(window),
		threshold: threshold,
		warmup:    window,
	}
}

func (d *MomentumDecider) Decide(obs Observation) Action {
	if d.last > 0 {
		d.ticks.AddMove(d.last, obs.Close)
	}
	d.last = obs.Close
	d.vwap.Add(obs.Close, obs.Volume)

	if d.vwap.Len() < d.warmup {
		return Hold
	}

	score := d.score(obs.Close)
	switch {
	case score >= d.threshold:
		return Buy
	case score <= -d.threshold:
		return Sell
	default:
		return Hold
	}
}

func (d *MomentumDecider) score(price float64) float64 {
	vwap, std := d.vwap.Calc()
	dist := 0.0
	if std > 0 {
		dist = (price - vwap) / std
	}
	// weights favour the tick trend; a stretched price pulls the score back
	return 0.6*math.Tanh(3*d.ticks.Ratio()) - 0.4*math.Tanh(dist/2)
}
