package sim

import (
	"context"
	"fmt"

	"bybit-trader/internal/ohlcv"
	"bybit-trader/internal/state"

	"github.com/rs/zerolog/log"
)

// Notifier delivers operator messages.
type Notifier func(msg string)

// LogNotifier writes messages to the global logger.
func LogNotifier(msg string) {
	log.Info().Str("channel", "paper").Msg(msg)
}

// PaperTrader applies Decider actions to a persisted PaperState. The state
// is saved after every step so an interrupted run resumes where it stopped.
type PaperTrader struct {
	Store       *state.Store[state.PaperState]
	Decider     Decider
	Notify      Notifier
	Asset       string
	ReportEvery int
}

// Run steps through candles and returns the final state.
func (p *PaperTrader) Run(ctx context.Context, candles []ohlcv.Candle) (state.PaperState, error) {
	if len(candles) == 0 {
		return state.PaperState{}, ErrNoData
	}
	notify := p.Notify
	if notify == nil {
		notify = LogNotifier
	}
	every := p.ReportEvery
	if every <= 0 {
		every = 50
	}

	st, err := p.Store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read paper state, reinitializing")
		st = state.DefaultPaperState()
	}

	notify("Starting paper trading on historical data...")

	for step, c := range candles {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		action := p.Decider.Decide(Observation{
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
			Balance: st.Balance,
		})
		price := c.Close

		switch {
		case action == Buy && !st.Holding:
			st.EntryPrice = price
			st.CryptoAmount = st.Balance / price
			st.Balance = 0
			st.Holding = true
			notify(fmt.Sprintf("Paper BUY executed\nEntry Price: %.2f\nAmount: %.6f %s", price, st.CryptoAmount, p.Asset))

		case action == Sell && st.Holding:
			st.Balance = st.CryptoAmount * price
			profit := st.Balance - st.EntryPrice*st.CryptoAmount
			st.CryptoAmount = 0
			st.Holding = false
			notify(fmt.Sprintf("Paper SELL executed\nExit Price: %.2f\nProfit: %.2f USDT\nNew Balance: %.2f USDT", price, profit, st.Balance))

		case st.Holding && step%every == 0:
			unrealized := (price - st.EntryPrice) * st.CryptoAmount
			notify(fmt.Sprintf("Holding... Price: %.2f, Unrealized PnL: %.2f USDT", price, unrealized))
		}

		if err := p.Store.Save(st); err != nil {
			return st, fmt.Errorf("save paper state: %w", err)
		}
	}

	notify("Paper trading finished.")
	return st, nil
}
