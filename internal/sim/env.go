package sim

import (
	"errors"

	"bybit-trader/internal/ohlcv"
)

var ErrNoData = errors.New("OHLCV data is empty, fetch data first")

// Env is a spot account trading one asset over historical candles. Buying
// spends the whole balance net of the fee; selling returns the gross value
// net of the fee. The reward of a step is the account equity.
type Env struct {
	candles      []ohlcv.Candle
	feePct       float64
	startBalance float64

	step       int
	balance    float64
	cryptoHeld float64
}

func NewEnv(candles []ohlcv.Candle, startBalance, feePct float64) (*Env, error) {
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	e := &Env{candles: candles, feePct: feePct, startBalance: startBalance}
	e.Reset()
	return e, nil
}

func (e *Env) Reset() Observation {
	e.step = 0
	e.balance = e.startBalance
	e.cryptoHeld = 0
	return e.observe()
}

func (e *Env) observe() Observation {
	c := e.candles[e.step]
	return Observation{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume, Balance: e.balance}
}

// Price is the close of the current candle.
func (e *Env) Price() float64 { return e.candles[e.step].Close }

func (e *Env) Len() int { return len(e.candles) }

// Step applies action at the current close and advances one candle.
func (e *Env) Step(action Action) (obs Observation, reward float64, done bool) {
	price := e.candles[e.step].Close

	switch {
	case action == Buy && e.balance > 0:
		fee := e.balance * e.feePct / 100
		e.cryptoHeld = (e.balance - fee) / price
		e.balance = 0
	case action == Sell && e.cryptoHeld > 0:
		gross := e.cryptoHeld * price
		fee := gross * e.feePct / 100
		e.balance = gross - fee
		e.cryptoHeld = 0
	}

	reward = e.balance + e.cryptoHeld*price
	if e.step < len(e.candles)-1 {
		e.step++
	}
	done = e.step >= len(e.candles)-1
	return e.observe(), reward, done
}

func (e *Env) Balance() float64    { return e.balance }
func (e *Env) CryptoHeld() float64 { return e.cryptoHeld }
