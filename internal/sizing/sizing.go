// Package sizing turns a notional amount into an order quantity and derives
// take-profit and stop-loss levels.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"bybit-trader/internal/common"

	"github.com/shopspring/decimal"
)

var ErrZeroQuantity = errors.New("sizing: quantity rounds to zero")

const (
	QtyPlaces   = 3
	PricePlaces = 2
)

var hundred = decimal.NewFromInt(100)

// Sizing is the result of SizeOrder.
type Sizing struct {
	Qty       decimal.Decimal
	Effective float64 // balance net of the entry fee
	EntryFee  float64
}

// QtyString renders Qty the way the order endpoint expects it.
func (s Sizing) QtyString() string { return s.Qty.String() }

func (s Sizing) QtyFloat() float64 { return s.Qty.InexactFloat64() }

// SizeOrder computes round(balance*(1-fee/100)*leverage/price, 3).
func SizeOrder(balance float64, leverage int, price, feePct float64) (Sizing, error) {
	if !finite(balance) || !(balance > 0) {
		return Sizing{}, fmt.Errorf("%w: balance %v", ErrZeroQuantity, balance)
	}
	if !finite(price) || !(price > 0) {
		return Sizing{}, fmt.Errorf("%w: price %v", ErrZeroQuantity, price)
	}
	bal := decimal.NewFromFloat(balance)
	feeRate := decimal.NewFromFloat(feePct).Div(hundred)
	fee := bal.Mul(feeRate)
	effective := bal.Sub(fee)

	qty := effective.Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price)).
		Round(QtyPlaces)
	if !qty.IsPositive() {
		return Sizing{}, fmt.Errorf("%w: balance %v leverage %d price %v", ErrZeroQuantity, balance, leverage, price)
	}

	return Sizing{
		Qty:       qty,
		Effective: effective.InexactFloat64(),
		EntryFee:  fee.InexactFloat64(),
	}, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Bracket is a take-profit/stop-loss pair for an open position.
type Bracket struct {
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
	PositionIdx int
}

func (b Bracket) TakeProfitString() string { return b.TakeProfit.StringFixed(PricePlaces) }
func (b Bracket) StopLossString() string   { return b.StopLoss.StringFixed(PricePlaces) }

// ComputeBrackets places SL below and TP above entry for longs, the other way
// round for shorts. Percentages are fractions of 100.
func ComputeBrackets(entry float64, side string, slPct, tpPct float64) Bracket {
	e := decimal.NewFromFloat(entry)
	sl := decimal.NewFromFloat(slPct).Div(hundred)
	tp := decimal.NewFromFloat(tpPct).Div(hundred)
	one := decimal.NewFromInt(1)

	if side == common.SideSell {
		return Bracket{
			StopLoss:    e.Mul(one.Add(sl)).Round(PricePlaces),
			TakeProfit:  e.Mul(one.Sub(tp)).Round(PricePlaces),
			PositionIdx: 2,
		}
	}
	return Bracket{
		StopLoss:    e.Mul(one.Sub(sl)).Round(PricePlaces),
		TakeProfit:  e.Mul(one.Add(tp)).Round(PricePlaces),
		PositionIdx: 1,
	}
}

// CloseResult summarises the proceeds of closing a position.
type CloseResult struct {
	PnLPercent float64
	Gross      float64
	ExitFee    float64
	Net        float64
}

// ClosePnL computes the percentage move in the position's favour and the
// fee-adjusted value of the closed size.
func ClosePnL(side string, entry, closePrice, size, feePct float64) CloseResult {
	var pnl decimal.Decimal
	if entry > 0 {
		e := decimal.NewFromFloat(entry)
		pnl = decimal.NewFromFloat(closePrice).Sub(e).Div(e).Mul(hundred)
		if side == common.SideSell {
			pnl = pnl.Neg()
		}
	}

	gross := decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(closePrice)).Round(PricePlaces)
	fee := gross.Mul(decimal.NewFromFloat(feePct)).Div(hundred)
	net := gross.Sub(fee).Round(PricePlaces)

	return CloseResult{
		PnLPercent: pnl.Round(PricePlaces).InexactFloat64(),
		Gross:      gross.InexactFloat64(),
		ExitFee:    fee.InexactFloat64(),
		Net:        net.InexactFloat64(),
	}
}

// Opposite returns the side that reduces a position held on side.
func Opposite(side string) string {
	if side == common.SideBuy {
		return common.SideSell
	}
	return common.SideBuy
}
