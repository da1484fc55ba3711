// Package exec drives the open and close flows against the exchange: risk
// check, leverage, pricing, sizing, order placement and TP/SL brackets.
package exec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"bybit-trader/internal/cfg"
	"bybit-trader/internal/common"
	"bybit-trader/internal/exchange/bybit"
	"bybit-trader/internal/metrics"
	"bybit-trader/internal/sizing"
	"bybit-trader/internal/storage"

	"github.com/rs/zerolog/log"
)

// Exchange is the subset of the Bybit client the controller needs.
type Exchange interface {
	GetUSDTBalance(ctx context.Context) (float64, error)
	GetPosition(ctx context.Context, symbol string) (bybit.Position, error)
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, req bybit.OrderRequest) (bybit.OrderAck, error)
	SetTradingStop(ctx context.Context, ts bybit.TradingStop) error
}

// DrawdownGate vetoes opens when equity has fallen too far from its peak.
type DrawdownGate interface {
	CheckDrawdown(equity float64) (bool, *float64, error)
}

// Journal records executed trades.
type Journal interface {
	Append(rec storage.TradeRecord) error
}

type Config struct {
	Symbol        string
	StopLossPct   float64
	TakeProfitPct float64
	FeePct        float64
}

func ConfigFrom(s cfg.Settings) Config {
	return Config{
		Symbol:        s.Symbol,
		StopLossPct:   s.StopLossPercent,
		TakeProfitPct: s.TakeProfitPercent,
		FeePct:        s.TradingFeePercent,
	}
}

// Exec runs one open or close at a time.
type Exec struct {
	ex      Exchange
	gate    DrawdownGate
	lev     sizing.LeverageSource
	config  Config
	journal Journal
	metrics *metrics.MetricsWrapper
	mu      sync.Mutex
}

func New(ex Exchange, gate DrawdownGate, lev sizing.LeverageSource, c Config, m *metrics.MetricsWrapper) *Exec {
	return &Exec{
		ex:      ex,
		gate:    gate,
		lev:     lev,
		config:  c,
		metrics: m,
	}
}

// SetJournal enables trade journaling.
func (e *Exec) SetJournal(j Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal = j
}

// OpenLong and OpenShort are shorthands for Open.
func (e *Exec) OpenLong(ctx context.Context, usdtAmount float64) Outcome {
	return e.Open(ctx, common.SideBuy, usdtAmount)
}

func (e *Exec) OpenShort(ctx context.Context, usdtAmount float64) Outcome {
	return e.Open(ctx, common.SideSell, usdtAmount)
}

// Open opens a position on side ("Buy" or "Sell") sized from usdtAmount.
// No order is sent when the drawdown gate vetoes or a position already
// exists. A bracket failure still reports Success with KindBracketFailed.
func (e *Exec) Open(ctx context.Context, side string, usdtAmount float64) (out Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.finish("open", start, out) }()

	symbol := e.config.Symbol
	logger := log.With().Str("symbol", symbol).Str("side", side).Float64("usdt_amount", usdtAmount).Logger()

	if side != common.SideBuy && side != common.SideSell {
		return failure(KindOrderRejected, fmt.Errorf("unsupported side %q", side), "Unsupported side: %s", side)
	}
	if math.IsNaN(usdtAmount) || math.IsInf(usdtAmount, 0) || usdtAmount <= 0 {
		return failure(KindZeroQuantity, fmt.Errorf("%w: amount %v", sizing.ErrZeroQuantity, usdtAmount), "Calculated qty is zero!")
	}

	balance, err := e.ex.GetUSDTBalance(ctx)
	if err != nil {
		return failure(kindFor(err, KindTransport), err, "Balance fetch failed: %s", bybit.ExchangeMessage(err))
	}

	allowed, dd, err := e.gate.CheckDrawdown(balance)
	if err != nil {
		logger.Warn().Err(err).Msg("Risk state not persisted")
	}
	if !allowed {
		out = failure(KindDrawdownHalt, nil, "Trading halted due to drawdown: %.2f%%", deref(dd))
		out.Drawdown = dd
		return out
	}
	logger.Info().Str("stage", "risk_checked").Float64("equity", balance).Msg("Drawdown check passed")

	pos, err := e.ex.GetPosition(ctx, symbol)
	if err != nil {
		return failure(kindFor(err, KindTransport), err, "Position query failed: %s", bybit.ExchangeMessage(err))
	}
	if pos.Size > 0 {
		logger.Warn().Float64("size", pos.Size).Str("open_side", pos.Side).Msg("Attempt to open a position while one is already open")
		return failure(KindPositionAlreadyOpen, nil, "Position already open!")
	}

	leverage := e.lev.Leverage()
	if err := e.ex.SetLeverage(ctx, symbol, leverage); err != nil {
		return failure(kindFor(err, KindLeverageSetFailed), err, "Leverage setting failed: %s", bybit.ExchangeMessage(err))
	}
	logger.Info().Str("stage", "leverage_set").Int("leverage", leverage).Msg("Leverage set")

	price, err := e.ex.GetMarketPrice(ctx, symbol)
	if err != nil {
		return failure(KindPriceFetchFailed, err, "Market price fetch error: %s", bybit.ExchangeMessage(err))
	}
	logger.Info().Str("stage", "priced").Float64("price", price).Msg("Market price fetched")

	sz, err := sizing.SizeOrder(usdtAmount, leverage, price, e.config.FeePct)
	if err != nil {
		logger.Warn().Err(err).Msg("Calculated qty is zero or negative")
		return failure(KindZeroQuantity, err, "Calculated qty is zero!")
	}
	logger.Info().Str("stage", "sized").
		Str("qty", sz.QtyString()).
		Float64("entry_fee", sz.EntryFee).
		Float64("effective", sz.Effective).
		Msg("Order sized")

	req := bybit.NewMarketOrder(symbol, side, sz.QtyString(), false)
	ack, err := e.ex.PlaceOrder(ctx, req)
	if err != nil {
		return failure(kindFor(err, KindOrderRejected), err, "Order placement failed: %s", bybit.ExchangeMessage(err))
	}
	e.metrics.OrdersTotal().Inc()
	e.metrics.ActivePositions().Set(1)
	logger.Info().Str("stage", "order_placed").Str("order_link_id", ack.OrderLinkID).Msg("Order placed")

	out = Outcome{
		Success:     true,
		Side:        side,
		Qty:         sz.QtyString(),
		EntryPrice:  price,
		Leverage:    leverage,
		EntryFee:    sz.EntryFee,
		OrderLinkID: ack.OrderLinkID,
		Drawdown:    dd,
	}

	// the realized entry comes from the fresh position; the request price is
	// the fallback when the snapshot is not available yet
	if filled, err := e.ex.GetPosition(ctx, symbol); err != nil {
		logger.Warn().Err(err).Msg("Position re-read failed, using request price")
	} else if filled.IsOpen() {
		if filled.AvgPrice > 0 {
			out.EntryPrice = filled.AvgPrice
		}
		out.LiqPrice = filled.LiqPrice
		if filled.Leverage > 0 {
			out.Leverage = int(filled.Leverage)
		}
	}

	br := sizing.ComputeBrackets(out.EntryPrice, side, e.config.StopLossPct, e.config.TakeProfitPct)
	out.TakeProfit = br.TakeProfitString()
	out.StopLoss = br.StopLossString()

	e.record(storage.TradeRecord{
		OrderLinkID: out.OrderLinkID,
		Symbol:      symbol,
		Action:      storage.ActionOpen,
		Side:        side,
		Qty:         sz.QtyFloat(),
		Price:       out.EntryPrice,
		Leverage:    out.Leverage,
		Fee:         out.EntryFee,
	})

	err = e.ex.SetTradingStop(ctx, bybit.TradingStop{
		Symbol:      symbol,
		TakeProfit:  out.TakeProfit,
		StopLoss:    out.StopLoss,
		PositionIdx: br.PositionIdx,
	})
	if err != nil {
		out.Kind = KindBracketFailed
		out.Err = err
		out.Message = out.openMessage() + "\nWARNING: position open, unprotected. TP/SL not set: " + bybit.ExchangeMessage(err)
		logger.Error().Err(err).Str("stage", "brackets_failed").Msg("Position open without TP/SL")
		return out
	}
	logger.Info().Str("stage", "brackets_set").Str("tp", out.TakeProfit).Str("sl", out.StopLoss).Msg("Brackets set")

	out.Message = out.openMessage()
	return out
}

// Close flattens the current position with a reduce-only market order for
// its full size. It is never gated by drawdown.
func (e *Exec) Close(ctx context.Context) (out Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.finish("close", start, out) }()

	symbol := e.config.Symbol
	logger := log.With().Str("symbol", symbol).Logger()

	pos, err := e.ex.GetPosition(ctx, symbol)
	if err != nil {
		return failure(kindFor(err, KindTransport), err, "Position query failed: %s", bybit.ExchangeMessage(err))
	}
	if pos.Size == 0 || pos.Side == "" {
		logger.Warn().Msg("Attempt to close when no position is open")
		return failure(KindNoOpenPosition, nil, "No open position to close!")
	}

	qty := strconv.FormatFloat(pos.Size, 'f', -1, 64)
	closeSide := sizing.Opposite(pos.Side)
	logger.Info().Str("side", pos.Side).Str("close_side", closeSide).Str("qty", qty).Msg("Closing position")

	ack, err := e.ex.PlaceOrder(ctx, bybit.NewMarketOrder(symbol, closeSide, qty, true))
	if err != nil {
		return failure(kindFor(err, KindCloseOrderRejected), err, "Failed to close position: %s", bybit.ExchangeMessage(err))
	}
	e.metrics.OrdersTotal().Inc()
	e.metrics.ActivePositions().Set(0)
	logger.Info().Str("stage", "order_placed").Str("order_link_id", ack.OrderLinkID).Msg("Close order placed")

	closePrice, err := e.ex.GetMarketPrice(ctx, symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("Close price unavailable, using entry price")
		closePrice = pos.AvgPrice
	}

	r := sizing.ClosePnL(pos.Side, pos.AvgPrice, closePrice, pos.Size, e.config.FeePct)
	out = Outcome{
		Success:     true,
		Side:        pos.Side,
		Qty:         qty,
		EntryPrice:  pos.AvgPrice,
		ClosePrice:  closePrice,
		PnLPercent:  r.PnLPercent,
		Gross:       r.Gross,
		ExitFee:     r.ExitFee,
		Net:         r.Net,
		OrderLinkID: ack.OrderLinkID,
	}
	out.Message = out.closeMessage()

	realized := (closePrice - pos.AvgPrice) * pos.Size
	if pos.Side == common.SideSell {
		realized = -realized
	}
	e.metrics.PnLTotal().Add(realized - r.ExitFee)

	e.record(storage.TradeRecord{
		OrderLinkID: ack.OrderLinkID,
		Symbol:      symbol,
		Action:      storage.ActionClose,
		Side:        closeSide,
		Qty:         pos.Size,
		Price:       closePrice,
		Fee:         r.ExitFee,
		PnLPercent:  r.PnLPercent,
		Net:         r.Net,
	})
	logger.Info().Str("stage", "done").Float64("pnl_pct", r.PnLPercent).Float64("net", r.Net).Msg("Position closed")
	return out
}

func (e *Exec) record(rec storage.TradeRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(rec); err != nil {
		log.Warn().Err(err).Str("action", rec.Action).Msg("failed to journal trade")
	}
}

func (e *Exec) finish(action string, start time.Time, out Outcome) {
	e.metrics.ExecutionDuration().Observe(time.Since(start).Seconds())
	e.metrics.Outcome(action, out.Kind.String())
	if out.Err != nil {
		e.metrics.ErrorsTotal().Inc()
	}

	ev := log.Info()
	if !out.Success {
		ev = log.Warn()
	}
	ev.Str("action", action).
		Bool("success", out.Success).
		Str("kind", out.Kind.String()).
		Str("category", string(out.Kind.Category())).
		Dur("elapsed", time.Since(start)).
		Msg("Trade flow finished")
}

// kindFor refines fallback: a missing server time is a signing failure, and
// a read the exchange answered with a non-zero retCode is a rejection rather
// than a transport fault.
func kindFor(err error, fallback Kind) Kind {
	if errors.Is(err, bybit.ErrSigningPrecondition) {
		return KindSigning
	}
	var apiErr *bybit.APIError
	if fallback == KindTransport && errors.As(err, &apiErr) {
		return KindQueryRejected
	}
	return fallback
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
