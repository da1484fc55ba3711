package bybit

import (
	"context"
	"encoding/json"
	"net/http"

	"bybit-trader/internal/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OrderRequest is the create-order body. Field order is the order signed.
type OrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce"`
	AccountType string `json:"accountType"`
	MarginMode  string `json:"marginMode"`
	ReduceOnly  bool   `json:"reduceOnly"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// NewMarketOrder fills in the fixed linear/UNIFIED/REGULAR fields and a fresh
// client order id.
func NewMarketOrder(symbol, side, qty string, reduceOnly bool) OrderRequest {
	return OrderRequest{
		Category:    common.CategoryLinear,
		Symbol:      symbol,
		Side:        side,
		OrderType:   common.OrderTypeMarket,
		Qty:         qty,
		TimeInForce: common.TimeInForceGTC,
		AccountType: common.AccountUnified,
		MarginMode:  common.MarginRegular,
		ReduceOnly:  reduceOnly,
		OrderLinkID: uuid.NewString(),
	}
}

// OrderAck is the create-order result.
type OrderAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	resp, err := c.doSigned(ctx, http.MethodPost, pathOrder, nil, req)
	if err != nil {
		return OrderAck{}, err
	}
	if err := respHasError(resp); err != nil {
		log.Warn().Err(err).
			Str("symbol", req.Symbol).
			Str("side", req.Side).
			Str("qty", req.Qty).
			Bool("reduce_only", req.ReduceOnly).
			Msg("Order rejected")
		return OrderAck{}, err
	}

	var ack OrderAck
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &ack); err != nil {
			return OrderAck{}, transportErr(pathOrder, err)
		}
	}
	if ack.OrderLinkID == "" {
		ack.OrderLinkID = req.OrderLinkID
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("qty", req.Qty).
		Str("order_id", ack.OrderID).
		Str("order_link_id", ack.OrderLinkID).
		Msg("Order accepted")
	return ack, nil
}

// TradingStop attaches take-profit and stop-loss levels to an open position.
type TradingStop struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	TakeProfit  string `json:"takeProfit"`
	StopLoss    string `json:"stopLoss"`
	PositionIdx int    `json:"positionIdx"`
}

func (c *Client) SetTradingStop(ctx context.Context, ts TradingStop) error {
	if ts.Category == "" {
		ts.Category = common.CategoryLinear
	}
	resp, err := c.doSigned(ctx, http.MethodPost, pathTradingSL, nil, ts)
	if err != nil {
		return err
	}
	if err := respHasError(resp); err != nil {
		log.Warn().Err(err).Str("symbol", ts.Symbol).Msg("Trading stop rejected")
		return err
	}
	return nil
}
