package bybit

import (
	"context"
	"errors"
	"testing"

	"bybit-trader/internal/exchange/bybit/bybittest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLeverage(t *testing.T) {
	c, srv := newTestClient(t)

	require.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 7))

	calls := srv.Calls("/v5/position/set-leverage")
	require.Len(t, calls, 1)
	assert.Equal(t, "linear", calls[0].Body["category"])
	assert.Equal(t, "7", calls[0].Body["buyLeverage"])
	assert.Equal(t, "7", calls[0].Body["sellLeverage"])
}

func TestSetLeverageNotModifiedIsSuccess(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Set(func(s *bybittest.Server) {
		s.Rejects["/v5/position/set-leverage"] = bybittest.Reject{Code: RetCodeLeverageNotModified, Msg: "leverage not modified"}
	})

	assert.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 3))
}

func TestSetLeverageRejected(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Set(func(s *bybittest.Server) {
		s.Rejects["/v5/position/set-leverage"] = bybittest.Reject{Code: 110013, Msg: "cannot set leverage"}
	})

	err := c.SetLeverage(context.Background(), "BTCUSDT", 3)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "cannot set leverage", apiErr.Msg)
}

func TestPlaceOrder(t *testing.T) {
	c, srv := newTestClient(t)

	req := NewMarketOrder("BTCUSDT", "Buy", "0.1", false)
	require.NotEmpty(t, req.OrderLinkID)

	ack, err := c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, ack.OrderID)
	assert.Equal(t, req.OrderLinkID, ack.OrderLinkID)

	calls := srv.Calls("/v5/order/create")
	require.Len(t, calls, 1)
	body := calls[0].Body
	assert.Equal(t, "linear", body["category"])
	assert.Equal(t, "Buy", body["side"])
	assert.Equal(t, "Market", body["orderType"])
	assert.Equal(t, "0.1", body["qty"])
	assert.Equal(t, "GoodTillCancel", body["timeInForce"])
	assert.Equal(t, "UNIFIED", body["accountType"])
	assert.Equal(t, "REGULAR", body["marginMode"])
	assert.Equal(t, false, body["reduceOnly"])
}

func TestPlaceOrderRejected(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Set(func(s *bybittest.Server) {
		s.Rejects["/v5/order/create"] = bybittest.Reject{Code: 110007, Msg: "ab not enough for new order"}
	})

	_, err := c.PlaceOrder(context.Background(), NewMarketOrder("BTCUSDT", "Sell", "0.1", true))
	require.Error(t, err)
	assert.Equal(t, "ab not enough for new order", ExchangeMessage(err))
}

func TestSetTradingStop(t *testing.T) {
	c, srv := newTestClient(t)

	err := c.SetTradingStop(context.Background(), TradingStop{
		Symbol:      "BTCUSDT",
		TakeProfit:  "52000.00",
		StopLoss:    "49000.00",
		PositionIdx: 1,
	})
	require.NoError(t, err)

	calls := srv.Calls("/v5/position/trading-stop")
	require.Len(t, calls, 1)
	assert.Equal(t, "linear", calls[0].Body["category"])
	assert.Equal(t, "52000.00", calls[0].Body["takeProfit"])
	assert.Equal(t, "49000.00", calls[0].Body["stopLoss"])
	assert.Equal(t, 1.0, calls[0].Body["positionIdx"])
}
