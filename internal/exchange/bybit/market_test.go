package bybit

import (
	"context"
	"strings"
	"testing"
	"time"

	"bybit-trader/internal/exchange/bybit/bybittest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMarketPrice(t *testing.T) {
	c, srv := newTestClient(t)

	price, err := c.GetMarketPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)

	calls := srv.Calls("/v5/market/tickers")
	require.Len(t, calls, 1)
	assert.Equal(t, "category=linear&symbol=BTCUSDT", calls[0].Query)
}

func TestGetMarketPriceFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *bybittest.Server)
	}{
		{"unparseable", func(s *bybittest.Server) { s.Price = "abc" }},
		{"zero", func(s *bybittest.Server) { s.Price = "0" }},
		{"nan", func(s *bybittest.Server) { s.Price = "NaN" }},
		{"inf", func(s *bybittest.Server) { s.Price = "+Inf" }},
		{"rejected", func(s *bybittest.Server) { s.Rejects["/v5/market/tickers"] = bybittest.Reject{Code: 10001, Msg: "params error"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(t)
			srv.Set(tt.setup)
			_, err := c.GetMarketPrice(context.Background(), "BTCUSDT")
			assert.ErrorIs(t, err, ErrPriceUnavailable)
		})
	}
}

func TestGetPosition(t *testing.T) {
	c, srv := newTestClient(t)

	pos, err := c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, pos.IsOpen())
	assert.Equal(t, "BTCUSDT", pos.Symbol)

	srv.Set(func(s *bybittest.Server) {
		s.Pos = &bybittest.Position{Side: "Buy", Size: "0.1", AvgPrice: "50010.5", LiqPrice: "40000", Leverage: "5"}
	})
	pos, err = c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, pos.IsOpen())
	assert.Equal(t, "Buy", pos.Side)
	assert.Equal(t, 0.1, pos.Size)
	assert.Equal(t, 50010.5, pos.AvgPrice)
	assert.Equal(t, 40000.0, pos.LiqPrice)
	assert.Equal(t, 5.0, pos.Leverage)
}

func TestGetPositionFlatEntry(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Set(func(s *bybittest.Server) {
		s.Pos = &bybittest.Position{Side: "", Size: "0", AvgPrice: "0", LiqPrice: "", Leverage: "10"}
	})

	pos, err := c.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, pos.IsOpen())
}

func TestGetPositionMalformed(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Set(func(s *bybittest.Server) {
		s.Pos = &bybittest.Position{Side: "Buy", Size: "lots"}
	})

	_, err := c.GetPosition(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrPositionQueryFailed)
}

func TestGetUSDTBalance(t *testing.T) {
	c, srv := newTestClient(t)

	bal, err := c.GetUSDTBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, bal)

	calls := srv.Calls("/v5/account/wallet-balance")
	require.Len(t, calls, 1)
	assert.Equal(t, "accountType=UNIFIED&coin=USDT", calls[0].Query)
}

func TestGetKlines(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Set(func(s *bybittest.Server) {
		s.Klines = [][]string{
			{"1700000060000", "100", "110", "90", "105", "12.5", "1300"},
			{"bad", "1", "1", "1", "1", "1", "1"},
			{"1700000000000", "99", "101", "98", "100", "3", "300"},
		}
	})

	start := time.UnixMilli(1700000000000)
	kls, err := c.GetKlines(context.Background(), "BTCUSDT", "1", start, 200)
	require.NoError(t, err)
	require.Len(t, kls, 2)
	assert.Equal(t, int64(1700000060000), kls[0].Start)
	assert.Equal(t, 105.0, kls[0].Close)
	assert.Equal(t, 12.5, kls[0].Volume)

	calls := srv.Calls("/v5/market/kline")
	require.Len(t, calls, 1)
	assert.True(t, strings.HasSuffix(calls[0].Query, "&start=1700000000000"))
}
