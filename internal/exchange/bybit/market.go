package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"bybit-trader/internal/common"
)

// Position is an exchange snapshot; it is never cached between decisions.
type Position struct {
	Symbol   string
	Side     string // Buy, Sell or "" when flat
	Size     float64
	AvgPrice float64
	LiqPrice float64
	Leverage float64
}

func (p Position) IsOpen() bool {
	return p.Size > 0 && p.Side != ""
}

// Kline is one OHLCV row as returned by /v5/market/kline.
type Kline struct {
	Start  int64 // ms
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// GetMarketPrice returns the last traded price of a linear contract.
func (c *Client) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := c.doPublic(ctx, pathTickers, Query{
		{"category", common.CategoryLinear},
		{"symbol", symbol},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	if err := respHasError(resp); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil || len(result.List) == 0 {
		return 0, fmt.Errorf("%w: empty ticker list for %s", ErrPriceUnavailable, symbol)
	}

	price, err := strconv.ParseFloat(result.List[0].LastPrice, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("%w: bad lastPrice %q", ErrPriceUnavailable, result.List[0].LastPrice)
	}
	return price, nil
}

// GetPosition returns the current position for symbol, or a zero Position
// when the exchange reports none.
func (c *Client) GetPosition(ctx context.Context, symbol string) (Position, error) {
	resp, err := c.doSigned(ctx, http.MethodGet, pathPositions, Query{
		{"category", common.CategoryLinear},
		{"symbol", symbol},
	}, nil)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrPositionQueryFailed, err)
	}
	if err := respHasError(resp); err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrPositionQueryFailed, err)
	}

	var result struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
			LiqPrice string `json:"liqPrice"`
			Leverage string `json:"leverage"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrPositionQueryFailed, err)
	}
	if len(result.List) == 0 {
		return Position{Symbol: symbol}, nil
	}

	raw := result.List[0]
	size, err := parseOptional(raw.Size)
	if err != nil {
		return Position{}, fmt.Errorf("%w: size %q", ErrPositionQueryFailed, raw.Size)
	}
	avg, err := parseOptional(raw.AvgPrice)
	if err != nil {
		return Position{}, fmt.Errorf("%w: avgPrice %q", ErrPositionQueryFailed, raw.AvgPrice)
	}
	// liqPrice and leverage are informational; blanks are common when flat.
	liq, _ := parseOptional(raw.LiqPrice)
	lev, _ := parseOptional(raw.Leverage)

	return Position{
		Symbol:   raw.Symbol,
		Side:     raw.Side,
		Size:     size,
		AvgPrice: avg,
		LiqPrice: liq,
		Leverage: lev,
	}, nil
}

// GetUSDTBalance returns the UNIFIED account's USDT wallet balance, 0 when the
// coin is not present in the wallet.
func (c *Client) GetUSDTBalance(ctx context.Context) (float64, error) {
	resp, err := c.doSigned(ctx, http.MethodGet, pathWallet, Query{
		{"accountType", common.AccountUnified},
		{"coin", common.QuoteCoin},
	}, nil)
	if err != nil {
		return 0, err
	}
	if err := respHasError(resp); err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, transportErr(pathWallet, err)
	}
	if len(result.List) == 0 {
		return 0, transportErr(pathWallet, fmt.Errorf("empty wallet list"))
	}

	for _, coin := range result.List[0].Coin {
		if coin.Coin == common.QuoteCoin {
			bal, err := strconv.ParseFloat(coin.WalletBalance, 64)
			if err != nil {
				return 0, transportErr(pathWallet, fmt.Errorf("walletBalance %q: %w", coin.WalletBalance, err))
			}
			return bal, nil
		}
	}
	return 0, nil
}

// GetKlines fetches public klines for symbol. start <= 0 lets the exchange
// pick the most recent window.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]Kline, error) {
	q := Query{
		{"category", common.CategoryLinear},
		{"symbol", symbol},
		{"interval", interval},
		{"limit", strconv.Itoa(limit)},
	}
	if !start.IsZero() {
		q = append(q, Param{"start", strconv.FormatInt(start.UnixMilli(), 10)})
	}

	resp, err := c.doPublic(ctx, pathKline, q)
	if err != nil {
		return nil, err
	}
	if err := respHasError(resp); err != nil {
		return nil, err
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, transportErr(pathKline, err)
	}

	klines := make([]Kline, 0, len(result.List))
	for _, row := range result.List {
		k, err := parseKlineRow(row)
		if err != nil {
			continue
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKlineRow(row []string) (Kline, error) {
	if len(row) < 6 {
		return Kline{}, fmt.Errorf("short kline row: %v", row)
	}
	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Kline{}, err
	}
	vals := make([]float64, 5)
	for i := range vals {
		if vals[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return Kline{}, err
		}
	}
	return Kline{Start: start, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func parseOptional(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
