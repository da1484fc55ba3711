package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bybit-trader/internal/common"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	pathServerTime = "/v5/market/time"
	pathTickers    = "/v5/market/tickers"
	pathKline      = "/v5/market/kline"
	pathPositions  = "/v5/position/list"
	pathLeverage   = "/v5/position/set-leverage"
	pathOrder      = "/v5/order/create"
	pathTradingSL  = "/v5/position/trading-stop"
	pathWallet     = "/v5/account/wallet-balance"
)

type Client struct {
	key, secret, base string
	recvWindow        string
	rest              *resty.Client
	limiter           *rate.Limiter
}

// NewREST builds a v5 REST client. rps <= 0 disables client-side pacing.
func NewREST(key, secret, base string, timeout time.Duration, rps float64) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		key:        key,
		secret:     secret,
		base:       strings.TrimRight(base, "/"),
		recvWindow: common.RecvWindow,
		rest:       r,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Param is a single query parameter; Query keeps them in insertion order so
// the signed string is exactly the string sent.
type Param struct {
	Key, Value string
}

type Query []Param

func (q Query) Encode() string {
	parts := make([]string, 0, len(q))
	for _, p := range q {
		parts = append(parts, p.Key+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

// Response is the common v5 envelope.
type Response struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// ServerTime returns the exchange clock in milliseconds. Signatures are only
// valid inside the receive window of this clock, so callers must not fall
// back to local time when it fails.
func (c *Client) ServerTime(ctx context.Context) (string, error) {
	resp, err := c.doPublic(ctx, pathServerTime, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningPrecondition, err)
	}
	if resp.Time <= 0 {
		return "", fmt.Errorf("%w: missing time field", ErrSigningPrecondition)
	}
	return strconv.FormatInt(resp.Time, 10), nil
}

func (c *Client) doPublic(ctx context.Context, path string, q Query) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportErr(path, err)
	}

	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	res, err := c.rest.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, transportErr(path, err)
	}
	return decode(path, res)
}

// doSigned issues an authenticated request. GET requests sign the encoded
// query; POST requests sign the compact JSON body.
func (c *Client) doSigned(ctx context.Context, method, path string, q Query, body any) (*Response, error) {
	ts, err := c.ServerTime(ctx)
	if err != nil {
		return nil, err
	}

	var payload string
	req := c.rest.R().SetContext(ctx)
	target := c.base + path

	switch method {
	case http.MethodGet:
		payload = q.Encode()
		if payload != "" {
			target += "?" + payload
		}
	case http.MethodPost:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", path, err)
		}
		payload = string(raw)
		req.SetHeader("Content-Type", "application/json").SetBody(raw)
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}

	req.SetHeader("X-BAPI-API-KEY", c.key).
		SetHeader("X-BAPI-SIGN", Sign(c.secret, ts, c.key, c.recvWindow, payload)).
		SetHeader("X-BAPI-TIMESTAMP", ts).
		SetHeader("X-BAPI-RECV-WINDOW", c.recvWindow)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportErr(path, err)
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return nil, transportErr(path, err)
	}
	return decode(path, res)
}

func decode(path string, res *resty.Response) (*Response, error) {
	var out Response
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		log.Debug().Str("path", path).Int("status", res.StatusCode()).Str("body", res.String()).Msg("undecodable response")
		return nil, transportErr(path, fmt.Errorf("decode (status %d): %w", res.StatusCode(), err))
	}
	log.Debug().Str("path", path).Int("ret_code", out.RetCode).Str("ret_msg", out.RetMsg).Msg("bybit response")
	return &out, nil
}

func respHasError(resp *Response) error {
	if resp.RetCode != 0 {
		return &APIError{Code: resp.RetCode, Msg: resp.RetMsg}
	}
	return nil
}
