package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StreamKline is one kline push. Confirm is set once the candle has closed.
type StreamKline struct {
	Symbol  string
	Kline   Kline
	Confirm bool
}

type WS struct{ url string }

func NewWS(u string) WS { return WS{u} }

// Topic returns the public kline topic for interval and symbol.
func Topic(interval, symbol string) string {
	return "kline." + interval + "." + symbol
}

// DefaultPing is the heartbeat interval Bybit recommends for public streams.
const DefaultPing = 20 * time.Second

// Stream subscribes to kline topics and forwards every update to out until
// ctx is cancelled, reconnecting with exponential backoff. A non-positive
// ping uses DefaultPing.
func (w WS) Stream(ctx context.Context, symbol, interval string, out chan<- StreamKline, errs chan<- error, ping time.Duration) error {
	if ping <= 0 {
		ping = DefaultPing
	}
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := w.streamOnce(ctx, symbol, interval, out, errs, ping)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("WebSocket connection failed, reconnecting")
			select {
			case errs <- fmt.Errorf("%w: %w", ErrStreamDropped, err):
			default:
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

type wsMessage struct {
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data"`
}

type wsKline struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

func (w WS) streamOnce(ctx context.Context, symbol, interval string, out chan<- StreamKline, errs chan<- error, ping time.Duration) error {
	log.Info().Str("url", w.url).Str("symbol", symbol).Str("interval", interval).Msg("Establishing WebSocket connection")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)

	topic := Topic(interval, symbol)
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": []string{topic}}); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	// the reader owns conn reads; this goroutine is the only writer after subscribe
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(ping)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					log.Debug().Err(err).Msg("ping failed")
					conn.Close()
					return
				}
			}
		}
	}()

	readTimeout := 2*ping + 10*time.Second
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message failed: %w", err)
		}

		var m wsMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			log.Debug().Err(err).Str("message", string(msg)).Msg("failed to parse message")
			continue
		}

		switch {
		case m.Op == "subscribe":
			if m.Success != nil && *m.Success {
				log.Info().Str("topic", topic).Msg("Subscribed")
			} else {
				return fmt.Errorf("subscribe rejected: %s", m.RetMsg)
			}
		case m.Op == "pong" || m.Op == "ping":
		case strings.HasPrefix(m.Topic, "kline."):
			kls, err := parseKlines(m.Data)
			if err != nil {
				select {
				case errs <- fmt.Errorf("parse kline: %w", err):
				default:
				}
				continue
			}
			for _, k := range kls {
				k.Symbol = symbol
				select {
				case out <- k:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func parseKlines(data json.RawMessage) ([]StreamKline, error) {
	var raw []wsKline
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]StreamKline, 0, len(raw))
	for _, r := range raw {
		vals := [5]float64{}
		for i, s := range []string{r.Open, r.High, r.Low, r.Close, r.Volume} {
			f, err := toFloat(s)
			if err != nil {
				return nil, err
			}
			vals[i] = f
		}
		out = append(out, StreamKline{
			Kline:   Kline{Start: r.Start, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]},
			Confirm: r.Confirm,
		})
	}
	return out, nil
}

func toFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse string '%s' as float: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}
