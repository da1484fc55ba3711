package ohlcv

import (
	"context"
	"errors"
	"time"

	"bybit-trader/internal/exchange/bybit"
	"bybit-trader/internal/metrics"

	"github.com/rs/zerolog/log"
)

// KlineStream is a live kline feed.
type KlineStream interface {
	Stream(ctx context.Context, symbol, interval string, out chan<- bybit.StreamKline, errs chan<- error, ping time.Duration) error
}

// Follow stores every confirmed candle from stream until ctx is done.
func Follow(ctx context.Context, stream KlineStream, store *Store, symbol, interval string, m *metrics.MetricsWrapper) error {
	out := make(chan bybit.StreamKline, 64)
	errs := make(chan error, 16)

	done := make(chan error, 1)
	go func() { done <- stream.Stream(ctx, symbol, interval, out, errs, bybit.DefaultPing) }()

	for {
		select {
		case err := <-done:
			return err
		case err := <-errs:
			log.Warn().Err(err).Msg("kline stream error")
			if errors.Is(err, bybit.ErrStreamDropped) {
				m.WSReconnect()
			}
		case k := <-out:
			if !k.Confirm {
				m.KlineReceived(false)
				continue
			}
			n, err := store.Insert(ctx, []Candle{fromKline(symbol, k.Kline)})
			if err != nil {
				log.Warn().Err(err).Int64("start", k.Kline.Start).Msg("failed to store candle")
				continue
			}
			m.KlineReceived(n > 0)
			log.Debug().Int64("start", k.Kline.Start).Float64("close", k.Kline.Close).Msg("Candle stored")
		}
	}
}
