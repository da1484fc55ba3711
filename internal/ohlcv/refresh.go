package ohlcv

import (
	"context"
	"fmt"
	"time"

	"bybit-trader/internal/common"
	"bybit-trader/internal/exchange/bybit"

	"github.com/rs/zerolog/log"
)

// KlineSource fetches historical klines.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]bybit.Kline, error)
}

// Refresher pulls klines newer than the latest stored candle until the
// exchange has nothing new.
type Refresher struct {
	Source   KlineSource
	Store    *Store
	Symbol   string
	Interval string
	Limit    int
	// MaxClose drops rows whose close exceeds it; 0 disables the filter.
	MaxClose float64
	// Pause between pages.
	Pause    time.Duration
	MaxPages int
}

func NewRefresher(src KlineSource, store *Store, symbol, interval string, limit int) *Refresher {
	return &Refresher{
		Source:   src,
		Store:    store,
		Symbol:   symbol,
		Interval: interval,
		Limit:    limit,
		MaxClose: common.DefaultMaxClose,
		Pause:    500 * time.Millisecond,
		MaxPages: 1000,
	}
}

// Run returns the number of inserted rows.
func (r *Refresher) Run(ctx context.Context) (int, error) {
	latest, ok, err := r.Store.LatestTimestamp(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for page := 0; page < r.MaxPages; page++ {
		var start time.Time
		if ok {
			start = time.UnixMilli(latest + 60_000)
		}

		kls, err := r.Source.GetKlines(ctx, r.Symbol, r.Interval, start, r.Limit)
		if err != nil {
			return total, fmt.Errorf("fetch klines: %w", err)
		}
		if len(kls) == 0 {
			log.Info().Int("inserted", total).Msg("No more new data available")
			return total, nil
		}

		candles := r.filter(kls)
		newest := int64(0)
		for _, c := range candles {
			if c.Timestamp > newest {
				newest = c.Timestamp
			}
		}
		if len(candles) == 0 || (ok && newest <= latest) {
			log.Info().Int("inserted", total).Msg("All data is up to date")
			return total, nil
		}

		n, err := r.Store.Insert(ctx, candles)
		if err != nil {
			return total, err
		}
		total += n
		latest, ok = newest, true
		log.Info().
			Int("fetched", len(candles)).
			Int("inserted", n).
			Int("total", total).
			Str("last", time.UnixMilli(latest).UTC().Format("2006-01-02 15:04:05")).
			Msg("Stored candles")

		if r.Pause > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(r.Pause):
			}
		}
	}
	return total, nil
}

func (r *Refresher) filter(kls []bybit.Kline) []Candle {
	seen := make(map[int64]bool, len(kls))
	out := make([]Candle, 0, len(kls))
	for _, k := range kls {
		if r.MaxClose > 0 && k.Close > r.MaxClose {
			continue
		}
		if seen[k.Start] {
			continue
		}
		seen[k.Start] = true
		out = append(out, fromKline(r.Symbol, k))
	}
	return out
}

func fromKline(symbol string, k bybit.Kline) Candle {
	return Candle{
		Symbol:    symbol,
		Timestamp: k.Start,
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}
}
