package ohlcv

import (
	"context"
	"errors"
	"testing"
	"time"

	"bybit-trader/internal/exchange/bybit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagedSource struct {
	pages  [][]bybit.Kline
	starts []time.Time
	err    error
}

func (p *pagedSource) GetKlines(_ context.Context, _, _ string, start time.Time, _ int) ([]bybit.Kline, error) {
	p.starts = append(p.starts, start)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.pages) == 0 {
		return nil, nil
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, nil
}

func kl(start int64, close float64) bybit.Kline {
	return bybit.Kline{Start: start, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func newTestRefresher(src KlineSource, s *Store) *Refresher {
	r := NewRefresher(src, s, "BTCUSDT", "1", 200)
	r.Pause = 0
	return r
}

func TestRefreshFromEmpty(t *testing.T) {
	s := newTestStore(t)
	src := &pagedSource{pages: [][]bybit.Kline{
		{kl(120_000, 2), kl(60_000, 1), kl(60_000, 1)},
		{kl(180_000, 3)},
	}}

	n, err := newTestRefresher(src, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, src.starts, 3)
	assert.True(t, src.starts[0].IsZero())
	assert.Equal(t, int64(180_000), src.starts[1].UnixMilli())
	assert.Equal(t, int64(240_000), src.starts[2].UnixMilli())
}

func TestRefreshResumesAfterLatest(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), []Candle{candle(600_000, 1)})
	require.NoError(t, err)

	src := &pagedSource{}
	n, err := newTestRefresher(src, s).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, src.starts, 1)
	assert.Equal(t, int64(660_000), src.starts[0].UnixMilli())
}

func TestRefreshStopsWhenNothingNewer(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), []Candle{candle(600_000, 1)})
	require.NoError(t, err)

	// the exchange keeps answering with the same old candle
	src := &pagedSource{pages: [][]bybit.Kline{{kl(600_000, 1)}, {kl(600_000, 1)}}}
	n, err := newTestRefresher(src, s).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, src.starts, 1)
}

func TestRefreshSkipsUnrealisticCloses(t *testing.T) {
	s := newTestStore(t)
	src := &pagedSource{pages: [][]bybit.Kline{{kl(60_000, 150_000), kl(120_000, 99_000)}}}

	n, err := newTestRefresher(src, s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := s.Candles(context.Background(), "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 99_000.0, all[0].Close)
}

func TestRefreshAllFilteredStops(t *testing.T) {
	s := newTestStore(t)
	src := &pagedSource{pages: [][]bybit.Kline{{kl(60_000, 200_000)}}}

	n, err := newTestRefresher(src, s).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshSourceError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	_, err := newTestRefresher(&pagedSource{err: boom}, s).Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
