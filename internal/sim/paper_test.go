package sim

import (
	"context"
	"path/filepath"
	"testing"

	"bybit-trader/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct{ msgs []string }

func (b *inbox) notify(msg string) { b.msgs = append(b.msgs, msg) }

func newPaper(t *testing.T, d Decider) (*PaperTrader, *inbox) {
	t.Helper()
	box := &inbox{}
	return &PaperTrader{
		Store:   state.NewPaperStore(filepath.Join(t.TempDir(), "paper_state.json")),
		Decider: d,
		Notify:  box.notify,
		Asset:   "BTC",
	}, box
}

func TestPaperRoundTrip(t *testing.T) {
	p, box := newPaper(t, scripted(Buy, Sell, Hold))

	st, err := p.Run(context.Background(), candles(100, 200, 150))
	require.NoError(t, err)

	assert.Equal(t, 200.0, st.Balance)
	assert.False(t, st.Holding)
	assert.Zero(t, st.CryptoAmount)

	require.Len(t, box.msgs, 4)
	assert.Equal(t, "Starting paper trading on historical data...", box.msgs[0])
	assert.Equal(t, "Paper BUY executed\nEntry Price: 100.00\nAmount: 1.000000 BTC", box.msgs[1])
	assert.Equal(t, "Paper SELL executed\nExit Price: 200.00\nProfit: 100.00 USDT\nNew Balance: 200.00 USDT", box.msgs[2])
	assert.Equal(t, "Paper trading finished.", box.msgs[3])

	saved, err := p.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, st, saved)
}

func TestPaperUnrealizedReport(t *testing.T) {
	p, box := newPaper(t, scripted(Buy))
	p.ReportEvery = 2

	st, err := p.Run(context.Background(), candles(100, 110, 120))
	require.NoError(t, err)
	assert.True(t, st.Holding)
	assert.Contains(t, box.msgs, "Holding... Price: 120.00, Unrealized PnL: 20.00 USDT")
	assert.NotContains(t, box.msgs, "Holding... Price: 110.00, Unrealized PnL: 10.00 USDT")
}

func TestPaperResumesSavedState(t *testing.T) {
	p, _ := newPaper(t, scripted(Sell))
	require.NoError(t, p.Store.Save(state.PaperState{Holding: true, EntryPrice: 50, CryptoAmount: 2}))

	st, err := p.Run(context.Background(), candles(100))
	require.NoError(t, err)
	assert.Equal(t, 200.0, st.Balance)
	assert.False(t, st.Holding)
}

func TestPaperIgnoresRedundantActions(t *testing.T) {
	p, _ := newPaper(t, scripted(Sell, Buy, Buy))

	st, err := p.Run(context.Background(), candles(100, 50, 25))
	require.NoError(t, err)
	assert.True(t, st.Holding)
	assert.Equal(t, 50.0, st.EntryPrice)
	assert.InDelta(t, 2, st.CryptoAmount, 1e-9)
}

func TestPaperNoData(t *testing.T) {
	p, _ := newPaper(t, scripted())
	_, err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoData)
}
