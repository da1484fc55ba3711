package risk

import (
	"os"
	"path/filepath"
	"testing"

	"bybit-trader/internal/metrics"
	"bybit-trader/internal/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T, maxDD float64) (*Gate, *state.Store[state.RiskState]) {
	t.Helper()
	store := state.NewRiskStore(filepath.Join(t.TempDir(), "risk_state.json"))
	return NewGate(store, maxDD, nil), store
}

func TestFirstCallRecordsPeak(t *testing.T) {
	g, store := newGate(t, 10)

	allowed, dd, err := g.CheckDrawdown(1000)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, dd)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, st.PeakEquity)
}

func TestAbsentStateRecordsFirstEquity(t *testing.T) {
	g, store := newGate(t, 10)

	allowed, dd, err := g.CheckDrawdown(500)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, dd)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 500.0, st.PeakEquity)
}

func TestFifteenPercentDrawdownHalts(t *testing.T) {
	g, store := newGate(t, 10)
	require.NoError(t, store.Save(state.RiskState{PeakEquity: 1000}))

	allowed, dd, err := g.CheckDrawdown(850)
	require.NoError(t, err)
	assert.False(t, allowed)
	require.NotNil(t, dd)
	assert.InDelta(t, 15.0, *dd, 1e-9)

	st, _ := store.Load()
	assert.Equal(t, 1000.0, st.PeakEquity)
}

func TestDrawdownWithinLimit(t *testing.T) {
	g, store := newGate(t, 10)
	require.NoError(t, store.Save(state.RiskState{PeakEquity: 1000}))

	allowed, dd, err := g.CheckDrawdown(950)
	require.NoError(t, err)
	assert.True(t, allowed)
	require.NotNil(t, dd)
	assert.InDelta(t, 5.0, *dd, 1e-9)

	st, _ := store.Load()
	assert.Equal(t, 1000.0, st.PeakEquity, "peak must not drop")
}

func TestDrawdownBeyondLimitHalts(t *testing.T) {
	g, store := newGate(t, 10)
	require.NoError(t, store.Save(state.RiskState{PeakEquity: 1000}))

	allowed, dd, err := g.CheckDrawdown(880)
	require.NoError(t, err)
	assert.False(t, allowed)
	require.NotNil(t, dd)
	assert.InDelta(t, 12.0, *dd, 1e-9)
}

func TestDrawdownAtLimitHalts(t *testing.T) {
	g, store := newGate(t, 10)
	require.NoError(t, store.Save(state.RiskState{PeakEquity: 1000}))

	allowed, dd, err := g.CheckDrawdown(900)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.InDelta(t, 10.0, *dd, 1e-9)
}

func TestEqualEquityIsNotNewPeak(t *testing.T) {
	g, store := newGate(t, 10)
	require.NoError(t, store.Save(state.RiskState{PeakEquity: 1000}))

	allowed, dd, err := g.CheckDrawdown(1000)
	require.NoError(t, err)
	assert.True(t, allowed)
	require.NotNil(t, dd)
	assert.Equal(t, 0.0, *dd)
}

func TestPeakIsMonotonic(t *testing.T) {
	g, store := newGate(t, 50)
	for _, eq := range []float64{100, 150, 120, 160, 90} {
		_, _, err := g.CheckDrawdown(eq)
		require.NoError(t, err)
	}
	st, _ := store.Load()
	assert.Equal(t, 160.0, st.PeakEquity)
}

func TestZeroEquityWithZeroPeak(t *testing.T) {
	g, _ := newGate(t, 10)

	allowed, dd, err := g.CheckDrawdown(0)
	require.NoError(t, err)
	assert.True(t, allowed)
	require.NotNil(t, dd)
	assert.Equal(t, 0.0, *dd)
}

func TestCorruptStateFallsBackToZeroPeak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	g := NewGate(state.NewRiskStore(path), 10, nil)

	allowed, dd, err := g.CheckDrawdown(500)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, dd)

	st, err := state.NewRiskStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 500.0, st.PeakEquity)
}

func TestGateUpdatesMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	store := state.NewRiskStore(filepath.Join(t.TempDir(), "risk_state.json"))
	g := NewGate(store, 10, metrics.NewWrapper(m))

	_, _, err := g.CheckDrawdown(1000)
	require.NoError(t, err)
	_, _, err = g.CheckDrawdown(850)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, testutil.ToFloat64(m.PeakEquity))
	assert.InDelta(t, 15.0, testutil.ToFloat64(m.DrawdownPercent), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DrawdownHalts))
}

func TestDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, Drawdown(100, 0))
	assert.Equal(t, 0.0, Drawdown(120, 100))
	assert.InDelta(t, 25.0, Drawdown(75, 100), 1e-9)
	assert.InDelta(t, 100.0, Drawdown(0, 100), 1e-9)
}
