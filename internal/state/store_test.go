package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := NewPaperStore(filepath.Join(t.TempDir(), "paper.json"))

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, PaperState{Balance: 100}, st)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.json")
	s := NewRiskStore(path)

	require.NoError(t, s.Save(RiskState{PeakEquity: 1234.5}))

	st, err := NewRiskStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 1234.5, st.PeakEquity)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"peak_equity": 1234.5`)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewRiskStore(filepath.Join(dir, "risk.json"))
	require.NoError(t, s.Save(RiskState{PeakEquity: 1}))
	require.NoError(t, s.Save(RiskState{PeakEquity: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "risk.json", entries[0].Name())
}

func TestLoadBackfillsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"holding": true, "entry_price": 50000}`), 0o644))

	st, err := NewPaperStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.Balance)
	assert.True(t, st.Holding)
	assert.Equal(t, 50000.0, st.EntryPrice)
	assert.Equal(t, 0.0, st.CryptoAmount)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	st, err := NewRiskStore(path).Load()
	assert.Error(t, err)
	assert.Equal(t, DefaultRiskState(), st)
}

func TestSaveIntoMissingDirectory(t *testing.T) {
	s := NewRiskStore(filepath.Join(t.TempDir(), "missing", "risk.json"))
	assert.Error(t, s.Save(RiskState{PeakEquity: 1}))
}
