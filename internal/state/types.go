package state

import "bybit-trader/internal/common"

// RiskState holds the highest equity observed by the drawdown gate.
type RiskState struct {
	PeakEquity float64 `json:"peak_equity"`
}

func DefaultRiskState() RiskState { return RiskState{} }

func NewRiskStore(path string) *Store[RiskState] {
	return NewStore(path, DefaultRiskState)
}

// PaperState is the simulated spot account used by paper trading.
type PaperState struct {
	Balance      float64 `json:"balance"`
	Holding      bool    `json:"holding"`
	EntryPrice   float64 `json:"entry_price"`
	CryptoAmount float64 `json:"crypto_amount"`
}

func DefaultPaperState() PaperState {
	return PaperState{Balance: common.DefaultPaperFunds}
}

func NewPaperStore(path string) *Store[PaperState] {
	return NewStore(path, DefaultPaperState)
}
