package types

import "time"

// Signal is the outcome of one engine evaluation cycle.
type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Tick is a single observed quote. Delta and Direction are computed against
// the previous tick at insertion time and never recomputed afterwards.
type Tick struct {
	Price     float64
	Delta     float64
	Direction int // sign of Delta: -1, 0, +1
	Time      time.Time
}

// Order is a request handed to the executor. Zero SL/TP means "not set".
type Order struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64 // entry reference; 0 = market
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// SymbolInfo is the broker metadata the risk sizer needs. Broker metadata is
// assumed static while connected, so callers may cache it per symbol.
type SymbolInfo struct {
	Name         string
	PipSize      float64
	ContractSize float64
	Digits       int
	VolumeStep   float64
	VolumeMin    float64
	VolumeMax    float64
	Bid          float64
	Ask          float64
}

// Spread returns the current bid/ask spread expressed in pips.
func (s SymbolInfo) Spread() float64 {
	if s.PipSize <= 0 {
		return 0
	}
	return (s.Ask - s.Bid) / s.PipSize
}

// AccountInfo is a snapshot of the trading account state.
type AccountInfo struct {
	Equity     float64
	Balance    float64
	MarginFree float64
}

// SignalRecord captures one signal evaluation for the journal.
type SignalRecord struct {
	Symbol     string
	Price      float64
	Entropy    float64
	Spin       float64
	Confidence float64
	Signal     Signal
	Reason     string
	Time       time.Time
}
