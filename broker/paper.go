package broker

import (
	"fmt"
	"sync"

	"quantumfx/logger"
	"quantumfx/types"
)

// Paper is a simple in-memory broker with perfect fills and no slippage.
// Symbol metadata is seeded up front and assumed static, as it is on a live
// connection.
type Paper struct {
	mu        sync.RWMutex
	log       logger.Logger
	leverage  float64
	equity    float64
	balance   float64
	symbols   map[string]types.SymbolInfo
	positions map[string]float64 // signed volume: positive = long
	avgPrice  map[string]float64
}

// NewPaper creates a paper broker with the supplied starting equity.
func NewPaper(startEquity, leverage float64, log logger.Logger) *Paper {
	if leverage <= 0 {
		leverage = 100
	}
	return &Paper{
		log:       log,
		leverage:  leverage,
		equity:    startEquity,
		balance:   startEquity,
		symbols:   make(map[string]types.SymbolInfo),
		positions: make(map[string]float64),
		avgPrice:  make(map[string]float64),
	}
}

// SeedSymbol registers metadata for a symbol.
func (p *Paper) SeedSymbol(info types.SymbolInfo) {
	p.mu.Lock()
	p.symbols[info.Name] = info
	p.mu.Unlock()
}

// UpdateQuote moves the bid/ask for a seeded symbol.
func (p *Paper) UpdateQuote(symbol string, bid, ask float64) {
	p.mu.Lock()
	if info, ok := p.symbols[symbol]; ok {
		info.Bid, info.Ask = bid, ask
		p.symbols[symbol] = info
	}
	p.mu.Unlock()
}

func (p *Paper) SymbolInfo(symbol string) (types.SymbolInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.symbols[symbol]
	if !ok {
		return types.SymbolInfo{}, fmt.Errorf("paper broker: unknown symbol %q", symbol)
	}
	return info, nil
}

func (p *Paper) Account() (types.AccountInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return types.AccountInfo{
		Equity:     p.equity,
		Balance:    p.balance,
		MarginFree: p.equity - p.usedMarginLocked(),
	}, nil
}

// usedMarginLocked sums notional/leverage over open positions. Caller holds
// at least a read lock.
func (p *Paper) usedMarginLocked() float64 {
	var used float64
	for sym, vol := range p.positions {
		if vol == 0 {
			continue
		}
		info := p.symbols[sym]
		notional := abs(vol) * info.ContractSize * p.avgPrice[sym]
		used += notional / p.leverage
	}
	return used
}

func (p *Paper) RequiredMargin(symbol string, volume, price float64) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.symbols[symbol]
	if !ok {
		return 0, fmt.Errorf("paper broker: unknown symbol %q", symbol)
	}
	return abs(volume) * info.ContractSize * price / p.leverage, nil
}

// Submit fills the order immediately at its reference price.
func (p *Paper) Submit(o types.Order) error {
	if o.Volume == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.symbols[o.Symbol]; !ok {
		return fmt.Errorf("paper broker: unknown symbol %q", o.Symbol)
	}

	signed := o.Volume
	if o.Side == types.SideSell {
		signed = -o.Volume
	}
	prevVol := p.positions[o.Symbol]
	newVol := prevVol + signed
	if newVol == 0 {
		delete(p.positions, o.Symbol)
		delete(p.avgPrice, o.Symbol)
	} else {
		// Volume-weighted average entry when adding in the same direction;
		// a flip resets the average to the fill price.
		if prevVol == 0 || (prevVol > 0) != (newVol > 0) {
			p.avgPrice[o.Symbol] = o.Price
		} else if (signed > 0) == (prevVol > 0) {
			p.avgPrice[o.Symbol] = (p.avgPrice[o.Symbol]*abs(prevVol) + o.Price*abs(signed)) / abs(newVol)
		}
		p.positions[o.Symbol] = newVol
	}

	p.log.Info("paper_fill",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("volume", o.Volume),
		logger.Float64("price", o.Price),
		logger.Float64("sl", o.StopLoss),
		logger.Float64("tp", o.TakeProfit),
	)
	return nil
}

func (p *Paper) OpenPositions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, vol := range p.positions {
		if vol != 0 {
			n++
		}
	}
	return n
}

func (p *Paper) Position(symbol string) (float64, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol], p.avgPrice[symbol]
}

// SetEquity adjusts the account snapshot, e.g. when replaying mark-to-market
// changes in tests.
func (p *Paper) SetEquity(equity, balance float64) {
	p.mu.Lock()
	p.equity, p.balance = equity, balance
	p.mu.Unlock()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
