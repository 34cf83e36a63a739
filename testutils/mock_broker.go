package testutils

import (
	"fmt"
	"sync"

	"quantumfx/types"
)

// MockBroker implements the broker interface in-memory and records every
// submitted order for assertions. Margin is linear in volume so tests can
// predict the margin clamp exactly.
type MockBroker struct {
	mu            sync.RWMutex
	AccountInfo   types.AccountInfo
	MarginPerUnit float64 // required margin per unit of volume
	symbols       map[string]types.SymbolInfo
	positions     map[string]float64
	orders        []types.Order

	FailSymbolInfo bool
	FailAccount    bool
}

// NewMockBroker creates a broker with the supplied account snapshot.
func NewMockBroker(acct types.AccountInfo) *MockBroker {
	return &MockBroker{
		AccountInfo: acct,
		symbols:     make(map[string]types.SymbolInfo),
		positions:   make(map[string]float64),
	}
}

// SeedSymbol registers metadata for a symbol.
func (m *MockBroker) SeedSymbol(info types.SymbolInfo) {
	m.mu.Lock()
	m.symbols[info.Name] = info
	m.mu.Unlock()
}

func (m *MockBroker) SymbolInfo(symbol string) (types.SymbolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailSymbolInfo {
		return types.SymbolInfo{}, fmt.Errorf("mock broker: symbol info unavailable")
	}
	info, ok := m.symbols[symbol]
	if !ok {
		return types.SymbolInfo{}, fmt.Errorf("mock broker: unknown symbol %q", symbol)
	}
	return info, nil
}

func (m *MockBroker) Account() (types.AccountInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailAccount {
		return types.AccountInfo{}, fmt.Errorf("mock broker: account unavailable")
	}
	return m.AccountInfo, nil
}

func (m *MockBroker) RequiredMargin(symbol string, volume, price float64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.MarginPerUnit > 0 {
		return volume * m.MarginPerUnit, nil
	}
	info, ok := m.symbols[symbol]
	if !ok {
		return 0, fmt.Errorf("mock broker: unknown symbol %q", symbol)
	}
	return volume * info.ContractSize * price / 100, nil
}

func (m *MockBroker) Submit(o types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	signed := o.Volume
	if o.Side == types.SideSell {
		signed = -o.Volume
	}
	m.positions[o.Symbol] += signed
	m.orders = append(m.orders, o)
	return nil
}

func (m *MockBroker) OpenPositions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, vol := range m.positions {
		if vol != 0 {
			n++
		}
	}
	return n
}

func (m *MockBroker) Position(symbol string) (float64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol], 0
}

// Orders returns a copy of all submitted orders.
func (m *MockBroker) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}
