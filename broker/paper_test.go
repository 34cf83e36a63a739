package broker

import (
	"math"
	"testing"

	"quantumfx/testutils"
	"quantumfx/types"
)

func eurusd() types.SymbolInfo {
	return types.SymbolInfo{
		Name:         "EURUSD",
		PipSize:      0.0001,
		ContractSize: 100000,
		Digits:       5,
		VolumeStep:   0.01,
		VolumeMin:    0.01,
		VolumeMax:    100,
		Bid:          1.0999,
		Ask:          1.1001,
	}
}

func newTestPaper() *Paper {
	p := NewPaper(10000, 100, testutils.NewMockLogger())
	p.SeedSymbol(eurusd())
	return p
}

func TestPaperUnknownSymbol(t *testing.T) {
	p := newTestPaper()
	if _, err := p.SymbolInfo("GBPUSD"); err == nil {
		t.Fatal("expected error for unseeded symbol")
	}
	if err := p.Submit(types.Order{Symbol: "GBPUSD", Side: types.SideBuy, Volume: 0.1}); err == nil {
		t.Fatal("expected submit to fail for unseeded symbol")
	}
}

func TestPaperUpdateQuote(t *testing.T) {
	p := newTestPaper()
	p.UpdateQuote("EURUSD", 1.2000, 1.2002)
	info, err := p.SymbolInfo("EURUSD")
	if err != nil {
		t.Fatalf("symbol info: %v", err)
	}
	if info.Bid != 1.2000 || info.Ask != 1.2002 {
		t.Fatalf("quote not applied: %+v", info)
	}
}

func TestPaperFillAndAverageEntry(t *testing.T) {
	p := newTestPaper()
	if err := p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.1, Price: 1.1000}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	vol, avg := p.Position("EURUSD")
	if vol != 0.1 || avg != 1.1000 {
		t.Fatalf("expected 0.1 @ 1.1000, got %v @ %v", vol, avg)
	}
	if p.OpenPositions() != 1 {
		t.Fatalf("expected one open position, got %d", p.OpenPositions())
	}

	// Adding in the same direction volume-weights the entry.
	if err := p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.1, Price: 1.2000}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	vol, avg = p.Position("EURUSD")
	if math.Abs(vol-0.2) > 1e-9 || math.Abs(avg-1.1500) > 1e-9 {
		t.Fatalf("expected 0.2 @ 1.1500, got %v @ %v", vol, avg)
	}
}

func TestPaperCloseAndFlip(t *testing.T) {
	p := newTestPaper()
	p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.1, Price: 1.1000})
	p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideSell, Volume: 0.1, Price: 1.1050})
	if vol, _ := p.Position("EURUSD"); vol != 0 {
		t.Fatalf("expected flat position, got %v", vol)
	}
	if p.OpenPositions() != 0 {
		t.Fatalf("expected no open positions, got %d", p.OpenPositions())
	}

	// A flip resets the average entry to the fill price.
	p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.1, Price: 1.1000})
	p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideSell, Volume: 0.3, Price: 1.1100})
	vol, avg := p.Position("EURUSD")
	if math.Abs(vol+0.2) > 1e-9 || avg != 1.1100 {
		t.Fatalf("expected -0.2 @ 1.1100, got %v @ %v", vol, avg)
	}
}

func TestPaperRequiredMargin(t *testing.T) {
	p := newTestPaper()
	got, err := p.RequiredMargin("EURUSD", 0.1, 1.1000)
	if err != nil {
		t.Fatalf("required margin: %v", err)
	}
	// 0.1 * 100000 * 1.1 / 100 leverage.
	if math.Abs(got-110) > 1e-9 {
		t.Fatalf("expected margin 110, got %v", got)
	}
}

func TestPaperAccountReflectsUsedMargin(t *testing.T) {
	p := newTestPaper()
	before, _ := p.Account()
	if before.MarginFree != 10000 {
		t.Fatalf("expected full free margin, got %v", before.MarginFree)
	}
	p.Submit(types.Order{Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.1, Price: 1.1000})
	after, _ := p.Account()
	if math.Abs(after.MarginFree-(10000-110)) > 1e-9 {
		t.Fatalf("expected free margin 9890, got %v", after.MarginFree)
	}
	if after.Equity != 10000 || after.Balance != 10000 {
		t.Fatalf("fills must not move equity/balance, got %+v", after)
	}
}
