package engine

import (
	"testing"
	"time"

	"quantumfx/config"
	"quantumfx/testutils"
	"quantumfx/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Quantum: config.QuantumParams{
			BufferSize:        100,
			SpinWindow:        10,
			MinSpinSamples:    5,
			SpinThreshold:     0.25,
			SignalCooldownSec: 300,
			Entropy:           config.EntropyThresholds{BuySignal: 0.55, SellSignal: 0.45},
		},
		Risk: config.RiskParameters{
			MaxPositions:        1,
			PositionCooldownSec: 1800,
		},
		Symbols: map[string]config.SymbolOverride{"EURUSD": {}},
	}
}

// newTestEngine returns an engine with a controllable clock.
func newTestEngine(cfg *config.Config) (*Engine, *time.Time) {
	e := New(cfg, testutils.NewMockLogger())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func TestProcessTickComputesDeltaAndDirection(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	e.ProcessTick("EURUSD", 1.1000)
	e.ProcessTick("EURUSD", 1.1005)
	e.ProcessTick("EURUSD", 1.1003)

	ticks := e.buffers["EURUSD"].Ticks()
	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	if ticks[0].Delta != 0 || ticks[0].Direction != 0 {
		t.Fatalf("first tick must have zero delta/direction, got %+v", ticks[0])
	}
	if ticks[1].Direction != 1 {
		t.Fatalf("expected up direction, got %+v", ticks[1])
	}
	if ticks[2].Direction != -1 {
		t.Fatalf("expected down direction, got %+v", ticks[2])
	}
}

func TestProcessTickDropsInvalidPrice(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	e.ProcessTick("EURUSD", 0)
	e.ProcessTick("EURUSD", -1.5)
	if n := e.BufferLen("EURUSD"); n != 0 {
		t.Fatalf("invalid prices must not be buffered, got %d ticks", n)
	}
}

func TestProcessTickLazyBuffer(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	e.ProcessTick("GBPUSD", 1.2500) // not pre-configured
	if n := e.BufferLen("GBPUSD"); n != 1 {
		t.Fatalf("expected lazily created buffer with 1 tick, got %d", n)
	}
}

func TestGetSignalInsufficientBuffer(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	e.ProcessTick("EURUSD", 1.1000)
	sig, price := e.GetSignal("EURUSD", true)
	if sig != types.Hold || price != 0 {
		t.Fatalf("expected HOLD at price 0, got %v at %v", sig, price)
	}
}

func TestGetSignalEndToEndAlternating(t *testing.T) {
	cfg := testConfig()
	cfg.Quantum.MinSpinSamples = 2
	cfg.Quantum.SpinWindow = 5
	e, _ := newTestEngine(cfg)

	price := 1.1000
	last := price
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			price += 0.0005
		} else {
			price -= 0.0005
		}
		last = price
		e.ProcessTick("EURUSD", price)
	}

	sig, refPrice := e.GetSignal("EURUSD", true)
	if sig != types.Buy && sig != types.Sell && sig != types.Hold {
		t.Fatalf("unexpected signal %v", sig)
	}
	if refPrice != last {
		t.Fatalf("reference price should be the last tick (%v), got %v", last, refPrice)
	}
}

// feedTrend pushes n strictly rising ticks with constant increments, which
// drives spin and confidence to 1 and entropy towards 1.
func feedTrend(e *Engine, symbol string, n int) float64 {
	price := 1.1000
	for i := 0; i < n; i++ {
		price += 0.0010
		e.ProcessTick(symbol, price)
	}
	return price
}

func TestGetSignalBuyOnStrongUptrend(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	last := feedTrend(e, "EURUSD", 10)
	sig, price := e.GetSignal("EURUSD", true)
	if sig != types.Buy {
		t.Fatalf("expected BUY on uniform uptrend, got %v", sig)
	}
	if price != last {
		t.Fatalf("expected reference price %v, got %v", last, price)
	}
}

func TestGetSignalCooldownIdempotence(t *testing.T) {
	e, now := newTestEngine(testConfig())
	feedTrend(e, "EURUSD", 10)

	if sig, _ := e.GetSignal("EURUSD", true); sig != types.Buy {
		t.Fatalf("setup: expected BUY, got %v", sig)
	}
	*now = now.Add(1 * time.Second)
	if sig, _ := e.GetSignal("EURUSD", true); sig != types.Hold {
		t.Fatalf("expected HOLD inside cooldown regardless of thresholds, got %v", sig)
	}
	// After the cooldown expires the same data may signal again.
	*now = now.Add(300 * time.Second)
	if sig, _ := e.GetSignal("EURUSD", true); sig != types.Buy {
		t.Fatalf("expected BUY after cooldown expiry, got %v", sig)
	}
}

func TestGetSignalDiagnosticPollHasNoSideEffects(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	feedTrend(e, "EURUSD", 10)

	if sig, _ := e.GetSignal("EURUSD", false); sig != types.Buy {
		t.Fatalf("diagnostic poll should still compute BUY, got %v", sig)
	}
	// The cooldown was not stamped, so a trading call immediately after
	// must not be blocked.
	if sig, _ := e.GetSignal("EURUSD", true); sig != types.Buy {
		t.Fatalf("expected BUY on first trading call, got %v", sig)
	}
	buys, sells := e.SignalStats()
	if buys != 1 || sells != 0 {
		t.Fatalf("only the trading call should count, got buys=%d sells=%d", buys, sells)
	}
}

func TestQuantumVolatilityNeutralOnShortBuffer(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	feedTrend(e, "EURUSD", 20)
	if v := e.QuantumVolatility("EURUSD"); v != 1.0 {
		t.Fatalf("expected neutral volatility for short buffer, got %v", v)
	}
}

func TestQuantumVolatilityUptrend(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	feedTrend(e, "EURUSD", 60)
	v := e.QuantumVolatility("EURUSD")
	if v <= 1.0 || v > 2.01 {
		t.Fatalf("expected volatility in (1,2] for a strong trend, got %v", v)
	}
}

func TestCanTradeSpreadGate(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	wide := types.SymbolInfo{Name: "EURUSD", PipSize: 0.0001, Bid: 1.1000, Ask: 1.1030}
	if e.CanTrade("EURUSD", wide, 0) {
		t.Fatal("30-pip spread must fail the default 20-pip gate")
	}
	tight := types.SymbolInfo{Name: "EURUSD", PipSize: 0.0001, Bid: 1.1000, Ask: 1.1001}
	if !e.CanTrade("EURUSD", tight, 0) {
		t.Fatal("tight spread should pass")
	}
}

func TestCanTradePositionCap(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	info := types.SymbolInfo{Name: "EURUSD", PipSize: 0.0001, Bid: 1.1000, Ask: 1.1001}
	if e.CanTrade("EURUSD", info, 1) {
		t.Fatal("open position count at the cap must block new trades")
	}
}

func TestRecordTradeCloseStartsCooldown(t *testing.T) {
	e, now := newTestEngine(testConfig())
	if e.IsInCooldown("EURUSD") {
		t.Fatal("fresh engine should not be in cooldown")
	}
	e.RecordTradeClose("EURUSD")
	if !e.IsInCooldown("EURUSD") {
		t.Fatal("expected position cooldown after trade close")
	}
	*now = now.Add(1801 * time.Second)
	if e.IsInCooldown("EURUSD") {
		t.Fatal("cooldown should expire after position_cooldown seconds")
	}
}

type recordingSink struct {
	records []types.SignalRecord
}

func (r *recordingSink) RecordSignal(rec types.SignalRecord) {
	r.records = append(r.records, rec)
}

func TestRecorderReceivesEveryEvaluation(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	sink := &recordingSink{}
	e.SetRecorder(sink)

	e.GetSignal("EURUSD", true) // insufficient buffer
	feedTrend(e, "EURUSD", 10)
	e.GetSignal("EURUSD", true) // BUY

	if len(sink.records) != 2 {
		t.Fatalf("expected 2 journaled evaluations, got %d", len(sink.records))
	}
	if sink.records[0].Reason != "insufficient buffer" {
		t.Fatalf("unexpected first reason %q", sink.records[0].Reason)
	}
	if sink.records[1].Signal != types.Buy {
		t.Fatalf("expected BUY record, got %v", sink.records[1].Signal)
	}
}

func TestHeartbeatSnapshot(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	feedTrend(e, "EURUSD", 10)
	rows := e.Heartbeat()
	if len(rows) != 1 {
		t.Fatalf("expected one heartbeat row, got %d", len(rows))
	}
	h := rows[0]
	if h.Symbol != "EURUSD" || h.BufferLen != 10 {
		t.Fatalf("unexpected heartbeat row %+v", h)
	}
	if h.Volatility < 1.0 {
		t.Fatalf("volatility baseline is 1.0, got %v", h.Volatility)
	}
}
