// Package engine implements the signal-generation core: per-symbol tick
// buffers, the entropy/spin statistics computed over them, and the
// BUY/SELL/HOLD decision procedure with cooldown and confidence gating.
package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"quantumfx/cache"
	"quantumfx/config"
	"quantumfx/logger"
	"quantumfx/metrics"
	"quantumfx/types"
)

const (
	// confidenceGate is the fixed minimum confidence required before any
	// non-HOLD outcome is considered.
	confidenceGate = 0.8

	// volatilityWindow is the tick window used by QuantumVolatility.
	volatilityWindow = 50

	statsCacheTTL = 60 * time.Second
	lockTimeout   = 2 * time.Second
)

// Recorder receives every signal evaluation, e.g. for journaling.
type Recorder interface {
	RecordSignal(types.SignalRecord)
}

type spinResult struct {
	spin       float64
	confidence float64
}

// Engine owns one tick buffer per symbol and turns buffered ticks into
// BUY/SELL/HOLD signals. All mutable state is guarded by a single coarse
// mutex; statistics results are cached with a short TTL so hot poll loops do
// not recompute unchanged windows.
type Engine struct {
	cfg *config.Config
	log logger.Logger

	mu          sync.Mutex
	buffers     map[string]*tickBuffer
	lastSignal  map[string]time.Time
	posCooldown map[string]time.Time
	signalStats map[types.Signal]int

	spinCache *cache.TTL
	volCache  *cache.TTL

	recorder Recorder
	now      func() time.Time
}

// New constructs an engine with one buffer per configured symbol. Buffers for
// unknown symbols are created lazily on first tick.
func New(cfg *config.Config, log logger.Logger) *Engine {
	e := &Engine{
		cfg:         cfg,
		log:         log,
		buffers:     make(map[string]*tickBuffer),
		lastSignal:  make(map[string]time.Time),
		posCooldown: make(map[string]time.Time),
		signalStats: make(map[types.Signal]int),
		spinCache:   cache.NewTTL(statsCacheTTL, 256),
		volCache:    cache.NewTTL(statsCacheTTL, 64),
		now:         time.Now,
	}
	for _, s := range cfg.SymbolNames() {
		e.buffers[s] = newTickBuffer(cfg.QuantumFor(s).BufferSize)
	}
	return e
}

// SetRecorder attaches a signal recorder; pass nil to detach.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	e.recorder = r
	e.mu.Unlock()
}

// ProcessTick appends a new tick for symbol. Non-positive prices are dropped
// without side effects. Delta and direction are computed against the previous
// buffered tick and frozen at insertion.
func (e *Engine) ProcessTick(symbol string, price float64) {
	if price <= 0 {
		e.log.Warn("tick_dropped_invalid_price",
			logger.String("symbol", symbol),
			logger.Float64("price", price),
		)
		return
	}
	e.mu.Lock()
	buf := e.buffer(symbol)
	var delta float64
	direction := 0
	if last, ok := buf.Last(); ok {
		delta = price - last.Price
		switch {
		case delta > 0:
			direction = 1
		case delta < 0:
			direction = -1
		}
	}
	buf.Append(types.Tick{Price: price, Delta: delta, Direction: direction, Time: e.now()})
	e.mu.Unlock()
	metrics.TicksProcessed.WithLabelValues(symbol).Inc()
}

// buffer returns the symbol's buffer, creating it lazily. Caller holds e.mu.
func (e *Engine) buffer(symbol string) *tickBuffer {
	buf, ok := e.buffers[symbol]
	if !ok {
		buf = newTickBuffer(e.cfg.QuantumFor(symbol).BufferSize)
		e.buffers[symbol] = buf
	}
	return buf
}

// BufferLen reports the number of ticks currently buffered for symbol.
func (e *Engine) BufferLen(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer(symbol).Len()
}

// GetSignal evaluates the window for symbol and returns the signal together
// with the reference price (the most recent tick in the evaluated window, or
// 0 when no ticks exist). Cooldown stamping and bias counters are only
// touched when forTrading is true, so diagnostic polling has no side effects.
func (e *Engine) GetSignal(symbol string, forTrading bool) (types.Signal, float64) {
	qp := e.cfg.QuantumFor(symbol)

	e.mu.Lock()
	ticks := e.buffer(symbol).Ticks()
	lastSignalAt := e.lastSignal[symbol]
	e.mu.Unlock()

	if len(ticks) < qp.MinSpinSamples {
		return e.outcome(symbol, types.Hold, 0, 0, 0, 0, "insufficient buffer", false)
	}

	window := qp.SpinWindow
	if window > len(ticks) {
		window = len(ticks)
	}
	recent := ticks[len(ticks)-window:]
	lastPrice := recent[len(recent)-1].Price

	res := e.cachedSpin(recent, qp.MinSpinSamples)
	if res.confidence < confidenceGate {
		return e.outcome(symbol, types.Hold, lastPrice, 0, res.spin, res.confidence, "low confidence", false)
	}

	cooldown := time.Duration(qp.SignalCooldownSec) * time.Second
	if e.now().Sub(lastSignalAt) < cooldown {
		return e.outcome(symbol, types.Hold, lastPrice, 0, res.spin, res.confidence, "signal cooldown", false)
	}

	entropy := Entropy(FilterDeltas(recent))
	volatility := 1 + math.Abs(res.spin)*entropy
	buyThresh, sellThresh := signalThresholds(qp.Entropy, volatility)

	switch {
	case entropy > buyThresh && res.spin > qp.SpinThreshold*res.confidence:
		return e.outcome(symbol, types.Buy, lastPrice, entropy, res.spin, res.confidence, "buy conditions met", forTrading)
	case entropy < sellThresh && res.spin < -qp.SpinThreshold*res.confidence:
		return e.outcome(symbol, types.Sell, lastPrice, entropy, res.spin, res.confidence, "sell conditions met", forTrading)
	default:
		return e.outcome(symbol, types.Hold, lastPrice, entropy, res.spin, res.confidence, "no entry conditions", false)
	}
}

// signalThresholds widens the BUY bar and tightens the SELL bar as volatility
// rises. The asymmetry is intentional directional bias control; both sides
// share the same 0.5 coefficient.
func signalThresholds(base config.EntropyThresholds, volatility float64) (buy, sell float64) {
	buy = base.BuySignal * (1 + (volatility-1)*0.5)
	sell = base.SellSignal * (1 - (volatility-1)*0.5)
	return buy, sell
}

// outcome finalizes one evaluation: stamps cooldown and bias counters for
// tradeable BUY/SELL outcomes, bumps metrics and notifies the recorder.
func (e *Engine) outcome(symbol string, sig types.Signal, price, entropy, spin, confidence float64, reason string, stamp bool) (types.Signal, float64) {
	e.mu.Lock()
	if stamp {
		e.lastSignal[symbol] = e.now()
		e.signalStats[sig]++
		e.checkBiasLocked(symbol)
	}
	rec := e.recorder
	now := e.now()
	e.mu.Unlock()

	metrics.SignalsEmitted.WithLabelValues(symbol, string(sig)).Inc()
	if rec != nil {
		rec.RecordSignal(types.SignalRecord{
			Symbol:     symbol,
			Price:      price,
			Entropy:    entropy,
			Spin:       spin,
			Confidence: confidence,
			Signal:     sig,
			Reason:     reason,
			Time:       now,
		})
	}
	return sig, price
}

// checkBiasLocked warns when the emitted signal mix is heavily one-sided.
// Caller holds e.mu.
func (e *Engine) checkBiasLocked(symbol string) {
	buys := e.signalStats[types.Buy]
	sells := e.signalStats[types.Sell]
	total := buys + sells
	if total <= 10 {
		return
	}
	buyShare := float64(buys) / float64(total)
	if buyShare > 0.8 || buyShare < 0.2 {
		e.log.Warn("signal_bias_detected",
			logger.String("symbol", symbol),
			logger.Int("buys", buys),
			logger.Int("sells", sells),
			logger.Float64("buy_share", buyShare),
		)
	}
}

// SignalStats returns the cumulative BUY/SELL counters (bias diagnostics).
func (e *Engine) SignalStats() (buys, sells int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signalStats[types.Buy], e.signalStats[types.Sell]
}

// cachedSpin memoizes the spin statistic keyed by a content hash over the
// windowed ticks, so identical windows polled repeatedly hit the cache.
func (e *Engine) cachedSpin(ticks []types.Tick, minSamples int) spinResult {
	if len(ticks) < minSamples {
		return spinResult{}
	}
	key := spinKey(ticks)
	if v, ok := e.spinCache.Get(key); ok {
		return v.(spinResult)
	}
	spin, confidence := Spin(ticks)
	res := spinResult{spin: spin, confidence: confidence}
	e.spinCache.Set(key, res)
	return res
}

func spinKey(ticks []types.Tick) string {
	h := fnv.New64a()
	var b [9]byte
	for _, t := range ticks {
		binary.LittleEndian.PutUint64(b[:8], math.Float64bits(t.Price))
		b[8] = byte(t.Direction + 1)
		h.Write(b[:])
	}
	sum := h.Sum64()
	binary.LittleEndian.PutUint64(b[:8], sum)
	return string(b[:8])
}

// QuantumVolatility returns a scalar volatility multiplier for symbol with a
// baseline of 1.0. Short buffers are neutral. The result is cached per
// symbol; if the engine lock cannot be acquired within a bounded wait, the
// neutral value is returned instead of blocking the caller.
func (e *Engine) QuantumVolatility(symbol string) float64 {
	if v, ok := e.volCache.Get(symbol); ok {
		return v.(float64)
	}
	ticks, ok := e.snapshotTicks(symbol)
	if !ok {
		return 1.0
	}
	if len(ticks) < volatilityWindow {
		return 1.0
	}
	entropy := windowEntropy(ticks, volatilityWindow)
	spin, _ := Spin(ticks)
	vol := 1 + math.Abs(spin)*entropy
	e.volCache.Set(symbol, vol)
	return vol
}

// snapshotTicks copies the symbol's buffer under a bounded lock wait.
func (e *Engine) snapshotTicks(symbol string) ([]types.Tick, bool) {
	deadline := e.now().Add(lockTimeout)
	for !e.mu.TryLock() {
		if e.now().After(deadline) {
			e.log.Warn("engine_lock_timeout", logger.String("symbol", symbol))
			return nil, false
		}
		time.Sleep(time.Millisecond)
	}
	ticks := e.buffer(symbol).Ticks()
	e.mu.Unlock()
	return ticks, true
}

// RecordTradeClose starts the position cooldown for symbol. The trading loop
// calls this when it observes a position for the symbol has been closed.
func (e *Engine) RecordTradeClose(symbol string) {
	e.mu.Lock()
	e.posCooldown[symbol] = e.now()
	e.mu.Unlock()
	e.log.Info("position_cooldown_started", logger.String("symbol", symbol))
}

// IsInCooldown reports whether the post-close position cooldown is still
// running for symbol. The signal cooldown is enforced inside GetSignal.
func (e *Engine) IsInCooldown(symbol string) bool {
	posCooldown := time.Duration(e.cfg.Risk.PositionCooldownSec) * time.Second

	e.mu.Lock()
	lastClose := e.posCooldown[symbol]
	e.mu.Unlock()

	if !lastClose.IsZero() && e.now().Sub(lastClose) < posCooldown {
		return true
	}
	return false
}

// CanTrade applies the pre-trade gates: global position cap, the position
// cooldown and the spread gate against the symbol's current quote.
func (e *Engine) CanTrade(symbol string, info types.SymbolInfo, openPositions int) bool {
	if openPositions >= e.cfg.Risk.MaxPositions {
		e.log.Warn("position_cap_reached",
			logger.String("symbol", symbol),
			logger.Int("open", openPositions),
			logger.Int("max", e.cfg.Risk.MaxPositions),
		)
		return false
	}
	if e.IsInCooldown(symbol) {
		return false
	}
	spread := info.Spread()
	maxSpread := e.cfg.MaxSpreadFor(symbol)
	if spread > maxSpread {
		e.log.Warn("spread_too_wide",
			logger.String("symbol", symbol),
			logger.Float64("spread_pips", spread),
			logger.Float64("max_pips", maxSpread),
		)
		return false
	}
	return true
}

// SymbolHealth is one row of the heartbeat snapshot.
type SymbolHealth struct {
	Symbol     string
	BufferLen  int
	Entropy    float64
	Spin       float64
	Confidence float64
	Volatility float64
}

// Heartbeat returns the current statistics snapshot for every buffered
// symbol, for periodic health logging.
func (e *Engine) Heartbeat() []SymbolHealth {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.buffers))
	for s := range e.buffers {
		symbols = append(symbols, s)
	}
	e.mu.Unlock()

	out := make([]SymbolHealth, 0, len(symbols))
	for _, symbol := range symbols {
		qp := e.cfg.QuantumFor(symbol)
		e.mu.Lock()
		buf := e.buffer(symbol)
		n := buf.Len()
		recent := buf.Tail(qp.SpinWindow)
		e.mu.Unlock()

		h := SymbolHealth{Symbol: symbol, BufferLen: n, Volatility: 1.0}
		if len(recent) >= qp.MinSpinSamples {
			h.Entropy = Entropy(FilterDeltas(recent))
			h.Spin, h.Confidence = Spin(recent)
			h.Volatility = 1 + math.Abs(h.Spin)*h.Entropy
		}
		out = append(out, h)
	}
	return out
}
