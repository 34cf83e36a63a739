// Package system runs the trading loop: it feeds quotes into the signal
// engine, keeps the drawdown tracker current, and turns tradeable signals
// into sized, levelled orders for the broker.
package system

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"quantumfx/broker"
	"quantumfx/config"
	"quantumfx/engine"
	"quantumfx/logger"
	"quantumfx/metrics"
	"quantumfx/risk"
	"quantumfx/types"
)

const heartbeatInterval = 30 * time.Second

// OrderRecorder persists submitted orders; satisfied by the journal.
type OrderRecorder interface {
	RecordOrder(types.Order)
}

// quoteSink is implemented by brokers that track quotes locally (paper).
type quoteSink interface {
	UpdateQuote(symbol string, bid, ask float64)
}

// System wires the core components together and owns the poll loop.
type System struct {
	cfg     *config.Config
	log     logger.Logger
	eng     *engine.Engine
	tracker *risk.DrawdownTracker
	sizer   *risk.Sizer
	brk     broker.Broker
	confirm *engine.ConfirmationFilter
	orders  OrderRecorder

	halted int32 // set after a hard drawdown breach; no new trades

	mu            sync.Mutex
	lastPositions map[string]float64
}

// New assembles a system from its components. confirm and orders may be nil.
func New(cfg *config.Config, eng *engine.Engine, tracker *risk.DrawdownTracker,
	sizer *risk.Sizer, brk broker.Broker, confirm *engine.ConfirmationFilter,
	orders OrderRecorder, log logger.Logger) *System {
	return &System{
		cfg:           cfg,
		log:           log,
		eng:           eng,
		tracker:       tracker,
		sizer:         sizer,
		brk:           brk,
		confirm:       confirm,
		orders:        orders,
		lastPositions: make(map[string]float64),
	}
}

// HandleQuote implements the feed handler: the mid price goes into the
// engine buffer and the confirmation filter; brokers that track quotes
// locally get the raw bid/ask.
func (s *System) HandleQuote(symbol string, bid, ask float64) {
	mid := (bid + ask) / 2
	s.eng.ProcessTick(symbol, mid)
	if s.confirm != nil {
		s.confirm.Observe(symbol, mid)
	}
	if sink, ok := s.brk.(quoteSink); ok {
		sink.UpdateQuote(symbol, bid, ask)
	}
}

// Halted reports whether new trades are blocked by a hard drawdown breach.
func (s *System) Halted() bool {
	return atomic.LoadInt32(&s.halted) == 1
}

// Run polls every configured symbol on the configured cadence until ctx is
// cancelled. Each cycle refreshes the account state, enforces drawdown
// limits, detects closed positions, and evaluates one signal per symbol.
func (s *System) Run(ctx context.Context) error {
	poll := time.Duration(s.cfg.App.PollMs) * time.Millisecond
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	s.log.Info("trading_loop_started",
		logger.Int("symbols", len(s.cfg.Symbols)),
		logger.Int("poll_ms", s.cfg.App.PollMs),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("trading_loop_stopped")
			return ctx.Err()
		case <-heartbeat.C:
			s.logHeartbeat()
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle runs one poll iteration. Exposed so tests can drive the loop
// deterministically.
func (s *System) Cycle() {
	s.updateAccount()
	s.detectCloses()
	for _, symbol := range s.cfg.SymbolNames() {
		s.evaluateSymbol(symbol)
	}
}

func (s *System) updateAccount() {
	account, err := s.brk.Account()
	if err != nil {
		s.log.Error("account_update_failed", logger.Err(err))
		return
	}
	metrics.EquityGauge.Set(account.Equity)
	s.tracker.Update(account.Equity, account.Balance)

	softHit, hardHit := s.tracker.CheckLimits(account.Equity)
	if hardHit {
		if atomic.CompareAndSwapInt32(&s.halted, 0, 1) {
			s.log.Error("trading_halted_hard_drawdown")
		}
		return
	}
	if softHit && !s.tracker.ProtectionActive() {
		s.tracker.SetProtectionActive(true)
		s.log.Warn("drawdown_protection_engaged")
	}
}

// detectCloses compares broker positions against the previous cycle and
// starts the position cooldown for any symbol that went flat.
func (s *System) detectCloses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, symbol := range s.cfg.SymbolNames() {
		vol, _ := s.brk.Position(symbol)
		if prev, ok := s.lastPositions[symbol]; ok && prev != 0 && vol == 0 {
			s.eng.RecordTradeClose(symbol)
		}
		s.lastPositions[symbol] = vol
	}
}

func (s *System) evaluateSymbol(symbol string) {
	sig, price := s.eng.GetSignal(symbol, true)
	if sig == types.Hold || price <= 0 {
		return
	}
	if s.Halted() || s.tracker.ProtectionActive() {
		s.log.Warn("trade_skipped_drawdown_protection",
			logger.String("symbol", symbol), logger.String("signal", string(sig)))
		return
	}
	info, err := s.brk.SymbolInfo(symbol)
	if err != nil {
		s.log.Error("symbol_info_failed",
			logger.String("symbol", symbol), logger.Err(err))
		return
	}
	if !s.eng.CanTrade(symbol, info, s.brk.OpenPositions()) {
		return
	}
	if s.confirm != nil && !s.confirm.Allows(symbol, sig) {
		s.log.Info("trade_vetoed_by_confirmation",
			logger.String("symbol", symbol), logger.String("signal", string(sig)))
		return
	}

	size := s.sizer.PositionSize(symbol, price, sig)
	if size <= 0 {
		return
	}
	side := types.SideBuy
	if sig == types.Sell {
		side = types.SideSell
	}
	stop, target := s.sizer.DynamicLevels(symbol, side, price)
	if stop == 0 || target == 0 {
		s.log.Error("levels_unavailable", logger.String("symbol", symbol))
		return
	}

	order := types.Order{
		Symbol:     symbol,
		Side:       side,
		Volume:     size,
		Price:      price,
		StopLoss:   stop,
		TakeProfit: target,
		Comment:    "quantum entry",
	}
	if err := s.brk.Submit(order); err != nil {
		s.log.Error("order_submit_failed",
			logger.String("symbol", symbol),
			logger.String("side", string(side)),
			logger.Float64("volume", size),
			logger.Err(err),
		)
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(symbol).Inc()
	if s.orders != nil {
		s.orders.RecordOrder(order)
	}
	s.log.Info("order_submitted",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("volume", size),
		logger.Float64("price", price),
		logger.Float64("sl", stop),
		logger.Float64("tp", target),
	)
}

func (s *System) logHeartbeat() {
	for _, h := range s.eng.Heartbeat() {
		s.log.Info("heartbeat",
			logger.String("symbol", h.Symbol),
			logger.Int("buffer", h.BufferLen),
			logger.Float64("entropy", h.Entropy),
			logger.Float64("spin", h.Spin),
			logger.Float64("confidence", h.Confidence),
			logger.Float64("volatility", h.Volatility),
		)
	}
}
