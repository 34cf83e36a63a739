// Package risk holds the drawdown tracker and the position sizer: everything
// between a raw BUY/SELL signal and a concrete, broker-acceptable order.
package risk

import (
	"sync"
	"time"

	"quantumfx/config"
	"quantumfx/logger"
	"quantumfx/metrics"
)

// checkInterval rate-limits CheckLimits so hot loops don't spam logs.
const checkInterval = 5 * time.Second

// DrawdownTracker tracks the daily equity high-water mark and compares the
// current drawdown against configured soft/hard limits. The whole state
// resets at the local calendar-day boundary.
type DrawdownTracker struct {
	mu sync.Mutex

	log  logger.Logger
	soft float64
	hard float64

	dailyHigh      float64
	currentEquity  float64
	currentBalance float64
	lastUpdateDate time.Time // truncated to a local calendar date

	protectionActive bool
	maxDailyDrawdown float64 // most negative drawdown seen today
	lastCheck        time.Time

	now func() time.Time
}

// NewDrawdownTracker seeds the tracker with the account's initial equity.
func NewDrawdownTracker(initialEquity float64, limits config.DrawdownLimits, log logger.Logger) *DrawdownTracker {
	t := &DrawdownTracker{
		log:            log,
		soft:           limits.SoftLimit,
		hard:           limits.HardLimit,
		dailyHigh:      initialEquity,
		currentEquity:  initialEquity,
		currentBalance: initialEquity,
		now:            time.Now,
	}
	t.lastUpdateDate = dateOf(t.now())
	return t
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Update rolls the high-water mark forward with the latest equity/balance.
// On the first update of a new local day the whole state resets: the high
// becomes max(equity, balance) and protection is cleared.
func (t *DrawdownTracker) Update(equity, balance float64) {
	today := dateOf(t.now())
	t.mu.Lock()
	defer t.mu.Unlock()

	if !today.Equal(t.lastUpdateDate) {
		t.dailyHigh = max2(equity, balance)
		t.currentEquity = equity
		t.currentBalance = balance
		t.lastUpdateDate = today
		t.protectionActive = false
		t.maxDailyDrawdown = 0
		t.log.Info("drawdown_daily_reset", logger.Float64("daily_high", t.dailyHigh))
		return
	}
	t.dailyHigh = max2(t.dailyHigh, max2(equity, balance))
	t.currentEquity = equity
	t.currentBalance = balance
}

// CheckLimits computes the drawdown against the daily high and reports
// (soft, hard) breaches. Calls within five seconds of the previous one are
// throttled and report no breach. A zero high-water mark is treated as a
// measurement glitch, not a crash.
func (t *DrawdownTracker) CheckLimits(equity float64) (softHit, hardHit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastCheck) < checkInterval {
		return false, false
	}
	t.lastCheck = now

	if t.dailyHigh == 0 {
		t.log.Error("drawdown_zero_daily_high")
		return false, false
	}
	drawdownPct := (equity - t.dailyHigh) / t.dailyHigh
	if drawdownPct < t.maxDailyDrawdown {
		t.maxDailyDrawdown = drawdownPct
	}
	metrics.DrawdownPct.Set(drawdownPct)

	softHit = drawdownPct <= -t.soft
	hardHit = drawdownPct <= -t.hard
	if hardHit {
		t.log.Error("drawdown_hard_limit_hit",
			logger.Float64("drawdown_pct", drawdownPct*100),
			logger.Float64("daily_high", t.dailyHigh),
			logger.Float64("equity", equity),
		)
	} else if softHit && !t.protectionActive {
		t.log.Warn("drawdown_soft_limit_hit",
			logger.Float64("drawdown_pct", drawdownPct*100),
			logger.Float64("max_daily_pct", t.maxDailyDrawdown*100),
		)
	}
	return softHit, hardHit
}

// ProtectionActive reports whether soft-limit protection has been latched.
func (t *DrawdownTracker) ProtectionActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protectionActive
}

// SetProtectionActive latches or clears protection. CheckLimits never sets
// this itself; the caller decides when a soft breach escalates.
func (t *DrawdownTracker) SetProtectionActive(active bool) {
	t.mu.Lock()
	t.protectionActive = active
	t.mu.Unlock()
}

// DailyHigh returns the current high-water mark.
func (t *DrawdownTracker) DailyHigh() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dailyHigh
}

// MaxDailyDrawdown returns the most negative drawdown observed today.
func (t *DrawdownTracker) MaxDailyDrawdown() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxDailyDrawdown
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
