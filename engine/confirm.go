package engine

import (
	"math"
	"sync"

	"github.com/evdnx/goti"

	"quantumfx/logger"
	"quantumfx/types"
)

// ConfirmationFilter aggregates ticks into pseudo-bars and maintains one
// indicator suite per symbol. It acts as a veto on tradeable signals: a BUY
// is blocked while the oscillators show a bearish crossover and vice versa.
// Indicator errors (warm-up, degenerate input) never block a trade; the
// filter degrades to allowing everything.
type ConfirmationFilter struct {
	mu          sync.Mutex
	log         logger.Logger
	ticksPerBar int
	suites      map[string]*goti.IndicatorSuite
	bars        map[string]*barAccumulator
}

type barAccumulator struct {
	high, low, close float64
	count            int
}

// NewConfirmationFilter builds a filter that forms one bar out of every
// ticksPerBar consecutive ticks.
func NewConfirmationFilter(ticksPerBar int, log logger.Logger) *ConfirmationFilter {
	if ticksPerBar <= 0 {
		ticksPerBar = 5
	}
	return &ConfirmationFilter{
		log:         log,
		ticksPerBar: ticksPerBar,
		suites:      make(map[string]*goti.IndicatorSuite),
		bars:        make(map[string]*barAccumulator),
	}
}

func newSuite() (*goti.IndicatorSuite, error) {
	ic := goti.DefaultConfig()
	ic.RSIOverbought = 70
	ic.RSIOversold = 30
	ic.MFIOverbought = 80
	ic.MFIOversold = 20
	return goti.NewIndicatorSuiteWithConfig(ic)
}

// Observe feeds one tick into the symbol's bar accumulator and, when the bar
// completes, into the indicator suite. Volume is the tick count, the only
// activity measure available on a pure quote stream.
func (f *ConfirmationFilter) Observe(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bar, ok := f.bars[symbol]
	if !ok {
		bar = &barAccumulator{high: price, low: price}
		f.bars[symbol] = bar
	}
	if bar.count == 0 {
		bar.high, bar.low = price, price
	}
	bar.high = math.Max(bar.high, price)
	bar.low = math.Min(bar.low, price)
	bar.close = price
	bar.count++
	if bar.count < f.ticksPerBar {
		return
	}

	suite, ok := f.suites[symbol]
	if !ok {
		var err error
		suite, err = newSuite()
		if err != nil {
			f.log.Warn("confirmation_suite_init_failed",
				logger.String("symbol", symbol), logger.Err(err))
			bar.count = 0
			return
		}
		f.suites[symbol] = suite
	}
	if err := suite.Add(bar.high, bar.low, bar.close, float64(bar.count)); err != nil {
		f.log.Warn("confirmation_suite_add_failed",
			logger.String("symbol", symbol), logger.Err(err))
	}
	bar.count = 0
}

// Allows reports whether the oscillators agree with taking sig on symbol.
// HOLD is always allowed; an unknown or cold suite never vetoes.
func (f *ConfirmationFilter) Allows(symbol string, sig types.Signal) bool {
	if sig == types.Hold {
		return true
	}
	f.mu.Lock()
	suite, ok := f.suites[symbol]
	f.mu.Unlock()
	if !ok {
		return true
	}

	switch sig {
	case types.Buy:
		if bear, err := suite.GetRSI().IsBearishCrossover(); err == nil && bear {
			return false
		}
		if bear, err := suite.GetMFI().IsBearishCrossover(); err == nil && bear {
			return false
		}
	case types.Sell:
		if bull, err := suite.GetRSI().IsBullishCrossover(); err == nil && bull {
			return false
		}
		if bull, err := suite.GetMFI().IsBullishCrossover(); err == nil && bull {
			return false
		}
	}
	return true
}
