package risk

import (
	"math"
	"sync"

	"quantumfx/config"
	"quantumfx/logger"
	"quantumfx/types"
)

// floorBuffer lifts a stop that volatility scaling left at (or barely above)
// the configured minimum, so stops are not parked where noise trivially hits
// them.
const (
	floorTolerance = 1.05
	floorBuffer    = 1.15
)

// VolatilityProvider supplies the volatility scalar; in production this is
// the signal engine.
type VolatilityProvider interface {
	QuantumVolatility(symbol string) float64
}

// MetadataSource is the slice of the broker the sizer reads from.
type MetadataSource interface {
	SymbolInfo(symbol string) (types.SymbolInfo, error)
	Account() (types.AccountInfo, error)
	RequiredMargin(symbol string, volume, price float64) (float64, error)
}

type symbolData struct {
	info     types.SymbolInfo
	risk     config.ResolvedRisk
	lastSize float64
}

// Sizer computes position sizes and dynamic SL/TP levels. Per-symbol
// metadata and resolved risk configuration are cached at first use; every
// failure mode degrades to a logged zero/no-op return so the trading loop
// skips the trade instead of crashing.
type Sizer struct {
	cfg  *config.Config
	vol  VolatilityProvider
	src  MetadataSource
	log  logger.Logger

	mu   sync.Mutex
	data map[string]*symbolData
}

// NewSizer wires the sizer to its collaborators.
func NewSizer(cfg *config.Config, vol VolatilityProvider, src MetadataSource, log logger.Logger) *Sizer {
	return &Sizer{
		cfg:  cfg,
		vol:  vol,
		src:  src,
		log:  log,
		data: make(map[string]*symbolData),
	}
}

// symbolState resolves and caches broker metadata plus merged risk config.
func (s *Sizer) symbolState(symbol string) (*symbolData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.data[symbol]; ok {
		return d, true
	}
	info, err := s.src.SymbolInfo(symbol)
	if err != nil {
		s.log.Error("symbol_metadata_unavailable",
			logger.String("symbol", symbol), logger.Err(err))
		return nil, false
	}
	r := s.cfg.RiskFor(symbol)
	if r.PipSize <= 0 {
		r.PipSize = info.PipSize
	}
	if r.ContractSize <= 0 {
		r.ContractSize = info.ContractSize
	}
	d := &symbolData{info: info, risk: r}
	s.data[symbol] = d
	return d, true
}

// PositionSize turns the dollar risk budget into a broker-acceptable volume:
// risk amount over stop distance, normalized by pip value, clamped to the
// safety ceiling, the optional global exposure ceiling, the broker volume
// constraints, and finally the free-margin allowance. Any unresolved
// dependency yields 0.
func (s *Sizer) PositionSize(symbol string, price float64, sig types.Signal) float64 {
	d, ok := s.symbolState(symbol)
	if !ok {
		return 0
	}
	account, err := s.src.Account()
	if err != nil {
		s.log.Error("account_unavailable", logger.Err(err))
		return 0
	}
	r := d.risk

	riskAmount := account.Equity * r.RiskPercent
	slPips := s.stopPips(symbol, r)
	if slPips <= 0 {
		s.log.Error("invalid_stop_distance",
			logger.String("symbol", symbol), logger.Float64("sl_pips", slPips))
		return 0
	}
	pipValue := r.PipSize * r.ContractSize
	if pipValue <= 0 {
		s.log.Error("invalid_pip_value",
			logger.String("symbol", symbol), logger.Float64("pip_value", pipValue))
		return 0
	}

	size := (riskAmount / slPips) / pipValue
	if r.TargetPipValue > 0 {
		// Normalize so differently denominated symbols carry comparable
		// dollar volatility per unit size.
		size *= pipValue / r.TargetPipValue
	}

	if size > r.MaxSizeLimit {
		s.log.Warn("size_capped",
			logger.String("symbol", symbol),
			logger.Float64("raw", size),
			logger.Float64("cap", r.MaxSizeLimit),
		)
		size = r.MaxSizeLimit
	}

	if r.MaxGlobalExposure > 0 {
		total := size * r.ContractSize
		s.mu.Lock()
		for sym, other := range s.data {
			if sym == symbol {
				continue
			}
			total += other.lastSize * other.risk.ContractSize
		}
		s.mu.Unlock()
		if total > r.MaxGlobalExposure {
			s.log.Warn("global_exposure_exceeded",
				logger.String("symbol", symbol),
				logger.Float64("total", total),
				logger.Float64("max", r.MaxGlobalExposure),
			)
			size = 0
		}
	}

	size = s.applyBrokerLimits(symbol, d, account, size)

	s.mu.Lock()
	d.lastSize = size
	s.mu.Unlock()

	s.log.Info("position_sized",
		logger.String("symbol", symbol),
		logger.String("signal", string(sig)),
		logger.Float64("risk_amount", riskAmount),
		logger.Float64("sl_pips", slPips),
		logger.Float64("size", size),
	)
	return size
}

// applyBrokerLimits rounds to the volume step, clamps to broker min/max and
// scales down proportionally when the required margin would exceed the
// configured fraction of free margin.
func (s *Sizer) applyBrokerLimits(symbol string, d *symbolData, account types.AccountInfo, size float64) float64 {
	info := d.info
	if size <= 0 {
		return 0
	}
	size = roundToStep(size, info.VolumeStep)
	size = math.Max(size, info.VolumeMin)
	size = math.Min(size, info.VolumeMax)

	required, err := s.src.RequiredMargin(symbol, size, info.Ask)
	if err != nil {
		s.log.Error("margin_estimate_failed",
			logger.String("symbol", symbol), logger.Err(err))
		return size
	}
	maxMargin := account.MarginFree * d.risk.MarginSafety
	if required > maxMargin && required > 0 {
		safe := size * (maxMargin / required)
		safe = roundToStep(safe, info.VolumeStep)
		safe = math.Max(safe, info.VolumeMin)
		s.log.Warn("size_reduced_for_margin",
			logger.String("symbol", symbol),
			logger.Float64("from", size),
			logger.Float64("to", safe),
			logger.Float64("required", required),
			logger.Float64("allowed", maxMargin),
		)
		size = safe
	}
	return size
}

// stopPips derives the volatility-adjusted stop distance in pips.
func (s *Sizer) stopPips(symbol string, r config.ResolvedRisk) float64 {
	volatility := 1.0
	if s.vol != nil {
		volatility = s.vol.QuantumVolatility(symbol)
	}
	factor := math.Min(volatility, r.VolatilityCeiling)
	adjusted := r.BaseSLPips * factor
	if adjusted <= r.MinSLPips*floorTolerance {
		return math.Round(r.MinSLPips * floorBuffer)
	}
	return math.Round(math.Max(adjusted, r.MinSLPips))
}

// DynamicLevels computes the stop and take-profit prices for an entry at
// entry on the given side, rounded to the instrument's decimal precision.
// The take-profit distance is the stop distance times the profit multiplier.
func (s *Sizer) DynamicLevels(symbol string, side types.Side, entry float64) (stop, target float64) {
	d, ok := s.symbolState(symbol)
	if !ok {
		return 0, 0
	}
	r := d.risk

	slPips := s.stopPips(symbol, r)
	tpPips := math.Round(slPips * r.ProfitMultiplier)

	if side == types.SideBuy {
		stop = entry - slPips*r.PipSize
		target = entry + tpPips*r.PipSize
	} else {
		stop = entry + slPips*r.PipSize
		target = entry - tpPips*r.PipSize
	}
	stop = roundToDigits(stop, d.info.Digits)
	target = roundToDigits(target, d.info.Digits)

	s.log.Info("levels_computed",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("entry", entry),
		logger.Float64("sl_pips", slPips),
		logger.Float64("tp_pips", tpPips),
		logger.Float64("sl_price", stop),
		logger.Float64("tp_price", target),
	)
	return stop, target
}

// TrailingActivationPips resolves the trailing-stop activation distance:
// either a fixed pip count or a percentage of the computed take-profit
// distance.
func (s *Sizer) TrailingActivationPips(symbol string) float64 {
	d, ok := s.symbolState(symbol)
	if !ok {
		return 0
	}
	r := d.risk
	if r.TrailingStop.ActivationMode == "percent_tp" {
		tpPips := math.Round(s.stopPips(symbol, r) * r.ProfitMultiplier)
		return math.Round(tpPips * r.TrailingStop.TPPercentage)
	}
	return float64(r.TrailingStop.ActivationPips)
}

func roundToStep(size, step float64) float64 {
	if step <= 0 {
		return size
	}
	return math.Round(size/step) * step
}

func roundToDigits(v float64, digits int) float64 {
	if digits <= 0 {
		return v
	}
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}
