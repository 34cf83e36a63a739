package config

import "strings"

// InstrumentClass groups symbols by broker asset class; it drives the
// volatility ceiling and the stop-distance fallbacks.
type InstrumentClass int

const (
	ClassForex InstrumentClass = iota
	ClassIndex
	ClassMetal
	ClassCrypto
	ClassOther
)

var (
	indexSymbols = map[string]bool{
		"SP500": true, "NAS100": true, "US30": true,
		"DAX40": true, "FTSE100": true, "JP225": true,
	}
	metalSymbols = map[string]bool{"XAUUSD": true, "XAGUSD": true}
	forexSymbols = map[string]bool{
		"EURUSD": true, "USDJPY": true, "GBPUSD": true, "USDCHF": true,
		"AUDUSD": true, "USDCAD": true, "NZDUSD": true,
	}
	cryptoSymbols = map[string]bool{"BTCUSD": true, "ETHUSD": true}
)

// Classify maps a broker symbol to its instrument class. Broker suffixes
// ("XAUUSD.raw") are stripped before lookup.
func Classify(symbol string) InstrumentClass {
	base := symbol
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	switch {
	case forexSymbols[base]:
		return ClassForex
	case indexSymbols[base]:
		return ClassIndex
	case metalSymbols[base]:
		return ClassMetal
	case cryptoSymbols[base]:
		return ClassCrypto
	default:
		return ClassOther
	}
}

// ResolvedRisk is the fully merged per-symbol risk configuration.
type ResolvedRisk struct {
	RiskPercent      float64
	BaseSLPips       float64
	MinSLPips        float64
	ProfitMultiplier float64
	PipSize          float64
	ContractSize     float64
	TargetPipValue   float64
	MaxSizeLimit     float64
	MaxGlobalExposure float64
	MarginSafety     float64
	TrailingStop     TrailingStop
	VolatilityCeiling float64
}

// QuantumFor merges the symbol's quantum_params_override on top of the global
// block.
func (c *Config) QuantumFor(symbol string) QuantumParams {
	qp := c.Quantum
	ov, ok := c.Symbols[symbol]
	if !ok || ov.Quantum == nil {
		return qp
	}
	o := ov.Quantum
	if o.BufferSize != nil {
		qp.BufferSize = *o.BufferSize
	}
	if o.SpinWindow != nil {
		qp.SpinWindow = *o.SpinWindow
	}
	if o.MinSpinSamples != nil {
		qp.MinSpinSamples = *o.MinSpinSamples
	}
	if o.SpinThreshold != nil {
		qp.SpinThreshold = *o.SpinThreshold
	}
	if o.SignalCooldownSec != nil {
		qp.SignalCooldownSec = *o.SignalCooldownSec
	}
	if o.Entropy != nil {
		qp.Entropy = *o.Entropy
	}
	return qp
}

// RiskFor merges the symbol's risk_management override on top of the global
// risk_parameters block and resolves every fallback chain. Stop-distance
// resolution order: symbol stop_loss_pips override, then the
// min_sl_distance_pips map (exact symbol, then "default"), then an instrument
// class fallback.
func (c *Config) RiskFor(symbol string) ResolvedRisk {
	r := ResolvedRisk{
		RiskPercent:       c.Risk.RiskPercent,
		BaseSLPips:        c.Risk.BaseSLPips,
		ProfitMultiplier:  c.Risk.ProfitMultiplier,
		ContractSize:      1.0,
		TargetPipValue:    c.Risk.TargetPipValue,
		MaxSizeLimit:      c.Risk.MaxSizeLimit,
		MaxGlobalExposure: c.Risk.MaxGlobalExposure,
		MarginSafety:      c.Risk.MarginSafety,
		TrailingStop:      c.Risk.TrailingStop,
	}
	r.PipSize = c.pipSizeFor(symbol)
	r.MinSLPips = c.minSLFor(symbol)

	switch Classify(symbol) {
	case ClassMetal, ClassIndex:
		r.VolatilityCeiling = 1.5
	default:
		r.VolatilityCeiling = 1.2
	}

	ov, ok := c.Symbols[symbol]
	if !ok || ov.Risk == nil {
		return r
	}
	o := ov.Risk
	if o.RiskPercent != nil {
		r.RiskPercent = *o.RiskPercent
	}
	if o.StopLossPips != nil {
		r.MinSLPips = *o.StopLossPips
	}
	if o.BaseSLPips != nil {
		r.BaseSLPips = *o.BaseSLPips
	}
	if o.ProfitMultiplier != nil {
		r.ProfitMultiplier = *o.ProfitMultiplier
	}
	if o.PipSize != nil {
		r.PipSize = *o.PipSize
	}
	if o.ContractSize != nil {
		r.ContractSize = *o.ContractSize
	}
	if o.TargetPipValue != nil {
		r.TargetPipValue = *o.TargetPipValue
	}
	if o.MaxSizeLimit != nil {
		r.MaxSizeLimit = *o.MaxSizeLimit
	}
	if o.TrailingStop != nil {
		r.TrailingStop = *o.TrailingStop
	}
	return r
}

// MaxSpreadFor resolves the spread gate: symbol override, then the global
// max_spread map (exact symbol, then "default"), then 20 pips.
func (c *Config) MaxSpreadFor(symbol string) float64 {
	if ov, ok := c.Symbols[symbol]; ok && ov.MaxSpread != nil {
		return *ov.MaxSpread
	}
	if c.Risk.MaxSpread != nil {
		if v, ok := c.Risk.MaxSpread[symbol]; ok {
			return v
		}
		if v, ok := c.Risk.MaxSpread["default"]; ok {
			return v
		}
	}
	return 20
}

func (c *Config) pipSizeFor(symbol string) float64 {
	if c.PipSizes != nil {
		if v, ok := c.PipSizes[symbol]; ok {
			return v
		}
		if v, ok := c.PipSizes["default"]; ok {
			return v
		}
	}
	return 0.0001
}

func (c *Config) minSLFor(symbol string) float64 {
	if c.Risk.MinSLDistancePips != nil {
		if v, ok := c.Risk.MinSLDistancePips[symbol]; ok {
			return v
		}
		if v, ok := c.Risk.MinSLDistancePips["default"]; ok {
			return v
		}
	}
	switch Classify(symbol) {
	case ClassForex:
		return 250
	case ClassIndex:
		return 400
	case ClassMetal:
		return 800
	case ClassCrypto:
		return 1200
	default:
		return 300
	}
}
