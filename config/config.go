// Package config loads and validates the YAML configuration and resolves the
// per-symbol parameter merge (symbol override -> global block -> default) once
// at the boundary, so no other component has to deal with partial shapes.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	App      AppConfig         `yaml:"app"`
	Quantum  QuantumParams     `yaml:"quantum_params"`
	Risk     RiskParameters    `yaml:"risk_parameters"`
	Drawdown DrawdownLimits    `yaml:"drawdown_protection"`
	PipSizes map[string]float64 `yaml:"pip_size_map"`
	Symbols  map[string]SymbolOverride `yaml:"symbols"`
	Feed     FeedConfig        `yaml:"feed"`
	Journal  JournalConfig     `yaml:"journal"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name       string `yaml:"name"`
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`
	PollMs     int    `yaml:"poll_ms"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// QuantumParams drive the signal engine.
type QuantumParams struct {
	BufferSize     int     `yaml:"buffer_size"`
	SpinWindow     int     `yaml:"spin_window"`
	MinSpinSamples int     `yaml:"min_spin_samples"`
	SpinThreshold  float64 `yaml:"spin_threshold"`
	SignalCooldownSec int  `yaml:"signal_cooldown"`
	Entropy        EntropyThresholds `yaml:"entropy_thresholds"`
}

// EntropyThresholds are the base entropy gates before volatility adjustment.
type EntropyThresholds struct {
	BuySignal  float64 `yaml:"buy_signal"`
	SellSignal float64 `yaml:"sell_signal"`
}

// TrailingStop configures trailing activation, either as a fixed pip count or
// as a percentage of the computed take-profit distance.
type TrailingStop struct {
	Enabled        bool    `yaml:"enabled"`
	ActivationMode string  `yaml:"activation_mode"` // "fixed" or "percent_tp"
	ActivationPips int     `yaml:"activation_pips"`
	TPPercentage   float64 `yaml:"tp_percentage"`
	StepPips       int     `yaml:"step_pips"`
}

// RiskParameters is the global risk block. MaxSpread and MinSLDistancePips
// are per-symbol maps with a "default" key, mirroring broker-class overrides.
type RiskParameters struct {
	RiskPercent       float64            `yaml:"risk_percent"`
	BaseSLPips        float64            `yaml:"base_sl_pips"`
	MinSLDistancePips map[string]float64 `yaml:"min_sl_distance_pips"`
	ProfitMultiplier  float64            `yaml:"profit_multiplier"`
	MaxSpread         map[string]float64 `yaml:"max_spread"`
	MaxPositions      int                `yaml:"max_positions"`
	PositionCooldownSec int              `yaml:"position_cooldown"`
	TargetPipValue    float64            `yaml:"target_pip_value"`
	MaxSizeLimit      float64            `yaml:"max_size_limit"`
	MaxGlobalExposure float64            `yaml:"max_global_exposure"`
	MarginSafety      float64            `yaml:"margin_safety"`
	TrailingStop      TrailingStop       `yaml:"trailing_stop"`
}

// DrawdownLimits are fractions of the daily high-water mark.
type DrawdownLimits struct {
	SoftLimit float64 `yaml:"soft_limit"`
	HardLimit float64 `yaml:"hard_limit"`
}

// SymbolOverride carries per-symbol overrides; nil pointers fall back to the
// global blocks.
type SymbolOverride struct {
	Quantum *QuantumOverride `yaml:"quantum_params_override"`
	Risk    *RiskOverride    `yaml:"risk_management"`
	MaxSpread *float64       `yaml:"max_spread"`
}

// QuantumOverride holds partial quantum_params overrides.
type QuantumOverride struct {
	BufferSize     *int     `yaml:"buffer_size"`
	SpinWindow     *int     `yaml:"spin_window"`
	MinSpinSamples *int     `yaml:"min_spin_samples"`
	SpinThreshold  *float64 `yaml:"spin_threshold"`
	SignalCooldownSec *int  `yaml:"signal_cooldown"`
	Entropy        *EntropyThresholds `yaml:"entropy_thresholds"`
}

// RiskOverride holds partial risk_management overrides.
type RiskOverride struct {
	RiskPercent      *float64      `yaml:"risk_percent"`
	StopLossPips     *float64      `yaml:"stop_loss_pips"`
	BaseSLPips       *float64      `yaml:"base_sl_pips"`
	ProfitMultiplier *float64      `yaml:"profit_multiplier"`
	PipSize          *float64      `yaml:"pip_size"`
	ContractSize     *float64      `yaml:"contract_size"`
	TargetPipValue   *float64      `yaml:"target_pip_value"`
	MaxSizeLimit     *float64      `yaml:"max_size_limit"`
	TrailingStop     *TrailingStop `yaml:"trailing_stop"`
}

// FeedConfig points the websocket tick source at an MT5 bridge quote stream.
type FeedConfig struct {
	URL            string `yaml:"url"`
	PingIntervalMs int    `yaml:"ping_interval_ms"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	ReconnectMs    int    `yaml:"reconnect_ms"`
}

// JournalConfig configures the sqlite signal/trade journal.
type JournalConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "quantumfx"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.PollMs == 0 {
		c.App.PollMs = 1000
	}

	if c.Quantum.BufferSize == 0 {
		c.Quantum.BufferSize = 100
	}
	if c.Quantum.SpinWindow == 0 {
		c.Quantum.SpinWindow = 20
	}
	if c.Quantum.MinSpinSamples == 0 {
		c.Quantum.MinSpinSamples = 10
	}
	if c.Quantum.SpinThreshold == 0 {
		c.Quantum.SpinThreshold = 0.25
	}
	if c.Quantum.SignalCooldownSec == 0 {
		c.Quantum.SignalCooldownSec = 300
	}
	if c.Quantum.Entropy.BuySignal == 0 {
		c.Quantum.Entropy.BuySignal = 0.55
	}
	if c.Quantum.Entropy.SellSignal == 0 {
		c.Quantum.Entropy.SellSignal = 0.45
	}

	if c.Risk.RiskPercent == 0 {
		c.Risk.RiskPercent = 0.02
	}
	if c.Risk.BaseSLPips == 0 {
		c.Risk.BaseSLPips = 150
	}
	if c.Risk.ProfitMultiplier == 0 {
		c.Risk.ProfitMultiplier = 2.0
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 1
	}
	if c.Risk.PositionCooldownSec == 0 {
		c.Risk.PositionCooldownSec = 1800
	}
	if c.Risk.TargetPipValue == 0 {
		c.Risk.TargetPipValue = 10.0
	}
	if c.Risk.MaxSizeLimit == 0 {
		c.Risk.MaxSizeLimit = 0.1
	}
	if c.Risk.MarginSafety == 0 {
		c.Risk.MarginSafety = 0.8
	}
	if c.Risk.TrailingStop.ActivationMode == "" {
		c.Risk.TrailingStop.ActivationMode = "fixed"
	}
	if c.Risk.TrailingStop.ActivationPips == 0 {
		c.Risk.TrailingStop.ActivationPips = 150
	}
	if c.Risk.TrailingStop.TPPercentage == 0 {
		c.Risk.TrailingStop.TPPercentage = 0.5
	}

	if c.Drawdown.SoftLimit == 0 {
		c.Drawdown.SoftLimit = 0.02
	}
	if c.Drawdown.HardLimit == 0 {
		c.Drawdown.HardLimit = 0.05
	}

	if c.Feed.PingIntervalMs == 0 {
		c.Feed.PingIntervalMs = 25000
	}
	if c.Feed.ReadTimeoutMs == 0 {
		c.Feed.ReadTimeoutMs = 30000
	}
	if c.Feed.ReconnectMs == 0 {
		c.Feed.ReconnectMs = 3000
	}
}

// Validate checks numeric bounds; it returns all problems joined into one
// error so a broken file surfaces everything at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Quantum.SpinWindow > c.Quantum.BufferSize {
		errs = append(errs, fmt.Sprintf("quantum_params.spin_window (%d) cannot exceed buffer_size (%d)",
			c.Quantum.SpinWindow, c.Quantum.BufferSize))
	}
	if c.Quantum.SpinThreshold < 0 || c.Quantum.SpinThreshold > 1 {
		errs = append(errs, "quantum_params.spin_threshold must be within [0,1]")
	}
	if t := c.Quantum.Entropy; t.BuySignal < 0 || t.BuySignal > 1 || t.SellSignal < 0 || t.SellSignal > 1 {
		errs = append(errs, "quantum_params.entropy_thresholds must be within [0,1]")
	}
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 0.5 {
		errs = append(errs, fmt.Sprintf("risk_parameters.risk_percent (%f) must be >0 and <=0.5", c.Risk.RiskPercent))
	}
	if c.Risk.ProfitMultiplier <= 0 {
		errs = append(errs, "risk_parameters.profit_multiplier must be positive")
	}
	if c.Risk.MarginSafety <= 0 || c.Risk.MarginSafety > 1 {
		errs = append(errs, "risk_parameters.margin_safety must be within (0,1]")
	}
	if c.Drawdown.SoftLimit <= 0 || c.Drawdown.HardLimit <= 0 {
		errs = append(errs, "drawdown_protection limits must be positive fractions")
	}
	if c.Drawdown.SoftLimit >= c.Drawdown.HardLimit {
		errs = append(errs, fmt.Sprintf("drawdown_protection.soft_limit (%f) must be below hard_limit (%f)",
			c.Drawdown.SoftLimit, c.Drawdown.HardLimit))
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("app.log_level: invalid level %q", c.App.LogLevel))
	}
	if m := c.Risk.TrailingStop.ActivationMode; m != "fixed" && m != "percent_tp" {
		errs = append(errs, fmt.Sprintf("risk_parameters.trailing_stop.activation_mode: %q is not fixed/percent_tp", m))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SymbolNames returns the configured symbols in no particular order.
func (c *Config) SymbolNames() []string {
	out := make([]string, 0, len(c.Symbols))
	for s := range c.Symbols {
		out = append(out, s)
	}
	return out
}
