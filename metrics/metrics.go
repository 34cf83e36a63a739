package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumfx_ticks_processed_total",
			Help: "Total number of ticks appended to the per-symbol buffers.",
		},
		[]string{"symbol"},
	)

	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumfx_signals_total",
			Help: "Signals emitted by the engine (by symbol and outcome).",
		},
		[]string{"symbol", "signal"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumfx_orders_submitted_total",
			Help: "Orders handed to the executor (by symbol).",
		},
		[]string{"symbol"},
	)

	DrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantumfx_daily_drawdown_pct",
			Help: "Current drawdown against the daily high-water mark (negative when underwater).",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantumfx_equity",
			Help: "Last reported account equity.",
		},
	)

	JournalErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantumfx_journal_errors_total",
			Help: "Failed journal writes.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksProcessed,
		SignalsEmitted,
		OrdersSubmitted,
		DrawdownPct,
		EquityGauge,
		JournalErrors,
	)
}
