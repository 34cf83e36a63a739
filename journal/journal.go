// Package journal persists signal evaluations and submitted orders to a
// local sqlite database for post-session analysis.
package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quantumfx/logger"
	"quantumfx/metrics"
	"quantumfx/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	price REAL NOT NULL,
	entropy REAL NOT NULL,
	spin REAL NOT NULL,
	confidence REAL NOT NULL,
	signal TEXT NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals (symbol, ts);

CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	volume REAL NOT NULL,
	price REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	comment TEXT NOT NULL
);
`

// Journal writes append-only records. Write failures are logged and counted
// but never propagated: journaling must not interrupt the trading loop.
type Journal struct {
	db  *sql.DB
	log logger.Logger
}

// Open creates (or opens) the journal database at path.
func Open(path string, log logger.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, log: log}, nil
}

// RecordSignal persists one signal evaluation.
func (j *Journal) RecordSignal(rec types.SignalRecord) {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.db.Exec(
		`INSERT INTO signals (ts, symbol, price, entropy, spin, confidence, signal, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), rec.Symbol, rec.Price, rec.Entropy, rec.Spin, rec.Confidence,
		string(rec.Signal), rec.Reason,
	)
	if err != nil {
		metrics.JournalErrors.Inc()
		j.log.Error("journal_signal_write_failed", logger.Err(err))
	}
}

// RecordOrder persists one submitted order.
func (j *Journal) RecordOrder(o types.Order) {
	_, err := j.db.Exec(
		`INSERT INTO orders (ts, symbol, side, volume, price, stop_loss, take_profit, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), o.Symbol, string(o.Side), o.Volume, o.Price,
		o.StopLoss, o.TakeProfit, o.Comment,
	)
	if err != nil {
		metrics.JournalErrors.Inc()
		j.log.Error("journal_order_write_failed", logger.Err(err))
	}
}

// SignalCount returns the number of journaled signals for a symbol;
// used by diagnostics and tests.
func (j *Journal) SignalCount(symbol string) (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM signals WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
