// Package feed streams live quotes from an MT5 bridge over websocket and
// pushes them into the tick handler. The bridge sends one JSON object per
// quote: {"symbol": "EURUSD", "bid": 1.1000, "ask": 1.1002, "ts": 1690000000}.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"quantumfx/config"
	"quantumfx/logger"
)

// QuoteHandler receives every parsed quote. The mid price is what the signal
// engine buffers; bid/ask feed the spread gate.
type QuoteHandler interface {
	HandleQuote(symbol string, bid, ask float64)
}

type quoteMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TS     int64   `json:"ts"`
}

// Source maintains a websocket connection to the quote stream, reconnecting
// with a fixed delay on any failure until the context is cancelled.
type Source struct {
	cfg       config.FeedConfig
	log       logger.Logger
	handler   QuoteHandler
	parseErrs int32
}

// NewSource builds a feed source; Run must be called to start streaming.
func NewSource(cfg config.FeedConfig, handler QuoteHandler, log logger.Logger) *Source {
	return &Source{cfg: cfg, log: log, handler: handler}
}

// Run connects and consumes quotes until ctx is cancelled. Connection
// failures are retried after the configured reconnect delay.
func (s *Source) Run(ctx context.Context) error {
	if s.cfg.URL == "" {
		return fmt.Errorf("feed: no url configured")
	}
	reconnect := time.Duration(s.cfg.ReconnectMs) * time.Millisecond
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("feed_disconnected", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnect):
		}
	}
}

func (s *Source) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()
	s.log.Info("feed_connected", logger.String("url", s.cfg.URL))

	readTimeout := time.Duration(s.cfg.ReadTimeoutMs) * time.Millisecond
	pingInterval := time.Duration(s.cfg.PingIntervalMs) * time.Millisecond

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg quoteMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Sampled: a malformed message must not kill the stream.
			if atomic.AddInt32(&s.parseErrs, 1)%100 == 1 {
				s.log.Warn("feed_parse_error", logger.Err(err))
			}
			continue
		}
		if msg.Symbol == "" || msg.Bid <= 0 || msg.Ask <= 0 {
			continue
		}
		s.handler.HandleQuote(msg.Symbol, msg.Bid, msg.Ask)
	}
}
