package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quantumfx/config"
	"quantumfx/testutils"
)

type capturingHandler struct {
	mu     sync.Mutex
	quotes []string
	seen   chan struct{}
	want   int
}

func newCapturingHandler(want int) *capturingHandler {
	return &capturingHandler{seen: make(chan struct{}), want: want}
}

func (h *capturingHandler) HandleQuote(symbol string, bid, ask float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quotes = append(h.quotes, symbol)
	if len(h.quotes) == h.want {
		close(h.seen)
	}
}

func (h *capturingHandler) symbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.quotes...)
}

// quoteServer upgrades the connection and writes each payload once.
func quoteServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testFeedConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		URL:            url,
		PingIntervalMs: 50,
		ReadTimeoutMs:  2000,
		ReconnectMs:    50,
	}
}

func TestRunDeliversQuotes(t *testing.T) {
	srv := quoteServer(t, []string{
		`{"symbol":"EURUSD","bid":1.1000,"ask":1.1002,"ts":1690000000}`,
		`{"symbol":"XAUUSD","bid":2300.5,"ask":2300.9,"ts":1690000001}`,
	})
	defer srv.Close()

	h := newCapturingHandler(2)
	src := NewSource(testFeedConfig(wsURL(srv)), h, testutils.NewMockLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	select {
	case <-h.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for quotes")
	}
	got := h.symbols()
	if got[0] != "EURUSD" || got[1] != "XAUUSD" {
		t.Fatalf("unexpected quote order: %v", got)
	}
}

func TestRunSkipsMalformedAndInvalidQuotes(t *testing.T) {
	srv := quoteServer(t, []string{
		`not json at all`,
		`{"symbol":"","bid":1.1,"ask":1.2}`,
		`{"symbol":"EURUSD","bid":-1,"ask":1.1002}`,
		`{"symbol":"EURUSD","bid":1.1000,"ask":1.1002}`,
	})
	defer srv.Close()

	h := newCapturingHandler(1)
	src := NewSource(testFeedConfig(wsURL(srv)), h, testutils.NewMockLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	select {
	case <-h.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the one valid quote")
	}
	if got := h.symbols(); len(got) != 1 || got[0] != "EURUSD" {
		t.Fatalf("only the valid quote should be delivered, got %v", got)
	}
}

func TestRunRequiresURL(t *testing.T) {
	src := NewSource(config.FeedConfig{}, newCapturingHandler(1), testutils.NewMockLogger())
	if err := src.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := quoteServer(t, nil)
	defer srv.Close()

	src := NewSource(testFeedConfig(wsURL(srv)), newCapturingHandler(1), testutils.NewMockLogger())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
