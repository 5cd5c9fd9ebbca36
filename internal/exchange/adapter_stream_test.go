package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// brokenProtocol builds subscribe frames only for BTC and never builds
// unsubscribe frames.
type brokenProtocol struct {
	fakeProtocol
}

func (brokenProtocol) SubscribeMessage(n string) ([]byte, error) {
	if n != "BTCUSDT" {
		return nil, errors.New("boom")
	}
	return []byte("sub " + n), nil
}

func (brokenProtocol) UnsubscribeMessage(string) ([]byte, error) {
	return nil, errors.New("boom")
}

// frameServer accepts WebSocket connections and records every text frame.
type frameServer struct {
	mu     sync.Mutex
	frames []string
	server *httptest.Server
}

func newFrameServer(t *testing.T) *frameServer {
	fs := &frameServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fs.mu.Lock()
			fs.frames = append(fs.frames, string(data))
			fs.mu.Unlock()
		}
	}))
	return fs
}

func (fs *frameServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *frameServer) received() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.frames...)
}

func newStreamAdapter(t *testing.T, proto Protocol, restURL, wsURL string) *Adapter {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RestURL = restURL
	cfg.WSURL = wsURL
	cfg.AutoReconnect = false
	cfg.RESTRetries = 0

	a, err := NewAdapter(proto, cfg, nil)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	t.Cleanup(func() { a.Disconnect() })
	return a
}

func TestAdapter_SendFailuresReachObservers(t *testing.T) {
	stub := newRESTStub()
	defer stub.server.Close()
	ws := newFrameServer(t)
	defer ws.server.Close()

	a := newStreamAdapter(t, brokenProtocol{}, stub.server.URL, ws.url())

	var mu sync.Mutex
	var errs []error
	a.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	ctx := context.Background()
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	tests := []struct {
		name   string
		call   func() error
		wantOp string
	}{
		{
			name:   "subscribe",
			call:   func() error { return a.SubscribeToSymbol(ctx, "ETH-USDT") },
			wantOp: "subscribe",
		},
		{
			name: "unsubscribe",
			call: func() error {
				if err := a.SubscribeToSymbol(ctx, "BTC-USDT"); err != nil {
					return err
				}
				mu.Lock()
				errs = nil
				mu.Unlock()
				return a.UnsubscribeFromSymbol(ctx, "BTC-USDT")
			},
			wantOp: "unsubscribe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mu.Lock()
			errs = nil
			mu.Unlock()

			returned := tt.call()
			if KindOf(returned) != KindSubscription {
				t.Fatalf("returned = %v, want subscription error", returned)
			}

			mu.Lock()
			defer mu.Unlock()
			if len(errs) != 1 {
				t.Fatalf("reported = %v, want exactly the returned error", errs)
			}
			var e *Error
			if !errors.As(errs[0], &e) {
				t.Fatalf("reported %T, want *Error", errs[0])
			}
			if e.Kind != KindSubscription || !e.Stream || e.Op != tt.wantOp {
				t.Errorf("reported = %+v, want %s subscription error with stream=true", e, tt.wantOp)
			}
			if errs[0].Error() != returned.Error() {
				t.Errorf("reported %q, want %q", errs[0], returned)
			}
		})
	}
}

func TestAdapter_SubscribeSendsOncePerConnection(t *testing.T) {
	stub := newRESTStub()
	defer stub.server.Close()
	ws := newFrameServer(t)
	defer ws.server.Close()

	a := newStreamAdapter(t, fakeProtocol{}, stub.server.URL, ws.url())
	ctx := context.Background()

	// Subscribe while disconnected: the connect path's open hook sends
	// the only frame.
	if err := a.SubscribeToSymbol(ctx, "BTC-USDT"); err != nil {
		t.Fatalf("SubscribeToSymbol: %v", err)
	}
	// Already active on this connection.
	if err := a.SubscribeToSymbol(ctx, "BTC-USDT"); err != nil {
		t.Fatalf("second SubscribeToSymbol: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	got := ws.received()
	if len(got) != 1 || got[0] != "sub BTCUSDT" {
		t.Errorf("frames = %q, want [\"sub BTCUSDT\"]", got)
	}
}

func TestAdapter_FetchPriceTransportFailureIsAPIError(t *testing.T) {
	stub := newRESTStub()
	a := newTestAdapter(t, stub.server.URL)
	stub.server.Close()

	_, err := a.FetchPrice(context.Background(), "BTC-USDT")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("FetchPrice err = %v, want *Error", err)
	}
	if e.Kind != KindAPI {
		t.Errorf("Kind = %v, want %v", e.Kind, KindAPI)
	}
	if e.Stream {
		t.Error("Stream = true, want false for REST failures")
	}
}
