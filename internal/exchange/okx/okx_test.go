package okx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/exchange"
)

func TestProtocol_SymbolRoundTrip(t *testing.T) {
	p := New()

	tests := []struct {
		in        string
		canonical string
		native    string
	}{
		{"BTC-USDT", "BTC-USDT", "BTC-USDT"},
		{"eth-usdc", "ETH-USDC", "ETH-USDC"},
		{"SOL/USDT", "SOL-USDT", "SOL-USDT"},
		{"BTCUSDT", "BTC-USDT", "BTC-USDT"},
	}

	for _, tt := range tests {
		got := p.NormalizeSymbol(tt.in)
		if got != tt.canonical {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.canonical)
		}
		if back := p.DenormalizeSymbol(got); back != tt.native {
			t.Errorf("DenormalizeSymbol(%q) = %q, want %q", got, back, tt.native)
		}
	}
}

func TestProtocol_HandleMessage(t *testing.T) {
	p := New()

	ticks, err := p.HandleMessage([]byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instType":"SPOT","instId":"BTC-USDT","last":"40050","bidPx":"40000","askPx":"40100","vol24h":"5120.3","ts":"1700000000000"}]}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}
	tk := ticks[0]
	if tk.Native != "BTC-USDT" || tk.Bid != 40000 || tk.Ask != 40100 || tk.Timestamp != 1700000000000 {
		t.Errorf("tick = %+v", tk)
	}
	if tk.Volume24h == nil || *tk.Volume24h != 5120.3 {
		t.Errorf("Volume24h = %v, want 5120.3", tk.Volume24h)
	}

	for _, data := range []string{
		"pong",
		`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"},"connId":"a4d3ae55"}`,
		`{"event":"unsubscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`,
	} {
		ticks, err := p.HandleMessage([]byte(data))
		if err != nil || len(ticks) != 0 {
			t.Errorf("HandleMessage(%s) = %v, %v; want nothing", data, ticks, err)
		}
	}

	_, err = p.HandleMessage([]byte(`{"event":"error","code":"60012","msg":"Invalid request","connId":"a4d3ae55"}`))
	var se *exchange.SubscriptionError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, want SubscriptionError", err)
	}

	_, err = p.HandleMessage([]byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","bidPx":"","askPx":"1","ts":"1"}]}`))
	if !errors.Is(err, exchange.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestProtocol_Keepalive(t *testing.T) {
	if got := string(New().Keepalive()); got != "ping" {
		t.Errorf("Keepalive() = %q, want ping", got)
	}
}

func TestProtocol_FetchTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("instId") {
		case "BTC-USDT":
			w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT","bidPx":"40000","askPx":"40100","vol24h":"1","ts":"1700000000000"}]}`))
		default:
			w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
		}
	}))
	defer server.Close()

	rest := api.NewClient(server.URL, "")
	p := New()

	tick, err := p.FetchTicker(context.Background(), rest, "BTC-USDT")
	if err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if tick.Bid != 40000 || tick.Ask != 40100 {
		t.Errorf("tick = %+v", tick)
	}

	_, err = p.FetchTicker(context.Background(), rest, "NOPE-USDT")
	var ve *exchange.VenueError
	if !errors.As(err, &ve) || ve.Code != "51001" {
		t.Errorf("err = %v, want VenueError 51001", err)
	}
}
