package bitget

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
		{"BTCUSDT", "BTC-USDT", "BTCUSDT"},
		{"BTCUSDT_SPBL", "BTC-USDT", "BTCUSDT"},
		{"ethusdc_spbl", "ETH-USDC", "ETHUSDC"},
		{"BTC-USDT", "BTC-USDT", "BTCUSDT"},
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

	ticks, err := p.HandleMessage([]byte(`{"action":"snapshot","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"},"data":[{"instId":"BTCUSDT","lastPr":"40050","bidPr":"40000","askPr":"40100","baseVolume":"77.1","ts":"1700000000000"}],"ts":1700000000001}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}
	if tk := ticks[0]; tk.Native != "BTCUSDT" || tk.Bid != 40000 || tk.Ask != 40100 || tk.Timestamp != 1700000000000 {
		t.Errorf("tick = %+v", tk)
	}

	for _, data := range []string{
		"pong",
		`{"event":"subscribe","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"}}`,
	} {
		ticks, err := p.HandleMessage([]byte(data))
		if err != nil || len(ticks) != 0 {
			t.Errorf("HandleMessage(%s) = %v, %v; want nothing", data, ticks, err)
		}
	}

	_, err = p.HandleMessage([]byte(`{"event":"error","arg":{"instType":"SPOT","channel":"ticker","instId":"FOOBAR"},"code":30001,"msg":"instType:SPOT,channel:ticker,instId:FOOBAR doesn't exist"}`))
	var se *exchange.SubscriptionError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SubscriptionError", err)
	}
	var ve *exchange.VenueError
	if !errors.As(err, &ve) || ve.Code != "30001" {
		t.Errorf("venue error = %v, want code 30001", ve)
	}
}

func TestProtocol_FetchTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			w.Write([]byte(`{"code":"00000","msg":"success","requestTime":1700000000001,"data":[{"symbol":"BTCUSDT","bidPr":"40000","askPr":"40100","baseVolume":"9","ts":"1700000000000"}]}`))
			return
		}
		w.Write([]byte(`{"code":"40034","msg":"Parameter does not exist","requestTime":1,"data":null}`))
	}))
	defer server.Close()

	rest := api.NewClient(server.URL, "")
	p := New()

	tick, err := p.FetchTicker(context.Background(), rest, "BTCUSDT")
	if err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if tick.Native != "BTCUSDT" || tick.Bid != 40000 || tick.Ask != 40100 {
		t.Errorf("tick = %+v", tick)
	}

	_, err = p.FetchTicker(context.Background(), rest, "NOPE")
	if kind := exchange.Classify("bitget", "fetch", "", err).Kind; kind != exchange.KindAPI {
		t.Errorf("kind = %v, want %v", kind, exchange.KindAPI)
	}
}
