package bybit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/exchange"
)

func TestProtocol_SymbolRoundTrip(t *testing.T) {
	p := New()

	for _, native := range []string{"BTCUSDT", "ETHUSDC", "SOLBTC"} {
		canonical := p.NormalizeSymbol(native)
		if p.NormalizeSymbol(canonical) != canonical {
			t.Errorf("NormalizeSymbol(%q) not idempotent", canonical)
		}
		if back := p.DenormalizeSymbol(canonical); back != native {
			t.Errorf("DenormalizeSymbol(%q) = %q, want %q", canonical, back, native)
		}
	}
}

func TestProtocol_SubscribeMessage(t *testing.T) {
	msg, err := New().SubscribeMessage("BTCUSDT")
	if err != nil {
		t.Fatalf("SubscribeMessage: %v", err)
	}

	var req opRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Op != "subscribe" || len(req.Args) != 1 || req.Args[0] != "orderbook.1.BTCUSDT" {
		t.Errorf("request = %+v", req)
	}
}

func TestProtocol_SnapshotAndDelta(t *testing.T) {
	p := New()

	steps := []struct {
		name    string
		data    string
		want    bool
		bid     float64
		ask     float64
		wantErr error
	}{
		{
			name: "snapshot",
			data: `{"topic":"orderbook.1.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{"s":"BTCUSDT","b":[["40000.5","1.2"]],"a":[["40001","0.4"]],"u":1}}`,
			want: true, bid: 40000.5, ask: 40001,
		},
		{
			name: "ask delta",
			data: `{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1700000000100,"data":{"s":"BTCUSDT","b":[],"a":[["40002","0.1"]],"u":2}}`,
			want: true, bid: 40000.5, ask: 40002,
		},
		{
			name: "bid removed then replaced",
			data: `{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1700000000200,"data":{"s":"BTCUSDT","b":[["40000.5","0"],["39999","2"]],"a":[],"u":3}}`,
			want: true, bid: 39999, ask: 40002,
		},
		{
			name: "bid removed",
			data: `{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1700000000300,"data":{"s":"BTCUSDT","b":[["39999","0"]],"a":[],"u":4}}`,
		},
		{
			name:    "bad level",
			data:    `{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1,"data":{"s":"BTCUSDT","b":[["1"]],"a":[]}}`,
			wantErr: exchange.ErrMalformed,
		},
	}

	for _, step := range steps {
		ticks, err := p.HandleMessage([]byte(step.data))
		if step.wantErr != nil {
			if !errors.Is(err, step.wantErr) {
				t.Errorf("%s: err = %v, want %v", step.name, err, step.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: HandleMessage: %v", step.name, err)
		}
		if !step.want {
			if len(ticks) != 0 {
				t.Errorf("%s: ticks = %+v, want none", step.name, ticks)
			}
			continue
		}
		if len(ticks) != 1 {
			t.Fatalf("%s: len(ticks) = %d, want 1", step.name, len(ticks))
		}
		if ticks[0].Bid != step.bid || ticks[0].Ask != step.ask {
			t.Errorf("%s: bid/ask = %v/%v, want %v/%v", step.name, ticks[0].Bid, ticks[0].Ask, step.bid, step.ask)
		}
	}
}

func TestProtocol_ControlFrames(t *testing.T) {
	p := New()

	for _, data := range []string{
		`{"success":true,"ret_msg":"","conn_id":"x","req_id":"1","op":"subscribe"}`,
		`{"success":true,"ret_msg":"pong","conn_id":"x","op":"ping"}`,
		`{"op":"pong","args":["1700000000000"],"conn_id":"x"}`,
	} {
		ticks, err := p.HandleMessage([]byte(data))
		if err != nil || len(ticks) != 0 {
			t.Errorf("HandleMessage(%s) = %v, %v; want no ticks, no error", data, ticks, err)
		}
	}

	_, err := p.HandleMessage([]byte(`{"success":false,"ret_msg":"error:handler not found","op":"subscribe"}`))
	var se *exchange.SubscriptionError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, want SubscriptionError", err)
	}
}

func TestProtocol_FetchTicker(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBid  float64
		wantErr  bool
		wantKind exchange.Kind
	}{
		{
			name:    "ok",
			body:    `{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[{"symbol":"BTCUSDT","bid1Price":"40000","ask1Price":"40100","volume24h":"12.5"}]},"time":1700000000000}`,
			wantBid: 40000,
		},
		{
			name:     "venue error",
			body:     `{"retCode":10001,"retMsg":"Not supported symbols","result":{}}`,
			wantErr:  true,
			wantKind: exchange.KindAPI,
		},
		{
			name:     "empty list",
			body:     `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`,
			wantErr:  true,
			wantKind: exchange.KindAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("category") != "spot" {
					t.Errorf("category = %q, want spot", r.URL.Query().Get("category"))
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tick, err := New().FetchTicker(context.Background(), api.NewClient(server.URL, ""), "BTCUSDT")
			if tt.wantErr {
				if got := exchange.Classify("bybit", "fetch", "", err).Kind; got != tt.wantKind {
					t.Errorf("kind = %v, want %v (err %v)", got, tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchTicker: %v", err)
			}
			if tick.Bid != tt.wantBid || tick.Timestamp != 1700000000000 {
				t.Errorf("tick = %+v", tick)
			}
		})
	}
}
