// Package binance implements the Binance spot protocol: bookTicker stream
// and /api/v3 REST endpoints.
package binance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Public endpoints.
const (
	RestURL = "https://api.binance.com"
	WSURL   = "wss://stream.binance.com:9443/ws"
)

// Protocol is the Binance exchange.Protocol.
type Protocol struct {
	nextID atomic.Int64
}

// New creates a Binance protocol.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Venue() model.Venue {
	return model.Binance
}

func (p *Protocol) Defaults() exchange.Defaults {
	return exchange.Defaults{
		RestURL:           RestURL,
		WSURL:             WSURL,
		APIKeyHeader:      "X-MBX-APIKEY",
		PollInterval:      15 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		RateLimits: map[string]ratelimit.Config{
			ratelimit.QuotaTicker:  {Capacity: 20, RefillInterval: time.Second},
			ratelimit.QuotaSymbols: {Capacity: 1, RefillInterval: 10 * time.Second},
			ratelimit.QuotaDefault: {Capacity: 20, RefillInterval: time.Second},
		},
	}
}

// NormalizeSymbol maps BTCUSDT to BTC-USDT.
func (p *Protocol) NormalizeSymbol(native string) string {
	return model.NormalizeSymbol(native)
}

// DenormalizeSymbol maps BTC-USDT to BTCUSDT.
func (p *Protocol) DenormalizeSymbol(symbol string) string {
	return model.JoinSymbol(symbol, "")
}

func (p *Protocol) SubscribeMessage(native string) ([]byte, error) {
	return p.request("SUBSCRIBE", native)
}

func (p *Protocol) UnsubscribeMessage(native string) ([]byte, error) {
	return p.request("UNSUBSCRIBE", native)
}

func (p *Protocol) request(method, native string) ([]byte, error) {
	return json.Marshal(streamRequest{
		Method: method,
		Params: []string{streamName(native)},
		ID:     p.nextID.Add(1),
	})
}

// Binance answers protocol pings itself and expects pong frames, which the
// connection handles.
func (p *Protocol) Keepalive() []byte {
	return nil
}

func streamName(native string) string {
	return strings.ToLower(native) + "@bookTicker"
}

type streamRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// bookTicker is the bookTicker payload. Upper-case keys are quantities.
type bookTicker struct {
	UpdateID  int64  `json:"u"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}

type streamError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// envelope covers raw payloads, combined-stream wrappers and request acks.
type envelope struct {
	bookTicker
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     *int64          `json:"id"`
	Error  *streamError    `json:"error"`
	Code   *int            `json:"code"`
	Msg    string          `json:"msg"`
}

func (p *Protocol) HandleMessage(data []byte) ([]exchange.Tick, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrMalformed, err)
	}

	if env.Error != nil {
		return nil, &exchange.SubscriptionError{
			Err: &exchange.VenueError{Code: fmt.Sprint(env.Error.Code), Message: env.Error.Msg},
		}
	}
	if env.Code != nil && env.Msg != "" {
		return nil, &exchange.SubscriptionError{
			Err: &exchange.VenueError{Code: fmt.Sprint(*env.Code), Message: env.Msg},
		}
	}
	if env.ID != nil {
		// Ack for a SUBSCRIBE/UNSUBSCRIBE request.
		return nil, nil
	}

	bt := env.bookTicker
	if len(env.Data) > 0 {
		bt = bookTicker{}
		if err := json.Unmarshal(env.Data, &bt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", exchange.ErrMalformed, env.Stream, err)
		}
	}
	if bt.Symbol == "" {
		return nil, nil
	}

	tick, err := bt.tick()
	if err != nil {
		return nil, err
	}
	return []exchange.Tick{tick}, nil
}

func (bt bookTicker) tick() (exchange.Tick, error) {
	bid, err := exchange.ParseDecimal("bid", bt.BidPrice)
	if err != nil {
		return exchange.Tick{}, err
	}
	ask, err := exchange.ParseDecimal("ask", bt.AskPrice)
	if err != nil {
		return exchange.Tick{}, err
	}
	return exchange.Tick{
		Native:    bt.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: bt.EventTime,
	}, nil
}

type ticker24hr struct {
	Symbol    string `json:"symbol"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	Volume    string `json:"volume"`
	CloseTime int64  `json:"closeTime"`
}

func (p *Protocol) FetchTicker(ctx context.Context, rest *api.Client, native string) (exchange.Tick, error) {
	var t ticker24hr
	if err := rest.GetJSON(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {native}}, &t); err != nil {
		return exchange.Tick{}, err
	}
	if t.Symbol == "" {
		return exchange.Tick{}, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, native)
	}

	bid, err := exchange.ParseDecimal("bidPrice", t.BidPrice)
	if err != nil {
		return exchange.Tick{}, err
	}
	ask, err := exchange.ParseDecimal("askPrice", t.AskPrice)
	if err != nil {
		return exchange.Tick{}, err
	}

	return exchange.Tick{
		Native:    t.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: t.CloseTime,
		Volume24h: exchange.ParseOptionalDecimal(t.Volume),
	}, nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		Status               string `json:"status"`
		BaseAsset            string `json:"baseAsset"`
		QuoteAsset           string `json:"quoteAsset"`
		IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
	} `json:"symbols"`
}

func (p *Protocol) ListSymbols(ctx context.Context, rest *api.Client) ([]exchange.SymbolInfo, error) {
	var info exchangeInfo
	if err := rest.GetJSON(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}

	out := make([]exchange.SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, exchange.SymbolInfo{
			Native: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING" && s.IsSpotTradingAllowed,
		})
	}
	return out, nil
}

var _ exchange.Protocol = (*Protocol)(nil)
