// Package okx implements the OKX v5 spot protocol.
package okx

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Public endpoints.
const (
	RestURL = "https://www.okx.com"
	WSURL   = "wss://ws.okx.com:8443/ws/v5/public"
)

const channel = "tickers"

var (
	pingMessage = []byte("ping")
	pongMessage = []byte("pong")
)

// Protocol is the OKX exchange.Protocol. It is stateless.
type Protocol struct{}

// New creates an OKX protocol.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Venue() model.Venue {
	return model.OKX
}

func (p *Protocol) Defaults() exchange.Defaults {
	return exchange.Defaults{
		RestURL:           RestURL,
		WSURL:             WSURL,
		APIKeyHeader:      "OK-ACCESS-KEY",
		PollInterval:      20 * time.Second,
		KeepaliveInterval: 25 * time.Second,
		RateLimits: map[string]ratelimit.Config{
			// 20 requests per 2 seconds per IP.
			ratelimit.QuotaTicker:  {Capacity: 20, RefillInterval: 2 * time.Second},
			ratelimit.QuotaSymbols: {Capacity: 20, RefillInterval: 2 * time.Second},
			ratelimit.QuotaDefault: {Capacity: 20, RefillInterval: 2 * time.Second},
		},
	}
}

// NormalizeSymbol is nearly the identity: OKX already uses BASE-QUOTE.
func (p *Protocol) NormalizeSymbol(native string) string {
	return model.NormalizeSymbol(native)
}

func (p *Protocol) DenormalizeSymbol(symbol string) string {
	return model.JoinSymbol(symbol, "-")
}

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type opRequest struct {
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

func (p *Protocol) SubscribeMessage(native string) ([]byte, error) {
	return json.Marshal(opRequest{Op: "subscribe", Args: []arg{{Channel: channel, InstID: native}}})
}

func (p *Protocol) UnsubscribeMessage(native string) ([]byte, error) {
	return json.Marshal(opRequest{Op: "unsubscribe", Args: []arg{{Channel: channel, InstID: native}}})
}

// Keepalive sends the literal text "ping"; OKX drops idle connections
// after 30s.
func (p *Protocol) Keepalive() []byte {
	return pingMessage
}

type ticker struct {
	InstID string `json:"instId"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Vol24h string `json:"vol24h"`
	TS     string `json:"ts"`
}

type streamMessage struct {
	Event string   `json:"event"`
	Code  string   `json:"code"`
	Msg   string   `json:"msg"`
	Arg   arg      `json:"arg"`
	Data  []ticker `json:"data"`
}

func (p *Protocol) HandleMessage(data []byte) ([]exchange.Tick, error) {
	if bytes.Equal(bytes.TrimSpace(data), pongMessage) {
		return nil, nil
	}

	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrMalformed, err)
	}

	switch msg.Event {
	case "":
	case "error":
		return nil, &exchange.SubscriptionError{
			Channel: msg.Arg.InstID,
			Err:     &exchange.VenueError{Code: msg.Code, Message: msg.Msg},
		}
	default:
		// subscribe / unsubscribe acknowledgements
		return nil, nil
	}

	if msg.Arg.Channel != channel {
		return nil, nil
	}

	ticks := make([]exchange.Tick, 0, len(msg.Data))
	for _, t := range msg.Data {
		tick, err := t.tick()
		if err != nil {
			return ticks, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func (t ticker) tick() (exchange.Tick, error) {
	bid, err := exchange.ParseDecimal("bidPx", t.BidPx)
	if err != nil {
		return exchange.Tick{}, err
	}
	ask, err := exchange.ParseDecimal("askPx", t.AskPx)
	if err != nil {
		return exchange.Tick{}, err
	}
	ts, err := exchange.ParseMillis("ts", t.TS)
	if err != nil {
		return exchange.Tick{}, err
	}
	return exchange.Tick{
		Native:    t.InstID,
		Bid:       bid,
		Ask:       ask,
		Timestamp: ts,
		Volume24h: exchange.ParseOptionalDecimal(t.Vol24h),
	}, nil
}

type response[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func (p *Protocol) FetchTicker(ctx context.Context, rest *api.Client, native string) (exchange.Tick, error) {
	var resp response[ticker]
	if err := rest.GetJSON(ctx, "/api/v5/market/ticker", url.Values{"instId": {native}}, &resp); err != nil {
		return exchange.Tick{}, err
	}
	if resp.Code != "0" {
		return exchange.Tick{}, &exchange.VenueError{Code: resp.Code, Message: resp.Msg}
	}
	if len(resp.Data) == 0 {
		return exchange.Tick{}, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, native)
	}
	return resp.Data[0].tick()
}

type instrument struct {
	InstID   string `json:"instId"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	State    string `json:"state"`
}

func (p *Protocol) ListSymbols(ctx context.Context, rest *api.Client) ([]exchange.SymbolInfo, error) {
	var resp response[instrument]
	if err := rest.GetJSON(ctx, "/api/v5/public/instruments", url.Values{"instType": {"SPOT"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, &exchange.VenueError{Code: resp.Code, Message: resp.Msg}
	}

	out := make([]exchange.SymbolInfo, 0, len(resp.Data))
	for _, inst := range resp.Data {
		out = append(out, exchange.SymbolInfo{
			Native: inst.InstID,
			Base:   inst.BaseCcy,
			Quote:  inst.QuoteCcy,
			Active: inst.State == "live",
		})
	}
	return out, nil
}

var _ exchange.Protocol = (*Protocol)(nil)
