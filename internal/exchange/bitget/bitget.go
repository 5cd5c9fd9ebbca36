// Package bitget implements the Bitget v2 spot protocol. Symbols in the
// legacy "_SPBL" form are accepted on input.
package bitget

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
	RestURL = "https://api.bitget.com"
	WSURL   = "wss://ws.bitget.com/v2/ws/public"
)

const (
	channel  = "ticker"
	instType = "SPOT"
	codeOK   = "00000"
)

var (
	pingMessage = []byte("ping")
	pongMessage = []byte("pong")
)

// Protocol is the Bitget exchange.Protocol. It is stateless.
type Protocol struct{}

// New creates a Bitget protocol.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Venue() model.Venue {
	return model.Bitget
}

func (p *Protocol) Defaults() exchange.Defaults {
	return exchange.Defaults{
		RestURL:           RestURL,
		WSURL:             WSURL,
		APIKeyHeader:      "ACCESS-KEY",
		PollInterval:      30 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		RateLimits: map[string]ratelimit.Config{
			ratelimit.QuotaTicker:  {Capacity: 20, RefillInterval: time.Second},
			ratelimit.QuotaSymbols: {Capacity: 20, RefillInterval: time.Second},
			ratelimit.QuotaDefault: {Capacity: 20, RefillInterval: time.Second},
		},
	}
}

// NormalizeSymbol maps BTCUSDT and BTCUSDT_SPBL to BTC-USDT.
func (p *Protocol) NormalizeSymbol(native string) string {
	return model.NormalizeSymbol(native)
}

func (p *Protocol) DenormalizeSymbol(symbol string) string {
	return model.JoinSymbol(symbol, "")
}

type arg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type opRequest struct {
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

func (p *Protocol) SubscribeMessage(native string) ([]byte, error) {
	return json.Marshal(opRequest{Op: "subscribe", Args: []arg{{instType, channel, native}}})
}

func (p *Protocol) UnsubscribeMessage(native string) ([]byte, error) {
	return json.Marshal(opRequest{Op: "unsubscribe", Args: []arg{{instType, channel, native}}})
}

// Keepalive sends the literal text "ping" every 30s.
func (p *Protocol) Keepalive() []byte {
	return pingMessage
}

type ticker struct {
	InstID     string `json:"instId"`
	Symbol     string `json:"symbol"`
	BidPr      string `json:"bidPr"`
	AskPr      string `json:"askPr"`
	BaseVolume string `json:"baseVolume"`
	TS         string `json:"ts"`
}

func (t ticker) native() string {
	if t.InstID != "" {
		return t.InstID
	}
	return t.Symbol
}

func (t ticker) tick() (exchange.Tick, error) {
	bid, err := exchange.ParseDecimal("bidPr", t.BidPr)
	if err != nil {
		return exchange.Tick{}, err
	}
	ask, err := exchange.ParseDecimal("askPr", t.AskPr)
	if err != nil {
		return exchange.Tick{}, err
	}
	ts, err := exchange.ParseMillis("ts", t.TS)
	if err != nil {
		return exchange.Tick{}, err
	}
	return exchange.Tick{
		Native:    t.native(),
		Bid:       bid,
		Ask:       ask,
		Timestamp: ts,
		Volume24h: exchange.ParseOptionalDecimal(t.BaseVolume),
	}, nil
}

type streamMessage struct {
	Event  string          `json:"event"`
	Code   json.RawMessage `json:"code"`
	Msg    string          `json:"msg"`
	Action string          `json:"action"`
	Arg    arg             `json:"arg"`
	Data   []ticker        `json:"data"`
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
			Err:     &exchange.VenueError{Code: string(bytes.Trim(msg.Code, `"`)), Message: msg.Msg},
		}
	default:
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

type response[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func (p *Protocol) FetchTicker(ctx context.Context, rest *api.Client, native string) (exchange.Tick, error) {
	var resp response[ticker]
	if err := rest.GetJSON(ctx, "/api/v2/spot/market/tickers", url.Values{"symbol": {native}}, &resp); err != nil {
		return exchange.Tick{}, err
	}
	if resp.Code != codeOK {
		return exchange.Tick{}, &exchange.VenueError{Code: resp.Code, Message: resp.Msg}
	}
	if len(resp.Data) == 0 {
		return exchange.Tick{}, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, native)
	}
	return resp.Data[0].tick()
}

type symbolInfo struct {
	Symbol    string `json:"symbol"`
	BaseCoin  string `json:"baseCoin"`
	QuoteCoin string `json:"quoteCoin"`
	Status    string `json:"status"`
}

func (p *Protocol) ListSymbols(ctx context.Context, rest *api.Client) ([]exchange.SymbolInfo, error) {
	var resp response[symbolInfo]
	if err := rest.GetJSON(ctx, "/api/v2/spot/public/symbols", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != codeOK {
		return nil, &exchange.VenueError{Code: resp.Code, Message: resp.Msg}
	}

	out := make([]exchange.SymbolInfo, 0, len(resp.Data))
	for _, s := range resp.Data {
		out = append(out, exchange.SymbolInfo{
			Native: s.Symbol,
			Base:   s.BaseCoin,
			Quote:  s.QuoteCoin,
			Active: s.Status == "online",
		})
	}
	return out, nil
}

var _ exchange.Protocol = (*Protocol)(nil)
