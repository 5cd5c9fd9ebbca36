// Package gate implements the Gate.io v4 spot protocol.
package gate

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Public endpoints.
const (
	RestURL = "https://api.gateio.ws"
	WSURL   = "wss://api.gateio.ws/ws/v4/"
)

const (
	bookTickerChannel = "spot.book_ticker"
	pingChannel       = "spot.ping"
	pongChannel       = "spot.pong"
)

// Protocol is the Gate exchange.Protocol.
type Protocol struct {
	now func() time.Time
}

// New creates a Gate protocol.
func New() *Protocol {
	return &Protocol{now: time.Now}
}

func (p *Protocol) Venue() model.Venue {
	return model.Gate
}

func (p *Protocol) Defaults() exchange.Defaults {
	return exchange.Defaults{
		RestURL:           RestURL,
		WSURL:             WSURL,
		APIKeyHeader:      "KEY",
		PollInterval:      30 * time.Second,
		KeepaliveInterval: 15 * time.Second,
		RateLimits: map[string]ratelimit.Config{
			ratelimit.QuotaTicker:  {Capacity: 200, RefillInterval: 10 * time.Second},
			ratelimit.QuotaSymbols: {Capacity: 1, RefillInterval: 10 * time.Second},
			ratelimit.QuotaDefault: {Capacity: 200, RefillInterval: 10 * time.Second},
		},
	}
}

func (p *Protocol) NormalizeSymbol(native string) string {
	return model.NormalizeSymbol(native)
}

// DenormalizeSymbol maps BTC-USDT to BTC_USDT.
func (p *Protocol) DenormalizeSymbol(symbol string) string {
	return model.JoinSymbol(symbol, "_")
}

type request struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event,omitempty"`
	Payload []string `json:"payload,omitempty"`
}

func (p *Protocol) SubscribeMessage(native string) ([]byte, error) {
	return json.Marshal(request{
		Time:    p.now().Unix(),
		Channel: bookTickerChannel,
		Event:   "subscribe",
		Payload: []string{native},
	})
}

func (p *Protocol) UnsubscribeMessage(native string) ([]byte, error) {
	return json.Marshal(request{
		Time:    p.now().Unix(),
		Channel: bookTickerChannel,
		Event:   "unsubscribe",
		Payload: []string{native},
	})
}

// Keepalive sends a spot.ping request.
func (p *Protocol) Keepalive() []byte {
	data, _ := json.Marshal(request{Time: p.now().Unix(), Channel: pingChannel})
	return data
}

type bookTicker struct {
	T        int64  `json:"t"`
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type streamError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type streamMessage struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *streamError    `json:"error"`
	Result  json.RawMessage `json:"result"`
}

func (p *Protocol) HandleMessage(data []byte) ([]exchange.Tick, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrMalformed, err)
	}

	if msg.Error != nil {
		return nil, &exchange.SubscriptionError{
			Channel: msg.Channel,
			Err:     &exchange.VenueError{Code: strconv.Itoa(msg.Error.Code), Message: msg.Error.Message},
		}
	}
	if msg.Channel != bookTickerChannel || msg.Event != "update" {
		// pong, subscribe acks, other channels
		return nil, nil
	}

	var bt bookTicker
	if err := json.Unmarshal(msg.Result, &bt); err != nil {
		return nil, fmt.Errorf("%w: %s result: %v", exchange.ErrMalformed, msg.Channel, err)
	}

	bid, err := exchange.ParseDecimal("b", bt.BidPrice)
	if err != nil {
		return nil, err
	}
	ask, err := exchange.ParseDecimal("a", bt.AskPrice)
	if err != nil {
		return nil, err
	}

	return []exchange.Tick{{
		Native:    bt.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: bt.T,
	}}, nil
}

type ticker struct {
	CurrencyPair string `json:"currency_pair"`
	HighestBid   string `json:"highest_bid"`
	LowestAsk    string `json:"lowest_ask"`
	BaseVolume   string `json:"base_volume"`
}

func (p *Protocol) FetchTicker(ctx context.Context, rest *api.Client, native string) (exchange.Tick, error) {
	var tickers []ticker
	if err := rest.GetJSON(ctx, "/api/v4/spot/tickers", url.Values{"currency_pair": {native}}, &tickers); err != nil {
		return exchange.Tick{}, err
	}
	if len(tickers) == 0 {
		return exchange.Tick{}, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, native)
	}

	t := tickers[0]
	bid, err := exchange.ParseDecimal("highest_bid", t.HighestBid)
	if err != nil {
		return exchange.Tick{}, err
	}
	ask, err := exchange.ParseDecimal("lowest_ask", t.LowestAsk)
	if err != nil {
		return exchange.Tick{}, err
	}

	// The ticker endpoint carries no timestamp; the adapter stamps it.
	return exchange.Tick{
		Native:    t.CurrencyPair,
		Bid:       bid,
		Ask:       ask,
		Volume24h: exchange.ParseOptionalDecimal(t.BaseVolume),
	}, nil
}

type currencyPair struct {
	ID          string `json:"id"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	TradeStatus string `json:"trade_status"`
}

func (p *Protocol) ListSymbols(ctx context.Context, rest *api.Client) ([]exchange.SymbolInfo, error) {
	var pairs []currencyPair
	if err := rest.GetJSON(ctx, "/api/v4/spot/currency_pairs", nil, &pairs); err != nil {
		return nil, err
	}

	out := make([]exchange.SymbolInfo, 0, len(pairs))
	for _, cp := range pairs {
		out = append(out, exchange.SymbolInfo{
			Native: cp.ID,
			Base:   cp.Base,
			Quote:  cp.Quote,
			Active: cp.TradeStatus == "tradable",
		})
	}
	return out, nil
}

var _ exchange.Protocol = (*Protocol)(nil)
