// Package bybit implements the Bybit v5 spot protocol.
//
// The stream uses the level-1 order book topic. Bybit sends a snapshot on
// subscribe and deltas afterwards, so the protocol keeps the last top of
// book per symbol and merges each delta into it.
package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
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
	RestURL = "https://api.bybit.com"
	WSURL   = "wss://stream.bybit.com/v5/public/spot"
)

const topicPrefix = "orderbook.1."

var pingMessage = []byte(`{"op":"ping"}`)

type top struct {
	bid, ask float64
}

// Protocol is the Bybit exchange.Protocol.
type Protocol struct {
	nextID atomic.Int64

	mu    sync.Mutex
	books map[string]top
}

// New creates a Bybit protocol.
func New() *Protocol {
	return &Protocol{books: make(map[string]top)}
}

func (p *Protocol) Venue() model.Venue {
	return model.Bybit
}

func (p *Protocol) Defaults() exchange.Defaults {
	return exchange.Defaults{
		RestURL:           RestURL,
		WSURL:             WSURL,
		APIKeyHeader:      "X-BAPI-API-KEY",
		PollInterval:      20 * time.Second,
		KeepaliveInterval: 20 * time.Second,
		RateLimits: map[string]ratelimit.Config{
			ratelimit.QuotaTicker:  {Capacity: 10, RefillInterval: time.Second},
			ratelimit.QuotaSymbols: {Capacity: 1, RefillInterval: 10 * time.Second},
			ratelimit.QuotaDefault: {Capacity: 10, RefillInterval: time.Second},
		},
	}
}

func (p *Protocol) NormalizeSymbol(native string) string {
	return model.NormalizeSymbol(native)
}

func (p *Protocol) DenormalizeSymbol(symbol string) string {
	return model.JoinSymbol(symbol, "")
}

type opRequest struct {
	ReqID string   `json:"req_id"`
	Op    string   `json:"op"`
	Args  []string `json:"args"`
}

func (p *Protocol) SubscribeMessage(native string) ([]byte, error) {
	return p.op("subscribe", native)
}

func (p *Protocol) UnsubscribeMessage(native string) ([]byte, error) {
	p.mu.Lock()
	delete(p.books, native)
	p.mu.Unlock()
	return p.op("unsubscribe", native)
}

func (p *Protocol) op(op, native string) ([]byte, error) {
	return json.Marshal(opRequest{
		ReqID: strconv.FormatInt(p.nextID.Add(1), 10),
		Op:    op,
		Args:  []string{topicPrefix + native},
	})
}

// Keepalive sends the JSON ping Bybit requires every 20s.
func (p *Protocol) Keepalive() []byte {
	return pingMessage
}

type bookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

type streamMessage struct {
	Topic   string   `json:"topic"`
	Type    string   `json:"type"`
	TS      int64    `json:"ts"`
	Data    bookData `json:"data"`
	Op      string   `json:"op"`
	Success *bool    `json:"success"`
	RetMsg  string   `json:"ret_msg"`
}

func (p *Protocol) HandleMessage(data []byte) ([]exchange.Tick, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrMalformed, err)
	}

	if msg.Op != "" {
		if msg.Success != nil && !*msg.Success {
			return nil, &exchange.SubscriptionError{
				Err: &exchange.VenueError{Code: msg.Op, Message: msg.RetMsg},
			}
		}
		// subscribe ack or pong
		return nil, nil
	}

	if !strings.HasPrefix(msg.Topic, topicPrefix) {
		return nil, nil
	}

	native := msg.Data.Symbol
	if native == "" {
		native = strings.TrimPrefix(msg.Topic, topicPrefix)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	book := p.books[native]
	if msg.Type == "snapshot" {
		book = top{}
	}

	var err error
	if book.bid, err = mergeSide(book.bid, msg.Data.Bids, "bid"); err != nil {
		return nil, err
	}
	if book.ask, err = mergeSide(book.ask, msg.Data.Asks, "ask"); err != nil {
		return nil, err
	}
	p.books[native] = book

	if book.bid <= 0 || book.ask <= 0 {
		return nil, nil
	}

	return []exchange.Tick{{
		Native:    native,
		Bid:       book.bid,
		Ask:       book.ask,
		Timestamp: msg.TS,
	}}, nil
}

// mergeSide applies [price, size] levels to the cached best price. A zero
// size removes the level.
func mergeSide(best float64, levels [][]string, side string) (float64, error) {
	for _, level := range levels {
		if len(level) < 2 {
			return best, fmt.Errorf("%w: %s level %v", exchange.ErrMalformed, side, level)
		}
		price, err := exchange.ParseDecimal(side, level[0])
		if err != nil {
			return best, err
		}
		size, err := exchange.ParseDecimal(side+" size", level[1])
		if err != nil {
			return best, err
		}
		if size == 0 {
			if price == best {
				best = 0
			}
			continue
		}
		best = price
	}
	return best, nil
}

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Time    int64  `json:"time"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	} `json:"result"`
}

func (p *Protocol) FetchTicker(ctx context.Context, rest *api.Client, native string) (exchange.Tick, error) {
	var resp tickersResponse
	q := url.Values{"category": {"spot"}, "symbol": {native}}
	if err := rest.GetJSON(ctx, "/v5/market/tickers", q, &resp); err != nil {
		return exchange.Tick{}, err
	}
	if resp.RetCode != 0 {
		return exchange.Tick{}, &exchange.VenueError{Code: strconv.Itoa(resp.RetCode), Message: resp.RetMsg}
	}
	if len(resp.Result.List) == 0 {
		return exchange.Tick{}, fmt.Errorf("%w: %s", exchange.ErrSymbolNotFound, native)
	}

	t := resp.Result.List[0]
	bid, err := exchange.ParseDecimal("bid1Price", t.Bid1Price)
	if err != nil {
		return exchange.Tick{}, err
	}
	ask, err := exchange.ParseDecimal("ask1Price", t.Ask1Price)
	if err != nil {
		return exchange.Tick{}, err
	}

	return exchange.Tick{
		Native:    t.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: resp.Time,
		Volume24h: exchange.ParseOptionalDecimal(t.Volume24h),
	}, nil
}

type instrumentsResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	} `json:"result"`
}

func (p *Protocol) ListSymbols(ctx context.Context, rest *api.Client) ([]exchange.SymbolInfo, error) {
	var resp instrumentsResponse
	if err := rest.GetJSON(ctx, "/v5/market/instruments-info", url.Values{"category": {"spot"}}, &resp); err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, &exchange.VenueError{Code: strconv.Itoa(resp.RetCode), Message: resp.RetMsg}
	}

	out := make([]exchange.SymbolInfo, 0, len(resp.Result.List))
	for _, s := range resp.Result.List {
		out = append(out, exchange.SymbolInfo{
			Native: s.Symbol,
			Base:   s.BaseCoin,
			Quote:  s.QuoteCoin,
			Active: s.Status == "Trading",
		})
	}
	return out, nil
}

var _ exchange.Protocol = (*Protocol)(nil)
