package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/connection"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/observer"
	"github.com/rickgao/arb-feed/internal/poller"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Status is a point-in-time view of an adapter.
type Status struct {
	Venue            model.Venue `json:"venue"`
	State            string      `json:"state"`
	Attempts         int         `json:"reconnect_attempts"`
	Reconnects       int         `json:"reconnects"`
	ReconnectPending bool        `json:"reconnect_pending"`
	Subscriptions    []string    `json:"subscriptions"`
	Polling          int         `json:"polling"`
	LastError        string      `json:"last_error,omitempty"`
}

// Adapter connects one venue: a supervised WebSocket stream, a REST client
// behind named rate limit buckets, and a REST fallback poller for every
// subscribed symbol.
type Adapter struct {
	proto  Protocol
	venue  model.Venue
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	rest    *api.Client
	sup     *connection.Supervisor
	limits  *ratelimit.Set
	poll    *poller.Poller
	catalog *catalog

	prices *observer.List[model.Quote]
	errs   *observer.List[error]

	mu         sync.Mutex
	subs       map[string]struct{}
	active     map[string]struct{} // subscribe sent on the current connection
	lastStream map[string]time.Time
}

// NewAdapter builds an adapter for proto. It does not connect.
func NewAdapter(proto Protocol, cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	venue := proto.Venue()
	defs := proto.Defaults()
	cfg = cfg.withDefaults(defs)
	logger = logger.With("venue", string(venue))

	limits, err := ratelimit.NewSet(cfg.RateLimits, cfg.InitialTokens)
	if err != nil {
		return nil, fmt.Errorf("%s rate limits: %w", venue, err)
	}

	a := &Adapter{
		proto:      proto,
		venue:      venue,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		limits:     limits,
		prices:     observer.New[model.Quote](string(venue)+" prices", logger),
		errs:       observer.New[error](string(venue)+" errors", logger),
		subs:       make(map[string]struct{}),
		active:     make(map[string]struct{}),
		lastStream: make(map[string]time.Time),
	}

	restOpts := []api.ClientOption{
		api.WithTimeout(cfg.RequestTimeout),
		api.WithRetries(cfg.RESTRetries, 500*time.Millisecond),
		api.WithLogger(logger),
	}
	if defs.APIKeyHeader != "" {
		restOpts = append(restOpts, api.WithAPIKeyHeader(defs.APIKeyHeader))
	}
	a.rest = api.NewClient(cfg.RestURL, cfg.APIKey, restOpts...)

	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = cfg.WSURL
	clientCfg.PingInterval = cfg.KeepaliveInterval
	if cfg.StaleTimeout > 0 {
		clientCfg.PingTimeout = cfg.StaleTimeout
	}
	clientCfg.Keepalive = proto.Keepalive

	a.sup = connection.NewSupervisor(
		connection.SupervisorConfig{
			BaseDelay:     cfg.ReconnectDelay,
			MaxDelay:      cfg.MaxReconnectDelay,
			MaxRetries:    cfg.MaxRetries,
			AutoReconnect: cfg.AutoReconnect,
		},
		func() connection.Client { return connection.NewClient(clientCfg, logger) },
		connection.Hooks{
			OnConnecting: a.resetActive,
			OnOpen:       a.resubscribe,
			OnMessage:    a.handleMessage,
			OnError:      a.handleConnError,
		},
		logger,
	)

	a.poll = poller.New(poller.Config{
		Interval:    cfg.PollInterval,
		Freshness:   cfg.Freshness,
		Timeout:     cfg.RequestTimeout,
		Concurrency: cfg.PollConcurrency,
	}, a.pollSymbol, a.lastStreamAt, logger)

	a.catalog = newCatalog(cfg.CatalogTTL, a.loadSymbols, proto.NormalizeSymbol)

	return a, nil
}

// Venue returns the adapter's venue.
func (a *Adapter) Venue() model.Venue {
	return a.venue
}

// Connect opens the stream. Failures are reported to error observers,
// schedule a reconnect, and are returned.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.sup.Connect(ctx); err != nil {
		return a.connError("connect", err)
	}
	return nil
}

// Disconnect clears subscriptions, stops the fallback poller and closes the
// stream without reconnecting.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	clear(a.subs)
	clear(a.active)
	clear(a.lastStream)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.poll.Stop(ctx); err != nil {
		a.logger.Warn("poller stop timed out", "error", err)
	}

	return a.sup.Disconnect()
}

// SubscribeToSymbol adds symbol to the subscription set, subscribes on the
// stream (connecting if needed), starts REST fallback polling, and seeds
// observers with one REST quote. The subscription is kept even if the
// connect or the seed fails; the first such error is returned.
func (a *Adapter) SubscribeToSymbol(ctx context.Context, raw string) error {
	symbol := model.NormalizeSymbol(raw)

	a.mu.Lock()
	a.subs[symbol] = struct{}{}
	a.mu.Unlock()

	var streamErr error
	switch a.sup.State() {
	case connection.StateConnected:
		if err := a.ensureSubscribed(symbol); err != nil && !errors.Is(err, connection.ErrNotConnected) {
			streamErr = a.subscriptionError(symbol, err)
			a.logger.Warn("subscribe failed", "symbol", symbol, "error", err)
			a.errs.Notify(streamErr)
		}
	case connection.StateDisconnected:
		// The open hook sends the subscription.
		if err := a.sup.Connect(ctx); err != nil {
			streamErr = a.connError("subscribe", err)
		}
	}

	a.poll.Add(symbol)

	q, err := a.FetchPrice(ctx, symbol)
	if err != nil {
		a.logger.Warn("initial rest fetch failed", "symbol", symbol, "error", err)
		a.errs.Notify(err)
		if streamErr == nil {
			streamErr = err
		}
		return streamErr
	}
	if a.subscribed(symbol) {
		a.prices.Notify(q)
	}

	return streamErr
}

// UnsubscribeFromSymbol removes symbol from the subscription set and stops
// polling it. The unsubscribe frame is sent only while connected.
func (a *Adapter) UnsubscribeFromSymbol(ctx context.Context, raw string) error {
	symbol := model.NormalizeSymbol(raw)

	a.mu.Lock()
	_, existed := a.subs[symbol]
	_, sent := a.active[symbol]
	delete(a.subs, symbol)
	delete(a.active, symbol)
	delete(a.lastStream, symbol)
	a.mu.Unlock()

	a.poll.Remove(symbol)

	if !existed || !sent || a.sup.State() != connection.StateConnected {
		return nil
	}

	msg, err := a.proto.UnsubscribeMessage(a.native(symbol))
	if err == nil {
		err = a.sup.Send(msg)
	}
	if err != nil && !errors.Is(err, connection.ErrNotConnected) {
		e := a.subscriptionError(symbol, err)
		e.Op = "unsubscribe"
		a.logger.Warn("unsubscribe failed", "symbol", symbol, "error", err)
		a.errs.Notify(e)
		return e
	}
	return nil
}

// FetchPrice fetches one quote over REST, waiting on the ticker bucket first.
func (a *Adapter) FetchPrice(ctx context.Context, raw string) (model.Quote, error) {
	symbol := model.NormalizeSymbol(raw)

	if err := a.limits.Wait(ctx, ratelimit.QuotaTicker, 1); err != nil {
		return model.Quote{}, Classify(a.venue, "fetch price", symbol, err)
	}

	rctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	tick, err := a.proto.FetchTicker(rctx, a.rest, a.native(symbol))
	if err != nil {
		return model.Quote{}, restError(a.venue, "fetch price", symbol, err)
	}

	q := a.quote(tick, model.SourceREST, a.now())
	q.Symbol = symbol
	return q, nil
}

// SupportedSymbols returns the venue's active spot symbols in canonical
// form. The catalog is cached for CatalogTTL.
func (a *Adapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	symbols, err := a.catalog.Symbols(ctx)
	if err != nil {
		return nil, restError(a.venue, "supported symbols", "", err)
	}
	return symbols, nil
}

// OnPriceUpdate registers fn for every delivered quote.
func (a *Adapter) OnPriceUpdate(fn func(model.Quote)) uuid.UUID {
	return a.prices.Add(fn)
}

// OnError registers fn for every adapter error. Errors are *Error values.
func (a *Adapter) OnError(fn func(error)) uuid.UUID {
	return a.errs.Add(fn)
}

// RemoveObserver unregisters a price or error observer.
func (a *Adapter) RemoveObserver(id uuid.UUID) bool {
	return a.prices.Remove(id) || a.errs.Remove(id)
}

// SetAutoReconnect toggles reconnect scheduling.
func (a *Adapter) SetAutoReconnect(enabled bool) {
	a.sup.SetAutoReconnect(enabled)
}

// Subscriptions returns the subscribed canonical symbols, sorted.
func (a *Adapter) Subscriptions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.subs))
	for s := range a.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Status returns the adapter's current status.
func (a *Adapter) Status() Status {
	st := Status{
		Venue:            a.venue,
		State:            a.sup.State().String(),
		Attempts:         a.sup.Attempts(),
		Reconnects:       a.sup.Reconnects(),
		ReconnectPending: a.sup.ReconnectPending(),
		Subscriptions:    a.Subscriptions(),
		Polling:          a.poll.Stats().Symbols,
	}
	if err := a.sup.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// resetActive runs before every dial. Subscribe frames sent on an earlier
// connection do not carry over.
func (a *Adapter) resetActive() {
	a.mu.Lock()
	clear(a.active)
	a.mu.Unlock()
}

// resubscribe runs after every successful connect.
func (a *Adapter) resubscribe() {
	symbols := a.Subscriptions()
	if len(symbols) > 0 {
		a.logger.Info("resubscribing", "symbols", len(symbols))
	}

	for _, symbol := range symbols {
		if err := a.ensureSubscribed(symbol); err != nil {
			e := a.subscriptionError(symbol, err)
			a.logger.Warn("resubscribe failed", "symbol", symbol, "error", err)
			a.errs.Notify(e)
		}
	}
}

// ensureSubscribed sends the subscribe frame once per connection.
func (a *Adapter) ensureSubscribed(symbol string) error {
	a.mu.Lock()
	if _, ok := a.active[symbol]; ok {
		a.mu.Unlock()
		return nil
	}
	a.active[symbol] = struct{}{}
	a.mu.Unlock()

	msg, err := a.proto.SubscribeMessage(a.native(symbol))
	if err == nil {
		err = a.sup.Send(msg)
	}
	if err != nil {
		a.mu.Lock()
		delete(a.active, symbol)
		a.mu.Unlock()
		return err
	}

	a.logger.Debug("subscribed", "symbol", symbol)
	return nil
}

func (a *Adapter) handleMessage(msg connection.TimestampedMessage) {
	ticks, err := a.proto.HandleMessage(msg.Data)
	if err != nil {
		e := Classify(a.venue, "stream", "", err)
		if e.Kind == KindUnknown {
			e.Kind = KindParsing
		}
		e.Stream = true
		a.logger.Debug("stream message rejected", "error", err)
		a.errs.Notify(e)
	}

	for _, t := range ticks {
		q := a.quote(t, model.SourceStream, msg.ReceivedAt)

		a.mu.Lock()
		_, ok := a.subs[q.Symbol]
		if ok {
			a.lastStream[q.Symbol] = a.now()
		}
		a.mu.Unlock()

		if ok {
			a.prices.Notify(q)
		}
	}
}

func (a *Adapter) handleConnError(err error) {
	e := Classify(a.venue, "stream", "", err)
	e.Kind = KindConnection
	e.Stream = true
	a.errs.Notify(e)
}

// pollSymbol is the fallback poller's fetch function.
func (a *Adapter) pollSymbol(ctx context.Context, symbol string) error {
	q, err := a.FetchPrice(ctx, symbol)
	if err != nil {
		a.errs.Notify(err)
		return err
	}
	if a.subscribed(symbol) {
		a.prices.Notify(q)
	}
	return nil
}

func (a *Adapter) lastStreamAt(symbol string) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastStream[symbol]
}

func (a *Adapter) subscribed(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.subs[symbol]
	return ok
}

func (a *Adapter) loadSymbols(ctx context.Context) ([]SymbolInfo, error) {
	if err := a.limits.Wait(ctx, ratelimit.QuotaSymbols, 1); err != nil {
		return nil, err
	}
	return a.proto.ListSymbols(ctx, a.rest)
}

// native returns the venue spelling, preferring the catalog mapping.
func (a *Adapter) native(symbol string) string {
	if n, ok := a.catalog.Native(symbol); ok {
		return n
	}
	return a.proto.DenormalizeSymbol(symbol)
}

func (a *Adapter) canonical(native string) string {
	if s, ok := a.catalog.Canonical(native); ok {
		return s
	}
	return a.proto.NormalizeSymbol(native)
}

func (a *Adapter) quote(t Tick, src model.Source, receivedAt time.Time) model.Quote {
	ts := t.Timestamp
	if ts == 0 {
		ts = receivedAt.UnixMilli()
	}
	return model.Quote{
		Symbol:    a.canonical(t.Native),
		Exchange:  a.venue,
		Bid:       t.Bid,
		Ask:       t.Ask,
		Timestamp: ts,
		Volume24h: t.Volume24h,
		Source:    src,
	}
}

func (a *Adapter) connError(op string, err error) *Error {
	e := Classify(a.venue, op, "", err)
	e.Kind = KindConnection
	e.Stream = true
	return e
}

// restError classifies a REST failure. Transport errors on the REST path
// are API errors; connection errors belong to the stream.
func restError(venue model.Venue, op, symbol string, err error) *Error {
	e := Classify(venue, op, symbol, err)
	if e.Kind == KindUnknown || e.Kind == KindConnection {
		e.Kind = KindAPI
	}
	return e
}

func (a *Adapter) subscriptionError(symbol string, err error) *Error {
	e := Classify(a.venue, "subscribe", symbol, err)
	if e.Kind == KindUnknown || e.Kind == KindConnection {
		e.Kind = KindSubscription
	}
	e.Stream = true
	return e
}
