package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/connection"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Kind classifies adapter errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindSubscription
	KindAPI
	KindRateLimit
	KindParsing
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection_error"
	case KindSubscription:
		return "subscription_error"
	case KindAPI:
		return "api_error"
	case KindRateLimit:
		return "rate_limit_error"
	case KindParsing:
		return "parsing_error"
	case KindTimeout:
		return "timeout_error"
	default:
		return "unknown_error"
	}
}

var (
	// ErrMalformed marks a venue payload missing required fields or
	// carrying values that do not parse.
	ErrMalformed = errors.New("malformed payload")

	// ErrSymbolNotFound is returned when a venue has no ticker for a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Error is the typed error every adapter operation returns.
type Error struct {
	Kind       Kind
	Venue      model.Venue
	Op         string
	Symbol     string
	Stream     bool          // Raised from the WebSocket path rather than REST
	RetryAfter time.Duration // Set for KindRateLimit when the venue sent one
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Venue, e.Op)
	if e.Symbol != "" {
		msg += " " + e.Symbol
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// VenueError is an application-level rejection carried in an HTTP 200 body
// or a stream acknowledgement.
type VenueError struct {
	Code    string
	Message string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error %s: %s", e.Code, e.Message)
}

// SubscriptionError marks a stream acknowledgement that rejected a
// subscribe or unsubscribe request.
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("subscription rejected: %v", e.Err)
	}
	return fmt.Sprintf("subscription %s rejected: %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify wraps err in an *Error, deriving the Kind from its chain.
// An err that already is an *Error keeps its Kind and gains any missing
// venue, op or symbol.
func Classify(venue model.Venue, op, symbol string, err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		out := *existing
		if out.Venue == "" {
			out.Venue = venue
		}
		if out.Op == "" {
			out.Op = op
		}
		if out.Symbol == "" {
			out.Symbol = symbol
		}
		return &out
	}

	e := &Error{Kind: KindUnknown, Venue: venue, Op: op, Symbol: symbol, Err: err}

	var apiErr *api.APIError
	var subErr *SubscriptionError
	var venueErr *VenueError
	var netErr net.Error

	switch {
	case errors.As(err, &subErr):
		e.Kind = KindSubscription
	case errors.As(err, &apiErr):
		if apiErr.IsRateLimited() {
			e.Kind = KindRateLimit
			e.RetryAfter = apiErr.RetryAfter
		} else {
			e.Kind = KindAPI
		}
	case errors.As(err, &venueErr), errors.Is(err, ErrSymbolNotFound):
		e.Kind = KindAPI
	case errors.Is(err, ErrMalformed), errors.Is(err, api.ErrDecode):
		e.Kind = KindParsing
	case errors.Is(err, ratelimit.ErrWaitExceeded), errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
	case errors.Is(err, connection.ErrNotConnected),
		errors.Is(err, connection.ErrStaleConnection),
		errors.As(err, &netErr):
		e.Kind = KindConnection
	}

	return e
}
