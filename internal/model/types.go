package model

import (
	"fmt"
	"strings"
)

// Venue identifies an exchange.
type Venue string

const (
	Binance Venue = "binance"
	Bybit   Venue = "bybit"
	OKX     Venue = "okx"
	Gate    Venue = "gate"
	Bitget  Venue = "bitget"
)

// Venues lists every supported venue in display order.
var Venues = []Venue{Binance, Bybit, OKX, Gate, Bitget}

// ParseVenue resolves a case-insensitive venue name.
func ParseVenue(name string) (Venue, error) {
	v := Venue(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Venues {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown venue %q", name)
}

// Source marks where a quote came from.
type Source string

const (
	SourceStream Source = "ws"
	SourceREST   Source = "rest"
)

// Quote is the top of book for one symbol on one venue.
//
// Bid <= Ask is not enforced. Venues occasionally publish a crossed book
// for a few milliseconds and the quote is passed through as received.
type Quote struct {
	Symbol    string   `json:"symbol"`
	Exchange  Venue    `json:"exchange"`
	Bid       float64  `json:"bid"`
	Ask       float64  `json:"ask"`
	Timestamp int64    `json:"timestamp"` // ms since epoch, venue clock when available
	Volume24h *float64 `json:"volume_24h,omitempty"`
	Source    Source   `json:"source"`
}

// Inverted reports whether the quote is a crossed book (bid above ask).
func (q Quote) Inverted() bool {
	return q.Bid > q.Ask
}

// Mid returns the midpoint price.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
