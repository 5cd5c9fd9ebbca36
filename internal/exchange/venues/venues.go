// Package venues builds adapters for the supported venues.
package venues

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/exchange/binance"
	"github.com/rickgao/arb-feed/internal/exchange/bitget"
	"github.com/rickgao/arb-feed/internal/exchange/bybit"
	"github.com/rickgao/arb-feed/internal/exchange/gate"
	"github.com/rickgao/arb-feed/internal/exchange/okx"
	"github.com/rickgao/arb-feed/internal/model"
)

// Protocol returns a fresh protocol for venue.
func Protocol(venue model.Venue) (exchange.Protocol, error) {
	switch venue {
	case model.Binance:
		return binance.New(), nil
	case model.Bybit:
		return bybit.New(), nil
	case model.OKX:
		return okx.New(), nil
	case model.Gate:
		return gate.New(), nil
	case model.Bitget:
		return bitget.New(), nil
	default:
		return nil, fmt.Errorf("unsupported venue %q", venue)
	}
}

// New builds an adapter for venue.
func New(venue model.Venue, cfg exchange.Config, logger *slog.Logger) (*exchange.Adapter, error) {
	proto, err := Protocol(venue)
	if err != nil {
		return nil, err
	}
	return exchange.NewAdapter(proto, cfg, logger)
}
