// Package model defines the shared data types of the exchange feed.
//
// Conventions:
//   - Symbols: canonical BASE-QUOTE, uppercase, single hyphen (e.g. "BTC-USDT")
//   - Prices: float64 in quote currency units
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Venues: lowercase identifiers (e.g. "binance")
package model
