package config

import (
	"time"

	"github.com/rickgao/arb-feed/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultMaxUpdatesPerSecond = 10
	DefaultHealthPort          = 8080
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultBatchSize           = 100
	DefaultFlushInterval       = 2 * time.Second
	DefaultBufferSize          = 1000
	DefaultRedisAddr           = "localhost:6379"
	DefaultPublishTTL          = 30 * time.Second
)

// DefaultSymbols is used when the config lists none.
var DefaultSymbols = []string{"BTC-USDT", "ETH-USDT"}

func (c *FeedConfig) applyDefaults() {
	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Manager defaults
	if c.Manager.MaxUpdatesPerSecond == 0 {
		c.Manager.MaxUpdatesPerSecond = DefaultMaxUpdatesPerSecond
	}

	if len(c.Symbols) == 0 {
		c.Symbols = append([]string(nil), DefaultSymbols...)
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = model.NormalizeSymbol(s)
	}

	// Venue defaults
	if len(c.Venues) == 0 {
		c.Venues = make(map[string]VenueConfig, len(model.Venues))
		for _, v := range model.Venues {
			c.Venues[string(v)] = VenueConfig{}
		}
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Publish defaults
	if c.Publish.Redis.Addr == "" {
		c.Publish.Redis.Addr = DefaultRedisAddr
	}
	if c.Publish.TTL == 0 {
		c.Publish.TTL = DefaultPublishTTL
	}
	if c.Publish.BufferSize == 0 {
		c.Publish.BufferSize = DefaultBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
