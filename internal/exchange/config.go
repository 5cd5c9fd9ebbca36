package exchange

import (
	"time"

	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Config configures an Adapter. Zero URLs, poll interval, keepalive
// interval and rate limits are filled from the protocol's Defaults.
type Config struct {
	RestURL   string
	WSURL     string
	APIKey    string
	APISecret string

	ReconnectDelay    time.Duration // Backoff base
	MaxReconnectDelay time.Duration // Backoff ceiling
	MaxRetries        int           // Consecutive reconnects before giving up
	AutoReconnect     bool

	PollInterval    time.Duration // REST fallback interval
	Freshness       time.Duration // Stream age below which a poll is skipped
	PollConcurrency int

	RequestTimeout    time.Duration
	RESTRetries       int
	KeepaliveInterval time.Duration
	StaleTimeout      time.Duration // No inbound traffic for this long drops the socket
	CatalogTTL        time.Duration

	RateLimits    map[string]ratelimit.Config
	InitialTokens map[string]int
}

// DefaultConfig returns venue-independent defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 60 * time.Second,
		MaxRetries:        10,
		AutoReconnect:     true,
		Freshness:         10 * time.Second,
		PollConcurrency:   4,
		RequestTimeout:    10 * time.Second,
		RESTRetries:       2,
		StaleTimeout:      60 * time.Second,
		CatalogTTL:        time.Hour,
	}
}

// withDefaults fills venue-specific gaps from d.
func (c Config) withDefaults(d Defaults) Config {
	if c.RestURL == "" {
		c.RestURL = d.RestURL
	}
	if c.WSURL == "" {
		c.WSURL = d.WSURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 20 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}

	limits := make(map[string]ratelimit.Config, len(d.RateLimits)+len(c.RateLimits))
	for name, rl := range d.RateLimits {
		limits[name] = rl
	}
	for name, rl := range c.RateLimits {
		limits[name] = rl
	}
	if _, ok := limits[ratelimit.QuotaDefault]; !ok {
		limits[ratelimit.QuotaDefault] = ratelimit.Config{Capacity: 10, RefillInterval: time.Second}
	}
	c.RateLimits = limits

	return c
}
