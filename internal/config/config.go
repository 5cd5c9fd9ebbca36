package config

import (
	"time"

	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/manager"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// FeedConfig is the top-level config for the feed service.
type FeedConfig struct {
	Log     LogConfig              `yaml:"log"`
	Manager ManagerConfig          `yaml:"manager"`
	Symbols []string               `yaml:"symbols"`
	Venues  map[string]VenueConfig `yaml:"venues"`
	Health  HealthConfig           `yaml:"health"`
	Journal JournalConfig          `yaml:"journal"`
	Publish PublishConfig          `yaml:"publish"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ManagerConfig configures the exchange manager.
type ManagerConfig struct {
	MaxUpdatesPerSecond int   `yaml:"max_updates_per_second"`
	AutoReconnect       *bool `yaml:"auto_reconnect"`
	LogErrors           *bool `yaml:"log_errors"`
}

// VenueConfig overrides one venue's adapter settings. Zero values fall back
// to the venue's own defaults.
type VenueConfig struct {
	Enabled           *bool                      `yaml:"enabled"`
	RestURL           string                     `yaml:"rest_url"`
	WSURL             string                     `yaml:"ws_url"`
	APIKey            string                     `yaml:"api_key"`
	APISecret         string                     `yaml:"api_secret"`
	ReconnectDelay    time.Duration              `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration              `yaml:"max_reconnect_delay"`
	MaxRetries        int                        `yaml:"max_retries"`
	PollInterval      time.Duration              `yaml:"poll_interval"`
	Freshness         time.Duration              `yaml:"freshness"`
	RequestTimeout    time.Duration              `yaml:"request_timeout"`
	KeepaliveInterval time.Duration              `yaml:"keepalive_interval"`
	StaleTimeout      time.Duration              `yaml:"stale_timeout"`
	RateLimits        map[string]RateLimitConfig `yaml:"rate_limits"`
}

// RateLimitConfig is one named token bucket.
type RateLimitConfig struct {
	Capacity       int           `yaml:"capacity"`
	RefillInterval time.Duration `yaml:"refill_interval"`
	InitialTokens  *int          `yaml:"initial_tokens"`
}

// HealthConfig configures the health endpoint.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// JournalConfig configures the feed-health journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PublishConfig configures the Redis quote publisher.
type PublishConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Redis      RedisConfig   `yaml:"redis"`
	TTL        time.Duration `yaml:"ttl"`
	BufferSize int           `yaml:"buffer_size"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EnabledVenues returns the venues to run, in display order.
func (c *FeedConfig) EnabledVenues() []model.Venue {
	var out []model.Venue
	for _, v := range model.Venues {
		vc, ok := c.Venues[string(v)]
		if !ok {
			continue
		}
		if vc.Enabled != nil && !*vc.Enabled {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ManagerSettings converts the manager section.
func (c *FeedConfig) ManagerSettings() manager.Config {
	return manager.Config{
		MaxUpdatesPerSecond: c.Manager.MaxUpdatesPerSecond,
		AutoReconnect:       boolOr(c.Manager.AutoReconnect, true),
		LogErrors:           boolOr(c.Manager.LogErrors, true),
	}
}

// AdapterConfig builds the adapter config for venue. Unset fields keep
// exchange.DefaultConfig values.
func (c *FeedConfig) AdapterConfig(venue model.Venue) exchange.Config {
	vc := c.Venues[string(venue)]
	cfg := exchange.DefaultConfig()

	cfg.RestURL = vc.RestURL
	cfg.WSURL = vc.WSURL
	cfg.APIKey = vc.APIKey
	cfg.APISecret = vc.APISecret
	cfg.AutoReconnect = boolOr(c.Manager.AutoReconnect, true)
	cfg.PollInterval = vc.PollInterval
	cfg.KeepaliveInterval = vc.KeepaliveInterval

	if vc.ReconnectDelay > 0 {
		cfg.ReconnectDelay = vc.ReconnectDelay
	}
	if vc.MaxReconnectDelay > 0 {
		cfg.MaxReconnectDelay = vc.MaxReconnectDelay
	}
	if vc.MaxRetries > 0 {
		cfg.MaxRetries = vc.MaxRetries
	}
	if vc.Freshness > 0 {
		cfg.Freshness = vc.Freshness
	}
	if vc.RequestTimeout > 0 {
		cfg.RequestTimeout = vc.RequestTimeout
	}
	if vc.StaleTimeout > 0 {
		cfg.StaleTimeout = vc.StaleTimeout
	}

	if len(vc.RateLimits) > 0 {
		cfg.RateLimits = make(map[string]ratelimit.Config, len(vc.RateLimits))
		for name, rl := range vc.RateLimits {
			cfg.RateLimits[name] = ratelimit.Config{
				Capacity:       rl.Capacity,
				RefillInterval: rl.RefillInterval,
			}
			if rl.InitialTokens != nil {
				if cfg.InitialTokens == nil {
					cfg.InitialTokens = make(map[string]int)
				}
				cfg.InitialTokens[name] = *rl.InitialTokens
			}
		}
	}

	return cfg
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
