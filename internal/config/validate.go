package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rickgao/arb-feed/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *FeedConfig) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Manager.MaxUpdatesPerSecond < 1 {
		return errors.New("manager.max_updates_per_second must be >= 1")
	}

	if len(c.Symbols) == 0 {
		return errors.New("symbols is required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return errors.New("symbols must not contain empty entries")
		}
	}

	names := make([]string, 0, len(c.Venues))
	for name := range c.Venues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := model.ParseVenue(name); err != nil {
			return fmt.Errorf("venues.%s: %w", name, err)
		}
		vc := c.Venues[name]
		if err := vc.validate("venues." + name); err != nil {
			return err
		}
	}
	if len(c.EnabledVenues()) == 0 {
		return errors.New("venues: at least one venue must be enabled")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be > 0")
		}
	}

	if c.Publish.Enabled {
		if c.Publish.Redis.Addr == "" {
			return errors.New("publish.redis.addr is required")
		}
		if c.Publish.Redis.DB < 0 {
			return errors.New("publish.redis.db must be >= 0")
		}
		if c.Publish.TTL <= 0 {
			return errors.New("publish.ttl must be > 0")
		}
		if c.Publish.BufferSize < 1 {
			return errors.New("publish.buffer_size must be >= 1")
		}
	}

	return nil
}

func (v *VenueConfig) validate(prefix string) error {
	if v.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be >= 0", prefix)
	}
	if v.ReconnectDelay < 0 || v.MaxReconnectDelay < 0 {
		return fmt.Errorf("%s reconnect delays must be >= 0", prefix)
	}
	if v.MaxReconnectDelay > 0 && v.ReconnectDelay > v.MaxReconnectDelay {
		return fmt.Errorf("%s.reconnect_delay (%v) cannot exceed max_reconnect_delay (%v)",
			prefix, v.ReconnectDelay, v.MaxReconnectDelay)
	}
	if v.PollInterval < 0 {
		return fmt.Errorf("%s.poll_interval must be >= 0", prefix)
	}

	for name, rl := range v.RateLimits {
		p := fmt.Sprintf("%s.rate_limits.%s", prefix, name)
		if rl.Capacity < 1 {
			return fmt.Errorf("%s.capacity must be >= 1", p)
		}
		if rl.RefillInterval <= 0 {
			return fmt.Errorf("%s.refill_interval must be > 0", p)
		}
		if rl.InitialTokens != nil && (*rl.InitialTokens < 0 || *rl.InitialTokens > rl.Capacity) {
			return fmt.Errorf("%s.initial_tokens must be between 0 and %d", p, rl.Capacity)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
