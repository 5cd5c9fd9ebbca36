// feed streams top-of-book quotes from every configured venue, throttles
// them through the exchange manager, and optionally journals feed errors to
// PostgreSQL and publishes quotes to Redis.
//
// Usage: go run ./cmd/feed --config configs/feed.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/arb-feed/internal/config"
	"github.com/rickgao/arb-feed/internal/database"
	"github.com/rickgao/arb-feed/internal/exchange/venues"
	"github.com/rickgao/arb-feed/internal/journal"
	"github.com/rickgao/arb-feed/internal/manager"
	"github.com/rickgao/arb-feed/internal/publish"
	"github.com/rickgao/arb-feed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feed.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	boot := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath, config.WithEnvFile(*envPath))
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting feed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"venues", cfg.EnabledVenues(),
		"symbols", cfg.Symbols,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("feed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("feed stopped")
}

func run(cfg *config.FeedConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	mgr := manager.New(cfg.ManagerSettings(), logger)
	for _, v := range cfg.EnabledVenues() {
		adapter, err := venues.New(v, cfg.AdapterConfig(v), logger)
		if err != nil {
			return fmt.Errorf("create %s adapter: %w", v, err)
		}
		mgr.RegisterAdapter(adapter)
	}

	// Feed-health journal
	var (
		pool *pgxpool.Pool
		jrnl *journal.Journal
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		p, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		pool = p
		defer pool.Close()

		jrnl = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := jrnl.Migrate(ctx); err != nil {
			return err
		}
		jrnl.Start(ctx)
		mgr.OnError(jrnl.Record)
	}

	// Redis publisher
	var (
		store *publish.RedisStore
		pub   *publish.Publisher
	)
	if cfg.Publish.Enabled {
		s, err := publish.NewRedisStore(ctx, cfg.Publish.Redis)
		if err != nil {
			return err
		}
		store = s
		defer store.Close()

		pub = publish.New(publish.Config{
			TTL:        cfg.Publish.TTL,
			BufferSize: cfg.Publish.BufferSize,
		}, store, logger)
		pub.Start(ctx)
		mgr.OnPriceUpdate(pub.Publish)
	}

	health := &healthHandler{feed: mgr, journal: jrnl, publisher: pub, logger: logger}
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           health.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	for _, r := range mgr.ConnectAll(ctx) {
		if r.Err == nil {
			logger.Info("venue connected", "venue", r.Venue)
		}
	}
	for _, r := range mgr.SubscribeToSymbols(ctx, cfg.Symbols) {
		if r.Err == nil {
			logger.Info("venue subscribed", "venue", r.Venue, "symbols", len(cfg.Symbols))
		}
	}

	logger.Info("feed running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	statusTicker := time.NewTicker(time.Minute)
	defer statusTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-statusTicker.C:
			for _, s := range mgr.Stats() {
				logger.Info("venue status",
					"venue", s.Venue,
					"state", s.State,
					"subscriptions", len(s.Subscriptions),
					"emitted", s.Emitted,
					"coalesced", s.Coalesced,
					"errors", s.Errors,
				)
			}
		}
	}

	logger.Info("shutting down...")

	mgr.DisconnectAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if pub != nil {
		if err := pub.Stop(shutdownCtx); err != nil {
			logger.Warn("publisher stop failed", "error", err)
		}
	}
	if jrnl != nil {
		if err := jrnl.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop failed", "error", err)
		}
	}

	healthServer.Shutdown(shutdownCtx)
	return nil
}
