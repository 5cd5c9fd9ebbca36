// venuecheck connects a single venue, subscribes to symbols and prints every
// quote and error to the console. Use it to smoke-test a venue protocol.
//
// Usage: go run ./cmd/venuecheck --venue okx --symbols BTC-USDT,ETH-USDT
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/config"
	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/exchange/venues"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/queue"
)

func main() {
	venueName := flag.String("venue", "binance", "venue to check")
	symbolList := flag.String("symbols", "BTC-USDT", "comma-separated canonical symbols")
	configPath := flag.String("config", "", "optional feed config for venue overrides")
	listSymbols := flag.Bool("list", false, "print the venue's supported symbol count and exit")
	verbose := flag.Bool("verbose", false, "print full quote JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	venue, err := model.ParseVenue(*venueName)
	if err != nil {
		logger.Error("invalid venue", "error", err)
		os.Exit(1)
	}

	adapterCfg := exchange.DefaultConfig()
	if *configPath != "" {
		cfg, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		adapterCfg = cfg.AdapterConfig(venue)
	}

	adapter, err := venues.New(venue, adapterCfg, logger)
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if *listSymbols {
		symbols, err := adapter.SupportedSymbols(ctx)
		if err != nil {
			logger.Error("failed to list symbols", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s supports %d symbols\n", venue, len(symbols))
		return
	}

	quotes := queue.New[model.Quote](64, 4096)
	adapter.OnPriceUpdate(func(q model.Quote) { quotes.Send(q) })
	adapter.OnError(func(err error) {
		fmt.Printf("[ERROR] kind=%s %v\n", exchange.KindOf(err), err)
	})

	go printQuotes(quotes, *verbose)

	if err := adapter.Connect(ctx); err != nil {
		logger.Warn("stream connect failed, relying on rest fallback", "error", err)
	}
	for _, s := range strings.Split(*symbolList, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		if err := adapter.SubscribeToSymbol(ctx, s); err != nil {
			logger.Warn("subscribe failed", "symbol", s, "error", err)
		}
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := adapter.Status()
				qs := quotes.Stats()
				logger.Info("stats",
					"state", st.State,
					"subscriptions", st.Subscriptions,
					"reconnects", st.Reconnects,
					"quotes", qs.TotalReceived,
					"dropped", qs.Dropped,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "venue", venue)

	<-ctx.Done()

	logger.Info("shutting down...")
	adapter.Disconnect()
	quotes.Close()
	logger.Info("shutdown complete")
}

func printQuotes(quotes *queue.Ring[model.Quote], verbose bool) {
	for {
		q, ok := quotes.Receive()
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(q, "", "  ")
			fmt.Printf("[QUOTE] %s\n", data)
			continue
		}

		spread := q.Ask - q.Bid
		mark := ""
		if q.Inverted() {
			mark = " INVERTED"
		}
		fmt.Printf("[QUOTE %s] %s bid=%g ask=%g spread=%g ts=%d%s\n",
			q.Source, q.Symbol, q.Bid, q.Ask, spread, q.Timestamp, mark)
	}
}
