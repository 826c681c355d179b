package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/slotbot/config"
	"github.com/alejandrodnm/slotbot/internal/adapters/feed"
	"github.com/alejandrodnm/slotbot/internal/adapters/polymarket"
)

// runDiscover fetches the next batch of hourly markets and appends them to
// the markets file (-discover mode).
func runDiscover(ctx context.Context, client *polymarket.Client, markets *feed.FileFeed, cfg *config.Config) {
	slog.Info("discovering upcoming markets",
		"assets", cfg.Monitor.Assets,
		"slots", cfg.Discovery.SlotCount,
	)

	defs, err := client.FetchUpcomingSlots(ctx, cfg.Monitor.Assets, cfg.Discovery.SlotCount)
	if err != nil {
		slog.Error("discovery failed", "err", err)
		os.Exit(1)
	}

	added, err := markets.AppendSlots(defs)
	if err != nil {
		slog.Error("failed to update markets file", "err", err)
		os.Exit(1)
	}
	slog.Info("markets file updated",
		"file", cfg.Discovery.MarketsFile,
		"discovered", len(defs),
		"added", added,
	)
}

// discoveryLoop refreshes the markets file in the background so the monitor
// never runs out of upcoming slots. Failures are logged and retried on the
// next cycle.
func discoveryLoop(ctx context.Context, client *polymarket.Client, markets *feed.FileFeed, cfg *config.Config) {
	ticker := time.NewTicker(cfg.DiscoveryInterval())
	defer ticker.Stop()

	refresh := func() {
		defs, err := client.FetchUpcomingSlots(ctx, cfg.Monitor.Assets, cfg.Discovery.SlotCount)
		if err != nil {
			slog.Warn("background discovery failed", "err", err)
			return
		}
		added, err := markets.AppendSlots(defs)
		if err != nil {
			slog.Warn("failed to update markets file", "err", err)
			return
		}
		if added > 0 {
			slog.Info("background discovery added slots", "added", added)
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
