package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/slotbot/config"
	"github.com/alejandrodnm/slotbot/internal/adapters/feed"
	"github.com/alejandrodnm/slotbot/internal/adapters/notify"
	"github.com/alejandrodnm/slotbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/slotbot/internal/adapters/storage"
	"github.com/alejandrodnm/slotbot/internal/application/engine"
	"github.com/alejandrodnm/slotbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	discover := flag.Bool("discover", false, "fetch upcoming markets into the markets file and exit")
	stats := flag.Bool("stats", false, "print the trade ledger summary and exit")
	table := flag.Bool("table", false, "print the full per-slot table (default: compact 1-line)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	markets := feed.NewFileFeed(cfg.Discovery.MarketsFile, cfg.Monitor.Assets, cfg.SlotDuration())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *discover {
		runDiscover(ctx, client, markets, cfg)
		return
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, cfg.Monitor.StartingEquity)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(*table)
	if *stats {
		runStats(ctx, store, console)
		return
	}

	slog.Info("slotbot starting",
		"config", *configPath,
		"assets", cfg.Monitor.Assets,
		"max_concurrent", cfg.Monitor.MaxConcurrentSlots,
		"window", cfg.Monitor.WindowSize,
		"trade_amount", cfg.Monitor.TradeAmountUSD,
	)

	var notifier ports.Notifier = console
	if cfg.Telegram.BotToken != "" {
		notifier = notify.Multi{console, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)}
		slog.Info("telegram alerts enabled")
	}

	stream := polymarket.NewStream(cfg.API.WSURL)
	if err := stream.Start(ctx); err != nil {
		slog.Error("failed to connect market stream", "err", err)
		os.Exit(1)
	}
	defer stream.Stop()

	go discoveryLoop(ctx, client, markets, cfg)

	eng := engine.New(engine.Config{
		MaxConcurrentSlots: cfg.Monitor.MaxConcurrentSlots,
		WindowSize:         cfg.Monitor.WindowSize,
		TradeAmountUSD:     cfg.Monitor.TradeAmountUSD,
		LimitOffset:        cfg.Monitor.LimitOffset,
		TickInterval:       cfg.TickInterval(),
	}, markets, client, stream, store, notifier)

	if err := eng.Run(ctx); err != nil {
		slog.Error("monitor exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("slotbot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
