package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alejandrodnm/slotbot/internal/adapters/notify"
	"github.com/alejandrodnm/slotbot/internal/adapters/storage"
)

// runStats prints the aggregate trade ledger (-stats mode).
func runStats(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console) {
	st, err := store.Stats(ctx)
	if err != nil {
		slog.Error("failed to read ledger stats", "err", err)
		os.Exit(1)
	}
	console.PrintStats(st)
}
