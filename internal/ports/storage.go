package ports

import (
	"context"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// TradeStorage persists trades and their tick history. Safe for concurrent
// calls across different trade IDs.
type TradeStorage interface {
	// ApplySchema creates the tables if they don't exist.
	ApplySchema(ctx context.Context) error

	// CreateTrade inserts a trade at the AwaitingFill→Open transition, so
	// an open trade is durably visible before it resolves.
	CreateTrade(ctx context.Context, t *domain.Trade) error

	// RecordTick appends one tick sample for an open trade.
	RecordTick(ctx context.Context, tradeID string, tick domain.Tick) error

	// ResolveTrade writes the exit, outcome, metrics and P&L. Called once
	// per trade.
	ResolveTrade(ctx context.Context, res domain.TradeResult) error

	// CurrentEquity returns starting equity plus the sum of resolved P&L.
	CurrentEquity(ctx context.Context) (float64, error)

	// Stats returns the aggregate ledger across the whole run.
	Stats(ctx context.Context) (domain.LedgerStats, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
