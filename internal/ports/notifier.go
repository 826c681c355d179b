package ports

import (
	"github.com/alejandrodnm/slotbot/internal/domain"
)

// Notifier emits trade lifecycle events. Implementations are fire-and-forget:
// delivery failure is logged and swallowed, never surfaced to the caller and
// never retried synchronously.
type Notifier interface {
	// TradeOpened fires after a trade is persisted and its limit is set.
	TradeOpened(t *domain.Trade, equity float64)

	// LimitHit fires when the tracked bid reaches the limit price.
	LimitHit(res domain.TradeResult)

	// SlotExpired fires when a trade times out at the slot deadline.
	SlotExpired(res domain.TradeResult)

	// SlotSummary fires once per slot after all its trades resolved.
	SlotSummary(slotLabel string, results []domain.TradeResult, equity float64)
}
