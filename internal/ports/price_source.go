package ports

import (
	"context"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// PriceSource fetches the current price of a single token.
type PriceSource interface {
	// FetchPrice returns the current BUY price for a token. One round trip
	// with a short timeout and no retry — the caller decides what a
	// failure means.
	FetchPrice(ctx context.Context, tokenID string) (float64, error)
}

// TickStream multiplexes one streaming connection across all open trades.
// Subscribe and Unsubscribe mutate a shared subscription set; the set
// survives reconnects.
type TickStream interface {
	// Subscribe adds the token to the subscription set and returns the
	// channel its ticks are delivered on, in stream order.
	Subscribe(tokenID string) (<-chan domain.Tick, error)

	// Unsubscribe withdraws interest in the token and closes its channel.
	// Ticks already buffered for it are dropped.
	Unsubscribe(tokenID string)
}
