package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// SlotFeed supplies pending slot definitions from an external source.
type SlotFeed interface {
	// Pull returns up to max definitions whose start is after the given
	// instant, in scheduled order, plus whether the source may produce
	// more later. An empty result with more=true is feed exhaustion:
	// non-fatal, retry on the next cadence.
	Pull(ctx context.Context, max int, after time.Time) ([]domain.SlotDefinition, bool, error)
}
