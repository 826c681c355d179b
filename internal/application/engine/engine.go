package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
	"github.com/alejandrodnm/slotbot/internal/ports"
)

const (
	defaultTickInterval = 5 * time.Second
	defaultDrainTimeout = 5 * time.Second

	// Completion reports are tiny; the buffer just keeps trade goroutines
	// from blocking while the engine is mid-refill.
	doneBuffer = 64
)

// Config holds the monitor's tunables, fixed at construction.
type Config struct {
	MaxConcurrentSlots int
	WindowSize         int
	TradeAmountUSD     float64
	LimitOffset        float64
	TickInterval       time.Duration
	DrainTimeout       time.Duration
}

// Engine owns the slot lifecycle: it keeps the rolling window of pending
// definitions filled, activates slots on schedule under the concurrency cap,
// spawns one monitoring goroutine per trade, and reaps finished slots.
//
// The pending buffer and active set are owned exclusively by the Run
// goroutine. Trade goroutines report completion through doneCh and never
// touch them directly.
type Engine struct {
	cfg    Config
	feed   ports.SlotFeed
	prices ports.PriceSource
	stream ports.TickStream
	store  ports.TradeStorage
	notify ports.Notifier

	clock func() time.Time

	pending []domain.SlotDefinition
	active  []*activeSlot

	doneCh chan tradeDone
	wg     sync.WaitGroup
}

// activeSlot is the engine's bookkeeping around one Active slot.
type activeSlot struct {
	slot      *domain.Slot
	results   []domain.TradeResult
	remaining int // trades not yet terminal
}

// tradeDone is a trade goroutine's completion report.
// result is nil for trades that aborted with an error outcome.
type tradeDone struct {
	slotID string
	result *domain.TradeResult
}

// New creates an Engine. Zero durations fall back to defaults.
func New(cfg Config, feed ports.SlotFeed, prices ports.PriceSource, stream ports.TickStream, store ports.TradeStorage, notify ports.Notifier) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Engine{
		cfg:    cfg,
		feed:   feed,
		prices: prices,
		stream: stream,
		store:  store,
		notify: notify,
		clock:  time.Now,
		doneCh: make(chan tradeDone, doneBuffer),
	}
}

// Run drives the tick/reap cadence until ctx is cancelled, then drains
// in-flight trades with a bounded wait.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.Tick(ctx, e.clock())

	for {
		select {
		case <-ctx.Done():
			return e.drain()
		case done := <-e.doneCh:
			e.recordDone(done)
		case <-ticker.C:
			now := e.clock()
			e.Reap(now)
			e.Tick(ctx, now)
		}
	}
}

// recordDone applies a trade goroutine's completion report to its slot.
func (e *Engine) recordDone(done tradeDone) {
	for _, as := range e.active {
		if as.slot.ID != done.slotID {
			continue
		}
		as.remaining--
		if done.result != nil {
			as.results = append(as.results, *done.result)
			as.slot.Trades = append(as.slot.Trades, done.result.Trade)
		}
		return
	}
	slog.Warn("engine: completion report for unknown slot", "slot", done.slotID)
}

// drain waits for in-flight trades to finish their last writes — a short
// best-effort wait, not unbounded blocking.
func (e *Engine) drain() error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("engine: all trades drained")
	case <-time.After(e.cfg.DrainTimeout):
		slog.Warn("engine: drain timeout, exiting with trades in flight")
	}
	return nil
}

// ActiveSlots returns the number of slots currently active.
func (e *Engine) ActiveSlots() int {
	return len(e.active)
}

// PendingSlots returns the number of buffered definitions.
func (e *Engine) PendingSlots() int {
	return len(e.pending)
}
