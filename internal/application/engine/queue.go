package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// Tick refills the pending buffer when it runs dry and activates every
// pending slot whose scheduled start has arrived, in strict scheduled-time
// order, never exceeding the concurrency cap. Idempotent: calling it again
// with the same clock does nothing new.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	if len(e.pending) == 0 {
		e.refill(ctx, now)
	}

	for len(e.active) < e.cfg.MaxConcurrentSlots && len(e.pending) > 0 {
		next := e.pending[0]

		// A slot that already ended can't be traded; drop and move on.
		if !next.EndAt.After(now) {
			slog.Info("engine: skipping expired slot", "slot", next.Label)
			e.pending = e.pending[1:]
			continue
		}

		// Strict order: if the head isn't due yet, nothing behind it
		// activates either.
		if next.StartAt.After(now) {
			return
		}

		e.pending = e.pending[1:]
		e.activate(ctx, next)
	}
}

// activate promotes a definition to an active slot and launches one trade
// goroutine per market in it.
func (e *Engine) activate(ctx context.Context, def domain.SlotDefinition) {
	slot := domain.NewSlot(def)
	as := &activeSlot{slot: slot, remaining: len(def.Markets)}
	e.active = append(e.active, as)

	slog.Info("engine: slot activated",
		"slot", def.Label,
		"markets", len(def.Markets),
		"active", len(e.active),
	)

	for _, mkt := range def.Markets {
		e.wg.Add(1)
		go func(mkt domain.SlotMarket) {
			defer e.wg.Done()
			e.runTrade(ctx, slot, mkt)
		}(mkt)
	}
}

// refill pulls a fresh window of definitions from the feed. Exhaustion is
// non-fatal: log and retry on the next cadence.
func (e *Engine) refill(ctx context.Context, now time.Time) {
	defs, _, err := e.feed.Pull(ctx, e.cfg.WindowSize, now)
	if err != nil {
		slog.Warn("engine: feed pull failed", "err", err)
		return
	}
	if len(defs) == 0 {
		slog.Warn("engine: feed exhausted, retrying next cycle")
		return
	}
	e.pending = defs
	slog.Info("engine: queue refilled", "pending", len(defs), "next", defs[0].Label)
}

// Reap moves out active slots whose trades are all terminal and whose window
// has elapsed, emitting the slot summary on the way out.
func (e *Engine) Reap(now time.Time) {
	kept := e.active[:0]
	for _, as := range e.active {
		if as.remaining > 0 || !as.slot.Expired(now) {
			kept = append(kept, as)
			continue
		}
		as.slot.State = domain.SlotResolved
		slog.Info("engine: slot done",
			"slot", as.slot.Definition.Label,
			"trades", len(as.results),
		)

		equity, err := e.store.CurrentEquity(context.WithoutCancel(context.Background()))
		if err != nil {
			slog.Warn("engine: equity lookup failed", "err", err)
		}
		e.notify.SlotSummary(as.slot.Definition.Label, as.results, equity)
	}
	e.active = kept
}
