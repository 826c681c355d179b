package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// runTrade executes the full lifecycle of one simulated trade: fetch both
// side prices, pick the richer side, simulate an instant fill, then watch
// live ticks until the limit sell fills or the slot window closes.
//
// Trades that fail before opening (price fetch error, degenerate price) are
// never persisted; they report back with a nil result so the slot can still
// be reaped.
func (e *Engine) runTrade(ctx context.Context, slot *domain.Slot, mkt domain.SlotMarket) {
	trade, err := e.openTrade(ctx, slot, mkt)
	if err != nil {
		slog.Error("trade: open failed",
			"slot", slot.Definition.Label, "asset", mkt.Asset, "err", err)
		e.doneCh <- tradeDone{slotID: slot.ID}
		return
	}

	res := e.monitorTrade(ctx, slot, trade)
	e.doneCh <- tradeDone{slotID: slot.ID, result: res}
}

// openTrade fetches both side prices, selects the side and simulates the fill.
// The trade is persisted as pending before any tick is consumed.
func (e *Engine) openTrade(ctx context.Context, slot *domain.Slot, mkt domain.SlotMarket) (*domain.Trade, error) {
	yesPrice, noPrice, err := e.fetchBothPrices(ctx, mkt)
	if err != nil {
		return nil, err
	}

	side, entry := domain.SelectSide(yesPrice, noPrice)
	if entry <= 0 || entry >= 1 {
		return nil, fmt.Errorf("engine.openTrade: degenerate entry price %.4f for %s", entry, mkt.Asset)
	}

	tokenID := mkt.YesTokenID
	if side == domain.SideNo {
		tokenID = mkt.NoTokenID
	}

	trade := &domain.Trade{
		ID:         uuid.NewString(),
		SlotID:     slot.ID,
		Asset:      mkt.Asset,
		TokenID:    tokenID,
		Side:       side,
		YesPrice:   yesPrice,
		NoPrice:    noPrice,
		EntryPrice: entry,
		LimitPrice: domain.LimitFor(entry, e.cfg.LimitOffset),
		AmountUSD:  e.cfg.TradeAmountUSD,
		Shares:     e.cfg.TradeAmountUSD / entry,
		State:      domain.TradeOpen,
		OpenedAt:   e.clock(),
	}

	if err := e.store.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("engine.openTrade: persist: %w", err)
	}

	equity, err := e.store.CurrentEquity(ctx)
	if err != nil {
		slog.Warn("trade: equity lookup failed", "err", err)
	}
	e.notify.TradeOpened(trade, equity)

	slog.Info("trade: opened",
		"asset", trade.Asset, "side", trade.Side,
		"entry", trade.EntryPrice, "limit", trade.LimitPrice,
		"shares", trade.Shares,
	)
	return trade, nil
}

// fetchBothPrices queries the YES and NO buy prices concurrently. A single
// failed fetch aborts the trade; there is no retry at this level.
func (e *Engine) fetchBothPrices(ctx context.Context, mkt domain.SlotMarket) (float64, float64, error) {
	type fetched struct {
		price float64
		err   error
	}
	yesCh := make(chan fetched, 1)
	noCh := make(chan fetched, 1)

	go func() {
		p, err := e.prices.FetchPrice(ctx, mkt.YesTokenID)
		yesCh <- fetched{p, err}
	}()
	go func() {
		p, err := e.prices.FetchPrice(ctx, mkt.NoTokenID)
		noCh <- fetched{p, err}
	}()

	yes, no := <-yesCh, <-noCh
	if yes.err != nil {
		return 0, 0, fmt.Errorf("engine.fetchBothPrices: YES %s: %w", mkt.Asset, yes.err)
	}
	if no.err != nil {
		return 0, 0, fmt.Errorf("engine.fetchBothPrices: NO %s: %w", mkt.Asset, no.err)
	}
	return yes.price, no.price, nil
}

// monitorTrade consumes live ticks until the limit is reached or the slot
// deadline fires. It returns nil only when the context is cancelled with the
// trade still open.
func (e *Engine) monitorTrade(ctx context.Context, slot *domain.Slot, trade *domain.Trade) *domain.TradeResult {
	ticks, err := e.stream.Subscribe(trade.TokenID)
	if err != nil {
		// Without ticks the limit can never fill; resolve at entry when
		// the window closes.
		slog.Warn("trade: subscribe failed, monitoring blind",
			"asset", trade.Asset, "err", err)
	}
	defer e.stream.Unsubscribe(trade.TokenID)

	deadline := time.NewTimer(slot.Definition.EndAt.Sub(e.clock()))
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trade: shutdown with trade open",
				"asset", trade.Asset, "ticks", len(trade.Ticks))
			return nil

		case tick, ok := <-ticks:
			if !ok {
				ticks = nil // stream torn down; wait for the deadline
				continue
			}
			if res := e.applyTick(ctx, trade, tick); res != nil {
				return res
			}

		case <-deadline.C:
			// Ticks already buffered when the deadline fires still
			// count: a limit crossed before expiry wins.
			for drained := false; !drained; {
				select {
				case tick, ok := <-ticks:
					if !ok {
						drained = true
						break
					}
					if res := e.applyTick(ctx, trade, tick); res != nil {
						return res
					}
				default:
					drained = true
				}
			}
			return e.resolve(ctx, trade, domain.OutcomeSlotExpired, trade.LastBid())
		}
	}
}

// applyTick records one tick and resolves the trade if the bid reached the
// limit. Returns nil while the trade stays open.
func (e *Engine) applyTick(ctx context.Context, trade *domain.Trade, tick domain.Tick) *domain.TradeResult {
	trade.Ticks = append(trade.Ticks, tick)
	if err := e.store.RecordTick(ctx, trade.ID, tick); err != nil {
		slog.Warn("trade: tick persist failed", "asset", trade.Asset, "err", err)
	}

	if tick.Bid >= trade.LimitPrice {
		// The simulated limit order fills at its own price, not the bid.
		return e.resolve(ctx, trade, domain.OutcomeLimitHit, trade.LimitPrice)
	}
	return nil
}

// resolve closes the trade exactly once: stamps the outcome, computes the
// ledger numbers, persists and notifies. Persistence runs detached from the
// monitor context so a shutdown mid-resolution still lands the write.
func (e *Engine) resolve(ctx context.Context, trade *domain.Trade, outcome domain.Outcome, exit float64) *domain.TradeResult {
	trade.State = domain.TradeResolved
	trade.ResolvedAt = e.clock()
	trade.ExitPrice = exit
	trade.Outcome = outcome

	res := domain.TradeResult{
		Trade:   trade,
		PnLUSD:  trade.PnLUSD(exit),
		PnLPct:  trade.PnLPct(exit),
		Metrics: trade.Metrics(),
	}

	storeCtx := context.WithoutCancel(ctx)
	equity, err := e.store.CurrentEquity(storeCtx)
	if err != nil {
		slog.Warn("trade: equity lookup failed", "err", err)
	}
	res.EquityAfter = equity + res.PnLUSD

	if err := e.store.ResolveTrade(storeCtx, res); err != nil {
		slog.Error("trade: resolution persist failed",
			"asset", trade.Asset, "trade", trade.ID, "err", err)
	}

	switch outcome {
	case domain.OutcomeLimitHit:
		e.notify.LimitHit(res)
	case domain.OutcomeSlotExpired:
		e.notify.SlotExpired(res)
	}

	slog.Info("trade: resolved",
		"asset", trade.Asset, "outcome", outcome,
		"exit", exit, "pnl_usd", res.PnLUSD,
	)
	return &res
}
