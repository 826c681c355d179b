package domain

import "time"

// Side is the outcome contract of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// TradeState represents the lifecycle of a simulated trade.
type TradeState string

const (
	TradeAwaitingFill TradeState = "AWAITING_FILL"
	TradeOpen         TradeState = "OPEN"
	TradeResolved     TradeState = "RESOLVED"
)

// Outcome is how a trade ended. Assigned exactly once, at resolution.
type Outcome string

const (
	OutcomeLimitHit    Outcome = "limit_hit"
	OutcomeSlotExpired Outcome = "slot_expired"
	OutcomeError       Outcome = "error"
)

// Tick is one best-bid/ask sample observed while a trade was open.
type Tick struct {
	At  time.Time
	Bid float64
	Ask float64
}

// Mid returns the midpoint price of the tick.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the bid/ask spread of the tick.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Trade is a simulated directional bet on one asset within one slot.
type Trade struct {
	ID      string
	SlotID  string
	Asset   string
	TokenID string
	Side    Side

	// Prices at decision time. EntryPrice is the chosen side's price.
	YesPrice   float64
	NoPrice    float64
	EntryPrice float64
	LimitPrice float64

	AmountUSD float64
	Shares    float64

	State    TradeState
	OpenedAt time.Time

	// Set once, at resolution.
	ResolvedAt time.Time
	ExitPrice  float64
	Outcome    Outcome

	// Append-only while the trade is Open.
	Ticks []Tick
}

// SelectSide picks the side whose price is strictly higher — the richer side
// is treated as the market's favored outcome. Ties go to YES.
func SelectSide(yesPrice, noPrice float64) (Side, float64) {
	if noPrice > yesPrice {
		return SideNo, noPrice
	}
	return SideYes, yesPrice
}

// ClampPrice bounds a price to the valid [0,1] range.
func ClampPrice(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// LimitFor returns the limit sell price for an entry, capped at the ceiling.
func LimitFor(entry, offset float64) float64 {
	return ClampPrice(entry + offset)
}

// LastBid returns the bid of the most recent tick, or the entry price if no
// tick was ever observed.
func (t *Trade) LastBid() float64 {
	if len(t.Ticks) == 0 {
		return t.EntryPrice
	}
	return t.Ticks[len(t.Ticks)-1].Bid
}

// PnLUSD returns the profit in USD for a given exit price.
func (t *Trade) PnLUSD(exit float64) float64 {
	return (exit - t.EntryPrice) * t.Shares
}

// PnLPct returns the profit as a percentage of the entry price.
func (t *Trade) PnLPct(exit float64) float64 {
	if t.EntryPrice <= 0 {
		return 0
	}
	return (exit - t.EntryPrice) / t.EntryPrice * 100
}

// TradeMetrics are derived from the tick history at resolution time.
type TradeMetrics struct {
	MinBid          float64
	MaxBid          float64
	MaxAdversePct   float64 // largest drop below entry, as % of entry
	MaxFavorablePct float64 // largest rise above entry, as % of entry
	FillLatency     time.Duration
	TickCount       int
}

// Metrics computes excursion and latency stats from the trade's tick history.
// Excursions use bids only — the same series resolution checks run against.
func (t *Trade) Metrics() TradeMetrics {
	m := TradeMetrics{
		MinBid:    t.EntryPrice,
		MaxBid:    t.EntryPrice,
		TickCount: len(t.Ticks),
	}
	for _, tick := range t.Ticks {
		if tick.Bid < m.MinBid {
			m.MinBid = tick.Bid
		}
		if tick.Bid > m.MaxBid {
			m.MaxBid = tick.Bid
		}
	}
	if t.EntryPrice > 0 {
		m.MaxAdversePct = (t.EntryPrice - m.MinBid) / t.EntryPrice * 100
		m.MaxFavorablePct = (m.MaxBid - t.EntryPrice) / t.EntryPrice * 100
	}
	if !t.ResolvedAt.IsZero() && !t.OpenedAt.IsZero() {
		m.FillLatency = t.ResolvedAt.Sub(t.OpenedAt)
	}
	return m
}

// TradeResult bundles a resolved trade with its ledger numbers, ready for
// notification and summary printing.
type TradeResult struct {
	Trade       *Trade
	PnLUSD      float64
	PnLPct      float64
	EquityAfter float64
	Metrics     TradeMetrics
}

// Won reports whether the trade ended at or above break-even.
func (r TradeResult) Won() bool {
	return r.PnLUSD >= 0
}
