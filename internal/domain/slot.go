package domain

import "time"

// SlotMarket is one asset's YES/NO token pair within a slot.
type SlotMarket struct {
	Asset      string
	YesTokenID string
	NoTokenID  string
}

// SlotDefinition is an immutable upcoming slot as parsed from the markets
// feed: a scheduled hourly window plus the token pairs for each asset.
type SlotDefinition struct {
	Label   string // "2026-02-20 05:00 AM EST"
	StartAt time.Time
	EndAt   time.Time
	Markets []SlotMarket
}

// ID derives the slot identity from its scheduled start time.
func (d SlotDefinition) ID() string {
	return d.StartAt.UTC().Format("2006-01-02T15:04")
}

// SlotState represents the lifecycle of a slot.
type SlotState string

const (
	SlotPending  SlotState = "PENDING"
	SlotActive   SlotState = "ACTIVE"
	SlotResolved SlotState = "RESOLVED"
)

// Slot is an activated slot and the trades it owns. The queue manager is the
// only mutator; trade goroutines report completion back through the engine.
type Slot struct {
	ID         string
	Definition SlotDefinition
	State      SlotState
	Trades     []*Trade
}

// NewSlot creates an Active slot from its definition.
func NewSlot(def SlotDefinition) *Slot {
	return &Slot{
		ID:         def.ID(),
		Definition: def,
		State:      SlotActive,
	}
}

// Expired reports whether the slot's scheduled window has elapsed.
func (s *Slot) Expired(now time.Time) bool {
	return !now.Before(s.Definition.EndAt)
}
