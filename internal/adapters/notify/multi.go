package notify

import (
	"github.com/alejandrodnm/slotbot/internal/domain"
	"github.com/alejandrodnm/slotbot/internal/ports"
)

// Multi fans events out to several notifiers (console + telegram).
type Multi []ports.Notifier

func (m Multi) TradeOpened(t *domain.Trade, equity float64) {
	for _, n := range m {
		n.TradeOpened(t, equity)
	}
}

func (m Multi) LimitHit(res domain.TradeResult) {
	for _, n := range m {
		n.LimitHit(res)
	}
}

func (m Multi) SlotExpired(res domain.TradeResult) {
	for _, n := range m {
		n.SlotExpired(res)
	}
}

func (m Multi) SlotSummary(slotLabel string, results []domain.TradeResult, equity float64) {
	for _, n := range m {
		n.SlotSummary(slotLabel, results, equity)
	}
}
