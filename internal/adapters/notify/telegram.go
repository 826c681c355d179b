package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// Telegram sends trade alerts through the Bot API. Every send runs in its
// own goroutine: delivery failure is logged and swallowed, never retried,
// and never blocks the caller.
type Telegram struct {
	token  string
	http   *http.Client

	mu     sync.Mutex
	chatID string // auto-detected from getUpdates when empty
}

// NewTelegram creates a notifier for the given bot token. An empty chatID is
// resolved lazily from the most recent message sent to the bot.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// TradeOpened alerts that a simulated position was opened.
func (t *Telegram) TradeOpened(tr *domain.Trade, equity float64) {
	t.send(fmt.Sprintf(
		"🟢 <b>TRADE OPENED</b>\n"+
			"<b>%s</b> %s @ <b>$%.3f</b>\n"+
			"Shares: %.1f | Amount: $%.2f\n"+
			"🎯 Limit sell: <b>$%.3f</b>\n"+
			"📅 Slot: %s\n"+
			"💰 Equity: <b>$%.2f</b>",
		tr.Asset, tr.Side, tr.EntryPrice, tr.Shares, tr.AmountUSD,
		tr.LimitPrice, tr.SlotID, equity))
}

// LimitHit alerts a successful limit sell.
func (t *Telegram) LimitHit(res domain.TradeResult) {
	tr := res.Trade
	lat := res.Metrics.FillLatency
	t.send(fmt.Sprintf(
		"🎯 <b>LIMIT SELL HIT</b> ✅\n"+
			"<b>%s</b> %s @ <b>$%.3f</b>\n"+
			"P&L: <b>$%+.2f</b> (%+.1f%%)\n"+
			"⏱ Fill time: %dm %ds\n"+
			"💰 Equity: <b>$%.2f</b>",
		tr.Asset, tr.Side, tr.ExitPrice, res.PnLUSD, res.PnLPct,
		int(lat.Minutes()), int(lat.Seconds())%60, res.EquityAfter))
}

// SlotExpired alerts a trade that timed out at the slot deadline.
func (t *Telegram) SlotExpired(res domain.TradeResult) {
	tr := res.Trade
	t.send(fmt.Sprintf(
		"🔴 <b>SLOT EXPIRED — WIPEOUT</b>\n"+
			"<b>%s</b> %s @ <b>$%.3f</b>\n"+
			"P&L: <b>$%+.2f</b> (%+.1f%%)\n"+
			"💰 Equity: <b>$%.2f</b>",
		tr.Asset, tr.Side, tr.ExitPrice, res.PnLUSD, res.PnLPct, res.EquityAfter))
}

// SlotSummary alerts the aggregate result of a finished slot.
func (t *Telegram) SlotSummary(slotLabel string, results []domain.TradeResult, equity float64) {
	if len(results) == 0 {
		return
	}
	wins, total := 0, 0.0
	for _, r := range results {
		if r.Won() {
			wins++
		}
		total += r.PnLUSD
	}
	t.send(fmt.Sprintf(
		"📊 <b>SLOT SUMMARY</b>\n"+
			"📅 %s\n"+
			"Wins: %d/%d | P&L: <b>$%+.2f</b>\n"+
			"💰 Equity: <b>$%.2f</b>",
		slotLabel, wins, len(results), total, equity))
}

// send posts a message asynchronously. Failures are logged, never returned.
func (t *Telegram) send(text string) {
	if t.token == "" {
		return
	}
	go func() {
		chatID, err := t.resolveChatID()
		if err != nil {
			slog.Warn("telegram: no chat id", "err", err)
			return
		}

		body, _ := json.Marshal(map[string]string{
			"chat_id":    chatID,
			"text":       text,
			"parse_mode": "HTML",
		})
		resp, err := t.http.Post(
			fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token),
			"application/json", bytes.NewReader(body))
		if err != nil {
			slog.Warn("telegram: send failed", "err", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			slog.Warn("telegram: send rejected", "status", resp.StatusCode)
		}
	}()
}

// resolveChatID returns the configured chat id, or detects it from the most
// recent message sent to the bot.
func (t *Telegram) resolveChatID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chatID != "" {
		return t.chatID, nil
	}

	resp, err := t.http.Get(fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates", t.token))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var updates struct {
		OK     bool `json:"ok"`
		Result []struct {
			Message struct {
				Chat struct {
					ID int64 `json:"id"`
				} `json:"chat"`
			} `json:"message"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&updates); err != nil {
		return "", err
	}
	if !updates.OK || len(updates.Result) == 0 {
		return "", fmt.Errorf("no updates — send /start to the bot first")
	}

	last := updates.Result[len(updates.Result)-1]
	t.chatID = fmt.Sprintf("%d", last.Message.Chat.ID)
	slog.Info("telegram: auto-detected chat id", "chat_id", t.chatID)
	return t.chatID, nil
}
