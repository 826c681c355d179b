package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// Console implementa ports.Notifier escribiendo a stdout.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador de consola.
// Con table=true imprime la tabla completa por slot; si no, líneas compactas.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// TradeOpened imprime la apertura de un trade.
func (c *Console) TradeOpened(t *domain.Trade, equity float64) {
	fmt.Fprintf(c.out, "[%s] + OPEN: %s %s @ $%.3f → limit $%.3f | equity $%.2f\n",
		now(), t.Asset, t.Side, t.EntryPrice, t.LimitPrice, equity)
}

// LimitHit imprime un limit sell alcanzado.
func (c *Console) LimitHit(res domain.TradeResult) {
	t := res.Trade
	fmt.Fprintf(c.out, "[%s] ✅ LIMIT HIT: %s %s @ $%.3f (%+.2f$ %+.1f%%) in %s\n",
		now(), t.Asset, t.Side, t.ExitPrice, res.PnLUSD, res.PnLPct,
		res.Metrics.FillLatency.Round(time.Second))
}

// SlotExpired imprime un trade que expiró sin alcanzar el limit.
func (c *Console) SlotExpired(res domain.TradeResult) {
	t := res.Trade
	fmt.Fprintf(c.out, "[%s] ✗ EXPIRED: %s %s @ $%.3f (%+.2f$ %+.1f%%)\n",
		now(), t.Asset, t.Side, t.ExitPrice, res.PnLUSD, res.PnLPct)
}

// SlotSummary imprime el resumen del slot: compacto o tabla completa.
func (c *Console) SlotSummary(slotLabel string, results []domain.TradeResult, equity float64) {
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
	fmt.Fprintf(c.out, "\n[%s] slot %s done — %d/%d wins | P&L %+.2f$ | equity $%.2f\n",
		now(), slotLabel, wins, len(results), total, equity)

	if c.table {
		c.printSlotTable(results)
	}
}

// printSlotTable imprime la tabla de trades resueltos del slot.
func (c *Console) printSlotTable(results []domain.TradeResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Asset", "Side", "Entry", "Exit", "Outcome", "PnL $", "PnL %", "Fill", "MAE%", "MFE%", "Ticks")

	for _, r := range results {
		t := r.Trade
		table.Append(
			t.Asset,
			string(t.Side),
			fmt.Sprintf("$%.3f", t.EntryPrice),
			fmt.Sprintf("$%.3f", t.ExitPrice),
			string(t.Outcome),
			fmt.Sprintf("%+.2f", r.PnLUSD),
			fmt.Sprintf("%+.1f", r.PnLPct),
			r.Metrics.FillLatency.Round(time.Second).String(),
			fmt.Sprintf("%.1f", r.Metrics.MaxAdversePct),
			fmt.Sprintf("%.1f", r.Metrics.MaxFavorablePct),
			fmt.Sprintf("%d", r.Metrics.TickCount),
		)
	}

	table.Render()
	fmt.Fprintln(c.out, "  MAE/MFE = excursión adversa/favorable máxima (sobre bid, % de entry)")
}

// PrintStats imprime el ledger agregado (modo --stats).
func (c *Console) PrintStats(st domain.LedgerStats) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Trades", fmt.Sprintf("%d (%d pending)", st.TotalTrades, st.Pending))
	table.Append("Wins / Losses", fmt.Sprintf("%d / %d", st.Wins, st.Losses))
	table.Append("Win rate", fmt.Sprintf("%.1f%%", st.WinRate))
	table.Append("Total P&L", fmt.Sprintf("%+.2f$", st.TotalPnLUSD))
	table.Append("Avg P&L/trade", fmt.Sprintf("%+.2f$", st.AvgPnLUSD))
	table.Append("Avg fill latency", fmt.Sprintf("%.0fs", st.AvgLatencySec))
	table.Append("Avg MAE / MFE", fmt.Sprintf("%.1f%% / %.1f%%", st.AvgAdversePct, st.AvgFavorablePct))
	table.Append("Equity", fmt.Sprintf("$%.2f", st.Equity))
	table.Render()
}

func now() string {
	return time.Now().Format("15:04:05")
}
