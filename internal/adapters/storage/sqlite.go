package storage

// sqlite.go — ledger de trades simulados con historial de ticks.
//
// Estrategia:
//   - `trades`: una fila por trade, creada al abrir (visible antes de
//     resolverse) y actualizada UNA sola vez al resolver.
//   - `price_ticks`: append-only, una fila por tick observado mientras el
//     trade está abierto. Sirve para replay / análisis de excursión.
//   - Equity se deriva: starting_equity + SUM(pnl_usd) de trades resueltos.
//     No hay tabla de equity — una fuente de verdad menos que corromper.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por trade simulado
CREATE TABLE IF NOT EXISTS trades (
    id                TEXT PRIMARY KEY,
    slot_id           TEXT NOT NULL,
    asset             TEXT NOT NULL,
    side_chosen       TEXT NOT NULL,
    token_id          TEXT NOT NULL,

    opened_at         DATETIME NOT NULL,
    entry_price       REAL NOT NULL,
    yes_price         REAL NOT NULL DEFAULT 0,
    no_price          REAL NOT NULL DEFAULT 0,
    limit_price       REAL NOT NULL,
    shares            REAL NOT NULL,
    trade_amount_usd  REAL NOT NULL,

    -- Resolución (se escriben una sola vez)
    exit_price        REAL,
    resolved_at       DATETIME,
    exit_reason       TEXT,
    fill_latency_sec  REAL,

    -- Métricas derivadas del historial de ticks
    min_bid           REAL,
    max_bid           REAL,
    max_adverse_pct   REAL NOT NULL DEFAULT 0,
    max_favorable_pct REAL NOT NULL DEFAULT 0,
    num_ticks         INTEGER NOT NULL DEFAULT 0,

    -- P&L
    pnl_usd           REAL NOT NULL DEFAULT 0,
    pnl_pct           REAL NOT NULL DEFAULT 0,
    outcome           TEXT NOT NULL DEFAULT 'pending',
    equity_after      REAL NOT NULL DEFAULT 0
);

-- Historial granular de ticks por trade
CREATE TABLE IF NOT EXISTS price_ticks (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id  TEXT NOT NULL,
    ts        DATETIME NOT NULL,
    bid       REAL NOT NULL,
    ask       REAL NOT NULL,
    mid       REAL NOT NULL,
    spread    REAL NOT NULL,
    FOREIGN KEY (trade_id) REFERENCES trades(id)
);

CREATE INDEX IF NOT EXISTS idx_ticks_trade    ON price_ticks(trade_id);
CREATE INDEX IF NOT EXISTS idx_trades_slot    ON trades(slot_id);
CREATE INDEX IF NOT EXISTS idx_trades_outcome ON trades(outcome);
`

// SQLiteStorage implementa ports.TradeStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db             *sql.DB
	startingEquity float64
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string, startingEquity float64) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db, startingEquity: startingEquity}
	if err := s.ApplySchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ApplySchema crea las tablas si no existen.
func (s *SQLiteStorage) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.ApplySchema: %w", err)
	}
	return nil
}

// CreateTrade inserta el trade en la transición AwaitingFill→Open.
// El trade queda visible en la DB antes de resolverse.
func (s *SQLiteStorage) CreateTrade(ctx context.Context, t *domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, slot_id, asset, side_chosen, token_id, opened_at,
			 entry_price, yes_price, no_price, limit_price, shares, trade_amount_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SlotID, t.Asset, string(t.Side), t.TokenID, t.OpenedAt.UTC(),
		t.EntryPrice, t.YesPrice, t.NoPrice, t.LimitPrice, t.Shares, t.AmountUSD,
	)
	if err != nil {
		return fmt.Errorf("storage.CreateTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// RecordTick añade una muestra al historial del trade.
func (s *SQLiteStorage) RecordTick(ctx context.Context, tradeID string, tick domain.Tick) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_ticks (trade_id, ts, bid, ask, mid, spread)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tradeID, tick.At.UTC(), tick.Bid, tick.Ask, tick.Mid(), tick.Spread(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTick: %s: %w", tradeID, err)
	}
	return nil
}

// ResolveTrade escribe salida, outcome, métricas y P&L. Se llama una vez por trade.
func (s *SQLiteStorage) ResolveTrade(ctx context.Context, res domain.TradeResult) error {
	t := res.Trade
	outcome := "loss"
	if res.Won() {
		outcome = "win"
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE trades SET
			exit_price        = ?,
			resolved_at       = ?,
			exit_reason       = ?,
			fill_latency_sec  = ?,
			min_bid           = ?,
			max_bid           = ?,
			max_adverse_pct   = ?,
			max_favorable_pct = ?,
			num_ticks         = ?,
			pnl_usd           = ?,
			pnl_pct           = ?,
			outcome           = ?,
			equity_after      = ?
		WHERE id = ? AND outcome = 'pending'`,
		t.ExitPrice, t.ResolvedAt.UTC(), string(t.Outcome),
		res.Metrics.FillLatency.Seconds(),
		res.Metrics.MinBid, res.Metrics.MaxBid,
		res.Metrics.MaxAdversePct, res.Metrics.MaxFavorablePct,
		res.Metrics.TickCount,
		res.PnLUSD, res.PnLPct, outcome, res.EquityAfter,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.ResolveTrade: update %s: %w", t.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.ResolveTrade: trade %s not pending", t.ID)
	}
	return nil
}

// CurrentEquity devuelve starting equity + SUM de P&L de trades resueltos.
func (s *SQLiteStorage) CurrentEquity(ctx context.Context) (float64, error) {
	var totalPnL float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(pnl_usd), 0) FROM trades WHERE outcome != 'pending'`,
	).Scan(&totalPnL)
	if err != nil {
		return 0, fmt.Errorf("storage.CurrentEquity: %w", err)
	}
	return s.startingEquity + totalPnL, nil
}

// Stats devuelve el resumen agregado de todo el run.
func (s *SQLiteStorage) Stats(ctx context.Context) (domain.LedgerStats, error) {
	var st domain.LedgerStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'win' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'loss' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome != 'pending' THEN pnl_usd ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN outcome != 'pending' THEN pnl_usd END), 0),
			COALESCE(AVG(CASE WHEN outcome != 'pending' THEN fill_latency_sec END), 0),
			COALESCE(AVG(max_adverse_pct), 0),
			COALESCE(AVG(max_favorable_pct), 0)
		FROM trades`,
	).Scan(
		&st.TotalTrades, &st.Wins, &st.Losses, &st.Pending,
		&st.TotalPnLUSD, &st.AvgPnLUSD, &st.AvgLatencySec,
		&st.AvgAdversePct, &st.AvgFavorablePct,
	)
	if err != nil {
		return st, fmt.Errorf("storage.Stats: %w", err)
	}

	st.Equity = s.startingEquity + st.TotalPnLUSD
	if resolved := st.Wins + st.Losses; resolved > 0 {
		st.WinRate = float64(st.Wins) / float64(resolved) * 100
	}
	return st, nil
}

// GetTradeTicks devuelve el historial de ticks de un trade, en orden.
func (s *SQLiteStorage) GetTradeTicks(ctx context.Context, tradeID string) ([]domain.Tick, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, bid, ask FROM price_ticks WHERE trade_id = ? ORDER BY id`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetTradeTicks: %w", err)
	}
	defer rows.Close()

	var ticks []domain.Tick
	for rows.Next() {
		var ts time.Time
		var bid, ask float64
		if err := rows.Scan(&ts, &bid, &ask); err != nil {
			return nil, fmt.Errorf("storage.GetTradeTicks: scan: %w", err)
		}
		ticks = append(ticks, domain.Tick{At: ts, Bid: bid, Ask: ask})
	}
	return ticks, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
