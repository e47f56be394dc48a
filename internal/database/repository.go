package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository handles trade and performance persistence.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// TradeEntry captures the context of an entry fill.
type TradeEntry struct {
	Symbol       string
	Market       string
	Side         string
	Quantity     float64
	Price        float64
	StopLoss     float64
	StrategyName string
	Regime       string
	RSI          float64
	ATR          float64
}

// RecordTradeEntry inserts an open trade and returns its id.
func (r *Repository) RecordTradeEntry(ctx context.Context, e TradeEntry) (int64, error) {
	query := `
		INSERT INTO trades (symbol, market, side, quantity, entry_price, entry_time,
			stop_loss, strategy_name, regime, rsi, atr, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		e.Symbol, e.Market, e.Side, e.Quantity, e.Price, time.Now().UTC(),
		e.StopLoss, e.StrategyName, e.Regime, e.RSI, e.ATR, TradeStatusOpen,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record trade entry: %w", err)
	}
	return id, nil
}

// RecordTradeExit closes a trade, computing realized P/L from the stored
// entry price and quantity.
func (r *Repository) RecordTradeExit(ctx context.Context, tradeID int64, exitPrice float64, reason string) error {
	query := `
		UPDATE trades
		SET exit_price = $2,
			exit_time = $3,
			exit_reason = $4,
			pnl = ($2 - entry_price) * quantity,
			pnl_percent = ($2 - entry_price) / entry_price * 100,
			status = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $6`

	tag, err := r.db.Pool.Exec(ctx, query,
		tradeID, exitPrice, time.Now().UTC(), reason, TradeStatusClosed, TradeStatusOpen)
	if err != nil {
		return fmt.Errorf("failed to record trade exit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d not found or already closed", tradeID)
	}
	return nil
}

// GetOpenTrades returns all trades still marked open.
func (r *Repository) GetOpenTrades(ctx context.Context) ([]Trade, error) {
	query := `
		SELECT id, symbol, COALESCE(market, ''), side, quantity, entry_price, exit_price,
			entry_time, exit_time, stop_loss, pnl, pnl_percent, exit_reason,
			COALESCE(strategy_name, ''), COALESCE(regime, ''), rsi, atr, status,
			created_at, updated_at
		FROM trades
		WHERE status = $1
		ORDER BY entry_time DESC`

	rows, err := r.db.Pool.Query(ctx, query, TradeStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetRecentTrades returns the most recent trades, open or closed.
func (r *Repository) GetRecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	query := `
		SELECT id, symbol, COALESCE(market, ''), side, quantity, entry_price, exit_price,
			entry_time, exit_time, stop_loss, pnl, pnl_percent, exit_reason,
			COALESCE(strategy_name, ''), COALESCE(regime, ''), rsi, atr, status,
			created_at, updated_at
		FROM trades
		ORDER BY entry_time DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		var t Trade
		err := rows.Scan(
			&t.ID, &t.Symbol, &t.Market, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
			&t.EntryTime, &t.ExitTime, &t.StopLoss, &t.PnL, &t.PnLPercent, &t.ExitReason,
			&t.StrategyName, &t.Regime, &t.RSI, &t.ATR, &t.Status,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UpsertDailyPerformance rolls the closed trades of a calendar day into the
// daily_performance table. Safe to run repeatedly for the same day.
func (r *Repository) UpsertDailyPerformance(ctx context.Context, day time.Time, equity float64) error {
	query := `
		INSERT INTO daily_performance (trade_date, trades_count, wins, losses, total_pnl, equity)
		SELECT $1::date,
			COUNT(*),
			COUNT(*) FILTER (WHERE pnl > 0),
			COUNT(*) FILTER (WHERE pnl <= 0),
			COALESCE(SUM(pnl), 0),
			$2
		FROM trades
		WHERE status = $3 AND exit_time::date = $1::date
		ON CONFLICT (trade_date) DO UPDATE
		SET trades_count = EXCLUDED.trades_count,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			total_pnl = EXCLUDED.total_pnl,
			equity = EXCLUDED.equity,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.Pool.Exec(ctx, query, day.Format("2006-01-02"), equity, TradeStatusClosed); err != nil {
		return fmt.Errorf("failed to upsert daily performance: %w", err)
	}
	return nil
}

// GetDailyPerformance returns the most recent daily rollups.
func (r *Repository) GetDailyPerformance(ctx context.Context, days int) ([]DailyPerformance, error) {
	query := `
		SELECT id, trade_date, trades_count, wins, losses, total_pnl, equity, created_at, updated_at
		FROM daily_performance
		ORDER BY trade_date DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily performance: %w", err)
	}
	defer rows.Close()

	var results []DailyPerformance
	for rows.Next() {
		var d DailyPerformance
		err := rows.Scan(&d.ID, &d.TradeDate, &d.TradesCount, &d.Wins, &d.Losses,
			&d.TotalPnL, &d.Equity, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily performance: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
