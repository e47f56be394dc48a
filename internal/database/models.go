package database

import "time"

// Trade represents a round trip in the trades table. Exit fields are nil
// while the trade is open.
type Trade struct {
	ID           int64      `json:"id"`
	Symbol       string     `json:"symbol"`
	Market       string     `json:"market,omitempty"`
	Side         string     `json:"side"`
	Quantity     float64    `json:"quantity"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	StopLoss     *float64   `json:"stop_loss,omitempty"`
	PnL          *float64   `json:"pnl,omitempty"`
	PnLPercent   *float64   `json:"pnl_percent,omitempty"`
	ExitReason   *string    `json:"exit_reason,omitempty"`
	StrategyName string     `json:"strategy_name,omitempty"`
	Regime       string     `json:"regime,omitempty"`
	RSI          *float64   `json:"rsi,omitempty"`
	ATR          *float64   `json:"atr,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Trade statuses
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// DailyPerformance aggregates one calendar day of closed trades.
type DailyPerformance struct {
	ID          int64     `json:"id"`
	TradeDate   time.Time `json:"trade_date"`
	TradesCount int       `json:"trades_count"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	TotalPnL    float64   `json:"total_pnl"`
	Equity      *float64  `json:"equity,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
