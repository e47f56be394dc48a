package alpaca

import (
	"context"
	"time"
)

// DataClient defines the market data provider operations the engine needs.
// An empty bar slice is a valid "no data" response, not an error.
type DataClient interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]Bar, error)
}

// TradingClient defines the broker operations the engine needs.
type TradingClient interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

// Timeframes accepted by GetBars.
const (
	TimeframeDay    = "1Day"
	TimeframeMinute = "1Min"
)

// Ensure both real and mock clients satisfy the interfaces.
var (
	_ DataClient    = (*Client)(nil)
	_ TradingClient = (*Client)(nil)
	_ DataClient    = (*MockClient)(nil)
	_ TradingClient = (*MockClient)(nil)
)
