package alpaca

import "time"

// Bar represents one OHLCV candle. Sequences are ordered ascending by
// timestamp with no duplicates.
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// Closes extracts the close series from a bar sequence.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Account represents broker account state.
type Account struct {
	ID          string  `json:"id"`
	Equity      float64 `json:"equity,string"`
	Cash        float64 `json:"cash,string"`
	BuyingPower float64 `json:"buying_power,string"`
	Currency    string  `json:"currency"`
}

// Position represents a currently held broker position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty,string"`
	AvgEntryPrice float64 `json:"avg_entry_price,string"`
	MarketValue   float64 `json:"market_value,string"`
}

// Order sides and types. Market orders with day time-in-force only.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeMarket = "market"
	TIFDay          = "day"
)

// OrderRequest is a market order intent.
type OrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// Order represents an order as reported by the broker. Filled quantity may
// differ from requested on partial fills; the engine currently assumes a
// full fill (known gap).
type Order struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Qty            float64 `json:"qty,string"`
	FilledQty      float64 `json:"filled_qty,string"`
	FilledAvgPrice float64 `json:"filled_avg_price,string"`
	Status         string  `json:"status"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
