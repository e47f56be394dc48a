package alpaca

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// MockClient provides simulated market data and paper fills for development
// and testing. Fills are always full and at the last simulated close.
type MockClient struct {
	mu        sync.RWMutex
	prices    map[string]float64
	bars      map[string][]Bar // Fixed bar series override, used by tests
	account   Account
	positions map[string]*Position
	orders    map[string]*Order
	seq       int
	rng       *rand.Rand
}

// NewMockClient creates a mock client with realistic base prices.
func NewMockClient() *MockClient {
	mc := &MockClient{
		prices: map[string]float64{
			"SPY":  520.00,
			"AAPL": 195.00,
			"MSFT": 410.00,
			"NVDA": 125.00,
			"TSLA": 240.00,
			"AMD":  160.00,
			"META": 480.00,
			"AMZN": 180.00,
		},
		bars:      make(map[string][]Bar),
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
		account: Account{
			ID:          "mock-account",
			Equity:      100000,
			Cash:        100000,
			BuyingPower: 200000,
			Currency:    "USD",
		},
		rng: rand.New(rand.NewSource(42)),
	}
	return mc
}

// SetBars fixes the bar series returned for a symbol.
func (mc *MockClient) SetBars(symbol string, bars []Bar) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.bars[symbol] = bars
	if len(bars) > 0 {
		mc.prices[symbol] = bars[len(bars)-1].Close
	}
}

// SetEquity overrides the simulated account equity.
func (mc *MockClient) SetEquity(equity float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.account.Equity = equity
}

func (mc *MockClient) GetBars(_ context.Context, symbol string, start, end time.Time, timeframe string) ([]Bar, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if fixed, ok := mc.bars[symbol]; ok {
		out := make([]Bar, len(fixed))
		copy(out, fixed)
		return out, nil
	}

	base, ok := mc.prices[symbol]
	if !ok {
		// Unknown symbol: valid "no data" response
		return nil, nil
	}

	step := 24 * time.Hour
	if timeframe == TimeframeMinute {
		step = time.Minute
	}

	var bars []Bar
	price := base
	for ts := start.Truncate(step); !ts.After(end); ts = ts.Add(step) {
		drift := price * 0.01 * (mc.rng.Float64() - 0.48)
		open := price
		close := price + drift
		high := math.Max(open, close) * (1 + 0.004*mc.rng.Float64())
		low := math.Min(open, close) * (1 - 0.004*mc.rng.Float64())
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    400000 + 200000*mc.rng.Float64(),
		})
		price = close
	}
	mc.prices[symbol] = price
	return bars, nil
}

func (mc *MockClient) GetAccount(_ context.Context) (*Account, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	acct := mc.account
	return &acct, nil
}

func (mc *MockClient) GetPositions(_ context.Context) ([]Position, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]Position, 0, len(mc.positions))
	for _, p := range mc.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (mc *MockClient) SubmitOrder(_ context.Context, req OrderRequest) (*Order, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	qty, err := strconv.ParseFloat(req.Qty, 64)
	if err != nil || qty <= 0 {
		return nil, fmt.Errorf("invalid order quantity %q for %s", req.Qty, req.Symbol)
	}

	price, ok := mc.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("no market for symbol %s", req.Symbol)
	}

	mc.seq++
	order := &Order{
		ID:             fmt.Sprintf("mock-%d", mc.seq),
		ClientOrderID:  req.ClientOrderID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Qty:            qty,
		FilledQty:      qty,
		FilledAvgPrice: price,
		Status:         "filled",
		SubmittedAt:    time.Now(),
	}
	mc.orders[order.ID] = order

	switch req.Side {
	case SideBuy:
		pos := mc.positions[req.Symbol]
		if pos == nil {
			mc.positions[req.Symbol] = &Position{Symbol: req.Symbol, Qty: qty, AvgEntryPrice: price}
		} else {
			total := pos.Qty + qty
			pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Qty + price*qty) / total
			pos.Qty = total
		}
		mc.account.Cash -= price * qty
	case SideSell:
		pos := mc.positions[req.Symbol]
		if pos != nil {
			pos.Qty -= qty
			if pos.Qty <= 0 {
				delete(mc.positions, req.Symbol)
			}
		}
		mc.account.Cash += price * qty
	default:
		return nil, fmt.Errorf("unknown order side %q", req.Side)
	}

	return order, nil
}

func (mc *MockClient) GetOrder(_ context.Context, orderID string) (*Order, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	order, ok := mc.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	o := *order
	return &o, nil
}
