package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrNotTracked = errors.New("position: symbol not tracked")

// Exit thresholds for long positions.
const (
	takeProfitATRMultiple = 3.0
	trailATRMultiple      = 1.5
	trailPullbackFraction = 0.5
	rsiExitLevel          = 80.0
	maxHoldDays           = 5
	timeStopMinProfit     = 0.02
)

// Tracker holds the lifecycle state of one open position.
type Tracker struct {
	Symbol       string    `json:"symbol"`
	Market       string    `json:"market"`
	EntryPrice   float64   `json:"entry_price"`
	Quantity     float64   `json:"quantity"`
	HighestPrice float64   `json:"highest_price"`
	LowestPrice  float64   `json:"lowest_price"`
	ATR          float64   `json:"atr"`
	InitialStop  float64   `json:"initial_stop"`
	TrailingStop float64   `json:"trailing_stop"`
	EntryTime    time.Time `json:"entry_time"`
	TradeID      int64     `json:"trade_id"`
}

// NewTracker creates the state for a freshly filled entry. The initial stop
// sits two ATRs below the entry and the trailing stop starts there.
func NewTracker(symbol, market string, entryPrice, quantity, atr float64, tradeID int64) *Tracker {
	stop := entryPrice - 2*atr
	return &Tracker{
		Symbol:       symbol,
		Market:       market,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		HighestPrice: entryPrice,
		LowestPrice:  entryPrice,
		ATR:          atr,
		InitialStop:  stop,
		TrailingStop: stop,
		EntryTime:    time.Now().UTC(),
		TradeID:      tradeID,
	}
}

// EvaluateExit runs the ordered exit checks against the current tick without
// mutating the tracker. The first check that fires wins. Calling it twice
// with the same inputs returns the same decision.
func (t *Tracker) EvaluateExit(price, rsi float64, now time.Time) (bool, string) {
	profit := (price - t.EntryPrice) / t.EntryPrice

	if price <= t.TrailingStop {
		return true, "Trailing Stop"
	}
	if profit > 0 && price >= t.EntryPrice+takeProfitATRMultiple*t.ATR {
		return true, "Take Profit Target"
	}
	if rsi > rsiExitLevel && profit > 0 {
		return true, "RSI Overbought Exit"
	}
	if now.Sub(t.EntryTime) > maxHoldDays*24*time.Hour && profit < timeStopMinProfit {
		return true, "Time Stop"
	}
	return false, ""
}

// advance records the tick's price extremes and ratchets the trailing stop.
// The stop only ever moves up: while in profit the candidate stop trails the
// price by the larger of 1.5 ATR and half the run-up from entry.
func (t *Tracker) advance(price float64) {
	if price > t.HighestPrice {
		t.HighestPrice = price
	}
	if price < t.LowestPrice {
		t.LowestPrice = price
	}

	if price <= t.EntryPrice {
		return
	}
	trail := trailATRMultiple * t.ATR
	if pullback := trailPullbackFraction * (t.HighestPrice - t.EntryPrice); pullback > trail {
		trail = pullback
	}
	if stop := price - trail; stop > t.TrailingStop {
		t.TrailingStop = stop
	}
}

// StateStore persists tracker snapshots so open positions survive a restart.
type StateStore interface {
	SaveTracker(ctx context.Context, t *Tracker) error
	DeleteTracker(ctx context.Context, symbol string) error
	LoadTrackers(ctx context.Context) ([]*Tracker, error)
}

// Manager owns the tracker for every open symbol.
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	store    StateStore
	logger   zerolog.Logger
}

// NewManager creates a manager. store may be nil, in which case trackers
// live only in memory.
func NewManager(store StateStore, logger zerolog.Logger) *Manager {
	return &Manager{
		trackers: make(map[string]*Tracker),
		store:    store,
		logger:   logger.With().Str("component", "PositionManager").Logger(),
	}
}

// Restore reloads persisted trackers at startup.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	trackers, err := m.store.LoadTrackers(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, t := range trackers {
		m.trackers[t.Symbol] = t
	}
	m.mu.Unlock()

	if len(trackers) > 0 {
		m.logger.Info().Int("count", len(trackers)).Msg("Restored open positions")
	}
	return nil
}

// Open registers a tracker after an entry fill.
func (m *Manager) Open(ctx context.Context, t *Tracker) {
	m.mu.Lock()
	m.trackers[t.Symbol] = t
	m.mu.Unlock()

	m.logger.Info().
		Str("symbol", t.Symbol).
		Float64("entry", t.EntryPrice).
		Float64("qty", t.Quantity).
		Float64("stop", t.InitialStop).
		Msg("Position opened")

	m.persist(ctx, t)
}

// Close removes a tracker after an exit fill and returns its final state.
func (m *Manager) Close(ctx context.Context, symbol string) (*Tracker, error) {
	m.mu.Lock()
	t, ok := m.trackers[symbol]
	if ok {
		delete(m.trackers, symbol)
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotTracked
	}

	m.logger.Info().Str("symbol", symbol).Msg("Position closed")

	if m.store != nil {
		if err := m.store.DeleteTracker(ctx, symbol); err != nil {
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to delete tracker snapshot")
		}
	}
	return t, nil
}

// Advance applies a tick to the symbol's tracker, ratcheting the trailing
// stop, and returns a copy of the updated state.
func (m *Manager) Advance(ctx context.Context, symbol string, price float64) (Tracker, error) {
	m.mu.Lock()
	t, ok := m.trackers[symbol]
	if !ok {
		m.mu.Unlock()
		return Tracker{}, ErrNotTracked
	}
	before := t.TrailingStop
	t.advance(price)
	snapshot := *t
	m.mu.Unlock()

	if snapshot.TrailingStop > before {
		m.logger.Info().
			Str("symbol", symbol).
			Float64("old_stop", before).
			Float64("new_stop", snapshot.TrailingStop).
			Msg("Trailing stop raised")
		m.persist(ctx, &snapshot)
	}
	return snapshot, nil
}

// Get returns a copy of the tracker for symbol.
func (m *Manager) Get(symbol string) (Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[symbol]
	if !ok {
		return Tracker{}, false
	}
	return *t, true
}

// All returns copies of every open tracker.
func (m *Manager) All() []Tracker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		out = append(out, *t)
	}
	return out
}

// Count returns the number of open positions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trackers)
}

// CountByMarket returns open positions grouped by market name.
func (m *Manager) CountByMarket() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int, len(m.trackers))
	for _, t := range m.trackers {
		counts[t.Market]++
	}
	return counts
}

func (m *Manager) persist(ctx context.Context, t *Tracker) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveTracker(ctx, t); err != nil {
		m.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("Failed to save tracker snapshot")
	}
}
