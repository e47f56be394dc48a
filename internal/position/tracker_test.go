package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker() *Tracker {
	// Entry at 100 with ATR 2: initial stop 96
	return NewTracker("AAPL", "NASDAQ", 100, 50, 2, 1)
}

func TestNewTrackerInitialStop(t *testing.T) {
	tr := newTestTracker()
	if tr.InitialStop != 96 {
		t.Errorf("Expected initial stop 96 (entry - 2*ATR), got %f", tr.InitialStop)
	}
	if tr.TrailingStop != tr.InitialStop {
		t.Errorf("Trailing stop should start at the initial stop, got %f", tr.TrailingStop)
	}
	if tr.HighestPrice != 100 || tr.LowestPrice != 100 {
		t.Errorf("Price extremes should start at entry, got %f/%f", tr.HighestPrice, tr.LowestPrice)
	}
}

func TestTrailingStopMonotone(t *testing.T) {
	tr := newTestTracker()

	// Price rises, falls back, partially recovers; the stop never drops
	prices := []float64{102, 106, 110, 104, 99, 103, 108, 101}
	prev := tr.TrailingStop
	for _, p := range prices {
		tr.advance(p)
		if tr.TrailingStop < prev {
			t.Errorf("Trailing stop decreased from %f to %f at price %f", prev, tr.TrailingStop, p)
		}
		if tr.TrailingStop > tr.HighestPrice {
			t.Errorf("Trailing stop %f above highest price %f", tr.TrailingStop, tr.HighestPrice)
		}
		prev = tr.TrailingStop
	}
}

func TestTrailingStopRatchetFormula(t *testing.T) {
	tr := newTestTracker()

	// At 110: trail = max(1.5*2, 0.5*(110-100)) = 5 -> stop 105
	tr.advance(110)
	if tr.TrailingStop != 105 {
		t.Errorf("Expected trailing stop 105, got %f", tr.TrailingStop)
	}

	// At 104 the candidate stop is lower; ratchet holds at 105
	tr.advance(104)
	if tr.TrailingStop != 105 {
		t.Errorf("Ratchet should hold at 105 on pullback, got %f", tr.TrailingStop)
	}

	// At a loss no ratchet runs at all
	tr2 := newTestTracker()
	tr2.advance(98)
	if tr2.TrailingStop != 96 {
		t.Errorf("Stop should stay at initial while underwater, got %f", tr2.TrailingStop)
	}
}

func TestEvaluateExitOrdering(t *testing.T) {
	now := time.Now()

	// Trailing stop wins even when other conditions also hold
	tr := newTestTracker()
	tr.TrailingStop = 105
	tr.EntryTime = now.Add(-10 * 24 * time.Hour)
	if ok, reason := tr.EvaluateExit(104, 85, now); !ok || reason != "Trailing Stop" {
		t.Errorf("Expected Trailing Stop first, got %v %q", ok, reason)
	}

	// Take profit at entry + 3*ATR
	tr = newTestTracker()
	if ok, reason := tr.EvaluateExit(106, 60, now); !ok || reason != "Take Profit Target" {
		t.Errorf("Expected Take Profit Target at +3 ATR, got %v %q", ok, reason)
	}

	// Below the target nothing fires
	tr = newTestTracker()
	if ok, _ := tr.EvaluateExit(104, 60, now); ok {
		t.Error("No exit should fire at +4% with calm RSI")
	}
}

func TestEvaluateExitRSIOverbought(t *testing.T) {
	now := time.Now()
	tr := newTestTracker()

	// RSI 82 at +3%: fires even though price is above the trailing stop
	ok, reason := tr.EvaluateExit(103, 82, now)
	if !ok || reason != "RSI Overbought Exit" {
		t.Errorf("Expected RSI Overbought Exit, got %v %q", ok, reason)
	}

	// Overbought but underwater: hold
	if ok, _ := tr.EvaluateExit(99, 82, now); ok {
		t.Error("RSI exit should not fire at a loss")
	}
}

func TestEvaluateExitTimeStop(t *testing.T) {
	tr := newTestTracker()
	tr.EntryTime = time.Now().Add(-6 * 24 * time.Hour)

	// Held 6 days at +1%: time stop fires
	ok, reason := tr.EvaluateExit(101, 60, time.Now())
	if !ok || reason != "Time Stop" {
		t.Errorf("Expected Time Stop after 6 days at +1%%, got %v %q", ok, reason)
	}

	// Held 6 days but at +5%: keep riding
	if ok, _ := tr.EvaluateExit(105.9, 60, time.Now()); ok {
		t.Error("Time stop should not fire on a profitable position")
	}
}

func TestEvaluateExitIdempotent(t *testing.T) {
	tr := newTestTracker()
	tr.EntryTime = time.Now().Add(-6 * 24 * time.Hour)
	now := time.Now()

	ok1, reason1 := tr.EvaluateExit(101, 60, now)
	ok2, reason2 := tr.EvaluateExit(101, 60, now)
	if ok1 != ok2 || reason1 != reason2 {
		t.Errorf("Exit evaluation not idempotent: (%v,%q) vs (%v,%q)", ok1, reason1, ok2, reason2)
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, zerolog.Nop())

	m.Open(ctx, newTestTracker())
	m.Open(ctx, NewTracker("TSLA", "NASDAQ", 240, 10, 5, 2))
	m.Open(ctx, NewTracker("BP.L", "LSE", 500, 20, 8, 3))

	if m.Count() != 3 {
		t.Fatalf("Expected 3 open positions, got %d", m.Count())
	}

	counts := m.CountByMarket()
	if counts["NASDAQ"] != 2 || counts["LSE"] != 1 {
		t.Errorf("Unexpected per-market counts: %v", counts)
	}

	// Advance ratchets and returns the updated snapshot
	snap, err := m.Advance(ctx, "AAPL", 110)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if snap.TrailingStop != 105 {
		t.Errorf("Expected ratcheted stop 105, got %f", snap.TrailingStop)
	}

	closed, err := m.Close(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Symbol != "AAPL" || m.Count() != 2 {
		t.Errorf("Close returned %s, count %d", closed.Symbol, m.Count())
	}

	if _, err := m.Close(ctx, "AAPL"); err != ErrNotTracked {
		t.Errorf("Expected ErrNotTracked on double close, got %v", err)
	}
	if _, err := m.Advance(ctx, "MISSING", 100); err != ErrNotTracked {
		t.Errorf("Expected ErrNotTracked for unknown symbol, got %v", err)
	}
}

type memStore struct {
	saved   map[string]*Tracker
	deleted []string
}

func newMemStore() *memStore { return &memStore{saved: make(map[string]*Tracker)} }

func (s *memStore) SaveTracker(_ context.Context, t *Tracker) error {
	copied := *t
	s.saved[t.Symbol] = &copied
	return nil
}

func (s *memStore) DeleteTracker(_ context.Context, symbol string) error {
	delete(s.saved, symbol)
	s.deleted = append(s.deleted, symbol)
	return nil
}

func (s *memStore) LoadTrackers(_ context.Context) ([]*Tracker, error) {
	out := make([]*Tracker, 0, len(s.saved))
	for _, t := range s.saved {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func TestManagerPersistence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	m := NewManager(store, zerolog.Nop())
	m.Open(ctx, newTestTracker())
	if _, ok := store.saved["AAPL"]; !ok {
		t.Fatal("Open should persist a snapshot")
	}

	// Ratchet persists the updated stop
	m.Advance(ctx, "AAPL", 110)
	if store.saved["AAPL"].TrailingStop != 105 {
		t.Errorf("Persisted stop not updated, got %f", store.saved["AAPL"].TrailingStop)
	}

	// A fresh manager restores the position
	m2 := NewManager(store, zerolog.Nop())
	if err := m2.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	restored, ok := m2.Get("AAPL")
	if !ok || restored.TrailingStop != 105 {
		t.Errorf("Restore lost state: %v %f", ok, restored.TrailingStop)
	}

	m2.Close(ctx, "AAPL")
	if len(store.deleted) != 1 || store.deleted[0] != "AAPL" {
		t.Errorf("Close should delete the snapshot, got %v", store.deleted)
	}
}
