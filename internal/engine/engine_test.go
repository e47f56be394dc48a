package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/alpaca"
	"equity-trading-bot/internal/indicators"
	"equity-trading-bot/internal/notification"
	"equity-trading-bot/internal/position"
	"equity-trading-bot/internal/screener"
)

func testConfig() *config.Config {
	return &config.Config{
		TradingConfig: config.TradingConfig{
			CheckIntervalSecs:  300,
			MaxTotalPositions:  2,
			MarketProxySymbol:  "SPY",
			MaxProxyVolatility: 0.02,
		},
		RiskConfig: config.RiskConfig{
			PositionSize:   0.1,
			MaxPositionPct: 0.20,
			RiskPerTrade:   0.01,
		},
		ScreenerConfig: config.ScreenerConfig{
			LookbackDays:      20,
			MinVolatility:     0.25,
			MaxVolatility:     0.80,
			MinATRRatio:       0.01,
			ScreeningSchedule: "@every 1h",
			MaxCandidates:     5,
		},
		StrategyConfig: config.StrategyConfig{Name: "ENHANCED_BOLLINGER"},
	}
}

func allDayMarkets() []config.MarketConfig {
	return []config.MarketConfig{
		{
			Name: "ALPHA", Priority: 1, MaxPositions: 1,
			Timezone: "UTC", OpenTime: "00:01", CloseTime: "23:59",
		},
		{
			Name: "BETA", Priority: 2, MaxPositions: 2,
			Timezone: "UTC", OpenTime: "00:01", CloseTime: "23:59",
		},
	}
}

// dipBars holds price flat then drops the last close far below the lower
// band, producing a strong buy setup with RSI pinned low.
func dipBars(n int, base, last float64) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := base
		if i == n-1 {
			c = last
		}
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      base,
			High:      base * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000000,
		}
	}
	return bars
}

// bullBars rises steadily, keeping the last price above both SMAs with a
// tiny ATR, so the proxy favorability check passes.
func bullBars(n int) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	price := 400.0
	for i := range bars {
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price * 1.001,
			Low:       price * 0.999,
			Close:     price,
			Volume:    1000000,
		}
		price += 1
	}
	return bars
}

// bearBars declines steadily, keeping the last price below both SMAs.
func bearBars(n int) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	price := 500.0
	for i := range bars {
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price * 1.001,
			Low:       price * 0.999,
			Close:     price,
			Volume:    1000000,
		}
		price -= 1
	}
	return bars
}

func newTestEngine(cfg *config.Config, mock *alpaca.MockClient) *Engine {
	markets := allDayMarkets()
	analyzer := indicators.NewAnalyzer(20, 2.0, zerolog.Nop())
	positions := position.NewManager(nil, zerolog.Nop())
	notifier := notification.NewManager(config.NotificationConfig{}, zerolog.Nop())
	scr := screener.New(mock, &screener.StaticUniverse{Lists: map[string][]string{}},
		analyzer, cfg.ScreenerConfig, markets, zerolog.Nop())
	return New(cfg, markets, mock, mock, analyzer, scr, positions, nil, notifier, zerolog.Nop())
}

func TestTryEntryOpensPosition(t *testing.T) {
	cfg := testConfig()
	mock := alpaca.NewMockClient()
	mock.SetBars("DIP", dipBars(40, 100, 90))

	eng := newTestEngine(cfg, mock)
	market := &allDayMarkets()[0]

	opened := eng.tryEntry(context.Background(), screener.Candidate{Symbol: "DIP", Market: "ALPHA"},
		market, indicators.Ranging)
	if !opened {
		t.Fatal("Expected entry to open a position")
	}

	tracker, ok := eng.positions.Get("DIP")
	if !ok {
		t.Fatal("No tracker created for the entry")
	}
	if tracker.EntryPrice != 90 {
		t.Errorf("Expected fill at 90, got %f", tracker.EntryPrice)
	}
	if tracker.Quantity <= 0 {
		t.Errorf("Expected positive quantity, got %f", tracker.Quantity)
	}
	if tracker.InitialStop >= tracker.EntryPrice {
		t.Errorf("Initial stop %f should sit below entry %f", tracker.InitialStop, tracker.EntryPrice)
	}
	if tracker.Market != "ALPHA" {
		t.Errorf("Tracker should carry the market name, got %q", tracker.Market)
	}
}

func TestTryEntryDryRun(t *testing.T) {
	cfg := testConfig()
	cfg.TradingConfig.DryRun = true
	mock := alpaca.NewMockClient()
	mock.SetBars("DIP", dipBars(40, 100, 90))

	eng := newTestEngine(cfg, mock)
	market := &allDayMarkets()[0]

	opened := eng.tryEntry(context.Background(), screener.Candidate{Symbol: "DIP", Market: "ALPHA"},
		market, indicators.Ranging)
	if opened {
		t.Error("Dry run must not open positions")
	}
	if eng.positions.Count() != 0 {
		t.Errorf("Dry run must not create trackers, got %d", eng.positions.Count())
	}
}

func TestTryEntryNoSignal(t *testing.T) {
	cfg := testConfig()
	mock := alpaca.NewMockClient()
	// Flat series inside the bands: no setup
	mock.SetBars("FLAT", dipBars(40, 100, 100))

	eng := newTestEngine(cfg, mock)
	market := &allDayMarkets()[0]

	if eng.tryEntry(context.Background(), screener.Candidate{Symbol: "FLAT", Market: "ALPHA"},
		market, indicators.Ranging) {
		t.Error("Flat price action should not trigger an entry")
	}
}

func TestAllocationCaps(t *testing.T) {
	cfg := testConfig()
	mock := alpaca.NewMockClient()
	mock.SetBars("SPY", bullBars(120))
	for _, symbol := range []string{"A1", "A2", "B1", "B2"} {
		mock.SetBars(symbol, dipBars(40, 100, 90))
	}

	eng := newTestEngine(cfg, mock)
	eng.candidates = []screener.Candidate{
		{Symbol: "A1", Market: "ALPHA"},
		{Symbol: "A2", Market: "ALPHA"},
		{Symbol: "B1", Market: "BETA"},
		{Symbol: "B2", Market: "BETA"},
	}

	// Wednesday mid-session
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	eng.openNewPositions(context.Background(), now)

	// Global cap 2 holds even with four willing candidates
	if got := eng.positions.Count(); got != cfg.TradingConfig.MaxTotalPositions {
		t.Fatalf("Expected %d open positions, got %d", cfg.TradingConfig.MaxTotalPositions, got)
	}

	// ALPHA caps at 1, so exactly one BETA entry fills the remainder
	counts := eng.positions.CountByMarket()
	if counts["ALPHA"] != 1 || counts["BETA"] != 1 {
		t.Errorf("Per-market caps violated: %v", counts)
	}

	// A second pass opens nothing more
	eng.openNewPositions(context.Background(), now)
	if got := eng.positions.Count(); got != 2 {
		t.Errorf("Second cycle should not exceed the cap, got %d", got)
	}
}

func TestNoEntriesWithoutProxyData(t *testing.T) {
	cfg := testConfig()
	mock := alpaca.NewMockClient()
	mock.SetBars("SPY", nil)
	mock.SetBars("A1", dipBars(40, 100, 90))

	eng := newTestEngine(cfg, mock)
	eng.candidates = []screener.Candidate{{Symbol: "A1", Market: "ALPHA"}}

	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	eng.openNewPositions(context.Background(), now)

	if got := eng.positions.Count(); got != 0 {
		t.Errorf("Missing proxy data must block entries, %d position(s) opened", got)
	}
}

func TestNoEntriesWhenProxyUnfavorable(t *testing.T) {
	cfg := testConfig()
	mock := alpaca.NewMockClient()
	// Proxy in a steady decline: price below both SMAs
	mock.SetBars("SPY", bearBars(120))
	mock.SetBars("A1", dipBars(40, 100, 90))

	eng := newTestEngine(cfg, mock)
	eng.candidates = []screener.Candidate{{Symbol: "A1", Market: "ALPHA"}}

	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	eng.openNewPositions(context.Background(), now)

	if got := eng.positions.Count(); got != 0 {
		t.Errorf("Unfavorable proxy must block entries, %d position(s) opened", got)
	}
}

func TestExecuteExitClosesPosition(t *testing.T) {
	cfg := testConfig()
	mock := alpaca.NewMockClient()
	mock.SetBars("DIP", dipBars(40, 100, 90))

	eng := newTestEngine(cfg, mock)
	market := &allDayMarkets()[0]

	if !eng.tryEntry(context.Background(), screener.Candidate{Symbol: "DIP", Market: "ALPHA"},
		market, indicators.Ranging) {
		t.Fatal("Setup entry failed")
	}
	tracker, _ := eng.positions.Get("DIP")

	eng.executeExit(context.Background(), tracker, 95, "Trailing Stop")
	if eng.positions.Count() != 0 {
		t.Errorf("Exit should destroy the tracker, %d remain", eng.positions.Count())
	}
}

func TestVolumeRatio(t *testing.T) {
	bars := dipBars(30, 100, 100)
	if r := volumeRatio(bars, 20); r != 1 {
		t.Errorf("Constant volume should give ratio 1, got %f", r)
	}

	bars[len(bars)-1].Volume = 3000000
	r := volumeRatio(bars, 20)
	if r < 2.5 || r > 3.1 {
		t.Errorf("Volume spike should give ratio near 3, got %f", r)
	}

	if r := volumeRatio(nil, 20); r != 1 {
		t.Errorf("Empty input should default to 1, got %f", r)
	}
}

func TestComputeATR(t *testing.T) {
	bars := dipBars(30, 100, 100)
	if atr := computeATR(bars, 14); atr <= 0 {
		t.Errorf("Expected positive ATR, got %f", atr)
	}
	if atr := computeATR(bars[:5], 14); atr != 0 {
		t.Errorf("Expected 0 ATR on short input, got %f", atr)
	}
}
