package screener

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/alpaca"
	"equity-trading-bot/internal/indicators"
)

func testScreenerConfig() config.ScreenerConfig {
	return config.ScreenerConfig{
		LookbackDays:  20,
		MinVolatility: 0.25,
		MaxVolatility: 0.80,
		MinATRRatio:   0.01,
		MaxCandidates: 5,
	}
}

func testMarkets() []config.MarketConfig {
	return []config.MarketConfig{
		{
			Name: "ALPHA", Priority: 1, MaxPositions: 2,
			MinPrice: 10, MaxPrice: 200, MinVolume: 500000, MinDollarVolume: 5000000,
			Timezone: "UTC", OpenTime: "00:00", CloseTime: "23:59",
		},
		{
			Name: "BETA", Priority: 2, MaxPositions: 1,
			MinPrice: 10, MaxPrice: 200, MinVolume: 500000, MinDollarVolume: 5000000,
			Timezone: "UTC", OpenTime: "00:00", CloseTime: "23:59",
		},
	}
}

// declineBars builds a falling series: every other bar drops by the given
// factor. The drops set the volatility, the one-sided moves pin RSI to 0.
func declineBars(n int, factor, volume float64) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	ts := time.Now().UTC().AddDate(0, 0, -n)
	price := 100.0
	for i := range bars {
		if i%2 == 1 {
			price *= factor
		}
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price * 1.02,
			Low:       price * 0.98,
			Close:     price,
			Volume:    volume,
		}
	}
	return bars
}

// choppyBars alternates up and down by the same factor, balancing gains and
// losses so RSI lands in the neutral zone.
func choppyBars(n int, factor, volume float64) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	ts := time.Now().UTC().AddDate(0, 0, -n)
	price := 100.0
	for i := range bars {
		if i%2 == 1 {
			price *= factor
		} else if i > 0 {
			price /= factor
		}
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price * 1.02,
			Low:       price * 0.98,
			Close:     price,
			Volume:    volume,
		}
	}
	return bars
}

func flatBars(n int, volume float64) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	ts := time.Now().UTC().AddDate(0, 0, -n)
	for i := range bars {
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      100, High: 100, Low: 100, Close: 100,
			Volume: volume,
		}
	}
	return bars
}

func newTestScreener(mock *alpaca.MockClient, universe UniverseSource) *Screener {
	analyzer := indicators.NewAnalyzer(20, 2.0, zerolog.Nop())
	return New(mock, universe, analyzer, testScreenerConfig(), testMarkets(), zerolog.Nop())
}

func TestScreenerFilters(t *testing.T) {
	mock := alpaca.NewMockClient()
	mock.SetBars("GOOD", declineBars(20, 0.94, 1000000))
	mock.SetBars("FLAT", flatBars(20, 1000000))  // Zero volatility
	mock.SetBars("THIN", declineBars(20, 0.94, 1000)) // Volume below minimum
	mock.SetBars("CHOP", choppyBars(20, 1.05, 1000000)) // Neutral RSI

	universe := &StaticUniverse{Lists: map[string][]string{
		"ALPHA": {"GOOD", "FLAT", "THIN", "CHOP"},
		"BETA":  {},
	}}

	s := newTestScreener(mock, universe)
	candidates, err := s.GetTradingCandidates(context.Background(), 5, []string{"ALPHA", "BETA"})
	if err != nil {
		t.Fatalf("GetTradingCandidates failed: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("Expected exactly 1 candidate, got %d: %v", len(candidates), candidates)
	}
	if candidates[0].Symbol != "GOOD" || candidates[0].Market != "ALPHA" {
		t.Errorf("Expected GOOD/ALPHA, got %s/%s", candidates[0].Symbol, candidates[0].Market)
	}

	m := candidates[0].Metrics
	if m.Volatility < 0.25 || m.Volatility > 0.80 {
		t.Errorf("Accepted volatility outside bounds: %f", m.Volatility)
	}
	if m.RSI >= 25 && m.RSI <= 75 {
		t.Errorf("Accepted RSI not a strong reversal: %f", m.RSI)
	}
}

func TestScreenerRankingAndMarketBudget(t *testing.T) {
	mock := alpaca.NewMockClient()
	mock.SetBars("CALM", declineBars(20, 0.96, 1000000)) // Lowest volatility
	mock.SetBars("WILD", declineBars(20, 0.92, 1000000)) // Highest
	mock.SetBars("MID", declineBars(20, 0.94, 1000000))

	universe := &StaticUniverse{Lists: map[string][]string{
		"ALPHA": {"CALM", "WILD", "MID"},
		"BETA":  {},
	}}

	s := newTestScreener(mock, universe)
	candidates, err := s.GetTradingCandidates(context.Background(), 5, []string{"ALPHA"})
	if err != nil {
		t.Fatalf("GetTradingCandidates failed: %v", err)
	}

	// Market budget is 2; the two most volatile symbols win, in order
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates (market budget), got %d", len(candidates))
	}
	if candidates[0].Symbol != "WILD" || candidates[1].Symbol != "MID" {
		t.Errorf("Expected [WILD MID] by descending volatility, got [%s %s]",
			candidates[0].Symbol, candidates[1].Symbol)
	}
}

func TestScreenerPriorityAndGlobalCap(t *testing.T) {
	mock := alpaca.NewMockClient()
	mock.SetBars("A1", declineBars(20, 0.94, 1000000))
	mock.SetBars("A2", declineBars(20, 0.92, 1000000))
	mock.SetBars("B1", declineBars(20, 0.94, 1000000))

	universe := &StaticUniverse{Lists: map[string][]string{
		"ALPHA": {"A1", "A2"},
		"BETA":  {"B1"},
	}}

	s := newTestScreener(mock, universe)

	// Enough headroom: ALPHA fills its budget, BETA adds its one
	candidates, err := s.GetTradingCandidates(context.Background(), 5, []string{"ALPHA", "BETA"})
	if err != nil {
		t.Fatalf("GetTradingCandidates failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(candidates))
	}
	if candidates[2].Symbol != "B1" || candidates[2].Market != "BETA" {
		t.Errorf("Lower-priority market should fill last, got %v", candidates[2])
	}

	// Global cap 2: the higher-priority market consumes all headroom
	capped, err := s.GetTradingCandidates(context.Background(), 2, []string{"ALPHA", "BETA"})
	if err != nil {
		t.Fatalf("GetTradingCandidates failed: %v", err)
	}
	if len(capped) != 2 {
		t.Fatalf("Expected 2 candidates under global cap, got %d", len(capped))
	}
	for _, c := range capped {
		if c.Market != "ALPHA" {
			t.Errorf("Global cap should leave no room for BETA, got %v", c)
		}
	}
}

func TestScreenerSkipsFailedUniverse(t *testing.T) {
	mock := alpaca.NewMockClient()
	mock.SetBars("B1", declineBars(20, 0.94, 1000000))

	// ALPHA has no universe anywhere; BETA still screens
	universe := &StaticUniverse{Lists: map[string][]string{
		"BETA": {"B1"},
	}}

	s := newTestScreener(mock, universe)
	candidates, err := s.GetTradingCandidates(context.Background(), 5, []string{"ALPHA", "BETA"})
	if err != nil {
		t.Fatalf("GetTradingCandidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Symbol != "B1" {
		t.Errorf("Expected B1 despite ALPHA failure, got %v", candidates)
	}
}
