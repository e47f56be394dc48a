package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-trading-bot/internal/alpaca"
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer(20, 2.0, zerolog.Nop())
}

func linearPrices(start, step float64, n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + step*float64(i)
	}
	return prices
}

func TestBollingerBandsInsufficientData(t *testing.T) {
	a := testAnalyzer()

	_, _, _, err := a.BollingerBands(linearPrices(100, 1, 10))
	if err != ErrInsufficientData {
		t.Errorf("Expected ErrInsufficientData for short series, got %v", err)
	}
}

func TestBollingerBandsOrdering(t *testing.T) {
	a := testAnalyzer()
	prices := []float64{
		100, 102, 98, 101, 103, 99, 100, 104, 102, 101,
		97, 105, 103, 100, 102, 98, 101, 99, 104, 100,
		103, 101, 99, 102,
	}

	upper, middle, lower, err := a.BollingerBands(prices)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}
	if len(upper) != len(prices) || len(middle) != len(prices) || len(lower) != len(prices) {
		t.Fatalf("Band lengths %d/%d/%d do not match input length %d",
			len(upper), len(middle), len(lower), len(prices))
	}

	// Entries before the window fills are NaN
	for i := 0; i < a.Period-1; i++ {
		if !math.IsNaN(middle[i]) {
			t.Errorf("Expected NaN at index %d before window fills, got %f", i, middle[i])
		}
	}

	// Upper >= middle >= lower at every computed point
	for i := a.Period - 1; i < len(prices); i++ {
		if upper[i] < middle[i] || middle[i] < lower[i] {
			t.Errorf("Band ordering violated at %d: upper=%f middle=%f lower=%f",
				i, upper[i], middle[i], lower[i])
		}
	}

	// Latest entry is always a real value
	last := len(prices) - 1
	if math.IsNaN(upper[last]) || math.IsNaN(middle[last]) || math.IsNaN(lower[last]) {
		t.Error("Latest band values must not be NaN")
	}
}

func TestBollingerBandsConstantPrices(t *testing.T) {
	a := testAnalyzer()
	prices := linearPrices(100, 0, 25)

	upper, middle, lower, err := a.BollingerBands(prices)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}

	last := len(prices) - 1
	if upper[last] != 100 || middle[last] != 100 || lower[last] != 100 {
		t.Errorf("Constant series should collapse all bands to the price, got %f/%f/%f",
			upper[last], middle[last], lower[last])
	}
}

func TestRSINeutralDefault(t *testing.T) {
	a := testAnalyzer()

	// Too little data
	if rsi := a.RSI([]float64{100, 101, 102}, 14); rsi != 50.0 {
		t.Errorf("Expected neutral RSI 50 for short series, got %f", rsi)
	}

	// Flat series has no gains or losses
	if rsi := a.RSI(linearPrices(100, 0, 30), 14); rsi != 50.0 {
		t.Errorf("Expected neutral RSI 50 for flat series, got %f", rsi)
	}
}

func TestRSIExtremes(t *testing.T) {
	a := testAnalyzer()

	// Monotonic gains drive RSI to 100
	if rsi := a.RSI(linearPrices(100, 1, 30), 14); rsi != 100 {
		t.Errorf("All-gains series should give RSI 100, got %f", rsi)
	}

	// Monotonic losses drive RSI toward 0
	if rsi := a.RSI(linearPrices(100, -1, 30), 14); rsi > 1 {
		t.Errorf("All-losses series should give RSI near 0, got %f", rsi)
	}

	// RSI always bounded [0,100]
	mixed := []float64{100, 105, 95, 110, 90, 108, 92, 107, 93, 106, 94, 105, 96, 104, 97, 103}
	if rsi := a.RSI(mixed, 14); rsi < 0 || rsi > 100 {
		t.Errorf("RSI out of bounds: %f", rsi)
	}
}

func TestATR(t *testing.T) {
	// Constant 2-point daily range
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 101
		low[i] = 99
		closes[i] = 100
	}

	atr := ATR(high, low, closes, 14)
	if math.Abs(atr-2.0) > 1e-9 {
		t.Errorf("Expected ATR 2.0 for constant range, got %f", atr)
	}

	// Insufficient data returns 0, meaning "no risk information"
	if atr := ATR(high[:5], low[:5], closes[:5], 14); atr != 0 {
		t.Errorf("Expected ATR 0 on insufficient data, got %f", atr)
	}
}

func TestMACDInsufficientData(t *testing.T) {
	a := testAnalyzer()
	macd, signal, hist := a.MACD(linearPrices(100, 1, 10))
	if macd != 0 || signal != 0 || hist != 0 {
		t.Errorf("Expected (0,0,0) for short series, got (%f,%f,%f)", macd, signal, hist)
	}
}

func TestMACDUptrend(t *testing.T) {
	a := testAnalyzer()
	macd, _, _ := a.MACD(linearPrices(100, 1, 60))
	if macd <= 0 {
		t.Errorf("Sustained uptrend should give positive MACD, got %f", macd)
	}
}

func TestPositionSizeFromRisk(t *testing.T) {
	// equity=$100,000, risk=1%, price=$50, ATR=$2 -> (100000*0.01)/(2*2) = 250
	size := PositionSizeFromRisk(100000, 50, 2, 0.01)
	if size != 250 {
		t.Errorf("Expected 250 shares, got %f", size)
	}

	// Unusable ATR fails softly
	if size := PositionSizeFromRisk(100000, 50, 0, 0.01); size != 0 {
		t.Errorf("Expected 0 shares for zero ATR, got %f", size)
	}

	// Tiny risk allocation gets floored at ceil(1000/price) to avoid dust
	size = PositionSizeFromRisk(100000, 50, 100, 0.001)
	floor := math.Ceil(1000.0 / 50.0)
	if size != floor {
		t.Errorf("Expected dust floor %f, got %f", floor, size)
	}
}

func dailyBars(closes []float64) []alpaca.Bar {
	bars := make([]alpaca.Bar, len(closes))
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = alpaca.Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000000,
		}
	}
	return bars
}

func TestHistoricalVolatility(t *testing.T) {
	// Flat series has zero volatility
	if vol := HistoricalVolatility(dailyBars(linearPrices(100, 0, 30))); vol != 0 {
		t.Errorf("Expected zero volatility for flat series, got %f", vol)
	}

	// Alternating returns give positive volatility
	closes := make([]float64, 30)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 105
		}
	}
	if vol := HistoricalVolatility(dailyBars(closes)); vol <= 0 {
		t.Errorf("Expected positive volatility, got %f", vol)
	}
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	if sma := SMA(prices, 5); sma != 3 {
		t.Errorf("Expected SMA 3, got %f", sma)
	}
	if sma := SMA(prices, 2); sma != 4.5 {
		t.Errorf("Expected SMA 4.5 over last 2, got %f", sma)
	}
	if sma := SMA(prices, 10); sma != 0 {
		t.Errorf("Expected 0 for oversized period, got %f", sma)
	}
}

func TestMomentum(t *testing.T) {
	a := testAnalyzer()

	// 100 -> 120 over the 20-bar window is a 20% rate of change
	prices := linearPrices(100, 1, 21)
	if m := a.Momentum(prices); m != 20 {
		t.Errorf("Expected momentum 20, got %f", m)
	}

	// Declining series gives negative momentum
	if m := a.Momentum(linearPrices(120, -1, 21)); m >= 0 {
		t.Errorf("Expected negative momentum for a decline, got %f", m)
	}

	if m := a.Momentum(linearPrices(100, 0, 21)); m != 0 {
		t.Errorf("Expected zero momentum for flat series, got %f", m)
	}

	// Shorter than period+1 bars
	if m := a.Momentum(linearPrices(100, 1, 20)); m != 0 {
		t.Errorf("Expected 0 on insufficient input, got %f", m)
	}
}
