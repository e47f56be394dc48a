package indicators

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"equity-trading-bot/internal/alpaca"
)

// ErrInsufficientData is returned when a series is shorter than the window
// an indicator needs.
var ErrInsufficientData = errors.New("insufficient data for indicator window")

// tradingDayMinutes is the length of a regular equity session, used to
// annualize intraday volatility.
const tradingDayMinutes = 390

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the simple moving average over the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA calculates the exponential moving average of the full series, seeded
// with the SMA of the first period values.
func EMA(values []float64, period int) float64 {
	series := emaSeries(values, period)
	if series == nil {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries returns the EMA at every index from period-1 onward, or nil when
// the series is too short.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[0] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i-period+1] = values[i]*multiplier + out[i-period]*(1-multiplier)
	}
	return out
}

// StdDev calculates the population standard deviation over the last period
// values.
func StdDev(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	mean := SMA(values, period)
	variance := 0.0
	for i := len(values) - period; i < len(values); i++ {
		diff := values[i] - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(period))
}

// ============================================================================
// ANALYZER
// ============================================================================

// Analyzer computes the indicator set the signal generator consumes. The
// Bollinger parameters are per-instance; everything else uses conventional
// fixed windows.
type Analyzer struct {
	Period int
	NumStd float64

	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer with the given Bollinger parameters.
func NewAnalyzer(period int, numStd float64, logger zerolog.Logger) *Analyzer {
	if period <= 0 {
		period = 20
	}
	if numStd <= 0 {
		numStd = 2.0
	}
	return &Analyzer{
		Period: period,
		NumStd: numStd,
		logger: logger.With().Str("component", "Analyzer").Logger(),
	}
}

// BollingerBands calculates upper, middle and lower bands aligned to the
// input series. Entries before the window fills are NaN; the latest entry is
// always a real value. Returns ErrInsufficientData when the series is
// shorter than the period.
func (a *Analyzer) BollingerBands(prices []float64) (upper, middle, lower []float64, err error) {
	if len(prices) < a.Period {
		return nil, nil, nil, ErrInsufficientData
	}

	upper = make([]float64, len(prices))
	middle = make([]float64, len(prices))
	lower = make([]float64, len(prices))

	for i := range prices {
		if i < a.Period-1 {
			upper[i], middle[i], lower[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		window := prices[:i+1]
		mid := SMA(window, a.Period)
		sd := StdDev(window, a.Period)
		middle[i] = mid
		upper[i] = mid + sd*a.NumStd
		lower[i] = mid - sd*a.NumStd
	}
	return upper, middle, lower, nil
}

// RSI calculates the Wilder-smoothed relative strength index. Insufficient
// or degenerate input yields the neutral value 50 with a warning, so that
// downstream signal logic stays total.
func (a *Analyzer) RSI(prices []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(prices) < period+1 {
		a.logger.Warn().
			Int("have", len(prices)).
			Int("need", period+1).
			Msg("RSI window not filled, returning neutral")
		return 50.0
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgGain == 0 && avgLoss == 0 {
		a.logger.Warn().Msg("RSI input is flat, returning neutral")
		return 50.0
	}
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR calculates the Wilder-smoothed average true range. Returns 0 on
// insufficient input; callers must treat 0 as "no risk information", never
// as zero risk.
func ATR(high, low, close []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	n := len(close)
	if n < period+1 || len(high) != n || len(low) != n {
		return 0
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(high[i], low[i], close[i-1])
	}
	atr /= float64(period)

	for i := period + 1; i < n; i++ {
		tr := trueRange(high[i], low[i], close[i-1])
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// MACD calculates the EMA-based MACD line, signal line and histogram with
// standard 12/26/9 windows. Returns (0, 0, 0) on insufficient input.
func (a *Analyzer) MACD(prices []float64) (macd, signal, hist float64) {
	return MACDWith(prices, 12, 26, 9)
}

// MACDWith calculates MACD with explicit fast/slow/signal periods. The
// signal line is a true EMA over the MACD series, not an approximation.
func MACDWith(prices []float64, fast, slow, signalPeriod int) (macd, signal, hist float64) {
	if len(prices) < slow+signalPeriod {
		return 0, 0, 0
	}

	fastSeries := emaSeries(prices, fast)
	slowSeries := emaSeries(prices, slow)
	if fastSeries == nil || slowSeries == nil {
		return 0, 0, 0
	}

	// Both series end at the last bar; align on their tails.
	n := len(slowSeries)
	macdSeries := make([]float64, n)
	offset := len(fastSeries) - n
	for i := 0; i < n; i++ {
		macdSeries[i] = fastSeries[offset+i] - slowSeries[i]
	}

	signalSeries := emaSeries(macdSeries, signalPeriod)
	if signalSeries == nil {
		return 0, 0, 0
	}

	macd = macdSeries[n-1]
	signal = signalSeries[len(signalSeries)-1]
	return macd, signal, macd - signal
}

// HistoricalVolatility calculates the annualized standard deviation of log
// close returns. Bar spacing under 24h is treated as intraday and the
// annualization factor scales by the number of bars in a trading day.
func HistoricalVolatility(bars []alpaca.Bar) float64 {
	if len(bars) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(bars[i].Close/bars[i-1].Close))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	sd := math.Sqrt(variance / float64(len(returns)-1))

	return sd * math.Sqrt(annualizationFactor(bars))
}

// annualizationFactor returns the number of bars per year implied by the
// median spacing of the series: 252 for daily bars, 252 x bars-per-day for
// intraday bars.
func annualizationFactor(bars []alpaca.Bar) float64 {
	spacing := medianSpacing(bars)
	if spacing <= 0 || spacing >= 24*time.Hour {
		return 252
	}
	barsPerDay := float64(tradingDayMinutes) / spacing.Minutes()
	if barsPerDay < 1 {
		barsPerDay = 1
	}
	return 252 * barsPerDay
}

func medianSpacing(bars []alpaca.Bar) time.Duration {
	if len(bars) < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		deltas = append(deltas, bars[i].Timestamp.Sub(bars[i-1].Timestamp))
	}
	// Insertion sort; the slice is tiny.
	for i := 1; i < len(deltas); i++ {
		for j := i; j > 0 && deltas[j] < deltas[j-1]; j-- {
			deltas[j], deltas[j-1] = deltas[j-1], deltas[j]
		}
	}
	return deltas[len(deltas)/2]
}

// Momentum calculates the rate of change over the analyzer period, in
// percent. Returns 0 on insufficient input.
func (a *Analyzer) Momentum(prices []float64) float64 {
	if len(prices) < a.Period+1 {
		return 0
	}
	past := prices[len(prices)-a.Period-1]
	if past == 0 {
		return 0
	}
	return (prices[len(prices)-1] - past) / past * 100
}

// PositionSizeFromRisk sizes a position so that a 2-ATR adverse move loses
// riskPct of equity, with a floor that keeps the position worth at least
// $1000. Returns 0 when the ATR carries no risk information.
func PositionSizeFromRisk(equity, price, atr, riskPct float64) float64 {
	if atr <= 0 || price <= 0 || equity <= 0 || riskPct <= 0 {
		return 0
	}
	shares := (equity * riskPct) / (2 * atr)
	minShares := math.Ceil(1000 / price)
	return math.Max(shares, minShares)
}
