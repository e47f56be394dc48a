package indicators

import (
	"math"

	"equity-trading-bot/internal/alpaca"
)

// Regime classifies directional bias and strength of a market.
type Regime string

const (
	TrendingUp   Regime = "TRENDING_UP"
	TrendingDown Regime = "TRENDING_DOWN"
	Ranging      Regime = "RANGING"
)

const (
	regimeFastPeriod = 20
	regimeSlowPeriod = 50
	adxPeriod        = 14
	adxTrendLevel    = 25
)

// ADX calculates the Wilder average directional index from +DI/-DI.
// Returns 0 on insufficient input.
func ADX(high, low, close []float64, period int) float64 {
	if period <= 0 {
		period = adxPeriod
	}
	n := len(close)
	// Need period bars to seed the smoothed sums and another period of DX
	// values to seed the ADX average.
	if n < 2*period+1 || len(high) != n || len(low) != n {
		return 0
	}

	smTR, smPlusDM, smMinusDM := 0.0, 0.0, 0.0
	for i := 1; i <= period; i++ {
		tr, plusDM, minusDM := directionalMovement(high, low, close, i)
		smTR += tr
		smPlusDM += plusDM
		smMinusDM += minusDM
	}

	dxAt := func() float64 {
		if smTR == 0 {
			return 0
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		sum := plusDI + minusDI
		if sum == 0 {
			return 0
		}
		return 100 * math.Abs(plusDI-minusDI) / sum
	}

	adx := dxAt()
	count := 1
	for i := period + 1; i < n; i++ {
		tr, plusDM, minusDM := directionalMovement(high, low, close, i)
		smTR = smTR - smTR/float64(period) + tr
		smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
		smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM

		dx := dxAt()
		if count < period {
			adx += dx
			count++
			if count == period {
				adx /= float64(period)
			}
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
		}
	}
	if count < period {
		adx /= float64(count)
	}
	return adx
}

func directionalMovement(high, low, close []float64, i int) (tr, plusDM, minusDM float64) {
	tr = trueRange(high[i], low[i], close[i-1])
	upMove := high[i] - high[i-1]
	downMove := low[i-1] - low[i]
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	return tr, plusDM, minusDM
}

// DetectRegime classifies the market from SMA20/SMA50 alignment and ADX
// trend strength. Recomputed each evaluation, never persisted. Insufficient
// data classifies as RANGING.
func DetectRegime(bars []alpaca.Bar) Regime {
	if len(bars) < regimeSlowPeriod {
		return Ranging
	}

	closes := alpaca.Closes(bars)
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}

	price := closes[len(closes)-1]
	sma20 := SMA(closes, regimeFastPeriod)
	sma50 := SMA(closes, regimeSlowPeriod)
	adx := ADX(highs, lows, closes, adxPeriod)

	if adx > adxTrendLevel {
		if price > sma20 && sma20 > sma50 {
			return TrendingUp
		}
		if price < sma20 && sma20 < sma50 {
			return TrendingDown
		}
	}
	return Ranging
}
