package position

import (
	"math"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/indicators"
)

const (
	rangingSizeFactor  = 0.7
	trendingSizeFactor = 1.2

	// Applied when volatility is unknown: size as if the stock were risky
	// rather than assuming it is calm.
	unknownVolFactor = 0.5
)

// CalculateSize converts account equity into a share count for a new entry.
// The base allocation is equity times the configured position fraction,
// shrunk by a volatility factor 1/(1+vol) and capped at the maximum position
// fraction. The detected regime then scales the result: ranging markets take
// smaller positions, trending markets slightly larger ones.
func CalculateSize(equity, price, volatility float64, regime indicators.Regime, cfg config.RiskConfig) float64 {
	if equity <= 0 || price <= 0 {
		return 0
	}

	value := equity * cfg.PositionSize
	if volatility > 0 {
		value *= 1 / (1 + volatility)
	} else {
		value *= unknownVolFactor
	}
	if maxValue := equity * cfg.MaxPositionPct; value > maxValue {
		value = maxValue
	}

	switch regime {
	case indicators.Ranging:
		value *= rangingSizeFactor
	case indicators.TrendingUp, indicators.TrendingDown:
		value *= trendingSizeFactor
	}

	return math.Floor(value / price)
}
