package indicators

// Signal represents a discrete trading signal.
type Signal string

const (
	StrongBuy  Signal = "STRONG_BUY"
	Buy        Signal = "BUY"
	Hold       Signal = "HOLD"
	Sell       Signal = "SELL"
	StrongSell Signal = "STRONG_SELL"
)

// IsBuy reports whether the signal is a buy variant.
func (s Signal) IsBuy() bool {
	return s == Buy || s == StrongBuy
}

// IsSell reports whether the signal is a sell variant.
func (s Signal) IsSell() bool {
	return s == Sell || s == StrongSell
}

// Thresholds for the signal stages.
const (
	strongBandDistance = 0.02 // Band breach beyond 2% of price upgrades to STRONG
	rsiOversold        = 30
	rsiOverbought      = 70
	rsiNeutralLow      = 45
	rsiNeutralHigh     = 55
	volumeConfirmRatio = 1.5
)

// GenerateSignal combines band position, RSI and volume confirmation into a
// discrete signal. Stages apply in order: bands set the base signal, RSI may
// strengthen it or veto it to HOLD, volume may strengthen it. Later stages
// never weaken a signal below HOLD.
func GenerateSignal(price, upperBand, lowerBand float64, rsi, volumeRatio *float64) Signal {
	upperDistance := (price - upperBand) / price
	lowerDistance := (lowerBand - price) / price

	// Stage 1: band position
	signal := Hold
	switch {
	case price < lowerBand:
		signal = Buy
		if lowerDistance > strongBandDistance {
			signal = StrongBuy
		}
	case price > upperBand:
		signal = Sell
		if upperDistance > strongBandDistance {
			signal = StrongSell
		}
	}

	// Stage 2: RSI confirmation and neutral veto
	if rsi != nil {
		switch {
		case signal.IsBuy() && *rsi < rsiOversold:
			signal = StrongBuy
		case signal.IsSell() && *rsi > rsiOverbought:
			signal = StrongSell
		case *rsi >= rsiNeutralLow && *rsi <= rsiNeutralHigh:
			// Neutral momentum vetoes any directional call.
			signal = Hold
		}
	}

	// Stage 3: volume confirmation
	if volumeRatio != nil && *volumeRatio > volumeConfirmRatio {
		if signal.IsBuy() {
			signal = StrongBuy
		} else if signal.IsSell() {
			signal = StrongSell
		}
	}

	return signal
}
