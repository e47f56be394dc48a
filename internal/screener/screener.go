package screener

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/alpaca"
	"equity-trading-bot/internal/indicators"
)

// Screener filters and ranks symbol universes into trading candidates.
type Screener struct {
	data     alpaca.DataClient
	universe UniverseSource
	analyzer *indicators.Analyzer
	cfg      config.ScreenerConfig
	markets  []config.MarketConfig
	logger   zerolog.Logger
}

// Metrics holds the per-symbol screening measurements.
type Metrics struct {
	AvgVolume  float64
	AvgPrice   float64
	Volatility float64 // annualized
	RSI        float64
	ATR        float64
}

// Candidate is an accepted screening result.
type Candidate struct {
	Symbol  string
	Market  string
	Metrics Metrics
}

func New(data alpaca.DataClient, universe UniverseSource, analyzer *indicators.Analyzer,
	cfg config.ScreenerConfig, markets []config.MarketConfig, logger zerolog.Logger) *Screener {
	return &Screener{
		data:     data,
		universe: universe,
		analyzer: analyzer,
		cfg:      cfg,
		markets:  markets,
		logger:   logger.With().Str("component", "Screener").Logger(),
	}
}

// GetTradingCandidates screens the requested markets in priority order and
// returns up to maxStocks candidates. Each market contributes at most its own
// position budget; higher-priority markets fill first. Per-symbol failures
// skip the symbol, never the whole market pass.
func (s *Screener) GetTradingCandidates(ctx context.Context, maxStocks int, marketNames []string) ([]Candidate, error) {
	wanted := make(map[string]bool, len(marketNames))
	for _, name := range marketNames {
		wanted[name] = true
	}

	var selected []Candidate

	// s.markets is sorted by ascending priority at load time.
	for _, market := range s.markets {
		if len(marketNames) > 0 && !wanted[market.Name] {
			continue
		}
		if len(selected) >= maxStocks {
			break
		}

		accepted := s.screenMarket(ctx, market)

		// Rank by descending volatility, then truncate to the market's own
		// budget and the remaining global headroom.
		sortByVolatilityDesc(accepted)
		budget := market.MaxPositions
		if remaining := maxStocks - len(selected); remaining < budget {
			budget = remaining
		}
		if len(accepted) > budget {
			accepted = accepted[:budget]
		}
		selected = append(selected, accepted...)

		s.logger.Info().
			Str("market", market.Name).
			Int("accepted", len(accepted)).
			Int("total", len(selected)).
			Msg("Market screening pass complete")

		if err := ctx.Err(); err != nil {
			return selected, err
		}
	}

	return selected, nil
}

func (s *Screener) screenMarket(ctx context.Context, market config.MarketConfig) []Candidate {
	symbols, err := s.universe.Symbols(ctx, market.Name)
	if err != nil {
		s.logger.Error().Err(err).Str("market", market.Name).Msg("No universe for market, skipping")
		return nil
	}

	var accepted []Candidate
	for _, symbol := range symbols {
		bars, err := s.fetchLookback(ctx, symbol)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Bar fetch failed, skipping symbol")
			continue
		}
		if len(bars) == 0 {
			continue
		}

		metrics, ok := s.calculateMetrics(bars)
		if !ok {
			continue
		}

		if reason := s.filter(metrics, market); reason != "" {
			s.logger.Debug().
				Str("symbol", symbol).
				Str("reason", reason).
				Msg("Symbol rejected")
			continue
		}

		accepted = append(accepted, Candidate{Symbol: symbol, Market: market.Name, Metrics: metrics})
		s.logger.Info().
			Str("symbol", symbol).
			Float64("volatility", metrics.Volatility).
			Float64("rsi", metrics.RSI).
			Msg("Symbol accepted as candidate")
	}
	return accepted
}

// fetchLookback requests three times the lookback window to ride out holidays
// and halts, then keeps the most recent bars.
func (s *Screener) fetchLookback(ctx context.Context, symbol string) ([]alpaca.Bar, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -s.cfg.LookbackDays*3)

	bars, err := s.data.GetBars(ctx, symbol, start, end, alpaca.TimeframeDay)
	if err != nil {
		return nil, err
	}
	if len(bars) > s.cfg.LookbackDays {
		bars = bars[len(bars)-s.cfg.LookbackDays:]
	}
	return bars, nil
}

// calculateMetrics derives the screening measurements from a bar window.
// Returns false when the window is too short for a real RSI, which rejects
// the symbol rather than screening on a neutral default.
func (s *Screener) calculateMetrics(bars []alpaca.Bar) (Metrics, bool) {
	const rsiPeriod = 14
	if len(bars) < rsiPeriod+1 {
		return Metrics{}, false
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumeSum := 0.0
	priceSum := 0.0
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumeSum += b.Volume
		priceSum += b.Close
	}

	m := Metrics{
		AvgVolume:  volumeSum / float64(len(bars)),
		AvgPrice:   priceSum / float64(len(bars)),
		Volatility: indicators.HistoricalVolatility(bars),
		RSI:        s.analyzer.RSI(closes, rsiPeriod),
		ATR:        indicators.ATR(highs, lows, closes, rsiPeriod),
	}

	// Intraday bars carry per-bar volume; scale to a daily figure.
	if len(bars) >= 2 {
		spacing := bars[1].Timestamp.Sub(bars[0].Timestamp)
		if spacing > 0 && spacing < 24*time.Hour {
			m.AvgVolume *= 390
		}
	}

	return m, m.AvgPrice > 0
}

// filter applies the acceptance criteria and returns a rejection reason, or
// an empty string when the symbol passes.
func (s *Screener) filter(m Metrics, market config.MarketConfig) string {
	if m.AvgVolume < market.MinVolume {
		return "volume below market minimum"
	}
	if m.AvgPrice < market.MinPrice || m.AvgPrice > market.MaxPrice {
		return "price outside market range"
	}
	if market.MinDollarVolume > 0 && m.AvgVolume*m.AvgPrice < market.MinDollarVolume {
		return "dollar volume below market minimum"
	}
	if m.Volatility < s.cfg.MinVolatility || m.Volatility > s.cfg.MaxVolatility {
		return "volatility outside bounds"
	}
	if m.ATR/m.AvgPrice < s.cfg.MinATRRatio {
		return "ATR ratio below minimum"
	}
	// Neutral-zone veto plus a strong-reversal requirement: only clearly
	// overbought or oversold symbols pass.
	if m.RSI >= 40 && m.RSI <= 60 {
		return "RSI in neutral zone"
	}
	if m.RSI >= 25 && m.RSI <= 75 {
		return "RSI reversal not strong enough"
	}
	return ""
}

func sortByVolatilityDesc(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		return cs[i].Metrics.Volatility > cs[j].Metrics.Volatility
	})
}
