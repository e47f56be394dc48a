package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/alpaca"
	"equity-trading-bot/internal/circuit"
	"equity-trading-bot/internal/database"
	"equity-trading-bot/internal/indicators"
	"equity-trading-bot/internal/notification"
	"equity-trading-bot/internal/position"
	"equity-trading-bot/internal/screener"
)

const (
	entryLookbackDays    = 90
	positionLookbackDays = 60
	proxyLookbackDays    = 120
	regimeMinBars        = 50

	dailyRollupSchedule = "30 21 * * *"
)

// Engine drives the decision cycle: screening candidates, gating on market
// hours and overall favorability, opening positions within allocation caps
// and managing open positions until exit.
type Engine struct {
	cfg       *config.Config
	markets   []config.MarketConfig
	data      alpaca.DataClient
	broker    alpaca.TradingClient
	analyzer  *indicators.Analyzer
	screener  *screener.Screener
	positions *position.Manager
	repo      *database.Repository
	notifier  *notification.Manager
	breaker   *circuit.Breaker
	logger    zerolog.Logger

	cron *cron.Cron

	mu         sync.RWMutex
	candidates []screener.Candidate
	lastScreen time.Time
	running    bool
}

// New wires the engine. repo may be nil when the database is disabled.
func New(cfg *config.Config, markets []config.MarketConfig, data alpaca.DataClient,
	broker alpaca.TradingClient, analyzer *indicators.Analyzer, scr *screener.Screener,
	positions *position.Manager, repo *database.Repository, notifier *notification.Manager,
	logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		markets:   markets,
		data:      data,
		broker:    broker,
		analyzer:  analyzer,
		screener:  scr,
		positions: positions,
		repo:      repo,
		notifier:  notifier,
		breaker:   circuit.NewBreaker(cfg.CircuitConfig, logger),
		logger:    logger.With().Str("component", "Engine").Logger(),
		cron:      cron.New(),
	}
}

// Run restores persisted position state, schedules background jobs and loops
// decision cycles until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.positions.Restore(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to restore position state")
	}

	e.refreshCandidates(ctx)

	schedule := e.cfg.ScreenerConfig.ScreeningSchedule
	if _, err := e.cron.AddFunc(schedule, func() { e.refreshCandidates(context.Background()) }); err != nil {
		return fmt.Errorf("invalid screening schedule %q: %w", schedule, err)
	}
	if e.repo != nil {
		if _, err := e.cron.AddFunc(dailyRollupSchedule, func() { e.rollupDaily(context.Background()) }); err != nil {
			return fmt.Errorf("invalid rollup schedule: %w", err)
		}
	}
	e.cron.Start()
	defer e.cron.Stop()

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	interval := time.Duration(e.cfg.TradingConfig.CheckIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().
		Dur("interval", interval).
		Int("max_positions", e.cfg.TradingConfig.MaxTotalPositions).
		Bool("dry_run", e.cfg.TradingConfig.DryRun).
		Msg("Engine started")

	e.runCycle(ctx)
	for {
		select {
		case <-ticker.C:
			e.runCycle(ctx)
		case <-ctx.Done():
			e.logger.Info().Msg("Engine stopped")
			return ctx.Err()
		}
	}
}

// runCycle performs one decision pass: exits first, then entries. Every
// per-symbol failure is isolated; the cycle is abortable between symbols.
func (e *Engine) runCycle(ctx context.Context) {
	now := time.Now()
	if !AnyMarketOpen(e.markets, now) {
		e.logger.Debug().Msg("All markets closed, skipping cycle")
		return
	}

	e.manageOpenPositions(ctx, now)
	if ctx.Err() != nil {
		return
	}
	e.openNewPositions(ctx, now)
}

func (e *Engine) manageOpenPositions(ctx context.Context, now time.Time) {
	for _, t := range e.positions.All() {
		if ctx.Err() != nil {
			return
		}

		price, rsi, err := e.latestPriceRSI(ctx, t.Symbol)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("No data for open position, skipping")
			continue
		}

		// Exits are evaluated against the stop as it stood before this
		// tick; the ratchet only runs when no exit fires.
		if shouldExit, reason := t.EvaluateExit(price, rsi, now); shouldExit {
			e.executeExit(ctx, t, price, reason)
			continue
		}

		if _, err := e.positions.Advance(ctx, t.Symbol, price); err != nil {
			e.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("Failed to advance tracker")
		}
	}
}

func (e *Engine) openNewPositions(ctx context.Context, now time.Time) {
	total := e.positions.Count()
	if total >= e.cfg.TradingConfig.MaxTotalPositions {
		return
	}

	if ok, reason := e.breaker.CanTrade(now); !ok {
		e.logger.Warn().Str("reason", reason).Msg("Circuit breaker blocking entries")
		return
	}

	favorable, regimeBars := e.marketFavorable(ctx)
	if !favorable {
		e.logger.Info().Msg("Market proxy unfavorable, no new entries this cycle")
		return
	}
	regime := indicators.DetectRegime(regimeBars)

	counts := e.positions.CountByMarket()

	e.mu.RLock()
	candidates := make([]screener.Candidate, len(e.candidates))
	copy(candidates, e.candidates)
	e.mu.RUnlock()

	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		if total >= e.cfg.TradingConfig.MaxTotalPositions {
			return
		}
		if _, held := e.positions.Get(c.Symbol); held {
			continue
		}

		market := config.MarketByName(e.markets, c.Market)
		if market == nil {
			market = config.ResolveMarket(e.markets, c.Symbol)
		}
		if market == nil {
			continue
		}
		if !IsMarketOpen(*market, now) {
			continue
		}
		if counts[market.Name] >= market.MaxPositions {
			continue
		}

		if e.tryEntry(ctx, c, market, regime) {
			counts[market.Name]++
			total++
		}
	}
}

// tryEntry evaluates one candidate and opens a position when the signal and
// sizing allow it. Returns true only when a tracker was created.
func (e *Engine) tryEntry(ctx context.Context, c screener.Candidate, market *config.MarketConfig, regime indicators.Regime) bool {
	end := time.Now().UTC()
	bars, err := e.data.GetBars(ctx, c.Symbol, end.AddDate(0, 0, -entryLookbackDays), end, alpaca.TimeframeDay)
	if err != nil || len(bars) < e.analyzer.Period {
		e.logger.Debug().Err(err).Str("symbol", c.Symbol).Msg("Insufficient data for entry evaluation")
		return false
	}

	closes := alpaca.Closes(bars)
	price := closes[len(closes)-1]

	upper, _, lower, err := e.analyzer.BollingerBands(closes)
	if err != nil {
		e.logger.Debug().Err(err).Str("symbol", c.Symbol).Msg("Bollinger calculation failed")
		return false
	}

	rsi := e.analyzer.RSI(closes, 14)
	volRatio := volumeRatio(bars, e.analyzer.Period)

	signal := indicators.GenerateSignal(price, upper[len(upper)-1], lower[len(lower)-1], &rsi, &volRatio)
	if !signal.IsBuy() {
		return false
	}

	e.logger.Info().
		Str("symbol", c.Symbol).
		Str("signal", string(signal)).
		Float64("price", price).
		Float64("rsi", rsi).
		Msg("Buy signal generated")
	e.notifier.SendSignal(c.Symbol, string(signal), price, rsi)

	atr := computeATR(bars, 14)
	if atr <= 0 {
		e.logger.Warn().Str("symbol", c.Symbol).Msg("ATR unusable, skipping entry")
		return false
	}

	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", c.Symbol).Msg("Account query failed, skipping entry")
		return false
	}

	volatility := indicators.HistoricalVolatility(bars)
	shares := position.CalculateSize(account.Equity, price, volatility, regime, e.cfg.RiskConfig)
	if riskCap := indicators.PositionSizeFromRisk(account.Equity, price, atr, e.cfg.RiskConfig.RiskPerTrade); riskCap > 0 && riskCap < shares {
		shares = riskCap
	}
	if shares <= 0 {
		e.logger.Debug().Str("symbol", c.Symbol).Msg("Position size rounded to zero, skipping")
		return false
	}

	if e.cfg.TradingConfig.DryRun {
		e.logger.Info().
			Str("symbol", c.Symbol).
			Float64("shares", shares).
			Float64("price", price).
			Msg("Dry run: would open position")
		return false
	}

	order, err := e.broker.SubmitOrder(ctx, alpaca.OrderRequest{
		Symbol:        c.Symbol,
		Qty:           strconv.FormatFloat(shares, 'f', -1, 64),
		Side:          alpaca.SideBuy,
		Type:          alpaca.OrderTypeMarket,
		TimeInForce:   alpaca.TIFDay,
		ClientOrderID: "bot-" + uuid.NewString(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", c.Symbol).Msg("Entry order failed")
		e.notifier.SendError("Entry Order Failed", fmt.Sprintf("%s: %v", c.Symbol, err))
		return false
	}

	entryPrice := order.FilledAvgPrice
	if entryPrice <= 0 {
		entryPrice = price
	}
	quantity := order.FilledQty
	if quantity <= 0 {
		quantity = shares
	}

	var tradeID int64
	if e.repo != nil {
		tradeID, err = e.repo.RecordTradeEntry(ctx, database.TradeEntry{
			Symbol:       c.Symbol,
			Market:       market.Name,
			Side:         alpaca.SideBuy,
			Quantity:     quantity,
			Price:        entryPrice,
			StopLoss:     entryPrice - 2*atr,
			StrategyName: e.cfg.StrategyConfig.Name,
			Regime:       string(regime),
			RSI:          rsi,
			ATR:          atr,
		})
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", c.Symbol).Msg("Failed to record trade entry")
		}
	}

	tracker := position.NewTracker(c.Symbol, market.Name, entryPrice, quantity, atr, tradeID)
	e.positions.Open(ctx, tracker)
	e.notifier.SendTradeOpen(c.Symbol, market.Name, entryPrice, quantity, tracker.InitialStop)
	return true
}

// executeExit sells the full tracked quantity. A failed sell keeps the
// tracker so the exit retries next cycle.
func (e *Engine) executeExit(ctx context.Context, t position.Tracker, price float64, reason string) {
	e.logger.Info().
		Str("symbol", t.Symbol).
		Str("reason", reason).
		Float64("price", price).
		Msg("Exit triggered")

	if !e.cfg.TradingConfig.DryRun {
		order, err := e.broker.SubmitOrder(ctx, alpaca.OrderRequest{
			Symbol:        t.Symbol,
			Qty:           strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			Side:          alpaca.SideSell,
			Type:          alpaca.OrderTypeMarket,
			TimeInForce:   alpaca.TIFDay,
			ClientOrderID: "bot-" + uuid.NewString(),
		})
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", t.Symbol).Msg("Exit order failed, will retry next cycle")
			e.notifier.SendError("Exit Order Failed", fmt.Sprintf("%s: %v", t.Symbol, err))
			return
		}
		if order.FilledAvgPrice > 0 {
			price = order.FilledAvgPrice
		}
	}

	if _, err := e.positions.Close(ctx, t.Symbol); err != nil {
		e.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("Tracker already removed")
	}

	pnl := (price - t.EntryPrice) * t.Quantity
	pnlPercent := (price - t.EntryPrice) / t.EntryPrice * 100
	e.breaker.RecordTrade(pnlPercent, time.Now())

	if e.repo != nil && t.TradeID > 0 {
		if err := e.repo.RecordTradeExit(ctx, t.TradeID, price, reason); err != nil {
			e.logger.Error().Err(err).Int64("trade_id", t.TradeID).Msg("Failed to record trade exit")
		}
	}
	e.notifier.SendTradeClose(t.Symbol, t.EntryPrice, price, pnl, pnlPercent, reason)
}

// marketFavorable gates all new entries on the index proxy: price above its
// 20 and 50 day SMAs with calm volatility. When the proxy cannot be
// evaluated the gate assumes unfavorable and blocks new entries.
func (e *Engine) marketFavorable(ctx context.Context) (bool, []alpaca.Bar) {
	proxy := e.cfg.TradingConfig.MarketProxySymbol
	end := time.Now().UTC()
	bars, err := e.data.GetBars(ctx, proxy, end.AddDate(0, 0, -proxyLookbackDays), end, alpaca.TimeframeDay)
	if err != nil || len(bars) < regimeMinBars {
		e.logger.Warn().Err(err).Str("proxy", proxy).Msg("Proxy data unavailable, assuming unfavorable")
		return false, bars
	}

	closes := alpaca.Closes(bars)
	price := closes[len(closes)-1]
	sma20 := indicators.SMA(closes, 20)
	sma50 := indicators.SMA(closes, 50)
	atr := computeATR(bars, 14)

	favorable := price > sma20 && price > sma50 && atr/price < e.cfg.TradingConfig.MaxProxyVolatility
	e.logger.Debug().
		Bool("favorable", favorable).
		Float64("price", price).
		Float64("sma20", sma20).
		Float64("sma50", sma50).
		Float64("atr_ratio", atr/price).
		Msg("Market favorability")
	return favorable, bars
}

func (e *Engine) latestPriceRSI(ctx context.Context, symbol string) (price, rsi float64, err error) {
	end := time.Now().UTC()
	bars, err := e.data.GetBars(ctx, symbol, end.AddDate(0, 0, -positionLookbackDays), end, alpaca.TimeframeDay)
	if err != nil {
		return 0, 0, err
	}
	if len(bars) == 0 {
		return 0, 0, fmt.Errorf("no bars for %s", symbol)
	}
	closes := alpaca.Closes(bars)
	return closes[len(closes)-1], e.analyzer.RSI(closes, 14), nil
}

func (e *Engine) refreshCandidates(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	names := make([]string, len(e.markets))
	for i, m := range e.markets {
		names[i] = m.Name
	}

	candidates, err := e.screener.GetTradingCandidates(ctx, e.cfg.ScreenerConfig.MaxCandidates, names)
	if err != nil {
		e.logger.Error().Err(err).Msg("Candidate screening failed")
		return
	}

	e.mu.Lock()
	e.candidates = candidates
	e.lastScreen = time.Now()
	e.mu.Unlock()

	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.Symbol
	}
	e.logger.Info().Strs("candidates", symbols).Msg("Candidate list refreshed")
}

func (e *Engine) rollupDaily(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	equity := 0.0
	if account, err := e.broker.GetAccount(ctx); err == nil {
		equity = account.Equity
	}
	if err := e.repo.UpsertDailyPerformance(ctx, time.Now().UTC(), equity); err != nil {
		e.logger.Error().Err(err).Msg("Daily performance rollup failed")
	}
}

// Status is a point-in-time snapshot for the HTTP API.
type Status struct {
	Running       bool                 `json:"running"`
	DryRun        bool                 `json:"dry_run"`
	OpenMarkets   []string             `json:"open_markets"`
	LastScreen    time.Time            `json:"last_screen"`
	Candidates    []screener.Candidate `json:"candidates"`
	OpenPositions []position.Tracker   `json:"open_positions"`
	Breaker       circuit.Stats        `json:"breaker"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	candidates := make([]screener.Candidate, len(e.candidates))
	copy(candidates, e.candidates)
	lastScreen := e.lastScreen
	running := e.running
	e.mu.RUnlock()

	return Status{
		Running:       running,
		DryRun:        e.cfg.TradingConfig.DryRun,
		OpenMarkets:   OpenMarkets(e.markets, time.Now()),
		LastScreen:    lastScreen,
		Candidates:    candidates,
		OpenPositions: e.positions.All(),
		Breaker:       e.breaker.Stats(),
	}
}

// Positions returns copies of the open trackers.
func (e *Engine) Positions() []position.Tracker {
	return e.positions.All()
}

func computeATR(bars []alpaca.Bar, period int) float64 {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	return indicators.ATR(highs, lows, closes, period)
}

// volumeRatio compares the latest bar's volume to the average over the
// indicator window.
func volumeRatio(bars []alpaca.Bar, period int) float64 {
	if len(bars) < 2 {
		return 1
	}
	window := bars
	if len(window) > period {
		window = window[len(window)-period:]
	}
	sum := 0.0
	for _, b := range window {
		sum += b.Volume
	}
	avg := sum / float64(len(window))
	if avg <= 0 {
		return 1
	}
	return bars[len(bars)-1].Volume / avg
}
