package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"equity-trading-bot/config"
)

// State of the loss breaker.
type State string

const (
	StateClosed   State = "closed"    // Normal operation
	StateOpen     State = "open"      // Entries halted
	StateHalfOpen State = "half_open" // Cooldown elapsed, probing with one trade
)

// Breaker halts new entries after a losing streak or a bad day. Open
// positions are still managed; only entries are gated. All methods take the
// current time so the engine's cycle clock drives the windows.
type Breaker struct {
	cfg config.CircuitConfig

	mu                sync.RWMutex
	state             State
	consecutiveLosses int
	dailyLossPct      float64
	dailyTrades       int
	day               time.Time
	trippedAt         time.Time
	tripReason        string

	logger zerolog.Logger
}

func NewBreaker(cfg config.CircuitConfig, logger zerolog.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: logger.With().Str("component", "Breaker").Logger(),
	}
}

// CanTrade reports whether a new entry is allowed. When blocked the second
// return value names the limit that is holding.
func (b *Breaker) CanTrade(now time.Time) (bool, string) {
	if !b.cfg.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDay(now)

	if b.state == StateOpen {
		cooldown := time.Duration(b.cfg.CooldownMinutes) * time.Minute
		if elapsed := now.Sub(b.trippedAt); elapsed < cooldown {
			return false, fmt.Sprintf("cooldown, %s remaining (%s)",
				(cooldown - elapsed).Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
		b.logger.Info().Msg("Cooldown elapsed, allowing a probe trade")
	}

	if b.cfg.MaxDailyLossPct > 0 && b.dailyLossPct >= b.cfg.MaxDailyLossPct {
		return false, fmt.Sprintf("daily loss %.2f%% at limit %.2f%%", b.dailyLossPct, b.cfg.MaxDailyLossPct)
	}
	if b.cfg.MaxDailyTrades > 0 && b.dailyTrades >= b.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade count %d at limit %d", b.dailyTrades, b.cfg.MaxDailyTrades)
	}
	return true, ""
}

// RecordTrade feeds a closed trade's result into the breaker. pnlPercent is
// the trade's return in percent, negative for a loss.
func (b *Breaker) RecordTrade(pnlPercent float64, now time.Time) {
	if !b.cfg.Enabled || math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDay(now)

	b.dailyTrades++
	if pnlPercent < 0 {
		b.consecutiveLosses++
		b.dailyLossPct += -pnlPercent
	} else {
		b.consecutiveLosses = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.tripReason = ""
			b.logger.Info().Msg("Probe trade won, breaker closed")
		}
	}

	if b.state == StateOpen {
		return
	}
	if b.cfg.MaxConsecutiveLosses > 0 && b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		b.trip(fmt.Sprintf("%d consecutive losses", b.consecutiveLosses), now)
	} else if b.cfg.MaxDailyLossPct > 0 && b.dailyLossPct >= b.cfg.MaxDailyLossPct {
		b.trip(fmt.Sprintf("daily loss %.2f%%", b.dailyLossPct), now)
	}
}

func (b *Breaker) trip(reason string, now time.Time) {
	b.state = StateOpen
	b.trippedAt = now
	b.tripReason = reason
	b.logger.Warn().Str("reason", reason).Msg("Circuit breaker tripped, entries halted")
}

// Reset manually closes the breaker and clears the loss streak.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveLosses = 0
	b.tripReason = ""
}

// rollDay clears the daily counters at the first call past UTC midnight.
// Caller holds the lock.
func (b *Breaker) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.Equal(b.day) {
		return
	}
	b.day = day
	b.dailyLossPct = 0
	b.dailyTrades = 0
}

// Stats is a point-in-time snapshot for the HTTP API.
type Stats struct {
	Enabled           bool      `json:"enabled"`
	State             State     `json:"state"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	DailyLossPct      float64   `json:"daily_loss_pct"`
	DailyTrades       int       `json:"daily_trades"`
	TrippedAt         time.Time `json:"tripped_at,omitempty"`
	TripReason        string    `json:"trip_reason,omitempty"`
}

func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Enabled:           b.cfg.Enabled,
		State:             b.state,
		ConsecutiveLosses: b.consecutiveLosses,
		DailyLossPct:      b.dailyLossPct,
		DailyTrades:       b.dailyTrades,
		TrippedAt:         b.trippedAt,
		TripReason:        b.tripReason,
	}
}
