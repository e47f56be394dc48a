package notification

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"equity-trading-bot/config"
)

// Type classifies a notification message.
type Type string

const (
	NotifySignal     Type = "signal"
	NotifyTradeOpen  Type = "trade_open"
	NotifyTradeClose Type = "trade_close"
	NotifyError      Type = "error"
	NotifyInfo       Type = "info"
)

// Notification is a message delivered to every enabled provider.
type Notification struct {
	Type       Type
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
}

// Notifier delivers notifications to one provider.
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to the configured providers. Delivery is
// fire-and-forget: failures are logged, never returned to the caller, so a
// broken webhook cannot stall a trading cycle.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewManager(cfg config.NotificationConfig, logger zerolog.Logger) *Manager {
	m := &Manager{logger: logger.With().Str("component", "Notifications").Logger()}
	if !cfg.Enabled {
		return m
	}

	if t := NewTelegramNotifier(cfg.Telegram); t.IsEnabled() {
		m.notifiers = append(m.notifiers, t)
	}
	if d := NewDiscordNotifier(cfg.Discord); d.IsEnabled() {
		m.notifiers = append(m.notifiers, d)
	}

	for _, n := range m.notifiers {
		m.logger.Info().Str("provider", n.Name()).Msg("Notification provider enabled")
	}
	return m
}

// AddNotifier registers an extra provider.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send dispatches asynchronously to every enabled provider.
func (m *Manager) Send(n *Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	for _, notifier := range m.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		go func(target Notifier) {
			if err := target.Send(n); err != nil {
				m.logger.Warn().Err(err).
					Str("provider", target.Name()).
					Str("type", string(n.Type)).
					Msg("Notification delivery failed")
			}
		}(notifier)
	}
}

// SendSignal reports a generated signal worth acting on.
func (m *Manager) SendSignal(symbol, signal string, price, rsi float64) {
	emoji := "🟢"
	if signal == "SELL" || signal == "STRONG_SELL" {
		emoji = "🔴"
	}
	m.Send(&Notification{
		Type:    NotifySignal,
		Title:   fmt.Sprintf("%s Signal: %s", emoji, symbol),
		Message: fmt.Sprintf("%s %s @ %.2f\nRSI: %.1f", signal, symbol, price, rsi),
		Symbol:  symbol,
		Price:   price,
	})
}

// SendTradeOpen reports an entry fill.
func (m *Manager) SendTradeOpen(symbol, market string, price, quantity, stopLoss float64) {
	m.Send(&Notification{
		Type:  NotifyTradeOpen,
		Title: fmt.Sprintf("📈 Trade Opened: %s", symbol),
		Message: fmt.Sprintf("BUY %s (%s)\nPrice: %.2f\nShares: %.0f\nStop: %.2f",
			symbol, market, price, quantity, stopLoss),
		Symbol: symbol,
		Price:  price,
	})
}

// SendTradeClose reports an exit fill with realized P/L.
func (m *Manager) SendTradeClose(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}
	m.Send(&Notification{
		Type:  NotifyTradeClose,
		Title: fmt.Sprintf("%s Trade Closed: %s", emoji, symbol),
		Message: fmt.Sprintf("Entry: %.2f → Exit: %.2f\nP&L: %.2f (%.2f%%)\nReason: %s",
			entryPrice, exitPrice, pnl, pnlPercent, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	})
}

// SendError reports a failure that needs operator attention.
func (m *Manager) SendError(title, message string) {
	m.Send(&Notification{
		Type:    NotifyError,
		Title:   fmt.Sprintf("⚠️ %s", title),
		Message: message,
	})
}

func newRestyClient() *resty.Client {
	return resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(1)
}
