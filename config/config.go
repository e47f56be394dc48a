package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	AlpacaConfig       AlpacaConfig       `json:"alpaca"`
	ScreenerConfig     ScreenerConfig     `json:"screener"`
	TradingConfig      TradingConfig      `json:"trading"`
	RiskConfig         RiskConfig         `json:"risk"`
	CircuitConfig      CircuitConfig      `json:"circuit"`
	BollingerConfig    BollingerConfig    `json:"bollinger"`
	StrategyConfig     StrategyConfig     `json:"strategy"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	ServerConfig       ServerConfig       `json:"server"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	MarketsFile        string             `json:"markets_file"`
}

// AlpacaConfig holds broker and market data API configuration
type AlpacaConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	DataURL   string `json:"data_url"`
	Paper     bool   `json:"paper"`
	MockMode  bool   `json:"mock_mode"` // Use simulated data when the API is unavailable
}

type ScreenerConfig struct {
	LookbackDays      int     `json:"lookback_days"`       // Bars of history per symbol
	MinVolatility     float64 `json:"min_volatility"`      // Annualized, e.g. 0.25
	MaxVolatility     float64 `json:"max_volatility"`      // Annualized, e.g. 0.80
	MinATRRatio       float64 `json:"min_atr_ratio"`       // ATR / avg price floor
	ScreeningSchedule string  `json:"screening_schedule"`  // Cron spec for candidate refresh
	MaxCandidates     int     `json:"max_candidates"`      // Global candidate ceiling
}

type TradingConfig struct {
	CheckIntervalSecs int     `json:"check_interval_secs"` // Seconds between decision cycles
	MaxTotalPositions int     `json:"max_total_positions"` // Global cap across all markets
	DryRun            bool    `json:"dry_run"`             // Log intents without real orders
	MarketProxySymbol string  `json:"market_proxy_symbol"` // Index proxy for favorability check
	MaxProxyVolatility float64 `json:"max_proxy_volatility"` // ATR/price ceiling on the proxy
}

type RiskConfig struct {
	PositionSize    float64 `json:"position_size"`     // Fraction of equity per position
	MaxPositionPct  float64 `json:"max_position_pct"`  // Cap as fraction of equity
	RiskPerTrade    float64 `json:"risk_per_trade"`    // Fraction of equity risked per trade
	InitialStopPct  float64 `json:"initial_stop_pct"`  // Fallback stop when ATR is unusable
	TrailingStopPct float64 `json:"trailing_stop_pct"` // Fallback trailing distance
}

// CircuitConfig holds the loss circuit breaker limits. Percentages are of
// account equity per calendar day.
type CircuitConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// BollingerConfig bounds the band parameters the engine may use
type BollingerConfig struct {
	Period    int     `json:"period"`
	NumStd    float64 `json:"num_std"`
	MinPeriod int     `json:"min_period"`
	MaxPeriod int     `json:"max_period"`
	MinStd    float64 `json:"min_std"`
	MaxStd    float64 `json:"max_std"`
}

type StrategyConfig struct {
	Name                 string  `json:"name"`
	VolumeRatioThreshold float64 `json:"volume_ratio_threshold"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// ServerConfig holds the health/status HTTP server configuration
type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Port           int    `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	Enabled  bool   `json:"enabled"`
}

// RedisConfig holds Redis configuration for position state snapshots
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func Load() (*Config, error) {
	// Base config from file if present, env overrides take precedence
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Alpaca config
	cfg.AlpacaConfig.APIKey = getEnvOrDefault("ALPACA_API_KEY", cfg.AlpacaConfig.APIKey)
	cfg.AlpacaConfig.SecretKey = getEnvOrDefault("ALPACA_SECRET_KEY", cfg.AlpacaConfig.SecretKey)
	cfg.AlpacaConfig.BaseURL = getEnvOrDefault("ALPACA_BASE_URL", cfg.AlpacaConfig.BaseURL)
	if cfg.AlpacaConfig.BaseURL == "" {
		cfg.AlpacaConfig.BaseURL = "https://paper-api.alpaca.markets"
	}
	cfg.AlpacaConfig.DataURL = getEnvOrDefault("ALPACA_DATA_URL", cfg.AlpacaConfig.DataURL)
	if cfg.AlpacaConfig.DataURL == "" {
		cfg.AlpacaConfig.DataURL = "https://data.alpaca.markets"
	}
	cfg.AlpacaConfig.Paper = getEnvOrDefault("ALPACA_PAPER", "true") == "true"
	cfg.AlpacaConfig.MockMode = getEnvOrDefault("MOCK_MODE", "false") == "true"

	// Screener config
	cfg.ScreenerConfig.LookbackDays = getEnvIntOrDefault("SCREENER_LOOKBACK_DAYS", 20)
	cfg.ScreenerConfig.MinVolatility = getEnvFloatOrDefault("MIN_VOLATILITY", 0.25)
	cfg.ScreenerConfig.MaxVolatility = getEnvFloatOrDefault("MAX_VOLATILITY", 0.80)
	cfg.ScreenerConfig.MinATRRatio = getEnvFloatOrDefault("MIN_ATR_RATIO", 0.01)
	cfg.ScreenerConfig.ScreeningSchedule = getEnvOrDefault("SCREENING_SCHEDULE", "@every 1h")
	cfg.ScreenerConfig.MaxCandidates = getEnvIntOrDefault("MAX_CANDIDATES", 5)

	// Trading config
	cfg.TradingConfig.CheckIntervalSecs = getEnvIntOrDefault("CHECK_INTERVAL", 300)
	cfg.TradingConfig.MaxTotalPositions = getEnvIntOrDefault("MAX_POSITIONS", 5)
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "false") == "true"
	cfg.TradingConfig.MarketProxySymbol = getEnvOrDefault("MARKET_PROXY_SYMBOL", "SPY")
	cfg.TradingConfig.MaxProxyVolatility = getEnvFloatOrDefault("MAX_PROXY_VOLATILITY", 0.02)

	// Risk config
	cfg.RiskConfig.PositionSize = getEnvFloatOrDefault("POSITION_SIZE", 0.1)
	cfg.RiskConfig.MaxPositionPct = getEnvFloatOrDefault("MAX_POSITION_PCT", 0.20)
	cfg.RiskConfig.RiskPerTrade = getEnvFloatOrDefault("RISK_PER_TRADE", 0.01)
	cfg.RiskConfig.InitialStopPct = getEnvFloatOrDefault("INITIAL_STOP_LOSS_PCT", 0.03)
	cfg.RiskConfig.TrailingStopPct = getEnvFloatOrDefault("TRAILING_STOP_PCT", 0.02)

	// Circuit breaker config
	cfg.CircuitConfig.Enabled = getEnvOrDefault("CIRCUIT_ENABLED", "true") == "true"
	cfg.CircuitConfig.MaxDailyLossPct = getEnvFloatOrDefault("CIRCUIT_MAX_DAILY_LOSS_PCT", 5.0)
	cfg.CircuitConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", 4)
	cfg.CircuitConfig.CooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", 60)
	cfg.CircuitConfig.MaxDailyTrades = getEnvIntOrDefault("CIRCUIT_MAX_DAILY_TRADES", 20)

	// Bollinger config
	cfg.BollingerConfig.Period = getEnvIntOrDefault("BOLLINGER_PERIOD", 20)
	cfg.BollingerConfig.NumStd = getEnvFloatOrDefault("BOLLINGER_STD", 2.0)
	cfg.BollingerConfig.MinPeriod = getEnvIntOrDefault("MIN_PERIOD", 10)
	cfg.BollingerConfig.MaxPeriod = getEnvIntOrDefault("MAX_PERIOD", 50)
	cfg.BollingerConfig.MinStd = getEnvFloatOrDefault("MIN_STD", 1.5)
	cfg.BollingerConfig.MaxStd = getEnvFloatOrDefault("MAX_STD", 3.0)

	// Strategy config
	cfg.StrategyConfig.Name = getEnvOrDefault("STRATEGY_NAME", "ENHANCED_BOLLINGER")
	cfg.StrategyConfig.VolumeRatioThreshold = getEnvFloatOrDefault("VOLUME_RATIO_THRESHOLD", 1.5)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "true") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "trading_bot")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "trading_bot")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "require")

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)

	cfg.MarketsFile = getEnvOrDefault("MARKETS_FILE", cfg.MarketsFile)
}

// Validate rejects configurations the engine cannot safely run with.
func (c *Config) Validate() error {
	if c.RiskConfig.PositionSize <= 0 || c.RiskConfig.PositionSize > 1 {
		return fmt.Errorf("position_size must be in (0, 1], got %v", c.RiskConfig.PositionSize)
	}
	if c.RiskConfig.MaxPositionPct < c.RiskConfig.PositionSize {
		return fmt.Errorf("max_position_pct %v is below position_size %v",
			c.RiskConfig.MaxPositionPct, c.RiskConfig.PositionSize)
	}
	if c.BollingerConfig.Period < c.BollingerConfig.MinPeriod || c.BollingerConfig.Period > c.BollingerConfig.MaxPeriod {
		return fmt.Errorf("bollinger period %d outside [%d, %d]",
			c.BollingerConfig.Period, c.BollingerConfig.MinPeriod, c.BollingerConfig.MaxPeriod)
	}
	if c.BollingerConfig.NumStd < c.BollingerConfig.MinStd || c.BollingerConfig.NumStd > c.BollingerConfig.MaxStd {
		return fmt.Errorf("bollinger num_std %v outside [%v, %v]",
			c.BollingerConfig.NumStd, c.BollingerConfig.MinStd, c.BollingerConfig.MaxStd)
	}
	if c.TradingConfig.MaxTotalPositions <= 0 {
		return fmt.Errorf("max_total_positions must be positive, got %d", c.TradingConfig.MaxTotalPositions)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
