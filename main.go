package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/alpaca"
	"equity-trading-bot/internal/api"
	"equity-trading-bot/internal/database"
	"equity-trading-bot/internal/engine"
	"equity-trading-bot/internal/indicators"
	"equity-trading-bot/internal/notification"
	"equity-trading-bot/internal/position"
	"equity-trading-bot/internal/screener"
)

func main() {
	// .env is optional, real deployments use environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		startupLogger := zerolog.New(os.Stderr)
		startupLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Str("strategy", cfg.StrategyConfig.Name).Msg("Starting trading bot")

	markets, err := config.LoadMarkets(cfg.MarketsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load market configuration")
	}
	for _, m := range markets {
		logger.Info().
			Str("market", m.Name).
			Int("priority", m.Priority).
			Int("max_positions", m.MaxPositions).
			Msg("Market configured")
	}

	// Broker and data clients. Mock mode runs the full engine against
	// simulated data without touching the API.
	var (
		data   alpaca.DataClient
		broker alpaca.TradingClient
	)
	if cfg.AlpacaConfig.MockMode {
		mock := alpaca.NewMockClient()
		data, broker = mock, mock
		logger.Warn().Msg("Mock mode enabled, using simulated market data")
	} else {
		client := alpaca.NewClient(alpaca.Config{
			APIKey:    cfg.AlpacaConfig.APIKey,
			SecretKey: cfg.AlpacaConfig.SecretKey,
			BaseURL:   cfg.AlpacaConfig.BaseURL,
			DataURL:   cfg.AlpacaConfig.DataURL,
		})
		data, broker = client, client
	}

	// Database is optional; without it trades are not persisted.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("Database migrations failed")
		}
		cancel()
		repo = database.NewRepository(db)
	} else {
		logger.Warn().Msg("Database disabled, trades will not be persisted")
	}

	// Redis snapshots let open positions survive restarts. Without Redis
	// the store still works from its in-memory cache.
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer redisClient.Close()
	}
	store := database.NewRedisTrackerStore(redisClient, logger)
	positions := position.NewManager(store, logger)

	notifier := notification.NewManager(cfg.NotificationConfig, logger)
	analyzer := indicators.NewAnalyzer(cfg.BollingerConfig.Period, cfg.BollingerConfig.NumStd, logger)

	var universe screener.UniverseSource
	if cfg.AlpacaConfig.MockMode {
		universe = &screener.StaticUniverse{}
	} else {
		universe = screener.NewYahooUniverse(logger)
	}
	scr := screener.New(data, universe, analyzer, cfg.ScreenerConfig, markets, logger)

	eng := engine.New(cfg, markets, data, broker, analyzer, scr, positions, repo, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ServerConfig.Enabled {
		server := api.NewServer(cfg.ServerConfig, eng, repo, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("Engine exited with error")
	}
	logger.Info().Msg("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSONFormat {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}
