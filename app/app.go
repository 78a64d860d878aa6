// Package app wires configuration, stores, upstream clients and services into
// a running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vuoksi-trader/alpaca"
	"vuoksi-trader/api"
	"vuoksi-trader/auth"
	"vuoksi-trader/cache"
	"vuoksi-trader/config"
	"vuoksi-trader/database"
	fundrepo "vuoksi-trader/database/fundamentals"
	"vuoksi-trader/database/trades"
	"vuoksi-trader/fundamentals"
	"vuoksi-trader/handlers"
	"vuoksi-trader/logging"
	"vuoksi-trader/marketdata"
	"vuoksi-trader/ml"
	"vuoksi-trader/notifications"
	"vuoksi-trader/polygon"
	"vuoksi-trader/realtime"
	"vuoksi-trader/trading"
)

// fillRecheckGrace is how long a fill may precede its trade record
const fillRecheckGrace = 30 * time.Second

// App represents the main application
type App struct {
	config *config.Config
	root   *logging.Logger
	log    *logging.Logger

	db             *database.Database
	redis          *cache.RedisClient
	alpaca         *alpaca.Client
	polygon        *polygon.Client
	ml             *ml.Client
	tradeRepo      *trades.Repository
	engine         *trading.Engine
	backtests      *trading.BacktestEngine
	fundamentals   *fundamentals.Service
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	tokens         *auth.TokenService
	handlerManager *handlers.HandlerManager
	orderUpdates   *handlers.OrderUpdateHandler
	refresher      *FundamentalsRefresher
}

// New creates a new application instance. Nothing connects until Init.
func New(cfg *config.Config, logger *logging.Logger) *App {
	return &App{
		config:         cfg,
		root:           logger,
		log:            logger.Component("app"),
		handlerManager: handlers.NewHandlerManager(logger),
	}
}

// Init connects the stores and builds every service. It is safe to use the
// accessors once it returns nil.
func (a *App) Init() error {
	cfg := a.config
	logger := a.root

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 1. Database Connection
	db, err := database.Connect(database.Config{
		Host:     cfg.DatabaseHost,
		Port:     cfg.DatabasePort,
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		DBName:   cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
		MaxOpen:  cfg.DatabaseMaxOpen,
		MaxIdle:  cfg.DatabaseMaxIdle,
	}, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	if err := a.db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis Connection
	a.redis = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, logger)
	if a.redis == nil {
		a.log.Warn().Msg("redis unavailable, using in-process cache and locks")
	}
	store := cache.NewStore(a.redis)

	// 3. Upstream clients
	a.alpaca = alpaca.NewClient(cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey,
		alpaca.WithBaseURL(cfg.Alpaca.BaseURL),
		alpaca.WithDataURL(cfg.Alpaca.DataURL),
		alpaca.WithLogger(logger),
		alpaca.WithRateLimit(cfg.Alpaca.RatePerSec),
		alpaca.WithTimeout(cfg.Alpaca.Timeout),
	)
	a.polygon = polygon.NewClient(cfg.Polygon.APIKey,
		polygon.WithBaseURL(cfg.Polygon.BaseURL),
		polygon.WithLogger(logger),
		polygon.WithRateLimit(cfg.Polygon.RatePerSec),
		polygon.WithTimeout(cfg.Polygon.Timeout),
	)
	if !a.polygon.Configured() {
		a.log.Warn().Msg("POLYGON_API_KEY not set, fundamentals fetches will fail")
	}
	a.ml = ml.NewClient(cfg.ML.Endpoint, cfg.ML.Timeout)
	prices := marketdata.NewChain(logger,
		marketdata.NamedSource{Name: "alpaca", Source: a.alpaca},
		marketdata.NamedSource{Name: "yahoo", Source: marketdata.NewYahooQuotes()},
	)

	// 4. Notifications and realtime fan-out
	a.webhookManager = notifications.NewWebhookManager(cfg.Notifications, logger)
	a.broker = realtime.NewBroker(logger)

	// 5. Trading
	a.tradeRepo = trades.NewRepository(a.db.DB())
	a.engine = trading.NewEngine(trading.EngineDeps{
		Cache:     cache.NewPredictionCache(store, logger),
		Predictor: a.ml,
		Prices:    prices,
		Broker:    a.alpaca,
		Sizer:     trading.NewPositionSizer(cfg.Trading.SharePrecision),
		Trades:    a.tradeRepo,
		Locker:    cache.NewLocker(a.redis, logger),
		Events:    a.broker,
		Notifier:  a.webhookManager,
		Logger:    logger,
	}, trading.EngineConfig{
		MaxRiskPerTrade: cfg.Trading.MaxPositionSize,
		PredictionTTL:   cfg.Trading.PredictionCacheTTL,
		LockTTL:         cfg.Trading.LockTTL,
		OrderTimeout:    cfg.Alpaca.Timeout,
		PersistTimeout:  cfg.Trading.PersistTimeout,
	})
	a.backtests = trading.NewBacktestEngine(a.ml, logger)

	// 6. Fundamentals
	a.fundamentals = fundamentals.NewService(
		fundrepo.NewRepository(a.db.DB()),
		a.polygon,
		store,
		prices,
		fundamentals.Config{
			RatioStaleness:  cfg.Fundamentals.RatioStaleness,
			ProfileCacheTTL: cfg.Fundamentals.ProfileCacheTTL,
			ReportCacheTTL:  cfg.Fundamentals.ReportCacheTTL,
		},
		logger,
	)

	// 7. Auth and stream handlers
	a.tokens = auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	a.orderUpdates = handlers.NewOrderUpdateHandler(a.tradeRepo, a.broker, a.webhookManager, fillRecheckGrace, logger)
	a.handlerManager.RegisterHandler("order_updates", a.orderUpdates)

	return nil
}

// Engine returns the trade decision engine
func (a *App) Engine() *trading.Engine { return a.engine }

// Backtests returns the backtest engine
func (a *App) Backtests() *trading.BacktestEngine { return a.backtests }

// Fundamentals returns the fundamentals service
func (a *App) Fundamentals() *fundamentals.Service { return a.fundamentals }

// Trades returns the trade record repository
func (a *App) Trades() *trades.Repository { return a.tradeRepo }

// Start initializes the application and serves until ctx is cancelled or an
// interrupt arrives
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Init(); err != nil {
		a.Close()
		return err
	}

	var wg sync.WaitGroup

	// Realtime broker
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.broker.Run(ctx)
	}()

	// Broker order updates
	if a.config.Alpaca.StreamOn {
		stream := alpaca.NewStream(a.config.Alpaca.StreamURL, a.config.Alpaca.APIKey, a.config.Alpaca.SecretKey, a.root)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stream.Run(ctx, a.handlerManager.HandleUpdate(ctx)); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("trade updates stream stopped")
			}
		}()
	} else {
		a.log.Info().Msg("trade updates stream disabled")
	}

	// Fundamentals watchlist refresh
	if len(a.config.Fundamentals.Watchlist) > 0 && a.config.Fundamentals.RefreshInterval > 0 {
		a.refresher = NewFundamentalsRefresher(a.fundamentals, a.config.Fundamentals.Watchlist, a.config.Fundamentals.RefreshInterval, a.root)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.refresher.Start(ctx)
		}()
	}

	// API Server
	health := map[string]api.HealthChecker{"database": a.db}
	if a.redis != nil {
		health["redis"] = a.redis
	}
	apiServer := api.NewServer(api.Deps{
		Trading:      a.engine,
		Backtests:    a.backtests,
		History:      a.tradeRepo,
		Brokerage:    a.alpaca,
		Trainer:      a.ml,
		Fundamentals: a.fundamentals,
		Auth:         a.tokens,
		Events:       a.broker,
		Health:       health,
		Defaults: api.TradeDefaults{
			ConfidenceThreshold: a.config.Trading.ConfidenceThreshold,
			RiskPerTrade:        a.config.Trading.RiskPerTrade,
		},
		Logger: a.root,
	})
	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr <- apiServer.Start(ctx, a.config.Server.Port)
	}()

	err := a.gracefulShutdown(ctx, cancel, serverErr)
	wg.Wait()
	a.Close()
	return err
}

// gracefulShutdown waits for an interrupt, cancellation or server failure,
// then stops everything started by Start
func (a *App) gracefulShutdown(ctx context.Context, cancel context.CancelFunc, serverErr <-chan error) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var err error
	select {
	case <-interrupt:
		a.log.Info().Msg("shutdown signal received, initiating graceful shutdown")
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			err = fmt.Errorf("API server failed: %w", err)
		}
	}
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.orderUpdates.Wait()
		a.webhookManager.Wait()
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.log.Warn().Msg("shutdown timed out waiting for pending notifications")
	}
	return err
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error().Err(err).Msg("error closing database")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error().Err(err).Msg("error closing redis")
		}
	}
}
