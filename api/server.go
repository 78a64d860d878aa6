// Package api exposes the trading and fundamentals services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"vuoksi-trader/alpaca"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/database/trades"
	"vuoksi-trader/fundamentals"
	"vuoksi-trader/logging"
	"vuoksi-trader/ml"
	"vuoksi-trader/trading"
)

// TradeService runs trade decisions and serves predictions
type TradeService interface {
	Execute(ctx context.Context, req trading.TradeRequest) (*trading.ExecutionResult, error)
	Prediction(ctx context.Context, symbol, modelType string) (*ml.Prediction, error)
}

// Backtester scores a model's directional accuracy
type Backtester interface {
	Run(ctx context.Context, symbol, modelType string, lookback, testPoints int) (*trading.BacktestResult, error)
}

// TradeHistory lists stored trade records
type TradeHistory interface {
	ListTrades(ctx context.Context, f trades.ListFilter) ([]models.TradeRecord, error)
}

// Brokerage is the read side of the brokerage account
type Brokerage interface {
	GetAccount(ctx context.Context) (*alpaca.Account, error)
	ListPositions(ctx context.Context) ([]alpaca.Position, error)
	ListFillActivities(ctx context.Context, after time.Time, pageSize int) ([]alpaca.Activity, error)
}

// ModelTrainer asks the inference service to train a model
type ModelTrainer interface {
	Train(ctx context.Context, symbol, modelType string, epochs int) (*ml.TrainResult, error)
}

// FundamentalsService fetches, stores and derives fundamentals data
type FundamentalsService interface {
	GetProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	FetchAndUpsertCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	UpsertReport(ctx context.Context, in fundamentals.ReportInput) (*models.FinancialReport, error)
	FetchAndUpsertFinancialReports(ctx context.Context, symbol, timeframe string, limit int) ([]models.FinancialReport, error)
	ListReports(ctx context.Context, symbol, reportType, timeframe string, limit int) ([]models.FinancialReport, error)
	GetOrCalculateAndStoreKeyRatios(ctx context.Context, symbol string, asOf *time.Time) (*models.KeyRatioSet, error)
	ListKeyRatios(ctx context.Context, symbol string, since *time.Time, limit int) ([]models.KeyRatioSet, error)
}

// Authenticator puts the caller's user id into the request context
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// TradeDefaults fill trade requests that omit their gates
type TradeDefaults struct {
	ConfidenceThreshold float64
	RiskPerTrade        float64
}

// Deps are the collaborators of the server. Events and Health are optional.
type Deps struct {
	Trading      TradeService
	Backtests    Backtester
	History      TradeHistory
	Brokerage    Brokerage
	Trainer      ModelTrainer
	Fundamentals FundamentalsService
	Auth         Authenticator
	Events       http.Handler
	Health       map[string]HealthChecker
	Defaults     TradeDefaults
	Logger       *logging.Logger
}

// Server handles HTTP API requests
type Server struct {
	deps Deps
	log  *logging.Logger
}

// NewServer creates a new API server instance
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, log: deps.Logger.Component("api")}
}

// Handler builds the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protected := func(h http.HandlerFunc) http.Handler {
		return s.deps.Auth.Middleware(h)
	}

	if s.deps.Events != nil {
		mux.Handle("GET /api/events", s.deps.Events) // SSE Endpoint
	}

	// Trading
	mux.Handle("POST /api/v1/trades/execute", protected(s.handleExecuteTrade))
	mux.Handle("GET /api/v1/trades", protected(s.handleListTrades))
	mux.Handle("GET /api/v1/backtest", protected(s.handleBacktest))
	mux.Handle("GET /api/v1/predictions/{symbol}", protected(s.handleGetPrediction))
	mux.Handle("GET /api/v1/models", protected(s.handleListModels))
	mux.Handle("POST /api/v1/models/{symbol}/train", protected(s.handleTrainModel))

	// Brokerage account
	mux.Handle("GET /api/v1/account", protected(s.handleGetAccount))
	mux.Handle("GET /api/v1/positions", protected(s.handleGetPositions))
	mux.Handle("GET /api/v1/portfolio", protected(s.handleGetPortfolio))
	mux.Handle("GET /api/v1/activities", protected(s.handleGetActivities))

	// Fundamentals
	mux.Handle("GET /api/v1/fundamentals/{symbol}/profile", protected(s.handleGetProfile))
	mux.Handle("POST /api/v1/fundamentals/{symbol}/profile", protected(s.handleRefreshProfile))
	mux.Handle("GET /api/v1/fundamentals/{symbol}/reports", protected(s.handleListReports))
	mux.Handle("POST /api/v1/fundamentals/{symbol}/reports", protected(s.handleRefreshReports))
	mux.Handle("PUT /api/v1/fundamentals/{symbol}/reports", protected(s.handleUpsertReport))
	mux.Handle("GET /api/v1/fundamentals/{symbol}/ratios", protected(s.handleGetRatios))
	mux.Handle("GET /api/v1/fundamentals/{symbol}/ratios/history", protected(s.handleListRatios))

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("API server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown API server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("API server stopped")
	return nil
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Handlers are distributed across multiple files:
// - handlers_trading.go: trade execution, history, backtests, models
// - handlers_account.go: brokerage account, positions, portfolio, fills
// - handlers_fundamentals.go: profiles, reports, key ratios
// - handlers_config.go: health check
