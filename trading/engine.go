package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"vuoksi-trader/apperrors"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/logging"
	"vuoksi-trader/ml"
)

// PredictionCache stores predictions per (symbol, model type)
type PredictionCache interface {
	Get(ctx context.Context, symbol, modelType string) (*ml.Prediction, bool)
	Put(ctx context.Context, symbol, modelType string, p *ml.Prediction, ttl time.Duration) error
}

// Predictor produces live predictions
type Predictor interface {
	Predict(ctx context.Context, symbol, modelType string) (*ml.Prediction, error)
}

// PriceSource returns the current tradable price
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// TradeStore appends trade records
type TradeStore interface {
	CreateTrade(ctx context.Context, trade *models.TradeRecord) error
}

// Locker grants exclusive scopes; a held key reports ok=false
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// EventPublisher fans trade outcomes out to live subscribers
type EventPublisher interface {
	Broadcast(event string, payload interface{})
}

// ReconciliationNotifier is told about orders placed at the broker that have
// no local trade record
type ReconciliationNotifier interface {
	NotifyPartialFailure(ctx context.Context, res ExecutionResult)
}

// EngineConfig holds the engine's limits and timeouts
type EngineConfig struct {
	MaxRiskPerTrade float64
	PredictionTTL   time.Duration
	LockTTL         time.Duration
	OrderTimeout    time.Duration
	PersistTimeout  time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxRiskPerTrade <= 0 {
		c.MaxRiskPerTrade = 0.1
	}
	if c.PredictionTTL <= 0 {
		c.PredictionTTL = time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 15 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	return c
}

// EngineDeps are the collaborators of the engine. Events and Notifier are optional.
type EngineDeps struct {
	Cache     PredictionCache
	Predictor Predictor
	Prices    PriceSource
	Broker    Broker
	Executor  *OrderExecutor
	Sizer     *PositionSizer
	Trades    TradeStore
	Locker    Locker
	Events    EventPublisher
	Notifier  ReconciliationNotifier
	Logger    *logging.Logger
}

// Engine runs the trade decision state machine
type Engine struct {
	deps EngineDeps
	cfg  EngineConfig
	log  *logging.Logger
	now  func() time.Time
}

// NewEngine creates a trade decision engine
func NewEngine(deps EngineDeps, cfg EngineConfig) *Engine {
	if deps.Executor == nil {
		deps.Executor = NewOrderExecutor(deps.Broker, deps.Logger)
	}
	if deps.Sizer == nil {
		deps.Sizer = NewPositionSizer(0)
	}
	return &Engine{
		deps: deps,
		cfg:  cfg.withDefaults(),
		log:  deps.Logger.Component("trade_engine"),
		now:  time.Now,
	}
}

// Validate checks request shape before any state is entered
func (e *Engine) Validate(req TradeRequest) error {
	const op = "trading.Execute"
	switch {
	case req.UserID <= 0:
		return apperrors.Validation(op, "user_id", "required")
	case strings.TrimSpace(req.Symbol) == "":
		return apperrors.Validation(op, "symbol", "required")
	case strings.TrimSpace(req.ModelType) == "":
		return apperrors.Validation(op, "model_type", "required")
	case math.IsNaN(req.ConfidenceThreshold) || req.ConfidenceThreshold < 0 || req.ConfidenceThreshold > 1:
		return apperrors.Validation(op, "confidence_threshold", "must be within [0,1]")
	case math.IsNaN(req.RiskPerTrade) || req.RiskPerTrade <= 0 || req.RiskPerTrade > e.cfg.MaxRiskPerTrade:
		return apperrors.Validation(op, "risk_per_trade", fmt.Sprintf("must be within (0,%v]", e.cfg.MaxRiskPerTrade))
	}
	return nil
}

// LockKey is the exclusion scope of one user's trading in one symbol
func LockKey(userID int64, symbol string) string {
	return fmt.Sprintf("trade:%d:%s", userID, strings.ToUpper(symbol))
}

// Execute runs one trade decision. Skips and failures are reported in the
// result; the error is non-nil only for invalid requests. Once the order is
// submitted the flow ignores ctx cancellation and runs to completion.
func (e *Engine) Execute(ctx context.Context, req TradeRequest) (*ExecutionResult, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := e.Validate(req); err != nil {
		return nil, err
	}

	res := &ExecutionResult{
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		ModelType: req.ModelType,
		State:     StateFetchPrediction,
	}
	log := e.log.With().
		Int64("user_id", req.UserID).
		Str("symbol", req.Symbol).
		Str("model_type", req.ModelType).
		Logger()

	release, ok, err := e.deps.Locker.Acquire(ctx, LockKey(req.UserID, req.Symbol), e.cfg.LockTTL)
	if err != nil {
		return e.finish(ctx, res, StatusFailed, ReasonLockUnavailable, err), nil
	}
	if !ok {
		return e.finish(ctx, res, StatusSkipped, ReasonTradeInFlight, errors.New("another trade for this user and symbol is in progress")), nil
	}
	defer release()

	// FETCH_PREDICTION
	pred, err := e.prediction(ctx, req.Symbol, req.ModelType)
	if err != nil {
		return e.finish(ctx, res, StatusFailed, ReasonPredictionUnavailable, err), nil
	}
	res.PredictedPrice = pred.PredictedPrice
	res.Confidence = pred.Confidence

	// CONFIDENCE_CHECK
	res.State = StateConfidenceCheck
	if pred.Confidence < req.ConfidenceThreshold {
		return e.finish(ctx, res, StatusSkipped, ReasonLowConfidence,
			fmt.Errorf("confidence %.4f below threshold %.4f", pred.Confidence, req.ConfidenceThreshold)), nil
	}

	// FETCH_PRICE
	res.State = StateFetchPrice
	price, err := e.deps.Prices.LatestPrice(ctx, req.Symbol)
	if err == nil && (price <= 0 || !finite(price)) {
		err = fmt.Errorf("invalid price %v", price)
	}
	if err != nil {
		return e.finish(ctx, res, StatusFailed, ReasonPriceUnavailable, err), nil
	}
	res.Price = price
	res.Side = DecideSide(pred.PredictedPrice, price)

	// SIZE_POSITION
	res.State = StateSizePosition
	equity, err := e.equity(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("account equity unavailable")
		equity = math.NaN()
	}
	sizing, err := e.deps.Sizer.Size(equity, price, req.RiskPerTrade)
	if err != nil {
		return e.finish(ctx, res, StatusSkipped, ReasonInvalidQuantity, err), nil
	}
	res.Quantity = sizing.Quantity.InexactFloat64()

	// SUBMIT_ORDER: from here on the caller's cancellation no longer applies
	res.State = StateSubmitOrder
	detached := context.WithoutCancel(ctx)
	submitCtx, cancel := context.WithTimeout(detached, e.cfg.OrderTimeout)
	order, err := e.deps.Executor.Submit(submitCtx, OrderRequest{
		Symbol:      req.Symbol,
		Qty:         sizing.Quantity,
		Side:        res.Side,
		Type:        OrderMarket,
		TimeInForce: TimeInForceDay,
	})
	cancel()
	if err != nil {
		var rejected *OrderRejectedError
		var transport *OrderTransportError
		switch {
		case errors.As(err, &rejected):
			res.ClientOrderID = rejected.ClientOrderID
			return e.finish(detached, res, StatusFailed, ReasonOrderRejected, err), nil
		case errors.As(err, &transport):
			res.ClientOrderID = transport.ClientOrderID
		}
		return e.finish(detached, res, StatusFailed, ReasonOrderError, err), nil
	}
	res.OrderID = order.OrderID
	res.ClientOrderID = order.ClientOrderID
	res.OrderStatus = order.Status

	// PERSIST
	res.State = StatePersist
	rec := &models.TradeRecord{
		UserID:         req.UserID,
		Symbol:         req.Symbol,
		Side:           string(res.Side),
		Quantity:       res.Quantity,
		Price:          price,
		PredictedPrice: pred.PredictedPrice,
		Confidence:     pred.Confidence,
		ModelUsed:      req.ModelType,
		OrderID:        order.OrderID,
		ClientOrderID:  order.ClientOrderID,
		Timestamp:      e.now().UTC(),
	}
	persistCtx, cancel := context.WithTimeout(detached, e.cfg.PersistTimeout)
	err = e.deps.Trades.CreateTrade(persistCtx, rec)
	cancel()
	if err != nil {
		return e.finish(detached, res, StatusPartialFailure, ReasonPersistFailed, err), nil
	}
	res.TradeID = rec.ID
	res.State = StateDone
	return e.finish(detached, res, StatusExecuted, "", nil), nil
}

// Prediction returns the cached prediction for symbol and modelType, or a
// live one that is then cached
func (e *Engine) Prediction(ctx context.Context, symbol, modelType string) (*ml.Prediction, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, apperrors.Validation("trading.Prediction", "symbol", "required")
	}
	if strings.TrimSpace(modelType) == "" {
		return nil, apperrors.Validation("trading.Prediction", "model_type", "required")
	}
	p, err := e.prediction(ctx, symbol, modelType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "trading.Prediction", ReasonPredictionUnavailable, err)
	}
	return p, nil
}

// prediction reads the cache, then asks the model and writes the answer back
func (e *Engine) prediction(ctx context.Context, symbol, modelType string) (*ml.Prediction, error) {
	if e.deps.Cache != nil {
		if p, ok := e.deps.Cache.Get(ctx, symbol, modelType); ok {
			return p, nil
		}
	}
	if e.deps.Predictor == nil {
		return nil, errors.New("no prediction in cache and no live predictor")
	}

	p, err := e.deps.Predictor.Predict(ctx, symbol, modelType)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if e.deps.Cache == nil {
		return p, nil
	}
	if err := e.deps.Cache.Put(ctx, symbol, modelType, p, e.cfg.PredictionTTL); err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Str("model_type", modelType).Msg("failed to cache prediction")
	}
	return p, nil
}

func (e *Engine) equity(ctx context.Context) (float64, error) {
	acct, err := e.deps.Broker.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	return acct.Equity.InexactFloat64(), nil
}

// finish stamps the terminal outcome, logs it and publishes it
func (e *Engine) finish(ctx context.Context, res *ExecutionResult, status Status, reason string, cause error) *ExecutionResult {
	res.Status = status
	res.Reason = reason
	res.CompletedAt = e.now().UTC()
	if cause != nil {
		res.Message = cause.Error()
	}

	var ev = e.log.Info()
	switch status {
	case StatusFailed:
		ev = e.log.Warn()
	case StatusPartialFailure:
		ev = e.log.Error()
	}
	ev.Err(cause).
		Int64("user_id", res.UserID).
		Str("symbol", res.Symbol).
		Str("model_type", res.ModelType).
		Str("state", string(res.State)).
		Str("status", string(status)).
		Str("reason", reason).
		Str("order_id", res.OrderID).
		Str("client_order_id", res.ClientOrderID).
		Msg("trade decision finished")

	if status == StatusPartialFailure && e.deps.Notifier != nil {
		e.deps.Notifier.NotifyPartialFailure(ctx, *res)
	}
	if e.deps.Events != nil {
		e.deps.Events.Broadcast(res.Event(), res)
	}
	return res
}
