package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vuoksi-trader/alpaca"
	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

// Order types and time-in-force values accepted by the executor
const (
	OrderMarket    = "market"
	OrderLimit     = "limit"
	OrderStop      = "stop"
	OrderStopLimit = "stop_limit"

	TimeInForceDay = "day"
	TimeInForceGTC = "gtc"
)

// Broker is the subset of the brokerage client the trading flow uses
type Broker interface {
	GetAccount(ctx context.Context) (*alpaca.Account, error)
	SubmitOrder(ctx context.Context, req alpaca.OrderRequest) (*alpaca.Order, error)
	GetOrderByClientID(ctx context.Context, clientOrderID string) (*alpaca.Order, error)
}

// OrderRequest describes an order to submit
type OrderRequest struct {
	Symbol      string
	Qty         decimal.Decimal
	Side        Side
	Type        string
	TimeInForce string
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
}

// OrderResult is the normalized broker acknowledgement
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Qty           decimal.Decimal
	Status        string
}

// OrderRejectedError means the broker refused the order. Resubmitting the
// same parameters will fail again.
type OrderRejectedError struct {
	ClientOrderID string
	StatusCode    int
	Message       string
	Err           error
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected by broker (status %d): %s", e.StatusCode, e.Message)
}

func (e *OrderRejectedError) Unwrap() error { return e.Err }

// OrderTransportError means the outcome is unknown: the order may or may not
// have reached the broker. Look it up by ClientOrderID before retrying.
type OrderTransportError struct {
	ClientOrderID string
	Err           error
}

func (e *OrderTransportError) Error() string {
	return fmt.Sprintf("order submission failed (client_order_id %s): %v", e.ClientOrderID, e.Err)
}

func (e *OrderTransportError) Unwrap() error { return e.Err }

// OrderExecutor submits orders to the broker. It never retries.
type OrderExecutor struct {
	broker Broker
	newID  func() string
	log    *logging.Logger
}

// NewOrderExecutor creates an executor
func NewOrderExecutor(broker Broker, logger *logging.Logger) *OrderExecutor {
	return &OrderExecutor{
		broker: broker,
		newID:  func() string { return uuid.NewString() },
		log:    logger.Component("order_executor"),
	}
}

func validateOrder(req OrderRequest) error {
	const op = "trading.Submit"
	if strings.TrimSpace(req.Symbol) == "" {
		return apperrors.Validation(op, "symbol", "required")
	}
	if !req.Qty.IsPositive() {
		return apperrors.Validation(op, "qty", "must be positive")
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return apperrors.Validation(op, "side", "must be buy or sell")
	}
	switch req.Type {
	case OrderMarket:
	case OrderLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return apperrors.Validation(op, "limit_price", "required for limit orders")
		}
	case OrderStop:
		if req.StopPrice == nil || !req.StopPrice.IsPositive() {
			return apperrors.Validation(op, "stop_price", "required for stop orders")
		}
	case OrderStopLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() || req.StopPrice == nil || !req.StopPrice.IsPositive() {
			return apperrors.Validation(op, "limit_price", "limit and stop prices required for stop_limit orders")
		}
	default:
		return apperrors.Validation(op, "type", "unsupported order type")
	}
	return nil
}

// Submit places one order. Errors are *apperrors.Error (validation),
// *OrderRejectedError or *OrderTransportError.
func (x *OrderExecutor) Submit(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.Type == "" {
		req.Type = OrderMarket
	}
	if req.TimeInForce == "" {
		req.TimeInForce = TimeInForceDay
	}
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	clientOrderID := x.newID()
	order, err := x.broker.SubmitOrder(ctx, alpaca.OrderRequest{
		Symbol:        strings.ToUpper(req.Symbol),
		Qty:           req.Qty,
		Side:          string(req.Side),
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, &OrderRejectedError{
				ClientOrderID: clientOrderID,
				StatusCode:    apiErr.StatusCode,
				Message:       apiErr.Message,
				Err:           err,
			}
		}
		return nil, &OrderTransportError{ClientOrderID: clientOrderID, Err: err}
	}

	res := &OrderResult{
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          Side(order.Side),
		Qty:           order.Qty,
		Status:        order.Status,
	}
	if res.ClientOrderID == "" {
		res.ClientOrderID = clientOrderID
	}
	if res.Symbol == "" {
		res.Symbol = strings.ToUpper(req.Symbol)
	}
	if res.Side == "" {
		res.Side = req.Side
	}
	if res.Qty.IsZero() {
		res.Qty = req.Qty
	}
	if res.OrderID == "" {
		return nil, &OrderTransportError{ClientOrderID: clientOrderID, Err: errors.New("broker response missing order id")}
	}
	return res, nil
}

// Lookup returns the broker's view of an order submitted with clientOrderID.
// A NotFound error means the broker never received it.
func (x *OrderExecutor) Lookup(ctx context.Context, clientOrderID string) (*OrderResult, error) {
	order, err := x.broker.GetOrderByClientID(ctx, clientOrderID)
	if err != nil {
		if alpaca.IsNotFound(err) {
			return nil, apperrors.Wrap(apperrors.KindNotFound, "trading.Lookup", "order_not_found", err)
		}
		return nil, apperrors.Upstream("trading.Lookup", err)
	}
	return &OrderResult{
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          Side(order.Side),
		Qty:           order.Qty,
		Status:        order.Status,
	}, nil
}
