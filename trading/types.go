// Package trading implements the prediction-driven trade decision pipeline:
// confidence gating, position sizing, order submission and trade persistence,
// plus a directional-accuracy backtest over model output.
//
// Flow:
//
//	FETCH_PREDICTION → CONFIDENCE_CHECK → FETCH_PRICE → SIZE_POSITION →
//	SUBMIT_ORDER → PERSIST → DONE
//
// Any gate can exit to SKIPPED (nothing to do) or FAILED (something broke).
// A persistence failure after the broker accepted the order exits to
// PARTIAL_FAILURE and is pushed to reconciliation.
package trading

import (
	"time"
)

// Side is the order direction
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// DecideSide returns buy only when the model predicts a strictly higher price.
// Equal prices sell.
func DecideSide(predicted, current float64) Side {
	if predicted > current {
		return SideBuy
	}
	return SideSell
}

// State is a step of the decision state machine
type State string

const (
	StateFetchPrediction State = "FETCH_PREDICTION"
	StateConfidenceCheck State = "CONFIDENCE_CHECK"
	StateFetchPrice      State = "FETCH_PRICE"
	StateSizePosition    State = "SIZE_POSITION"
	StateSubmitOrder     State = "SUBMIT_ORDER"
	StatePersist         State = "PERSIST"
	StateDone            State = "DONE"
)

// Status is the terminal outcome of a trade decision
type Status string

const (
	StatusExecuted       Status = "executed"
	StatusSkipped        Status = "skipped"
	StatusFailed         Status = "failed"
	StatusPartialFailure Status = "partial_failure"
)

// Outcome reasons
const (
	ReasonLowConfidence         = "low_confidence"
	ReasonInvalidQuantity       = "invalid_quantity"
	ReasonTradeInFlight         = "trade_in_flight"
	ReasonPredictionUnavailable = "prediction_unavailable"
	ReasonPriceUnavailable      = "price_unavailable"
	ReasonOrderRejected         = "order_rejected"
	ReasonOrderError            = "order_error"
	ReasonLockUnavailable       = "lock_unavailable"
	ReasonPersistFailed         = "persist_failed"
)

// TradeRequest asks the engine to act on one model prediction
type TradeRequest struct {
	UserID              int64   `json:"user_id"`
	Symbol              string  `json:"symbol"`
	ModelType           string  `json:"model_type"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	RiskPerTrade        float64 `json:"risk_per_trade"`
}

// ExecutionResult is the outcome of Engine.Execute. Only PARTIAL_FAILURE and
// EXECUTED carry an order id.
type ExecutionResult struct {
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	State          State     `json:"state"`
	Message        string    `json:"message,omitempty"`
	UserID         int64     `json:"user_id"`
	Symbol         string    `json:"symbol"`
	ModelType      string    `json:"model_type"`
	Side           Side      `json:"side,omitempty"`
	Quantity       float64   `json:"quantity,omitempty"`
	Price          float64   `json:"price,omitempty"`
	PredictedPrice float64   `json:"predicted_price,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	ClientOrderID  string    `json:"client_order_id,omitempty"`
	OrderStatus    string    `json:"order_status,omitempty"`
	TradeID        int64     `json:"trade_id,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Event returns the realtime event name for the outcome
func (r *ExecutionResult) Event() string {
	switch r.Status {
	case StatusExecuted:
		return "trade.executed"
	case StatusSkipped:
		return "trade.skipped"
	case StatusPartialFailure:
		return "trade.partial_failure"
	default:
		return "trade.failed"
	}
}
