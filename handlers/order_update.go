package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vuoksi-trader/alpaca"
	"vuoksi-trader/apperrors"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/logging"
	"vuoksi-trader/trading"
)

// Order lifecycle events that move shares
const (
	EventFill        = "fill"
	EventPartialFill = "partial_fill"
)

// ReasonUntrackedFill marks a broker fill with no local trade record
const ReasonUntrackedFill = "untracked_fill"

// TradeLookup finds the local record of a broker order
type TradeLookup interface {
	GetByOrderID(ctx context.Context, orderID string) (*models.TradeRecord, error)
}

// EventPublisher fans order updates out to live subscribers
type EventPublisher interface {
	Broadcast(event string, payload interface{})
}

// ReconciliationNotifier is told about broker fills missing locally
type ReconciliationNotifier interface {
	NotifyPartialFailure(ctx context.Context, res trading.ExecutionResult)
}

// OrderEvent is the realtime payload of one order update
type OrderEvent struct {
	Event          string     `json:"event"`
	OrderID        string     `json:"order_id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Status         string     `json:"status"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	FilledAt       *time.Time `json:"filled_at,omitempty"`
}

// OrderUpdateHandler broadcasts every order update and checks that each fill
// belongs to a trade record. Fills can arrive before the record is written,
// so a missing record is rechecked once after Grace.
type OrderUpdateHandler struct {
	trades   TradeLookup
	events   EventPublisher
	notifier ReconciliationNotifier
	grace    time.Duration
	log      *logging.Logger
	wg       sync.WaitGroup
}

// NewOrderUpdateHandler creates the handler. events and notifier may be nil.
func NewOrderUpdateHandler(trades TradeLookup, events EventPublisher, notifier ReconciliationNotifier, grace time.Duration, logger *logging.Logger) *OrderUpdateHandler {
	return &OrderUpdateHandler{
		trades:   trades,
		events:   events,
		notifier: notifier,
		grace:    grace,
		log:      logger.Component("order_updates"),
	}
}

// Accepts takes every event
func (h *OrderUpdateHandler) Accepts(string) bool { return true }

// Handle broadcasts the update and, for fills, verifies the trade record
func (h *OrderUpdateHandler) Handle(ctx context.Context, update alpaca.TradeUpdate) error {
	if h.events != nil {
		h.events.Broadcast("order."+update.Event, toOrderEvent(update))
	}
	if update.Event != EventFill && update.Event != EventPartialFill {
		return nil
	}
	if update.Order.ID == "" {
		h.log.Warn().Str("event", update.Event).Msg("fill without order id")
		return nil
	}

	missing, err := h.missingRecord(ctx, update.Order.ID)
	if err != nil || !missing {
		return err
	}
	if h.grace <= 0 {
		h.reportUntracked(ctx, update)
		return nil
	}

	detached := context.WithoutCancel(ctx)
	h.wg.Add(1)
	time.AfterFunc(h.grace, func() {
		defer h.wg.Done()
		missing, err := h.missingRecord(detached, update.Order.ID)
		if err != nil {
			h.log.Error().Err(err).Str("order_id", update.Order.ID).Msg("fill recheck failed")
			return
		}
		if missing {
			h.reportUntracked(detached, update)
		}
	})
	return nil
}

// Wait blocks until pending fill rechecks finish
func (h *OrderUpdateHandler) Wait() {
	h.wg.Wait()
}

func (h *OrderUpdateHandler) missingRecord(ctx context.Context, orderID string) (bool, error) {
	_, err := h.trades.GetByOrderID(ctx, orderID)
	switch {
	case err == nil:
		return false, nil
	case apperrors.Is(err, apperrors.KindNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("lookup trade for order %s: %w", orderID, err)
	}
}

func (h *OrderUpdateHandler) reportUntracked(ctx context.Context, update alpaca.TradeUpdate) {
	order := update.Order
	h.log.Warn().
		Str("order_id", order.ID).
		Str("client_order_id", order.ClientOrderID).
		Str("symbol", order.Symbol).
		Msg("broker fill has no local trade record")

	if h.notifier == nil {
		return
	}
	res := trading.ExecutionResult{
		Status:        trading.StatusPartialFailure,
		Reason:        ReasonUntrackedFill,
		State:         trading.StatePersist,
		Message:       "broker reported a fill for an order with no trade record",
		Symbol:        order.Symbol,
		Side:          trading.Side(order.Side),
		Quantity:      order.Qty.InexactFloat64(),
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		OrderStatus:   order.Status,
		CompletedAt:   update.Timestamp,
	}
	if update.Price.Valid {
		res.Price = update.Price.Decimal.InexactFloat64()
	} else if order.FilledAvgPrice.Valid {
		res.Price = order.FilledAvgPrice.Decimal.InexactFloat64()
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now().UTC()
	}
	h.notifier.NotifyPartialFailure(ctx, res)
}

func toOrderEvent(update alpaca.TradeUpdate) OrderEvent {
	order := update.Order
	ev := OrderEvent{
		Event:         update.Event,
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Status:        order.Status,
		Qty:           order.Qty.String(),
		FilledQty:     order.FilledQty.String(),
		Timestamp:     update.Timestamp,
		FilledAt:      order.FilledAt,
	}
	if order.FilledAvgPrice.Valid {
		price := order.FilledAvgPrice.Decimal.String()
		ev.FilledAvgPrice = &price
	}
	return ev
}
