// Package handlers routes brokerage order lifecycle events from the trade
// updates stream to the components that react to them.
package handlers

import (
	"context"

	"vuoksi-trader/alpaca"
)

// UpdateHandler is the interface for every trade update handler
type UpdateHandler interface {
	// Handle processes one order lifecycle event
	Handle(ctx context.Context, update alpaca.TradeUpdate) error

	// Accepts reports whether the handler wants events of this type
	Accepts(event string) bool
}
