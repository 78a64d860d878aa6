package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"vuoksi-trader/alpaca"
	"vuoksi-trader/logging"
)

// HandlerManager manages the registered trade update handlers
type HandlerManager struct {
	handlers map[string]UpdateHandler
	mu       sync.RWMutex
	log      *logging.Logger
}

// NewHandlerManager creates a new HandlerManager
func NewHandlerManager(logger *logging.Logger) *HandlerManager {
	return &HandlerManager{
		handlers: make(map[string]UpdateHandler),
		log:      logger.Component("handlers"),
	}
}

// RegisterHandler registers a handler under name, replacing any previous one
func (hm *HandlerManager) RegisterHandler(name string, handler UpdateHandler) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.handlers[name] = handler
	hm.log.Info().Str("handler", name).Msg("registered trade update handler")
}

// UnregisterHandler removes the handler registered under name
func (hm *HandlerManager) UnregisterHandler(name string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	delete(hm.handlers, name)
}

// GetHandler returns the handler registered under name
func (hm *HandlerManager) GetHandler(name string) (UpdateHandler, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	handler, exists := hm.handlers[name]
	return handler, exists
}

// ListHandlers returns the registered handler names in sorted order
func (hm *HandlerManager) ListHandlers() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	names := make([]string, 0, len(hm.handlers))
	for name := range hm.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch hands update to every handler that accepts its event, in name
// order. A failing handler does not stop the others; their errors are joined.
func (hm *HandlerManager) Dispatch(ctx context.Context, update alpaca.TradeUpdate) error {
	var errs []error
	for _, name := range hm.ListHandlers() {
		handler, ok := hm.GetHandler(name)
		if !ok || !handler.Accepts(update.Event) {
			continue
		}
		if err := handler.Handle(ctx, update); err != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// HandleUpdate dispatches update and logs failures. It matches the callback
// signature of alpaca.Stream.Run.
func (hm *HandlerManager) HandleUpdate(ctx context.Context) func(alpaca.TradeUpdate) {
	return func(update alpaca.TradeUpdate) {
		if err := hm.Dispatch(ctx, update); err != nil {
			hm.log.Error().
				Err(err).
				Str("event", update.Event).
				Str("order_id", update.Order.ID).
				Msg("failed to handle trade update")
		}
	}
}
