// Package realtime fans trade outcomes and broker order updates out to
// Server-Sent Events subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"vuoksi-trader/logging"
)

// Broker handles Server-Sent Events (SSE) clients and broadcasting
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	log        *logging.Logger
}

// NewBroker creates a new SSE broker
func NewBroker(logger *logging.Logger) *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 1000),
		done:       make(chan struct{}),
		log:        logger.Component("realtime"),
	}
}

// Run starts the broker loop and closes every client when ctx ends
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			b.log.Info().Msg("SSE broker stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			total := len(b.clients)
			b.mu.Unlock()
			b.log.Debug().Int("clients", total).Msg("SSE client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			total := len(b.clients)
			b.mu.Unlock()
			b.log.Debug().Int("clients", total).Msg("SSE client disconnected")

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// slow client, drop
				}
			}
			b.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan []byte, 10)
	select {
	case b.register <- clientChan:
	case <-b.done:
		http.Error(w, "broker stopped", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			select {
			case b.unregister <- clientChan:
			case <-b.done:
			}
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast sends a message to all connected clients. Messages are dropped
// when the buffer is full.
func (b *Broker) Broadcast(event string, payload interface{}) {
	data := map[string]interface{}{
		"event":   event,
		"payload": payload,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("failed to marshal broadcast message")
		return
	}

	select {
	case b.broadcast <- jsonBytes:
	default:
		b.log.Warn().Str("event", event).Msg("broadcast buffer full, message dropped")
	}
}
