package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"vuoksi-trader/logging"
)

const (
	tradeUpdatesStream = "trade_updates"
	minReconnectDelay  = time.Second
	maxReconnectDelay  = time.Minute
	handshakeTimeout   = 10 * time.Second
)

// TradeUpdate is one order lifecycle event from the trade_updates stream
type TradeUpdate struct {
	Event       string              `json:"event"`
	ExecutionID string              `json:"execution_id"`
	Order       Order               `json:"order"`
	Price       decimal.NullDecimal `json:"price"`
	Qty         decimal.NullDecimal `json:"qty"`
	PositionQty decimal.NullDecimal `json:"position_qty"`
	Timestamp   time.Time           `json:"timestamp"`
}

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Stream subscribes to the account's trade_updates websocket and reconnects
// with exponential backoff until its context is cancelled
type Stream struct {
	url       string
	apiKey    string
	secretKey string
	dialer    *websocket.Dialer
	logger    *logging.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStream creates a trade updates stream
func NewStream(url, apiKey, secretKey string, logger *logging.Logger) *Stream {
	return &Stream{
		url:       url,
		apiKey:    apiKey,
		secretKey: secretKey,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:    logger.Component("alpaca_stream"),
	}
}

// Run connects and delivers every trade update to handle. It returns when
// ctx is done.
func (s *Stream) Run(ctx context.Context, handle func(TradeUpdate)) error {
	delay := minReconnectDelay
	for {
		connected, err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = minReconnectDelay
		}
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("trade updates stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session runs one connection until it fails. connected reports whether the
// handshake completed.
func (s *Stream) session(ctx context.Context, handle func(TradeUpdate)) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to connect to %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()
	defer s.Close()

	if err := s.handshake(conn); err != nil {
		return false, err
	}
	s.logger.Info().Str("url", s.url).Msg("trade updates stream connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("skipping undecodable stream message")
			continue
		}
		if msg.Stream != tradeUpdatesStream {
			continue
		}
		var update TradeUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed trade update")
			continue
		}
		handle(update)
	}
}

func (s *Stream) handshake(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	auth := map[string]any{"action": "auth", "key": s.apiKey, "secret": s.secretKey}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var reply streamMessage
	if err := readJSON(conn, &reply); err != nil {
		return fmt.Errorf("failed to read auth reply: %w", err)
	}
	var status struct {
		Status string `json:"status"`
	}
	json.Unmarshal(reply.Data, &status)
	if reply.Stream != "authorization" || status.Status != "authorized" {
		return errors.New("trade updates stream authorization rejected")
	}

	listen := map[string]any{
		"action": "listen",
		"data":   map[string][]string{"streams": {tradeUpdatesStream}},
	}
	if err := conn.WriteJSON(listen); err != nil {
		return fmt.Errorf("failed to send listen: %w", err)
	}
	return nil
}

// readJSON decodes one message; the paper endpoint sends binary frames
func readJSON(conn *websocket.Conn, v any) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Close closes the current connection, if any
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
