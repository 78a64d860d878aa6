// Package alpaca provides a client for the Alpaca brokerage API
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

const (
	DefaultBaseURL   = "https://paper-api.alpaca.markets"
	DefaultDataURL   = "https://data.alpaca.markets"
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 3 // requests per second
)

// Client implements the brokerage operations the trading engine needs
type Client struct {
	http    *resty.Client
	baseURL string
	dataURL string
	limiter *rate.Limiter
	logger  *logging.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the trading API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithDataURL sets the market data API base URL
func WithDataURL(dataURL string) ClientOption {
	return func(c *Client) {
		if dataURL != "" {
			c.dataURL = strings.TrimRight(dataURL, "/")
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.Component("alpaca")
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// NewClient creates a new Alpaca client authenticated with an API key pair
func NewClient(apiKey, secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetTimeout(DefaultTimeout).
			SetHeader("APCA-API-KEY-ID", apiKey).
			SetHeader("APCA-API-SECRET-KEY", secretKey).
			SetHeader("Accept", "application/json"),
		baseURL: DefaultBaseURL,
		dataURL: DefaultDataURL,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  logging.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx answer from the brokerage
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Alpaca API error: %s (status: %d, code: %d, endpoint: %s)", e.Message, e.StatusCode, e.Code, e.Endpoint)
}

// Retryable reports whether the request may succeed if repeated unchanged
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsNotFound reports whether err is a 404 from the brokerage
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// do performs a rate-limited request. Transport failures are wrapped as
// UpstreamUnavailable; HTTP errors are returned as *APIError.
func (c *Client) do(ctx context.Context, method, url string, query map[string]string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Upstream("alpaca", fmt.Errorf("rate limit wait: %w", err))
	}

	apiErr := &APIError{}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetError(apiErr)
	if result != nil {
		req.SetResult(result)
	}
	if body != nil {
		req.SetBody(body)
	}

	c.logger.Debug().Str("method", method).Str("url", url).Msg("Alpaca API request")

	resp, err := req.Execute(method, url)
	if err != nil {
		return apperrors.Upstream("alpaca", err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		apiErr.Endpoint = url
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		return apiErr
	}
	return nil
}

// Account is the subset of the brokerage account the service uses
type Account struct {
	ID               string          `json:"id"`
	AccountNumber    string          `json:"account_number"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Cash             decimal.Decimal `json:"cash"`
	Equity           decimal.Decimal `json:"equity"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	TradingBlocked   bool            `json:"trading_blocked"`
	PatternDayTrader bool            `json:"pattern_day_trader"`
}

// GetAccount retrieves the account
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.do(ctx, resty.MethodGet, c.baseURL+"/v2/account", nil, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Position is an open position held at the brokerage
type Position struct {
	Symbol              string          `json:"symbol"`
	Side                string          `json:"side"`
	Qty                 decimal.Decimal `json:"qty"`
	AvgEntryPrice       decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketValue         decimal.Decimal `json:"market_value"`
	UnrealizedPL        decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealized_plpc"`
}

// ListPositions retrieves all open positions
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.do(ctx, resty.MethodGet, c.baseURL+"/v2/positions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Quote is the latest NBBO quote for a symbol
type Quote struct {
	AskPrice  float64   `json:"ap"`
	AskSize   float64   `json:"as"`
	BidPrice  float64   `json:"bp"`
	BidSize   float64   `json:"bs"`
	Timestamp time.Time `json:"t"`
}

// GetLatestQuote retrieves the latest quote for symbol
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	var out struct {
		Symbol string `json:"symbol"`
		Quote  Quote  `json:"quote"`
	}
	url := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", c.dataURL, strings.ToUpper(symbol))
	if err := c.do(ctx, resty.MethodGet, url, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Quote, nil
}

// LatestPrice returns the ask price of the latest quote, or the bid when no
// ask is posted
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.GetLatestQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	switch {
	case q.AskPrice > 0:
		return q.AskPrice, nil
	case q.BidPrice > 0:
		return q.BidPrice, nil
	}
	return 0, apperrors.New(apperrors.KindUpstreamUnavailable, "alpaca.LatestPrice", "no_quote")
}

// OrderRequest is the body of an order submission
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// Order is the brokerage's view of an order
type Order struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	TimeInForce    string              `json:"time_in_force"`
	Status         string              `json:"status"`
	Qty            decimal.Decimal     `json:"qty"`
	FilledQty      decimal.Decimal     `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	SubmittedAt    time.Time           `json:"submitted_at"`
	FilledAt       *time.Time          `json:"filled_at"`
}

// SubmitOrder places an order. The brokerage assigns ID; ClientOrderID
// echoes the request.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, resty.MethodPost, c.baseURL+"/v2/orders", nil, req, &order); err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("order_id", order.ID).
		Str("client_order_id", order.ClientOrderID).
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Str("status", order.Status).
		Msg("order submitted")
	return &order, nil
}

// GetOrderByClientID retrieves an order by the id the caller generated
func (c *Client) GetOrderByClientID(ctx context.Context, clientOrderID string) (*Order, error) {
	var order Order
	query := map[string]string{"client_order_id": clientOrderID}
	if err := c.do(ctx, resty.MethodGet, c.baseURL+"/v2/orders:by_client_order_id", query, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Activity is one FILL account activity
type Activity struct {
	ID              string          `json:"id"`
	ActivityType    string          `json:"activity_type"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Qty             decimal.Decimal `json:"qty"`
	Price           decimal.Decimal `json:"price"`
	OrderID         string          `json:"order_id"`
	TransactionTime time.Time       `json:"transaction_time"`
}

// ListFillActivities retrieves fills, newest first, optionally since a time
func (c *Client) ListFillActivities(ctx context.Context, after time.Time, pageSize int) ([]Activity, error) {
	query := map[string]string{"direction": "desc"}
	if !after.IsZero() {
		query["after"] = after.UTC().Format(time.RFC3339)
	}
	if pageSize > 0 {
		query["page_size"] = fmt.Sprint(pageSize)
	}
	var out []Activity
	if err := c.do(ctx, resty.MethodGet, c.baseURL+"/v2/account/activities/FILL", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
