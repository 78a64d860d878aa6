// Package polygon provides a client for the Polygon.io reference API
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

const (
	DefaultBaseURL   = "https://api.polygon.io"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements the fundamentals lookups
type Client struct {
	http    *resty.Client
	apiKey  string
	limiter *rate.Limiter
	logger  *logging.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.http.SetBaseURL(strings.TrimRight(baseURL, "/"))
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.Component("polygon")
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

// NewClient creates a new Polygon client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "application/json"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  logging.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Status     string `json:"status"`
	Message    string `json:"message"`
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Polygon API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) error {
	if !c.Configured() {
		return apperrors.New(apperrors.KindUpstreamUnavailable, "polygon", "api_key_missing")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Upstream("polygon", fmt.Errorf("rate limit wait: %w", err))
	}

	c.logger.Debug().Str("path", path).Msg("Polygon API request")

	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetQueryParam("apiKey", c.apiKey).
		SetResult(result).
		SetError(apiErr).
		Get(path)
	if err != nil {
		return apperrors.Upstream("polygon", err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		apiErr.Endpoint = path
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		if apiErr.StatusCode == 404 {
			return apperrors.Wrap(apperrors.KindNotFound, "polygon", "not_found", apiErr)
		}
		return apperrors.Upstream("polygon", apiErr)
	}
	return nil
}

// TickerDetails is the /v3/reference/tickers/{ticker} result
type TickerDetails struct {
	Ticker                      string   `json:"ticker"`
	Name                        string   `json:"name"`
	CIK                         string   `json:"cik"`
	SICDescription              string   `json:"sic_description"`
	Description                 string   `json:"description"`
	PrimaryExchange             string   `json:"primary_exchange"`
	CurrencyName                string   `json:"currency_name"`
	MarketCap                   *float64 `json:"market_cap"`
	WeightedSharesOutstanding   *float64 `json:"weighted_shares_outstanding"`
	ShareClassSharesOutstanding *float64 `json:"share_class_shares_outstanding"`
	PhoneNumber                 string   `json:"phone_number"`
	HomepageURL                 string   `json:"homepage_url"`
	ListDate                    string   `json:"list_date"`
	Locale                      string   `json:"locale"`
	Address                     *struct {
		Country string `json:"country"`
		State   string `json:"state"`
		City    string `json:"city"`
	} `json:"address"`
	Branding *struct {
		LogoURL string `json:"logo_url"`
		IconURL string `json:"icon_url"`
	} `json:"branding"`
}

// SharesOutstanding prefers the weighted count over the share-class count
func (d *TickerDetails) SharesOutstanding() *float64 {
	if d.WeightedSharesOutstanding != nil {
		return d.WeightedSharesOutstanding
	}
	return d.ShareClassSharesOutstanding
}

// GetTickerDetails retrieves reference details for a ticker
func (c *Client) GetTickerDetails(ctx context.Context, ticker string) (*TickerDetails, error) {
	var out struct {
		Status  string         `json:"status"`
		Results *TickerDetails `json:"results"`
	}
	if err := c.get(ctx, "/v3/reference/tickers/"+strings.ToUpper(ticker), nil, &out); err != nil {
		return nil, err
	}
	if out.Results == nil {
		return nil, apperrors.NotFound("polygon.GetTickerDetails", "ticker_not_found")
	}
	return out.Results, nil
}

// DataPoint is one statement line item
type DataPoint struct {
	Label string          `json:"label"`
	Unit  string          `json:"unit"`
	Value json.RawMessage `json:"value"`
	Order int             `json:"order"`
}

// Statement maps line item keys to data points
type Statement map[string]DataPoint

// Financials groups the statements of one filing
type Financials struct {
	IncomeStatement     Statement `json:"income_statement"`
	BalanceSheet        Statement `json:"balance_sheet"`
	CashFlowStatement   Statement `json:"cash_flow_statement"`
	ComprehensiveIncome Statement `json:"comprehensive_income"`
}

// Filing is one /vX/reference/financials result
type Filing struct {
	StartDate           string     `json:"start_date"`
	EndDate             string     `json:"end_date"`
	FilingDate          string     `json:"filing_date"`
	FiscalPeriod        string     `json:"fiscal_period"`
	FiscalYear          string     `json:"fiscal_year"`
	Timeframe           string     `json:"timeframe"`
	CompanyName         string     `json:"company_name"`
	SourceFilingURL     string     `json:"source_filing_url"`
	SourceFilingFileURL string     `json:"source_filing_file_url"`
	Financials          Financials `json:"financials"`
}

// FinancialsQuery filters ListFinancials
type FinancialsQuery struct {
	Ticker    string
	Timeframe string
	Limit     int
}

// ListFinancials retrieves filings newest first, sorted by filing date
func (c *Client) ListFinancials(ctx context.Context, q FinancialsQuery) ([]Filing, error) {
	query := map[string]string{
		"ticker": strings.ToUpper(q.Ticker),
		"order":  "desc",
		"sort":   "filing_date",
	}
	if q.Timeframe != "" {
		query["timeframe"] = q.Timeframe
	}
	if q.Limit > 0 {
		query["limit"] = fmt.Sprint(q.Limit)
	}

	var out struct {
		Status  string   `json:"status"`
		Results []Filing `json:"results"`
	}
	if err := c.get(ctx, "/vX/reference/financials", query, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
