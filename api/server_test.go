package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/alpaca"
	"vuoksi-trader/apperrors"
	"vuoksi-trader/auth"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/database/trades"
	"vuoksi-trader/fundamentals"
	"vuoksi-trader/logging"
	"vuoksi-trader/ml"
	"vuoksi-trader/trading"
)

type fakeTrading struct {
	req    trading.TradeRequest
	result *trading.ExecutionResult
	err    error
}

func (f *fakeTrading) Execute(_ context.Context, req trading.TradeRequest) (*trading.ExecutionResult, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakeTrading) Prediction(_ context.Context, symbol, modelType string) (*ml.Prediction, error) {
	return &ml.Prediction{Symbol: strings.ToUpper(symbol), ModelType: modelType, PredictedPrice: 180, Confidence: 0.9}, nil
}

type fakeBacktests struct{ err error }

func (f *fakeBacktests) Run(_ context.Context, symbol, modelType string, lookback, testPoints int) (*trading.BacktestResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &trading.BacktestResult{Symbol: symbol, ModelType: modelType, Lookback: lookback, TestPoints: testPoints, DirectionalAccuracy: 0.6}, nil
}

type fakeHistory struct{ filter trades.ListFilter }

func (f *fakeHistory) ListTrades(_ context.Context, filter trades.ListFilter) ([]models.TradeRecord, error) {
	f.filter = filter
	return []models.TradeRecord{{ID: 1, UserID: filter.UserID, Symbol: "AAPL", OrderID: "o-1"}}, nil
}

type fakeBrokerage struct{}

func (fakeBrokerage) GetAccount(context.Context) (*alpaca.Account, error) {
	return &alpaca.Account{
		Cash:           decimal.RequireFromString("1000.50"),
		Equity:         decimal.RequireFromString("5000"),
		PortfolioValue: decimal.RequireFromString("5000"),
	}, nil
}

func (fakeBrokerage) ListPositions(context.Context) ([]alpaca.Position, error) {
	return []alpaca.Position{
		{Symbol: "AAPL", MarketValue: decimal.RequireFromString("2500"), UnrealizedPL: decimal.RequireFromString("100")},
		{Symbol: "MSFT", MarketValue: decimal.RequireFromString("1499.50"), UnrealizedPL: decimal.RequireFromString("-20.25")},
	}, nil
}

func (fakeBrokerage) ListFillActivities(context.Context, time.Time, int) ([]alpaca.Activity, error) {
	return []alpaca.Activity{}, nil
}

type fakeTrainer struct{}

func (fakeTrainer) Train(_ context.Context, symbol, modelType string, _ int) (*ml.TrainResult, error) {
	return &ml.TrainResult{Symbol: symbol, ModelType: modelType, Status: "completed"}, nil
}

type fakeFundamentals struct {
	reportIn fundamentals.ReportInput
	asOf     *time.Time
}

func (f *fakeFundamentals) GetProfile(_ context.Context, symbol string) (*models.CompanyProfile, error) {
	return nil, apperrors.NotFound("GetProfile", "record_not_found")
}

func (f *fakeFundamentals) FetchAndUpsertCompanyProfile(_ context.Context, symbol string) (*models.CompanyProfile, error) {
	return &models.CompanyProfile{ID: 1, Symbol: strings.ToUpper(symbol)}, nil
}

func (f *fakeFundamentals) UpsertReport(_ context.Context, in fundamentals.ReportInput) (*models.FinancialReport, error) {
	f.reportIn = in
	return &models.FinancialReport{ID: 3, Symbol: in.Symbol, ReportType: in.ReportType}, nil
}

func (f *fakeFundamentals) FetchAndUpsertFinancialReports(context.Context, string, string, int) ([]models.FinancialReport, error) {
	return []models.FinancialReport{{ID: 1}, {ID: 2}}, nil
}

func (f *fakeFundamentals) ListReports(context.Context, string, string, string, int) ([]models.FinancialReport, error) {
	return nil, nil
}

func (f *fakeFundamentals) GetOrCalculateAndStoreKeyRatios(_ context.Context, symbol string, asOf *time.Time) (*models.KeyRatioSet, error) {
	f.asOf = asOf
	return &models.KeyRatioSet{Symbol: symbol}, nil
}

func (f *fakeFundamentals) ListKeyRatios(context.Context, string, *time.Time, int) ([]models.KeyRatioSet, error) {
	return nil, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	trading      *fakeTrading
	backtests    *fakeBacktests
	history      *fakeHistory
	fundamentals *fakeFundamentals
	tokens       *auth.TokenService
	health       map[string]HealthChecker
}

func newAPIFixture() *apiFixture {
	return &apiFixture{
		trading:      &fakeTrading{},
		backtests:    &fakeBacktests{},
		history:      &fakeHistory{},
		fundamentals: &fakeFundamentals{},
		tokens:       auth.NewTokenService("test-secret", time.Hour),
		health:       map[string]HealthChecker{"database": pinger{}},
	}
}

func (f *apiFixture) handler() http.Handler {
	return NewServer(Deps{
		Trading:      f.trading,
		Backtests:    f.backtests,
		History:      f.history,
		Brokerage:    fakeBrokerage{},
		Trainer:      fakeTrainer{},
		Fundamentals: f.fundamentals,
		Auth:         f.tokens,
		Health:       f.health,
		Defaults:     TradeDefaults{ConfidenceThreshold: 0.7, RiskPerTrade: 0.01},
		Logger:       logging.NewSilentLogger(),
	}).Handler()
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := f.tokens.Issue(42)
	require.NoError(t, err)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)
	return rec
}

func TestExecuteTradeRequiresToken(t *testing.T) {
	f := newAPIFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trades/execute", strings.NewReader(`{"symbol":"AAPL"}`))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExecuteTrade(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		result   *trading.ExecutionResult
		err      error
		wantCode int
		check    func(t *testing.T, req trading.TradeRequest)
	}{
		{
			name:     "defaults applied",
			body:     `{"symbol":"AAPL"}`,
			result:   &trading.ExecutionResult{Status: trading.StatusExecuted, Symbol: "AAPL"},
			wantCode: http.StatusOK,
			check: func(t *testing.T, req trading.TradeRequest) {
				assert.Equal(t, int64(42), req.UserID)
				assert.Equal(t, ml.ModelLSTM, req.ModelType)
				assert.Equal(t, 0.7, req.ConfidenceThreshold)
				assert.Equal(t, 0.01, req.RiskPerTrade)
			},
		},
		{
			name:     "explicit gates",
			body:     `{"symbol":"AAPL","model_type":"xgboost","confidence_threshold":0.5,"risk_per_trade":0.02}`,
			result:   &trading.ExecutionResult{Status: trading.StatusSkipped, Reason: trading.ReasonLowConfidence},
			wantCode: http.StatusOK,
			check: func(t *testing.T, req trading.TradeRequest) {
				assert.Equal(t, "xgboost", req.ModelType)
				assert.Equal(t, 0.5, req.ConfidenceThreshold)
				assert.Equal(t, 0.02, req.RiskPerTrade)
			},
		},
		{
			name:     "partial failure",
			body:     `{"symbol":"AAPL"}`,
			result:   &trading.ExecutionResult{Status: trading.StatusPartialFailure, OrderID: "o-1"},
			wantCode: http.StatusMultiStatus,
		},
		{
			name:     "failed",
			body:     `{"symbol":"AAPL"}`,
			result:   &trading.ExecutionResult{Status: trading.StatusFailed, Reason: trading.ReasonPriceUnavailable},
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "validation error",
			body:     `{"symbol":""}`,
			err:      apperrors.Validation("trading.Execute", "symbol", "required"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown model",
			body:     `{"symbol":"AAPL","model_type":"arima"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad json",
			body:     `{`,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture()
			f.trading.result = tt.result
			f.trading.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/v1/trades/execute", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.check != nil {
				tt.check(t, f.trading.req)
			}
		})
	}
}

func TestListTradesPaging(t *testing.T) {
	f := newAPIFixture()
	rec := f.do(t, http.MethodGet, "/api/v1/trades?symbol=aapl&limit=10&offset=20&since=2024-01-01", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, trades.ListFilter{
		UserID: 42,
		Symbol: "AAPL",
		Since:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:  10,
		Offset: 20,
	}, f.history.filter)

	rec = f.do(t, http.MethodGet, "/api/v1/trades?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBacktestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"validation", apperrors.Validation("trading.Backtest", "lookback", "out of range"), http.StatusBadRequest},
		{"insufficient data", apperrors.New(apperrors.KindComputationSkipped, "trading.Backtest", trading.ReasonInsufficientData), http.StatusUnprocessableEntity},
		{"upstream", apperrors.Upstream("trading.Backtest", errors.New("timeout")), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture()
			f.backtests.err = tt.err
			rec := f.do(t, http.MethodGet, "/api/v1/backtest?symbol=AAPL&lookback=60&test_points=30", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetPortfolio(t *testing.T) {
	f := newAPIFixture()
	rec := f.do(t, http.MethodGet, "/api/v1/portfolio", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cash           string            `json:"cash"`
		PositionsValue string            `json:"positions_value"`
		UnrealizedPL   string            `json:"unrealized_pl"`
		Positions      []json.RawMessage `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1000.5", body.Cash)
	assert.Equal(t, "3999.5", body.PositionsValue)
	assert.Equal(t, "79.75", body.UnrealizedPL)
	assert.Len(t, body.Positions, 2)
}

func TestPredictionsAndModels(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/predictions/aapl?model_type=xgboost", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p ml.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, "xgboost", p.ModelType)

	rec = f.do(t, http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models":["lstm","xgboost"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/models/aapl/train", `{"model_type":"lstm","epochs":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"AAPL"`)

	rec = f.do(t, http.MethodPost, "/api/v1/models/aapl/train", `{"epochs":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFundamentalsRoutes(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(t, http.MethodGet, "/api/v1/fundamentals/MSFT/profile", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/fundamentals/MSFT/profile", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/fundamentals/MSFT/reports?timeframe=quarterly&limit=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stored":2`)

	rec = f.do(t, http.MethodPut, "/api/v1/fundamentals/MSFT/reports", `{
		"report_type": "income_statement",
		"timeframe": "annual",
		"period_of_report_date": "2023-06-30",
		"fiscal_year": 2023,
		"data": {"revenues": 211915000000}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	in := f.fundamentals.reportIn
	assert.Equal(t, "MSFT", in.Symbol)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), in.PeriodEnd)
	assert.Equal(t, json.Number("211915000000"), in.Data["revenues"])

	rec = f.do(t, http.MethodPut, "/api/v1/fundamentals/MSFT/reports", `{"symbol":"AAPL"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/fundamentals/MSFT/reports", `{"period_of_report_date":"30/06/2023"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/fundamentals/MSFT/ratios?date=2023-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.fundamentals.asOf)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), *f.fundamentals.asOf)

	rec = f.do(t, http.MethodGet, "/api/v1/fundamentals/MSFT/ratios?date=june", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture()
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.health["redis"] = pinger{err: errors.New("connection refused")}
	rec = httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture()
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/trades", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
