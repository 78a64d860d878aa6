// Package ml is the client for the model-inference service.
//
// The service owns model training and loading; this package only asks it for
// a next-period price prediction or for the aligned actual/predicted series a
// backtest needs. Responses are validated at the boundary: a prediction with
// an error field, a non-finite price, or a confidence outside [0,1] never
// reaches the trading engine.
package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"vuoksi-trader/apperrors"
)

// Prediction is the result of one inference call
type Prediction struct {
	Symbol         string    `json:"symbol"`
	ModelType      string    `json:"model_type"`
	PredictedPrice float64   `json:"predicted_price"`
	Confidence     float64   `json:"confidence"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Validate checks the invariants the trading engine relies on
func (p *Prediction) Validate() error {
	if p == nil {
		return errors.New("nil prediction")
	}
	if math.IsNaN(p.PredictedPrice) || math.IsInf(p.PredictedPrice, 0) || p.PredictedPrice <= 0 {
		return fmt.Errorf("invalid predicted price %v", p.PredictedPrice)
	}
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", p.Confidence)
	}
	return nil
}

// ErrPrediction is returned when the service answered but reported a model error
var ErrPrediction = errors.New("model reported an error")

// predictResponse is the wire shape: either a prediction or {"error": "..."}
type predictResponse struct {
	PredictedPrice *float64   `json:"predicted_price"`
	Confidence     *float64   `json:"confidence"`
	GeneratedAt    *time.Time `json:"generated_at"`
	Error          string     `json:"error"`
}

type seriesResponse struct {
	Actual    []float64 `json:"actual"`
	Predicted []float64 `json:"predicted"`
	Error     string    `json:"error"`
}

// Client talks to the inference service over HTTP
type Client struct {
	http *resty.Client
	now  func() time.Time
}

// NewClient creates a new inference client
func NewClient(endpoint string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c, now: time.Now}
}

// Predict requests a next-period prediction for symbol from modelType
func (c *Client) Predict(ctx context.Context, symbol, modelType string) (*Prediction, error) {
	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"symbol": symbol, "model_type": modelType}).
		SetResult(&out).
		SetError(&out).
		Post("/predict")
	if err != nil {
		return nil, apperrors.Upstream("ml.Predict", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrPrediction, out.Error)
	}
	if resp.IsError() {
		return nil, apperrors.Upstream("ml.Predict", fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String()))
	}
	if out.PredictedPrice == nil || out.Confidence == nil {
		return nil, fmt.Errorf("%w: response missing predicted_price or confidence", ErrPrediction)
	}

	p := &Prediction{
		Symbol:         symbol,
		ModelType:      modelType,
		PredictedPrice: *out.PredictedPrice,
		Confidence:     *out.Confidence,
		GeneratedAt:    c.now().UTC(),
	}
	if out.GeneratedAt != nil {
		p.GeneratedAt = out.GeneratedAt.UTC()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	return p, nil
}

// BacktestSeries returns the chronological actual and predicted price series
// the model produces over its trailing test window
func (c *Client) BacktestSeries(ctx context.Context, symbol, modelType string, lookback, testPoints int) ([]float64, []float64, error) {
	var out seriesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":      symbol,
			"model_type":  modelType,
			"lookback":    fmt.Sprint(lookback),
			"test_points": fmt.Sprint(testPoints),
		}).
		SetResult(&out).
		SetError(&out).
		Get("/backtest")
	if err != nil {
		return nil, nil, apperrors.Upstream("ml.BacktestSeries", err)
	}
	if out.Error != "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrPrediction, out.Error)
	}
	if resp.IsError() {
		return nil, nil, apperrors.Upstream("ml.BacktestSeries", fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String()))
	}
	return out.Actual, out.Predicted, nil
}

// Supported model types
const (
	ModelLSTM    = "lstm"
	ModelXGBoost = "xgboost"
)

// SupportedModels lists the model types the inference service serves
func SupportedModels() []string {
	return []string{ModelLSTM, ModelXGBoost}
}

// ValidModel reports whether modelType is served by the inference service
func ValidModel(modelType string) bool {
	for _, m := range SupportedModels() {
		if m == modelType {
			return true
		}
	}
	return false
}

// TrainResult is the service's answer to a training request
type TrainResult struct {
	Symbol    string `json:"symbol"`
	ModelType string `json:"model_type"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// Train asks the service to (re)train modelType for symbol. Epochs only
// applies to sequence models and is ignored when zero.
func (c *Client) Train(ctx context.Context, symbol, modelType string, epochs int) (*TrainResult, error) {
	body := map[string]any{"symbol": symbol, "model_type": modelType}
	if epochs > 0 {
		body["epochs"] = epochs
	}

	var out struct {
		TrainResult
		Error string `json:"error"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/train")
	if err != nil {
		return nil, apperrors.Upstream("ml.Train", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrPrediction, out.Error)
	}
	if resp.IsError() {
		return nil, apperrors.Upstream("ml.Train", fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String()))
	}

	res := out.TrainResult
	if res.Symbol == "" {
		res.Symbol = symbol
	}
	if res.ModelType == "" {
		res.ModelType = modelType
	}
	if res.Status == "" {
		res.Status = "completed"
	}
	return &res, nil
}
