package trading

import (
	"context"
	"fmt"
	"math"
	"strings"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

// Backtest window bounds
const (
	MinLookback   = 10
	MaxLookback   = 200
	MinTestPoints = 10
	MaxTestPoints = 500
)

// ReasonInsufficientData is reported when too few usable points remain
const ReasonInsufficientData = "insufficient_data"

// SeriesSource returns chronological actual and predicted prices
type SeriesSource interface {
	BacktestSeries(ctx context.Context, symbol, modelType string, lookback, testPoints int) ([]float64, []float64, error)
}

// BacktestPoint is one aligned step. Match is false for the first point and
// for steps where the actual price did not move; Evaluated tells them apart.
type BacktestPoint struct {
	Actual         float64 `json:"actual"`
	Predicted      float64 `json:"predicted"`
	DirectionMatch bool    `json:"direction_match"`
	Evaluated      bool    `json:"evaluated"`
}

// BacktestResult summarises directional accuracy, oldest point first
type BacktestResult struct {
	Symbol              string          `json:"symbol"`
	ModelType           string          `json:"model_type"`
	Lookback            int             `json:"lookback"`
	TestPoints          int             `json:"test_points"`
	DirectionalAccuracy float64         `json:"directional_accuracy"`
	Evaluated           int             `json:"evaluated"`
	Matches             int             `json:"matches"`
	MeanAbsoluteError   float64         `json:"mean_absolute_error"`
	Summary             []BacktestPoint `json:"summary"`
}

// BacktestEngine scores a model's directional calls against actual prices
type BacktestEngine struct {
	series SeriesSource
	log    *logging.Logger
}

// NewBacktestEngine creates a backtest engine
func NewBacktestEngine(series SeriesSource, logger *logging.Logger) *BacktestEngine {
	return &BacktestEngine{series: series, log: logger.Component("backtest")}
}

// Run fetches the model's series and scores it
func (b *BacktestEngine) Run(ctx context.Context, symbol, modelType string, lookback, testPoints int) (*BacktestResult, error) {
	const op = "trading.Backtest"
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case symbol == "":
		return nil, apperrors.Validation(op, "symbol", "required")
	case modelType == "":
		return nil, apperrors.Validation(op, "model_type", "required")
	case lookback < MinLookback || lookback > MaxLookback:
		return nil, apperrors.Validation(op, "lookback", fmt.Sprintf("must be within [%d,%d]", MinLookback, MaxLookback))
	case testPoints < MinTestPoints || testPoints > MaxTestPoints:
		return nil, apperrors.Validation(op, "test_points", fmt.Sprintf("must be within [%d,%d]", MinTestPoints, MaxTestPoints))
	}

	actual, predicted, err := b.series.BacktestSeries(ctx, symbol, modelType, lookback, testPoints)
	if err != nil {
		return nil, apperrors.Upstream(op, err)
	}

	res, err := ScoreDirection(actual, predicted, testPoints)
	if err != nil {
		return nil, err
	}
	res.Symbol = symbol
	res.ModelType = modelType
	res.Lookback = lookback

	b.log.Info().
		Str("symbol", symbol).
		Str("model_type", modelType).
		Int("evaluated", res.Evaluated).
		Float64("accuracy", res.DirectionalAccuracy).
		Msg("backtest completed")
	return res, nil
}

// ScoreDirection aligns both series on their common trailing length, keeps
// the last testPoints, and scores sign(Δactual) == sign(Δpredicted) over every
// step where the actual price moved.
func ScoreDirection(actual, predicted []float64, testPoints int) (*BacktestResult, error) {
	const op = "trading.ScoreDirection"

	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if testPoints > 0 && testPoints < n {
		n = testPoints
	}
	if n < 2 {
		return nil, apperrors.New(apperrors.KindComputationSkipped, op, ReasonInsufficientData)
	}
	actual = actual[len(actual)-n:]
	predicted = predicted[len(predicted)-n:]

	for i := 0; i < n; i++ {
		if !finite(actual[i]) || !finite(predicted[i]) {
			return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, op, "invalid_series",
				fmt.Errorf("non-finite value at index %d", i))
		}
	}

	res := &BacktestResult{TestPoints: n, Summary: make([]BacktestPoint, n)}
	var absErr float64
	for i := 0; i < n; i++ {
		pt := BacktestPoint{Actual: actual[i], Predicted: predicted[i]}
		absErr += math.Abs(actual[i] - predicted[i])
		if i > 0 {
			da := sign(actual[i] - actual[i-1])
			if da != 0 {
				pt.Evaluated = true
				pt.DirectionMatch = da == sign(predicted[i]-predicted[i-1])
				res.Evaluated++
				if pt.DirectionMatch {
					res.Matches++
				}
			}
		}
		res.Summary[i] = pt
	}
	res.MeanAbsoluteError = absErr / float64(n)

	if res.Evaluated == 0 {
		return nil, apperrors.New(apperrors.KindComputationSkipped, op, ReasonInsufficientData)
	}
	res.DirectionalAccuracy = float64(res.Matches) / float64(res.Evaluated)
	return res, nil
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
