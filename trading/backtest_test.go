package trading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

type fakeSeries struct {
	actual, predicted []float64
	err               error
}

func (f *fakeSeries) BacktestSeries(context.Context, string, string, int, int) ([]float64, []float64, error) {
	return f.actual, f.predicted, f.err
}

func TestScoreDirection(t *testing.T) {
	tests := []struct {
		name         string
		actual       []float64
		predicted    []float64
		testPoints   int
		wantAccuracy float64
		wantEval     int
	}{
		{"perfect", []float64{1, 2, 3, 2, 4}, []float64{1.1, 2.5, 2.9, 1.0, 5}, 0, 1.0, 4},
		{"all wrong", []float64{1, 2, 3}, []float64{3, 2, 1}, 0, 0, 2},
		{"flat actual excluded", []float64{1, 1, 2, 2, 1}, []float64{1, 2, 3, 1, 0}, 0, 1.0, 2},
		{"flat prediction misses", []float64{1, 2, 3}, []float64{1, 1, 2}, 0, 0.5, 2},
		{"trailing window", []float64{9, 1, 2, 3}, []float64{0, 5, 6, 7}, 3, 1.0, 2},
		{"aligned on common trailing length", []float64{5, 1, 2, 3}, []float64{1, 2, 1}, 0, 0.5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ScoreDirection(tt.actual, tt.predicted, tt.testPoints)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccuracy, res.DirectionalAccuracy)
			assert.Equal(t, tt.wantEval, res.Evaluated)
			assert.False(t, res.Summary[0].Evaluated)
			assert.GreaterOrEqual(t, res.DirectionalAccuracy, 0.0)
			assert.LessOrEqual(t, res.DirectionalAccuracy, 1.0)
		})
	}
}

func TestScoreDirectionOrderingAndMAE(t *testing.T) {
	res, err := ScoreDirection([]float64{10, 11, 12}, []float64{11, 12, 13}, 0)
	require.NoError(t, err)
	require.Len(t, res.Summary, 3)
	assert.Equal(t, 10.0, res.Summary[0].Actual, "oldest first")
	assert.Equal(t, 12.0, res.Summary[2].Actual)
	assert.Equal(t, 1.0, res.MeanAbsoluteError)
}

func TestScoreDirectionInsufficientData(t *testing.T) {
	tests := []struct {
		name      string
		actual    []float64
		predicted []float64
	}{
		{"empty", nil, nil},
		{"single point", []float64{1}, []float64{1}},
		{"mismatched to one", []float64{1, 2, 3}, []float64{2}},
		{"only flat moves", []float64{3, 3, 3}, []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScoreDirection(tt.actual, tt.predicted, 0)
			assert.True(t, apperrors.Is(err, apperrors.KindComputationSkipped))
			assert.Equal(t, ReasonInsufficientData, apperrors.ReasonOf(err))
		})
	}
}

func TestBacktestEngineRun(t *testing.T) {
	series := &fakeSeries{
		actual:    []float64{100, 101, 102, 101, 103, 104, 103, 105, 106, 107, 108},
		predicted: []float64{100, 102, 103, 100, 104, 105, 104, 106, 107, 106, 109},
	}
	b := NewBacktestEngine(series, logging.NewSilentLogger())

	res, err := b.Run(context.Background(), "aapl", "lstm", 60, 10)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, 10, res.TestPoints)
	assert.Len(t, res.Summary, 10)
	assert.Equal(t, 9, res.Evaluated)
	assert.Equal(t, 8, res.Matches)
}

func TestBacktestEngineValidation(t *testing.T) {
	b := NewBacktestEngine(&fakeSeries{}, logging.NewSilentLogger())
	ctx := context.Background()

	_, err := b.Run(ctx, "", "lstm", 60, 50)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	_, err = b.Run(ctx, "AAPL", "lstm", 5, 50)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	_, err = b.Run(ctx, "AAPL", "lstm", 60, 1000)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestBacktestEngineUpstreamError(t *testing.T) {
	b := NewBacktestEngine(&fakeSeries{err: errors.New("model offline")}, logging.NewSilentLogger())
	_, err := b.Run(context.Background(), "AAPL", "lstm", 60, 50)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamUnavailable))
}
