package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/apperrors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestPredict(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AAPL", body["symbol"])
		assert.Equal(t, "lstm", body["model_type"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predicted_price": 180.0, "confidence": 0.85}`))
	})

	p, err := c.Predict(context.Background(), "AAPL", "lstm")
	require.NoError(t, err)
	assert.Equal(t, 180.0, p.PredictedPrice)
	assert.Equal(t, 0.85, p.Confidence)
	assert.Equal(t, "AAPL", p.Symbol)
	assert.False(t, p.GeneratedAt.IsZero())
}

func TestPredictRejectsInvalidResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"model error", `{"error": "model not trained"}`, http.StatusOK},
		{"confidence out of range", `{"predicted_price": 10, "confidence": 1.5}`, http.StatusOK},
		{"missing confidence", `{"predicted_price": 10}`, http.StatusOK},
		{"error with status", `{"error": "no data"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			})
			_, err := c.Predict(context.Background(), "AAPL", "lstm")
			assert.ErrorIs(t, err, ErrPrediction)
		})
	}
}

func TestPredictServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Predict(context.Background(), "AAPL", "lstm")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamUnavailable))
}

func TestBacktestSeries(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/backtest", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("test_points"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"actual": [1, 2, 3], "predicted": [1.1, 2.2, 2.9]}`))
	})

	actual, predicted, err := c.BacktestSeries(context.Background(), "AAPL", "xgboost", 60, 50)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, actual)
	assert.Equal(t, []float64{1.1, 2.2, 2.9}, predicted)
}

func TestTrain(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/train", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(20), body["epochs"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "completed"}`))
	})

	res, err := c.Train(context.Background(), "AAPL", ModelLSTM, 20)
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, ModelLSTM, res.ModelType)
}

func TestValidModel(t *testing.T) {
	assert.True(t, ValidModel("lstm"))
	assert.True(t, ValidModel("xgboost"))
	assert.False(t, ValidModel("arima"))
}
