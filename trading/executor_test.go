package trading

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/alpaca"
	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

func TestOrderExecutorSubmitAndLookup(t *testing.T) {
	broker := &fakeBroker{equity: "1000"}
	x := NewOrderExecutor(broker, logging.NewSilentLogger())
	ctx := context.Background()

	res, err := x.Submit(ctx, OrderRequest{Symbol: "aapl", Qty: decimal.NewFromInt(3), Side: SideBuy})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ClientOrderID)
	assert.Equal(t, "AAPL", res.Symbol)
	require.Len(t, broker.submitted, 1)
	assert.Equal(t, OrderMarket, broker.submitted[0].Type)
	assert.Equal(t, TimeInForceDay, broker.submitted[0].TimeInForce)

	found, err := x.Lookup(ctx, res.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, found.OrderID)

	_, err = x.Lookup(ctx, "never-sent")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestOrderExecutorClientIDsAreUnique(t *testing.T) {
	broker := &fakeBroker{}
	x := NewOrderExecutor(broker, logging.NewSilentLogger())
	for i := 0; i < 3; i++ {
		_, err := x.Submit(context.Background(), OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: SideSell})
		require.NoError(t, err)
	}
	seen := map[string]bool{}
	for _, r := range broker.submitted {
		assert.False(t, seen[r.ClientOrderID])
		seen[r.ClientOrderID] = true
	}
}

func TestOrderExecutorValidation(t *testing.T) {
	limit := decimal.NewFromFloat(101.5)
	tests := []struct {
		name string
		req  OrderRequest
	}{
		{"zero qty", OrderRequest{Symbol: "AAPL", Qty: decimal.Zero, Side: SideBuy}},
		{"bad side", OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: "hold"}},
		{"limit without price", OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: SideBuy, Type: OrderLimit}},
		{"stop limit without stop", OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: SideBuy, Type: OrderStopLimit, LimitPrice: &limit}},
		{"unknown type", OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: SideBuy, Type: "trailing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := &fakeBroker{}
			_, err := NewOrderExecutor(broker, logging.NewSilentLogger()).Submit(context.Background(), tt.req)
			assert.True(t, apperrors.Is(err, apperrors.KindValidation))
			assert.Empty(t, broker.submitted)
		})
	}
}

func TestOrderExecutorErrorTypes(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantRejected bool
	}{
		{"forbidden", &alpaca.APIError{StatusCode: http.StatusForbidden}, true},
		{"unprocessable", &alpaca.APIError{StatusCode: http.StatusUnprocessableEntity}, true},
		{"rate limited", &alpaca.APIError{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &alpaca.APIError{StatusCode: http.StatusServiceUnavailable}, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewOrderExecutor(&fakeBroker{submitErr: tt.err}, logging.NewSilentLogger())
			_, err := x.Submit(context.Background(), OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: SideBuy})

			var rejected *OrderRejectedError
			var transport *OrderTransportError
			if tt.wantRejected {
				require.True(t, errors.As(err, &rejected))
				assert.NotEmpty(t, rejected.ClientOrderID)
			} else {
				require.True(t, errors.As(err, &transport))
				assert.NotEmpty(t, transport.ClientOrderID)
			}
		})
	}
}
