package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/apperrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("key", "secret",
		WithBaseURL(srv.URL),
		WithDataURL(srv.URL),
		WithRateLimit(100),
		WithTimeout(2*time.Second),
	)
}

func TestGetAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"acc-1","status":"ACTIVE","cash":"2500.50","equity":"10000","portfolio_value":"10000"}`))
	})

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acct.ID)
	assert.True(t, decimal.NewFromFloat(2500.50).Equal(acct.Cash))
	assert.Equal(t, 10000.0, acct.Equity.InexactFloat64())
}

func TestLatestPrice(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{"ask", `{"symbol":"AAPL","quote":{"ap":150.25,"bp":150.10}}`, 150.25, false},
		{"bid fallback", `{"symbol":"AAPL","quote":{"ap":0,"bp":150.10}}`, 150.10, false},
		{"no quote", `{"symbol":"AAPL","quote":{"ap":0,"bp":0}}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/stocks/AAPL/quotes/latest", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			})
			got, err := c.LatestPrice(context.Background(), "aapl")
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.KindUpstreamUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubmitOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "6", body["qty"])
		assert.Equal(t, "buy", body["side"])
		assert.Equal(t, "cid-1", body["client_order_id"])
		assert.NotContains(t, body, "limit_price")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ord-1","client_order_id":"cid-1","symbol":"AAPL","side":"buy","status":"accepted","qty":"6","filled_avg_price":null}`))
	})

	order, err := c.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "AAPL", Qty: decimal.NewFromInt(6), Side: "buy", Type: "market", TimeInForce: "day", ClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.False(t, order.FilledAvgPrice.Valid)
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"insufficient buying power", http.StatusForbidden, false},
		{"unprocessable", http.StatusUnprocessableEntity, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
			})
			_, err := c.SubmitOrder(context.Background(), OrderRequest{Symbol: "AAPL", Qty: decimal.NewFromInt(1), Side: "buy"})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "insufficient buying power", apiErr.Message)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
		})
	}
}

func TestTransportErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient("k", "s", WithBaseURL(url), WithTimeout(time.Second))
	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUpstreamUnavailable))
}

func TestGetOrderByClientID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders:by_client_order_id", r.URL.Path)
		if r.URL.Query().Get("client_order_id") != "cid-9" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":40410000,"message":"order not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ord-9","client_order_id":"cid-9","status":"filled","filled_avg_price":"101.5"}`))
	})

	order, err := c.GetOrderByClientID(context.Background(), "cid-9")
	require.NoError(t, err)
	assert.Equal(t, "ord-9", order.ID)
	assert.True(t, order.FilledAvgPrice.Valid)

	_, err = c.GetOrderByClientID(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}

func TestListPositionsAndActivities(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v2/positions":
			w.Write([]byte(`[{"symbol":"AAPL","qty":"10","avg_entry_price":"140","current_price":"150","market_value":"1500","unrealized_pl":"100","unrealized_plpc":"0.0714"}]`))
		case "/v2/account/activities/FILL":
			assert.Equal(t, "desc", r.URL.Query().Get("direction"))
			w.Write([]byte(`[{"id":"act-1","activity_type":"FILL","symbol":"AAPL","side":"buy","qty":"10","price":"140","order_id":"ord-1"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	positions, err := c.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, 100.0, positions[0].UnrealizedPL.InexactFloat64())

	fills, err := c.ListFillActivities(context.Background(), time.Time{}, 50)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "ord-1", fills[0].OrderID)
}
