package trades

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/database/dbtest"
	models "vuoksi-trader/database/models_pkg"
)

func TestRepository_CreateAndList(t *testing.T) {
	db := dbtest.StartPostgres(t)
	repo := NewRepository(db.DB())
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	records := []*models.TradeRecord{
		{UserID: 1, Symbol: "AAPL", Side: models.SideBuy, Quantity: 10, Price: 150, OrderID: "o-1", Timestamp: base},
		{UserID: 1, Symbol: "MSFT", Side: models.SideSell, Quantity: 5, Price: 400, OrderID: "o-2", Timestamp: base.Add(time.Minute)},
		{UserID: 2, Symbol: "AAPL", Side: models.SideBuy, Quantity: 1, Price: 151, OrderID: "o-3", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, repo.CreateTrade(ctx, r))
		assert.NotZero(t, r.ID)
	}

	got, err := repo.ListTrades(ctx, ListFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o-2", got[0].OrderID, "newest first")

	got, err = repo.ListTrades(ctx, ListFilter{UserID: 1, Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 150.0, got[0].Price)

	got, err = repo.ListTrades(ctx, ListFilter{UserID: 1, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o-1", got[0].OrderID)

	rec, err := repo.GetByOrderID(ctx, "o-3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.UserID)
}

func TestRepository_DuplicateOrderID(t *testing.T) {
	db := dbtest.StartPostgres(t)
	repo := NewRepository(db.DB())
	ctx := context.Background()

	require.NoError(t, repo.CreateTrade(ctx, &models.TradeRecord{UserID: 1, Symbol: "AAPL", Side: models.SideBuy, Quantity: 1, Price: 1, OrderID: "dup"}))
	err := repo.CreateTrade(ctx, &models.TradeRecord{UserID: 1, Symbol: "AAPL", Side: models.SideBuy, Quantity: 1, Price: 1, OrderID: "dup"})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	_, err = repo.GetByOrderID(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
