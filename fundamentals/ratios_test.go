package fundamentals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "vuoksi-trader/database/models_pkg"
)

func ptr(v float64) *float64 { return &v }

func TestComputeRatios(t *testing.T) {
	in := RatioInputs{
		Price:             ptr(150),
		SharesOutstanding: ptr(1000),
		Income: models.LineItems{
			"revenues":                   200000,
			"gross_profit":               80000,
			"operating_income_loss":      50000,
			"net_income_loss":            30000,
			"diluted_earnings_per_share": 30,
			"basic_earnings_per_share":   31,
		},
		Balance: models.LineItems{
			"equity":              100000,
			"liabilities":         50000,
			"current_assets":      60000,
			"current_liabilities": 30000,
			"inventory":           15000,
		},
	}

	r := ComputeRatios(in)

	require.NotNil(t, r.EarningsPerShare)
	assert.InDelta(t, 30, *r.EarningsPerShare, 1e-9)
	assert.InDelta(t, 5, *r.PriceToEarnings, 1e-9)
	assert.InDelta(t, 0.75, *r.PriceToSales, 1e-9)
	assert.InDelta(t, 1.5, *r.PriceToBook, 1e-9)
	assert.InDelta(t, 0.4, *r.GrossProfitMargin, 1e-9)
	assert.InDelta(t, 0.25, *r.OperatingProfitMargin, 1e-9)
	assert.InDelta(t, 0.15, *r.NetProfitMargin, 1e-9)
	assert.InDelta(t, 0.5, *r.DebtToEquity, 1e-9)
	assert.InDelta(t, 0.3, *r.ReturnOnEquity, 1e-9)
	assert.InDelta(t, 2, *r.CurrentRatio, 1e-9)
	assert.InDelta(t, 1.5, *r.QuickRatio, 1e-9)
}

func TestComputeRatiosZeroRevenueKeepsEPS(t *testing.T) {
	r := ComputeRatios(RatioInputs{
		Price: ptr(100),
		Income: models.LineItems{
			"revenues":                   0,
			"gross_profit":               10,
			"operating_income_loss":      5,
			"net_income_loss":            2,
			"diluted_earnings_per_share": 4,
		},
	})

	assert.Nil(t, r.GrossProfitMargin)
	assert.Nil(t, r.OperatingProfitMargin)
	assert.Nil(t, r.NetProfitMargin)
	require.NotNil(t, r.EarningsPerShare)
	require.NotNil(t, r.PriceToEarnings)
	assert.InDelta(t, 25, *r.PriceToEarnings, 1e-9)
}

func TestComputeRatiosMissingOperands(t *testing.T) {
	tests := []struct {
		name  string
		in    RatioInputs
		check func(t *testing.T, r Ratios)
	}{
		{
			name: "basic eps fallback",
			in:   RatioInputs{Income: models.LineItems{"basic_earnings_per_share": 2.5}},
			check: func(t *testing.T, r Ratios) {
				require.NotNil(t, r.EarningsPerShare)
				assert.InDelta(t, 2.5, *r.EarningsPerShare, 1e-9)
				assert.Nil(t, r.PriceToEarnings)
			},
		},
		{
			name: "zero eps",
			in:   RatioInputs{Price: ptr(10), Income: models.LineItems{"diluted_earnings_per_share": 0}},
			check: func(t *testing.T, r Ratios) {
				require.NotNil(t, r.EarningsPerShare)
				assert.Nil(t, r.PriceToEarnings)
			},
		},
		{
			name: "no shares outstanding",
			in: RatioInputs{
				Price:   ptr(10),
				Income:  models.LineItems{"revenues": 100},
				Balance: models.LineItems{"equity": 50},
			},
			check: func(t *testing.T, r Ratios) {
				assert.Nil(t, r.PriceToSales)
				assert.Nil(t, r.PriceToBook)
			},
		},
		{
			name: "zero equity",
			in: RatioInputs{
				Income:  models.LineItems{"net_income_loss": 10},
				Balance: models.LineItems{"equity": 0, "liabilities": 10},
			},
			check: func(t *testing.T, r Ratios) {
				assert.Nil(t, r.ReturnOnEquity)
				assert.Nil(t, r.DebtToEquity)
			},
		},
		{
			name: "no inventory",
			in:   RatioInputs{Balance: models.LineItems{"current_assets": 10, "current_liabilities": 5}},
			check: func(t *testing.T, r Ratios) {
				require.NotNil(t, r.CurrentRatio)
				assert.InDelta(t, 2, *r.CurrentRatio, 1e-9)
				assert.Nil(t, r.QuickRatio)
			},
		},
		{
			name: "zero current liabilities",
			in:   RatioInputs{Balance: models.LineItems{"current_assets": 10, "current_liabilities": 0, "inventory": 1}},
			check: func(t *testing.T, r Ratios) {
				assert.Nil(t, r.CurrentRatio)
				assert.Nil(t, r.QuickRatio)
			},
		},
		{
			name: "alias keys",
			in: RatioInputs{
				Income:  models.LineItems{"total_revenue": 100, "net_income": 10},
				Balance: models.LineItems{"total_equity": 40, "total_liabilities": 20},
			},
			check: func(t *testing.T, r Ratios) {
				assert.InDelta(t, 0.1, *r.NetProfitMargin, 1e-9)
				assert.InDelta(t, 0.25, *r.ReturnOnEquity, 1e-9)
				assert.InDelta(t, 0.5, *r.DebtToEquity, 1e-9)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ComputeRatios(tt.in))
		})
	}
}

func TestComputeRatiosDoesNotMutateInputs(t *testing.T) {
	income := models.LineItems{"revenues": 100, "net_income_loss": 10}
	balance := models.LineItems{"current_assets": 10, "current_liabilities": 5, "inventory": 2}

	first := ComputeRatios(RatioInputs{Price: ptr(5), Income: income, Balance: balance})
	second := ComputeRatios(RatioInputs{Price: ptr(5), Income: income, Balance: balance})

	assert.Equal(t, models.LineItems{"revenues": 100, "net_income_loss": 10}, income)
	assert.Equal(t, models.LineItems{"current_assets": 10, "current_liabilities": 5, "inventory": 2}, balance)
	assert.Equal(t, first, second)
}

func TestRatiosApply(t *testing.T) {
	set := &models.KeyRatioSet{Symbol: "MSFT"}
	Ratios{CurrentRatio: ptr(1.2), NetProfitMargin: ptr(0.3)}.Apply(set)

	assert.InDelta(t, 1.2, *set.CurrentRatio, 1e-9)
	assert.InDelta(t, 0.3, *set.NetProfitMargin, 1e-9)
	assert.Nil(t, set.PriceToEarningsRatio)
}
