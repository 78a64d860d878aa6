package fundamentals

import (
	models "vuoksi-trader/database/models_pkg"
)

// Statement keys, most specific first. Polygon uses the *_loss spellings.
var (
	revenueKeys          = []string{"revenues", "revenue", "total_revenue"}
	grossProfitKeys      = []string{"gross_profit"}
	operatingIncomeKeys  = []string{"operating_income_loss", "operating_income"}
	netIncomeKeys        = []string{"net_income_loss", "net_income", "net_income_loss_attributable_to_parent"}
	dilutedEPSKeys       = []string{"diluted_earnings_per_share"}
	basicEPSKeys         = []string{"basic_earnings_per_share"}
	equityKeys           = []string{"equity", "total_equity", "equity_attributable_to_parent"}
	liabilitiesKeys      = []string{"liabilities", "total_liabilities"}
	currentAssetsKeys    = []string{"current_assets"}
	currentLiabilityKeys = []string{"current_liabilities"}
	inventoryKeys        = []string{"inventory"}
)

// RatioInputs are the operands of one ratio computation. Nil means unavailable.
type RatioInputs struct {
	Price             *float64
	SharesOutstanding *float64
	Income            models.LineItems
	Balance           models.LineItems
}

// Ratios are the derived values; nil means an operand was missing or a
// divisor was zero
type Ratios struct {
	PriceToEarnings       *float64
	PriceToSales          *float64
	PriceToBook           *float64
	EarningsPerShare      *float64
	ReturnOnEquity        *float64
	DebtToEquity          *float64
	CurrentRatio          *float64
	QuickRatio            *float64
	GrossProfitMargin     *float64
	OperatingProfitMargin *float64
	NetProfitMargin       *float64
}

// ComputeRatios derives every ratio independently of the others. It reads
// but never modifies the line items.
func ComputeRatios(in RatioInputs) Ratios {
	revenue := lookup(in.Income, revenueKeys)
	netIncome := lookup(in.Income, netIncomeKeys)
	equity := lookup(in.Balance, equityKeys)
	currentAssets := lookup(in.Balance, currentAssetsKeys)
	currentLiabilities := lookup(in.Balance, currentLiabilityKeys)

	eps := lookup(in.Income, dilutedEPSKeys)
	if eps == nil {
		eps = lookup(in.Income, basicEPSKeys)
	}

	var r Ratios
	r.EarningsPerShare = eps
	r.PriceToEarnings = div(in.Price, eps)
	r.PriceToSales = div(in.Price, div(revenue, in.SharesOutstanding))
	r.PriceToBook = div(in.Price, div(equity, in.SharesOutstanding))

	r.GrossProfitMargin = div(lookup(in.Income, grossProfitKeys), revenue)
	r.OperatingProfitMargin = div(lookup(in.Income, operatingIncomeKeys), revenue)
	r.NetProfitMargin = div(netIncome, revenue)

	r.DebtToEquity = div(lookup(in.Balance, liabilitiesKeys), equity)
	r.ReturnOnEquity = div(netIncome, equity)

	r.CurrentRatio = div(currentAssets, currentLiabilities)
	if inventory := lookup(in.Balance, inventoryKeys); inventory != nil && currentAssets != nil {
		quick := *currentAssets - *inventory
		r.QuickRatio = div(&quick, currentLiabilities)
	}
	return r
}

// Apply copies the ratios onto a ratio set
func (r Ratios) Apply(set *models.KeyRatioSet) {
	set.PriceToEarningsRatio = r.PriceToEarnings
	set.PriceToSalesRatio = r.PriceToSales
	set.PriceToBookRatio = r.PriceToBook
	set.EarningsPerShare = r.EarningsPerShare
	set.ReturnOnEquity = r.ReturnOnEquity
	set.DebtToEquityRatio = r.DebtToEquity
	set.CurrentRatio = r.CurrentRatio
	set.QuickRatio = r.QuickRatio
	set.GrossProfitMargin = r.GrossProfitMargin
	set.OperatingProfitMargin = r.OperatingProfitMargin
	set.NetProfitMargin = r.NetProfitMargin
}

func lookup(items models.LineItems, keys []string) *float64 {
	for _, k := range keys {
		if v, ok := items[k]; ok {
			return &v
		}
	}
	return nil
}

func div(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	v := *num / *den
	return &v
}
