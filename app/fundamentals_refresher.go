package app

import (
	"context"
	"time"

	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/logging"
)

// FundamentalsUpdater is the part of the fundamentals service the refresher drives
type FundamentalsUpdater interface {
	FetchAndUpsertCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	FetchAndUpsertFinancialReports(ctx context.Context, symbol, timeframe string, limit int) ([]models.FinancialReport, error)
	GetOrCalculateAndStoreKeyRatios(ctx context.Context, symbol string, asOf *time.Time) (*models.KeyRatioSet, error)
}

// FundamentalsRefresher periodically refreshes profiles, filings and key
// ratios for a watchlist
type FundamentalsRefresher struct {
	service  FundamentalsUpdater
	symbols  []string
	interval time.Duration
	log      *logging.Logger
}

// NewFundamentalsRefresher creates a new refresher
func NewFundamentalsRefresher(service FundamentalsUpdater, symbols []string, interval time.Duration, logger *logging.Logger) *FundamentalsRefresher {
	return &FundamentalsRefresher{
		service:  service,
		symbols:  symbols,
		interval: interval,
		log:      logger.Component("fundamentals_refresher"),
	}
}

// Start runs one refresh immediately, then one per interval until ctx ends
func (fr *FundamentalsRefresher) Start(ctx context.Context) {
	fr.log.Info().Int("symbols", len(fr.symbols)).Dur("interval", fr.interval).Msg("fundamentals refresher started")

	ticker := time.NewTicker(fr.interval)
	defer ticker.Stop()

	fr.RefreshAll(ctx)

	for {
		select {
		case <-ticker.C:
			fr.RefreshAll(ctx)
		case <-ctx.Done():
			fr.log.Info().Msg("fundamentals refresher stopped")
			return
		}
	}
}

// RefreshAll refreshes every watchlist symbol and returns how many succeeded.
// A failing symbol is logged and does not stop the others.
func (fr *FundamentalsRefresher) RefreshAll(ctx context.Context) int {
	ok := 0
	for _, symbol := range fr.symbols {
		if ctx.Err() != nil {
			break
		}
		if err := fr.refresh(ctx, symbol); err != nil {
			fr.log.Warn().Err(err).Str("symbol", symbol).Msg("fundamentals refresh failed")
			continue
		}
		ok++
	}
	fr.log.Info().Int("refreshed", ok).Int("total", len(fr.symbols)).Msg("fundamentals refresh completed")
	return ok
}

func (fr *FundamentalsRefresher) refresh(ctx context.Context, symbol string) error {
	if _, err := fr.service.FetchAndUpsertCompanyProfile(ctx, symbol); err != nil {
		return err
	}
	if _, err := fr.service.FetchAndUpsertFinancialReports(ctx, symbol, models.TimeframeAnnual, 0); err != nil {
		return err
	}
	if _, err := fr.service.FetchAndUpsertFinancialReports(ctx, symbol, models.TimeframeQuarterly, 0); err != nil {
		return err
	}
	_, err := fr.service.GetOrCalculateAndStoreKeyRatios(ctx, symbol, nil)
	return err
}
