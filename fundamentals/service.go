// Package fundamentals fetches company profiles and financial statements,
// stores them per filing period, and derives key ratio sets from them.
package fundamentals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/cache"
	fundrepo "vuoksi-trader/database/fundamentals"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/logging"
	"vuoksi-trader/polygon"
)

// ReasonProfileUnavailable is reported when no profile exists or can be fetched
const ReasonProfileUnavailable = "profile_unavailable"

// Repository persists fundamentals data
type Repository interface {
	GetProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	UpsertProfile(ctx context.Context, p *models.CompanyProfile) error
	UpsertReport(ctx context.Context, rep *models.FinancialReport) error
	ListReports(ctx context.Context, q fundrepo.ReportQuery) ([]models.FinancialReport, error)
	LatestReport(ctx context.Context, q fundrepo.ReportQuery) (*models.FinancialReport, error)
	GetKeyRatios(ctx context.Context, symbol string, date time.Time) (*models.KeyRatioSet, error)
	UpsertKeyRatios(ctx context.Context, set *models.KeyRatioSet) error
	ListKeyRatios(ctx context.Context, symbol string, since *time.Time, limit int) ([]models.KeyRatioSet, error)
}

// Source is the upstream fundamentals API
type Source interface {
	GetTickerDetails(ctx context.Context, ticker string) (*polygon.TickerDetails, error)
	ListFinancials(ctx context.Context, q polygon.FinancialsQuery) ([]polygon.Filing, error)
}

// PriceSource returns the current price used for valuation ratios
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Config holds cache lifetimes and the ratio staleness threshold
type Config struct {
	RatioStaleness  time.Duration
	ProfileCacheTTL time.Duration
	ReportCacheTTL  time.Duration
}

// Service implements the fundamentals operations
type Service struct {
	repo   Repository
	source Source
	cache  cache.Store
	prices PriceSource
	cfg    Config
	log    *logging.Logger
	now    func() time.Time
}

// NewService creates the fundamentals service. cacheStore and prices may be nil.
func NewService(repo Repository, source Source, cacheStore cache.Store, prices PriceSource, cfg Config, logger *logging.Logger) *Service {
	if cfg.RatioStaleness <= 0 {
		cfg.RatioStaleness = 30 * 24 * time.Hour
	}
	if cfg.ProfileCacheTTL <= 0 {
		cfg.ProfileCacheTTL = 24 * time.Hour
	}
	if cfg.ReportCacheTTL <= 0 {
		cfg.ReportCacheTTL = 24 * time.Hour
	}
	return &Service{
		repo:   repo,
		source: source,
		cache:  cacheStore,
		prices: prices,
		cfg:    cfg,
		log:    logger.Component("fundamentals"),
		now:    time.Now,
	}
}

func normalizeSymbol(op, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", apperrors.Validation(op, "symbol", "required")
	}
	return symbol, nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cacheGet reads a cached value; any failure is a miss
func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return err == nil
}

func (s *Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// GetProfile returns the stored profile for symbol
func (s *Service) GetProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	symbol, err := normalizeSymbol("fundamentals.GetProfile", symbol)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProfile(ctx, symbol)
}

// FetchAndUpsertCompanyProfile loads the profile from cache or the upstream
// API and upserts it on symbol. Fields the upstream left empty keep their
// stored values.
func (s *Service) FetchAndUpsertCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	const op = "fundamentals.FetchAndUpsertCompanyProfile"
	symbol, err := normalizeSymbol(op, symbol)
	if err != nil {
		return nil, err
	}

	key := "polygon:company_profile:" + symbol
	var fetched models.CompanyProfile
	if s.cacheGet(ctx, key, &fetched) {
		s.log.Debug().Str("symbol", symbol).Msg("using cached company profile")
	} else {
		details, err := s.source.GetTickerDetails(ctx, symbol)
		if err != nil {
			return nil, err
		}
		fetched = profileFromDetails(symbol, details)
		s.cacheSet(ctx, key, fetched, s.cfg.ProfileCacheTTL)
	}

	profile := &fetched
	existing, err := s.repo.GetProfile(ctx, symbol)
	switch {
	case err == nil:
		mergeProfile(existing, &fetched)
		profile = existing
	case !apperrors.Is(err, apperrors.KindNotFound):
		return nil, err
	}

	profile.Symbol = symbol
	profile.LastRefreshed = s.now().UTC()
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	s.log.Info().Str("symbol", symbol).Int64("profile_id", profile.ID).Msg("company profile upserted")
	return profile, nil
}

func profileFromDetails(symbol string, d *polygon.TickerDetails) models.CompanyProfile {
	p := models.CompanyProfile{
		Symbol:            symbol,
		Name:              d.Name,
		CIK:               d.CIK,
		Sector:            d.SICDescription,
		Description:       d.Description,
		Exchange:          d.PrimaryExchange,
		Currency:          strings.ToUpper(d.CurrencyName),
		MarketCap:         d.MarketCap,
		SharesOutstanding: d.SharesOutstanding(),
		Phone:             d.PhoneNumber,
		URL:               d.HomepageURL,
	}
	if d.Address != nil {
		p.Country = d.Address.Country
	}
	if p.Country == "" && strings.EqualFold(d.Locale, "us") {
		p.Country = "US"
	}
	if d.Branding != nil {
		p.LogoURL = d.Branding.LogoURL
	}
	if t, err := time.Parse("2006-01-02", d.ListDate); err == nil {
		p.ListDate = &t
	}
	return p
}

// mergeProfile overlays the non-empty fields of src onto dst
func mergeProfile(dst, src *models.CompanyProfile) {
	setStr := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}
	setStr(&dst.Name, src.Name)
	setStr(&dst.CIK, src.CIK)
	setStr(&dst.Sector, src.Sector)
	setStr(&dst.Industry, src.Industry)
	setStr(&dst.Description, src.Description)
	setStr(&dst.Country, src.Country)
	setStr(&dst.Exchange, src.Exchange)
	setStr(&dst.Currency, src.Currency)
	setStr(&dst.Phone, src.Phone)
	setStr(&dst.URL, src.URL)
	setStr(&dst.LogoURL, src.LogoURL)
	if src.MarketCap != nil {
		dst.MarketCap = src.MarketCap
	}
	if src.SharesOutstanding != nil {
		dst.SharesOutstanding = src.SharesOutstanding
	}
	if src.ListDate != nil {
		dst.ListDate = src.ListDate
	}
}

// ensureProfile returns the stored profile, fetching it when missing
func (s *Service) ensureProfile(ctx context.Context, op, symbol string) (*models.CompanyProfile, error) {
	p, err := s.repo.GetProfile(ctx, symbol)
	if err == nil {
		return p, nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}
	if s.source == nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, op, ReasonProfileUnavailable, err)
	}
	p, err = s.FetchAndUpsertCompanyProfile(ctx, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("company profile could not be obtained")
		return nil, apperrors.Wrap(apperrors.KindNotFound, op, ReasonProfileUnavailable, err)
	}
	return p, nil
}

// ReportInput is one statement of one filing period
type ReportInput struct {
	Symbol              string         `json:"symbol"`
	ReportType          string         `json:"report_type"`
	Timeframe           string         `json:"timeframe"`
	PeriodEnd           time.Time      `json:"period_of_report_date"`
	StartDate           *time.Time     `json:"start_date,omitempty"`
	FiscalYear          *int           `json:"fiscal_year,omitempty"`
	FiscalPeriod        string         `json:"fiscal_period,omitempty"`
	FilingDate          *time.Time     `json:"filing_date,omitempty"`
	Data                map[string]any `json:"data"`
	SourceFilingURL     string         `json:"source_filing_url,omitempty"`
	SourceFilingFileURL string         `json:"source_filing_file_url,omitempty"`
}

// UpsertReport stores one statement, replacing the row for the same
// (profile, report type, timeframe, period end)
func (s *Service) UpsertReport(ctx context.Context, in ReportInput) (*models.FinancialReport, error) {
	const op = "fundamentals.UpsertReport"
	symbol, err := normalizeSymbol(op, in.Symbol)
	if err != nil {
		return nil, err
	}
	if !models.ValidReportType(in.ReportType) {
		return nil, apperrors.Validation(op, "report_type", "must be income_statement, balance_sheet or cash_flow_statement")
	}
	if !models.ValidTimeframe(in.Timeframe) {
		return nil, apperrors.Validation(op, "timeframe", "must be annual, quarterly or ttm")
	}
	if in.PeriodEnd.IsZero() {
		return nil, apperrors.Validation(op, "period_of_report_date", "required")
	}

	profile, err := s.ensureProfile(ctx, op, symbol)
	if err != nil {
		return nil, err
	}
	return s.upsertReport(ctx, profile, symbol, in)
}

func (s *Service) upsertReport(ctx context.Context, profile *models.CompanyProfile, symbol string, in ReportInput) (*models.FinancialReport, error) {
	items, dropped := CoerceLineItems(in.Data)
	if len(dropped) > 0 {
		sort.Strings(dropped)
		s.log.Debug().Str("symbol", symbol).Str("report_type", in.ReportType).Strs("dropped", dropped).Msg("dropped non-numeric line items")
	}

	rep := &models.FinancialReport{
		CompanyProfileID:    profile.ID,
		Symbol:              symbol,
		ReportType:          in.ReportType,
		Timeframe:           in.Timeframe,
		PeriodOfReportDate:  truncateDate(in.PeriodEnd),
		StartDate:           in.StartDate,
		FiscalYear:          in.FiscalYear,
		FiscalPeriod:        in.FiscalPeriod,
		FilingDate:          in.FilingDate,
		Data:                datatypes.NewJSONType(items),
		SourceFilingURL:     in.SourceFilingURL,
		SourceFilingFileURL: in.SourceFilingFileURL,
		LastRefreshed:       s.now().UTC(),
	}
	if err := s.repo.UpsertReport(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// FetchAndUpsertFinancialReports fetches up to limit filings for timeframe
// and stores each statement as its own report. A row that fails to store is
// logged and skipped.
func (s *Service) FetchAndUpsertFinancialReports(ctx context.Context, symbol, timeframe string, limit int) ([]models.FinancialReport, error) {
	const op = "fundamentals.FetchAndUpsertFinancialReports"
	symbol, err := normalizeSymbol(op, symbol)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = models.TimeframeAnnual
	}
	if !models.ValidTimeframe(timeframe) {
		return nil, apperrors.Validation(op, "timeframe", "must be annual, quarterly or ttm")
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > 100 {
		return nil, apperrors.Validation(op, "limit", "must be at most 100")
	}

	profile, err := s.ensureProfile(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("polygon:financials:%s:%s:%d", symbol, timeframe, limit)
	var inputs []ReportInput
	if s.cacheGet(ctx, key, &inputs) {
		s.log.Debug().Str("symbol", symbol).Str("timeframe", timeframe).Msg("using cached financial reports")
	} else {
		filings, err := s.source.ListFinancials(ctx, polygon.FinancialsQuery{Ticker: symbol, Timeframe: timeframe, Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, f := range filings {
			in, err := reportsFromFiling(symbol, f)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("skipping filing")
				continue
			}
			inputs = append(inputs, in...)
		}
		if len(inputs) > 0 {
			s.cacheSet(ctx, key, inputs, s.cfg.ReportCacheTTL)
		}
	}

	stored := make([]models.FinancialReport, 0, len(inputs))
	for _, in := range inputs {
		rep, err := s.upsertReport(ctx, profile, symbol, in)
		if err != nil {
			s.log.Error().Err(err).
				Str("symbol", symbol).
				Str("report_type", in.ReportType).
				Time("period_end", in.PeriodEnd).
				Msg("failed to store financial report")
			continue
		}
		stored = append(stored, *rep)
	}
	s.log.Info().Str("symbol", symbol).Str("timeframe", timeframe).Int("stored", len(stored)).Msg("financial reports upserted")
	return stored, nil
}

// reportsFromFiling splits one filing into one input per non-empty statement
func reportsFromFiling(symbol string, f polygon.Filing) ([]ReportInput, error) {
	end, err := time.Parse("2006-01-02", f.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date %q: %w", f.EndDate, err)
	}
	timeframe := strings.ToLower(f.Timeframe)
	if !models.ValidTimeframe(timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q", f.Timeframe)
	}

	base := ReportInput{
		Symbol:              symbol,
		Timeframe:           timeframe,
		PeriodEnd:           end,
		FiscalPeriod:        f.FiscalPeriod,
		SourceFilingURL:     f.SourceFilingURL,
		SourceFilingFileURL: f.SourceFilingFileURL,
	}
	if t, err := time.Parse("2006-01-02", f.StartDate); err == nil {
		base.StartDate = &t
	}
	if t, err := time.Parse("2006-01-02", f.FilingDate); err == nil {
		base.FilingDate = &t
	}
	if y, err := strconv.Atoi(f.FiscalYear); err == nil {
		base.FiscalYear = &y
	}

	statements := []struct {
		reportType string
		stmt       polygon.Statement
	}{
		{models.ReportIncomeStatement, f.Financials.IncomeStatement},
		{models.ReportBalanceSheet, f.Financials.BalanceSheet},
		{models.ReportCashFlow, f.Financials.CashFlowStatement},
	}
	var out []ReportInput
	for _, st := range statements {
		if len(st.stmt) == 0 {
			continue
		}
		in := base
		in.ReportType = st.reportType
		in.Data = make(map[string]any, len(st.stmt))
		for k, dp := range st.stmt {
			in.Data[k] = dp.Value
		}
		out = append(out, in)
	}
	return out, nil
}

// ListReports returns stored reports, newest period first
func (s *Service) ListReports(ctx context.Context, symbol, reportType, timeframe string, limit int) ([]models.FinancialReport, error) {
	const op = "fundamentals.ListReports"
	symbol, err := normalizeSymbol(op, symbol)
	if err != nil {
		return nil, err
	}
	if reportType != "" && !models.ValidReportType(reportType) {
		return nil, apperrors.Validation(op, "report_type", "unknown report type")
	}
	if timeframe != "" && !models.ValidTimeframe(timeframe) {
		return nil, apperrors.Validation(op, "timeframe", "unknown timeframe")
	}
	if limit <= 0 {
		limit = 5
	}
	return s.repo.ListReports(ctx, fundrepo.ReportQuery{Symbol: symbol, ReportType: reportType, Timeframe: timeframe, Limit: limit})
}

// ListKeyRatios returns stored ratio sets, newest first
func (s *Service) ListKeyRatios(ctx context.Context, symbol string, since *time.Time, limit int) ([]models.KeyRatioSet, error) {
	symbol, err := normalizeSymbol("fundamentals.ListKeyRatios", symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	return s.repo.ListKeyRatios(ctx, symbol, since, limit)
}

// resolveRatioDate picks the period end of the latest annual income
// statement, then the latest quarterly one, then today
func (s *Service) resolveRatioDate(ctx context.Context, symbol string) (time.Time, error) {
	for _, tf := range []string{models.TimeframeAnnual, models.TimeframeQuarterly} {
		rep, err := s.repo.LatestReport(ctx, fundrepo.ReportQuery{
			Symbol:     symbol,
			ReportType: models.ReportIncomeStatement,
			Timeframe:  tf,
		})
		if err == nil {
			return truncateDate(rep.PeriodOfReportDate), nil
		}
		if !apperrors.Is(err, apperrors.KindNotFound) {
			return time.Time{}, err
		}
	}
	return truncateDate(s.now()), nil
}

// statementAsOf returns the newest statement of reportType ending on or
// before date, preferring annual over quarterly. Nil when none exists.
func (s *Service) statementAsOf(ctx context.Context, symbol, reportType string, date time.Time) (*models.FinancialReport, error) {
	for _, tf := range []string{models.TimeframeAnnual, models.TimeframeQuarterly} {
		rep, err := s.repo.LatestReport(ctx, fundrepo.ReportQuery{
			Symbol:     symbol,
			ReportType: reportType,
			Timeframe:  tf,
			OnOrBefore: &date,
		})
		if err == nil {
			return rep, nil
		}
		if !apperrors.Is(err, apperrors.KindNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// GetOrCalculateAndStoreKeyRatios returns the ratio set for symbol on asOf
// (resolved from the stored reports when nil). A stored set younger than the
// staleness threshold is returned as is; otherwise the ratios are recomputed
// from the statements and the current price and upserted.
func (s *Service) GetOrCalculateAndStoreKeyRatios(ctx context.Context, symbol string, asOf *time.Time) (*models.KeyRatioSet, error) {
	const op = "fundamentals.GetOrCalculateAndStoreKeyRatios"
	symbol, err := normalizeSymbol(op, symbol)
	if err != nil {
		return nil, err
	}

	profile, err := s.ensureProfile(ctx, op, symbol)
	if err != nil {
		return nil, err
	}

	var date time.Time
	if asOf != nil {
		date = truncateDate(*asOf)
	} else if date, err = s.resolveRatioDate(ctx, symbol); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetKeyRatios(ctx, symbol, date)
	switch {
	case err == nil:
		if s.now().Sub(existing.LastRefreshed) < s.cfg.RatioStaleness {
			s.log.Debug().Str("symbol", symbol).Time("date", date).Msg("reusing stored key ratios")
			return existing, nil
		}
	case !apperrors.Is(err, apperrors.KindNotFound):
		return nil, err
	}

	income, err := s.statementAsOf(ctx, symbol, models.ReportIncomeStatement, date)
	if err != nil {
		return nil, err
	}
	balance, err := s.statementAsOf(ctx, symbol, models.ReportBalanceSheet, date)
	if err != nil {
		return nil, err
	}

	in := RatioInputs{SharesOutstanding: profile.SharesOutstanding}
	set := &models.KeyRatioSet{
		CompanyProfileID: profile.ID,
		Symbol:           symbol,
		Date:             date,
	}
	if income != nil {
		in.Income = income.Items()
		set.PeriodType = income.Timeframe
	}
	if balance != nil {
		in.Balance = balance.Items()
		if set.PeriodType == "" {
			set.PeriodType = balance.Timeframe
		}
	}
	if s.prices != nil {
		price, err := s.prices.LatestPrice(ctx, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("price unavailable, valuation ratios left empty")
		} else {
			in.Price = &price
		}
	}
	set.PriceUsed = in.Price

	ComputeRatios(in).Apply(set)
	set.LastRefreshed = s.now().UTC()
	if err := s.repo.UpsertKeyRatios(ctx, set); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("symbol", symbol).
		Time("date", date).
		Str("period_type", set.PeriodType).
		Bool("has_income", income != nil).
		Bool("has_balance", balance != nil).
		Msg("key ratios calculated")
	return set, nil
}
