// Package fundamentals persists company profiles, financial reports and
// derived key ratio sets.
package fundamentals

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vuoksi-trader/database"
	models "vuoksi-trader/database/models_pkg"
)

// Repository handles database operations for fundamentals data
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new fundamentals repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetProfile retrieves a company profile by symbol
func (r *Repository) GetProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	var p models.CompanyProfile
	err := r.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(symbol)).First(&p).Error
	if err != nil {
		return nil, database.WrapDBError("GetProfile", err)
	}
	return &p, nil
}

// UpsertProfile inserts the profile or replaces the existing row for its symbol.
// On return p.ID is the stored row id.
func (r *Repository) UpsertProfile(ctx context.Context, p *models.CompanyProfile) error {
	p.Symbol = strings.ToUpper(p.Symbol)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "cik", "sector", "industry", "description", "country", "exchange",
			"currency", "market_cap", "shares_outstanding", "phone", "url", "logo_url",
			"list_date", "last_refreshed",
		}),
	}).Create(p).Error
	if err != nil {
		return database.WrapDBError("UpsertProfile", err)
	}
	return nil
}

// UpsertReport inserts the report or, for an existing
// (company_profile_id, report_type, timeframe, period_of_report_date),
// replaces its data, filing metadata and last_refreshed.
func (r *Repository) UpsertReport(ctx context.Context, rep *models.FinancialReport) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "company_profile_id"},
			{Name: "report_type"},
			{Name: "timeframe"},
			{Name: "period_of_report_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol", "start_date", "fiscal_year", "fiscal_period", "filing_date", "data",
			"source_filing_url", "source_filing_file_url", "last_refreshed",
		}),
	}).Create(rep).Error
	if err != nil {
		return database.WrapDBError("UpsertReport", err)
	}
	return nil
}

// ReportQuery narrows ListReports / LatestReport
type ReportQuery struct {
	Symbol     string
	ReportType string
	Timeframe  string
	OnOrBefore *time.Time
	Limit      int
}

func (r *Repository) reportScope(ctx context.Context, q ReportQuery) *gorm.DB {
	query := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(q.Symbol)).
		Order("period_of_report_date DESC")
	if q.ReportType != "" {
		query = query.Where("report_type = ?", q.ReportType)
	}
	if q.Timeframe != "" {
		query = query.Where("timeframe = ?", q.Timeframe)
	}
	if q.OnOrBefore != nil {
		query = query.Where("period_of_report_date <= ?", *q.OnOrBefore)
	}
	return query
}

// ListReports retrieves reports newest period first
func (r *Repository) ListReports(ctx context.Context, q ReportQuery) ([]models.FinancialReport, error) {
	var out []models.FinancialReport
	query := r.reportScope(ctx, q)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, database.WrapDBError("ListReports", err)
	}
	return out, nil
}

// LatestReport retrieves the newest report matching q
func (r *Repository) LatestReport(ctx context.Context, q ReportQuery) (*models.FinancialReport, error) {
	var rep models.FinancialReport
	if err := r.reportScope(ctx, q).First(&rep).Error; err != nil {
		return nil, database.WrapDBError("LatestReport", err)
	}
	return &rep, nil
}

// GetKeyRatios retrieves the ratio set stored for symbol on date
func (r *Repository) GetKeyRatios(ctx context.Context, symbol string, date time.Time) (*models.KeyRatioSet, error) {
	var set models.KeyRatioSet
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date = ?", strings.ToUpper(symbol), date).
		First(&set).Error
	if err != nil {
		return nil, database.WrapDBError("GetKeyRatios", err)
	}
	return &set, nil
}

// UpsertKeyRatios inserts or replaces the ratio set for (symbol, date)
func (r *Repository) UpsertKeyRatios(ctx context.Context, set *models.KeyRatioSet) error {
	set.Symbol = strings.ToUpper(set.Symbol)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"company_profile_id", "period_type", "price_used",
			"price_to_earnings_ratio", "price_to_sales_ratio", "price_to_book_ratio",
			"earnings_per_share", "return_on_equity", "debt_to_equity_ratio",
			"current_ratio", "quick_ratio", "gross_profit_margin",
			"operating_profit_margin", "net_profit_margin", "last_refreshed",
		}),
	}).Create(set).Error
	if err != nil {
		return database.WrapDBError("UpsertKeyRatios", err)
	}
	return nil
}

// ListKeyRatios retrieves ratio sets newest first, optionally from a date on
func (r *Repository) ListKeyRatios(ctx context.Context, symbol string, since *time.Time, limit int) ([]models.KeyRatioSet, error) {
	var out []models.KeyRatioSet
	query := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		Order("date DESC")
	if since != nil {
		query = query.Where("date >= ?", *since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, database.WrapDBError("ListKeyRatios", err)
	}
	return out, nil
}
