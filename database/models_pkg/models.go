package models

import (
	"time"

	"gorm.io/datatypes"
)

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Financial statement types
const (
	ReportIncomeStatement = "income_statement"
	ReportBalanceSheet    = "balance_sheet"
	ReportCashFlow        = "cash_flow_statement"
)

// Reporting timeframes
const (
	TimeframeAnnual    = "annual"
	TimeframeQuarterly = "quarterly"
	TimeframeTTM       = "ttm"
)

// ValidReportType reports whether t is a known statement type
func ValidReportType(t string) bool {
	switch t {
	case ReportIncomeStatement, ReportBalanceSheet, ReportCashFlow:
		return true
	}
	return false
}

// ValidTimeframe reports whether tf is a known reporting timeframe
func ValidTimeframe(tf string) bool {
	switch tf {
	case TimeframeAnnual, TimeframeQuarterly, TimeframeTTM:
		return true
	}
	return false
}

// TradeRecord is the local log of one order accepted by the brokerage.
// Records are append-only and created only after the broker accepted the order.
//
// Key Fields:
//   - Price: last quote at decision time, not the fill price
//   - OrderID: broker order id
//   - ClientOrderID: id we generated for the submission, used for reconciliation
type TradeRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"index;not null" json:"user_id"`
	Symbol         string    `gorm:"size:16;index;not null" json:"symbol"`
	Side           string    `gorm:"size:4;not null" json:"side"`
	Quantity       float64   `gorm:"type:decimal(20,9);not null" json:"quantity"`
	Price          float64   `gorm:"type:decimal(15,4);not null" json:"price"`
	PredictedPrice float64   `gorm:"type:decimal(15,4)" json:"predicted_price"`
	Confidence     float64   `gorm:"type:decimal(5,4)" json:"confidence"`
	ModelUsed      string    `gorm:"size:32" json:"model_used"`
	OrderID        string    `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	ClientOrderID  string    `gorm:"size:64;index" json:"client_order_id"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName specifies the table name for TradeRecord
func (TradeRecord) TableName() string {
	return "trade_records"
}

// CompanyProfile is the parent of a symbol's reports and ratio sets.
// One row per symbol, refreshed by upsert.
type CompanyProfile struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol            string     `gorm:"size:16;uniqueIndex;not null" json:"symbol"`
	Name              string     `json:"name,omitempty"`
	CIK               string     `gorm:"column:cik;size:16" json:"cik,omitempty"`
	Sector            string     `json:"sector,omitempty"`
	Industry          string     `json:"industry,omitempty"`
	Description       string     `gorm:"type:text" json:"description,omitempty"`
	Country           string     `gorm:"size:64" json:"country,omitempty"`
	Exchange          string     `gorm:"size:16" json:"exchange,omitempty"`
	Currency          string     `gorm:"size:8" json:"currency,omitempty"`
	MarketCap         *float64   `gorm:"type:decimal(24,2)" json:"market_cap,omitempty"`
	SharesOutstanding *float64   `gorm:"type:decimal(24,2)" json:"shares_outstanding,omitempty"`
	Phone             string     `gorm:"size:32" json:"phone,omitempty"`
	URL               string     `json:"url,omitempty"`
	LogoURL           string     `json:"logo_url,omitempty"`
	ListDate          *time.Time `gorm:"type:date" json:"list_date,omitempty"`
	LastRefreshed     time.Time  `gorm:"not null" json:"last_refreshed"`
}

// TableName specifies the table name for CompanyProfile
func (CompanyProfile) TableName() string {
	return "company_profiles"
}

// LineItems holds raw statement line items keyed by source field name
type LineItems map[string]float64

// FinancialReport holds one statement of one filing period.
// At most one row exists per (company_profile_id, report_type, timeframe,
// period_of_report_date); an upsert replaces Data and the filing metadata.
type FinancialReport struct {
	ID                  int64                         `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyProfileID    int64                         `gorm:"not null;uniqueIndex:idx_financial_reports_period,priority:1" json:"company_profile_id"`
	Symbol              string                        `gorm:"size:16;index;not null" json:"symbol"`
	ReportType          string                        `gorm:"size:32;not null;uniqueIndex:idx_financial_reports_period,priority:2" json:"report_type"`
	Timeframe           string                        `gorm:"size:16;not null;uniqueIndex:idx_financial_reports_period,priority:3" json:"timeframe"`
	PeriodOfReportDate  time.Time                     `gorm:"type:date;not null;uniqueIndex:idx_financial_reports_period,priority:4" json:"period_of_report_date"`
	StartDate           *time.Time                    `gorm:"type:date" json:"start_date,omitempty"`
	FiscalYear          *int                          `json:"fiscal_year,omitempty"`
	FiscalPeriod        string                        `gorm:"size:8" json:"fiscal_period,omitempty"`
	FilingDate          *time.Time                    `gorm:"type:date" json:"filing_date,omitempty"`
	Data                datatypes.JSONType[LineItems] `gorm:"type:jsonb;not null" json:"data"`
	SourceFilingURL     string                        `json:"source_filing_url,omitempty"`
	SourceFilingFileURL string                        `json:"source_filing_file_url,omitempty"`
	LastRefreshed       time.Time                     `gorm:"not null" json:"last_refreshed"`
}

// TableName specifies the table name for FinancialReport
func (FinancialReport) TableName() string {
	return "financial_reports"
}

// Items returns the report line items
func (r *FinancialReport) Items() LineItems {
	return r.Data.Data()
}

// KeyRatioSet holds ratios derived from reports and a price for one date.
// Nil fields could not be derived from the available inputs.
type KeyRatioSet struct {
	ID                    int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyProfileID      int64     `gorm:"index;not null" json:"company_profile_id"`
	Symbol                string    `gorm:"size:16;not null;uniqueIndex:idx_key_ratio_sets_symbol_date,priority:1" json:"symbol"`
	Date                  time.Time `gorm:"type:date;not null;uniqueIndex:idx_key_ratio_sets_symbol_date,priority:2" json:"date"`
	PeriodType            string    `gorm:"size:16" json:"period_type,omitempty"`
	PriceUsed             *float64  `gorm:"type:decimal(15,4)" json:"price_used,omitempty"`
	PriceToEarningsRatio  *float64  `json:"price_to_earnings_ratio"`
	PriceToSalesRatio     *float64  `json:"price_to_sales_ratio"`
	PriceToBookRatio      *float64  `json:"price_to_book_ratio"`
	EarningsPerShare      *float64  `json:"earnings_per_share"`
	ReturnOnEquity        *float64  `json:"return_on_equity"`
	DebtToEquityRatio     *float64  `json:"debt_to_equity_ratio"`
	CurrentRatio          *float64  `json:"current_ratio"`
	QuickRatio            *float64  `json:"quick_ratio"`
	GrossProfitMargin     *float64  `json:"gross_profit_margin"`
	OperatingProfitMargin *float64  `json:"operating_profit_margin"`
	NetProfitMargin       *float64  `json:"net_profit_margin"`
	LastRefreshed         time.Time `gorm:"not null" json:"last_refreshed"`
}

// TableName specifies the table name for KeyRatioSet
func (KeyRatioSet) TableName() string {
	return "key_ratio_sets"
}
