package trades

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vuoksi-trader/database"
	models "vuoksi-trader/database/models_pkg"
)

// Repository handles database operations for trade records
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new trades repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTrade appends a trade record. Records are never updated.
func (r *Repository) CreateTrade(ctx context.Context, trade *models.TradeRecord) error {
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		return database.WrapDBError("CreateTrade", err)
	}
	return nil
}

// ListFilter narrows ListTrades
type ListFilter struct {
	UserID int64
	Symbol string
	Since  time.Time
	Limit  int
	Offset int
}

// ListTrades retrieves a user's trades, newest first
func (r *Repository) ListTrades(ctx context.Context, f ListFilter) ([]models.TradeRecord, error) {
	var out []models.TradeRecord
	query := r.db.WithContext(ctx).
		Where("user_id = ?", f.UserID).
		Order("timestamp DESC")

	if f.Symbol != "" {
		query = query.Where("symbol = ?", f.Symbol)
	}
	if !f.Since.IsZero() {
		query = query.Where("timestamp >= ?", f.Since)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, database.WrapDBError("ListTrades", err)
	}
	return out, nil
}

// GetByOrderID retrieves the record written for a broker order
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*models.TradeRecord, error) {
	var rec models.TradeRecord
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&rec).Error; err != nil {
		return nil, database.WrapDBError("GetByOrderID", err)
	}
	return &rec, nil
}
