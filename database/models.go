// Package database provides PostgreSQL connection management and schema
// setup for the trading and fundamentals stores.
//
// This package includes:
//   - Connection management using database/sql + lib/pq wrapped by GORM
//   - Schema initialization (AutoMigrate) for all persisted models
//   - Error classification into the apperrors taxonomy
//
// Data Models:
//
//	All data models are defined in the models_pkg package; repositories live
//	in the trades and fundamentals subpackages.
package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/logging"
)

// Database holds the GORM database connection
type Database struct {
	db  *gorm.DB
	log *logging.Logger
}

// New wraps an already opened gorm connection
func New(db *gorm.DB, logger *logging.Logger) *Database {
	return &Database{db: db, log: logger.Component("database")}
}

// DB returns the underlying GORM database instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// InitSchema creates or updates the tables for all persisted models
func (d *Database) InitSchema() error {
	d.log.Info().Msg("starting database schema initialization")

	err := d.db.AutoMigrate(
		&models.TradeRecord{},
		&models.CompanyProfile{},
		&models.FinancialReport{},
		&models.KeyRatioSet{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	d.log.Info().Msg("database schema initialization completed")
	return nil
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.log.Info().Msg("closing database connection")
	return sqlDB.Close()
}
