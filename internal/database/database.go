package database

import (
	"fmt"

	"vwap-options-bot/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all persisted records.
// Positions, trades, signals and daily P&L survive restarts; nothing is
// dropped here, the ledger reconciles any still-OPEN position on startup.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Position{},
		&models.Trade{},
		&models.Signal{},
		&models.DailyPnL{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
