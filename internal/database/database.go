package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/models"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		// sqlite allows a single writer; queue everything on one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := AutoMigrate(db, cfg); err != nil {
		return nil, err
	}
	logger.Info("database ready",
		zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// AutoMigrate creates or updates tables and seeds the account on first use.
// Existing rows are kept: the ledger and portfolio must survive restarts.
func AutoMigrate(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.ProcessedFile{},
		&models.VolumeOutlier{},
		&models.OIOutlier{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	var account models.Account
	err := db.First(&account, models.AccountID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load account: %w", err)
	}
	cash := decimal.NewFromFloat(cfg.Trading.InitialCash)
	account = models.Account{
		ID:         models.AccountID,
		Cash:       cash,
		StockValue: decimal.Zero,
		TotalValue: cash,
	}
	if err := db.Create(&account).Error; err != nil {
		return fmt.Errorf("failed to seed account: %w", err)
	}
	return nil
}
