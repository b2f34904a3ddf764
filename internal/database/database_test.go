package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "test.db")
	return &cfg
}

func TestNewDatabase_SeedsAccountOnce(t *testing.T) {
	cfg := testConfig(t)
	db, err := NewDatabase(cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", models.AccountID).
		Update("cash", decimal.NewFromInt(1234)).Error)

	// A second migration must not reset the account.
	require.NoError(t, AutoMigrate(db, cfg))

	var accounts []models.Account
	require.NoError(t, db.Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].Cash.Equal(decimal.NewFromInt(1234)))
	assert.True(t, accounts[0].TotalValue.Equal(decimal.NewFromInt(100000)))
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	_, err := NewDatabase(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestTransaction_OneHoldingPerSymbol(t *testing.T) {
	db, err := NewDatabase(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	now := time.Now()
	price := decimal.NewFromInt(10)
	open := func(holding bool) error {
		return db.Create(&models.Transaction{
			Symbol: "AAPL", BuyPrice: price, CurrentPrice: price, Shares: 1,
			Amount: price, Gain: decimal.Zero, IsHolding: holding, BuyDate: now,
		}).Error
	}

	require.NoError(t, open(false))
	require.NoError(t, open(false))
	require.NoError(t, open(true))
	assert.Error(t, open(true))

	var holding int64
	require.NoError(t, db.Model(&models.Transaction{}).Where("symbol = ? AND is_holding = ?", "AAPL", true).Count(&holding).Error)
	assert.Equal(t, int64(1), holding)
}

func TestProcessedFile_UniquePerFolder(t *testing.T) {
	db, err := NewDatabase(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	rec := func(folder string) *models.ProcessedFile {
		return &models.ProcessedFile{FolderName: folder, FileName: "volume_outlier_20251002-1543.csv",
			FileType: "volume", ProcessedTime: time.Now(), Status: models.FileSuccess}
	}
	require.NoError(t, db.Create(rec("data")).Error)
	require.NoError(t, db.Create(rec("priority_data")).Error)
	assert.Error(t, db.Create(rec("data")).Error)
}
