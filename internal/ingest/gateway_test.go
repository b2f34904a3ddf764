package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/database"
	"options-anomaly-trader/internal/models"
	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/outlierfile"
	"options-anomaly-trader/internal/snapshot"
)

var runTime = time.Date(2025, 10, 2, 15, 45, 0, 0, time.UTC)

// setupTest creates a gateway over a temporary sqlite database and data root.
func setupTest(t *testing.T) (*Gateway, *gorm.DB, *clock.Mock) {
	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Data.Timezone = "UTC"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "ingest.db")

	db, err := database.NewDatabase(&cfg, zap.NewNop())
	require.NoError(t, err)

	clk := clock.NewMock(runTime)
	g, err := NewGateway(db, &cfg, clk, zap.NewNop())
	require.NoError(t, err)
	return g, db, clk
}

func volumeEvents(contracts ...string) []outlier.Event {
	events := make([]outlier.Event, 0, len(contracts))
	for _, c := range contracts {
		events = append(events, outlier.Event{
			ContractSymbol: c,
			Symbol:         "AAPL",
			Strike:         200,
			OptionType:     snapshot.Call,
			Expiry:         "2025-10-17",
			Old:            3000,
			New:            4200,
			ChangePct:      0.4,
			Amount:         462000.456,
			LastPriceNew:   1.1,
			Descriptor:     outlier.VolumeCallBuyBullish,
		})
	}
	return events
}

func writeAudit(t *testing.T, g *Gateway, folder string, cat snapshot.Category, events []outlier.Event) string {
	path, err := outlierfile.Write(g.Dir(folder, cat), cat, time.Date(2025, 10, 2, 15, 43, 0, 0, time.UTC), events)
	require.NoError(t, err)
	return path
}

func ledger(t *testing.T, db *gorm.DB) []models.ProcessedFile {
	var recs []models.ProcessedFile
	require.NoError(t, db.Order("id").Find(&recs).Error)
	return recs
}

func TestProcessLatest_DedupSkip(t *testing.T) {
	// Arrange
	g, db, clk := setupTest(t)
	writeAudit(t, g, "data", snapshot.Volume, volumeEvents("C1", "C2", "C3"))

	// Act
	first := g.ProcessLatest(context.Background(), "data", snapshot.Volume)
	clk.Advance(time.Minute)
	second := g.ProcessLatest(context.Background(), "data", snapshot.Volume)

	// Assert
	require.NoError(t, first.Err)
	assert.Equal(t, models.FileSuccess, first.Status)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, 0, second.Inserted)

	var count int64
	require.NoError(t, db.Model(&models.VolumeOutlier{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	recs := ledger(t, db)
	require.Len(t, recs, 1)
	assert.Equal(t, "volume_outlier_20251002-1543.csv", recs[0].FileName)
	assert.Equal(t, "data", recs[0].FolderName)
	assert.Equal(t, 3, recs[0].RowCount)
	assert.Positive(t, recs[0].FileSize)
}

func TestProcessLatest_RoundsValues(t *testing.T) {
	g, db, _ := setupTest(t)
	events := volumeEvents("C1")
	events[0].AmountToMarketCap = 0.0000462345
	writeAudit(t, g, "data", snapshot.Volume, events)

	res := g.ProcessLatest(context.Background(), "data", snapshot.Volume)
	require.NoError(t, res.Err)

	var row models.VolumeOutlier
	require.NoError(t, db.First(&row).Error)
	assert.InDelta(t, 462000.46, row.AmountThreshold, 1e-9)
	assert.InDelta(t, 0.000046, row.AmountToMarketCap, 1e-12)
	assert.Equal(t, "buy call, bullish", row.SignalType)
	assert.Equal(t, "<=5M", row.AmountTier)
	assert.True(t, row.CreateTime.Equal(runTime))
}

func TestProcessLatest_DuplicateKeyIsSkipped(t *testing.T) {
	g, db, _ := setupTest(t)
	writeAudit(t, g, "data", snapshot.Volume, volumeEvents("C1", "C1", "C2"))

	res := g.ProcessLatest(context.Background(), "data", snapshot.Volume)

	require.NoError(t, res.Err)
	assert.Equal(t, models.FileSuccess, res.Status)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, ledger(t, db)[0].RowCount)
}

func TestProcessLatest_Partial(t *testing.T) {
	g, db, _ := setupTest(t)
	path := writeAudit(t, g, "data", snapshot.Volume, volumeEvents("C1", "C2"))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("C3,abc,\"buy call, bullish\",CALL,1,2,,3,,,,,,,,,AAPL,,,,,,,,\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res := g.ProcessLatest(context.Background(), "data", snapshot.Volume)

	require.NoError(t, res.Err)
	assert.Equal(t, models.FilePartial, res.Status)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Malformed)
	recs := ledger(t, db)
	require.Len(t, recs, 1)
	assert.Equal(t, models.FilePartial, recs[0].Status)
	assert.Equal(t, 2, recs[0].RowCount)

	again := g.ProcessLatest(context.Background(), "data", snapshot.Volume)
	assert.Equal(t, StatusSkipped, again.Status)
}

func TestProcessLatest_AllMalformedThenRetry(t *testing.T) {
	g, db, _ := setupTest(t)
	dir := g.Dir("data", snapshot.OpenInterest)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "oi_outlier_20251002-1543.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"contractSymbol,strike,oiChange,signalType,optionType,openInterestNew,openInterestOld,amountThreshold,symbol\n"+
			"A1,10,500,\"nonsense\",CALL,1500,1000,2500000,A\n"), 0o644))

	res := g.ProcessLatest(context.Background(), "data", snapshot.OpenInterest)

	assert.Equal(t, models.FileFailed, res.Status)
	assert.Error(t, res.Err)
	recs := ledger(t, db)
	require.Len(t, recs, 1)
	assert.Equal(t, models.FileFailed, recs[0].Status)
	assert.NotEmpty(t, recs[0].Error)

	// A fixed file is retried and replaces the failed ledger entry.
	require.NoError(t, os.WriteFile(path, []byte(
		"contractSymbol,strike,oiChange,signalType,optionType,openInterestNew,openInterestOld,amountThreshold,symbol\n"+
			"A1,10,500,\"long buys call, bullish\",CALL,1500,1000,2500000,A\n"), 0o644))

	retry := g.ProcessLatest(context.Background(), "data", snapshot.OpenInterest)

	require.NoError(t, retry.Err)
	assert.Equal(t, models.FileSuccess, retry.Status)
	recs = ledger(t, db)
	require.Len(t, recs, 1)
	assert.Equal(t, models.FileSuccess, recs[0].Status)
	assert.Equal(t, 1, recs[0].RowCount)
	assert.Empty(t, recs[0].Error)
}

func TestProcessLatest_PersistenceFailureRollsBack(t *testing.T) {
	g, db, _ := setupTest(t)
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_outliers", func(tx *gorm.DB) {
		if tx.Statement.Table == "volume_outliers" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
	writeAudit(t, g, "data", snapshot.Volume, volumeEvents("C1", "C2"))

	res := g.ProcessLatest(context.Background(), "data", snapshot.Volume)

	assert.Equal(t, models.FileFailed, res.Status)
	var perr *PersistenceError
	require.True(t, errors.As(res.Err, &perr))
	assert.Equal(t, "data", perr.Folder)

	var count int64
	require.NoError(t, db.Model(&models.VolumeOutlier{}).Count(&count).Error)
	assert.Zero(t, count)
	recs := ledger(t, db)
	require.Len(t, recs, 1)
	assert.Equal(t, models.FileFailed, recs[0].Status)
}

func TestProcessFolder(t *testing.T) {
	g, db, _ := setupTest(t)
	writeAudit(t, g, "data", snapshot.Volume, volumeEvents("C1"))
	oi := volumeEvents("C9")
	oi[0].Descriptor = outlier.OICallLongBuy
	oi[0].Change = 500
	writeAudit(t, g, "priority_data", snapshot.OpenInterest, oi)

	data, err := g.ProcessFolder(context.Background(), "data")
	require.NoError(t, err)
	priority, err := g.ProcessFolder(context.Background(), "priority_data")
	require.NoError(t, err)

	require.Len(t, data, 2)
	assert.Equal(t, models.FileSuccess, data[0].Status)
	assert.Equal(t, StatusNone, data[1].Status)
	assert.Equal(t, StatusNone, priority[0].Status)
	assert.Equal(t, models.FileSuccess, priority[1].Status)

	var row models.OIOutlier
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "priority_data", row.FolderName)
	assert.Equal(t, 500.0, row.OIChange)
	assert.Len(t, ledger(t, db), 2)
}

func TestCleanup(t *testing.T) {
	g, db, clk := setupTest(t)
	writeAudit(t, g, "data", snapshot.Volume, volumeEvents("C1", "C2"))
	require.NoError(t, g.ProcessLatest(context.Background(), "data", snapshot.Volume).Err)

	clk.Advance(10 * 24 * time.Hour)

	res, err := g.Cleanup(context.Background(), 30, false)
	require.NoError(t, err)
	assert.Zero(t, res.Volume)

	res, err = g.Cleanup(context.Background(), 7, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Volume)

	res, err = g.Cleanup(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Volume)

	var count int64
	require.NoError(t, db.Model(&models.VolumeOutlier{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Len(t, ledger(t, db), 1)
}

func TestRound(t *testing.T) {
	testCases := []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{1, 1},
		{123.456, 123.46},
		{-2.345678, -2.35},
		{0.123456, 0.12},
		{0.0000462345, 0.000046},
		{-0.0061, -0.0061},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.expected, Round(tc.in), 1e-12, "Round(%v)", tc.in)
	}
}
