// Package ingest persists outlier audit files into the outlier tables behind
// a ledger of processed files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/models"
	"options-anomaly-trader/internal/outlierfile"
	"options-anomaly-trader/internal/snapshot"
)

// StatusSkipped marks a file that is already in the ledger.
const StatusSkipped = "skipped"

// StatusNone marks a category with no outlier file to process.
const StatusNone = "none"

const batchSize = 200

// Result is the outcome of processing one file.
type Result struct {
	Folder    string
	Category  snapshot.Category
	File      string
	Status    string
	Inserted  int
	Malformed int
	Err       error
}

// Gateway writes outlier files to storage, at most once per successful file.
type Gateway struct {
	db           *gorm.DB
	data         config.Data
	writeTimeout time.Duration
	loc          *time.Location
	clock        clock.Clock
	validate     *validator.Validate
	logger       *zap.Logger
}

// NewGateway creates a new persistence gateway
func NewGateway(db *gorm.DB, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*Gateway, error) {
	loc, err := cfg.Data.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &Gateway{
		db:           db,
		data:         cfg.Data,
		writeTimeout: cfg.Database.WriteTimeout,
		loc:          loc,
		clock:        clk,
		validate:     validator.New(),
		logger:       logger.Named("ingest"),
	}, nil
}

// Dir returns the outlier file directory of cat within folder.
func (g *Gateway) Dir(folder string, cat snapshot.Category) string {
	sub := g.data.OIOutlierDir
	if cat == snapshot.Volume {
		sub = g.data.VolumeOutlierDir
	}
	return filepath.Join(g.data.Root, folder, sub)
}

// ProcessFolder ingests the newest outlier file of each category in folder.
// The categories run concurrently. An error is returned only when storage is
// unreachable; per-file failures are reported on the results.
func (g *Gateway) ProcessFolder(ctx context.Context, folder string) ([]Result, error) {
	if err := g.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("storage unavailable: %w", err)
	}

	cats := []snapshot.Category{snapshot.Volume, snapshot.OpenInterest}
	results := make([]Result, len(cats))
	var wg sync.WaitGroup
	for i, cat := range cats {
		wg.Add(1)
		go func(i int, cat snapshot.Category) {
			defer wg.Done()
			results[i] = g.ProcessLatest(ctx, folder, cat)
		}(i, cat)
	}
	wg.Wait()
	return results, nil
}

// ProcessLatest ingests the newest outlier file of cat in folder.
func (g *Gateway) ProcessLatest(ctx context.Context, folder string, cat snapshot.Category) Result {
	files, err := outlierfile.List(g.Dir(folder, cat), cat, g.loc)
	if err != nil {
		return Result{Folder: folder, Category: cat, Status: models.FileFailed, Err: err}
	}
	if len(files) == 0 {
		g.logger.Debug("no outlier file", zap.String("folder", folder), zap.String("category", string(cat)))
		return Result{Folder: folder, Category: cat, Status: StatusNone}
	}
	return g.ProcessFile(ctx, folder, cat, files[0])
}

// ProcessFile ingests one outlier file. A file already recorded as success
// or partial is skipped; a failed one is retried.
func (g *Gateway) ProcessFile(ctx context.Context, folder string, cat snapshot.Category, f snapshot.File) Result {
	l := g.logger.With(zap.String("folder", folder), zap.String("file", f.Name))
	res := Result{Folder: folder, Category: cat, File: f.Name}

	var prior models.ProcessedFile
	err := g.db.WithContext(ctx).
		Where("folder_name = ? AND file_name = ?", folder, f.Name).
		First(&prior).Error
	switch {
	case err == nil && prior.Status != models.FileFailed:
		l.Info("file already processed", zap.String("status", prior.Status))
		res.Status = StatusSkipped
		return res
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		res.Status = models.FileFailed
		res.Err = &PersistenceError{Folder: folder, File: f.Name, Err: err}
		return res
	}

	ledger := models.ProcessedFile{
		FolderName: folder,
		FileName:   f.Name,
		FileType:   string(cat),
		FileSize:   f.Size,
	}

	events, skipped, err := outlierfile.Read(f.Path, cat)
	res.Malformed = len(skipped)
	if err == nil && len(events) == 0 && len(skipped) > 0 {
		err = fmt.Errorf("all %d rows malformed: %w", len(skipped), skipped[0])
	}
	if err != nil {
		l.Error("failed to read outlier file", zap.Error(err))
		res.Status = models.FileFailed
		res.Err = err
		g.markFailed(ctx, ledger, err, l)
		return res
	}

	created := g.clock.Now()
	status := models.FileSuccess
	if len(skipped) > 0 {
		status = models.FilePartial
	}

	wctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	var inserted int64
	err = g.db.WithContext(wctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cat == snapshot.Volume {
			rows := make([]models.VolumeOutlier, 0, len(events))
			for _, ev := range events {
				rows = append(rows, volumeRow(folder, created, ev))
			}
			inserted, err = insertIgnore(tx, rows)
		} else {
			rows := make([]models.OIOutlier, 0, len(events))
			for _, ev := range events {
				rows = append(rows, oiRow(folder, created, ev))
			}
			inserted, err = insertIgnore(tx, rows)
		}
		if err != nil {
			return err
		}
		ledger.Status = status
		ledger.RowCount = int(inserted)
		ledger.ProcessedTime = created
		return g.saveLedger(tx, ledger)
	})
	if err != nil {
		perr := &PersistenceError{Folder: folder, File: f.Name, Err: err}
		l.Error("failed to persist outliers", zap.Error(perr))
		res.Status = models.FileFailed
		res.Err = perr
		g.markFailed(ctx, ledger, perr, l)
		return res
	}

	res.Status = status
	res.Inserted = int(inserted)
	l.Info("outliers persisted",
		zap.String("status", status),
		zap.Int("inserted", res.Inserted),
		zap.Int("malformed", res.Malformed))
	return res
}

// insertIgnore inserts rows, skipping natural-key duplicates, and returns the
// number actually inserted.
func insertIgnore[T any](tx *gorm.DB, rows []T) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, batchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (g *Gateway) saveLedger(tx *gorm.DB, rec models.ProcessedFile) error {
	if err := g.validate.Struct(rec); err != nil {
		return fmt.Errorf("invalid ledger entry: %w", err)
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_name"}, {Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_type", "processed_time", "file_size", "row_count", "status", "error"}),
	}).Create(&rec).Error
}

// markFailed records a failed attempt outside any rolled back transaction so
// the file is retried on the next run.
func (g *Gateway) markFailed(ctx context.Context, rec models.ProcessedFile, cause error, l *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.writeTimeout)
	defer cancel()

	rec.Status = models.FileFailed
	rec.RowCount = 0
	rec.ProcessedTime = g.clock.Now()
	rec.Error = truncate(cause.Error(), 512)
	if err := g.saveLedger(g.db.WithContext(ctx), rec); err != nil {
		l.Error("failed to record failed file", zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
