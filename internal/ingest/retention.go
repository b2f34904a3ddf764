package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"options-anomaly-trader/internal/models"
)

// CleanupResult counts outlier rows older than the retention window.
type CleanupResult struct {
	Cutoff time.Time
	Volume int64
	OI     int64
	DryRun bool
}

// Cleanup deletes outlier rows created more than days ago. With dryRun set
// the rows are only counted. The processed-file ledger is never pruned, so
// old files are not ingested again.
func (g *Gateway) Cleanup(ctx context.Context, days int, dryRun bool) (CleanupResult, error) {
	res := CleanupResult{DryRun: dryRun}
	if days <= 0 {
		return res, nil
	}
	res.Cutoff = g.clock.Now().AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	db := g.db.WithContext(ctx)

	for _, target := range []struct {
		model any
		count *int64
	}{
		{&models.VolumeOutlier{}, &res.Volume},
		{&models.OIOutlier{}, &res.OI},
	} {
		q := db.Model(target.model).Where("create_time < ?", res.Cutoff)
		if dryRun {
			if err := q.Count(target.count).Error; err != nil {
				return res, fmt.Errorf("count expired outliers: %w", err)
			}
			continue
		}
		result := db.Where("create_time < ?", res.Cutoff).Delete(target.model)
		if result.Error != nil {
			return res, fmt.Errorf("delete expired outliers: %w", result.Error)
		}
		*target.count = result.RowsAffected
	}

	g.logger.Info("outlier retention",
		zap.Time("cutoff", res.Cutoff),
		zap.Bool("dry_run", dryRun),
		zap.Int64("volume", res.Volume),
		zap.Int64("oi", res.OI))
	return res, nil
}
