// Package pipeline runs one detection and decision cycle over every
// configured folder, and repeats it on a ticker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/detector"
	"options-anomaly-trader/internal/ingest"
	"options-anomaly-trader/internal/lock"
	"options-anomaly-trader/internal/metrics"
	"options-anomaly-trader/internal/notify"
	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/outlierfile"
	"options-anomaly-trader/internal/snapshot"
	"options-anomaly-trader/internal/trader"
)

// DecideLockKey guards the decision run across processes.
const DecideLockKey = "options-anomaly-trader:decide"

// ReportSink receives every decision report, e.g. the status API.
type ReportSink interface {
	SetReport(r *trader.Report)
}

// Deps are the collaborators of a Runner. Notifier, Locker, Metrics and
// Reports are optional.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Clock     clock.Clock
	Loader    *snapshot.Loader
	Detectors []detector.Detector
	Gateway   *ingest.Gateway
	Engine    *trader.Engine
	Notifier  notify.Notifier
	Locker    lock.Locker
	Metrics   *metrics.Recorder
	Reports   ReportSink
}

// FolderResult is what one folder contributed to a cycle.
type FolderResult struct {
	Folder       string
	SnapshotTime time.Time
	Stats        map[snapshot.Category]detector.Stats
	AuditFiles   []string
	Signals      []outlier.Classified
	Aggregates   map[string]outlier.Aggregate
	Prices       map[string]float64
	Files        []ingest.Result
	// Missing lists categories skipped for lack of snapshots.
	Missing []snapshot.Category
	Errs    []error
}

// CycleResult summarises one full cycle.
type CycleResult struct {
	Folders []FolderResult
	Report  *trader.Report
	Cleanup *ingest.CleanupResult
	// Locked is set when another runner held the decision lock.
	Locked bool
}

// Runner wires loader, detectors, gateway and engine together.
type Runner struct {
	Deps
}

// New creates a Runner. Missing optional collaborators get local defaults.
func New(d Deps) *Runner {
	d.Logger = d.Logger.Named("pipeline")
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Logger)
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	return &Runner{Deps: d}
}

// Run executes a cycle immediately and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	r.Logger.Info("Starting cycle loop", zap.Duration("interval", interval))
	if _, err := r.Cycle(ctx); err != nil {
		r.Logger.Error("Cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("Stopping cycle loop...")
			return
		case <-ticker.C:
			if _, err := r.Cycle(ctx); err != nil {
				r.Logger.Error("Cycle failed", zap.Error(err))
			}
		}
	}
}

// Cycle runs detection for every folder, then one decision run over the
// merged aggregates. Per-folder failures are recorded on the result; an
// error is returned only when the decision run cannot touch storage.
func (r *Runner) Cycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	res := &CycleResult{}

	aggs := make(map[string]outlier.Aggregate)
	prices := make(map[string]float64)
	var newest time.Time
	for _, folder := range r.Config.Data.Folders {
		fr := r.processFolder(ctx, folder)
		res.Folders = append(res.Folders, fr)
		aggs = outlier.Merge(aggs, fr.Aggregates)
		for sym, p := range fr.Prices {
			if _, ok := prices[sym]; !ok {
				prices[sym] = p
			}
		}
		if fr.SnapshotTime.After(newest) {
			newest = fr.SnapshotTime
		}
	}
	r.observe("detect", start)

	release, err := r.Locker.Acquire(ctx, DecideLockKey)
	if errors.Is(err, lock.ErrNotAcquired) {
		r.Logger.Warn("decision run already in progress elsewhere")
		res.Locked = true
		r.recordRun("locked")
		return res, nil
	}
	if err != nil {
		r.recordRun("error")
		return res, fmt.Errorf("acquire decision lock: %w", err)
	}
	defer release()

	decideStart := time.Now()
	report, err := r.Engine.Decide(ctx, trader.RunInput{
		SnapshotTime: newest,
		Aggregates:   aggs,
		Prices:       prices,
	})
	r.observe("decide", decideStart)
	res.Report = report
	if err != nil {
		r.recordRun("error")
		return res, fmt.Errorf("decision run: %w", err)
	}
	r.recordReport(ctx, report)

	if days := r.Config.Database.RetentionDays; days > 0 {
		cr, err := r.Gateway.Cleanup(ctx, days, false)
		if err != nil {
			r.Logger.Error("retention cleanup failed", zap.Error(err))
		} else {
			res.Cleanup = &cr
		}
	}
	r.observe("cycle", start)
	return res, nil
}

func (r *Runner) processFolder(ctx context.Context, folder string) FolderResult {
	l := r.Logger.With(zap.String("folder", folder))
	fr := FolderResult{
		Folder: folder,
		Stats:  make(map[snapshot.Category]detector.Stats),
		Prices: make(map[string]float64),
	}

	caps, err := r.Loader.MarketCaps(folder)
	if err != nil {
		l.Warn("market caps unavailable", zap.Error(err))
	}

	type outcome struct {
		cat     snapshot.Category
		taken   time.Time
		events  []outlier.Event
		stats   detector.Stats
		closes  map[string]float64
		path    string
		missing bool
		err     error
	}
	outcomes := make([]outcome, len(r.Detectors))
	var wg sync.WaitGroup
	for i, d := range r.Detectors {
		wg.Add(1)
		go func(i int, d detector.Detector) {
			defer wg.Done()
			o := outcome{cat: d.Category()}
			defer func() { outcomes[i] = o }()

			cur, ref, err := r.Loader.Pair(folder, o.cat)
			var missing *snapshot.MissingSnapshotError
			if errors.As(err, &missing) {
				l.Info("skipping category", zap.String("category", string(o.cat)), zap.String("reason", missing.Reason))
				o.missing = true
				return
			}
			if err != nil {
				o.err = err
				return
			}
			o.taken = cur.File.Taken
			o.closes = cur.Closes()
			o.events, o.stats, o.err = d.Detect(ctx, detector.Input{
				Folder:     folder,
				Current:    cur,
				Reference:  ref,
				MarketCaps: caps,
			})
			if o.err != nil {
				return
			}
			o.path, o.err = outlierfile.Write(r.Gateway.Dir(folder, o.cat), o.cat, o.taken, o.events)
		}(i, d)
	}
	wg.Wait()

	var events []outlier.Event
	for _, o := range outcomes {
		switch {
		case o.missing:
			fr.Missing = append(fr.Missing, o.cat)
			continue
		case o.err != nil:
			l.Error("detection failed", zap.String("category", string(o.cat)), zap.Error(o.err))
			fr.Errs = append(fr.Errs, o.err)
			continue
		}
		fr.Stats[o.cat] = o.stats
		fr.AuditFiles = append(fr.AuditFiles, o.path)
		events = append(events, o.events...)
		if o.taken.After(fr.SnapshotTime) {
			fr.SnapshotTime = o.taken
		}
		for sym, p := range o.closes {
			if _, ok := fr.Prices[sym]; !ok {
				fr.Prices[sym] = p
			}
		}
		l.Info("detection complete",
			zap.String("category", string(o.cat)),
			zap.Int("compared", o.stats.Compared),
			zap.Int("emitted", o.stats.Emitted),
			zap.Int("filtered", o.stats.Filtered))
	}

	fr.Signals = outlier.ClassifyAll(events, r.Logger)
	fr.Aggregates = outlier.AggregateSignals(fr.Signals)
	if r.Metrics != nil {
		for _, s := range fr.Signals {
			r.Metrics.RecordOutlier(string(s.Category), s.Bucket.String())
		}
	}

	files, err := r.Gateway.ProcessFolder(ctx, folder)
	if err != nil {
		l.Error("persistence unavailable", zap.Error(err))
		fr.Errs = append(fr.Errs, err)
	}
	fr.Files = files
	for _, f := range files {
		if f.Err != nil {
			fr.Errs = append(fr.Errs, f.Err)
		}
		if r.Metrics != nil {
			r.Metrics.RecordFile(string(f.Category), f.Status)
		}
	}

	if msg := notify.FormatOutliers(folder, outlier.Summarize(fr.Signals)); msg != "" {
		if err := r.Notifier.Send(ctx, msg); err != nil {
			l.Warn("failed to send outlier summary", zap.Error(err))
		}
	}
	return fr
}

func (r *Runner) recordReport(ctx context.Context, report *trader.Report) {
	if r.Reports != nil {
		r.Reports.SetReport(report)
	}
	if report.Stale {
		r.recordRun("stale")
		return
	}
	r.recordRun("ok")
	if r.Metrics != nil {
		for range report.Buys {
			r.Metrics.RecordTrade(string(trader.ActionBuy), "filled")
		}
		for range report.Sells {
			r.Metrics.RecordTrade(string(trader.ActionSell), "filled")
		}
		for _, rej := range report.Rejected {
			r.Metrics.RecordTrade(string(rej.Action), "rejected")
		}
		a := report.Account
		r.Metrics.SetPortfolio(a.Cash.InexactFloat64(), a.StockValue.InexactFloat64(), a.TotalValue.InexactFloat64())
	}
	if msg := notify.FormatReport(report); msg != "" {
		if err := r.Notifier.Send(ctx, msg); err != nil {
			r.Logger.Warn("failed to send trade report", zap.Error(err))
		}
	}
}

func (r *Runner) recordRun(result string) {
	if r.Metrics != nil {
		r.Metrics.RecordRun(result)
	}
}

func (r *Runner) observe(stage string, start time.Time) {
	if r.Metrics != nil {
		r.Metrics.ObserveStage(stage, start)
	}
}
