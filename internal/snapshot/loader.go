package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/config"
)

// StampLayout is the timestamp embedded in every snapshot and outlier file name.
const StampLayout = "20060102-1504"

var snapshotName = regexp.MustCompile(`^all-(\d{8}-\d{4})\.csv$`)

// ScanDir lists files in dir whose name matches pattern, newest first. The
// pattern's first submatch must be a StampLayout timestamp in loc. A missing
// directory yields no files.
func ScanDir(dir string, pattern *regexp.Regexp, loc *time.Location) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if len(m) < 2 {
			continue
		}
		taken, err := time.ParseInLocation(StampLayout, m[1], loc)
		if err != nil {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, File{
			Path:  filepath.Join(dir, e.Name()),
			Name:  e.Name(),
			Taken: taken,
			Size:  size,
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Taken.Equal(files[j].Taken) {
			return files[i].Name > files[j].Name
		}
		return files[i].Taken.After(files[j].Taken)
	})
	return files, nil
}

// Loader reads snapshot files laid out under <root>/<folder>/<category dir>.
type Loader struct {
	cfg    config.Data
	loc    *time.Location
	clock  clock.Clock
	logger *zap.Logger
}

// NewLoader creates a new loader
func NewLoader(cfg config.Data, clk clock.Clock, logger *zap.Logger) (*Loader, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &Loader{cfg: cfg, loc: loc, clock: clk, logger: logger}, nil
}

// Location returns the timezone file names are interpreted in.
func (l *Loader) Location() *time.Location {
	return l.loc
}

// Dir returns the directory holding snapshots of cat for folder.
func (l *Loader) Dir(folder string, cat Category) string {
	sub := l.cfg.VolumeDir
	if cat == OpenInterest {
		sub = l.cfg.OpenInterestDir
	}
	return filepath.Join(l.cfg.Root, folder, sub)
}

// Files lists snapshot files newest first, ignoring any stamped in the future.
func (l *Loader) Files(folder string, cat Category) ([]File, error) {
	all, err := ScanDir(l.Dir(folder, cat), snapshotName, l.loc)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	files := all[:0]
	for _, f := range all {
		if f.Taken.After(now) {
			l.logger.Debug("ignoring future snapshot", zap.String("file", f.Name))
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// Read parses one snapshot file.
func (l *Loader) Read(folder string, cat Category, f File) (*Snapshot, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer fh.Close()

	rows, skipped, err := Decode(fh, f.Name, cat, f.Taken, l.loc)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		l.logger.Warn("skipped malformed rows",
			zap.String("file", f.Path),
			zap.Int("skipped", len(skipped)),
			zap.Error(skipped[0]))
	}
	return &Snapshot{Category: cat, Folder: folder, File: f, Rows: rows, Skipped: skipped}, nil
}

// Latest returns the most recent snapshot of cat.
func (l *Loader) Latest(folder string, cat Category) (*Snapshot, error) {
	files, err := l.Files(folder, cat)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &MissingSnapshotError{Folder: folder, Category: cat, Reason: "no files"}
	}
	return l.Read(folder, cat, files[0])
}

// Pair returns the latest snapshot and the reference it is compared with.
// Open interest compares with the immediately preceding snapshot. Volume is
// cumulative per day so it compares with the prior day's snapshot at the
// same or nearest earlier time of day.
func (l *Loader) Pair(folder string, cat Category) (cur, ref *Snapshot, err error) {
	files, err := l.Files(folder, cat)
	if err != nil {
		return nil, nil, err
	}
	if len(files) < 2 {
		return nil, nil, &MissingSnapshotError{Folder: folder, Category: cat, Reason: "need at least two snapshots"}
	}
	refFile := files[1]
	if cat == Volume {
		if f, ok := priorDayReference(files, l.loc); ok {
			refFile = f
		}
	}
	if cur, err = l.Read(folder, cat, files[0]); err != nil {
		return nil, nil, err
	}
	if ref, err = l.Read(folder, cat, refFile); err != nil {
		return nil, nil, err
	}
	return cur, ref, nil
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// priorDayReference picks from files (newest first) the snapshot of the most
// recent earlier day whose time of day does not exceed the latest's.
func priorDayReference(files []File, loc *time.Location) (File, bool) {
	latest := files[0].Taken.In(loc)
	today := dayOf(latest, loc)
	tod := latest.Sub(today)

	var (
		prior    time.Time
		earliest File
		found    bool
	)
	for _, f := range files[1:] {
		day := dayOf(f.Taken, loc)
		if !day.Before(today) {
			continue
		}
		if !found {
			prior, found = day, true
		}
		if !day.Equal(prior) {
			break
		}
		if f.Taken.In(loc).Sub(day) <= tod {
			return f, true
		}
		earliest = f
	}
	return earliest, found
}

// MarketCaps reads the symbol to market cap table for folder. A missing file
// yields an empty table.
func (l *Loader) MarketCaps(folder string) (map[string]float64, error) {
	caps := make(map[string]float64)
	if l.cfg.MarketCapFile == "" {
		return caps, nil
	}
	path := filepath.Join(l.cfg.Root, folder, l.cfg.MarketCapFile)
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("market cap file not found", zap.String("path", path))
			return caps, nil
		}
		return nil, fmt.Errorf("open market caps: %w", err)
	}
	defer fh.Close()

	cr := csv.NewReader(fh)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read market caps: %w", err)
	}
	if len(records) == 0 {
		return caps, nil
	}
	symCol, capCol := -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "symbol":
			symCol = i
		case "market cap", "market_cap", "marketcap":
			capCol = i
		}
	}
	if symCol < 0 || capCol < 0 {
		return nil, fmt.Errorf("market caps %s: missing Symbol or Market Cap column", path)
	}
	for _, rec := range records[1:] {
		if symCol >= len(rec) || capCol >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(rec[capCol]), ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		caps[strings.ToUpper(strings.TrimSpace(rec[symCol]))] = v
	}
	return caps, nil
}
