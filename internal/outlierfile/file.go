// Package outlierfile writes detected outliers to per-run CSV audit files and
// reads them back for persistence.
package outlierfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

var (
	volumeName = regexp.MustCompile(`^volume_outlier_(\d{8}-\d{4})\.csv$`)
	oiName     = regexp.MustCompile(`^oi_outlier_(\d{8}-\d{4})\.csv$`)
)

// Name returns the audit file name for cat at t.
func Name(cat snapshot.Category, t time.Time) string {
	prefix := "oi_outlier_"
	if cat == snapshot.Volume {
		prefix = "volume_outlier_"
	}
	return prefix + t.Format(snapshot.StampLayout) + ".csv"
}

// List returns the audit files of cat in dir, newest first.
func List(dir string, cat snapshot.Category, loc *time.Location) ([]snapshot.File, error) {
	pattern := oiName
	if cat == snapshot.Volume {
		pattern = volumeName
	}
	return snapshot.ScanDir(dir, pattern, loc)
}

// Write stores events as dir/Name(cat, taken) and returns the path. The file
// is written to a temporary name first and renamed into place.
func Write(dir string, cat snapshot.Category, taken time.Time, events []outlier.Event) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create outlier dir: %w", err)
	}
	path := filepath.Join(dir, Name(cat, taken))
	tmp, err := os.CreateTemp(dir, ".outlier-*.csv")
	if err != nil {
		return "", fmt.Errorf("create outlier file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, cat, events); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close outlier file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename outlier file: %w", err)
	}
	return path, nil
}

// Encode writes events as CSV with a header row.
func Encode(w io.Writer, cat snapshot.Category, events []outlier.Event) error {
	cols := columnsFor(cat)
	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(cols))
	for i := range events {
		for j, c := range cols {
			rec[j] = c.get(&events[i])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads an audit file. Rows that fail to decode are returned as
// ParseErrors and left out of the events.
func Decode(r io.Reader, name string, cat snapshot.Category) ([]outlier.Event, []*snapshot.ParseError, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	cols := columnsFor(cat)
	for _, c := range cols {
		if _, ok := idx[c.name]; !ok && !c.optional {
			return nil, nil, fmt.Errorf("%s: missing column %s", name, c.name)
		}
	}

	var (
		events  []outlier.Event
		skipped []*snapshot.ParseError
		line    = 1
	)
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped = append(skipped, &snapshot.ParseError{File: name, Line: pe.Line, Err: pe.Err})
				continue
			}
			return events, skipped, fmt.Errorf("%s: %w", name, err)
		}
		ev := outlier.Event{Category: cat, SourceFile: name}
		if perr := decodeRow(&ev, rec, idx, cols); perr != nil {
			perr.File, perr.Line = name, line
			skipped = append(skipped, perr)
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func decodeRow(ev *outlier.Event, rec []string, idx map[string]int, cols []column) *snapshot.ParseError {
	for _, c := range cols {
		i, ok := idx[c.name]
		val := ""
		if ok && i < len(rec) {
			val = strings.TrimSpace(rec[i])
		}
		if val == "" {
			if c.optional {
				continue
			}
			return &snapshot.ParseError{Column: c.name, Err: errors.New("empty value")}
		}
		if err := c.set(ev, val); err != nil {
			return &snapshot.ParseError{Column: c.name, Err: err}
		}
	}
	return nil
}

// Read decodes the audit file at path.
func Read(path string, cat snapshot.Category) ([]outlier.Event, []*snapshot.ParseError, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open outlier file: %w", err)
	}
	defer fh.Close()
	return Decode(fh, filepath.Base(path), cat)
}
