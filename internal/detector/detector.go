// Package detector diffs a snapshot against its reference and emits outlier
// events for contracts whose activity clears the configured thresholds.
package detector

import (
	"context"
	"fmt"

	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

// Input is one detection pass over a folder.
type Input struct {
	Folder     string
	Current    *snapshot.Snapshot
	Reference  *snapshot.Snapshot
	MarketCaps map[string]float64
}

func (in Input) validate(cat snapshot.Category) error {
	if in.Current == nil || in.Reference == nil {
		return fmt.Errorf("%s detection in %s: current and reference snapshots are required", cat, in.Folder)
	}
	if in.Current.Category != cat || in.Reference.Category != cat {
		return fmt.Errorf("%s detection in %s: got %s/%s snapshots", cat, in.Folder, in.Current.Category, in.Reference.Category)
	}
	return nil
}

// Detector turns a snapshot pair into outlier events.
type Detector interface {
	Category() snapshot.Category
	Detect(ctx context.Context, in Input) ([]outlier.Event, Stats, error)
}

// Stats counts how contracts fared in one pass.
type Stats struct {
	Compared   int
	Unmatched  int
	BelowLimit int
	Filtered   int
	NoPosture  int
	Emitted    int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Compared += o.Compared
	s.Unmatched += o.Unmatched
	s.BelowLimit += o.BelowLimit
	s.Filtered += o.Filtered
	s.NoPosture += o.NoPosture
	s.Emitted += o.Emitted
}

type verdict int

const (
	accepted verdict = iota
	unmatched
	belowLimit
	filtered
	noPosture
)

func (s *Stats) record(v verdict) {
	s.Compared++
	switch v {
	case accepted:
		s.Emitted++
	case unmatched:
		s.Unmatched++
	case belowLimit:
		s.BelowLimit++
	case filtered:
		s.Filtered++
	case noPosture:
		s.NoPosture++
	}
}

func relChange(newV, oldV float64) float64 {
	if oldV == 0 {
		return 0
	}
	return (newV - oldV) / oldV
}

func baseEvent(in Input, cur, ref snapshot.Row, refClose float64) outlier.Event {
	return outlier.Event{
		Category:        in.Current.Category,
		Folder:          in.Folder,
		SourceFile:      in.Current.File.Name,
		SnapshotTime:    in.Current.File.Taken,
		ContractSymbol:  cur.ContractSymbol,
		Symbol:          cur.Symbol,
		Strike:          cur.Strike,
		OptionType:      cur.OptionType,
		Expiry:          cur.Expiry,
		LastPriceOld:    ref.LastPrice,
		LastPriceNew:    cur.LastPrice,
		StockChange:     relChange(cur.Underlying.Close, refClose),
		OptionChange:    relChange(cur.LastPrice, ref.LastPrice),
		OpenInterestNew: cur.OpenInterest,
		Volume:          cur.Volume,
		Underlying:      cur.Underlying,
		UnderlyingOld:   refClose,
		LastDayClose:    refClose,
	}
}
