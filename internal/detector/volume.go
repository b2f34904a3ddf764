package detector

import (
	"context"
	"math"

	"go.uber.org/zap"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

// Volume flags contracts whose daily volume jumped against the reference
// snapshot.
type Volume struct {
	cfg    config.Detection
	logger *zap.Logger
}

// NewVolume creates a volume detector
func NewVolume(cfg config.Detection, logger *zap.Logger) *Volume {
	return &Volume{cfg: cfg, logger: logger.Named("volume")}
}

// Category implements Detector.
func (d *Volume) Category() snapshot.Category { return snapshot.Volume }

// Detect implements Detector.
func (d *Volume) Detect(ctx context.Context, in Input) ([]outlier.Event, Stats, error) {
	if err := in.validate(snapshot.Volume); err != nil {
		return nil, Stats{}, err
	}
	prev := in.Reference.ByContract()
	refCloses := in.Reference.Closes()

	events, stats, err := run(ctx, d.cfg.Workers, in.Current.Rows, func(cur snapshot.Row) (outlier.Event, verdict) {
		ref, ok := prev[cur.ContractSymbol]
		if !ok {
			return outlier.Event{}, unmatched
		}
		return d.evaluate(in, cur, ref, refCloses[cur.Symbol])
	})
	if err != nil {
		return nil, stats, err
	}
	d.logger.Info("volume detection finished",
		zap.String("folder", in.Folder),
		zap.String("file", in.Current.File.Name),
		zap.String("reference", in.Reference.File.Name),
		zap.Int("compared", stats.Compared),
		zap.Int("outliers", stats.Emitted))
	return events, stats, nil
}

func (d *Volume) evaluate(in Input, cur, ref snapshot.Row, refClose float64) (outlier.Event, verdict) {
	oldV, newV := ref.Volume, cur.Volume
	if newV < d.cfg.MinVolume {
		return outlier.Event{}, belowLimit
	}
	// A contract with no prior volume only has to clear MinVolume.
	pct := 1.0
	if oldV > 0 {
		pct = (newV - oldV) / oldV
		if pct < d.cfg.MinVolumeIncreasePct {
			return outlier.Event{}, belowLimit
		}
	}

	amount := cur.LastPrice * newV * d.cfg.ContractMultiplier
	var ratio float64
	mc := in.MarketCaps[cur.Symbol]
	switch {
	case mc > 0:
		ratio = amount / mc
		if ratio < d.cfg.MinAmountToMarketCap {
			return outlier.Event{}, filtered
		}
	case oldV == 0:
		return outlier.Event{}, filtered
	case math.Abs(newV-oldV)*cur.LastPrice*d.cfg.ContractMultiplier <= d.cfg.MinAmountThreshold:
		// Without a market cap the traded notional itself has to be large.
		return outlier.Event{}, belowLimit
	}

	ev := baseEvent(in, cur, ref, refClose)
	desc, ok := outlier.VolumeDescriptor(cur.OptionType == snapshot.Call,
		outlier.MoveOf(ev.StockChange, d.cfg.StockChangeThreshold),
		outlier.MoveOf(ev.OptionChange, d.cfg.OptionChangeThreshold))
	if !ok {
		return outlier.Event{}, noPosture
	}

	ev.Old, ev.New = oldV, newV
	ev.Change = newV - oldV
	ev.ChangePct = pct
	ev.Amount = amount
	ev.AmountToMarketCap = ratio
	ev.Opening = newV-oldV > cur.OpenInterest
	ev.Descriptor = desc
	return ev, accepted
}
