package detector

import (
	"context"
	"math"

	"go.uber.org/zap"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

// OpenInterest flags contracts whose open interest moved by a large notional
// amount since the preceding snapshot.
type OpenInterest struct {
	cfg    config.Detection
	logger *zap.Logger
}

// NewOpenInterest creates an open-interest detector
func NewOpenInterest(cfg config.Detection, logger *zap.Logger) *OpenInterest {
	return &OpenInterest{cfg: cfg, logger: logger.Named("open_interest")}
}

// Category implements Detector.
func (d *OpenInterest) Category() snapshot.Category { return snapshot.OpenInterest }

// Detect implements Detector.
func (d *OpenInterest) Detect(ctx context.Context, in Input) ([]outlier.Event, Stats, error) {
	if err := in.validate(snapshot.OpenInterest); err != nil {
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
	d.logger.Info("open interest detection finished",
		zap.String("folder", in.Folder),
		zap.String("file", in.Current.File.Name),
		zap.String("reference", in.Reference.File.Name),
		zap.Int("compared", stats.Compared),
		zap.Int("outliers", stats.Emitted))
	return events, stats, nil
}

func (d *OpenInterest) evaluate(in Input, cur, ref snapshot.Row, refClose float64) (outlier.Event, verdict) {
	change := cur.OpenInterest - ref.OpenInterest
	if change == 0 {
		return outlier.Event{}, belowLimit
	}

	amount := cur.LastPrice * math.Abs(change) * d.cfg.ContractMultiplier
	var ratio float64
	mc := in.MarketCaps[cur.Symbol]
	if mc > 0 {
		ratio = amount / mc
	}
	// Large notional qualifies outright; the rest must be large for the
	// underlying's size.
	if amount < d.cfg.MinAmountThreshold {
		if mc <= 0 {
			return outlier.Event{}, belowLimit
		}
		if ratio < d.cfg.MinAmountToMarketCap {
			return outlier.Event{}, filtered
		}
	}

	ev := baseEvent(in, cur, ref, refClose)
	oiMove := outlier.Up
	if change < 0 {
		oiMove = outlier.Down
	}
	stockMove := outlier.MoveOf(ev.StockChange, d.cfg.StockChangeThreshold)
	// A large OI change qualifies on any option price direction, flat included.
	relaxed := math.Abs(change) > d.cfg.LargeOIChange
	var desc outlier.Descriptor
	ok := false
	for _, optionMove := range outlier.OptionMoves(ev.OptionChange, d.cfg.OptionChangeThreshold, relaxed) {
		if desc, ok = outlier.OIDescriptor(cur.OptionType == snapshot.Call, stockMove, optionMove, oiMove); ok {
			break
		}
	}
	if !ok {
		return outlier.Event{}, noPosture
	}

	ev.Old, ev.New = ref.OpenInterest, cur.OpenInterest
	ev.Change = change
	ev.ChangePct = relChange(cur.OpenInterest, ref.OpenInterest)
	ev.Amount = amount
	ev.AmountToMarketCap = ratio
	ev.Descriptor = desc
	return ev, accepted
}
