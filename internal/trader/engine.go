package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/models"
	"options-anomaly-trader/internal/outlier"
)

// PriceSource supplies current prices for underlying symbols.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// RunInput is everything one decision run needs from detection.
type RunInput struct {
	// SnapshotTime is when the newest snapshot behind Aggregates was taken.
	SnapshotTime time.Time
	Aggregates   map[string]outlier.Aggregate
	// Prices are the underlying closes from the snapshots.
	Prices map[string]float64
}

// Rejection is a decision the engine could not carry out.
type Rejection struct {
	Symbol string `json:"symbol"`
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Report summarises one decision run.
type Report struct {
	DecidedAt time.Time      `json:"decided_at"`
	Skipped   error          `json:"-"`
	Stale     bool           `json:"stale"`
	Buys      []Fill         `json:"buys"`
	Sells     []Fill         `json:"sells"`
	Holds     []Decision     `json:"holds"`
	Rejected  []Rejection    `json:"rejected"`
	Account   models.Account `json:"account"`
}

// Engine runs the per-symbol buy/hold/sell state machine against the
// portfolio. Runs are serialized.
type Engine struct {
	mu        sync.Mutex
	logger    *zap.Logger
	cfg       *config.Config
	strategy  Strategy
	portfolio *Portfolio
	quotes    PriceSource
	clock     clock.Clock
}

// NewEngine creates a new trading engine. quotes may be nil, in which case
// snapshot prices are used alone.
func NewEngine(logger *zap.Logger, cfg *config.Config, db *gorm.DB, strategy Strategy, quotes PriceSource, clk clock.Clock) *Engine {
	l := logger.Named("engine")
	return &Engine{
		logger:    l,
		cfg:       cfg,
		strategy:  strategy,
		portfolio: NewPortfolio(db, cfg.Trading.BuyRatio, l),
		quotes:    quotes,
		clock:     clk,
	}
}

// Portfolio returns the portfolio the engine trades.
func (e *Engine) Portfolio() *Portfolio {
	return e.portfolio
}

// Decide runs one decision pass. Sells are applied before buys, each in
// symbol order. Per-symbol failures are reported, not returned; an error
// means the portfolio could not be read or written at all.
func (e *Engine) Decide(ctx context.Context, in RunInput) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	report := &Report{DecidedAt: now}

	age := now.Sub(in.SnapshotTime)
	if in.SnapshotTime.IsZero() || age > e.cfg.Trading.StaleAfter {
		report.Stale = true
		report.Skipped = ErrStaleData
		e.logger.Warn("skipping decision run on stale data",
			zap.Time("snapshot_time", in.SnapshotTime),
			zap.Duration("age", age),
			zap.Duration("stale_after", e.cfg.Trading.StaleAfter))
		acct, err := e.portfolio.Account(ctx)
		if err != nil {
			return report, err
		}
		report.Account = acct
		return report, nil
	}

	held, err := e.portfolio.Holdings(ctx)
	if err != nil {
		return report, err
	}
	heldBySymbol := make(map[string]*models.Transaction, len(held))
	for i := range held {
		heldBySymbol[held[i].Symbol] = &held[i]
	}

	prices := e.prices(ctx, in, held)
	if _, err := e.portfolio.MarkToMarket(ctx, prices); err != nil {
		return report, fmt.Errorf("mark to market: %w", err)
	}

	sctx := StrategyContext{Logger: e.logger, Cfg: &e.cfg.Trading, Now: now}

	for _, pos := range held {
		var agg *outlier.Aggregate
		if a, ok := in.Aggregates[pos.Symbol]; ok {
			agg = &a
		}
		d := e.strategy.Decide(sctx, pos.Symbol, agg, heldBySymbol[pos.Symbol])
		l := e.logger.With(zap.String("symbol", pos.Symbol), zap.String("reason", d.Reason))
		if d.Action != ActionSell {
			l.Info("holding position")
			report.Holds = append(report.Holds, d)
			continue
		}
		price, ok := prices[pos.Symbol]
		if !ok {
			// Fall back to the last marked price so an exit is never blocked.
			price = pos.CurrentPrice
		}
		fill, err := e.portfolio.Sell(ctx, pos.Symbol, price, now)
		if err != nil {
			l.Error("sell failed", zap.Error(err))
			report.Rejected = append(report.Rejected, Rejection{Symbol: pos.Symbol, Action: ActionSell, Reason: err.Error()})
			continue
		}
		if fill != nil {
			fill.Reason = d.Reason
			l.Info("sold position",
				zap.Int64("shares", fill.Shares),
				zap.String("price", fill.Price.String()),
				zap.String("gain", fill.Gain.String()))
			report.Sells = append(report.Sells, *fill)
		}
	}

	for _, sym := range outlier.Symbols(in.Aggregates) {
		if _, ok := heldBySymbol[sym]; ok {
			continue
		}
		a := in.Aggregates[sym]
		d := e.strategy.Decide(sctx, sym, &a, nil)
		if d.Action != ActionBuy {
			continue
		}
		l := e.logger.With(zap.String("symbol", sym), zap.String("reason", d.Reason))
		price, ok := prices[sym]
		if !ok {
			l.Warn("no price for buy candidate")
			report.Rejected = append(report.Rejected, Rejection{Symbol: sym, Action: ActionBuy, Reason: ErrNoPrice.Error()})
			continue
		}
		fill, err := e.portfolio.Buy(ctx, sym, price, now)
		if err != nil {
			var alreadyHeld *AlreadyHeldError
			var noCash *InsufficientCashError
			switch {
			case errors.As(err, &alreadyHeld), errors.As(err, &noCash), errors.Is(err, ErrZeroShares):
				l.Info("buy rejected", zap.Error(err))
			default:
				l.Error("buy failed", zap.Error(err))
			}
			report.Rejected = append(report.Rejected, Rejection{Symbol: sym, Action: ActionBuy, Reason: err.Error()})
			continue
		}
		fill.Reason = d.Reason
		l.Info("bought position",
			zap.Int64("shares", fill.Shares),
			zap.String("price", fill.Price.String()),
			zap.String("amount", fill.Amount.String()))
		report.Buys = append(report.Buys, *fill)
	}

	acct, err := e.portfolio.Account(ctx)
	if err != nil {
		return report, err
	}
	report.Account = acct
	e.logger.Info("decision run complete",
		zap.Int("buys", len(report.Buys)),
		zap.Int("sells", len(report.Sells)),
		zap.Int("holds", len(report.Holds)),
		zap.String("cash", acct.Cash.StringFixed(2)),
		zap.String("total", acct.TotalValue.StringFixed(2)))
	return report, nil
}

// prices merges snapshot closes with quotes for every held or signalled
// symbol. Quotes win when available.
func (e *Engine) prices(ctx context.Context, in RunInput, held []models.Transaction) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in.Prices))
	for sym, p := range in.Prices {
		if p > 0 {
			out[sym] = decimal.NewFromFloat(p)
		}
	}
	if e.quotes == nil {
		return out
	}

	want := make(map[string]struct{}, len(held)+len(in.Aggregates))
	for _, h := range held {
		want[h.Symbol] = struct{}{}
	}
	for sym := range in.Aggregates {
		want[sym] = struct{}{}
	}
	symbols := make([]string, 0, len(want))
	for s := range want {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		return out
	}

	quotes, err := e.quotes.Prices(ctx, symbols)
	if err != nil {
		e.logger.Warn("quote lookup failed, using snapshot prices", zap.Error(err))
	}
	for sym, p := range quotes {
		if p > 0 {
			out[sym] = decimal.NewFromFloat(p)
		}
	}
	return out
}
