package trader

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/models"
	"options-anomaly-trader/internal/outlier"
)

// StrategyContext provides the strategy with access to the core components.
type StrategyContext struct {
	Logger *zap.Logger
	Cfg    *config.Trading
	Now    time.Time
}

// Action is what the engine should do with one symbol.
type Action string

const (
	ActionNone Action = "none"
	ActionBuy  Action = "buy"
	ActionHold Action = "hold"
	ActionSell Action = "sell"
)

// Decision is a strategy's verdict for one symbol.
type Decision struct {
	Symbol string
	Action Action
	Reason string
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Decide maps this run's aggregate for a symbol and the open position,
	// if any, to an action. agg is nil when the symbol had no signals.
	Decide(ctx StrategyContext, symbol string, agg *outlier.Aggregate, pos *models.Transaction) Decision
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", OutlierSignalName:
		return OutlierSignalStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}

// OutlierSignalName is the name of OutlierSignalStrategy.
const OutlierSignalName = "outlier_signal"

// OutlierSignalStrategy buys on a clean run of bullish signals and exits on
// bearish pressure or when signals dry up.
type OutlierSignalStrategy struct{}

// Name implements Strategy.
func (OutlierSignalStrategy) Name() string { return OutlierSignalName }

// Decide implements Strategy.
func (OutlierSignalStrategy) Decide(ctx StrategyContext, symbol string, agg *outlier.Aggregate, pos *models.Transaction) Decision {
	d := Decision{Symbol: symbol, Action: ActionNone}
	var bull, bear int
	if agg != nil {
		bull, bear = agg.Bullish, agg.Bearish
	}

	if pos == nil {
		if bull >= ctx.Cfg.BullishBuyCount && bear == 0 {
			d.Action = ActionBuy
			d.Reason = fmt.Sprintf("%d bullish signals, no bearish", bull)
		}
		return d
	}

	switch {
	case bull == 0 && bear == 0:
		held := ctx.Now.Sub(pos.BuyDate)
		if held > ctx.Cfg.MaxHoldWithoutSig {
			d.Action = ActionSell
			d.Reason = fmt.Sprintf("no signals, held %s", held.Round(time.Minute))
			return d
		}
		d.Action = ActionHold
		d.Reason = "no signals"
	case bull > 0 && bear > 0:
		// Heavy bearish flow wins over a bullish majority.
		if bear >= ctx.Cfg.BearishSellCount {
			d.Action = ActionSell
			d.Reason = fmt.Sprintf("%d bearish against %d bullish", bear, bull)
			return d
		}
		d.Action = ActionHold
		d.Reason = fmt.Sprintf("mixed: %d bullish, %d bearish", bull, bear)
	case bull > 0:
		d.Action = ActionHold
		d.Reason = fmt.Sprintf("%d bullish signals", bull)
	default:
		d.Action = ActionSell
		d.Reason = fmt.Sprintf("%d bearish signals", bear)
	}
	return d
}
