package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"options-anomaly-trader/internal/models"
)

// Fill is an executed paper trade.
type Fill struct {
	Symbol string          `json:"symbol"`
	Action Action          `json:"action"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Gain   decimal.Decimal `json:"gain"`
	Reason string          `json:"reason,omitempty"`
	At     time.Time       `json:"at"`
}

// Portfolio applies buys and sells to the account and transaction tables.
// Every transition runs in one database transaction and leaves
// account.stock equal to the sum of holding amounts.
type Portfolio struct {
	db       *gorm.DB
	buyRatio decimal.Decimal
	logger   *zap.Logger
}

// NewPortfolio creates a portfolio over db. buyRatio is the share of total
// value spent on each buy.
func NewPortfolio(db *gorm.DB, buyRatio float64, logger *zap.Logger) *Portfolio {
	return &Portfolio{db: db, buyRatio: decimal.NewFromFloat(buyRatio), logger: logger}
}

// Account returns the current account row.
func (p *Portfolio) Account(ctx context.Context) (models.Account, error) {
	var acct models.Account
	if err := p.db.WithContext(ctx).First(&acct, models.AccountID).Error; err != nil {
		return acct, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}

// Holdings returns the open positions ordered by symbol.
func (p *Portfolio) Holdings(ctx context.Context) ([]models.Transaction, error) {
	return holdings(p.db.WithContext(ctx))
}

func holdings(tx *gorm.DB) ([]models.Transaction, error) {
	var out []models.Transaction
	if err := tx.Where("is_holding = ?", true).Order("symbol").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	return out, nil
}

// recompute sets stock to the sum of holding amounts and total to cash plus
// stock, then saves the account.
func recompute(tx *gorm.DB, acct *models.Account) error {
	held, err := holdings(tx)
	if err != nil {
		return err
	}
	stock := decimal.Zero
	for _, h := range held {
		stock = stock.Add(h.Amount)
	}
	acct.StockValue = stock
	acct.TotalValue = acct.Cash.Add(stock)
	if err := tx.Save(acct).Error; err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// Buy opens a position in symbol at price, spending buyRatio of total value.
func (p *Portfolio) Buy(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) (*Fill, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("buy %s: %w", symbol, ErrNoPrice)
	}
	var fill *Fill
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held int64
		if err := tx.Model(&models.Transaction{}).
			Where("symbol = ? AND is_holding = ?", symbol, true).
			Count(&held).Error; err != nil {
			return fmt.Errorf("check holding: %w", err)
		}
		if held > 0 {
			return &AlreadyHeldError{Symbol: symbol}
		}

		var acct models.Account
		if err := tx.First(&acct, models.AccountID).Error; err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		// Refresh totals so the spend is based on current holdings.
		if err := recompute(tx, &acct); err != nil {
			return err
		}
		spend := acct.TotalValue.Mul(p.buyRatio)
		if acct.Cash.LessThan(spend) {
			return &InsufficientCashError{Symbol: symbol, Cash: acct.Cash, Need: spend}
		}
		shares := spend.Div(price).Floor().IntPart()
		if shares <= 0 {
			return fmt.Errorf("buy %s at %s: %w", symbol, price, ErrZeroShares)
		}

		amount := price.Mul(decimal.NewFromInt(shares))
		pos := models.Transaction{
			Symbol:       symbol,
			BuyPrice:     price,
			CurrentPrice: price,
			Shares:       shares,
			Amount:       amount,
			Gain:         decimal.Zero,
			IsHolding:    true,
			BuyDate:      at,
		}
		if err := tx.Create(&pos).Error; err != nil {
			return fmt.Errorf("open position: %w", err)
		}
		acct.Cash = acct.Cash.Sub(spend)
		if err := recompute(tx, &acct); err != nil {
			return err
		}
		fill = &Fill{Symbol: symbol, Action: ActionBuy, Shares: shares, Price: price, Amount: spend, Gain: decimal.Zero, At: at}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// Sell closes the open position in symbol at price. Selling a symbol that is
// not held is a no-op and returns a nil fill.
func (p *Portfolio) Sell(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) (*Fill, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("sell %s: %w", symbol, ErrNoPrice)
	}
	var fill *Fill
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pos models.Transaction
		err := tx.Where("symbol = ? AND is_holding = ?", symbol, true).First(&pos).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.logger.Warn("sell without position", zap.String("symbol", symbol))
			return nil
		}
		if err != nil {
			return fmt.Errorf("load position: %w", err)
		}

		shares := decimal.NewFromInt(pos.Shares)
		proceeds := price.Mul(shares)
		gain := price.Sub(pos.BuyPrice).Mul(shares)
		sellDate := at
		pos.SellPrice = decimal.NewNullDecimal(price)
		pos.SellDate = &sellDate
		pos.CurrentPrice = price
		pos.Amount = proceeds
		pos.Gain = gain
		pos.IsHolding = false
		if err := tx.Save(&pos).Error; err != nil {
			return fmt.Errorf("close position: %w", err)
		}

		var acct models.Account
		if err := tx.First(&acct, models.AccountID).Error; err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		acct.Cash = acct.Cash.Add(proceeds)
		if err := recompute(tx, &acct); err != nil {
			return err
		}
		fill = &Fill{Symbol: symbol, Action: ActionSell, Shares: pos.Shares, Price: price, Amount: proceeds, Gain: gain, At: at}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// MarkToMarket revalues every holding with a known price and refreshes the
// account totals.
func (p *Portfolio) MarkToMarket(ctx context.Context, prices map[string]decimal.Decimal) (models.Account, error) {
	var acct models.Account
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		held, err := holdings(tx)
		if err != nil {
			return err
		}
		for _, h := range held {
			price, ok := prices[h.Symbol]
			if !ok || !price.IsPositive() {
				continue
			}
			shares := decimal.NewFromInt(h.Shares)
			h.CurrentPrice = price
			h.Amount = price.Mul(shares)
			h.Gain = price.Sub(h.BuyPrice).Mul(shares)
			if err := tx.Save(&h).Error; err != nil {
				return fmt.Errorf("revalue %s: %w", h.Symbol, err)
			}
		}
		if err := tx.First(&acct, models.AccountID).Error; err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		return recompute(tx, &acct)
	})
	return acct, err
}
