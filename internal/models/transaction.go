package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one position: opened by a buy, closed by a sell, never
// deleted. At most one row per symbol has IsHolding set.
type Transaction struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	Symbol       string              `gorm:"size:16;not null;index:idx_transaction_symbol;uniqueIndex:idx_holding_symbol,where:is_holding = true" json:"symbol"`
	BuyPrice     decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"buy_price"`
	SellPrice    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"sell_price"`
	CurrentPrice decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"current_price"`
	Shares       int64               `gorm:"not null" json:"shares"`
	Amount       decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	Gain         decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"gain"`
	IsHolding    bool                `gorm:"not null;index" json:"is_holding"`
	BuyDate      time.Time           `gorm:"not null" json:"buy_date"`
	SellDate     *time.Time          `json:"sell_date,omitempty"`
}
