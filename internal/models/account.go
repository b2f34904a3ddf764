package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the paper-trading cash account.
// There should only ever be one row in this table.
type Account struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Cash       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cash"`
	StockValue decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"stock_value"`
	TotalValue decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AccountID is the primary key of the single account row.
const AccountID = 1
