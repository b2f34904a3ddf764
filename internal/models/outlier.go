package models

import "time"

// VolumeOutlier is a persisted volume outlier. Unique on
// (contract_symbol, folder_name, create_time).
type VolumeOutlier struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ContractSymbol         string    `gorm:"size:64;not null;uniqueIndex:idx_volume_outlier_key" json:"contract_symbol"`
	FolderName             string    `gorm:"size:128;not null;uniqueIndex:idx_volume_outlier_key" json:"folder_name"`
	CreateTime             time.Time `gorm:"not null;uniqueIndex:idx_volume_outlier_key;index" json:"create_time"`
	SourceFile             string    `gorm:"size:128;index" json:"source_file"`
	Strike                 float64   `json:"strike"`
	SignalType             string    `gorm:"size:64" json:"signal_type"`
	OptionType             string    `gorm:"size:8" json:"option_type"`
	VolumeOld              float64   `json:"volume_old"`
	VolumeNew              float64   `json:"volume_new"`
	VolumePct              float64   `json:"volume_pct"`
	AmountThreshold        float64   `json:"amount_threshold"`
	AmountToMarketCap      float64   `json:"amount_to_market_cap"`
	AmountTier             string    `gorm:"size:16" json:"amount_tier"`
	OpenInterestNew        float64   `json:"open_interest_new"`
	Opening                bool      `json:"opening"`
	ExpiryDate             string    `gorm:"size:16" json:"expiry_date"`
	LastPriceNew           float64   `json:"last_price_new"`
	LastPriceOld           float64   `json:"last_price_old"`
	Volume                 float64   `json:"volume"`
	Symbol                 string    `gorm:"size:16;index" json:"symbol"`
	UnderlyingPriceNew     float64   `json:"underlying_price_new"`
	UnderlyingPriceOld     float64   `json:"underlying_price_old"`
	UnderlyingPriceNewOpen float64   `json:"underlying_price_new_open"`
	UnderlyingPriceNewHigh float64   `json:"underlying_price_new_high"`
	UnderlyingPriceNewLow  float64   `json:"underlying_price_new_low"`
	LastDayClosePrice      float64   `json:"last_day_close_price"`
}

// OIOutlier is a persisted open-interest outlier. Unique on
// (contract_symbol, folder_name, create_time).
type OIOutlier struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ContractSymbol         string    `gorm:"size:64;not null;uniqueIndex:idx_oi_outlier_key" json:"contract_symbol"`
	FolderName             string    `gorm:"size:128;not null;uniqueIndex:idx_oi_outlier_key" json:"folder_name"`
	CreateTime             time.Time `gorm:"not null;uniqueIndex:idx_oi_outlier_key;index" json:"create_time"`
	SourceFile             string    `gorm:"size:128;index" json:"source_file"`
	Strike                 float64   `json:"strike"`
	OIChange               float64   `gorm:"column:oi_change" json:"oi_change"`
	SignalType             string    `gorm:"size:64" json:"signal_type"`
	OptionType             string    `gorm:"size:8" json:"option_type"`
	OpenInterestNew        float64   `json:"open_interest_new"`
	OpenInterestOld        float64   `json:"open_interest_old"`
	AmountThreshold        float64   `json:"amount_threshold"`
	AmountToMarketCap      float64   `json:"amount_to_market_cap"`
	AmountTier             string    `gorm:"size:16" json:"amount_tier"`
	ExpiryDate             string    `gorm:"size:16" json:"expiry_date"`
	LastPriceNew           float64   `json:"last_price_new"`
	LastPriceOld           float64   `json:"last_price_old"`
	Volume                 float64   `json:"volume"`
	Symbol                 string    `gorm:"size:16;index" json:"symbol"`
	UnderlyingPriceNew     float64   `json:"underlying_price_new"`
	UnderlyingPriceOld     float64   `json:"underlying_price_old"`
	UnderlyingPriceNewOpen float64   `json:"underlying_price_new_open"`
	UnderlyingPriceNewHigh float64   `json:"underlying_price_new_high"`
	UnderlyingPriceNewLow  float64   `json:"underlying_price_new_low"`
}

// TableName keeps the acronym as one word.
func (OIOutlier) TableName() string { return "oi_outliers" }
