package ingest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"options-anomaly-trader/internal/models"
	"options-anomaly-trader/internal/outlier"
)

// Round keeps two decimals for magnitudes of at least one and two
// significant figures below that.
func Round(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	places := int32(2)
	if a := math.Abs(v); a < 1 {
		places = int32(1 - math.Floor(math.Log10(a)))
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func volumeRow(folder string, created time.Time, e outlier.Event) models.VolumeOutlier {
	return models.VolumeOutlier{
		ContractSymbol:         e.ContractSymbol,
		FolderName:             folder,
		CreateTime:             created,
		SourceFile:             e.SourceFile,
		Strike:                 Round(e.Strike),
		SignalType:             e.Descriptor.String(),
		OptionType:             string(e.OptionType),
		VolumeOld:              Round(e.Old),
		VolumeNew:              Round(e.New),
		VolumePct:              Round(e.ChangePct),
		AmountThreshold:        Round(e.Amount),
		AmountToMarketCap:      Round(e.AmountToMarketCap),
		AmountTier:             e.AmountTier(),
		OpenInterestNew:        Round(e.OpenInterestNew),
		Opening:                e.Opening,
		ExpiryDate:             e.Expiry,
		LastPriceNew:           Round(e.LastPriceNew),
		LastPriceOld:           Round(e.LastPriceOld),
		Volume:                 Round(e.Volume),
		Symbol:                 e.Symbol,
		UnderlyingPriceNew:     Round(e.Underlying.Close),
		UnderlyingPriceOld:     Round(e.UnderlyingOld),
		UnderlyingPriceNewOpen: Round(e.Underlying.Open),
		UnderlyingPriceNewHigh: Round(e.Underlying.High),
		UnderlyingPriceNewLow:  Round(e.Underlying.Low),
		LastDayClosePrice:      Round(e.LastDayClose),
	}
}

func oiRow(folder string, created time.Time, e outlier.Event) models.OIOutlier {
	return models.OIOutlier{
		ContractSymbol:         e.ContractSymbol,
		FolderName:             folder,
		CreateTime:             created,
		SourceFile:             e.SourceFile,
		Strike:                 Round(e.Strike),
		OIChange:               Round(e.Change),
		SignalType:             e.Descriptor.String(),
		OptionType:             string(e.OptionType),
		OpenInterestNew:        Round(e.New),
		OpenInterestOld:        Round(e.Old),
		AmountThreshold:        Round(e.Amount),
		AmountToMarketCap:      Round(e.AmountToMarketCap),
		AmountTier:             e.AmountTier(),
		ExpiryDate:             e.Expiry,
		LastPriceNew:           Round(e.LastPriceNew),
		LastPriceOld:           Round(e.LastPriceOld),
		Volume:                 Round(e.Volume),
		Symbol:                 e.Symbol,
		UnderlyingPriceNew:     Round(e.Underlying.Close),
		UnderlyingPriceOld:     Round(e.UnderlyingOld),
		UnderlyingPriceNewOpen: Round(e.Underlying.Open),
		UnderlyingPriceNewHigh: Round(e.Underlying.High),
		UnderlyingPriceNewLow:  Round(e.Underlying.Low),
	}
}
