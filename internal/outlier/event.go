// Package outlier holds the outlier event model, the closed descriptor
// vocabulary and the per-symbol signal aggregation.
package outlier

import (
	"time"

	"options-anomaly-trader/internal/snapshot"
)

// Event is one contract flagged by a detector.
type Event struct {
	Category       snapshot.Category
	Folder         string
	SourceFile     string
	SnapshotTime   time.Time
	ContractSymbol string
	Symbol         string
	Strike         float64
	OptionType     snapshot.OptionType
	Expiry         string

	// Old and New are the compared metric: volume or open interest.
	Old       float64
	New       float64
	Change    float64
	ChangePct float64

	LastPriceOld float64
	LastPriceNew float64
	StockChange  float64
	OptionChange float64

	Amount            float64
	AmountToMarketCap float64
	OpenInterestNew   float64
	Volume            float64
	// Opening is set when the volume increase exceeds standing open interest.
	Opening bool

	Underlying    snapshot.Price
	UnderlyingOld float64
	LastDayClose  float64

	Descriptor Descriptor
}

// IsCall reports whether the contract is a call.
func (e Event) IsCall() bool {
	return e.OptionType == snapshot.Call
}

// AmountTier buckets the notional amount.
func (e Event) AmountTier() string {
	return AmountTier(e.Amount)
}

// AmountTier buckets a notional amount in dollars.
func AmountTier(amount float64) string {
	switch {
	case amount <= 5_000_000:
		return "<=5M"
	case amount <= 10_000_000:
		return "5M-10M"
	case amount <= 50_000_000:
		return "10M-50M"
	}
	return ">50M"
}
