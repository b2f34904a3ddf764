package outlierfile

import (
	"strconv"

	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

type column struct {
	name string
	get  func(*outlier.Event) string
	set  func(*outlier.Event, string) error
	// optional columns may be blank or absent.
	optional bool
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func floatCol(name string, field func(*outlier.Event) *float64, optional bool) column {
	return column{
		name:     name,
		optional: optional,
		get:      func(e *outlier.Event) string { return fmtFloat(*field(e)) },
		set: func(e *outlier.Event, s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*field(e) = v
			return nil
		},
	}
}

func stringCol(name string, field func(*outlier.Event) *string, optional bool) column {
	return column{
		name:     name,
		optional: optional,
		get:      func(e *outlier.Event) string { return *field(e) },
		set: func(e *outlier.Event, s string) error {
			*field(e) = s
			return nil
		},
	}
}

var (
	contractCol = stringCol("contractSymbol", func(e *outlier.Event) *string { return &e.ContractSymbol }, false)
	symbolCol   = stringCol("symbol", func(e *outlier.Event) *string { return &e.Symbol }, false)
	strikeCol   = floatCol("strike", func(e *outlier.Event) *float64 { return &e.Strike }, false)
	expiryCol   = stringCol("expiryDate", func(e *outlier.Event) *string { return &e.Expiry }, true)
	signalCol   = column{
		name: "signalType",
		get:  func(e *outlier.Event) string { return e.Descriptor.String() },
		set: func(e *outlier.Event, s string) error {
			d, err := outlier.ParseDescriptor(s)
			if err != nil {
				return err
			}
			e.Descriptor = d
			return nil
		},
	}
	optionTypeCol = column{
		name: "optionType",
		get:  func(e *outlier.Event) string { return string(e.OptionType) },
		set: func(e *outlier.Event, s string) error {
			ot, err := snapshot.ParseOptionType(s)
			if err != nil {
				return err
			}
			e.OptionType = ot
			return nil
		},
	}
	amountCol     = floatCol("amountThreshold", func(e *outlier.Event) *float64 { return &e.Amount }, false)
	ratioCol      = floatCol("amountToMarketCap", func(e *outlier.Event) *float64 { return &e.AmountToMarketCap }, true)
	tierCol       = column{name: "amountTier", optional: true, get: func(e *outlier.Event) string { return e.AmountTier() }, set: func(*outlier.Event, string) error { return nil }}
	oiNewCol      = floatCol("openInterestNew", func(e *outlier.Event) *float64 { return &e.OpenInterestNew }, true)
	lastNewCol    = floatCol("lastPriceNew", func(e *outlier.Event) *float64 { return &e.LastPriceNew }, true)
	lastOldCol    = floatCol("lastPriceOld", func(e *outlier.Event) *float64 { return &e.LastPriceOld }, true)
	volumeCol     = floatCol("volume", func(e *outlier.Event) *float64 { return &e.Volume }, true)
	stockChgCol   = floatCol("stockChange", func(e *outlier.Event) *float64 { return &e.StockChange }, true)
	optionChgCol  = floatCol("optionChange", func(e *outlier.Event) *float64 { return &e.OptionChange }, true)
	underNewCol   = floatCol("underlyingPriceNew", func(e *outlier.Event) *float64 { return &e.Underlying.Close }, true)
	underOldCol   = floatCol("underlyingPriceOld", func(e *outlier.Event) *float64 { return &e.UnderlyingOld }, true)
	underOpenCol  = floatCol("underlyingPriceNewOpen", func(e *outlier.Event) *float64 { return &e.Underlying.Open }, true)
	underHighCol  = floatCol("underlyingPriceNewHigh", func(e *outlier.Event) *float64 { return &e.Underlying.High }, true)
	underLowCol   = floatCol("underlyingPriceNewLow", func(e *outlier.Event) *float64 { return &e.Underlying.Low }, true)
	lastDayCloseC = floatCol("lastDayClosePrice", func(e *outlier.Event) *float64 { return &e.LastDayClose }, true)
	openingCol    = column{
		name:     "opening",
		optional: true,
		get:      func(e *outlier.Event) string { return strconv.FormatBool(e.Opening) },
		set: func(e *outlier.Event, s string) error {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			e.Opening = b
			return nil
		},
	}
)

var volumeColumns = []column{
	contractCol, strikeCol, signalCol, optionTypeCol,
	floatCol("volumeOld", func(e *outlier.Event) *float64 { return &e.Old }, false),
	floatCol("volumeNew", func(e *outlier.Event) *float64 { return &e.New }, false),
	floatCol("volumePct", func(e *outlier.Event) *float64 { return &e.ChangePct }, true),
	amountCol, ratioCol, tierCol, oiNewCol, openingCol, expiryCol,
	lastNewCol, lastOldCol, volumeCol, symbolCol, stockChgCol, optionChgCol,
	underNewCol, underOldCol, underOpenCol, underHighCol, underLowCol, lastDayCloseC,
}

var oiColumns = []column{
	contractCol, strikeCol,
	floatCol("oiChange", func(e *outlier.Event) *float64 { return &e.Change }, false),
	signalCol, optionTypeCol,
	floatCol("openInterestNew", func(e *outlier.Event) *float64 { return &e.New }, false),
	floatCol("openInterestOld", func(e *outlier.Event) *float64 { return &e.Old }, false),
	amountCol, ratioCol, tierCol, expiryCol,
	lastNewCol, lastOldCol, volumeCol, symbolCol, stockChgCol, optionChgCol,
	underNewCol, underOldCol, underOpenCol, underHighCol, underLowCol,
}

func columnsFor(cat snapshot.Category) []column {
	if cat == snapshot.Volume {
		return volumeColumns
	}
	return oiColumns
}
