package outlier

import (
	"math"
	"sort"
)

// Summary is a per-symbol digest of one run: signal counts and the notional
// amount behind each bucket.
type Summary struct {
	Symbol            string
	Bullish           int
	Bearish           int
	BullishCallAmount float64
	BearishCallAmount float64
	BullishPutAmount  float64
	BearishPutAmount  float64
}

// Total is the notional amount across all buckets.
func (s Summary) Total() float64 {
	return s.BullishCallAmount + s.BearishCallAmount + s.BullishPutAmount + s.BearishPutAmount
}

// Summarize builds one Summary per symbol from counted signals, largest total
// first.
func Summarize(signals []Classified) []Summary {
	by := make(map[string]*Summary)
	for _, s := range signals {
		if !s.Count {
			continue
		}
		sum, ok := by[s.Symbol]
		if !ok {
			sum = &Summary{Symbol: s.Symbol}
			by[s.Symbol] = sum
		}
		amount := math.Abs(s.Amount)
		switch s.Bucket {
		case BullishCall:
			sum.Bullish++
			sum.BullishCallAmount += amount
		case BearishCall:
			sum.Bearish++
			sum.BearishCallAmount += amount
		case BullishPut:
			sum.Bullish++
			sum.BullishPutAmount += amount
		case BearishPut:
			sum.Bearish++
			sum.BearishPutAmount += amount
		}
	}
	out := make([]Summary, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total() != out[j].Total() {
			return out[i].Total() > out[j].Total()
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
