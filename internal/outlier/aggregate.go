package outlier

import (
	"errors"
	"sort"

	"go.uber.org/zap"
)

// Classified is an event annotated with its signal.
type Classified struct {
	Event
	Signal
}

// Aggregate is the per-symbol signal count for one run.
type Aggregate struct {
	Symbol    string
	Bullish   int
	Bearish   int
	Contracts []string
}

// ClassifyAll classifies every event. Events whose descriptor has no entry
// are logged and dropped; the rest keep input order.
func ClassifyAll(events []Event, logger *zap.Logger) []Classified {
	out := make([]Classified, 0, len(events))
	for _, ev := range events {
		sig, err := Classify(ev.Descriptor)
		if err != nil {
			var unknown *UnknownSignalError
			if errors.As(err, &unknown) {
				logger.Error("unclassifiable outlier",
					zap.String("contract", ev.ContractSymbol),
					zap.Error(err))
			}
			continue
		}
		out = append(out, Classified{Event: ev, Signal: sig})
	}
	return out
}

// AggregateSignals counts bullish and bearish signals per symbol. Signals
// with Count unset are left out.
func AggregateSignals(signals []Classified) map[string]Aggregate {
	aggs := make(map[string]Aggregate)
	contracts := make(map[string]map[string]struct{})
	for _, s := range signals {
		if !s.Count {
			continue
		}
		a := aggs[s.Symbol]
		a.Symbol = s.Symbol
		if s.Bullish {
			a.Bullish++
		}
		if s.Bearish {
			a.Bearish++
		}
		aggs[s.Symbol] = a
		if contracts[s.Symbol] == nil {
			contracts[s.Symbol] = make(map[string]struct{})
		}
		contracts[s.Symbol][s.ContractSymbol] = struct{}{}
	}
	for sym, set := range contracts {
		a := aggs[sym]
		a.Contracts = make([]string, 0, len(set))
		for c := range set {
			a.Contracts = append(a.Contracts, c)
		}
		sort.Strings(a.Contracts)
		aggs[sym] = a
	}
	return aggs
}

// Merge adds the counts of other into aggs.
func Merge(aggs map[string]Aggregate, other map[string]Aggregate) map[string]Aggregate {
	if aggs == nil {
		aggs = make(map[string]Aggregate, len(other))
	}
	for sym, o := range other {
		a := aggs[sym]
		a.Symbol = sym
		a.Bullish += o.Bullish
		a.Bearish += o.Bearish
		a.Contracts = mergeSorted(a.Contracts, o.Contracts)
		aggs[sym] = a
	}
	return aggs
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Symbols returns the aggregate keys in sorted order.
func Symbols(aggs map[string]Aggregate) []string {
	syms := make([]string, 0, len(aggs))
	for s := range aggs {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}
