// Package snapshot locates option-chain snapshot files and decodes them into
// typed rows.
package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// Category is the metric a snapshot file is captured for.
type Category string

const (
	Volume       Category = "volume"
	OpenInterest Category = "open_interest"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// ParseOptionType accepts call/put in any case.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return Call, nil
	case "PUT", "P":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Price is the underlying's OHLC at snapshot time.
type Price struct {
	Close float64
	Open  float64
	High  float64
	Low   float64
}

// Row is one contract's state at a point in time.
type Row struct {
	ContractSymbol string
	Symbol         string
	Strike         float64
	OptionType     OptionType
	Expiry         string
	Volume         float64
	OpenInterest   float64
	LastPrice      float64
	Underlying     Price
	Timestamp      time.Time
}

// File is a snapshot file discovered on disk.
type File struct {
	Path  string
	Name  string
	Taken time.Time
	Size  int64
}

// Snapshot is a parsed snapshot file.
type Snapshot struct {
	Category Category
	Folder   string
	File     File
	Rows     []Row
	// Skipped holds the rows that failed to decode.
	Skipped []*ParseError
}

// ByContract indexes rows by contract symbol. The first row wins on duplicates.
func (s *Snapshot) ByContract() map[string]Row {
	out := make(map[string]Row, len(s.Rows))
	for _, r := range s.Rows {
		if _, ok := out[r.ContractSymbol]; !ok {
			out[r.ContractSymbol] = r
		}
	}
	return out
}

// Closes maps each underlying symbol to its close in this snapshot.
func (s *Snapshot) Closes() map[string]float64 {
	out := make(map[string]float64)
	for _, r := range s.Rows {
		if _, ok := out[r.Symbol]; !ok {
			out[r.Symbol] = r.Underlying.Close
		}
	}
	return out
}
