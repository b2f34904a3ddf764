package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	colContract   = "contractSymbol"
	colStrike     = "strike"
	colOptionType = "optionType"
	colExpiry     = "expiryDate"
	colVolume     = "volume"
	colOI         = "openInterest"
	colLastPrice  = "lastPrice"
	colSymbol     = "underlyingSymbol"
	colClose      = "underlyingClose"
	colOpen       = "underlyingOpen"
	colHigh       = "underlyingHigh"
	colLow        = "underlyingLow"
	colTimestamp  = "snapshotTimestamp"
)

// headerAliases maps legacy column names to canonical ones.
var headerAliases = map[string]string{
	"option_type": colOptionType,
	"expiry_date": colExpiry,
	"symbol":      colSymbol,
	"close":       colClose,
	"open":        colOpen,
	"high":        colHigh,
	"low":         colLow,
	"timestamp":   colTimestamp,
}

func requiredColumns(cat Category) []string {
	cols := []string{colContract, colStrike, colOptionType, colLastPrice, colSymbol, colClose}
	if cat == Volume {
		return append(cols, colVolume)
	}
	return append(cols, colOI)
}

func canonical(name string) string {
	name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	if c, ok := headerAliases[strings.ToLower(name)]; ok {
		return c
	}
	return name
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// Decode reads a snapshot CSV. Malformed rows are collected as ParseErrors
// and skipped; a missing required column fails the whole file.
func Decode(r io.Reader, name string, cat Category, taken time.Time, loc *time.Location) ([]Row, []*ParseError, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%s: empty file", name)
		}
		return nil, nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[canonical(h)] = i
	}
	for _, c := range requiredColumns(cat) {
		if _, ok := idx[c]; !ok {
			return nil, nil, fmt.Errorf("%s: missing column %s", name, c)
		}
	}

	var (
		rows    []Row
		skipped []*ParseError
		line    = 1
	)
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped = append(skipped, &ParseError{File: name, Line: pe.Line, Err: pe.Err})
				continue
			}
			return rows, skipped, fmt.Errorf("%s: %w", name, err)
		}
		row, perr := decodeRow(rec, idx, cat, taken, loc)
		if perr != nil {
			perr.File, perr.Line = name, line
			skipped = append(skipped, perr)
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func decodeRow(rec []string, idx map[string]int, cat Category, taken time.Time, loc *time.Location) (Row, *ParseError) {
	get := func(col string) string {
		if i, ok := idx[col]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	num := func(col string, required bool) (float64, *ParseError) {
		s := get(col)
		if s == "" {
			if required {
				return 0, &ParseError{Column: col, Err: errors.New("empty value")}
			}
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &ParseError{Column: col, Err: err}
		}
		return v, nil
	}

	row := Row{
		ContractSymbol: get(colContract),
		Symbol:         strings.ToUpper(get(colSymbol)),
		Expiry:         get(colExpiry),
		Timestamp:      taken,
	}
	if row.ContractSymbol == "" {
		return Row{}, &ParseError{Column: colContract, Err: errors.New("empty value")}
	}
	if row.Symbol == "" {
		return Row{}, &ParseError{Column: colSymbol, Err: errors.New("empty value")}
	}
	ot, err := ParseOptionType(get(colOptionType))
	if err != nil {
		return Row{}, &ParseError{Column: colOptionType, Err: err}
	}
	row.OptionType = ot

	var perr *ParseError
	if row.Strike, perr = num(colStrike, true); perr != nil {
		return Row{}, perr
	}
	if row.LastPrice, perr = num(colLastPrice, true); perr != nil {
		return Row{}, perr
	}
	if row.Volume, perr = num(colVolume, cat == Volume); perr != nil {
		return Row{}, perr
	}
	if row.OpenInterest, perr = num(colOI, cat == OpenInterest); perr != nil {
		return Row{}, perr
	}
	if row.Underlying.Close, perr = num(colClose, true); perr != nil {
		return Row{}, perr
	}
	if row.Underlying.Open, perr = num(colOpen, false); perr != nil {
		return Row{}, perr
	}
	if row.Underlying.High, perr = num(colHigh, false); perr != nil {
		return Row{}, perr
	}
	if row.Underlying.Low, perr = num(colLow, false); perr != nil {
		return Row{}, perr
	}
	if s := get(colTimestamp); s != "" {
		ts, err := parseTimestamp(s, loc)
		if err != nil {
			return Row{}, &ParseError{Column: colTimestamp, Err: err}
		}
		row.Timestamp = ts
	}
	return row, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
