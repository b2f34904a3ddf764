package outlier

import (
	"fmt"
	"strings"
)

// Descriptor is the trading posture a detector assigns to an outlier.
// The zero value is not a valid descriptor.
type Descriptor uint8

const (
	descriptorInvalid Descriptor = iota

	VolumeCallBuyBullish
	VolumeCallSellHedge
	VolumeCallVolatility
	VolumeCallSellBearish
	VolumePutBuyBearish
	VolumePutSellHedge
	VolumePutVolatility
	VolumePutSellBullish

	OICallLongBuy
	OICallShortSell
	OICallShortCover
	OICallLongClose
	OIPutLongBuy
	OIPutShortSell
	OIPutShortCover
	OIPutLongClose

	descriptorEnd
)

// Bucket is the four-way classification outcome, plus Excluded.
type Bucket uint8

const (
	Excluded Bucket = iota
	BullishCall
	BearishCall
	BullishPut
	BearishPut
)

func (b Bucket) String() string {
	switch b {
	case BullishCall:
		return "bullish call"
	case BearishCall:
		return "bearish call"
	case BullishPut:
		return "bullish put"
	case BearishPut:
		return "bearish put"
	}
	return "excluded"
}

// Signal is the canonical tuple a descriptor maps to.
type Signal struct {
	Bucket  Bucket
	Bullish bool
	Bearish bool
	Call    bool
	Put     bool
	Count   bool
}

var (
	bullishCall = Signal{Bucket: BullishCall, Bullish: true, Call: true, Count: true}
	bearishCall = Signal{Bucket: BearishCall, Bearish: true, Call: true, Count: true}
	bullishPut  = Signal{Bucket: BullishPut, Bullish: true, Put: true, Count: true}
	bearishPut  = Signal{Bucket: BearishPut, Bearish: true, Put: true, Count: true}
	closingCall = Signal{Bucket: Excluded, Call: true}
	closingPut  = Signal{Bucket: Excluded, Put: true}
)

type entry struct {
	label  string
	signal Signal
}

// table is positional, one entry per descriptor in declaration order. Its
// length is pinned to descriptorEnd, so a descriptor added without an entry
// does not compile.
var table = [...]entry{
	{"", Signal{}}, // descriptorInvalid

	{"buy call, bullish", bullishCall},
	{"sell call, bearish hedge", bearishCall},
	{"buy call to close, volatility trade", closingCall},
	{"sell call, bearish", bearishCall},
	{"buy put, bearish", bearishPut},
	{"sell put, bullish hedge", bullishPut},
	{"buy put to close, volatility trade", closingPut},
	{"sell put, bullish", bullishPut},

	{"long buys call, bullish", bullishCall},
	{"short sells call, bearish", bearishCall},
	{"short covers call, bullish", bullishCall},
	{"long closes call, bullish weakening", bearishCall},
	{"long buys put, bearish", bearishPut},
	{"short sells put, bullish", bullishPut},
	{"short covers put, bearish weakening", closingPut},
	{"long closes put, bearish weakening", bullishPut},
}

var _ [descriptorEnd]entry = table

var labelIndex = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(table))
	for d := descriptorInvalid + 1; d < descriptorEnd; d++ {
		m[table[d].label] = d
	}
	return m
}()

// Descriptors returns every valid descriptor in declaration order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, descriptorEnd-1)
	for d := descriptorInvalid + 1; d < descriptorEnd; d++ {
		out = append(out, d)
	}
	return out
}

// Valid reports whether d is a member of the vocabulary.
func (d Descriptor) Valid() bool {
	return d > descriptorInvalid && d < descriptorEnd
}

// String returns the human readable posture label.
func (d Descriptor) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Descriptor(%d)", uint8(d))
	}
	return table[d].label
}

// ParseDescriptor looks a label up in the vocabulary.
func ParseDescriptor(label string) (Descriptor, error) {
	if d, ok := labelIndex[strings.TrimSpace(label)]; ok {
		return d, nil
	}
	return descriptorInvalid, &UnknownSignalError{Label: label}
}

// Classify maps a descriptor to its signal.
func Classify(d Descriptor) (Signal, error) {
	if !d.Valid() {
		return Signal{}, &UnknownSignalError{Descriptor: d}
	}
	return table[d].signal, nil
}

// Move is the direction of a price or size change against its threshold.
type Move int8

const (
	Down Move = -1
	Flat Move = 0
	Up   Move = 1
)

// MoveOf compares change with a symmetric threshold. A move must exceed the
// threshold; a change exactly at it is Flat.
func MoveOf(change, threshold float64) Move {
	switch {
	case change > threshold:
		return Up
	case change < -threshold:
		return Down
	}
	return Flat
}

// OptionMoves returns the option moves to try, in order, when picking an
// open-interest posture. Relaxed drops the threshold and lets an unchanged
// price count as either direction.
func OptionMoves(change, threshold float64, relaxed bool) []Move {
	if !relaxed {
		return []Move{MoveOf(change, threshold)}
	}
	switch {
	case change > 0:
		return []Move{Up}
	case change < 0:
		return []Move{Down}
	}
	return []Move{Up, Down}
}

// VolumeDescriptor picks the posture for a volume outlier from the stock and
// option price moves. ok is false when the combination has no posture.
func VolumeDescriptor(call bool, stock, option Move) (Descriptor, bool) {
	k := [2]Move{stock, option}
	if call {
		d, ok := volumeCall[k]
		return d, ok
	}
	d, ok := volumePut[k]
	return d, ok
}

var (
	volumeCall = map[[2]Move]Descriptor{
		{Up, Up}:     VolumeCallBuyBullish,
		{Up, Down}:   VolumeCallSellHedge,
		{Down, Up}:   VolumeCallVolatility,
		{Down, Down}: VolumeCallSellBearish,
	}
	volumePut = map[[2]Move]Descriptor{
		{Down, Up}:   VolumePutBuyBearish,
		{Down, Down}: VolumePutSellHedge,
		{Up, Up}:     VolumePutVolatility,
		{Up, Down}:   VolumePutSellBullish,
	}
)

// OIDescriptor picks the posture for an open-interest outlier from the stock
// and option price moves and the direction of the open-interest change.
func OIDescriptor(call bool, stock, option, oi Move) (Descriptor, bool) {
	k := [3]Move{stock, option, oi}
	if call {
		d, ok := oiCall[k]
		return d, ok
	}
	d, ok := oiPut[k]
	return d, ok
}

var (
	oiCall = map[[3]Move]Descriptor{
		{Up, Up, Up}:       OICallLongBuy,
		{Down, Down, Up}:   OICallShortSell,
		{Up, Up, Down}:     OICallShortCover,
		{Down, Down, Down}: OICallLongClose,
	}
	oiPut = map[[3]Move]Descriptor{
		{Down, Up, Up}:   OIPutLongBuy,
		{Up, Down, Up}:   OIPutShortSell,
		{Down, Up, Down}: OIPutShortCover,
		{Up, Down, Down}: OIPutLongClose,
	}
)
