package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

type side struct {
	size  float64
	last  float64
	close float64
}

func row(cat snapshot.Category, contract, symbol string, ot snapshot.OptionType, s side) snapshot.Row {
	r := snapshot.Row{
		ContractSymbol: contract,
		Symbol:         symbol,
		Strike:         100,
		OptionType:     ot,
		Expiry:         "2025-06-20",
		LastPrice:      s.last,
		Underlying:     snapshot.Price{Close: s.close},
	}
	if cat == snapshot.Volume {
		r.Volume = s.size
	} else {
		r.OpenInterest = s.size
	}
	return r
}

func pair(cat snapshot.Category, cur, ref []snapshot.Row) Input {
	taken := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	return Input{
		Folder:     "data",
		Current:    &snapshot.Snapshot{Category: cat, Folder: "data", File: snapshot.File{Name: "all-20250610-1000.csv", Taken: taken}, Rows: cur},
		Reference:  &snapshot.Snapshot{Category: cat, Folder: "data", File: snapshot.File{Name: "all-20250609-1000.csv", Taken: taken.Add(-24 * time.Hour)}, Rows: ref},
		MarketCaps: map[string]float64{},
	}
}

func TestVolume_Detect(t *testing.T) {
	testCases := []struct {
		name       string
		ot         snapshot.OptionType
		old, new   side
		marketCap  float64
		expected   outlier.Descriptor
		expectStat Stats
	}{
		{
			name:       "call bought into a rally",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 1.0, close: 100},
			new:        side{size: 4200, last: 1.1, close: 102},
			marketCap:  1e10,
			expected:   outlier.VolumeCallBuyBullish,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "increase below percentage",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 1.0, close: 100},
			new:        side{size: 3600, last: 1.1, close: 102},
			expectStat: Stats{Compared: 1, BelowLimit: 1},
		},
		{
			name:       "volume below minimum",
			ot:         snapshot.Call,
			old:        side{size: 100, last: 1.0, close: 100},
			new:        side{size: 2000, last: 1.1, close: 102},
			expectStat: Stats{Compared: 1, BelowLimit: 1},
		},
		{
			name:       "no prior volume and unknown market cap",
			ot:         snapshot.Put,
			old:        side{size: 0, last: 1.0, close: 100},
			new:        side{size: 5000, last: 1.2, close: 97},
			expectStat: Stats{Compared: 1, Filtered: 1},
		},
		{
			name:       "no prior volume with market cap",
			ot:         snapshot.Put,
			old:        side{size: 0, last: 1.0, close: 100},
			new:        side{size: 5000, last: 1.2, close: 97},
			marketCap:  1e9,
			expected:   outlier.VolumePutBuyBearish,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "tiny relative to market cap",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 1.0, close: 100},
			new:        side{size: 4200, last: 1.1, close: 102},
			marketCap:  1e13,
			expectStat: Stats{Compared: 1, Filtered: 1},
		},
		{
			name:       "flat stock has no posture",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 1.0, close: 100},
			new:        side{size: 4200, last: 1.1, close: 100.5},
			marketCap:  1e10,
			expectStat: Stats{Compared: 1, NoPosture: 1},
		},
		{
			name:       "stock move exactly at threshold is flat",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 1.0, close: 100},
			new:        side{size: 4200, last: 1.1, close: 101},
			marketCap:  1e10,
			expectStat: Stats{Compared: 1, NoPosture: 1},
		},
		{
			name:       "cheap contract with unknown market cap",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 0.05, close: 100},
			new:        side{size: 4000, last: 0.06, close: 102},
			expectStat: Stats{Compared: 1, BelowLimit: 1},
		},
		{
			name:       "large traded notional with unknown market cap",
			ot:         snapshot.Call,
			old:        side{size: 3000, last: 5, close: 100},
			new:        side{size: 10000, last: 6, close: 102},
			expected:   outlier.VolumeCallBuyBullish,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := pair(snapshot.Volume,
				[]snapshot.Row{row(snapshot.Volume, "C1", "AAA", tc.ot, tc.new)},
				[]snapshot.Row{row(snapshot.Volume, "C1", "AAA", tc.ot, tc.old)})
			if tc.marketCap > 0 {
				in.MarketCaps["AAA"] = tc.marketCap
			}

			events, stats, err := NewVolume(config.Default().Detection, zap.NewNop()).Detect(context.Background(), in)

			require.NoError(t, err)
			assert.Equal(t, tc.expectStat, stats)
			if tc.expected == 0 {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			ev := events[0]
			assert.Equal(t, tc.expected, ev.Descriptor)
			assert.Equal(t, tc.new.size, ev.New)
			assert.Equal(t, tc.old.size, ev.Old)
			assert.InDelta(t, tc.new.last*tc.new.size*100, ev.Amount, 1e-6)
			if tc.marketCap > 0 {
				assert.InDelta(t, ev.Amount/tc.marketCap, ev.AmountToMarketCap, 1e-12)
			} else {
				assert.Zero(t, ev.AmountToMarketCap)
			}
			assert.Equal(t, "data", ev.Folder)
			assert.Equal(t, snapshot.Volume, ev.Category)
		})
	}
}

func TestVolume_Detect_PercentageOverride(t *testing.T) {
	cfg := config.Default().Detection
	cfg.MinVolume = 1000

	in := pair(snapshot.Volume,
		[]snapshot.Row{row(snapshot.Volume, "C1", "AAA", snapshot.Call, side{size: 1400, last: 1.1, close: 102})},
		[]snapshot.Row{row(snapshot.Volume, "C1", "AAA", snapshot.Call, side{size: 1000, last: 1.0, close: 100})})
	in.MarketCaps["AAA"] = 1e9

	events, _, err := NewVolume(cfg, zap.NewNop()).Detect(context.Background(), in)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, 0.4, events[0].ChangePct, 1e-9)
	assert.True(t, events[0].Opening, "a 400 lot increase over zero open interest is opening")
}

func TestVolume_Detect_Unmatched(t *testing.T) {
	in := pair(snapshot.Volume,
		[]snapshot.Row{row(snapshot.Volume, "NEW", "AAA", snapshot.Call, side{size: 9000, last: 1, close: 100})},
		[]snapshot.Row{row(snapshot.Volume, "OLD", "AAA", snapshot.Call, side{size: 10, last: 1, close: 100})})

	events, stats, err := NewVolume(config.Default().Detection, zap.NewNop()).Detect(context.Background(), in)

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, Stats{Compared: 1, Unmatched: 1}, stats)
}

func TestVolume_Detect_WrongCategory(t *testing.T) {
	in := pair(snapshot.OpenInterest, nil, nil)
	_, _, err := NewVolume(config.Default().Detection, zap.NewNop()).Detect(context.Background(), in)
	assert.Error(t, err)
}

func TestOpenInterest_Detect(t *testing.T) {
	testCases := []struct {
		name       string
		ot         snapshot.OptionType
		old, new   side
		marketCap  float64
		expected   outlier.Descriptor
		expectStat Stats
	}{
		{
			name:       "large notional bypasses market cap",
			ot:         snapshot.Call,
			old:        side{size: 10000, last: 10, close: 100},
			new:        side{size: 12000, last: 10, close: 102},
			expected:   outlier.OICallLongBuy,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "small notional without market cap",
			ot:         snapshot.Call,
			old:        side{size: 100, last: 1.0, close: 100},
			new:        side{size: 150, last: 1.2, close: 102},
			expectStat: Stats{Compared: 1, BelowLimit: 1},
		},
		{
			name:       "small notional large for the underlying",
			ot:         snapshot.Put,
			old:        side{size: 100, last: 1.0, close: 100},
			new:        side{size: 150, last: 1.2, close: 98},
			marketCap:  1e8,
			expected:   outlier.OIPutLongBuy,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "small notional small for the underlying",
			ot:         snapshot.Put,
			old:        side{size: 100, last: 1.0, close: 100},
			new:        side{size: 150, last: 1.2, close: 98},
			marketCap:  1e12,
			expectStat: Stats{Compared: 1, Filtered: 1},
		},
		{
			name:       "unchanged open interest",
			ot:         snapshot.Call,
			old:        side{size: 5000, last: 50, close: 100},
			new:        side{size: 5000, last: 60, close: 110},
			expectStat: Stats{Compared: 1, BelowLimit: 1},
		},
		{
			name:       "flat option price on a modest change",
			ot:         snapshot.Call,
			old:        side{size: 1000, last: 100, close: 100},
			new:        side{size: 1500, last: 101, close: 102},
			expectStat: Stats{Compared: 1, NoPosture: 1},
		},
		{
			name:       "large change relaxes the option threshold",
			ot:         snapshot.Call,
			old:        side{size: 5000, last: 20, close: 100},
			new:        side{size: 3000, last: 19.9, close: 98},
			expected:   outlier.OICallLongClose,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "large change with flat option price on a falling stock",
			ot:         snapshot.Call,
			old:        side{size: 10000, last: 20, close: 100},
			new:        side{size: 12000, last: 20, close: 97},
			expected:   outlier.OICallShortSell,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "large put change with flat option price on a rising stock",
			ot:         snapshot.Put,
			old:        side{size: 10000, last: 20, close: 100},
			new:        side{size: 12000, last: 20, close: 103},
			expected:   outlier.OIPutShortSell,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "large closing with flat option price",
			ot:         snapshot.Call,
			old:        side{size: 12000, last: 20, close: 100},
			new:        side{size: 10000, last: 20, close: 97},
			expected:   outlier.OICallLongClose,
			expectStat: Stats{Compared: 1, Emitted: 1},
		},
		{
			name:       "modest change with flat option price",
			ot:         snapshot.Call,
			old:        side{size: 1000, last: 50, close: 100},
			new:        side{size: 1500, last: 50, close: 97},
			expectStat: Stats{Compared: 1, NoPosture: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := pair(snapshot.OpenInterest,
				[]snapshot.Row{row(snapshot.OpenInterest, "C1", "AAA", tc.ot, tc.new)},
				[]snapshot.Row{row(snapshot.OpenInterest, "C1", "AAA", tc.ot, tc.old)})
			if tc.marketCap > 0 {
				in.MarketCaps["AAA"] = tc.marketCap
			}

			events, stats, err := NewOpenInterest(config.Default().Detection, zap.NewNop()).Detect(context.Background(), in)

			require.NoError(t, err)
			assert.Equal(t, tc.expectStat, stats)
			if tc.expected == 0 {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, tc.expected, events[0].Descriptor)
			assert.Equal(t, tc.new.size-tc.old.size, events[0].Change)
		})
	}
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	var cur, ref []snapshot.Row
	for i := 0; i < 60; i++ {
		sym := fmt.Sprintf("S%02d", i%12)
		contract := fmt.Sprintf("%s-C%02d", sym, i)
		ref = append(ref, row(snapshot.Volume, contract, sym, snapshot.Call, side{size: 3000, last: 1.0, close: 100}))
		cur = append(cur, row(snapshot.Volume, contract, sym, snapshot.Call, side{size: 4000 + float64(i%7)*100, last: 1.2, close: 103}))
	}
	in := pair(snapshot.Volume, cur, ref)
	for i := 0; i < 12; i++ {
		in.MarketCaps[fmt.Sprintf("S%02d", i)] = 1e9
	}

	detect := func(workers int) []outlier.Event {
		cfg := config.Default().Detection
		cfg.Workers = workers
		events, stats, err := NewVolume(cfg, zap.NewNop()).Detect(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, 60, stats.Emitted)
		return events
	}

	single := detect(1)
	many := detect(8)
	assert.Equal(t, single, many)
	for i := 1; i < len(single); i++ {
		assert.GreaterOrEqual(t, single[i-1].Amount, single[i].Amount)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := pair(snapshot.Volume,
		[]snapshot.Row{row(snapshot.Volume, "C1", "AAA", snapshot.Call, side{size: 4200, last: 1.1, close: 102})},
		[]snapshot.Row{row(snapshot.Volume, "C1", "AAA", snapshot.Call, side{size: 3000, last: 1.0, close: 100})})

	_, _, err := NewVolume(config.Default().Detection, zap.NewNop()).Detect(ctx, in)

	assert.ErrorIs(t, err, context.Canceled)
}
