package outlierfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/snapshot"
)

func sampleEvents() []outlier.Event {
	return []outlier.Event{
		{
			Category:          snapshot.Volume,
			ContractSymbol:    "AAPL250620C00200000",
			Symbol:            "AAPL",
			Strike:            200,
			OptionType:        snapshot.Call,
			Expiry:            "2025-06-20",
			Old:               3000,
			New:               4200,
			ChangePct:         0.4,
			Amount:            462000,
			AmountToMarketCap: 0.0000462,
			Opening:           true,
			LastPriceNew:      1.1,
			LastPriceOld:      1.0,
			Underlying:        snapshot.Price{Close: 102, Open: 100, High: 103, Low: 99.5},
			UnderlyingOld:     100,
			LastDayClose:      100,
			Descriptor:        outlier.VolumeCallBuyBullish,
		},
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2025, 10, 2, 15, 43, 0, 0, time.UTC)

	path, err := Write(dir, snapshot.Volume, taken, sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "volume_outlier_20251002-1543.csv"), path)

	files, err := List(dir, snapshot.Volume, time.UTC)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, taken, files[0].Taken)

	none, err := List(dir, snapshot.OpenInterest, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, none)

	events, skipped, err := Read(path, snapshot.Volume)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, events, 1)

	want := sampleEvents()[0]
	want.SourceFile = "volume_outlier_20251002-1543.csv"
	assert.Equal(t, want, events[0])
}

func TestDecode_SkipsBadRows(t *testing.T) {
	body := strings.Join([]string{
		"contractSymbol,strike,oiChange,signalType,optionType,openInterestNew,openInterestOld,amountThreshold,symbol",
		"A1,10,500,\"long buys call, bullish\",CALL,1500,1000,2500000,A",
		"A2,10,500,\"buys the dip\",CALL,1500,1000,2500000,A",
		"A3,ten,500,\"long buys call, bullish\",CALL,1500,1000,2500000,A",
		"A4,10,500,\"long buys put, bearish\",PUT,1500,1000,,A",
	}, "\n")

	events, skipped, err := Decode(strings.NewReader(body), "oi_outlier_20251002-1543.csv", snapshot.OpenInterest)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, outlier.OICallLongBuy, events[0].Descriptor)
	require.Len(t, skipped, 3)

	var unknown *outlier.UnknownSignalError
	assert.True(t, errors.As(skipped[0], &unknown))
	assert.Equal(t, "strike", skipped[1].Column)
	assert.Equal(t, "amountThreshold", skipped[2].Column)
	assert.Equal(t, 5, skipped[2].Line)
}

func TestDecode_MissingColumn(t *testing.T) {
	_, _, err := Decode(strings.NewReader("contractSymbol,strike\nA,1\n"), "f.csv", snapshot.Volume)
	assert.Error(t, err)
}

func TestRead_Missing(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "nope.csv"), snapshot.Volume)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
