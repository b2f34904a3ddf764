package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"options-anomaly-trader/internal/config"
	"options-anomaly-trader/internal/models"
	"options-anomaly-trader/internal/outlier"
)

func TestOutlierSignalStrategy_Decide(t *testing.T) {
	now := time.Date(2025, 10, 2, 16, 0, 0, 0, time.UTC)
	cfg := config.Default().Trading
	ctx := StrategyContext{Logger: zap.NewNop(), Cfg: &cfg, Now: now}

	held := func(age time.Duration) *models.Transaction {
		return &models.Transaction{Symbol: "X", IsHolding: true, BuyDate: now.Add(-age)}
	}
	agg := func(bull, bear int) *outlier.Aggregate {
		return &outlier.Aggregate{Symbol: "X", Bullish: bull, Bearish: bear}
	}

	testCases := []struct {
		name     string
		agg      *outlier.Aggregate
		pos      *models.Transaction
		expected Action
	}{
		{"buy on clean bullish run", agg(3, 0), nil, ActionBuy},
		{"buy at the threshold", agg(2, 0), nil, ActionBuy},
		{"no buy below the threshold", agg(1, 0), nil, ActionNone},
		{"no buy with any bearish", agg(5, 1), nil, ActionNone},
		{"no buy without signals", nil, nil, ActionNone},
		{"hold on bullish majority", agg(4, 2), held(time.Hour), ActionHold},
		{"sell when bearish reaches three", agg(1, 4), held(time.Hour), ActionSell},
		{"bearish three beats bullish majority", agg(5, 3), held(time.Hour), ActionSell},
		{"hold on mixed below three", agg(1, 2), held(time.Hour), ActionHold},
		{"hold on bullish only", agg(2, 0), held(time.Hour), ActionHold},
		{"sell on bearish only", agg(0, 1), held(time.Hour), ActionSell},
		{"sell when absent for over a day", nil, held(30 * time.Hour), ActionSell},
		{"hold when absent within a day", nil, held(23 * time.Hour), ActionHold},
		{"hold when absent exactly a day", nil, held(24 * time.Hour), ActionHold},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := OutlierSignalStrategy{}.Decide(ctx, "X", tc.agg, tc.pos)
			assert.Equal(t, tc.expected, d.Action)
			assert.Equal(t, "X", d.Symbol)
		})
	}
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("outlier_signal")
	assert.NoError(t, err)
	assert.Equal(t, OutlierSignalName, s.Name())

	_, err = NewStrategy("martingale")
	assert.Error(t, err)
}
