package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skisTrader/config"
	"skisTrader/internal/domain"
	"skisTrader/internal/strategy/analytics"
	"skisTrader/internal/strategy/optimization"
)

func TestPositionIDsStayUniqueWithRandPool(t *testing.T) {
	uuid.EnableRandPool()
	t.Cleanup(uuid.DisableRandPool)

	seen := make(map[uuid.UUID]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		p := domain.NewPosition(i%2 == 0, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1),
			decimal.NullDecimal{}, decimal.NullDecimal{})
		_, dup := seen[p.ID]
		require.False(t, dup, "duplicate id %s", p.ID)
		seen[p.ID] = struct{}{}
	}
}

func TestNewBenchmark(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sweep := &config.Sweep{Name: "march", Start: start, End: start.AddDate(0, 1, 0)}
	curve := []analytics.EquityPoint{{Time: start, Value: decimal.NewFromInt(1000)}}
	results := []optimization.OptimizationResult{
		{
			Parameters: map[string]decimal.Decimal{optimization.ParamStartDelta: decimal.RequireFromString("0.01")},
			Score:      1250,
			Metrics: &analytics.PerformanceMetrics{
				FinalEquity:  decimal.RequireFromString("1250.456"),
				MaxDrawdown:  decimal.RequireFromString("0.12345"),
				WinrateCount: decimal.RequireFromString("0.5"),
				TotalTrades:  12,
				EquityCurve:  curve,
			},
		},
		{
			Parameters: map[string]decimal.Decimal{optimization.ParamStartDelta: decimal.RequireFromString("0.02")},
			Score:      0,
			Metrics:    &analytics.PerformanceMetrics{Ruined: true},
		},
	}

	b := newBenchmark("march-BTCUSDT", []string{"BTCUSDT"}, sweep, 96, 2, 1500*time.Microsecond, results)

	assert.Equal(t, "march-BTCUSDT", b.Run)
	assert.Equal(t, start, b.Start)
	assert.Equal(t, 96, b.Windows)
	assert.Equal(t, "2ms", b.Elapsed)
	require.Len(t, b.Results, 2)
	assert.Equal(t, "1250.46", b.Results[0].FinalEquity)
	assert.Equal(t, "0.1235", b.Results[0].MaxDrawdown)
	assert.Equal(t, "0.01", b.Results[0].Params[optimization.ParamStartDelta])
	assert.Equal(t, 12, b.Results[0].Trades)
	assert.True(t, b.Results[1].Ruined)
	assert.Equal(t, curve, b.BestCurve, "the best curve belongs to the top ranked result")

	empty := newBenchmark("none", nil, sweep, 0, 0, 0, nil)
	assert.Empty(t, empty.Results)
	assert.Nil(t, empty.BestCurve)
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "quantityMultiplier=none startDelta=0.01",
		formatParams(map[string]string{"startDelta": "0.01", "quantityMultiplier": "none"}))
}
