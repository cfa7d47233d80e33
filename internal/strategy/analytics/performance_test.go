package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(month time.Month, dd int) time.Time {
	return time.Date(2024, month, dd, 0, 0, 0, 0, time.UTC)
}

func TestAnalyzeEquity(t *testing.T) {
	curve := []EquityPoint{
		{Time: day(time.January, 1), Value: d("1000")},
		{Time: day(time.January, 2), Value: d("1100")},
		{Time: day(time.January, 3), Value: d("990")},
		{Time: day(time.February, 1), Value: d("1045")},
		{Time: day(time.February, 2), Value: d("1210")},
	}

	metrics := AnalyzeEquity(curve, d("1000"))

	assert.True(t, d("1210").Equal(metrics.FinalEquity))
	assert.True(t, d("1210").Equal(metrics.PeakEquity))
	assert.True(t, d("210").Equal(metrics.TotalProfit))
	assert.True(t, d("0.21").Equal(metrics.ReturnOnInvestment))
	assert.True(t, d("0.1").Equal(metrics.MaxDrawdown), "max drawdown %s", metrics.MaxDrawdown)
	assert.False(t, metrics.Ruined)
	assert.Greater(t, metrics.Volatility, 0.0)
	assert.Greater(t, metrics.SharpeRatio, 0.0)

	require.Len(t, metrics.EquityCurve, len(curve))
	assert.True(t, d("0.1").Equal(metrics.EquityCurve[2].Drawdown))
	assert.True(t, d("0.05").Equal(metrics.EquityCurve[3].Drawdown))
	assert.True(t, metrics.EquityCurve[4].Drawdown.IsZero())
	assert.True(t, curve[2].Drawdown.IsZero(), "input curve is not modified")
}

func TestAnalyzeEquityDrawdown(t *testing.T) {
	curve := []EquityPoint{
		{Time: day(time.January, 2), Value: d("1100")},
		{Time: day(time.January, 3), Value: d("990")},
		{Time: day(time.January, 5), Value: d("1045")},
		{Time: day(time.January, 9), Value: d("1100")},
		{Time: day(time.January, 10), Value: d("880")},
	}

	metrics := AnalyzeEquity(curve, d("1000"))

	require.Len(t, metrics.Drawdowns, 2)
	first := metrics.Drawdowns[0]
	assert.Equal(t, day(time.January, 3), first.StartTime)
	assert.Equal(t, day(time.January, 9), first.EndTime)
	assert.Equal(t, 6*24*time.Hour, first.Duration)
	assert.True(t, d("1100").Equal(first.StartValue))
	assert.True(t, d("0.1").Equal(first.Depth))

	// Still open at the end of the curve.
	second := metrics.Drawdowns[1]
	assert.True(t, d("0.2").Equal(second.Depth))
	assert.True(t, d("880").Equal(second.EndValue))
	assert.True(t, d("0.2").Equal(metrics.MaxDrawdown))
}

func TestAnalyzeEquityMonthlyReturns(t *testing.T) {
	curve := []EquityPoint{
		{Time: day(time.January, 1), Value: d("1000")},
		{Time: day(time.January, 3), Value: d("990")},
		{Time: day(time.February, 1), Value: d("1045")},
		{Time: day(time.February, 2), Value: d("1210")},
		{Time: day(time.March, 1), Value: d("1200")},
	}

	returns := AnalyzeEquity(curve, d("1000")).GetMonthlyReturns()

	require.Len(t, returns, 3)
	assert.Equal(t, day(time.January, 1), returns[0].Month)
	assert.True(t, d("-10").Equal(returns[0].Return))
	assert.True(t, d("220").Equal(returns[1].Return))
	assert.True(t, d("-10").Equal(returns[2].Return))
}

func TestAnalyzeEquityEmptyAndRuined(t *testing.T) {
	empty := AnalyzeEquity(nil, d("1000"))
	assert.True(t, d("1000").Equal(empty.FinalEquity))
	assert.True(t, empty.MaxDrawdown.IsZero())
	assert.Empty(t, empty.Drawdowns)
	assert.Zero(t, empty.SharpeRatio)

	ruined := AnalyzeEquity([]EquityPoint{
		{Time: day(time.January, 1), Value: d("100")},
		{Time: day(time.January, 2), Value: d("0")},
		{Time: day(time.January, 3), Value: d("0")},
	}, d("100"))
	assert.True(t, ruined.Ruined)
	assert.True(t, d("1").Equal(ruined.MaxDrawdown))
	assert.True(t, d("-1").Equal(ruined.ReturnOnInvestment))
}

func TestAddStatistics(t *testing.T) {
	stats := account.Statistics{
		Longs:  account.SideStatistics{TotalCount: 3, WinsCount: 2, LosesCount: 1, WinsSum: d("30"), LosesSum: d("5")},
		Shorts: account.SideStatistics{TotalCount: 2, WinsCount: 1, LosesCount: 1, WinsSum: d("10"), LosesSum: d("5")},
	}

	metrics := AnalyzeEquity(nil, d("1000"))
	metrics.AddStatistics(stats, d("1.5"))

	assert.Equal(t, 5, metrics.TotalTrades)
	assert.Equal(t, 3, metrics.LongTrades)
	assert.Equal(t, 2, metrics.ShortTrades)
	assert.Equal(t, 3, metrics.WinningTrades)
	assert.Equal(t, 2, metrics.LosingTrades)
	assert.True(t, d("0.6").Equal(metrics.WinrateCount))
	assert.True(t, d("0.8").Equal(metrics.WinrateSum))
	assert.True(t, d("1.5").Equal(metrics.PayedCommission))
}

func TestAddTradesConsecutive(t *testing.T) {
	outcomes := []bool{true, true, false, true, true, true, false, false}
	trades := make([]domain.Trade, len(outcomes))
	for i, win := range outcomes {
		trades[i] = domain.Trade{Pair: "ETHUSDT", IsWin: win}
	}

	metrics := AnalyzeEquity(nil, d("1000"))
	metrics.AddTrades(trades)

	assert.Equal(t, 3, metrics.MaxConsecutiveWins)
	assert.Equal(t, 2, metrics.MaxConsecutiveLosses)
}
