package strategies

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skisTrader/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func skisOptions(start, stop string) domain.SkisOptions {
	return domain.SkisOptions{
		Quantity:           d("10"),
		Leverage:           d("10"),
		StartDelta:         d(start),
		StopDelta:          d(stop),
		QuantityMultiplier: domain.MultiplierNone,
	}
}

func TestSkis_EntersDownTrendOnFall(t *testing.T) {
	opts := skisOptions("0.01", "0.05")
	data := domain.SkisData{Trend: domain.TrendFlat, LastHigh: d("100"), LastLow: d("100")}
	strategy := Skis{}
	balance := d("1000")

	res := strategy.Run(d("100"), balance, data, opts)
	assert.Equal(t, domain.TrendFlat, res.Data.Trend)
	assert.Empty(t, res.OrdersToOpen)

	res = strategy.Run(d("99"), balance, res.Data, opts)
	assert.Equal(t, domain.TrendDown, res.Data.Trend, "a one percent fall meets the start delta")
	require.Len(t, res.OrdersToOpen, 1)

	res = strategy.Run(d("98"), balance, res.Data, opts)
	assert.Equal(t, domain.TrendDown, res.Data.Trend)
	require.Len(t, res.OrdersToOpen, 1)
	assert.True(t, res.OrdersToOpen[0].IsShort)
	assert.True(t, d("10").Equal(res.OrdersToOpen[0].Quantity))
	assert.True(t, d("98").Equal(res.Data.LastLow))
	assert.True(t, d("100").Equal(res.Data.LastHigh))
	assert.False(t, res.CloseLongs)
	assert.False(t, res.CloseShorts)
}

func TestSkis_EntersUpTrendOnRise(t *testing.T) {
	opts := skisOptions("0.02", "0.05")
	res := Skis{}.Run(d("100"), d("0"), domain.DefaultSkisData(), opts)
	assert.Equal(t, domain.TrendFlat, res.Data.Trend)
	assert.True(t, d("100").Equal(res.Data.LastLow))

	res = Skis{}.Run(d("102"), d("0"), res.Data, opts)

	assert.Equal(t, domain.TrendUp, res.Data.Trend)
	require.Len(t, res.OrdersToOpen, 1)
	assert.False(t, res.OrdersToOpen[0].IsShort)
}

func TestSkis_ExitsUpTrendOnRetracement(t *testing.T) {
	opts := skisOptions("0.5", "0.05")
	data := domain.SkisData{
		Trend:      domain.TrendUp,
		TrendSteps: 7,
		LastHigh:   d("200"),
		LastLow:    d("150"),
		StopLoss:   decimal.NewNullDecimal(d("180")),
	}

	res := Skis{}.Run(d("190"), d("1000"), data, opts)

	assert.True(t, res.CloseLongs)
	assert.False(t, res.CloseShorts)
	assert.Equal(t, domain.TrendFlat, res.Data.Trend)
	assert.Equal(t, 1, res.Data.TrendSteps)
	assert.True(t, d("190").Equal(res.Data.LastHigh))
	assert.True(t, d("190").Equal(res.Data.LastLow))
	assert.False(t, res.Data.StopLoss.Valid)
	assert.Empty(t, res.OrdersToOpen)
}

func TestSkis_ExitCanFlipIntoOppositeTrend(t *testing.T) {
	opts := skisOptions("0.01", "0.05")
	data := domain.SkisData{Trend: domain.TrendDown, TrendSteps: 3, LastHigh: d("90"), LastLow: d("80")}

	res := Skis{}.Run(d("90"), d("0"), data, opts)

	assert.True(t, res.CloseShorts)
	assert.Equal(t, domain.TrendUp, res.Data.Trend)
	require.Len(t, res.OrdersToOpen, 1)
	assert.False(t, res.OrdersToOpen[0].IsShort)
}

func TestSkis_ExitTickFlipsOnPreResetDeltas(t *testing.T) {
	opts := skisOptions("0.01", "0.05")
	data := domain.SkisData{Trend: domain.TrendUp, TrendSteps: 4, LastHigh: d("100"), LastLow: d("90")}

	// 6% below the high: past the stop delta and the start delta alike.
	res := Skis{}.Run(d("94"), d("1000"), data, opts)

	assert.True(t, res.CloseLongs)
	assert.False(t, res.CloseShorts)
	assert.Equal(t, domain.TrendDown, res.Data.Trend)
	assert.Equal(t, 1, res.Data.TrendSteps)
	assert.True(t, d("94").Equal(res.Data.LastHigh))
	assert.True(t, d("94").Equal(res.Data.LastLow))
	require.Len(t, res.OrdersToOpen, 1)
	assert.True(t, res.OrdersToOpen[0].IsShort)
}

func TestSkis_DownWinsTie(t *testing.T) {
	opts := skisOptions("0.01", "0.5")
	data := domain.SkisData{Trend: domain.TrendFlat, LastHigh: d("110"), LastLow: d("90")}

	res := Skis{}.Run(d("100"), d("0"), data, opts)

	assert.Equal(t, domain.TrendDown, res.Data.Trend)
}

func TestSkis_KeepsStopLossWhileInTrend(t *testing.T) {
	opts := skisOptions("0.01", "0.05")
	data := domain.SkisData{
		Trend:    domain.TrendUp,
		LastHigh: d("100"),
		LastLow:  d("90"),
		StopLoss: decimal.NewNullDecimal(d("95")),
	}

	res := Skis{}.Run(d("101"), d("0"), data, opts)

	assert.Equal(t, domain.TrendUp, res.Data.Trend)
	require.True(t, res.Data.StopLoss.Valid)
	assert.True(t, d("95").Equal(res.Data.StopLoss.Decimal))
	// The input value is left untouched.
	assert.True(t, d("100").Equal(data.LastHigh))
}

func TestSkis_Deterministic(t *testing.T) {
	opts := skisOptions("0.01", "0.02")
	opts.QuantityMultiplier = domain.MultiplierHighQuad
	path := []string{"100", "101", "103", "102", "99", "97", "96", "98", "100", "104", "101"}

	run := func() []domain.SkisData {
		var out []domain.SkisData
		data := domain.DefaultSkisData()
		for _, p := range path {
			res := Skis{}.Run(d(p), d("500"), data, opts)
			data = res.Data
			out = append(out, data)
		}
		return out
	}

	first, second := run(), run()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Trend, second[i].Trend, "step %d", i)
		assert.Equal(t, first[i].TrendSteps, second[i].TrendSteps, "step %d", i)
		assert.True(t, first[i].LastHigh.Equal(second[i].LastHigh), "step %d", i)
		assert.True(t, first[i].LastLow.Equal(second[i].LastLow), "step %d", i)
	}
}

func TestSkis_SuppressesSubLotOrders(t *testing.T) {
	opts := skisOptions("0.01", "0.05")
	opts.Quantity = d("1.5")
	opts.QuantityMultiplier = domain.MultiplierLow
	data := domain.SkisData{Trend: domain.TrendUp, TrendSteps: 5, LastHigh: d("100"), LastLow: d("90")}

	// 1.5 - 6/10 = 0.9
	res := Skis{}.Run(d("100"), d("0"), data, opts)

	assert.Equal(t, domain.TrendUp, res.Data.Trend)
	assert.Empty(t, res.OrdersToOpen)
}

func TestScaleQuantity(t *testing.T) {
	tests := []struct {
		multiplier domain.QuantityMultiplier
		want       string
	}{
		{domain.MultiplierNone, "10"},
		{domain.MultiplierLow, "8"},
		{domain.MultiplierLowQuad, "6"},
		{domain.MultiplierHigh, "12"},
		{domain.MultiplierHighQuad, "14"},
	}
	for _, tt := range tests {
		t.Run(tt.multiplier.String(), func(t *testing.T) {
			got := ScaleQuantity(d("10"), 20, tt.multiplier)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestLeverage(t *testing.T) {
	tests := []struct {
		base, balance, want string
	}{
		{"10", "0", "10"},
		{"5", "250", "10"},
		{"20", "350", "23"},
		{"20", "399.99", "23"},
		{"50", "10000", "75"},
	}
	for _, tt := range tests {
		got := Leverage(d(tt.base), d(tt.balance))
		assert.True(t, d(tt.want).Equal(got), "base %s balance %s: got %s", tt.base, tt.balance, got)
	}
}
