package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func some(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

var none = decimal.NullDecimal{}

func TestPosition_Profit(t *testing.T) {
	long := NewPosition(false, d("100"), d("10"), d("10"), none, none)
	short := NewPosition(true, d("100"), d("10"), d("10"), none, none)

	assert.True(t, d("1").Equal(long.ProfitPercent(d("110"))))
	assert.True(t, d("20").Equal(long.CurrentQuantity(d("110"))))
	assert.True(t, d("-1").Equal(short.ProfitPercent(d("110"))))
	assert.True(t, d("0").Equal(short.CurrentQuantity(d("110"))))
	assert.True(t, d("100").Equal(long.TotalQuantity()))

	zero := &Position{Price: decimal.Zero, Quantity: d("1"), Leverage: d("1")}
	assert.True(t, zero.ProfitPercent(d("5")).IsZero())
}

func TestPosition_ProfitScalesWithLeverage(t *testing.T) {
	prices := []string{"73.5", "99.99", "100", "101.25", "250"}
	for _, lev := range []string{"2", "7", "75"} {
		for _, isShort := range []bool{false, true} {
			base := NewPosition(isShort, d("100"), d("13"), d("1"), none, none)
			levered := NewPosition(isShort, d("100"), d("13"), d(lev), none, none)
			for _, p := range prices {
				assert.True(t, base.ProfitQuantity(d(p)).Mul(d(lev)).Equal(levered.ProfitQuantity(d(p))),
					"lev %s short %v price %s", lev, isShort, p)
			}
		}
	}
}

func TestPosition_NeedsCloseByPercent(t *testing.T) {
	p := NewPosition(false, d("100"), d("10"), d("10"), none, none)
	tests := []struct {
		name     string
		price    string
		tp, sl   decimal.NullDecimal
		expected bool
	}{
		{"no thresholds", "200", none, none, false},
		{"take profit reached", "105", some("0.5"), none, true},
		{"take profit not reached", "104", some("0.5"), none, false},
		{"stop loss reached", "97", none, some("0.3"), true},
		{"stop loss not reached", "98", none, some("0.3"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.NeedsCloseByPercent(d(tt.price), tt.tp, tt.sl))
		})
	}
}

func TestPosition_PriceTriggers(t *testing.T) {
	long := NewPosition(false, d("100"), d("1"), d("1"), some("110"), some("95"))
	short := NewPosition(true, d("100"), d("1"), d("1"), some("90"), some("105"))

	assert.True(t, long.NeedsCloseByPrice(d("110")))
	assert.True(t, long.NeedsCloseByPrice(d("95")))
	assert.False(t, long.NeedsCloseByPrice(d("100")))
	assert.True(t, short.NeedsCloseByPrice(d("90")))
	assert.True(t, short.NeedsCloseByPrice(d("105")))
	assert.False(t, short.NeedsCloseByPrice(d("100")))

	assert.True(t, long.NeedsOpenByPrice(d("99")), "longs fill when price falls to target")
	assert.False(t, long.NeedsOpenByPrice(d("101")))
	assert.True(t, short.NeedsOpenByPrice(d("101")), "shorts fill when price rises to target")
	assert.False(t, short.NeedsOpenByPrice(d("99")))
}

func TestNewPosition_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { NewPosition(false, d("100"), d("0"), d("1"), none, none) })
	assert.Panics(t, func() { NewPosition(false, d("100"), d("1"), d("-2"), none, none) })
	assert.NotPanics(t, func() { NewPosition(true, d("100"), d("1"), d("1"), none, none) })
}
