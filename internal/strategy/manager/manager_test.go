package manager

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func flatAt(price string) domain.SkisData {
	return domain.SkisData{Trend: domain.TrendFlat, LastHigh: d(price), LastLow: d(price)}
}

func testOptions() domain.SkisOptions {
	return domain.SkisOptions{
		Quantity:           d("10"),
		Leverage:           d("10"),
		StartDelta:         d("0.01"),
		StopDelta:          d("0.5"),
		QuantityMultiplier: domain.MultiplierNone,
	}
}

func halfLock() TrailingStop {
	return TrailingStop{MinPnl: d("1"), MaxPnl: d("100"), MinMultiplier: d("0.5"), MaxMultiplier: d("0.5")}
}

func TestTrailingStop_Multiplier(t *testing.T) {
	ts := DefaultTrailingStop()

	tests := []struct {
		name string
		pnl  string
		want string
		ok   bool
	}{
		{"below minimum", "39.99", "0", false},
		{"at minimum", "40", "0.3", true},
		{"midway", "120", "0.6", true},
		{"clamped above maximum", "1000", "0.9", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := ts.Multiplier(d(tt.pnl))
			assert.Equal(t, tt.ok, ok)
			assert.True(t, d(tt.want).Equal(m), "got %s", m)
		})
	}
}

func TestTrailingStop_Validate(t *testing.T) {
	assert.NoError(t, DefaultTrailingStop().Validate())
	assert.Error(t, TrailingStop{MinPnl: d("5"), MaxPnl: d("1")}.Validate())
	assert.Error(t, TrailingStop{MinMultiplier: d("0.9"), MaxMultiplier: d("0.1")}.Validate())
}

func TestStopPrice(t *testing.T) {
	assert.True(t, d("105").Equal(StopPrice(false, d("100"), d("110"), d("0.5"))))
	assert.True(t, d("95").Equal(StopPrice(true, d("100"), d("90"), d("0.5"))))
}

func TestSandbox_ProcessStep(t *testing.T) {
	m, err := NewSkis(SkisConfig{
		Pair:        "ETHUSDT",
		Account:     account.Config{InitialBalance: d("1000")},
		Data:        flatAt("100"),
		Options:     testOptions(),
		ProcessStep: 3,
	})
	require.NoError(t, err)

	assert.False(t, m.Run(d("150"), 1))
	assert.Equal(t, flatAt("100"), m.Data())
	assert.True(t, m.Run(d("150"), 3))
	assert.Equal(t, domain.TrendUp, m.Data().Trend)
}

func TestSkis_TrailingStopLifecycle(t *testing.T) {
	m, err := NewSkis(SkisConfig{
		Pair:     "ETHUSDT",
		Account:  account.Config{InitialBalance: d("1050"), RecordHistory: true},
		Data:     flatAt("100"),
		Options:  testOptions(),
		Trailing: halfLock(),
	})
	require.NoError(t, err)
	acc := m.Account()

	require.True(t, m.Run(d("100"), 1))
	assert.Empty(t, acc.Orders())

	m.Run(d("102"), 2)
	require.Len(t, acc.Longs(), 1)
	assert.True(t, d("20").Equal(acc.Longs()[0].Leverage))
	assert.False(t, m.Data().StopLoss.Valid, "no profit yet")

	m.Run(d("112.2"), 3)
	require.Len(t, acc.Longs(), 2)
	stop := m.Data().StopLoss
	require.True(t, stop.Valid)
	// break even 107.1, halfway to 112.2
	assert.True(t, d("109.65").Equal(stop.Decimal), "stop %s", stop.Decimal)

	m.ProcessMarket(d("113"), d("110"))
	assert.Len(t, acc.Orders(), 2, "range above the stop keeps positions")

	m.ProcessMarket(d("113"), d("109"))
	assert.Empty(t, acc.Orders())
	assert.Equal(t, domain.DefaultSkisData(), m.Data())

	history := acc.History()
	require.Len(t, history, 2)
	for _, tr := range history {
		assert.Equal(t, domain.CloseReasonTrailingStop, tr.CloseReason)
		assert.True(t, d("109.65").Equal(tr.ExitPrice))
	}
	assert.True(t, d("25").Equal(history[0].Payout))
}

func TestSkis_TrendExitClosesSide(t *testing.T) {
	opts := testOptions()
	opts.StopDelta = d("0.05")
	m, err := NewSkis(SkisConfig{
		Pair:    "ETHUSDT",
		Account: account.Config{InitialBalance: d("1000")},
		Data:    flatAt("100"),
		Options: opts,
	})
	require.NoError(t, err)

	m.Run(d("98"), 1)
	m.Run(d("97"), 2)
	require.Len(t, m.Account().Shorts(), 2)

	m.Run(d("103"), 3)
	assert.Empty(t, m.Account().Shorts())
	assert.Equal(t, domain.TrendUp, m.Data().Trend)
	assert.Len(t, m.Account().Longs(), 1)
}

func TestSkis_RejectedOrdersAreSkipped(t *testing.T) {
	m, err := NewSkis(SkisConfig{
		Pair:    "ETHUSDT",
		Account: account.Config{InitialBalance: d("10")},
		Data:    flatAt("100"),
		Options: testOptions(),
	})
	require.NoError(t, err)

	assert.True(t, m.Run(d("110"), 1))
	assert.Equal(t, domain.TrendUp, m.Data().Trend)
	assert.Empty(t, m.Account().Orders())
	assert.True(t, d("10").Equal(m.Balance()))
}

func newMultipair(t *testing.T, balance string) *SkisMultipair {
	t.Helper()
	m, err := NewSkisMultipair(SkisMultipairConfig{
		Account: account.Config{InitialBalance: d(balance)},
		Pairs: map[string]PairInfo{
			"ETHUSDT": {Data: flatAt("100"), Options: testOptions(), Trailing: halfLock()},
			"BTCUSDT": {Data: flatAt("1000"), Options: testOptions()},
		},
	})
	require.NoError(t, err)
	return m
}

func TestNewSkisMultipair_Validation(t *testing.T) {
	_, err := NewSkisMultipair(SkisMultipairConfig{Account: account.Config{InitialBalance: d("1")}})
	assert.Error(t, err)

	_, err = NewSkisMultipair(SkisMultipairConfig{
		Account: account.Config{InitialBalance: d("1")},
		Pairs:   map[string]PairInfo{"X": {Trailing: TrailingStop{MinPnl: d("2"), MaxPnl: d("1")}}},
	})
	assert.Error(t, err)
}

func TestSkisMultipair_SharedBalance(t *testing.T) {
	m := newMultipair(t, "1050")
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, m.Pairs())

	info, ok := m.PairInfo("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, DefaultTrailingStop(), info.Trailing)

	m.Run(map[string]decimal.Decimal{"ETHUSDT": d("102"), "BTCUSDT": d("980")}, 1)

	acc := m.Account()
	assert.Len(t, acc.Longs("ETHUSDT"), 1)
	assert.Len(t, acc.Shorts("BTCUSDT"), 1)
	assert.True(t, d("1030").Equal(m.Balance()), "balance %s", m.Balance())

	equity := m.Equity(map[string]decimal.Decimal{"ETHUSDT": d("102"), "BTCUSDT": d("980")})
	assert.True(t, d("1050").Equal(equity), "equity %s", equity)
}

func TestSkisMultipair_TrailingStopPerPair(t *testing.T) {
	m := newMultipair(t, "1050")
	prices := func(eth string) map[string]decimal.Decimal {
		return map[string]decimal.Decimal{"ETHUSDT": d(eth), "BTCUSDT": d("1000")}
	}

	m.Run(prices("102"), 1)
	m.Run(prices("112.2"), 2)

	eth, _ := m.PairInfo("ETHUSDT")
	require.True(t, eth.Data.StopLoss.Valid)
	assert.True(t, d("109.65").Equal(eth.Data.StopLoss.Decimal), "stop %s", eth.Data.StopLoss.Decimal)

	m.ProcessMarket(map[string]domain.HighLow{
		"ETHUSDT": {High: d("112"), Low: d("109")},
		"BTCUSDT": {High: d("1001"), Low: d("999")},
	})

	eth, _ = m.PairInfo("ETHUSDT")
	assert.Equal(t, domain.DefaultSkisData(), eth.Data)
	assert.Empty(t, m.Account().Orders("ETHUSDT"))
	assert.True(t, eth.TotalPayout.GreaterThan(d("25")))

	btc, _ := m.PairInfo("BTCUSDT")
	assert.Equal(t, domain.TrendFlat, btc.Data.Trend)
	assert.True(t, btc.TotalPayout.IsZero())
}

func TestSkisMultipair_SetDataAndRuin(t *testing.T) {
	m := newMultipair(t, "1050")

	assert.False(t, m.SetData("DOGEUSDT", domain.DefaultSkisData()))
	assert.True(t, m.SetData("ETHUSDT", domain.SkisData{Trend: domain.TrendDown, LastHigh: d("100"), LastLow: d("100")}))

	m.Run(map[string]decimal.Decimal{"ETHUSDT": d("100")}, 1)
	require.Len(t, m.Account().Shorts("ETHUSDT"), 1)

	m.Ruin()
	assert.True(t, m.Balance().IsZero())
	assert.Empty(t, m.Account().Orders("ETHUSDT"))
}

func TestProcessMarket_PendingFillMeetsItsOwnStop(t *testing.T) {
	stop := decimal.NewNullDecimal(d("99"))
	window := domain.HighLow{High: d("101"), Low: d("98")}

	multi := newMultipair(t, "1050")
	multi.Account().AddPendingLong("ETHUSDT", d("100"), d("10"), d("10"), decimal.NullDecimal{}, stop)
	multi.ProcessMarket(map[string]domain.HighLow{"ETHUSDT": window})

	single, err := NewSkis(SkisConfig{
		Pair:     "ETHUSDT",
		Account:  account.Config{InitialBalance: d("1050")},
		Data:     flatAt("100"),
		Options:  testOptions(),
		Trailing: halfLock(),
	})
	require.NoError(t, err)
	single.Account().AddPendingLong(d("100"), d("10"), d("10"), decimal.NullDecimal{}, stop)
	single.ProcessMarket(window.High, window.Low)

	// Filled at 100, stopped at the 98 low: 10 + 10*(-0.02*10) = 8.
	assert.Empty(t, multi.Account().Orders("ETHUSDT"))
	assert.Empty(t, multi.Account().PendingOrders("ETHUSDT"))
	assert.True(t, d("1048").Equal(multi.Balance()), "got %s", multi.Balance())
	info, ok := multi.PairInfo("ETHUSDT")
	require.True(t, ok)
	assert.True(t, d("8").Equal(info.TotalPayout), "only closes count as payout")

	assert.Empty(t, single.Account().Orders())
	assert.Empty(t, single.Account().PendingOrders())
	assert.True(t, single.Balance().Equal(multi.Balance()), "single %s multi %s", single.Balance(), multi.Balance())
}
