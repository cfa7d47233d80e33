package backtesting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/strategy/manager"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// makeKlines builds 1m klines whose open follows prices; high/low are +-1.
func makeKlines(symbol string, prices ...int64) []*domain.Kline {
	klines := make([]*domain.Kline, len(prices))
	for i, p := range prices {
		open := decimal.NewFromInt(p)
		klines[i] = &domain.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1)*time.Minute - time.Millisecond),
			Symbol:    symbol,
			Interval:  "1m",
			Open:      open,
			High:      open.Add(decimal.NewFromInt(1)),
			Low:       open.Sub(decimal.NewFromInt(1)),
			Close:     open,
		}
	}
	return klines
}

func TestChunk(t *testing.T) {
	windows := Chunk(makeKlines("ETHUSDT", 100, 105, 98, 101, 110), 2)

	require.Len(t, windows, 3)
	assert.True(t, d("105").Equal(windows[0].Open), "decision price is the last open")
	assert.True(t, d("106").Equal(windows[0].High))
	assert.True(t, d("99").Equal(windows[0].Low))
	assert.True(t, d("97").Equal(windows[1].Low))
	assert.Equal(t, base, windows[0].OpenTime)
	assert.True(t, d("110").Equal(windows[2].Open))

	assert.Empty(t, Chunk(nil, 60))
}

func TestChunkMultipair(t *testing.T) {
	windows, err := ChunkMultipair(map[string][]*domain.Kline{
		"ETHUSDT": makeKlines("ETHUSDT", 100, 101, 102, 103),
		"BTCUSDT": makeKlines("BTCUSDT", 1000, 1010, 1020, 1030),
	}, 2)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.True(t, d("1030").Equal(windows[1].Prices()["BTCUSDT"]))
	assert.True(t, d("104").Equal(windows[1].Ranges()["ETHUSDT"].High))

	_, err = ChunkMultipair(map[string][]*domain.Kline{
		"ETHUSDT": makeKlines("ETHUSDT", 100, 101, 102, 103),
		"BTCUSDT": makeKlines("BTCUSDT", 1000),
	}, 2)
	assert.ErrorIs(t, err, ports.ErrIncompleteHistory)
}

func newSkis(t *testing.T, balance, startDelta string) *manager.Skis {
	t.Helper()
	m, err := manager.NewSkis(manager.SkisConfig{
		Pair:    "ETHUSDT",
		Account: account.Config{InitialBalance: d(balance), CommissionRate: d("0.0005")},
		Data:    domain.DefaultSkisData(),
		Options: domain.SkisOptions{
			Quantity:           d("10"),
			Leverage:           d("10"),
			StartDelta:         d(startDelta),
			StopDelta:          d("0.03"),
			QuantityMultiplier: domain.MultiplierHighQuad,
		},
	})
	require.NoError(t, err)
	return m
}

func equity(m *manager.Skis, w domain.Window, _ int) decimal.Decimal {
	return m.Equity(w.Open)
}

func TestReplay_CollectsEveryStep(t *testing.T) {
	windows := Chunk(makeKlines("ETHUSDT", 100, 101, 102, 103, 104, 105, 106), 1)
	var steps []int

	out, err := Replay(context.Background(), newSkis(t, "1000", "0.01"), windows, ReplayConfig{CollectStep: 3, RuinFloor: DefaultRuinFloor},
		func(m *manager.Skis, w domain.Window, step int) int {
			steps = append(steps, step)
			return step
		})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, out)
	assert.Equal(t, out, steps)
}

func TestReplay_RuinFreezesAccount(t *testing.T) {
	// A long opened on the way up is wiped out by the crash.
	windows := Chunk(makeKlines("ETHUSDT", 100, 102, 104, 20, 20, 20), 1)
	m := newSkis(t, "30", "0.01")

	out, err := Replay(context.Background(), m, windows, ReplayConfig{CollectStep: 1, RuinFloor: DefaultRuinFloor}, equity)

	require.NoError(t, err)
	require.Len(t, out, len(windows))
	assert.True(t, m.Balance().IsZero())
	assert.Empty(t, m.Account().Orders())
	assert.True(t, out[len(out)-1].IsZero())
}

func TestReplay_InvalidCollectStep(t *testing.T) {
	_, err := Replay(context.Background(), newSkis(t, "1000", "0.01"), nil, ReplayConfig{}, equity)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestRunParallel_Deterministic(t *testing.T) {
	prices := []int64{100, 101, 103, 106, 104, 99, 95, 92, 96, 101, 107, 110, 104, 98, 97, 103}
	windows := Chunk(makeKlines("ETHUSDT", prices...), 2)

	runner, err := NewRunner(RunnerConfig{BatchSize: 3, Workers: 2, CollectStep: 1, Logger: &mockLogger{}})
	require.NoError(t, err)

	var managers []*manager.Skis
	for i := 0; i < 7; i++ {
		managers = append(managers, newSkis(t, "1000", "0.01"))
	}

	results, err := RunParallel(context.Background(), runner, windows, managers, equity)
	require.NoError(t, err)
	require.Len(t, results, len(managers))

	// Identical configurations produce identical curves regardless of scheduling.
	for i := 1; i < len(results); i++ {
		require.Len(t, results[i], len(windows))
		for step := range results[0] {
			assert.True(t, results[0][step].Equal(results[i][step]), "manager %d step %d", i, step)
		}
	}

	sequential, err := Replay(context.Background(), newSkis(t, "1000", "0.01"), windows, runner.replayConfig(), equity)
	require.NoError(t, err)
	for step := range sequential {
		assert.True(t, sequential[step].Equal(results[0][step]), "step %d", step)
	}
}

func TestRunParallel_IndexesResultsLikeManagers(t *testing.T) {
	windows := Chunk(makeKlines("ETHUSDT", 100, 105, 111, 117, 123), 1)
	runner, err := NewRunner(RunnerConfig{CollectStep: 1, Logger: &mockLogger{}})
	require.NoError(t, err)

	managers := []*manager.Skis{newSkis(t, "1000", "0.01"), newSkis(t, "1000", "0.9")}
	results, err := RunParallel(context.Background(), runner, windows, managers, equity)
	require.NoError(t, err)

	last := len(windows) - 1
	assert.False(t, results[0][last].Equal(d("1000")), "trending manager traded")
	assert.True(t, results[1][last].Equal(d("1000")), "manager with a wide entry never traded")
}

func TestRunParallel_Errors(t *testing.T) {
	runner, err := NewRunner(RunnerConfig{CollectStep: 1, Logger: &mockLogger{}})
	require.NoError(t, err)

	_, err = RunParallel(context.Background(), runner, nil, []*manager.Skis{}, equity)
	assert.ErrorIs(t, err, ports.ErrNoManagers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	windows := Chunk(makeKlines("ETHUSDT", 100, 101), 1)
	_, err = RunParallel(ctx, runner, windows, []*manager.Skis{newSkis(t, "1000", "0.01")}, equity)
	assert.True(t, errors.Is(err, ports.ErrContextCanceled))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = NewRunner(RunnerConfig{CollectStep: 1})
	assert.Error(t, err)
	_, err = NewRunner(RunnerConfig{Logger: &mockLogger{}})
	assert.Error(t, err)
}

func TestMultipairRunParallel(t *testing.T) {
	windows, err := ChunkMultipair(map[string][]*domain.Kline{
		"ETHUSDT": makeKlines("ETHUSDT", 100, 102, 104, 106, 108, 110),
		"BTCUSDT": makeKlines("BTCUSDT", 1000, 990, 970, 950, 930, 910),
	}, 1)
	require.NoError(t, err)

	newManager := func() *manager.SkisMultipair {
		opts := domain.SkisOptions{
			Quantity:   d("10"),
			Leverage:   d("10"),
			StartDelta: d("0.01"),
			StopDelta:  d("0.05"),
		}
		m, err := manager.NewSkisMultipair(manager.SkisMultipairConfig{
			Account: account.Config{InitialBalance: d("1000"), CommissionRate: d("0.0005")},
			Pairs: map[string]manager.PairInfo{
				"ETHUSDT": {Data: domain.DefaultSkisData(), Options: opts},
				"BTCUSDT": {Data: domain.DefaultSkisData(), Options: opts},
			},
		})
		require.NoError(t, err)
		return m
	}

	runner, err := NewRunner(RunnerConfig{CollectStep: 2, Logger: &mockLogger{}})
	require.NoError(t, err)

	managers := []*manager.SkisMultipair{newManager(), newManager()}
	results, err := MultipairRunParallel(context.Background(), runner, windows, managers,
		func(m *manager.SkisMultipair, w MultiWindow, _ int) decimal.Decimal {
			return m.Equity(w.Prices())
		})
	require.NoError(t, err)

	require.Len(t, results[0], 3)
	for step := range results[0] {
		assert.True(t, results[0][step].Equal(results[1][step]))
	}
	assert.NotEmpty(t, managers[0].Account().Longs("ETHUSDT"))
	assert.NotEmpty(t, managers[0].Account().Shorts("BTCUSDT"))
	assert.True(t, results[0][2].GreaterThan(d("1000")), "both trends were profitable")
}
