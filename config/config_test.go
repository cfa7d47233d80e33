package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skisTrader/internal/adapters/logger"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/strategy/manager"
	"skisTrader/internal/strategy/optimization"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT"}, cfg.Pairs)
	assert.Equal(t, "1m", cfg.KlineInterval)
	assert.Equal(t, 60, cfg.ChunkMinutes)
	assert.True(t, decimal.NewFromInt(1000).Equal(cfg.InitialBalance))
	assert.True(t, decimal.RequireFromString("0.0005").Equal(cfg.CommissionRate))
	assert.True(t, decimal.RequireFromString("0.1").Equal(cfg.LiquidationGap))
	assert.Equal(t, domain.MultiplierNone, cfg.QuantityMultiplier)
	assert.Equal(t, manager.DefaultTrailingStop(), cfg.TrailingStop())
	assert.Equal(t, 120, cfg.BatchSize)
	assert.True(t, decimal.NewFromInt(10).Equal(cfg.RuinFloor))
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)

	acc, err := cfg.AccountConfig()
	require.NoError(t, err)
	assert.Nil(t, acc.Validate, "managers pick their own default policy")
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PAIRS", "ethusdt, btcusdt,,dogeusdt")
	t.Setenv("SKIS_START_DELTA", "0.015")
	t.Setenv("SKIS_QUANTITY_MULTIPLIER", "highQuad")
	t.Setenv("BALANCE_POLICY", "liquidation")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT", "DOGEUSDT"}, cfg.Pairs)

	opts := cfg.SkisOptions()
	assert.True(t, decimal.RequireFromString("0.015").Equal(opts.StartDelta))
	assert.Equal(t, domain.MultiplierHighQuad, opts.QuantityMultiplier)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)

	acc, err := cfg.AccountConfig()
	require.NoError(t, err)
	require.NotNil(t, acc.Validate)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"negative balance", "INITIAL_BALANCE", "-1", "INITIAL_BALANCE must be positive"},
		{"bad decimal", "SKIS_STOP_DELTA", "4%", "invalid SKIS_STOP_DELTA"},
		{"bad multiplier", "SKIS_QUANTITY_MULTIPLIER", "huge", "invalid SKIS_QUANTITY_MULTIPLIER"},
		{"gap out of range", "LIQUIDATION_GAP", "1.5", "LIQUIDATION_GAP must be between"},
		{"trailing inverted", "TRAILING_MIN_PNL", "500", "trailing"},
		{"no pairs", "PAIRS", " , ", "PAIRS must list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const sweepYAML = `
name: march-eth
pairs: [ethusdt]
start: 2024-03-01T00:00:00Z
end: 2024-04-01T00:00:00Z
chunkMinutes: 60
collectStep: 24
topN: 5
initialBalance: 1000
policy: margin
base:
  quantity: 5
  leverage: 10
  startDelta: 0.01
  stopDelta: 0.04
parameters:
  - name: startDelta
    min: 0.005
    max: 0.02
    step: 0.005
  - name: quantityMultiplier
    min: none
    max: highQuad
    step: 1
`

func TestLoadSweepFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sweepYAML), 0o600))

	s, err := LoadSweepFile(path)
	require.NoError(t, err)

	assert.Equal(t, "march-eth", s.Name)
	assert.Equal(t, []string{"ETHUSDT"}, s.Pairs)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), s.Start)
	assert.Equal(t, "1m", s.Interval)
	assert.Equal(t, 24, s.CollectStep)
	assert.Equal(t, 1, s.ProcessStep)
	assert.NotNil(t, s.Account.Validate)
	assert.True(t, decimal.RequireFromString("0.0005").Equal(s.Account.CommissionRate))
	assert.True(t, s.Trailing.IsZero())

	require.Len(t, s.Parameters, 2)
	assert.Equal(t, optimization.ParamStartDelta, s.Parameters[0].Name)
	assert.Len(t, s.Parameters[0].Values(), 4)
	assert.True(t, decimal.RequireFromString("0.005").Equal(s.Parameters[0].Min), "values are parsed exactly")
	assert.True(t, decimal.NewFromInt(int64(domain.MultiplierHighQuad)).Equal(s.Parameters[1].Max))
}

func TestParseSweep_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"not yaml", "name: [", "failed to parse"},
		{"missing name", "pairs: [ETHUSDT]\nstart: 2024-03-01T00:00:00Z\nend: 2024-04-01T00:00:00Z", "name must be set"},
		{"reversed range", "name: x\npairs: [ETHUSDT]\nstart: 2024-04-01T00:00:00Z\nend: 2024-03-01T00:00:00Z", "start must be before end"},
		{"unknown parameter", "name: x\npairs: [ETHUSDT]\nstart: 2024-03-01T00:00:00Z\nend: 2024-04-01T00:00:00Z\nparameters:\n  - {name: stopDelta, min: abc}", "parameter stopDelta"},
		{"unknown policy", "name: x\npairs: [ETHUSDT]\nstart: 2024-03-01T00:00:00Z\nend: 2024-04-01T00:00:00Z\npolicy: yolo", "unknown balance policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSweep([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
