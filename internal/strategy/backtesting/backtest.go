package backtesting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/risk"
)

// DefaultRuinFloor is the equity at or below which a manager is frozen.
var DefaultRuinFloor = decimal.NewFromInt(10)

// Manager drives one strategy and one single-pair account.
type Manager interface {
	ProcessMarket(high, low decimal.Decimal)
	Run(currentPrice decimal.Decimal, step int) bool
	Balance() decimal.Decimal
	Equity(currentPrice decimal.Decimal) decimal.Decimal
	Ruin()
}

// MultipairManager drives per-pair strategies against one shared account.
type MultipairManager interface {
	ProcessMarket(markets map[string]domain.HighLow)
	Run(prices map[string]decimal.Decimal, step int) bool
	Balance() decimal.Decimal
	Equity(prices map[string]decimal.Decimal) decimal.Decimal
	Ruin()
}

// CollectFunc projects a manager's state at a collection step.
type CollectFunc[M any, W any, T any] func(manager M, window W, step int) T

// ReplayConfig holds the per-manager replay settings.
type ReplayConfig struct {
	CollectStep int             // Collect every CollectStep windows, starting at step 0
	RuinFloor   decimal.Decimal // Equity at or below which the account is ruined
}

func (c ReplayConfig) validate() error {
	if c.CollectStep < 1 {
		return fmt.Errorf("%w: collect step must be positive, got %d", ports.ErrConfigurationError, c.CollectStep)
	}
	return nil
}

// Replay runs m through windows in order. Each window applies its price
// range, freezes a ruined account, evaluates the strategy at the window's
// decision price and collects every CollectStep steps.
func Replay[M Manager, T any](ctx context.Context, m M, windows []domain.Window, cfg ReplayConfig, collect CollectFunc[M, domain.Window, T]) ([]T, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(windows)/cfg.CollectStep+1)
	for step, w := range windows {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("%w: replay stopped at step %d: %w", ports.ErrContextCanceled, step, err)
		}

		m.ProcessMarket(w.High, w.Low)
		if risk.IsRuined(m.Balance(), m.Equity(w.Open), cfg.RuinFloor) {
			m.Ruin()
		}
		m.Run(w.Open, step)

		if step%cfg.CollectStep == 0 {
			out = append(out, collect(m, w, step))
		}
	}
	return out, nil
}

// ReplayMultipair is Replay for multi-pair managers.
func ReplayMultipair[M MultipairManager, T any](ctx context.Context, m M, windows []MultiWindow, cfg ReplayConfig, collect CollectFunc[M, MultiWindow, T]) ([]T, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(windows)/cfg.CollectStep+1)
	for step, w := range windows {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("%w: replay stopped at step %d: %w", ports.ErrContextCanceled, step, err)
		}

		prices := w.Prices()
		m.ProcessMarket(w.Ranges())
		if risk.IsRuined(m.Balance(), m.Equity(prices), cfg.RuinFloor) {
			m.Ruin()
		}
		m.Run(prices, step)

		if step%cfg.CollectStep == 0 {
			out = append(out, collect(m, w, step))
		}
	}
	return out, nil
}
