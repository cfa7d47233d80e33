package manager

import (
	"fmt"

	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

// Sandbox binds a strategy, its data and options to a single-pair account
// and drives one decision per Run.
type Sandbox[D, O any] struct {
	account     *account.Account
	strategy    ports.Strategy[D, O]
	data        D
	options     O
	processStep int
}

// NewSandbox creates a sandbox manager. processStep below 1 means every step.
func NewSandbox[D, O any](acc *account.Account, strategy ports.Strategy[D, O], data D, options O, processStep int) (*Sandbox[D, O], error) {
	if acc == nil || strategy == nil {
		return nil, fmt.Errorf("%w: account and strategy are required", ports.ErrConfigurationError)
	}
	if processStep < 1 {
		processStep = 1
	}
	return &Sandbox[D, O]{
		account:     acc,
		strategy:    strategy,
		data:        data,
		options:     options,
		processStep: processStep,
	}, nil
}

// Account returns the managed account.
func (m *Sandbox[D, O]) Account() *account.Account { return m.account }

// Data returns the current strategy data.
func (m *Sandbox[D, O]) Data() D { return m.data }

// SetData replaces the strategy data, e.g. when resuming from a checkpoint.
func (m *Sandbox[D, O]) SetData(data D) { m.data = data }

// Options returns the strategy options.
func (m *Sandbox[D, O]) Options() O { return m.options }

// Balance returns the free balance of the account.
func (m *Sandbox[D, O]) Balance() decimal.Decimal { return m.account.Balance() }

// Equity returns the mark-to-market value of the account.
func (m *Sandbox[D, O]) Equity(currentPrice decimal.Decimal) decimal.Decimal {
	return m.account.TotalCurrentQuantity(currentPrice)
}

// Ruin freezes the account.
func (m *Sandbox[D, O]) Ruin() { m.account.Ruin() }

// ProcessMarket applies the candle range to pending orders and position
// level TP/SL, low first.
func (m *Sandbox[D, O]) ProcessMarket(high, low decimal.Decimal) {
	m.account.ProcessMarket(low)
	m.account.ProcessMarket(high)
}

// Run evaluates the strategy at currentPrice and applies its result. It
// returns false when step is not a decision step.
func (m *Sandbox[D, O]) Run(currentPrice decimal.Decimal, step int) bool {
	if step%m.processStep != 0 {
		return false
	}
	m.apply(m.strategy.Run(currentPrice, m.account.Balance(), m.data, m.options), currentPrice)
	return true
}

func (m *Sandbox[D, O]) apply(result domain.StrategyResult[D], currentPrice decimal.Decimal) {
	m.data = result.Data

	if result.CloseLongs {
		for _, p := range m.account.Longs() {
			m.account.CloseOrderWithReason(p, currentPrice, domain.CloseReasonTrendExit)
		}
	}
	if result.CloseShorts {
		for _, p := range m.account.Shorts() {
			m.account.CloseOrderWithReason(p, currentPrice, domain.CloseReasonTrendExit)
		}
	}

	// Rejected orders are skipped.
	for _, o := range result.OrdersToOpen {
		m.account.TryOpenOrder(o.IsShort, currentPrice, o.Quantity, o.Leverage, decimal.NullDecimal{}, decimal.NullDecimal{})
	}
}
