package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/ports"
)

// DefaultLiquidationGap keeps new positions 10% away from zero equity.
var DefaultLiquidationGap = decimal.RequireFromString("0.1")

// PolicyKind names a balance validation policy.
type PolicyKind string

const (
	PolicyLiquidationGap PolicyKind = "liquidation"
	PolicyFixedValue     PolicyKind = "value"
	// PolicyMargin requires free balance to cover the cost and the liquidation gap to hold.
	PolicyMargin PolicyKind = "margin"
)

// PolicyConfig selects and parameterizes a balance policy.
type PolicyConfig struct {
	Kind      PolicyKind
	Gap       decimal.Decimal // Used by liquidation and margin policies
	Threshold decimal.Decimal // Used by the fixed-value policy
}

// NewPolicy builds the ValidateFunc described by cfg.
func NewPolicy(cfg PolicyConfig) (account.ValidateFunc, error) {
	switch PolicyKind(strings.ToLower(string(cfg.Kind))) {
	case PolicyLiquidationGap:
		return LiquidationGap(cfg.Gap), nil
	case PolicyFixedValue:
		return FixedValue(cfg.Threshold), nil
	case PolicyMargin, "":
		return All(FixedValue(decimal.Zero), LiquidationGap(cfg.Gap)), nil
	default:
		return nil, fmt.Errorf("%w: unknown balance policy %q", ports.ErrConfigurationError, cfg.Kind)
	}
}

// LiquidationGap passes when equity - equity*gap - cost > 0, where equity is
// the free balance plus the marked value of the open positions in view.
func LiquidationGap(gap decimal.Decimal) account.ValidateFunc {
	return func(view account.BalanceView, cost, price decimal.Decimal) bool {
		equity := view.Balance().Add(view.OrdersCurrentQuantity(price))
		return equity.Sub(equity.Mul(gap)).Sub(cost).IsPositive()
	}
}

// FixedValue passes when balance - cost > threshold.
func FixedValue(threshold decimal.Decimal) account.ValidateFunc {
	return func(view account.BalanceView, cost, _ decimal.Decimal) bool {
		return view.Balance().Sub(cost).GreaterThan(threshold)
	}
}

// All passes when every policy passes. Evaluation stops at the first rejection.
func All(policies ...account.ValidateFunc) account.ValidateFunc {
	return func(view account.BalanceView, cost, price decimal.Decimal) bool {
		for _, p := range policies {
			if !p(view, cost, price) {
				return false
			}
		}
		return true
	}
}

// IsRuined reports whether an account with this balance and equity should be
// frozen: a negative balance or equity at or below floor.
func IsRuined(balance, equity, floor decimal.Decimal) bool {
	return balance.IsNegative() || equity.LessThanOrEqual(floor)
}
