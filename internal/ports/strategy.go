package ports

import (
	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
)

// Strategy maps the current price, free balance and previous data to a decision.
// Implementations must be pure: all cross-tick memory flows through data.
type Strategy[D, O any] interface {
	Run(currentPrice, balance decimal.Decimal, data D, options O) domain.StrategyResult[D]
}
