package strategies

import (
	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
)

var (
	minLeverage = decimal.NewFromInt(10)
	maxLeverage = decimal.NewFromInt(75)
	hundred     = decimal.NewFromInt(100)
	ten         = decimal.NewFromInt(10)
	one         = decimal.NewFromInt(1)
)

// Skis follows retracement-driven trends: it goes short after price falls
// StartDelta below its running high, long after it rises StartDelta above its
// running low, and leaves a trend once price retraces StopDelta against it.
// While in a trend it adds one position per evaluation. A tick that exits a
// trend may enter the opposite one at once, judged on the deltas measured
// before the watermark reset, and then emits that trend's first order.
type Skis struct{}

var _ Strategy[domain.SkisData, domain.SkisOptions] = Skis{}

// Name returns the name of the strategy.
func (Skis) Name() string { return "skis" }

// Run evaluates one tick. It never mutates data.
func (Skis) Run(currentPrice, balance decimal.Decimal, data domain.SkisData, options domain.SkisOptions) domain.StrategyResult[domain.SkisData] {
	var closeLongs, closeShorts bool

	trend := data.Trend
	trendSteps := data.TrendSteps
	stopLoss := data.StopLoss
	lastHigh := decimal.Max(data.LastHigh, currentPrice)
	lastLow := decimal.Min(data.LastLow, currentPrice)

	deltaHigh := retracement(lastHigh, currentPrice).Neg()
	deltaLow := retracement(lastLow, currentPrice)

	switch {
	case trend == domain.TrendUp && deltaHigh.GreaterThanOrEqual(options.StopDelta):
		closeLongs = true
		trend, trendSteps, lastHigh, lastLow = domain.TrendFlat, 0, currentPrice, currentPrice
		stopLoss = decimal.NullDecimal{}
	case trend == domain.TrendDown && deltaLow.GreaterThanOrEqual(options.StopDelta):
		closeShorts = true
		trend, trendSteps, lastHigh, lastLow = domain.TrendFlat, 0, currentPrice, currentPrice
		stopLoss = decimal.NullDecimal{}
	}

	// Down is checked first when both thresholds trip on the same tick.
	if trend == domain.TrendFlat {
		if deltaHigh.GreaterThanOrEqual(options.StartDelta) {
			trend = domain.TrendDown
		} else if deltaLow.GreaterThanOrEqual(options.StartDelta) {
			trend = domain.TrendUp
		}
	}

	trendSteps++

	quantity := ScaleQuantity(options.Quantity, trendSteps, options.QuantityMultiplier)
	leverage := Leverage(options.Leverage, balance)

	var orders []domain.StrategyOrder
	if trend != domain.TrendFlat && quantity.GreaterThanOrEqual(one) {
		orders = append(orders, domain.StrategyOrder{
			IsShort:  trend == domain.TrendDown,
			Quantity: quantity,
			Leverage: leverage,
		})
	}

	return domain.StrategyResult[domain.SkisData]{
		Data: domain.SkisData{
			Trend:      trend,
			TrendSteps: trendSteps,
			LastHigh:   lastHigh,
			LastLow:    lastLow,
			StopLoss:   stopLoss,
		},
		OrdersToOpen: orders,
		CloseLongs:   closeLongs,
		CloseShorts:  closeShorts,
	}
}

// retracement is (price - reference) / reference, zero for a zero reference.
func retracement(reference, price decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return price.Sub(reference).Div(reference)
}

// ScaleQuantity grows or shrinks base with the number of steps spent in a trend.
func ScaleQuantity(base decimal.Decimal, trendSteps int, multiplier domain.QuantityMultiplier) decimal.Decimal {
	s := decimal.NewFromInt(int64(trendSteps)).Div(ten)
	switch multiplier {
	case domain.MultiplierLow:
		return base.Sub(s)
	case domain.MultiplierLowQuad:
		return base.Sub(s.Mul(s))
	case domain.MultiplierHigh:
		return base.Add(s)
	case domain.MultiplierHighQuad:
		return base.Add(s.Mul(s))
	default:
		return base
	}
}

// Leverage scales base leverage with free balance, one step per 100 units,
// clamped to [10, 75].
func Leverage(base, balance decimal.Decimal) decimal.Decimal {
	lev := base.Add(balance.Div(hundred)).Floor()
	if lev.LessThan(minLeverage) {
		return minLeverage
	}
	if lev.GreaterThan(maxLeverage) {
		return maxLeverage
	}
	return lev
}
