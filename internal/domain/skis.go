package domain

import "github.com/shopspring/decimal"

// SkisData is the cross-tick state of the Skis strategy. A new value is
// returned by every evaluation, the previous one is never mutated.
type SkisData struct {
	Trend      Trend               `json:"trend"`
	TrendSteps int                 `json:"trendSteps"`
	LastHigh   decimal.Decimal     `json:"lastHigh"`
	LastLow    decimal.Decimal     `json:"lastLow"`
	StopLoss   decimal.NullDecimal `json:"stopLoss"`
}

// unsetLow seeds LastLow so that the first observed price becomes the low.
var unsetLow = decimal.RequireFromString("79228162514264337593543950335")

// DefaultSkisData returns the initial state: flat, with watermarks that any
// first price replaces.
func DefaultSkisData() SkisData {
	return SkisData{
		Trend:    TrendFlat,
		LastHigh: decimal.Zero,
		LastLow:  unsetLow,
	}
}

// SkisOptions configures the Skis strategy.
type SkisOptions struct {
	Quantity           decimal.Decimal    `json:"quantity"`
	Leverage           decimal.Decimal    `json:"leverage"`
	StartDelta         decimal.Decimal    `json:"startDelta"`
	StopDelta          decimal.Decimal    `json:"stopDelta"`
	QuantityMultiplier QuantityMultiplier `json:"quantityMultiplier"`
}

// StrategyOrder is a market order requested by a strategy.
type StrategyOrder struct {
	IsShort  bool
	Quantity decimal.Decimal
	Leverage decimal.Decimal
}

// StrategyResult is the output of one strategy evaluation.
type StrategyResult[D any] struct {
	Data         D
	OrdersToOpen []StrategyOrder
	CloseLongs   bool
	CloseShorts  bool
}
