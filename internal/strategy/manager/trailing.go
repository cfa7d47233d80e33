package manager

import (
	"fmt"

	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

// TrailingStop locks in part of the unrealised profit of a trend once it
// reaches MinPnl. The locked share grows linearly from MinMultiplier at
// MinPnl to MaxMultiplier at MaxPnl.
type TrailingStop struct {
	MinPnl        decimal.Decimal `json:"minPnl"`
	MaxPnl        decimal.Decimal `json:"maxPnl"`
	MinMultiplier decimal.Decimal `json:"minMultiplier"`
	MaxMultiplier decimal.Decimal `json:"maxMultiplier"`
}

// DefaultTrailingStop returns the stop used when none is configured.
func DefaultTrailingStop() TrailingStop {
	return TrailingStop{
		MinPnl:        decimal.NewFromInt(40),
		MaxPnl:        decimal.NewFromInt(200),
		MinMultiplier: decimal.RequireFromString("0.3"),
		MaxMultiplier: decimal.RequireFromString("0.9"),
	}
}

// IsZero reports whether no field is set.
func (t TrailingStop) IsZero() bool {
	return t.MinPnl.IsZero() && t.MaxPnl.IsZero() && t.MinMultiplier.IsZero() && t.MaxMultiplier.IsZero()
}

// Validate checks that both ranges are ordered.
func (t TrailingStop) Validate() error {
	if t.MaxPnl.LessThan(t.MinPnl) {
		return fmt.Errorf("%w: trailing stop max pnl %s is below min pnl %s", ports.ErrConfigurationError, t.MaxPnl, t.MinPnl)
	}
	if t.MaxMultiplier.LessThan(t.MinMultiplier) {
		return fmt.Errorf("%w: trailing stop max multiplier %s is below min multiplier %s", ports.ErrConfigurationError, t.MaxMultiplier, t.MinMultiplier)
	}
	return nil
}

// Multiplier maps pnl onto the multiplier range. ok is false below MinPnl.
func (t TrailingStop) Multiplier(pnl decimal.Decimal) (m decimal.Decimal, ok bool) {
	if pnl.LessThan(t.MinPnl) {
		return decimal.Zero, false
	}
	span := t.MaxPnl.Sub(t.MinPnl)
	if span.IsZero() {
		return t.MaxMultiplier, true
	}
	m = pnl.Sub(t.MinPnl).Div(span).Mul(t.MaxMultiplier.Sub(t.MinMultiplier)).Add(t.MinMultiplier)
	return clamp(m, t.MinMultiplier, t.MaxMultiplier), true
}

// StopPrice places the stop between breakEven and currentPrice.
func StopPrice(isShort bool, breakEven, currentPrice, multiplier decimal.Decimal) decimal.Decimal {
	if isShort {
		return breakEven.Sub(breakEven.Sub(currentPrice).Mul(multiplier))
	}
	return breakEven.Add(currentPrice.Sub(breakEven).Mul(multiplier))
}

// stopTriggered reports whether the candle range crossed the stop of the trend.
func stopTriggered(data domain.SkisData, high, low decimal.Decimal) bool {
	if !data.StopLoss.Valid {
		return false
	}
	switch data.Trend {
	case domain.TrendUp:
		return low.LessThanOrEqual(data.StopLoss.Decimal)
	case domain.TrendDown:
		return high.GreaterThanOrEqual(data.StopLoss.Decimal)
	default:
		return false
	}
}

// trail returns data with a new stop loss when positions of the trend side
// carry enough unrealised profit. Otherwise data is returned unchanged.
func trail(data domain.SkisData, t TrailingStop, positions []*domain.Position, currentPrice decimal.Decimal, breakEven func([]*domain.Position) decimal.Decimal) domain.SkisData {
	if data.Trend == domain.TrendFlat || len(positions) == 0 {
		return data
	}
	pnl := decimal.Zero
	for _, p := range positions {
		pnl = pnl.Add(p.ProfitQuantity(currentPrice))
	}
	multiplier, ok := t.Multiplier(pnl)
	if !ok {
		return data
	}
	data.StopLoss = decimal.NewNullDecimal(StopPrice(data.Trend == domain.TrendDown, breakEven(positions), currentPrice, multiplier))
	return data
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
