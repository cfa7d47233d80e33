package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position represents a leveraged position held by a simulated account.
type Position struct {
	ID         uuid.UUID           // Unique identifier for the position
	IsShort    bool                // Side of the position
	Price      decimal.Decimal     // Entry price (or trigger price while pending)
	Quantity   decimal.Decimal     // Posted margin in quote units, un-leveraged
	Leverage   decimal.Decimal     // Leverage applied to the margin
	TakeProfit decimal.NullDecimal // Take-profit price, if any
	StopLoss   decimal.NullDecimal // Stop-loss price, if any
}

// NewPosition creates a position with a fresh ID.
// It panics when quantity or leverage is not positive.
func NewPosition(isShort bool, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) *Position {
	if !quantity.IsPositive() {
		panic("domain: position quantity must be positive, got " + quantity.String())
	}
	if !leverage.IsPositive() {
		panic("domain: position leverage must be positive, got " + leverage.String())
	}
	return &Position{
		ID:         uuid.New(),
		IsShort:    isShort,
		Price:      price,
		Quantity:   quantity,
		Leverage:   leverage,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	}
}

// TotalQuantity is the leveraged exposure of the position.
func (p *Position) TotalQuantity() decimal.Decimal {
	return p.Quantity.Mul(p.Leverage)
}

// ProfitPercent returns the leveraged price change since entry as a fraction.
func (p *Position) ProfitPercent(currentPrice decimal.Decimal) decimal.Decimal {
	if p.Price.IsZero() {
		return decimal.Zero
	}
	percent := currentPrice.Sub(p.Price).Div(p.Price).Mul(p.Leverage)
	if p.IsShort {
		return percent.Neg()
	}
	return percent
}

// ProfitQuantity returns the unrealised PnL at currentPrice.
func (p *Position) ProfitQuantity(currentPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(p.ProfitPercent(currentPrice))
}

// CurrentQuantity is the payout if the position were closed at currentPrice.
func (p *Position) CurrentQuantity(currentPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.Add(p.ProfitQuantity(currentPrice))
}

// NeedsCloseByPercent reports whether the leveraged profit reached takeProfit
// or fell to -stopLoss. Unset thresholds never trigger.
func (p *Position) NeedsCloseByPercent(currentPrice decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	if !takeProfit.Valid && !stopLoss.Valid {
		return false
	}
	percent := p.ProfitPercent(currentPrice)
	if takeProfit.Valid && percent.GreaterThanOrEqual(takeProfit.Decimal) {
		return true
	}
	return stopLoss.Valid && percent.LessThanOrEqual(stopLoss.Decimal.Neg())
}

// NeedsCloseByPrice reports whether currentPrice crossed the position's own
// take-profit or stop-loss price.
func (p *Position) NeedsCloseByPrice(currentPrice decimal.Decimal) bool {
	if p.IsShort {
		return (p.TakeProfit.Valid && currentPrice.LessThanOrEqual(p.TakeProfit.Decimal)) ||
			(p.StopLoss.Valid && currentPrice.GreaterThanOrEqual(p.StopLoss.Decimal))
	}
	return (p.TakeProfit.Valid && currentPrice.GreaterThanOrEqual(p.TakeProfit.Decimal)) ||
		(p.StopLoss.Valid && currentPrice.LessThanOrEqual(p.StopLoss.Decimal))
}

// NeedsOpenByPrice reports whether a pending order should fill: shorts fill
// when price rises to the target, longs when it falls to it.
func (p *Position) NeedsOpenByPrice(currentPrice decimal.Decimal) bool {
	if p.IsShort {
		return currentPrice.GreaterThanOrEqual(p.Price)
	}
	return currentPrice.LessThanOrEqual(p.Price)
}

// Side returns a human readable side.
func (p *Position) Side() string {
	if p.IsShort {
		return "SHORT"
	}
	return "LONG"
}
