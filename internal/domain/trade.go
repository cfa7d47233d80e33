package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade represents a closed position as recorded by an account with history enabled.
type Trade struct {
	PositionID  uuid.UUID
	Pair        string
	IsShort     bool
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	Leverage    decimal.Decimal
	Payout      decimal.Decimal // Amount credited back to the balance
	PNL         decimal.Decimal // Payout minus margin
	IsWin       bool
	CloseReason CloseReason
}
