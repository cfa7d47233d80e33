package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SweepResult is the outcome of one parameter combination in a sweep run.
type SweepResult struct {
	ID           int64
	RunName      string
	Params       map[string]string
	FinalEquity  decimal.Decimal
	MaxDrawdown  decimal.Decimal
	WinrateCount decimal.Decimal
	TradeCount   int
	CreatedAt    time.Time
}
