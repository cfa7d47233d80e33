package account

import "github.com/shopspring/decimal"

// BalanceView is the read-only snapshot a balance policy sees. For a
// multi-pair account the view is scoped to the pair being traded.
type BalanceView interface {
	// Balance returns the free balance.
	Balance() decimal.Decimal
	// OrdersCurrentQuantity returns the mark-to-market value of the open positions in scope.
	OrdersCurrentQuantity(currentPrice decimal.Decimal) decimal.Decimal
}

// ValidateFunc decides whether cost may be debited to open a position at price.
// It must not mutate anything.
type ValidateFunc func(view BalanceView, cost, price decimal.Decimal) bool

type pairView struct {
	account *MultipairAccount
	pair    string
}

func (v pairView) Balance() decimal.Decimal {
	return v.account.balance
}

func (v pairView) OrdersCurrentQuantity(currentPrice decimal.Decimal) decimal.Decimal {
	return v.account.OrdersCurrentQuantity(v.pair, currentPrice)
}
