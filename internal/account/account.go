package account

import (
	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
)

// Account is a single-pair view over a MultipairAccount.
type Account struct {
	m    *MultipairAccount
	pair string
}

// New creates a single-pair account. pair only labels recorded history.
func New(pair string, cfg Config) (*Account, error) {
	m, err := NewMultipair(cfg)
	if err != nil {
		return nil, err
	}
	return &Account{m: m, pair: pair}, nil
}

// Pair returns the pair label of the account.
func (a *Account) Pair() string { return a.pair }

// Balance returns the free balance.
func (a *Account) Balance() decimal.Decimal { return a.m.Balance() }

// InitialBalance returns the balance the account was created with.
func (a *Account) InitialBalance() decimal.Decimal { return a.m.InitialBalance() }

// PayedCommission returns the cumulative commission paid.
func (a *Account) PayedCommission() decimal.Decimal { return a.m.PayedCommission() }

// LastCalculatedBalance returns the equity computed by the last TotalCurrentQuantity call.
func (a *Account) LastCalculatedBalance() decimal.Decimal { return a.m.LastCalculatedBalance() }

// Statistics returns a copy of the per-side statistics.
func (a *Account) Statistics() Statistics { return a.m.Statistics() }

// History returns the closed trades recorded so far.
func (a *Account) History() []domain.Trade { return a.m.History() }

// Orders returns a snapshot of the open positions.
func (a *Account) Orders() []*domain.Position { return a.m.Orders(a.pair) }

// PendingOrders returns a snapshot of the pending orders.
func (a *Account) PendingOrders() []*domain.Position { return a.m.PendingOrders(a.pair) }

// Longs returns a snapshot of the open long positions.
func (a *Account) Longs() []*domain.Position { return a.m.Longs(a.pair) }

// Shorts returns a snapshot of the open short positions.
func (a *Account) Shorts() []*domain.Position { return a.m.Shorts(a.pair) }

func (a *Account) TryOpenOrder(isShort bool, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	return a.m.TryOpenOrder(a.pair, isShort, price, quantity, leverage, takeProfit, stopLoss)
}

func (a *Account) TryOpenLong(price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	return a.m.TryOpenLong(a.pair, price, quantity, leverage, takeProfit, stopLoss)
}

func (a *Account) TryOpenShort(price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	return a.m.TryOpenShort(a.pair, price, quantity, leverage, takeProfit, stopLoss)
}

func (a *Account) CloseOrder(position *domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	return a.m.CloseOrder(a.pair, position, currentPrice)
}

func (a *Account) CloseOrderWithReason(position *domain.Position, currentPrice decimal.Decimal, reason domain.CloseReason) decimal.Decimal {
	return a.m.CloseOrderWithReason(a.pair, position, currentPrice, reason)
}

func (a *Account) TryCloseTakeProfitAndStopLoss(currentPrice decimal.Decimal, takeProfitPercent, stopLossPercent decimal.NullDecimal) decimal.Decimal {
	return a.m.TryCloseTakeProfitAndStopLoss(a.pair, currentPrice, takeProfitPercent, stopLossPercent)
}

func (a *Account) AddPendingOrder(order *domain.Position) { a.m.AddPendingOrder(a.pair, order) }

func (a *Account) AddPendingLong(price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) {
	a.m.AddPendingLong(a.pair, price, quantity, leverage, takeProfit, stopLoss)
}

func (a *Account) AddPendingShort(price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) {
	a.m.AddPendingShort(a.pair, price, quantity, leverage, takeProfit, stopLoss)
}

func (a *Account) TryOpenPendingOrders(currentPrice decimal.Decimal) decimal.Decimal {
	return a.m.TryOpenPendingOrders(a.pair, currentPrice)
}

func (a *Account) ProcessMarket(currentPrice decimal.Decimal) decimal.Decimal {
	return a.m.ProcessMarket(a.pair, currentPrice)
}

func (a *Account) OrdersCurrentQuantity(currentPrice decimal.Decimal) decimal.Decimal {
	return a.m.OrdersCurrentQuantity(a.pair, currentPrice)
}

func (a *Account) OrdersCurrentPnL(currentPrice decimal.Decimal) decimal.Decimal {
	return a.m.OrdersCurrentPnL(a.pair, currentPrice)
}

func (a *Account) TotalCurrentQuantity(currentPrice decimal.Decimal) decimal.Decimal {
	return a.m.TotalCurrentQuantity(a.pair, currentPrice)
}

func (a *Account) BreakEvenPrice(positions []*domain.Position) decimal.Decimal {
	return a.m.BreakEvenPrice(positions)
}

// Ruin zeroes the balance and drops every open and pending position.
func (a *Account) Ruin() { a.m.Ruin() }
