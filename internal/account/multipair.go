package account

import (
	"fmt"
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

var two = decimal.NewFromInt(2)

// Config holds the configuration for a simulated account.
type Config struct {
	InitialBalance decimal.Decimal
	CommissionRate decimal.Decimal // Fee fraction charged per side, e.g. 0.0005
	Validate       ValidateFunc    // Balance policy consulted before every open
	RecordHistory  bool            // Keep a domain.Trade for every close
}

func (c Config) validate() error {
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("%w: initial balance cannot be negative", ports.ErrConfigurationError)
	}
	if c.CommissionRate.IsNegative() {
		return fmt.Errorf("%w: commission rate cannot be negative", ports.ErrConfigurationError)
	}
	if c.Validate == nil {
		return fmt.Errorf("%w: balance validation policy is required", ports.ErrConfigurationError)
	}
	return nil
}

type book struct {
	orders  []*domain.Position
	pending []*domain.Position
}

// MultipairAccount is an in-memory margin ledger whose open and pending
// positions are kept per pair while the balance is shared.
// It is not safe for concurrent use.
type MultipairAccount struct {
	initialBalance        decimal.Decimal
	commissionRate        decimal.Decimal
	validateBalance       ValidateFunc
	balance               decimal.Decimal
	payedCommission       decimal.Decimal
	lastCalculatedBalance decimal.Decimal
	books                 map[string]*book
	stats                 Statistics
	recordHistory         bool
	history               []domain.Trade
}

// NewMultipair creates a multi-pair account.
func NewMultipair(cfg Config) (*MultipairAccount, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &MultipairAccount{
		initialBalance:  cfg.InitialBalance,
		commissionRate:  cfg.CommissionRate,
		validateBalance: cfg.Validate,
		balance:         cfg.InitialBalance,
		books:           make(map[string]*book),
		recordHistory:   cfg.RecordHistory,
	}, nil
}

func (a *MultipairAccount) book(pair string) *book {
	b, ok := a.books[pair]
	if !ok {
		b = &book{}
		a.books[pair] = b
	}
	return b
}

// Balance returns the free balance.
func (a *MultipairAccount) Balance() decimal.Decimal { return a.balance }

// InitialBalance returns the balance the account was created with.
func (a *MultipairAccount) InitialBalance() decimal.Decimal { return a.initialBalance }

// CommissionRate returns the per-side fee fraction.
func (a *MultipairAccount) CommissionRate() decimal.Decimal { return a.commissionRate }

// PayedCommission returns the cumulative commission paid.
func (a *MultipairAccount) PayedCommission() decimal.Decimal { return a.payedCommission }

// LastCalculatedBalance returns the equity computed by the last TotalCurrentQuantity call.
func (a *MultipairAccount) LastCalculatedBalance() decimal.Decimal { return a.lastCalculatedBalance }

// Statistics returns a copy of the per-side statistics.
func (a *MultipairAccount) Statistics() Statistics { return a.stats }

// History returns the closed trades recorded so far.
func (a *MultipairAccount) History() []domain.Trade {
	return slices.Clone(a.history)
}

// Pairs returns the pairs that have ever been touched, sorted.
func (a *MultipairAccount) Pairs() []string {
	pairs := make([]string, 0, len(a.books))
	for pair := range a.books {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}

// Orders returns a snapshot of the open positions of pair.
func (a *MultipairAccount) Orders(pair string) []*domain.Position {
	return slices.Clone(a.book(pair).orders)
}

// PendingOrders returns a snapshot of the pending orders of pair.
func (a *MultipairAccount) PendingOrders(pair string) []*domain.Position {
	return slices.Clone(a.book(pair).pending)
}

// Longs returns a snapshot of the open long positions of pair.
func (a *MultipairAccount) Longs(pair string) []*domain.Position {
	return a.filter(pair, false)
}

// Shorts returns a snapshot of the open short positions of pair.
func (a *MultipairAccount) Shorts(pair string) []*domain.Position {
	return a.filter(pair, true)
}

func (a *MultipairAccount) filter(pair string, isShort bool) []*domain.Position {
	var out []*domain.Position
	for _, p := range a.book(pair).orders {
		if p.IsShort == isShort {
			out = append(out, p)
		}
	}
	return out
}

// Commission returns the round-trip fee for a position of quantity at leverage.
func (a *MultipairAccount) Commission(quantity, leverage decimal.Decimal) decimal.Decimal {
	return quantity.Mul(two).Mul(a.commissionRate).Mul(leverage)
}

// TryOpenOrder debits quantity plus the round-trip commission and opens a
// position. It returns false without touching any state when the balance
// policy rejects the cost.
func (a *MultipairAccount) TryOpenOrder(pair string, isShort bool, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	if !quantity.IsPositive() || !leverage.IsPositive() {
		panic(fmt.Sprintf("account: invalid order quantity %s leverage %s", quantity, leverage))
	}

	commission := a.Commission(quantity, leverage)
	cost := quantity.Add(commission)
	if !a.validateBalance(pairView{account: a, pair: pair}, cost, price) {
		return false
	}

	a.balance = a.balance.Sub(cost)
	a.payedCommission = a.payedCommission.Add(commission)
	a.addOrder(pair, domain.NewPosition(isShort, price, quantity, leverage, takeProfit, stopLoss))
	return true
}

// TryOpenLong opens a long position, see TryOpenOrder.
func (a *MultipairAccount) TryOpenLong(pair string, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	return a.TryOpenOrder(pair, false, price, quantity, leverage, takeProfit, stopLoss)
}

// TryOpenShort opens a short position, see TryOpenOrder.
func (a *MultipairAccount) TryOpenShort(pair string, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) bool {
	return a.TryOpenOrder(pair, true, price, quantity, leverage, takeProfit, stopLoss)
}

func (a *MultipairAccount) addOrder(pair string, p *domain.Position) {
	b := a.book(pair)
	b.orders = append(b.orders, p)
	a.stats.recordOpen(p.IsShort, p.TotalQuantity())
}

// CloseOrder removes the position from the book and credits its current
// quantity. It returns the payout. Closing a position that is not in the
// book panics.
func (a *MultipairAccount) CloseOrder(pair string, position *domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	return a.CloseOrderWithReason(pair, position, currentPrice, domain.CloseReasonManual)
}

// CloseOrderWithReason is CloseOrder with the reason recorded in the history.
func (a *MultipairAccount) CloseOrderWithReason(pair string, position *domain.Position, currentPrice decimal.Decimal, reason domain.CloseReason) decimal.Decimal {
	b := a.book(pair)
	idx := slices.Index(b.orders, position)
	if idx < 0 {
		panic(fmt.Sprintf("account: position %s is not open on pair %q", position.ID, pair))
	}
	b.orders = slices.Delete(b.orders, idx, idx+1)

	payout := position.CurrentQuantity(currentPrice)
	a.balance = a.balance.Add(payout)

	win := payout.GreaterThan(position.TotalQuantity())
	a.stats.recordClose(position.IsShort, win, payout)

	if a.recordHistory {
		a.history = append(a.history, domain.Trade{
			PositionID:  position.ID,
			Pair:        pair,
			IsShort:     position.IsShort,
			EntryPrice:  position.Price,
			ExitPrice:   currentPrice,
			Quantity:    position.Quantity,
			Leverage:    position.Leverage,
			Payout:      payout,
			PNL:         payout.Sub(position.Quantity),
			IsWin:       win,
			CloseReason: reason,
		})
	}
	return payout
}

// TryCloseTakeProfitAndStopLoss closes every position of pair whose own
// TP/SL price was crossed or whose profit percent reached the given
// thresholds. It returns the summed payout.
func (a *MultipairAccount) TryCloseTakeProfitAndStopLoss(pair string, currentPrice decimal.Decimal, takeProfitPercent, stopLossPercent decimal.NullDecimal) decimal.Decimal {
	result := decimal.Zero
	for _, p := range a.Orders(pair) {
		if !p.NeedsCloseByPrice(currentPrice) && !p.NeedsCloseByPercent(currentPrice, takeProfitPercent, stopLossPercent) {
			continue
		}
		result = result.Add(a.CloseOrderWithReason(pair, p, currentPrice, closeReason(p, currentPrice)))
	}
	return result
}

func closeReason(p *domain.Position, currentPrice decimal.Decimal) domain.CloseReason {
	if p.ProfitQuantity(currentPrice).IsPositive() {
		return domain.CloseReasonTakeProfit
	}
	return domain.CloseReasonStopLoss
}

// AddPendingOrder queues a limit-style order for pair.
func (a *MultipairAccount) AddPendingOrder(pair string, order *domain.Position) {
	b := a.book(pair)
	b.pending = append(b.pending, order)
}

// AddPendingLong queues a long that opens once price falls to price.
func (a *MultipairAccount) AddPendingLong(pair string, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) {
	a.AddPendingOrder(pair, domain.NewPosition(false, price, quantity, leverage, takeProfit, stopLoss))
}

// AddPendingShort queues a short that opens once price rises to price.
func (a *MultipairAccount) AddPendingShort(pair string, price, quantity, leverage decimal.Decimal, takeProfit, stopLoss decimal.NullDecimal) {
	a.AddPendingOrder(pair, domain.NewPosition(true, price, quantity, leverage, takeProfit, stopLoss))
}

// TryOpenPendingOrders opens the pending orders of pair that currentPrice
// triggers and the balance policy accepts. Opened orders leave the pending
// list; rejected ones stay. It returns the summed opened quantity.
func (a *MultipairAccount) TryOpenPendingOrders(pair string, currentPrice decimal.Decimal) decimal.Decimal {
	result := decimal.Zero
	b := a.book(pair)
	for _, order := range slices.Clone(b.pending) {
		if !order.NeedsOpenByPrice(currentPrice) {
			continue
		}
		if !a.TryOpenOrder(pair, order.IsShort, order.Price, order.Quantity, order.Leverage, order.TakeProfit, order.StopLoss) {
			continue
		}
		if idx := slices.Index(b.pending, order); idx >= 0 {
			b.pending = slices.Delete(b.pending, idx, idx+1)
		}
		result = result.Add(order.Quantity)
	}
	return result
}

// ProcessMarket applies price action between decision points: pending fills
// first, then TP/SL closes.
func (a *MultipairAccount) ProcessMarket(pair string, currentPrice decimal.Decimal) decimal.Decimal {
	opened := a.TryOpenPendingOrders(pair, currentPrice)
	return opened.Add(a.TryCloseTakeProfitAndStopLoss(pair, currentPrice, decimal.NullDecimal{}, decimal.NullDecimal{}))
}

// OrdersCurrentQuantity is the mark-to-market value of the open positions of pair.
func (a *MultipairAccount) OrdersCurrentQuantity(pair string, currentPrice decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	if b, ok := a.books[pair]; ok {
		for _, p := range b.orders {
			sum = sum.Add(p.CurrentQuantity(currentPrice))
		}
	}
	return sum
}

// OrdersCurrentPnL is the unrealised PnL of the open positions of pair.
func (a *MultipairAccount) OrdersCurrentPnL(pair string, currentPrice decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	if b, ok := a.books[pair]; ok {
		for _, p := range b.orders {
			sum = sum.Add(p.ProfitQuantity(currentPrice))
		}
	}
	return sum
}

// TotalCurrentQuantity is the balance plus the value of the positions of pair.
// The result is remembered as LastCalculatedBalance.
func (a *MultipairAccount) TotalCurrentQuantity(pair string, currentPrice decimal.Decimal) decimal.Decimal {
	a.lastCalculatedBalance = a.balance.Add(a.OrdersCurrentQuantity(pair, currentPrice))
	return a.lastCalculatedBalance
}

// OrdersCurrentQuantityAll values the positions of every pair in prices.
func (a *MultipairAccount) OrdersCurrentQuantityAll(prices map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for pair, price := range prices {
		sum = sum.Add(a.OrdersCurrentQuantity(pair, price))
	}
	return sum
}

// OrdersCurrentPnLAll sums the unrealised PnL of every pair in prices.
func (a *MultipairAccount) OrdersCurrentPnLAll(prices map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for pair, price := range prices {
		sum = sum.Add(a.OrdersCurrentPnL(pair, price))
	}
	return sum
}

// TotalCurrentQuantityAll is the account equity over every pair in prices.
// The result is remembered as LastCalculatedBalance.
func (a *MultipairAccount) TotalCurrentQuantityAll(prices map[string]decimal.Decimal) decimal.Decimal {
	a.lastCalculatedBalance = a.balance.Add(a.OrdersCurrentQuantityAll(prices))
	return a.lastCalculatedBalance
}

// BreakEvenPrice returns the price at which closing positions returns their
// margin plus the commission paid for them. Positions are expected to share a
// side. It returns zero for an empty set.
func (a *MultipairAccount) BreakEvenPrice(positions []*domain.Position) decimal.Decimal {
	return breakEvenPrice(positions, a.commissionRate)
}

func breakEvenPrice(positions []*domain.Position, commissionRate decimal.Decimal) decimal.Decimal {
	exposure := decimal.Zero
	weighted := decimal.Zero
	commission := decimal.Zero
	for _, p := range positions {
		total := p.TotalQuantity()
		exposure = exposure.Add(total)
		weighted = weighted.Add(p.Price.Mul(total))
		commission = commission.Add(total.Mul(two).Mul(commissionRate))
	}
	if exposure.IsZero() {
		return decimal.Zero
	}

	avg := weighted.Div(exposure)
	feeShare := commission.Div(exposure)
	if positions[0].IsShort {
		return avg.Mul(decimal.NewFromInt(1).Sub(feeShare))
	}
	return avg.Mul(decimal.NewFromInt(1).Add(feeShare))
}

// Ruin zeroes the balance and drops every open and pending position.
func (a *MultipairAccount) Ruin() {
	a.balance = decimal.Zero
	for _, b := range a.books {
		b.orders = nil
		b.pending = nil
	}
}
