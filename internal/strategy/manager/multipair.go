package manager

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/risk"
	"skisTrader/internal/strategy/strategies"
)

// PairInfo is the per-pair state of a multi-pair Skis manager.
type PairInfo struct {
	Data        domain.SkisData    `json:"data"`
	Options     domain.SkisOptions `json:"options"`
	Trailing    TrailingStop       `json:"trailing"`
	TotalPayout decimal.Decimal    `json:"totalPayout"` // Sum of payouts of closed positions
}

// SkisMultipairConfig holds the configuration for a multi-pair Skis manager.
type SkisMultipairConfig struct {
	Account     account.Config // Validate defaults to free balance plus liquidation gap
	Pairs       map[string]PairInfo
	ProcessStep int
}

// SkisMultipair runs an independent Skis state machine per pair against one
// shared account. Pairs are always visited in sorted order.
type SkisMultipair struct {
	account     *account.MultipairAccount
	strategy    strategies.Skis
	pairs       map[string]*PairInfo
	order       []string
	processStep int
}

// NewSkisMultipair creates a multi-pair Skis manager.
func NewSkisMultipair(cfg SkisMultipairConfig) (*SkisMultipair, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%w: at least one pair is required", ports.ErrConfigurationError)
	}
	if cfg.Account.Validate == nil {
		cfg.Account.Validate = risk.All(risk.FixedValue(decimal.Zero), risk.LiquidationGap(risk.DefaultLiquidationGap))
	}
	acc, err := account.NewMultipair(cfg.Account)
	if err != nil {
		return nil, err
	}

	m := &SkisMultipair{
		account:     acc,
		pairs:       make(map[string]*PairInfo, len(cfg.Pairs)),
		processStep: max(cfg.ProcessStep, 1),
	}
	for pair, info := range cfg.Pairs {
		info := info
		if info.Trailing.IsZero() {
			info.Trailing = DefaultTrailingStop()
		}
		if err := info.Trailing.Validate(); err != nil {
			return nil, fmt.Errorf("pair %s: %w", pair, err)
		}
		m.pairs[pair] = &info
		m.order = append(m.order, pair)
	}
	sort.Strings(m.order)
	return m, nil
}

// Account returns the shared account.
func (m *SkisMultipair) Account() *account.MultipairAccount { return m.account }

// Pairs returns the managed pairs, sorted.
func (m *SkisMultipair) Pairs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// PairInfo returns a copy of the state of pair.
func (m *SkisMultipair) PairInfo(pair string) (PairInfo, bool) {
	info, ok := m.pairs[pair]
	if !ok {
		return PairInfo{}, false
	}
	return *info, true
}

// SetData replaces the strategy data of pair, e.g. when resuming from a checkpoint.
func (m *SkisMultipair) SetData(pair string, data domain.SkisData) bool {
	info, ok := m.pairs[pair]
	if ok {
		info.Data = data
	}
	return ok
}

// Balance returns the free balance of the shared account.
func (m *SkisMultipair) Balance() decimal.Decimal { return m.account.Balance() }

// Equity returns the mark-to-market value of the shared account.
func (m *SkisMultipair) Equity(prices map[string]decimal.Decimal) decimal.Decimal {
	return m.account.TotalCurrentQuantityAll(prices)
}

// Ruin freezes the shared account.
func (m *SkisMultipair) Ruin() { m.account.Ruin() }

// ProcessMarket applies each pair's candle range, low first: pending fills
// then position level TP/SL at each extreme, then the trailing stop of the
// pair's trend.
func (m *SkisMultipair) ProcessMarket(markets map[string]domain.HighLow) {
	for _, pair := range m.order {
		hl, ok := markets[pair]
		if !ok {
			continue
		}
		info := m.pairs[pair]
		for _, price := range []decimal.Decimal{hl.Low, hl.High} {
			m.account.TryOpenPendingOrders(pair, price)
			info.TotalPayout = info.TotalPayout.Add(
				m.account.TryCloseTakeProfitAndStopLoss(pair, price, decimal.NullDecimal{}, decimal.NullDecimal{}))
		}

		if !stopTriggered(info.Data, hl.High, hl.Low) {
			continue
		}
		stop := info.Data.StopLoss.Decimal
		for _, p := range m.account.Orders(pair) {
			info.TotalPayout = info.TotalPayout.Add(m.account.CloseOrderWithReason(pair, p, stop, domain.CloseReasonTrailingStop))
		}
		info.Data = domain.DefaultSkisData()
	}
}

// Run evaluates the strategy of every priced pair and moves its trailing
// stop. It returns false when step is not a decision step.
func (m *SkisMultipair) Run(prices map[string]decimal.Decimal, step int) bool {
	if step%m.processStep != 0 {
		return false
	}
	for _, pair := range m.order {
		price, ok := prices[pair]
		if !ok {
			continue
		}
		info := m.pairs[pair]
		result := m.strategy.Run(price, m.account.Balance(), info.Data, info.Options)
		m.apply(pair, info, result, price)
	}
	return true
}

func (m *SkisMultipair) apply(pair string, info *PairInfo, result domain.StrategyResult[domain.SkisData], price decimal.Decimal) {
	info.Data = result.Data

	if result.CloseLongs {
		for _, p := range m.account.Longs(pair) {
			info.TotalPayout = info.TotalPayout.Add(m.account.CloseOrderWithReason(pair, p, price, domain.CloseReasonTrendExit))
		}
	}
	if result.CloseShorts {
		for _, p := range m.account.Shorts(pair) {
			info.TotalPayout = info.TotalPayout.Add(m.account.CloseOrderWithReason(pair, p, price, domain.CloseReasonTrendExit))
		}
	}
	for _, o := range result.OrdersToOpen {
		m.account.TryOpenOrder(pair, o.IsShort, price, o.Quantity, o.Leverage, decimal.NullDecimal{}, decimal.NullDecimal{})
	}

	var positions []*domain.Position
	switch info.Data.Trend {
	case domain.TrendUp:
		positions = m.account.Longs(pair)
	case domain.TrendDown:
		positions = m.account.Shorts(pair)
	}
	info.Data = trail(info.Data, info.Trailing, positions, price, m.account.BreakEvenPrice)
}
