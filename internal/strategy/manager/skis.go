package manager

import (
	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
	"skisTrader/internal/risk"
	"skisTrader/internal/strategy/strategies"
)

// SkisConfig holds the configuration for a single-pair Skis manager.
type SkisConfig struct {
	Pair        string
	Account     account.Config // Validate defaults to the liquidation-gap policy
	Data        domain.SkisData
	Options     domain.SkisOptions
	Trailing    TrailingStop // Zero value means DefaultTrailingStop
	ProcessStep int
}

// Skis drives the Skis strategy on one pair and trails a stop loss behind
// profitable trends.
type Skis struct {
	*Sandbox[domain.SkisData, domain.SkisOptions]
	trailing TrailingStop
}

// NewSkis creates a Skis manager.
func NewSkis(cfg SkisConfig) (*Skis, error) {
	if cfg.Account.Validate == nil {
		cfg.Account.Validate = risk.LiquidationGap(risk.DefaultLiquidationGap)
	}
	if cfg.Trailing.IsZero() {
		cfg.Trailing = DefaultTrailingStop()
	}
	if err := cfg.Trailing.Validate(); err != nil {
		return nil, err
	}
	acc, err := account.New(cfg.Pair, cfg.Account)
	if err != nil {
		return nil, err
	}
	sandbox, err := NewSandbox[domain.SkisData, domain.SkisOptions](acc, strategies.Skis{}, cfg.Data, cfg.Options, cfg.ProcessStep)
	if err != nil {
		return nil, err
	}
	return &Skis{Sandbox: sandbox, trailing: cfg.Trailing}, nil
}

// ProcessMarket closes every position at the trailing stop when the candle
// range crossed it and resets the strategy data.
func (m *Skis) ProcessMarket(high, low decimal.Decimal) {
	m.Sandbox.ProcessMarket(high, low)

	data := m.Data()
	if !stopTriggered(data, high, low) {
		return
	}
	acc := m.Account()
	for _, p := range acc.Orders() {
		acc.CloseOrderWithReason(p, data.StopLoss.Decimal, domain.CloseReasonTrailingStop)
	}
	m.SetData(domain.DefaultSkisData())
}

// Run evaluates the strategy and then moves the trailing stop.
func (m *Skis) Run(currentPrice decimal.Decimal, step int) bool {
	if !m.Sandbox.Run(currentPrice, step) {
		return false
	}
	data := m.Data()
	acc := m.Account()
	var positions []*domain.Position
	switch data.Trend {
	case domain.TrendUp:
		positions = acc.Longs()
	case domain.TrendDown:
		positions = acc.Shorts()
	}
	m.SetData(trail(data, m.trailing, positions, currentPrice, acc.BreakEvenPrice))
	return true
}
