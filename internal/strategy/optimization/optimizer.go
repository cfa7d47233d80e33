package optimization

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/strategy/analytics"
	"skisTrader/internal/strategy/backtesting"
	"skisTrader/internal/strategy/manager"
)

// Parameter names understood by the optimizer.
const (
	ParamQuantity              = "quantity"
	ParamLeverage              = "leverage"
	ParamStartDelta            = "startDelta"
	ParamStopDelta             = "stopDelta"
	ParamQuantityMultiplier    = "quantityMultiplier" // Index into domain.QuantityMultiplier
	ParamTrailingMinPnl        = "trailingMinPnl"
	ParamTrailingMaxPnl        = "trailingMaxPnl"
	ParamTrailingMinMultiplier = "trailingMinMultiplier"
	ParamTrailingMaxMultiplier = "trailingMaxMultiplier"
)

// ParameterRange defines an inclusive range for a parameter to optimize
type ParameterRange struct {
	Name string
	Min  decimal.Decimal
	Max  decimal.Decimal
	Step decimal.Decimal
}

// Values expands the range. A non-positive step yields Min only.
func (r ParameterRange) Values() []decimal.Decimal {
	if !r.Step.IsPositive() || r.Max.LessThan(r.Min) {
		return []decimal.Decimal{r.Min}
	}
	var values []decimal.Decimal
	for v := r.Min; v.LessThanOrEqual(r.Max); v = v.Add(r.Step) {
		values = append(values, v)
	}
	return values
}

// OptimizationResult holds the results of one parameter combination
type OptimizationResult struct {
	Parameters map[string]decimal.Decimal
	Options    domain.SkisOptions
	Trailing   manager.TrailingStop
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	BaseOptions     domain.SkisOptions   // Values for parameters without a range
	BaseTrailing    manager.TrailingStop // Default trailing stop if zero
	Account         account.Config
	ProcessStep     int
	TopN            int // Keep every result if zero
	Runner          *backtesting.Runner
	Logger          ports.Logger
	ScoreFunction   func(*analytics.PerformanceMetrics) float64 // DefaultScoreFunction if nil
}

// Optimizer sweeps Skis parameter combinations over one price history
type Optimizer struct {
	config OptimizerConfig
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig) (*Optimizer, error) {
	if config.Runner == nil {
		return nil, fmt.Errorf("%w: runner is required", ports.ErrConfigurationError)
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	for _, r := range config.ParameterRanges {
		if !knownParameter(r.Name) {
			return nil, fmt.Errorf("%w: unknown parameter %q", ports.ErrInvalidRange, r.Name)
		}
		if r.Max.LessThan(r.Min) {
			return nil, fmt.Errorf("%w: %s max %s is below min %s", ports.ErrInvalidRange, r.Name, r.Max, r.Min)
		}
	}
	if config.BaseTrailing.IsZero() {
		config.BaseTrailing = manager.DefaultTrailingStop()
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	return &Optimizer{config: config}, nil
}

// Combinations returns the number of parameter combinations the optimizer will run.
func (o *Optimizer) Combinations() int {
	n := 1
	for _, r := range o.config.ParameterRanges {
		n *= len(r.Values())
	}
	return n
}

type candidate struct {
	params   map[string]decimal.Decimal
	options  domain.SkisOptions
	trailing manager.TrailingStop
}

// Optimize replays windows of pair through every combination and returns
// the results sorted by score, best first.
func (o *Optimizer) Optimize(ctx context.Context, pair string, windows []domain.Window) ([]OptimizationResult, error) {
	candidates, err := o.candidates()
	if err != nil {
		return nil, err
	}

	managers := make([]*manager.Skis, 0, len(candidates))
	for _, c := range candidates {
		m, err := manager.NewSkis(manager.SkisConfig{
			Pair:        pair,
			Account:     o.config.Account,
			Data:        domain.DefaultSkisData(),
			Options:     c.options,
			Trailing:    c.trailing,
			ProcessStep: o.config.ProcessStep,
		})
		if err != nil {
			return nil, fmt.Errorf("creating manager for %v: %w", c.params, err)
		}
		managers = append(managers, m)
	}

	curves, err := backtesting.RunParallel(ctx, o.config.Runner, windows, managers,
		func(m *manager.Skis, w domain.Window, _ int) analytics.EquityPoint {
			return analytics.EquityPoint{Time: w.OpenTime, Value: m.Equity(w.Open)}
		})
	if err != nil {
		return nil, err
	}

	results := make([]OptimizationResult, len(candidates))
	for i, c := range candidates {
		acc := managers[i].Account()
		metrics := analytics.AnalyzeEquity(curves[i], acc.InitialBalance())
		metrics.AddStatistics(acc.Statistics(), acc.PayedCommission())
		metrics.AddTrades(acc.History())
		results[i] = o.result(c, metrics)
	}
	return o.rank(ctx, results), nil
}

// OptimizeMultipair applies every combination to all pairs of a shared account.
func (o *Optimizer) OptimizeMultipair(ctx context.Context, pairs []string, windows []backtesting.MultiWindow) ([]OptimizationResult, error) {
	candidates, err := o.candidates()
	if err != nil {
		return nil, err
	}

	managers := make([]*manager.SkisMultipair, 0, len(candidates))
	for _, c := range candidates {
		infos := make(map[string]manager.PairInfo, len(pairs))
		for _, pair := range pairs {
			infos[pair] = manager.PairInfo{Data: domain.DefaultSkisData(), Options: c.options, Trailing: c.trailing}
		}
		m, err := manager.NewSkisMultipair(manager.SkisMultipairConfig{
			Account:     o.config.Account,
			Pairs:       infos,
			ProcessStep: o.config.ProcessStep,
		})
		if err != nil {
			return nil, fmt.Errorf("creating multipair manager for %v: %w", c.params, err)
		}
		managers = append(managers, m)
	}

	curves, err := backtesting.MultipairRunParallel(ctx, o.config.Runner, windows, managers,
		func(m *manager.SkisMultipair, w backtesting.MultiWindow, _ int) analytics.EquityPoint {
			return analytics.EquityPoint{Time: w.OpenTime, Value: m.Equity(w.Prices())}
		})
	if err != nil {
		return nil, err
	}

	results := make([]OptimizationResult, len(candidates))
	for i, c := range candidates {
		acc := managers[i].Account()
		metrics := analytics.AnalyzeEquity(curves[i], acc.InitialBalance())
		metrics.AddStatistics(acc.Statistics(), acc.PayedCommission())
		metrics.AddTrades(acc.History())
		results[i] = o.result(c, metrics)
	}
	return o.rank(ctx, results), nil
}

func (o *Optimizer) result(c candidate, metrics *analytics.PerformanceMetrics) OptimizationResult {
	return OptimizationResult{
		Parameters: c.params,
		Options:    c.options,
		Trailing:   c.trailing,
		Metrics:    metrics,
		Score:      o.config.ScoreFunction(metrics),
	}
}

func (o *Optimizer) rank(ctx context.Context, results []OptimizationResult) []OptimizationResult {
	sortResultsByScore(results)
	if o.config.TopN > 0 && len(results) > o.config.TopN {
		results = results[:o.config.TopN]
	}
	if len(results) > 0 {
		o.config.Logger.Info(ctx, "Optimization finished", map[string]interface{}{
			"results":     len(results),
			"bestScore":   results[0].Score,
			"bestEquity":  results[0].Metrics.FinalEquity.String(),
			"bestOptions": FormatParameters(results[0].Parameters),
		})
	}
	return results
}

// candidates builds one options set per parameter combination, skipping
// combinations that produce an invalid trailing stop.
func (o *Optimizer) candidates() ([]candidate, error) {
	combinations := o.generateParameterCombinations()
	candidates := make([]candidate, 0, len(combinations))
	for _, params := range combinations {
		c, err := o.apply(params)
		if err != nil {
			return nil, err
		}
		if c.trailing.Validate() != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, ports.ErrNoManagers
	}
	return candidates, nil
}

func (o *Optimizer) apply(params map[string]decimal.Decimal) (candidate, error) {
	c := candidate{params: params, options: o.config.BaseOptions, trailing: o.config.BaseTrailing}
	for name, v := range params {
		switch name {
		case ParamQuantity:
			c.options.Quantity = v
		case ParamLeverage:
			c.options.Leverage = v
		case ParamStartDelta:
			c.options.StartDelta = v
		case ParamStopDelta:
			c.options.StopDelta = v
		case ParamQuantityMultiplier:
			idx := v.IntPart()
			if idx < 0 || idx > int64(domain.MultiplierHighQuad) {
				return candidate{}, fmt.Errorf("%w: quantity multiplier index %d", ports.ErrInvalidRange, idx)
			}
			c.options.QuantityMultiplier = domain.QuantityMultiplier(idx)
		case ParamTrailingMinPnl:
			c.trailing.MinPnl = v
		case ParamTrailingMaxPnl:
			c.trailing.MaxPnl = v
		case ParamTrailingMinMultiplier:
			c.trailing.MinMultiplier = v
		case ParamTrailingMaxMultiplier:
			c.trailing.MaxMultiplier = v
		}
	}
	return c, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]decimal.Decimal {
	var combinations []map[string]decimal.Decimal
	current := make(map[string]decimal.Decimal)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]decimal.Decimal, len(current))
			for k, v := range current {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		for _, value := range param.Values() {
			current[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

func knownParameter(name string) bool {
	switch name {
	case ParamQuantity, ParamLeverage, ParamStartDelta, ParamStopDelta, ParamQuantityMultiplier,
		ParamTrailingMinPnl, ParamTrailingMaxPnl, ParamTrailingMinMultiplier, ParamTrailingMaxMultiplier:
		return true
	}
	return false
}

// FormatParameters renders parameters as strings, the form sweep results are persisted in.
func FormatParameters(params map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == ParamQuantityMultiplier {
			out[k] = domain.QuantityMultiplier(v.IntPart()).String()
			continue
		}
		out[k] = v.String()
	}
	return out
}

// sortResultsByScore sorts optimization results by score in descending order.
// Ties keep combination order.
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DefaultScoreFunction ranks by final equity.
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	score, _ := metrics.FinalEquity.Float64()
	return score
}

// RiskAdjustedScoreFunction favours equity growth with shallow drawdowns.
func RiskAdjustedScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	roi, _ := metrics.ReturnOnInvestment.Float64()
	drawdown, _ := metrics.MaxDrawdown.Float64()
	winrate, _ := metrics.WinrateCount.Float64()

	score := 0.0
	score += roi * 0.5
	score += (1 - drawdown) * 0.3
	score += winrate * 0.2
	return score
}

// ParseParameterRange builds a range from its textual bounds.
func ParseParameterRange(name, minValue, maxValue, step string) (ParameterRange, error) {
	r := ParameterRange{Name: name}
	var err error
	if r.Min, err = parseValue(name, minValue); err != nil {
		return r, err
	}
	if maxValue == "" {
		r.Max = r.Min
	} else if r.Max, err = parseValue(name, maxValue); err != nil {
		return r, err
	}
	if step != "" {
		if r.Step, err = decimal.NewFromString(step); err != nil {
			return r, fmt.Errorf("%w: %s step %q: %v", ports.ErrInvalidRange, name, step, err)
		}
	}
	return r, nil
}

// parseValue accepts multiplier names for the quantity multiplier parameter.
func parseValue(name, s string) (decimal.Decimal, error) {
	if name == ParamQuantityMultiplier {
		if _, err := strconv.Atoi(s); err != nil {
			m, perr := domain.ParseQuantityMultiplier(s)
			if perr != nil {
				return decimal.Zero, fmt.Errorf("%w: %v", ports.ErrInvalidRange, perr)
			}
			return decimal.NewFromInt(int64(m)), nil
		}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s value %q: %v", ports.ErrInvalidRange, name, s, err)
	}
	return v, nil
}
