package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
)

// PerformanceMetrics holds performance metrics of one simulated run
type PerformanceMetrics struct {
	// Equity Metrics
	InitialBalance     decimal.Decimal
	FinalEquity        decimal.Decimal
	PeakEquity         decimal.Decimal
	TotalProfit        decimal.Decimal
	ReturnOnInvestment decimal.Decimal
	MaxDrawdown        decimal.Decimal // Fraction of the running peak
	SharpeRatio        float64         // Mean over standard deviation of point-to-point returns
	Volatility         float64         // Standard deviation of point-to-point returns
	Ruined             bool            // Equity reached zero at some point

	// Trade Metrics
	TotalTrades          int
	LongTrades           int
	ShortTrades          int
	WinningTrades        int
	LosingTrades         int
	WinrateCount         decimal.Decimal
	WinrateSum           decimal.Decimal
	PayedCommission      decimal.Decimal
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	MonthlyReturns map[string]decimal.Decimal
	Drawdowns      []Drawdown
	EquityCurve    []EquityPoint
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue decimal.Decimal
	EndValue   decimal.Decimal
	Depth      decimal.Decimal
	Duration   time.Duration
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time       `json:"time"`
	Value    decimal.Decimal `json:"value"`
	Drawdown decimal.Decimal `json:"drawdown"`
}

// AnalyzeEquity calculates metrics from an equity curve sampled in time order.
// The Drawdown field of every point is filled in.
func AnalyzeEquity(curve []EquityPoint, initialBalance decimal.Decimal) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		InitialBalance: initialBalance,
		FinalEquity:    initialBalance,
		PeakEquity:     initialBalance,
		MonthlyReturns: make(map[string]decimal.Decimal),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0, len(curve)),
	}
	if len(curve) == 0 {
		return metrics
	}

	peak := initialBalance
	var currentDrawdown *Drawdown
	var returns []float64
	previous := initialBalance
	monthStart := initialBalance
	month := curve[0].Time.Format("2006-01")

	for _, point := range curve {
		value := point.Value
		if !value.IsPositive() {
			metrics.Ruined = true
		}

		if key := point.Time.Format("2006-01"); key != month {
			metrics.MonthlyReturns[month] = previous.Sub(monthStart)
			month, monthStart = key, previous
		}

		if previous.IsPositive() {
			r, _ := value.Sub(previous).Div(previous).Float64()
			returns = append(returns, r)
		}
		previous = value

		drawdown := decimal.Zero
		if value.GreaterThanOrEqual(peak) {
			peak = value
			if currentDrawdown != nil {
				closeDrawdown(currentDrawdown, point.Time, value)
				metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
				currentDrawdown = nil
			}
		} else if peak.IsPositive() {
			drawdown = peak.Sub(value).Div(peak)
			if currentDrawdown == nil {
				currentDrawdown = &Drawdown{StartTime: point.Time, StartValue: peak, Depth: drawdown}
			} else {
				currentDrawdown.Depth = decimal.Max(currentDrawdown.Depth, drawdown)
			}
			metrics.MaxDrawdown = decimal.Max(metrics.MaxDrawdown, drawdown)
		}

		point.Drawdown = drawdown
		metrics.EquityCurve = append(metrics.EquityCurve, point)
	}

	last := curve[len(curve)-1]
	if currentDrawdown != nil {
		closeDrawdown(currentDrawdown, last.Time, last.Value)
		metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
	}
	metrics.MonthlyReturns[month] = previous.Sub(monthStart)

	metrics.FinalEquity = last.Value
	metrics.PeakEquity = peak
	metrics.TotalProfit = last.Value.Sub(initialBalance)
	if initialBalance.IsPositive() {
		metrics.ReturnOnInvestment = metrics.TotalProfit.Div(initialBalance)
	}

	if len(returns) > 1 {
		mean, _ := stats.Mean(returns)
		sd, _ := stats.StandardDeviation(returns)
		metrics.Volatility = sd
		if sd > 0 && !math.IsNaN(sd) {
			metrics.SharpeRatio = mean / sd
		}
	}

	return metrics
}

func closeDrawdown(dd *Drawdown, at time.Time, value decimal.Decimal) {
	dd.EndTime = at
	dd.EndValue = value
	dd.Duration = at.Sub(dd.StartTime)
}

// AddStatistics copies account counters into the metrics.
func (m *PerformanceMetrics) AddStatistics(s account.Statistics, payedCommission decimal.Decimal) {
	m.LongTrades = s.Longs.TotalCount
	m.ShortTrades = s.Shorts.TotalCount
	m.TotalTrades = s.Longs.TotalCount + s.Shorts.TotalCount
	m.WinningTrades = s.Longs.WinsCount + s.Shorts.WinsCount
	m.LosingTrades = s.Longs.LosesCount + s.Shorts.LosesCount
	m.WinrateCount = s.WinrateCount()
	m.WinrateSum = s.WinrateSum()
	m.PayedCommission = payedCommission
}

// AddTrades derives streak metrics from a recorded close history.
func (m *PerformanceMetrics) AddTrades(trades []domain.Trade) {
	var wins, losses int
	for _, trade := range trades {
		if trade.IsWin {
			wins++
			losses = 0
		} else {
			losses++
			wins = 0
		}
		m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, wins)
		m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, losses)
	}
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return decimal.Decimal
}
