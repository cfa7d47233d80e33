package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime   time.Time       // Start time of the interval
	CloseTime  time.Time       // End time of the interval
	Symbol     string          // Trading symbol
	Interval   string          // Kline interval (e.g., "1m", "1h")
	Open       decimal.Decimal // Opening price
	High       decimal.Decimal // Highest price
	Low        decimal.Decimal // Lowest price
	Close      decimal.Decimal // Closing price
	Volume     decimal.Decimal // Base asset volume
	BuyVolume  decimal.Decimal // Taker buy base asset volume
	TradeCount int64           // Number of trades in the interval
	IsFinal    bool            // Whether this kline is the final one for the interval
}

// Window is the aggregate of consecutive klines seen by a manager as one tick.
type Window struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal // Open of the last kline, the decision price
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
}

// Aggregate folds klines into a Window. It returns false for an empty slice.
func Aggregate(klines []*Kline) (Window, bool) {
	if len(klines) == 0 {
		return Window{}, false
	}
	first, last := klines[0], klines[len(klines)-1]
	w := Window{
		OpenTime:  first.OpenTime,
		CloseTime: last.CloseTime,
		Open:      last.Open,
		High:      first.High,
		Low:       first.Low,
		Close:     last.Close,
	}
	for _, k := range klines[1:] {
		if k.High.GreaterThan(w.High) {
			w.High = k.High
		}
		if k.Low.LessThan(w.Low) {
			w.Low = k.Low
		}
	}
	return w, true
}

// HighLow is the price range a pair traded in between two decision points.
type HighLow struct {
	High decimal.Decimal
	Low  decimal.Decimal
}
