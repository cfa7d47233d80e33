package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/strategy/analytics"
)

type klineRow struct {
	OpenTime   string `csv:"open_time"`
	CloseTime  string `csv:"close_time"`
	Symbol     string `csv:"symbol"`
	Interval   string `csv:"interval"`
	Open       string `csv:"open"`
	High       string `csv:"high"`
	Low        string `csv:"low"`
	Close      string `csv:"close"`
	Volume     string `csv:"volume"`
	BuyVolume  string `csv:"buy_volume"`
	TradeCount int64  `csv:"trades"`
}

type equityRow struct {
	Time     string `csv:"time"`
	Value    string `csv:"value"`
	Drawdown string `csv:"drawdown"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// WriteKlines writes klines as CSV with a header row.
func WriteKlines(w io.Writer, klines []*domain.Kline) error {
	rows := make([]*klineRow, 0, len(klines))
	for _, k := range klines {
		rows = append(rows, &klineRow{
			OpenTime:   formatTime(k.OpenTime),
			CloseTime:  formatTime(k.CloseTime),
			Symbol:     k.Symbol,
			Interval:   k.Interval,
			Open:       k.Open.String(),
			High:       k.High.String(),
			Low:        k.Low.String(),
			Close:      k.Close.String(),
			Volume:     k.Volume.String(),
			BuyVolume:  k.BuyVolume.String(),
			TradeCount: k.TradeCount,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// ReadKlines parses klines written by WriteKlines. Every kline read is final.
func ReadKlines(r io.Reader) ([]*domain.Kline, error) {
	var rows []*klineRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse klines: %w", err)
	}

	klines := make([]*domain.Kline, 0, len(rows))
	for i, row := range rows {
		k, err := row.kline()
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i+1, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func (row *klineRow) kline() (*domain.Kline, error) {
	k := &domain.Kline{Symbol: row.Symbol, Interval: row.Interval, TradeCount: row.TradeCount, IsFinal: true}

	var err error
	if k.OpenTime, err = time.Parse(time.RFC3339Nano, row.OpenTime); err != nil {
		return nil, err
	}
	if k.CloseTime, err = time.Parse(time.RFC3339Nano, row.CloseTime); err != nil {
		return nil, err
	}
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&k.Open, row.Open}, {&k.High, row.High}, {&k.Low, row.Low}, {&k.Close, row.Close},
		{&k.Volume, row.Volume}, {&k.BuyVolume, row.BuyVolume},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// WriteKlinesToCSV writes klines to filename.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteKlines(file, klines)
}

// ReadKlinesFromCSV reads klines from filename.
func ReadKlinesFromCSV(filename string) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadKlines(file)
}

// WriteEquityCurve writes an equity curve as CSV with a header row.
func WriteEquityCurve(w io.Writer, curve []analytics.EquityPoint) error {
	rows := make([]*equityRow, 0, len(curve))
	for _, p := range curve {
		rows = append(rows, &equityRow{
			Time:     formatTime(p.Time),
			Value:    p.Value.String(),
			Drawdown: p.Drawdown.String(),
		})
	}
	return gocsv.Marshal(&rows, w)
}

// ReadEquityCurve parses a curve written by WriteEquityCurve.
func ReadEquityCurve(r io.Reader) ([]analytics.EquityPoint, error) {
	var rows []*equityRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse equity curve: %w", err)
	}

	curve := make([]analytics.EquityPoint, 0, len(rows))
	for i, row := range rows {
		t, err := time.Parse(time.RFC3339Nano, row.Time)
		if err != nil {
			return nil, fmt.Errorf("equity row %d: %w", i+1, err)
		}
		value, err := decimal.NewFromString(row.Value)
		if err != nil {
			return nil, fmt.Errorf("equity row %d: %w", i+1, err)
		}
		drawdown, err := decimal.NewFromString(row.Drawdown)
		if err != nil {
			return nil, fmt.Errorf("equity row %d: %w", i+1, err)
		}
		curve = append(curve, analytics.EquityPoint{Time: t, Value: value, Drawdown: drawdown})
	}
	return curve, nil
}

// WriteEquityCurveToCSV writes an equity curve to filename.
func WriteEquityCurveToCSV(curve []analytics.EquityPoint, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteEquityCurve(file, curve)
}
