package ports

import (
	"context"
	"time"

	"skisTrader/internal/domain"
)

// CandleSource supplies historical klines.
type CandleSource interface {
	// FetchCandles retrieves klines for pair whose open time lies in [start, end),
	// ordered by open time. Implementations page and retry internally.
	FetchCandles(ctx context.Context, pair, interval string, start, end time.Time) ([]*domain.Kline, error)
}

// KlineStreamer delivers live klines.
type KlineStreamer interface {
	// StreamKlines starts a WebSocket stream for K-line/candlestick data.
	// It takes handlers for processing domain.Kline events and errors.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// ExchangeClient defines the subset of exchange functionality the simulator needs.
type ExchangeClient interface {
	CandleSource
	KlineStreamer

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)
}
