package ports

import (
	"context"
	"time"

	"skisTrader/internal/domain"
)

// KlineRepository caches historical klines.
type KlineRepository interface {
	// SaveKlines upserts klines keyed by symbol, interval and open time.
	SaveKlines(ctx context.Context, klines []*domain.Kline) error
	// FindKlines returns cached klines with open time in [start, end), ordered by open time.
	FindKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)
	// CountKlines counts cached klines with open time in [start, end).
	CountKlines(ctx context.Context, symbol, interval string, start, end time.Time) (int, error)
}

// StateRepository persists per-pair strategy state between process restarts.
type StateRepository interface {
	// SaveSkisData stores the latest strategy data for a pair.
	SaveSkisData(ctx context.Context, pair string, data domain.SkisData) error
	// LoadSkisData returns the stored data or ErrStateNotFound.
	LoadSkisData(ctx context.Context, pair string) (domain.SkisData, error)
}

// SweepRepository stores ranked results of parameter sweeps.
type SweepRepository interface {
	// SaveSweepResults stores results of one sweep run.
	SaveSweepResults(ctx context.Context, results []*domain.SweepResult) error
	// FindTopSweepResults returns the best results of a run by final equity.
	FindTopSweepResults(ctx context.Context, runName string, limit int) ([]*domain.SweepResult, error)
	// ListSweepRuns returns the distinct run names, newest first.
	ListSweepRuns(ctx context.Context) ([]string, error)
}
