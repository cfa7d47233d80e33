package sandbox

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

// DefaultInterval is the kline resolution the simulator replays.
const DefaultInterval = "1m"

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// IntervalDuration returns the length of a kline interval.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported interval %q", ports.ErrConfigurationError, interval)
	}
	return d, nil
}

// Config holds configuration for the candle history service.
type Config struct {
	Source    ports.CandleSource
	Repo      ports.KlineRepository
	Logger    ports.Logger
	Interval  string // DefaultInterval if empty
	AllowGaps bool   // Return short histories instead of ErrIncompleteHistory
	Workers   int    // Pairs loaded concurrently by GetMultipairRange, 4 if zero
}

// Service serves candle history from the local cache, filling missing
// months from the exchange.
type Service struct {
	source    ports.CandleSource
	repo      ports.KlineRepository
	logger    ports.Logger
	interval  string
	step      time.Duration
	allowGaps bool
	workers   int
	now       func() time.Time
}

// NewService creates a candle history service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Source == nil || cfg.Repo == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: source, repository and logger are required", ports.ErrConfigurationError)
	}
	if cfg.Interval == "" {
		cfg.Interval = DefaultInterval
	}
	step, err := IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Service{
		source:    cfg.Source,
		repo:      cfg.Repo,
		logger:    cfg.Logger,
		interval:  cfg.Interval,
		step:      step,
		allowGaps: cfg.AllowGaps,
		workers:   cfg.Workers,
		now:       time.Now,
	}, nil
}

// Interval returns the kline interval the service serves.
func (s *Service) Interval() string { return s.interval }

// GetRange returns the klines of pair with open time in [start, end).
// Every month touched by the range is completed from the exchange first.
func (s *Service) GetRange(ctx context.Context, pair string, start, end time.Time) ([]*domain.Kline, error) {
	start, end = start.UTC().Truncate(s.step), end.UTC().Truncate(s.step)
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ports.ErrInvalidRange, start, end)
	}
	if now := s.now().UTC().Truncate(s.step); end.After(now) {
		return nil, fmt.Errorf("%w: end %s is in the future", ports.ErrInvalidRange, end)
	}

	for _, m := range months(start, end) {
		if err := s.fillMonth(ctx, pair, m); err != nil {
			return nil, err
		}
	}

	klines, err := s.repo.FindKlines(ctx, pair, s.interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading %s history: %w", pair, err)
	}
	expected := int(end.Sub(start) / s.step)
	if len(klines) != expected {
		err := fmt.Errorf("%w: %s has %d of %d %s klines between %s and %s",
			ports.ErrIncompleteHistory, pair, len(klines), expected, s.interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
		if !s.allowGaps {
			return nil, err
		}
		s.logger.Warn(ctx, "Replaying history with gaps", map[string]interface{}{"pair": pair, "have": len(klines), "expected": expected})
	}
	return klines, nil
}

// GetMultipairRange loads the same range for several pairs concurrently.
func (s *Service) GetMultipairRange(ctx context.Context, pairs []string, start, end time.Time) (map[string][]*domain.Kline, error) {
	results := make([][]*domain.Kline, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			klines, err := s.GetRange(gctx, pair, start, end)
			if err != nil {
				return err
			}
			results[i] = klines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]*domain.Kline, len(pairs))
	for i, pair := range pairs {
		out[pair] = results[i]
	}
	return out, nil
}

// month is one calendar month in UTC.
type month struct {
	start, end time.Time
}

func months(start, end time.Time) []month {
	var out []month
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); m.Before(end); m = m.AddDate(0, 1, 0) {
		out = append(out, month{start: m, end: m.AddDate(0, 1, 0)})
	}
	return out
}

// fillMonth fetches the tail of a month the cache does not hold yet.
// The current month is only filled up to now.
func (s *Service) fillMonth(ctx context.Context, pair string, m month) error {
	end := m.end
	if now := s.now().UTC().Truncate(s.step); end.After(now) {
		end = now
	}
	expected := int(end.Sub(m.start) / s.step)

	cached, err := s.repo.FindKlines(ctx, pair, s.interval, m.start, end)
	if err != nil {
		return fmt.Errorf("reading cached %s klines: %w", pair, err)
	}
	if len(cached) >= expected {
		return nil
	}

	from := firstMissing(cached, m.start, s.step)
	monthName := m.start.Format("2006.01")
	s.logger.Info(ctx, "Fetching history", map[string]interface{}{
		"pair":   pair,
		"month":  monthName,
		"cached": len(cached),
		"from":   from.Format(time.RFC3339),
	})

	fetched, err := s.source.FetchCandles(ctx, pair, s.interval, from, end)
	if err != nil {
		return fmt.Errorf("fetching %s history for %s: %w", pair, monthName, err)
	}
	if err := s.repo.SaveKlines(ctx, fetched); err != nil {
		return fmt.Errorf("caching %s history for %s: %w", pair, monthName, err)
	}

	s.logger.Info(ctx, "History cached", map[string]interface{}{"pair": pair, "month": monthName, "fetched": len(fetched)})
	return nil
}

// firstMissing returns the open time of the first kline absent from an
// ordered cached sequence starting at start.
func firstMissing(cached []*domain.Kline, start time.Time, step time.Duration) time.Time {
	expect := start
	for _, k := range cached {
		if !k.OpenTime.Equal(expect) {
			return expect
		}
		expect = expect.Add(step)
	}
	return expect
}
